package cpu

import (
	"fmt"
	"io"
)

const dumpWindow = 8

// DumpState writes the instruction at PC, the memory around it, registers
// and flags to w.
func (c *CPU) DumpState(w io.Writer) {
	text, _ := Disassemble(c.Memory, c.PC)
	fmt.Fprintf(w, "PC=%04X  %s\n", c.PC, text)

	start := int(c.PC) - dumpWindow
	if start < 0 {
		start = 0
	}
	end := int(c.PC) + dumpWindow
	if end > len(c.Memory) {
		end = len(c.Memory)
	}
	fmt.Fprintf(w, "MEM %04X:", start)
	for addr := start; addr < end; addr++ {
		if addr == int(c.PC) {
			fmt.Fprintf(w, " [%02X]", c.Memory[addr])
			continue
		}
		fmt.Fprintf(w, " %02X", c.Memory[addr])
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "A=%02X B=%02X C=%02X D=%02X E=%02X H=%02X L=%02X\n",
		c.A, c.B, c.C, c.D, c.E, c.H, c.L)
	fmt.Fprintf(w, "SP=%04X FLAGS=%s (%02X) IE=%t CYCLES=%d\n",
		c.SP, c.Flags, c.Flags.Byte(), c.IE, c.Cycles)
}
