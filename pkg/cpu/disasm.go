package cpu

import (
	"fmt"
	"io"
	"strings"
)

// Disassemble renders the instruction at pc and returns its length in bytes.
// Bytes past the end of mem read as zero.
func Disassemble(mem []byte, pc uint16) (string, int) {
	at := func(i int) byte {
		addr := int(pc) + i
		if addr >= len(mem) {
			return 0
		}
		return mem[addr]
	}

	in := Instructions[at(0)]
	if !in.Defined {
		return fmt.Sprintf("DB $%02X", in.Opcode), 1
	}

	var operands []string
	if in.Args != "" {
		operands = append(operands, in.Args)
	}
	switch in.Operand {
	case OperandByte:
		operands = append(operands, fmt.Sprintf("$%02X", at(1)))
	case OperandWord:
		operands = append(operands, fmt.Sprintf("$%04X", uint16(at(2))<<8|uint16(at(1))))
	}

	if len(operands) == 0 {
		return in.Name, in.Length()
	}
	return in.Name + " " + strings.Join(operands, ","), in.Length()
}

// DisassembleRange writes a listing of mem[start:end] to w.
func DisassembleRange(w io.Writer, mem []byte, start, end int) {
	for pc := start; pc < end && pc < len(mem); {
		text, n := Disassemble(mem, uint16(pc))
		raw := make([]string, 0, n)
		for i := 0; i < n; i++ {
			if pc+i < len(mem) {
				raw = append(raw, fmt.Sprintf("%02X", mem[pc+i]))
			}
		}
		fmt.Fprintf(w, "%04X  %-9s %s\n", pc, strings.Join(raw, " "), text)
		pc += n
	}
}
