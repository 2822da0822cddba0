package peripherals

import (
	"io"
	"sync"

	"go8080/pkg/cpu"
)

const ConsoleType = "Console"

// BDOS functions understood by the console.
const (
	bdosPutChar   = 2
	bdosPutString = 9
)

// bdosEntry is the CP/M system call address. Port 0 doubles as the call gate.
const bdosEntry = 0x0005

// Console services CP/M print calls for diagnostic programs such as cpudiag.
// Programs CALL 5 with the function in C; the stub at 5 executes OUT 0 and
// the console reads its arguments out of the CPU registers.
type Console struct {
	mu  sync.Mutex
	c   *cpu.CPU
	out io.Writer
}

func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

func (con *Console) Type() string { return ConsoleType }

// Attach binds the console to the CPU whose registers carry the call.
func (con *Console) Attach(c *cpu.CPU) {
	con.mu.Lock()
	con.c = c
	con.mu.Unlock()
}

// InstallBDOS writes the warm boot trap and the call stub into low memory:
// HLT at 0 so that JMP 0 ends the program, and OUT 0 / RET at 5.
func InstallBDOS(c *cpu.CPU) {
	c.Memory[0x0000] = 0x76
	c.Memory[bdosEntry] = 0xD3
	c.Memory[bdosEntry+1] = 0x00
	c.Memory[bdosEntry+2] = 0xC9
}

func (con *Console) In(port byte) byte {
	return 0
}

// Interrupt and Render are no-ops: CP/M programs have no video.
func (con *Console) Interrupt(vector byte) {}

func (con *Console) Render(vram []byte) {}

func (con *Console) Out(port, value byte) {
	if port != 0 {
		return
	}
	con.mu.Lock()
	defer con.mu.Unlock()
	if con.c == nil {
		return
	}

	switch con.c.C {
	case bdosPutString:
		con.putString(con.c.DE())
	case bdosPutChar:
		con.write([]byte{con.c.E})
	}
}

// putString writes memory from addr up to the '$' terminator.
func (con *Console) putString(addr uint16) {
	var buf []byte
	for i := 0; i < len(con.c.Memory); i++ {
		ch := con.c.ReadByte(addr + uint16(i))
		if ch == '$' {
			break
		}
		buf = append(buf, ch)
	}
	con.write(buf)
}

// write drops control characters other than newline.
func (con *Console) write(data []byte) {
	out := data[:0]
	for _, ch := range data {
		if ch == '\n' || (ch >= 0x20 && ch < 0x7F) {
			out = append(out, ch)
		}
	}
	if len(out) > 0 {
		_, _ = con.out.Write(out)
	}
}
