package peripherals

import (
	"bytes"
	"testing"

	"github.com/retroenv/retrogolib/assert"

	"go8080/pkg/asm"
	"go8080/pkg/cpu"
)

func runConsoleProgram(t *testing.T, source string) string {
	t.Helper()

	image, _, err := asm.Assemble(source)
	assert.NoError(t, err)

	var out bytes.Buffer
	con := NewConsole(&out)
	c := cpu.NewCPU(cpu.Config{MemorySize: 0x1000, Guards: cpu.GuardPolicy{Stack: true, ProgramCounter: true}}, con)
	con.Attach(c)
	c.Output = &bytes.Buffer{}

	assert.NoError(t, c.Load(0, image))
	InstallBDOS(c)
	c.PC = 0x0100

	assert.NoError(t, c.Run())
	return out.String()
}

func TestConsolePrint(t *testing.T) {
	source := `
BDOS    EQU 5
        ORG 100h
        LXI SP,0F00h
        LXI D,MSG
        MVI C,9
        CALL BDOS
        MVI C,2
        MVI E,'!'
        CALL BDOS
        JMP 0
MSG:    DB 0Ch,0Dh,0Ah,'HELLO',0Dh,0Ah,'$'
`
	assert.Equal(t, "\nHELLO\n!", runConsoleProgram(t, source))
}

func TestConsoleIgnoresOtherCalls(t *testing.T) {
	source := `
        ORG 100h
        LXI SP,0F00h
        MVI C,1
        CALL 5
        MVI C,2
        MVI E,7
        CALL 5
        JMP 0
`
	assert.Equal(t, "", runConsoleProgram(t, source))
}

func TestConsoleDetached(t *testing.T) {
	var out bytes.Buffer
	con := NewConsole(&out)
	con.Out(0, 0)
	assert.Equal(t, byte(0), con.In(0))
	assert.Equal(t, 0, out.Len())
	assert.Equal(t, ConsoleType, con.Type())
}

func TestInstallBDOS(t *testing.T) {
	c := cpu.NewCPU(cpu.DefaultConfig(), nil)
	InstallBDOS(c)
	assert.Equal(t, []byte{0x76, 0, 0, 0, 0, 0xD3, 0x00, 0xC9}, c.Memory[:8])
}
