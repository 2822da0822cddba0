package cpu

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/retroenv/retrogolib/assert"
)

// newTestCPU creates a 16 KiB CPU with no ROM, the program at address 0 and
// the stack at 0x3000.
func newTestCPU(t testing.TB, program ...byte) *CPU {
	t.Helper()
	c := NewCPU(DefaultConfig(), nil)
	c.Output = io.Discard
	if err := c.Load(0, program); err != nil {
		t.Fatalf("Load: %v", err)
	}
	c.SP = 0x3000
	return c
}

func step(t *testing.T, c *CPU, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if _, err := c.Step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
}

func TestAddScenarios(t *testing.T) {
	tests := []struct {
		name  string
		a     byte
		want  byte
		flags Flags
	}{
		{"half carry", 0x0F, 0x10, Flags{AC: true}},
		{"overflow to zero", 0xFF, 0x00, Flags{Z: true, P: true, CY: true, AC: true}},
		{"plain", 0x01, 0x02, Flags{}},
		{"sign", 0x7F, 0x80, Flags{S: true, AC: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCPU(t, 0xC6, 0x01) // ADI 1
			c.A = tt.a
			step(t, c, 1)
			assert.Equal(t, tt.want, c.A)
			assert.Equal(t, tt.flags, c.Flags)
		})
	}
}

func TestSubtractBorrow(t *testing.T) {
	c := newTestCPU(t, 0xD6, 0x06) // SUI 6
	c.A = 0x05
	step(t, c, 1)
	assert.Equal(t, byte(0xFF), c.A)
	assert.True(t, c.Flags.CY)
	assert.True(t, c.Flags.S)

	c = newTestCPU(t, 0xD6, 0x05)
	c.A = 0x06
	step(t, c, 1)
	assert.Equal(t, byte(0x01), c.A)
	assert.False(t, c.Flags.CY)

	// SBB B with borrow in: 0x10 - 0x01 - 1
	c = newTestCPU(t, 0x98)
	c.A, c.B = 0x10, 0x01
	c.Flags.CY = true
	step(t, c, 1)
	assert.Equal(t, byte(0x0E), c.A)
	assert.False(t, c.Flags.CY)
}

func TestCompareDoesNotCommit(t *testing.T) {
	c := newTestCPU(t, 0xFE, 0x42, 0xB8) // CPI $42; CMP B
	c.A = 0x42
	c.B = 0x50
	step(t, c, 1)
	assert.Equal(t, byte(0x42), c.A)
	assert.True(t, c.Flags.Z)
	assert.False(t, c.Flags.CY)

	step(t, c, 1)
	assert.Equal(t, byte(0x42), c.A)
	assert.False(t, c.Flags.Z)
	assert.True(t, c.Flags.CY)
}

func TestIncrementKeepsCarry(t *testing.T) {
	c := newTestCPU(t, 0x04, 0x05, 0x05) // INR B; DCR B; DCR B
	c.B = 0xFF
	c.Flags.CY = true
	step(t, c, 1)
	assert.Equal(t, byte(0x00), c.B)
	assert.True(t, c.Flags.Z)
	assert.True(t, c.Flags.CY)
	assert.True(t, c.Flags.AC)

	c.Flags.CY = false
	step(t, c, 2)
	assert.Equal(t, byte(0xFE), c.B)
	assert.False(t, c.Flags.CY)
	assert.True(t, c.Flags.S)
}

func TestIncrementMemory(t *testing.T) {
	c := newTestCPU(t, 0x34, 0x35, 0x35) // INR M; DCR M; DCR M
	c.SetHL(0x2000)
	c.Memory[0x2000] = 0x41
	step(t, c, 3)
	assert.Equal(t, byte(0x40), c.Memory[0x2000])
}

func TestRotates(t *testing.T) {
	tests := []struct {
		name    string
		opcode  byte
		a       byte
		carry   bool
		want    byte
		wantCry bool
	}{
		{"RLC", 0x07, 0x81, false, 0x03, true},
		{"RRC", 0x0F, 0x81, false, 0xC0, true},
		{"RAL old carry in", 0x17, 0x80, false, 0x00, true},
		{"RAL carry set", 0x17, 0x01, true, 0x03, false},
		{"RAR old carry in", 0x1F, 0x01, false, 0x00, true},
		{"RAR carry set", 0x1F, 0x02, true, 0x81, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCPU(t, tt.opcode)
			c.A = tt.a
			c.Flags.CY = tt.carry
			step(t, c, 1)
			assert.Equal(t, tt.want, c.A)
			assert.Equal(t, tt.wantCry, c.Flags.CY)
		})
	}
}

func TestCarryOperations(t *testing.T) {
	c := newTestCPU(t, 0x37, 0x3F, 0x3F, 0x2F) // STC; CMC; CMC; CMA
	c.A = 0x5A
	step(t, c, 1)
	assert.True(t, c.Flags.CY)
	step(t, c, 1)
	assert.False(t, c.Flags.CY)
	step(t, c, 2)
	assert.True(t, c.Flags.CY)
	assert.Equal(t, byte(0xA5), c.A)
}

func TestDoubleAdd(t *testing.T) {
	c := newTestCPU(t, 0x09, 0x29) // DAD B; DAD H
	c.SetHL(0x8000)
	c.SetBC(0x8001)
	step(t, c, 1)
	assert.Equal(t, uint16(0x0001), c.HL())
	assert.True(t, c.Flags.CY)

	step(t, c, 1)
	assert.Equal(t, uint16(0x0002), c.HL())
	assert.False(t, c.Flags.CY)
}

func TestDataTransfer(t *testing.T) {
	program := []byte{
		0x21, 0x00, 0x20, // LXI H,$2000
		0x36, 0x99, // MVI M,$99
		0x7E,             // MOV A,M
		0x32, 0x10, 0x20, // STA $2010
		0x22, 0x20, 0x20, // SHLD $2020
		0x11, 0x34, 0x12, // LXI D,$1234
		0xEB,             // XCHG
		0x2A, 0x20, 0x20, // LHLD $2020
		0x01, 0x10, 0x20, // LXI B,$2010
		0x0A,             // LDAX B
		0x3C,             // INR A
		0x12,             // STAX D
		0x3A, 0x00, 0x20, // LDA $2000
	}
	c := newTestCPU(t, program...)
	step(t, c, 4)
	assert.Equal(t, byte(0x99), c.Memory[0x2000])
	assert.Equal(t, byte(0x99), c.A)
	assert.Equal(t, byte(0x99), c.Memory[0x2010])

	step(t, c, 3)
	assert.Equal(t, byte(0x00), c.Memory[0x2020])
	assert.Equal(t, byte(0x20), c.Memory[0x2021])
	assert.Equal(t, uint16(0x1234), c.HL())
	assert.Equal(t, uint16(0x2000), c.DE())

	step(t, c, 1)
	assert.Equal(t, uint16(0x2000), c.HL())

	step(t, c, 4)
	assert.Equal(t, byte(0x9A), c.Memory[0x2000])

	step(t, c, 1)
	assert.Equal(t, byte(0x9A), c.A)
}

func TestPairIncrement(t *testing.T) {
	c := newTestCPU(t, 0x03, 0x1B, 0x33, 0x2B) // INX B; DCX D; INX SP; DCX H
	c.SetBC(0x00FF)
	c.SetDE(0x0000)
	c.SetHL(0x1000)
	step(t, c, 4)
	assert.Equal(t, uint16(0x0100), c.BC())
	assert.Equal(t, uint16(0xFFFF), c.DE())
	assert.Equal(t, uint16(0x3001), c.SP)
	assert.Equal(t, uint16(0x0FFF), c.HL())
}

func TestPushPopRoundTrip(t *testing.T) {
	pairs := []struct {
		name string
		push byte
		pop  byte
		set  func(c *CPU, v uint16)
		get  func(c *CPU) uint16
	}{
		{"B", 0xC5, 0xC1, (*CPU).SetBC, (*CPU).BC},
		{"D", 0xD5, 0xD1, (*CPU).SetDE, (*CPU).DE},
		{"H", 0xE5, 0xE1, (*CPU).SetHL, (*CPU).HL},
	}

	for _, p := range pairs {
		t.Run(p.name, func(t *testing.T) {
			for _, v := range []uint16{0x0000, 0x1234, 0xBEEF, 0xFFFF} {
				c := newTestCPU(t, p.push, p.pop)
				p.set(c, v)
				step(t, c, 1)
				assert.Equal(t, uint16(0x2FFE), c.SP)
				assert.Equal(t, byte(v>>8), c.Memory[0x2FFF])
				assert.Equal(t, byte(v), c.Memory[0x2FFE])

				p.set(c, 0)
				step(t, c, 1)
				assert.Equal(t, v, p.get(c))
				assert.Equal(t, uint16(0x3000), c.SP)
			}
		})
	}
}

func TestPushPopPSWRoundTrip(t *testing.T) {
	for bits := 0; bits < 32; bits++ {
		flags := Flags{
			Z:  bits&1 != 0,
			S:  bits&2 != 0,
			P:  bits&4 != 0,
			CY: bits&8 != 0,
			AC: bits&16 != 0,
		}
		c := newTestCPU(t, 0xF5, 0xF1) // PUSH PSW; POP PSW
		c.A = byte(bits * 7)
		c.Flags = flags
		step(t, c, 1)

		packed := c.Memory[0x2FFE]
		if packed&0x02 == 0 || packed&0x28 != 0 {
			t.Fatalf("flags byte 0x%02X has wrong fixed bits", packed)
		}

		c.A = 0
		c.Flags = Flags{}
		step(t, c, 1)
		if c.Flags != flags || c.A != byte(bits*7) {
			t.Errorf("PSW round trip: got A=%02X %v, want A=%02X %v", c.A, c.Flags, byte(bits*7), flags)
		}
	}
}

func TestFlagsFromByteIgnoresFixedBits(t *testing.T) {
	assert.Equal(t, Flags{}, FlagsFromByte(0x2A))
	assert.Equal(t, Flags{Z: true, S: true, P: true, CY: true, AC: true}, FlagsFromByte(0xFF))
	assert.Equal(t, byte(0xD7), FlagsFromByte(0xFF).Byte())
}

func TestXTHLAndSPHL(t *testing.T) {
	c := newTestCPU(t, 0xE3, 0xF9) // XTHL; SPHL
	c.Memory[0x3000] = 0x34
	c.Memory[0x3001] = 0x12
	c.SetHL(0xABCD)
	step(t, c, 1)
	assert.Equal(t, uint16(0x1234), c.HL())
	assert.Equal(t, byte(0xCD), c.Memory[0x3000])
	assert.Equal(t, byte(0xAB), c.Memory[0x3001])

	c.SetHL(0x2800)
	step(t, c, 1)
	assert.Equal(t, uint16(0x2800), c.SP)
}

func TestCallReturn(t *testing.T) {
	c := newTestCPU(t)
	c.PC = 0x0100
	c.Memory[0x0100] = 0xCD // CALL $0200
	c.Memory[0x0101] = 0x00
	c.Memory[0x0102] = 0x02
	c.Memory[0x0200] = 0x00 // NOP
	c.Memory[0x0201] = 0xC9 // RET

	step(t, c, 1)
	assert.Equal(t, uint16(0x0200), c.PC)
	assert.Equal(t, uint16(0x2FFE), c.SP)

	step(t, c, 2)
	assert.Equal(t, uint16(0x0103), c.PC)
	assert.Equal(t, uint16(0x3000), c.SP)
}

func TestConditionalBranches(t *testing.T) {
	tests := []struct {
		name  string
		op    byte
		flags Flags
		taken bool
	}{
		{"JNZ taken", 0xC2, Flags{}, true},
		{"JNZ not taken", 0xC2, Flags{Z: true}, false},
		{"JZ", 0xCA, Flags{Z: true}, true},
		{"JNC", 0xD2, Flags{CY: true}, false},
		{"JC", 0xDA, Flags{CY: true}, true},
		{"JPO", 0xE2, Flags{P: true}, false},
		{"JPE", 0xEA, Flags{P: true}, true},
		{"JP", 0xF2, Flags{}, true},
		{"JM", 0xFA, Flags{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCPU(t, tt.op, 0x00, 0x10)
			c.Flags = tt.flags
			step(t, c, 1)
			if tt.taken {
				assert.Equal(t, uint16(0x1000), c.PC)
			} else {
				assert.Equal(t, uint16(0x0003), c.PC)
			}
		})
	}
}

func TestConditionalCallReturn(t *testing.T) {
	c := newTestCPU(t, 0xCC, 0x00, 0x10, 0xC4, 0x00, 0x10) // CZ $1000; CNZ $1000
	c.Memory[0x1000] = 0xC8                                // RZ
	c.Memory[0x1001] = 0xC0                                // RNZ

	step(t, c, 1)
	assert.Equal(t, uint16(0x0003), c.PC)
	assert.Equal(t, uint16(0x3000), c.SP)

	step(t, c, 1)
	assert.Equal(t, uint16(0x1000), c.PC)
	step(t, c, 1)
	assert.Equal(t, uint16(0x1001), c.PC)
	step(t, c, 1)
	assert.Equal(t, uint16(0x0006), c.PC)
	assert.Equal(t, uint16(0x3000), c.SP)
}

func TestRestartAndPCHL(t *testing.T) {
	c := newTestCPU(t, 0xEF) // RST 5
	step(t, c, 1)
	assert.Equal(t, uint16(0x0028), c.PC)
	assert.Equal(t, uint16(0x0001), c.Read16(c.SP))

	c.Memory[0x0028] = 0xE9 // PCHL
	c.SetHL(0x1234)
	step(t, c, 1)
	assert.Equal(t, uint16(0x1234), c.PC)
}

func TestGuardedWrite(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ROMSize = 0x0800
	c := NewCPU(cfg, nil)
	assert.NoError(t, c.Load(0, []byte{0x32, 0x10, 0x00})) // STA $0010
	c.SP = 0x3000
	c.A = 0x55
	before := c.Memory[0x0010]
	step(t, c, 1)
	assert.Equal(t, before, c.Memory[0x0010])

	c.WriteByte(0x0800, 0x77)
	assert.Equal(t, byte(0x77), c.Memory[0x0800])
}

func TestMirrorAndAddressLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ROMSize = 0x2000
	cfg.AddressLimit = 0x6000
	cfg.Mirror = Mirror{Start: 0x4000, End: 0x5FFF, Offset: 0x2000}
	c := NewCPU(cfg, nil)
	c.SP = 0x2400

	c.WriteByte(0x4400, 0xAA)
	assert.Equal(t, byte(0xAA), c.Memory[0x2400])
	assert.Equal(t, byte(0xAA), c.ReadByte(0x4400))

	// MOV A,M with HL past the limit traps to address 0.
	assert.NoError(t, c.Load(0, []byte{0x7E}))
	c.SetHL(0x7000)
	step(t, c, 1)
	assert.Equal(t, uint16(0), c.HL())
	assert.Equal(t, byte(0x7E), c.A)
}

func TestOutOfBoundsAccess(t *testing.T) {
	c := newTestCPU(t)
	c.Config.AddressLimit = 0x10000
	assert.Equal(t, byte(0), c.ReadByte(0x8000))
	c.WriteByte(0x8000, 0x12)
	assert.Equal(t, DefaultMemorySize, len(c.Memory))
}

func TestStackGuard(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ROMSize = 0x2000
	c := NewCPU(cfg, nil)
	assert.NoError(t, c.Load(0, []byte{0x31, 0x00, 0x10})) // LXI SP,$1000
	step(t, c, 1)
	assert.Equal(t, uint16(0), c.SP)

	cfg.Guards.Stack = false
	c = NewCPU(cfg, nil)
	assert.NoError(t, c.Load(0, []byte{0x31, 0x00, 0x10}))
	step(t, c, 1)
	assert.Equal(t, uint16(0x1000), c.SP)
}

func TestProgramCounterGuard(t *testing.T) {
	c := newTestCPU(t, 0xC3, 0x00, 0x50) // JMP $5000
	step(t, c, 1)
	assert.Equal(t, uint16(0), c.PC)

	c = newTestCPU(t, 0xC3, 0x00, 0x50)
	c.Config.Guards.ProgramCounter = false
	c.Config.AddressLimit = 0x6000
	step(t, c, 1)
	assert.Equal(t, uint16(0x5000), c.PC)
}

func TestBranchTargetsPastAddressLimit(t *testing.T) {
	tests := []struct {
		name  string
		setup func(c *CPU)
	}{
		{"jmp", func(c *CPU) { _ = c.Load(0, []byte{0xC3, 0x00, 0x70}) }},
		{"jz taken", func(c *CPU) {
			_ = c.Load(0, []byte{0xCA, 0x00, 0x70})
			c.Flags.Z = true
		}},
		{"call", func(c *CPU) { _ = c.Load(0, []byte{0xCD, 0x00, 0x70}) }},
		{"ret", func(c *CPU) {
			_ = c.Load(0, []byte{0xC9})
			c.SP = 0x2FFE
			c.Memory[0x2FFE] = 0x00
			c.Memory[0x2FFF] = 0x70
		}},
		{"pchl", func(c *CPU) {
			_ = c.Load(0, []byte{0xE9})
			c.SetHL(0x7000)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.AddressLimit = 0x6000
			cfg.Guards.ProgramCounter = false
			c := NewCPU(cfg, nil)
			c.Output = io.Discard
			c.SP = 0x3000
			tt.setup(c)

			step(t, c, 1)
			assert.Equal(t, uint16(0), c.PC)
		})
	}
}

func TestInterruptDisabled(t *testing.T) {
	c := newTestCPU(t)
	c.PC = 0x1234
	c.GenerateInterrupt()
	assert.Equal(t, uint16(0x1234), c.PC)
	assert.Equal(t, uint16(0x3000), c.SP)
	assert.Equal(t, uint64(0), c.Cycles)
}

func TestInterruptEnabled(t *testing.T) {
	c := newTestCPU(t, 0xFB) // EI
	step(t, c, 1)
	assert.True(t, c.IE)

	c.Interrupt(2)
	assert.Equal(t, uint16(0x0010), c.PC)
	assert.Equal(t, uint16(0x2FFE), c.SP)
	assert.Equal(t, uint16(0x0001), c.Read16(c.SP))
	assert.Equal(t, uint64(4+InterruptCycles), c.Cycles)
	assert.False(t, c.IE)

	// A second request is ignored until EI runs again.
	c.Interrupt(1)
	assert.Equal(t, uint16(0x0010), c.PC)
}

func TestHalt(t *testing.T) {
	c := newTestCPU(t, 0x00, 0x76, 0x00) // NOP; HLT; NOP
	assert.NoError(t, c.Run())
	assert.True(t, c.Halted)
	assert.Equal(t, uint16(0x0002), c.PC)
	assert.Equal(t, uint64(11), c.Cycles)

	n, err := c.Step()
	assert.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, uint16(0x0002), c.PC)
}

func TestUnimplementedOpcode(t *testing.T) {
	var out bytes.Buffer
	c := newTestCPU(t, 0x00, 0xDD)
	c.Output = &out

	err := c.Run()
	var opErr *UnimplementedOpcodeError
	assert.True(t, errors.As(err, &opErr))
	assert.Equal(t, byte(0xDD), opErr.Opcode)
	assert.Equal(t, uint16(0x0001), opErr.PC)
	assert.Equal(t, uint16(0x0001), c.PC)
	assert.True(t, strings.Contains(out.String(), "unimplemented opcode 0xDD at 0x0001"))
	assert.True(t, strings.Contains(out.String(), "SP=3000"))
}

func TestInstructionTable(t *testing.T) {
	undocumented := map[byte]bool{
		0x08: true, 0x10: true, 0x18: true, 0x20: true, 0x28: true, 0x30: true, 0x38: true,
		0xCB: true, 0xD9: true, 0xDD: true, 0xED: true, 0xFD: true,
	}
	for i, in := range Instructions {
		op := byte(i)
		if in.Opcode != op {
			t.Errorf("entry 0x%02X has opcode 0x%02X", op, in.Opcode)
		}
		if in.Defined == undocumented[op] {
			t.Errorf("opcode 0x%02X: defined=%v", op, in.Defined)
		}
		if in.Defined && in.exec == nil {
			t.Errorf("opcode 0x%02X has no handler", op)
		}
	}
}

func TestCycleCosts(t *testing.T) {
	tests := []struct {
		opcode byte
		cycles int
	}{
		{0x00, 4},  // NOP
		{0x01, 10}, // LXI B
		{0x09, 10}, // DAD B
		{0x22, 16}, // SHLD
		{0x36, 10}, // MVI M
		{0x46, 7},  // MOV B,M
		{0x76, 7},  // HLT
		{0x80, 4},  // ADD B
		{0xC9, 10}, // RET
		{0xCD, 17}, // CALL
		{0xE3, 18}, // XTHL
		{0xEB, 4},  // XCHG
		{0xF5, 11}, // PUSH PSW
	}
	for _, tt := range tests {
		assert.Equal(t, tt.cycles, Instructions[tt.opcode].Cycles)
	}
}

func TestStepReturnsCycles(t *testing.T) {
	c := newTestCPU(t, 0x01, 0x00, 0x00, 0xCD, 0x00, 0x10) // LXI B; CALL $1000
	n, err := c.Step()
	assert.NoError(t, err)
	assert.Equal(t, 10, n)
	n, err = c.Step()
	assert.NoError(t, err)
	assert.Equal(t, 17, n)
	assert.Equal(t, uint64(27), c.Cycles)
}

type recordingPeripheral struct {
	in      map[byte]byte
	outPort byte
	outVal  byte
}

func (p *recordingPeripheral) In(port byte) byte { return p.in[port] }

func (p *recordingPeripheral) Out(port, value byte) {
	p.outPort, p.outVal = port, value
}

func TestIOBridge(t *testing.T) {
	p := &recordingPeripheral{in: map[byte]byte{1: 0x5A}}
	c := newTestCPU(t, 0xDB, 0x01, 0xD3, 0x04) // IN 1; OUT 4
	c.Peripheral = p

	step(t, c, 1)
	assert.Equal(t, byte(0x5A), c.A)
	step(t, c, 1)
	assert.Equal(t, byte(4), p.outPort)
	assert.Equal(t, byte(0x5A), p.outVal)
}

func TestIONilPeripheral(t *testing.T) {
	c := newTestCPU(t, 0xDB, 0x01, 0xD3, 0x04)
	c.A = 0x33
	step(t, c, 2)
	assert.Equal(t, byte(0), c.A)
}

func TestLoadTooLarge(t *testing.T) {
	c := NewCPU(DefaultConfig(), nil)
	err := c.Load(0x3FFF, []byte{1, 2})
	assert.True(t, errors.Is(err, ErrImageTooLarge))
}
