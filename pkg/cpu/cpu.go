package cpu

import (
	"fmt"
	"io"
	"os"

	"github.com/retroenv/retrogolib/log"
)

// DefaultMemorySize is the 16 KiB address decode of the arcade boards.
const DefaultMemorySize = 0x4000

// InterruptCycles is the cost of an externally generated restart.
const InterruptCycles = 11

// Mirror remaps addresses in [Start, End] backward by Offset before they reach
// the memory buffer. A zero Offset disables the mirror.
type Mirror struct {
	Start  uint16
	End    uint16
	Offset uint16
}

func (m Mirror) contains(addr uint16) bool {
	return m.Offset != 0 && addr >= m.Start && addr <= m.End
}

// GuardPolicy selects the post-step resets. Both are heuristics for the loaded
// program, not general fault handling.
type GuardPolicy struct {
	// Stack resets SP to 0 when it drops below the ROM boundary or leaves the buffer.
	Stack bool
	// ProgramCounter resets PC to 0 when it leaves the buffer.
	ProgramCounter bool
}

// Config describes the address space a CPU is built around.
type Config struct {
	MemorySize int
	// AddressLimit is the first address a register pair may not form. Zero means
	// the memory size.
	AddressLimit int
	// ROMSize is the boundary below which writes are dropped.
	ROMSize uint16
	Mirror  Mirror
	Guards  GuardPolicy
}

// DefaultConfig returns a 16 KiB machine with both guards enabled and no ROM.
func DefaultConfig() Config {
	return Config{
		MemorySize: DefaultMemorySize,
		Guards:     GuardPolicy{Stack: true, ProgramCounter: true},
	}
}

type CPU struct {
	A byte
	B byte
	C byte
	D byte
	E byte
	H byte
	L byte

	SP uint16
	PC uint16

	Flags Flags

	// IE is the interrupt enable latch, set by EI and cleared by DI or an
	// accepted interrupt.
	IE bool
	// Vector is the restart number (0-7) used by GenerateInterrupt.
	Vector byte

	Halted bool
	Cycles uint64

	Memory []byte
	Config Config

	Peripheral Peripheral

	// Output receives diagnostic dumps. If nil, os.Stdout is used.
	Output io.Writer
	// Logger receives per-instruction trace lines when Trace is set.
	Logger *log.Logger
	Trace  bool
}

// NewCPU creates a CPU with a zero-filled memory buffer sized from cfg.
func NewCPU(cfg Config, p Peripheral) *CPU {
	if cfg.MemorySize <= 0 {
		cfg.MemorySize = DefaultMemorySize
	}
	if cfg.MemorySize > 0x10000 {
		cfg.MemorySize = 0x10000
	}
	c := &CPU{
		Memory:     make([]byte, cfg.MemorySize),
		Config:     cfg,
		Peripheral: p,
	}
	c.Reset()
	return c
}

// Reset clears registers, flags and execution state. Memory is left intact.
func (c *CPU) Reset() {
	c.A, c.B, c.C, c.D, c.E, c.H, c.L = 0, 0, 0, 0, 0, 0, 0
	c.SP = 0
	c.PC = 0
	c.Flags = Flags{}
	c.IE = false
	c.Vector = 1
	c.Halted = false
	c.Cycles = 0
}

// Load copies a program image into memory at offset.
func (c *CPU) Load(offset int, image []byte) error {
	if offset < 0 || offset+len(image) > len(c.Memory) {
		return fmt.Errorf("%w: %d bytes at 0x%04X, memory is %d bytes",
			ErrImageTooLarge, len(image), offset, len(c.Memory))
	}
	copy(c.Memory[offset:], image)
	return nil
}

func (c *CPU) outputSink() io.Writer {
	if c.Output != nil {
		return c.Output
	}
	return os.Stdout
}

// BC returns the B/C register pair.
func (c *CPU) BC() uint16 { return uint16(c.B)<<8 | uint16(c.C) }

// DE returns the D/E register pair.
func (c *CPU) DE() uint16 { return uint16(c.D)<<8 | uint16(c.E) }

// HL returns the H/L register pair.
func (c *CPU) HL() uint16 { return uint16(c.H)<<8 | uint16(c.L) }

// SetBC loads the B/C register pair.
func (c *CPU) SetBC(v uint16) { c.B, c.C = byte(v>>8), byte(v) }

// SetDE loads the D/E register pair.
func (c *CPU) SetDE(v uint16) { c.D, c.E = byte(v>>8), byte(v) }

// SetHL loads the H/L register pair.
func (c *CPU) SetHL(v uint16) { c.H, c.L = byte(v>>8), byte(v) }

// Step executes exactly one instruction and returns the cycles it consumed.
// A halted CPU does nothing. An undefined opcode leaves PC on the offending
// byte, writes a state dump to Output and returns *UnimplementedOpcodeError.
func (c *CPU) Step() (int, error) {
	if c.Halted {
		return 0, nil
	}

	pc := c.PC
	opcode := c.ReadByte(pc)
	in := &Instructions[opcode]
	if !in.Defined {
		err := &UnimplementedOpcodeError{Opcode: opcode, PC: pc}
		w := c.outputSink()
		fmt.Fprintf(w, "%v\n", err)
		c.DumpState(w)
		return 0, err
	}

	if c.Trace && c.Logger != nil {
		text, _ := Disassemble(c.Memory, pc)
		c.Logger.Debug("step",
			log.Hex("pc", pc),
			log.String("instruction", text))
	}

	c.Cycles += uint64(in.Cycles)
	c.PC++
	in.exec(c)
	c.applyGuards()

	return in.Cycles, nil
}

func (c *CPU) applyGuards() {
	if c.Config.Guards.Stack {
		if c.SP < c.Config.ROMSize || int(c.SP) >= len(c.Memory) {
			c.SP = 0
		}
	}
	if c.Config.Guards.ProgramCounter && int(c.PC) >= len(c.Memory) {
		c.PC = 0
	}
}

// Run steps until the CPU halts or an instruction fails.
func (c *CPU) Run() error {
	for !c.Halted {
		if _, err := c.Step(); err != nil {
			return err
		}
	}
	return nil
}

// GenerateInterrupt performs a restart to 8*Vector when interrupts are
// enabled. Accepting the interrupt clears IE until the next EI.
func (c *CPU) GenerateInterrupt() {
	if !c.IE {
		return
	}
	c.push(c.PC)
	c.PC = uint16(c.Vector) * 8
	c.Cycles += InterruptCycles
	c.IE = false
}

// Interrupt selects vector and generates an interrupt.
func (c *CPU) Interrupt(vector byte) {
	c.Vector = vector & 0x07
	c.GenerateInterrupt()
}

func (c *CPU) in(port byte) byte {
	if c.Peripheral == nil {
		return 0
	}
	return c.Peripheral.In(port)
}

func (c *CPU) out(port, value byte) {
	if c.Peripheral != nil {
		c.Peripheral.Out(port, value)
	}
}
