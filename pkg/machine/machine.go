// Package machine wires a processor, a program's images and its I/O board
// together and runs them at the program's interrupt cadence.
package machine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/retroenv/retrogolib/log"

	"go8080/pkg/cpu"
	"go8080/pkg/peripherals"
)

// ErrCycleBudget is returned by RunHeadless when the cycle budget runs out
// before the program halts.
var ErrCycleBudget = errors.New("cycle budget exhausted")

// Host is the I/O board of a target program. It sees port traffic, every
// video interrupt and each completed frame.
type Host interface {
	cpu.Peripheral
	Interrupt(vector byte)
	Render(video []byte)
}

// attacher is implemented by hosts that read the CPU registers directly.
type attacher interface {
	Attach(c *cpu.CPU)
}

type Machine struct {
	CPU     *cpu.CPU
	Profile Profile

	host   Host
	logger *log.Logger

	halfFrame     uint64
	nextInterrupt uint64
	vectorIndex   int
	frames        uint64

	highScore      uint16
	highScoreFrame uint64
	highScoreSet   bool
}

// New builds a machine with the segments loaded and the profile's patches
// applied. logger may be nil.
func New(p Profile, segments []Segment, host Host, logger *log.Logger) (*Machine, error) {
	c := cpu.NewCPU(p.CPU, host)
	c.Logger = logger

	for _, seg := range segments {
		if err := c.Load(int(seg.Offset), seg.Data); err != nil {
			return nil, fmt.Errorf("loading %s: %w", seg.Name, err)
		}
	}
	for addr, value := range p.Patches {
		if int(addr) >= len(c.Memory) {
			return nil, fmt.Errorf("patch at 0x%04X outside memory", addr)
		}
		c.Memory[addr] = value
	}
	if p.BDOS {
		peripherals.InstallBDOS(c)
	}
	if a, ok := host.(attacher); ok {
		a.Attach(c)
	}
	c.PC = p.Entry

	m := &Machine{
		CPU:     c,
		Profile: p,
		host:    host,
		logger:  logger,
	}
	m.resetCadence()
	return m, nil
}

// resetCadence derives the interrupt schedule from the cycle counter.
func (m *Machine) resetCadence() {
	m.halfFrame = m.Profile.HalfFrameCycles()
	if m.halfFrame == 0 {
		return
	}
	halves := m.CPU.Cycles / m.halfFrame
	m.nextInterrupt = (halves + 1) * m.halfFrame
	m.vectorIndex = int(halves % 2)
}

// Frames reports how many frames have been rendered.
func (m *Machine) Frames() uint64 { return m.frames }

// Video returns the video window of memory.
func (m *Machine) Video() []byte {
	start := int(m.Profile.VideoStart)
	end := start + m.Profile.VideoSize
	if start > len(m.CPU.Memory) {
		start = len(m.CPU.Memory)
	}
	if end > len(m.CPU.Memory) {
		end = len(m.CPU.Memory)
	}
	return m.CPU.Memory[start:end]
}

// Step executes one instruction and raises any interrupt that has come due.
func (m *Machine) Step() (int, error) {
	cycles, err := m.CPU.Step()
	if err != nil {
		return cycles, err
	}
	m.checkInterrupt()
	return cycles, nil
}

// checkInterrupt raises the next vector once the cycle counter crosses the
// half-frame threshold. The second vector of each pair ends a frame.
func (m *Machine) checkInterrupt() {
	if !m.Profile.Interrupts || m.halfFrame == 0 || m.CPU.Cycles < m.nextInterrupt {
		return
	}
	m.nextInterrupt += m.halfFrame

	vector := m.Profile.Vectors[m.vectorIndex]
	m.CPU.Interrupt(vector)
	m.host.Interrupt(vector)

	if m.vectorIndex == 1 {
		m.frames++
		m.host.Render(m.Video())
		m.applyHighScore()
	}
	m.vectorIndex ^= 1
}

// RunFrame runs until the next frame is rendered. Profiles without
// interrupts run one frame's worth of cycles.
func (m *Machine) RunFrame() error {
	start := m.frames
	budget := m.CPU.Cycles + 2*m.halfFrame
	for !m.CPU.Halted {
		if _, err := m.Step(); err != nil {
			return err
		}
		if m.frames != start {
			return nil
		}
		if !m.Profile.Interrupts && m.CPU.Cycles >= budget {
			return nil
		}
	}
	return nil
}

// Run executes frames paced to the profile's frame rate until the program
// halts, an instruction fails or ctx is cancelled.
func (m *Machine) Run(ctx context.Context) error {
	rate := m.Profile.FrameRate
	if rate <= 0 {
		rate = 60
	}
	ticker := time.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()

	for {
		if err := m.RunFrame(); err != nil {
			m.logError(err)
			return err
		}
		if m.CPU.Halted {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunHeadless executes without pacing until the program halts. A zero
// maxCycles means no limit.
func (m *Machine) RunHeadless(ctx context.Context, maxCycles uint64) error {
	for i := 0; !m.CPU.Halted; i++ {
		if i&0x3FF == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if maxCycles > 0 && m.CPU.Cycles >= maxCycles {
			return fmt.Errorf("%w after %d cycles", ErrCycleBudget, m.CPU.Cycles)
		}
		if _, err := m.Step(); err != nil {
			m.logError(err)
			return err
		}
	}
	return nil
}

func (m *Machine) logError(err error) {
	if m.logger == nil {
		return
	}
	var opErr *cpu.UnimplementedOpcodeError
	if errors.As(err, &opErr) {
		m.logger.Error("emulation stopped",
			log.Hex("opcode", opErr.Opcode),
			log.Hex("pc", opErr.PC))
		return
	}
	m.logger.Error("emulation stopped", log.Err(err))
}

// Save snapshots the processor, memory and board state.
func (m *Machine) Save() ([]byte, error) {
	return m.CPU.HibernateToBytes()
}

// Restore loads a snapshot taken by Save and realigns the interrupt
// schedule with the restored cycle counter.
func (m *Machine) Restore(data []byte) error {
	if err := m.CPU.RestoreFromBytes(data); err != nil {
		return err
	}
	m.resetCadence()
	return nil
}

// highScoreAddr returns the high score location when both of its bytes lie
// inside memory.
func (m *Machine) highScoreAddr() (int, bool) {
	addr := int(m.Profile.HighScoreAddr)
	if addr == 0 || addr+1 >= len(m.CPU.Memory) {
		return 0, false
	}
	return addr, true
}

// HighScore reads the BCD high score from RAM.
func (m *Machine) HighScore() (uint16, bool) {
	addr, ok := m.highScoreAddr()
	if !ok {
		return 0, false
	}
	return uint16(m.CPU.Memory[addr]) | uint16(m.CPU.Memory[addr+1])<<8, true
}

// SetHighScore writes the BCD high score into RAM.
func (m *Machine) SetHighScore(score uint16) {
	addr, ok := m.highScoreAddr()
	if !ok {
		return
	}
	m.CPU.Memory[addr] = byte(score)
	m.CPU.Memory[addr+1] = byte(score >> 8)
}

// QueueHighScore sets the high score once the program has had a second to
// initialise its RAM.
func (m *Machine) QueueHighScore(score uint16) {
	rate := m.Profile.FrameRate
	if rate <= 0 {
		rate = 60
	}
	m.highScore = score
	m.highScoreFrame = m.frames + uint64(rate)
	m.highScoreSet = true
}

func (m *Machine) applyHighScore() {
	if !m.highScoreSet || m.frames < m.highScoreFrame {
		return
	}
	m.highScoreSet = false
	if current, ok := m.HighScore(); ok && current < m.highScore {
		m.SetHighScore(m.highScore)
	}
}
