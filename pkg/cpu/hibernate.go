package cpu

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

const (
	stateEntry      = "cpu_state.json"
	memoryEntry     = "memory.bin"
	peripheralEntry = "peripheral.bin"
)

// snapshotState is the JSON-serializable snapshot of processor state.
type snapshotState struct {
	A      byte   `json:"a"`
	B      byte   `json:"b"`
	C      byte   `json:"c"`
	D      byte   `json:"d"`
	E      byte   `json:"e"`
	H      byte   `json:"h"`
	L      byte   `json:"l"`
	PC     uint16 `json:"pc"`
	SP     uint16 `json:"sp"`
	Flags  Flags  `json:"flags"`
	IE     bool   `json:"ie"`
	Vector byte   `json:"vector"`
	Halted bool   `json:"halted"`
	Cycles uint64 `json:"cycles"`
}

// HibernateToBytes serialises registers, memory and, when the peripheral
// keeps state, the peripheral into an in-memory ZIP archive.
func (c *CPU) HibernateToBytes() ([]byte, error) {
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)

	state := snapshotState{
		A: c.A, B: c.B, C: c.C, D: c.D, E: c.E, H: c.H, L: c.L,
		PC:     c.PC,
		SP:     c.SP,
		Flags:  c.Flags,
		IE:     c.IE,
		Vector: c.Vector,
		Halted: c.Halted,
		Cycles: c.Cycles,
	}

	jsonData, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal cpu_state: %w", err)
	}
	if err := writeZipEntry(zw, stateEntry, jsonData); err != nil {
		return nil, err
	}

	if err := writeZipEntry(zw, memoryEntry, c.Memory); err != nil {
		return nil, err
	}

	if sp, ok := c.Peripheral.(StatefulPeripheral); ok {
		if err := writeZipEntry(zw, peripheralEntry, sp.SaveState()); err != nil {
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close zip: %w", err)
	}
	return buf.Bytes(), nil
}

// RestoreFromBytes applies an archive produced by HibernateToBytes. The
// memory image must match the size of the CPU's buffer.
func (c *CPU) RestoreFromBytes(data []byte) error {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}

	fileMap := make(map[string]*zip.File, len(r.File))
	for _, f := range r.File {
		fileMap[f.Name] = f
	}

	jsonData, err := readZipEntry(fileMap, stateEntry)
	if err != nil {
		return err
	}
	var state snapshotState
	if err := json.Unmarshal(jsonData, &state); err != nil {
		return fmt.Errorf("unmarshal cpu_state: %w", err)
	}

	memData, err := readZipEntry(fileMap, memoryEntry)
	if err != nil {
		return err
	}
	if len(memData) != len(c.Memory) {
		return fmt.Errorf("%w: archive has %d bytes, cpu has %d",
			ErrSnapshotMemory, len(memData), len(c.Memory))
	}

	if sp, ok := c.Peripheral.(StatefulPeripheral); ok {
		if raw, err := readZipEntry(fileMap, peripheralEntry); err == nil {
			if err := sp.LoadState(raw); err != nil {
				return fmt.Errorf("load peripheral state: %w", err)
			}
		}
	}

	copy(c.Memory, memData)
	c.A, c.B, c.C, c.D, c.E, c.H, c.L = state.A, state.B, state.C, state.D, state.E, state.H, state.L
	c.PC = state.PC
	c.SP = state.SP
	c.Flags = state.Flags
	c.IE = state.IE
	c.Vector = state.Vector & 0x07
	c.Halted = state.Halted
	c.Cycles = state.Cycles
	return nil
}

// HibernateToFile writes the snapshot archive to path.
func (c *CPU) HibernateToFile(path string) error {
	data, err := c.HibernateToBytes()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// RestoreFromFile reads a snapshot archive from path and restores it.
func (c *CPU) RestoreFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return c.RestoreFromBytes(data)
}

func writeZipEntry(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("create zip entry %q: %w", name, err)
	}
	_, err = w.Write(data)
	return err
}

func readZipEntry(fileMap map[string]*zip.File, name string) ([]byte, error) {
	f, ok := fileMap[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSnapshotMissing, name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open zip entry %q: %w", name, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
