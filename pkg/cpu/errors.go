package cpu

import (
	"errors"
	"fmt"
)

var (
	ErrImageTooLarge   = errors.New("image does not fit in memory")
	ErrSnapshotMemory  = errors.New("snapshot memory size mismatch")
	ErrSnapshotMissing = errors.New("snapshot entry missing")
)

// UnimplementedOpcodeError reports an opcode with no handler. Emulation cannot
// continue past it.
type UnimplementedOpcodeError struct {
	Opcode byte
	PC     uint16
}

func (e *UnimplementedOpcodeError) Error() string {
	return fmt.Sprintf("unimplemented opcode 0x%02X at 0x%04X", e.Opcode, e.PC)
}
