package asm

import (
	"testing"
)

func TestAssembleSourceMap(t *testing.T) {
	code := `
; Line 2: Comment
MVI A, 10       ; Line 3: 2 bytes
                ; Line 4: Empty
LABEL:          ; Line 5: Label
ADD B           ; Line 6: 1 byte at 0x0002
ORG 0x0010      ; Line 7: padding to 0x0010
HLT             ; Line 8: at 0x0010
DB "AB"         ; Line 9: at 0x0011
LXI H, LABEL    ; Line 10: at 0x0013
`
	_, sourceMap, err := Assemble(code)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}

	tests := []struct {
		addr uint16
		line int
	}{
		{0x0000, 3},
		{0x0002, 6},
		{0x0010, 8},
		{0x0011, 9},
		{0x0013, 10},
	}

	for _, tc := range tests {
		if got := sourceMap[tc.addr]; got != tc.line {
			t.Errorf("sourceMap[0x%04X] = %d; want %d", tc.addr, got, tc.line)
		}
	}
	if len(sourceMap) != len(tests) {
		t.Errorf("sourceMap has %d entries, want %d", len(sourceMap), len(tests))
	}
}
