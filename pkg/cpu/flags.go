package cpu

import "math/bits"

// PSW bit positions: S Z 0 AC 0 P 1 CY.
const (
	FlagCY  byte = 0x01
	flagOne byte = 0x02
	FlagP   byte = 0x04
	FlagAC  byte = 0x10
	FlagZ   byte = 0x40
	FlagS   byte = 0x80
)

// Flags holds the condition bits. P is set for even parity.
type Flags struct {
	Z  bool
	S  bool
	P  bool
	CY bool
	AC bool
}

// Byte packs the flags in PSW order. Bit 1 is always set, bits 3 and 5 are
// always clear.
func (f Flags) Byte() byte {
	b := flagOne
	if f.S {
		b |= FlagS
	}
	if f.Z {
		b |= FlagZ
	}
	if f.AC {
		b |= FlagAC
	}
	if f.P {
		b |= FlagP
	}
	if f.CY {
		b |= FlagCY
	}
	return b
}

// FlagsFromByte unpacks a PSW byte, ignoring the fixed bits.
func FlagsFromByte(b byte) Flags {
	return Flags{
		S:  b&FlagS != 0,
		Z:  b&FlagZ != 0,
		AC: b&FlagAC != 0,
		P:  b&FlagP != 0,
		CY: b&FlagCY != 0,
	}
}

func (f Flags) String() string {
	out := []byte("szapc")
	if f.S {
		out[0] = 'S'
	}
	if f.Z {
		out[1] = 'Z'
	}
	if f.AC {
		out[2] = 'A'
	}
	if f.P {
		out[3] = 'P'
	}
	if f.CY {
		out[4] = 'C'
	}
	return string(out)
}

// setZSPC derives Z, S, P and CY from a result wider than 8 bits.
func (f *Flags) setZSPC(result uint16) {
	v := byte(result)
	f.Z = v == 0
	f.S = v&0x80 != 0
	f.P = parity(v)
	f.CY = result > 0xFF
}

func parity(v byte) bool {
	return bits.OnesCount8(v)%2 == 0
}

// auxCarry reports a carry out of bit 3.
func auxCarry(a, b byte, result uint16) bool {
	return (uint16(a)^uint16(b)^result)&0x10 != 0
}
