package cpu

func (c *CPU) addressLimit() int {
	if c.Config.AddressLimit > 0 {
		return c.Config.AddressLimit
	}
	return len(c.Memory)
}

// resolvePair builds an address from a high/low register pair. An address
// past the emulated space zeroes both registers and resolves to 0; the games
// rely on that trap.
func (c *CPU) resolvePair(hi, lo *byte) uint16 {
	addr := uint16(*hi)<<8 | uint16(*lo)
	if int(addr) >= c.addressLimit() {
		*hi, *lo = 0, 0
		return 0
	}
	return addr
}

// resolve applies the pair rule to an address that does not live in registers.
func (c *CPU) resolve(addr uint16) uint16 {
	hi, lo := byte(addr>>8), byte(addr)
	return c.resolvePair(&hi, &lo)
}

func (c *CPU) translate(addr uint16) uint16 {
	if c.Config.Mirror.contains(addr) {
		return addr - c.Config.Mirror.Offset
	}
	return addr
}

// ReadByte reads memory through the mirror. Addresses outside the buffer read 0.
func (c *CPU) ReadByte(addr uint16) byte {
	addr = c.translate(addr)
	if int(addr) >= len(c.Memory) {
		return 0
	}
	return c.Memory[addr]
}

// WriteByte writes memory through the mirror. Writes below the ROM boundary
// or outside the buffer are dropped.
func (c *CPU) WriteByte(addr uint16, val byte) {
	addr = c.translate(addr)
	if addr < c.Config.ROMSize || int(addr) >= len(c.Memory) {
		return
	}
	c.Memory[addr] = val
}

// Read16 reads a little-endian word.
func (c *CPU) Read16(addr uint16) uint16 {
	return uint16(c.ReadByte(addr)) | uint16(c.ReadByte(addr+1))<<8
}

func (c *CPU) fetch8() byte {
	v := c.ReadByte(c.PC)
	c.PC++
	return v
}

func (c *CPU) fetch16() uint16 {
	lo := c.fetch8()
	hi := c.fetch8()
	return uint16(hi)<<8 | uint16(lo)
}

// reg reads register r in instruction encoding order B C D E H L M A.
func (c *CPU) reg(r byte) byte {
	switch r & 0x07 {
	case 0:
		return c.B
	case 1:
		return c.C
	case 2:
		return c.D
	case 3:
		return c.E
	case 4:
		return c.H
	case 5:
		return c.L
	case 6:
		return c.ReadByte(c.resolvePair(&c.H, &c.L))
	default:
		return c.A
	}
}

func (c *CPU) setReg(r byte, v byte) {
	switch r & 0x07 {
	case 0:
		c.B = v
	case 1:
		c.C = v
	case 2:
		c.D = v
	case 3:
		c.E = v
	case 4:
		c.H = v
	case 5:
		c.L = v
	case 6:
		c.WriteByte(c.resolvePair(&c.H, &c.L), v)
	default:
		c.A = v
	}
}

// pair reads register pair rp in encoding order BC DE HL SP.
func (c *CPU) pair(rp byte) uint16 {
	switch rp & 0x03 {
	case 0:
		return c.BC()
	case 1:
		return c.DE()
	case 2:
		return c.HL()
	default:
		return c.SP
	}
}

func (c *CPU) setPair(rp byte, v uint16) {
	switch rp & 0x03 {
	case 0:
		c.SetBC(v)
	case 1:
		c.SetDE(v)
	case 2:
		c.SetHL(v)
	default:
		c.SP = v
	}
}
