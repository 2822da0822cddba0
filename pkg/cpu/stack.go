package cpu

// push stores the high byte at SP+1 and the low byte at SP after moving SP
// down by two.
func (c *CPU) push(v uint16) {
	c.SP -= 2
	c.WriteByte(c.SP+1, byte(v>>8))
	c.WriteByte(c.SP, byte(v))
}

func (c *CPU) pop() uint16 {
	lo := c.ReadByte(c.SP)
	hi := c.ReadByte(c.SP + 1)
	c.SP += 2
	return uint16(hi)<<8 | uint16(lo)
}

func (c *CPU) pushPSW() {
	c.push(uint16(c.A)<<8 | uint16(c.Flags.Byte()))
}

func (c *CPU) popPSW() {
	v := c.pop()
	c.A = byte(v >> 8)
	c.Flags = FlagsFromByte(byte(v))
}

// xthl swaps HL with the word on top of the stack.
func (c *CPU) xthl() {
	lo := c.ReadByte(c.SP)
	hi := c.ReadByte(c.SP + 1)
	c.WriteByte(c.SP, c.L)
	c.WriteByte(c.SP+1, c.H)
	c.H, c.L = hi, lo
}
