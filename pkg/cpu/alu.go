package cpu

func bit(b bool) uint16 {
	if b {
		return 1
	}
	return 0
}

func (c *CPU) add(v byte, carry bool) {
	result := uint16(c.A) + uint16(v) + bit(carry)
	c.Flags.setZSPC(result)
	c.Flags.AC = auxCarry(c.A, v, result)
	c.A = byte(result)
}

// subtract computes A - v - borrow by adding the complement of v. The carry
// out of that addition is the inverse of a borrow, so CY is flipped once.
func (c *CPU) subtract(v byte, borrow bool) byte {
	operand := ^v
	result := uint16(c.A) + uint16(operand) + bit(!borrow)
	c.Flags.setZSPC(result)
	c.Flags.AC = auxCarry(c.A, operand, result)
	c.Flags.CY = !c.Flags.CY
	return byte(result)
}

func (c *CPU) sub(v byte, borrow bool) {
	c.A = c.subtract(v, borrow)
}

func (c *CPU) cmp(v byte) {
	c.subtract(v, false)
}

// inr and dcr never touch CY.
func (c *CPU) inr(v byte) byte {
	carry := c.Flags.CY
	result := uint16(v) + 1
	c.Flags.setZSPC(result)
	c.Flags.AC = auxCarry(v, 1, result)
	c.Flags.CY = carry
	return byte(result)
}

func (c *CPU) dcr(v byte) byte {
	carry := c.Flags.CY
	result := uint16(v) + 0xFF
	c.Flags.setZSPC(result)
	c.Flags.AC = auxCarry(v, 0xFF, result)
	c.Flags.CY = carry
	return byte(result)
}

// ana sets AC from bit 3 of the OR of both operands, as the 8080 does.
func (c *CPU) ana(v byte) {
	c.Flags.AC = (c.A|v)&0x08 != 0
	c.A &= v
	c.Flags.setZSPC(uint16(c.A))
	c.Flags.CY = false
}

func (c *CPU) xra(v byte) {
	c.A ^= v
	c.Flags.setZSPC(uint16(c.A))
	c.Flags.CY = false
	c.Flags.AC = false
}

func (c *CPU) ora(v byte) {
	c.A |= v
	c.Flags.setZSPC(uint16(c.A))
	c.Flags.CY = false
	c.Flags.AC = false
}

func (c *CPU) daa() {
	var correction byte
	carry := c.Flags.CY

	if c.A&0x0F > 9 || c.Flags.AC {
		correction |= 0x06
	}
	if (uint16(c.A)+uint16(correction))>>4 > 9 || carry {
		correction |= 0x60
		carry = true
	}

	c.add(correction, false)
	c.Flags.CY = carry
}

func (c *CPU) rlc() {
	out := c.A >> 7
	c.A = c.A<<1 | out
	c.Flags.CY = out == 1
}

func (c *CPU) rrc() {
	out := c.A & 0x01
	c.A = c.A>>1 | out<<7
	c.Flags.CY = out == 1
}

func (c *CPU) ral() {
	prev := byte(bit(c.Flags.CY))
	out := c.A >> 7
	c.A = c.A<<1 | prev
	c.Flags.CY = out == 1
}

func (c *CPU) rar() {
	prev := byte(bit(c.Flags.CY))
	out := c.A & 0x01
	c.A = c.A>>1 | prev<<7
	c.Flags.CY = out == 1
}

func (c *CPU) dad(v uint16) {
	sum := uint32(c.HL()) + uint32(v)
	c.Flags.CY = sum > 0xFFFF
	c.SetHL(uint16(sum))
}
