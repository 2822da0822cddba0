package cpu

import "strconv"

// Operand describes the immediate data following an opcode.
type Operand int

const (
	OperandNone Operand = iota
	OperandByte
	OperandWord
)

// Instruction is one entry of the opcode table.
type Instruction struct {
	Opcode byte
	// Name is the mnemonic, Args the fixed register or vector operands
	// ("B,C", "SP", "PSW", "3"). Immediate data is described by Operand.
	Name    string
	Args    string
	Operand Operand
	Cycles  int
	Defined bool

	exec func(c *CPU)
}

// Length returns the encoded size in bytes.
func (in Instruction) Length() int {
	switch in.Operand {
	case OperandByte:
		return 2
	case OperandWord:
		return 3
	default:
		return 1
	}
}

// Instructions is indexed by opcode. Entries with Defined unset are the
// undocumented opcodes.
var Instructions [256]Instruction

var (
	RegisterNames  = [8]string{"B", "C", "D", "E", "H", "L", "M", "A"}
	PairNames      = [4]string{"B", "D", "H", "SP"}
	ConditionNames = [8]string{"NZ", "Z", "NC", "C", "PO", "PE", "P", "M"}
)

var aluNames = [8]string{"ADD", "ADC", "SUB", "SBB", "ANA", "XRA", "ORA", "CMP"}
var aluImmediateNames = [8]string{"ADI", "ACI", "SUI", "SBI", "ANI", "XRI", "ORI", "CPI"}

// cycleTable holds the fixed cost of each opcode. Conditional returns and
// calls are charged their not-taken cost.
var cycleTable = [256]int{
	4, 10, 7, 5, 5, 5, 7, 4, 4, 10, 7, 5, 5, 5, 7, 4,
	4, 10, 7, 5, 5, 5, 7, 4, 4, 10, 7, 5, 5, 5, 7, 4,
	4, 10, 16, 5, 5, 5, 7, 4, 4, 10, 16, 5, 5, 5, 7, 4,
	4, 10, 13, 5, 10, 10, 10, 4, 4, 10, 13, 5, 5, 5, 7, 4,
	5, 5, 5, 5, 5, 5, 7, 5, 5, 5, 5, 5, 5, 5, 7, 5,
	5, 5, 5, 5, 5, 5, 7, 5, 5, 5, 5, 5, 5, 5, 7, 5,
	5, 5, 5, 5, 5, 5, 7, 5, 5, 5, 5, 5, 5, 5, 7, 5,
	7, 7, 7, 7, 7, 7, 7, 7, 5, 5, 5, 5, 5, 5, 7, 5,
	4, 4, 4, 4, 4, 4, 7, 4, 4, 4, 4, 4, 4, 4, 7, 4,
	4, 4, 4, 4, 4, 4, 7, 4, 4, 4, 4, 4, 4, 4, 7, 4,
	4, 4, 4, 4, 4, 4, 7, 4, 4, 4, 4, 4, 4, 4, 7, 4,
	4, 4, 4, 4, 4, 4, 7, 4, 4, 4, 4, 4, 4, 4, 7, 4,
	5, 10, 10, 10, 11, 11, 7, 11, 5, 10, 10, 10, 11, 17, 7, 11,
	5, 10, 10, 10, 11, 11, 7, 11, 5, 10, 10, 10, 11, 11, 7, 11,
	5, 10, 10, 18, 11, 11, 7, 11, 5, 5, 10, 4, 11, 11, 7, 11,
	5, 10, 10, 4, 11, 11, 7, 11, 5, 5, 10, 4, 11, 11, 7, 11,
}

func define(op byte, name, args string, operand Operand, exec func(c *CPU)) {
	Instructions[op] = Instruction{
		Opcode:  op,
		Name:    name,
		Args:    args,
		Operand: operand,
		Cycles:  cycleTable[op],
		Defined: true,
		exec:    exec,
	}
}

// condition evaluates condition code cc in encoding order NZ Z NC C PO PE P M.
func (c *CPU) condition(cc byte) bool {
	switch cc & 0x07 {
	case 0:
		return !c.Flags.Z
	case 1:
		return c.Flags.Z
	case 2:
		return !c.Flags.CY
	case 3:
		return c.Flags.CY
	case 4:
		return !c.Flags.P
	case 5:
		return c.Flags.P
	case 6:
		return !c.Flags.S
	default:
		return c.Flags.S
	}
}

func (c *CPU) alu(op, v byte) {
	switch op & 0x07 {
	case 0:
		c.add(v, false)
	case 1:
		c.add(v, c.Flags.CY)
	case 2:
		c.sub(v, false)
	case 3:
		c.sub(v, c.Flags.CY)
	case 4:
		c.ana(v)
	case 5:
		c.xra(v)
	case 6:
		c.ora(v)
	default:
		c.cmp(v)
	}
}

func init() {
	for i := range Instructions {
		Instructions[i] = Instruction{Opcode: byte(i), Cycles: cycleTable[i]}
	}

	defineTransfers()
	defineArithmetic()
	defineLogical()
	defineStack()
	defineBranches()
	defineSpecial()
}

func defineTransfers() {
	for d := byte(0); d < 8; d++ {
		for s := byte(0); s < 8; s++ {
			if d == 6 && s == 6 {
				continue // HLT
			}
			dst, src := d, s
			define(0x40|dst<<3|src, "MOV", RegisterNames[dst]+","+RegisterNames[src], OperandNone,
				func(c *CPU) { c.setReg(dst, c.reg(src)) })
		}
		r := d
		define(0x06|r<<3, "MVI", RegisterNames[r], OperandByte,
			func(c *CPU) { c.setReg(r, c.fetch8()) })
	}

	for rp := byte(0); rp < 4; rp++ {
		p := rp
		define(0x01|p<<4, "LXI", PairNames[p], OperandWord,
			func(c *CPU) { c.setPair(p, c.fetch16()) })
	}

	define(0x02, "STAX", "B", OperandNone, func(c *CPU) { c.WriteByte(c.resolvePair(&c.B, &c.C), c.A) })
	define(0x12, "STAX", "D", OperandNone, func(c *CPU) { c.WriteByte(c.resolvePair(&c.D, &c.E), c.A) })
	define(0x0A, "LDAX", "B", OperandNone, func(c *CPU) { c.A = c.ReadByte(c.resolvePair(&c.B, &c.C)) })
	define(0x1A, "LDAX", "D", OperandNone, func(c *CPU) { c.A = c.ReadByte(c.resolvePair(&c.D, &c.E)) })

	define(0x32, "STA", "", OperandWord, func(c *CPU) { c.WriteByte(c.resolve(c.fetch16()), c.A) })
	define(0x3A, "LDA", "", OperandWord, func(c *CPU) { c.A = c.ReadByte(c.resolve(c.fetch16())) })
	define(0x22, "SHLD", "", OperandWord, func(c *CPU) {
		addr := c.resolve(c.fetch16())
		c.WriteByte(addr, c.L)
		c.WriteByte(addr+1, c.H)
	})
	define(0x2A, "LHLD", "", OperandWord, func(c *CPU) {
		addr := c.resolve(c.fetch16())
		c.L = c.ReadByte(addr)
		c.H = c.ReadByte(addr + 1)
	})

	define(0xEB, "XCHG", "", OperandNone, func(c *CPU) {
		c.H, c.D = c.D, c.H
		c.L, c.E = c.E, c.L
	})

	define(0xDB, "IN", "", OperandByte, func(c *CPU) { c.A = c.in(c.fetch8()) })
	define(0xD3, "OUT", "", OperandByte, func(c *CPU) { c.out(c.fetch8(), c.A) })
}

func defineArithmetic() {
	for r := byte(0); r < 8; r++ {
		reg := r
		define(0x04|reg<<3, "INR", RegisterNames[reg], OperandNone, func(c *CPU) {
			if reg == 6 {
				addr := c.resolvePair(&c.H, &c.L)
				c.WriteByte(addr, c.inr(c.ReadByte(addr)))
				return
			}
			c.setReg(reg, c.inr(c.reg(reg)))
		})
		define(0x05|reg<<3, "DCR", RegisterNames[reg], OperandNone, func(c *CPU) {
			if reg == 6 {
				addr := c.resolvePair(&c.H, &c.L)
				c.WriteByte(addr, c.dcr(c.ReadByte(addr)))
				return
			}
			c.setReg(reg, c.dcr(c.reg(reg)))
		})
	}

	for rp := byte(0); rp < 4; rp++ {
		p := rp
		define(0x03|p<<4, "INX", PairNames[p], OperandNone, func(c *CPU) { c.setPair(p, c.pair(p)+1) })
		define(0x0B|p<<4, "DCX", PairNames[p], OperandNone, func(c *CPU) { c.setPair(p, c.pair(p)-1) })
		define(0x09|p<<4, "DAD", PairNames[p], OperandNone, func(c *CPU) { c.dad(c.pair(p)) })
	}

	define(0x27, "DAA", "", OperandNone, (*CPU).daa)
}

func defineLogical() {
	for op := byte(0); op < 8; op++ {
		for r := byte(0); r < 8; r++ {
			o, reg := op, r
			define(0x80|o<<3|reg, aluNames[o], RegisterNames[reg], OperandNone,
				func(c *CPU) { c.alu(o, c.reg(reg)) })
		}
		o := op
		define(0xC6|o<<3, aluImmediateNames[o], "", OperandByte,
			func(c *CPU) { c.alu(o, c.fetch8()) })
	}

	define(0x07, "RLC", "", OperandNone, (*CPU).rlc)
	define(0x0F, "RRC", "", OperandNone, (*CPU).rrc)
	define(0x17, "RAL", "", OperandNone, (*CPU).ral)
	define(0x1F, "RAR", "", OperandNone, (*CPU).rar)
	define(0x2F, "CMA", "", OperandNone, func(c *CPU) { c.A = ^c.A })
	define(0x37, "STC", "", OperandNone, func(c *CPU) { c.Flags.CY = true })
	define(0x3F, "CMC", "", OperandNone, func(c *CPU) { c.Flags.CY = !c.Flags.CY })
}

func defineStack() {
	for rp := byte(0); rp < 3; rp++ {
		p := rp
		define(0xC5|p<<4, "PUSH", PairNames[p], OperandNone, func(c *CPU) { c.push(c.pair(p)) })
		define(0xC1|p<<4, "POP", PairNames[p], OperandNone, func(c *CPU) { c.setPair(p, c.pop()) })
	}
	define(0xF5, "PUSH", "PSW", OperandNone, (*CPU).pushPSW)
	define(0xF1, "POP", "PSW", OperandNone, (*CPU).popPSW)

	define(0xE3, "XTHL", "", OperandNone, (*CPU).xthl)
	define(0xF9, "SPHL", "", OperandNone, func(c *CPU) { c.SP = c.HL() })
}

// Branch targets, including popped return addresses, pass the same address
// limit as data accesses.
func defineBranches() {
	define(0xC3, "JMP", "", OperandWord, func(c *CPU) { c.PC = c.resolve(c.fetch16()) })
	define(0xCD, "CALL", "", OperandWord, func(c *CPU) {
		addr := c.resolve(c.fetch16())
		c.push(c.PC)
		c.PC = addr
	})
	define(0xC9, "RET", "", OperandNone, func(c *CPU) { c.PC = c.resolve(c.pop()) })
	define(0xE9, "PCHL", "", OperandNone, func(c *CPU) { c.PC = c.resolve(c.HL()) })

	for cc := byte(0); cc < 8; cc++ {
		cond := cc
		define(0xC2|cond<<3, "J"+ConditionNames[cond], "", OperandWord, func(c *CPU) {
			addr := c.resolve(c.fetch16())
			if c.condition(cond) {
				c.PC = addr
			}
		})
		define(0xC4|cond<<3, "C"+ConditionNames[cond], "", OperandWord, func(c *CPU) {
			addr := c.resolve(c.fetch16())
			if c.condition(cond) {
				c.push(c.PC)
				c.PC = addr
			}
		})
		define(0xC0|cond<<3, "R"+ConditionNames[cond], "", OperandNone, func(c *CPU) {
			if c.condition(cond) {
				c.PC = c.resolve(c.pop())
			}
		})

		vector := cc
		define(0xC7|vector<<3, "RST", strconv.Itoa(int(vector)), OperandNone, func(c *CPU) {
			c.push(c.PC)
			c.PC = uint16(vector) * 8
		})
	}
}

func defineSpecial() {
	define(0x00, "NOP", "", OperandNone, func(*CPU) {})
	define(0x76, "HLT", "", OperandNone, func(c *CPU) { c.Halted = true })
	define(0xFB, "EI", "", OperandNone, func(c *CPU) { c.IE = true })
	define(0xF3, "DI", "", OperandNone, func(c *CPU) { c.IE = false })
}
