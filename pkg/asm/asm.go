package asm

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"go8080/pkg/cpu"
)

// byName groups the documented opcodes by mnemonic.
var byName = buildIndex()

func buildIndex() map[string][]cpu.Instruction {
	index := make(map[string][]cpu.Instruction)
	for _, in := range cpu.Instructions {
		if !in.Defined {
			continue
		}
		index[in.Name] = append(index[in.Name], in)
	}
	return index
}

type Assembler struct {
	labels map[string]uint16
}

type parsedLine struct {
	lineNo   int
	labels   []string
	mnemonic string
	operands []string
}

func NewAssembler() *Assembler {
	return &Assembler{
		labels: make(map[string]uint16),
	}
}

// Assemble translates 8080 source into a memory image starting at address 0
// and a map from instruction address to source line.
func Assemble(code string) ([]byte, map[uint16]int, error) {
	return NewAssembler().Assemble(code)
}

func (a *Assembler) Assemble(code string) ([]byte, map[uint16]int, error) {
	lines := strings.Split(code, "\n")

	if err := a.pass1(lines); err != nil {
		return nil, nil, err
	}

	return a.pass2(lines)
}

// Labels returns the resolved symbol table, keyed by upper-case name.
func (a *Assembler) Labels() map[string]uint16 {
	out := make(map[string]uint16, len(a.labels))
	for k, v := range a.labels {
		out[k] = v
	}
	return out
}

func (a *Assembler) define(name string, value uint16, lineNo int) error {
	key := normalizeLabel(name)
	if _, exists := a.labels[key]; exists {
		return fmt.Errorf("duplicate label '%s' on line %d", name, lineNo)
	}
	a.labels[key] = value
	return nil
}

func (a *Assembler) pass1(lines []string) error {
	var address uint32

	for i, raw := range lines {
		lineNo := i + 1
		p, err := parseLine(raw, lineNo)
		if err != nil {
			return err
		}

		if p.mnemonic == "EQU" {
			if len(p.labels) != 1 || len(p.operands) != 1 {
				return fmt.Errorf("EQU expects a name and one value on line %d", lineNo)
			}
			value, err := a.evaluate(p.operands[0], uint16(address), lineNo)
			if err != nil {
				return err
			}
			if err := a.define(p.labels[0], value, lineNo); err != nil {
				return err
			}
			continue
		}

		for _, lbl := range p.labels {
			if address > 0xFFFF {
				return fmt.Errorf("label '%s' on line %d points past addressable memory", lbl, lineNo)
			}
			if err := a.define(lbl, uint16(address), lineNo); err != nil {
				return err
			}
		}

		if p.mnemonic == "" {
			continue
		}
		if p.mnemonic == "END" {
			break
		}

		var length uint32
		switch p.mnemonic {
		case "ORG":
			target, err := a.evaluate(p.operands[0], uint16(address), lineNo)
			if err != nil {
				return err
			}
			if uint32(target) < address {
				return fmt.Errorf("cannot move origin backward on line %d", lineNo)
			}
			address = uint32(target)
			continue

		case "DB":
			for _, op := range p.operands {
				if s, ok := stringLiteral(op); ok {
					length += uint32(len(s))
					continue
				}
				length++
			}

		case "DW":
			length = uint32(2 * len(p.operands))

		case "DS":
			if len(p.operands) != 1 {
				return fmt.Errorf("DS expects exactly one operand on line %d", lineNo)
			}
			n, err := a.evaluate(p.operands[0], uint16(address), lineNo)
			if err != nil {
				return err
			}
			length = uint32(n)

		default:
			n, ok := instructionLength(p.mnemonic)
			if !ok {
				return fmt.Errorf("unknown instruction on line %d: %s", lineNo, p.mnemonic)
			}
			length = uint32(n)
		}

		if address+length > 0x10000 {
			return fmt.Errorf("program too large near line %d", lineNo)
		}
		address += length
	}

	return nil
}

func (a *Assembler) pass2(lines []string) ([]byte, map[uint16]int, error) {
	program := make([]byte, 0)
	sourceMap := make(map[uint16]int)

	for i, raw := range lines {
		lineNo := i + 1
		p, err := parseLine(raw, lineNo)
		if err != nil {
			return nil, nil, err
		}

		if p.mnemonic == "" || p.mnemonic == "EQU" {
			continue
		}
		if p.mnemonic == "END" {
			break
		}

		pc := uint16(len(program))
		ops := p.operands

		switch p.mnemonic {
		case "ORG":
			target, err := a.evaluate(ops[0], pc, lineNo)
			if err != nil {
				return nil, nil, err
			}
			if padding := int(target) - len(program); padding > 0 {
				program = append(program, make([]byte, padding)...)
			}
			continue

		case "DB":
			sourceMap[pc] = lineNo
			for _, op := range ops {
				if s, ok := stringLiteral(op); ok {
					program = append(program, s...)
					continue
				}
				v, err := a.evaluateByte(op, uint16(len(program)), lineNo)
				if err != nil {
					return nil, nil, err
				}
				program = append(program, v)
			}
			continue

		case "DW":
			sourceMap[pc] = lineNo
			for _, op := range ops {
				v, err := a.evaluate(op, uint16(len(program)), lineNo)
				if err != nil {
					return nil, nil, err
				}
				program = append(program, byte(v), byte(v>>8))
			}
			continue

		case "DS":
			n, err := a.evaluate(ops[0], pc, lineNo)
			if err != nil {
				return nil, nil, err
			}
			program = append(program, make([]byte, n)...)
			continue
		}

		code, err := a.encode(p, pc)
		if err != nil {
			return nil, nil, err
		}
		sourceMap[pc] = lineNo
		program = append(program, code...)
	}

	return program, sourceMap, nil
}

// encode matches the operands against every table entry sharing the mnemonic.
func (a *Assembler) encode(p parsedLine, pc uint16) ([]byte, error) {
	candidates, ok := byName[p.mnemonic]
	if !ok {
		return nil, fmt.Errorf("unknown instruction on line %d: %s", p.lineNo, p.mnemonic)
	}

	for _, in := range candidates {
		argCount := 0
		if in.Args != "" {
			argCount = strings.Count(in.Args, ",") + 1
		}
		want := argCount
		if in.Operand != cpu.OperandNone {
			want++
		}
		if len(p.operands) != want {
			continue
		}
		if argCount > 0 && strings.ToUpper(strings.Join(p.operands[:argCount], ",")) != in.Args {
			continue
		}

		code := []byte{in.Opcode}
		switch in.Operand {
		case cpu.OperandByte:
			v, err := a.evaluateByte(p.operands[argCount], pc, p.lineNo)
			if err != nil {
				return nil, err
			}
			code = append(code, v)
		case cpu.OperandWord:
			v, err := a.evaluate(p.operands[argCount], pc, p.lineNo)
			if err != nil {
				return nil, err
			}
			code = append(code, byte(v), byte(v>>8))
		}
		return code, nil
	}

	return nil, fmt.Errorf("invalid operands for %s on line %d: %s",
		p.mnemonic, p.lineNo, strings.Join(p.operands, ","))
}

func parseLine(raw string, lineNo int) (parsedLine, error) {
	p := parsedLine{lineNo: lineNo}

	line := strings.TrimSpace(stripComments(raw))
	if line == "" {
		return p, nil
	}

	for {
		colon := strings.IndexByte(line, ':')
		if colon <= 0 {
			break
		}

		beforeColon := strings.TrimSpace(line[:colon])
		if strings.ContainsAny(beforeColon, " \t'\"") {
			break
		}
		if !isIdentifier(beforeColon) {
			return p, fmt.Errorf("invalid label '%s' on line %d", beforeColon, lineNo)
		}

		p.labels = append(p.labels, beforeColon)
		line = strings.TrimSpace(line[colon+1:])
		if line == "" {
			return p, nil
		}
	}

	mnemonic, rest := splitFirst(line)

	// NAME EQU value
	if second, value := splitFirst(rest); strings.EqualFold(second, "EQU") && isIdentifier(mnemonic) {
		p.labels = append(p.labels, mnemonic)
		p.mnemonic = "EQU"
		p.operands = splitOperands(value)
		return p, nil
	}

	p.mnemonic = strings.TrimPrefix(strings.ToUpper(mnemonic), ".")
	p.operands = splitOperands(rest)

	switch p.mnemonic {
	case "ORG":
		if len(p.operands) != 1 {
			return p, fmt.Errorf("ORG expects exactly one operand on line %d", lineNo)
		}
	case "DB", "DW":
		if len(p.operands) == 0 {
			return p, fmt.Errorf("%s expects at least one operand on line %d", p.mnemonic, lineNo)
		}
	}

	return p, nil
}

func splitFirst(s string) (string, string) {
	s = strings.TrimSpace(s)
	idx := strings.IndexAny(s, " \t")
	if idx < 0 {
		return s, ""
	}
	return s[:idx], strings.TrimSpace(s[idx+1:])
}

// splitOperands splits on commas outside quotes.
func splitOperands(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	var out []string
	var quote rune
	start := 0
	for i, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case r == ',':
			out = append(out, strings.TrimSpace(s[start:i]))
			start = i + 1
		}
	}
	return append(out, strings.TrimSpace(s[start:]))
}

func stripComments(line string) string {
	var quote rune
	for i, r := range line {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case r == ';':
			return line[:i]
		}
	}
	return line
}

// stringLiteral reports whether token is a quoted string of more than one
// character. Single characters are numeric operands.
func stringLiteral(token string) (string, bool) {
	if len(token) < 2 {
		return "", false
	}
	q := token[0]
	if (q != '"' && q != '\'') || token[len(token)-1] != q {
		return "", false
	}
	body := token[1 : len(token)-1]
	if q == '\'' && len(body) == 1 {
		return "", false
	}
	return body, true
}

func (a *Assembler) evaluateByte(expr string, pc uint16, lineNo int) (byte, error) {
	v, err := a.evaluate(expr, pc, lineNo)
	if err != nil {
		return 0, err
	}
	if v > 0xFF && v < 0xFF80 {
		return 0, fmt.Errorf("byte value out of range on line %d: %s", lineNo, expr)
	}
	return byte(v), nil
}

// evaluate computes a sum of terms joined by + and -. A lone $ is the
// address of the current statement.
func (a *Assembler) evaluate(expr string, pc uint16, lineNo int) (uint16, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return 0, fmt.Errorf("missing operand on line %d", lineNo)
	}

	var total int64
	sign := int64(1)
	start := 0
	inChar := false
	flush := func(end int) error {
		term := strings.TrimSpace(expr[start:end])
		if term == "" {
			if end == len(expr) {
				return fmt.Errorf("invalid expression '%s' on line %d", expr, lineNo)
			}
			return nil
		}
		v, err := a.term(term, pc, lineNo)
		if err != nil {
			return err
		}
		total += sign * v
		return nil
	}

	for i := 0; i < len(expr); i++ {
		ch := expr[i]
		if ch == '\'' {
			inChar = !inChar
			continue
		}
		if inChar || (ch != '+' && ch != '-') {
			continue
		}
		if err := flush(i); err != nil {
			return 0, err
		}
		if ch == '-' {
			sign = -1
		} else {
			sign = 1
		}
		start = i + 1
	}
	if err := flush(len(expr)); err != nil {
		return 0, err
	}

	if total < -0x8000 || total > 0xFFFF {
		return 0, fmt.Errorf("value out of range on line %d: %s", lineNo, expr)
	}
	return uint16(total), nil
}

func (a *Assembler) term(token string, pc uint16, lineNo int) (int64, error) {
	if token == "$" {
		return int64(pc), nil
	}
	if v, ok := parseNumber(token); ok {
		return v, nil
	}

	if addr, ok := a.labels[normalizeLabel(token)]; ok {
		return int64(addr), nil
	}

	if isIdentifier(token) {
		return 0, fmt.Errorf("undefined label '%s' on line %d", token, lineNo)
	}

	return 0, fmt.Errorf("invalid immediate '%s' on line %d", token, lineNo)
}

// parseNumber accepts 0x1F, $1F, 1Fh, 0b101, 101b, decimal and 'c'.
func parseNumber(token string) (int64, bool) {
	if len(token) == 3 && token[0] == '\'' && token[2] == '\'' {
		return int64(token[1]), true
	}

	upper := strings.ToUpper(token)
	base := 10
	digits := upper
	switch {
	case strings.HasPrefix(upper, "0X"):
		base, digits = 16, upper[2:]
	case strings.HasPrefix(upper, "$") && len(upper) > 1:
		base, digits = 16, upper[1:]
	case strings.HasPrefix(upper, "0B") && len(upper) > 2 && !strings.HasSuffix(upper, "H"):
		base, digits = 2, upper[2:]
	case strings.HasSuffix(upper, "H") && len(upper) > 1 && unicode.IsDigit(rune(upper[0])):
		base, digits = 16, upper[:len(upper)-1]
	case strings.HasSuffix(upper, "B") && len(upper) > 1 && strings.Trim(upper[:len(upper)-1], "01") == "":
		base, digits = 2, upper[:len(upper)-1]
	}

	v, err := strconv.ParseInt(digits, base, 32)
	if err != nil {
		return 0, false
	}
	return v, true
}

// instructionLength returns the encoded size shared by every form of mnemonic.
func instructionLength(mnemonic string) (int, bool) {
	candidates, ok := byName[strings.ToUpper(mnemonic)]
	if !ok {
		return 0, false
	}
	return candidates[0].Length(), true
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}

	for i, r := range s {
		if i == 0 {
			if !unicode.IsLetter(r) && r != '_' {
				return false
			}
			continue
		}

		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}

	return true
}

func normalizeLabel(label string) string {
	return strings.ToUpper(label)
}
