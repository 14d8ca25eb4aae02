package ir

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ParseText reads the textual form of an IR program. The syntax is the
// same one the lowering rules are written in, one op per line:
//
//	section main locals=8
//	    movii32 r3, 42
//	    storeoi32 r3, r1, 0
//	    label_1
//	    end
//
//	section addone iargs=1 ret=i32
//	    addii32 r4, r3, 1
//	    reti32 r4
//
// Calls name their target section with @name:
//
//	calli32 r5, @addone, r4
//
// Program-level data blobs for lca are declared with
// "data bytes <hex octets...>" or "data double <value>". Comments start
// with '#'. Section 0 is the program entry.
func ParseText(r io.Reader) (*Program, error) {
	p := &parser{
		prog:      &Program{},
		sectionID: make(map[string]uint32),
	}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		p.lineNo++
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := p.parseLine(line); err != nil {
			return nil, errors.Wrapf(err, "line %d", p.lineNo)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "reading IR text")
	}
	if err := p.resolveCalls(); err != nil {
		return nil, err
	}
	if len(p.prog.Sections) == 0 {
		return nil, fmt.Errorf("no sections")
	}
	return p.prog, nil
}

type pendingCall struct {
	section int
	op      int
	name    string
	line    int
}

type parser struct {
	prog      *Program
	cur       *Section
	sectionID map[string]uint32
	pending   []pendingCall
	lineNo    int
}

func (p *parser) parseLine(line string) error {
	fields := strings.Fields(line)
	switch fields[0] {
	case "section":
		return p.parseSection(fields[1:])
	case "data":
		return p.parseData(fields[1:])
	}
	if p.cur == nil {
		return fmt.Errorf("op before first section")
	}
	return p.parseOp(line, fields)
}

func (p *parser) parseSection(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("section needs a name")
	}
	name := args[0]
	if _, dup := p.sectionID[name]; dup {
		return fmt.Errorf("duplicate section %q", name)
	}
	s := &Section{Kind: SectionIR}
	for _, kv := range args[1:] {
		key, val, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("bad section attribute %q", kv)
		}
		switch key {
		case "locals":
			n, err := strconv.ParseInt(val, 10, 32)
			if err != nil {
				return fmt.Errorf("bad locals %q", val)
			}
			s.Locals = int32(n)
		case "iargs":
			n, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("bad iargs %q", val)
			}
			s.SType.IntArgs = n
		case "rargs":
			n, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("bad rargs %q", val)
			}
			s.SType.RealArgs = n
		case "ret":
			switch val {
			case "void":
				s.SType.Ret = TypeVoid
			case "i32":
				s.SType.Ret = TypeI32
			case "real":
				s.SType.Ret = TypeReal
			default:
				return fmt.Errorf("bad return type %q", val)
			}
		default:
			return fmt.Errorf("unknown section attribute %q", key)
		}
	}
	s.RegCounter = TempStart + uint32(s.SType.IntArgs)
	s.FregCounter = uint32(s.SType.RealArgs)
	p.sectionID[name] = uint32(len(p.prog.Sections))
	p.prog.Sections = append(p.prog.Sections, s)
	p.prog.Names = append(p.prog.Names, name)
	p.cur = s
	return nil
}

func (p *parser) parseData(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("data needs a kind and a payload")
	}
	switch args[0] {
	case "bytes":
		data := make([]byte, 0, len(args)-1)
		for _, tok := range args[1:] {
			b, err := strconv.ParseUint(tok, 16, 8)
			if err != nil {
				return fmt.Errorf("bad data byte %q", tok)
			}
			data = append(data, byte(b))
		}
		p.prog.Constants = append(p.prog.Constants, ConstData{Data: data})
	case "double":
		v, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("bad double %q", args[1])
		}
		data := make([]byte, 8)
		binary.LittleEndian.PutUint64(data, math.Float64bits(v))
		p.prog.Constants = append(p.prog.Constants, ConstData{Data: data, IsDouble: true})
	default:
		return fmt.Errorf("unknown data kind %q", args[0])
	}
	return nil
}

func (p *parser) parseOp(line string, fields []string) error {
	head := fields[0]

	if strings.HasPrefix(head, labelPrefix) {
		n, err := strconv.ParseUint(head[len(labelPrefix):], 10, 32)
		if err != nil {
			return fmt.Errorf("bad label %q", head)
		}
		p.noteLabel(uint32(n))
		p.cur.Ops = append(p.cur.Ops, Op{Kind: OpKindLabel, Label: uint32(n)})
		return nil
	}

	switch head {
	case "call", "calli32", "callptr", "calli32ptr":
		return p.parseCall(head, strings.TrimSpace(line[len(head):]))
	}

	opc, ok := opcodeByName[head]
	if !ok {
		return fmt.Errorf("unknown opcode %q", head)
	}
	op := Op{Kind: OpKindInstr, Instr: Instr{Opcode: opc}}
	rest := strings.TrimSpace(line[len(head):])
	var toks []string
	if rest != "" {
		toks = strings.Split(rest, ",")
	}
	classes := OpDescs[opc].Operands
	if len(toks) != len(classes) {
		return fmt.Errorf("%s takes %d operands, got %d", head, len(classes), len(toks))
	}
	for i, tok := range toks {
		if err := p.parseOperandValue(strings.TrimSpace(tok), classes[i], &op.Instr.Operands[i]); err != nil {
			return err
		}
	}
	p.cur.Ops = append(p.cur.Ops, op)
	return nil
}

func (p *parser) parseOperandValue(tok string, class OperandClass, dst *Operand) error {
	switch class {
	case ClassReg:
		if !strings.HasPrefix(tok, "r") {
			return fmt.Errorf("expected integer register, got %q", tok)
		}
		n, err := strconv.ParseUint(tok[1:], 10, 32)
		if err != nil {
			return fmt.Errorf("bad register %q", tok)
		}
		dst.Reg = uint32(n)
		p.noteReg(uint32(n))
	case ClassFReg:
		if !strings.HasPrefix(tok, "f") {
			return fmt.Errorf("expected float register, got %q", tok)
		}
		n, err := strconv.ParseUint(tok[1:], 10, 32)
		if err != nil {
			return fmt.Errorf("bad register %q", tok)
		}
		dst.Reg = uint32(n)
		if n >= uint64(p.cur.FregCounter) {
			p.cur.FregCounter = uint32(n) + 1
		}
	case ClassI32:
		tok = strings.TrimPrefix(tok, "#")
		n, err := strconv.ParseInt(tok, 0, 64)
		if err != nil {
			return fmt.Errorf("bad immediate %q", tok)
		}
		if n < math.MinInt32 || n > math.MaxUint32 {
			return fmt.Errorf("immediate %q out of range", tok)
		}
		dst.Imm = int32(n)
	case ClassReal:
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return fmt.Errorf("bad real %q", tok)
		}
		dst.Real = v
	case ClassLabel:
		if !strings.HasPrefix(tok, labelPrefix) {
			return fmt.Errorf("expected label, got %q", tok)
		}
		n, err := strconv.ParseUint(tok[len(labelPrefix):], 10, 32)
		if err != nil {
			return fmt.Errorf("bad label %q", tok)
		}
		dst.Label = uint32(n)
		p.noteLabel(uint32(n))
	}
	return nil
}

func (p *parser) parseCall(kind, rest string) error {
	var toks []string
	if rest != "" {
		toks = strings.Split(rest, ",")
	}
	for i := range toks {
		toks[i] = strings.TrimSpace(toks[i])
	}

	op := Op{}
	switch kind {
	case "call":
		op.Kind = OpKindCall
	case "calli32":
		op.Kind = OpKindCallI32
	case "callptr":
		op.Kind = OpKindCallPtr
	case "calli32ptr":
		op.Kind = OpKindCallI32Ptr
	}

	// The I32 variants name the result register first.
	if op.Kind == OpKindCallI32 || op.Kind == OpKindCallI32Ptr {
		if len(toks) == 0 {
			return fmt.Errorf("%s needs a result register", kind)
		}
		var o Operand
		if err := p.parseOperandValue(toks[0], ClassReg, &o); err != nil {
			return err
		}
		op.Call.ResultReg = o.Reg
		toks = toks[1:]
	}

	// Then the target: @name for direct calls, a register for indirect.
	if len(toks) == 0 {
		return fmt.Errorf("%s needs a target", kind)
	}
	target := toks[0]
	toks = toks[1:]
	if op.Kind == OpKindCall || op.Kind == OpKindCallI32 {
		if !strings.HasPrefix(target, "@") {
			return fmt.Errorf("direct call target must be @name, got %q", target)
		}
		p.pending = append(p.pending, pendingCall{
			section: len(p.prog.Sections) - 1,
			op:      len(p.cur.Ops),
			name:    target[1:],
			line:    p.lineNo,
		})
	} else {
		var o Operand
		if err := p.parseOperandValue(target, ClassReg, &o); err != nil {
			return err
		}
		op.Call.PtrReg = o.Reg
	}

	for _, tok := range toks {
		var o Operand
		if strings.HasPrefix(tok, "f") {
			if err := p.parseOperandValue(tok, ClassFReg, &o); err != nil {
				return err
			}
			op.Call.Args = append(op.Call.Args, Arg{IsReal: true, Reg: o.Reg})
		} else {
			if err := p.parseOperandValue(tok, ClassReg, &o); err != nil {
				return err
			}
			op.Call.Args = append(op.Call.Args, Arg{Reg: o.Reg})
		}
	}
	p.cur.Ops = append(p.cur.Ops, op)
	return nil
}

func (p *parser) resolveCalls() error {
	for _, pc := range p.pending {
		id, ok := p.sectionID[pc.name]
		if !ok {
			return fmt.Errorf("line %d: call to unknown section %q", pc.line, pc.name)
		}
		p.prog.Sections[pc.section].Ops[pc.op].Call.Target = id
	}
	return nil
}

func (p *parser) noteReg(n uint32) {
	if n >= p.cur.RegCounter {
		p.cur.RegCounter = n + 1
	}
}

func (p *parser) noteLabel(n uint32) {
	if n >= p.cur.LabelCounter {
		p.cur.LabelCounter = n + 1
	}
}
