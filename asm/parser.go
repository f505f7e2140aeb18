package asm

import (
	"strings"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

// ErrMalformedAssembly reports unparseable assembly text.
var ErrMalformedAssembly = errors.New("malformed assembly")

// ParseAssembly reads the textual assembly form into a Program. This is a
// loader for tooling and tests, not a front end: the text is assumed to
// come from a compiler that already validated it.
//
// Grammar, one statement per line, ';' starts a comment:
//
//	.param NAME            declare an input cell
//	.local NAME            declare a host-visible cell
//	.export LABEL          export-entry marker for the next instruction
//	LABEL:                 define a jump label at the next instruction
//	NOP | POP
//	PUSH OPERAND
//	COPY SRC, DST
//	JUMP LABEL
//	JUMP_IF_FALSE COND, LABEL
//	JUMP_INDIRECT OPERAND
//	RET OPERAND
//	EXTERN "SIGNATURE" [ARG, ...]
//
// An operand is a declared name, an undeclared name (interned as a Temp
// cell on first use), or an integer literal (interned as a constant).
func ParseAssembly(src string) (*Program, error) {
	p := &parser{
		values: NewValueTable(),
		labels: make(map[string]*Instruction),
	}
	for n, line := range strings.Split(src, "\n") {
		if err := p.line(line); err != nil {
			return nil, errors.Wrapf(err, "line %d", n+1)
		}
	}
	if err := p.resolve(); err != nil {
		return nil, err
	}
	prog := NewProgram(p.values, p.instructions...)
	if err := prog.RecalculateInstructionAddresses(); err != nil {
		return nil, err
	}
	return prog, nil
}

type pendingJump struct {
	ins   *Instruction
	label string
}

type parser struct {
	values        *ValueTable
	instructions  []*Instruction
	labels        map[string]*Instruction
	pendingLabels []string
	pendingJumps  []pendingJump
}

func (p *parser) line(raw string) error {
	line := raw
	if i := strings.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	if name, ok := strings.CutSuffix(line, ":"); ok {
		name = strings.TrimSpace(name)
		if name == "" || strings.ContainsAny(name, " \t") {
			return errors.Wrapf(ErrMalformedAssembly, "bad label %q", raw)
		}
		if _, dup := p.labels[name]; dup {
			return errors.Wrapf(ErrMalformedAssembly, "duplicate label %q", name)
		}
		p.labels[name] = nil
		p.pendingLabels = append(p.pendingLabels, name)
		return nil
	}

	mnemonic, rest, _ := strings.Cut(line, " ")
	args := splitOperands(rest)

	switch strings.ToUpper(mnemonic) {
	case ".PARAM":
		return p.declare(args, Param)
	case ".LOCAL":
		return p.declare(args, Local)
	case ".EXPORT":
		if len(args) != 1 {
			return errors.Wrap(ErrMalformedAssembly, ".export wants one label")
		}
		p.emit(NewExport(args[0]))
	case "NOP":
		p.emit(NewNop())
	case "POP":
		p.emit(NewPop())
	case "PUSH":
		if len(args) != 1 {
			return errors.Wrap(ErrMalformedAssembly, "PUSH wants one operand")
		}
		p.emit(NewPush(p.operand(args[0])))
	case "COPY":
		if len(args) != 2 {
			return errors.Wrap(ErrMalformedAssembly, "COPY wants source and target")
		}
		p.emit(NewCopy(p.operand(args[0]), p.operand(args[1])))
	case "JUMP":
		if len(args) != 1 {
			return errors.Wrap(ErrMalformedAssembly, "JUMP wants one label")
		}
		ins := NewJump(nil)
		p.pendingJumps = append(p.pendingJumps, pendingJump{ins, args[0]})
		p.emit(ins)
	case "JUMP_IF_FALSE":
		if len(args) != 2 {
			return errors.Wrap(ErrMalformedAssembly, "JUMP_IF_FALSE wants condition and label")
		}
		ins := NewJumpIfFalse(p.operand(args[0]), nil)
		p.pendingJumps = append(p.pendingJumps, pendingJump{ins, args[1]})
		p.emit(ins)
	case "JUMP_INDIRECT":
		if len(args) != 1 {
			return errors.Wrap(ErrMalformedAssembly, "JUMP_INDIRECT wants one operand")
		}
		p.emit(NewJumpIndirect(p.operand(args[0])))
	case "RET":
		if len(args) != 1 {
			return errors.Wrap(ErrMalformedAssembly, "RET wants one operand")
		}
		p.emit(NewReturn(p.operand(args[0])))
	case "EXTERN":
		if len(args) < 1 || !strings.HasPrefix(args[0], `"`) || !strings.HasSuffix(args[0], `"`) {
			return errors.Wrap(ErrMalformedAssembly, "EXTERN wants a quoted signature")
		}
		sig := strings.Trim(args[0], `"`)
		operands := make([]*Value, 0, len(args)-1)
		for _, a := range args[1:] {
			operands = append(operands, p.operand(a))
		}
		p.emit(NewExtern(sig, operands...))
	default:
		return errors.Wrapf(ErrMalformedAssembly, "unknown mnemonic %q", mnemonic)
	}
	return nil
}

func (p *parser) declare(args []string, kind ValueKind) error {
	if len(args) != 1 {
		return errors.Wrap(ErrMalformedAssembly, "declaration wants one name")
	}
	p.values.Intern(args[0], kind)
	return nil
}

func (p *parser) emit(ins *Instruction) {
	for _, name := range p.pendingLabels {
		p.labels[name] = ins
	}
	p.pendingLabels = p.pendingLabels[:0]
	p.instructions = append(p.instructions, ins)
}

func (p *parser) operand(tok string) *Value {
	if u, err := uint256.FromDecimal(tok); err == nil {
		return p.values.Constant(u)
	}
	if strings.HasPrefix(tok, "0x") {
		if u, err := uint256.FromHex(tok); err == nil {
			return p.values.Constant(u)
		}
	}
	return p.values.Intern(tok, Temp)
}

func (p *parser) resolve() error {
	if len(p.pendingLabels) > 0 {
		return errors.Wrapf(ErrMalformedAssembly, "label %q has no instruction", p.pendingLabels[0])
	}
	for _, pj := range p.pendingJumps {
		target, ok := p.labels[pj.label]
		if !ok || target == nil {
			return errors.Wrapf(ErrMalformedAssembly, "undefined label %q", pj.label)
		}
		pj.ins.JumpTarget = target
	}
	return nil
}

func splitOperands(rest string) []string {
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return nil
	}
	parts := strings.Split(rest, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
