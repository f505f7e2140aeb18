// Package interp executes assembly programs directly. It is the reference
// semantics for the instruction set: slow, simple, and used to check that
// transformed streams behave exactly like the originals.
package interp

import (
	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/embervm/ember/asm"
)

// DefaultStepLimit aborts runaway programs. Well-formed test programs
// finish orders of magnitude below it.
const DefaultStepLimit = 1_000_000

var (
	ErrStackUnderflow = errors.New("operand stack underflow")
	ErrUnknownExtern  = errors.New("extern signature not registered")
	ErrBadJumpAddress = errors.New("indirect jump to address outside program")
	ErrStepLimit      = errors.New("step limit exceeded")
	ErrNoSuchEntry    = errors.New("no export entry with that name")
)

// ExternFunc is a host function. It may read and write any argument cell
// through the machine.
type ExternFunc func(m *Machine, args []*asm.Value) error

// Machine executes one program. Cells live in an environment keyed by
// value identity; constants materialize on first read. The Trace records
// every extern signature in call order, which together with the final
// cell contents is the observable behavior of a run.
type Machine struct {
	program *asm.Program
	env     map[*asm.Value]*uint256.Int
	stack   []*asm.Value
	externs map[string]ExternFunc

	byAddress map[uint32]int
	StepLimit int

	// Trace is the side-effect log: extern signatures in invocation order.
	Trace []string
}

// NewMachine prepares a machine for program. Addresses must be current;
// callers that mutated the stream recalculate first.
func NewMachine(program *asm.Program) *Machine {
	byAddress := make(map[uint32]int, len(program.Instructions))
	for i, ins := range program.Instructions {
		byAddress[ins.Address] = i
	}
	return &Machine{
		program:   program,
		env:       make(map[*asm.Value]*uint256.Int),
		externs:   make(map[string]ExternFunc),
		byAddress: byAddress,
		StepLimit: DefaultStepLimit,
	}
}

// RegisterExtern installs the host function for a signature.
func (m *Machine) RegisterExtern(signature string, fn ExternFunc) {
	m.externs[signature] = fn
}

// SetValue writes a cell before or during execution.
func (m *Machine) SetValue(v *asm.Value, u *uint256.Int) {
	m.env[v] = u.Clone()
}

// Value reads a cell. Unwritten cells read as zero; constants read as
// their decoded content.
func (m *Machine) Value(v *asm.Value) *uint256.Int {
	if u, ok := m.env[v]; ok {
		return u
	}
	if v.IsKonst() {
		return v.Konst.Clone()
	}
	return uint256.NewInt(0)
}

// StackDepth returns the current operand stack depth.
func (m *Machine) StackDepth() int { return len(m.stack) }

// RunEntry starts execution at the export entry named symbol.
func (m *Machine) RunEntry(symbol string) error {
	entry, ok := m.program.EntryPoint(symbol)
	if !ok {
		return errors.Wrap(ErrNoSuchEntry, symbol)
	}
	pc, _ := m.program.IndexOf(entry)
	return m.run(pc)
}

// Run starts execution at the first instruction.
func (m *Machine) Run() error { return m.run(0) }

func (m *Machine) run(pc int) error {
	instructions := m.program.Instructions
	for steps := 0; pc < len(instructions); steps++ {
		if steps >= m.StepLimit {
			return ErrStepLimit
		}
		ins := instructions[pc]
		switch ins.Kind {
		case asm.Nop, asm.Export:
			pc++
		case asm.Push:
			m.stack = append(m.stack, ins.Operand)
			pc++
		case asm.Pop:
			if len(m.stack) == 0 {
				return errors.Wrapf(ErrStackUnderflow, "at 0x%08X", ins.Address)
			}
			m.stack = m.stack[:len(m.stack)-1]
			pc++
		case asm.Copy:
			m.env[ins.Target] = m.Value(ins.Source).Clone()
			pc++
		case asm.Jump:
			next, ok := m.program.IndexOf(ins.JumpTarget)
			if !ok {
				return errors.Wrapf(asm.ErrUnresolvedTarget, "at 0x%08X", ins.Address)
			}
			pc = next
		case asm.JumpIfFalse:
			if m.Value(ins.Condition).IsZero() {
				next, ok := m.program.IndexOf(ins.JumpTarget)
				if !ok {
					return errors.Wrapf(asm.ErrUnresolvedTarget, "at 0x%08X", ins.Address)
				}
				pc = next
			} else {
				pc++
			}
		case asm.JumpIndirect, asm.Return:
			dest := m.Value(ins.Operand)
			if dest.Eq(uint256.NewInt(uint64(asm.HaltAddress))) {
				return nil
			}
			// Range check before narrowing: a wide destination must not
			// truncate onto a real address.
			if !dest.IsUint64() || dest.Uint64() > uint64(asm.HaltAddress) {
				return errors.Wrapf(ErrBadJumpAddress, "at 0x%08X", ins.Address)
			}
			next, ok := m.byAddress[uint32(dest.Uint64())]
			if !ok {
				return errors.Wrapf(ErrBadJumpAddress, "at 0x%08X", ins.Address)
			}
			pc = next
		case asm.Extern:
			fn, ok := m.externs[ins.Symbol]
			if !ok {
				return errors.Wrap(ErrUnknownExtern, ins.Symbol)
			}
			m.Trace = append(m.Trace, ins.Symbol)
			if err := fn(m, ins.Args); err != nil {
				return errors.Wrapf(err, "extern %q", ins.Symbol)
			}
			pc++
		default:
			return errors.Errorf("unexecutable instruction kind %s", ins.Kind)
		}
	}
	return nil
}
