package asm

import "fmt"

// Kind identifies an instruction variant. The set is closed: the optimizer
// and the interpreter both switch exhaustively over it, so adding a variant
// forces every dispatch site to be revisited.
type Kind uint8

const (
	// Nop does nothing. Occupies one word.
	Nop Kind = iota
	// Push places a value reference on the operand stack.
	Push
	// Pop discards the top of the operand stack.
	Pop
	// Copy assigns the content of Source to Target.
	Copy
	// Jump transfers control to JumpTarget unconditionally.
	Jump
	// JumpIfFalse transfers control to JumpTarget when Condition is zero,
	// otherwise falls through.
	JumpIfFalse
	// JumpIndirect transfers control to the address held in Operand.
	JumpIndirect
	// Return transfers control to the return address held in Operand.
	// Returning to HaltAddress terminates execution.
	Return
	// Export marks the next instruction as an externally invocable entry
	// point named Symbol. It has no runtime effect.
	Export
	// Extern invokes a host function identified by Symbol with Args. The
	// host may read and write every argument cell.
	Extern
)

// HaltAddress is the reserved jump destination that terminates execution
// when reached through Return or JumpIndirect.
const HaltAddress uint32 = 0xFFFFFFFF

var kindNames = [...]string{
	Nop:          "NOP",
	Push:         "PUSH",
	Pop:          "POP",
	Copy:         "COPY",
	Jump:         "JUMP",
	JumpIfFalse:  "JUMP_IF_FALSE",
	JumpIndirect: "JUMP_INDIRECT",
	Return:       "RET",
	Export:       "EXPORT",
	Extern:       "EXTERN",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("KIND(%d)", uint8(k))
}

// Instruction is one element of a program's instruction stream. Identity is
// the pointer: jump targets reference instructions directly and survive any
// reordering of the stream. Address is a projection recomputed by
// Program.RecalculateInstructionAddresses and is never authoritative.
//
// Operand fields by kind:
//
//	Push          Operand (value pushed)
//	Copy          Source, Target
//	Jump          JumpTarget
//	JumpIfFalse   Condition, JumpTarget
//	JumpIndirect  Operand (holds destination address)
//	Return        Operand (holds return address)
//	Export        Symbol
//	Extern        Symbol, Args
type Instruction struct {
	Kind    Kind
	Address uint32

	Operand   *Value
	Source    *Value
	Target    *Value
	Condition *Value
	Args      []*Value
	Symbol    string

	// JumpTarget is the destination instruction for Jump and JumpIfFalse.
	// TargetAddress mirrors JumpTarget.Address after recalculation.
	JumpTarget    *Instruction
	TargetAddress uint32
}

func NewNop() *Instruction { return &Instruction{Kind: Nop} }
func NewPop() *Instruction { return &Instruction{Kind: Pop} }

func NewPush(v *Value) *Instruction {
	return &Instruction{Kind: Push, Operand: v}
}

func NewCopy(src, dst *Value) *Instruction {
	return &Instruction{Kind: Copy, Source: src, Target: dst}
}

func NewJump(target *Instruction) *Instruction {
	return &Instruction{Kind: Jump, JumpTarget: target}
}

func NewJumpIfFalse(cond *Value, target *Instruction) *Instruction {
	return &Instruction{Kind: JumpIfFalse, Condition: cond, JumpTarget: target}
}

func NewJumpIndirect(v *Value) *Instruction {
	return &Instruction{Kind: JumpIndirect, Operand: v}
}

func NewReturn(v *Value) *Instruction {
	return &Instruction{Kind: Return, Operand: v}
}

func NewExport(symbol string) *Instruction {
	return &Instruction{Kind: Export, Symbol: symbol}
}

func NewExtern(signature string, args ...*Value) *Instruction {
	return &Instruction{Kind: Extern, Symbol: signature, Args: args}
}

// Width returns the instruction's footprint in address units: one word for
// the opcode plus one per operand word. Addresses advance nonuniformly, so
// every address-dependent consumer must go through the recalculated
// projection rather than assuming a fixed stride.
func (i *Instruction) Width() uint32 {
	switch i.Kind {
	case Nop, Pop:
		return 1
	case Push, Jump, JumpIndirect, Return, Export:
		return 2
	case Copy, JumpIfFalse:
		return 3
	case Extern:
		return 2 + uint32(len(i.Args))
	default:
		return 1
	}
}

// IsJump reports whether the instruction carries a direct jump target.
func (i *Instruction) IsJump() bool {
	return i.Kind == Jump || i.Kind == JumpIfFalse
}

// IsTerminator reports whether control never falls through this
// instruction into the next one.
func (i *Instruction) IsTerminator() bool {
	return i.Kind == Jump || i.Kind == JumpIndirect || i.Kind == Return
}

func (i *Instruction) String() string {
	switch i.Kind {
	case Push:
		return fmt.Sprintf("PUSH %s", i.Operand)
	case Copy:
		return fmt.Sprintf("COPY %s -> %s", i.Source, i.Target)
	case Jump:
		return fmt.Sprintf("JUMP 0x%08X", i.TargetAddress)
	case JumpIfFalse:
		return fmt.Sprintf("JUMP_IF_FALSE %s, 0x%08X", i.Condition, i.TargetAddress)
	case JumpIndirect:
		return fmt.Sprintf("JUMP_INDIRECT %s", i.Operand)
	case Return:
		return fmt.Sprintf("RET %s", i.Operand)
	case Export:
		return fmt.Sprintf(".export %s", i.Symbol)
	case Extern:
		return fmt.Sprintf("EXTERN %q /%d", i.Symbol, len(i.Args))
	default:
		return i.Kind.String()
	}
}
