package asm

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrUnresolvedTarget reports a jump whose target instruction is no longer
// part of the stream. A correctly compiled unit never produces this; it
// indicates a defect in whatever mutated the stream last.
var ErrUnresolvedTarget = errors.New("jump target not present in instruction stream")

// Program is one compiled unit: an ordered, mutable instruction stream plus
// the value table its operands live in. Instructions are referenced by
// position during mutation; addresses are a projection recomputed on
// demand.
type Program struct {
	Instructions []*Instruction
	Values       *ValueTable

	index map[*Instruction]int
}

func NewProgram(values *ValueTable, instructions ...*Instruction) *Program {
	if values == nil {
		values = NewValueTable()
	}
	return &Program{Instructions: instructions, Values: values}
}

// RecalculateInstructionAddresses assigns every instruction its address
// from current stream order and re-resolves every jump's target address.
// After it returns without error, each jump's TargetAddress equals the
// address of the instruction its JumpTarget names.
func (p *Program) RecalculateInstructionAddresses() error {
	p.index = make(map[*Instruction]int, len(p.Instructions))
	addr := uint32(0)
	for i, ins := range p.Instructions {
		ins.Address = addr
		addr += ins.Width()
		p.index[ins] = i
	}
	for _, ins := range p.Instructions {
		if ins.JumpTarget == nil {
			continue
		}
		if _, ok := p.index[ins.JumpTarget]; !ok {
			return errors.Wrapf(ErrUnresolvedTarget, "at 0x%08X (%s)", ins.Address, ins.Kind)
		}
		ins.TargetAddress = ins.JumpTarget.Address
	}
	return nil
}

// IndexOf returns the current position of ins in the stream. Valid only
// after RecalculateInstructionAddresses; mutations invalidate it.
func (p *Program) IndexOf(ins *Instruction) (int, bool) {
	i, ok := p.index[ins]
	return i, ok
}

// ExportSymbols returns the names of all export markers in stream order.
func (p *Program) ExportSymbols() []string {
	var symbols []string
	for _, ins := range p.Instructions {
		if ins.Kind == Export {
			symbols = append(symbols, ins.Symbol)
		}
	}
	return symbols
}

// EntryPoint returns the instruction following the export marker named
// symbol, the point at which an external caller enters the stream.
func (p *Program) EntryPoint(symbol string) (*Instruction, bool) {
	for i, ins := range p.Instructions {
		if ins.Kind == Export && ins.Symbol == symbol && i+1 < len(p.Instructions) {
			return p.Instructions[i+1], true
		}
	}
	return nil, false
}

// Clone returns a deep copy of the instruction stream sharing the value
// table. Jump targets are remapped onto the copied instructions.
func (p *Program) Clone() *Program {
	remap := make(map[*Instruction]*Instruction, len(p.Instructions))
	clone := &Program{Values: p.Values}
	for _, ins := range p.Instructions {
		dup := *ins
		if len(ins.Args) > 0 {
			dup.Args = append([]*Value(nil), ins.Args...)
		}
		remap[ins] = &dup
		clone.Instructions = append(clone.Instructions, &dup)
	}
	for _, ins := range clone.Instructions {
		if ins.JumpTarget != nil {
			ins.JumpTarget = remap[ins.JumpTarget]
		}
	}
	return clone
}

// String renders a readable listing of the stream.
func (p *Program) String() string {
	var b strings.Builder
	for _, ins := range p.Instructions {
		fmt.Fprintf(&b, "0x%08X: %s\n", ins.Address, ins)
	}
	return b.String()
}
