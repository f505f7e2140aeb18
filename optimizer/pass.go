package optimizer

import "github.com/embervm/ember/asm"

// Pass is one transformation unit. A pass is stateless across invocations:
// everything it needs comes from the Context, and whatever it learned is
// discarded when Run returns.
//
// Run reports whether the stream changed. A non-nil error is the failure
// arm: the orchestrator logs it, treats the invocation as "no change", and
// retries the pass on the next sweep. Whether or not it fails, a pass must
// leave every jump target resolvable when it returns.
type Pass interface {
	// Name is the stable identifier matched against the disabled set.
	Name() string
	// Priority orders passes within a sweep; lower runs first.
	Priority() int
	// CanRun is a cheap precondition check.
	CanRun(*Context) bool
	// Run performs the transformation.
	Run(*Context) (bool, error)
}

// DefaultPasses returns the full catalog in no particular order; the
// orchestrator sorts by priority.
func DefaultPasses() []Pass {
	return []Pass{
		&PushPopElimination{},
		&RedundantCopyElimination{},
		&Peephole{},
		&CopyPropagation{},
		&JumpThreading{},
		&DeadCodeElimination{},
		&ValueCoalescence{},
	}
}

// jumpTargetSet collects the instructions some jump names. Instructions in
// the set cannot be removed without retargeting the jumps first.
func jumpTargetSet(instructions []*asm.Instruction) map[*asm.Instruction]bool {
	targets := make(map[*asm.Instruction]bool)
	for _, ins := range instructions {
		if ins.JumpTarget != nil {
			targets[ins.JumpTarget] = true
		}
	}
	return targets
}

// retargetJumps repoints every jump naming from at to. Used before
// removing an instruction that something jumps to; to must be the
// instruction control would reach instead.
func retargetJumps(instructions []*asm.Instruction, from, to *asm.Instruction) {
	for _, ins := range instructions {
		if ins.JumpTarget == from {
			ins.JumpTarget = to
		}
	}
}

// removeWithRetarget deletes the instruction at i, repointing any jump
// that names it to the following instruction. Returns false when i is the
// last instruction and something jumps to it.
func removeWithRetarget(c *Context, i int) bool {
	instructions := c.Instructions()
	if jumpTargetSet(instructions)[instructions[i]] {
		if i+1 >= len(instructions) {
			return false
		}
		retargetJumps(instructions, instructions[i], instructions[i+1])
	}
	c.RemoveInstruction(i)
	return true
}

// replaceValueUses rewrites every read of from in ins to read to instead.
// Write positions (Copy targets, Extern argument cells) are left alone.
func replaceValueUses(ins *asm.Instruction, from, to *asm.Value) bool {
	changed := false
	switch ins.Kind {
	case asm.Push, asm.JumpIndirect, asm.Return:
		if ins.Operand == from {
			ins.Operand = to
			changed = true
		}
	case asm.Copy:
		if ins.Source == from {
			ins.Source = to
			changed = true
		}
	case asm.JumpIfFalse:
		if ins.Condition == from {
			ins.Condition = to
			changed = true
		}
	case asm.Extern:
		// Argument cells are also written by the host; substituting a
		// different cell would redirect those writes. Never rewrite them.
	}
	return changed
}

// replaceValueEverywhere rewrites every reference to from, reads and
// writes alike. Only coalescing uses this; both cells must be interchangeable.
func replaceValueEverywhere(ins *asm.Instruction, from, to *asm.Value) bool {
	changed := replaceValueUses(ins, from, to)
	if ins.Kind == asm.Copy && ins.Target == from {
		ins.Target = to
		changed = true
	}
	return changed
}
