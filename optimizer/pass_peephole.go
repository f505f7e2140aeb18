package optimizer

import "github.com/embervm/ember/asm"

// Peephole matches small fixed-size instruction windows against known
// shorter equivalents and rewrites them in place:
//
//   - a direct jump to the instruction right after it disappears;
//   - a conditional jump to the instruction right after it disappears
//     (the condition read has no side effect);
//   - a nop disappears;
//   - a copy through a scratch cell that exists only for that handoff
//     collapses into a single copy.
type Peephole struct{}

func (p *Peephole) Name() string  { return "PeepholeOptimization" }
func (p *Peephole) Priority() int { return 30 }

func (p *Peephole) CanRun(c *Context) bool {
	return len(c.Instructions()) > 0
}

func (p *Peephole) Run(c *Context) (bool, error) {
	if err := c.EnsureInstructionAddresses(); err != nil {
		return false, err
	}
	changed := false
	for i := 0; i < len(c.Instructions()); i++ {
		instructions := c.Instructions()
		ins := instructions[i]

		switch {
		case ins.Kind == asm.Nop,
			ins.IsJump() && i+1 < len(instructions) && ins.JumpTarget == instructions[i+1]:
			if !removeWithRetarget(c, i) {
				continue
			}
			c.Metrics().Count(p.Name(), "window", 1)
			changed = true
			i--

		case ins.Kind == asm.Copy && i+1 < len(instructions):
			collapsed, err := p.collapseCopyChain(c, i)
			if err != nil {
				return changed, err
			}
			if collapsed {
				c.Metrics().Count(p.Name(), "window", 1)
				changed = true
				i--
			}
		}
	}
	return changed, nil
}

// collapseCopyChain rewrites "COPY a -> t; COPY t -> b" into "COPY a -> b"
// when t is a scratch cell whose whole life is this handoff.
func (p *Peephole) collapseCopyChain(c *Context, i int) (bool, error) {
	instructions := c.Instructions()
	first, second := instructions[i], instructions[i+1]
	if second.Kind != asm.Copy || second.Source != first.Target {
		return false, nil
	}
	t := first.Target
	if t.Kind != asm.Temp || t == second.Target {
		return false, nil
	}
	uses, err := c.ValueUses(t)
	if err != nil {
		return false, err
	}
	defs, err := c.ValueDefs(t)
	if err != nil {
		return false, err
	}
	if uses.Cardinality() != 1 || defs.Cardinality() != 1 {
		return false, nil
	}
	// Control entering at the second copy would read t before its only
	// write; the window is not local then.
	if jumpTargetSet(instructions)[second] {
		return false, nil
	}
	c.ReplaceInstruction(i+1, asm.NewCopy(first.Source, second.Target))
	if !removeWithRetarget(c, i) {
		return true, nil // replacement alone already changed the stream
	}
	return true, nil
}
