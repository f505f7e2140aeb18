package optimizer

import "github.com/embervm/ember/asm"

// RedundantCopyElimination removes copies that cannot be observed: a copy
// onto itself, a dead store into a scratch cell nothing ever reads, and
// the second of two adjacent identical copies.
type RedundantCopyElimination struct{}

func (p *RedundantCopyElimination) Name() string  { return "RedundantCopyElimination" }
func (p *RedundantCopyElimination) Priority() int { return 20 }

func (p *RedundantCopyElimination) CanRun(c *Context) bool {
	return len(c.Instructions()) > 0
}

func (p *RedundantCopyElimination) Run(c *Context) (bool, error) {
	changed := false
	for i := 0; i < len(c.Instructions()); i++ {
		instructions := c.Instructions()
		ins := instructions[i]
		if ins.Kind != asm.Copy {
			continue
		}
		remove := false
		switch {
		case ins.Source == ins.Target:
			remove = true
		case i > 0 && duplicatesPrevious(instructions[i-1], ins) && !jumpTargetSet(instructions)[ins]:
			// Adjacency only holds when control cannot enter at the
			// duplicate directly.
			remove = true
		default:
			dead, err := p.isDeadStore(c, ins)
			if err != nil {
				return changed, err
			}
			remove = dead
		}
		if !remove {
			continue
		}
		if !removeWithRetarget(c, i) {
			continue
		}
		c.Metrics().Count(p.Name(), "copies", 1)
		changed = true
		i--
	}
	return changed, nil
}

// duplicatesPrevious reports whether ins re-executes the copy immediately
// before it. The repeat writes the same content into the same cell.
func duplicatesPrevious(prev, ins *asm.Instruction) bool {
	return prev.Kind == asm.Copy && prev.Source == ins.Source && prev.Target == ins.Target
}

// isDeadStore reports whether ins writes a scratch cell whose only
// remaining defs include this one and that has no reads at all. Named
// cells stay: the host may inspect them after execution.
func (p *RedundantCopyElimination) isDeadStore(c *Context, ins *asm.Instruction) (bool, error) {
	if ins.Target.Kind != asm.Temp {
		return false, nil
	}
	uses, err := c.ValueUses(ins.Target)
	if err != nil {
		return false, err
	}
	return uses.Cardinality() == 0, nil
}
