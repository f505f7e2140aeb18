package optimizer

import "github.com/embervm/ember/asm"

// PushPopElimination removes push/pop pairs where a value lands on the
// operand stack and is discarded by the very next instruction. Reading the
// pushed cell has no side effect, so the pair is pure stack traffic.
type PushPopElimination struct{}

func (p *PushPopElimination) Name() string  { return "PushPopElimination" }
func (p *PushPopElimination) Priority() int { return 10 }

func (p *PushPopElimination) CanRun(c *Context) bool {
	return len(c.Instructions()) > 1
}

func (p *PushPopElimination) Run(c *Context) (bool, error) {
	if err := c.EnsureInstructionAddresses(); err != nil {
		return false, err
	}
	changed := false
	for i := 0; i+1 < len(c.Instructions()); i++ {
		instructions := c.Instructions()
		push, pop := instructions[i], instructions[i+1]
		if push.Kind != asm.Push || pop.Kind != asm.Pop {
			continue
		}
		targets := jumpTargetSet(instructions)
		// A pop that is itself a jump target may be reached without the
		// push; the pair is not local then.
		if targets[pop] {
			continue
		}
		if targets[push] {
			if i+2 >= len(instructions) {
				continue
			}
			retargetJumps(instructions, push, instructions[i+2])
		}
		c.RemoveInstruction(i + 1)
		c.RemoveInstruction(i)
		c.Metrics().Count(p.Name(), "pairs", 1)
		changed = true
		// A new pair may have formed where the removed one sat.
		i -= 2
		if i < -1 {
			i = -1
		}
	}
	return changed, nil
}
