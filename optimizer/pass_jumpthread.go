package optimizer

import "github.com/embervm/ember/asm"

// JumpThreading redirects jumps whose destination immediately jumps
// onward, following chains of unconditional jumps and empty fall-through
// padding to the eventual landing point. Branch conditions are never
// touched, and a chain is never followed into or across an export-entry
// boundary: external callers enter there, and the marker structure must
// survive as-is.
type JumpThreading struct{}

func (p *JumpThreading) Name() string  { return "JumpThreading" }
func (p *JumpThreading) Priority() int { return 50 }

func (p *JumpThreading) CanRun(c *Context) bool {
	return len(c.Instructions()) > 0
}

func (p *JumpThreading) Run(c *Context) (bool, error) {
	if err := c.EnsureInstructionAddresses(); err != nil {
		return false, err
	}
	instructions := c.Instructions()
	position := make(map[*asm.Instruction]int, len(instructions))
	for i, ins := range instructions {
		position[ins] = i
	}

	changed := false
	for _, ins := range instructions {
		if !ins.IsJump() {
			continue
		}
		final := p.ultimateTarget(instructions, position, ins.JumpTarget)
		if final != nil && final != ins.JumpTarget {
			ins.JumpTarget = final
			c.Metrics().threaded(1)
			c.Metrics().Count(p.Name(), "threaded", 1)
			changed = true
		}
	}
	if changed {
		c.InvalidateAnalysis()
	}
	return changed, nil
}

// ultimateTarget follows start through nops and unconditional jumps until
// it reaches an instruction that does real work. A cycle, an export
// marker, or an exported landing point stops the chase at the last safe
// instruction.
func (p *JumpThreading) ultimateTarget(instructions []*asm.Instruction, position map[*asm.Instruction]int, start *asm.Instruction) *asm.Instruction {
	visited := make(map[*asm.Instruction]bool)
	current := start
	for current != nil && !visited[current] {
		visited[current] = true
		switch current.Kind {
		case asm.Nop:
			i, ok := position[current]
			if !ok || i+1 >= len(instructions) {
				return current
			}
			next := instructions[i+1]
			if next.Kind == asm.Export {
				return current
			}
			current = next
		case asm.Jump:
			if current.JumpTarget == nil {
				return current
			}
			if i, ok := position[current]; ok && i > 0 && instructions[i-1].Kind == asm.Export {
				// The chain reached an export entry; following its jump
				// would cross the boundary.
				return current
			}
			if i, ok := position[current.JumpTarget]; ok && i > 0 && instructions[i-1].Kind == asm.Export {
				// Threading onto an export entry would merge an internal
				// path with an external entry point; stop short.
				return current
			}
			current = current.JumpTarget
		default:
			return current
		}
	}
	return current
}
