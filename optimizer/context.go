package optimizer

import (
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/embervm/ember/asm"
)

// Context owns the live instruction stream for the duration of one
// Optimize call. It lazily materializes the control-flow graph and the
// use/def sets, drops them on any mutation, and exposes the only mutation
// primitives passes are allowed to use. No pass may retain instruction
// positions or derived analyses across its own Run invocation.
type Context struct {
	program *asm.Program
	metrics *Metrics

	cfg            *ControlFlowGraph
	usedefs        *useDefSets
	addressesDirty bool
}

func NewContext(program *asm.Program, metrics *Metrics) *Context {
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Context{program: program, metrics: metrics, addressesDirty: true}
}

// Program returns the owned compiled unit.
func (c *Context) Program() *asm.Program { return c.program }

// Instructions returns the live stream. The slice is invalidated by
// RemoveInstruction.
func (c *Context) Instructions() []*asm.Instruction { return c.program.Instructions }

// Metrics returns the run's diagnostic counters.
func (c *Context) Metrics() *Metrics { return c.metrics }

// EnsureInstructionAddresses recomputes every instruction address and jump
// target reference from current stream order, if anything moved since the
// last computation.
func (c *Context) EnsureInstructionAddresses() error {
	if !c.addressesDirty {
		return nil
	}
	if err := c.program.RecalculateInstructionAddresses(); err != nil {
		return err
	}
	c.addressesDirty = false
	return nil
}

// RemoveInstruction deletes the instruction at index and invalidates every
// derived analysis. The caller is responsible for retargeting any jump
// that names the removed instruction before the next address computation.
func (c *Context) RemoveInstruction(index int) {
	instructions := c.program.Instructions
	c.program.Instructions = append(instructions[:index], instructions[index+1:]...)
	c.metrics.removed(1)
	c.addressesDirty = true
	c.InvalidateAnalysis()
}

// ReplaceInstruction substitutes the instruction at index in place. The
// replacement inherits the old instruction's address and every jump that
// named the old instruction is retargeted to the replacement. Addresses
// are marked dirty even when the widths match: the position index still
// maps the old instruction until the next recomputation, and the CFG
// builder resolves jump targets through that index.
func (c *Context) ReplaceInstruction(index int, replacement *asm.Instruction) {
	old := c.program.Instructions[index]
	replacement.Address = old.Address
	c.program.Instructions[index] = replacement
	for _, ins := range c.program.Instructions {
		if ins.JumpTarget == old {
			ins.JumpTarget = replacement
		}
	}
	c.addressesDirty = true
	c.metrics.replaced(1)
	c.InvalidateAnalysis()
}

// ValueUses returns the positions that read v. The set is shared with the
// cache; treat it as read-only.
func (c *Context) ValueUses(v *asm.Value) (mapset.Set[int], error) {
	ud, err := c.ensureUseDefs()
	if err != nil {
		return nil, err
	}
	if set, ok := ud.uses[v]; ok {
		return set, nil
	}
	return mapset.NewThreadUnsafeSet[int](), nil
}

// ValueDefs returns the positions that write v.
func (c *Context) ValueDefs(v *asm.Value) (mapset.Set[int], error) {
	ud, err := c.ensureUseDefs()
	if err != nil {
		return nil, err
	}
	if set, ok := ud.defs[v]; ok {
		return set, nil
	}
	return mapset.NewThreadUnsafeSet[int](), nil
}

// CFG returns the control-flow graph for the current stream, building it
// on first access after a mutation.
func (c *Context) CFG() (*ControlFlowGraph, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	if err := c.EnsureInstructionAddresses(); err != nil {
		return nil, err
	}
	cfg, err := BuildCFG(c.program)
	if err != nil {
		return nil, err
	}
	c.cfg = cfg
	return cfg, nil
}

// InvalidateAnalysis drops the cached graph and use/def sets. Passes that
// batch several related edits call it once afterwards instead of paying a
// recompute per edit.
func (c *Context) InvalidateAnalysis() {
	c.cfg = nil
	c.usedefs = nil
}

func (c *Context) ensureUseDefs() (*useDefSets, error) {
	if c.usedefs != nil {
		return c.usedefs, nil
	}
	if err := c.EnsureInstructionAddresses(); err != nil {
		return nil, err
	}
	c.usedefs = analyzeUseDefs(c.program.Instructions)
	return c.usedefs, nil
}
