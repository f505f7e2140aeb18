package optimizer

import (
	"github.com/embervm/ember/asm"
)

// CopyPropagation substitutes reads of a single-definition scratch cell
// with the cell it was copied from, leaving the now-unread copy for dead
// code elimination to collect.
//
// Substitution happens only when it is provably sound on every path:
// either the source cell is never written at all (a constant, a parameter,
// or a cell the program only reads), or the copy and every read of the
// scratch cell sit inside one basic block with no intervening write to the
// source. Anything cleverer needs real dataflow and buys little on the
// streams the front end emits.
type CopyPropagation struct{}

func (p *CopyPropagation) Name() string  { return "CopyPropagation" }
func (p *CopyPropagation) Priority() int { return 40 }

func (p *CopyPropagation) CanRun(c *Context) bool {
	return len(c.Instructions()) > 0
}

func (p *CopyPropagation) Run(c *Context) (bool, error) {
	if err := c.EnsureInstructionAddresses(); err != nil {
		return false, err
	}
	changed := false
	for {
		propagated, err := p.propagateOne(c)
		if err != nil {
			return changed, err
		}
		if !propagated {
			return changed, nil
		}
		changed = true
	}
}

func (p *CopyPropagation) propagateOne(c *Context) (bool, error) {
	instructions := c.Instructions()
	for defPos, ins := range instructions {
		if ins.Kind != asm.Copy || ins.Target.Kind != asm.Temp {
			continue
		}
		v, src := ins.Target, ins.Source
		if v == src {
			continue
		}
		defs, err := c.ValueDefs(v)
		if err != nil {
			return false, err
		}
		if defs.Cardinality() != 1 || !defs.Contains(defPos) {
			continue
		}
		uses, err := c.ValueUses(v)
		if err != nil {
			return false, err
		}
		if uses.Cardinality() == 0 {
			continue
		}
		ok, err := p.soundToSubstitute(c, defPos, uses.ToSlice(), src)
		if err != nil {
			return false, err
		}
		if !ok {
			continue
		}
		rewrote := false
		for _, usePos := range uses.ToSlice() {
			if replaceValueUses(instructions[usePos], v, src) {
				rewrote = true
			}
		}
		if !rewrote {
			continue
		}
		c.Metrics().Count(p.Name(), "propagated", 1)
		c.InvalidateAnalysis()
		return true, nil
	}
	return false, nil
}

// soundToSubstitute checks the two arms described on the pass type.
func (p *CopyPropagation) soundToSubstitute(c *Context, defPos int, usePositions []int, src *asm.Value) (bool, error) {
	srcDefs, err := c.ValueDefs(src)
	if err != nil {
		return false, err
	}
	cfg, err := c.CFG()
	if err != nil {
		return false, err
	}
	if srcDefs.Cardinality() == 0 {
		// The source content never changes, so the substituted read is
		// right wherever the copy already executed. The copy must
		// dominate every use: a use reachable around the copy would
		// otherwise stop reading the unwritten (zero) cell.
		return dominatesUses(cfg, defPos, usePositions), nil
	}
	home := cfg.BlockAt(defPos)
	if home == nil {
		return false, nil
	}
	last := defPos
	for _, u := range usePositions {
		if cfg.BlockAt(u) != home || u < defPos {
			return false, nil
		}
		if u > last {
			last = u
		}
	}
	for _, d := range srcDefs.ToSlice() {
		if d > defPos && d <= last {
			return false, nil
		}
	}
	return true, nil
}

// dominatesUses reports whether the definition at defPos executes before
// every use on every path from any entry.
func dominatesUses(cfg *ControlFlowGraph, defPos int, usePositions []int) bool {
	home := cfg.BlockAt(defPos)
	if home == nil {
		return false
	}
	dom := cfg.Dominators()
	for _, u := range usePositions {
		block := cfg.BlockAt(u)
		if block == nil {
			return false
		}
		if block == home {
			if u < defPos {
				return false
			}
			continue
		}
		if !dom[block].Contains(home) {
			return false
		}
	}
	return true
}
