package optimizer

import (
	"sort"

	"github.com/bits-and-blooms/bitset"

	"github.com/embervm/ember/asm"
)

// ValueCoalescence merges scratch cells whose lifetimes never overlap into
// one storage slot, shrinking the number of distinct cells the compiled
// unit needs at runtime.
//
// Only block-local scratch cells participate: a Temp whose every read and
// write sits inside a single basic block and never flows through a host
// call. For those, the def-to-last-use span is an exact lifetime even
// under loops, because each iteration rewrites the cell before reading it.
// Cells alive across block boundaries would need a liveness fixpoint to
// merge soundly and are left alone.
type ValueCoalescence struct{}

func (p *ValueCoalescence) Name() string  { return "ValueCoalescence" }
func (p *ValueCoalescence) Priority() int { return 70 }

func (p *ValueCoalescence) CanRun(c *Context) bool {
	return len(c.Instructions()) > 1
}

type lifetime struct {
	value *asm.Value
	span  *bitset.BitSet
	first int
}

func (p *ValueCoalescence) Run(c *Context) (bool, error) {
	if err := c.EnsureInstructionAddresses(); err != nil {
		return false, err
	}
	cfg, err := c.CFG()
	if err != nil {
		return false, err
	}
	instructions := c.Instructions()

	lifetimes, err := p.collectLifetimes(c, cfg)
	if err != nil {
		return false, err
	}
	if len(lifetimes) < 2 {
		return false, nil
	}
	sort.Slice(lifetimes, func(i, j int) bool { return lifetimes[i].first < lifetimes[j].first })

	// Greedy interval packing: fold each cell into the first accepted
	// representative it does not interfere with.
	var reps []*lifetime
	merged := int64(0)
	for _, lt := range lifetimes {
		var home *lifetime
		for _, rep := range reps {
			if rep.span.IntersectionCardinality(lt.span) == 0 {
				home = rep
				break
			}
		}
		if home == nil {
			reps = append(reps, lt)
			continue
		}
		for _, ins := range instructions {
			replaceValueEverywhere(ins, lt.value, home.value)
		}
		home.span.InPlaceUnion(lt.span)
		merged++
	}
	if merged == 0 {
		return false, nil
	}
	c.Metrics().coalesced(merged)
	c.Metrics().Count(p.Name(), "merged", merged)
	c.InvalidateAnalysis()
	return true, nil
}

// collectLifetimes returns one position-span bitmap per eligible cell.
func (p *ValueCoalescence) collectLifetimes(c *Context, cfg *ControlFlowGraph) ([]*lifetime, error) {
	n := uint(len(c.Instructions()))
	instructions := c.Instructions()
	var out []*lifetime

	for _, v := range c.Program().Values.Values() {
		if v.Kind != asm.Temp {
			continue
		}
		uses, err := c.ValueUses(v)
		if err != nil {
			return nil, err
		}
		defs, err := c.ValueDefs(v)
		if err != nil {
			return nil, err
		}
		if defs.Cardinality() == 0 {
			continue
		}
		positions := append(uses.ToSlice(), defs.ToSlice()...)
		first, last := positions[0], positions[0]
		home := cfg.BlockAt(positions[0])
		eligible := home != nil
		for _, pos := range positions {
			if cfg.BlockAt(pos) != home || instructions[pos].Kind == asm.Extern {
				eligible = false
				break
			}
			if pos < first {
				first = pos
			}
			if pos > last {
				last = pos
			}
		}
		// A lifetime that starts with a read carries content into the
		// span from a previous iteration; its real extent is unknown.
		if !eligible || !defs.Contains(first) {
			continue
		}
		span := bitset.New(n)
		for i := first; i <= last; i++ {
			span.Set(uint(i))
		}
		out = append(out, &lifetime{value: v, span: span, first: first})
	}
	return out, nil
}
