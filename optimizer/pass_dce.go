package optimizer

import (
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/embervm/ember/asm"
)

// DeadCodeElimination removes whole blocks no path reaches and stores no
// instruction reads. Reachability starts from the entry block and every
// export-entry block: exported blocks are invoked from outside the stream
// and survive even when nothing internal reaches them. Export markers
// themselves are never deleted, so the entry structure is preserved
// verbatim.
type DeadCodeElimination struct{}

func (p *DeadCodeElimination) Name() string  { return "DeadCodeElimination" }
func (p *DeadCodeElimination) Priority() int { return 60 }

func (p *DeadCodeElimination) CanRun(c *Context) bool {
	return len(c.Instructions()) > 0
}

func (p *DeadCodeElimination) Run(c *Context) (bool, error) {
	changed, err := p.removeUnreachableBlocks(c)
	if err != nil {
		return changed, err
	}
	deadStores, err := p.removeDeadStores(c)
	if err != nil {
		return changed || deadStores, err
	}
	return changed || deadStores, nil
}

func (p *DeadCodeElimination) removeUnreachableBlocks(c *Context) (bool, error) {
	cfg, err := c.CFG()
	if err != nil {
		return false, err
	}
	if len(cfg.AllBlocks) == 0 {
		return false, nil
	}

	reachable := mapset.NewThreadUnsafeSet[*BasicBlock]()
	worklist := []*BasicBlock{cfg.EntryBlock}
	worklist = append(worklist, cfg.ExportBlocks...)
	for len(worklist) > 0 {
		block := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		if block == nil || !reachable.Add(block) {
			continue
		}
		worklist = append(worklist, block.Successors...)
	}

	instructions := c.Instructions()
	var doomed []int
	blocksRemoved := int64(0)
	for _, block := range cfg.AllBlocks {
		if reachable.Contains(block) {
			continue
		}
		contributed := false
		for i := block.StartIndex; i <= block.EndIndex; i++ {
			if instructions[i].Kind == asm.Export {
				continue
			}
			doomed = append(doomed, i)
			contributed = true
		}
		if contributed {
			blocksRemoved++
		}
	}
	if len(doomed) == 0 {
		return false, nil
	}
	// Descending order keeps the remaining positions valid while removing.
	for i := len(doomed) - 1; i >= 0; i-- {
		c.RemoveInstruction(doomed[i])
	}
	c.Metrics().deadBlocks(blocksRemoved)
	c.Metrics().Count(p.Name(), "blocks", blocksRemoved)
	c.InvalidateAnalysis()
	return true, nil
}

// removeDeadStores deletes copies whose written scratch cell has an empty
// use set anywhere in the stream.
func (p *DeadCodeElimination) removeDeadStores(c *Context) (bool, error) {
	changed := false
	for i := 0; i < len(c.Instructions()); i++ {
		ins := c.Instructions()[i]
		if ins.Kind != asm.Copy || ins.Target.Kind != asm.Temp {
			continue
		}
		uses, err := c.ValueUses(ins.Target)
		if err != nil {
			return changed, err
		}
		if uses.Cardinality() > 0 {
			continue
		}
		if !removeWithRetarget(c, i) {
			continue
		}
		c.Metrics().Count(p.Name(), "stores", 1)
		changed = true
		i--
	}
	return changed, nil
}
