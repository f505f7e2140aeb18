package optimizer

import (
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"

	"github.com/embervm/ember/asm"
)

// BasicBlock is a maximal straight-line run of instructions: one entry at
// StartIndex, one exit at EndIndex. Indices are inclusive positions into
// the instruction stream the graph was built from.
type BasicBlock struct {
	StartIndex int
	EndIndex   int

	Successors   []*BasicBlock
	Predecessors []*BasicBlock

	// IsExportEntry marks a block that external callers enter directly.
	// Such a block must survive optimization even when unreachable from
	// the entry block.
	IsExportEntry bool
}

// Len returns the number of instructions in the block.
func (b *BasicBlock) Len() int { return b.EndIndex - b.StartIndex + 1 }

// ControlFlowGraph is the block partition of one instruction stream plus
// its successor and predecessor edges. Blocks partition the stream
// contiguously and completely; edges are symmetric.
type ControlFlowGraph struct {
	EntryBlock   *BasicBlock
	AllBlocks    []*BasicBlock
	ExportBlocks []*BasicBlock

	blockOf []*BasicBlock
}

// BlockAt returns the block containing the instruction at position i.
func (g *ControlFlowGraph) BlockAt(i int) *BasicBlock {
	if i < 0 || i >= len(g.blockOf) {
		return nil
	}
	return g.blockOf[i]
}

// BuildCFG partitions the instruction stream into basic blocks and wires
// the edges. Addresses and the position index must be current.
//
// Leaders are position 0, every jump target, the instruction after any
// direct jump, and the instruction after an export marker. A jump target
// that does not resolve to a stream position means the input is malformed
// and is reported as an error rather than tolerated.
func BuildCFG(p *asm.Program) (*ControlFlowGraph, error) {
	instructions := p.Instructions
	if len(instructions) == 0 {
		return &ControlFlowGraph{}, nil
	}

	leaders := map[int]bool{0: true}
	for i, ins := range instructions {
		if ins.IsJump() {
			target, ok := p.IndexOf(ins.JumpTarget)
			if !ok {
				return nil, errors.Wrapf(asm.ErrUnresolvedTarget, "building CFG at position %d", i)
			}
			leaders[target] = true
		}
		// Control re-enters at the instruction after any jump or export
		// marker, and after the indirect terminators.
		if ins.IsJump() || ins.IsTerminator() || ins.Kind == asm.Export {
			if i+1 < len(instructions) {
				leaders[i+1] = true
			}
		}
	}

	starts := make([]int, 0, len(leaders))
	for i := range leaders {
		starts = append(starts, i)
	}
	sort.Ints(starts)

	g := &ControlFlowGraph{blockOf: make([]*BasicBlock, len(instructions))}
	for bi, start := range starts {
		end := len(instructions) - 1
		if bi+1 < len(starts) {
			end = starts[bi+1] - 1
		}
		block := &BasicBlock{StartIndex: start, EndIndex: end}
		if start > 0 && instructions[start-1].Kind == asm.Export {
			block.IsExportEntry = true
		}
		for i := start; i <= end; i++ {
			g.blockOf[i] = block
		}
		g.AllBlocks = append(g.AllBlocks, block)
		if block.IsExportEntry {
			g.ExportBlocks = append(g.ExportBlocks, block)
		}
	}
	g.EntryBlock = g.AllBlocks[0]

	for bi, block := range g.AllBlocks {
		last := instructions[block.EndIndex]
		switch {
		case last.Kind == asm.Return:
			// No successors.
		case last.Kind == asm.Jump:
			target, _ := p.IndexOf(last.JumpTarget)
			link(block, g.blockOf[target])
		case last.Kind == asm.JumpIfFalse:
			// Taken edge first, then fall-through.
			target, _ := p.IndexOf(last.JumpTarget)
			link(block, g.blockOf[target])
			if bi+1 < len(g.AllBlocks) {
				link(block, g.AllBlocks[bi+1])
			}
		default:
			if bi+1 < len(g.AllBlocks) {
				link(block, g.AllBlocks[bi+1])
			}
		}
	}
	return g, nil
}

func link(from, to *BasicBlock) {
	from.Successors = append(from.Successors, to)
	to.Predecessors = append(to.Predecessors, from)
}

// Dominators returns, per block, the set of blocks every path from a root
// to it must pass through. Roots are the entry block and every export
// entry, since external callers start execution there too. Computed with
// the iterative intersection fixpoint; blocks no root reaches keep the
// full set.
func (g *ControlFlowGraph) Dominators() map[*BasicBlock]mapset.Set[*BasicBlock] {
	roots := mapset.NewThreadUnsafeSet[*BasicBlock]()
	if g.EntryBlock != nil {
		roots.Add(g.EntryBlock)
	}
	for _, block := range g.ExportBlocks {
		roots.Add(block)
	}

	all := mapset.NewThreadUnsafeSet[*BasicBlock]()
	for _, block := range g.AllBlocks {
		all.Add(block)
	}

	dom := make(map[*BasicBlock]mapset.Set[*BasicBlock], len(g.AllBlocks))
	for _, block := range g.AllBlocks {
		if roots.Contains(block) {
			dom[block] = mapset.NewThreadUnsafeSet(block)
		} else {
			dom[block] = all.Clone()
		}
	}

	for changed := true; changed; {
		changed = false
		for _, block := range g.AllBlocks {
			if roots.Contains(block) {
				continue
			}
			next := all.Clone()
			for _, pred := range block.Predecessors {
				next = next.Intersect(dom[pred])
			}
			next.Add(block)
			if !next.Equal(dom[block]) {
				dom[block] = next
				changed = true
			}
		}
	}
	return dom
}
