package optimizer

import (
	"fmt"

	"github.com/emicklei/dot"

	"github.com/embervm/ember/asm"
)

// DOT renders the graph in Graphviz form for diagnostics. Blocks are
// labeled with their instruction range and listing; export entries are
// drawn double-circled.
func (g *ControlFlowGraph) DOT(name string, p *asm.Program) string {
	graph := dot.NewGraph(dot.Directed)
	graph.Attr("label", name)

	nodes := make(map[*BasicBlock]dot.Node, len(g.AllBlocks))
	for i, block := range g.AllBlocks {
		label := fmt.Sprintf("b%d [%d..%d]", i, block.StartIndex, block.EndIndex)
		for j := block.StartIndex; j <= block.EndIndex && j < len(p.Instructions); j++ {
			label += "\n" + p.Instructions[j].String()
		}
		node := graph.Node(fmt.Sprintf("b%d", i)).Attr("label", label).Attr("shape", "box")
		if block.IsExportEntry {
			node = node.Attr("peripheries", "2")
		}
		nodes[block] = node
	}
	for _, block := range g.AllBlocks {
		for _, succ := range block.Successors {
			graph.Edge(nodes[block], nodes[succ])
		}
	}
	return graph.String()
}
