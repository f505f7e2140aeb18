package optimizer

import (
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/embervm/ember/asm"
)

// useDefSets maps every value to the stream positions that read it and the
// positions that write it. Built eagerly over the whole stream, cached by
// the Context, dropped on any mutation.
type useDefSets struct {
	uses map[*asm.Value]mapset.Set[int]
	defs map[*asm.Value]mapset.Set[int]
}

// analyzeUseDefs classifies every instruction structurally by kind. Extern
// arguments count as both uses and defs: the host may read or write any
// argument cell, so nothing about them may be assumed dead or constant.
func analyzeUseDefs(instructions []*asm.Instruction) *useDefSets {
	s := &useDefSets{
		uses: make(map[*asm.Value]mapset.Set[int]),
		defs: make(map[*asm.Value]mapset.Set[int]),
	}
	for i, ins := range instructions {
		switch ins.Kind {
		case asm.Nop, asm.Pop, asm.Jump, asm.Export:
			// No value operands.
		case asm.Push:
			s.use(ins.Operand, i)
		case asm.Copy:
			s.use(ins.Source, i)
			s.def(ins.Target, i)
		case asm.JumpIfFalse:
			s.use(ins.Condition, i)
		case asm.JumpIndirect, asm.Return:
			s.use(ins.Operand, i)
		case asm.Extern:
			for _, a := range ins.Args {
				s.use(a, i)
				s.def(a, i)
			}
		}
	}
	return s
}

func (s *useDefSets) use(v *asm.Value, i int) {
	set, ok := s.uses[v]
	if !ok {
		set = mapset.NewThreadUnsafeSet[int]()
		s.uses[v] = set
	}
	set.Add(i)
}

func (s *useDefSets) def(v *asm.Value, i int) {
	set, ok := s.defs[v]
	if !ok {
		set = mapset.NewThreadUnsafeSet[int]()
		s.defs[v] = set
	}
	set.Add(i)
}
