package optimizer

import (
	"testing"

	"github.com/holiman/uint256"

	"github.com/embervm/ember/asm"
)

func newTestContext(t *testing.T, src string) *Context {
	t.Helper()
	return NewContext(mustParse(t, src), NewMetrics())
}

func TestContextRemoveInstruction(t *testing.T) {
	c := newTestContext(t, `
		.local x
		NOP
		COPY 1, x
		RET 0xFFFFFFFF
	`)
	if _, err := c.CFG(); err != nil {
		t.Fatal(err)
	}
	c.RemoveInstruction(0)

	if len(c.Instructions()) != 2 {
		t.Fatalf("got %d instructions, want 2", len(c.Instructions()))
	}
	if c.Instructions()[0].Kind != asm.Copy {
		t.Error("wrong instruction removed")
	}
	if c.Metrics().InstructionsRemoved != 1 {
		t.Errorf("removed metric = %d, want 1", c.Metrics().InstructionsRemoved)
	}
	if c.cfg != nil || c.usedefs != nil {
		t.Error("derived analyses survived a removal")
	}
	if !c.addressesDirty {
		t.Error("addresses not marked dirty")
	}
}

func TestContextReplaceInstruction(t *testing.T) {
	c := newTestContext(t, `
		.local x
	top:
		COPY 1, x
		JUMP top
	`)
	if err := c.EnsureInstructionAddresses(); err != nil {
		t.Fatal(err)
	}
	old := c.Instructions()[0]
	oldAddr := old.Address

	x, _ := c.Program().Values.Lookup("x")
	replacement := asm.NewCopy(x, x)
	c.ReplaceInstruction(0, replacement)

	if replacement.Address != oldAddr {
		t.Errorf("replacement address = %d, want inherited %d", replacement.Address, oldAddr)
	}
	// The loop jump named the old instruction; it must follow the slot.
	if c.Instructions()[1].JumpTarget != replacement {
		t.Error("jump not retargeted to the replacement")
	}
	if c.Metrics().InstructionsReplaced != 1 {
		t.Errorf("replaced metric = %d, want 1", c.Metrics().InstructionsReplaced)
	}
	if err := c.EnsureInstructionAddresses(); err != nil {
		t.Fatalf("addresses inconsistent after replace: %v", err)
	}
}

// Replacing a jump-targeted instruction with one of equal width must
// still leave CFG queries working: the position index only learns about
// the replacement through the next address recomputation.
func TestContextCFGAfterSameWidthReplace(t *testing.T) {
	c := newTestContext(t, `
		.local x
	top:
		COPY 1, x
		JUMP_IF_FALSE x, top
		RET 0xFFFFFFFF
	`)
	if _, err := c.CFG(); err != nil {
		t.Fatal(err)
	}

	old := c.Instructions()[0]
	two := c.Program().Values.Constant(uint256.NewInt(2))
	x, _ := c.Program().Values.Lookup("x")
	replacement := asm.NewCopy(two, x)
	if replacement.Width() != old.Width() {
		t.Fatalf("fixture no longer width-preserving: %d vs %d", replacement.Width(), old.Width())
	}
	c.ReplaceInstruction(0, replacement)

	g, err := c.CFG()
	if err != nil {
		t.Fatalf("CFG after width-preserving replace: %v", err)
	}
	if len(g.AllBlocks) == 0 {
		t.Fatal("empty graph for a non-empty stream")
	}
	if c.Instructions()[1].JumpTarget != replacement {
		t.Error("loop jump not following the replaced slot")
	}
}

func TestContextValueUsesUnknownValue(t *testing.T) {
	c := newTestContext(t, "NOP")
	ghost := &asm.Value{Name: "ghost", Kind: asm.Temp}
	uses, err := c.ValueUses(ghost)
	if err != nil {
		t.Fatal(err)
	}
	if uses.Cardinality() != 0 {
		t.Error("unknown value has uses")
	}
	defs, err := c.ValueDefs(ghost)
	if err != nil {
		t.Fatal(err)
	}
	if defs.Cardinality() != 0 {
		t.Error("unknown value has defs")
	}
}

// Address consistency: after any mutation sequence followed by
// EnsureInstructionAddresses, every jump's resolved target address equals
// the actual address of the instruction it names.
func TestContextAddressConsistencyAfterMutations(t *testing.T) {
	c := newTestContext(t, `
		.local x
		NOP
		NOP
	target:
		COPY 1, x
		JUMP target
		RET 0xFFFFFFFF
	`)
	if err := c.EnsureInstructionAddresses(); err != nil {
		t.Fatal(err)
	}
	c.RemoveInstruction(0)
	c.RemoveInstruction(0)
	if err := c.EnsureInstructionAddresses(); err != nil {
		t.Fatal(err)
	}
	for _, ins := range c.Instructions() {
		if ins.JumpTarget != nil && ins.TargetAddress != ins.JumpTarget.Address {
			t.Errorf("jump at 0x%08X resolves to 0x%08X, target really at 0x%08X",
				ins.Address, ins.TargetAddress, ins.JumpTarget.Address)
		}
	}
	if c.Instructions()[0].Address != 0 {
		t.Error("stream no longer starts at address zero")
	}
}

func TestContextCFGCachedUntilInvalidated(t *testing.T) {
	c := newTestContext(t, "NOP\nRET 0xFFFFFFFF")
	g1, err := c.CFG()
	if err != nil {
		t.Fatal(err)
	}
	g2, err := c.CFG()
	if err != nil {
		t.Fatal(err)
	}
	if g1 != g2 {
		t.Error("CFG rebuilt without a mutation")
	}
	c.InvalidateAnalysis()
	g3, err := c.CFG()
	if err != nil {
		t.Fatal(err)
	}
	if g3 == g1 {
		t.Error("CFG not rebuilt after invalidation")
	}
}
