package optimizer

import "testing"

func TestUseDefClassification(t *testing.T) {
	p := mustParse(t, `
		.param a
		.local b
		COPY a, b
		PUSH b
		JUMP_IF_FALSE a, end
		EXTERN "Host.Touch", b
	end:
		RET 0xFFFFFFFF
	`)
	ud := analyzeUseDefs(p.Instructions)

	a, _ := p.Values.Lookup("a")
	b, _ := p.Values.Lookup("b")

	wantSet(t, "uses(a)", ud.uses[a], 0, 2)
	if _, ok := ud.defs[a]; ok {
		t.Error("a is never written")
	}
	// b: defined by the copy, read by the push, read and written by the
	// extern (the host may do either with an argument cell).
	wantSet(t, "uses(b)", ud.uses[b], 1, 3)
	wantSet(t, "defs(b)", ud.defs[b], 0, 3)

	ret := p.Instructions[4].Operand
	wantSet(t, "uses(ret operand)", ud.uses[ret], 4)
}

func wantSet(t *testing.T, what string, got interface {
	Contains(...int) bool
	Cardinality() int
}, positions ...int) {
	t.Helper()
	if got == nil {
		t.Fatalf("%s: set missing", what)
	}
	if got.Cardinality() != len(positions) {
		t.Fatalf("%s: cardinality = %d, want %d", what, got.Cardinality(), len(positions))
	}
	for _, pos := range positions {
		if !got.Contains(pos) {
			t.Errorf("%s: missing position %d", what, pos)
		}
	}
}
