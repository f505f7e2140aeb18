package optimizer

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/embervm/ember/asm"
	"github.com/embervm/ember/interp"
)

func TestOptimizerPassOrder(t *testing.T) {
	o := New(mustParse(t, "NOP"), &asm.Options{})
	passes := o.Passes()
	if len(passes) != 7 {
		t.Fatalf("got %d passes, want 7", len(passes))
	}
	for i := 1; i < len(passes); i++ {
		if passes[i-1].Priority() > passes[i].Priority() {
			t.Errorf("pass %s (priority %d) runs after %s (priority %d)",
				passes[i-1].Name(), passes[i-1].Priority(), passes[i].Name(), passes[i].Priority())
		}
	}
}

// Scenario: a disabled pass is filtered at construction, never invoked,
// and its metrics stay at zero.
func TestOptimizerRespectsDisabledPasses(t *testing.T) {
	p := mustParse(t, `
		.param cond
		JUMP_IF_FALSE cond, l1
		JUMP l2
	l1:
		JUMP l2
	l2:
		RET 0xFFFFFFFF
	`)
	o := New(p, &asm.Options{DisabledPasses: []string{"JumpThreading"}})
	for _, pass := range o.Passes() {
		if pass.Name() == "JumpThreading" {
			t.Fatal("disabled pass still enabled")
		}
	}
	if err := o.Optimize(); err != nil {
		t.Fatal(err)
	}
	if o.Metrics().JumpsThreaded != 0 {
		t.Errorf("threaded metric = %d, want 0", o.Metrics().JumpsThreaded)
	}
	if o.Metrics().PassCount("JumpThreading", "threaded") != 0 {
		t.Error("per-pass metric bumped for a disabled pass")
	}
}

func TestOptimizerIdempotence(t *testing.T) {
	p := mustParse(t, `
		.param n
		.local out
		.export _run
	_run:
		COPY n, t
		PUSH t
		POP
		COPY t, out
		JUMP_IF_FALSE out, done
		COPY 1, dead
	done:
		RET 0xFFFFFFFF
	`)
	if _, err := Optimize(p, &asm.Options{}); err != nil {
		t.Fatal(err)
	}

	again, err := Optimize(p, &asm.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if again.InstructionsRemoved != 0 || again.InstructionsReplaced != 0 ||
		again.JumpsThreaded != 0 || again.DeadBlocksRemoved != 0 || again.ValuesCoalesced != 0 {
		t.Errorf("second run still mutated the stream: %s", again)
	}
}

type adversarialPass struct{ runs int }

func (p *adversarialPass) Name() string         { return "Adversary" }
func (p *adversarialPass) Priority() int        { return 1 }
func (p *adversarialPass) CanRun(*Context) bool { return true }
func (p *adversarialPass) Run(*Context) (bool, error) {
	p.runs++
	return true, nil
}

// A pass that always reports a change must not loop forever: optimization
// stops after exactly the configured sweep cap.
func TestOptimizerBoundedTermination(t *testing.T) {
	p := mustParse(t, "NOP\nRET 0xFFFFFFFF")
	o := New(p, &asm.Options{MaxSweeps: 4})
	adversary := &adversarialPass{}
	o.passes = []Pass{adversary}
	if err := o.Optimize(); err != nil {
		t.Fatal(err)
	}
	if adversary.runs != 4 {
		t.Errorf("adversarial pass ran %d times, want 4", adversary.runs)
	}
}

type explodingPass struct{ runs int }

func (p *explodingPass) Name() string         { return "Exploding" }
func (p *explodingPass) Priority() int        { return 1 }
func (p *explodingPass) CanRun(*Context) bool { return true }
func (p *explodingPass) Run(*Context) (bool, error) {
	p.runs++
	return false, errors.New("kaboom")
}

// Scenario: a pass that always fails is contained. Optimization finishes,
// other passes still run, the stream stays valid, and PassesRun counts
// only successful invocations.
func TestOptimizerFaultIsolation(t *testing.T) {
	p := mustParse(t, `
		.local x
		NOP
	top:
		COPY 1, x
		JUMP_IF_FALSE x, top
		RET 0xFFFFFFFF
	`)
	o := New(p, &asm.Options{})
	exploding := &explodingPass{}
	o.passes = append([]Pass{exploding}, o.passes...)

	if err := o.Optimize(); err != nil {
		t.Fatalf("pass failure escaped the orchestrator: %v", err)
	}
	if exploding.runs == 0 {
		t.Fatal("failing pass never invoked")
	}
	if exploding.runs < 2 {
		t.Error("failing pass not retried on later sweeps")
	}
	if o.Metrics().PassesRun == 0 {
		t.Error("other passes did not run")
	}
	// Every jump still resolves.
	if err := p.RecalculateInstructionAddresses(); err != nil {
		t.Errorf("stream invalid after contained failure: %v", err)
	}
	for _, ins := range p.Instructions {
		if ins.JumpTarget != nil && ins.TargetAddress != ins.JumpTarget.Address {
			t.Error("jump target address stale")
		}
	}
}

func TestOptimizerMalformedInput(t *testing.T) {
	values := asm.NewValueTable()
	p := asm.NewProgram(values, asm.NewJump(asm.NewNop()))
	if err := New(p, &asm.Options{}).Optimize(); !errors.Is(err, asm.ErrUnresolvedTarget) {
		t.Fatalf("err = %v, want ErrUnresolvedTarget", err)
	}
}

// equivalenceCase is one program of the corpus: locals are compared cell
// by cell after running original and optimized streams on the same host.
type equivalenceCase struct {
	name   string
	src    string
	entry  string
	params map[string]uint64
}

func TestOptimizerSemanticEquivalence(t *testing.T) {
	cases := []equivalenceCase{
		{
			name: "straight-line arithmetic",
			src: `
				.param a
				.param b
				.local sum
				.export _run
			_run:
				COPY a, t1
				COPY b, t2
				EXTERN "Math.Add", t1, t2, t3
				COPY t3, sum
				RET 0xFFFFFFFF
			`,
			entry:  "_run",
			params: map[string]uint64{"a": 5, "b": 3},
		},
		{
			name: "conditional branch",
			src: `
				.param cond
				.local out
				.export _run
			_run:
				JUMP_IF_FALSE cond, low
				COPY 100, out
				JUMP done
			low:
				COPY 200, out
			done:
				EXTERN "Debug.Log", out
				RET 0xFFFFFFFF
			`,
			entry:  "_run",
			params: map[string]uint64{"cond": 0},
		},
		{
			name: "counting loop",
			src: `
				.param n
				.local acc
				.export _run
			_run:
				COPY 0, acc
				COPY n, i
			loop:
				JUMP_IF_FALSE i, done
				EXTERN "Math.Add", acc, one, acc2
				COPY acc2, acc
				EXTERN "Math.Sub", i, one, i2
				COPY i2, i
				JUMP loop
			done:
				RET 0xFFFFFFFF
			`,
			entry:  "_run",
			params: map[string]uint64{"n": 4, "one": 1},
		},
		{
			name: "trampolines and dead tail",
			src: `
				.param cond
				.local out
				.export _run
			_run:
				JUMP_IF_FALSE cond, l1
				JUMP l2
			l1:
				JUMP l2
			l2:
				COPY 7, out
				EXTERN "Debug.Log", out
				RET 0xFFFFFFFF
				COPY 9, out
				PUSH out
				POP
			`,
			entry:  "_run",
			params: map[string]uint64{"cond": 1},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			original := mustParse(t, tc.src)
			optimized := original.Clone()
			if _, err := Optimize(optimized, &asm.Options{}); err != nil {
				t.Fatalf("optimize: %v", err)
			}
			if err := original.RecalculateInstructionAddresses(); err != nil {
				t.Fatal(err)
			}

			want := execute(t, original, tc)
			got := execute(t, optimized, tc)

			if len(want.trace) != len(got.trace) {
				t.Fatalf("trace length %d, want %d", len(got.trace), len(want.trace))
			}
			for i := range want.trace {
				if want.trace[i] != got.trace[i] {
					t.Fatalf("call %d = %s, want %s", i, got.trace[i], want.trace[i])
				}
			}
			for name, val := range want.locals {
				if got.locals[name].Cmp(val) != 0 {
					t.Errorf("local %s = %s, want %s", name, got.locals[name], val)
				}
			}
			if want.stackDepth != got.stackDepth {
				t.Errorf("stack depth = %d, want %d", got.stackDepth, want.stackDepth)
			}
		})
	}
}

type runResult struct {
	trace      []string
	locals     map[string]*uint256.Int
	stackDepth int
}

func execute(t *testing.T, p *asm.Program, tc equivalenceCase) runResult {
	t.Helper()
	m := interp.NewMachine(p)
	registerHostMath(m)
	for name, val := range tc.params {
		if v, ok := p.Values.Lookup(name); ok {
			m.SetValue(v, uint256.NewInt(val))
		}
	}
	if err := m.RunEntry(tc.entry); err != nil {
		t.Fatalf("run: %v", err)
	}
	result := runResult{locals: make(map[string]*uint256.Int), stackDepth: m.StackDepth()}
	result.trace = append(result.trace, m.Trace...)
	for _, v := range p.Values.Values() {
		if v.Kind == asm.Local {
			result.locals[v.Name] = m.Value(v)
		}
	}
	return result
}

func registerHostMath(m *interp.Machine) {
	m.RegisterExtern("Math.Add", func(m *interp.Machine, args []*asm.Value) error {
		sum := new(uint256.Int).Add(m.Value(args[0]), m.Value(args[1]))
		m.SetValue(args[2], sum)
		return nil
	})
	m.RegisterExtern("Math.Sub", func(m *interp.Machine, args []*asm.Value) error {
		diff := new(uint256.Int).Sub(m.Value(args[0]), m.Value(args[1]))
		m.SetValue(args[2], diff)
		return nil
	})
	m.RegisterExtern("Debug.Log", func(m *interp.Machine, args []*asm.Value) error {
		return nil
	})
}
