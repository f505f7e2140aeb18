// Package optimizer rewrites a compiled instruction stream into a smaller
// equivalent one: control-flow-graph construction, lazy use/def analysis,
// and an iterative multi-pass fixpoint loop with per-pass fault isolation.
package optimizer

import (
	"sort"

	"github.com/ethereum/go-ethereum/log"

	"github.com/embervm/ember/asm"
)

// Optimizer runs the enabled passes over one compiled unit until nothing
// changes or the sweep cap is hit. Optimization is best effort: a failing
// pass is logged and skipped for the sweep, never escalated, so the worst
// outcome is a less optimized but still correct stream.
type Optimizer struct {
	program   *asm.Program
	passes    []Pass
	maxSweeps int
	metrics   *Metrics
	logger    log.Logger
}

// New builds an optimizer for program. Passes named in the options'
// disabled set are filtered out here, once; the rest run in ascending
// priority order every sweep.
func New(program *asm.Program, opts *asm.Options) *Optimizer {
	var passes []Pass
	for _, pass := range DefaultPasses() {
		if opts.PassDisabled(pass.Name()) {
			continue
		}
		passes = append(passes, pass)
	}
	sort.SliceStable(passes, func(i, j int) bool {
		return passes[i].Priority() < passes[j].Priority()
	})
	return &Optimizer{
		program:   program,
		passes:    passes,
		maxSweeps: opts.SweepLimit(),
		metrics:   NewMetrics(),
		logger:    log.New("module", "optimizer"),
	}
}

// Metrics returns the counters accumulated by Optimize.
func (o *Optimizer) Metrics() *Metrics { return o.metrics }

// Passes returns the enabled passes in execution order.
func (o *Optimizer) Passes() []Pass { return o.passes }

// Optimize mutates the program in place and finalizes its addresses. The
// only error it can return is a malformed input stream (a jump naming an
// instruction that is not there), which indicates a defect in the
// producer, not a recoverable condition.
func (o *Optimizer) Optimize() error {
	ctx := NewContext(o.program, o.metrics)
	if err := ctx.EnsureInstructionAddresses(); err != nil {
		return err
	}

	for sweep := 0; sweep < o.maxSweeps; sweep++ {
		sweepChanged := false
		for _, pass := range o.passes {
			if !pass.CanRun(ctx) {
				continue
			}
			changed, err := pass.Run(ctx)
			if err != nil {
				// Contained: the pass is retried next sweep, the rest of
				// this sweep proceeds.
				o.logger.Warn("optimization pass failed", "pass", pass.Name(), "sweep", sweep, "err", err)
				continue
			}
			o.metrics.passRun()
			if changed {
				sweepChanged = true
				// Later passes may depend on current addresses.
				if err := ctx.EnsureInstructionAddresses(); err != nil {
					return err
				}
			}
		}
		if !sweepChanged {
			o.logger.Debug("optimizer converged", "sweeps", sweep+1)
			break
		}
	}
	return ctx.EnsureInstructionAddresses()
}

// Optimize is the one-call form: build, run, return metrics.
func Optimize(program *asm.Program, opts *asm.Options) (*Metrics, error) {
	o := New(program, opts)
	if err := o.Optimize(); err != nil {
		return o.Metrics(), err
	}
	return o.Metrics(), nil
}
