package optimizer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/metrics"
)

var (
	removedGauge   = metrics.NewRegisteredCounter("optimizer/instructions/removed", nil)
	replacedGauge  = metrics.NewRegisteredCounter("optimizer/instructions/replaced", nil)
	coalescedGauge = metrics.NewRegisteredCounter("optimizer/values/coalesced", nil)
	threadedGauge  = metrics.NewRegisteredCounter("optimizer/jumps/threaded", nil)
	deadBlockGauge = metrics.NewRegisteredCounter("optimizer/blocks/removed", nil)
	passRunGauge   = metrics.NewRegisteredCounter("optimizer/passes/run", nil)
)

// Metrics accumulates optimization counters for one compiled unit. The
// counters are diagnostics only and never influence what the optimizer
// does. The fixed counters are mirrored into the process-wide metrics
// registry; PerPass carries ad hoc "pass.metric" counts.
type Metrics struct {
	InstructionsRemoved  int64
	InstructionsReplaced int64
	ValuesCoalesced      int64
	JumpsThreaded        int64
	DeadBlocksRemoved    int64
	PassesRun            int64

	PerPass map[string]int64
}

func NewMetrics() *Metrics {
	return &Metrics{PerPass: make(map[string]int64)}
}

// Count bumps the ad hoc counter "pass.metric" by n.
func (m *Metrics) Count(pass, metric string, n int64) {
	m.PerPass[pass+"."+metric] += n
}

// PassCount returns the ad hoc counter "pass.metric".
func (m *Metrics) PassCount(pass, metric string) int64 {
	return m.PerPass[pass+"."+metric]
}

func (m *Metrics) removed(n int64) {
	m.InstructionsRemoved += n
	removedGauge.Inc(n)
}

func (m *Metrics) replaced(n int64) {
	m.InstructionsReplaced += n
	replacedGauge.Inc(n)
}

func (m *Metrics) coalesced(n int64) {
	m.ValuesCoalesced += n
	coalescedGauge.Inc(n)
}

func (m *Metrics) threaded(n int64) {
	m.JumpsThreaded += n
	threadedGauge.Inc(n)
}

func (m *Metrics) deadBlocks(n int64) {
	m.DeadBlocksRemoved += n
	deadBlockGauge.Inc(n)
}

func (m *Metrics) passRun() {
	m.PassesRun++
	passRunGauge.Inc(1)
}

func (m *Metrics) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "removed=%d replaced=%d coalesced=%d threaded=%d deadBlocks=%d passesRun=%d",
		m.InstructionsRemoved, m.InstructionsReplaced, m.ValuesCoalesced,
		m.JumpsThreaded, m.DeadBlocksRemoved, m.PassesRun)
	keys := make([]string, 0, len(m.PerPass))
	for k := range m.PerPass {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%d", k, m.PerPass[k])
	}
	return b.String()
}
