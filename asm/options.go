package asm

import (
	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// DefaultMaxSweeps bounds the optimizer's fixpoint loop. Convergence
// normally happens in two or three sweeps; the cap only matters for
// pathological pass interactions.
const DefaultMaxSweeps = 10

// Options carries the compile options the optimizer consults. The zero
// value enables every pass.
type Options struct {
	// DisabledPasses lists pass names excluded from the run. Filtering
	// happens once when the optimizer is constructed.
	DisabledPasses []string `toml:"disabled_passes"`

	// MaxSweeps caps fixpoint iteration. Zero means DefaultMaxSweeps.
	MaxSweeps int `toml:"max_sweeps"`

	// DumpCFG requests a DOT rendering of the control-flow graph before
	// optimization. Diagnostics only.
	DumpCFG bool `toml:"dump_cfg"`
}

// SweepLimit returns the effective fixpoint cap.
func (o *Options) SweepLimit() int {
	if o == nil || o.MaxSweeps <= 0 {
		return DefaultMaxSweeps
	}
	return o.MaxSweeps
}

// PassDisabled reports whether name is in the disabled set.
func (o *Options) PassDisabled(name string) bool {
	if o == nil {
		return false
	}
	for _, d := range o.DisabledPasses {
		if d == name {
			return true
		}
	}
	return false
}

// LoadOptions reads Options from a TOML file.
func LoadOptions(path string) (*Options, error) {
	var opts Options
	if _, err := toml.DecodeFile(path, &opts); err != nil {
		return nil, errors.Wrapf(err, "loading options from %s", path)
	}
	return &opts, nil
}
