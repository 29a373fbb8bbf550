// Package timelord implements the process-global registry of time bases
// spec.md §5 calls TimeLord: initialized once, before any thread starts,
// and read-only for the remainder of the run. It resolves a unit string
// such as "1ns" or "500ps" into a factor expressed in the simulation's
// core time-base units, the same role SST's TimeLord::getTimeConverter
// plays for every Link's DefaultTimeBase.
package timelord

import (
	"regexp"
	"strconv"
	"sync"

	"github.com/pkg/errors"

	"github.com/filecoin-project/vortex-sync/internal/pkg/syncerr"
)

// coreFactors gives the number of picoseconds in one of each recognized
// SI time suffix (absolute factors, later divided by the core time base's
// own picosecond factor), mirroring the unit table SST's
// UnitAlgebra parses in TimeLord::getTimeConverter.
var coreFactors = map[string]uint64{
	"ps": 1,
	"ns": 1000,
	"us": 1000 * 1000,
	"ms": 1000 * 1000 * 1000,
	"s":  1000 * 1000 * 1000 * 1000,
}

var unitPattern = regexp.MustCompile(`^(\d+)(ps|ns|us|ms|s)$`)

// Registry is a process-global, read-only-after-init map from unit
// string to its factor in core units. The zero value is ready to use
// but unfrozen; Init must run exactly once, before any other goroutine
// calls GetTimeBase, matching the source's "single-threaded at startup"
// contract for TimeLord::init.
type Registry struct {
	mu       sync.RWMutex
	frozen   bool
	cache    map[string]uint64
	coreUnit string
	// coreFactorPS is coreUnit's own absolute factor in picoseconds,
	// fixed once at Init. Every GetTimeBase result is expressed relative
	// to this value, not in raw picoseconds.
	coreFactorPS uint64
}

var global = &Registry{cache: map[string]uint64{}}

// Global returns the process-wide Registry every Link resolves its
// DefaultTimeBase through.
func Global() *Registry { return global }

// Init fixes the registry's core unit (the denominator every later
// GetTimeBase call is expressed in) and freezes it against further
// mutation. Init is idempotent when called again with the same
// coreUnit -- re-running a binary's setup path must not panic -- but
// rejects an attempt to change an already-frozen core unit, since every
// previously resolved factor would silently go stale.
func (r *Registry) Init(coreUnit string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		if r.coreUnit != coreUnit {
			return errors.Wrapf(syncerr.ErrConfiguration, "timelord: already initialized with core unit %q, cannot reinit with %q", r.coreUnit, coreUnit)
		}
		return nil
	}
	coreFactor, err := parseUnitPicoseconds(coreUnit)
	if err != nil {
		return err
	}
	if coreFactor == 0 {
		return errors.Wrapf(syncerr.ErrConfiguration, "timelord: core unit %q resolves to zero", coreUnit)
	}
	r.coreUnit = coreUnit
	r.coreFactorPS = coreFactor
	r.frozen = true
	if r.cache == nil {
		r.cache = map[string]uint64{}
	}
	return nil
}

// GetTimeBase resolves unit (e.g. "1ns", "500ps") into a factor expressed
// relative to the registry's own core unit -- i.e. how many core-unit
// cycles one instance of unit represents -- caching the parse the way
// TimeLord's StringToTCMap_t avoids re-parsing a UnitAlgebra on every
// call. Init must have run first; every factor is meaningless without a
// fixed denominator to express it against.
func (r *Registry) GetTimeBase(unit string) (uint64, error) {
	r.mu.RLock()
	if v, ok := r.cache[unit]; ok {
		r.mu.RUnlock()
		return v, nil
	}
	coreFactor := r.coreFactorPS
	frozen := r.frozen
	r.mu.RUnlock()

	if !frozen {
		return 0, errors.Wrap(syncerr.ErrConfiguration, "timelord: GetTimeBase called before Init")
	}

	absFactor, err := parseUnitPicoseconds(unit)
	if err != nil {
		return 0, err
	}
	factor := absFactor / coreFactor

	r.mu.Lock()
	if r.cache == nil {
		r.cache = map[string]uint64{}
	}
	r.cache[unit] = factor
	r.mu.Unlock()
	return factor, nil
}

// GetNano, GetMicro and GetMilli are the fixed-unit convenience
// accessors TimeLord exposes alongside the general getTimeConverter.
func (r *Registry) GetNano() (uint64, error) { return r.GetTimeBase("1ns") }
func (r *Registry) GetMicro() (uint64, error) { return r.GetTimeBase("1us") }
func (r *Registry) GetMilli() (uint64, error) { return r.GetTimeBase("1ms") }

// parseUnitPicoseconds parses a suffixed unit string into its absolute
// factor in picoseconds, independent of any registry's core unit. Callers
// relate two such factors (e.g. GetTimeBase dividing by coreFactorPS) to
// get a value meaningful in a particular registry's core units.
func parseUnitPicoseconds(unit string) (uint64, error) {
	m := unitPattern.FindStringSubmatch(unit)
	if m == nil {
		return 0, errors.Wrapf(syncerr.ErrConfiguration, "timelord: unrecognized time-base unit %q", unit)
	}
	n, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return 0, errors.Wrapf(syncerr.ErrConfiguration, "timelord: invalid numeral in unit %q", unit)
	}
	return n * coreFactors[m[2]], nil
}
