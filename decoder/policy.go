package decoder

import (
	"math"
	"runtime"
	"runtime/debug"
)

// uncappedDecoders bounds a pool whose policy sets neither MaxDecoders nor
// Cores.
const uncappedDecoders = 64

// GrowthPolicy decides whether a Pool may add another decoder.
type GrowthPolicy struct {
	// MaxDecoders caps the pool size. Zero means no explicit cap.
	MaxDecoders int

	// MemoryBudget caps decoders × encoded source length, in bytes.
	MemoryBudget int64

	// Cores caps the pool at the number of CPUs.
	Cores int

	// LowMemory reports memory pressure. Nil means never.
	LowMemory func() bool
}

// DefaultGrowthPolicy returns the policy used when none is given: up to four
// decoders, 20 MiB of source per decoder set, one decoder per core, and no
// growth near the runtime memory limit.
func DefaultGrowthPolicy() GrowthPolicy {
	return GrowthPolicy{
		MaxDecoders:  4,
		MemoryBudget: 20 * 1024 * 1024,
		Cores:        runtime.NumCPU(),
		LowMemory:    NearMemoryLimit,
	}
}

// Allow reports whether a pool holding count decoders over a source of
// fileLength bytes may grow, and names the limit that stopped it.
func (g GrowthPolicy) Allow(count int, fileLength int64) (bool, string) {
	switch {
	case g.MaxDecoders > 0 && count >= g.MaxDecoders:
		return false, "max decoders"
	case g.MemoryBudget > 0 && int64(count)*fileLength > g.MemoryBudget:
		return false, "memory budget"
	case g.Cores > 0 && count >= g.Cores:
		return false, "cores"
	case g.LowMemory != nil && g.LowMemory():
		return false, "low memory"
	}
	return true, ""
}

// Capacity returns the most decoders the policy can ever allow.
func (g GrowthPolicy) Capacity() int {
	switch {
	case g.MaxDecoders > 0 && g.Cores > 0:
		return min(g.MaxDecoders, g.Cores)
	case g.MaxDecoders > 0:
		return g.MaxDecoders
	case g.Cores > 0:
		return g.Cores
	}
	return uncappedDecoders
}

// NearMemoryLimit reports whether the runtime has used more than 90% of the
// soft memory limit. Without a limit it always returns false.
func NearMemoryLimit() bool {
	limit := debug.SetMemoryLimit(-1)
	if limit <= 0 || limit == math.MaxInt64 {
		return false
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.Sys > uint64(limit)/10*9
}
