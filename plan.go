package treehash

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	treeerrors "github.com/tamirms/treehash/errors"
)

// MemoryMode selects a policy trading memory footprint against throughput.
// The zero value is ModeBalanced.
type MemoryMode uint8

const (
	// ModeBalanced uses 256 KiB buffers, one thread per CPU and a
	// prefetched listing.
	ModeBalanced MemoryMode = iota

	// ModeStream uses 64 KiB buffers, half the CPUs and a streamed listing.
	ModeStream

	// ModeBooster uses 1 MiB buffers, two threads per CPU and a prefetched
	// listing. Without an explicit budget it claims 70% of system RAM.
	ModeBooster
)

// fallbackSystemMemory is assumed when total RAM cannot be probed.
const fallbackSystemMemory = 2 << 30

// boosterRAMPercent is the share of total RAM booster mode claims when no
// budget is configured.
const boosterRAMPercent = 70

// String returns the mode name.
func (m MemoryMode) String() string {
	switch m {
	case ModeStream:
		return "stream"
	case ModeBalanced:
		return "balanced"
	case ModeBooster:
		return "booster"
	default:
		return "unknown"
	}
}

// ParseMemoryMode parses a mode name case-insensitively. The empty string
// selects ModeBalanced.
func ParseMemoryMode(s string) (MemoryMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "stream":
		return ModeStream, nil
	case "balanced", "":
		return ModeBalanced, nil
	case "booster":
		return ModeBooster, nil
	}
	return 0, fmt.Errorf("%w: %q (want stream, balanced or booster)", treeerrors.ErrInvalidMode, s)
}

// MarshalText implements encoding.TextMarshaler.
func (m MemoryMode) MarshalText() ([]byte, error) {
	if m > ModeBooster {
		return nil, fmt.Errorf("%w: %d", treeerrors.ErrInvalidMode, m)
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *MemoryMode) UnmarshalText(text []byte) error {
	mode, err := ParseMemoryMode(string(text))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// lower returns the next tier toward stream, and false at the bottom.
func (m MemoryMode) lower() (MemoryMode, bool) {
	switch m {
	case ModeBooster:
		return ModeBalanced, true
	case ModeBalanced:
		return ModeStream, true
	}
	return m, false
}

type modePolicy struct {
	bufferSize       int
	buffersPerThread int
	threads          func(cpus int) int
	prefetch         bool
}

var modePolicies = map[MemoryMode]modePolicy{
	ModeStream: {
		bufferSize:       64 << 10,
		buffersPerThread: 2,
		threads:          func(cpus int) int { return max(1, cpus/2) },
	},
	ModeBalanced: {
		bufferSize:       256 << 10,
		buffersPerThread: 4,
		threads:          func(cpus int) int { return max(1, cpus) },
		prefetch:         true,
	},
	ModeBooster: {
		bufferSize:       1 << 20,
		buffersPerThread: 6,
		threads:          func(cpus int) int { return max(1, cpus*2) },
		prefetch:         true,
	},
}

// PlanInput is everything the planner looks at.
type PlanInput struct {
	Mode MemoryMode

	// MaxRAMBytes is the buffer budget. Zero means unset: no budget for
	// stream and balanced, 70% of TotalMemoryBytes for booster.
	MaxRAMBytes uint64

	LogicalCPUs int

	// ThreadOverride replaces the mode's thread count when positive. The
	// budget still applies.
	ThreadOverride int

	// TotalMemoryBytes is the host's RAM, used only to derive a booster
	// budget. Zero assumes 2 GiB.
	TotalMemoryBytes uint64
}

// MemoryPlan is the per-run resource plan. It is computed once and never
// changes during the run.
type MemoryPlan struct {
	// Mode is the effective mode after any fallback.
	Mode MemoryMode

	// RequestedMode is the mode the plan started from.
	RequestedMode MemoryMode

	Threads          int
	BufferSize       int
	BuffersPerThread int
	PrefetchListing  bool

	// BudgetBytes is the enforced budget; zero means unbounded.
	BudgetBytes uint64

	// OverBudget is set when even one thread with one buffer of the
	// smallest tier exceeds the budget. The plan is still usable; the
	// budget is simply not met.
	OverBudget bool

	// Steps records every scaling or fallback decision, in order.
	Steps []string
}

// TotalBuffers returns the pool ceiling for the plan.
func (p MemoryPlan) TotalBuffers() int { return p.Threads * p.BuffersPerThread }

// TotalBufferBytes returns the buffer memory the plan commits.
func (p MemoryPlan) TotalBufferBytes() uint64 {
	return uint64(p.TotalBuffers()) * uint64(p.BufferSize)
}

// Plan derives thread count and buffer geometry from a mode and budget.
//
// When threads × buffers_per_thread × buffer_size exceeds the budget,
// buffers per thread are scaled down proportionally (never below 1), then
// the thread count is reduced. If a single buffer of the mode's size does
// not fit, the plan falls back one tier toward stream and starts over.
//
// Plan is pure: it reads nothing but its input.
func Plan(in PlanInput) MemoryPlan {
	plan := MemoryPlan{RequestedMode: in.Mode, BudgetBytes: in.MaxRAMBytes}
	cpus := max(1, in.LogicalCPUs)

	if plan.BudgetBytes == 0 && in.Mode == ModeBooster {
		total := in.TotalMemoryBytes
		if total == 0 {
			total = fallbackSystemMemory
		}
		plan.BudgetBytes = total / 100 * boosterRAMPercent
		plan.Steps = append(plan.Steps, fmt.Sprintf("booster budget derived as %d%% of %s system memory: %s",
			boosterRAMPercent, humanize.IBytes(total), humanize.IBytes(plan.BudgetBytes)))
	}

	mode := in.Mode
	if _, ok := modePolicies[mode]; !ok {
		mode = ModeBalanced
	}
	for {
		pol := modePolicies[mode]
		threads := pol.threads(cpus)
		if in.ThreadOverride > 0 {
			threads = in.ThreadOverride
		}
		perThread := pol.buffersPerThread
		size := uint64(pol.bufferSize)
		budget := plan.BudgetBytes

		plan.Mode = mode
		plan.BufferSize = pol.bufferSize
		plan.PrefetchListing = pol.prefetch

		if budget != 0 {
			if total := uint64(threads) * uint64(perThread) * size; total > budget {
				scaled := max(1, int(uint64(perThread)*budget/total))
				plan.Steps = append(plan.Steps, fmt.Sprintf("%s: buffers per thread %d -> %d (%s exceeds budget %s)",
					mode, perThread, scaled, humanize.IBytes(total), humanize.IBytes(budget)))
				perThread = scaled
			}
			if total := uint64(threads) * uint64(perThread) * size; total > budget {
				fit := budget / (uint64(perThread) * size)
				if fit >= 1 {
					plan.Steps = append(plan.Steps, fmt.Sprintf("%s: threads %d -> %d", mode, threads, fit))
					threads = int(fit)
				} else if next, ok := mode.lower(); ok {
					plan.Steps = append(plan.Steps, fmt.Sprintf("%s: one %s buffer exceeds budget %s, falling back to %s",
						mode, humanize.IBytes(size), humanize.IBytes(budget), next))
					mode = next
					continue
				} else {
					plan.Steps = append(plan.Steps, fmt.Sprintf("%s: budget %s is below one %s buffer, using 1 thread with 1 buffer",
						mode, humanize.IBytes(budget), humanize.IBytes(size)))
					threads, perThread = 1, 1
					plan.OverBudget = true
				}
			}
		}

		plan.Threads = threads
		plan.BuffersPerThread = perThread
		return plan
	}
}
