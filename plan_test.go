package treehash

import (
	"errors"
	"testing"

	treeerrors "github.com/tamirms/treehash/errors"
)

func TestPlanUnconstrained(t *testing.T) {
	tests := []struct {
		mode       MemoryMode
		cpus       int
		threads    int
		perThread  int
		bufferSize int
		prefetch   bool
	}{
		{ModeStream, 16, 8, 2, 64 << 10, false},
		{ModeStream, 1, 1, 2, 64 << 10, false},
		{ModeBalanced, 16, 16, 4, 256 << 10, true},
		{ModeBalanced, 0, 1, 4, 256 << 10, true},
		{ModeBooster, 16, 32, 6, 1 << 20, true},
	}
	for _, tc := range tests {
		t.Run(tc.mode.String(), func(t *testing.T) {
			p := Plan(PlanInput{Mode: tc.mode, LogicalCPUs: tc.cpus, TotalMemoryBytes: 64 << 30})
			if p.Mode != tc.mode || p.Threads != tc.threads || p.BuffersPerThread != tc.perThread ||
				p.BufferSize != tc.bufferSize || p.PrefetchListing != tc.prefetch {
				t.Errorf("Plan = %+v", p)
			}
			if p.OverBudget {
				t.Error("unexpected OverBudget")
			}
		})
	}
}

// TestPlanBoosterTinyBudget: booster with a 1 MiB budget on 16 CPUs must
// shrink to fit the budget.
func TestPlanBoosterTinyBudget(t *testing.T) {
	const budget = 1_048_576
	p := Plan(PlanInput{Mode: ModeBooster, MaxRAMBytes: budget, LogicalCPUs: 16})

	if p.TotalBufferBytes() > budget {
		t.Fatalf("plan commits %d bytes, budget %d: %+v", p.TotalBufferBytes(), budget, p)
	}
	if p.Threads >= 32 && p.BuffersPerThread >= 6 {
		t.Errorf("plan not reduced below booster defaults: %+v", p)
	}
	if p.Threads < 1 || p.BuffersPerThread < 1 {
		t.Errorf("plan below safe minimum: %+v", p)
	}
	if p.Mode != ModeBooster || p.BudgetBytes != budget {
		t.Errorf("Mode=%v BudgetBytes=%d", p.Mode, p.BudgetBytes)
	}
	if len(p.Steps) == 0 {
		t.Error("scaling steps were not recorded")
	}
}

func TestPlanFallsBackOneTier(t *testing.T) {
	// A 1 MiB buffer cannot fit in 512 KiB, so booster drops to balanced,
	// where one buffer per thread and two threads fit exactly.
	p := Plan(PlanInput{Mode: ModeBooster, MaxRAMBytes: 512 << 10, LogicalCPUs: 16})
	if p.Mode != ModeBalanced || p.RequestedMode != ModeBooster {
		t.Fatalf("Mode=%v RequestedMode=%v, want balanced/booster", p.Mode, p.RequestedMode)
	}
	if p.Threads != 2 || p.BuffersPerThread != 1 || p.BufferSize != 256<<10 {
		t.Errorf("Plan = %+v", p)
	}
	if p.OverBudget {
		t.Error("unexpected OverBudget")
	}
}

func TestPlanBelowMinimum(t *testing.T) {
	p := Plan(PlanInput{Mode: ModeBalanced, MaxRAMBytes: 1000, LogicalCPUs: 8})
	if p.Mode != ModeStream {
		t.Errorf("Mode = %v, want stream", p.Mode)
	}
	if p.Threads != 1 || p.BuffersPerThread != 1 || !p.OverBudget {
		t.Errorf("Plan = %+v, want 1x1 over budget", p)
	}
}

func TestPlanBoosterDerivedBudget(t *testing.T) {
	p := Plan(PlanInput{Mode: ModeBooster, LogicalCPUs: 4, TotalMemoryBytes: 10 << 30})
	if want := uint64(10<<30) / 100 * 70; p.BudgetBytes != want {
		t.Errorf("BudgetBytes = %d, want %d", p.BudgetBytes, want)
	}

	// Unknown RAM falls back to a 2 GiB assumption.
	p = Plan(PlanInput{Mode: ModeBooster, LogicalCPUs: 4})
	if want := uint64(2<<30) / 100 * 70; p.BudgetBytes != want {
		t.Errorf("fallback BudgetBytes = %d, want %d", p.BudgetBytes, want)
	}

	// Other modes are unbounded without an explicit budget.
	if p := Plan(PlanInput{Mode: ModeBalanced, LogicalCPUs: 4, TotalMemoryBytes: 10 << 30}); p.BudgetBytes != 0 {
		t.Errorf("balanced BudgetBytes = %d, want 0", p.BudgetBytes)
	}
}

func TestPlanThreadOverride(t *testing.T) {
	p := Plan(PlanInput{Mode: ModeBalanced, LogicalCPUs: 16, ThreadOverride: 3})
	if p.Threads != 3 {
		t.Errorf("Threads = %d, want 3", p.Threads)
	}

	// The budget still applies to an overridden thread count.
	p = Plan(PlanInput{Mode: ModeBalanced, LogicalCPUs: 16, ThreadOverride: 8, MaxRAMBytes: 1 << 20})
	if p.TotalBufferBytes() > 1<<20 {
		t.Errorf("override plan commits %d bytes over a 1 MiB budget", p.TotalBufferBytes())
	}
	if p.Threads != 4 || p.BuffersPerThread != 1 {
		t.Errorf("Plan = %+v, want 4 threads x 1 buffer", p)
	}
}

func TestPlanIsPure(t *testing.T) {
	in := PlanInput{Mode: ModeBooster, MaxRAMBytes: 3 << 20, LogicalCPUs: 12}
	a, b := Plan(in), Plan(in)
	if a.Threads != b.Threads || a.BuffersPerThread != b.BuffersPerThread || a.Mode != b.Mode || len(a.Steps) != len(b.Steps) {
		t.Errorf("Plan not deterministic: %+v vs %+v", a, b)
	}
}

func TestParseMemoryMode(t *testing.T) {
	tests := []struct {
		in      string
		want    MemoryMode
		wantErr bool
	}{
		{"stream", ModeStream, false},
		{"BALANCED", ModeBalanced, false},
		{" Booster ", ModeBooster, false},
		{"", ModeBalanced, false},
		{"turbo", 0, true},
	}
	for _, tc := range tests {
		got, err := ParseMemoryMode(tc.in)
		if tc.wantErr {
			if !errors.Is(err, treeerrors.ErrInvalidMode) {
				t.Errorf("ParseMemoryMode(%q) error = %v, want ErrInvalidMode", tc.in, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("ParseMemoryMode(%q) = %v, %v; want %v", tc.in, got, err, tc.want)
		}
	}
}

func TestMemoryModeText(t *testing.T) {
	for _, m := range []MemoryMode{ModeStream, ModeBalanced, ModeBooster} {
		text, err := m.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%v): %v", m, err)
		}
		var back MemoryMode
		if err := back.UnmarshalText(text); err != nil || back != m {
			t.Errorf("UnmarshalText(%q) = %v, %v", text, back, err)
		}
	}
	if _, err := MemoryMode(9).MarshalText(); !errors.Is(err, treeerrors.ErrInvalidMode) {
		t.Errorf("MarshalText(9) error = %v, want ErrInvalidMode", err)
	}
}
