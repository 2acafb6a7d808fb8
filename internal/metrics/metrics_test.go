package metrics

import (
	"errors"
	"testing"
	"time"

	"fieldsched/internal/opt"
)

// counter reads a counter sample from the registry by name and label values.
func counter(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	mfs, err := Registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			got := map[string]string{}
			for _, lp := range m.GetLabel() {
				got[lp.GetName()] = lp.GetValue()
			}
			for k, v := range labels {
				if got[k] != v {
					continue next
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestSchedulerRecorder(t *testing.T) {
	RegisterDefault()
	RegisterDefault() // idempotent

	var s Scheduler
	ok := map[string]string{"strategy": "greedy", "outcome": "ok"}
	before := counter(t, "schedule_week_builds_total", ok)
	s.BuildFinished("greedy", 10*time.Millisecond, 7, nil)
	if got := counter(t, "schedule_week_builds_total", ok); got != before+1 {
		t.Fatalf("builds = %v, want %v", got, before+1)
	}
	s.BuildFinished("greedy", time.Millisecond, 3, errors.New("boom"))
	if got := counter(t, "schedule_week_builds_total", map[string]string{"strategy": "greedy", "outcome": "error"}); got < 1 {
		t.Fatalf("error outcome not counted")
	}
	if got := counter(t, "schedule_jobs_placed_total", map[string]string{"strategy": "greedy"}); got < 7 {
		t.Fatalf("jobs placed = %v", got)
	}

	s.Warning("below_target_hours")
	if got := counter(t, "schedule_warnings_total", map[string]string{"reason": "below_target_hours"}); got < 1 {
		t.Fatalf("warning not counted")
	}
	s.Annealed(opt.Metrics{InitialMiles: 100, BestMiles: 80})
	s.Annealed(opt.Metrics{})
	s.Committed(nil)
	if got := counter(t, "schedule_commits_total", map[string]string{"outcome": "ok"}); got < 1 {
		t.Fatalf("commit not counted")
	}
}
