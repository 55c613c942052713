package state

import (
	"testing"
	"time"

	"github.com/priyanshumodi22/kubiq-sub000/internal/history"
	"github.com/priyanshumodi22/kubiq-sub000/pkg/types"
)

func newTracker() *Tracker {
	return NewTracker(history.NewStore(100), time.Hour)
}

func checkResult(target string, success bool) types.CheckResult {
	return types.CheckResult{
		Target:    target,
		Timestamp: time.Now(),
		Success:   success,
	}
}

func TestTracker_InitialStatusIsUnknown(t *testing.T) {
	tr := newTracker()
	if got := tr.Status("api"); got != types.StatusUnknown {
		t.Fatalf("status = %q, want unknown before first result", got)
	}
}

func TestTracker_FirstResultDoesNotNotify(t *testing.T) {
	tr := newTracker()

	if _, fired := tr.Ingest(checkResult("api", false)); fired {
		t.Fatal("unknown->unhealthy must not notify")
	}
	if got := tr.Status("api"); got != types.StatusUnhealthy {
		t.Fatalf("status = %q, want unhealthy", got)
	}

	tr2 := newTracker()
	if _, fired := tr2.Ingest(checkResult("api", true)); fired {
		t.Fatal("unknown->healthy must not notify")
	}
}

func TestTracker_DownTransitionNotifiesOnce(t *testing.T) {
	tr := newTracker()
	tr.Ingest(checkResult("api", true))

	event, fired := tr.Ingest(checkResult("api", false))
	if !fired {
		t.Fatal("healthy->unhealthy must notify")
	}
	if event.Type != types.EventDown {
		t.Fatalf("event type = %q, want down", event.Type)
	}
	if event.Previous != types.StatusHealthy || event.Current != types.StatusUnhealthy {
		t.Fatalf("event transition = %q->%q", event.Previous, event.Current)
	}
	if event.ID == "" {
		t.Fatal("event must carry an id")
	}

	// Repeated unhealthy results fire nothing.
	for i := 0; i < 3; i++ {
		if _, fired := tr.Ingest(checkResult("api", false)); fired {
			t.Fatal("unhealthy->unhealthy must not notify")
		}
	}
}

func TestTracker_RecoveryNotifies(t *testing.T) {
	tr := newTracker()
	tr.Ingest(checkResult("api", true))
	tr.Ingest(checkResult("api", false))

	event, fired := tr.Ingest(checkResult("api", true))
	if !fired {
		t.Fatal("unhealthy->healthy must notify")
	}
	if event.Type != types.EventUp {
		t.Fatalf("event type = %q, want up", event.Type)
	}
}

func TestTracker_StateSnapshot(t *testing.T) {
	hist := history.NewStore(100)
	tr := NewTracker(hist, time.Hour)

	r := checkResult("api", true)
	r.LatencyMs = 12
	hist.Append(r)
	tr.Ingest(r)

	s, ok := tr.State("api")
	if !ok {
		t.Fatal("expected tracked state")
	}
	if s.Status != types.StatusHealthy {
		t.Fatalf("status = %q, want healthy", s.Status)
	}
	if s.UptimePercent != 100 {
		t.Fatalf("uptime = %v, want 100", s.UptimePercent)
	}
	if s.AvgLatencyMs != 12 {
		t.Fatalf("avg latency = %v, want 12", s.AvgLatencyMs)
	}
	if s.LastResult == nil {
		t.Fatal("last result missing from snapshot")
	}
}

func TestTracker_StatesSortedAndRemove(t *testing.T) {
	tr := newTracker()
	tr.Ingest(checkResult("b", true))
	tr.Ingest(checkResult("a", false))

	states := tr.States()
	if len(states) != 2 {
		t.Fatalf("states = %d, want 2", len(states))
	}
	if states[0].Target != "a" || states[1].Target != "b" {
		t.Fatal("states not sorted by target name")
	}

	tr.Remove("a")
	if got := tr.Status("a"); got != types.StatusUnknown {
		t.Fatalf("removed target status = %q, want unknown", got)
	}
}
