package metrics

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestSnapshotAggregates(t *testing.T) {
	m := newManager()

	m.RecordDuration("tabs", "OpenTab", 10*time.Millisecond)
	m.RecordDuration("tabs", "OpenTab", 30*time.Millisecond)
	m.RecordHit("libcache", "tabs.TabBar")
	m.RecordHit("libcache", "tabs.TabBar")
	m.RecordMiss("libcache", "tabs.TabBar")
	m.AddCounter("wait", "polls", 4)
	m.RecordSuccess("tabs", "close")
	m.RecordFailure("tabs", "close", "timeout")

	snap := m.GetSnapshot()

	timing, ok := snap["tabs/OpenTab"].Data.(TimingSnapshot)
	if !ok {
		t.Fatalf("missing timing snapshot: %+v", snap)
	}
	if timing.Count != 2 || timing.AvgMs != 20 || timing.MinMs != 10 || timing.MaxMs != 30 {
		t.Errorf("unexpected timing: %+v", timing)
	}

	hm := snap["libcache/tabs.TabBar"].Data.(HitMissSnapshot)
	if hm.Hits != 2 || hm.Misses != 1 {
		t.Errorf("unexpected hit/miss: %+v", hm)
	}

	if c := snap["wait/polls"].Data.(CounterSnapshot); c.Value != 4 {
		t.Errorf("expected counter 4, got %d", c.Value)
	}

	sf := snap["tabs/close"].Data.(SuccessFailSnapshot)
	if sf.Success != 1 || sf.Failures != 1 || sf.FailureReasons["timeout"] != 1 || sf.SuccessRate != 50 {
		t.Errorf("unexpected success/fail: %+v", sf)
	}
}

func TestTimerKeys(t *testing.T) {
	m := newManager()
	k1 := m.StartTiming("tabs", "OpenTab")
	k2 := m.StartTiming("tabs", "OpenTab")
	if k1 == k2 {
		t.Fatalf("timer keys must be unique, both %q", k1)
	}
	m.EndTiming(k1)
	m.EndTiming(k2)
	m.EndTiming("unknown#1") // ignored

	timing := m.GetSnapshot()["tabs/OpenTab"].Data.(TimingSnapshot)
	if timing.Count != 2 {
		t.Errorf("expected 2 samples, got %d", timing.Count)
	}
}

func TestTreeNodes(t *testing.T) {
	m := newManager()
	m.AddCounter("wait", "polls", 1)

	root := m.GetTree()
	wait, ok := root.Children["wait"]
	if !ok {
		t.Fatal("expected wait node")
	}
	polls, ok := wait.Children["polls"]
	if !ok || polls.Type != TypeCounter || polls.Path != "wait/polls" {
		t.Errorf("unexpected node: %+v", polls)
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "metrics.db")

	m := newManager()
	if err := m.EnablePersistence(dbPath); err != nil {
		t.Fatalf("EnablePersistence failed: %v", err)
	}
	m.RecordDuration("tabs", "OpenTab", 5*time.Millisecond)
	m.RecordMiss("libcache", "prefs.Preferences")
	m.AddCounter("wait", "timeouts", 2)
	m.RecordFailure("tabs", "close", "invalid state")
	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	restored := newManager()
	if err := restored.EnablePersistence(dbPath); err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer restored.Close()

	snap := restored.GetSnapshot()
	if got := snap["tabs/OpenTab"].Data.(TimingSnapshot).Count; got != 1 {
		t.Errorf("timing count not restored, got %d", got)
	}
	if got := snap["libcache/prefs.Preferences"].Data.(HitMissSnapshot).Misses; got != 1 {
		t.Errorf("misses not restored, got %d", got)
	}
	if got := snap["wait/timeouts"].Data.(CounterSnapshot).Value; got != 2 {
		t.Errorf("counter not restored, got %d", got)
	}
	if got := snap["tabs/close"].Data.(SuccessFailSnapshot).FailureReasons["invalid state"]; got != 1 {
		t.Errorf("failure reason not restored, got %d", got)
	}
}

func TestCloseWithoutPersistence(t *testing.T) {
	if err := newManager().Close(); err != nil {
		t.Errorf("Close without persistence should be a no-op, got %v", err)
	}
}

func TestMetricResult(t *testing.T) {
	GetInstance().Reset()
	MetricResult("test", "op", nil)
	MetricResult("test", "op", errors.New("boom"))

	sf := GetInstance().GetSnapshot()["test/op"].Data.(SuccessFailSnapshot)
	if sf.Success != 1 || sf.Failures != 1 || sf.FailureReasons["boom"] != 1 {
		t.Errorf("unexpected result metric: %+v", sf)
	}
}
