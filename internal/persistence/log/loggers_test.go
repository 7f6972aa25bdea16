package log

import (
	"path/filepath"
	"testing"
	"time"

	"agentworld.ai/internal/sim/world"
)

func TestTickLoggerRoundTrip(t *testing.T) {
	dir := t.TempDir()
	l := NewTickLogger(dir)
	for i := uint64(1); i <= 3; i++ {
		if err := l.WriteTick(world.TickLogEntry{Tick: i, Agents: int(i) * 10, StepMS: 0.5}); err != nil {
			t.Fatalf("WriteTick: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	files, err := Files(filepath.Join(dir, "ticks"), "ticks")
	if err != nil || len(files) != 1 {
		t.Fatalf("files=%v err=%v", files, err)
	}
	var got []world.TickLogEntry
	if err := ReadJSONL(files[0], func(e world.TickLogEntry) error {
		got = append(got, e)
		return nil
	}); err != nil {
		t.Fatalf("ReadJSONL: %v", err)
	}
	if len(got) != 3 || got[2].Tick != 3 || got[2].Agents != 30 {
		t.Fatalf("entries=%+v", got)
	}
}

func TestEventLoggerAppendsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 2; i++ {
		l := NewEventLogger(dir)
		if err := l.WriteEvent(world.EventLogEntry{Tick: uint64(i), Event: world.EventKeyDown, Recipients: i}); err != nil {
			t.Fatalf("WriteEvent: %v", err)
		}
		if err := l.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}
	files, _ := Files(filepath.Join(dir, "events"), "events")
	if len(files) == 0 {
		t.Fatalf("no journal written")
	}
	n := 0
	for _, f := range files {
		if err := ReadJSONL(f, func(e world.EventLogEntry) error {
			if e.Event != world.EventKeyDown {
				t.Fatalf("event=%q", e.Event)
			}
			n++
			return nil
		}); err != nil {
			t.Fatalf("ReadJSONL: %v", err)
		}
	}
	if n != 2 {
		t.Fatalf("read %d entries, want 2", n)
	}
}

func TestJournalRotatesHourly(t *testing.T) {
	dir := t.TempDir()
	j := NewJournal[world.TickLogEntry](dir, "ticks")
	now := time.Date(2026, 3, 1, 9, 59, 0, 0, time.UTC)
	j.now = func() time.Time { return now }

	if j.Path() != "" {
		t.Fatalf("path before first write: %q", j.Path())
	}
	if err := j.Append(world.TickLogEntry{Tick: 1}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if err := j.Append(world.TickLogEntry{Tick: 2}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if want := filepath.Join(dir, "ticks-2026-03-01-10.jsonl.zst"); j.Path() != want {
		t.Fatalf("path=%q want %q", j.Path(), want)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	files, err := Files(dir, "ticks")
	if err != nil || len(files) != 2 {
		t.Fatalf("files=%v err=%v", files, err)
	}
	if filepath.Base(files[0]) != "ticks-2026-03-01-09.jsonl.zst" {
		t.Fatalf("oldest file=%s", files[0])
	}
	if j.Entries() != 2 {
		t.Fatalf("entries=%d", j.Entries())
	}
}
