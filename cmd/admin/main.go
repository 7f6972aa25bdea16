package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/dustin/go-humanize"

	persistlog "agentworld.ai/internal/persistence/log"
	"agentworld.ai/internal/persistence/snapshot"
	"agentworld.ai/internal/sim/world"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		case "journal":
			journalCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "worlds")
	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		line := e.Name()
		if p := snapshot.Latest(filepath.Join(base, e.Name(), "snapshots")); p != "" {
			if h, err := snapshot.ReadHeader(p); err == nil {
				line += fmt.Sprintf("\tlatest_snapshot_tick=%d", h.Tick)
			}
		}
		fmt.Println(line)
	}
}

type journalSummary struct {
	Files      int
	Ticks      int
	FirstTick  uint64
	LastTick   uint64
	Gaps       int
	MaxAgents  int
	Failed     int
	Dispatched int
	MaxStepMS  float64
	Events     map[string]int
}

// summarizeJournals reads the tick and event journals of a world directory.
// Tick numbers must be strictly increasing across files; a jump counts as a gap.
func summarizeJournals(worldDir string) (journalSummary, error) {
	s := journalSummary{Events: map[string]int{}}

	tickFiles, err := persistlog.Files(filepath.Join(worldDir, "ticks"), "ticks")
	if err != nil {
		return s, err
	}
	for _, path := range tickFiles {
		s.Files++
		err := persistlog.ReadJSONL(path, func(e world.TickLogEntry) error {
			if s.Ticks > 0 {
				if e.Tick <= s.LastTick {
					return fmt.Errorf("%s: tick %d after %d", filepath.Base(path), e.Tick, s.LastTick)
				}
				if e.Tick != s.LastTick+1 {
					s.Gaps++
				}
			} else {
				s.FirstTick = e.Tick
			}
			s.Ticks++
			s.LastTick = e.Tick
			s.MaxAgents = max(s.MaxAgents, e.Agents)
			s.Failed += e.Failed
			s.Dispatched += e.Dispatched
			s.MaxStepMS = max(s.MaxStepMS, e.StepMS)
			return nil
		})
		if err != nil {
			return s, err
		}
	}

	eventFiles, err := persistlog.Files(filepath.Join(worldDir, "events"), "events")
	if err != nil {
		return s, err
	}
	for _, path := range eventFiles {
		s.Files++
		err := persistlog.ReadJSONL(path, func(e world.EventLogEntry) error {
			s.Events[e.Event]++
			return nil
		})
		if err != nil {
			return s, err
		}
	}
	return s, nil
}

func journalCmd(args []string) {
	fs := flag.NewFlagSet("journal", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "world_1", "world id")
	_ = fs.Parse(args)

	s, err := summarizeJournals(filepath.Join(*dataDir, "worlds", *worldID))
	if err != nil {
		fmt.Fprintln(os.Stderr, "journal:", err)
		os.Exit(1)
	}
	fmt.Printf("files=%d ticks=%s range=%d..%d gaps=%d max_agents=%s failed=%d dispatched=%s max_step_ms=%.3f\n",
		s.Files, humanize.Comma(int64(s.Ticks)), s.FirstTick, s.LastTick, s.Gaps,
		humanize.Comma(int64(s.MaxAgents)), s.Failed, humanize.Comma(int64(s.Dispatched)), s.MaxStepMS)

	names := make([]string, 0, len(s.Events))
	for n := range s.Events {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Printf("event %-12s %s\n", n, humanize.Comma(int64(s.Events[n])))
	}
	if s.Gaps > 0 {
		fmt.Fprintf(os.Stderr, "warning: tick journal has %d gaps\n", s.Gaps)
	}
}
