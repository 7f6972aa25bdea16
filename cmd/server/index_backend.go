package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"agentworld.ai/internal/persistence/indexdb"
	"agentworld.ai/internal/persistence/snapshot"
	"agentworld.ai/internal/sim/tuning"
	"agentworld.ai/internal/sim/world"
)

type runtimeIndex interface {
	world.TickLogger
	world.EventLogger
	Close() error
	Stats() indexdb.Stats
	UpsertTuning(tune tuning.Tuning) error
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
}

func indexPath(worldDir string) string { return filepath.Join(worldDir, "index", "world.sqlite") }

func openRuntimeIndex(worldDir string, disableDB bool, logger *log.Logger) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("AW_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		logger.Printf("index backend disabled (AW_INDEX_BACKEND=%s)", backend)
		return nil, nil
	case "sqlite":
		idx, err := indexdb.OpenSQLite(indexPath(worldDir))
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unsupported AW_INDEX_BACKEND: %s", backend)
	}
}

type multiTickLogger struct {
	a world.TickLogger
	b world.TickLogger
}

func (m multiTickLogger) WriteTick(entry world.TickLogEntry) error {
	if m.a != nil {
		_ = m.a.WriteTick(entry)
	}
	if m.b != nil {
		_ = m.b.WriteTick(entry)
	}
	return nil
}

type multiEventLogger struct {
	a world.EventLogger
	b world.EventLogger
}

func (m multiEventLogger) WriteEvent(entry world.EventLogEntry) error {
	if m.a != nil {
		_ = m.a.WriteEvent(entry)
	}
	if m.b != nil {
		_ = m.b.WriteEvent(entry)
	}
	return nil
}
