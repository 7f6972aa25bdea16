package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	persistlog "agentworld.ai/internal/persistence/log"
	"agentworld.ai/internal/persistence/snapshot"
	"agentworld.ai/internal/sim/behaviors"
	"agentworld.ai/internal/sim/tuning"
	"agentworld.ai/internal/sim/world"
	"agentworld.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "world_1", "world id")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite read-model index (ticks/events/snapshot metadata)")
		populate   = flag.Bool("populate", true, "seed demo wanderers on a fresh world")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	_ = os.MkdirAll(worldDir, 0o755)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = snapshot.Latest(filepath.Join(worldDir, "snapshots"))
	}

	// Tuning is required for a fresh world; a resume can fall back to defaults.
	tune, tuneErr := tuning.Load(tp)
	if tuneErr != nil {
		if snapshotToLoad == "" || !os.IsNotExist(tuneErr) {
			logger.Fatalf("load tuning: %v", tuneErr)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	// Optional read-model index (does not affect the simulation).
	idx, err := openRuntimeIndex(worldDir, *disableDB, logger)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertTuning(tune); err != nil {
			logger.Printf("index backend: upsert tuning: %v", err)
		}
	}

	env := world.New(world.Config{
		WorldID:            *worldID,
		Rows:               tune.World.Rows,
		Cols:               tune.World.Cols,
		TickInterval:       time.Duration(tune.TickIntervalMs) * time.Millisecond,
		SnapshotEveryTicks: uint64(tune.SnapshotEveryTicks),
	})
	env.SetLogger(log.New(os.Stdout, "[world] ", log.LstdFlags|log.Lmicroseconds))

	tickLog := persistlog.NewTickLogger(worldDir)
	eventLog := persistlog.NewEventLogger(worldDir)
	defer tickLog.Close()
	defer eventLog.Close()
	if idx != nil {
		env.SetTickLogger(multiTickLogger{a: tickLog, b: idx})
		env.SetEventLogger(multiEventLogger{a: eventLog, b: idx})
	} else {
		env.SetTickLogger(tickLog)
		env.SetEventLogger(eventLog)
	}

	ctx, cancel := signalContext()
	defer cancel()

	// Snapshot writer.
	snapCh := make(chan snapshot.SnapshotV1, 2)
	env.SetSnapshotSink(snapCh)
	go writeSnapshots(ctx, worldDir, snapCh, idx, logger)

	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if snap.Header.WorldID != "" && snap.Header.WorldID != *worldID {
			logger.Fatalf("snapshot world id mismatch: flag=%s snap=%s", *worldID, snap.Header.WorldID)
		}
		if err := env.ImportSnapshot(snap, behaviors.Rebuilder(tune)); err != nil {
			logger.Fatalf("import snapshot: %v", err)
		}
		env.Resume()
		logger.Printf("resumed from snapshot=%s tick=%d agents=%d", filepath.Base(snapshotToLoad), env.CurrentTick(), len(snap.Agents))
	} else {
		env.Start(tune.World.Width, tune.World.Height)
		if *populate {
			var n int
			err := env.Do(ctx, func(e *world.Environment) { n = len(behaviors.Populate(e, tune.Population)) })
			if err != nil {
				logger.Fatalf("populate: %v", err)
			}
			logger.Printf("fresh world %s %gx%g with %d wanderers", *worldID, tune.World.Width, tune.World.Height, n)
		}
	}
	defer env.Stop()

	wsSrv := ws.NewServer(env, tune, log.New(os.Stdout, "[ws] ", log.LstdFlags|log.Lmicroseconds))
	mux := newMux(*worldID, env, wsSrv, idx, envBool("AW_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()), logger)

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func writeSnapshots(ctx context.Context, worldDir string, ch <-chan snapshot.SnapshotV1, idx runtimeIndex, logger *log.Logger) {
	dir := filepath.Join(worldDir, "snapshots")
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-ch:
			path := filepath.Join(dir, snapshot.FileName(snap.Header.Tick))
			if err := snapshot.WriteSnapshot(path, snap); err != nil {
				logger.Printf("snapshot write: %v", err)
				continue
			}
			if fi, err := os.Stat(path); err == nil {
				logger.Printf("snapshot tick=%d agents=%d size=%s", snap.Header.Tick, len(snap.Agents), humanize.Bytes(uint64(fi.Size())))
			}
			if idx != nil {
				idx.RecordSnapshot(path, snap)
			}
		}
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
