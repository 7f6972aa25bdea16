package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"

	"agentworld.ai/internal/sim/behaviors"
	"agentworld.ai/internal/sim/tuning"
	"agentworld.ai/internal/sim/world"
	"agentworld.ai/internal/transport/term"
)

func main() {
	var (
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		name       = flag.String("name", "player", "avatar name")
		logPath    = flag.String("log", "", "log file (the terminal is taken by the shell; default: discard)")
	)
	flag.Parse()

	var logOut io.Writer = io.Discard
	if *logPath != "" {
		f, err := os.OpenFile(*logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Fatalf("open log: %v", err)
		}
		defer f.Close()
		logOut = f
	}
	logger := log.New(logOut, "[tui] ", log.LstdFlags|log.Lmicroseconds)

	tp := *tuningPath
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Fatalf("load tuning: %v", err)
		}
		tune = tuning.Defaults()
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		log.Fatalf("screen: %v", err)
	}
	if err := screen.Init(); err != nil {
		log.Fatalf("screen init: %v", err)
	}
	screen.EnableMouse()
	defer screen.Fini()

	env := world.New(world.Config{
		WorldID:      "local",
		Rows:         tune.World.Rows,
		Cols:         tune.World.Cols,
		TickInterval: time.Duration(tune.TickIntervalMs) * time.Millisecond,
	})
	env.SetLogger(logger)
	env.Start(tune.World.Width, tune.World.Height)
	defer env.Stop()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := env.Do(ctx, func(e *world.Environment) { behaviors.Populate(e, tune.Population) }); err != nil {
		logger.Printf("populate: %v", err)
		return
	}

	sh := term.NewShell(env, screen, tune, logger)
	if err := sh.Attach(ctx, *name); err != nil {
		logger.Printf("%v", err)
		return
	}
	if err := sh.Run(ctx); err != nil && err != context.Canceled {
		logger.Printf("shell: %v", err)
	}
	dctx, dcancel := context.WithTimeout(context.Background(), time.Second)
	defer dcancel()
	_ = sh.Detach(dctx)
}
