package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"agentworld.ai/internal/sim/world"
	"agentworld.ai/internal/transport/ws"
)

func newMux(worldID string, env *world.Environment, wsSrv *ws.Server, idx runtimeIndex, enableAdmin bool, logger *log.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		if !env.Running() {
			http.Error(rw, "world stopped", http.StatusServiceUnavailable)
			return
		}
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, worldID, env, wsSrv, idx)
	})

	if enableAdmin {
		// Local-only admin endpoints.
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			resp := struct {
				WorldID  string        `json:"world_id"`
				Tick     uint64        `json:"tick"`
				Running  bool          `json:"running"`
				Sessions int           `json:"sessions"`
				Metrics  world.Metrics `json:"metrics"`
			}{
				WorldID:  worldID,
				Tick:     env.CurrentTick(),
				Running:  env.Running(),
				Sessions: wsSrv.Sessions(),
				Metrics:  env.Metrics(),
			}
			_ = json.NewEncoder(rw).Encode(resp)
		})
		mux.HandleFunc("/admin/v1/snapshot", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			ctx2, cancel2 := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel2()
			tick, err := env.RequestSnapshot(ctx2)
			rw.Header().Set("Content-Type", "application/json")
			if err != nil {
				rw.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "tick": tick, "error": err.Error()})
				return
			}
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "tick": tick})
		})
	} else {
		logger.Printf("admin endpoints disabled (AW_ENABLE_ADMIN_HTTP=false)")
	}
	mux.HandleFunc("/v1/ws", wsSrv.Handler())
	return mux
}

// writeMetrics emits a minimal Prometheus exposition.
func writeMetrics(rw http.ResponseWriter, worldID string, env *world.Environment, wsSrv *ws.Server, idx runtimeIndex) {
	m := env.Metrics()
	tick := env.CurrentTick()
	if m.Tick != 0 {
		tick = m.Tick
	}

	gauge := func(name, help string, v any) {
		fmt.Fprintf(rw, "# HELP agentworld_%s %s\n", name, help)
		fmt.Fprintf(rw, "# TYPE agentworld_%s gauge\n", name)
		switch v := v.(type) {
		case float64:
			fmt.Fprintf(rw, "agentworld_%s{world=%q} %.3f\n", name, worldID, v)
		default:
			fmt.Fprintf(rw, "agentworld_%s{world=%q} %d\n", name, worldID, v)
		}
	}
	gauge("world_tick", "Current world tick.", tick)
	gauge("world_agents", "Registered agents.", m.Agents)
	gauge("world_cameras", "Registered cameras.", m.Cameras)
	gauge("world_interactive", "Agents in the interactive set.", m.Interactive)
	gauge("world_subscriptions", "Explicit event subscriptions.", m.Subscriptions)
	gauge("world_eligible", "Behaviors run in the last tick.", m.Eligible)
	gauge("world_failed", "Behaviors that failed in the last tick.", m.Failed)
	gauge("world_dispatched", "Events dispatched in the last tick.", m.Dispatched)
	gauge("world_step_ms", "Last tick step duration in milliseconds.", m.StepMS)
	gauge("ws_sessions", "Connected websocket sessions.", wsSrv.Sessions())

	if idx == nil {
		return
	}
	s := idx.Stats()
	fmt.Fprintf(rw, "# HELP agentworld_index_queue_depth Index writer backlog.\n")
	fmt.Fprintf(rw, "# TYPE agentworld_index_queue_depth gauge\n")
	fmt.Fprintf(rw, "agentworld_index_queue_depth{world=%q} %d\n", worldID, s.QueueDepth)
	fmt.Fprintf(rw, "# HELP agentworld_index_dropped_total Index writes dropped on a full queue.\n")
	fmt.Fprintf(rw, "# TYPE agentworld_index_dropped_total counter\n")
	fmt.Fprintf(rw, "agentworld_index_dropped_total{world=%q,kind=%q} %d\n", worldID, "tick", s.DropTickTotal)
	fmt.Fprintf(rw, "agentworld_index_dropped_total{world=%q,kind=%q} %d\n", worldID, "event", s.DropEventTotal)
	fmt.Fprintf(rw, "agentworld_index_dropped_total{world=%q,kind=%q} %d\n", worldID, "snapshot", s.DropSnapshotTotal)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
