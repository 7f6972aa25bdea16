package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	event := fs.String("event", "", "event name filter (events)")
	_ = fs.Parse(args)

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "worlds", *worldID, "index", "world.sqlite")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := runQuery(db, q, *limit, *event, printJSON); err != nil {
		fmt.Fprintln(os.Stderr, q+":", err)
		os.Exit(1)
	}
}

// runQuery emits one row per call to emit, newest first.
func runQuery(db *sql.DB, q string, limit int, event string, emit func(any)) error {
	if limit <= 0 {
		limit = 20
	}
	switch q {
	case "snapshots":
		rows, err := db.Query(`SELECT tick,path,world_id,agents,cameras,subscriptions,recorded_at FROM snapshots ORDER BY tick DESC LIMIT ?`, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick          int64  `json:"tick"`
				Path          string `json:"path"`
				WorldID       string `json:"world_id"`
				Agents        int    `json:"agents"`
				Cameras       int    `json:"cameras"`
				Subscriptions int    `json:"subscriptions"`
				RecordedAt    string `json:"recorded_at"`
			}
			if err := rows.Scan(&r.Tick, &r.Path, &r.WorldID, &r.Agents, &r.Cameras, &r.Subscriptions, &r.RecordedAt); err != nil {
				return err
			}
			emit(r)
		}
		return rows.Err()

	case "ticks":
		rows, err := db.Query(`SELECT tick,agents,eligible,failed,dispatched,step_ms FROM ticks ORDER BY tick DESC LIMIT ?`, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick       int64   `json:"tick"`
				Agents     int     `json:"agents"`
				Eligible   int     `json:"eligible"`
				Failed     int     `json:"failed"`
				Dispatched int     `json:"dispatched"`
				StepMS     float64 `json:"step_ms"`
			}
			if err := rows.Scan(&r.Tick, &r.Agents, &r.Eligible, &r.Failed, &r.Dispatched, &r.StepMS); err != nil {
				return err
			}
			emit(r)
		}
		return rows.Err()

	case "events":
		query := `SELECT tick,seq,event,target,recipients FROM events`
		params := []any{}
		if event != "" {
			query += ` WHERE event=?`
			params = append(params, event)
		}
		query += ` ORDER BY tick DESC, seq DESC LIMIT ?`
		params = append(params, limit)
		rows, err := db.Query(query, params...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick       int64  `json:"tick"`
				Seq        int    `json:"seq"`
				Event      string `json:"event"`
				Target     int    `json:"target,omitempty"`
				Recipients int    `json:"recipients"`
			}
			if err := rows.Scan(&r.Tick, &r.Seq, &r.Event, &r.Target, &r.Recipients); err != nil {
				return err
			}
			emit(r)
		}
		return rows.Err()

	case "meta":
		rows, err := db.Query(`SELECT key,value FROM meta ORDER BY key`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Key   string `json:"key"`
				Value string `json:"value"`
			}
			if err := rows.Scan(&r.Key, &r.Value); err != nil {
				return err
			}
			emit(r)
		}
		return rows.Err()
	}
	return fmt.Errorf("unknown query (want snapshots|ticks|events|meta)")
}

func printJSON(v any) {
	b, _ := json.Marshal(v)
	fmt.Println(string(b))
}
