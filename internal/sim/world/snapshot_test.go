package world

import (
	"context"
	"testing"
	"time"

	"agentworld.ai/internal/persistence/snapshot"
	"agentworld.ai/internal/sim/geom"
)

func TestExportImportSnapshot(t *testing.T) {
	e := New(Config{WorldID: "w", Rows: 10, Cols: 10})
	e.Reset(200, 100)
	avatar := NewAgent("avatar", geom.R(3, 4, 2, 2))
	avatar.User = true
	avatar.Solid = true
	e.AddAgent(avatar)
	e.AddAgent(box(-20, 10))
	gone := box(0, 0)
	e.AddAgent(gone)
	e.RemoveAgent(gone)
	cam := NewCamera(avatar, geom.V(40, 30))
	e.AddAgent(cam)
	e.SubscribeAgentToEvents(avatar, EventKeyDown)
	e.Tick()

	snap := e.ExportSnapshot()
	if snap.Header.Tick != 1 || snap.NextID != 5 || len(snap.Agents) != 3 {
		t.Fatalf("export: tick=%d next=%d agents=%d", snap.Header.Tick, snap.NextID, len(snap.Agents))
	}
	if snap.World.Width != 200 || snap.World.Rows != 10 {
		t.Fatalf("world=%+v", snap.World)
	}

	r := New(Config{})
	built := 0
	err := r.ImportSnapshot(snap, func(av snapshot.AgentV1) *Agent {
		built++
		if av.Camera {
			return NewCamera(nil, geom.Vec{})
		}
		return &Agent{}
	})
	if err != nil {
		t.Fatalf("ImportSnapshot: %v", err)
	}
	if built != 3 || r.Len() != 3 || r.CurrentTick() != 1 {
		t.Fatalf("built=%d len=%d tick=%d", built, r.Len(), r.CurrentTick())
	}
	got, ok := r.Agent(avatar.ID())
	if !ok || !got.User || !got.Solid || got.Position() != geom.V(3, 4) {
		t.Fatalf("avatar not restored: %+v", got)
	}
	rc, ok := r.AgentCamera(got)
	if !ok || rc.ID() != cam.ID() || rc.Rect.Size != geom.V(40, 30) {
		t.Fatalf("camera owner not re-linked")
	}
	if ids := r.Subscribers(EventKeyDown); !equalInts(ids, avatar.ID()) {
		t.Fatalf("subscriptions=%v", ids)
	}
	if id := r.AddAgent(box(0, 0)); id != 5 {
		t.Fatalf("next id after import = %d, want 5", id)
	}
	if r.Config().Rows != 10 {
		t.Fatalf("grid rows not restored")
	}
}

func TestImportSnapshot_RejectsBadInput(t *testing.T) {
	e := New(Config{})
	if err := e.ImportSnapshot(snapshot.SnapshotV1{Header: snapshot.Header{Version: 7}}, nil); err == nil {
		t.Fatalf("expected version error")
	}
	bad := snapshot.SnapshotV1{Header: snapshot.Header{Version: snapshot.Version}}
	if err := e.ImportSnapshot(bad, nil); err == nil {
		t.Fatalf("expected world size error")
	}
	dup := snapshot.SnapshotV1{
		Header: snapshot.Header{Version: snapshot.Version},
		World:  snapshot.WorldV1{Width: 10, Height: 10},
		Agents: []snapshot.AgentV1{{ID: 1}, {ID: 1}},
	}
	if err := e.ImportSnapshot(dup, nil); err == nil {
		t.Fatalf("expected duplicate id error")
	}
}

func TestSnapshotSink(t *testing.T) {
	e := New(Config{SnapshotEveryTicks: 2, TickInterval: time.Hour})
	e.Reset(100, 100)
	sink := make(chan snapshot.SnapshotV1, 1)
	e.SetSnapshotSink(sink)
	e.Tick()
	select {
	case <-sink:
		t.Fatalf("snapshot emitted on an off tick")
	default:
	}
	e.Tick()
	select {
	case s := <-sink:
		if s.Header.Tick != 2 {
			t.Fatalf("tick=%d", s.Header.Tick)
		}
	default:
		t.Fatalf("no snapshot on tick 2")
	}

	e.Resume()
	defer e.Stop()
	tick, err := e.RequestSnapshot(context.Background())
	if err != nil || tick != 2 {
		t.Fatalf("RequestSnapshot: tick=%d err=%v", tick, err)
	}
	if s := <-sink; s.Header.Tick != 2 {
		t.Fatalf("requested snapshot tick=%d", s.Header.Tick)
	}
}
