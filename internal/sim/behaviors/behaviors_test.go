package behaviors

import (
	"math/rand"
	"testing"

	"agentworld.ai/internal/persistence/snapshot"
	"agentworld.ai/internal/sim/geom"
	"agentworld.ai/internal/sim/tuning"
	"agentworld.ai/internal/sim/world"
)

func newEnv(t *testing.T) *world.Environment {
	t.Helper()
	e := world.New(world.Config{})
	e.Reset(100, 100)
	return e
}

func TestKeyMover(t *testing.T) {
	e := newEnv(t)
	a := NewAvatar("p1", geom.V(0, 0), tuning.Avatar{Width: 2, Height: 2, Step: 3})
	e.AddAgent(a)

	e.PropagateUserEvent(world.EventKeyDown, world.KeyInput("ArrowUp"), nil, a)
	if a.Position() != geom.V(0, 3) {
		t.Fatalf("after up: %+v", a.Position())
	}
	e.PropagateUserEvent(world.EventKeyDown, world.KeyInput("a"), nil, a)
	if a.Position() != geom.V(-3, 3) {
		t.Fatalf("after a: %+v", a.Position())
	}
	e.PropagateUserEvent(world.EventKeyDown, world.KeyInput("F1"), nil, a)
	if a.Position() != geom.V(-3, 3) {
		t.Fatalf("unmapped key moved the avatar")
	}

	// A solid rock blocks the next step.
	rock := world.NewAgent("rock", geom.R(-3, 6, 2, 2))
	rock.Solid = true
	e.AddAgent(rock)
	e.PropagateUserEvent(world.EventKeyDown, world.KeyInput("w"), nil, a)
	if a.Position() != geom.V(-3, 3) {
		t.Fatalf("moved into a solid agent: %+v", a.Position())
	}

	// Moves are clamped to the world.
	a.MoveTo(geom.V(49, 0))
	e.PropagateUserEvent(world.EventKeyDown, world.KeyInput("d"), nil, a)
	if a.Position().X != 50 {
		t.Fatalf("not clamped: %+v", a.Position())
	}
}

func TestDraggable(t *testing.T) {
	e := newEnv(t)
	a := world.NewAgent("crate", geom.R(10, 10, 4, 4))
	Draggable(a)
	e.AddAgent(a)

	e.PropagateUserEvent(world.EventMouseDown, world.PointerInput(geom.V(11, 10)), nil, nil)
	if !e.IsInteractive(a) {
		t.Fatalf("grab failed")
	}
	vp := geom.R(-40, -40, 10, 10)
	e.PropagateUserEvent(world.EventMouseMove, world.PointerInput(geom.V(-39, -40)), &vp, nil)
	if a.Position() != geom.V(-40, -40) {
		t.Fatalf("drag kept grab offset wrong: %+v", a.Position())
	}
	e.PropagateUserEvent(world.EventMouseUp, world.PointerInput(geom.V(-39, -40)), &vp, nil)
	e.PropagateUserEvent(world.EventMouseMove, world.PointerInput(geom.V(-30, -30)), nil, nil)
	if a.Position() != geom.V(-40, -40) {
		t.Fatalf("moved after release: %+v", a.Position())
	}
}

func TestWanderStaysInWorldAndAvoidsOverlap(t *testing.T) {
	e := newEnv(t)
	user := world.NewAgent("user", geom.R(0, 0, 2, 2))
	user.User = true
	e.AddAgent(user)

	w := world.NewAgent(KindWanderer, geom.R(3, 0, 2, 2))
	w.Behavior = Wander(rand.New(rand.NewSource(7)), 1)
	e.AddAgent(w)

	for i := 0; i < 500; i++ {
		e.Tick()
		if !e.WorldRect().Contains(w.Position()) {
			t.Fatalf("tick %d: left the world at %+v", i, w.Position())
		}
		if w.Position().Dist(user.Position()) < 2 {
			t.Fatalf("tick %d: overlapping the user at %+v", i, w.Position())
		}
	}
}

func TestPopulateIsSeeded(t *testing.T) {
	pop := tuning.Population{Wanderers: 12, Size: 2, Speed: 1, Seed: 99}
	a, b := newEnv(t), newEnv(t)
	pa, pb := Populate(a, pop), Populate(b, pop)
	if len(pa) != 12 || a.Len() != 12 {
		t.Fatalf("populated %d/%d", len(pa), a.Len())
	}
	draggable := 0
	for i := range pa {
		if pa[i].Position() != pb[i].Position() {
			t.Fatalf("agent %d differs: %+v vs %+v", i, pa[i].Position(), pb[i].Position())
		}
		if pa[i].Pointer.OnDownHit != nil {
			draggable++
		}
	}
	if draggable != 4 {
		t.Fatalf("draggable=%d, want 4", draggable)
	}
}

func TestRebuilderDropsSessionAgents(t *testing.T) {
	build := Rebuilder(tuning.Defaults())
	if build(snapshot.AgentV1{ID: 1, Kind: KindAvatar}) != nil {
		t.Fatalf("avatar rebuilt")
	}
	if build(snapshot.AgentV1{ID: 2, Kind: "camera", Camera: true}) != nil {
		t.Fatalf("camera rebuilt")
	}
	if a := build(snapshot.AgentV1{ID: 3, Kind: KindWanderer, Pointer: true}); a == nil || a.Behavior == nil || a.Pointer.OnDownHit == nil {
		t.Fatalf("wanderer not rebuilt with behaviors")
	}
	if a := build(snapshot.AgentV1{ID: 6, Kind: KindWanderer}); a == nil || a.Pointer.OnDownHit != nil {
		t.Fatalf("non-draggable wanderer rebuilt as draggable")
	}
	if a := build(snapshot.AgentV1{ID: 4, Kind: "rock"}); a == nil || a.Behavior != nil {
		t.Fatalf("plain agent rebuilt wrong")
	}
}

func TestRebuilderKeepsDraggableSet(t *testing.T) {
	tune := tuning.Defaults()
	tune.Population.Wanderers = 7
	src := world.New(world.Config{})
	src.Reset(200, 200)
	Populate(src, tune.Population)

	dst := world.New(world.Config{})
	if err := dst.ImportSnapshot(src.ExportSnapshot(), Rebuilder(tune)); err != nil {
		t.Fatalf("ImportSnapshot: %v", err)
	}
	for _, a := range src.Agents() {
		b, ok := dst.Agent(a.ID())
		if !ok {
			t.Fatalf("agent %d not restored", a.ID())
		}
		if (a.Pointer.OnDownHit != nil) != (b.Pointer.OnDownHit != nil) {
			t.Fatalf("agent %d: draggable=%v before, %v after", a.ID(), a.Pointer.OnDownHit != nil, b.Pointer.OnDownHit != nil)
		}
	}
}
