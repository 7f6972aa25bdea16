package world

import (
	"testing"

	"agentworld.ai/internal/sim/geom"
)

func newTestEnv(t *testing.T) *Environment {
	t.Helper()
	e := New(Config{Rows: 20, Cols: 20})
	e.Reset(100, 100)
	return e
}

func box(x, y float64) *Agent { return NewAgent("box", geom.R(x, y, 2, 2)) }

func agentIDs(as []*Agent) []int {
	out := make([]int, 0, len(as))
	for _, a := range as {
		out = append(out, a.ID())
	}
	return out
}

func equalInts(a []int, b ...int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestAddAgent_MonotonicIDsNeverReused(t *testing.T) {
	e := newTestEnv(t)
	a, b := box(0, 0), box(1, 1)
	if id := e.AddAgent(a); id != 1 {
		t.Fatalf("first id = %d", id)
	}
	if id := e.AddAgent(b); id != 2 {
		t.Fatalf("second id = %d", id)
	}
	e.RemoveAgent(b)
	c := box(2, 2)
	if id := e.AddAgent(c); id != 3 {
		t.Fatalf("id after removal = %d, want 3", id)
	}
	// Re-adding keeps the id.
	if id := e.AddAgent(a); id != 1 || e.Len() != 2 {
		t.Fatalf("re-add: id=%d len=%d", id, e.Len())
	}
	// Reset does not rewind the counter.
	e.Reset(100, 100)
	if id := e.AddAgent(box(0, 0)); id != 4 {
		t.Fatalf("id after reset = %d, want 4", id)
	}
}

func TestRemoveAgent_PurgesEverything(t *testing.T) {
	e := newTestEnv(t)
	a := box(0, 0)
	a.Pointer.OnDownHit = func(*Agent, Input) {}
	e.AddAgent(a)
	e.SubscribeAgentToEvents(a, EventKeyDown, "ping")
	e.PropagateUserEvent(EventMouseDown, PointerInput(geom.V(0, 0)), nil, nil)
	if !e.IsInteractive(a) {
		t.Fatalf("expected interactive after hit")
	}

	e.RemoveAgent(a)
	if e.AgentExists(a) || a.Env() != nil {
		t.Fatalf("agent still registered")
	}
	if len(e.AgentsAt(geom.V(0, 0))) != 0 {
		t.Fatalf("agent still indexed")
	}
	if len(e.Subscribers(EventKeyDown)) != 0 || len(e.Subscribers("ping")) != 0 {
		t.Fatalf("subscriptions not revoked")
	}
	if e.IsInteractive(a) {
		t.Fatalf("interactive set not purged")
	}
	// Removing again is a no-op.
	e.RemoveAgent(a)
}

func TestMoveTo_ReindexesRegisteredAgent(t *testing.T) {
	e := newTestEnv(t)
	a := box(0, 0)
	e.AddAgent(a)
	a.MoveTo(geom.V(40, -40))
	if got := agentIDs(e.AgentsAt(geom.V(40, -40))); !equalInts(got, a.ID()) {
		t.Fatalf("AgentsAt after move = %v", got)
	}
	if got := e.AgentsAt(geom.V(0, 0)); len(got) != 0 {
		t.Fatalf("old cell still holds %v", agentIDs(got))
	}
}

func TestKillAllAgents_DestroysThroughHook(t *testing.T) {
	e := newTestEnv(t)
	var destroyed []int
	for i := 0; i < 5; i++ {
		a := box(float64(i*10), 0)
		a.OnDestroy = func(a *Agent) { destroyed = append(destroyed, a.ID()) }
		e.AddAgent(a)
	}
	e.KillAllAgents()
	if e.Len() != 0 {
		t.Fatalf("len=%d after kill", e.Len())
	}
	if !equalInts(destroyed, 1, 2, 3, 4, 5) {
		t.Fatalf("destroy hooks = %v", destroyed)
	}
	if got := e.NearbyAgentsInRect(e.WorldRect()); len(got) != 0 {
		t.Fatalf("grid not cleared: %v", agentIDs(got))
	}
}

func TestKillAllAgents_OwnerDestroyingCamera(t *testing.T) {
	e := newTestEnv(t)
	owner := box(0, 0)
	e.AddAgent(owner)
	cam := NewCamera(owner, geom.V(20, 20))
	e.AddAgent(cam)
	calls := 0
	cam.OnDestroy = func(*Agent) { calls++ }
	owner.OnDestroy = func(*Agent) { cam.Destroy() }

	e.KillAllAgents()
	if calls != 1 {
		t.Fatalf("camera destroy hook ran %d times", calls)
	}
	if e.Len() != 0 {
		t.Fatalf("len=%d", e.Len())
	}
}

func TestOverlappingAgent(t *testing.T) {
	e := newTestEnv(t)
	mover := NewAgent("mover", geom.R(0, 0, 4, 4))
	near := NewAgent("rock", geom.R(5, 0, 4, 4))
	far := NewAgent("rock", geom.R(30, 30, 4, 4))
	cam := NewCamera(mover, geom.V(4, 4))
	for _, a := range []*Agent{mover, near, far, cam} {
		e.AddAgent(a)
	}

	// Distance 5 vs radii 2+2: clear.
	if o, ok := e.OverlappingAgent(mover, mover.Rect); ok {
		t.Fatalf("unexpected overlap with %d", o.ID())
	}
	// Distance 3.5 < 4: overlap with near, never the camera or self.
	o, ok := e.OverlappingAgent(mover, mover.Rect.Moved(geom.V(1.5, 0)))
	if !ok || o != near {
		t.Fatalf("expected overlap with near, got %v %v", o, ok)
	}
	// Exactly touching circles do not overlap.
	if _, ok := e.OverlappingAgent(mover, mover.Rect.Moved(geom.V(1, 0))); ok {
		t.Fatalf("touching circles reported as overlapping")
	}
}

func TestOverlappingAgent_LargeAgentSeveralCellsAway(t *testing.T) {
	e := newTestEnv(t) // 5x5 cells
	mover := NewAgent("mover", geom.R(-30, 0, 2, 2))
	big := NewAgent("boulder", geom.R(20, 0, 30, 30))
	e.AddAgent(mover)
	e.AddAgent(big)

	// Centres are 14 apart, radii 1 + 15.
	o, ok := e.OverlappingAgent(mover, geom.R(6, 0, 2, 2))
	if !ok || o != big {
		t.Fatalf("expected overlap with big agent, got %v %v", o, ok)
	}
	if _, ok := e.OverlappingAgent(mover, geom.R(3, 0, 2, 2).Moved(geom.V(0, 40))); ok {
		t.Fatalf("overlap reported for a distant rectangle")
	}
}

func TestOverlappingAgent_SeesGrownAgent(t *testing.T) {
	e := newTestEnv(t)
	mover := NewAgent("mover", geom.R(-30, 0, 2, 2))
	rock := NewAgent("rock", geom.R(20, 0, 2, 2))
	e.AddAgent(mover)
	e.AddAgent(rock)
	if _, ok := e.OverlappingAgent(mover, geom.R(6, 0, 2, 2)); ok {
		t.Fatalf("small rock should not overlap")
	}
	rock.SetSize(geom.V(30, 30))
	if o, ok := e.OverlappingAgent(mover, geom.R(6, 0, 2, 2)); !ok || o != rock {
		t.Fatalf("grown rock not reported: %v %v", o, ok)
	}
}

func TestCameras(t *testing.T) {
	e := newTestEnv(t)
	a, b := box(0, 0), box(20, 20)
	e.AddAgent(a)
	e.AddAgent(b)
	ca := NewCamera(a, geom.V(10, 10))
	e.AddAgent(ca)

	if got := agentIDs(e.Cameras()); !equalInts(got, ca.ID()) {
		t.Fatalf("Cameras = %v", got)
	}
	if c, ok := e.AgentCamera(a); !ok || c != ca {
		t.Fatalf("AgentCamera(a) = %v %v", c, ok)
	}
	if _, ok := e.AgentCamera(b); ok {
		t.Fatalf("b has no camera")
	}
	if !ca.CanSee(a) || ca.CanSee(b) {
		t.Fatalf("CanSee mismatch")
	}
	a.Visible = false
	if ca.CanSee(a) {
		t.Fatalf("camera sees an invisible agent")
	}
	if got := e.VisibleTo(ca); len(got) != 0 {
		t.Fatalf("VisibleTo = %v", agentIDs(got))
	}
}

func TestConcreteScenario(t *testing.T) {
	e := newTestEnv(t)
	a, b := box(0, 0), box(50, 50)
	e.AddAgent(a)
	e.AddAgent(b)
	q := geom.RectFromCorners(geom.V(-50, -50), geom.V(50, 50))
	if got := agentIDs(e.NearbyAgentsInRect(q)); !equalInts(got, a.ID(), b.ID()) {
		t.Fatalf("NearbyAgentsInRect = %v", got)
	}
	if got := agentIDs(e.AgentsAt(geom.V(0, 0))); !equalInts(got, a.ID()) {
		t.Fatalf("AgentsAt = %v", got)
	}
}
