package spatial

import (
	"math"
	"testing"

	"agentworld.ai/internal/sim/geom"
)

type dot struct {
	id  int
	pos geom.Vec
}

func (d *dot) ID() int            { return d.id }
func (d *dot) Position() geom.Vec { return d.pos }

func newTestGrid() *Grid[*dot] { return New[*dot](100, 100, 20, 20) }

func ids(items []*dot) []int {
	out := make([]int, 0, len(items))
	for _, it := range items {
		out = append(out, it.id)
	}
	return out
}

func sameIDs(got []*dot, want ...int) bool {
	g := ids(got)
	if len(g) != len(want) {
		return false
	}
	for i := range g {
		if g[i] != want[i] {
			return false
		}
	}
	return true
}

// memberships counts the segments whose forward index holds id.
func memberships(g *Grid[*dot], id int) int {
	n := 0
	for r := 0; r < g.Rows(); r++ {
		for c := 0; c < g.Cols(); c++ {
			for _, it := range g.ItemsIn(Cell{Row: r, Col: c}) {
				if it.id == id {
					n++
				}
			}
		}
	}
	return n
}

func TestGrid_RoundTrip(t *testing.T) {
	g := newTestGrid()
	for i, p := range []geom.Vec{{X: 0, Y: 0}, {X: -49, Y: 49}, {X: 33.3, Y: -12.5}, {X: 49.9, Y: -49.9}} {
		d := &dot{id: i + 1, pos: p}
		g.Add(d)
		found := false
		for _, it := range g.AtPosition(p) {
			if it == d {
				found = true
			}
		}
		if !found {
			t.Fatalf("item %d not found at %+v", d.id, p)
		}
		g.Remove(d)
		if n := memberships(g, d.id); n != 0 {
			t.Fatalf("item %d still in %d segments after remove", d.id, n)
		}
		if _, ok := g.CellFor(d.id); ok {
			t.Fatalf("reverse index still holds %d", d.id)
		}
	}
}

func TestGrid_ClampsEdgesAndCorners(t *testing.T) {
	g := newTestGrid()
	cases := []struct {
		p    geom.Vec
		want Cell
	}{
		{geom.V(-50, 50), Cell{0, 0}},
		{geom.V(50, 50), Cell{0, 19}},
		{geom.V(-50, -50), Cell{19, 0}},
		{geom.V(50, -50), Cell{19, 19}},
		{geom.V(0, 50), Cell{0, 10}},
		{geom.V(0, -50), Cell{19, 10}},
		{geom.V(-50, 0), Cell{10, 0}},
		{geom.V(50, 0), Cell{10, 19}},
		{geom.V(-1000, 1000), Cell{0, 0}},
		{geom.V(1000, -1000), Cell{19, 19}},
		{geom.V(math.Inf(1), math.Inf(-1)), Cell{19, 19}},
		{geom.V(math.NaN(), math.NaN()), Cell{10, 10}},
	}
	for _, tc := range cases {
		got := g.CellOf(tc.p)
		if got != tc.want {
			t.Fatalf("CellOf(%+v) = %+v, want %+v", tc.p, got, tc.want)
		}
		d := &dot{id: 1, pos: tc.p}
		g.Add(d)
		if c, ok := g.CellFor(1); !ok || c != tc.want {
			t.Fatalf("Add(%+v) indexed in %+v (ok=%v), want %+v", tc.p, c, ok, tc.want)
		}
		g.Remove(d)
	}
}

func TestGrid_RowsAreInvertedRelativeToY(t *testing.T) {
	g := newTestGrid()
	hi := g.CellOf(geom.V(0, 40))
	lo := g.CellOf(geom.V(0, -40))
	if hi.Row >= lo.Row {
		t.Fatalf("higher Y should map to a lower row: hi=%+v lo=%+v", hi, lo)
	}
}

func TestGrid_NearbyIsBoundedToNeighbourhood(t *testing.T) {
	g := newTestGrid()
	center := &dot{id: 1, pos: geom.V(0, 0)}
	diag := &dot{id: 2, pos: geom.V(5, 5)}    // (9,11)
	left := &dot{id: 3, pos: geom.V(-3, 0)}   // (10,9)
	farX := &dot{id: 4, pos: geom.V(12, 0)}   // (10,12)
	farY := &dot{id: 5, pos: geom.V(0, -12)}  // (12,10)
	farXY := &dot{id: 6, pos: geom.V(-20, 20)} // (6,6)
	for _, d := range []*dot{center, diag, left, farX, farY, farXY} {
		g.Add(d)
	}
	if got := g.Nearby(center); !sameIDs(got, 1, 2, 3) {
		t.Fatalf("Nearby = %v, want [1 2 3]", ids(got))
	}
}

func TestGrid_NearbyAtCornerHasFewerNeighbours(t *testing.T) {
	g := newTestGrid()
	corner := &dot{id: 1, pos: geom.V(-50, 50)}
	inside := &dot{id: 2, pos: geom.V(-44, 44)} // (1,1)
	g.Add(corner)
	g.Add(inside)
	if got := g.Nearby(corner); !sameIDs(got, 1, 2) {
		t.Fatalf("Nearby corner = %v", ids(got))
	}
	if n := len(g.segments[0].neighbors); n != 4 {
		t.Fatalf("corner neighbourhood size = %d, want 4", n)
	}
	if n := len(g.segments[g.segmentAt(Cell{0, 10})].neighbors); n != 6 {
		t.Fatalf("edge neighbourhood size = %d, want 6", n)
	}
	if n := len(g.segments[g.segmentAt(Cell{10, 10})].neighbors); n != 9 {
		t.Fatalf("interior neighbourhood size = %d, want 9", n)
	}
}

func TestGrid_InRectScansCornerRange(t *testing.T) {
	g := newTestGrid()
	in := []*dot{
		{id: 1, pos: geom.V(-48, 48)}, // (0,0)
		{id: 2, pos: geom.V(-43, 48)}, // (0,1)
		{id: 3, pos: geom.V(-48, 43)}, // (1,0)
		{id: 4, pos: geom.V(-43, 43)}, // (1,1)
	}
	out := []*dot{
		{id: 5, pos: geom.V(-38, 48)}, // (0,2)
		{id: 6, pos: geom.V(-48, 38)}, // (2,0)
		{id: 7, pos: geom.V(0, 0)},
	}
	for _, d := range append(in, out...) {
		g.Add(d)
	}
	q := geom.RectFromCorners(geom.V(-50, 50), geom.V(-41, 41))
	if got := g.InRect(q); !sameIDs(got, 1, 2, 3, 4) {
		t.Fatalf("InRect = %v, want [1 2 3 4]", ids(got))
	}
}

func TestGrid_UpdateKeepsSingleMembership(t *testing.T) {
	g := newTestGrid()
	d := &dot{id: 9, pos: geom.V(0, 0)}
	g.Add(d)
	old, _ := g.CellFor(9)

	d.pos = geom.V(20, 20)
	g.Update(d)
	now, ok := g.CellFor(9)
	if !ok || now == old {
		t.Fatalf("expected a new segment, old=%+v now=%+v", old, now)
	}
	if n := memberships(g, 9); n != 1 {
		t.Fatalf("item in %d segments, want 1", n)
	}
	if len(g.ItemsIn(old)) != 0 {
		t.Fatalf("old segment still holds the item")
	}

	// Same-cell update and double add stay single.
	d.pos = geom.V(20.5, 20.5)
	g.Update(d)
	g.Add(d)
	if n := memberships(g, 9); n != 1 || g.Len() != 1 {
		t.Fatalf("memberships=%d len=%d after same-cell update", n, g.Len())
	}
}

func TestGrid_RemoveAbsentIsNoop(t *testing.T) {
	g := newTestGrid()
	g.Remove(&dot{id: 42})
	g.RemoveID(43)
	d := &dot{id: 1}
	g.Add(d)
	g.Remove(d)
	g.Remove(d)
	if g.Len() != 0 {
		t.Fatalf("len=%d", g.Len())
	}
}

func TestGrid_ClearKeepsDimensions(t *testing.T) {
	g := newTestGrid()
	g.Add(&dot{id: 1, pos: geom.V(1, 1)})
	g.Add(&dot{id: 2, pos: geom.V(-30, 10)})
	g.Clear()
	if g.Len() != 0 || g.Rows() != 20 || g.Cols() != 20 {
		t.Fatalf("after clear: len=%d rows=%d cols=%d", g.Len(), g.Rows(), g.Cols())
	}
	if got := g.InRect(g.Bounds()); len(got) != 0 {
		t.Fatalf("items survived clear: %v", ids(got))
	}
}

func TestGrid_ConcreteScenario(t *testing.T) {
	g := newTestGrid()
	a := &dot{id: 1, pos: geom.V(0, 0)}
	b := &dot{id: 2, pos: geom.V(50, 50)}
	g.Add(a)
	g.Add(b)

	q := geom.RectFromCorners(geom.V(-50, -50), geom.V(50, 50))
	if got := g.InRect(q); !sameIDs(got, 1, 2) {
		t.Fatalf("InRect = %v, want [1 2]", ids(got))
	}
	if got := g.AtPosition(geom.V(0, 0)); !sameIDs(got, 1) {
		t.Fatalf("AtPosition = %v, want [1]", ids(got))
	}
}

func TestGrid_StartResets(t *testing.T) {
	g := newTestGrid()
	g.Add(&dot{id: 1})
	g.Start(10, 10, 0, 0)
	if g.Len() != 0 || g.Rows() != DefaultRows || g.Cols() != DefaultCols {
		t.Fatalf("restart did not reset: len=%d rows=%d cols=%d", g.Len(), g.Rows(), g.Cols())
	}
}
