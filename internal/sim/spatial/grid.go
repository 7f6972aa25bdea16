// Package spatial implements the fixed-resolution segment grid used to answer
// proximity queries over the world rectangle [-W/2, W/2] x [-H/2, H/2].
//
// Rows run top-down (higher Y maps to a lower row), columns left-to-right.
// Positions outside the world, or not finite, are clamped to an edge cell.
package spatial

import (
	"math"
	"sort"

	"agentworld.ai/internal/sim/geom"
)

const (
	DefaultRows = 20
	DefaultCols = 20
)

// Item is anything the grid can index.
type Item interface {
	ID() int
	Position() geom.Vec
}

type Cell struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

type segment[T Item] struct {
	cell  Cell
	items map[int]T
	// Indices of the 3x3 neighbourhood (self included), clamped at the edges.
	neighbors []int
}

// Grid keeps a forward index (segment -> items) and a reverse index
// (item id -> segment). Every mutating call leaves both consistent.
// A Grid is not safe for concurrent use.
type Grid[T Item] struct {
	width  float64
	height float64
	rows   int
	cols   int

	segments []segment[T]
	index    map[int]int
}

func New[T Item](width, height float64, rows, cols int) *Grid[T] {
	g := &Grid[T]{}
	g.Start(width, height, rows, cols)
	return g
}

// Start (re)initializes the grid and discards all indexed items.
func (g *Grid[T]) Start(width, height float64, rows, cols int) {
	if !(width > 0) || math.IsInf(width, 0) {
		width = 1
	}
	if !(height > 0) || math.IsInf(height, 0) {
		height = 1
	}
	if rows <= 0 {
		rows = DefaultRows
	}
	if cols <= 0 {
		cols = DefaultCols
	}
	g.width, g.height = width, height
	g.rows, g.cols = rows, cols
	g.index = make(map[int]int)
	g.segments = make([]segment[T], rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			s := &g.segments[r*cols+c]
			s.cell = Cell{Row: r, Col: c}
			s.items = make(map[int]T)
			for dr := -1; dr <= 1; dr++ {
				for dc := -1; dc <= 1; dc++ {
					nr, nc := r+dr, c+dc
					if nr < 0 || nr >= rows || nc < 0 || nc >= cols {
						continue
					}
					s.neighbors = append(s.neighbors, nr*cols+nc)
				}
			}
		}
	}
}

func (g *Grid[T]) Rows() int { return g.rows }
func (g *Grid[T]) Cols() int { return g.cols }
func (g *Grid[T]) Len() int  { return len(g.index) }

// Bounds returns the world rectangle covered by the grid.
func (g *Grid[T]) Bounds() geom.Rect { return geom.R(0, 0, g.width, g.height) }

// CellSize is the world-space size of one segment.
func (g *Grid[T]) CellSize() geom.Vec {
	return geom.V(g.width/float64(g.cols), g.height/float64(g.rows))
}

// CellOf maps a world position to its segment, clamping to the grid edges.
func (g *Grid[T]) CellOf(p geom.Vec) Cell {
	x, y := p.X, p.Y
	if math.IsNaN(x) {
		x = 0
	}
	if math.IsNaN(y) {
		y = 0
	}
	fc := (x + g.width/2) / g.width * float64(g.cols)
	fr := (g.height/2 - y) / g.height * float64(g.rows)
	return Cell{Row: clampIndex(fr, g.rows), Col: clampIndex(fc, g.cols)}
}

func clampIndex(f float64, n int) int {
	if !(f > 0) {
		return 0
	}
	if f >= float64(n) {
		return n - 1
	}
	return int(f)
}

func (g *Grid[T]) segmentAt(c Cell) int { return c.Row*g.cols + c.Col }

// Add indexes it at its current position. Adding an already indexed item moves it.
func (g *Grid[T]) Add(it T) {
	id := it.ID()
	next := g.segmentAt(g.CellOf(it.Position()))
	if cur, ok := g.index[id]; ok && cur != next {
		delete(g.segments[cur].items, id)
	}
	g.segments[next].items[id] = it
	g.index[id] = next
}

// Update re-indexes it after a move. Cheap when the segment did not change.
func (g *Grid[T]) Update(it T) { g.Add(it) }

// Remove drops it from the grid; a no-op when it is not indexed.
func (g *Grid[T]) Remove(it T) { g.RemoveID(it.ID()) }

func (g *Grid[T]) RemoveID(id int) {
	cur, ok := g.index[id]
	if !ok {
		return
	}
	delete(g.segments[cur].items, id)
	delete(g.index, id)
}

// CellFor reports the segment an item is currently indexed in.
func (g *Grid[T]) CellFor(id int) (Cell, bool) {
	cur, ok := g.index[id]
	if !ok {
		return Cell{}, false
	}
	return g.segments[cur].cell, true
}

// Clear empties every segment without changing the dimensions.
func (g *Grid[T]) Clear() {
	for i := range g.segments {
		clear(g.segments[i].items)
	}
	clear(g.index)
}

// Nearby returns the items in the segment holding it and the neighbouring
// segments, including it.
func (g *Grid[T]) Nearby(it T) []T {
	if cur, ok := g.index[it.ID()]; ok {
		return g.collect(g.segments[cur].neighbors)
	}
	return g.NearbyAt(it.Position())
}

// NearbyAt returns the items in the 3x3 neighbourhood of the segment containing p.
func (g *Grid[T]) NearbyAt(p geom.Vec) []T {
	return g.collect(g.segments[g.segmentAt(g.CellOf(p))].neighbors)
}

// AtPosition returns only the items in the segment containing p.
func (g *Grid[T]) AtPosition(p geom.Vec) []T {
	return g.collect([]int{g.segmentAt(g.CellOf(p))})
}

// InRect returns the items of every segment between the segments holding the
// rectangle's top-left and bottom-right corners.
func (g *Grid[T]) InRect(r geom.Rect) []T {
	a := g.CellOf(r.TopLeft())
	b := g.CellOf(r.BottomRight())
	r0, r1 := min(a.Row, b.Row), max(a.Row, b.Row)
	c0, c1 := min(a.Col, b.Col), max(a.Col, b.Col)
	idx := make([]int, 0, (r1-r0+1)*(c1-c0+1))
	for row := r0; row <= r1; row++ {
		for col := c0; col <= c1; col++ {
			idx = append(idx, row*g.cols+col)
		}
	}
	return g.collect(idx)
}

// ItemsIn returns the items of a single segment.
func (g *Grid[T]) ItemsIn(c Cell) []T {
	if c.Row < 0 || c.Row >= g.rows || c.Col < 0 || c.Col >= g.cols {
		return nil
	}
	return g.collect([]int{g.segmentAt(c)})
}

func (g *Grid[T]) collect(segs []int) []T {
	n := 0
	for _, i := range segs {
		n += len(g.segments[i].items)
	}
	if n == 0 {
		return nil
	}
	out := make([]T, 0, n)
	for _, i := range segs {
		for _, it := range g.segments[i].items {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}
