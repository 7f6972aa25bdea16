// Package geom holds the small 2D value types the simulation core consumes:
// vectors and axis-aligned rectangles in center/size form. Y grows upward.
package geom

import "math"

type Vec struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func V(x, y float64) Vec { return Vec{X: x, Y: y} }

func (v Vec) Add(o Vec) Vec         { return Vec{X: v.X + o.X, Y: v.Y + o.Y} }
func (v Vec) Sub(o Vec) Vec         { return Vec{X: v.X - o.X, Y: v.Y - o.Y} }
func (v Vec) Scale(k float64) Vec   { return Vec{X: v.X * k, Y: v.Y * k} }
func (v Vec) Len() float64          { return math.Hypot(v.X, v.Y) }
func (v Vec) Dist(o Vec) float64    { return v.Sub(o).Len() }
func (v Vec) IsFinite() bool        { return isFinite(v.X) && isFinite(v.Y) }
func (v Vec) Equal(o Vec) bool      { return v.X == o.X && v.Y == o.Y }
func (v Vec) Array() [2]float64     { return [2]float64{v.X, v.Y} }
func VecFromArray(a [2]float64) Vec { return Vec{X: a[0], Y: a[1]} }

func isFinite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

// Rect is an axis-aligned rectangle described by its center and full size.
type Rect struct {
	Center Vec `json:"center"`
	Size   Vec `json:"size"`
}

func R(cx, cy, w, h float64) Rect { return Rect{Center: Vec{cx, cy}, Size: Vec{w, h}} }

// RectFromCorners builds the rectangle spanned by two opposite corners, in any order.
func RectFromCorners(a, b Vec) Rect {
	minX, maxX := math.Min(a.X, b.X), math.Max(a.X, b.X)
	minY, maxY := math.Min(a.Y, b.Y), math.Max(a.Y, b.Y)
	return Rect{
		Center: Vec{X: (minX + maxX) / 2, Y: (minY + maxY) / 2},
		Size:   Vec{X: maxX - minX, Y: maxY - minY},
	}
}

func (r Rect) Left() float64   { return r.Center.X - r.Size.X/2 }
func (r Rect) Right() float64  { return r.Center.X + r.Size.X/2 }
func (r Rect) Top() float64    { return r.Center.Y + r.Size.Y/2 }
func (r Rect) Bottom() float64 { return r.Center.Y - r.Size.Y/2 }

func (r Rect) TopLeft() Vec     { return Vec{X: r.Left(), Y: r.Top()} }
func (r Rect) BottomRight() Vec { return Vec{X: r.Right(), Y: r.Bottom()} }

// Contains reports whether p lies inside r; edges count as inside.
func (r Rect) Contains(p Vec) bool {
	return p.X >= r.Left() && p.X <= r.Right() && p.Y >= r.Bottom() && p.Y <= r.Top()
}

// Intersects reports whether r and o overlap; touching edges count.
func (r Rect) Intersects(o Rect) bool {
	return r.Left() <= o.Right() && o.Left() <= r.Right() &&
		r.Bottom() <= o.Top() && o.Bottom() <= r.Top()
}

func (r Rect) Moved(d Vec) Rect      { return Rect{Center: r.Center.Add(d), Size: r.Size} }
func (r Rect) WithCenter(c Vec) Rect { return Rect{Center: c, Size: r.Size} }
func (r Rect) WithSize(s Vec) Rect   { return Rect{Center: r.Center, Size: s} }

// Inflate grows the rectangle by d on every side.
func (r Rect) Inflate(d float64) Rect {
	return Rect{Center: r.Center, Size: Vec{X: r.Size.X + 2*d, Y: r.Size.Y + 2*d}}
}

// MeanDim is the average of width and height.
func (r Rect) MeanDim() float64 { return (r.Size.X + r.Size.Y) / 2 }

// Clamp returns p moved to the nearest point inside r.
func (r Rect) Clamp(p Vec) Vec {
	return Vec{
		X: math.Max(r.Left(), math.Min(r.Right(), p.X)),
		Y: math.Max(r.Bottom(), math.Min(r.Top(), p.Y)),
	}
}
