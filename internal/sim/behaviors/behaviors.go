// Package behaviors holds the stock agent behaviors and handler sets used by
// the server, the terminal shell and tests.
package behaviors

import (
	"math"
	"math/rand"
	"strings"

	"agentworld.ai/internal/sim/geom"
	"agentworld.ai/internal/sim/tuning"
	"agentworld.ai/internal/sim/world"
)

const (
	KindWanderer = "wanderer"
	KindAvatar   = "avatar"
)

// FollowOwner keeps a camera centred on its owner.
var FollowOwner world.BehaviorFunc = world.FollowOwner

// Wander returns a random-walk behavior. The heading drifts a little every
// tick and is re-rolled when the next step would overlap another agent or
// leave the world.
func Wander(rng *rand.Rand, speed float64) world.BehaviorFunc {
	heading := rng.Float64() * 2 * math.Pi
	return func(a *world.Agent) {
		env := a.Env()
		if env == nil {
			return
		}
		heading += (rng.Float64() - 0.5) * 0.6
		step := geom.V(math.Cos(heading)*speed, math.Sin(heading)*speed)
		proposed := a.Rect.Moved(step)
		bounds := env.WorldRect()
		if !bounds.Contains(proposed.Center) {
			heading = rng.Float64() * 2 * math.Pi
			return
		}
		if _, hit := env.OverlappingAgent(a, proposed); hit {
			heading += math.Pi/2 + rng.Float64()*math.Pi
			return
		}
		a.MoveTo(proposed.Center)
	}
}

// Draggable lets a pointer drag the agent: a hit mousedown grabs it, moves
// follow the pointer while it stays interactive, mouseup lets go.
func Draggable(a *world.Agent) {
	var grab geom.Vec
	a.Pointer.OnDownHit = func(a *world.Agent, in world.Input) {
		grab = in.Pos.Sub(a.Position())
	}
	a.Pointer.OnMove = func(a *world.Agent, in world.Input) {
		env := a.Env()
		if env == nil || in.Pos == nil || !env.IsInteractive(a) {
			return
		}
		a.MoveTo(env.WorldRect().Clamp(in.Pos.Sub(grab)))
	}
	a.Pointer.OnMoveHit = a.Pointer.OnMove
	a.Pointer.OnUp = func(*world.Agent, world.Input) { grab = geom.Vec{} }
}

// KeyDelta maps arrow keys and WASD to a unit direction. Y grows upward.
func KeyDelta(key string) (geom.Vec, bool) {
	switch strings.ToLower(key) {
	case "arrowup", "up", "w":
		return geom.V(0, 1), true
	case "arrowdown", "down", "s":
		return geom.V(0, -1), true
	case "arrowleft", "left", "a":
		return geom.V(-1, 0), true
	case "arrowright", "right", "d":
		return geom.V(1, 0), true
	}
	return geom.Vec{}, false
}

// KeyMover moves the agent by step per keydown. Moves into a solid agent are refused.
func KeyMover(a *world.Agent, step float64) {
	a.Keys.OnKeyDown = func(a *world.Agent, in world.Input) {
		d, ok := KeyDelta(in.Key)
		if !ok {
			return
		}
		env := a.Env()
		if env == nil {
			return
		}
		proposed := a.Rect.Moved(d.Scale(step))
		proposed.Center = env.WorldRect().Clamp(proposed.Center)
		if o, hit := env.OverlappingAgent(a, proposed); hit && o.Solid {
			return
		}
		a.MoveTo(proposed.Center)
	}
}

// NewAvatar builds a user-controlled agent driven by KeyMover.
func NewAvatar(name string, at geom.Vec, av tuning.Avatar) *world.Agent {
	a := world.NewAgent(KindAvatar, geom.Rect{Center: at, Size: geom.V(av.Width, av.Height)})
	a.Name = name
	a.User = true
	a.Solid = true
	KeyMover(a, av.Step)
	return a
}

// NewWanderer builds a wanderer; every third one can also be dragged.
func NewWanderer(rng *rand.Rand, at geom.Vec, pop tuning.Population, n int) *world.Agent {
	a := world.NewAgent(KindWanderer, geom.R(at.X, at.Y, pop.Size, pop.Size))
	a.Solid = true
	a.Behavior = Wander(rand.New(rand.NewSource(rng.Int63())), pop.Speed)
	if n%3 == 0 {
		Draggable(a)
	}
	return a
}

// Populate adds pop.Wanderers wanderers at seeded random positions.
func Populate(env *world.Environment, pop tuning.Population) []*world.Agent {
	rng := rand.New(rand.NewSource(pop.Seed))
	r := env.WorldRect()
	out := make([]*world.Agent, 0, pop.Wanderers)
	for i := 0; i < pop.Wanderers; i++ {
		at := geom.V(
			r.Left()+rng.Float64()*r.Size.X,
			r.Bottom()+rng.Float64()*r.Size.Y,
		)
		a := NewWanderer(rng, at, pop, i)
		env.AddAgent(a)
		out = append(out, a)
	}
	return out
}
