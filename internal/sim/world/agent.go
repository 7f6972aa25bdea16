package world

import "agentworld.ai/internal/sim/geom"

// Handler receives an event routed to a.
type Handler func(a *Agent, in Input)

// BehaviorFunc is run once per scheduler tick for eligible agents.
type BehaviorFunc func(a *Agent)

// PointerHandlers groups the pointer event family. The *Hit variants are
// preferred when the pointer position falls inside the agent.
type PointerHandlers struct {
	OnDown    Handler
	OnDownHit Handler
	OnUp      Handler
	OnUpHit   Handler
	OnMove    Handler
	OnMoveHit Handler
}

type KeyHandlers struct {
	OnKeyDown Handler
	OnKeyUp   Handler
}

// Agent is a positioned rectangle taking part in the simulation. The
// environment references agents; it never copies them.
type Agent struct {
	id  int
	env *Environment

	destroyed bool

	Kind string
	Name string
	Rect geom.Rect

	Visible bool
	Solid   bool
	Camera  bool
	User    bool

	// Owner is the agent a camera follows.
	Owner *Agent

	Behavior  BehaviorFunc
	OnDestroy func(a *Agent)

	Pointer  PointerHandlers
	Keys     KeyHandlers
	OnResize Handler
	// Handlers covers any other event name. A name+"Hit" entry is the hit variant.
	Handlers map[string]Handler
}

func NewAgent(kind string, rect geom.Rect) *Agent {
	return &Agent{Kind: kind, Rect: rect, Visible: true}
}

// ID is 0 until the agent is first registered.
func (a *Agent) ID() int            { return a.id }
func (a *Agent) Position() geom.Vec { return a.Rect.Center }

// Env returns the environment the agent is registered with, or nil.
func (a *Agent) Env() *Environment { return a.env }

func (a *Agent) MoveTo(p geom.Vec) {
	a.Rect.Center = p
	a.reindex()
}

func (a *Agent) MoveBy(d geom.Vec) { a.MoveTo(a.Rect.Center.Add(d)) }

func (a *Agent) SetSize(s geom.Vec) {
	a.Rect.Size = s
	a.reindex()
}

func (a *Agent) reindex() {
	if a.env != nil {
		a.env.UpdateAgent(a)
	}
}

// On sets a handler for an event name outside the pointer/key/resize families.
func (a *Agent) On(name string, h Handler) {
	if a.Handlers == nil {
		a.Handlers = make(map[string]Handler)
	}
	a.Handlers[name] = h
}

// Destroy runs OnDestroy and then removes the agent from its environment.
// Repeated calls are no-ops until the agent is added again.
func (a *Agent) Destroy() {
	if a.destroyed {
		return
	}
	a.destroyed = true
	if a.OnDestroy != nil {
		a.OnDestroy(a)
	}
	if a.env != nil {
		a.env.RemoveAgent(a)
	}
}

// CanSee reports whether a is visible through camera c.
func (c *Agent) CanSee(a *Agent) bool {
	return a != nil && a.Visible && c.Rect.Intersects(a.Rect)
}
