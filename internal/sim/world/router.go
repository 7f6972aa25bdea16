package world

import (
	"sort"

	"agentworld.ai/internal/sim/geom"
)

const (
	EventKeyDown   = "keydown"
	EventKeyUp     = "keyup"
	EventResize    = "resize"
	EventMouseDown = "mousedown"
	EventMouseUp   = "mouseup"
	EventMouseMove = "mousemove"
)

// HitSuffix marks the hit variant of a generic handler name.
const HitSuffix = "Hit"

// Input is the argument delivered with an event. Pos is nil for events
// without a pointer position.
type Input struct {
	Pos  *geom.Vec      `json:"pos,omitempty"`
	Key  string         `json:"key,omitempty"`
	Size *geom.Vec      `json:"size,omitempty"`
	Data map[string]any `json:"data,omitempty"`
}

func PointerInput(p geom.Vec) Input { return Input{Pos: &p} }
func KeyInput(key string) Input     { return Input{Key: key} }

// PropagateUserEvent routes an event and returns how many agents handled it.
//
// With a target only that agent is considered. Otherwise the recipients are
// the union of the event's subscribers, the interactive agents (mousemove and
// mouseup only) and the agents intersecting viewport, or every agent when
// viewport is nil. Recipients are visited by ascending id.
func (e *Environment) PropagateUserEvent(name string, in Input, viewport *geom.Rect, target *Agent) int {
	if target != nil {
		if e.SendEventToAgent(target, name, in) {
			return 1
		}
		return 0
	}

	cands := make(map[int]*Agent)
	for id := range e.subscriptions[name] {
		if a, ok := e.agents[id]; ok {
			cands[id] = a
		}
	}
	if name == EventMouseMove || name == EventMouseUp {
		for id := range e.interactive {
			if a, ok := e.agents[id]; ok {
				cands[id] = a
			}
		}
	}
	if viewport == nil {
		for id, a := range e.agents {
			cands[id] = a
		}
	} else {
		for _, a := range e.grid.InRect(*viewport) {
			if viewport.Intersects(a.Rect) {
				cands[a.id] = a
			}
		}
	}

	ids := make([]int, 0, len(cands))
	for id := range cands {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	n := 0
	for _, id := range ids {
		a := cands[id]
		if e.halted() {
			break
		}
		// An earlier handler may have removed it.
		if !e.AgentExists(a) {
			continue
		}
		if e.SendEventToAgent(a, name, in) {
			n++
		}
	}
	return n
}

// SendEventToAgent delivers one event to one agent and reports whether a
// handler ran. Agents without a matching handler are skipped silently.
func (e *Environment) SendEventToAgent(a *Agent, name string, in Input) bool {
	if a == nil {
		return false
	}
	plain, hit, pointer := a.handlersFor(name)

	switch name {
	case EventKeyDown, EventKeyUp, EventResize:
		return e.call(a, name, plain, in)
	}

	isHit := a.Visible && in.Pos != nil && a.Rect.Contains(*in.Pos)
	var ran bool
	if isHit && hit != nil {
		ran = e.call(a, name+HitSuffix, hit, in)
	} else {
		ran = e.call(a, name, plain, in)
	}

	if pointer {
		switch {
		case name == EventMouseDown && isHit && a.Pointer.set():
			if e.AgentExists(a) {
				e.interactive[a.id] = struct{}{}
			}
		case name == EventMouseUp:
			// Cleared whether or not an up handler exists, or the agent stays interactive forever.
			delete(e.interactive, a.id)
		}
	}
	return ran
}

func (p PointerHandlers) set() bool {
	return p.OnDown != nil || p.OnDownHit != nil || p.OnUp != nil ||
		p.OnUpHit != nil || p.OnMove != nil || p.OnMoveHit != nil
}

func (a *Agent) handlersFor(name string) (plain, hit Handler, pointer bool) {
	switch name {
	case EventKeyDown:
		return a.Keys.OnKeyDown, nil, false
	case EventKeyUp:
		return a.Keys.OnKeyUp, nil, false
	case EventResize:
		return a.OnResize, nil, false
	case EventMouseDown:
		return a.Pointer.OnDown, a.Pointer.OnDownHit, true
	case EventMouseUp:
		return a.Pointer.OnUp, a.Pointer.OnUpHit, true
	case EventMouseMove:
		return a.Pointer.OnMove, a.Pointer.OnMoveHit, true
	}
	if a.Handlers == nil {
		return nil, nil, false
	}
	return a.Handlers[name], a.Handlers[name+HitSuffix], false
}

func (e *Environment) call(a *Agent, name string, h Handler, in Input) (ran bool) {
	if h == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Printf("handler %s of agent %d panicked: %v", name, a.id, r)
		}
	}()
	h(a, in)
	return true
}

// SubscribeAgentToEvents makes a receive the named events regardless of viewport.
func (e *Environment) SubscribeAgentToEvents(a *Agent, names ...string) {
	if !e.AgentExists(a) {
		return
	}
	for _, name := range names {
		subs := e.subscriptions[name]
		if subs == nil {
			subs = make(map[int]struct{})
			e.subscriptions[name] = subs
		}
		subs[a.id] = struct{}{}
	}
}

func (e *Environment) UnsubscribeAgentFromEvents(a *Agent, names ...string) {
	if a == nil {
		return
	}
	for _, name := range names {
		subs := e.subscriptions[name]
		delete(subs, a.id)
		if len(subs) == 0 {
			delete(e.subscriptions, name)
		}
	}
}

// Subscribers returns the ids subscribed to name, ascending.
func (e *Environment) Subscribers(name string) []int {
	out := make([]int, 0, len(e.subscriptions[name]))
	for id := range e.subscriptions[name] {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

func (e *Environment) IsInteractive(a *Agent) bool {
	if a == nil {
		return false
	}
	_, ok := e.interactive[a.id]
	return ok
}
