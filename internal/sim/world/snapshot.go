package world

import (
	"context"
	"errors"
	"fmt"

	"agentworld.ai/internal/persistence/snapshot"
	"agentworld.ai/internal/sim/geom"
)

// ExportSnapshot captures agents, subscriptions and the id counter. Behaviors
// and handlers are code and are rebuilt on import.
func (e *Environment) ExportSnapshot() snapshot.SnapshotV1 {
	agents := e.Agents()
	out := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			WorldID: e.cfg.WorldID,
			Tick:    e.tick.Load(),
		},
		World: snapshot.WorldV1{
			Width:  e.world.Size.X,
			Height: e.world.Size.Y,
			Rows:   e.grid.Rows(),
			Cols:   e.grid.Cols(),
		},
		NextID: e.nextID,
		Agents: make([]snapshot.AgentV1, 0, len(agents)),
	}
	for _, a := range agents {
		av := snapshot.AgentV1{
			ID:      a.id,
			Kind:    a.Kind,
			Name:    a.Name,
			Center:  a.Rect.Center.Array(),
			Size:    a.Rect.Size.Array(),
			Visible: a.Visible,
			Solid:   a.Solid,
			Camera:  a.Camera,
			User:    a.User,
			Pointer: a.Pointer.set(),
		}
		if a.Owner != nil && e.AgentExists(a.Owner) {
			av.OwnerID = a.Owner.id
		}
		out.Agents = append(out.Agents, av)
	}
	if len(e.subscriptions) > 0 {
		out.Subscriptions = make(map[string][]int, len(e.subscriptions))
		for name := range e.subscriptions {
			if ids := e.Subscribers(name); len(ids) > 0 {
				out.Subscriptions[name] = ids
			}
		}
	}
	return out
}

// ImportSnapshot replaces the world with snap. build turns each stored agent
// into a live one (behaviors, handlers); returning nil drops it. Ids, flags
// and rectangles always come from the snapshot. Must run on the loop or while
// the environment is stopped.
func (e *Environment) ImportSnapshot(snap snapshot.SnapshotV1, build func(snapshot.AgentV1) *Agent) error {
	if snap.Header.Version != snapshot.Version {
		return fmt.Errorf("import snapshot: unsupported version %d", snap.Header.Version)
	}
	if !(snap.World.Width > 0) || !(snap.World.Height > 0) {
		return fmt.Errorf("import snapshot: invalid world %vx%v", snap.World.Width, snap.World.Height)
	}
	if build == nil {
		build = func(av snapshot.AgentV1) *Agent { return &Agent{} }
	}

	if snap.World.Rows > 0 {
		e.cfg.Rows = snap.World.Rows
	}
	if snap.World.Cols > 0 {
		e.cfg.Cols = snap.World.Cols
	}
	listeners := e.listeners
	e.resetState(snap.World.Width, snap.World.Height)
	e.listeners = listeners

	owners := make(map[*Agent]int)
	maxID := 0
	for _, av := range snap.Agents {
		if av.ID <= 0 {
			continue
		}
		if _, dup := e.agents[av.ID]; dup {
			return fmt.Errorf("import snapshot: duplicate agent id %d", av.ID)
		}
		a := build(av)
		if a == nil {
			continue
		}
		a.Kind = av.Kind
		a.Name = av.Name
		a.Rect = geom.Rect{Center: geom.VecFromArray(av.Center), Size: geom.VecFromArray(av.Size)}
		a.Visible, a.Solid, a.Camera, a.User = av.Visible, av.Solid, av.Camera, av.User
		e.insert(a, av.ID)
		if av.OwnerID != 0 {
			owners[a] = av.OwnerID
		}
		maxID = max(maxID, av.ID)
	}
	for a, ownerID := range owners {
		if o, ok := e.agents[ownerID]; ok {
			a.Owner = o
		}
	}
	for name, ids := range snap.Subscriptions {
		for _, id := range ids {
			if a, ok := e.agents[id]; ok {
				e.SubscribeAgentToEvents(a, name)
			}
		}
	}
	e.nextID = max(e.nextID, snap.NextID, maxID+1)
	e.tick.Store(snap.Header.Tick)
	e.publishMetrics()
	return nil
}

func (e *Environment) emitSnapshot() bool {
	if e.snapshotSink == nil {
		return false
	}
	snap := e.ExportSnapshot()
	select {
	case e.snapshotSink <- snap:
		return true
	default:
		e.logger.Printf("tick %d: snapshot sink full, dropping snapshot", snap.Header.Tick)
		return false
	}
}

// RequestSnapshot asks the loop goroutine to hand a snapshot to the sink.
// It is safe to call from other goroutines (e.g. HTTP handlers).
func (e *Environment) RequestSnapshot(ctx context.Context) (tick uint64, err error) {
	if e.snapshotSink == nil {
		return 0, errors.New("snapshot sink not configured")
	}
	var ok bool
	err = e.Do(ctx, func(e *Environment) {
		tick = e.tick.Load()
		ok = e.emitSnapshot()
	})
	if err != nil {
		return 0, err
	}
	if !ok {
		return tick, errors.New("snapshot queue full")
	}
	return tick, nil
}
