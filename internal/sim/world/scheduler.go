package world

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"time"

	"agentworld.ai/internal/sim/geom"
)

// ErrStopped is returned when work is offered to an environment whose loop is not running.
var ErrStopped = errors.New("world: environment stopped")

// Event is a user event queued for the loop goroutine.
type Event struct {
	Name  string
	Input Input

	// Viewport limits broadcast recipients. When Camera is set its current
	// rectangle is used instead, resolved on the loop.
	Viewport *geom.Rect
	Camera   *Agent

	// Target bypasses all filtering.
	Target *Agent
}

type inboxItem struct {
	ev   *Event
	fn   func(*Environment)
	done chan struct{}
}

type loop struct {
	inbox chan inboxItem
	stop  chan struct{}
	done  chan struct{}
}

// Start resets the world to width x height and launches the scheduler loop.
// A loop that is already running is stopped first. Called from the loop
// itself (a behavior, handler or tick listener), the new loop takes over once
// that callback returns.
func (e *Environment) Start(width, height float64) {
	onLoop := e.halt()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetState(width, height)
	e.launch(onLoop)
}

// Resume launches the scheduler loop over the current state, e.g. after
// ImportSnapshot. It does nothing when the loop is already running.
func (e *Environment) Resume() {
	onLoop := e.onLoop()
	if !onLoop {
		e.mu.Lock()
		last, running := e.last, e.loop != nil
		e.mu.Unlock()
		if !running && last != nil {
			<-last.done
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loop == nil {
		e.launch(onLoop)
	}
}

func (e *Environment) launch(onLoop bool) {
	l := &loop{
		inbox: make(chan inboxItem, e.cfg.InboxSize),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	e.loop = l
	if !onLoop {
		go e.run(l)
		return
	}
	// A successor queued earlier in the same callback was stopped before it
	// ever ran.
	if prev := e.successor; prev != nil {
		close(prev.done)
	}
	e.successor = l
}

// Stop cancels the scheduler loop and waits for it to exit. No behavior runs
// after Stop returns. Safe to call more than once. Called from the loop
// itself it returns at once; the current callback finishes and nothing else
// runs.
func (e *Environment) Stop() { e.halt() }

// halt stops the current loop and reports whether the caller is the loop
// goroutine. Off the loop it waits for the last loop to exit.
func (e *Environment) halt() (onLoop bool) {
	onLoop = e.onLoop()
	e.mu.Lock()
	if l := e.loop; l != nil {
		e.loop = nil
		close(l.stop)
		e.last = l
	}
	last := e.last
	e.mu.Unlock()
	if !onLoop && last != nil {
		<-last.done
	}
	return onLoop
}

func (e *Environment) onLoop() bool {
	id := e.loopGoroutine.Load()
	return id != 0 && id == goroutineID()
}

// halted reports whether the loop running the current callback was stopped.
func (e *Environment) halted() bool {
	if e.active == nil {
		return false
	}
	select {
	case <-e.active.stop:
		return true
	default:
		return false
	}
}

func (e *Environment) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loop != nil
}

func (e *Environment) current() *loop {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loop
}

func (e *Environment) run(l *loop) {
	e.loopGoroutine.Store(goroutineID())
	e.active = l
	defer func() {
		e.active = nil
		e.loopGoroutine.Store(0)
		next := e.successor
		e.successor = nil
		close(l.done)
		if next != nil {
			go e.run(next)
		}
	}()
	timer := time.NewTimer(e.cfg.TickInterval)
	defer timer.Stop()

	for {
		select {
		case <-l.stop:
			return
		default:
		}
		select {
		case <-l.stop:
			return
		case it := <-l.inbox:
			e.handleItem(it)
		case <-timer.C:
			select {
			case <-l.stop:
				return
			default:
			}
			e.Tick()
			select {
			case <-l.stop:
				return
			default:
			}
			timer.Reset(e.cfg.TickInterval)
		}
	}
}

func (e *Environment) handleItem(it inboxItem) {
	if it.done != nil {
		defer close(it.done)
	}
	if it.fn != nil {
		e.safeDo(it.fn)
	}
	if it.ev != nil {
		e.dispatch(it.ev)
	}
}

func (e *Environment) safeDo(fn func(*Environment)) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Printf("panic in posted func: %v", r)
		}
	}()
	fn(e)
}

func (e *Environment) dispatch(ev *Event) {
	vp := ev.Viewport
	if ev.Camera != nil {
		if !e.AgentExists(ev.Camera) {
			return
		}
		r := ev.Camera.Rect
		vp = &r
	}
	if ev.Target != nil && !e.AgentExists(ev.Target) {
		return
	}
	n := e.PropagateUserEvent(ev.Name, ev.Input, vp, ev.Target)
	e.dispatchedInTick += n
	if e.eventLogger != nil {
		entry := EventLogEntry{Tick: e.tick.Load(), Event: ev.Name, Recipients: n}
		if ev.Target != nil {
			entry.Target = ev.Target.id
		}
		if err := e.eventLogger.WriteEvent(entry); err != nil {
			e.logger.Printf("event log: %v", err)
		}
	}
}

// Post queues ev for the loop, blocking while the inbox is full.
func (e *Environment) Post(ctx context.Context, ev Event) error {
	_, err := e.enqueue(ctx, inboxItem{ev: &ev})
	return err
}

// TryPost queues ev without blocking and reports whether it was accepted.
func (e *Environment) TryPost(ev Event) bool {
	l := e.current()
	if l == nil {
		return false
	}
	select {
	case l.inbox <- inboxItem{ev: &ev}:
		return true
	default:
		return false
	}
}

// Do runs fn on the loop goroutine and waits for it to return. Called from
// the loop itself, fn runs inline.
func (e *Environment) Do(ctx context.Context, fn func(*Environment)) error {
	if e.onLoop() {
		e.safeDo(fn)
		return nil
	}
	done := make(chan struct{})
	l, err := e.enqueue(ctx, inboxItem{fn: fn, done: done})
	if err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-l.done:
		select {
		case <-done:
			return nil
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Environment) enqueue(ctx context.Context, it inboxItem) (*loop, error) {
	l := e.current()
	if l == nil {
		return nil, ErrStopped
	}
	select {
	case l.inbox <- it:
		return l, nil
	case <-l.done:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// AddTickListener registers fn to run on the loop after every tick's
// behaviors. The returned id removes it.
func (e *Environment) AddTickListener(fn func(tick uint64)) int {
	e.nextListener++
	e.listeners[e.nextListener] = fn
	return e.nextListener
}

func (e *Environment) RemoveTickListener(id int) { delete(e.listeners, id) }

// Tick runs one scheduler step: behaviors of eligible agents by ascending id,
// then tick listeners, journals and periodic snapshots.
func (e *Environment) Tick() TickLogEntry {
	start := time.Now()
	tick := e.tick.Add(1)

	eligible, failed := 0, 0
	for _, a := range e.Agents() {
		if e.halted() {
			break
		}
		if a.Behavior == nil || !e.AgentExists(a) {
			continue
		}
		if !e.eligible(a) {
			continue
		}
		eligible++
		if err := e.runBehavior(a); err != nil {
			failed++
			e.logger.Printf("tick %d: %v", tick, err)
		}
	}

	if e.halted() {
		return TickLogEntry{Tick: tick, Agents: len(e.agents), Eligible: eligible, Failed: failed}
	}

	ids := make([]int, 0, len(e.listeners))
	for id := range e.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		if e.halted() {
			break
		}
		if fn, ok := e.listeners[id]; ok {
			e.runListener(tick, fn)
		}
	}

	entry := TickLogEntry{
		Tick:       tick,
		Agents:     len(e.agents),
		Eligible:   eligible,
		Failed:     failed,
		Dispatched: e.dispatchedInTick,
		StepMS:     float64(time.Since(start).Microseconds()) / 1000,
	}
	e.dispatchedInTick = 0
	e.lastEligible, e.lastFailed, e.lastDispatched, e.lastStepMS = entry.Eligible, entry.Failed, entry.Dispatched, entry.StepMS

	if e.tickLogger != nil {
		if err := e.tickLogger.WriteTick(entry); err != nil {
			e.logger.Printf("tick log: %v", err)
		}
	}
	if every := e.cfg.SnapshotEveryTicks; every > 0 && tick%every == 0 {
		e.emitSnapshot()
	}
	e.publishMetrics()
	return entry
}

// eligible: cameras, user agents, and agents with a user agent nearby.
func (e *Environment) eligible(a *Agent) bool {
	if a.Camera || a.User {
		return true
	}
	for _, o := range e.grid.Nearby(a) {
		if o.User {
			return true
		}
	}
	return false
}

func (e *Environment) runBehavior(a *Agent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("behavior of agent %d (%s): %v", a.id, a.Kind, r)
		}
	}()
	a.Behavior(a)
	return nil
}

func (e *Environment) runListener(tick uint64, fn func(uint64)) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Printf("tick %d: listener panic: %v", tick, r)
		}
	}()
	fn(tick)
}

// goroutineID parses N out of the "goroutine N [running]:" stack header.
func goroutineID() int64 {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseInt(string(b), 10, 64)
	return id
}
