package world

import (
	"io"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"agentworld.ai/internal/persistence/snapshot"
	"agentworld.ai/internal/sim/geom"
	"agentworld.ai/internal/sim/spatial"
)

type Config struct {
	WorldID string

	Rows int
	Cols int

	TickInterval       time.Duration
	SnapshotEveryTicks uint64

	InboxSize int
}

func (c *Config) applyDefaults() {
	if c.WorldID == "" {
		c.WorldID = "world_1"
	}
	if c.Rows <= 0 {
		c.Rows = spatial.DefaultRows
	}
	if c.Cols <= 0 {
		c.Cols = spatial.DefaultCols
	}
	if c.TickInterval <= 0 {
		c.TickInterval = 100 * time.Millisecond
	}
	if c.InboxSize <= 0 {
		c.InboxSize = 1024
	}
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type EventLogger interface {
	WriteEvent(entry EventLogEntry) error
}

type TickLogEntry struct {
	Tick       uint64  `json:"tick"`
	Agents     int     `json:"agents"`
	Eligible   int     `json:"eligible"`
	Failed     int     `json:"failed"`
	Dispatched int     `json:"dispatched"`
	StepMS     float64 `json:"step_ms"`
}

type EventLogEntry struct {
	Tick       uint64 `json:"tick"`
	Event      string `json:"event"`
	Target     int    `json:"target,omitempty"`
	Recipients int    `json:"recipients"`
}

// Environment is the agent registry, event router and behavior scheduler of
// one world. While its loop runs, all state belongs to the loop goroutine;
// other goroutines go through Post and Do.
type Environment struct {
	cfg    Config
	logger *log.Logger

	world geom.Rect
	grid  *spatial.Grid[*Agent]

	agents map[int]*Agent
	nextID int

	// maxRadius is the largest bounding-circle radius of a non-camera agent
	// seen since the last reset. It only grows.
	maxRadius float64

	subscriptions map[string]map[int]struct{}
	interactive   map[int]struct{}

	listeners    map[int]func(tick uint64)
	nextListener int

	tick             atomic.Uint64
	dispatchedInTick int
	tickLogger       TickLogger
	eventLogger      EventLogger
	snapshotSink     chan<- snapshot.SnapshotV1

	metrics        atomic.Value
	lastEligible   int
	lastFailed     int
	lastDispatched int
	lastStepMS     float64

	mu   sync.Mutex
	loop *loop
	last *loop

	// Owned by the loop goroutine.
	active        *loop
	successor     *loop
	loopGoroutine atomic.Int64
}

func New(cfg Config) *Environment {
	cfg.applyDefaults()
	e := &Environment{
		cfg:    cfg,
		logger: log.New(io.Discard, "", 0),
		grid:   spatial.New[*Agent](1, 1, cfg.Rows, cfg.Cols),
		nextID: 1,
	}
	e.resetState(1, 1)
	return e
}

func (e *Environment) SetLogger(l *log.Logger) {
	if l == nil {
		l = log.New(io.Discard, "", 0)
	}
	e.logger = l
}

func (e *Environment) SetTickLogger(l TickLogger)                    { e.tickLogger = l }
func (e *Environment) SetEventLogger(l EventLogger)                  { e.eventLogger = l }
func (e *Environment) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { e.snapshotSink = ch }

func (e *Environment) Config() Config      { return e.cfg }
func (e *Environment) WorldRect() geom.Rect { return e.world }
func (e *Environment) CurrentTick() uint64  { return e.tick.Load() }

// Reset clears the world to an empty width x height rectangle without
// touching the scheduler loop. Ids are never reused across resets.
func (e *Environment) Reset(width, height float64) {
	e.resetState(width, height)
}

func (e *Environment) resetState(width, height float64) {
	e.grid.Start(width, height, e.cfg.Rows, e.cfg.Cols)
	e.world = e.grid.Bounds()
	for _, a := range e.agents {
		a.env = nil
	}
	e.agents = make(map[int]*Agent)
	e.subscriptions = make(map[string]map[int]struct{})
	e.interactive = make(map[int]struct{})
	e.listeners = make(map[int]func(uint64))
	e.maxRadius = 0
	e.tick.Store(0)
	e.dispatchedInTick = 0
	e.publishMetrics()
}

// AddAgent registers a and returns its id. Adding an agent that is already
// registered re-indexes it in place and keeps its id.
func (e *Environment) AddAgent(a *Agent) int {
	if a == nil {
		return 0
	}
	if e.AgentExists(a) {
		e.UpdateAgent(a)
		return a.id
	}
	id := e.nextID
	e.nextID++
	e.insert(a, id)
	return id
}

func (e *Environment) insert(a *Agent, id int) {
	if a.env != nil && a.env != e {
		a.env.RemoveAgent(a)
	}
	a.id = id
	a.env = e
	a.destroyed = false
	e.agents[id] = a
	e.grid.Add(a)
	e.trackRadius(a)
}

func (e *Environment) trackRadius(a *Agent) {
	if a.Camera {
		return
	}
	if r := a.Rect.MeanDim() / 2; r > e.maxRadius {
		e.maxRadius = r
	}
}

// UpdateAgent re-indexes a after its rectangle changed. Unregistered agents are ignored.
func (e *Environment) UpdateAgent(a *Agent) {
	if e.AgentExists(a) {
		e.grid.Update(a)
		e.trackRadius(a)
	}
}

func (e *Environment) RemoveAgent(a *Agent) {
	if !e.AgentExists(a) {
		return
	}
	delete(e.agents, a.id)
	e.grid.RemoveID(a.id)
	for name, subs := range e.subscriptions {
		delete(subs, a.id)
		if len(subs) == 0 {
			delete(e.subscriptions, name)
		}
	}
	delete(e.interactive, a.id)
	a.env = nil
}

func (e *Environment) AgentExists(a *Agent) bool {
	if a == nil {
		return false
	}
	cur, ok := e.agents[a.id]
	return ok && cur == a
}

// KillAllAgents destroys every agent. Each agent removes itself through
// Destroy; the grid is cleared afterwards.
func (e *Environment) KillAllAgents() {
	for _, a := range e.Agents() {
		a.Destroy()
	}
	e.grid.Clear()
}

func (e *Environment) Agent(id int) (*Agent, bool) {
	a, ok := e.agents[id]
	return a, ok
}

// Agents returns all registered agents by ascending id.
func (e *Environment) Agents() []*Agent {
	out := make([]*Agent, 0, len(e.agents))
	for _, a := range e.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (e *Environment) Len() int { return len(e.agents) }

func (e *Environment) NearbyAgentsInRect(r geom.Rect) []*Agent { return e.grid.InRect(r) }
func (e *Environment) NearbyAgents(a *Agent) []*Agent         { return e.grid.Nearby(a) }
func (e *Environment) AgentsAt(p geom.Vec) []*Agent            { return e.grid.AtPosition(p) }

// OverlappingAgent returns the first agent (by id) whose bounding circle
// overlaps proposed, the rectangle a wants to move to. Cameras and a itself
// are never reported.
func (e *Environment) OverlappingAgent(a *Agent, proposed geom.Rect) (*Agent, bool) {
	r0 := proposed.MeanDim() / 2
	// Any overlapping centre lies within r0+maxRadius of the proposed centre.
	reach := geom.Rect{Center: proposed.Center}.Inflate(r0 + e.maxRadius)
	for _, o := range e.grid.InRect(reach) {
		if o == a || o.Camera {
			continue
		}
		r1 := o.Rect.MeanDim() / 2
		if proposed.Center.Dist(o.Rect.Center) < r0+r1 {
			return o, true
		}
	}
	return nil, false
}
