package world

// Metrics is a read-only view of the loop's runtime signals. It is published
// from the loop goroutine and may be read from any goroutine.
type Metrics struct {
	Tick uint64 `json:"tick"`

	Agents        int `json:"agents"`
	Cameras       int `json:"cameras"`
	Interactive   int `json:"interactive"`
	Subscriptions int `json:"subscriptions"`

	Eligible   int     `json:"eligible"`
	Failed     int     `json:"failed"`
	Dispatched int     `json:"dispatched"`
	StepMS     float64 `json:"step_ms"`
}

func (e *Environment) Metrics() Metrics {
	if e == nil {
		return Metrics{}
	}
	m, _ := e.metrics.Load().(Metrics)
	return m
}

func (e *Environment) publishMetrics() {
	cams := 0
	for _, a := range e.agents {
		if a.Camera {
			cams++
		}
	}
	subs := 0
	for _, s := range e.subscriptions {
		subs += len(s)
	}
	e.metrics.Store(Metrics{
		Tick:          e.tick.Load(),
		Agents:        len(e.agents),
		Cameras:       cams,
		Interactive:   len(e.interactive),
		Subscriptions: subs,
		Eligible:      e.lastEligible,
		Failed:        e.lastFailed,
		Dispatched:    e.lastDispatched,
		StepMS:        e.lastStepMS,
	})
}
