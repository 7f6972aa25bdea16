// Package term runs a local world session inside a terminal. Terminal cells
// map onto the session camera: column 0 is the camera's left edge and row 0
// its top edge, so world Y is inverted on screen.
package term

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gdamore/tcell/v2"

	"agentworld.ai/internal/sim/behaviors"
	"agentworld.ai/internal/sim/geom"
	"agentworld.ai/internal/sim/tuning"
	"agentworld.ai/internal/sim/world"
)

// Cell size in world units. Terminal cells are about twice as tall as wide.
const (
	UnitsPerCol = 2.0
	UnitsPerRow = 4.0
)

type Shell struct {
	env    *world.Environment
	screen tcell.Screen
	tune   tuning.Tuning
	log    *log.Logger

	avatar   *world.Agent
	camera   *world.Agent
	listener int

	// Loop-side copy of what is on screen, read by the input side.
	mu       sync.Mutex
	view     geom.Rect
	cols     int
	rows     int
	pressed  bool
	attached bool
}

func NewShell(env *world.Environment, screen tcell.Screen, tune tuning.Tuning, logger *log.Logger) *Shell {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	tune.ApplyDefaults()
	cols, rows := screen.Size()
	return &Shell{env: env, screen: screen, tune: tune, log: logger, cols: cols, rows: rows}
}

// Attach creates the avatar and its camera on the loop and starts drawing.
func (s *Shell) Attach(ctx context.Context, name string) error {
	cols, rows := s.Size()
	size := s.cameraSize(cols, rows)
	err := s.env.Do(ctx, func(e *world.Environment) {
		avatar := behaviors.NewAvatar(name, e.WorldRect().Center, s.tune.Avatar)
		e.AddAgent(avatar)
		cam := world.NewCamera(avatar, size)
		cam.OnResize = func(c *world.Agent, in world.Input) {
			if in.Size != nil && in.Size.X > 0 && in.Size.Y > 0 {
				c.SetSize(*in.Size)
			}
		}
		e.AddAgent(cam)
		avatar.OnDestroy = func(*world.Agent) { cam.Destroy() }

		s.mu.Lock()
		s.avatar, s.camera, s.view = avatar, cam, cam.Rect
		s.mu.Unlock()
		s.listener = e.AddTickListener(func(tick uint64) { s.Draw(e, tick) })
	})
	if err != nil {
		return fmt.Errorf("attach: %w", err)
	}
	s.mu.Lock()
	s.attached = true
	s.mu.Unlock()
	return nil
}

// Detach destroys the avatar (and with it the camera).
func (s *Shell) Detach(ctx context.Context) error {
	s.mu.Lock()
	attached, avatar := s.attached, s.avatar
	s.attached = false
	s.mu.Unlock()
	if !attached {
		return nil
	}
	return s.env.Do(ctx, func(e *world.Environment) {
		e.RemoveTickListener(s.listener)
		avatar.Destroy()
	})
}

func (s *Shell) Size() (cols, rows int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cols, s.rows
}

func (s *Shell) cameraSize(cols, rows int) geom.Vec {
	// Leave the last row for the status line.
	return geom.V(float64(max(cols, 1))*UnitsPerCol, float64(max(rows-1, 1))*UnitsPerRow)
}

func (s *Shell) setView(r geom.Rect) {
	s.mu.Lock()
	s.view = r
	s.mu.Unlock()
}

// ToWorld maps the centre of a terminal cell to world coordinates.
func (s *Shell) ToWorld(x, y int) geom.Vec {
	s.mu.Lock()
	defer s.mu.Unlock()
	return geom.V(
		s.view.Left()+(float64(x)+0.5)*UnitsPerCol,
		s.view.Top()-(float64(y)+0.5)*UnitsPerRow,
	)
}

// ToScreen maps a world point to the terminal cell holding it.
func ToScreen(view geom.Rect, p geom.Vec) (x, y int) {
	return int((p.X - view.Left()) / UnitsPerCol), int((view.Top() - p.Y) / UnitsPerRow)
}

// Translate turns a terminal event into world events. quit reports a request
// to leave the shell.
func (s *Shell) Translate(ev tcell.Event) (evs []world.Event, quit bool) {
	s.mu.Lock()
	avatar, camera := s.avatar, s.camera
	s.mu.Unlock()

	switch ev := ev.(type) {
	case *tcell.EventKey:
		key, ok := keyName(ev)
		if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC {
			return nil, true
		}
		if !ok {
			return nil, false
		}
		return []world.Event{{Name: world.EventKeyDown, Input: world.KeyInput(key), Target: avatar}}, false

	case *tcell.EventMouse:
		x, y := ev.Position()
		p := s.ToWorld(x, y)
		down := ev.Buttons()&tcell.Button1 != 0

		s.mu.Lock()
		was := s.pressed
		s.pressed = down
		s.mu.Unlock()

		name := world.EventMouseMove
		switch {
		case down && !was:
			name = world.EventMouseDown
		case !down && was:
			name = world.EventMouseUp
		}
		return []world.Event{{Name: name, Input: world.PointerInput(p), Camera: camera}}, false

	case *tcell.EventResize:
		cols, rows := ev.Size()
		s.mu.Lock()
		s.cols, s.rows = cols, rows
		s.mu.Unlock()
		size := s.cameraSize(cols, rows)
		in := world.Input{Size: &size}
		return []world.Event{
			{Name: world.EventResize, Input: in, Target: camera},
			{Name: world.EventResize, Input: in, Camera: camera},
		}, false
	}
	return nil, false
}

func keyName(ev *tcell.EventKey) (string, bool) {
	switch ev.Key() {
	case tcell.KeyUp:
		return "ArrowUp", true
	case tcell.KeyDown:
		return "ArrowDown", true
	case tcell.KeyLeft:
		return "ArrowLeft", true
	case tcell.KeyRight:
		return "ArrowRight", true
	case tcell.KeyRune:
		return string(ev.Rune()), true
	}
	return "", false
}

// Draw renders what the camera sees. It runs on the loop goroutine.
func (s *Shell) Draw(e *world.Environment, tick uint64) {
	s.mu.Lock()
	cam, self := s.camera, s.avatar
	s.mu.Unlock()
	if cam == nil || !e.AgentExists(cam) {
		return
	}
	s.setView(cam.Rect)
	cols, rows := s.Size()

	s.screen.Clear()
	visible := e.VisibleTo(cam)
	for _, a := range visible {
		x, y := ToScreen(cam.Rect, a.Position())
		if x < 0 || y < 0 || x >= cols || y >= rows-1 {
			continue
		}
		r, style := glyph(e, a, a == self)
		s.screen.SetContent(x, y, r, nil, style)
	}

	status := fmt.Sprintf(" tick %s  agents %s  visible %d  (%.0f,%.0f)  esc quits",
		humanize.Comma(int64(tick)), humanize.Comma(int64(e.Len())), len(visible),
		cam.Rect.Center.X, cam.Rect.Center.Y)
	for i, r := range status {
		if i >= cols {
			break
		}
		s.screen.SetContent(i, rows-1, r, nil, tcell.StyleDefault.Reverse(true))
	}
	s.screen.Show()
}

func glyph(e *world.Environment, a *world.Agent, self bool) (rune, tcell.Style) {
	st := tcell.StyleDefault
	switch {
	case self:
		return '@', st.Foreground(tcell.ColorYellow)
	case a.User:
		return '&', st.Foreground(tcell.ColorGreen)
	case e.IsInteractive(a):
		return '#', st.Foreground(tcell.ColorRed)
	case a.Kind == behaviors.KindWanderer:
		return 'o', st.Foreground(tcell.ColorWhite)
	}
	return '?', st
}

// Run pumps terminal events into the world until the user quits or ctx ends.
func (s *Shell) Run(ctx context.Context) error {
	events := make(chan tcell.Event, 100)
	quit := make(chan struct{})
	go func() {
		for {
			ev := s.screen.PollEvent()
			if ev == nil {
				return
			}
			select {
			case events <- ev:
			case <-quit:
				return
			}
		}
	}()
	defer close(quit)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-events:
			evs, stop := s.Translate(ev)
			if stop {
				return nil
			}
			for _, we := range evs {
				pctx, cancel := context.WithTimeout(ctx, time.Second)
				err := s.env.Post(pctx, we)
				cancel()
				if err != nil {
					s.log.Printf("post %s: %v", we.Name, err)
				}
			}
		}
	}
}
