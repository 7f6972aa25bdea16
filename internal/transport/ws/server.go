package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"agentworld.ai/internal/protocol"
	"agentworld.ai/internal/sim/behaviors"
	"agentworld.ai/internal/sim/geom"
	"agentworld.ai/internal/sim/tuning"
	"agentworld.ai/internal/sim/world"
)

type Server struct {
	env  *world.Environment
	tune tuning.Tuning
	log  *log.Logger

	upgrader websocket.Upgrader
	sessions atomic.Int64
}

func NewServer(env *world.Environment, tune tuning.Tuning, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(log.Writer(), "[ws] ", log.LstdFlags)
	}
	tune.ApplyDefaults()
	return &Server{
		env:  env,
		tune: tune,
		log:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// Sessions reports the number of connected sessions.
func (s *Server) Sessions() int { return int(s.sessions.Load()) }

type frame struct {
	binary bool
	data   []byte
}

type session struct {
	id       string
	encoding protocol.Encoding
	avatar   *world.Agent
	camera   *world.Agent
	listener int
	out      chan frame
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sess := s.handshake(conn)
		if sess == nil {
			return
		}
		s.sessions.Add(1)
		defer s.sessions.Add(-1)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case f, ok := <-sess.out:
					if !ok {
						return
					}
					mt := websocket.TextMessage
					if f.binary {
						mt = websocket.BinaryMessage
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(mt, f.data); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		readTimeout := time.Duration(s.tune.Session.ReadTimeoutMs) * time.Millisecond
		for {
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			enc := protocol.EncodingJSON
			if mt == websocket.BinaryMessage {
				enc = protocol.EncodingMsgpack
			}
			s.handleFrame(sess, enc, msg)
		}

		s.cleanup(sess)
	}
}

func (s *Server) handshake(conn *websocket.Conn) *session {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(conn, "expected HELLO")
		return nil
	}
	if err := protocol.Validate(protocol.TypeHello, msg); err != nil {
		_ = writeJSON(conn, protocol.NewError(protocol.ErrSchema, err.Error()))
		closeWith(conn, "bad HELLO")
		return nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = writeJSON(conn, protocol.NewError(protocol.ErrProtoVersion, "server speaks "+protocol.Version))
		closeWith(conn, "bad protocol_version")
		return nil
	}
	enc, err := protocol.ParseEncoding(hello.Encoding)
	if err != nil {
		closeWith(conn, err.Error())
		return nil
	}

	camSize := geom.V(s.tune.Camera.Width, s.tune.Camera.Height)
	if hello.Viewport != nil {
		camSize = geom.V(hello.Viewport.Width, hello.Viewport.Height)
	}

	sess := &session{
		id:       uuid.NewString(),
		encoding: enc,
		out:      make(chan frame, s.tune.Session.MaxQueue),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var welcome protocol.WelcomeMsg
	err = s.env.Do(ctx, func(e *world.Environment) {
		avatar := behaviors.NewAvatar(hello.ClientName, e.WorldRect().Center, s.tune.Avatar)
		e.AddAgent(avatar)
		cam := world.NewCamera(avatar, camSize)
		cam.OnResize = func(c *world.Agent, in world.Input) {
			if in.Size != nil && in.Size.X > 0 && in.Size.Y > 0 {
				c.SetSize(*in.Size)
			}
		}
		e.AddAgent(cam)
		avatar.OnDestroy = func(*world.Agent) { cam.Destroy() }

		sess.avatar, sess.camera = avatar, cam
		sess.listener = e.AddTickListener(s.statePusher(e, sess))

		cfg := e.Config()
		wr := e.WorldRect()
		welcome = protocol.WelcomeMsg{
			Type:            protocol.TypeWelcome,
			ProtocolVersion: protocol.Version,
			SessionID:       sess.id,
			AvatarID:        avatar.ID(),
			CameraID:        cam.ID(),
			Encoding:        string(enc),
			World: protocol.WorldParams{
				WorldID:         cfg.WorldID,
				Width:           wr.Size.X,
				Height:          wr.Size.Y,
				Rows:            cfg.Rows,
				Cols:            cfg.Cols,
				TickIntervalMs:  int(cfg.TickInterval / time.Millisecond),
				StateEveryTicks: s.tune.StateEveryTicks,
			},
		}
	})
	if err != nil {
		_ = writeJSON(conn, protocol.NewError(protocol.ErrWorldBusy, err.Error()))
		closeWith(conn, "world unavailable")
		return nil
	}

	if err := writeJSON(conn, welcome); err != nil {
		s.cleanup(sess)
		return nil
	}
	s.log.Printf("session %s joined as %q avatar=%d camera=%d encoding=%s", sess.id, hello.ClientName, welcome.AvatarID, welcome.CameraID, enc)
	return sess
}

// statePusher runs on the loop and pushes what the camera sees.
func (s *Server) statePusher(e *world.Environment, sess *session) func(uint64) {
	every := uint64(max(1, s.tune.StateEveryTicks))
	return func(tick uint64) {
		if tick%every != 0 || !e.AgentExists(sess.camera) {
			return
		}
		msg := protocol.StateMsg{
			Type:   protocol.TypeState,
			Tick:   tick,
			Camera: wireRect(sess.camera.Rect),
		}
		for _, a := range e.VisibleTo(sess.camera) {
			msg.Agents = append(msg.Agents, protocol.AgentState{
				ID:          a.ID(),
				Kind:        a.Kind,
				Name:        a.Name,
				Rect:        wireRect(a.Rect),
				User:        a.User,
				Interactive: e.IsInteractive(a),
			})
		}
		s.send(sess, msg)
	}
}

func (s *Server) handleFrame(sess *session, enc protocol.Encoding, msg []byte) {
	base, err := enc.DecodeBase(msg)
	if err != nil {
		s.sendError(sess, protocol.ErrProtoBadRequest, "undecodable frame")
		return
	}
	if base.Type != protocol.TypeInput {
		s.sendError(sess, protocol.ErrProtoBadRequest, "unexpected message type "+base.Type)
		return
	}
	in, err := enc.DecodeInput(msg)
	if err != nil {
		s.sendError(sess, protocol.ErrSchema, err.Error())
		return
	}
	evs, code := s.eventsFor(sess, in)
	if code != "" {
		s.sendError(sess, code, "cannot route event "+in.Event)
		return
	}
	for _, ev := range evs {
		if !s.env.TryPost(ev) {
			s.sendError(sess, protocol.ErrWorldBusy, "world inbox full")
			return
		}
	}
}

// eventsFor turns one INPUT into the world events it stands for. Key events
// go to the session avatar; resize first resizes the session camera and
// then broadcasts inside it; everything else is broadcast in the camera.
func (s *Server) eventsFor(sess *session, in protocol.InputMsg) ([]world.Event, string) {
	if strings.HasSuffix(in.Event, world.HitSuffix) {
		return nil, protocol.ErrUnknownEvent
	}
	wi := world.Input{Key: in.Key, Data: in.Data}
	if in.Pos != nil {
		p := geom.V(in.Pos.X, in.Pos.Y)
		wi.Pos = &p
	}
	if in.Size != nil {
		sz := geom.V(in.Size.Width, in.Size.Height)
		wi.Size = &sz
	}
	switch in.Event {
	case world.EventKeyDown, world.EventKeyUp:
		return []world.Event{{Name: in.Event, Input: wi, Target: sess.avatar}}, ""
	case world.EventResize:
		return []world.Event{
			{Name: in.Event, Input: wi, Target: sess.camera},
			{Name: in.Event, Input: wi, Camera: sess.camera},
		}, ""
	}
	return []world.Event{{Name: in.Event, Input: wi, Camera: sess.camera}}, ""
}

func (s *Server) cleanup(sess *session) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.env.Do(ctx, func(e *world.Environment) {
		e.RemoveTickListener(sess.listener)
		sess.avatar.Destroy()
	})
	if err != nil && !errors.Is(err, world.ErrStopped) {
		s.log.Printf("session %s cleanup: %v", sess.id, err)
	}
	s.log.Printf("session %s left", sess.id)
}

func (s *Server) send(sess *session, v any) {
	b, err := sess.encoding.Marshal(v)
	if err != nil {
		s.log.Printf("session %s encode: %v", sess.id, err)
		return
	}
	sendLatest(sess.out, frame{binary: sess.encoding.Binary(), data: b})
}

func (s *Server) sendError(sess *session, code, msg string) {
	s.send(sess, protocol.NewError(code, msg))
}

// sendLatest drops the oldest queued frame when the client falls behind.
func sendLatest(ch chan frame, f frame) {
	select {
	case ch <- f:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- f:
	default:
	}
}

func wireRect(r geom.Rect) protocol.Rect {
	return protocol.Rect{
		Center: protocol.Point{X: r.Center.X, Y: r.Center.Y},
		Size:   protocol.Size{Width: r.Size.X, Height: r.Size.Y},
	}
}

func closeWith(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
