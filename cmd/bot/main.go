package main

import (
	"flag"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"agentworld.ai/internal/protocol"
)

var arrows = []string{"ArrowUp", "ArrowDown", "ArrowLeft", "ArrowRight"}

func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name     = flag.String("name", "bot", "avatar name")
		encoding = flag.String("encoding", "json", "server frame encoding: json|msgpack")
		every    = flag.Int("every", 5, "act every N STATE frames")
		seed     = flag.Int64("seed", time.Now().UnixNano(), "random seed")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	enc, err := protocol.ParseEncoding(*encoding)
	if err != nil {
		logger.Fatalf("%v", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      *name,
		Encoding:        string(enc),
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}
	// WELCOME always arrives as JSON text.
	var w protocol.WelcomeMsg
	if err := conn.ReadJSON(&w); err != nil {
		logger.Fatalf("read WELCOME: %v", err)
	}
	if w.Type != protocol.TypeWelcome {
		logger.Fatalf("expected WELCOME, got %s", w.Type)
	}
	logger.Printf("WELCOME session=%s avatar=%d camera=%d world=%s %gx%g", w.SessionID, w.AvatarID, w.CameraID, w.World.WorldID, w.World.Width, w.World.Height)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	b := &bot{conn: conn, enc: enc, log: logger, rng: rand.New(rand.NewSource(*seed)), every: max(1, *every), avatar: w.AvatarID}
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := enc.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeState:
			var st protocol.StateMsg
			if err := enc.Unmarshal(msg, &st); err != nil {
				continue
			}
			b.onState(&st)
		case protocol.TypeError:
			var e protocol.ErrorMsg
			if err := enc.Unmarshal(msg, &e); err == nil {
				logger.Printf("ERROR %s: %s", e.Code, e.Message)
			}
		}
	}
}

type bot struct {
	conn   *websocket.Conn
	enc    protocol.Encoding
	log    *log.Logger
	rng    *rand.Rand
	every  int
	avatar int

	frames   int
	dragging bool
}

// onState walks the avatar at random and now and then pokes a visible agent.
func (b *bot) onState(st *protocol.StateMsg) {
	b.frames++
	if b.dragging {
		b.dragging = false
		b.send(protocol.InputMsg{Type: protocol.TypeInput, Event: "mouseup", Pos: &st.Camera.Center})
		return
	}
	if b.frames%b.every != 0 {
		return
	}
	if b.rng.Intn(4) == 0 {
		for _, a := range st.Agents {
			if a.ID == b.avatar || a.User {
				continue
			}
			p := a.Rect.Center
			b.send(protocol.InputMsg{Type: protocol.TypeInput, Event: "mousedown", Pos: &p})
			b.dragging = true
			return
		}
	}
	b.send(protocol.InputMsg{Type: protocol.TypeInput, Event: "keydown", Key: arrows[b.rng.Intn(len(arrows))]})
}

func (b *bot) send(in protocol.InputMsg) {
	data, err := b.enc.Marshal(in)
	if err != nil {
		b.log.Printf("encode: %v", err)
		return
	}
	mt := websocket.TextMessage
	if b.enc.Binary() {
		mt = websocket.BinaryMessage
	}
	if err := b.conn.WriteMessage(mt, data); err != nil {
		b.log.Printf("send %s: %v", in.Event, err)
	}
}
