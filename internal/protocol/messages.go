package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name"`
	// Encoding requested for server frames: "json" (default) or "msgpack".
	Encoding string `json:"encoding,omitempty"`
	Viewport *Size  `json:"viewport,omitempty"`
}

type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	SessionID       string      `json:"session_id"`
	AvatarID        int         `json:"avatar_id"`
	CameraID        int         `json:"camera_id"`
	Encoding        string      `json:"encoding"`
	World           WorldParams `json:"world"`
}

type WorldParams struct {
	WorldID         string  `json:"world_id"`
	Width           float64 `json:"width"`
	Height          float64 `json:"height"`
	Rows            int     `json:"rows"`
	Cols            int     `json:"cols"`
	TickIntervalMs  int     `json:"tick_interval_ms"`
	StateEveryTicks int     `json:"state_every_ticks"`
}

// INPUT (client -> server). Pointer positions are in world coordinates.
type InputMsg struct {
	Type  string         `json:"type"`
	Event string         `json:"event"`
	Pos   *Point         `json:"pos,omitempty"`
	Key   string         `json:"key,omitempty"`
	Size  *Size          `json:"size,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
}

// STATE (server -> client): what the session camera sees.
type StateMsg struct {
	Type   string       `json:"type"`
	Tick   uint64       `json:"tick"`
	Camera Rect         `json:"camera"`
	Agents []AgentState `json:"agents"`
}

type Rect struct {
	Center Point `json:"center"`
	Size   Size  `json:"size"`
}

type AgentState struct {
	ID          int    `json:"id"`
	Kind        string `json:"kind"`
	Name        string `json:"name,omitempty"`
	Rect        Rect   `json:"rect"`
	User        bool   `json:"user,omitempty"`
	Interactive bool   `json:"interactive,omitempty"`
}

// ERROR (server -> client)
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewError(code, msg string) ErrorMsg {
	return ErrorMsg{Type: TypeError, Code: code, Message: msg}
}
