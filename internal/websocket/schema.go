package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionPing Action = "ping"
)

// RequestEnvelope is used to peek at the action of a client message.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

// Battle events reach the client exactly as published ({"type", "data"}).
// The events below are local to one connection.

type Event string

const (
	EventError Event = "error"
	EventPong  Event = "pong"
)

type ErrorResponse struct {
	Type  Event  `json:"type"`
	Error string `json:"error"`
}

type PongResponse struct {
	Type Event `json:"type"`
}
