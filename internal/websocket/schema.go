package websocket

import "github.com/provafacil/simulado-backend/internal/session"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionSelectAnswer  Action = "select_answer"
	ActionNavigate      Action = "navigate"
	ActionRequestFinish Action = "request_finish"
	ActionCancelFinish  Action = "cancel_finish"
	ActionConfirmFinish Action = "confirm_finish"
	ActionRetry         Action = "retry"
	ActionPing          Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// SelectAnswerRequest is sent by the client to record a single answer.
type SelectAnswerRequest struct {
	Action Action `json:"action"`
	QID    string `json:"q_id"`
	Answer string `json:"ans"`
}

// NavigateRequest is sent by the client to move the current question index.
type NavigateRequest struct {
	Action Action `json:"action"`
	Index  int    `json:"index"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState Event = "state"
	EventError Event = "error"
	EventPong  Event = "pong"
)

// StateResponse carries a full session snapshot. Pushed on every transition
// and on every countdown tick.
type StateResponse struct {
	Event Event            `json:"event"`
	State session.Snapshot `json:"state"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
