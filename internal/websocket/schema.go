package websocket

import (
	"github.com/prepstack/prepstack-backend/internal/scoring"
	"github.com/prepstack/prepstack-backend/internal/session"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionSelect   Action = "select"    // set pending selection
	ActionSaveNext Action = "save_next" // commit + advance
	ActionClear    Action = "clear"     // clear response
	ActionMarkNext Action = "mark_next" // mark for review + advance
	ActionSkip     Action = "skip"
	ActionGoto     Action = "goto" // palette jump
	ActionSubmit   Action = "submit"
	ActionExit     Action = "exit"
	ActionPing     Action = "ping"
)

// Request is the single client message shape; Option and Index are only
// read for the actions that need them.
type Request struct {
	Action Action `json:"action"`
	Option string `json:"option,omitempty"`
	Index  *int   `json:"index,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState   Event = "state"
	EventWarning Event = "warning"
	EventConfirm Event = "confirm_submit"
	EventGraded  Event = "graded"
	EventError   Event = "error"
	EventPong    Event = "pong"
)

// StateResponse carries a full palette snapshot after every action.
type StateResponse struct {
	Event Event            `json:"event"`
	State session.Snapshot `json:"state"`
}

// WarningResponse surfaces a soft, non-blocking validation notice.
type WarningResponse struct {
	Event   Event  `json:"event"`
	Message string `json:"message"`
}

// ConfirmResponse tells the client every question is answered and the
// submit confirmation should be surfaced.
type ConfirmResponse struct {
	Event Event `json:"event"`
}

// GradedResponse delivers the final summary after submission.
type GradedResponse struct {
	Event          Event           `json:"event"`
	Reason         string          `json:"reason"`
	ElapsedSeconds int             `json:"elapsed_seconds"`
	Summary        scoring.Summary `json:"summary"`
}

// ErrorResponse reports a failed action.
type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

// PongResponse answers a ping.
type PongResponse struct {
	Event Event `json:"event"`
}
