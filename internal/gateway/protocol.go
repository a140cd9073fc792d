package gateway

import "time"

// Client to server message types.
const (
	MsgRoute    = "route"
	MsgActivity = "activity"
	MsgConfirm  = "confirm"
	MsgLogout   = "logout"
)

// Server to client message types. MsgLogout is shared.
const (
	MsgPrompt       = "prompt"
	MsgPromptCancel = "prompt_cancel"
	MsgAlert        = "alert"
	MsgRedirect     = "redirect"
)

// ClientMessage is any message a console tab sends.
type ClientMessage struct {
	Type  string `json:"type"`
	Route string `json:"route,omitempty"`
	Kind  string `json:"kind,omitempty"`
	ID    string `json:"id,omitempty"`
	Stay  bool   `json:"stay,omitempty"`
}

// ServerMessage is any message the daemon sends to a console tab.
type ServerMessage struct {
	Type      string     `json:"type"`
	ID        string     `json:"id,omitempty"`
	Message   string     `json:"message,omitempty"`
	Route     string     `json:"route,omitempty"`
	Replace   bool       `json:"replace,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}
