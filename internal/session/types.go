package session

import "time"

// User is the persisted history of one console user.
type User struct {
	Sessions []SessionRecord `json:"sessions"`
}

// SegmentRecord is one armed period of a session: it starts when the
// monitor arms and ends when it disarms.
type SegmentRecord struct {
	StartTime time.Time `json:"start"`
	EndTime   time.Time `json:"stop"`
	Reason    string    `json:"reason,omitempty"`
}

// SessionRecord tracks one browsing context from connect to disconnect.
type SessionRecord struct {
	StartTime  time.Time       `json:"start"`
	EndTime    time.Time       `json:"end"`
	SessionId  string          `json:"session_id,omitempty"`
	Route      string          `json:"route,omitempty"`
	EndReason  string          `json:"end_reason,omitempty"`
	Warnings   int             `json:"warnings,omitempty"`
	Extensions int             `json:"extensions,omitempty"`
	Expired    bool            `json:"expired,omitempty"`
	Segments   []SegmentRecord `json:"segments,omitempty"`
}
