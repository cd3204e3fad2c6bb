package models

import "time"

// TurnEvent is published after every chat turn, successful or not.
type TurnEvent struct {
	Type       string         `json:"type"` // "turn_completed" or "turn_failed"
	SessionID  string         `json:"session_id"`
	Model      string         `json:"model,omitempty"`
	Attempts   []AttemptEvent `json:"attempts"`
	DurationMs int64          `json:"duration_ms"`
	At         time.Time      `json:"at"`
}

// AttemptEvent summarises one backend attempt inside a turn.
type AttemptEvent struct {
	Index     int    `json:"index"`
	Model     string `json:"model"`
	Outcome   string `json:"outcome"` // "success", "fallback", "repeat"
	Error     string `json:"error,omitempty"`
	BackoffMs int64  `json:"backoff_ms,omitempty"`
}

// SessionEventsChannel is the Redis pub/sub channel carrying a session's
// turn events.
func SessionEventsChannel(sessionID string) string {
	return "session_events:" + sessionID
}
