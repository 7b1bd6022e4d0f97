// Package archive records an audit trail of stage runs. It is a sink, not a
// state store: session state never depends on it and a save failure never
// fails a stage.
package archive

import (
	"context"
	"time"
)

// StageEvent is one recorded stage run for one session.
type StageEvent struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Stage     string    `json:"stage"`
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists and retrieves stage events.
type Store interface {
	SaveEvent(ctx context.Context, event StageEvent) error
	RecentEvents(ctx context.Context, sessionID string, limit int) ([]StageEvent, error)
	Close() error
}
