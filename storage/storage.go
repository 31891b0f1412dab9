package storage

import "time"

// Record is one finished generation, kept for the /recent command. Records
// are written after the outcome is final and are never read back by the
// orchestrator itself.
type Record struct {
	Session     int64         `bson:"session"`
	Prompt      string        `bson:"prompt"`
	Model       string        `bson:"model"`
	Orientation string        `bson:"orientation"`
	Count       int           `bson:"count"`
	Outcome     string        `bson:"outcome"` // "ok" or the failure kind
	Error       string        `bson:"error,omitempty"`
	Duration    time.Duration `bson:"duration"`
	CreatedAt   time.Time     `bson:"created_at"`
}

type History interface {
	Add(rec Record) error
	Recent(session int64, limit int) ([]Record, error)
	Close() error
}
