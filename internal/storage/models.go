package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Answer is one recorded question/answer exchange.
type Answer struct {
	ID           string
	CreatedAt    time.Time
	Question     string
	Text         string
	Sources      string // JSON array stored as text
	ContextsUsed int
	DurationMS   int64
}
