package storage

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	// ErrInvalidSubscription is returned when category or destination is blank.
	ErrInvalidSubscription = errors.New("storage: category and destination are required")
)

// Config configures storage.
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string        // file, sqlite
	DSN         string        // postgres
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Subscription maps one category to one destination identifier. The
// destination is kept as text; parsing it is the transport's job.
type Subscription struct {
	Category    string    `json:"category"`
	Destination string    `json:"destination"`
	CreatedAt   time.Time `json:"created_at"`
}

func normalize(category, destination string) (string, string, error) {
	c := strings.TrimSpace(category)
	d := strings.TrimSpace(destination)
	if c == "" || d == "" {
		return "", "", ErrInvalidSubscription
	}
	return c, d, nil
}
