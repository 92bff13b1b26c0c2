// Package broadcast sends the head of each subscribed bestseller list to the
// category's destinations once per interval.
package broadcast

import (
	"context"
	"errors"
	"time"

	"sage/internal/catalog"
	"sage/internal/subscriber"
	"sage/internal/transport"
	logx "sage/pkg/logx"
)

const (
	DefaultInterval    = 24 * time.Hour
	defaultConcurrency = 4
	defaultRatePerSec  = 10
	defaultSendTimeout = 30 * time.Second
	defaultHistorySize = 50
	defaultParseMode   = "Markdown"
)

// ErrDelivery wraps a failure reported by the Sender.
var ErrDelivery = errors.New("broadcast: delivery failed")

type Config struct {
	Interval    time.Duration // default 24h
	Concurrency int           // categories processed in parallel; default 4
	RatePerSec  int           // outgoing messages per second; default 10
	SendTimeout time.Duration // per message; default 30s
	RunOnStart  bool
	HistorySize int // ticks kept for Snapshot; default 50
	// ParseMode is passed to the Sender; the author line uses _italic_ markup.
	// Default "Markdown"; "none" sends plain text.
	ParseMode string
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.Concurrency <= 0 {
		c.Concurrency = defaultConcurrency
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = defaultRatePerSec
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = defaultSendTimeout
	}
	if c.HistorySize <= 0 {
		c.HistorySize = defaultHistorySize
	}
	switch c.ParseMode {
	case "":
		c.ParseMode = defaultParseMode
	case "none":
		c.ParseMode = ""
	}
	return c
}

// Fetcher is the part of the catalog client the scheduler needs.
type Fetcher interface {
	FetchTopItems(ctx context.Context, category catalog.Category) ([]catalog.BookSummary, error)
}

type Deps struct {
	Reader  subscriber.Reader
	Fetcher Fetcher
	Sender  transport.Sender
	Log     logx.Logger
}

// Report describes one tick.
type Report struct {
	ID       string
	Started  time.Time
	Duration time.Duration

	// Skipped is set when no subscriber snapshot was available.
	Skipped    bool
	SkipReason string
	// Aborted is set when ctx ended before every category finished.
	Aborted bool

	Categories []CategoryResult

	Fetched     int
	FetchFailed int
	Sent        int
	Failed      int
}

// CategoryResult is the outcome of one category within a tick.
type CategoryResult struct {
	Category     catalog.Category
	Destinations int
	// Skipped means the category had no destinations and nothing was fetched.
	Skipped bool
	Aborted bool
	Fetched bool
	// FetchErr is the fetch failure, or a recovered panic.
	FetchErr error
	Quote    catalog.BookSummary
	Delivery []Delivery
}

// Delivery is the outcome for one destination. Err wraps
// transport.ErrInvalidTarget or ErrDelivery.
type Delivery struct {
	Destination string
	Target      transport.ChatTarget
	Err         error
}

func (r CategoryResult) counts() (sent, failed int) {
	for _, d := range r.Delivery {
		if d.Err != nil {
			failed++
		} else {
			sent++
		}
	}
	return sent, failed
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	Interval time.Duration
	Running  bool
	Next     time.Time
	Prev     time.Time
	History  []Report // oldest first
}
