// Package timesync keeps a network-corrected clock for log timestamps.
package timesync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/beevik/ntp"
)

const defaultTimeout = 5 * time.Second

var errServerRequired = errors.New("ntp server is required")

// QueryFunc matches ntp.QueryWithOptions.
type QueryFunc func(host string, opts ntp.QueryOptions) (*ntp.Response, error)

// Config holds the configuration for an NTPClock.
type Config struct {
	// Logger is the structured logger
	Logger *slog.Logger
	// Server is the NTP host
	Server string
	// Timeout bounds a single query
	Timeout time.Duration
	// Query overrides the NTP query (tests)
	Query QueryFunc
	// Local is the uncorrected clock (defaults to time.Now)
	Local func() time.Time
}

// NTPClock is the system clock corrected by the last NTP offset. Before
// the first successful sync it reports local time.
type NTPClock struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.RWMutex
	offset time.Duration
	synced bool
}

// NewNTPClock validates cfg.
func NewNTPClock(cfg Config) (*NTPClock, error) {
	if cfg.Server == "" {
		return nil, errServerRequired
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Query == nil {
		cfg.Query = ntp.QueryWithOptions
	}
	if cfg.Local == nil {
		cfg.Local = time.Now
	}

	return &NTPClock{
		cfg:    cfg,
		logger: cfg.Logger.With(slog.String("component", "timesync")),
	}, nil
}

// Sync queries the server once and applies the offset. A failed or invalid
// response leaves the previous offset in place.
func (c *NTPClock) Sync(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	timeout := c.cfg.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = min(timeout, time.Until(deadline))
	}

	resp, err := c.cfg.Query(c.cfg.Server, ntp.QueryOptions{Timeout: timeout})
	if err != nil {
		return fmt.Errorf("query %s: %w", c.cfg.Server, err)
	}
	if err := resp.Validate(); err != nil {
		return fmt.Errorf("invalid response from %s: %w", c.cfg.Server, err)
	}

	c.mu.Lock()
	c.offset = resp.ClockOffset
	c.synced = true
	c.mu.Unlock()

	c.logger.Info("network time set",
		"server", c.cfg.Server,
		"offset", resp.ClockOffset,
		"utc", c.Now().UTC().Format("15:04:05"),
	)
	return nil
}

// Now returns local time corrected by the last synced offset.
func (c *NTPClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.Local().Add(c.offset)
}

// Synced reports whether a sync has ever succeeded.
func (c *NTPClock) Synced() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.synced
}

// Offset returns the last applied offset.
func (c *NTPClock) Offset() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.offset
}
