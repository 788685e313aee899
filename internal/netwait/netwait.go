// Package netwait blocks until a TCP endpoint accepts connections.
package netwait

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// ErrNotReady reports that the endpoint never accepted a connection within
// the attempt budget.
var ErrNotReady = errors.New("endpoint not ready")

// Dialer is the subset of net.Dialer used by Wait. Injectable for tests.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Options controls the polling schedule.
type Options struct {
	// Attempts bounds the number of connect attempts. Defaults to 30.
	Attempts int
	// Interval is the sleep between failed attempts. Defaults to 10s.
	Interval time.Duration
	Dialer   Dialer
}

func (o Options) withDefaults() Options {
	if o.Attempts <= 0 {
		o.Attempts = 30
	}
	if o.Interval <= 0 {
		o.Interval = 10 * time.Second
	}
	if o.Dialer == nil {
		o.Dialer = &net.Dialer{Timeout: 5 * time.Second}
	}
	return o
}

// Wait dials addr until a connection succeeds, the attempt budget is
// exhausted, or ctx is canceled. Exhaustion is an explicit ErrNotReady: the
// caller must not proceed against an endpoint that never came up.
func Wait(ctx context.Context, addr string, opts Options) error {
	opts = opts.withDefaults()

	var lastErr error
	for attempt := 1; attempt <= opts.Attempts; attempt++ {
		conn, err := opts.Dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		lastErr = err

		if attempt == opts.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(opts.Interval):
		}
	}
	return fmt.Errorf("%w: %s after %d attempts: %v", ErrNotReady, addr, opts.Attempts, lastErr)
}
