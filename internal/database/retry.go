package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// pingPolicy bounds how long startup waits for a backend that is still
// coming up (containers started together).
type pingPolicy struct {
	attempts   int
	timeout    time.Duration
	backoff    time.Duration
	maxBackoff time.Duration
}

var defaultPingPolicy = pingPolicy{
	attempts:   10,
	timeout:    5 * time.Second,
	backoff:    time.Second,
	maxBackoff: 30 * time.Second,
}

// waitReady pings until the backend answers or the attempts run out,
// doubling the pause between tries.
func waitReady(name string, p pingPolicy, ping func(context.Context) error) error {
	backoff := p.backoff
	var err error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		err = ping(ctx)
		cancel()
		if err == nil {
			return nil
		}
		if attempt == p.attempts {
			break
		}

		slog.Warn(name+" not ready, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("backoff", backoff),
			slog.Any("error", err),
		)
		time.Sleep(backoff)
		backoff = min(backoff*2, p.maxBackoff)
	}
	return fmt.Errorf("pinging %s after %d attempts: %w", name, p.attempts, err)
}
