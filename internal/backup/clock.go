package backup

import (
	"context"
	"time"
)

// Clock abstracts time so the polling loop can be tested without delays.
type Clock interface {
	Now() time.Time

	// Sleep blocks for d. It returns early with ctx.Err() if ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
