// Package latches waits on gomlx latches under a context.
package latches

import (
	"context"

	"github.com/gomlx/gomlx/pkg/support/xsync"
)

// Wait waits for l to be triggered, or for ctx to be done, in which case it returns ctx.Err().
func Wait(ctx context.Context, l *xsync.Latch) error {
	select {
	case <-l.WaitChan():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitAll waits for all latches, or until ctx is done.
func WaitAll(ctx context.Context, ls ...*xsync.Latch) error {
	for _, l := range ls {
		if err := Wait(ctx, l); err != nil {
			return err
		}
	}
	return nil
}
