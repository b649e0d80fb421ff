package runtime

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// BuildAll initializes, lowers and finalizes independent tasks concurrently.
// The first failure cancels the builds that have not finished yet; the
// returned error is that first failure. Each task's own state records whether
// it completed.
func BuildAll(ctx context.Context, tasks ...*Task) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range tasks {
		t := t
		g.Go(func() error {
			return t.prepare(gctx)
		})
	}
	return g.Wait()
}

// BuildAllLimit is BuildAll with at most n builds in flight.
func BuildAllLimit(ctx context.Context, n int, tasks ...*Task) error {
	g, gctx := errgroup.WithContext(ctx)
	if n > 0 {
		g.SetLimit(n)
	}
	for _, t := range tasks {
		t := t
		g.Go(func() error {
			return t.prepare(gctx)
		})
	}
	return g.Wait()
}
