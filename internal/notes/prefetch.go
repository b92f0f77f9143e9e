package notes

import (
	"context"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/conorfennell/notedeck/internal/domain"
)

// Prefetch warms the content cache for notes with at most limit requests in
// flight. Failures are logged and skipped; the number of cached notes is returned.
func (c *Client) Prefetch(ctx context.Context, notes []domain.Note, limit int) int {
	if limit <= 0 {
		limit = 1
	}
	c.log.Info("Starting prefetch of note bodies...", "notes", len(notes), "limit", limit)

	var cached, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for _, note := range notes {
		if c.Cached(note.ID) {
			cached.Add(1)
			continue
		}
		g.Go(func() error {
			if _, err := c.Content(gctx, note.ID); err != nil {
				failed.Add(1)
				c.log.Warn("Failed to prefetch note", slog.String("note", note.ID), slog.String("error", err.Error()))
				return nil
			}
			cached.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	c.log.Info("prefetch complete",
		"cached", cached.Load(),
		"failed", failed.Load(),
	)
	return int(cached.Load())
}
