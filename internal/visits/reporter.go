// Package visits reports the pages a user finishes loading in the browser to
// the notes backend.
package visits

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Navigation is a completed page load as seen by the browser.
type Navigation struct {
	TabID   int    `json:"tabId"`
	FrameID int    `json:"frameId"`
	URL     string `json:"url"`
}

// Submitter sends a visited URL to the backend.
type Submitter interface {
	AddWebsite(ctx context.Context, pageURL string) error
}

// Reporter forwards top-level navigations. Reports are fire-and-forget:
// failures are logged and never retried.
type Reporter struct {
	sub Submitter
	log *slog.Logger
	wg  sync.WaitGroup
}

// NewReporter creates a Reporter that submits through sub.
func NewReporter(sub Submitter, logger *slog.Logger) *Reporter {
	return &Reporter{sub: sub, log: logger.With("component", "visits")}
}

// Handle reports nav in the background when it is a top-level frame with a
// URL. It returns whether a report was started.
func (r *Reporter) Handle(ctx context.Context, nav Navigation) bool {
	if nav.FrameID != 0 || nav.URL == "" {
		return false
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.sub.AddWebsite(ctx, nav.URL); err != nil {
			r.log.Error("Failed to send URL", "url", nav.URL, "tab", nav.TabID, "error", err)
			return
		}
		r.log.Debug("URL reported", "url", nav.URL, "tab", nav.TabID)
	}()
	return true
}

// Run decodes a stream of JSON navigation objects from in and handles each.
// Malformed entries are logged and skipped. It returns nil at end of input
// and ctx.Err() once ctx is done.
func (r *Reporter) Run(ctx context.Context, in io.Reader) error {
	dec := json.NewDecoder(in)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var nav Navigation
		err := dec.Decode(&nav)
		switch {
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			var syntaxErr *json.SyntaxError
			if errors.As(err, &syntaxErr) || errors.Is(err, io.ErrUnexpectedEOF) {
				return fmt.Errorf("visits: read navigation stream: %w", err)
			}
			r.log.Warn("Skipping malformed navigation", "error", err)
			continue
		}
		r.Handle(ctx, nav)
	}
}

// Wait blocks until every started report has finished.
func (r *Reporter) Wait() {
	r.wg.Wait()
}
