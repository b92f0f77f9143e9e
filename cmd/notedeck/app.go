package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/conorfennell/notedeck/internal/config"
	"github.com/conorfennell/notedeck/internal/kvstore"
	"github.com/conorfennell/notedeck/internal/notes"
	"github.com/conorfennell/notedeck/internal/practice"
	"github.com/conorfennell/notedeck/internal/review"
)

type appFeature int

const (
	appStore appFeature = 1 << iota
	appLogFile
)

// app wires the components a command needs from the resolved config.
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	notes   *notes.Client
	store   *kvstore.Store
	tracker *review.Tracker
	closers []func()
}

func newApp(cmd *cobra.Command, features appFeature) (*app, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg}

	logOut := os.Stderr
	if features&appLogFile != 0 {
		f, err := openLogFile(cfg.DB)
		if err != nil {
			return nil, err
		}
		logOut = f
		a.closers = append(a.closers, func() { _ = f.Close() })
	}
	a.log = config.NewLogger(cfg.LogLevel, cfg.LogFormat, logOut)
	a.notes = notes.NewClient(cfg.APIURL, cfg.Timeout, a.log)

	if features&appStore != 0 {
		st, err := kvstore.Open(cfg.DB, a.log)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to open db: %w", err)
		}
		a.store = st
		a.closers = append(a.closers, func() {
			if err := st.Close(); err != nil {
				a.log.Error("Failed to close db", "error", err)
			}
		})

		tr, err := review.NewTracker(cmd.Context(), st, a.log)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.tracker = tr
		a.closers = append(a.closers, tr.Close)
	}
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) now() time.Time {
	return time.Now()
}

func (a *app) practiceOptions() (practice.Options, error) {
	mode, err := practice.ParseAnswerMode(a.cfg.AnswerMode)
	if err != nil {
		return practice.Options{}, err
	}
	return practice.Options{Shuffle: a.cfg.Shuffle, Mode: mode}, nil
}

// watch follows changes other processes make to the store until ctx is done.
func (a *app) watch(ctx context.Context) error {
	a.tracker.OnChange(func() {
		a.log.Debug("Review state changed in another process")
	})
	return a.store.Watch(ctx, a.cfg.WatchInterval)
}

// prefetch warms the note content cache. Failures only cost a later fetch.
func (a *app) prefetch(ctx context.Context) {
	if a.cfg.Prefetch == 0 {
		return
	}
	all, err := a.notes.ListNotes(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			a.log.Warn("Skipping prefetch", "error", err)
		}
		return
	}
	n := a.notes.Prefetch(ctx, all, a.cfg.Prefetch)
	a.log.Info("Prefetched note content", "cached", n, "notes", len(all))
}

func openLogFile(dbPath string) (*os.File, error) {
	path := filepath.Join(filepath.Dir(dbPath), config.AppName+".log")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}
