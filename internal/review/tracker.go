// Package review keeps the persisted spaced-repetition state: which notes
// were completed recently and the daily streak of clearing every due note.
package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/conorfennell/notedeck/internal/domain"
	"github.com/conorfennell/notedeck/internal/kvstore"
	"github.com/conorfennell/notedeck/internal/srs"
)

// Storage keys.
const (
	CompletionsKey = "spaced-repetition-completions"
	StreakKey      = "spaced-repetition-streak"
	StreakDateKey  = "last-streak-date"
)

// Dashboard is what the review view shows.
type Dashboard struct {
	Buckets  []srs.Bucket
	TotalDue int
	Streak   srs.Streak
}

// Outcome describes the effect of marking a note complete.
type Outcome struct {
	NoteID        string
	WasDue        bool
	RemainingDue  int
	StreakUpdated bool
	Streak        srs.Streak
}

// Tracker reads and writes review state through the key-value store, so
// another process sharing the store sees the same completions and streak.
type Tracker struct {
	completions *kvstore.Value[srs.Completions]
	streak      *kvstore.Value[int]
	streakDate  *kvstore.Value[string]
	log         *slog.Logger
}

// NewTracker binds the review keys of store.
func NewTracker(ctx context.Context, store *kvstore.Store, logger *slog.Logger) (*Tracker, error) {
	completions, err := kvstore.Bind(ctx, store, CompletionsKey, srs.Completions{})
	if err != nil {
		return nil, fmt.Errorf("failed to load completions: %w", err)
	}
	streak, err := kvstore.Bind(ctx, store, StreakKey, 0)
	if err != nil {
		completions.Close()
		return nil, fmt.Errorf("failed to load streak: %w", err)
	}
	streakDate, err := kvstore.Bind(ctx, store, StreakDateKey, "")
	if err != nil {
		completions.Close()
		streak.Close()
		return nil, fmt.Errorf("failed to load streak date: %w", err)
	}
	return &Tracker{
		completions: completions,
		streak:      streak,
		streakDate:  streakDate,
		log:         logger.With("component", "review"),
	}, nil
}

// Close stops following external changes.
func (t *Tracker) Close() {
	t.completions.Close()
	t.streak.Close()
	t.streakDate.Close()
}

// Streak returns the stored streak.
func (t *Tracker) Streak() srs.Streak {
	return srs.Streak{Count: t.streak.Get(), LastDate: t.streakDate.Get()}
}

// Completions returns the stored completions without pruning.
func (t *Tracker) Completions() srs.Completions {
	return t.completions.Get()
}

// OnChange runs fn whenever another process changes review state.
func (t *Tracker) OnChange(fn func()) {
	t.completions.OnChange(func(srs.Completions) { fn() })
	t.streak.OnChange(func(int) { fn() })
	t.streakDate.OnChange(func(string) { fn() })
}

// Dashboard drops expired completions, persisting the purge when anything
// expired, and groups the remaining notes into due buckets.
func (t *Tracker) Dashboard(ctx context.Context, notes []domain.Note, now time.Time) (Dashboard, error) {
	completions, err := t.prune(ctx, now)
	if err != nil {
		return Dashboard{}, err
	}
	buckets := srs.DueBuckets(notes, completions, now)
	return Dashboard{
		Buckets:  buckets,
		TotalDue: srs.TotalDue(buckets),
		Streak:   t.Streak(),
	}, nil
}

// Complete records noteID as reviewed at now. When that clears the last due
// note, the streak advances for today's date.
func (t *Tracker) Complete(ctx context.Context, notes []domain.Note, noteID string, now time.Time) (Outcome, error) {
	if noteID == "" {
		return Outcome{}, errors.New("review: empty note id")
	}
	before, err := t.prune(ctx, now)
	if err != nil {
		return Outcome{}, err
	}
	wasDue := srs.IsDue(srs.DueBuckets(notes, before, now), noteID)

	after, err := t.completions.Update(ctx, func(prev srs.Completions) srs.Completions {
		return srs.Record(prev, noteID, now)
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to record completion: %w", err)
	}

	out := Outcome{
		NoteID:       noteID,
		WasDue:       wasDue,
		RemainingDue: srs.TotalDue(srs.DueBuckets(notes, after, now)),
		Streak:       t.Streak(),
	}
	t.log.Info("Note completed", "note", noteID, "was_due", wasDue, "remaining_due", out.RemainingDue)

	if !wasDue || out.RemainingDue != 0 {
		return out, nil
	}

	next := srs.UpdateStreak(out.Streak, srs.DateString(now))
	if next == out.Streak {
		return out, nil
	}
	if err := t.streak.Set(ctx, next.Count); err != nil {
		return out, fmt.Errorf("failed to store streak: %w", err)
	}
	if err := t.streakDate.Set(ctx, next.LastDate); err != nil {
		return out, fmt.Errorf("failed to store streak date: %w", err)
	}
	out.Streak = next
	out.StreakUpdated = true
	t.log.Info("Streak updated", "count", next.Count, "date", next.LastDate)
	return out, nil
}

func (t *Tracker) prune(ctx context.Context, now time.Time) (srs.Completions, error) {
	current := t.completions.Get()
	pruned := srs.PruneExpired(current, now)
	if len(pruned) == len(current) {
		return current, nil
	}
	if err := t.completions.Set(ctx, pruned); err != nil {
		return nil, fmt.Errorf("failed to purge expired completions: %w", err)
	}
	t.log.Debug("Purged expired completions", "removed", len(current)-len(pruned))
	return pruned, nil
}
