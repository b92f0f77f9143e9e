// Package srs buckets notes into review intervals and keeps the daily streak.
// Everything here is a pure function over its inputs.
package srs

import (
	"time"

	"github.com/conorfennell/notedeck/internal/domain"
)

// CompletionTTL is how long a completion keeps a note out of the due buckets.
const CompletionTTL = 24 * time.Hour

// DateLayout is the format of streak dates.
const DateLayout = "2006-01-02"

// Interval is a review threshold measured in whole days since last modification.
type Interval struct {
	Name        string
	Title       string
	Days        int
	Description string
}

// Intervals are evaluated as thresholds, in this order.
var Intervals = []Interval{
	{Name: "1-day", Title: "1 Day Review", Days: 1, Description: "Fresh material needs reinforcement"},
	{Name: "weekly", Title: "Weekly Review", Days: 7, Description: "Solidify your understanding"},
	{Name: "bi-weekly", Title: "Bi-weekly Review", Days: 16, Description: "Long-term retention check"},
	{Name: "monthly", Title: "Monthly Review", Days: 35, Description: "Master-level recall test"},
}

// Completions maps a note identifier to the epoch-millisecond instant it was last completed.
type Completions map[string]int64

// Bucket is one interval together with the notes currently due in it.
type Bucket struct {
	Interval Interval
	Notes    []domain.Note
}

// AgeInDays truncates both instants to local midnight and returns the whole
// number of calendar days between them. Partial days never round up.
func AgeInDays(lastModified, now time.Time) int {
	lm := lastModified.Local()
	n := now.Local()
	// Compare calendar dates on a fixed 24h clock so DST shifts cannot shave a day.
	from := time.Date(lm.Year(), lm.Month(), lm.Day(), 0, 0, 0, 0, time.UTC)
	to := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from) / (24 * time.Hour))
}

// DueBuckets places every note into each interval whose threshold it meets,
// skipping notes that have an entry in completions. Callers prune the
// completions first so expired entries re-admit their notes. A note without
// a modification time has no age and is never due.
func DueBuckets(notes []domain.Note, completions Completions, now time.Time) []Bucket {
	buckets := make([]Bucket, len(Intervals))
	for i, interval := range Intervals {
		buckets[i].Interval = interval
		for _, note := range notes {
			if note.LastModified.IsZero() {
				continue
			}
			if _, done := completions[note.ID]; done {
				continue
			}
			if AgeInDays(note.LastModified, now) >= interval.Days {
				buckets[i].Notes = append(buckets[i].Notes, note)
			}
		}
	}
	return buckets
}

// TotalDue sums the sizes of all buckets. A note due in several intervals counts once per interval.
func TotalDue(buckets []Bucket) int {
	total := 0
	for _, b := range buckets {
		total += len(b.Notes)
	}
	return total
}

// IsDue reports whether the note appears in any bucket.
func IsDue(buckets []Bucket, noteID string) bool {
	for _, b := range buckets {
		for _, n := range b.Notes {
			if n.ID == noteID {
				return true
			}
		}
	}
	return false
}

// PruneExpired returns a copy of completions without entries older than CompletionTTL.
func PruneExpired(completions Completions, now time.Time) Completions {
	nowMs := now.UnixMilli()
	out := make(Completions, len(completions))
	for id, ts := range completions {
		if nowMs-ts < CompletionTTL.Milliseconds() {
			out[id] = ts
		}
	}
	return out
}

// Record returns a copy of completions with noteID set to now, replacing any earlier value.
func Record(completions Completions, noteID string, now time.Time) Completions {
	out := make(Completions, len(completions)+1)
	for id, ts := range completions {
		out[id] = ts
	}
	out[noteID] = now.UnixMilli()
	return out
}
