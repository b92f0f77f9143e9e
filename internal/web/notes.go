package web

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/conorfennell/notedeck/internal/domain"
	"github.com/conorfennell/notedeck/internal/notes"
	"github.com/conorfennell/notedeck/internal/srs"
)

type noteView struct {
	ID           string     `json:"note_name"`
	LastModified *time.Time `json:"last_modified,omitempty"`
}

func toNoteViews(in []domain.Note) []noteView {
	out := make([]noteView, len(in))
	for i, n := range in {
		out[i] = noteView{ID: n.ID}
		if !n.LastModified.IsZero() {
			lm := n.LastModified
			out[i].LastModified = &lm
		}
	}
	return out
}

// handleListNotes returns the sidebar list, filtered by ?q=.
func (s *Server) handleListNotes() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		all, err := s.notes.ListNotes(r.Context())
		if err != nil {
			s.respondWithErr(w, err)
			return
		}
		filtered := notes.Filter(all, r.URL.Query().Get("q"))
		notes.SortByID(filtered)
		respondWithJSON(w, http.StatusOK, map[string]any{
			"notes": toNoteViews(filtered),
			"total": len(all),
		})
	}
}

// handleNoteContent returns a note's markdown and its rendered HTML, tagged
// with the body digest. ?refresh=1 bypasses the content cache.
func (s *Server) handleNoteContent() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("note")
		if id == "" {
			s.respondWithErr(w, fmt.Errorf("%w: note is required", errBadRequest))
			return
		}

		var (
			content string
			err     error
		)
		if r.URL.Query().Get("refresh") == "1" {
			content, err = s.notes.Refetch(r.Context(), id)
		} else {
			content, err = s.notes.Content(r.Context(), id)
		}
		if err != nil {
			s.respondWithErr(w, err)
			return
		}

		etag := `"` + notes.Digest(content) + `"`
		w.Header().Set("ETag", etag)
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}

		var html bytes.Buffer
		if err := s.markdown.Convert([]byte(content), &html); err != nil {
			s.respondWithErr(w, fmt.Errorf("render %s: %w", id, err))
			return
		}
		respondWithJSON(w, http.StatusOK, map[string]string{
			"note":     id,
			"markdown": content,
			"html":     html.String(),
		})
	}
}

type bucketView struct {
	Name        string     `json:"name"`
	Title       string     `json:"title"`
	Days        int        `json:"days"`
	Description string     `json:"description"`
	Notes       []noteView `json:"notes"`
}

type streakView struct {
	Count    int    `json:"count"`
	LastDate string `json:"last_date,omitempty"`
}

func toStreakView(st srs.Streak) streakView {
	return streakView{Count: st.Count, LastDate: st.LastDate}
}

// handleReview returns the due buckets and the streak.
func (s *Server) handleReview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		all, err := s.notes.ListNotes(r.Context())
		if err != nil {
			s.respondWithErr(w, err)
			return
		}
		dash, err := s.tracker.Dashboard(r.Context(), all, s.now())
		if err != nil {
			s.respondWithErr(w, err)
			return
		}

		buckets := make([]bucketView, len(dash.Buckets))
		for i, b := range dash.Buckets {
			buckets[i] = bucketView{
				Name:        b.Interval.Name,
				Title:       b.Interval.Title,
				Days:        b.Interval.Days,
				Description: b.Interval.Description,
				Notes:       toNoteViews(b.Notes),
			}
		}
		respondWithJSON(w, http.StatusOK, map[string]any{
			"buckets":   buckets,
			"total_due": dash.TotalDue,
			"streak":    toStreakView(dash.Streak),
		})
	}
}
