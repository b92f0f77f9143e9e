package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/notedeck/internal/kvstore"
	"github.com/conorfennell/notedeck/internal/notes"
	"github.com/conorfennell/notedeck/internal/practice"
	"github.com/conorfennell/notedeck/internal/review"
)

var now = time.Date(2024, 5, 20, 12, 0, 0, 0, time.Local)

// backend fakes the notes API. Two notes: "Go Channels" is ten days old and
// due, "Fresh" was modified today.
type backend struct {
	questions atomic.Value // string, JSON body of get-practice-questions
	failNote  atomic.Bool
}

func newBackend() *backend {
	b := &backend{}
	b.questions.Store(`{"questions": [
		{"question": "Unbuffered send blocks until?", "options": [
			{"description": "a receiver is ready", "isCorrect": true},
			{"description": "the buffer fills", "isCorrect": false}]},
		{"question": "Closing a closed channel?", "options": [
			{"description": "is a no-op", "isCorrect": false},
			{"description": "panics", "isCorrect": true}]}
	]}`)
	return b
}

func (b *backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/list-notes":
		fmt.Fprintf(w, `{"notes": [
			{"note_name": "Go Channels", "last_modified": %d},
			{"note_name": "Fresh", "last_modified": %d}]}`,
			now.AddDate(0, 0, -10).Unix(), now.Unix())
	case "/api/get-note":
		if b.failNote.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, `{"content": "# %s\n\nSome *text*."}`, r.URL.Query().Get("note"))
	case "/api/get-practice-questions":
		io.WriteString(w, b.questions.Load().(string))
	default:
		http.NotFound(w, r)
	}
}

func newTestServer(t *testing.T, b *backend, opts practice.Options) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	api := httptest.NewServer(b)
	t.Cleanup(api.Close)

	store, err := kvstore.Open(filepath.Join(t.TempDir(), "state.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	tracker, err := review.NewTracker(context.Background(), store, logger)
	require.NoError(t, err)
	t.Cleanup(tracker.Close)

	s := NewServer(Deps{
		Notes:    notes.NewClient(api.URL, 5*time.Second, logger),
		Tracker:  tracker,
		Practice: opts,
		Logger:   logger,
		Now:      func() time.Time { return now },
	})
	t.Cleanup(s.CloseSessions)
	return s
}

func do(t *testing.T, h http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestListNotes(t *testing.T) {
	s := newTestServer(t, newBackend(), practice.Options{})

	rec, body := do(t, s, http.MethodGet, "/api/notes", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := body["notes"].([]any)
	require.Len(t, list, 2)
	assert.Equal(t, "Fresh", list[0].(map[string]any)["note_name"], "sorted by name")

	rec, body = do(t, s, http.MethodGet, "/api/notes?q=chan", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["notes"], 1)
	assert.EqualValues(t, 2, body["total"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestNoteContent(t *testing.T) {
	b := newBackend()
	s := newTestServer(t, b, practice.Options{})

	rec, body := do(t, s, http.MethodGet, "/api/notes/content?note=Go+Channels", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Go Channels", body["note"])
	assert.Contains(t, body["markdown"], "# Go Channels")
	assert.Contains(t, body["html"], "<h1>Go Channels</h1>")
	assert.Contains(t, body["html"], "<em>text</em>")

	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)
	req := httptest.NewRequest(http.MethodGet, "/api/notes/content?note=Go+Channels", nil)
	req.Header.Set("If-None-Match", etag)
	notModified := httptest.NewRecorder()
	s.ServeHTTP(notModified, req)
	assert.Equal(t, http.StatusNotModified, notModified.Code)

	// Cached content survives a backend failure until refreshed.
	b.failNote.Store(true)
	rec, _ = do(t, s, http.MethodGet, "/api/notes/content?note=Go+Channels", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, body = do(t, s, http.MethodGet, "/api/notes/content?note=Go+Channels&refresh=1", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.NotEmpty(t, body["error"])

	rec, _ = do(t, s, http.MethodGet, "/api/notes/content", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReview(t *testing.T) {
	s := newTestServer(t, newBackend(), practice.Options{})

	rec, body := do(t, s, http.MethodGet, "/api/review", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, body["total_due"], "ten days old: 1-day and weekly")
	buckets := body["buckets"].([]any)
	require.Len(t, buckets, 4)
	assert.Equal(t, "1-day", buckets[0].(map[string]any)["name"])
	assert.Len(t, buckets[0].(map[string]any)["notes"], 1)
	assert.Empty(t, buckets[2].(map[string]any)["notes"])
}

func TestHandlersServeWithoutRouter(t *testing.T) {
	s := newTestServer(t, newBackend(), practice.Options{})

	rec, body := do(t, s.handleListNotes(), http.MethodGet, "/api/notes?q=fresh", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["notes"], 1)

	rec, body = do(t, s.handleReview(), http.MethodGet, "/api/review", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, body["total_due"])
}

func TestPracticeFlow(t *testing.T) {
	s := newTestServer(t, newBackend(), practice.Options{})

	rec, body := do(t, s, http.MethodPost, "/api/practice", map[string]string{"note": "Go Channels"})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := body["id"].(string)
	assert.Equal(t, "active", body["state"])
	assert.EqualValues(t, 2, body["total"])
	q := body["question"].(map[string]any)
	assert.Equal(t, "Unbuffered send blocks until?", q["question"])
	assert.NotContains(t, q["options"].([]any)[0], "isCorrect", "correctness hidden before answering")

	base := "/api/practice/" + id
	rec, body = do(t, s, http.MethodPost, base+"/answer", map[string]int{"option": 0})
	require.Equal(t, http.StatusOK, rec.Code)
	q = body["question"].(map[string]any)
	assert.Equal(t, true, q["locked"])
	assert.Equal(t, true, q["correct"])

	rec, _ = do(t, s, http.MethodPost, base+"/answer", map[string]int{"option": 1})
	assert.Equal(t, http.StatusConflict, rec.Code, "answers lock on select")

	rec, _ = do(t, s, http.MethodPost, base+"/prev", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, body = do(t, s, http.MethodPost, base+"/next", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["current"])
	assert.Equal(t, true, body["is_last"])

	rec, _ = do(t, s, http.MethodPost, base+"/complete", nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "complete needs a finished session")

	_, _ = do(t, s, http.MethodPost, base+"/answer", map[string]int{"option": 0})
	rec, body = do(t, s, http.MethodPost, base+"/next", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "finished", body["state"])
	assert.EqualValues(t, 1, body["score"])

	rec, body = do(t, s, http.MethodPost, base+"/complete", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["score"])
	assert.EqualValues(t, 2, body["total"])
	assert.Equal(t, true, body["was_due"])
	assert.EqualValues(t, 0, body["remaining_due"])
	assert.Equal(t, true, body["streak_updated"])
	assert.EqualValues(t, 1, body["streak"].(map[string]any)["count"])

	rec, _ = do(t, s, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "completed sessions are closed")

	_, body = do(t, s, http.MethodGet, "/api/review", nil)
	assert.EqualValues(t, 0, body["total_due"])
}

func TestPractice_NoQuestionsThenRetry(t *testing.T) {
	b := newBackend()
	good := b.questions.Load().(string)
	b.questions.Store(`{"questions": []}`)
	s := newTestServer(t, b, practice.Options{})

	rec, body := do(t, s, http.MethodPost, "/api/practice", map[string]string{"note": "Go Channels"})
	require.Equal(t, http.StatusNotFound, rec.Code)
	id := body["id"].(string)
	assert.Equal(t, "error", body["state"])
	assert.NotEmpty(t, body["error"])

	b.questions.Store(good)
	rec, body = do(t, s, http.MethodPost, "/api/practice/"+id+"/retry", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "active", body["state"])
	assert.EqualValues(t, 0, body["current"])
	assert.EqualValues(t, 0, body["answered"])
}

func TestPractice_RevealMode(t *testing.T) {
	s := newTestServer(t, newBackend(), practice.Options{Mode: practice.RevealThenLock})

	_, body := do(t, s, http.MethodPost, "/api/practice", map[string]string{"note": "Go Channels"})
	base := "/api/practice/" + body["id"].(string)
	assert.Equal(t, "reveal", body["mode"])

	rec, _ := do(t, s, http.MethodPost, base+"/reveal", nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "nothing selected")

	_, body = do(t, s, http.MethodPost, base+"/answer", map[string]int{"option": 1})
	q := body["question"].(map[string]any)
	assert.Equal(t, false, q["locked"])
	assert.EqualValues(t, 1, q["selected"])

	_, body = do(t, s, http.MethodPost, base+"/answer", map[string]int{"option": 0})
	rec, body = do(t, s, http.MethodPost, base+"/reveal", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	q = body["question"].(map[string]any)
	assert.Equal(t, true, q["locked"])
	assert.Equal(t, true, q["correct"])
}

func TestPractice_BadRequests(t *testing.T) {
	s := newTestServer(t, newBackend(), practice.Options{})

	rec, _ := do(t, s, http.MethodPost, "/api/practice", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, s, http.MethodGet, "/api/practice/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	_, body := do(t, s, http.MethodPost, "/api/practice", map[string]string{"note": "Go Channels"})
	base := "/api/practice/" + body["id"].(string)

	rec, _ = do(t, s, http.MethodPost, base+"/answer", map[string]int{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = do(t, s, http.MethodPost, base+"/answer", map[string]int{"option": 9})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, s, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec, _ = do(t, s, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStaticIndex(t *testing.T) {
	s := newTestServer(t, newBackend(), practice.Options{})

	rec, _ := do(t, s, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<title>notedeck</title>")
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadGateway, statusFor(fmt.Errorf("%w: boom", practice.ErrFetchFailed)))
	assert.Equal(t, http.StatusNotFound, statusFor(practice.ErrNoQuestions))
	assert.Equal(t, http.StatusConflict, statusFor(practice.ErrLoading))
	assert.Equal(t, http.StatusInternalServerError, statusFor(io.ErrUnexpectedEOF))
}
