// Package notes is the client for the external note repository API.
package notes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/conorfennell/notedeck/internal/domain"
)

// DefaultBaseURL is where the notes backend listens.
const DefaultBaseURL = "http://127.0.0.1:8000"

// Client fetches notes, note bodies and practice questions. Note bodies are
// cached by identifier until Refetch is called for that note.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger

	mu       sync.RWMutex
	cache    map[string]string
	versions map[string]uint64 // bumped by Refetch; fetches started under an older version are not cached
	inflight singleflight.Group
}

// NewClient creates a Client for the API at baseURL.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		log:        logger.With("component", "notes"),
		cache:      make(map[string]string),
		versions:   make(map[string]uint64),
	}
}

type listResponse struct {
	Notes []domain.Note `json:"notes"`
}

type contentResponse struct {
	Content string `json:"content"`
}

type questionsResponse struct {
	Questions []domain.Question `json:"questions"`
}

// ListNotes returns every note known to the repository.
func (c *Client) ListNotes(ctx context.Context) ([]domain.Note, error) {
	var resp listResponse
	if err := c.getJSON(ctx, "/api/list-notes", nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Notes) == 0 {
		return nil, fmt.Errorf("notes: list notes: %w", domain.ErrEmptyResult)
	}
	return resp.Notes, nil
}

// Content returns the markdown body of a note, from cache when possible.
// Concurrent calls for the same note share one request.
func (c *Client) Content(ctx context.Context, noteID string) (string, error) {
	c.mu.RLock()
	content, ok := c.cache[noteID]
	c.mu.RUnlock()
	if ok {
		return content, nil
	}
	return c.fetchContent(ctx, noteID)
}

// Refetch drops the cached body of a note and fetches it again.
func (c *Client) Refetch(ctx context.Context, noteID string) (string, error) {
	c.mu.Lock()
	delete(c.cache, noteID)
	c.versions[noteID]++
	c.mu.Unlock()
	c.inflight.Forget(noteID)
	return c.fetchContent(ctx, noteID)
}

// Cached reports whether the body of a note is in the cache.
func (c *Client) Cached(noteID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.cache[noteID]
	return ok
}

func (c *Client) fetchContent(ctx context.Context, noteID string) (string, error) {
	c.mu.RLock()
	version := c.versions[noteID]
	c.mu.RUnlock()

	v, err, _ := c.inflight.Do(noteID, func() (any, error) {
		var resp contentResponse
		if err := c.getJSON(ctx, "/api/get-note", url.Values{"note": {noteID}}, &resp); err != nil {
			return "", err
		}

		c.mu.Lock()
		if c.versions[noteID] == version {
			c.cache[noteID] = resp.Content
		} else {
			c.log.Debug("Discarding stale note body", "note", noteID)
		}
		c.mu.Unlock()
		return resp.Content, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// PracticeQuestions fetches a fresh question set for a note. Question sets are never cached.
func (c *Client) PracticeQuestions(ctx context.Context, noteID string) ([]domain.Question, error) {
	var resp questionsResponse
	if err := c.getJSON(ctx, "/api/get-practice-questions", url.Values{"note": {noteID}}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Questions) == 0 {
		return nil, fmt.Errorf("notes: practice questions for %s: %w", noteID, domain.ErrEmptyResult)
	}
	return resp.Questions, nil
}

// AddWebsite reports a visited page URL. The response body carries no contract.
func (c *Client) AddWebsite(ctx context.Context, pageURL string) error {
	reqURL := c.baseURL + "/api/add-website?" + url.Values{"url": {pageURL}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, nil)
	if err != nil {
		return fmt.Errorf("notes: create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notes: add website: %w: %w", domain.ErrNetwork, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("notes: add website: %w: unexpected status %d", domain.ErrNetwork, resp.StatusCode)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	c.log.DebugContext(ctx, "notes request", slog.String("path", path), slog.String("query", query.Encode()))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("notes: create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.ErrorContext(ctx, "notes request failed", slog.String("path", path), slog.String("error", err.Error()))
		return fmt.Errorf("notes: %s: %w: %w", path, domain.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("notes: %s: %w: unexpected status %d", path, domain.ErrNetwork, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("notes: %s: read body: %w: %w", path, domain.ErrNetwork, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("notes: %s: decode json: %w: %w", path, domain.ErrNetwork, err)
	}
	return nil
}

// Filter returns the notes whose identifier contains term, ignoring case.
// An empty term returns notes unchanged.
func Filter(notes []domain.Note, term string) []domain.Note {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return notes
	}
	var out []domain.Note
	for _, n := range notes {
		if strings.Contains(strings.ToLower(n.ID), term) {
			out = append(out, n)
		}
	}
	return out
}

// SortByID orders notes by identifier in place.
func SortByID(notes []domain.Note) {
	sort.Slice(notes, func(i, j int) bool { return notes[i].ID < notes[j].ID })
}
