package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/conorfennell/notedeck/internal/practice"
)

// registry holds the open practice sessions, one Engine each.
type registry struct {
	mu      sync.Mutex
	engines map[string]*practice.Engine
}

func newRegistry() *registry {
	return &registry{engines: map[string]*practice.Engine{}}
}

func (r *registry) add(e *practice.Engine) string {
	id := uuid.NewString()
	r.mu.Lock()
	r.engines[id] = e
	r.mu.Unlock()
	return id
}

func (r *registry) get(id string) (*practice.Engine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.engines[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errSessionNotFound, id)
	}
	return e, nil
}

func (r *registry) remove(id string) (*practice.Engine, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.engines[id]
	delete(r.engines, id)
	return e, ok
}

func (r *registry) closeAll() {
	r.mu.Lock()
	engines := r.engines
	r.engines = map[string]*practice.Engine{}
	r.mu.Unlock()
	for _, e := range engines {
		e.Close()
	}
}

type optionView struct {
	Description string `json:"description"`
	IsCorrect   *bool  `json:"isCorrect,omitempty"`
}

type questionView struct {
	Index    int          `json:"index"`
	Prompt   string       `json:"question"`
	Options  []optionView `json:"options"`
	Selected *int         `json:"selected,omitempty"`
	Locked   bool         `json:"locked"`
	Correct  *bool        `json:"correct,omitempty"`
}

type sessionView struct {
	ID       string        `json:"id"`
	State    string        `json:"state"`
	Note     string        `json:"note"`
	Mode     string        `json:"mode"`
	Current  int           `json:"current"`
	Total    int           `json:"total"`
	Answered int           `json:"answered"`
	IsLast   bool          `json:"is_last"`
	Score    *int          `json:"score,omitempty"`
	Question *questionView `json:"question,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// viewOf renders the engine's current question. Correctness is only
// disclosed once the question's answer is locked.
func viewOf(id string, snap practice.Snapshot) sessionView {
	v := sessionView{ID: id, State: snap.State.String(), Note: snap.NoteID}
	if snap.Err != nil {
		v.Error = snap.Err.Error()
	}
	sess := snap.Session
	if sess.Len() == 0 {
		return v
	}

	v.Mode = sess.Mode().String()
	v.Current = sess.Current()
	v.Total = sess.Len()
	v.Answered = sess.Answered()
	v.IsLast = sess.IsLast()
	if sess.Finished() {
		score := sess.Score()
		v.Score = &score
		return v
	}

	i := sess.Current()
	q := sess.Question(i)
	_, locked := sess.Answer(i)
	qv := &questionView{Index: i, Prompt: q.Prompt, Locked: locked}
	for _, o := range q.Options {
		ov := optionView{Description: o.Description}
		if locked {
			correct := o.IsCorrect
			ov.IsCorrect = &correct
		}
		qv.Options = append(qv.Options, ov)
	}
	if sel, ok := sess.Selection(i); ok {
		qv.Selected = &sel
	}
	if correct, ok := sess.Correct(i); ok {
		qv.Correct = &correct
	}
	v.Question = qv
	return v
}

func decodeBody(r *http.Request, out any) error {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: invalid request payload: %v", errBadRequest, err)
	}
	return nil
}

// handleStartPractice opens a session for a note and loads its questions.
// A failed load keeps the session so the client can retry it.
func (s *Server) handleStartPractice() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Note string `json:"note"`
		}
		if err := decodeBody(r, &req); err != nil {
			s.respondWithErr(w, err)
			return
		}
		if req.Note == "" {
			s.respondWithErr(w, fmt.Errorf("%w: note is required", errBadRequest))
			return
		}

		engine := practice.NewEngine(s.notes, s.practice, s.log)
		id := s.sessions.add(engine)
		if _, err := engine.Start(r.Context(), req.Note); err != nil {
			respondWithJSON(w, statusFor(err), viewOf(id, engine.Snapshot()))
			return
		}
		respondWithJSON(w, http.StatusCreated, viewOf(id, engine.Snapshot()))
	}
}

func (s *Server) engineFor(w http.ResponseWriter, r *http.Request) (string, *practice.Engine, bool) {
	id := mux.Vars(r)["id"]
	engine, err := s.sessions.get(id)
	if err != nil {
		s.respondWithErr(w, err)
		return "", nil, false
	}
	return id, engine, true
}

func (s *Server) handleGetPractice() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, engine, ok := s.engineFor(w, r)
		if !ok {
			return
		}
		respondWithJSON(w, http.StatusOK, viewOf(id, engine.Snapshot()))
	}
}

// handleClosePractice discards the session.
func (s *Server) handleClosePractice() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		engine, ok := s.sessions.remove(id)
		if !ok {
			s.respondWithErr(w, fmt.Errorf("%w: %s", errSessionNotFound, id))
			return
		}
		engine.Close()
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleAnswer() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, engine, ok := s.engineFor(w, r)
		if !ok {
			return
		}
		var req struct {
			Question *int `json:"question"`
			Option   *int `json:"option"`
		}
		if err := decodeBody(r, &req); err != nil {
			s.respondWithErr(w, err)
			return
		}
		if req.Option == nil {
			s.respondWithErr(w, fmt.Errorf("%w: option is required", errBadRequest))
			return
		}
		question := engine.Snapshot().Session.Current()
		if req.Question != nil {
			question = *req.Question
		}
		if _, err := engine.Select(question, *req.Option); err != nil {
			s.respondWithErr(w, err)
			return
		}
		respondWithJSON(w, http.StatusOK, viewOf(id, engine.Snapshot()))
	}
}

func (s *Server) handleReveal() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, engine, ok := s.engineFor(w, r)
		if !ok {
			return
		}
		if _, err := engine.Reveal(engine.Snapshot().Session.Current()); err != nil {
			s.respondWithErr(w, err)
			return
		}
		respondWithJSON(w, http.StatusOK, viewOf(id, engine.Snapshot()))
	}
}

type practiceStep func(*practice.Engine) (practice.Session, error)

var (
	practiceNext   practiceStep = (*practice.Engine).Advance
	practicePrev   practiceStep = (*practice.Engine).Retreat
	practiceFinish practiceStep = (*practice.Engine).Finish
)

func (s *Server) handleStep(step practiceStep) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, engine, ok := s.engineFor(w, r)
		if !ok {
			return
		}
		if _, err := step(engine); err != nil {
			s.respondWithErr(w, err)
			return
		}
		respondWithJSON(w, http.StatusOK, viewOf(id, engine.Snapshot()))
	}
}

// handleRetry refetches the question set and restarts from the first question.
func (s *Server) handleRetry() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, engine, ok := s.engineFor(w, r)
		if !ok {
			return
		}
		if _, err := engine.Retry(r.Context()); err != nil {
			respondWithJSON(w, statusFor(err), viewOf(id, engine.Snapshot()))
			return
		}
		respondWithJSON(w, http.StatusOK, viewOf(id, engine.Snapshot()))
	}
}

// handleComplete marks the practiced note as reviewed and closes the session.
func (s *Server) handleComplete() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, engine, ok := s.engineFor(w, r)
		if !ok {
			return
		}
		snap := engine.Snapshot()
		if snap.State != practice.StateFinished {
			s.respondWithErr(w, fmt.Errorf("%w: finish the session first", practice.ErrNotActive))
			return
		}

		all, err := s.notes.ListNotes(r.Context())
		if err != nil {
			s.respondWithErr(w, err)
			return
		}
		out, err := s.tracker.Complete(r.Context(), all, snap.NoteID, s.now())
		if err != nil {
			s.respondWithErr(w, err)
			return
		}
		if e, ok := s.sessions.remove(id); ok {
			e.Close()
		}

		respondWithJSON(w, http.StatusOK, map[string]any{
			"note":           out.NoteID,
			"score":          snap.Session.Score(),
			"total":          snap.Session.Len(),
			"was_due":        out.WasDue,
			"remaining_due":  out.RemainingDue,
			"streak_updated": out.StreakUpdated,
			"streak":         toStreakView(out.Streak),
		})
	}
}
