package practice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/conorfennell/notedeck/internal/domain"
)

// Engine errors.
var (
	ErrFetchFailed = errors.New("practice: failed to fetch questions")
	ErrStale       = errors.New("practice: superseded by a newer start")
	ErrLoading     = errors.New("practice: questions are still loading")
	ErrNoNote      = errors.New("practice: no note to retry")
)

// State is the lifecycle position of an Engine.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateActive
	StateFinished
	StateClosed
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateActive:
		return "active"
	case StateFinished:
		return "finished"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// QuestionSource supplies the question set for a note.
type QuestionSource interface {
	PracticeQuestions(ctx context.Context, noteID string) ([]domain.Question, error)
}

// Options configure how sessions are built.
type Options struct {
	Shuffle bool
	Mode    AnswerMode
	Rand    *rand.Rand // nil seeds from the clock
}

// Snapshot is a consistent view of an Engine.
type Snapshot struct {
	State   State
	NoteID  string
	Session Session // zero unless State is Active or Finished
	Err     error   // set in StateError
}

// Engine owns at most one practice session at a time. Start, Retry and Close
// may race with each other; a fetch that resolves after a newer Start, Retry
// or Close is discarded.
type Engine struct {
	source QuestionSource
	opts   Options
	log    *slog.Logger

	mu         sync.Mutex
	rng        *rand.Rand
	generation uint64
	state      State
	noteID     string
	session    Session
	err        error
}

// NewEngine creates an idle engine.
func NewEngine(source QuestionSource, opts Options, logger *slog.Logger) *Engine {
	rng := opts.Rand
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	return &Engine{
		source: source,
		opts:   opts,
		log:    logger.With("component", "practice"),
		rng:    rng,
	}
}

// Start fetches the question set for noteID and activates a new session.
// It returns ErrStale when a newer Start, Retry or Close happened while the
// fetch was outstanding; the stale result is dropped.
func (e *Engine) Start(ctx context.Context, noteID string) (Session, error) {
	e.mu.Lock()
	e.generation++
	gen := e.generation
	e.state = StateLoading
	e.noteID = noteID
	e.session = Session{}
	e.err = nil
	e.mu.Unlock()

	e.log.Debug("Fetching practice questions", "note", noteID)
	questions, fetchErr := e.source.PracticeQuestions(ctx, noteID)

	e.mu.Lock()
	defer e.mu.Unlock()

	if gen != e.generation {
		e.log.Debug("Dropping stale question set", "note", noteID)
		return Session{}, ErrStale
	}

	switch {
	case errors.Is(fetchErr, domain.ErrEmptyResult), fetchErr == nil && len(questions) == 0:
		e.state = StateError
		e.err = ErrNoQuestions
		return Session{}, e.err
	case fetchErr != nil:
		e.state = StateError
		e.err = fmt.Errorf("%w: %w", ErrFetchFailed, fetchErr)
		e.log.Warn("Failed to load practice questions", "note", noteID, "error", fetchErr)
		return Session{}, e.err
	}

	if e.opts.Shuffle {
		questions = Shuffle(questions, e.rng)
	} else {
		questions = cloneQuestions(questions)
	}
	session, err := NewSession(noteID, questions, e.opts.Mode)
	if err != nil {
		e.state = StateError
		e.err = err
		return Session{}, err
	}
	e.session = session
	e.state = StateActive
	e.log.Info("Practice session started", "note", noteID, "questions", session.Len(), "mode", e.opts.Mode.String())
	return session, nil
}

// Retry discards the current session and starts over with a freshly fetched question set.
func (e *Engine) Retry(ctx context.Context) (Session, error) {
	e.mu.Lock()
	noteID := e.noteID
	e.mu.Unlock()
	if noteID == "" {
		return Session{}, ErrNoNote
	}
	return e.Start(ctx, noteID)
}

// Close discards the session. Outstanding fetches become stale.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.generation++
	e.state = StateClosed
	e.session = Session{}
	e.err = nil
}

// Snapshot returns the current state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{State: e.state, NoteID: e.noteID, Session: e.session, Err: e.err}
}

// Select chooses an option for a question of the active session.
func (e *Engine) Select(question, option int) (Session, error) {
	return e.apply(func(s Session) (Session, error) { return s.Select(question, option) })
}

// Reveal locks the pending selection of a question.
func (e *Engine) Reveal(question int) (Session, error) {
	return e.apply(func(s Session) (Session, error) { return s.Reveal(question) })
}

// Advance moves forward, finishing after the last question.
func (e *Engine) Advance() (Session, error) {
	return e.apply(Session.Advance)
}

// Retreat moves back one question.
func (e *Engine) Retreat() (Session, error) {
	return e.apply(Session.Retreat)
}

// Finish ends the session. It is idempotent once finished.
func (e *Engine) Finish() (Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state {
	case StateLoading:
		return Session{}, ErrLoading
	case StateActive, StateFinished:
		e.session = e.session.Finish()
		e.state = StateFinished
		return e.session, nil
	default:
		return Session{}, ErrNotActive
	}
}

func (e *Engine) apply(fn func(Session) (Session, error)) (Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state {
	case StateLoading:
		return Session{}, ErrLoading
	case StateActive:
	default:
		return e.session, ErrNotActive
	}

	next, err := fn(e.session)
	if err != nil {
		return e.session, err
	}
	e.session = next
	if next.Finished() {
		e.state = StateFinished
		e.log.Info("Practice session finished", "note", e.noteID, "score", next.Score(), "questions", next.Len())
	}
	return next, nil
}
