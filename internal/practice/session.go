// Package practice drives one note's multiple-choice quiz from the fetched
// question set to a scored completion.
package practice

import (
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/conorfennell/notedeck/internal/domain"
)

// Transition errors.
var (
	ErrNotActive        = errors.New("practice: session is not active")
	ErrAlreadyAnswered  = errors.New("practice: question already answered")
	ErrOutOfRange       = errors.New("practice: index out of range")
	ErrAtFirstQuestion  = errors.New("practice: already at the first question")
	ErrNothingSelected  = errors.New("practice: no option selected")
	ErrRevealNotAllowed = errors.New("practice: session locks answers on selection")
)

// ErrNoQuestions is returned when a note has no practice questions.
var ErrNoQuestions = fmt.Errorf("practice: no questions available: %w", domain.ErrEmptyResult)

// AnswerMode decides when a selected option becomes the locked answer.
type AnswerMode int

const (
	// LockOnSelect locks the answer as soon as an option is selected.
	LockOnSelect AnswerMode = iota
	// RevealThenLock keeps the selection changeable until the question is revealed.
	RevealThenLock
)

func (m AnswerMode) String() string {
	if m == RevealThenLock {
		return "reveal"
	}
	return "lock"
}

// ParseAnswerMode accepts "lock" or "reveal".
func ParseAnswerMode(s string) (AnswerMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "lock":
		return LockOnSelect, nil
	case "reveal":
		return RevealThenLock, nil
	default:
		return LockOnSelect, fmt.Errorf("practice: unknown answer mode %q", s)
	}
}

// Session is an immutable snapshot of a quiz. Every transition returns a new
// Session and leaves the receiver untouched.
type Session struct {
	noteID    string
	questions []domain.Question
	mode      AnswerMode
	current   int
	answers   map[int]int
	pending   map[int]int
	finished  bool
	score     int
}

// NewSession starts at the first question with no answers.
func NewSession(noteID string, questions []domain.Question, mode AnswerMode) (Session, error) {
	if len(questions) == 0 {
		return Session{}, ErrNoQuestions
	}
	return Session{
		noteID:    noteID,
		questions: questions,
		mode:      mode,
		answers:   map[int]int{},
		pending:   map[int]int{},
	}, nil
}

func (s Session) NoteID() string                 { return s.noteID }
func (s Session) Mode() AnswerMode               { return s.mode }
func (s Session) Len() int                       { return len(s.questions) }
func (s Session) Current() int                   { return s.current }
func (s Session) Finished() bool                 { return s.finished }
func (s Session) Question(i int) domain.Question { return s.questions[i] }

// IsLast reports whether the current question is the final one.
func (s Session) IsLast() bool {
	return s.current == len(s.questions)-1
}

// Answer returns the locked option index for question i.
func (s Session) Answer(i int) (int, bool) {
	opt, ok := s.answers[i]
	return opt, ok
}

// Selection returns the option currently chosen for question i, locked or pending.
func (s Session) Selection(i int) (int, bool) {
	if opt, ok := s.answers[i]; ok {
		return opt, true
	}
	opt, ok := s.pending[i]
	return opt, ok
}

// Answered returns the number of locked answers.
func (s Session) Answered() int {
	return len(s.answers)
}

// Correct reports whether the locked answer of question i is correct.
// The second result is false while the question is unanswered.
func (s Session) Correct(i int) (bool, bool) {
	opt, ok := s.answers[i]
	if !ok {
		return false, false
	}
	return s.questions[i].Options[opt].IsCorrect, true
}

// Score is frozen when the session finishes. It is zero before that.
func (s Session) Score() int {
	return s.score
}

// Select chooses an option for an unanswered question.
func (s Session) Select(question, option int) (Session, error) {
	if s.finished {
		return s, ErrNotActive
	}
	if question < 0 || question >= len(s.questions) {
		return s, fmt.Errorf("%w: question %d", ErrOutOfRange, question)
	}
	if option < 0 || option >= len(s.questions[question].Options) {
		return s, fmt.Errorf("%w: option %d", ErrOutOfRange, option)
	}
	if _, ok := s.answers[question]; ok {
		return s, ErrAlreadyAnswered
	}

	next := s
	if s.mode == LockOnSelect {
		next.answers = maps.Clone(s.answers)
		next.answers[question] = option
		return next, nil
	}
	next.pending = maps.Clone(s.pending)
	next.pending[question] = option
	return next, nil
}

// Reveal locks the pending selection of a question. Only valid in RevealThenLock mode.
func (s Session) Reveal(question int) (Session, error) {
	if s.finished {
		return s, ErrNotActive
	}
	if s.mode != RevealThenLock {
		return s, ErrRevealNotAllowed
	}
	if question < 0 || question >= len(s.questions) {
		return s, fmt.Errorf("%w: question %d", ErrOutOfRange, question)
	}
	if _, ok := s.answers[question]; ok {
		return s, ErrAlreadyAnswered
	}
	opt, ok := s.pending[question]
	if !ok {
		return s, ErrNothingSelected
	}

	next := s
	next.answers = maps.Clone(s.answers)
	next.answers[question] = opt
	next.pending = maps.Clone(s.pending)
	delete(next.pending, question)
	return next, nil
}

// Advance moves to the next question, finishing the session after the last one.
func (s Session) Advance() (Session, error) {
	if s.finished {
		return s, ErrNotActive
	}
	if s.IsLast() {
		return s.finish(), nil
	}
	next := s
	next.current++
	return next, nil
}

// Retreat moves to the previous question. Answers are kept.
func (s Session) Retreat() (Session, error) {
	if s.finished {
		return s, ErrNotActive
	}
	if s.current == 0 {
		return s, ErrAtFirstQuestion
	}
	next := s
	next.current--
	return next, nil
}

// Finish ends the session early. Finishing a finished session changes nothing.
func (s Session) Finish() Session {
	if s.finished {
		return s
	}
	return s.finish()
}

func (s Session) finish() Session {
	next := s
	next.finished = true
	next.score = score(s.questions, s.answers)
	return next
}

// score counts locked answers whose option is marked correct.
func score(questions []domain.Question, answers map[int]int) int {
	total := 0
	for i, q := range questions {
		opt, ok := answers[i]
		if ok && opt >= 0 && opt < len(q.Options) && q.Options[opt].IsCorrect {
			total++
		}
	}
	return total
}
