package practice

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/notedeck/internal/domain"
)

// makeQuestions builds n questions with three options each; option i%3 is correct.
func makeQuestions(n int) []domain.Question {
	qs := make([]domain.Question, n)
	for i := range qs {
		opts := make([]domain.Option, 3)
		for j := range opts {
			opts[j] = domain.Option{Description: fmt.Sprintf("q%d-o%d", i, j), IsCorrect: j == i%3}
		}
		qs[i] = domain.Question{Prompt: fmt.Sprintf("question %d", i), Options: opts}
	}
	return qs
}

func newSession(t *testing.T, n int, mode AnswerMode) Session {
	t.Helper()
	s, err := NewSession("note", makeQuestions(n), mode)
	require.NoError(t, err)
	return s
}

func TestNewSession(t *testing.T) {
	s := newSession(t, 3, LockOnSelect)
	assert.Equal(t, 0, s.Current())
	assert.Equal(t, 0, s.Answered())
	assert.False(t, s.Finished())

	_, err := NewSession("note", nil, LockOnSelect)
	assert.ErrorIs(t, err, ErrNoQuestions)
	assert.ErrorIs(t, err, domain.ErrEmptyResult)
}

func TestSession_AdvanceNTimesFinishes(t *testing.T) {
	for n := 1; n <= 6; n++ {
		t.Run(fmt.Sprintf("%d questions", n), func(t *testing.T) {
			r := rand.New(rand.NewPCG(uint64(n), 7))
			s := newSession(t, n, LockOnSelect)
			var err error
			for i := 0; i < n; i++ {
				require.False(t, s.Finished())
				if r.IntN(2) == 0 {
					s, err = s.Select(s.Current(), r.IntN(3))
					require.NoError(t, err)
				}
				s, err = s.Advance()
				require.NoError(t, err)
			}
			assert.True(t, s.Finished())
			assert.GreaterOrEqual(t, s.Score(), 0)
			assert.LessOrEqual(t, s.Score(), n)
		})
	}
}

func TestSession_ScoreCountsOnlyCorrectAnswers(t *testing.T) {
	s := newSession(t, 4, LockOnSelect)
	var err error

	s, err = s.Select(0, 0) // correct
	require.NoError(t, err)
	s, err = s.Select(1, 0) // wrong, option 1 is correct
	require.NoError(t, err)
	s, err = s.Select(2, 2) // correct
	require.NoError(t, err)
	// question 3 left unanswered

	assert.Equal(t, 0, s.Score(), "score is only computed at finish")

	for !s.Finished() {
		s, err = s.Advance()
		require.NoError(t, err)
	}
	assert.Equal(t, 2, s.Score())

	correct, answered := s.Correct(1)
	assert.True(t, answered)
	assert.False(t, correct)
	_, answered = s.Correct(3)
	assert.False(t, answered)
}

func TestSession_AnswersAreNotOverwritten(t *testing.T) {
	s := newSession(t, 2, LockOnSelect)
	s, err := s.Select(0, 1)
	require.NoError(t, err)

	again, err := s.Select(0, 2)
	assert.ErrorIs(t, err, ErrAlreadyAnswered)
	opt, _ := again.Answer(0)
	assert.Equal(t, 1, opt)
}

func TestSession_TransitionsDoNotMutateReceiver(t *testing.T) {
	s := newSession(t, 2, LockOnSelect)
	answered, err := s.Select(0, 1)
	require.NoError(t, err)

	_, ok := s.Answer(0)
	assert.False(t, ok)
	_, ok = answered.Answer(0)
	assert.True(t, ok)
}

func TestSession_RetreatThenAdvanceRestoresPosition(t *testing.T) {
	s := newSession(t, 3, LockOnSelect)
	s, _ = s.Select(0, 0)
	s, _ = s.Advance()
	s, _ = s.Select(1, 2)
	s, _ = s.Advance()
	require.Equal(t, 2, s.Current())

	back, err := s.Retreat()
	require.NoError(t, err)
	assert.Equal(t, 1, back.Current())

	forward, err := back.Advance()
	require.NoError(t, err)
	assert.Equal(t, 2, forward.Current())
	for _, q := range []int{0, 1} {
		want, _ := s.Answer(q)
		got, ok := forward.Answer(q)
		assert.True(t, ok)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, s.Answered(), forward.Answered())
}

func TestSession_RetreatAtStart(t *testing.T) {
	s := newSession(t, 2, LockOnSelect)
	_, err := s.Retreat()
	assert.ErrorIs(t, err, ErrAtFirstQuestion)
}

func TestSession_OutOfRange(t *testing.T) {
	s := newSession(t, 2, LockOnSelect)

	_, err := s.Select(2, 0)
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = s.Select(-1, 0)
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = s.Select(0, 3)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestSession_FinishedIsFrozen(t *testing.T) {
	s := newSession(t, 2, LockOnSelect)
	s, _ = s.Select(0, 0)
	s = s.Finish()
	require.True(t, s.Finished())
	assert.Equal(t, 1, s.Score())

	_, err := s.Select(1, 1)
	assert.ErrorIs(t, err, ErrNotActive)
	_, err = s.Advance()
	assert.ErrorIs(t, err, ErrNotActive)
	_, err = s.Retreat()
	assert.ErrorIs(t, err, ErrNotActive)

	again := s.Finish()
	assert.Equal(t, s.Score(), again.Score())
	assert.Equal(t, s.Answered(), again.Answered())
}

func TestSession_RevealThenLock(t *testing.T) {
	s := newSession(t, 2, RevealThenLock)

	_, err := s.Reveal(0)
	assert.ErrorIs(t, err, ErrNothingSelected)

	s, err = s.Select(0, 2)
	require.NoError(t, err)
	s, err = s.Select(0, 0) // still changeable
	require.NoError(t, err)
	_, locked := s.Answer(0)
	assert.False(t, locked)
	sel, ok := s.Selection(0)
	assert.True(t, ok)
	assert.Equal(t, 0, sel)

	s, err = s.Reveal(0)
	require.NoError(t, err)
	opt, locked := s.Answer(0)
	assert.True(t, locked)
	assert.Equal(t, 0, opt)

	_, err = s.Select(0, 1)
	assert.ErrorIs(t, err, ErrAlreadyAnswered)
	_, err = s.Reveal(0)
	assert.ErrorIs(t, err, ErrAlreadyAnswered)

	// A pending selection that is never revealed does not score.
	s, _ = s.Advance()
	s, _ = s.Select(1, 1)
	s, _ = s.Advance()
	require.True(t, s.Finished())
	assert.Equal(t, 1, s.Score())
}

func TestSession_RevealRejectedInLockMode(t *testing.T) {
	s := newSession(t, 1, LockOnSelect)
	_, err := s.Reveal(0)
	assert.ErrorIs(t, err, ErrRevealNotAllowed)
}

func TestParseAnswerMode(t *testing.T) {
	m, err := ParseAnswerMode("Reveal")
	require.NoError(t, err)
	assert.Equal(t, RevealThenLock, m)

	m, err = ParseAnswerMode("")
	require.NoError(t, err)
	assert.Equal(t, LockOnSelect, m)

	_, err = ParseAnswerMode("maybe")
	assert.Error(t, err)
}

func TestShuffle(t *testing.T) {
	original := makeQuestions(8)
	shuffled := Shuffle(original, rand.New(rand.NewPCG(1, 2)))

	require.Len(t, shuffled, len(original))
	assert.Equal(t, makeQuestions(8), original, "input must not be modified")

	byPrompt := map[string]domain.Question{}
	for _, q := range original {
		byPrompt[q.Prompt] = q
	}
	for _, q := range shuffled {
		src, ok := byPrompt[q.Prompt]
		require.True(t, ok)
		assert.ElementsMatch(t, src.Options, q.Options)
		delete(byPrompt, q.Prompt)
	}
	assert.Empty(t, byPrompt)
}
