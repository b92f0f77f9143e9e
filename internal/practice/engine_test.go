package practice

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/notedeck/internal/domain"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSource struct {
	mu    sync.Mutex
	calls int
	sets  map[string][]domain.Question
	err   error
	gate  chan struct{} // when set, the first call blocks until it is closed
}

func (f *fakeSource) PracticeQuestions(ctx context.Context, noteID string) ([]domain.Question, error) {
	f.mu.Lock()
	f.calls++
	first := f.calls == 1
	gate := f.gate
	f.mu.Unlock()

	if first && gate != nil {
		<-gate
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.sets[noteID], nil
}

func newEngine(src QuestionSource, shuffle bool) *Engine {
	return NewEngine(src, Options{Shuffle: shuffle, Rand: rand.New(rand.NewPCG(3, 4))}, newTestLogger())
}

func TestEngine_StartActivatesSession(t *testing.T) {
	src := &fakeSource{sets: map[string][]domain.Question{"go": makeQuestions(3)}}
	e := newEngine(src, false)

	s, err := e.Start(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, "go", s.NoteID())
	assert.Equal(t, makeQuestions(3)[0].Prompt, s.Question(0).Prompt)

	snap := e.Snapshot()
	assert.Equal(t, StateActive, snap.State)
	assert.Equal(t, "go", snap.NoteID)
}

func TestEngine_StartFailures(t *testing.T) {
	t.Run("no questions", func(t *testing.T) {
		e := newEngine(&fakeSource{sets: map[string][]domain.Question{}}, false)
		_, err := e.Start(context.Background(), "go")
		assert.ErrorIs(t, err, ErrNoQuestions)
		assert.Equal(t, StateError, e.Snapshot().State)
	})

	t.Run("empty result from source", func(t *testing.T) {
		e := newEngine(&fakeSource{err: domain.ErrEmptyResult}, false)
		_, err := e.Start(context.Background(), "go")
		assert.ErrorIs(t, err, ErrNoQuestions)
	})

	t.Run("network failure", func(t *testing.T) {
		e := newEngine(&fakeSource{err: domain.ErrNetwork}, false)
		_, err := e.Start(context.Background(), "go")
		assert.ErrorIs(t, err, ErrFetchFailed)
		assert.ErrorIs(t, err, domain.ErrNetwork)

		snap := e.Snapshot()
		assert.Equal(t, StateError, snap.State)
		assert.Equal(t, 0, snap.Session.Len())

		_, err = e.Advance()
		assert.ErrorIs(t, err, ErrNotActive)
	})
}

func TestEngine_FullRunAndFinish(t *testing.T) {
	e := newEngine(&fakeSource{sets: map[string][]domain.Question{"go": makeQuestions(2)}}, false)
	_, err := e.Start(context.Background(), "go")
	require.NoError(t, err)

	_, err = e.Select(0, 0)
	require.NoError(t, err)
	_, err = e.Advance()
	require.NoError(t, err)
	_, err = e.Select(1, 1)
	require.NoError(t, err)
	s, err := e.Advance()
	require.NoError(t, err)

	assert.True(t, s.Finished())
	assert.Equal(t, 2, s.Score())
	assert.Equal(t, StateFinished, e.Snapshot().State)

	again, err := e.Finish()
	require.NoError(t, err)
	assert.Equal(t, 2, again.Score())

	_, err = e.Select(1, 0)
	assert.ErrorIs(t, err, ErrNotActive)
}

func TestEngine_RetryYieldsFreshSession(t *testing.T) {
	src := &fakeSource{sets: map[string][]domain.Question{"go": makeQuestions(5)}}
	e := newEngine(src, true)

	_, err := e.Start(context.Background(), "go")
	require.NoError(t, err)
	_, _ = e.Select(0, 1)
	_, _ = e.Advance()
	_, _ = e.Select(1, 1)
	_, _ = e.Finish()

	s, err := e.Retry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, s.Current())
	assert.Equal(t, 0, s.Answered())
	assert.False(t, s.Finished())
	assert.Equal(t, StateActive, e.Snapshot().State)
	assert.Equal(t, 2, src.calls)
}

func TestEngine_RetryWithoutNote(t *testing.T) {
	e := newEngine(&fakeSource{}, false)
	_, err := e.Retry(context.Background())
	assert.ErrorIs(t, err, ErrNoNote)
}

func TestEngine_StaleFetchIsDiscarded(t *testing.T) {
	gate := make(chan struct{})
	first := makeQuestions(4)
	src := &fakeSource{sets: map[string][]domain.Question{"go": first}, gate: gate}
	e := newEngine(src, false)

	staleErr := make(chan error, 1)
	go func() {
		_, err := e.Start(context.Background(), "go")
		staleErr <- err
	}()

	// Wait until the first fetch is outstanding.
	require.Eventually(t, func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return src.calls == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, StateLoading, e.Snapshot().State)

	_, err := e.Select(0, 0)
	assert.ErrorIs(t, err, ErrLoading)

	src.mu.Lock()
	src.sets = map[string][]domain.Question{"go": makeQuestions(2)}
	src.mu.Unlock()

	fresh, err := e.Retry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, fresh.Len())

	close(gate)
	assert.True(t, errors.Is(<-staleErr, ErrStale))

	snap := e.Snapshot()
	assert.Equal(t, StateActive, snap.State)
	assert.Equal(t, 2, snap.Session.Len())
}

func TestEngine_CloseDiscardsSession(t *testing.T) {
	gate := make(chan struct{})
	src := &fakeSource{sets: map[string][]domain.Question{"go": makeQuestions(2)}, gate: gate}
	e := newEngine(src, false)

	done := make(chan error, 1)
	go func() {
		_, err := e.Start(context.Background(), "go")
		done <- err
	}()
	require.Eventually(t, func() bool { return e.Snapshot().State == StateLoading }, time.Second, time.Millisecond)

	e.Close()
	close(gate)

	assert.ErrorIs(t, <-done, ErrStale)
	assert.Equal(t, StateClosed, e.Snapshot().State)
}
