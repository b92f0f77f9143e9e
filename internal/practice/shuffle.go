package practice

import (
	"math/rand/v2"

	"github.com/conorfennell/notedeck/internal/domain"
)

// Shuffle returns a copy of questions with the question order and each
// question's option order independently permuted once.
func Shuffle(questions []domain.Question, r *rand.Rand) []domain.Question {
	out := cloneQuestions(questions)
	r.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	for _, q := range out {
		r.Shuffle(len(q.Options), func(i, j int) { q.Options[i], q.Options[j] = q.Options[j], q.Options[i] })
	}
	return out
}

func cloneQuestions(questions []domain.Question) []domain.Question {
	out := make([]domain.Question, len(questions))
	for i, q := range questions {
		out[i] = q.Clone()
	}
	return out
}
