package session

import (
	"github.com/google/uuid"
	"github.com/provafacil/simulado-backend/internal/model"
)

// Summary is the outcome of grading one attempt.
type Summary struct {
	Score            int
	TotalQuestions   int
	SubjectBreakdown []model.SubjectScore
}

// ScoreAttempt grades an attempt. Pure function: no I/O, no hidden state,
// identical inputs always yield identical output — the submit idempotency
// guarantee depends on that.
//
// Questions are grouped by subject in order of first appearance, and the
// breakdown preserves that order. A question counts as correct only when an
// answer exists and equals its correct label; unanswered questions count
// toward the subject total but never toward correct.
func ScoreAttempt(questions []model.Question, answers map[uuid.UUID]string) Summary {
	breakdown := make([]model.SubjectScore, 0)
	index := make(map[string]int)

	for _, q := range questions {
		i, ok := index[q.Subject]
		if !ok {
			i = len(breakdown)
			index[q.Subject] = i
			breakdown = append(breakdown, model.SubjectScore{Subject: q.Subject})
		}
		breakdown[i].Total++
		if label, answered := answers[q.ID]; answered && label == q.CorrectAnswer {
			breakdown[i].Correct++
		}
	}

	score := 0
	for _, s := range breakdown {
		score += s.Correct
	}

	return Summary{
		Score:            score,
		TotalQuestions:   len(questions),
		SubjectBreakdown: breakdown,
	}
}
