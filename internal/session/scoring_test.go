package session_test

import (
	"reflect"
	"testing"

	"github.com/google/uuid"
	"github.com/provafacil/simulado-backend/internal/model"
	"github.com/provafacil/simulado-backend/internal/session"
)

func question(examID uuid.UUID, subject, correct string) model.Question {
	return model.Question{
		ID:      uuid.New(),
		ExamID:  examID,
		Subject: subject,
		Text:    "enunciado",
		Alternatives: []model.Alternative{
			{Label: "A", Text: "a"},
			{Label: "B", Text: "b"},
			{Label: "C", Text: "c"},
		},
		CorrectAnswer: correct,
	}
}

func TestScoreAttemptGroupsSubjectsByFirstAppearance(t *testing.T) {
	examID := uuid.New()
	questions := []model.Question{
		question(examID, "Math", "A"),
		question(examID, "Math", "B"),
		question(examID, "Lang", "C"),
	}
	answers := map[uuid.UUID]string{
		questions[0].ID: "A",
		questions[2].ID: "C",
	}

	summary := session.ScoreAttempt(questions, answers)

	want := []model.SubjectScore{
		{Subject: "Math", Correct: 1, Total: 2},
		{Subject: "Lang", Correct: 1, Total: 1},
	}
	if !reflect.DeepEqual(summary.SubjectBreakdown, want) {
		t.Fatalf("breakdown = %+v, want %+v", summary.SubjectBreakdown, want)
	}
	if summary.Score != 2 {
		t.Fatalf("score = %d, want 2", summary.Score)
	}
	if summary.TotalQuestions != 3 {
		t.Fatalf("total = %d, want 3", summary.TotalQuestions)
	}
}

func TestScoreAttemptMissingAnswersCountAsWrong(t *testing.T) {
	examID := uuid.New()
	q := question(examID, "Math", "B")

	summary := session.ScoreAttempt([]model.Question{q}, nil)

	if summary.Score != 0 {
		t.Fatalf("score = %d, want 0", summary.Score)
	}
	if len(summary.SubjectBreakdown) != 1 || summary.SubjectBreakdown[0].Total != 1 || summary.SubjectBreakdown[0].Correct != 0 {
		t.Fatalf("breakdown = %+v, want [{Math 0 1}]", summary.SubjectBreakdown)
	}
}

func TestScoreAttemptDeterministicAndBounded(t *testing.T) {
	examID := uuid.New()
	questions := []model.Question{
		question(examID, "Math", "A"),
		question(examID, "Lang", "B"),
		question(examID, "Sci", "C"),
	}
	answers := map[uuid.UUID]string{
		questions[0].ID: "A",
		questions[1].ID: "A", // wrong
		questions[2].ID: "C",
	}

	first := session.ScoreAttempt(questions, answers)
	second := session.ScoreAttempt(questions, answers)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("same inputs yielded different summaries: %+v vs %+v", first, second)
	}
	if first.Score < 0 || first.Score > len(questions) {
		t.Fatalf("score %d out of bounds [0, %d]", first.Score, len(questions))
	}
}

func TestScoreAttemptEmptyQuestionList(t *testing.T) {
	summary := session.ScoreAttempt(nil, nil)
	if summary.Score != 0 || summary.TotalQuestions != 0 || len(summary.SubjectBreakdown) != 0 {
		t.Fatalf("empty attempt scored %+v", summary)
	}
}
