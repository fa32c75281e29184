package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SubjectScore is the per-subject correct/total tally within one attempt.
// Breakdown order follows the first appearance of each subject in the
// question list, not alphabetical order.
type SubjectScore struct {
	Subject string `json:"subject"`
	Correct int    `json:"correct"`
	Total   int    `json:"total"`
}

// AttemptSession is one participant's single timed pass through one exam.
// Identity is the (exam, participant) pair: the deterministic composite key
// is what enforces at-most-one attempt per participant per exam.
//
// StartedAt is set once at creation and never changes; elapsed time is
// always derived from it. FinishedAt is set exactly once — after that the
// session is terminal and score/breakdown are immutable.
type AttemptSession struct {
	ExamID           uuid.UUID      `json:"exam_id"`
	ParticipantID    int            `json:"participant_id"`
	Score            int            `json:"score"`
	TotalQuestions   int            `json:"total_questions"`
	SubjectBreakdown []SubjectScore `json:"subject_breakdown"`
	StartedAt        time.Time      `json:"started_at"`
	FinishedAt       *time.Time     `json:"finished_at,omitempty"`
}

// Finished reports whether the attempt has reached its terminal state.
func (a *AttemptSession) Finished() bool {
	return a.FinishedAt != nil
}

// RecordedAnswer is a participant's selected alternative for one question.
// Keyed by (exam, participant, question); each write overwrites the prior
// value, which is what makes changing an answer safe.
type RecordedAnswer struct {
	ExamID         uuid.UUID `json:"exam_id"`
	ParticipantID  int       `json:"participant_id"`
	QuestionID     uuid.UUID `json:"question_id"`
	SelectedAnswer string    `json:"selected_answer"`
	AnsweredAt     time.Time `json:"answered_at"`
}

// AttemptKey builds the deterministic document key for an attempt session.
func AttemptKey(examID uuid.UUID, participantID int) string {
	return fmt.Sprintf("%s_%d", examID, participantID)
}

// AnswerKey builds the deterministic document key for a recorded answer.
func AnswerKey(examID uuid.UUID, participantID int, questionID uuid.UUID) string {
	return fmt.Sprintf("%s_%d_%s", examID, participantID, questionID)
}

// RecordAnswerRequest is the payload for recording an answer over HTTP.
type RecordAnswerRequest struct {
	QuestionID uuid.UUID `json:"question_id" binding:"required"`
	Label      string    `json:"label" binding:"required,min=1,max=10"`
}
