package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/provafacil/simulado-backend/internal/gateway"
	"github.com/provafacil/simulado-backend/internal/model"
	"github.com/rs/zerolog"
)

// Collection names of the persisted session documents.
const (
	CollectionResults = "results"
	CollectionAnswers = "answers"
)

// Store owns the lifecycle of one attempt per (exam, participant) pair:
// creation-or-resume, answer recording, submission. All durability goes
// through the document gateway; persistence failures propagate to the caller
// unretried.
type Store struct {
	gw    gateway.Gateway
	clock Clock
	log   zerolog.Logger
}

// NewStore creates a Store.
func NewStore(gw gateway.Gateway, clock Clock, log zerolog.Logger) *Store {
	return &Store{
		gw:    gw,
		clock: clock,
		log:   log.With().Str("component", "session_store").Logger(),
	}
}

// Get loads the attempt for the composite key, finished or not.
func (s *Store) Get(ctx context.Context, examID uuid.UUID, participantID int) (*model.AttemptSession, error) {
	key := model.AttemptKey(examID, participantID)
	doc, err := s.gw.GetByKey(ctx, CollectionResults, key)
	if err != nil {
		return nil, err
	}
	return sessionFromDoc(key, doc)
}

// ResumeOrStart loads the attempt for the composite key, creating it when
// absent. The deterministic key is what prevents duplicate attempts: a second
// tab or device lands on the same document.
//
// On resume the original startedAt is returned untouched — elapsed time is
// always computed from the persisted start, never reset, which keeps the
// countdown authoritative across reloads. A finished attempt yields
// ErrAlreadyFinished alongside the terminal state.
func (s *Store) ResumeOrStart(ctx context.Context, examID uuid.UUID, participantID int) (*model.AttemptSession, error) {
	key := model.AttemptKey(examID, participantID)

	existing, err := s.Get(ctx, examID, participantID)
	switch {
	case err == nil:
		if existing.Finished() {
			return existing, ErrAlreadyFinished
		}
		return existing, nil
	case errors.Is(err, gateway.ErrNotFound):
		// Fall through to create.
	default:
		return nil, err
	}

	attempt := &model.AttemptSession{
		ExamID:           examID,
		ParticipantID:    participantID,
		Score:            0,
		TotalQuestions:   0,
		SubjectBreakdown: []model.SubjectScore{},
		StartedAt:        s.clock.Now(),
	}

	if cond, ok := s.gw.(gateway.Conditional); ok {
		err = cond.Insert(ctx, CollectionResults, key, sessionFields(attempt))
		if errors.Is(err, gateway.ErrAlreadyExists) {
			// Concurrent start from another tab/device; the first write wins
			// and both resume the same attempt.
			winner, fetchErr := s.Get(ctx, examID, participantID)
			if fetchErr != nil {
				return nil, fmt.Errorf("concurrent start detected, but fetch failed: %w", fetchErr)
			}
			if winner.Finished() {
				return winner, ErrAlreadyFinished
			}
			return winner, nil
		}
		if err != nil {
			return nil, err
		}
	} else if err := s.gw.Put(ctx, CollectionResults, key, sessionFields(attempt), false); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("exam_id", examID.String()).
		Int("participant_id", participantID).
		Time("started_at", attempt.StartedAt).
		Msg("Attempt started")

	return attempt, nil
}

// RecordAnswer durably overwrites the participant's answer for one question.
// Last write wins per question key, which is what makes changing an answer
// safe. One persistence write per call — no batching, no debounce: every
// selection survives a crash or tab close.
func (s *Store) RecordAnswer(ctx context.Context, examID uuid.UUID, participantID int, questionID uuid.UUID, label string) (*model.RecordedAnswer, error) {
	if strings.TrimSpace(label) == "" {
		return nil, &ValidationError{Field: "label", Reason: "must not be empty"}
	}
	if questionID == uuid.Nil {
		return nil, &ValidationError{Field: "question_id", Reason: "must not be empty"}
	}

	answer := &model.RecordedAnswer{
		ExamID:         examID,
		ParticipantID:  participantID,
		QuestionID:     questionID,
		SelectedAnswer: label,
		AnsweredAt:     s.clock.Now(),
	}
	key := model.AnswerKey(examID, participantID, questionID)
	if err := s.gw.Put(ctx, CollectionAnswers, key, answerFields(answer), false); err != nil {
		return nil, err
	}
	return answer, nil
}

// LoadAnswers returns the participant's recorded answers for the exam as a
// questionID → label map, the shape resume and grading both consume.
func (s *Store) LoadAnswers(ctx context.Context, examID uuid.UUID, participantID int) (map[uuid.UUID]string, error) {
	docs, err := s.gw.Query(ctx, CollectionAnswers, []gateway.Filter{
		{Field: "examId", Value: examID.String()},
		{Field: "participantId", Value: participantID},
	})
	if err != nil {
		return nil, err
	}

	answers := make(map[uuid.UUID]string, len(docs))
	for _, doc := range docs {
		a, err := answerFromDoc(doc)
		if err != nil {
			return nil, &CorruptSessionError{
				Key:    model.AttemptKey(examID, participantID),
				Reason: fmt.Sprintf("recorded answer: %v", err),
			}
		}
		answers[a.QuestionID] = a.SelectedAnswer
	}
	return answers, nil
}

// Submit grades the attempt and writes score, totals, breakdown and
// finishedAt in a single merge write. Idempotent: an already-finished attempt
// is returned as-is, so a timeout firing concurrently with a manual click
// cannot double-submit. Concurrent submitters race on an atomic
// guard-on-finishedAt write when the gateway supports it; losers re-read and
// return the winner's terminal state.
func (s *Store) Submit(ctx context.Context, examID uuid.UUID, participantID int, questions []model.Question, answers map[uuid.UUID]string) (*model.AttemptSession, error) {
	key := model.AttemptKey(examID, participantID)

	current, err := s.Get(ctx, examID, participantID)
	if err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			return nil, &CorruptSessionError{Key: key, Reason: "submit without an attempt session"}
		}
		return nil, err
	}
	if current.Finished() {
		return current, nil
	}

	summary := ScoreAttempt(questions, answers)
	finishedAt := s.clock.Now()
	if finishedAt.Before(current.StartedAt) {
		// finishedAt is monotonic with respect to startedAt by contract.
		finishedAt = current.StartedAt
	}
	fields := gateway.Document{
		"score":            summary.Score,
		"totalQuestions":   summary.TotalQuestions,
		"subjectBreakdown": summary.SubjectBreakdown,
		"finishedAt":       finishedAt.UTC(),
	}

	if cond, ok := s.gw.(gateway.Conditional); ok {
		err = cond.MergeIfNull(ctx, CollectionResults, key, "finishedAt", fields)
		switch {
		case errors.Is(err, gateway.ErrPreconditionFailed):
			// Another tab/device finished first; its write is terminal.
			return s.Get(ctx, examID, participantID)
		case errors.Is(err, gateway.ErrNotFound):
			return nil, &CorruptSessionError{Key: key, Reason: "attempt vanished during submit"}
		case err != nil:
			return nil, err
		}
	} else {
		// Re-read-before-write fallback: a small race window remains, which
		// the storage contract accepts when no conditional writes exist.
		latest, err := s.Get(ctx, examID, participantID)
		if err != nil {
			return nil, err
		}
		if latest.Finished() {
			return latest, nil
		}
		if err := s.gw.Put(ctx, CollectionResults, key, fields, true); err != nil {
			return nil, err
		}
	}

	s.log.Info().
		Str("exam_id", examID.String()).
		Int("participant_id", participantID).
		Int("score", summary.Score).
		Int("total_questions", summary.TotalQuestions).
		Msg("Attempt submitted")

	current.Score = summary.Score
	current.TotalQuestions = summary.TotalQuestions
	current.SubjectBreakdown = summary.SubjectBreakdown
	current.FinishedAt = &finishedAt
	return current, nil
}
