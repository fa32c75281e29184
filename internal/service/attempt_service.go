package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/provafacil/simulado-backend/internal/config"
	"github.com/provafacil/simulado-backend/internal/gateway"
	"github.com/provafacil/simulado-backend/internal/model"
	"github.com/provafacil/simulado-backend/internal/repository"
	"github.com/provafacil/simulado-backend/internal/session"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrAttemptNotFound means the participant never started this exam.
var ErrAttemptNotFound = errors.New("attempt not found")

// LobbyStatus is the participant-facing state of an exam in the lobby.
type LobbyStatus string

const (
	LobbyStatusAvailable  LobbyStatus = "AVAILABLE"
	LobbyStatusInProgress LobbyStatus = "IN_PROGRESS"
	LobbyStatusCompleted  LobbyStatus = "COMPLETED"
)

// LobbyExam is a published exam with the participant's attempt overlaid.
type LobbyExam struct {
	model.Exam
	LobbyStatus LobbyStatus `json:"lobby_status"`
	Score       *int        `json:"score,omitempty"`
	FinishedAt  *time.Time  `json:"finished_at,omitempty"`
}

// AttemptState is the reload payload: where the participant left off.
type AttemptState struct {
	ExamID           uuid.UUID         `json:"exam_id"`
	ParticipantID    int               `json:"participant_id"`
	StartedAt        time.Time         `json:"started_at"`
	RemainingSeconds int               `json:"remaining_seconds"`
	Answers          map[string]string `json:"answers"`
	Finished         bool              `json:"finished"`
}

// AnswerReview is one graded question in the result view.
type AnswerReview struct {
	QuestionID     uuid.UUID           `json:"question_id"`
	Subject        string              `json:"subject"`
	Text           string              `json:"text"`
	ImageRef       *string             `json:"image_ref,omitempty"`
	Alternatives   []model.Alternative `json:"alternatives"`
	CorrectAnswer  string              `json:"correct_answer"`
	SelectedAnswer *string             `json:"selected_answer,omitempty"`
	Correct        bool                `json:"correct"`
}

// AttemptResult is the finished attempt plus per-question review.
type AttemptResult struct {
	Session *model.AttemptSession `json:"session"`
	Review  []AnswerReview        `json:"review"`
}

// MirrorCleanupJob is the payload pushed to the cleanup queue after a submit.
type MirrorCleanupJob struct {
	ExamID        string `json:"exam_id"`
	ParticipantID int    `json:"participant_id"`
}

// AttemptService wraps the session store with exam gating, the Redis hot-path
// mirror, and post-submit cache cleanup. The store stays the single source of
// truth: every Redis read has a durable fallback and every Redis write is
// best-effort.
type AttemptService struct {
	cfg          *config.Config
	store        *session.Store
	examRepo     *repository.ExamRepository
	questionRepo *repository.QuestionRepository
	rdb          *redis.Client
	log          zerolog.Logger
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	cfg *config.Config,
	store *session.Store,
	examRepo *repository.ExamRepository,
	questionRepo *repository.QuestionRepository,
	rdb *redis.Client,
	log zerolog.Logger,
) *AttemptService {
	return &AttemptService{
		cfg:          cfg,
		store:        store,
		examRepo:     examRepo,
		questionRepo: questionRepo,
		rdb:          rdb,
		log:          log.With().Str("component", "attempt_service").Logger(),
	}
}

// GetLobby returns published exams with the participant's attempt state
// overlaid, ordered by day.
func (s *AttemptService) GetLobby(ctx context.Context, participantID int) ([]LobbyExam, error) {
	published := model.ExamStatusPublished
	exams, err := s.examRepo.List(ctx, &published)
	if err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}

	lobby := make([]LobbyExam, 0, len(exams))
	for _, exam := range exams {
		entry := LobbyExam{Exam: exam, LobbyStatus: LobbyStatusAvailable}

		attempt, err := s.store.Get(ctx, exam.ID, participantID)
		switch {
		case errors.Is(err, gateway.ErrNotFound):
			// No attempt yet.
		case err != nil:
			return nil, fmt.Errorf("load attempt: %w", err)
		case attempt.Finished():
			entry.LobbyStatus = LobbyStatusCompleted
			score := attempt.Score
			entry.Score = &score
			entry.FinishedAt = attempt.FinishedAt
		default:
			entry.LobbyStatus = LobbyStatusInProgress
		}

		lobby = append(lobby, entry)
	}
	return lobby, nil
}

// StartAttempt creates or resumes the participant's attempt for a published
// exam and caches the start time. A finished attempt returns the terminal
// state with session.ErrAlreadyFinished so the handler can redirect.
func (s *AttemptService) StartAttempt(ctx context.Context, examID uuid.UUID, participantID int) (*model.AttemptSession, error) {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return nil, err
	}
	if exam.Status != model.ExamStatusPublished {
		return nil, ErrExamNotPublished
	}

	attempt, err := s.store.ResumeOrStart(ctx, examID, participantID)
	if err != nil {
		return attempt, err
	}

	// Cache the start time so state reloads skip the document store. The
	// durable record stays authoritative; a failed Set just means the next
	// read falls back and self-heals.
	startKey := config.CacheKey.AttemptStartKey(examID.String(), participantID)
	if cacheErr := s.rdb.Set(ctx, startKey, attempt.StartedAt.Unix(), 0).Err(); cacheErr != nil {
		s.log.Warn().Err(cacheErr).Str("exam_id", examID.String()).Int("participant_id", participantID).Msg("Failed to cache attempt start time")
	}

	return attempt, nil
}

// GetState returns the participant's current attempt state for a reload:
// remaining time recomputed from the persisted start, plus recorded answers.
// Start time and answers are read from Redis with a durable fallback that
// self-heals the cache.
func (s *AttemptService) GetState(ctx context.Context, examID uuid.UUID, participantID int) (*AttemptState, error) {
	startedAt, finished, err := s.resolveStart(ctx, examID, participantID)
	if err != nil {
		return nil, err
	}

	answers, err := s.resolveAnswers(ctx, examID, participantID)
	if err != nil {
		return nil, err
	}

	remaining := s.cfg.ExamDuration - time.Since(startedAt)
	if remaining < 0 {
		remaining = 0
	}

	return &AttemptState{
		ExamID:           examID,
		ParticipantID:    participantID,
		StartedAt:        startedAt,
		RemainingSeconds: int(remaining / time.Second),
		Answers:          answers,
		Finished:         finished,
	}, nil
}

// RecordAnswer durably stores one answer and mirrors it to Redis. Rejected
// once the attempt is finished.
func (s *AttemptService) RecordAnswer(ctx context.Context, examID uuid.UUID, participantID int, questionID uuid.UUID, label string) (*model.RecordedAnswer, error) {
	attempt, err := s.store.Get(ctx, examID, participantID)
	if errors.Is(err, gateway.ErrNotFound) {
		return nil, ErrAttemptNotFound
	}
	if err != nil {
		return nil, err
	}
	if attempt.Finished() {
		return nil, session.ErrAlreadyFinished
	}

	answer, err := s.store.RecordAnswer(ctx, examID, participantID, questionID, label)
	if err != nil {
		return nil, err
	}

	// Best-effort mirror for fast state reloads.
	mirrorKey := config.CacheKey.AnswerMirrorKey(examID.String(), participantID)
	if cacheErr := s.rdb.HSet(ctx, mirrorKey, questionID.String(), label).Err(); cacheErr != nil {
		s.log.Warn().Err(cacheErr).Str("exam_id", examID.String()).Int("participant_id", participantID).Msg("Failed to mirror answer")
	}

	return answer, nil
}

// Submit grades and finalizes the attempt, then queues cache cleanup.
// Idempotent: duplicate submits return the terminal state unchanged.
func (s *AttemptService) Submit(ctx context.Context, examID uuid.UUID, participantID int) (*model.AttemptSession, error) {
	questions, err := s.questionRepo.ListByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	answers, err := s.store.LoadAnswers(ctx, examID, participantID)
	if err != nil {
		return nil, err
	}

	attempt, err := s.store.Submit(ctx, examID, participantID, questions, answers)
	if err != nil {
		return nil, err
	}

	s.QueueCleanup(ctx, examID, participantID)
	return attempt, nil
}

// VerifyAttempt checks that the participant has started this exam. Used to
// gate the paper and stream endpoints against fetching exams never started.
func (s *AttemptService) VerifyAttempt(ctx context.Context, examID uuid.UUID, participantID int) error {
	_, err := s.store.Get(ctx, examID, participantID)
	if errors.Is(err, gateway.ErrNotFound) {
		return ErrAttemptNotFound
	}
	return err
}

// GetResult returns the finished attempt with a per-question review. An
// unfinished or missing attempt yields ErrAttemptNotFound — there is no
// result to show yet.
func (s *AttemptService) GetResult(ctx context.Context, examID uuid.UUID, participantID int) (*AttemptResult, error) {
	attempt, err := s.store.Get(ctx, examID, participantID)
	if errors.Is(err, gateway.ErrNotFound) {
		return nil, ErrAttemptNotFound
	}
	if err != nil {
		return nil, err
	}
	if !attempt.Finished() {
		return nil, ErrAttemptNotFound
	}

	questions, err := s.questionRepo.ListByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	answers, err := s.store.LoadAnswers(ctx, examID, participantID)
	if err != nil {
		return nil, err
	}

	review := make([]AnswerReview, 0, len(questions))
	for _, q := range questions {
		item := AnswerReview{
			QuestionID:    q.ID,
			Subject:       q.Subject,
			Text:          q.Text,
			ImageRef:      q.ImageRef,
			Alternatives:  q.Alternatives,
			CorrectAnswer: q.CorrectAnswer,
		}
		if label, ok := answers[q.ID]; ok {
			selected := label
			item.SelectedAnswer = &selected
			item.Correct = label == q.CorrectAnswer
		}
		review = append(review, item)
	}

	return &AttemptResult{Session: attempt, Review: review}, nil
}

// ─── internals ──────────────────────────────────────────────────────

// resolveStart reads the attempt start time from Redis, falling back to the
// document store on a miss and healing the cache.
func (s *AttemptService) resolveStart(ctx context.Context, examID uuid.UUID, participantID int) (time.Time, bool, error) {
	startKey := config.CacheKey.AttemptStartKey(examID.String(), participantID)

	val, err := s.rdb.Get(ctx, startKey).Result()
	if err == nil {
		unix, parseErr := strconv.ParseInt(val, 10, 64)
		if parseErr == nil {
			// The cache only carries the start time; whether the attempt
			// finished still comes from the durable record.
			attempt, getErr := s.store.Get(ctx, examID, participantID)
			if getErr == nil {
				return time.Unix(unix, 0).UTC(), attempt.Finished(), nil
			}
			if errors.Is(getErr, gateway.ErrNotFound) {
				return time.Time{}, false, ErrAttemptNotFound
			}
			return time.Time{}, false, getErr
		}
		// Unparseable cache entry; drop it and fall back.
		s.rdb.Del(ctx, startKey)
	} else if !errors.Is(err, redis.Nil) {
		return time.Time{}, false, fmt.Errorf("get cached start time: %w", err)
	}

	attempt, err := s.store.Get(ctx, examID, participantID)
	if errors.Is(err, gateway.ErrNotFound) {
		return time.Time{}, false, ErrAttemptNotFound
	}
	if err != nil {
		return time.Time{}, false, err
	}

	// Self-heal so the next reload is a cache hit.
	_ = s.rdb.Set(ctx, startKey, attempt.StartedAt.Unix(), 0).Err()
	return attempt.StartedAt, attempt.Finished(), nil
}

// resolveAnswers reads the answer mirror, falling back to the durable records
// and repopulating the mirror when it is empty.
func (s *AttemptService) resolveAnswers(ctx context.Context, examID uuid.UUID, participantID int) (map[string]string, error) {
	mirrorKey := config.CacheKey.AnswerMirrorKey(examID.String(), participantID)

	mirrored, err := s.rdb.HGetAll(ctx, mirrorKey).Result()
	if err == nil && len(mirrored) > 0 {
		return mirrored, nil
	}
	if err != nil {
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Int("participant_id", participantID).Msg("Answer mirror read failed, falling back to store")
	}

	durable, err := s.store.LoadAnswers(ctx, examID, participantID)
	if err != nil {
		return nil, err
	}

	answers := make(map[string]string, len(durable))
	for qid, label := range durable {
		answers[qid.String()] = label
	}

	if len(answers) > 0 {
		_ = s.rdb.HSet(ctx, mirrorKey, flatten(answers)).Err()
	}
	return answers, nil
}

// QueueCleanup pushes a cleanup job for the worker. Queue failures are
// logged, not returned: stale cache keys are harmless next to a failed submit
// response.
func (s *AttemptService) QueueCleanup(ctx context.Context, examID uuid.UUID, participantID int) {
	job := MirrorCleanupJob{ExamID: examID.String(), ParticipantID: participantID}
	raw, err := json.Marshal(job)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to marshal cleanup job")
		return
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.MirrorCleanupQueue, raw).Err(); err != nil {
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Int("participant_id", participantID).Msg("Failed to enqueue mirror cleanup")
	}
}

func flatten(m map[string]string) []string {
	kv := make([]string, 0, len(m)*2)
	for k, v := range m {
		kv = append(kv, k, v)
	}
	return kv
}
