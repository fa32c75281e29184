package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/provafacil/simulado-backend/internal/config"
	"github.com/provafacil/simulado-backend/internal/model"
	"github.com/provafacil/simulado-backend/internal/repository"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Authoring and publication errors.
var (
	ErrExamNotDraft     = errors.New("exam is not in DRAFT status")
	ErrExamNotPublished = errors.New("exam is not published")
	ErrNoQuestions      = errors.New("exam has no questions")
	ErrInvalidQuestion  = errors.New("invalid question")
)

// ExamService handles exam authoring and the participant-facing paper.
type ExamService struct {
	cfg          *config.Config
	examRepo     *repository.ExamRepository
	questionRepo *repository.QuestionRepository
	rdb          *redis.Client
	log          zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(
	cfg *config.Config,
	examRepo *repository.ExamRepository,
	questionRepo *repository.QuestionRepository,
	rdb *redis.Client,
	log zerolog.Logger,
) *ExamService {
	return &ExamService{
		cfg:          cfg,
		examRepo:     examRepo,
		questionRepo: questionRepo,
		rdb:          rdb,
		log:          log.With().Str("component", "exam_service").Logger(),
	}
}

// ListExams retrieves all exams, optionally filtered by status.
func (s *ExamService) ListExams(ctx context.Context, status *model.ExamStatus) ([]model.Exam, error) {
	return s.examRepo.List(ctx, status)
}

// GetExam retrieves an exam by ID.
func (s *ExamService) GetExam(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	return s.examRepo.GetByID(ctx, id)
}

// CreateExam creates a new draft exam owned by the given teacher.
func (s *ExamService) CreateExam(ctx context.Context, teacherID int, req model.CreateExamRequest) (*model.Exam, error) {
	exam := &model.Exam{
		ID:        uuid.New(),
		Title:     req.Title,
		CreatedBy: teacherID,
		Day:       req.Day,
		Status:    model.ExamStatusDraft,
	}
	if err := s.examRepo.Create(ctx, exam); err != nil {
		return nil, fmt.Errorf("create exam: %w", err)
	}
	return exam, nil
}

// UpdateExam modifies a draft exam. Published exams are immutable.
func (s *ExamService) UpdateExam(ctx context.Context, id uuid.UUID, req model.UpdateExamRequest) (*model.Exam, error) {
	exam, err := s.examRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if exam.Status != model.ExamStatusDraft {
		return nil, ErrExamNotDraft
	}

	if req.Title != "" {
		exam.Title = req.Title
	}
	if req.Day != 0 {
		exam.Day = req.Day
	}
	if err := s.examRepo.Update(ctx, exam); err != nil {
		return nil, err
	}
	return exam, nil
}

// DeleteExam removes a draft exam and its questions.
func (s *ExamService) DeleteExam(ctx context.Context, id uuid.UUID) error {
	exam, err := s.examRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if exam.Status != model.ExamStatusDraft {
		return ErrExamNotDraft
	}
	return s.examRepo.Delete(ctx, id)
}

// ListQuestions retrieves an exam's full questions, correct answers included.
// Teacher-facing only; participants go through GetPaper.
func (s *ExamService) ListQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	if _, err := s.examRepo.GetByID(ctx, examID); err != nil {
		return nil, err
	}
	return s.questionRepo.ListByExam(ctx, examID)
}

// AddQuestion appends a question to a draft exam.
func (s *ExamService) AddQuestion(ctx context.Context, examID uuid.UUID, req model.AddQuestionRequest) (*model.Question, error) {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return nil, err
	}
	if exam.Status != model.ExamStatusDraft {
		return nil, ErrExamNotDraft
	}

	count, err := s.questionRepo.CountByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("count questions: %w", err)
	}

	q := &model.Question{
		ID:            uuid.New(),
		ExamID:        examID,
		Subject:       req.Subject,
		Text:          req.Text,
		ImageRef:      req.ImageRef,
		Alternatives:  req.Alternatives,
		CorrectAnswer: req.CorrectAnswer,
		OrderNum:      count + 1,
	}
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuestion, err)
	}
	if err := s.questionRepo.Create(ctx, q); err != nil {
		return nil, fmt.Errorf("create question: %w", err)
	}
	return q, nil
}

// ReplaceQuestions swaps a draft exam's full question list, preserving the
// request order as the presentation order.
func (s *ExamService) ReplaceQuestions(ctx context.Context, examID uuid.UUID, req model.ReplaceQuestionsRequest) ([]model.Question, error) {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return nil, err
	}
	if exam.Status != model.ExamStatusDraft {
		return nil, ErrExamNotDraft
	}

	questions := make([]model.Question, 0, len(req.Questions))
	for i, qr := range req.Questions {
		q := model.Question{
			ID:            uuid.New(),
			ExamID:        examID,
			Subject:       qr.Subject,
			Text:          qr.Text,
			ImageRef:      qr.ImageRef,
			Alternatives:  qr.Alternatives,
			CorrectAnswer: qr.CorrectAnswer,
			OrderNum:      i + 1,
		}
		if err := q.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidQuestion, err)
		}
		questions = append(questions, q)
	}

	if err := s.questionRepo.ReplaceAll(ctx, examID, questions); err != nil {
		return nil, fmt.Errorf("replace questions: %w", err)
	}
	return questions, nil
}

// DeleteQuestion removes one question from a draft exam.
func (s *ExamService) DeleteQuestion(ctx context.Context, examID, questionID uuid.UUID) error {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return err
	}
	if exam.Status != model.ExamStatusDraft {
		return ErrExamNotDraft
	}
	return s.questionRepo.Delete(ctx, examID, questionID)
}

// Publish flips a draft exam to PUBLISHED after validating every question,
// then pre-warms the paper cache. A published exam and its questions are
// immutable from then on, which is what makes the cache safe without
// invalidation.
func (s *ExamService) Publish(ctx context.Context, examID uuid.UUID) (*model.Exam, error) {
	questions, err := s.questionRepo.ListByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}
	for i := range questions {
		if err := questions[i].Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidQuestion, err)
		}
	}

	exam, err := s.examRepo.Publish(ctx, examID)
	if err != nil {
		return nil, err
	}

	paper := s.buildPaper(exam, questions)
	if err := s.cachePaper(ctx, paper); err != nil {
		// Cache warm failure is not fatal; GetPaper self-heals on first miss.
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Failed to pre-warm paper cache")
	}

	s.log.Info().
		Str("exam_id", examID.String()).
		Int("questions", len(questions)).
		Msg("Exam published")

	return exam, nil
}

// GetPaper returns the participant-facing paper for a published exam: Redis
// cache first, Postgres fallback with a self-healing cache refill.
func (s *ExamService) GetPaper(ctx context.Context, examID uuid.UUID) (*model.ExamPaper, error) {
	cacheKey := config.CacheKey.ExamPaperKey(examID.String())

	val, err := s.rdb.Get(ctx, cacheKey).Result()
	if err == nil {
		var paper model.ExamPaper
		if jsonErr := json.Unmarshal([]byte(val), &paper); jsonErr == nil {
			return &paper, nil
		}
		// Unreadable cache entry; fall through to rebuild from the database.
		s.rdb.Del(ctx, cacheKey)
	} else if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get cached paper: %w", err)
	}

	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return nil, err
	}
	if exam.Status != model.ExamStatusPublished {
		return nil, ErrExamNotPublished
	}

	questions, err := s.questionRepo.ListByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	paper := s.buildPaper(exam, questions)
	if err := s.cachePaper(ctx, paper); err != nil {
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Failed to cache paper")
	}
	return paper, nil
}

// PrewarmPapers loads every published exam's paper into Redis. Run before
// accepting traffic so a thundering herd at exam start never races the lazy
// cache fill.
func (s *ExamService) PrewarmPapers(ctx context.Context) error {
	published := model.ExamStatusPublished
	exams, err := s.examRepo.List(ctx, &published)
	if err != nil {
		return fmt.Errorf("list published exams: %w", err)
	}

	for _, exam := range exams {
		questions, err := s.questionRepo.ListByExam(ctx, exam.ID)
		if err != nil {
			return fmt.Errorf("list questions for %s: %w", exam.ID, err)
		}
		e := exam
		if err := s.cachePaper(ctx, s.buildPaper(&e, questions)); err != nil {
			return err
		}
	}

	s.log.Info().Int("count", len(exams)).Msg("Paper cache prewarmed")
	return nil
}

func (s *ExamService) buildPaper(exam *model.Exam, questions []model.Question) *model.ExamPaper {
	stripped := make([]model.QuestionForParticipant, 0, len(questions))
	for _, q := range questions {
		stripped = append(stripped, model.QuestionForParticipant{
			ID:           q.ID,
			Subject:      q.Subject,
			Text:         q.Text,
			ImageRef:     q.ImageRef,
			Alternatives: q.Alternatives,
			OrderNum:     q.OrderNum,
		})
	}
	return &model.ExamPaper{
		ExamID:          exam.ID,
		Title:           exam.Title,
		Day:             exam.Day,
		DurationSeconds: int(s.cfg.ExamDuration.Seconds()),
		Questions:       stripped,
	}
}

func (s *ExamService) cachePaper(ctx context.Context, paper *model.ExamPaper) error {
	raw, err := json.Marshal(paper)
	if err != nil {
		return fmt.Errorf("marshal paper: %w", err)
	}
	// Published papers never change, so no TTL.
	return s.rdb.Set(ctx, config.CacheKey.ExamPaperKey(paper.ExamID.String()), raw, 0).Err()
}
