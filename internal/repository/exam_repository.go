package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/provafacil/simulado-backend/internal/model"
)

var ErrExamNotFound = errors.New("exam not found")

// ExamRepository handles exam data access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

// GetByID retrieves an exam by ID.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e := &model.Exam{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, created_by, day, status, created_at, published_at
		 FROM exams WHERE id = $1`, id,
	).Scan(&e.ID, &e.Title, &e.CreatedBy, &e.Day, &e.Status, &e.CreatedAt, &e.PublishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrExamNotFound
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// List retrieves all exams, newest first. A non-nil status filters the result.
func (r *ExamRepository) List(ctx context.Context, status *model.ExamStatus) ([]model.Exam, error) {
	query := `SELECT id, title, created_by, day, status, created_at, published_at FROM exams`
	var args []interface{}
	if status != nil {
		query += ` WHERE status = $1`
		args = append(args, *status)
	}
	query += ` ORDER BY day, created_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		var e model.Exam
		if err := rows.Scan(&e.ID, &e.Title, &e.CreatedBy, &e.Day, &e.Status, &e.CreatedAt, &e.PublishedAt); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

// Create inserts a new draft exam.
func (r *ExamRepository) Create(ctx context.Context, e *model.Exam) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO exams (id, title, created_by, day, status)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at`,
		e.ID, e.Title, e.CreatedBy, e.Day, e.Status,
	).Scan(&e.CreatedAt)
}

// Update modifies a draft exam's title and day.
func (r *ExamRepository) Update(ctx context.Context, e *model.Exam) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exams SET title = $1, day = $2 WHERE id = $3 AND status = $4`,
		e.Title, e.Day, e.ID, model.ExamStatusDraft,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrExamNotFound
	}
	return nil
}

// Publish flips a draft exam to PUBLISHED and stamps published_at. Returns
// ErrExamNotFound when the exam does not exist or is already published.
func (r *ExamRepository) Publish(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e := &model.Exam{}
	err := r.pool.QueryRow(ctx,
		`UPDATE exams SET status = $1, published_at = CURRENT_TIMESTAMP
		 WHERE id = $2 AND status = $3
		 RETURNING id, title, created_by, day, status, created_at, published_at`,
		model.ExamStatusPublished, id, model.ExamStatusDraft,
	).Scan(&e.ID, &e.Title, &e.CreatedBy, &e.Day, &e.Status, &e.CreatedAt, &e.PublishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrExamNotFound
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Delete removes a draft exam and its questions (cascade).
func (r *ExamRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM exams WHERE id = $1 AND status = $2`, id, model.ExamStatusDraft,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrExamNotFound
	}
	return nil
}
