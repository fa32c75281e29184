package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/provafacil/simulado-backend/internal/model"
)

// QuestionRepository handles question data access. Alternatives are stored as
// a JSONB column, so the label set stays free-form per question.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// ListByExam retrieves all questions for a given exam, ordered by order_num.
func (r *QuestionRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, subject, question_text, image_ref, alternatives, correct_answer, order_num
		 FROM questions WHERE exam_id = $1
		 ORDER BY order_num`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.ExamID, &q.Subject, &q.Text, &q.ImageRef, &q.Alternatives, &q.CorrectAnswer, &q.OrderNum); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// Create inserts a new question.
func (r *QuestionRepository) Create(ctx context.Context, q *model.Question) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO questions (id, exam_id, subject, question_text, image_ref, alternatives, correct_answer, order_num)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		q.ID, q.ExamID, q.Subject, q.Text, q.ImageRef, q.Alternatives, q.CorrectAnswer, q.OrderNum,
	).Scan(&q.ID)
}

// ReplaceAll swaps the full question list of an exam in one transaction.
// Ordering follows the slice order.
func (r *QuestionRepository) ReplaceAll(ctx context.Context, examID uuid.UUID, questions []model.Question) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM questions WHERE exam_id = $1`, examID); err != nil {
			return err
		}
		for i := range questions {
			q := &questions[i]
			if _, err := tx.Exec(ctx,
				`INSERT INTO questions (id, exam_id, subject, question_text, image_ref, alternatives, correct_answer, order_num)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				q.ID, q.ExamID, q.Subject, q.Text, q.ImageRef, q.Alternatives, q.CorrectAnswer, q.OrderNum,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete removes a single question.
func (r *QuestionRepository) Delete(ctx context.Context, examID, questionID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM questions WHERE id = $1 AND exam_id = $2`, questionID, examID,
	)
	return err
}

// CountByExam returns how many questions an exam has.
func (r *QuestionRepository) CountByExam(ctx context.Context, examID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM questions WHERE exam_id = $1`, examID,
	).Scan(&count)
	return count, err
}
