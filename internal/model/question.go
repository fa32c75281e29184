package model

import (
	"fmt"

	"github.com/google/uuid"
)

// Alternative is one selectable option of a question. Labels are unique
// within a question (conventionally A–E, but the count is not fixed).
type Alternative struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

// Question represents a single exam question.
type Question struct {
	ID            uuid.UUID     `json:"id"`
	ExamID        uuid.UUID     `json:"exam_id"`
	Subject       string        `json:"subject"`
	Text          string        `json:"text"`
	ImageRef      *string       `json:"image_ref,omitempty"`
	Alternatives  []Alternative `json:"alternatives"`
	CorrectAnswer string        `json:"correct_answer"`
	OrderNum      int           `json:"order_num"`
}

// Validate enforces the question invariants: alternatives non-empty, labels
// unique, and correctAnswer present among the alternative labels.
func (q *Question) Validate() error {
	if len(q.Alternatives) == 0 {
		return fmt.Errorf("question %q: alternatives must not be empty", q.Text)
	}
	seen := make(map[string]struct{}, len(q.Alternatives))
	for _, alt := range q.Alternatives {
		if alt.Label == "" {
			return fmt.Errorf("question %q: alternative label must not be empty", q.Text)
		}
		if _, dup := seen[alt.Label]; dup {
			return fmt.Errorf("question %q: duplicate alternative label %q", q.Text, alt.Label)
		}
		seen[alt.Label] = struct{}{}
	}
	if _, ok := seen[q.CorrectAnswer]; !ok {
		return fmt.Errorf("question %q: correct answer %q is not an alternative label", q.Text, q.CorrectAnswer)
	}
	return nil
}

// QuestionForParticipant is a question without the correct answer, sent to
// participants.
type QuestionForParticipant struct {
	ID           uuid.UUID     `json:"id"`
	Subject      string        `json:"subject"`
	Text         string        `json:"text"`
	ImageRef     *string       `json:"image_ref,omitempty"`
	Alternatives []Alternative `json:"alternatives"`
	OrderNum     int           `json:"order_num"`
}

// AddQuestionRequest is the payload for adding a question to a draft exam.
type AddQuestionRequest struct {
	Subject       string        `json:"subject" binding:"required,min=1,max=100"`
	Text          string        `json:"text" binding:"required,min=1,max=5000"`
	ImageRef      *string       `json:"image_ref" binding:"omitempty,max=500"`
	Alternatives  []Alternative `json:"alternatives" binding:"required,min=1,dive"`
	CorrectAnswer string        `json:"correct_answer" binding:"required,max=10"`
}

// ReplaceQuestionsRequest is the payload for bulk replacing a draft exam's questions.
type ReplaceQuestionsRequest struct {
	Questions []AddQuestionRequest `json:"questions" binding:"required,min=1,dive"`
}
