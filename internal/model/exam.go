package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamStatus enumerates the possible states of an exam.
type ExamStatus string

const (
	ExamStatusDraft     ExamStatus = "DRAFT"
	ExamStatusPublished ExamStatus = "PUBLISHED"
)

// Exam represents an exam definition. Published exams are immutable: the
// authoring endpoints reject any mutation once the status leaves DRAFT.
type Exam struct {
	ID          uuid.UUID  `json:"id"`
	Title       string     `json:"title"`
	CreatedBy   int        `json:"created_by"`
	Day         int        `json:"day"`
	Status      ExamStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// CreateExamRequest is the payload for creating a new exam.
type CreateExamRequest struct {
	Title string `json:"title" binding:"required,min=3,max=255"`
	Day   int    `json:"day" binding:"required,min=1,max=2"`
}

// UpdateExamRequest is the payload for updating a draft exam.
type UpdateExamRequest struct {
	Title string `json:"title" binding:"omitempty,min=3,max=255"`
	Day   int    `json:"day" binding:"omitempty,min=1,max=2"`
}

// ExamPaper is the Redis-cached payload sent to participants (no correct answers).
type ExamPaper struct {
	ExamID          uuid.UUID             `json:"exam_id"`
	Title           string                `json:"title"`
	Day             int                   `json:"day"`
	DurationSeconds int                   `json:"duration_seconds"`
	Questions       []QuestionForParticipant `json:"questions"`
}
