package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/provafacil/simulado-backend/internal/gateway"
	"github.com/provafacil/simulado-backend/internal/model"
)

// Document field names are the persisted storage contract and must round-trip
// exactly; they do not follow the API's snake_case JSON tags.

func sessionFields(a *model.AttemptSession) gateway.Document {
	var finishedAt any
	if a.FinishedAt != nil {
		finishedAt = a.FinishedAt.UTC()
	}
	breakdown := a.SubjectBreakdown
	if breakdown == nil {
		breakdown = []model.SubjectScore{}
	}
	return gateway.Document{
		"examId":           a.ExamID.String(),
		"participantId":    a.ParticipantID,
		"score":            a.Score,
		"totalQuestions":   a.TotalQuestions,
		"subjectBreakdown": breakdown,
		"startedAt":        a.StartedAt.UTC(),
		"finishedAt":       finishedAt,
	}
}

func answerFields(r *model.RecordedAnswer) gateway.Document {
	return gateway.Document{
		"examId":         r.ExamID.String(),
		"participantId":  r.ParticipantID,
		"questionId":     r.QuestionID.String(),
		"selectedAnswer": r.SelectedAnswer,
		"answeredAt":     r.AnsweredAt.UTC(),
	}
}

func sessionFromDoc(key string, doc gateway.Document) (*model.AttemptSession, error) {
	examID, err := docUUID(doc, "examId")
	if err != nil {
		return nil, &CorruptSessionError{Key: key, Reason: err.Error()}
	}
	participantID, err := docInt(doc, "participantId")
	if err != nil {
		return nil, &CorruptSessionError{Key: key, Reason: err.Error()}
	}
	startedAt, err := docTime(doc, "startedAt")
	if err != nil {
		return nil, &CorruptSessionError{Key: key, Reason: err.Error()}
	}

	a := &model.AttemptSession{
		ExamID:        examID,
		ParticipantID: participantID,
		StartedAt:     startedAt,
	}
	if a.Score, err = docIntDefault(doc, "score"); err != nil {
		return nil, &CorruptSessionError{Key: key, Reason: err.Error()}
	}
	if a.TotalQuestions, err = docIntDefault(doc, "totalQuestions"); err != nil {
		return nil, &CorruptSessionError{Key: key, Reason: err.Error()}
	}
	if raw, ok := doc["finishedAt"]; ok && raw != nil {
		t, err := docTime(doc, "finishedAt")
		if err != nil {
			return nil, &CorruptSessionError{Key: key, Reason: err.Error()}
		}
		a.FinishedAt = &t
	}
	if a.SubjectBreakdown, err = docBreakdown(doc); err != nil {
		return nil, &CorruptSessionError{Key: key, Reason: err.Error()}
	}
	return a, nil
}

func answerFromDoc(doc gateway.Document) (*model.RecordedAnswer, error) {
	examID, err := docUUID(doc, "examId")
	if err != nil {
		return nil, err
	}
	participantID, err := docInt(doc, "participantId")
	if err != nil {
		return nil, err
	}
	questionID, err := docUUID(doc, "questionId")
	if err != nil {
		return nil, err
	}
	selected, _ := doc["selectedAnswer"].(string)
	answeredAt, err := docTime(doc, "answeredAt")
	if err != nil {
		return nil, err
	}
	return &model.RecordedAnswer{
		ExamID:         examID,
		ParticipantID:  participantID,
		QuestionID:     questionID,
		SelectedAnswer: selected,
		AnsweredAt:     answeredAt,
	}, nil
}

// ─── Field decoding helpers ─────────────────────────────────────────
//
// Documents come back from the gateway with JSON value types: numbers as
// float64, timestamps as RFC 3339 strings.

func docUUID(doc gateway.Document, field string) (uuid.UUID, error) {
	s, ok := doc[field].(string)
	if !ok {
		return uuid.Nil, fmt.Errorf("field %s missing or not a string", field)
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("field %s: %w", field, err)
	}
	return id, nil
}

func docInt(doc gateway.Document, field string) (int, error) {
	switch v := doc[field].(type) {
	case float64:
		return int(v), nil
	case int:
		return v, nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("field %s: %w", field, err)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("field %s missing or not a number", field)
	}
}

func docIntDefault(doc gateway.Document, field string) (int, error) {
	if raw, ok := doc[field]; !ok || raw == nil {
		return 0, nil
	}
	return docInt(doc, field)
}

func docTime(doc gateway.Document, field string) (time.Time, error) {
	s, ok := doc[field].(string)
	if !ok {
		return time.Time{}, fmt.Errorf("field %s missing or not a timestamp", field)
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("field %s: %w", field, err)
	}
	return t, nil
}

func docBreakdown(doc gateway.Document) ([]model.SubjectScore, error) {
	raw, ok := doc["subjectBreakdown"]
	if !ok || raw == nil {
		return []model.SubjectScore{}, nil
	}
	entries, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("field subjectBreakdown is not a list")
	}
	breakdown := make([]model.SubjectScore, 0, len(entries))
	for _, e := range entries {
		m, ok := e.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("field subjectBreakdown has a non-object entry")
		}
		entry := gateway.Document(m)
		subject, _ := entry["subject"].(string)
		correct, err := docIntDefault(entry, "correct")
		if err != nil {
			return nil, err
		}
		total, err := docIntDefault(entry, "total")
		if err != nil {
			return nil, err
		}
		breakdown = append(breakdown, model.SubjectScore{Subject: subject, Correct: correct, Total: total})
	}
	return breakdown, nil
}
