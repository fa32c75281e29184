package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/provafacil/simulado-backend/internal/gateway"
	"github.com/provafacil/simulado-backend/internal/gateway/memory"
	"github.com/provafacil/simulado-backend/internal/model"
	"github.com/provafacil/simulado-backend/internal/session"
	"github.com/rs/zerolog"
)

func newTestStore(clock session.Clock) (*session.Store, *memory.DocStore) {
	gw := memory.NewDocStore()
	return session.NewStore(gw, clock, zerolog.Nop()), gw
}

func TestResumeOrStartPreservesStartTime(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	clock := newFakeClock(start)
	store, gw := newTestStore(clock)
	examID, participantID := uuid.New(), 7

	first, err := store.ResumeOrStart(ctx, examID, participantID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !first.StartedAt.Equal(start) {
		t.Fatalf("startedAt = %v, want %v", first.StartedAt, start)
	}

	// A later visit resumes with the original start, never a reset one.
	clock.Advance(45 * time.Minute)
	second, err := store.ResumeOrStart(ctx, examID, participantID)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if !second.StartedAt.Equal(first.StartedAt) {
		t.Fatalf("resume changed startedAt: %v -> %v", first.StartedAt, second.StartedAt)
	}
	if n := gw.Len(session.CollectionResults); n != 1 {
		t.Fatalf("expected a single attempt document, found %d", n)
	}
}

func TestResumeOrStartSignalsFinishedAttempt(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC))
	store, _ := newTestStore(clock)
	examID, participantID := uuid.New(), 7

	if _, err := store.ResumeOrStart(ctx, examID, participantID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := store.Submit(ctx, examID, participantID, nil, nil); err != nil {
		t.Fatalf("submit: %v", err)
	}

	got, err := store.ResumeOrStart(ctx, examID, participantID)
	if !errors.Is(err, session.ErrAlreadyFinished) {
		t.Fatalf("err = %v, want ErrAlreadyFinished", err)
	}
	if got == nil || !got.Finished() {
		t.Fatalf("finished attempt not returned alongside the signal: %+v", got)
	}
}

func TestRecordAnswerValidatesAndOverwrites(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC))
	store, _ := newTestStore(clock)
	examID, participantID, questionID := uuid.New(), 7, uuid.New()

	var verr *session.ValidationError
	if _, err := store.RecordAnswer(ctx, examID, participantID, questionID, "  "); !errors.As(err, &verr) {
		t.Fatalf("empty label: err = %v, want ValidationError", err)
	}

	if _, err := store.RecordAnswer(ctx, examID, participantID, questionID, "A"); err != nil {
		t.Fatalf("record: %v", err)
	}
	// Changing an answer is a plain overwrite of the same key.
	if _, err := store.RecordAnswer(ctx, examID, participantID, questionID, "D"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	answers, err := store.LoadAnswers(ctx, examID, participantID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(answers) != 1 || answers[questionID] != "D" {
		t.Fatalf("answers = %v, want {%s: D}", answers, questionID)
	}
}

func TestSubmitIsIdempotent(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	clock := newFakeClock(start)
	store, _ := newTestStore(clock)
	examID, participantID := uuid.New(), 7

	questions := []model.Question{
		question(examID, "Math", "A"),
		question(examID, "Lang", "B"),
	}
	if _, err := store.ResumeOrStart(ctx, examID, participantID); err != nil {
		t.Fatalf("start: %v", err)
	}
	answers := map[uuid.UUID]string{questions[0].ID: "A"}

	clock.Advance(2 * time.Hour)
	first, err := store.Submit(ctx, examID, participantID, questions, answers)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if first.FinishedAt == nil || first.Score != 1 {
		t.Fatalf("first submit = %+v", first)
	}

	// A duplicate trigger (timeout racing a manual click) is a no-op that
	// returns the already-finished state, with the original finishedAt.
	clock.Advance(10 * time.Minute)
	second, err := store.Submit(ctx, examID, participantID, questions, map[uuid.UUID]string{
		questions[0].ID: "A",
		questions[1].ID: "B",
	})
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if second.Score != 1 {
		t.Fatalf("second submit changed score: %+v", second)
	}
	if !second.FinishedAt.Equal(*first.FinishedAt) {
		t.Fatalf("finishedAt moved: %v -> %v", first.FinishedAt, second.FinishedAt)
	}
}

func TestSubmitConcurrentWritersProduceOneResult(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	clock := newFakeClock(start)
	store, _ := newTestStore(clock)
	examID, participantID := uuid.New(), 7

	questions := []model.Question{question(examID, "Math", "A")}
	if _, err := store.ResumeOrStart(ctx, examID, participantID); err != nil {
		t.Fatalf("start: %v", err)
	}
	answers := map[uuid.UUID]string{questions[0].ID: "A"}

	const writers = 8
	results := make([]*model.AttemptSession, writers)
	errs := make([]error, writers)

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = store.Submit(ctx, examID, participantID, questions, answers)
		}(i)
	}
	wg.Wait()

	for i := 0; i < writers; i++ {
		if errs[i] != nil {
			t.Fatalf("writer %d: %v", i, errs[i])
		}
		if results[i] == nil || results[i].FinishedAt == nil {
			t.Fatalf("writer %d got unfinished state: %+v", i, results[i])
		}
		if results[i].Score != 1 {
			t.Fatalf("writer %d score = %d, want 1", i, results[i].Score)
		}
	}

	final, err := store.Get(ctx, examID, participantID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	for i := 0; i < writers; i++ {
		if !results[i].FinishedAt.Equal(*final.FinishedAt) {
			t.Fatalf("writer %d saw finishedAt %v, persisted %v", i, results[i].FinishedAt, final.FinishedAt)
		}
	}
}

func TestSubmitWithoutSessionIsCorrupt(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(newFakeClock(time.Now()))

	var cerr *session.CorruptSessionError
	if _, err := store.Submit(ctx, uuid.New(), 7, nil, nil); !errors.As(err, &cerr) {
		t.Fatalf("err = %v, want CorruptSessionError", err)
	}
}

func TestGetRejectsMalformedStoredState(t *testing.T) {
	ctx := context.Background()
	gw := memory.NewDocStore()
	store := session.NewStore(gw, newFakeClock(time.Now()), zerolog.Nop())
	examID, participantID := uuid.New(), 7

	// A document missing startedAt cannot be interpreted as an attempt.
	key := model.AttemptKey(examID, participantID)
	if err := gw.Put(ctx, session.CollectionResults, key, gateway.Document{
		"examId":        examID.String(),
		"participantId": participantID,
	}, false); err != nil {
		t.Fatalf("seed: %v", err)
	}

	var cerr *session.CorruptSessionError
	if _, err := store.Get(ctx, examID, participantID); !errors.As(err, &cerr) {
		t.Fatalf("err = %v, want CorruptSessionError", err)
	}
}

func TestSessionDocumentRoundTrip(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	clock := newFakeClock(start)
	store, gw := newTestStore(clock)
	examID, participantID := uuid.New(), 7

	questions := []model.Question{
		question(examID, "Math", "A"),
		question(examID, "Lang", "B"),
	}
	if _, err := store.ResumeOrStart(ctx, examID, participantID); err != nil {
		t.Fatalf("start: %v", err)
	}
	clock.Advance(time.Hour)
	if _, err := store.Submit(ctx, examID, participantID, questions, map[uuid.UUID]string{questions[1].ID: "B"}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	// The persisted document carries the exact contract field names.
	doc, err := gw.GetByKey(ctx, session.CollectionResults, model.AttemptKey(examID, participantID))
	if err != nil {
		t.Fatalf("get doc: %v", err)
	}
	for _, field := range []string{"examId", "participantId", "score", "totalQuestions", "subjectBreakdown", "startedAt", "finishedAt"} {
		if _, ok := doc[field]; !ok {
			t.Errorf("persisted session missing field %q", field)
		}
	}

	got, err := store.Get(ctx, examID, participantID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Score != 1 || got.TotalQuestions != 2 || !got.StartedAt.Equal(start) || got.FinishedAt == nil {
		t.Fatalf("reloaded attempt = %+v", got)
	}
	if len(got.SubjectBreakdown) != 2 || got.SubjectBreakdown[0].Subject != "Math" || got.SubjectBreakdown[1].Subject != "Lang" {
		t.Fatalf("reloaded breakdown = %+v", got.SubjectBreakdown)
	}
}
