package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/provafacil/simulado-backend/internal/model"
	"github.com/provafacil/simulado-backend/internal/session"
	"github.com/rs/zerolog"
)

func newTestController(t *testing.T, store *session.Store, clock session.Clock, examID uuid.UUID, participantID int, questions []model.Question) *session.Controller {
	t.Helper()
	cd := session.NewCountdown(clock, examDuration, warningThreshold)
	ctrl := session.NewController(store, cd, clock, zerolog.Nop(), examID, participantID, questions)
	t.Cleanup(ctrl.Close)
	return ctrl
}

func waitForStatus(t *testing.T, ctrl *session.Controller, want session.Status) session.Snapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap := ctrl.Snapshot()
		if snap.Status == want {
			return snap
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("status never reached %s (last: %s)", want, ctrl.Snapshot().Status)
	return session.Snapshot{}
}

// End-to-end: 3 questions (Math, Math, Lang; correct A, B, C), participant
// answers Q1=A and Q2=C, leaves Q3 blank, and the countdown runs out.
func TestControllerAutoSubmitOnExpiry(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	clock := newFakeClock(start)
	store, _ := newTestStore(clock)
	examID, participantID := uuid.New(), 7

	questions := []model.Question{
		question(examID, "Math", "A"),
		question(examID, "Math", "B"),
		question(examID, "Lang", "C"),
	}

	if _, err := store.ResumeOrStart(ctx, examID, participantID); err != nil {
		t.Fatalf("start attempt: %v", err)
	}
	if _, err := store.RecordAnswer(ctx, examID, participantID, questions[0].ID, "A"); err != nil {
		t.Fatalf("answer q1: %v", err)
	}
	if _, err := store.RecordAnswer(ctx, examID, participantID, questions[1].ID, "C"); err != nil {
		t.Fatalf("answer q2: %v", err)
	}

	// Reload with the full duration elapsed: the first tick is already at
	// zero and must trigger exactly one submit.
	clock.Advance(examDuration)
	ctrl := newTestController(t, store, clock, examID, participantID, questions)
	if err := ctrl.Start(ctx); err != nil {
		t.Fatalf("controller start: %v", err)
	}

	snap := waitForStatus(t, ctrl, session.StatusFinished)
	if snap.FormattedTime != "00:00:00" {
		t.Errorf("formatted time = %q, want 00:00:00", snap.FormattedTime)
	}

	attempt := ctrl.Session()
	if attempt.Score != 1 || attempt.TotalQuestions != 3 {
		t.Fatalf("score/total = %d/%d, want 1/3", attempt.Score, attempt.TotalQuestions)
	}
	want := []model.SubjectScore{
		{Subject: "Math", Correct: 1, Total: 2},
		{Subject: "Lang", Correct: 0, Total: 1},
	}
	for i, w := range want {
		if attempt.SubjectBreakdown[i] != w {
			t.Fatalf("breakdown[%d] = %+v, want %+v", i, attempt.SubjectBreakdown[i], w)
		}
	}
	if attempt.FinishedAt == nil {
		t.Fatalf("attempt not terminal")
	}

	// Terminal state: a later manual confirm cannot resubmit or change anything.
	ctrl.RequestFinish()
	_ = ctrl.ConfirmFinish(ctx)
	if got := ctrl.Session(); !got.FinishedAt.Equal(*attempt.FinishedAt) || got.Score != attempt.Score {
		t.Fatalf("terminal state mutated: %+v", got)
	}
}

func TestControllerManualFinishWithConfirmationGate(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	clock := newFakeClock(start)
	store, _ := newTestStore(clock)
	examID, participantID := uuid.New(), 7

	questions := []model.Question{
		question(examID, "Math", "A"),
		question(examID, "Lang", "B"),
		question(examID, "Lang", "C"),
	}

	ctrl := newTestController(t, store, clock, examID, participantID, questions)
	if err := ctrl.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForStatus(t, ctrl, session.StatusInProgress)

	if err := ctrl.SelectAnswer(ctx, questions[0].ID, "A"); err != nil {
		t.Fatalf("select: %v", err)
	}

	// ConfirmFinish without an open gate must refuse.
	if err := ctrl.ConfirmFinish(ctx); err == nil {
		t.Fatalf("confirm without request succeeded")
	}

	unanswered := ctrl.RequestFinish()
	if unanswered != 2 {
		t.Fatalf("unanswered = %d, want 2", unanswered)
	}
	if !ctrl.Snapshot().ConfirmingFinish {
		t.Fatalf("confirmation gate not open")
	}

	// Cancelling keeps the attempt in progress.
	ctrl.CancelFinish()
	if snap := ctrl.Snapshot(); snap.ConfirmingFinish || snap.Status != session.StatusInProgress {
		t.Fatalf("after cancel: %+v", snap)
	}

	ctrl.RequestFinish()
	if err := ctrl.ConfirmFinish(ctx); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	snap := waitForStatus(t, ctrl, session.StatusFinished)
	if snap.Score == nil || *snap.Score != 1 {
		t.Fatalf("snapshot score = %v, want 1", snap.Score)
	}
}

func TestControllerRedirectsFinishedAttempt(t *testing.T) {
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

	ctrl := newTestController(t, store, clock, examID, participantID, nil)
	if err := ctrl.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if snap := ctrl.Snapshot(); snap.Status != session.StatusRedirected {
		t.Fatalf("status = %s, want REDIRECTED", snap.Status)
	}
}

func TestControllerNavigationClampsWithoutWrapping(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC))
	store, _ := newTestStore(clock)
	examID := uuid.New()

	questions := []model.Question{
		question(examID, "Math", "A"),
		question(examID, "Math", "B"),
		question(examID, "Lang", "C"),
	}
	ctrl := newTestController(t, store, clock, examID, 7, questions)
	if err := ctrl.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	ctrl.Navigate(2)
	if got := ctrl.Snapshot().CurrentIndex; got != 2 {
		t.Fatalf("index = %d, want 2", got)
	}
	ctrl.Navigate(99)
	if got := ctrl.Snapshot().CurrentIndex; got != 2 {
		t.Fatalf("index after overflow = %d, want 2 (clamped, not wrapped)", got)
	}
	ctrl.Navigate(-5)
	if got := ctrl.Snapshot().CurrentIndex; got != 0 {
		t.Fatalf("index after underflow = %d, want 0", got)
	}
}

func TestControllerSelectAnswerRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC))
	store, _ := newTestStore(clock)
	examID := uuid.New()

	questions := []model.Question{question(examID, "Math", "A")}
	ctrl := newTestController(t, store, clock, examID, 7, questions)
	if err := ctrl.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	// An empty label fails validation before any write; the optimistic
	// mirror update must roll back.
	if err := ctrl.SelectAnswer(ctx, questions[0].ID, " "); err == nil {
		t.Fatalf("expected validation failure")
	}
	if got := ctrl.Snapshot().AnsweredCount; got != 0 {
		t.Fatalf("answered count after rollback = %d, want 0", got)
	}

	if err := ctrl.SelectAnswer(ctx, questions[0].ID, "A"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if got := ctrl.Snapshot().AnsweredCount; got != 1 {
		t.Fatalf("answered count = %d, want 1", got)
	}
}

func TestControllerCloseStopsTicks(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC))
	store, _ := newTestStore(clock)
	examID := uuid.New()

	questions := []model.Question{question(examID, "Math", "A")}
	ctrl := newTestController(t, store, clock, examID, 7, questions)

	ticks := make(chan session.Snapshot, 64)
	unsubscribe := ctrl.Subscribe(func(s session.Snapshot) {
		select {
		case ticks <- s:
		default:
		}
	})
	defer unsubscribe()

	if err := ctrl.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForStatus(t, ctrl, session.StatusInProgress)

	ctrl.Close()

	// Drain whatever was in flight, then verify silence.
	for len(ticks) > 0 {
		<-ticks
	}
	select {
	case snap := <-ticks:
		t.Fatalf("notification after Close: %+v", snap)
	case <-time.After(1500 * time.Millisecond):
	}
}
