package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/provafacil/simulado-backend/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func TestCleanupWorkerReclaimsAttemptKeys(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)

	examID := uuid.New().String()
	participantID := 7
	mirrorKey := config.CacheKey.AnswerMirrorKey(examID, participantID)
	startKey := config.CacheKey.AttemptStartKey(examID, participantID)

	if err := rdb.HSet(ctx, mirrorKey, uuid.New().String(), "A").Err(); err != nil {
		t.Fatalf("seed mirror: %v", err)
	}
	if err := rdb.Set(ctx, startKey, time.Now().Unix(), 0).Err(); err != nil {
		t.Fatalf("seed start: %v", err)
	}

	job, _ := json.Marshal(cleanupPayload{ExamID: examID, ParticipantID: participantID})
	if err := rdb.RPush(ctx, config.WorkerKey.MirrorCleanupQueue, job).Err(); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	workerCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		NewCleanupWorker(rdb, zerolog.Nop()).Start(workerCtx)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if !mr.Exists(mirrorKey) && !mr.Exists(startKey) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("worker did not stop on cancellation")
	}

	if mr.Exists(mirrorKey) {
		t.Errorf("answer mirror key survived cleanup")
	}
	if mr.Exists(startKey) {
		t.Errorf("start time key survived cleanup")
	}
}

func TestCleanupWorkerDrainsQueueOnShutdown(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)

	examID := uuid.New().String()
	startKey := config.CacheKey.AttemptStartKey(examID, 9)
	if err := rdb.Set(ctx, startKey, time.Now().Unix(), 0).Err(); err != nil {
		t.Fatalf("seed start: %v", err)
	}

	// Cancel before the worker starts: everything must be handled by drain.
	workerCtx, cancel := context.WithCancel(ctx)
	cancel()

	job, _ := json.Marshal(cleanupPayload{ExamID: examID, ParticipantID: 9})
	if err := rdb.RPush(ctx, config.WorkerKey.MirrorCleanupQueue, job).Err(); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		NewCleanupWorker(rdb, zerolog.Nop()).Start(workerCtx)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("worker did not stop")
	}

	if mr.Exists(startKey) {
		t.Errorf("start time key survived drain")
	}
	if n, _ := rdb.LLen(ctx, config.WorkerKey.MirrorCleanupQueue).Result(); n != 0 {
		t.Errorf("queue still has %d items after drain", n)
	}
}

func TestCleanupWorkerSkipsMalformedJobs(t *testing.T) {
	ctx := context.Background()
	_, rdb := newTestRedis(t)

	workerCtx, cancel := context.WithCancel(ctx)
	cancel()

	if err := rdb.RPush(ctx, config.WorkerKey.MirrorCleanupQueue, "{not json").Err(); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		NewCleanupWorker(rdb, zerolog.Nop()).Start(workerCtx)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("worker wedged on malformed job")
	}

	if n, _ := rdb.LLen(ctx, config.WorkerKey.MirrorCleanupQueue).Result(); n != 0 {
		t.Errorf("malformed job still queued: %d items", n)
	}
}
