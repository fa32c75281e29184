package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/provafacil/simulado-backend/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// CleanupWorker consumes the mirror cleanup queue and deletes the Redis keys
// that served a finished attempt: the answer mirror hash and the cached start
// time. The durable records stay; only the hot-path cache is reclaimed.
type CleanupWorker struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewCleanupWorker creates a new CleanupWorker.
func NewCleanupWorker(rdb *redis.Client, log zerolog.Logger) *CleanupWorker {
	return &CleanupWorker{
		rdb: rdb,
		log: log.With().Str("component", "cleanup_worker").Logger(),
	}
}

type cleanupPayload struct {
	ExamID        string `json:"exam_id"`
	ParticipantID int    `json:"participant_id"`
}

// Start begins the infinite worker loop. Call in a goroutine.
func (w *CleanupWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			// Drain remaining items before exit.
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *CleanupWorker) processNext(ctx context.Context) {
	// BLPop blocks until an item is available or timeout (1 second).
	result, err := w.rdb.BLPop(ctx, time.Second, config.WorkerKey.MirrorCleanupQueue).Result()
	if err != nil {
		if err != redis.Nil && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}

	if len(result) < 2 {
		return
	}
	w.handle(ctx, result[1])
}

func (w *CleanupWorker) handle(ctx context.Context, raw string) {
	var payload cleanupPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		w.log.Error().Err(err).Msg("Unmarshal error")
		return
	}

	keys := []string{
		config.CacheKey.AnswerMirrorKey(payload.ExamID, payload.ParticipantID),
		config.CacheKey.AttemptStartKey(payload.ExamID, payload.ParticipantID),
	}
	if err := w.rdb.Del(ctx, keys...).Err(); err != nil {
		w.log.Error().Err(err).
			Str("exam_id", payload.ExamID).
			Int("participant_id", payload.ParticipantID).
			Msg("Delete error, retrying in 5s")
		// Push back to queue for retry.
		w.rdb.RPush(ctx, config.WorkerKey.MirrorCleanupQueue, raw)
		time.Sleep(5 * time.Second)
		return
	}

	w.log.Debug().
		Str("exam_id", payload.ExamID).
		Int("participant_id", payload.ParticipantID).
		Msg("Attempt cache reclaimed")
}

// drain processes all remaining items in the queue before shutdown.
func (w *CleanupWorker) drain(ctx context.Context) {
	drained := 0
	for {
		raw, err := w.rdb.LPop(ctx, config.WorkerKey.MirrorCleanupQueue).Result()
		if err != nil {
			break
		}
		w.handle(ctx, raw)
		drained++
	}
	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained cleanup queue")
	}
}
