package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/horoquiz/horoquiz-backend/internal/store"
)

// EventLogWorker consumes the session events queue and appends answer
// events to the session_event_log audit table. The live answer path only
// enqueues; this worker is the sole writer of the log, so a slow audit
// insert never blocks a room.
type EventLogWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewEventLogWorker creates a new EventLogWorker.
func NewEventLogWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *EventLogWorker {
	return &EventLogWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "eventlog_worker").Logger(),
	}
}

// Start begins the infinite worker loop. Call in a goroutine.
func (w *EventLogWorker) Start(ctx context.Context) {
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

func (w *EventLogWorker) processNext(ctx context.Context) {
	// BLPop blocks until an item is available or timeout (1 second).
	result, err := w.rdb.BLPop(ctx, time.Second, store.SessionEventsQueue).Result()
	if err != nil {
		if err != redis.Nil && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}

	if len(result) < 2 {
		return
	}

	var rec store.AnswerRecord
	if err := json.Unmarshal([]byte(result[1]), &rec); err != nil {
		w.log.Error().Err(err).Msg("Unmarshal error")
		return
	}

	if err := w.appendEvent(ctx, &rec); err != nil {
		w.log.Error().Err(err).
			Int64("session_id", rec.SessionID).
			Str("question_id", rec.QuestionID).
			Msg("Append error, retrying in 5s")
		// Push back to queue for retry.
		w.rdb.RPush(ctx, store.SessionEventsQueue, result[1])
		time.Sleep(5 * time.Second)
	}
}

func (w *EventLogWorker) appendEvent(ctx context.Context, rec *store.AnswerRecord) error {
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return err
	}

	// Append-only; the attempt key makes replays harmless.
	_, err = w.pool.Exec(ctx,
		`INSERT INTO session_event_log (session_id, participant_id, question_id, attempt_no, verdict, payload, answered_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (session_id, participant_id, question_id, attempt_no) DO NOTHING`,
		rec.SessionID, rec.ParticipantID, rec.QuestionID, rec.AttemptNo, rec.Verdict, payload, rec.AnsweredAt,
	)
	return err
}

// drain processes all remaining items in the queue before shutdown.
func (w *EventLogWorker) drain(ctx context.Context) {
	drained := 0
	for {
		result, err := w.rdb.LPop(ctx, store.SessionEventsQueue).Result()
		if err != nil {
			break
		}

		var rec store.AnswerRecord
		if err := json.Unmarshal([]byte(result), &rec); err != nil {
			w.log.Error().Err(err).Msg("Drain unmarshal error")
			continue
		}

		if err := w.appendEvent(ctx, &rec); err != nil {
			w.log.Error().Err(err).Msg("Drain append error")
			w.rdb.RPush(ctx, store.SessionEventsQueue, result)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}
