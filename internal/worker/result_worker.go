package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/prepstack/prepstack-backend/internal/config"
	"github.com/prepstack/prepstack-backend/internal/scoring"
)

const (
	ResultBatchSize    = 50
	ResultBatchTimeout = 2 * time.Second
	ResultPollTimeout  = 1 * time.Second
)

// ResultPayload is one graded attempt queued for persistence.
type ResultPayload struct {
	AttemptID      uuid.UUID           `json:"attempt_id"`
	TestID         uuid.UUID           `json:"test_id"`
	UserID         int                 `json:"user_id"`
	Score          float64             `json:"score"`
	Correct        int                 `json:"correct"`
	Incorrect      int                 `json:"incorrect"`
	Skipped        int                 `json:"skipped"`
	Percentage     float64             `json:"percentage"`
	Accuracy       float64             `json:"accuracy"`
	ElapsedSeconds int                 `json:"elapsed_seconds"`
	TopicBreakdown []scoring.TopicStat `json:"topic_breakdown"`
}

// resultStore abstracts the persistence target so the queue loop can be
// exercised without a database.
type resultStore interface {
	BulkComplete(ctx context.Context, batch []*ResultPayload) error
	CompleteSingle(ctx context.Context, p *ResultPayload) error
}

// ResultWorker drains the persist queue and writes graded summaries to the
// attempts table in batches.
type ResultWorker struct {
	store resultStore
	rdb   *redis.Client
	log   zerolog.Logger
}

// NewResultWorker creates a worker backed by Postgres.
func NewResultWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *ResultWorker {
	return newResultWorker(&pgResultStore{pool: pool}, rdb, log)
}

func newResultWorker(store resultStore, rdb *redis.Client, log zerolog.Logger) *ResultWorker {
	return &ResultWorker{
		store: store,
		rdb:   rdb,
		log:   log.With().Str("component", "result_worker").Logger(),
	}
}

// Start runs the drain loop until ctx is cancelled. Items accumulate into a
// batch that flushes on size or age; a final flush runs on shutdown.
func (w *ResultWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ResultWorker started")

	batch := make([]*ResultPayload, 0, ResultBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= ResultBatchSize || time.Since(lastFlush) >= ResultBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			return

		default:
			item, err := w.rdb.BLPop(ctx, ResultPollTimeout, config.WorkerKey.PersistResultsQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var p ResultPayload
			if err := json.Unmarshal([]byte(item[1]), &p); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}

			batch = append(batch, &p)
		}
	}
}

// flushSafe persists a batch, falling back to per-row writes when the bulk
// path fails. Rows that still fail are requeued rather than dropped.
func (w *ResultWorker) flushSafe(ctx context.Context, batch []*ResultPayload) {
	if len(batch) == 0 {
		return
	}

	if err := w.store.BulkComplete(ctx, batch); err != nil {
		w.log.Warn().Err(err).Msg("bulk result update failed, using fallback")

		for _, p := range batch {
			if err := w.store.CompleteSingle(ctx, p); err != nil {
				w.log.Error().Err(err).Msg("single result update failed, requeueing")
				raw, _ := json.Marshal(p)
				w.rdb.RPush(ctx, config.WorkerKey.PersistResultsQueue, raw)
				continue
			}
			w.clearAnswerBuffer(ctx, p)
		}
		return
	}

	// Results are durable, the autosave buffers can go.
	w.bulkClearAnswerBuffers(ctx, batch)
}

func (w *ResultWorker) bulkClearAnswerBuffers(ctx context.Context, batch []*ResultPayload) {
	pipe := w.rdb.Pipeline()
	for _, p := range batch {
		pipe.Del(ctx,
			config.CacheKey.AttemptAnswersKey(p.TestID.String(), p.UserID),
			config.CacheKey.AttemptStartKey(p.TestID.String(), p.UserID),
		)
	}
	_, _ = pipe.Exec(ctx)
}

func (w *ResultWorker) clearAnswerBuffer(ctx context.Context, p *ResultPayload) {
	_ = w.rdb.Del(ctx,
		config.CacheKey.AttemptAnswersKey(p.TestID.String(), p.UserID),
		config.CacheKey.AttemptStartKey(p.TestID.String(), p.UserID),
	).Err()
}

// pgResultStore writes graded summaries to the attempts table.
type pgResultStore struct {
	pool *pgxpool.Pool
}

// BulkComplete updates a whole batch in one statement via UNNEST.
func (s *pgResultStore) BulkComplete(ctx context.Context, batch []*ResultPayload) error {
	n := len(batch)

	ids := make([]uuid.UUID, 0, n)
	scores := make([]float64, 0, n)
	corrects := make([]int, 0, n)
	incorrects := make([]int, 0, n)
	skippeds := make([]int, 0, n)
	percentages := make([]float64, 0, n)
	accuracies := make([]float64, 0, n)
	elapsed := make([]int, 0, n)
	breakdowns := make([]string, 0, n)
	finishedAts := make([]time.Time, 0, n)

	now := time.Now()
	for _, p := range batch {
		breakdown, err := json.Marshal(p.TopicBreakdown)
		if err != nil {
			return err
		}
		ids = append(ids, p.AttemptID)
		scores = append(scores, p.Score)
		corrects = append(corrects, p.Correct)
		incorrects = append(incorrects, p.Incorrect)
		skippeds = append(skippeds, p.Skipped)
		percentages = append(percentages, p.Percentage)
		accuracies = append(accuracies, p.Accuracy)
		elapsed = append(elapsed, p.ElapsedSeconds)
		breakdowns = append(breakdowns, string(breakdown))
		finishedAts = append(finishedAts, now)
	}

	query := `
		UPDATE attempts AS a
		SET status = 'COMPLETED',
		    score = t.score,
		    correct = t.correct,
		    incorrect = t.incorrect,
		    skipped = t.skipped,
		    percentage = t.percentage,
		    accuracy = t.accuracy,
		    elapsed_seconds = t.elapsed_seconds,
		    topic_breakdown = t.topic_breakdown::jsonb,
		    finished_at = t.finished_at
		FROM (
			SELECT
				u.id,
				u.score,
				u.correct,
				u.incorrect,
				u.skipped,
				u.percentage,
				u.accuracy,
				u.elapsed_seconds,
				u.topic_breakdown,
				u.finished_at
			FROM UNNEST(
				$1::uuid[],
				$2::float8[],
				$3::int[],
				$4::int[],
				$5::int[],
				$6::float8[],
				$7::float8[],
				$8::int[],
				$9::text[],
				$10::timestamptz[]
			) AS u (id, score, correct, incorrect, skipped, percentage, accuracy, elapsed_seconds, topic_breakdown, finished_at)
		) AS t
		WHERE a.id = t.id
	`

	_, err := s.pool.Exec(ctx, query,
		ids, scores, corrects, incorrects, skippeds, percentages, accuracies, elapsed, breakdowns, finishedAts)
	return err
}

// CompleteSingle is the per-row fallback.
func (s *pgResultStore) CompleteSingle(ctx context.Context, p *ResultPayload) error {
	breakdown, err := json.Marshal(p.TopicBreakdown)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`UPDATE attempts
		 SET status = 'COMPLETED',
		     score = $1,
		     correct = $2,
		     incorrect = $3,
		     skipped = $4,
		     percentage = $5,
		     accuracy = $6,
		     elapsed_seconds = $7,
		     topic_breakdown = $8,
		     finished_at = NOW()
		 WHERE id = $9`,
		p.Score, p.Correct, p.Incorrect, p.Skipped, p.Percentage, p.Accuracy, p.ElapsedSeconds, breakdown, p.AttemptID,
	)
	return err
}
