package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/prepstack/prepstack-backend/internal/config"
	"github.com/prepstack/prepstack-backend/internal/model"
	"github.com/prepstack/prepstack-backend/internal/repository"
	"github.com/prepstack/prepstack-backend/internal/scoring"
)

// Attempt lifecycle errors.
var (
	ErrNoActiveAttempt  = errors.New("no active attempt")
	ErrAttemptCompleted = errors.New("attempt already completed")
)

const attemptCacheTTL = 24 * time.Hour

// AttemptService manages the attempt lifecycle around the live session:
// idempotent start, resume state, history, and abandonment.
type AttemptService struct {
	repo   *repository.AttemptRepository
	tests  *MockTestService
	rdb    *redis.Client
	logger zerolog.Logger
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(repo *repository.AttemptRepository, tests *MockTestService, rdb *redis.Client, logger zerolog.Logger) *AttemptService {
	return &AttemptService{
		repo:   repo,
		tests:  tests,
		rdb:    rdb,
		logger: logger.With().Str("component", "attempt_service").Logger(),
	}
}

// Start opens an attempt for the user on a test. Starting twice returns the
// same attempt; a completed attempt cannot be restarted.
func (s *AttemptService) Start(ctx context.Context, testID uuid.UUID, userID int) (*model.Attempt, error) {
	if _, err := s.tests.GetByID(ctx, testID); err != nil {
		return nil, err
	}

	attempt := &model.Attempt{
		TestID: testID,
		UserID: userID,
		Status: model.AttemptStatusInProgress,
	}
	err := s.repo.Create(ctx, attempt)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("create attempt: %w", err)
		}
		// Conflict path: the row already exists, reuse it.
		attempt, err = s.repo.GetByTestAndUser(ctx, testID, userID)
		if err != nil {
			return nil, fmt.Errorf("fetch existing attempt: %w", err)
		}
		if attempt.Status == model.AttemptStatusCompleted {
			return nil, ErrAttemptCompleted
		}
	}

	key := config.CacheKey.AttemptStartKey(testID.String(), userID)
	if err := s.rdb.Set(ctx, key, attempt.StartedAt.Unix(), attemptCacheTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Str("attempt_id", attempt.ID.String()).Msg("failed to cache attempt start")
	}

	return attempt, nil
}

// VerifyActive loads an attempt and checks it belongs to the user and is
// still in progress.
func (s *AttemptService) VerifyActive(ctx context.Context, attemptID uuid.UUID, userID int) (*model.Attempt, error) {
	attempt, err := s.repo.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoActiveAttempt
		}
		return nil, err
	}
	if attempt.UserID != userID {
		return nil, ErrNoActiveAttempt
	}
	if attempt.Status == model.AttemptStatusCompleted {
		return nil, ErrAttemptCompleted
	}
	if attempt.Status != model.AttemptStatusInProgress {
		return nil, ErrNoActiveAttempt
	}
	return attempt, nil
}

// GetState returns what a reloading client needs to resume: the committed
// answers mirrored in Redis and the authoritative remaining time, computed
// from the stored start timestamp rather than anything the client reports.
func (s *AttemptService) GetState(ctx context.Context, attemptID uuid.UUID, userID int) (*model.AttemptState, error) {
	attempt, err := s.VerifyActive(ctx, attemptID, userID)
	if err != nil {
		return nil, err
	}

	startedAt, err := s.resolveStart(ctx, attempt)
	if err != nil {
		return nil, err
	}

	minutes, err := s.tests.GetDurationMinutes(ctx, attempt.TestID)
	if err != nil {
		return nil, err
	}

	remaining := float64(minutes*60) - time.Since(startedAt).Seconds()
	if remaining < 0 {
		remaining = 0
	}

	answers, err := s.rdb.HGetAll(ctx, config.CacheKey.AttemptAnswersKey(attempt.TestID.String(), userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		s.logger.Warn().Err(err).Str("attempt_id", attemptID.String()).Msg("failed to read autosaved answers")
		answers = map[string]string{}
	}

	return &model.AttemptState{
		AttemptID:        attempt.ID,
		TestID:           attempt.TestID,
		UserID:           userID,
		SavedAnswers:     answers,
		RemainingSeconds: remaining,
	}, nil
}

// ResumeSeed returns what a rebuilt session engine needs to pick up an
// in-progress attempt: seconds already consumed since the stored start and
// the answers committed before the connection or process dropped.
func (s *AttemptService) ResumeSeed(ctx context.Context, attempt *model.Attempt) (int, scoring.AnswerMap, error) {
	startedAt, err := s.resolveStart(ctx, attempt)
	if err != nil {
		return 0, nil, err
	}

	elapsed := int(time.Since(startedAt).Seconds())
	if elapsed < 0 {
		elapsed = 0
	}

	raw, err := s.rdb.HGetAll(ctx, config.CacheKey.AttemptAnswersKey(attempt.TestID.String(), attempt.UserID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		s.logger.Warn().Err(err).Str("attempt_id", attempt.ID.String()).Msg("failed to read autosaved answers for resume")
		raw = map[string]string{}
	}

	answers := make(scoring.AnswerMap, len(raw))
	for field, val := range raw {
		idx, convErr := strconv.Atoi(field)
		if convErr != nil {
			continue
		}
		answers[idx] = val
	}

	return elapsed, answers, nil
}

// History returns a page of the user's past attempts plus the total count.
func (s *AttemptService) History(ctx context.Context, userID, page, perPage int) ([]model.Attempt, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	return s.repo.ListByUser(ctx, userID, perPage, (page-1)*perPage)
}

// Abandon marks an in-progress attempt abandoned and clears its Redis
// buffers. Completed attempts are untouched.
func (s *AttemptService) Abandon(ctx context.Context, attempt *model.Attempt) error {
	if err := s.repo.Abandon(ctx, attempt.ID); err != nil {
		return fmt.Errorf("abandon attempt: %w", err)
	}
	s.ClearBuffers(ctx, attempt.TestID, attempt.UserID)
	return nil
}

// ClearBuffers drops the attempt's Redis-side state after it ends.
func (s *AttemptService) ClearBuffers(ctx context.Context, testID uuid.UUID, userID int) {
	keys := []string{
		config.CacheKey.AttemptStartKey(testID.String(), userID),
		config.CacheKey.AttemptAnswersKey(testID.String(), userID),
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to clear attempt buffers")
	}
}

// resolveStart reads the start timestamp from Redis, self-healing the cache
// from the database row when the key has expired.
func (s *AttemptService) resolveStart(ctx context.Context, attempt *model.Attempt) (time.Time, error) {
	key := config.CacheKey.AttemptStartKey(attempt.TestID.String(), attempt.UserID)

	raw, err := s.rdb.Get(ctx, key).Result()
	if err == nil {
		if unix, convErr := strconv.ParseInt(raw, 10, 64); convErr == nil {
			return time.Unix(unix, 0), nil
		}
	} else if !errors.Is(err, redis.Nil) {
		s.logger.Warn().Err(err).Msg("attempt start cache read failed, using db value")
	}

	if err := s.rdb.Set(ctx, key, attempt.StartedAt.Unix(), attemptCacheTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to re-cache attempt start")
	}
	return attempt.StartedAt, nil
}
