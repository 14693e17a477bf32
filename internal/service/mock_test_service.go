package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/prepstack/prepstack-backend/internal/config"
	"github.com/prepstack/prepstack-backend/internal/model"
	"github.com/prepstack/prepstack-backend/internal/repository"
	"github.com/prepstack/prepstack-backend/internal/scoring"
)

// Test errors.
var (
	// ErrTestNotFound is returned when a test id resolves to nothing.
	ErrTestNotFound = errors.New("test not found")
	// ErrBadAnswerLetter is returned when a question's answer key letter
	// cannot address any of its options.
	ErrBadAnswerLetter = errors.New("answer letter outside option range")
)

const testCacheTTL = 24 * time.Hour

// MockTestService manages test registration, listing, and the Redis-side
// caches the attempt path reads from.
type MockTestService struct {
	cfg    *config.Config
	repo   *repository.MockTestRepository
	rdb    *redis.Client
	logger zerolog.Logger
}

// NewMockTestService creates a new MockTestService.
func NewMockTestService(cfg *config.Config, repo *repository.MockTestRepository, rdb *redis.Client, logger zerolog.Logger) *MockTestService {
	return &MockTestService{
		cfg:    cfg,
		repo:   repo,
		rdb:    rdb,
		logger: logger.With().Str("component", "mock_test_service").Logger(),
	}
}

// Create registers a generated test and its question set, then warms the
// Redis caches so the first attempt does not hit Postgres.
func (s *MockTestService) Create(ctx context.Context, ownerID int, req *model.CreateTestRequest) (*model.MockTest, error) {
	marks := s.cfg.DefaultMarks
	if req.MarksPerQuestion != nil {
		marks = *req.MarksPerQuestion
	}
	penalty := s.cfg.DefaultPenalty
	if req.NegativeMarking != nil {
		penalty = *req.NegativeMarking
	}

	test := &model.MockTest{
		OwnerID:          ownerID,
		Title:            req.Title,
		Subject:          req.Subject,
		DurationMinutes:  req.DurationMinutes,
		MarksPerQuestion: marks,
		NegativeMarking:  penalty,
	}

	questions := make([]model.Question, len(req.Questions))
	for i, q := range req.Questions {
		// Option texts carry their own letter labels and are trusted, but
		// the key letter must at least address one of the options.
		letter := unicode.ToUpper([]rune(q.CorrectAnswer)[0])
		if idx := int(letter - 'A'); idx < 0 || idx >= len(q.Options) {
			return nil, fmt.Errorf("question %d: %w", i, ErrBadAnswerLetter)
		}
		questions[i] = model.Question{
			Text:          q.Text,
			Options:       q.Options,
			CorrectAnswer: q.CorrectAnswer,
			Explanation:   q.Explanation,
			Topic:         q.Topic,
			Difficulty:    scoring.Difficulty(q.Difficulty),
		}
	}

	if err := s.repo.Create(ctx, test, questions); err != nil {
		return nil, fmt.Errorf("create test: %w", err)
	}

	s.warmCaches(ctx, test, questions)

	return test, nil
}

// GetByID retrieves a single test.
func (s *MockTestService) GetByID(ctx context.Context, id uuid.UUID) (*model.MockTest, error) {
	test, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTestNotFound
		}
		return nil, err
	}
	return test, nil
}

// List returns a page of the user's tests plus the total count.
func (s *MockTestService) List(ctx context.Context, ownerID, page, perPage int) ([]model.MockTest, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	return s.repo.ListByOwner(ctx, ownerID, perPage, (page-1)*perPage)
}

// Delete removes a test owned by the user. Returns ErrTestNotFound when the
// id does not exist or belongs to someone else.
func (s *MockTestService) Delete(ctx context.Context, id uuid.UUID, ownerID int) error {
	deleted, err := s.repo.Delete(ctx, id, ownerID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrTestNotFound
	}

	keys := []string{
		config.CacheKey.TestPayloadKey(id.String()),
		config.CacheKey.TestQuestionSetKey(id.String()),
		config.CacheKey.TestDurationKey(id.String()),
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		s.logger.Warn().Err(err).Str("test_id", id.String()).Msg("failed to evict test caches")
	}
	return nil
}

// GetQuestionSet returns the full question set, answers included, for
// grading. Reads the Redis cache first and falls back to Postgres.
func (s *MockTestService) GetQuestionSet(ctx context.Context, testID uuid.UUID) ([]scoring.Question, error) {
	key := config.CacheKey.TestQuestionSetKey(testID.String())

	raw, err := s.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var cached []scoring.Question
		if err := json.Unmarshal(raw, &cached); err == nil && len(cached) > 0 {
			return cached, nil
		}
		s.logger.Warn().Str("test_id", testID.String()).Msg("corrupt question set cache, refetching")
	} else if !errors.Is(err, redis.Nil) {
		s.logger.Warn().Err(err).Msg("question set cache read failed, falling back to db")
	}

	stored, err := s.repo.ListQuestions(ctx, testID)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	if len(stored) == 0 {
		return nil, ErrTestNotFound
	}

	set := make([]scoring.Question, len(stored))
	for i, q := range stored {
		set[i] = q.ToScoring()
	}

	if encoded, err := json.Marshal(set); err == nil {
		if err := s.rdb.Set(ctx, key, encoded, testCacheTTL).Err(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to refresh question set cache")
		}
	}

	return set, nil
}

// GetPlayerPayload returns the answer-free bundle a client renders during an
// attempt. Cache-first with a Postgres fallback.
func (s *MockTestService) GetPlayerPayload(ctx context.Context, testID uuid.UUID) (*model.TestPayload, error) {
	key := config.CacheKey.TestPayloadKey(testID.String())

	raw, err := s.rdb.Get(ctx, key).Bytes()
	if err == nil {
		payload := &model.TestPayload{}
		if err := json.Unmarshal(raw, payload); err == nil && len(payload.Questions) > 0 {
			return payload, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		s.logger.Warn().Err(err).Msg("payload cache read failed, falling back to db")
	}

	test, err := s.GetByID(ctx, testID)
	if err != nil {
		return nil, err
	}
	stored, err := s.repo.ListQuestions(ctx, testID)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}

	payload := buildPlayerPayload(test, stored)
	if encoded, err := json.Marshal(payload); err == nil {
		if err := s.rdb.Set(ctx, key, encoded, testCacheTTL).Err(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to refresh payload cache")
		}
	}

	return payload, nil
}

// GetDurationMinutes resolves a test's duration, cache-first.
func (s *MockTestService) GetDurationMinutes(ctx context.Context, testID uuid.UUID) (int, error) {
	key := config.CacheKey.TestDurationKey(testID.String())

	raw, err := s.rdb.Get(ctx, key).Result()
	if err == nil {
		if minutes, convErr := strconv.Atoi(raw); convErr == nil && minutes > 0 {
			return minutes, nil
		}
	}

	test, err := s.GetByID(ctx, testID)
	if err != nil {
		return 0, err
	}
	if err := s.rdb.Set(ctx, key, test.DurationMinutes, testCacheTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to refresh duration cache")
	}
	return test.DurationMinutes, nil
}

func (s *MockTestService) warmCaches(ctx context.Context, test *model.MockTest, questions []model.Question) {
	id := test.ID.String()

	set := make([]scoring.Question, len(questions))
	for i, q := range questions {
		set[i] = q.ToScoring()
	}

	if encoded, err := json.Marshal(set); err == nil {
		if err := s.rdb.Set(ctx, config.CacheKey.TestQuestionSetKey(id), encoded, testCacheTTL).Err(); err != nil {
			s.logger.Warn().Err(err).Str("test_id", id).Msg("failed to warm question set cache")
		}
	}

	payload := buildPlayerPayload(test, questions)
	if encoded, err := json.Marshal(payload); err == nil {
		if err := s.rdb.Set(ctx, config.CacheKey.TestPayloadKey(id), encoded, testCacheTTL).Err(); err != nil {
			s.logger.Warn().Err(err).Str("test_id", id).Msg("failed to warm payload cache")
		}
	}

	if err := s.rdb.Set(ctx, config.CacheKey.TestDurationKey(id), test.DurationMinutes, testCacheTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Str("test_id", id).Msg("failed to warm duration cache")
	}
}

func buildPlayerPayload(test *model.MockTest, questions []model.Question) *model.TestPayload {
	view := make([]model.QuestionForPlayer, len(questions))
	for i, q := range questions {
		view[i] = model.QuestionForPlayer{
			ID:       q.ID,
			Text:     q.Text,
			Options:  q.Options,
			Topic:    q.Topic,
			OrderNum: q.OrderNum,
		}
	}
	return &model.TestPayload{
		TestID:          test.ID,
		Title:           test.Title,
		DurationMinutes: test.DurationMinutes,
		Scheme:          test.Scheme(),
		Questions:       view,
	}
}
