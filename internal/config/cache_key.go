package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// UserLoginKey returns the cache key holding a user's active login JTI.
func (r *CacheKeyStruct) UserLoginKey(userID int) string {
	return fmt.Sprintf("login:%d", userID)
}

// AttemptStartKey returns the cache key for an attempt's start timestamp.
func (r *CacheKeyStruct) AttemptStartKey(testID string, userID int) string {
	return fmt.Sprintf("user:%d:test:%s:attempt_start", userID, testID)
}

// AttemptAnswersKey returns the cache key for a user's committed answers.
func (r *CacheKeyStruct) AttemptAnswersKey(testID string, userID int) string {
	return fmt.Sprintf("user:%d:test:%s:answers", userID, testID)
}

// TestPayloadKey returns the cache key for a test's player payload
// (questions without correct answers or explanations).
func (r *CacheKeyStruct) TestPayloadKey(testID string) string {
	return fmt.Sprintf("test:%s:payload", testID)
}

// TestQuestionSetKey returns the cache key for a test's full question set,
// including correct answers. Never sent to clients.
func (r *CacheKeyStruct) TestQuestionSetKey(testID string) string {
	return fmt.Sprintf("test:%s:question_set", testID)
}

// TestDurationKey returns the cache key for a test's duration in minutes.
func (r *CacheKeyStruct) TestDurationKey(testID string) string {
	return fmt.Sprintf("test:%s:duration", testID)
}

var CacheKey = NewCacheKeyStruct()
