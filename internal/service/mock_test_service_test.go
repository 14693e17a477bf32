package service

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/prepstack/prepstack-backend/internal/config"
	"github.com/prepstack/prepstack-backend/internal/model"
)

func TestMockTestService_CreateRejectsUnaddressableAnswerLetter(t *testing.T) {
	cfg := &config.Config{DefaultMarks: 2, DefaultPenalty: 0.66}
	// The key-letter check runs before any storage access.
	svc := NewMockTestService(cfg, nil, nil, zerolog.Nop())

	cases := []struct {
		name    string
		letter  string
		options []string
	}{
		{"letter past option count", "E", []string{"A) 1", "B) 2", "C) 3", "D) 4"}},
		{"letter far out of range", "Z", []string{"A) 1", "B) 2"}},
		{"non-letter key", "1", []string{"A) 1", "B) 2"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := &model.CreateTestRequest{
				Title:           "Broken key test",
				DurationMinutes: 10,
				Questions: []model.AddQuestionRequest{
					{
						Text:          "prompt",
						Options:       tc.options,
						CorrectAnswer: tc.letter,
					},
				},
			}
			if _, err := svc.Create(context.Background(), 1, req); !errors.Is(err, ErrBadAnswerLetter) {
				t.Errorf("got %v, want ErrBadAnswerLetter", err)
			}
		})
	}
}
