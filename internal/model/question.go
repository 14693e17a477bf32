package model

import (
	"github.com/google/uuid"

	"github.com/prepstack/prepstack-backend/internal/scoring"
)

// Question is the stored form of a generated test item.
type Question struct {
	ID            uuid.UUID          `json:"id"`
	TestID        uuid.UUID          `json:"test_id"`
	Text          string             `json:"text"`
	Options       []string           `json:"options"`
	CorrectAnswer string             `json:"correct_answer"`
	Explanation   string             `json:"explanation"`
	Topic         string             `json:"topic"`
	Difficulty    scoring.Difficulty `json:"difficulty"`
	OrderNum      int                `json:"order_num"`
}

// ToScoring converts to the minimal view the grading and session engines use.
func (q Question) ToScoring() scoring.Question {
	return scoring.Question{
		Text:          q.Text,
		Options:       q.Options,
		CorrectAnswer: q.CorrectAnswer,
		Explanation:   q.Explanation,
		Topic:         q.Topic,
		Difficulty:    q.Difficulty,
	}
}

// QuestionForPlayer is a question stripped of the correct answer and
// explanation, safe to send before submission.
type QuestionForPlayer struct {
	ID       uuid.UUID `json:"id"`
	Text     string    `json:"text"`
	Options  []string  `json:"options"`
	Topic    string    `json:"topic"`
	OrderNum int       `json:"order_num"`
}

// AddQuestionRequest is one generated item inside a test creation payload.
// Option texts are expected to carry their letter labels ("A) …"); the
// generator upstream guarantees this and ingestion trusts it.
type AddQuestionRequest struct {
	Text          string   `json:"text" binding:"required,min=1,max=2000"`
	Options       []string `json:"options" binding:"required,min=1,max=8,dive,min=1"`
	CorrectAnswer string   `json:"correct_answer" binding:"required,len=1"`
	Explanation   string   `json:"explanation" binding:"max=4000"`
	Topic         string   `json:"topic" binding:"max=120"`
	Difficulty    string   `json:"difficulty" binding:"omitempty,oneof=easy medium hard"`
}
