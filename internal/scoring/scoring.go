package scoring

import (
	"math"
	"strings"
	"unicode"
)

// Difficulty classifies a question for analytics.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Question is the minimal view of a test item needed for grading.
// Options are ordered and labeled A/B/C/D by position; each option text is
// expected to carry its letter prefix (e.g. "A) Paris"). CorrectAnswer is the
// letter identifying the correct option by position, not by text.
type Question struct {
	Text          string     `json:"text"`
	Options       []string   `json:"options"`
	CorrectAnswer string     `json:"correct_answer"`
	Explanation   string     `json:"explanation"`
	Topic         string     `json:"topic"`
	Difficulty    Difficulty `json:"difficulty"`
}

// AnswerMap maps a zero-based question index to the full option text the
// user committed. Absent entries are skipped questions.
type AnswerMap map[int]string

// MarkingScheme holds the per-question credit and penalty values.
type MarkingScheme struct {
	MarksPerQuestion float64 `json:"marks_per_question"`
	NegativeMarking  float64 `json:"negative_marking"`
}

// DefaultMarkingScheme returns the standard +2 / -0.66 scheme.
func DefaultMarkingScheme() MarkingScheme {
	return MarkingScheme{MarksPerQuestion: 2, NegativeMarking: 0.66}
}

// TopicStat aggregates correctness for a single topic.
type TopicStat struct {
	Topic      string  `json:"topic"`
	Correct    int     `json:"correct"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

// Summary is the deterministic grading result for one attempt.
// Correct + Incorrect + Skipped always equals the question count.
type Summary struct {
	Correct        int         `json:"correct"`
	Incorrect      int         `json:"incorrect"`
	Skipped        int         `json:"skipped"`
	Score          float64     `json:"score"`
	Percentage     float64     `json:"percentage"`
	Accuracy       float64     `json:"accuracy"`
	TopicBreakdown []TopicStat `json:"topic_breakdown"`
}

// Grade scores an answer map against a question list. Pure function: no
// hidden state, safe to call from anywhere.
//
// Percentage is correct over all questions; Accuracy is correct over
// attempted questions only, 0 when nothing was attempted. Score is clamped
// at zero so penalties never drive it negative.
func Grade(questions []Question, answers AnswerMap, scheme MarkingScheme) Summary {
	var s Summary

	topicIndex := make(map[string]int)
	for i, q := range questions {
		topic := q.Topic
		if topic == "" {
			topic = "General"
		}
		ti, seen := topicIndex[topic]
		if !seen {
			ti = len(s.TopicBreakdown)
			topicIndex[topic] = ti
			s.TopicBreakdown = append(s.TopicBreakdown, TopicStat{Topic: topic})
		}
		s.TopicBreakdown[ti].Total++

		answer, answered := answers[i]
		if !answered {
			s.Skipped++
			continue
		}

		if IsCorrect(q, answer) {
			s.Correct++
			s.Score += scheme.MarksPerQuestion
			s.TopicBreakdown[ti].Correct++
		} else {
			s.Incorrect++
			s.Score -= scheme.NegativeMarking
		}
	}

	if s.Score < 0 {
		s.Score = 0
	}

	total := len(questions)
	if total > 0 {
		s.Percentage = Round1(float64(s.Correct) / float64(total) * 100)
	}
	if attempted := total - s.Skipped; attempted > 0 {
		s.Accuracy = Round1(float64(s.Correct) / float64(attempted) * 100)
	}

	for i := range s.TopicBreakdown {
		t := &s.TopicBreakdown[i]
		if t.Total > 0 {
			t.Percentage = Round1(float64(t.Correct) / float64(t.Total) * 100)
		}
	}

	return s
}

// IsCorrect judges a committed option text against the question's answer
// letter. The stored text carries its letter label as first character, so
// correctness is the uppercased first rune vs the uppercased answer letter.
// Any mismatch, including malformed text, counts as incorrect rather than
// an error.
func IsCorrect(q Question, answer string) bool {
	if answer == "" || q.CorrectAnswer == "" {
		return false
	}
	first := unicode.ToUpper([]rune(answer)[0])
	want := []rune(strings.ToUpper(q.CorrectAnswer))[0]
	return first == want
}

// Round1 rounds to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}
