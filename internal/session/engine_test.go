package session

import (
	"errors"
	"testing"
	"time"

	"github.com/prepstack/prepstack-backend/internal/scoring"
)

func questions(n int) []scoring.Question {
	qs := make([]scoring.Question, n)
	for i := range qs {
		qs[i] = scoring.Question{
			Text:          "prompt",
			Options:       []string{"A) one", "B) two", "C) three", "D) four"},
			CorrectAnswer: "A",
			Topic:         "General",
			Difficulty:    scoring.DifficultyMedium,
		}
	}
	return qs
}

// newIdleEngine builds an engine whose timer effectively never ticks, so
// navigation tests are not racing the countdown.
func newIdleEngine(t *testing.T, n int) *Engine {
	t.Helper()
	e, err := New(Config{
		Questions:       questions(n),
		DurationMinutes: 30,
		TickInterval:    time.Hour,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(e.Exit)
	return e
}

func mustSave(t *testing.T, e *Engine, option string) {
	t.Helper()
	if err := e.SelectOption(option); err != nil {
		t.Fatalf("SelectOption: %v", err)
	}
	if _, err := e.SaveAndNext(); err != nil {
		t.Fatalf("SaveAndNext: %v", err)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{DurationMinutes: 10}); !errors.Is(err, ErrNoQuestions) {
		t.Errorf("empty questions: err = %v, want ErrNoQuestions", err)
	}
	if _, err := New(Config{Questions: questions(1)}); !errors.Is(err, ErrBadDuration) {
		t.Errorf("zero duration: err = %v, want ErrBadDuration", err)
	}
}

func TestNew_InitialState(t *testing.T) {
	e := newIdleEngine(t, 3)
	snap := e.Snapshot()

	if snap.CurrentIndex != 0 {
		t.Errorf("CurrentIndex = %d, want 0", snap.CurrentIndex)
	}
	if snap.RemainingSeconds != 30*60 {
		t.Errorf("RemainingSeconds = %d, want %d", snap.RemainingSeconds, 30*60)
	}
	if snap.Statuses[0] != StatusNotAnswered {
		t.Errorf("question 0 status = %s, want not-answered (visible on mount)", snap.Statuses[0])
	}
	for i := 1; i < 3; i++ {
		if snap.Statuses[i] != StatusNotVisited {
			t.Errorf("question %d status = %s, want not-visited", i, snap.Statuses[i])
		}
	}
	if snap.Scheme != scoring.DefaultMarkingScheme() {
		t.Errorf("Scheme = %+v, want default", snap.Scheme)
	}
}

func TestNew_ResumesElapsedAndSavedAnswers(t *testing.T) {
	e, err := New(Config{
		Questions:       questions(3),
		DurationMinutes: 10,
		TickInterval:    time.Hour,
		ElapsedSeconds:  120,
		SavedAnswers: scoring.AnswerMap{
			0:  "A) one",
			2:  "B) two",
			9:  "C) out of range",
			-1: "D) negative",
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(e.Exit)

	snap := e.Snapshot()
	if snap.RemainingSeconds != 10*60-120 {
		t.Errorf("RemainingSeconds = %d, want %d (budget minus time already consumed)", snap.RemainingSeconds, 10*60-120)
	}
	if len(snap.Answers) != 2 {
		t.Errorf("Answers = %v, want the two in-range seeds", snap.Answers)
	}
	if snap.Answers[0] != "A) one" || snap.Answers[2] != "B) two" {
		t.Errorf("seeded answers lost: %v", snap.Answers)
	}
	if snap.Statuses[0] != StatusAnswered || snap.Statuses[2] != StatusAnswered {
		t.Errorf("seeded questions not marked answered: %v", snap.Statuses)
	}
	if snap.Statuses[1] != StatusNotVisited {
		t.Errorf("question 1 status = %s, want not-visited", snap.Statuses[1])
	}
}

func TestNew_ExhaustedBudgetTimesOutWithSeededAnswers(t *testing.T) {
	type submission struct {
		answers scoring.AnswerMap
		elapsed int
	}
	got := make(chan submission, 1)

	_, err := New(Config{
		Questions:       questions(2),
		DurationMinutes: 1,
		TickInterval:    time.Millisecond,
		ElapsedSeconds:  600, // well past the budget
		SavedAnswers:    scoring.AnswerMap{0: "A) one"},
		OnSubmit: func(a scoring.AnswerMap, elapsed int) {
			got <- submission{a, elapsed}
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	select {
	case sub := <-got:
		if sub.answers[0] != "A) one" {
			t.Errorf("answers = %v, want the seeded answer graded", sub.answers)
		}
		if sub.elapsed != 60 {
			t.Errorf("elapsed = %d, want 60 (full budget)", sub.elapsed)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("exhausted-budget session never timed out")
	}
}

func TestSaveAndNext_WithoutSelection(t *testing.T) {
	e := newIdleEngine(t, 5)
	if err := e.GoToQuestion(2); err != nil {
		t.Fatalf("GoToQuestion: %v", err)
	}
	before := e.Snapshot()

	_, err := e.SaveAndNext()
	if !errors.Is(err, ErrNoSelection) {
		t.Fatalf("err = %v, want ErrNoSelection", err)
	}

	after := e.Snapshot()
	if after.CurrentIndex != before.CurrentIndex {
		t.Errorf("CurrentIndex moved %d -> %d on failed save", before.CurrentIndex, after.CurrentIndex)
	}
	if after.Statuses[2] != before.Statuses[2] {
		t.Errorf("status regressed %s -> %s on failed save", before.Statuses[2], after.Statuses[2])
	}
}

func TestSaveAndNext_CommitsAndAdvances(t *testing.T) {
	e := newIdleEngine(t, 3)
	mustSave(t, e, "B) two")

	snap := e.Snapshot()
	if snap.CurrentIndex != 1 {
		t.Errorf("CurrentIndex = %d, want 1", snap.CurrentIndex)
	}
	if snap.Statuses[0] != StatusAnswered {
		t.Errorf("question 0 status = %s, want answered", snap.Statuses[0])
	}
	if snap.Statuses[1] != StatusNotAnswered {
		t.Errorf("question 1 status = %s, want not-answered after becoming visible", snap.Statuses[1])
	}
	if snap.Answers[0] != "B) two" {
		t.Errorf("Answers[0] = %q, want committed option text", snap.Answers[0])
	}
	if snap.Pending != "" {
		t.Errorf("Pending = %q, want cleared after commit", snap.Pending)
	}
}

func TestMarkForReview_StickyAcrossResave(t *testing.T) {
	e := newIdleEngine(t, 3)

	// Answer + mark question 0, come back and re-save it.
	if err := e.SelectOption("A) one"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.MarkForReviewAndNext(); err != nil {
		t.Fatal(err)
	}
	if got := e.Snapshot().Statuses[0]; got != StatusAnsweredMarked {
		t.Fatalf("status = %s, want answered-marked", got)
	}

	if err := e.GoToQuestion(0); err != nil {
		t.Fatal(err)
	}
	mustSave(t, e, "C) three")

	if got := e.Snapshot().Statuses[0]; got != StatusAnsweredMarked {
		t.Errorf("status after re-save = %s, want answered-marked (review is sticky)", got)
	}
}

func TestClearResponse_ReviewIntentSticky(t *testing.T) {
	e := newIdleEngine(t, 2)

	// Answer then mark question 0.
	if err := e.SelectOption("A) one"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.MarkForReviewAndNext(); err != nil {
		t.Fatal(err)
	}
	if err := e.GoToQuestion(0); err != nil {
		t.Fatal(err)
	}

	if err := e.ClearResponse(); err != nil {
		t.Fatal(err)
	}

	snap := e.Snapshot()
	if snap.Statuses[0] != StatusMarkedReview {
		t.Errorf("status after clear = %s, want marked-review (not not-answered)", snap.Statuses[0])
	}
	if _, ok := snap.Answers[0]; ok {
		t.Error("answer entry survived ClearResponse")
	}
	if snap.CurrentIndex != 0 {
		t.Errorf("ClearResponse moved CurrentIndex to %d", snap.CurrentIndex)
	}
}

func TestClearResponse_PlainAnswer(t *testing.T) {
	e := newIdleEngine(t, 2)
	mustSave(t, e, "A) one")
	if err := e.GoToQuestion(0); err != nil {
		t.Fatal(err)
	}

	if err := e.ClearResponse(); err != nil {
		t.Fatal(err)
	}
	if got := e.Snapshot().Statuses[0]; got != StatusNotAnswered {
		t.Errorf("status = %s, want not-answered", got)
	}
}

func TestMarkForReview_WithoutAnswerWarnsButAdvances(t *testing.T) {
	e := newIdleEngine(t, 3)

	warned, err := e.MarkForReviewAndNext()
	if err != nil {
		t.Fatal(err)
	}
	if !warned {
		t.Error("expected a warning for review-without-answer")
	}

	snap := e.Snapshot()
	if snap.Statuses[0] != StatusMarkedReview {
		t.Errorf("status = %s, want marked-review", snap.Statuses[0])
	}
	if snap.CurrentIndex != 1 {
		t.Errorf("CurrentIndex = %d, want 1", snap.CurrentIndex)
	}
}

func TestSkip_NeverUnanswers(t *testing.T) {
	e := newIdleEngine(t, 3)
	mustSave(t, e, "A) one")
	if err := e.GoToQuestion(0); err != nil {
		t.Fatal(err)
	}

	if err := e.Skip(); err != nil {
		t.Fatal(err)
	}

	snap := e.Snapshot()
	if snap.Statuses[0] != StatusAnswered {
		t.Errorf("status = %s, want answered untouched by skip", snap.Statuses[0])
	}
	if snap.CurrentIndex != 1 {
		t.Errorf("CurrentIndex = %d, want 1", snap.CurrentIndex)
	}
}

func TestSkip_WrapAroundFromLastIndex(t *testing.T) {
	e := newIdleEngine(t, 4)
	mustSave(t, e, "A) one") // q0 answered, now at q1
	if err := e.GoToQuestion(3); err != nil {
		t.Fatal(err)
	}

	if err := e.Skip(); err != nil {
		t.Fatal(err)
	}

	snap := e.Snapshot()
	if snap.CurrentIndex != 1 {
		t.Errorf("CurrentIndex = %d, want 1 (first open question)", snap.CurrentIndex)
	}
	if snap.Statuses[3] != StatusNotAnswered {
		t.Errorf("skipped last question status = %s, want not-answered", snap.Statuses[3])
	}
}

func TestSkip_LastIndexAllAnsweredStaysPut(t *testing.T) {
	e := newIdleEngine(t, 2)
	mustSave(t, e, "A) one")
	mustSave(t, e, "B) two") // answers last question, stays on index 1

	if err := e.Skip(); err != nil {
		t.Fatal(err)
	}
	if got := e.Snapshot().CurrentIndex; got != 1 {
		t.Errorf("CurrentIndex = %d, want 1 (nowhere open to go)", got)
	}
}

func TestGoToQuestion_DiscardsPending(t *testing.T) {
	e := newIdleEngine(t, 3)
	if err := e.SelectOption("D) four"); err != nil {
		t.Fatal(err)
	}

	if err := e.GoToQuestion(2); err != nil {
		t.Fatal(err)
	}

	snap := e.Snapshot()
	if snap.Pending != "" {
		t.Errorf("Pending = %q, want discarded on palette jump", snap.Pending)
	}
	if len(snap.Answers) != 0 {
		t.Errorf("Answers = %v, want empty (jump never commits)", snap.Answers)
	}
	if snap.Statuses[2] != StatusNotAnswered {
		t.Errorf("target status = %s, want not-answered", snap.Statuses[2])
	}
}

func TestGoToQuestion_OutOfRange(t *testing.T) {
	e := newIdleEngine(t, 3)
	if err := e.GoToQuestion(3); !errors.Is(err, ErrIndexRange) {
		t.Errorf("err = %v, want ErrIndexRange", err)
	}
	if err := e.GoToQuestion(-1); !errors.Is(err, ErrIndexRange) {
		t.Errorf("err = %v, want ErrIndexRange", err)
	}
}

func TestSaveAndNext_LastIndexReportsAllAnswered(t *testing.T) {
	e := newIdleEngine(t, 2)
	mustSave(t, e, "A) one")

	if err := e.SelectOption("B) two"); err != nil {
		t.Fatal(err)
	}
	allAnswered, err := e.SaveAndNext()
	if err != nil {
		t.Fatal(err)
	}
	if !allAnswered {
		t.Error("expected all-answered signal on last question save")
	}
	if got := e.Snapshot().CurrentIndex; got != 1 {
		t.Errorf("CurrentIndex = %d, want to stay on last index", got)
	}
}

func TestSaveAndNext_LastIndexPartialNotAllAnswered(t *testing.T) {
	e := newIdleEngine(t, 3)
	if err := e.GoToQuestion(2); err != nil {
		t.Fatal(err)
	}
	if err := e.SelectOption("A) one"); err != nil {
		t.Fatal(err)
	}

	allAnswered, err := e.SaveAndNext()
	if err != nil {
		t.Fatal(err)
	}
	if allAnswered {
		t.Error("all-answered signal fired with open questions remaining")
	}
}

func TestSubmit_ExactlyOnce(t *testing.T) {
	submits := 0
	e, err := New(Config{
		Questions:       questions(2),
		DurationMinutes: 30,
		TickInterval:    time.Hour,
		OnSubmit:        func(scoring.AnswerMap, int) { submits++ },
	})
	if err != nil {
		t.Fatal(err)
	}

	e.Submit(SubmitManual)
	e.Submit(SubmitManual)
	e.Submit(SubmitTimeout)

	if submits != 1 {
		t.Errorf("OnSubmit fired %d times, want exactly 1", submits)
	}
	if got := e.EndReason(); got != SubmitManual {
		t.Errorf("EndReason = %s, want manual (first path wins)", got)
	}
	if err := e.SelectOption("A) one"); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("post-submit SelectOption err = %v, want ErrSessionClosed", err)
	}
}

func TestSubmit_TickAfterManualSubmitDoesNotRefire(t *testing.T) {
	type submission struct {
		answers scoring.AnswerMap
		elapsed int
	}
	got := make(chan submission, 2)

	e, err := New(Config{
		Questions:       questions(1),
		DurationMinutes: 1,
		TickInterval:    5 * time.Millisecond,
		OnSubmit: func(a scoring.AnswerMap, elapsed int) {
			got <- submission{a, elapsed}
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	e.Submit(SubmitManual)
	<-got

	// Give the (stopped) ticker plenty of chances to misfire.
	select {
	case <-got:
		t.Fatal("OnSubmit fired a second time after manual submit")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTimeout_AutoSubmitsOnce(t *testing.T) {
	type submission struct {
		answers scoring.AnswerMap
		elapsed int
	}
	got := make(chan submission, 2)

	_, err := New(Config{
		Questions:       questions(3),
		DurationMinutes: 1, // 60 ticks
		TickInterval:    time.Millisecond,
		OnSubmit: func(a scoring.AnswerMap, elapsed int) {
			got <- submission{a, elapsed}
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	select {
	case sub := <-got:
		if len(sub.answers) != 0 {
			t.Errorf("answers = %v, want empty map on untouched timeout", sub.answers)
		}
		if sub.elapsed != 60 {
			t.Errorf("elapsed = %d, want 60 (full budget)", sub.elapsed)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout submission never fired")
	}

	select {
	case <-got:
		t.Fatal("timeout submission fired twice")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestExit_StopsTimerWithoutSubmitting(t *testing.T) {
	submitted := make(chan struct{}, 1)
	exited := 0

	e, err := New(Config{
		Questions:       questions(1),
		DurationMinutes: 1,
		TickInterval:    time.Millisecond,
		OnSubmit:        func(scoring.AnswerMap, int) { submitted <- struct{}{} },
		OnExit:          func() { exited++ },
	})
	if err != nil {
		t.Fatal(err)
	}

	e.Exit()
	e.Exit() // second exit is a no-op

	select {
	case <-submitted:
		t.Fatal("OnSubmit fired after Exit")
	case <-time.After(100 * time.Millisecond):
	}
	if exited != 1 {
		t.Errorf("OnExit fired %d times, want 1", exited)
	}
}

func TestStatusCounts(t *testing.T) {
	e := newIdleEngine(t, 5)
	mustSave(t, e, "A) one") // q0 answered
	if err := e.SelectOption("B) two"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.MarkForReviewAndNext(); err != nil { // q1 answered-marked
		t.Fatal(err)
	}
	if _, err := e.MarkForReviewAndNext(); err != nil { // q2 marked-review
		t.Fatal(err)
	}
	// q3 now visible (not-answered), q4 untouched (not-visited).

	c := e.StatusCounts()
	want := StatusCounts{NotVisited: 1, NotAnswered: 1, Answered: 1, MarkedReview: 1, AnsweredMarked: 1}
	if c != want {
		t.Errorf("counts = %+v, want %+v", c, want)
	}
	if c.Attempted() != 2 {
		t.Errorf("Attempted() = %d, want 2 (answered + answered-marked)", c.Attempted())
	}
}

func TestSubmit_FreezesAnswerSnapshot(t *testing.T) {
	var frozen scoring.AnswerMap
	e, err := New(Config{
		Questions:       questions(2),
		DurationMinutes: 10,
		TickInterval:    time.Hour,
		OnSubmit:        func(a scoring.AnswerMap, _ int) { frozen = a },
	})
	if err != nil {
		t.Fatal(err)
	}

	mustSave(t, e, "A) one")
	e.Submit(SubmitManual)

	if len(frozen) != 1 || frozen[0] != "A) one" {
		t.Fatalf("frozen answers = %v, want {0: A) one}", frozen)
	}
}
