package session

import (
	"testing"
	"time"
)

func TestRegistry_GetOrCreateSharesEngine(t *testing.T) {
	r := NewRegistry()
	factory := func() (*Engine, error) {
		return New(Config{
			Questions:       questions(1),
			DurationMinutes: 10,
			TickInterval:    time.Hour,
		})
	}

	first, err := r.GetOrCreate("attempt-1", factory)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(first.Exit)

	second, err := r.GetOrCreate("attempt-1", factory)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("second connection got a fresh engine instead of the live one")
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}
}

func TestRegistry_Remove(t *testing.T) {
	r := NewRegistry()
	e, err := r.GetOrCreate("attempt-1", func() (*Engine, error) {
		return New(Config{
			Questions:       questions(1),
			DurationMinutes: 10,
			TickInterval:    time.Hour,
		})
	})
	if err != nil {
		t.Fatal(err)
	}
	e.Exit()
	r.Remove("attempt-1")

	if _, ok := r.Get("attempt-1"); ok {
		t.Error("engine still present after Remove")
	}
}
