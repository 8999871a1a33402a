package clock

import (
	"testing"
	"time"
)

func TestManual_Now(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewManual(start)

	if !c.Now().Equal(start) {
		t.Errorf("Now() = %v, want %v", c.Now(), start)
	}

	c.Advance(90 * time.Second)
	if got := c.Now(); !got.Equal(start.Add(90 * time.Second)) {
		t.Errorf("Now() after advance = %v", got)
	}
}

func TestManual_After(t *testing.T) {
	c := NewManual(time.Unix(0, 0))

	ch := c.After(10 * time.Second)

	c.Advance(5 * time.Second)
	select {
	case <-ch:
		t.Fatal("timer fired early")
	default:
	}

	c.Advance(5 * time.Second)
	select {
	case <-ch:
	default:
		t.Fatal("timer did not fire at deadline")
	}
}

func TestManual_After_MultipleTimers(t *testing.T) {
	c := NewManual(time.Unix(0, 0))

	early := c.After(1 * time.Second)
	late := c.After(30 * time.Second)

	c.Advance(2 * time.Second)
	select {
	case <-early:
	default:
		t.Fatal("early timer did not fire")
	}
	select {
	case <-late:
		t.Fatal("late timer fired early")
	default:
	}

	c.Advance(28 * time.Second)
	select {
	case <-late:
	default:
		t.Fatal("late timer did not fire")
	}
}

func TestReal_After(t *testing.T) {
	c := NewReal()
	select {
	case <-c.After(time.Millisecond):
	case <-time.After(time.Second):
		t.Fatal("real clock timer did not fire")
	}
}
