package util

import "testing"

func TestFakeClockAdvances(t *testing.T) {
	c := NewFakeClock()
	start := c.Now()
	c.Advance(5)
	if !c.Now().After(start) {
		t.Fatalf("expected Now() to have advanced past %v, got %v", start, c.Now())
	}
}

func TestFakeClockAfterDoesNotBlock(t *testing.T) {
	c := NewFakeClock()
	select {
	case <-c.After(1):
	default:
		t.Fatalf("FakeClock.After should return an already-fired channel")
	}
}
