package entities

import (
	"testing"
	"time"
)

func TestParseCallTime(t *testing.T) {
	valid := []string{"00:00", "07:00", "19:30", "23:59"}
	for _, s := range valid {
		got, err := ParseCallTime(s)
		if err != nil {
			t.Errorf("ParseCallTime(%q) returned error: %v", s, err)
		}
		if string(got) != s {
			t.Errorf("ParseCallTime(%q) = %q", s, got)
		}
	}

	invalid := []string{"", "7:00", "24:00", "12:60", "12-30", "noon", "12:3a"}
	for _, s := range invalid {
		if _, err := ParseCallTime(s); err == nil {
			t.Errorf("ParseCallTime(%q) expected error", s)
		}
	}
}

func TestNextOccurrenceSameDay(t *testing.T) {
	now := time.Date(2025, 7, 14, 6, 0, 0, 0, time.UTC)
	ct, _ := ParseCallTime("07:00")

	next := ct.NextOccurrence(now)
	want := time.Date(2025, 7, 14, 7, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("NextOccurrence = %v, want %v", next, want)
	}
}

func TestNextOccurrenceRollsToTomorrow(t *testing.T) {
	now := time.Date(2025, 7, 14, 8, 30, 0, 0, time.UTC)
	ct, _ := ParseCallTime("07:00")

	next := ct.NextOccurrence(now)
	want := time.Date(2025, 7, 15, 7, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("NextOccurrence = %v, want %v", next, want)
	}

	// Exactly at the call time counts as passed.
	atTime := time.Date(2025, 7, 14, 7, 0, 0, 0, time.UTC)
	next = ct.NextOccurrence(atTime)
	if !next.Equal(want) {
		t.Errorf("NextOccurrence at boundary = %v, want %v", next, want)
	}
}
