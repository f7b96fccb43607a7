package schedule

import (
	"errors"
	"testing"
	"time"
)

func TestParseRepeat(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		kind RepeatKind
	}{
		{raw: "", kind: RepeatNone},
		{raw: "none", kind: RepeatNone},
		{raw: "None", kind: RepeatNone},
		{raw: "daily", kind: RepeatDaily},
		{raw: "WEEKLY", kind: RepeatWeekly},
		{raw: " monthly ", kind: RepeatMonthly},
	}
	for _, tt := range tests {
		got, err := ParseRepeat(tt.raw)
		if err != nil {
			t.Fatalf("ParseRepeat(%q) error: %v", tt.raw, err)
		}
		if got.Kind != tt.kind {
			t.Fatalf("ParseRepeat(%q).Kind = %v, want %v", tt.raw, got.Kind, tt.kind)
		}
	}
}

func TestParseRepeatInvalid(t *testing.T) {
	t.Parallel()
	_, err := ParseRepeat("every 5 minutes")
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestNextWeekly(t *testing.T) {
	t.Parallel()
	r := Repeat{Kind: RepeatWeekly}
	due := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	want := time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC)
	if got := r.Next(due); !got.Equal(want) {
		t.Fatalf("Next = %v, want %v", got, want)
	}
}

func TestNextDaily(t *testing.T) {
	t.Parallel()
	r := Repeat{Kind: RepeatDaily}
	due := time.Date(2024, 2, 28, 23, 30, 0, 0, time.UTC)
	want := time.Date(2024, 2, 29, 23, 30, 0, 0, time.UTC) // leap year
	if got := r.Next(due); !got.Equal(want) {
		t.Fatalf("Next = %v, want %v", got, want)
	}
}

func TestNextMonthlyClamp(t *testing.T) {
	t.Parallel()
	r := Repeat{Kind: RepeatMonthly}
	tests := []struct {
		name string
		due  time.Time
		want time.Time
	}{
		{
			name: "31st into 30-day month clamps",
			due:  time.Date(2024, 3, 31, 9, 0, 0, 0, time.UTC),
			want: time.Date(2024, 4, 30, 9, 0, 0, 0, time.UTC),
		},
		{
			name: "31st into february clamps to 29 on leap years",
			due:  time.Date(2024, 1, 31, 9, 0, 0, 0, time.UTC),
			want: time.Date(2024, 2, 29, 9, 0, 0, 0, time.UTC),
		},
		{
			name: "mid-month keeps the day",
			due:  time.Date(2024, 5, 15, 9, 0, 0, 0, time.UTC),
			want: time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC),
		},
		{
			name: "december rolls into january",
			due:  time.Date(2024, 12, 31, 9, 0, 0, 0, time.UTC),
			want: time.Date(2025, 1, 31, 9, 0, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := r.Next(tt.due); !got.Equal(tt.want) {
				t.Fatalf("Next(%v) = %v, want %v", tt.due, got, tt.want)
			}
		})
	}
}

func TestParseLocalTimezone(t *testing.T) {
	t.Parallel()
	loc, err := LoadZone("America/New_York")
	if err != nil {
		t.Fatalf("LoadZone error: %v", err)
	}
	got, err := ParseLocal("2024-06-01T09:00", loc)
	if err != nil {
		t.Fatalf("ParseLocal error: %v", err)
	}
	want := time.Date(2024, 6, 1, 13, 0, 0, 0, time.UTC) // EDT is UTC-4
	if !got.Equal(want) {
		t.Fatalf("ParseLocal = %v, want %v", got, want)
	}
}

func TestParseLocalLayouts(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{
		"2024-06-01 09:00:00",
		"2024-06-01 09:00",
		"2024-06-01T09:00:00",
	} {
		got, err := ParseLocal(raw, time.UTC)
		if err != nil {
			t.Fatalf("ParseLocal(%q) error: %v", raw, err)
		}
		want := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
		if !got.Equal(want) {
			t.Fatalf("ParseLocal(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestParseLocalInvalid(t *testing.T) {
	t.Parallel()
	if _, err := ParseLocal("tomorrow at noon", time.UTC); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
	if _, err := LoadZone("Mars/Olympus_Mons"); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}
