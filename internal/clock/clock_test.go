package clock

import (
	"testing"
	"time"
)

func TestDaysBetween(t *testing.T) {
	loc := time.UTC
	base := time.Date(2025, 3, 10, 9, 30, 0, 0, loc)

	tests := []struct {
		name string
		b    time.Time
		want int
	}{
		{"same day", base.Add(5 * time.Hour), 0},
		{"tomorrow", base.AddDate(0, 0, 1), 1},
		{"a week out", base.AddDate(0, 0, 7), 7},
		{"yesterday", base.AddDate(0, 0, -1), -1},
		{"two weeks ago", base.AddDate(0, 0, -14), -14},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DaysBetween(base, tt.b, loc); got != tt.want {
				t.Errorf("DaysBetween = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDaysBetween_TimeOfDayIrrelevant(t *testing.T) {
	loc := time.UTC
	// 23:59 on one day to 00:01 on the next is still one calendar day.
	a := time.Date(2025, 3, 10, 23, 59, 0, 0, loc)
	b := time.Date(2025, 3, 11, 0, 1, 0, 0, loc)
	if got := DaysBetween(a, b, loc); got != 1 {
		t.Errorf("DaysBetween across midnight = %d, want 1", got)
	}
}

func TestDaysBetween_DSTTransition(t *testing.T) {
	loc, err := time.LoadLocation("Australia/Sydney")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// Sydney leaves DST on 2025-04-06; the span contains a 25-hour day.
	a := time.Date(2025, 4, 4, 12, 0, 0, 0, loc)
	b := time.Date(2025, 4, 11, 12, 0, 0, 0, loc)
	if got := DaysBetween(a, b, loc); got != 7 {
		t.Errorf("DaysBetween over DST exit = %d, want 7", got)
	}
}

func TestMidnight(t *testing.T) {
	loc := time.UTC
	got := Midnight(time.Date(2025, 6, 15, 18, 45, 12, 999, loc), loc)
	want := time.Date(2025, 6, 15, 0, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Errorf("Midnight = %v, want %v", got, want)
	}
}

func TestMonthStart(t *testing.T) {
	loc := time.UTC
	got := MonthStart(time.Date(2025, 6, 15, 18, 45, 0, 0, loc), loc)
	want := time.Date(2025, 6, 1, 0, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Errorf("MonthStart = %v, want %v", got, want)
	}
}

func TestFixed(t *testing.T) {
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	clk := NewFixed(start)
	if !clk.Now().Equal(start) {
		t.Errorf("Now = %v, want %v", clk.Now(), start)
	}
	clk.Advance(48 * time.Hour)
	if !clk.Now().Equal(start.Add(48 * time.Hour)) {
		t.Errorf("Now after Advance = %v", clk.Now())
	}
}
