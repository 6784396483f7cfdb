package core

import (
	"testing"
	"time"
)

func TestParseMonth(t *testing.T) {
	m, err := ParseMonth("2024-03")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m != NewMonth(2024, time.March) {
		t.Fatalf("got %v", m)
	}
	for _, bad := range []string{"", "2024-13", "2024/03", "March"} {
		if _, err := ParseMonth(bad); err == nil {
			t.Errorf("%q expected error", bad)
		}
	}
}

func TestMonthNavigation(t *testing.T) {
	tests := []struct {
		name string
		m    Month
		prev Month
		next Month
		last int
	}{
		{"january wraps back", NewMonth(2024, time.January), NewMonth(2023, time.December), NewMonth(2024, time.February), 31},
		{"leap february", NewMonth(2024, time.February), NewMonth(2024, time.January), NewMonth(2024, time.March), 29},
		{"december wraps forward", NewMonth(2023, time.December), NewMonth(2023, time.November), NewMonth(2024, time.January), 31},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.m.Prev(); got != tt.prev {
				t.Errorf("Prev() = %v, want %v", got, tt.prev)
			}
			if got := tt.m.Next(); got != tt.next {
				t.Errorf("Next() = %v, want %v", got, tt.next)
			}
			if got := tt.m.LastDay().Day(); got != tt.last {
				t.Errorf("LastDay() = %d, want %d", got, tt.last)
			}
		})
	}
}

func TestMonthContains(t *testing.T) {
	m := NewMonth(2024, time.March)
	if !m.Contains(NewDate(2024, 3, 31)) {
		t.Errorf("expected March 31 in month")
	}
	if m.Contains(NewDate(2023, 3, 1)) || m.Contains(NewDate(2024, 4, 1)) {
		t.Errorf("unexpected containment")
	}
	if m.String() != "2024-03" {
		t.Errorf("String() = %s", m.String())
	}
}
