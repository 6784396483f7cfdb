package services

import (
	"fmt"
	"time"
)

// DuenessChecker decides whether a periodic job must run on this tick.
type DuenessChecker interface {
	// IsDue reports whether the job is due given its last successful run.
	// A zero lastRun means it never ran.
	IsDue(lastRun, now time.Time) bool
}

// MonthlyChecker is due once per calendar month.
type MonthlyChecker struct{}

// IsDue returns true on the first run or when now is in a later calendar
// month than lastRun.
func (MonthlyChecker) IsDue(lastRun, now time.Time) bool {
	if lastRun.IsZero() {
		return true
	}
	ly, lm, _ := lastRun.UTC().Date()
	ny, nm, _ := now.UTC().Date()
	return ny > ly || (ny == ly && nm > lm)
}

// WeeklyChecker is due when at least seven days passed since the last run.
type WeeklyChecker struct{}

func (WeeklyChecker) IsDue(lastRun, now time.Time) bool {
	if lastRun.IsZero() {
		return true
	}
	return now.Sub(lastRun) >= 7*24*time.Hour
}

// MonthlyDue is MonthlyChecker.IsDue.
func MonthlyDue(lastRun, now time.Time) bool {
	return MonthlyChecker{}.IsDue(lastRun, now)
}

var duenessStrategies = map[string]DuenessChecker{
	"monthly": MonthlyChecker{},
	"weekly":  WeeklyChecker{},
}

// GetDuenessChecker returns the checker registered for a schedule name.
func GetDuenessChecker(schedule string) (DuenessChecker, error) {
	checker, ok := duenessStrategies[schedule]
	if !ok {
		return nil, fmt.Errorf("unknown report schedule: %s", schedule)
	}
	return checker, nil
}
