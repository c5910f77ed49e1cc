package scheduling

import (
	"errors"
	"fmt"
	"iter"
	"time"
)

// maxScanDays bounds how far Expand looks ahead, about three years.
const maxScanDays = 3*365 + 1

var (
	ErrEmptyWeekdays          = errors.New("at least one weekday is required")
	ErrInvalidWeekday         = errors.New("weekday must be 0..6")
	ErrInvalidOccurrenceCount = errors.New("occurrences must be at least 1")
	ErrOccurrenceLimit        = errors.New("too many occurrences")
	ErrHorizonExceeded        = errors.New("occurrences do not fit in the scheduling horizon")
)

// RecurrenceConfigError reports a recurrence request that cannot be expanded.
// It is raised before any occurrence is booked.
type RecurrenceConfigError struct {
	Err error
}

func (e *RecurrenceConfigError) Error() string { return "recurrence: " + e.Err.Error() }
func (e *RecurrenceConfigError) Unwrap() error { return e.Err }

type RecurrenceRequest struct {
	Weekdays    []int `json:"weekdays"`
	Occurrences int   `json:"occurrences"`
}

// WeekdaySet is a bitmask over time.Weekday.
type WeekdaySet uint8

func NewWeekdaySet(days ...time.Weekday) WeekdaySet {
	var s WeekdaySet
	for _, d := range days {
		s |= 1 << uint(d)
	}
	return s
}

func (s WeekdaySet) Has(d time.Weekday) bool { return s&(1<<uint(d)) != 0 }
func (s WeekdaySet) Empty() bool             { return s == 0 }

// Validate checks the request and returns its weekday set. max caps the
// number of occurrences; zero means no cap.
func (r RecurrenceRequest) Validate(max int) (WeekdaySet, error) {
	if len(r.Weekdays) == 0 {
		return 0, &RecurrenceConfigError{Err: ErrEmptyWeekdays}
	}
	var set WeekdaySet
	for _, d := range r.Weekdays {
		if d < 0 || d > 6 {
			return 0, &RecurrenceConfigError{Err: fmt.Errorf("%w: got %d", ErrInvalidWeekday, d)}
		}
		set |= NewWeekdaySet(time.Weekday(d))
	}
	if r.Occurrences < 1 {
		return 0, &RecurrenceConfigError{Err: ErrInvalidOccurrenceCount}
	}
	if max > 0 && r.Occurrences > max {
		return 0, &RecurrenceConfigError{Err: fmt.Errorf("%w: %d exceeds %d", ErrOccurrenceLimit, r.Occurrences, max)}
	}
	return set, nil
}

// Expand yields up to count instants on the selected weekdays, starting at
// start itself when its weekday is selected. Each keeps start's wall clock
// time in start's location. The scan stops after maxScanDays, so an empty
// set yields nothing. The sequence can be ranged over more than once.
func Expand(start time.Time, set WeekdaySet, count int) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		if set.Empty() || count <= 0 {
			return
		}
		emitted := 0
		for i := 0; i < maxScanDays && emitted < count; i++ {
			d := start.AddDate(0, 0, i)
			if !set.Has(d.Weekday()) {
				continue
			}
			if !yield(d) {
				return
			}
			emitted++
		}
	}
}

// expandAll collects Expand and reports a configuration error when the
// horizon runs out before count dates are found.
func expandAll(start time.Time, set WeekdaySet, count int) ([]time.Time, error) {
	dates := make([]time.Time, 0, min(count, maxScanDays))
	for d := range Expand(start, set, count) {
		dates = append(dates, d)
	}
	if len(dates) < count {
		return nil, &RecurrenceConfigError{Err: ErrHorizonExceeded}
	}
	return dates, nil
}
