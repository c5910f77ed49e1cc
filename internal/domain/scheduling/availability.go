package scheduling

import (
	"fmt"
	"time"
)

// Availability check failure reasons.
const (
	ReasonNoSlotForDay     = "no_slot_for_day"
	ReasonOutsideSlotHours = "outside_slot_hours"
)

type Availability struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

// ValidateAvailability checks a candidate start time against a professional's
// weekly slots. The start must fall in [start, end) of a slot on the same
// weekday, in loc. A professional with no slots configured is unrestricted.
func ValidateAvailability(slots []AvailabilitySlot, start time.Time, loc *time.Location) Availability {
	if len(slots) == 0 {
		return Availability{OK: true}
	}
	if loc != nil {
		start = start.In(loc)
	}
	day := int(start.Weekday())
	minute := ClockOf(start)

	sawDay := false
	for _, s := range slots {
		if s.DayOfWeek != day {
			continue
		}
		sawDay = true
		if s.StartTime <= minute && minute < s.EndTime {
			return Availability{OK: true}
		}
	}
	if !sawDay {
		return Availability{Reason: ReasonNoSlotForDay}
	}
	return Availability{Reason: ReasonOutsideSlotHours}
}

// Warning is the structured body of an availability failure. The caller may
// resubmit with force to book anyway.
type Warning struct {
	Reason    string    `json:"reason"`
	Date      string    `json:"date"`
	Time      string    `json:"time"`
	StartTime time.Time `json:"start_time"`
	Message   string    `json:"message"`
}

func newWarning(reason string, start time.Time) *Warning {
	w := &Warning{
		Reason:    reason,
		Date:      start.Format(dateLayout),
		Time:      ClockOf(start).String(),
		StartTime: start,
	}
	switch reason {
	case ReasonNoSlotForDay:
		w.Message = fmt.Sprintf("professional has no availability on %s", start.Weekday())
	default:
		w.Message = fmt.Sprintf("%s is outside the professional's hours on %s", w.Time, start.Weekday())
	}
	return w
}

// WarningError carries a Warning through error returns.
type WarningError struct {
	Warning *Warning
}

func (e *WarningError) Error() string {
	return "availability warning: " + e.Warning.Reason
}

// CombineDateTime reads a "YYYY-MM-DD" date and an "HH:MM" time as a wall
// clock instant in loc.
func CombineDateTime(date, clock string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	d, err := time.ParseInLocation(dateLayout, date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", ErrInvalidInput, date)
	}
	c, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	if c >= minutesDay {
		return time.Time{}, fmt.Errorf("%w: time %q out of range", ErrInvalidInput, clock)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), int(c)/60, int(c)%60, 0, 0, loc), nil
}

func holidayOn(holidays []Holiday, day time.Time) *Holiday {
	key := day.Format(dateLayout)
	for i := range holidays {
		if holidays[i].Date == key {
			h := holidays[i]
			return &h
		}
	}
	return nil
}
