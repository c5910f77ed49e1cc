package scheduling

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clinic/clinic/internal/domain/billing"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	// ErrSlotTaken is returned when the store rejects an appointment that
	// overlaps another non-cancelled appointment of the same professional.
	ErrSlotTaken = errors.New("slot_taken")
	// ErrStatusChanged is returned by a conditional write whose row changed
	// status after it was read.
	ErrStatusChanged = errors.New("appointment status changed, reload and retry")
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

const (
	dateLayout = "2006-01-02"
	minutesDay = 24 * 60
)

// Clock is a time of day in minutes since midnight. It reads and writes
// "HH:MM"; "24:00" is accepted so a slot can run to the end of the day.
type Clock int

func ParseClock(s string) (Clock, error) {
	if len(s) != 5 || s[2] != ':' || !isDigit(s[0]) || !isDigit(s[1]) || !isDigit(s[3]) || !isDigit(s[4]) {
		return 0, fmt.Errorf("%w: time %q must be HH:MM", ErrInvalidInput, s)
	}
	h := int(s[0]-'0')*10 + int(s[1]-'0')
	m := int(s[3]-'0')*10 + int(s[4]-'0')
	c := Clock(h*60 + m)
	if m > 59 || c > minutesDay {
		return 0, fmt.Errorf("%w: time %q out of range", ErrInvalidInput, s)
	}
	return c, nil
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func ClockOf(t time.Time) Clock {
	return Clock(t.Hour()*60 + t.Minute())
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

func (c Clock) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Clock) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// AvailabilitySlot is a recurring weekly window in which a professional
// accepts appointments. DayOfWeek follows time.Weekday (0 = Sunday).
type AvailabilitySlot struct {
	ID             uuid.UUID  `json:"id"`
	ProfessionalID uuid.UUID  `json:"professional_id"`
	DayOfWeek      int        `json:"day_of_week"`
	StartTime      Clock      `json:"start_time"`
	EndTime        Clock      `json:"end_time"`
	LocationID     *uuid.UUID `json:"location_id,omitempty"`
}

func (s AvailabilitySlot) Validate() error {
	if s.DayOfWeek < 0 || s.DayOfWeek > 6 {
		return fmt.Errorf("%w: day_of_week must be 0..6", ErrInvalidInput)
	}
	if s.StartTime < 0 || s.StartTime >= minutesDay {
		return fmt.Errorf("%w: start_time out of range", ErrInvalidInput)
	}
	if s.EndTime <= s.StartTime || s.EndTime > minutesDay {
		return fmt.Errorf("%w: end_time must be after start_time", ErrInvalidInput)
	}
	return nil
}

// Holiday is advisory: it is reported alongside a booking, never blocks it.
type Holiday struct {
	ID   uuid.UUID `json:"id"`
	Date string    `json:"date"`
	Name string    `json:"name"`
	Type string    `json:"type"`
}

type Appointment struct {
	ID                uuid.UUID       `json:"id"`
	PatientID         uuid.UUID       `json:"patient_id"`
	ProfessionalID    uuid.UUID       `json:"professional_id"`
	ServiceID         *uuid.UUID      `json:"service_id,omitempty"`
	LocationID        *uuid.UUID      `json:"location_id,omitempty"`
	StartTime         time.Time       `json:"start_time"`
	EndTime           time.Time       `json:"end_time"`
	Status            Status          `json:"status"`
	Price             decimal.Decimal `json:"price"`
	Discount          decimal.Decimal `json:"discount"`
	Addition          decimal.Decimal `json:"addition"`
	Total             decimal.Decimal `json:"total"`
	PaymentMethodID   *uuid.UUID      `json:"payment_method_id,omitempty"`
	Installments      int             `json:"installments"`
	InvoiceIssued     bool            `json:"invoice_issued"`
	Notes             string          `json:"notes,omitempty"`
	IsExtra           bool            `json:"is_extra"`
	RecurrenceGroupID *uuid.UUID      `json:"recurrence_group_id,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

func (a *Appointment) computeTotal() {
	a.Total = billing.ComputeTotal(a.Price, a.Discount, a.Addition)
}

func (a *Appointment) applyQuote(q *billing.Quote) {
	a.Price = q.Base()
	a.Discount = q.Discount()
	a.Addition = q.Addition()
	a.computeTotal()
}

func (a *Appointment) quote() *billing.Quote {
	q := billing.NewQuote(a.Price)
	_ = q.SetDiscount(a.Discount)
	_ = q.SetAddition(a.Addition)
	return q
}

type AppointmentFilter struct {
	ProfessionalID *uuid.UUID
	PatientID      *uuid.UUID
	Status         Status
	From           *time.Time
	To             *time.Time
	Limit          int
	Offset         int
}

// BookingRequest is one submission of the booking form. Date and Time are
// read in the clinic time zone. Force bypasses the availability check for
// this submission only; it is never stored.
type BookingRequest struct {
	PatientID       uuid.UUID           `json:"patient_id"`
	ProfessionalID  uuid.UUID           `json:"professional_id"`
	ServiceID       *uuid.UUID          `json:"service_id,omitempty"`
	LocationID      *uuid.UUID          `json:"location_id,omitempty"`
	Date            string              `json:"date"`
	Time            string              `json:"time"`
	Pricing         billing.Adjustments `json:"pricing"`
	PaymentMethodID *uuid.UUID          `json:"payment_method_id,omitempty"`
	Installments    int                 `json:"installments"`
	InvoiceIssued   bool                `json:"invoice_issued"`
	Notes           string              `json:"notes,omitempty"`
	IsExtra         bool                `json:"is_extra"`
	Force           bool                `json:"force"`
	Recurrence      *RecurrenceRequest  `json:"recurrence,omitempty"`
}

// Occurrence outcomes.
const (
	OutcomeCreated   = "created"
	OutcomeWarned    = "warned"
	OutcomeFailed    = "failed"
	OutcomeAvailable = "available"
)

type OccurrenceResult struct {
	Date        string       `json:"date"`
	StartTime   time.Time    `json:"start_time"`
	Outcome     string       `json:"outcome"`
	Appointment *Appointment `json:"appointment,omitempty"`
	Warning     *Warning     `json:"warning,omitempty"`
	Holiday     *Holiday     `json:"holiday,omitempty"`
	Error       string       `json:"error,omitempty"`
}

type BookingResult struct {
	RecurrenceGroupID *uuid.UUID         `json:"recurrence_group_id,omitempty"`
	Forced            bool               `json:"forced"`
	Occurrences       []OccurrenceResult `json:"occurrences"`
	Created           int                `json:"created"`
	Warned            int                `json:"warned"`
	Failed            int                `json:"failed"`
}

func (r *BookingResult) add(o OccurrenceResult) {
	switch o.Outcome {
	case OutcomeCreated:
		r.Created++
	case OutcomeWarned:
		r.Warned++
	case OutcomeFailed:
		r.Failed++
	}
	r.Occurrences = append(r.Occurrences, o)
}

// CheckResult answers a dry run of a booking. OK is false when any
// occurrence would raise an availability warning.
type CheckResult struct {
	OK          bool               `json:"ok"`
	Quote       *billing.Quote     `json:"quote,omitempty"`
	Occurrences []OccurrenceResult `json:"occurrences"`
}

// AppointmentPatch edits an appointment one field group at a time. Nil
// groups are left untouched.
type AppointmentPatch struct {
	Schedule *SchedulePatch `json:"schedule,omitempty"`
	Pricing  *PricingPatch  `json:"pricing,omitempty"`
	Payment  *PaymentPatch  `json:"payment,omitempty"`
	Notes    *string        `json:"notes,omitempty"`
	IsExtra  *bool          `json:"is_extra,omitempty"`
	Force    bool           `json:"force"`
}

type SchedulePatch struct {
	ProfessionalID *uuid.UUID `json:"professional_id,omitempty"`
	LocationID     *uuid.UUID `json:"location_id,omitempty"`
	Date           string     `json:"date,omitempty"`
	Time           string     `json:"time,omitempty"`
}

// PricingPatch selects a new service and/or adjusts the amounts. Selecting a
// service re-resolves the base price, so it cannot be combined with a manual
// price in the same patch.
type PricingPatch struct {
	ServiceID *uuid.UUID `json:"service_id,omitempty"`
	billing.Adjustments
}

type PaymentPatch struct {
	PaymentMethodID *uuid.UUID `json:"payment_method_id,omitempty"`
	Installments    *int       `json:"installments,omitempty"`
	InvoiceIssued   *bool      `json:"invoice_issued,omitempty"`
}
