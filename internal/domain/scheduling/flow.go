package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// FlowState is a step of the booking form's confirm/override workflow.
type FlowState int

const (
	FlowIdle FlowState = iota
	FlowValidating
	FlowAccepted
	FlowWarned
	FlowSubmitting
	FlowSaved
	FlowFailed
)

func (s FlowState) String() string {
	switch s {
	case FlowIdle:
		return "idle"
	case FlowValidating:
		return "validating"
	case FlowAccepted:
		return "accepted"
	case FlowWarned:
		return "warned"
	case FlowSubmitting:
		return "submitting"
	case FlowSaved:
		return "saved"
	case FlowFailed:
		return "failed"
	}
	return fmt.Sprintf("FlowState(%d)", int(s))
}

var ErrFlowState = errors.New("action not allowed in current state")

// Booker is what a BookingFlow drives: *Service locally, or an HTTP client.
type Booker interface {
	Check(ctx context.Context, req BookingRequest) (*CheckResult, error)
	Book(ctx context.Context, req BookingRequest) (*BookingResult, error)
}

// BookingFlow walks one booking draft through
// Idle -> Validating -> Accepted|Warned -> Submitting -> Saved|Failed.
//
// A failed submission records Failed and then returns to whichever of
// Accepted or Warned preceded it, keeping the draft so it can be resubmitted.
// ForceSave bypasses the availability check for that one submission; the
// draft itself never carries the override.
type BookingFlow struct {
	booker  Booker
	timeout time.Duration

	state   FlowState
	draft   *BookingRequest
	check   *CheckResult
	result  *BookingResult
	lastErr error
	history []FlowState
}

func NewBookingFlow(booker Booker, timeout time.Duration) *BookingFlow {
	f := &BookingFlow{booker: booker, timeout: timeout}
	f.enter(FlowIdle)
	return f
}

func (f *BookingFlow) enter(s FlowState) {
	f.state = s
	f.history = append(f.history, s)
}

func (f *BookingFlow) State() FlowState          { return f.state }
func (f *BookingFlow) History() []FlowState      { return append([]FlowState(nil), f.history...) }
func (f *BookingFlow) LastError() error          { return f.lastErr }
func (f *BookingFlow) CheckResult() *CheckResult { return f.check }
func (f *BookingFlow) Result() *BookingResult    { return f.result }

// Draft returns a copy of the current draft, or nil after Cancel.
func (f *BookingFlow) Draft() *BookingRequest {
	if f.draft == nil {
		return nil
	}
	d := *f.draft
	return &d
}

// Warnings lists the availability warnings of the last check.
func (f *BookingFlow) Warnings() []*Warning {
	if f.check == nil {
		return nil
	}
	var out []*Warning
	for _, o := range f.check.Occurrences {
		if o.Warning != nil {
			out = append(out, o.Warning)
		}
	}
	return out
}

// Validate checks req. It may be called from Idle, or again from Accepted or
// Warned after the user edits the form. A validation error returns to Idle
// with the draft kept.
func (f *BookingFlow) Validate(ctx context.Context, req BookingRequest) error {
	switch f.state {
	case FlowIdle, FlowAccepted, FlowWarned:
	default:
		return fmt.Errorf("%w: validate from %s", ErrFlowState, f.state)
	}
	req.Force = false
	f.draft = &req
	f.lastErr = nil
	f.enter(FlowValidating)

	ctx, cancel := f.withTimeout(ctx)
	defer cancel()
	res, err := f.booker.Check(ctx, req)
	if err != nil {
		f.lastErr = err
		f.enter(FlowIdle)
		return err
	}
	f.check = res
	if res.OK {
		f.enter(FlowAccepted)
	} else {
		f.enter(FlowWarned)
	}
	return nil
}

// Submit saves an accepted draft.
func (f *BookingFlow) Submit(ctx context.Context) error {
	if f.state != FlowAccepted {
		return fmt.Errorf("%w: submit from %s", ErrFlowState, f.state)
	}
	return f.submit(ctx, false)
}

// ForceSave saves a warned draft with the availability check bypassed.
func (f *BookingFlow) ForceSave(ctx context.Context) error {
	if f.state != FlowWarned {
		return fmt.Errorf("%w: force save from %s", ErrFlowState, f.state)
	}
	return f.submit(ctx, true)
}

// Cancel discards a warned draft and returns to Idle.
func (f *BookingFlow) Cancel() error {
	if f.state != FlowWarned {
		return fmt.Errorf("%w: cancel from %s", ErrFlowState, f.state)
	}
	f.draft = nil
	f.check = nil
	f.lastErr = nil
	f.enter(FlowIdle)
	return nil
}

func (f *BookingFlow) submit(ctx context.Context, force bool) error {
	prev := f.state
	f.enter(FlowSubmitting)

	req := *f.draft
	req.Force = force

	ctx, cancel := f.withTimeout(ctx)
	defer cancel()
	res, err := f.booker.Book(ctx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("booking timed out after %s: %w", f.timeout, err)
		}
		f.lastErr = err
		f.enter(FlowFailed)

		// A warning raised at submit time (slots changed since the check)
		// lands in Warned so the user can still force.
		var we *WarningError
		if errors.As(err, &we) {
			f.check = &CheckResult{Occurrences: []OccurrenceResult{{
				Date: we.Warning.Date, StartTime: we.Warning.StartTime,
				Outcome: OutcomeWarned, Warning: we.Warning,
			}}}
			prev = FlowWarned
		}
		f.enter(prev)
		return err
	}
	f.result = res
	f.lastErr = nil
	f.enter(FlowSaved)
	return nil
}

func (f *BookingFlow) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if f.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, f.timeout)
}
