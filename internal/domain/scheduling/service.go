package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/clinic/clinic/internal/domain/billing"
	"github.com/clinic/clinic/internal/platform/metrics"
)

// Pricing resolves prices and durations for bookings. *billing.Service
// implements it.
type Pricing interface {
	ResolvePrice(ctx context.Context, patientID, serviceID uuid.UUID) (decimal.Decimal, error)
	ServiceDuration(ctx context.Context, serviceID uuid.UUID) (time.Duration, error)
	ValidateInstallments(ctx context.Context, methodID *uuid.UUID, n int) error
}

// PasswordVerifier re-authenticates the acting user. *auth.PasswordVerifier
// implements it.
type PasswordVerifier interface {
	Verify(ctx context.Context, userID, password string) error
}

type Options struct {
	Location       *time.Location
	MaxOccurrences int
	Logger         zerolog.Logger
	Metrics        *metrics.BookingMetrics
}

type Service struct {
	appointments AppointmentRepository
	slots        AvailabilityRepository
	holidays     HolidayRepository
	pricing      Pricing
	passwords    PasswordVerifier
	loc          *time.Location
	maxOcc       int
	logger       zerolog.Logger
	metrics      *metrics.BookingMetrics
	tracer       trace.Tracer
}

func NewService(appts AppointmentRepository, slots AvailabilityRepository, holidays HolidayRepository,
	pricing Pricing, passwords PasswordVerifier, opts Options) *Service {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		appointments: appts,
		slots:        slots,
		holidays:     holidays,
		pricing:      pricing,
		passwords:    passwords,
		loc:          loc,
		maxOcc:       opts.MaxOccurrences,
		logger:       opts.Logger.With().Str("component", "scheduling").Logger(),
		metrics:      opts.Metrics,
		tracer:       otel.Tracer("github.com/clinic/clinic/internal/domain/scheduling"),
	}
}

func (s *Service) Location() *time.Location { return s.loc }

// -- Booking --

// plan is a validated booking request: the priced template appointment and
// the start instants it expands to.
type plan struct {
	template Appointment
	quote    *billing.Quote
	duration time.Duration
	starts   []time.Time
	slots    []AvailabilitySlot
	holidays []Holiday
}

func (s *Service) prepare(ctx context.Context, req *BookingRequest) (*plan, error) {
	if req.PatientID == uuid.Nil {
		return nil, fmt.Errorf("%w: patient_id is required", ErrInvalidInput)
	}
	if req.ProfessionalID == uuid.Nil {
		return nil, fmt.Errorf("%w: professional_id is required", ErrInvalidInput)
	}
	start, err := CombineDateTime(req.Date, req.Time, s.loc)
	if err != nil {
		return nil, err
	}

	// Configuration errors surface before any pricing or storage work.
	starts := []time.Time{start}
	if req.Recurrence != nil {
		set, err := req.Recurrence.Validate(s.maxOcc)
		if err != nil {
			return nil, err
		}
		if starts, err = expandAll(start, set, req.Recurrence.Occurrences); err != nil {
			return nil, err
		}
	}

	if req.Installments == 0 {
		req.Installments = 1
	}
	if err := s.pricing.ValidateInstallments(ctx, req.PaymentMethodID, req.Installments); err != nil {
		return nil, asInvalid(err)
	}

	serviceID := uuid.Nil
	if req.ServiceID != nil {
		serviceID = *req.ServiceID
	}
	base, err := s.pricing.ResolvePrice(ctx, req.PatientID, serviceID)
	if err != nil {
		return nil, err
	}
	q := billing.NewQuote(base)
	if err := req.Pricing.Apply(q); err != nil {
		return nil, asInvalid(err)
	}
	duration := billing.DefaultDuration
	if req.ServiceID != nil {
		if duration, err = s.pricing.ServiceDuration(ctx, serviceID); err != nil {
			return nil, err
		}
	}

	p := &plan{quote: q, duration: duration, starts: starts}
	p.template = Appointment{
		PatientID:       req.PatientID,
		ProfessionalID:  req.ProfessionalID,
		ServiceID:       req.ServiceID,
		LocationID:      req.LocationID,
		Status:          StatusScheduled,
		PaymentMethodID: req.PaymentMethodID,
		Installments:    req.Installments,
		InvoiceIssued:   req.InvoiceIssued,
		Notes:           req.Notes,
		IsExtra:         req.IsExtra,
	}
	p.template.applyQuote(q)

	if p.slots, err = s.slots.ListByProfessional(ctx, req.ProfessionalID); err != nil {
		return nil, err
	}
	first, last := starts[0], starts[len(starts)-1]
	if p.holidays, err = s.holidays.List(ctx, first.Format(dateLayout), last.Format(dateLayout)); err != nil {
		return nil, err
	}
	return p, nil
}

// asInvalid maps billing validation errors onto this package's sentinel.
func asInvalid(err error) error {
	if errors.Is(err, billing.ErrInvalidInput) {
		return fmt.Errorf("%w: %s", ErrInvalidInput, err.Error())
	}
	return err
}

// Book validates and stores one appointment, or one per recurrence
// occurrence. Occurrences are written one at a time so each gets its own
// outcome; a failed occurrence does not undo the others.
//
// For a single booking an availability failure is returned as *WarningError
// and a storage failure as the error itself. A recurrence reports both per
// occurrence in the result.
func (s *Service) Book(ctx context.Context, req BookingRequest) (*BookingResult, error) {
	ctx, span := s.tracer.Start(ctx, "scheduling.Book", trace.WithAttributes(
		attribute.String("professional_id", req.ProfessionalID.String()),
		attribute.Bool("force", req.Force),
		attribute.Bool("recurrence", req.Recurrence != nil),
	))
	defer span.End()

	p, err := s.prepare(ctx, &req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.metrics.ObserveBooking("invalid")
		return nil, err
	}

	res := &BookingResult{Forced: req.Force}
	if req.Recurrence != nil {
		gid := uuid.New()
		res.RecurrenceGroupID = &gid
	}

	for _, start := range p.starts {
		occ := OccurrenceResult{
			Date:      start.Format(dateLayout),
			StartTime: start,
			Holiday:   holidayOn(p.holidays, start),
		}

		forced := false
		if !req.IsExtra {
			if av := ValidateAvailability(p.slots, start, s.loc); !av.OK {
				occ.Warning = newWarning(av.Reason, start)
				s.metrics.ObserveWarning(av.Reason)
				if !req.Force {
					occ.Outcome = OutcomeWarned
					s.observe(req.Recurrence != nil, OutcomeWarned)
					if req.Recurrence == nil {
						return nil, &WarningError{Warning: occ.Warning}
					}
					res.add(occ)
					continue
				}
				forced = true
			}
		}

		a := p.template
		a.StartTime = start
		a.EndTime = start.Add(p.duration)
		a.RecurrenceGroupID = res.RecurrenceGroupID
		if err := s.appointments.Create(ctx, &a); err != nil {
			outcome := OutcomeFailed
			if errors.Is(err, ErrSlotTaken) {
				outcome = "slot_taken"
			}
			s.observe(req.Recurrence != nil, outcome)
			s.logger.Error().Err(err).
				Str("professional_id", req.ProfessionalID.String()).
				Time("start_time", start).
				Msg("appointment insert failed")
			if req.Recurrence == nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return nil, err
			}
			occ.Outcome = OutcomeFailed
			occ.Error = err.Error()
			res.add(occ)
			continue
		}

		outcome := OutcomeCreated
		if forced {
			outcome = "forced"
			s.logger.Warn().
				Str("appointment_id", a.ID.String()).
				Str("professional_id", a.ProfessionalID.String()).
				Str("reason", occ.Warning.Reason).
				Time("start_time", a.StartTime).
				Msg("availability check bypassed")
		}
		s.observe(req.Recurrence != nil, outcome)
		s.logger.Info().
			Str("appointment_id", a.ID.String()).
			Str("patient_id", a.PatientID.String()).
			Time("start_time", a.StartTime).
			Msg("appointment booked")

		occ.Outcome = OutcomeCreated
		occ.Appointment = &a
		res.add(occ)
	}

	span.SetAttributes(
		attribute.Int("created", res.Created),
		attribute.Int("warned", res.Warned),
		attribute.Int("failed", res.Failed),
	)
	return res, nil
}

func (s *Service) observe(recurring bool, outcome string) {
	if recurring {
		s.metrics.ObserveOccurrence(outcome)
		return
	}
	s.metrics.ObserveBooking(outcome)
}

// Check runs the same validation as Book without writing. Force is ignored;
// IsExtra still skips the availability check.
func (s *Service) Check(ctx context.Context, req BookingRequest) (*CheckResult, error) {
	p, err := s.prepare(ctx, &req)
	if err != nil {
		return nil, err
	}
	res := &CheckResult{OK: true, Quote: p.quote}
	for _, start := range p.starts {
		occ := OccurrenceResult{
			Date:      start.Format(dateLayout),
			StartTime: start,
			Outcome:   OutcomeAvailable,
			Holiday:   holidayOn(p.holidays, start),
		}
		if !req.IsExtra {
			if av := ValidateAvailability(p.slots, start, s.loc); !av.OK {
				occ.Outcome = OutcomeWarned
				occ.Warning = newWarning(av.Reason, start)
				res.OK = false
			}
		}
		res.Occurrences = append(res.Occurrences, occ)
	}
	return res, nil
}

// -- Appointments --

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.appointments.GetByID(ctx, id)
}

func (s *Service) ListAppointments(ctx context.Context, f AppointmentFilter) ([]*Appointment, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, f.Status)
	}
	return s.appointments.List(ctx, f)
}

// UpdateAppointment applies a patch group by group. A schedule change is
// checked against availability unless the patch is forced or the
// appointment is an extra; a failed check returns *WarningError and nothing
// is written.
func (s *Service) UpdateAppointment(ctx context.Context, id uuid.UUID, patch AppointmentPatch) (*Appointment, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	duration := a.EndTime.Sub(a.StartTime)

	if patch.Pricing != nil {
		if err := s.applyPricing(ctx, a, patch.Pricing, &duration); err != nil {
			return nil, err
		}
	}

	if patch.Payment != nil {
		if patch.Payment.PaymentMethodID != nil {
			a.PaymentMethodID = patch.Payment.PaymentMethodID
		}
		if patch.Payment.Installments != nil {
			a.Installments = *patch.Payment.Installments
		}
		if patch.Payment.InvoiceIssued != nil {
			a.InvoiceIssued = *patch.Payment.InvoiceIssued
		}
		if err := s.pricing.ValidateInstallments(ctx, a.PaymentMethodID, a.Installments); err != nil {
			return nil, asInvalid(err)
		}
	}
	if patch.Notes != nil {
		a.Notes = *patch.Notes
	}
	if patch.IsExtra != nil {
		a.IsExtra = *patch.IsExtra
	}

	rescheduled := false
	if sp := patch.Schedule; sp != nil {
		if sp.ProfessionalID != nil && *sp.ProfessionalID != a.ProfessionalID {
			a.ProfessionalID = *sp.ProfessionalID
			rescheduled = true
		}
		if sp.LocationID != nil {
			a.LocationID = sp.LocationID
		}
		if sp.Date != "" || sp.Time != "" {
			local := a.StartTime.In(s.loc)
			date, clock := sp.Date, sp.Time
			if date == "" {
				date = local.Format(dateLayout)
			}
			if clock == "" {
				clock = ClockOf(local).String()
			}
			start, err := CombineDateTime(date, clock, s.loc)
			if err != nil {
				return nil, err
			}
			if !start.Equal(a.StartTime) {
				a.StartTime = start
				rescheduled = true
			}
		}
	}
	a.EndTime = a.StartTime.Add(duration)

	if rescheduled && !patch.Force && !a.IsExtra {
		slots, err := s.slots.ListByProfessional(ctx, a.ProfessionalID)
		if err != nil {
			return nil, err
		}
		if av := ValidateAvailability(slots, a.StartTime, s.loc); !av.OK {
			s.metrics.ObserveWarning(av.Reason)
			return nil, &WarningError{Warning: newWarning(av.Reason, a.StartTime.In(s.loc))}
		}
	}

	if err := s.appointments.Update(ctx, a); err != nil {
		return nil, err
	}
	ev := s.logger.Info()
	if rescheduled && patch.Force {
		ev = s.logger.Warn().Bool("forced", true)
	}
	ev.Str("appointment_id", a.ID.String()).Bool("rescheduled", rescheduled).Msg("appointment updated")
	return a, nil
}

// applyPricing selects a new service (re-resolving the price and duration,
// overwriting any manual edit) and then applies the adjustments.
func (s *Service) applyPricing(ctx context.Context, a *Appointment, pp *PricingPatch, duration *time.Duration) error {
	q := a.quote()
	if pp.ServiceID != nil && (a.ServiceID == nil || *pp.ServiceID != *a.ServiceID) {
		if pp.Price != nil {
			return fmt.Errorf("%w: price cannot be set together with a service change", ErrInvalidInput)
		}
		base, err := s.pricing.ResolvePrice(ctx, a.PatientID, *pp.ServiceID)
		if err != nil {
			return err
		}
		d, err := s.pricing.ServiceDuration(ctx, *pp.ServiceID)
		if err != nil {
			return err
		}
		q.ApplyResolvedPrice(base)
		a.ServiceID = pp.ServiceID
		*duration = d
	}
	if err := pp.Adjustments.Apply(q); err != nil {
		return asInvalid(err)
	}
	a.applyQuote(q)
	return nil
}

func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	if err := s.appointments.UpdateStatus(ctx, id, status); err != nil {
		return err
	}
	s.logger.Info().Str("appointment_id", id.String()).Str("status", string(status)).Msg("appointment status changed")
	return nil
}

// DeleteAppointment hard-deletes an appointment. A completed appointment has
// been billed, so the acting user must confirm with their password first;
// without one the record is left alone. The delete only applies while the
// status is the one checked here, otherwise ErrStatusChanged.
func (s *Service) DeleteAppointment(ctx context.Context, id uuid.UUID, userID, password string) error {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if a.Status == StatusCompleted {
		if err := s.passwords.Verify(ctx, userID, password); err != nil {
			return err
		}
	}
	if err := s.appointments.Delete(ctx, id, a.Status); err != nil {
		return err
	}
	s.logger.Info().
		Str("appointment_id", id.String()).
		Str("status", string(a.Status)).
		Str("user_id", userID).
		Msg("appointment deleted")
	return nil
}

// -- Availability --

func (s *Service) ListAvailability(ctx context.Context, professionalID uuid.UUID) ([]AvailabilitySlot, error) {
	return s.slots.ListByProfessional(ctx, professionalID)
}

func (s *Service) ReplaceAvailability(ctx context.Context, professionalID uuid.UUID, slots []AvailabilitySlot) error {
	if professionalID == uuid.Nil {
		return fmt.Errorf("%w: professional_id is required", ErrInvalidInput)
	}
	for _, sl := range slots {
		if err := sl.Validate(); err != nil {
			return err
		}
	}
	if err := s.slots.Replace(ctx, professionalID, slots); err != nil {
		return err
	}
	s.logger.Info().Str("professional_id", professionalID.String()).Int("slots", len(slots)).Msg("availability replaced")
	return nil
}

// -- Holidays --

func (s *Service) CreateHoliday(ctx context.Context, h *Holiday) error {
	if _, err := time.Parse(dateLayout, h.Date); err != nil {
		return fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidInput)
	}
	if h.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if h.Type == "" {
		h.Type = "national"
	}
	return s.holidays.Create(ctx, h)
}

func (s *Service) ListHolidays(ctx context.Context, from, to string) ([]Holiday, error) {
	for _, d := range []string{from, to} {
		if d == "" {
			continue
		}
		if _, err := time.Parse(dateLayout, d); err != nil {
			return nil, fmt.Errorf("%w: date %q must be YYYY-MM-DD", ErrInvalidInput, d)
		}
	}
	return s.holidays.List(ctx, from, to)
}

func (s *Service) DeleteHoliday(ctx context.Context, id uuid.UUID) error {
	return s.holidays.Delete(ctx, id)
}
