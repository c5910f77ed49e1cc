package scheduling

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/clinic/clinic/internal/domain/billing"
	"github.com/clinic/clinic/internal/platform/auth"
)

// -- Mock Repositories --

type mockAppointmentRepo struct {
	mu        sync.Mutex
	store     map[uuid.UUID]*Appointment
	createErr error
	creates   int
	deletes   int
	// beforeDelete runs between the service's read and the delete.
	beforeDelete func()
}

func newMockAppointmentRepo() *mockAppointmentRepo {
	return &mockAppointmentRepo{store: make(map[uuid.UUID]*Appointment)}
}

func (m *mockAppointmentRepo) overlaps(a *Appointment) bool {
	for _, o := range m.store {
		if o.ID == a.ID || o.ProfessionalID != a.ProfessionalID || o.Status == StatusCancelled {
			continue
		}
		if a.StartTime.Before(o.EndTime) && o.StartTime.Before(a.EndTime) {
			return true
		}
	}
	return false
}

func (m *mockAppointmentRepo) Create(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	if m.createErr != nil {
		return m.createErr
	}
	if m.overlaps(a) {
		return ErrSlotTaken
	}
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	m.store[a.ID] = &cp
	return nil
}

func (m *mockAppointmentRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *mockAppointmentRepo) Update(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[a.ID]; !ok {
		return ErrNotFound
	}
	if m.overlaps(a) {
		return ErrSlotTaken
	}
	cp := *a
	m.store[a.ID] = &cp
	return nil
}

func (m *mockAppointmentRepo) UpdateStatus(_ context.Context, id uuid.UUID, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.store[id]
	if !ok {
		return ErrNotFound
	}
	a.Status = status
	return nil
}

func (m *mockAppointmentRepo) Delete(_ context.Context, id uuid.UUID, status Status) error {
	if m.beforeDelete != nil {
		m.beforeDelete()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	a, ok := m.store[id]
	if !ok {
		return ErrNotFound
	}
	if a.Status != status {
		return ErrStatusChanged
	}
	delete(m.store, id)
	return nil
}

func (m *mockAppointmentRepo) List(_ context.Context, f AppointmentFilter) ([]*Appointment, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Appointment
	for _, a := range m.store {
		if f.ProfessionalID != nil && a.ProfessionalID != *f.ProfessionalID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		out = append(out, a)
	}
	return out, len(out), nil
}

type mockAvailabilityRepo struct {
	slots map[uuid.UUID][]AvailabilitySlot
}

func (m *mockAvailabilityRepo) ListByProfessional(_ context.Context, id uuid.UUID) ([]AvailabilitySlot, error) {
	return m.slots[id], nil
}

func (m *mockAvailabilityRepo) Replace(_ context.Context, id uuid.UUID, slots []AvailabilitySlot) error {
	for i := range slots {
		slots[i].ID = uuid.New()
		slots[i].ProfessionalID = id
	}
	m.slots[id] = slots
	return nil
}

type mockHolidayRepo struct {
	items []Holiday
}

func (m *mockHolidayRepo) Create(_ context.Context, h *Holiday) error {
	h.ID = uuid.New()
	m.items = append(m.items, *h)
	return nil
}

func (m *mockHolidayRepo) Delete(_ context.Context, id uuid.UUID) error {
	for i, h := range m.items {
		if h.ID == id {
			m.items = append(m.items[:i], m.items[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (m *mockHolidayRepo) List(_ context.Context, from, to string) ([]Holiday, error) {
	var out []Holiday
	for _, h := range m.items {
		if (from == "" || h.Date >= from) && (to == "" || h.Date <= to) {
			out = append(out, h)
		}
	}
	return out, nil
}

// stubPricing prices every service from a map and allows up to 6
// installments on any method.
type stubPricing struct {
	prices    map[uuid.UUID]decimal.Decimal
	durations map[uuid.UUID]time.Duration
}

func (p *stubPricing) ResolvePrice(_ context.Context, _, serviceID uuid.UUID) (decimal.Decimal, error) {
	return p.prices[serviceID], nil
}

func (p *stubPricing) ServiceDuration(_ context.Context, serviceID uuid.UUID) (time.Duration, error) {
	if d, ok := p.durations[serviceID]; ok {
		return d, nil
	}
	return billing.DefaultDuration, nil
}

func (p *stubPricing) ValidateInstallments(_ context.Context, methodID *uuid.UUID, n int) error {
	if n < 1 || (methodID == nil && n > 1) || n > 6 {
		return billing.ErrInvalidInput
	}
	return nil
}

type stubPasswords struct {
	password string
	calls    int
}

func (p *stubPasswords) Verify(_ context.Context, _, password string) error {
	p.calls++
	if password == "" {
		return auth.ErrPasswordRequired
	}
	if password != p.password {
		return auth.ErrInvalidPassword
	}
	return nil
}

type fixture struct {
	svc       *Service
	appts     *mockAppointmentRepo
	slots     *mockAvailabilityRepo
	holidays  *mockHolidayRepo
	pricing   *stubPricing
	passwords *stubPasswords

	professional uuid.UUID
	patient      uuid.UUID
	service      uuid.UUID
}

func newFixture() *fixture {
	f := &fixture{
		appts:        newMockAppointmentRepo(),
		slots:        &mockAvailabilityRepo{slots: make(map[uuid.UUID][]AvailabilitySlot)},
		holidays:     &mockHolidayRepo{},
		passwords:    &stubPasswords{password: "s3cret"},
		professional: uuid.New(),
		patient:      uuid.New(),
		service:      uuid.New(),
	}
	f.pricing = &stubPricing{
		prices:    map[uuid.UUID]decimal.Decimal{f.service: decimal.NewFromInt(200)},
		durations: map[uuid.UUID]time.Duration{f.service: 50 * time.Minute},
	}
	f.svc = NewService(f.appts, f.slots, f.holidays, f.pricing, f.passwords, Options{
		Location:       time.UTC,
		MaxOccurrences: 52,
		Logger:         zerolog.Nop(),
	})
	// Tuesdays 13:00-17:00 only.
	f.slots.slots[f.professional] = []AvailabilitySlot{slot(2, "13:00", "17:00")}
	return f
}

func (f *fixture) request(date, clock string) BookingRequest {
	svc := f.service
	return BookingRequest{
		PatientID:      f.patient,
		ProfessionalID: f.professional,
		ServiceID:      &svc,
		Date:           date,
		Time:           clock,
	}
}

// -- Tests --

func TestBook_Single(t *testing.T) {
	f := newFixture()
	res, err := f.svc.Book(context.Background(), f.request("2024-01-02", "14:00"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Created != 1 || len(res.Occurrences) != 1 {
		t.Fatalf("expected one created occurrence, got %+v", res)
	}
	a := res.Occurrences[0].Appointment
	if a.Status != StatusScheduled {
		t.Errorf("expected scheduled, got %s", a.Status)
	}
	if !a.Price.Equal(decimal.NewFromInt(200)) || !a.Total.Equal(decimal.NewFromInt(200)) {
		t.Errorf("expected price 200, got %s total %s", a.Price, a.Total)
	}
	if got := a.EndTime.Sub(a.StartTime); got != 50*time.Minute {
		t.Errorf("expected service duration 50m, got %s", got)
	}
	if a.Installments != 1 {
		t.Errorf("expected installments default 1, got %d", a.Installments)
	}
	if a.RecurrenceGroupID != nil {
		t.Error("single booking should not have a recurrence group")
	}
}

func TestBook_OutsideHoursWarnsThenForceSaves(t *testing.T) {
	f := newFixture()
	req := f.request("2024-01-02", "09:00")

	_, err := f.svc.Book(context.Background(), req)
	var we *WarningError
	if !errors.As(err, &we) {
		t.Fatalf("expected *WarningError, got %v", err)
	}
	if we.Warning.Reason != ReasonOutsideSlotHours {
		t.Errorf("expected outside_slot_hours, got %s", we.Warning.Reason)
	}
	if f.appts.creates != 0 {
		t.Fatal("warned booking must not reach the store")
	}

	req.Force = true
	res, err := f.svc.Book(context.Background(), req)
	if err != nil {
		t.Fatalf("forced booking failed: %v", err)
	}
	if res.Created != 1 || !res.Forced {
		t.Errorf("expected forced creation, got %+v", res)
	}
	if w := res.Occurrences[0].Warning; w == nil || w.Reason != ReasonOutsideSlotHours {
		t.Errorf("forced occurrence should still report the bypassed warning, got %+v", w)
	}
}

func TestBook_NoSlotForDay(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Book(context.Background(), f.request("2024-01-03", "14:00"))
	var we *WarningError
	if !errors.As(err, &we) || we.Warning.Reason != ReasonNoSlotForDay {
		t.Fatalf("expected no_slot_for_day warning, got %v", err)
	}
}

func TestBook_ExtraSkipsAvailability(t *testing.T) {
	f := newFixture()
	req := f.request("2024-01-03", "07:00")
	req.IsExtra = true
	res, err := f.svc.Book(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Occurrences[0].Appointment.IsExtra {
		t.Error("expected is_extra to be stored")
	}
}

func TestBook_UnconfiguredProfessionalIsUnrestricted(t *testing.T) {
	f := newFixture()
	req := f.request("2024-01-06", "06:00")
	req.ProfessionalID = uuid.New()
	if _, err := f.svc.Book(context.Background(), req); err != nil {
		t.Fatalf("expected booking without slots to pass, got %v", err)
	}
}

func TestBook_Validation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	req := f.request("2024-01-02", "14:00")
	req.PatientID = uuid.Nil
	if _, err := f.svc.Book(ctx, req); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for missing patient, got %v", err)
	}

	req = f.request("not-a-date", "14:00")
	if _, err := f.svc.Book(ctx, req); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for bad date, got %v", err)
	}

	req = f.request("2024-01-02", "14:00")
	req.Installments = 3
	if _, err := f.svc.Book(ctx, req); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for installments without method, got %v", err)
	}

	req = f.request("2024-01-02", "14:00")
	d := decimal.NewFromInt(10)
	req.Pricing = billing.Adjustments{Discount: &d, DiscountPct: &d}
	if _, err := f.svc.Book(ctx, req); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for two discounts, got %v", err)
	}
	if f.appts.creates != 0 {
		t.Error("invalid requests must not reach the store")
	}
}

func TestBook_PricingAdjustments(t *testing.T) {
	f := newFixture()
	req := f.request("2024-01-02", "14:00")
	pct, add := decimal.NewFromInt(10), decimal.NewFromInt(15)
	req.Pricing = billing.Adjustments{DiscountPct: &pct, Addition: &add}

	res, err := f.svc.Book(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a := res.Occurrences[0].Appointment
	if !a.Discount.Equal(decimal.NewFromInt(20)) {
		t.Errorf("expected discount 20, got %s", a.Discount)
	}
	if !a.Total.Equal(decimal.NewFromInt(195)) {
		t.Errorf("expected total 195, got %s", a.Total)
	}
}

func TestBook_SlotTaken(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	if _, err := f.svc.Book(ctx, f.request("2024-01-02", "14:00")); err != nil {
		t.Fatalf("first booking: %v", err)
	}
	_, err := f.svc.Book(ctx, f.request("2024-01-02", "14:30"))
	if !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("expected ErrSlotTaken, got %v", err)
	}
}

func TestBook_RecurrencePartialSuccess(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	// Occupy the second Tuesday so that occurrence fails in the store.
	if _, err := f.svc.Book(ctx, f.request("2024-01-09", "14:00")); err != nil {
		t.Fatalf("seed booking: %v", err)
	}

	req := f.request("2024-01-01", "14:00")
	req.Recurrence = &RecurrenceRequest{Weekdays: []int{1, 2}, Occurrences: 4}
	res, err := f.svc.Book(ctx, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []struct{ date, outcome string }{
		{"2024-01-01", OutcomeWarned},  // Monday, no slot
		{"2024-01-02", OutcomeCreated}, // Tuesday
		{"2024-01-08", OutcomeWarned},
		{"2024-01-09", OutcomeFailed}, // already taken
	}
	if len(res.Occurrences) != len(want) {
		t.Fatalf("expected %d occurrences, got %d", len(want), len(res.Occurrences))
	}
	for i, w := range want {
		got := res.Occurrences[i]
		if got.Date != w.date || got.Outcome != w.outcome {
			t.Errorf("occurrence %d: got %s/%s, want %s/%s", i, got.Date, got.Outcome, w.date, w.outcome)
		}
	}
	if res.Created != 1 || res.Warned != 2 || res.Failed != 1 {
		t.Errorf("unexpected counts %+v", res)
	}
	if res.RecurrenceGroupID == nil || *res.Occurrences[1].Appointment.RecurrenceGroupID != *res.RecurrenceGroupID {
		t.Error("created occurrences should share the recurrence group")
	}
}

func TestBook_RecurrenceConfigErrorBeforeWrites(t *testing.T) {
	f := newFixture()
	req := f.request("2024-01-02", "14:00")
	req.Recurrence = &RecurrenceRequest{Occurrences: 3}
	_, err := f.svc.Book(context.Background(), req)
	var rce *RecurrenceConfigError
	if !errors.As(err, &rce) || !errors.Is(err, ErrEmptyWeekdays) {
		t.Fatalf("expected empty weekdays config error, got %v", err)
	}
	if f.appts.creates != 0 {
		t.Error("config errors must be reported before any write")
	}
}

func TestBook_RecurrenceLimit(t *testing.T) {
	f := newFixture()
	req := f.request("2024-01-02", "14:00")
	req.Recurrence = &RecurrenceRequest{Weekdays: []int{2}, Occurrences: 53}
	if _, err := f.svc.Book(context.Background(), req); !errors.Is(err, ErrOccurrenceLimit) {
		t.Fatalf("expected ErrOccurrenceLimit, got %v", err)
	}
}

func TestBook_HolidayIsAdvisory(t *testing.T) {
	f := newFixture()
	f.holidays.items = []Holiday{{ID: uuid.New(), Date: "2024-01-02", Name: "Founders Day", Type: "local"}}
	res, err := f.svc.Book(context.Background(), f.request("2024-01-02", "14:00"))
	if err != nil {
		t.Fatalf("holiday must not block: %v", err)
	}
	if h := res.Occurrences[0].Holiday; h == nil || h.Name != "Founders Day" {
		t.Errorf("expected holiday advisory, got %+v", h)
	}
}

func TestCheck_DoesNotWrite(t *testing.T) {
	f := newFixture()
	req := f.request("2024-01-02", "09:00")
	req.Force = true
	res, err := f.svc.Check(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.OK {
		t.Error("check ignores force and should report the warning")
	}
	if res.Occurrences[0].Warning == nil {
		t.Error("expected warning on occurrence")
	}
	if !res.Quote.Total().Equal(decimal.NewFromInt(200)) {
		t.Errorf("expected quote total 200, got %s", res.Quote.Total())
	}
	if f.appts.creates != 0 {
		t.Error("check must not write")
	}
}

func bookOne(t *testing.T, f *fixture, date, clock string) *Appointment {
	t.Helper()
	res, err := f.svc.Book(context.Background(), f.request(date, clock))
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	return res.Occurrences[0].Appointment
}

func TestDeleteAppointment_CompletedMeanwhileIsKept(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a := bookOne(t, f, "2024-01-02", "14:00")
	f.appts.beforeDelete = func() {
		_ = f.appts.UpdateStatus(ctx, a.ID, StatusCompleted)
	}

	err := f.svc.DeleteAppointment(ctx, a.ID, auth.DevUserID, "")
	if !errors.Is(err, ErrStatusChanged) {
		t.Fatalf("expected ErrStatusChanged, got %v", err)
	}
	got, err := f.svc.GetAppointment(ctx, a.ID)
	if err != nil {
		t.Fatalf("completed record should survive: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Errorf("expected completed, got %s", got.Status)
	}
}

func TestDeleteAppointment_CompletedRequiresPassword(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a := bookOne(t, f, "2024-01-02", "14:00")
	if err := f.svc.UpdateStatus(ctx, a.ID, StatusCompleted); err != nil {
		t.Fatalf("update status: %v", err)
	}

	err := f.svc.DeleteAppointment(ctx, a.ID, auth.DevUserID, "")
	if !errors.Is(err, auth.ErrPasswordRequired) {
		t.Fatalf("expected ErrPasswordRequired, got %v", err)
	}
	if f.appts.deletes != 0 {
		t.Fatal("delete must not be invoked without a password")
	}
	if _, err := f.svc.GetAppointment(ctx, a.ID); err != nil {
		t.Fatalf("record should still exist: %v", err)
	}

	if err := f.svc.DeleteAppointment(ctx, a.ID, auth.DevUserID, "wrong"); !errors.Is(err, auth.ErrInvalidPassword) {
		t.Fatalf("expected ErrInvalidPassword, got %v", err)
	}
	if f.appts.deletes != 0 {
		t.Fatal("delete must not be invoked with a wrong password")
	}

	if err := f.svc.DeleteAppointment(ctx, a.ID, auth.DevUserID, "s3cret"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.svc.GetAppointment(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected record gone, got %v", err)
	}
}

func TestDeleteAppointment_ScheduledNeedsNoPassword(t *testing.T) {
	f := newFixture()
	a := bookOne(t, f, "2024-01-02", "14:00")
	if err := f.svc.DeleteAppointment(context.Background(), a.ID, auth.DevUserID, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.passwords.calls != 0 {
		t.Error("password should not be checked for a scheduled appointment")
	}
}

func TestUpdateStatus_Invalid(t *testing.T) {
	f := newFixture()
	a := bookOne(t, f, "2024-01-02", "14:00")
	if err := f.svc.UpdateStatus(context.Background(), a.ID, "billed"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestUpdateAppointment_RescheduleWarnsUnlessForced(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a := bookOne(t, f, "2024-01-02", "14:00")

	patch := AppointmentPatch{Schedule: &SchedulePatch{Time: "10:00"}}
	_, err := f.svc.UpdateAppointment(ctx, a.ID, patch)
	var we *WarningError
	if !errors.As(err, &we) {
		t.Fatalf("expected warning, got %v", err)
	}
	stored, _ := f.svc.GetAppointment(ctx, a.ID)
	if !stored.StartTime.Equal(a.StartTime) {
		t.Fatal("warned update must not be written")
	}

	patch.Force = true
	updated, err := f.svc.UpdateAppointment(ctx, a.ID, patch)
	if err != nil {
		t.Fatalf("forced update: %v", err)
	}
	if ClockOf(updated.StartTime) != 600 || updated.StartTime.Format(dateLayout) != "2024-01-02" {
		t.Errorf("expected 2024-01-02 10:00, got %s", updated.StartTime)
	}
	if updated.EndTime.Sub(updated.StartTime) != 50*time.Minute {
		t.Error("reschedule should keep the duration")
	}
}

func TestUpdateAppointment_ServiceChangeOverwritesManualPrice(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a := bookOne(t, f, "2024-01-02", "14:00")

	manual := decimal.NewFromInt(150)
	updated, err := f.svc.UpdateAppointment(ctx, a.ID, AppointmentPatch{
		Pricing: &PricingPatch{Adjustments: billing.Adjustments{Price: &manual}},
	})
	if err != nil {
		t.Fatalf("manual price: %v", err)
	}
	if !updated.Price.Equal(manual) {
		t.Fatalf("expected manual price 150, got %s", updated.Price)
	}

	other := uuid.New()
	f.pricing.prices[other] = decimal.NewFromInt(320)
	f.pricing.durations[other] = 90 * time.Minute
	updated, err = f.svc.UpdateAppointment(ctx, a.ID, AppointmentPatch{Pricing: &PricingPatch{ServiceID: &other}})
	if err != nil {
		t.Fatalf("service change: %v", err)
	}
	if !updated.Price.Equal(decimal.NewFromInt(320)) {
		t.Errorf("service change should win over manual price, got %s", updated.Price)
	}
	if updated.EndTime.Sub(updated.StartTime) != 90*time.Minute {
		t.Error("service change should apply the new duration")
	}

	_, err = f.svc.UpdateAppointment(ctx, a.ID, AppointmentPatch{
		Pricing: &PricingPatch{ServiceID: &f.service, Adjustments: billing.Adjustments{Price: &manual}},
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for service change with manual price, got %v", err)
	}
}

func TestUpdateAppointment_PaymentAndNotes(t *testing.T) {
	f := newFixture()
	a := bookOne(t, f, "2024-01-02", "14:00")

	method := uuid.New()
	n, issued, notes := 3, true, "paid at reception"
	updated, err := f.svc.UpdateAppointment(context.Background(), a.ID, AppointmentPatch{
		Payment: &PaymentPatch{PaymentMethodID: &method, Installments: &n, InvoiceIssued: &issued},
		Notes:   &notes,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Installments != 3 || !updated.InvoiceIssued || updated.Notes != notes {
		t.Errorf("unexpected appointment %+v", updated)
	}

	tooMany := 12
	_, err = f.svc.UpdateAppointment(context.Background(), a.ID, AppointmentPatch{
		Payment: &PaymentPatch{Installments: &tooMany},
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestReplaceAvailability_Validates(t *testing.T) {
	f := newFixture()
	err := f.svc.ReplaceAvailability(context.Background(), f.professional, []AvailabilitySlot{slot(1, "12:00", "11:00")})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if err := f.svc.ReplaceAvailability(context.Background(), f.professional, []AvailabilitySlot{slot(1, "08:00", "12:00")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	slots, _ := f.svc.ListAvailability(context.Background(), f.professional)
	if len(slots) != 1 || slots[0].DayOfWeek != 1 {
		t.Errorf("expected replaced slot set, got %+v", slots)
	}
}

func TestHolidays(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	h := &Holiday{Date: "2024-12-25", Name: "Christmas"}
	if err := f.svc.CreateHoliday(ctx, h); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.Type != "national" {
		t.Errorf("expected default type national, got %s", h.Type)
	}
	if err := f.svc.CreateHoliday(ctx, &Holiday{Date: "25/12/2024", Name: "x"}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	items, err := f.svc.ListHolidays(ctx, "2024-12-01", "2024-12-31")
	if err != nil || len(items) != 1 {
		t.Fatalf("expected one holiday, got %v %v", items, err)
	}
	if err := f.svc.DeleteHoliday(ctx, h.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
}
