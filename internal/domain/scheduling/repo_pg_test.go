package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
)

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func TestAppointmentRepoPG_CreateOverlapIsSlotTaken(t *testing.T) {
	mock := newMockPool(t)
	repo := NewAppointmentRepoPG(mock)

	mock.ExpectQuery("INSERT INTO appointment").
		WillReturnError(&pgconn.PgError{Code: "23P01", ConstraintName: "appointment_no_overlap"})

	start := time.Date(2024, 1, 2, 14, 0, 0, 0, time.UTC)
	err := repo.Create(context.Background(), &Appointment{
		PatientID: uuid.New(), ProfessionalID: uuid.New(),
		StartTime: start, EndTime: start.Add(time.Hour), Status: StatusScheduled, Installments: 1,
	})
	if !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("expected ErrSlotTaken, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAppointmentRepoPG_Create(t *testing.T) {
	mock := newMockPool(t)
	repo := NewAppointmentRepoPG(mock)

	now := time.Now()
	mock.ExpectQuery("INSERT INTO appointment").
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	start := time.Date(2024, 1, 2, 14, 0, 0, 0, time.UTC)
	a := &Appointment{
		PatientID: uuid.New(), ProfessionalID: uuid.New(),
		StartTime: start, EndTime: start.Add(time.Hour), Status: StatusScheduled,
		Price: decimal.NewFromInt(200), Installments: 1,
	}
	if err := repo.Create(context.Background(), a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.ID == uuid.Nil || !a.CreatedAt.Equal(now) {
		t.Errorf("expected id and created_at to be set, got %+v", a)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAppointmentRepoPG_UpdateStatusNotFound(t *testing.T) {
	mock := newMockPool(t)
	repo := NewAppointmentRepoPG(mock)

	id := uuid.New()
	mock.ExpectExec("UPDATE appointment SET status").
		WithArgs(id, "completed").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	if err := repo.UpdateStatus(context.Background(), id, StatusCompleted); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAppointmentRepoPG_ListFilters(t *testing.T) {
	mock := newMockPool(t)
	repo := NewAppointmentRepoPG(mock)

	prof := uuid.New()
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM appointment WHERE 1=1 AND professional_id = \$1 AND status = \$2 AND start_time >= \$3`).
		WithArgs(prof, "scheduled", from).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`ORDER BY start_time LIMIT \$4 OFFSET \$5`).
		WithArgs(prof, "scheduled", from, 20, 0).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "patient_id", "professional_id", "service_id", "location_id", "start_time", "end_time",
			"status", "price", "discount", "addition", "payment_method_id", "installments", "invoice_issued",
			"notes", "is_extra", "recurrence_group_id", "created_at", "updated_at",
		}))

	items, total, err := repo.List(context.Background(), AppointmentFilter{
		ProfessionalID: &prof, Status: StatusScheduled, From: &from, Limit: 20,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 0 || len(items) != 0 {
		t.Errorf("expected empty page, got %d items total %d", len(items), total)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAvailabilityRepoPG_Replace(t *testing.T) {
	mock := newMockPool(t)
	repo := NewAvailabilityRepoPG(mock)

	prof := uuid.New()
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM availability_slot").
		WithArgs(prof).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec("INSERT INTO availability_slot").
		WithArgs(pgxmock.AnyArg(), prof, 2, 780, 1020, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	slots := []AvailabilitySlot{slot(2, "13:00", "17:00")}
	if err := repo.Replace(context.Background(), prof, slots); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if slots[0].ProfessionalID != prof || slots[0].ID == uuid.Nil {
		t.Errorf("expected ids to be assigned, got %+v", slots[0])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAvailabilityRepoPG_ListByProfessional(t *testing.T) {
	mock := newMockPool(t)
	repo := NewAvailabilityRepoPG(mock)

	prof := uuid.New()
	mock.ExpectQuery("FROM availability_slot WHERE professional_id").
		WithArgs(prof).
		WillReturnRows(pgxmock.NewRows([]string{"id", "professional_id", "day_of_week", "start_minute", "end_minute", "location_id"}).
			AddRow(uuid.New(), prof, 2, 780, 1020, (*uuid.UUID)(nil)))

	slots, err := repo.ListByProfessional(context.Background(), prof)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(slots) != 1 || slots[0].StartTime.String() != "13:00" || slots[0].EndTime.String() != "17:00" {
		t.Errorf("unexpected slots %+v", slots)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestHolidayRepoPG_ListRange(t *testing.T) {
	mock := newMockPool(t)
	repo := NewHolidayRepoPG(mock)

	mock.ExpectQuery(`FROM holiday WHERE 1=1 AND date >= \$1::date AND date <= \$2::date ORDER BY date`).
		WithArgs("2024-12-01", "2024-12-31").
		WillReturnRows(pgxmock.NewRows([]string{"id", "date", "name", "type"}).
			AddRow(uuid.New(), "2024-12-25", "Christmas", "national"))

	items, err := repo.List(context.Background(), "2024-12-01", "2024-12-31")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 || items[0].Date != "2024-12-25" {
		t.Errorf("unexpected holidays %+v", items)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAppointmentRepoPG_DeleteIsConditionalOnStatus(t *testing.T) {
	mock := newMockPool(t)
	repo := NewAppointmentRepoPG(mock)

	id := uuid.New()
	mock.ExpectExec("DELETE FROM appointment").
		WithArgs(id, "scheduled").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	if err := repo.Delete(context.Background(), id, StatusScheduled); !errors.Is(err, ErrStatusChanged) {
		t.Fatalf("expected ErrStatusChanged, got %v", err)
	}

	mock.ExpectExec("DELETE FROM appointment").
		WithArgs(id, "scheduled").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	if err := repo.Delete(context.Background(), id, StatusScheduled); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
