package scheduling

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clinic/clinic/internal/platform/db"
)

// =========== Appointment Repository ===========

type appointmentRepoPG struct{ db db.TxStarter }

func NewAppointmentRepoPG(conn db.TxStarter) AppointmentRepository {
	return &appointmentRepoPG{db: conn}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.DBTX { return db.Conn(ctx, r.db) }

const apptCols = `id, patient_id, professional_id, service_id, location_id, start_time, end_time,
	status, price, discount, addition, payment_method_id, installments, invoice_issued,
	COALESCE(notes, ''), is_extra, recurrence_group_id, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.ProfessionalID, &a.ServiceID, &a.LocationID,
		&a.StartTime, &a.EndTime, &a.Status, &a.Price, &a.Discount, &a.Addition,
		&a.PaymentMethodID, &a.Installments, &a.InvoiceIssued, &a.Notes, &a.IsExtra,
		&a.RecurrenceGroupID, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scheduling: scan appointment: %w", err)
	}
	a.computeTotal()
	return &a, nil
}

func classifyWrite(op string, err error) error {
	switch {
	case db.IsExclusionViolation(err):
		return ErrSlotTaken
	case db.IsForeignKeyViolation(err):
		return fmt.Errorf("%w: referenced patient, service or payment method does not exist", ErrInvalidInput)
	default:
		return fmt.Errorf("scheduling: %s: %w", op, err)
	}
}

func nullableText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment (id, patient_id, professional_id, service_id, location_id,
			start_time, end_time, status, price, discount, addition, payment_method_id,
			installments, invoice_issued, notes, is_extra, recurrence_group_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.ProfessionalID, a.ServiceID, a.LocationID,
		a.StartTime, a.EndTime, string(a.Status), a.Price, a.Discount, a.Addition, a.PaymentMethodID,
		a.Installments, a.InvoiceIssued, nullableText(a.Notes), a.IsExtra, a.RecurrenceGroupID).
		Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return classifyWrite("insert appointment", err)
	}
	return nil
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppointment(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointment WHERE id = $1`, id))
}

func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointment SET professional_id=$2, service_id=$3, location_id=$4, start_time=$5,
			end_time=$6, price=$7, discount=$8, addition=$9, payment_method_id=$10,
			installments=$11, invoice_issued=$12, notes=$13, is_extra=$14, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		a.ID, a.ProfessionalID, a.ServiceID, a.LocationID, a.StartTime,
		a.EndTime, a.Price, a.Discount, a.Addition, a.PaymentMethodID,
		a.Installments, a.InvoiceIssued, nullableText(a.Notes), a.IsExtra).
		Scan(&a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return classifyWrite("update appointment", err)
	}
	return nil
}

func (r *appointmentRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE appointment SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(status))
	if err != nil {
		return classifyWrite("update appointment status", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *appointmentRepoPG) Delete(ctx context.Context, id uuid.UUID, status Status) error {
	conn := r.conn(ctx)
	tag, err := conn.Exec(ctx, `DELETE FROM appointment WHERE id = $1 AND status = $2`, id, string(status))
	if err != nil {
		return fmt.Errorf("scheduling: delete appointment: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	if err := conn.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM appointment WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("scheduling: delete appointment: %w", err)
	}
	if exists {
		return ErrStatusChanged
	}
	return ErrNotFound
}

func (r *appointmentRepoPG) List(ctx context.Context, f AppointmentFilter) ([]*Appointment, int, error) {
	where := ` WHERE 1=1`
	var args []any
	add := func(clause string, v any) {
		args = append(args, v)
		where += fmt.Sprintf(clause, len(args))
	}
	if f.ProfessionalID != nil {
		add(` AND professional_id = $%d`, *f.ProfessionalID)
	}
	if f.PatientID != nil {
		add(` AND patient_id = $%d`, *f.PatientID)
	}
	if f.Status != "" {
		add(` AND status = $%d`, string(f.Status))
	}
	if f.From != nil {
		add(` AND start_time >= $%d`, *f.From)
	}
	if f.To != nil {
		add(` AND start_time < $%d`, *f.To)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointment`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("scheduling: count appointments: %w", err)
	}

	n := len(args)
	query := `SELECT ` + apptCols + ` FROM appointment` + where +
		fmt.Sprintf(` ORDER BY start_time LIMIT $%d OFFSET $%d`, n+1, n+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("scheduling: list appointments: %w", err)
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

// =========== Availability Repository ===========

type availabilityRepoPG struct{ db db.TxStarter }

func NewAvailabilityRepoPG(conn db.TxStarter) AvailabilityRepository {
	return &availabilityRepoPG{db: conn}
}

func (r *availabilityRepoPG) conn(ctx context.Context) db.DBTX { return db.Conn(ctx, r.db) }

func (r *availabilityRepoPG) ListByProfessional(ctx context.Context, professionalID uuid.UUID) ([]AvailabilitySlot, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, professional_id, day_of_week, start_minute, end_minute, location_id
		FROM availability_slot WHERE professional_id = $1
		ORDER BY day_of_week, start_minute`, professionalID)
	if err != nil {
		return nil, fmt.Errorf("scheduling: list availability: %w", err)
	}
	defer rows.Close()
	var slots []AvailabilitySlot
	for rows.Next() {
		var s AvailabilitySlot
		var start, end int
		if err := rows.Scan(&s.ID, &s.ProfessionalID, &s.DayOfWeek, &start, &end, &s.LocationID); err != nil {
			return nil, fmt.Errorf("scheduling: scan availability: %w", err)
		}
		s.StartTime, s.EndTime = Clock(start), Clock(end)
		slots = append(slots, s)
	}
	return slots, rows.Err()
}

func (r *availabilityRepoPG) Replace(ctx context.Context, professionalID uuid.UUID, slots []AvailabilitySlot) error {
	return db.WithTx(ctx, r.db, func(ctx context.Context) error {
		if _, err := r.conn(ctx).Exec(ctx,
			`DELETE FROM availability_slot WHERE professional_id = $1`, professionalID); err != nil {
			return fmt.Errorf("scheduling: clear availability: %w", err)
		}
		for i := range slots {
			s := &slots[i]
			s.ID = uuid.New()
			s.ProfessionalID = professionalID
			_, err := r.conn(ctx).Exec(ctx, `
				INSERT INTO availability_slot (id, professional_id, day_of_week, start_minute, end_minute, location_id)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				s.ID, professionalID, s.DayOfWeek, int(s.StartTime), int(s.EndTime), s.LocationID)
			if err != nil {
				return fmt.Errorf("scheduling: insert availability: %w", err)
			}
		}
		return nil
	})
}

// =========== Holiday Repository ===========

type holidayRepoPG struct{ db db.TxStarter }

func NewHolidayRepoPG(conn db.TxStarter) HolidayRepository { return &holidayRepoPG{db: conn} }

func (r *holidayRepoPG) conn(ctx context.Context) db.DBTX { return db.Conn(ctx, r.db) }

func (r *holidayRepoPG) Create(ctx context.Context, h *Holiday) error {
	h.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx,
		`INSERT INTO holiday (id, date, name, type) VALUES ($1, $2::date, $3, $4)`,
		h.ID, h.Date, h.Name, h.Type)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("%w: holiday %q already exists on %s", ErrInvalidInput, h.Name, h.Date)
	}
	if err != nil {
		return fmt.Errorf("scheduling: insert holiday: %w", err)
	}
	return nil
}

func (r *holidayRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM holiday WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("scheduling: delete holiday: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *holidayRepoPG) List(ctx context.Context, from, to string) ([]Holiday, error) {
	query := `SELECT id, date::text, name, type FROM holiday WHERE 1=1`
	var args []any
	if from != "" {
		args = append(args, from)
		query += fmt.Sprintf(` AND date >= $%d::date`, len(args))
	}
	if to != "" {
		args = append(args, to)
		query += fmt.Sprintf(` AND date <= $%d::date`, len(args))
	}
	rows, err := r.conn(ctx).Query(ctx, query+` ORDER BY date`, args...)
	if err != nil {
		return nil, fmt.Errorf("scheduling: list holidays: %w", err)
	}
	defer rows.Close()
	var out []Holiday
	for rows.Next() {
		var h Holiday
		if err := rows.Scan(&h.ID, &h.Date, &h.Name, &h.Type); err != nil {
			return nil, fmt.Errorf("scheduling: scan holiday: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
