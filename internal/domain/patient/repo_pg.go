package patient

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clinic/clinic/internal/platform/db"
)

type repoPG struct{ db db.TxStarter }

func NewRepoPG(conn db.TxStarter) Repository { return &repoPG{db: conn} }

func (r *repoPG) conn(ctx context.Context) db.DBTX { return db.Conn(ctx, r.db) }

const patientCols = `id, full_name, COALESCE(email, ''), COALESCE(phone, ''),
	COALESCE(birth_date::text, ''), COALESCE(document, ''), price_table_id,
	COALESCE(notes, ''), marketing_opt_in, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.FullName, &p.Email, &p.Phone, &p.BirthDate, &p.Document,
		&p.PriceTableID, &p.Notes, &p.MarketingOptIn, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("patient: scan: %w", err)
	}
	return &p, nil
}

func null(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient (id, full_name, email, phone, birth_date, document, price_table_id, notes, marketing_opt_in)
		VALUES ($1, $2, $3, $4, $5::date, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		p.ID, p.FullName, null(p.Email), null(p.Phone), null(p.BirthDate), null(p.Document),
		p.PriceTableID, null(p.Notes), p.MarketingOptIn).
		Scan(&p.CreatedAt, &p.UpdatedAt)
	if db.IsForeignKeyViolation(err) {
		return fmt.Errorf("%w: unknown price table", ErrInvalidInput)
	}
	if err != nil {
		return fmt.Errorf("patient: insert: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE patient SET full_name=$2, email=$3, phone=$4, birth_date=$5::date, document=$6,
			notes=$7, marketing_opt_in=$8, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.FullName, null(p.Email), null(p.Phone), null(p.BirthDate), null(p.Document),
		null(p.Notes), p.MarketingOptIn).Scan(&p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("patient: update: %w", err)
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patient WHERE id = $1`, id)
	if db.IsForeignKeyViolation(err) {
		return fmt.Errorf("%w: patient has appointments", ErrInvalidInput)
	}
	if err != nil {
		return fmt.Errorf("patient: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) Search(ctx context.Context, params SearchParams) ([]*Patient, int, error) {
	where := ``
	var args []any
	if params.Query != "" {
		args = append(args, "%"+params.Query+"%")
		where = ` WHERE full_name ILIKE $1 OR email ILIKE $1 OR phone ILIKE $1 OR document ILIKE $1`
	}
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patient`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("patient: count: %w", err)
	}
	n := len(args)
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+patientCols+` FROM patient`+where+fmt.Sprintf(` ORDER BY full_name LIMIT $%d OFFSET $%d`, n+1, n+2),
		append(args, params.Limit, params.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("patient: search: %w", err)
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *repoPG) SetPriceTable(ctx context.Context, id uuid.UUID, tableID *uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE patient SET price_table_id = $2, updated_at = NOW() WHERE id = $1`, id, tableID)
	if db.IsForeignKeyViolation(err) {
		return fmt.Errorf("%w: unknown price table", ErrInvalidInput)
	}
	if err != nil {
		return fmt.Errorf("patient: set price table: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) OptedInContacts(ctx context.Context, channel string) ([]Contact, error) {
	column := "email"
	if channel == "sms" {
		column = "phone"
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, full_name, `+column+` FROM patient
		WHERE marketing_opt_in AND COALESCE(`+column+`, '') <> ''
		ORDER BY full_name`)
	if err != nil {
		return nil, fmt.Errorf("patient: list contacts: %w", err)
	}
	defer rows.Close()
	var out []Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.PatientID, &c.FullName, &c.Destination); err != nil {
			return nil, fmt.Errorf("patient: scan contact: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
