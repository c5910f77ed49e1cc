package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/clinic/clinic/internal/platform/db"
)

// =========== Service Repository ===========

type serviceRepoPG struct{ db db.TxStarter }

func NewServiceRepoPG(conn db.TxStarter) ServiceRepository { return &serviceRepoPG{db: conn} }

func (r *serviceRepoPG) conn(ctx context.Context) db.DBTX { return db.Conn(ctx, r.db) }

const serviceCols = `id, name, price, duration_minutes, active, created_at`

func scanService(row pgx.Row) (*ClinicService, error) {
	var s ClinicService
	err := row.Scan(&s.ID, &s.Name, &s.Price, &s.DurationMinutes, &s.Active, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("billing: scan service: %w", err)
	}
	return &s, nil
}

func (r *serviceRepoPG) Create(ctx context.Context, s *ClinicService) error {
	s.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO clinic_service (id, name, price, duration_minutes, active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		s.ID, s.Name, s.Price, s.DurationMinutes, s.Active).Scan(&s.CreatedAt)
	if err != nil {
		return fmt.Errorf("billing: insert service: %w", err)
	}
	return nil
}

func (r *serviceRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*ClinicService, error) {
	return scanService(r.conn(ctx).QueryRow(ctx, `SELECT `+serviceCols+` FROM clinic_service WHERE id = $1`, id))
}

func (r *serviceRepoPG) List(ctx context.Context, activeOnly bool, limit, offset int) ([]*ClinicService, int, error) {
	where := ""
	if activeOnly {
		where = " WHERE active"
	}
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM clinic_service`+where).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("billing: count services: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+serviceCols+` FROM clinic_service`+where+` ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("billing: list services: %w", err)
	}
	defer rows.Close()
	var items []*ClinicService
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, rows.Err()
}

// =========== Price Table Repository ===========

type priceTableRepoPG struct{ db db.TxStarter }

func NewPriceTableRepoPG(conn db.TxStarter) PriceTableRepository { return &priceTableRepoPG{db: conn} }

func (r *priceTableRepoPG) conn(ctx context.Context) db.DBTX { return db.Conn(ctx, r.db) }

func (r *priceTableRepoPG) Create(ctx context.Context, t *PriceTable) error {
	t.ID = uuid.New()
	return db.WithTx(ctx, r.db, func(ctx context.Context) error {
		err := r.conn(ctx).QueryRow(ctx,
			`INSERT INTO price_table (id, name, active) VALUES ($1, $2, $3) RETURNING created_at`,
			t.ID, t.Name, t.Active).Scan(&t.CreatedAt)
		if err != nil {
			return fmt.Errorf("billing: insert price table: %w", err)
		}
		return r.insertEntries(ctx, t.ID, t.Entries)
	})
}

func (r *priceTableRepoPG) insertEntries(ctx context.Context, tableID uuid.UUID, entries []PriceEntry) error {
	for _, e := range entries {
		_, err := r.conn(ctx).Exec(ctx,
			`INSERT INTO price_table_entry (price_table_id, service_id, price) VALUES ($1, $2, $3)`,
			tableID, e.ServiceID, e.Price)
		if db.IsForeignKeyViolation(err) {
			return fmt.Errorf("%w: unknown service %s", ErrInvalidInput, e.ServiceID)
		}
		if err != nil {
			return fmt.Errorf("billing: insert price entry: %w", err)
		}
	}
	return nil
}

func (r *priceTableRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*PriceTable, error) {
	var t PriceTable
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT id, name, active, created_at FROM price_table WHERE id = $1`, id).
		Scan(&t.ID, &t.Name, &t.Active, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("billing: select price table: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT service_id, price FROM price_table_entry WHERE price_table_id = $1 ORDER BY service_id`, id)
	if err != nil {
		return nil, fmt.Errorf("billing: select price entries: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var e PriceEntry
		if err := rows.Scan(&e.ServiceID, &e.Price); err != nil {
			return nil, fmt.Errorf("billing: scan price entry: %w", err)
		}
		t.Entries = append(t.Entries, e)
	}
	return &t, rows.Err()
}

func (r *priceTableRepoPG) List(ctx context.Context, limit, offset int) ([]*PriceTable, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM price_table`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("billing: count price tables: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT id, name, active, created_at FROM price_table ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("billing: list price tables: %w", err)
	}
	defer rows.Close()
	var items []*PriceTable
	for rows.Next() {
		var t PriceTable
		if err := rows.Scan(&t.ID, &t.Name, &t.Active, &t.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("billing: scan price table: %w", err)
		}
		items = append(items, &t)
	}
	return items, total, rows.Err()
}

func (r *priceTableRepoPG) ReplaceEntries(ctx context.Context, tableID uuid.UUID, entries []PriceEntry) error {
	return db.WithTx(ctx, r.db, func(ctx context.Context) error {
		tag, err := r.conn(ctx).Exec(ctx, `SELECT 1 FROM price_table WHERE id = $1 FOR UPDATE`, tableID)
		if err != nil {
			return fmt.Errorf("billing: lock price table: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		if _, err := r.conn(ctx).Exec(ctx, `DELETE FROM price_table_entry WHERE price_table_id = $1`, tableID); err != nil {
			return fmt.Errorf("billing: clear price entries: %w", err)
		}
		return r.insertEntries(ctx, tableID, entries)
	})
}

func (r *priceTableRepoPG) TableForPatient(ctx context.Context, patientID uuid.UUID) (*uuid.UUID, error) {
	var id *uuid.UUID
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT pt.id FROM patient p
		JOIN price_table pt ON pt.id = p.price_table_id AND pt.active
		WHERE p.id = $1`, patientID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("billing: select patient price table: %w", err)
	}
	return id, nil
}

func (r *priceTableRepoPG) EntryPrice(ctx context.Context, tableID, serviceID uuid.UUID) (*decimal.Decimal, error) {
	var p decimal.Decimal
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT price FROM price_table_entry WHERE price_table_id = $1 AND service_id = $2`,
		tableID, serviceID).Scan(&p)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("billing: select price entry: %w", err)
	}
	return &p, nil
}

// =========== Payment Method Repository ===========

type paymentMethodRepoPG struct{ db db.TxStarter }

func NewPaymentMethodRepoPG(conn db.TxStarter) PaymentMethodRepository {
	return &paymentMethodRepoPG{db: conn}
}

func (r *paymentMethodRepoPG) conn(ctx context.Context) db.DBTX { return db.Conn(ctx, r.db) }

func (r *paymentMethodRepoPG) Create(ctx context.Context, m *PaymentMethod) error {
	m.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx,
		`INSERT INTO payment_method (id, name, max_installments, active) VALUES ($1, $2, $3, $4)`,
		m.ID, m.Name, m.MaxInstallments, m.Active)
	if err != nil {
		return fmt.Errorf("billing: insert payment method: %w", err)
	}
	return nil
}

func (r *paymentMethodRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*PaymentMethod, error) {
	var m PaymentMethod
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT id, name, max_installments, active FROM payment_method WHERE id = $1`, id).
		Scan(&m.ID, &m.Name, &m.MaxInstallments, &m.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("billing: select payment method: %w", err)
	}
	return &m, nil
}

func (r *paymentMethodRepoPG) List(ctx context.Context) ([]*PaymentMethod, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT id, name, max_installments, active FROM payment_method ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("billing: list payment methods: %w", err)
	}
	defer rows.Close()
	var items []*PaymentMethod
	for rows.Next() {
		var m PaymentMethod
		if err := rows.Scan(&m.ID, &m.Name, &m.MaxInstallments, &m.Active); err != nil {
			return nil, fmt.Errorf("billing: scan payment method: %w", err)
		}
		items = append(items, &m)
	}
	return items, rows.Err()
}
