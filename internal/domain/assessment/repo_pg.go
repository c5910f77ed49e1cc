package assessment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clinic/clinic/internal/platform/db"
)

// -- Templates --

type templateRepoPG struct{ db db.TxStarter }

func NewTemplateRepoPG(conn db.TxStarter) TemplateRepository { return &templateRepoPG{db: conn} }

func (r *templateRepoPG) conn(ctx context.Context) db.DBTX { return db.Conn(ctx, r.db) }

func scanTemplate(row pgx.Row) (*Template, error) {
	var t Template
	var raw []byte
	err := row.Scan(&t.ID, &t.Name, &t.Description, &raw, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("assessment: scan template: %w", err)
	}
	if err := json.Unmarshal(raw, &t.Fields); err != nil {
		return nil, fmt.Errorf("assessment: decode fields of %s: %w", t.ID, err)
	}
	return &t, nil
}

func (r *templateRepoPG) Create(ctx context.Context, t *Template) error {
	t.ID = uuid.New()
	fields, err := json.Marshal(t.Fields)
	if err != nil {
		return fmt.Errorf("assessment: encode fields: %w", err)
	}
	err = r.conn(ctx).QueryRow(ctx, `
		INSERT INTO form_template (id, name, description, fields)
		VALUES ($1, $2, $3, $4::jsonb)
		RETURNING created_at`,
		t.ID, t.Name, t.Description, fields).Scan(&t.CreatedAt)
	if err != nil {
		return fmt.Errorf("assessment: insert template: %w", err)
	}
	return nil
}

func (r *templateRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Template, error) {
	return scanTemplate(r.conn(ctx).QueryRow(ctx, `
		SELECT id, name, COALESCE(description, ''), fields, created_at
		FROM form_template WHERE id = $1`, id))
}

func (r *templateRepoPG) List(ctx context.Context, limit, offset int) ([]*Template, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM form_template`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("assessment: count templates: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, name, COALESCE(description, ''), fields, created_at
		FROM form_template ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("assessment: list templates: %w", err)
	}
	defer rows.Close()
	var items []*Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, t)
	}
	return items, total, rows.Err()
}

// -- Responses --

type responseRepoPG struct{ db db.TxStarter }

func NewResponseRepoPG(conn db.TxStarter) ResponseRepository { return &responseRepoPG{db: conn} }

func (r *responseRepoPG) conn(ctx context.Context) db.DBTX { return db.Conn(ctx, r.db) }

func (r *responseRepoPG) Create(ctx context.Context, resp *Response) error {
	resp.ID = uuid.New()
	answers, err := json.Marshal(resp.Answers)
	if err != nil {
		return fmt.Errorf("assessment: encode answers: %w", err)
	}
	err = r.conn(ctx).QueryRow(ctx, `
		INSERT INTO form_response (id, template_id, patient_id, appointment_id, answers, score)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6)
		RETURNING created_at`,
		resp.ID, resp.TemplateID, resp.PatientID, resp.AppointmentID, answers, resp.Score).
		Scan(&resp.CreatedAt)
	if db.IsForeignKeyViolation(err) {
		return fmt.Errorf("%w: unknown patient or appointment", ErrInvalidInput)
	}
	if err != nil {
		return fmt.Errorf("assessment: insert response: %w", err)
	}
	return nil
}

func (r *responseRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Response, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM form_response WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("assessment: count responses: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, template_id, patient_id, appointment_id, answers, score, created_at
		FROM form_response WHERE patient_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("assessment: list responses: %w", err)
	}
	defer rows.Close()
	var items []*Response
	for rows.Next() {
		var resp Response
		var raw []byte
		if err := rows.Scan(&resp.ID, &resp.TemplateID, &resp.PatientID, &resp.AppointmentID,
			&raw, &resp.Score, &resp.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("assessment: scan response: %w", err)
		}
		if err := json.Unmarshal(raw, &resp.Answers); err != nil {
			return nil, 0, fmt.Errorf("assessment: decode answers of %s: %w", resp.ID, err)
		}
		items = append(items, &resp)
	}
	return items, total, rows.Err()
}
