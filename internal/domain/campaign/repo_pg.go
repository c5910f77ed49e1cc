package campaign

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clinic/clinic/internal/domain/patient"
	"github.com/clinic/clinic/internal/platform/db"
)

type repoPG struct{ db db.TxStarter }

func NewRepoPG(conn db.TxStarter) Repository { return &repoPG{db: conn} }

func (r *repoPG) conn(ctx context.Context) db.DBTX { return db.Conn(ctx, r.db) }

const campaignCols = `id, name, channel, COALESCE(subject, ''), body, status, total, sent, failed,
	created_at, started_at, finished_at`

func scanCampaign(row pgx.Row) (*Campaign, error) {
	var c Campaign
	err := row.Scan(&c.ID, &c.Name, &c.Channel, &c.Subject, &c.Body, &c.Status,
		&c.Total, &c.Sent, &c.Failed, &c.CreatedAt, &c.StartedAt, &c.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("campaign: scan: %w", err)
	}
	return &c, nil
}

func (r *repoPG) Create(ctx context.Context, c *Campaign) error {
	c.ID = uuid.New()
	c.Status = StatusDraft
	var subject *string
	if c.Subject != "" {
		subject = &c.Subject
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO campaign (id, name, channel, subject, body, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		c.ID, c.Name, string(c.Channel), subject, c.Body, string(c.Status)).Scan(&c.CreatedAt)
	if err != nil {
		return fmt.Errorf("campaign: insert: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Campaign, error) {
	return scanCampaign(r.conn(ctx).QueryRow(ctx, `SELECT `+campaignCols+` FROM campaign WHERE id = $1`, id))
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Campaign, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM campaign`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("campaign: count: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+campaignCols+` FROM campaign ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("campaign: list: %w", err)
	}
	defer rows.Close()
	var items []*Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, rows.Err()
}

func (r *repoPG) ListByStatus(ctx context.Context, status Status) ([]uuid.UUID, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT id FROM campaign WHERE status = $1 ORDER BY created_at`, string(status))
	if err != nil {
		return nil, fmt.Errorf("campaign: list by status: %w", err)
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("campaign: scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *repoPG) Enqueue(ctx context.Context, id uuid.UUID, contacts []patient.Contact) error {
	return db.WithTx(ctx, r.db, func(ctx context.Context) error {
		var status Status
		err := r.conn(ctx).QueryRow(ctx,
			`SELECT status FROM campaign WHERE id = $1 FOR UPDATE`, id).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("campaign: lock: %w", err)
		}
		if status != StatusDraft {
			return ErrNotDraft
		}

		rows := make([][]any, len(contacts))
		for i, c := range contacts {
			rows[i] = []any{uuid.New(), id, c.PatientID, c.Destination}
		}
		n, err := r.conn(ctx).CopyFrom(ctx,
			pgx.Identifier{"campaign_recipient"},
			[]string{"id", "campaign_id", "patient_id", "destination"},
			pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("campaign: copy recipients: %w", err)
		}

		if _, err := r.conn(ctx).Exec(ctx,
			`UPDATE campaign SET status = $2, total = $3 WHERE id = $1`,
			id, string(StatusQueued), int(n)); err != nil {
			return fmt.Errorf("campaign: mark queued: %w", err)
		}
		return nil
	})
}

func (r *repoPG) Claim(ctx context.Context, id uuid.UUID) (*Campaign, error) {
	c, err := scanCampaign(r.conn(ctx).QueryRow(ctx, `
		UPDATE campaign SET status = $2, started_at = NOW()
		WHERE id = $1 AND status = $3
		RETURNING `+campaignCols,
		id, string(StatusProcessing), string(StatusQueued)))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotQueued
	}
	return c, err
}

func (r *repoPG) Pending(ctx context.Context, id uuid.UUID, limit int) ([]Recipient, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT r.id, r.patient_id, p.full_name, r.destination
		FROM campaign_recipient r
		JOIN patient p ON p.id = r.patient_id
		WHERE r.campaign_id = $1 AND r.status = 'pending'
		ORDER BY r.id
		LIMIT $2`, id, limit)
	if err != nil {
		return nil, fmt.Errorf("campaign: pending recipients: %w", err)
	}
	defer rows.Close()
	var out []Recipient
	for rows.Next() {
		var rc Recipient
		if err := rows.Scan(&rc.ID, &rc.PatientID, &rc.FullName, &rc.Destination); err != nil {
			return nil, fmt.Errorf("campaign: scan recipient: %w", err)
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

func (r *repoPG) MarkRecipient(ctx context.Context, campaignID, recipientID uuid.UUID, sendErr error) error {
	status, counter := RecipientSent, "sent"
	var errText *string
	if sendErr != nil {
		status, counter = RecipientFailed, "failed"
		msg := sendErr.Error()
		errText = &msg
	}
	return db.WithTx(ctx, r.db, func(ctx context.Context) error {
		tag, err := r.conn(ctx).Exec(ctx, `
			UPDATE campaign_recipient SET status = $2, error = $3, sent_at = NOW()
			WHERE id = $1 AND status = 'pending'`,
			recipientID, string(status), errText)
		if err != nil {
			return fmt.Errorf("campaign: mark recipient: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		if _, err := r.conn(ctx).Exec(ctx,
			`UPDATE campaign SET `+counter+` = `+counter+` + 1 WHERE id = $1`, campaignID); err != nil {
			return fmt.Errorf("campaign: bump %s: %w", counter, err)
		}
		return nil
	})
}

func (r *repoPG) Finish(ctx context.Context, id uuid.UUID, status Status) (*Campaign, error) {
	return scanCampaign(r.conn(ctx).QueryRow(ctx, `
		UPDATE campaign SET status = $2, finished_at = NOW()
		WHERE id = $1
		RETURNING `+campaignCols, id, string(status)))
}
