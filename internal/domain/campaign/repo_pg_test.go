package campaign

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinic/clinic/internal/domain/patient"
	"github.com/clinic/clinic/internal/platform/notification"
)

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

var campaignRowCols = []string{"id", "name", "channel", "subject", "body", "status", "total", "sent",
	"failed", "created_at", "started_at", "finished_at"}

func TestRepoPG_Create(t *testing.T) {
	mock := newMockPool(t)
	repo := NewRepoPG(mock)

	now := time.Now()
	c := &Campaign{Name: "Promo", Channel: notification.ChannelSMS, Body: "Hi"}
	mock.ExpectQuery("INSERT INTO campaign").
		WithArgs(pgxmock.AnyArg(), "Promo", "sms", (*string)(nil), "Hi", "draft").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(now))

	require.NoError(t, repo.Create(context.Background(), c))
	assert.Equal(t, StatusDraft, c.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepoPG_EnqueueCopiesRecipients(t *testing.T) {
	mock := newMockPool(t)
	repo := NewRepoPG(mock)

	id := uuid.New()
	contacts := []patient.Contact{
		{PatientID: uuid.New(), FullName: "Ana", Destination: "+551100"},
		{PatientID: uuid.New(), FullName: "Bia", Destination: "+551101"},
	}
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status FROM campaign WHERE id = \\$1 FOR UPDATE").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow(StatusDraft))
	mock.ExpectCopyFrom(pgx.Identifier{"campaign_recipient"}, []string{"id", "campaign_id", "patient_id", "destination"}).
		WillReturnResult(2)
	mock.ExpectExec("UPDATE campaign SET status = \\$2, total = \\$3").
		WithArgs(id, "queued", 2).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Enqueue(context.Background(), id, contacts))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepoPG_EnqueueRejectsLaunched(t *testing.T) {
	mock := newMockPool(t)
	repo := NewRepoPG(mock)

	id := uuid.New()
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status FROM campaign").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow(StatusQueued))
	mock.ExpectRollback()

	err := repo.Enqueue(context.Background(), id, nil)
	assert.ErrorIs(t, err, ErrNotDraft)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepoPG_ClaimNotQueued(t *testing.T) {
	mock := newMockPool(t)
	repo := NewRepoPG(mock)

	id := uuid.New()
	mock.ExpectQuery("UPDATE campaign SET status = \\$2, started_at = NOW\\(\\)").
		WithArgs(id, "processing", "queued").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.Claim(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotQueued)
}

func TestRepoPG_Claim(t *testing.T) {
	mock := newMockPool(t)
	repo := NewRepoPG(mock)

	id := uuid.New()
	now := time.Now()
	mock.ExpectQuery("UPDATE campaign SET status").
		WithArgs(id, "processing", "queued").
		WillReturnRows(pgxmock.NewRows(campaignRowCols).AddRow(
			id, "Promo", notification.ChannelSMS, "", "Hi", StatusProcessing, 3, 0, 0,
			now, &now, (*time.Time)(nil)))

	c, err := repo.Claim(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, c.Status)
	assert.Equal(t, 3, c.Total)
}

func TestRepoPG_MarkRecipientFailed(t *testing.T) {
	mock := newMockPool(t)
	repo := NewRepoPG(mock)

	cid, rid := uuid.New(), uuid.New()
	msg := "carrier rejected"
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE campaign_recipient SET status = \\$2").
		WithArgs(rid, "failed", &msg).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE campaign SET failed = failed \\+ 1 WHERE id = \\$1").
		WithArgs(cid).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	require.NoError(t, repo.MarkRecipient(context.Background(), cid, rid, errors.New(msg)))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepoPG_MarkRecipientAlreadyDone(t *testing.T) {
	mock := newMockPool(t)
	repo := NewRepoPG(mock)

	cid, rid := uuid.New(), uuid.New()
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE campaign_recipient").
		WithArgs(rid, "sent", (*string)(nil)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectCommit()

	require.NoError(t, repo.MarkRecipient(context.Background(), cid, rid, nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepoPG_Pending(t *testing.T) {
	mock := newMockPool(t)
	repo := NewRepoPG(mock)

	id := uuid.New()
	rid, pid := uuid.New(), uuid.New()
	mock.ExpectQuery("FROM campaign_recipient r\\s+JOIN patient p").
		WithArgs(id, 50).
		WillReturnRows(pgxmock.NewRows([]string{"id", "patient_id", "full_name", "destination"}).
			AddRow(rid, pid, "Ana Lima", "ana@example.com"))

	got, err := repo.Pending(context.Background(), id, 50)
	require.NoError(t, err)
	assert.Equal(t, []Recipient{{ID: rid, PatientID: pid, FullName: "Ana Lima", Destination: "ana@example.com"}}, got)
}
