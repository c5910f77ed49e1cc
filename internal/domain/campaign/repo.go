package campaign

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/domain/patient"
)

type Repository interface {
	Create(ctx context.Context, c *Campaign) error
	GetByID(ctx context.Context, id uuid.UUID) (*Campaign, error)
	List(ctx context.Context, limit, offset int) ([]*Campaign, int, error)
	ListByStatus(ctx context.Context, status Status) ([]uuid.UUID, error)

	// Enqueue inserts recipients and moves a draft campaign to queued in
	// one transaction. It returns ErrNotDraft if the campaign left draft.
	Enqueue(ctx context.Context, id uuid.UUID, contacts []patient.Contact) error
	// Claim moves a queued campaign to processing.
	Claim(ctx context.Context, id uuid.UUID) (*Campaign, error)
	Pending(ctx context.Context, id uuid.UUID, limit int) ([]Recipient, error)
	// MarkRecipient records a delivery outcome and bumps the campaign counter.
	MarkRecipient(ctx context.Context, campaignID, recipientID uuid.UUID, sendErr error) error
	Finish(ctx context.Context, id uuid.UUID, status Status) (*Campaign, error)
}
