package patient

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, params SearchParams) ([]*Patient, int, error)
	SetPriceTable(ctx context.Context, id uuid.UUID, tableID *uuid.UUID) error
	// OptedInContacts lists opted-in patients reachable on channel
	// ("email" or "sms").
	OptedInContacts(ctx context.Context, channel string) ([]Contact, error)
}
