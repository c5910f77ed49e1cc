package billing

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ServiceRepository interface {
	Create(ctx context.Context, s *ClinicService) error
	GetByID(ctx context.Context, id uuid.UUID) (*ClinicService, error)
	List(ctx context.Context, activeOnly bool, limit, offset int) ([]*ClinicService, int, error)
}

type PriceTableRepository interface {
	Create(ctx context.Context, t *PriceTable) error
	GetByID(ctx context.Context, id uuid.UUID) (*PriceTable, error)
	List(ctx context.Context, limit, offset int) ([]*PriceTable, int, error)
	ReplaceEntries(ctx context.Context, tableID uuid.UUID, entries []PriceEntry) error
	// TableForPatient returns the active table assigned to a patient, or nil.
	TableForPatient(ctx context.Context, patientID uuid.UUID) (*uuid.UUID, error)
	// EntryPrice returns the override for a service, or nil when the table has none.
	EntryPrice(ctx context.Context, tableID, serviceID uuid.UUID) (*decimal.Decimal, error)
}

type PaymentMethodRepository interface {
	Create(ctx context.Context, m *PaymentMethod) error
	GetByID(ctx context.Context, id uuid.UUID) (*PaymentMethod, error)
	List(ctx context.Context) ([]*PaymentMethod, error)
}
