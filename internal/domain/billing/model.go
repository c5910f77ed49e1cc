package billing

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)

// DefaultDuration is used for appointments whose service has no duration.
const DefaultDuration = 60 * time.Minute

// ClinicService is a bookable service with its list price.
type ClinicService struct {
	ID              uuid.UUID       `json:"id"`
	Name            string          `json:"name"`
	Price           decimal.Decimal `json:"price"`
	DurationMinutes int             `json:"duration_minutes"`
	Active          bool            `json:"active"`
	CreatedAt       time.Time       `json:"created_at"`
}

func (s *ClinicService) Duration() time.Duration {
	if s == nil || s.DurationMinutes <= 0 {
		return DefaultDuration
	}
	return time.Duration(s.DurationMinutes) * time.Minute
}

// PriceTable is a named set of per-service price overrides assignable to a
// patient.
type PriceTable struct {
	ID        uuid.UUID    `json:"id"`
	Name      string       `json:"name"`
	Active    bool         `json:"active"`
	Entries   []PriceEntry `json:"entries,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

type PriceEntry struct {
	ServiceID uuid.UUID       `json:"service_id"`
	Price     decimal.Decimal `json:"price"`
}

type PaymentMethod struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	MaxInstallments int       `json:"max_installments"`
	Active          bool      `json:"active"`
}
