package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type Service struct {
	services ServiceRepository
	tables   PriceTableRepository
	methods  PaymentMethodRepository
	logger   zerolog.Logger
}

func NewService(services ServiceRepository, tables PriceTableRepository, methods PaymentMethodRepository, logger zerolog.Logger) *Service {
	return &Service{services: services, tables: tables, methods: methods, logger: logger.With().Str("component", "billing").Logger()}
}

// -- Services --

func (s *Service) CreateService(ctx context.Context, cs *ClinicService) error {
	cs.Name = strings.TrimSpace(cs.Name)
	if cs.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if cs.Price.IsNegative() {
		return fmt.Errorf("%w: price must not be negative", ErrInvalidInput)
	}
	if cs.DurationMinutes < 0 {
		return fmt.Errorf("%w: duration_minutes must not be negative", ErrInvalidInput)
	}
	if cs.DurationMinutes == 0 {
		cs.DurationMinutes = int(DefaultDuration / time.Minute)
	}
	return s.services.Create(ctx, cs)
}

func (s *Service) GetService(ctx context.Context, id uuid.UUID) (*ClinicService, error) {
	return s.services.GetByID(ctx, id)
}

func (s *Service) ListServices(ctx context.Context, activeOnly bool, limit, offset int) ([]*ClinicService, int, error) {
	return s.services.List(ctx, activeOnly, limit, offset)
}

// -- Price tables --

func validateEntries(entries []PriceEntry) error {
	seen := make(map[uuid.UUID]bool, len(entries))
	for _, e := range entries {
		if e.ServiceID == uuid.Nil {
			return fmt.Errorf("%w: entry service_id is required", ErrInvalidInput)
		}
		if e.Price.IsNegative() {
			return fmt.Errorf("%w: entry price must not be negative", ErrInvalidInput)
		}
		if seen[e.ServiceID] {
			return fmt.Errorf("%w: duplicate entry for service %s", ErrInvalidInput, e.ServiceID)
		}
		seen[e.ServiceID] = true
	}
	return nil
}

func (s *Service) CreatePriceTable(ctx context.Context, t *PriceTable) error {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if err := validateEntries(t.Entries); err != nil {
		return err
	}
	return s.tables.Create(ctx, t)
}

func (s *Service) GetPriceTable(ctx context.Context, id uuid.UUID) (*PriceTable, error) {
	return s.tables.GetByID(ctx, id)
}

func (s *Service) ListPriceTables(ctx context.Context, limit, offset int) ([]*PriceTable, int, error) {
	return s.tables.List(ctx, limit, offset)
}

func (s *Service) ReplacePriceEntries(ctx context.Context, tableID uuid.UUID, entries []PriceEntry) error {
	if err := validateEntries(entries); err != nil {
		return err
	}
	if err := s.tables.ReplaceEntries(ctx, tableID, entries); err != nil {
		return err
	}
	s.logger.Info().Str("price_table_id", tableID.String()).Int("entries", len(entries)).Msg("price table entries replaced")
	return nil
}

// -- Payment methods --

func (s *Service) CreatePaymentMethod(ctx context.Context, m *PaymentMethod) error {
	m.Name = strings.TrimSpace(m.Name)
	if m.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if m.MaxInstallments == 0 {
		m.MaxInstallments = 1
	}
	if m.MaxInstallments < 1 {
		return fmt.Errorf("%w: max_installments must be at least 1", ErrInvalidInput)
	}
	return s.methods.Create(ctx, m)
}

func (s *Service) ListPaymentMethods(ctx context.Context) ([]*PaymentMethod, error) {
	return s.methods.List(ctx)
}

// ValidateInstallments checks n against the method's limit. A nil method
// only accepts a single installment.
func (s *Service) ValidateInstallments(ctx context.Context, methodID *uuid.UUID, n int) error {
	if n < 1 {
		return fmt.Errorf("%w: installments must be at least 1", ErrInvalidInput)
	}
	if methodID == nil {
		if n != 1 {
			return fmt.Errorf("%w: installments require a payment method", ErrInvalidInput)
		}
		return nil
	}
	m, err := s.methods.GetByID(ctx, *methodID)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: unknown payment method %s", ErrInvalidInput, *methodID)
	}
	if err != nil {
		return err
	}
	if !m.Active {
		return fmt.Errorf("%w: payment method %s is inactive", ErrInvalidInput, m.Name)
	}
	if n > m.MaxInstallments {
		return fmt.Errorf("%w: %s allows at most %d installments", ErrInvalidInput, m.Name, m.MaxInstallments)
	}
	return nil
}

// -- Resolution --

// ResolvePrice returns the base price of serviceID for patientID: the
// override from the patient's price table when it has one, otherwise the
// service's list price. An unknown service or a patient without a table is a
// resolution gap, not an error, and resolves to zero or the list price.
func (s *Service) ResolvePrice(ctx context.Context, patientID, serviceID uuid.UUID) (decimal.Decimal, error) {
	svc, err := s.services.GetByID(ctx, serviceID)
	if errors.Is(err, ErrNotFound) {
		svc = nil
	} else if err != nil {
		return decimal.Zero, err
	}

	var override *decimal.Decimal
	if patientID != uuid.Nil {
		tableID, err := s.tables.TableForPatient(ctx, patientID)
		if err != nil {
			return decimal.Zero, err
		}
		if tableID != nil {
			override, err = s.tables.EntryPrice(ctx, *tableID, serviceID)
			if err != nil {
				return decimal.Zero, err
			}
		}
	}
	return resolvePrice(svc, override), nil
}

// ServiceDuration returns how long an appointment for serviceID lasts.
func (s *Service) ServiceDuration(ctx context.Context, serviceID uuid.UUID) (time.Duration, error) {
	svc, err := s.services.GetByID(ctx, serviceID)
	if errors.Is(err, ErrNotFound) {
		return DefaultDuration, nil
	}
	if err != nil {
		return 0, err
	}
	return svc.Duration(), nil
}

// Quote resolves the base price then applies adjustments.
func (s *Service) Quote(ctx context.Context, patientID, serviceID uuid.UUID, adj Adjustments) (*Quote, error) {
	base, err := s.ResolvePrice(ctx, patientID, serviceID)
	if err != nil {
		return nil, err
	}
	q := NewQuote(base)
	if err := adj.Apply(q); err != nil {
		return nil, err
	}
	return q, nil
}
