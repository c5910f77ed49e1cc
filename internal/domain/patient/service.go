package patient

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger.With().Str("component", "patient").Logger()}
}

func normalize(p *Patient) error {
	p.FullName = strings.TrimSpace(p.FullName)
	p.Email = strings.TrimSpace(strings.ToLower(p.Email))
	p.Phone = strings.TrimSpace(p.Phone)
	if p.FullName == "" {
		return fmt.Errorf("%w: full_name is required", ErrInvalidInput)
	}
	if p.Email != "" {
		if _, err := mail.ParseAddress(p.Email); err != nil {
			return fmt.Errorf("%w: invalid email", ErrInvalidInput)
		}
	}
	if p.BirthDate != "" {
		d, err := time.Parse("2006-01-02", p.BirthDate)
		if err != nil {
			return fmt.Errorf("%w: birth_date must be YYYY-MM-DD", ErrInvalidInput)
		}
		if d.After(time.Now()) {
			return fmt.Errorf("%w: birth_date is in the future", ErrInvalidInput)
		}
	}
	return nil
}

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	if err := normalize(p); err != nil {
		return err
	}
	return s.repo.Create(ctx, p)
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) UpdatePatient(ctx context.Context, p *Patient) error {
	if err := normalize(p); err != nil {
		return err
	}
	return s.repo.Update(ctx, p)
}

func (s *Service) DeletePatient(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) SearchPatients(ctx context.Context, params SearchParams) ([]*Patient, int, error) {
	params.Query = strings.TrimSpace(params.Query)
	return s.repo.Search(ctx, params)
}

// AssignPriceTable sets or clears (nil) the patient's price table. A patient
// has at most one.
func (s *Service) AssignPriceTable(ctx context.Context, id uuid.UUID, tableID *uuid.UUID) error {
	if err := s.repo.SetPriceTable(ctx, id, tableID); err != nil {
		return err
	}
	ev := s.logger.Info().Str("patient_id", id.String())
	if tableID != nil {
		ev = ev.Str("price_table_id", tableID.String())
	}
	ev.Msg("price table assigned")
	return nil
}

// Recipients implements the campaign audience lookup.
func (s *Service) Recipients(ctx context.Context, channel string) ([]Contact, error) {
	if channel != "email" && channel != "sms" {
		return nil, fmt.Errorf("%w: unknown channel %q", ErrInvalidInput, channel)
	}
	return s.repo.OptedInContacts(ctx, channel)
}
