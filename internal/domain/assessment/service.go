package assessment

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Service struct {
	templates TemplateRepository
	responses ResponseRepository
	logger    zerolog.Logger
}

func NewService(templates TemplateRepository, responses ResponseRepository, logger zerolog.Logger) *Service {
	return &Service{
		templates: templates,
		responses: responses,
		logger:    logger.With().Str("component", "assessment").Logger(),
	}
}

func (s *Service) CreateTemplate(ctx context.Context, t *Template) error {
	if err := t.Validate(); err != nil {
		return err
	}
	return s.templates.Create(ctx, t)
}

func (s *Service) GetTemplate(ctx context.Context, id uuid.UUID) (*Template, error) {
	return s.templates.GetByID(ctx, id)
}

func (s *Service) ListTemplates(ctx context.Context, limit, offset int) ([]*Template, int, error) {
	return s.templates.List(ctx, limit, offset)
}

// Submit validates answers against the template, scores them and stores the
// response.
func (s *Service) Submit(ctx context.Context, resp *Response) error {
	t, err := s.templates.GetByID(ctx, resp.TemplateID)
	if err != nil {
		return err
	}
	if resp.Answers == nil {
		resp.Answers = map[string]any{}
	}
	if err := t.Check(resp.Answers); err != nil {
		return err
	}
	resp.Score = t.Score(resp.Answers)
	if err := s.responses.Create(ctx, resp); err != nil {
		return err
	}
	s.logger.Info().
		Str("template_id", t.ID.String()).
		Str("patient_id", resp.PatientID.String()).
		Str("score", resp.Score.String()).
		Msg("assessment recorded")
	return nil
}

func (s *Service) PatientResponses(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Response, int, error) {
	return s.responses.ListByPatient(ctx, patientID, limit, offset)
}
