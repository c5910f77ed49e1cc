package campaign

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/clinic/clinic/internal/domain/patient"
)

// Audience lists the patients a campaign reaches. *patient.Service
// implements it.
type Audience interface {
	Recipients(ctx context.Context, channel string) ([]patient.Contact, error)
}

type Service struct {
	repo     Repository
	queue    Queue
	audience Audience
	logger   zerolog.Logger
	tracer   trace.Tracer
}

func NewService(repo Repository, queue Queue, audience Audience, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		queue:    queue,
		audience: audience,
		logger:   logger.With().Str("component", "campaign").Logger(),
		tracer:   otel.Tracer("github.com/clinic/clinic/internal/domain/campaign"),
	}
}

func (s *Service) Create(ctx context.Context, c *Campaign) error {
	if err := c.Validate(); err != nil {
		return err
	}
	return s.repo.Create(ctx, c)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Campaign, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Campaign, int, error) {
	return s.repo.List(ctx, limit, offset)
}

// Launch snapshots the opted-in audience into recipient rows and queues the
// campaign for a dispatch worker.
func (s *Service) Launch(ctx context.Context, id uuid.UUID) (*Campaign, error) {
	ctx, span := s.tracer.Start(ctx, "campaign.Launch", trace.WithAttributes(
		attribute.String("campaign.id", id.String())))
	defer span.End()

	c, err := s.launch(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("campaign.recipients", c.Total))
	return c, nil
}

func (s *Service) launch(ctx context.Context, id uuid.UUID) (*Campaign, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != StatusDraft {
		return nil, ErrNotDraft
	}

	contacts, err := s.audience.Recipients(ctx, string(c.Channel))
	if err != nil {
		return nil, fmt.Errorf("campaign: load audience: %w", err)
	}
	if len(contacts) == 0 {
		return nil, ErrNoRecipients
	}

	if err := s.repo.Enqueue(ctx, id, contacts); err != nil {
		return nil, err
	}
	// A failed push leaves the campaign queued; Requeue picks it up.
	if err := s.queue.Push(ctx, id); err != nil {
		s.logger.Error().Err(err).Str("campaign_id", id.String()).Msg("push to dispatch queue")
	}

	s.logger.Info().
		Str("campaign_id", id.String()).
		Str("channel", string(c.Channel)).
		Int("recipients", len(contacts)).
		Msg("campaign launched")

	c.Status = StatusQueued
	c.Total = len(contacts)
	return c, nil
}

// Requeue pushes every queued campaign back onto the dispatch queue. Workers
// call it on start so launches whose push failed are not stranded.
func (s *Service) Requeue(ctx context.Context) (int, error) {
	ids, err := s.repo.ListByStatus(ctx, StatusQueued)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		if err := s.queue.Push(ctx, id); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}

func (s *Service) Progress(ctx context.Context, id uuid.UUID) (Progress, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Progress{}, err
	}
	return c.Progress(), nil
}

// WaitForTerminal polls every interval until the campaign is completed or
// failed. After maxWait it returns the last progress with ErrPollTimeout.
func (s *Service) WaitForTerminal(ctx context.Context, id uuid.UUID, interval, maxWait time.Duration) (Progress, error) {
	return s.Watch(ctx, id, interval, maxWait, nil)
}

// Watch is WaitForTerminal with a callback for every poll, including the
// terminal one.
func (s *Service) Watch(ctx context.Context, id uuid.UUID, interval, maxWait time.Duration, onPoll func(Progress)) (Progress, error) {
	if interval <= 0 {
		return Progress{}, fmt.Errorf("%w: poll interval must be positive", ErrInvalidInput)
	}
	deadline := time.NewTimer(maxWait)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		p, err := s.Progress(ctx, id)
		if err != nil {
			return p, err
		}
		if onPoll != nil {
			onPoll(p)
		}
		if p.Status.Terminal() {
			return p, nil
		}

		select {
		case <-ctx.Done():
			return p, ctx.Err()
		case <-deadline.C:
			return p, ErrPollTimeout
		case <-ticker.C:
		}
	}
}

// IsTimeout reports whether err ended a poll without reaching a terminal
// state.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrPollTimeout) || errors.Is(err, context.DeadlineExceeded)
}
