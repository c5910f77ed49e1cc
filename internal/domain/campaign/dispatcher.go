package campaign

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/metrics"
	"github.com/clinic/clinic/internal/platform/notification"
	"github.com/clinic/clinic/internal/platform/websocket"
)

// Sender delivers one rendered message. *notification.Dispatcher implements
// it.
type Sender interface {
	Send(ctx context.Context, m notification.Message) error
}

type DispatcherOptions struct {
	BatchSize  int
	PopTimeout time.Duration
	Logger     zerolog.Logger
	Metrics    *metrics.CampaignMetrics
	// Publisher receives a progress event after every batch. Optional.
	Publisher websocket.EventPublisher
}

// Dispatcher drains the campaign queue and sends messages recipient by
// recipient.
type Dispatcher struct {
	repo      Repository
	queue     Queue
	sender    Sender
	batchSize int
	popWait   time.Duration
	logger    zerolog.Logger
	metrics   *metrics.CampaignMetrics
	publisher websocket.EventPublisher
}

func NewDispatcher(repo Repository, queue Queue, sender Sender, opts DispatcherOptions) *Dispatcher {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.PopTimeout <= 0 {
		opts.PopTimeout = 5 * time.Second
	}
	return &Dispatcher{
		repo:      repo,
		queue:     queue,
		sender:    sender,
		batchSize: opts.BatchSize,
		popWait:   opts.PopTimeout,
		logger:    opts.Logger.With().Str("component", "campaign-dispatcher").Logger(),
		metrics:   opts.Metrics,
		publisher: opts.Publisher,
	}
}

// Run processes queued campaigns until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info().Int("batch_size", d.batchSize).Msg("dispatcher started")
	for {
		if ctx.Err() != nil {
			d.logger.Info().Msg("dispatcher stopped")
			return nil
		}
		id, err := d.queue.Pop(ctx, d.popWait)
		switch {
		case errors.Is(err, ErrQueueEmpty):
			continue
		case err != nil:
			if ctx.Err() != nil {
				continue
			}
			d.logger.Error().Err(err).Msg("pop campaign")
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}
		if err := d.Process(ctx, id); err != nil && !errors.Is(err, ErrNotQueued) {
			d.logger.Error().Err(err).Str("campaign_id", id.String()).Msg("process campaign")
		}
	}
}

// Process sends every pending message of one queued campaign and marks it
// completed, or failed when no message went out.
func (d *Dispatcher) Process(ctx context.Context, id uuid.UUID) error {
	c, err := d.repo.Claim(ctx, id)
	if errors.Is(err, ErrNotQueued) {
		d.logger.Debug().Str("campaign_id", id.String()).Msg("campaign not queued, skipping")
		return err
	}
	if err != nil {
		return err
	}
	started := time.Now()
	log := d.logger.With().Str("campaign_id", id.String()).Logger()
	log.Info().Int("total", c.Total).Msg("campaign processing")

	if err := d.drain(ctx, c); err != nil {
		// Pending rows stay pending so the campaign can be re-run by hand.
		if _, ferr := d.repo.Finish(context.WithoutCancel(ctx), id, StatusFailed); ferr != nil {
			log.Error().Err(ferr).Msg("mark campaign failed")
		}
		d.metrics.ObserveFinished(string(StatusFailed), time.Since(started))
		return err
	}

	final, err := d.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	status := StatusCompleted
	if final.Sent == 0 && final.Failed > 0 {
		status = StatusFailed
	}
	final, err = d.repo.Finish(ctx, id, status)
	if err != nil {
		return err
	}
	d.metrics.ObserveFinished(string(status), time.Since(started))
	d.publish(ctx, final)

	log.Info().
		Str("status", string(status)).
		Int("sent", final.Sent).
		Int("failed", final.Failed).
		Dur("elapsed", time.Since(started)).
		Msg("campaign finished")
	return nil
}

func (d *Dispatcher) drain(ctx context.Context, c *Campaign) error {
	for {
		batch, err := d.repo.Pending(ctx, c.ID, d.batchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		for _, r := range batch {
			data := r.templateData()
			sendErr := d.sender.Send(ctx, notification.Message{
				Channel: c.Channel,
				To:      r.Destination,
				Subject: notification.Render(c.Subject, data),
				Body:    notification.Render(c.Body, data),
			})
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if sendErr != nil {
				d.logger.Warn().Err(sendErr).
					Str("campaign_id", c.ID.String()).
					Str("recipient_id", r.ID.String()).
					Msg("message failed")
				d.metrics.ObserveMessage(string(c.Channel), string(RecipientFailed))
			} else {
				d.metrics.ObserveMessage(string(c.Channel), string(RecipientSent))
			}
			if err := d.repo.MarkRecipient(ctx, c.ID, r.ID, sendErr); err != nil {
				return err
			}
		}
		if cur, err := d.repo.GetByID(ctx, c.ID); err == nil {
			d.publish(ctx, cur)
		}
	}
}

func (d *Dispatcher) publish(ctx context.Context, c *Campaign) {
	if d.publisher == nil {
		return
	}
	ev, err := websocket.NewEvent(topic(c.ID), "campaign.progress", c.Progress())
	if err != nil {
		return
	}
	if err := d.publisher.Publish(ctx, ev); err != nil {
		d.logger.Debug().Err(err).Msg("publish progress")
	}
}
