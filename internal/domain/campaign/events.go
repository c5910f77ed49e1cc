package campaign

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/websocket"
)

const progressPattern = "clinic:*:campaign-events"

func progressChannel(clinic string) string { return "clinic:" + clinic + ":campaign-events" }

// RedisPublisher sends dispatcher progress events to the API servers over
// Redis pub/sub. The clinic comes from ctx, falling back to the one given to
// NewRedisPublisher.
type RedisPublisher struct {
	client *redis.Client
	clinic string
}

func NewRedisPublisher(client *redis.Client, clinic string) *RedisPublisher {
	return &RedisPublisher{client: client, clinic: clinic}
}

func (p *RedisPublisher) Publish(ctx context.Context, ev websocket.Event) error {
	clinic := db.ClinicFromContext(ctx)
	if clinic == "" {
		clinic = p.clinic
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("campaign: marshal event: %w", err)
	}
	if err := p.client.Publish(ctx, progressChannel(clinic), raw).Err(); err != nil {
		return fmt.Errorf("campaign: publish %s: %w", ev.Topic, err)
	}
	return nil
}

// RelayProgress forwards worker progress events of every clinic to the
// websocket subscribers of the campaign topic. It returns when ctx is
// cancelled.
func RelayProgress(ctx context.Context, client *redis.Client, hub *websocket.Hub, logger zerolog.Logger) error {
	sub := client.PSubscribe(ctx, progressPattern)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("campaign: subscribe %s: %w", progressPattern, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev websocket.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				logger.Warn().Err(err).Str("channel", msg.Channel).Msg("drop malformed campaign event")
				continue
			}
			if !strings.HasPrefix(ev.Topic, "campaign:") {
				continue
			}
			hub.Broadcast(ev.Topic, ev)
		}
	}
}
