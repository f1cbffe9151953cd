package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dealscope/valuation-engine/internal/models"
	"github.com/dealscope/valuation-engine/pkg/database"
	"github.com/dealscope/valuation-engine/pkg/logger"
	"github.com/dealscope/valuation-engine/pkg/metrics"
)

// Publisher delivers recalculation completion events to interested
// consumers (the web frontend's notification fan-out).
type Publisher interface {
	PublishCompletion(ctx context.Context, event models.CompletionEvent) error
}

// RedisPublisher publishes completion events on a Redis pub/sub channel.
type RedisPublisher struct {
	redis   *database.RedisClient
	channel string
	logger  *logger.Logger
	metrics *metrics.Metrics
}

// NewRedisPublisher creates a publisher bound to the given channel.
func NewRedisPublisher(redis *database.RedisClient, channel string, log *logger.Logger, m *metrics.Metrics) *RedisPublisher {
	return &RedisPublisher{
		redis:   redis,
		channel: channel,
		logger:  log,
		metrics: m,
	}
}

// PublishCompletion serializes the event and publishes it. A publish
// failure is reported but must never fail the recalculation itself.
func (p *RedisPublisher) PublishCompletion(ctx context.Context, event models.CompletionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal completion event: %w", err)
	}

	if err := p.redis.Publish(ctx, p.channel, payload); err != nil {
		if p.metrics != nil {
			p.metrics.CompletionEventsPublished.WithLabelValues("error").Inc()
		}
		return fmt.Errorf("failed to publish completion event: %w", err)
	}

	if p.metrics != nil {
		p.metrics.CompletionEventsPublished.WithLabelValues("ok").Inc()
	}

	p.logger.Debug("Published completion event",
		logger.String("listing_id", event.ListingID.String()),
		logger.Int("rules_fired", event.RulesFiredCount),
		logger.Float64("adjusted_price", event.AdjustedPrice),
	)
	return nil
}

// NopPublisher discards completion events. Used by the CLI and tests.
type NopPublisher struct{}

func (NopPublisher) PublishCompletion(ctx context.Context, event models.CompletionEvent) error {
	return nil
}
