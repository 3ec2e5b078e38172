// Package pubsub consumes inbound symbol events from a Cloud Pub/Sub
// subscription and feeds them into the priority buffer.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/finstage/content-crawler/internal/metrics"
	"github.com/finstage/content-crawler/internal/pipeline"
)

// Sink receives validated symbol events.
type Sink interface {
	Add(tier pipeline.Tier, symbol string, score int)
}

// envelope is the wire shape of one inbound event.
type envelope struct {
	Symbol   string `json:"symbol"`
	Score    *int   `json:"score"`
	Priority string `json:"priority"`
}

// Consumer pulls symbol events from a subscription. Malformed messages are
// acked and counted so they never redeliver.
type Consumer struct {
	client *pubsub.Client
	sub    *pubsub.Subscription
	sink   Sink
	logger *zap.Logger
}

// New creates a Consumer bound to the given subscription. It authenticates
// with Application Default Credentials.
func New(ctx context.Context, projectID, subscriptionID string, sink Sink, logger *zap.Logger) (*Consumer, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}

	sub := client.Subscription(subscriptionID)
	exists, err := sub.Exists(ctx)
	if err != nil {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("failed to close pubsub client", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("check subscription %q: %w", subscriptionID, err)
	}
	if !exists {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("failed to close pubsub client", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("subscription %q does not exist in project %q", subscriptionID, projectID)
	}

	return &Consumer{client: client, sub: sub, sink: sink, logger: logger}, nil
}

// Run receives messages until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("stream consumer started", zap.String("subscription", c.sub.ID()))
	err := c.sub.Receive(ctx, func(_ context.Context, msg *pubsub.Message) {
		c.handle(msg.Data)
		msg.Ack()
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("receive: %w", err)
	}
	c.logger.Info("stream consumer stopped")
	return nil
}

// handle validates one payload and forwards it to the sink.
func (c *Consumer) handle(data []byte) {
	event, err := parseEvent(data)
	if err != nil {
		metrics.ObserveStreamEvent("rejected")
		c.logger.Warn("dropping malformed event",
			zap.ByteString("payload", data), zap.Error(err))
		return
	}
	metrics.ObserveStreamEvent("accepted")
	c.sink.Add(event.Tier, event.Symbol, event.Score)
}

// parseEvent decodes and validates a wire payload.
func parseEvent(data []byte) (pipeline.SymbolEvent, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return pipeline.SymbolEvent{}, fmt.Errorf("decode event: %w", err)
	}
	if env.Symbol == "" {
		return pipeline.SymbolEvent{}, fmt.Errorf("event missing symbol")
	}
	if env.Score == nil {
		return pipeline.SymbolEvent{}, fmt.Errorf("event missing score")
	}
	tier, err := pipeline.ParseTier(env.Priority)
	if err != nil {
		return pipeline.SymbolEvent{}, fmt.Errorf("event priority %q: %w", env.Priority, err)
	}
	return pipeline.SymbolEvent{Symbol: env.Symbol, Score: *env.Score, Tier: tier}, nil
}

// Close releases the underlying client.
func (c *Consumer) Close() error {
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
