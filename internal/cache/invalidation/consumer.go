package invalidation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	"github.com/ecodiatate/roam-bundle-engine/internal/cache"
)

// Config wires the consumer to the invalidation topic.
type Config struct {
	Brokers             []string
	Topic               string
	GroupID             string
	SessionTimeout      time.Duration
	Heartbeat           time.Duration
	RebalanceTimeout    time.Duration
	InitialOffsetOldest bool
}

// Consumer joins a Kafka consumer group and applies each invalidation
// event against the pack store.
type Consumer struct {
	cfg    Config
	logger zerolog.Logger
	store  *cache.Store
}

func New(cfg Config, logger zerolog.Logger, store *cache.Store) *Consumer {
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = 30 * time.Second
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 3 * time.Second
	}
	if cfg.RebalanceTimeout <= 0 {
		cfg.RebalanceTimeout = 30 * time.Second
	}
	return &Consumer{cfg: cfg, logger: logger.With().Str("component", "invalidation").Logger(), store: store}
}

// Start blocks consuming invalidation events until ctx is cancelled. A
// consume error is logged and retried after a short pause rather than
// tearing the consumer down.
func (c *Consumer) Start(ctx context.Context) error {
	if c.store == nil {
		return errors.New("invalidation: missing pack store")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("invalidation: create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	handler := &groupHandler{process: c.ProcessOne}

	c.logger.Info().
		Strs("brokers", c.cfg.Brokers).
		Str("topic", c.cfg.Topic).
		Str("group", c.cfg.GroupID).
		Msg("invalidation consumer starting")

	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("invalidation consumer shutting down")
			return nil
		default:
			if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil {
				c.logger.Error().Err(err).
					Strs("brokers", c.cfg.Brokers).
					Str("topic", c.cfg.Topic).
					Msg("consumer error")
				time.Sleep(2 * time.Second)
			}
		}
	}
}

// ProcessOne decodes, validates, and applies a single invalidation event.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var ev Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		c.logger.Error().
			Str("kind", "decode").
			Str("topic", msg.Topic).
			Int32("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("invalidation event rejected")
		return fmt.Errorf("invalidation: json decode: %w", err)
	}
	if err := ev.Validate(); err != nil {
		c.logger.Error().Err(err).
			Str("kind", "validate").
			Str("layer", ev.Layer).
			Str("op", ev.Op).
			Msg("invalidation event rejected")
		return fmt.Errorf("invalidation: validate: %w", err)
	}

	dropped, err := c.apply(ctx, ev)
	if err != nil {
		c.logger.Error().Err(err).
			Str("layer", ev.Layer).
			Str("op", ev.Op).
			Msg("invalidation apply failed")
		return err
	}

	c.logger.Info().
		Str("layer", ev.Layer).
		Str("op", ev.Op).
		Int("dropped", dropped).
		Msg("invalidated cached entries")
	return nil
}

func (c *Consumer) apply(ctx context.Context, ev Event) (int, error) {
	kind := layerKinds[ev.Layer]
	switch {
	case ev.Op == "purge":
		return c.store.PurgePacks(ctx, kind)
	case len(ev.Keys) > 0:
		return c.store.DeletePacks(ctx, kind, ev.Keys...)
	default:
		return c.store.ResetTilesInBBox(ctx, *ev.BBox)
	}
}
