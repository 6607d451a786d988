package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/grus-gras/internal/config"
	"github.com/grus-gras/internal/domain"
)

// MatchEventHandler reacts to match events read from Kafka
type MatchEventHandler interface {
	HandleMatchEvent(ctx context.Context, event domain.MatchEvent)
}

// MatchEventHandlerFunc adapts a function to MatchEventHandler
type MatchEventHandlerFunc func(ctx context.Context, event domain.MatchEvent)

// HandleMatchEvent calls f
func (f MatchEventHandlerFunc) HandleMatchEvent(ctx context.Context, event domain.MatchEvent) {
	f(ctx, event)
}

var errInvalidEvent = errors.New("invalid match event")

// Consumer consumes match events from Kafka. Every server instance joins its
// own consumer group so each one sees every event and can push it to the
// WebSocket clients it holds.
type Consumer struct {
	config        *config.KafkaConfig
	handler       MatchEventHandler
	logger        *slog.Logger
	consumerGroup sarama.ConsumerGroup
	groupID       string
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	ready         chan bool
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(cfg *config.KafkaConfig, handler MatchEventHandler, logger *slog.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Return.Errors = true

	groupID := fmt.Sprintf("%s-%s", cfg.GroupID, uuid.NewString()[:8])
	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, groupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("creating consumer group: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Consumer{
		config:        cfg,
		handler:       handler,
		logger:        logger,
		consumerGroup: consumerGroup,
		groupID:       groupID,
		ctx:           ctx,
		cancel:        cancel,
		ready:         make(chan bool),
	}, nil
}

// Start begins consuming messages from Kafka
func (c *Consumer) Start() error {
	c.logger.Info("starting Kafka consumer",
		"brokers", c.config.Brokers,
		"topic", c.config.Topic,
		"group_id", c.groupID,
	)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			handler := &consumerGroupHandler{
				consumer: c,
				ready:    c.ready,
			}

			if err := c.consumerGroup.Consume(c.ctx, []string{c.config.Topic}, handler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				c.logger.Error("error from consumer", "error", err)
				select {
				case <-c.ctx.Done():
				case <-time.After(c.config.RetryDelay):
				}
			}

			// Check if context was cancelled
			if c.ctx.Err() != nil {
				return
			}

			c.ready = make(chan bool)
		}
	}()

	// Wait until consumer is ready
	select {
	case <-c.ready:
		c.logger.Info("Kafka consumer ready")
	case <-c.ctx.Done():
		return c.ctx.Err()
	}

	// Handle errors in separate goroutine
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-c.ctx.Done():
				return
			case err, ok := <-c.consumerGroup.Errors():
				if !ok {
					return
				}
				c.logger.Error("consumer group error", "error", err)
			}
		}
	}()

	return nil
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() error {
	c.logger.Info("stopping Kafka consumer")
	c.cancel()
	c.wg.Wait()
	return c.consumerGroup.Close()
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler
type consumerGroupHandler struct {
	consumer *Consumer
	ready    chan bool
}

// Setup is called at the beginning of a new session
func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	close(h.ready)
	return nil
}

// Cleanup is called at the end of a session
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim processes messages from a topic partition
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-session.Context().Done():
			return nil

		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			event, err := decodeEvent(message.Value)
			if err != nil {
				h.consumer.logger.Warn("skipping match event",
					"error", err,
					"offset", message.Offset,
					"partition", message.Partition,
				)
				session.MarkMessage(message, "")
				continue
			}

			h.consumer.handler.HandleMatchEvent(session.Context(), event)
			session.MarkMessage(message, "")
		}
	}
}

// decodeEvent parses and validates one message value
func decodeEvent(data []byte) (domain.MatchEvent, error) {
	var event domain.MatchEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return domain.MatchEvent{}, fmt.Errorf("decoding match event: %w", err)
	}
	if event.MatchID == "" {
		return domain.MatchEvent{}, fmt.Errorf("%w: missing match_id", errInvalidEvent)
	}
	switch event.Type {
	case domain.MatchEventCreated, domain.MatchEventPlayerJoined, domain.MatchEventPlayerLeft, domain.MatchEventDeleted:
	default:
		return domain.MatchEvent{}, fmt.Errorf("%w: unknown type %q", errInvalidEvent, event.Type)
	}
	return event, nil
}
