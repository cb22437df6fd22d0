package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/gotham-cipher/internal/config"
	"github.com/gotham-cipher/internal/domain"
)

// SolveApplier advances player progress for one solve
type SolveApplier interface {
	ApplySolve(ctx context.Context, playerID, riddleID string, levelID, stars int, completionTime *float64) (*domain.PlayerProgress, error)
}

// Consumer ingests solve events from Kafka and replays them through the
// progress engine. It lets offline clients ship queued solves in bulk.
type Consumer struct {
	config        *config.KafkaConfig
	applier       SolveApplier
	logger        *slog.Logger
	consumerGroup sarama.ConsumerGroup
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	ready         chan bool
}

// NewConsumer creates a solve-event consumer
func NewConsumer(cfg *config.KafkaConfig, applier SolveApplier, logger *slog.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Return.Errors = true

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Consumer{
		config:        cfg,
		applier:       applier,
		logger:        logger,
		consumerGroup: consumerGroup,
		ctx:           ctx,
		cancel:        cancel,
		ready:         make(chan bool),
	}, nil
}

// Start begins consuming solve events
func (c *Consumer) Start() error {
	c.logger.Info("starting Kafka consumer",
		"brokers", c.config.Brokers,
		"topic", c.config.SolvesTopic,
		"group_id", c.config.GroupID,
	)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			handler := &consumerGroupHandler{
				consumer: c,
				ready:    c.ready,
			}

			if err := c.consumerGroup.Consume(c.ctx, []string{c.config.SolvesTopic}, handler); err != nil {
				if err == sarama.ErrClosedConsumerGroup {
					return
				}
				c.logger.Error("error from consumer", "error", err)
			}

			if c.ctx.Err() != nil {
				return
			}

			c.ready = make(chan bool)
		}
	}()

	// Wait until consumer is ready
	<-c.ready
	c.logger.Info("Kafka consumer ready")

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

// queuedSolve is the wire format for solves shipped through Kafka
type queuedSolve struct {
	PlayerID       string   `json:"player_id"`
	RiddleID       string   `json:"riddle_id"`
	LevelID        int      `json:"level_id"`
	Stars          int      `json:"stars"`
	CompletionTime *float64 `json:"completion_time,omitempty"`
}

// ConsumeClaim processes messages from a topic partition. Solves are
// applied one at a time in partition order so attempt counts stay exact;
// batching here only amortizes the timer, not the writes.
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	cfg := h.consumer.config
	batch := make([]queuedSolve, 0, cfg.BatchSize)
	batchTimer := time.NewTimer(cfg.BatchTimeout)
	defer batchTimer.Stop()

	processBatch := func() {
		if len(batch) == 0 {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		applied := 0
		for _, solve := range batch {
			_, err := h.consumer.applier.ApplySolve(ctx,
				solve.PlayerID, solve.RiddleID, solve.LevelID, solve.Stars, solve.CompletionTime)
			if err != nil {
				h.consumer.logger.Error("failed to apply queued solve",
					"error", err,
					"player_id", solve.PlayerID,
					"riddle_id", solve.RiddleID,
				)
				continue
			}
			applied++
		}
		h.consumer.logger.Debug("processed solve batch", "batch_size", len(batch), "applied", applied)

		batch = batch[:0]
	}

	for {
		select {
		case <-session.Context().Done():
			processBatch()
			return nil

		case <-batchTimer.C:
			processBatch()
			batchTimer.Reset(cfg.BatchTimeout)

		case message, ok := <-claim.Messages():
			if !ok {
				processBatch()
				return nil
			}

			var solve queuedSolve
			if err := json.Unmarshal(message.Value, &solve); err != nil {
				h.consumer.logger.Warn("failed to unmarshal message",
					"error", err,
					"offset", message.Offset,
					"partition", message.Partition,
				)
				session.MarkMessage(message, "")
				continue
			}

			if solve.PlayerID == "" || solve.RiddleID == "" || solve.LevelID <= 0 {
				h.consumer.logger.Warn("invalid queued solve",
					"player_id", solve.PlayerID,
					"riddle_id", solve.RiddleID,
					"level_id", solve.LevelID,
				)
				session.MarkMessage(message, "")
				continue
			}

			batch = append(batch, solve)
			session.MarkMessage(message, "")

			if len(batch) >= cfg.BatchSize {
				processBatch()
				batchTimer.Reset(cfg.BatchTimeout)
			}
		}
	}
}
