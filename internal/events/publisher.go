package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"github.com/gotham-cipher/internal/config"
	"github.com/gotham-cipher/internal/domain"
)

// Publisher ships gameplay events to the metrics pipeline
type Publisher interface {
	PublishSolve(event domain.SolveEvent)
	PublishRiddleRequested(playerID string, levelID int, difficulty domain.Difficulty, riddleType string)
	Close() error
}

// riddleRequestedEvent is the shipped form of a selection request
type riddleRequestedEvent struct {
	PlayerID   string            `json:"player_id"`
	LevelID    int               `json:"level_id,omitempty"`
	Difficulty domain.Difficulty `json:"difficulty,omitempty"`
	Type       string            `json:"type,omitempty"`
	EventType  string            `json:"event_type"`
	Timestamp  time.Time         `json:"timestamp"`
}

// KafkaPublisher publishes events to a Kafka topic
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *slog.Logger
}

// NewKafkaPublisher creates a publisher against the configured brokers
func NewKafkaPublisher(cfg *config.KafkaConfig, logger *slog.Logger) (*KafkaPublisher, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Retry.Max = 3

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("creating kafka producer: %w", err)
	}

	return &KafkaPublisher{
		producer: producer,
		topic:    cfg.EventsTopic,
		logger:   logger,
	}, nil
}

func (p *KafkaPublisher) publish(key string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Warn("failed to encode event", "error", err)
		return
	}

	_, _, err = p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(data),
	})
	if err != nil {
		// Event shipping is best effort; gameplay never fails on it
		p.logger.Warn("failed to publish event", "error", err)
	}
}

// PublishSolve ships a solve event
func (p *KafkaPublisher) PublishSolve(event domain.SolveEvent) {
	p.publish(event.PlayerID, event)
}

// PublishRiddleRequested ships a riddle selection event
func (p *KafkaPublisher) PublishRiddleRequested(playerID string, levelID int, difficulty domain.Difficulty, riddleType string) {
	p.publish(playerID, riddleRequestedEvent{
		PlayerID:   playerID,
		LevelID:    levelID,
		Difficulty: difficulty,
		Type:       riddleType,
		EventType:  "riddle_requested",
		Timestamp:  time.Now(),
	})
}

// Close shuts the producer down
func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// NopPublisher drops every event; used when Kafka is disabled
type NopPublisher struct{}

func (NopPublisher) PublishSolve(domain.SolveEvent) {}
func (NopPublisher) PublishRiddleRequested(string, int, domain.Difficulty, string) {
}
func (NopPublisher) Close() error { return nil }
