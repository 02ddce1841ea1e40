package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/yudduy/cma-analysis/internal/tracker"
)

type Producer struct {
	producer sarama.SyncProducer
	topic    string
}

type ProducerConfig struct {
	Brokers []string
	Topic   string
}

func NewProducer(config ProducerConfig) (*Producer, error) {
	producer, err := sarama.NewSyncProducer(config.Brokers, NewSaramaConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	log.Info("Kafka producer initialized successfully")
	return NewProducerWith(producer, config.Topic), nil
}

// NewSaramaConfig is the producer configuration: acks from all replicas,
// snappy batches, and hash partitioning on the visitor key.
func NewSaramaConfig() *sarama.Config {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V2_6_0_0
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 5
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner
	return saramaConfig
}

func NewProducerWith(producer sarama.SyncProducer, topic string) *Producer {
	return &Producer{producer: producer, topic: topic}
}

func (p *Producer) message(env tracker.Envelope) (*sarama.ProducerMessage, error) {
	payload, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	return &sarama.ProducerMessage{
		Topic:     p.topic,
		Key:       sarama.StringEncoder(env.Event.UUID),
		Value:     sarama.ByteEncoder(payload),
		Timestamp: env.ReceivedAt,
	}, nil
}

func (p *Producer) SendEvent(ctx context.Context, env tracker.Envelope) error {
	message, err := p.message(env)
	if err != nil {
		return err
	}

	partition, offset, err := p.producer.SendMessage(message)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	log.WithFields(log.Fields{"partition": partition, "offset": offset}).Debug("Message sent")
	return nil
}

func (p *Producer) SendEventBatch(ctx context.Context, envs []tracker.Envelope) error {
	messages := make([]*sarama.ProducerMessage, 0, len(envs))

	for _, env := range envs {
		message, err := p.message(env)
		if err != nil {
			log.WithError(err).Warn("Failed to marshal event")
			continue
		}
		messages = append(messages, message)
	}

	if len(messages) == 0 {
		return fmt.Errorf("no valid messages to send")
	}

	if err := p.producer.SendMessages(messages); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	log.WithField("count", len(messages)).Debug("Batch sent")
	return nil
}

func (p *Producer) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close producer: %w", err)
	}
	log.Info("Kafka producer closed")
	return nil
}

// Envelope wraps an accepted event with collector metadata.
func Envelope(event tracker.RawEvent, ip, eventID string, now time.Time) tracker.Envelope {
	return tracker.Envelope{
		EventID:    eventID,
		Event:      event,
		IPAddress:  ip,
		ReceivedAt: now.UTC(),
	}
}
