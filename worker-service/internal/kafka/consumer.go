package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/yudduy/cma-analysis/internal/tracker"
	"github.com/yudduy/cma-analysis/worker-service/internal/models"
	"github.com/yudduy/cma-analysis/worker-service/internal/service"
)

type BatchProcessor interface {
	ProcessWithRetry(ctx context.Context, batch []*service.IncomingEvent, maxRetries int) (models.BatchResult, error)
}

type Archiver interface {
	Archive(ctx context.Context, source string, lines [][]byte) (string, error)
}

type Consumer struct {
	processor     BatchProcessor
	archiver      Archiver
	consumerGroup sarama.ConsumerGroup
	topics        []string
	batchSize     int
	flushInterval time.Duration
	maxRetries    int
}

type ConsumerConfig struct {
	Brokers       []string
	GroupID       string
	Topics        []string
	BatchSize     int
	FlushInterval time.Duration
	MaxRetries    int
}

// NewConsumer joins the consumer group. archiver may be nil.
func NewConsumer(config ConsumerConfig, processor BatchProcessor, archiver Archiver) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V2_6_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	saramaConfig.Consumer.Return.Errors = true

	consumerGroup, err := sarama.NewConsumerGroup(config.Brokers, config.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("create a consumer group: %w", err)
	}

	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = 5 * time.Second
	}

	return &Consumer{
		processor:     processor,
		archiver:      archiver,
		consumerGroup: consumerGroup,
		topics:        config.Topics,
		batchSize:     config.BatchSize,
		flushInterval: config.FlushInterval,
		maxRetries:    config.MaxRetries,
	}, nil
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	handler := &consumerGroupHandler{consumer: c}

	go func() {
		for err := range c.consumerGroup.Errors() {
			log.WithError(err).Warn("consumer group error")
		}
	}()

	for {
		if err := c.consumerGroup.Consume(ctx, c.topics, handler); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("Consumer error: %v", err)
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return nil
			}
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *Consumer) Close() error {
	return c.consumerGroup.Close()
}

type consumerGroupHandler struct {
	consumer *Consumer
}

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	log.Println("Kafka consumer session started")
	return nil
}

func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claims sarama.ConsumerGroupClaim) error {
	batchSize := h.consumer.batchSize
	batch := make([]*service.IncomingEvent, 0, batchSize)
	raw := make([][]byte, 0, batchSize)
	var last *sarama.ConsumerMessage

	ticker := time.NewTicker(h.consumer.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if last == nil {
			return
		}
		if len(batch) > 0 {
			if err := h.processBatch(session.Context(), batch, raw); err != nil {
				log.WithFields(log.Fields{
					"partition": last.Partition,
					"offset":    last.Offset,
					"error":     err,
				}).Error("Process batch error")
				return
			}
		}
		session.MarkMessage(last, "")
		batch = batch[:0]
		raw = raw[:0]
		last = nil
	}

	for {
		select {
		case message, ok := <-claims.Messages():
			if !ok || message == nil {
				flush()
				return nil
			}

			last = message
			in, err := DecodeMessage(message)
			if err != nil {
				log.WithFields(log.Fields{"offset": message.Offset, "error": err}).Warn("Unmarshal error")
			} else {
				batch = append(batch, in)
				raw = append(raw, message.Value)
			}

			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-session.Context().Done():
			return nil
		}
	}
}

func (h *consumerGroupHandler) processBatch(ctx context.Context, batch []*service.IncomingEvent, raw [][]byte) error {
	res, err := h.consumer.processor.ProcessWithRetry(ctx, batch, h.consumer.maxRetries)
	if err != nil {
		return err
	}

	if h.consumer.archiver != nil && res.Inserted > 0 {
		lines := make([][]byte, len(raw))
		copy(lines, raw)
		if _, err := h.consumer.archiver.Archive(ctx, tracker.SourceCollector, lines); err != nil {
			log.WithError(err).Warn("archive kafka batch")
		}
	}

	log.WithFields(log.Fields{
		"received":   res.Received,
		"inserted":   res.Inserted,
		"duplicates": res.Duplicates,
		"invalid":    res.Invalid,
	}).Debug("kafka batch persisted")
	return nil
}

// DecodeMessage turns a collector envelope into a pipeline event. The
// collector-assigned event id seeds the fingerprint so redelivery dedupes.
func DecodeMessage(message *sarama.ConsumerMessage) (*service.IncomingEvent, error) {
	var env tracker.Envelope
	if err := json.Unmarshal(message.Value, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	seed := []byte(strings.TrimSpace(env.EventID))
	if len(seed) == 0 {
		seed = []byte(fmt.Sprintf("%s/%d/%d", message.Topic, message.Partition, message.Offset))
	}

	return &service.IncomingEvent{
		Raw:         env.Event,
		Fingerprint: tracker.Fingerprint(seed, 0),
		IPAddress:   env.IPAddress,
		Source:      tracker.SourceCollector,
	}, nil
}
