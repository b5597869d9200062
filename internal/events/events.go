// Package events publishes confirmed location changes for downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/xelth-com/colocacion/internal/config"
	"github.com/xelth-com/colocacion/internal/errs"
	"github.com/xelth-com/colocacion/internal/logger"
)

const EventTypeLocationChanged = "location_changed"

// LocationChanged is emitted once per confirmed placement change
type LocationChanged struct {
	EventID     string    `json:"eventId"`
	EventType   string    `json:"eventType"`
	ProductID   int64     `json:"productId"`
	Barcode     string    `json:"barcode"`
	OldLocation *string   `json:"oldLocation"`
	NewLocation *string   `json:"newLocation"`
	Stock       float64   `json:"stock"`
	ActorID     string    `json:"actorId"`
	DeviceID    string    `json:"deviceId"`
	Reason      string    `json:"reason"`
	Timestamp   time.Time `json:"timestamp"`
}

// Publisher is implemented by KafkaPublisher and Nop
type Publisher interface {
	PublishLocationChanged(ctx context.Context, ev LocationChanged) error
	Close() error
}

// KafkaPublisher wraps a sarama sync producer
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	log      zerolog.Logger
}

// ProducerConfig is the sarama configuration used for location events
func ProducerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.Retry.Max = 3
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Compression = sarama.CompressionSnappy
	return cfg
}

// New returns a Kafka publisher when brokers are configured, otherwise Nop
func New(cfg config.KafkaConfig) (Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return Nop{}, nil
	}

	producer, err := sarama.NewSyncProducer(cfg.Brokers, ProducerConfig())
	if err != nil {
		return nil, errs.Wrap(err, "create kafka producer")
	}

	logger.Logger.Info().Strs("brokers", cfg.Brokers).Str("topic", cfg.Topic).Msg("📣 Kafka publisher initialized")
	return NewKafkaPublisher(producer, cfg.Topic), nil
}

func NewKafkaPublisher(producer sarama.SyncProducer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic, log: logger.Component("events")}
}

func (p *KafkaPublisher) PublishLocationChanged(ctx context.Context, ev LocationChanged) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	ev.EventType = EventTypeLocationChanged

	payload, err := json.Marshal(ev)
	if err != nil {
		return errs.Wrap(err, "encode location event")
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder("product_" + strconv.FormatInt(ev.ProductID, 10)),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(ev.EventType)},
			{Key: []byte("event_id"), Value: []byte(ev.EventID)},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.log.Error().Err(err).Str("topic", p.topic).Int64("product_id", ev.ProductID).Msg("failed to publish event")
		return errs.Mark(errs.Wrap(err, "publish location event"), errs.ErrExternal)
	}

	p.log.Debug().
		Str("event_id", ev.EventID).
		Int32("partition", partition).
		Int64("offset", offset).
		Int64("product_id", ev.ProductID).
		Msg("location event published")
	return nil
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// Nop discards events
type Nop struct{}

func (Nop) PublishLocationChanged(context.Context, LocationChanged) error { return nil }
func (Nop) Close() error                                                  { return nil }
