package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/hydro-ingest/internal/config"
	"github.com/couchcryptid/hydro-ingest/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Publisher forwards committed measurements to a Kafka topic.
// It implements pipeline.Publisher.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured measurement topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, logger: logger}
}

// Publish serializes a station batch and writes it in a single WriteMessages
// call. Messages are keyed by the measurement's natural key so replays of the
// same reading land on the same partition.
func (p *Publisher) Publish(ctx context.Context, batch []domain.Measurement) error {
	if len(batch) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(batch))
	for i := range batch {
		msg, err := serializeToMessage(batch[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d measurements: %w", len(msgs), err)
	}
	p.logger.Debug("measurements published", "count", len(msgs), "topic", p.writer.Topic)
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals a Measurement into a Kafka message.
func serializeToMessage(m domain.Measurement) (kafkago.Message, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("%w: serialize measurement: %w", domain.ErrSerialization, err)
	}
	return kafkago.Message{
		Key:   []byte(m.Key()),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "station_id", Value: []byte(m.StationID)},
			{Key: "type", Value: []byte(m.Type)},
		},
	}, nil
}
