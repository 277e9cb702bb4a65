// Package messaging carries rating updates between the ingestion side
// and the engine. The consumer only appends data and invalidates the
// hyperparameter cache; retraining stays an explicit batch step.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/mercat/varejo/internal/config"
	"github.com/mercat/varejo/pkg/models"
)

const (
	defaultRatingEventsTopic = "rating-events"
	consumerGroup            = "recommendation-engine"
)

// RatingEvent is one rating update on the wire.
type RatingEvent struct {
	EventID   uuid.UUID     `json:"event_id"`
	Rating    models.Rating `json:"rating"`
	Source    string        `json:"source"` // "ui", "simulator", ...
	Timestamp time.Time     `json:"timestamp"`
}

// RatingFeed is the producer/consumer pair for rating events.
type RatingFeed struct {
	writer *kafka.Writer
	reader *kafka.Reader
	logger *logrus.Logger
}

func NewRatingFeed(cfg *config.KafkaConfig, logger *logrus.Logger) *RatingFeed {
	topic := cfg.Topics.RatingEvents
	if topic == "" {
		topic = defaultRatingEventsTopic
	}

	return &RatingFeed{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{}, // key by client for per-client ordering
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 10 * time.Millisecond,
			BatchSize:    100,
		},
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        cfg.Brokers,
			Topic:          topic,
			GroupID:        consumerGroup,
			MinBytes:       1,
			MaxBytes:       10e6,
			CommitInterval: time.Second,
			StartOffset:    kafka.LastOffset,
		}),
		logger: logger,
	}
}

// Publish emits one rating event.
func (f *RatingFeed) Publish(ctx context.Context, rating models.Rating, source string) error {
	event := RatingEvent{
		EventID:   uuid.New(),
		Rating:    rating,
		Source:    source,
		Timestamp: time.Now(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal rating event: %w", err)
	}

	err = f.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(rating.ClientID),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("publish rating event: %w", err)
	}

	f.logger.WithFields(logrus.Fields{
		"client_id":  rating.ClientID,
		"product_id": rating.ProductID,
		"source":     source,
	}).Debug("Rating event published")
	return nil
}

// Consume reads events until the context is cancelled, passing each to
// the handler. Malformed payloads and handler failures are logged and
// skipped; the feed keeps going.
func (f *RatingFeed) Consume(ctx context.Context, handler func(context.Context, RatingEvent) error) error {
	for {
		msg, err := f.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("read rating event: %w", err)
		}

		var event RatingEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			f.logger.WithError(err).WithField("offset", msg.Offset).Error("Malformed rating event")
			continue
		}

		if err := handler(ctx, event); err != nil {
			f.logger.WithError(err).WithFields(logrus.Fields{
				"event_id":  event.EventID,
				"client_id": event.Rating.ClientID,
			}).Error("Rating event handler failed")
		}
	}
}

func (f *RatingFeed) Close() error {
	werr := f.writer.Close()
	rerr := f.reader.Close()
	if werr != nil {
		return werr
	}
	return rerr
}
