package messaging

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mercat/varejo/internal/config"
	"github.com/mercat/varejo/pkg/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestNewRatingFeed(t *testing.T) {
	t.Run("defaults the topic", func(t *testing.T) {
		cfg := &config.KafkaConfig{Brokers: []string{"localhost:9092"}}
		feed := NewRatingFeed(cfg, testLogger())
		defer feed.Close()

		assert.Equal(t, "rating-events", feed.writer.Topic)
		assert.Equal(t, "rating-events", feed.reader.Config().Topic)
		assert.Equal(t, "recommendation-engine", feed.reader.Config().GroupID)
	})

	t.Run("honours a configured topic", func(t *testing.T) {
		cfg := &config.KafkaConfig{Brokers: []string{"localhost:9092"}}
		cfg.Topics.RatingEvents = "ratings-staging"
		feed := NewRatingFeed(cfg, testLogger())
		defer feed.Close()

		assert.Equal(t, "ratings-staging", feed.writer.Topic)
		assert.Equal(t, "ratings-staging", feed.reader.Config().Topic)
	})
}

func TestRatingEvent_JSON(t *testing.T) {
	categoryValue := 4
	event := RatingEvent{
		EventID: uuid.New(),
		Rating: models.Rating{
			ClientID:      "c1",
			ProductID:     "p1",
			Value:         5,
			CategoryValue: &categoryValue,
		},
		Source:    "simulator",
		Timestamp: time.Now().UTC().Truncate(time.Second),
	}

	payload, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded RatingEvent
	require.NoError(t, json.Unmarshal(payload, &decoded))

	assert.Equal(t, event.EventID, decoded.EventID)
	assert.Equal(t, event.Rating.ClientID, decoded.Rating.ClientID)
	assert.Equal(t, event.Rating.Value, decoded.Rating.Value)
	require.NotNil(t, decoded.Rating.CategoryValue)
	assert.Equal(t, 4, *decoded.Rating.CategoryValue)
	assert.Equal(t, "simulator", decoded.Source)
	assert.True(t, event.Timestamp.Equal(decoded.Timestamp))
}
