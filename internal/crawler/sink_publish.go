package crawler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// RecordNotification is the payload published for each saved record.
type RecordNotification struct {
	RunID       string    `json:"run_id"`
	PublishedAt time.Time `json:"published_at"`
	Record
}

// PublishSink announces every record on a topic.
type PublishSink struct {
	publisher Publisher
	topic     string
	runID     string
	clock     Clock
	logger    *zap.Logger
}

// NewPublishSink returns a sink publishing to topic.
func NewPublishSink(publisher Publisher, topic, runID string, clock Clock, logger *zap.Logger) *PublishSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublishSink{
		publisher: publisher,
		topic:     topic,
		runID:     runID,
		clock:     clock,
		logger:    logger,
	}
}

// Save publishes one notification per record, stopping at the first failure.
func (s *PublishSink) Save(ctx context.Context, records []Record) error {
	for _, rec := range records {
		msg := RecordNotification{
			RunID:       s.runID,
			PublishedAt: s.clock.Now(),
			Record:      rec,
		}
		id, err := s.publisher.Publish(ctx, s.topic, msg)
		if err != nil {
			return fmt.Errorf("publish record %s: %w", rec.URL, err)
		}
		s.logger.Debug("record published", zap.String("url", rec.URL), zap.String("message_id", id))
	}
	return nil
}
