package crawler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	args := m.Called(ctx, topic, payload)
	return args.String(0), args.Error(1)
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func TestPublishSinkPublishesEachRecord(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0).UTC()
	records := []Record{{URL: "a", Keywords: []string{}}, {URL: "b", Keywords: []string{"x"}}}
	pub := new(MockPublisher)
	for _, rec := range records {
		pub.On("Publish", mock.Anything, "theses", RecordNotification{
			RunID:       "run-1",
			PublishedAt: now,
			Record:      rec,
		}).Return("msg", nil).Once()
	}

	sink := NewPublishSink(pub, "theses", "run-1", fixedClock{now: now}, nil)
	require.NoError(t, sink.Save(context.Background(), records))
	pub.AssertExpectations(t)
}

func TestPublishSinkStopsOnError(t *testing.T) {
	t.Parallel()

	pub := new(MockPublisher)
	pub.On("Publish", mock.Anything, "theses", mock.Anything).Return("", errors.New("unavailable")).Once()

	sink := NewPublishSink(pub, "theses", "run-1", fixedClock{}, nil)
	err := sink.Save(context.Background(), []Record{{URL: "a"}, {URL: "b"}})
	require.ErrorContains(t, err, "publish record a")
	pub.AssertNumberOfCalls(t, "Publish", 1)
}
