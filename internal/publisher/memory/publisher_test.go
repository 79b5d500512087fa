package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "theses", map[string]string{"url": "a"})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id1)
	id2, err := pub.Publish(context.Background(), "theses-dlq", "payload")
	require.NoError(t, err)
	require.Equal(t, "memory-2", id2)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "theses", msgs[0].Topic)
	require.Equal(t, "theses-dlq", msgs[1].Topic)

	msgs[0].Topic = "modified"
	require.Equal(t, "theses", pub.Messages()[0].Topic)
}

var errBoom = errors.New("injected failure")

func TestPublisherFailNext(t *testing.T) {
	t.Parallel()

	pub := New()
	pub.FailNext(errBoom)
	_, err := pub.Publish(context.Background(), "theses", "x")
	require.ErrorIs(t, err, errBoom)
	require.Empty(t, pub.Messages())

	_, err = pub.Publish(context.Background(), "theses", "x")
	require.NoError(t, err)
	require.Len(t, pub.Messages(), 1)
}
