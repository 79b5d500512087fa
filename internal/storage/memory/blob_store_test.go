package memory

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("<html>tese</html>")
	uri, err := store.PutObject(context.Background(), "pages/abc.html", "text/html", bytes.NewReader(payload))
	require.NoError(t, err)
	require.Equal(t, "memory://pages/abc.html", uri)

	payload[0] = 'X'
	got, contentType, ok := store.Get("pages/abc.html")
	require.True(t, ok)
	require.Equal(t, "<html>tese</html>", string(got))
	require.Equal(t, "text/html", contentType)

	got[0] = 'Y'
	again, _, _ := store.Get("pages/abc.html")
	require.Equal(t, "<html>tese</html>", string(again))
}

func TestBlobStorePaths(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	for _, p := range []string{"b.html", "a.html", "b.html"} {
		_, err := store.PutObject(context.Background(), p, "", bytes.NewReader([]byte(p)))
		require.NoError(t, err)
	}
	require.Equal(t, []string{"a.html", "b.html"}, store.Paths())

	_, _, ok := store.Get("missing.html")
	require.False(t, ok)
}

func TestBlobStoreRejectsEmptyPath(t *testing.T) {
	t.Parallel()

	_, err := NewBlobStore().PutObject(context.Background(), "", "", bytes.NewReader(nil))
	require.Error(t, err)
}
