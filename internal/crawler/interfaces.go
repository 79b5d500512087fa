package crawler

import (
	"context"
	"io"
	"time"
)

// Fetcher performs a single HTTP GET and returns the page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// Sleeper waits between retry attempts. Implementations must return early
// with the context error when ctx is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// Limiter paces outbound requests per host.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Hasher computes digests used to name archived pages.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Publisher pushes record notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// RecordSink persists an accumulated set of records.
type RecordSink interface {
	Save(ctx context.Context, records []Record) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run and row IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
