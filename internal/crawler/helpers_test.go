package crawler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockFetcher is a mock implementation of the Fetcher interface.
type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) Fetch(ctx context.Context, rawURL string) (Page, error) {
	args := m.Called(ctx, rawURL)
	return args.Get(0).(Page), args.Error(1)
}

// MockLimiter is a mock implementation of the Limiter interface.
type MockLimiter struct {
	mock.Mock
}

func (m *MockLimiter) Wait(ctx context.Context, rawURL string) error {
	args := m.Called(ctx, rawURL)
	return args.Error(0)
}

type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
	err    error
}

func (s *recordingSleeper) Sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return s.err
}

func (s *recordingSleeper) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

// siteFetcher serves canned pages keyed by URL and records every request.
type siteFetcher struct {
	mu       sync.Mutex
	pages    map[string]string
	failures map[string]error
	statuses map[string]int
	requests []string
}

func newSiteFetcher() *siteFetcher {
	return &siteFetcher{
		pages:    make(map[string]string),
		failures: make(map[string]error),
		statuses: make(map[string]int),
	}
}

func (f *siteFetcher) Fetch(_ context.Context, rawURL string) (Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, rawURL)
	if err, ok := f.failures[rawURL]; ok {
		return Page{}, err
	}
	if code, ok := f.statuses[rawURL]; ok {
		return Page{URL: rawURL, StatusCode: code, Body: []byte("<html><body>erro interno</body></html>")}, nil
	}
	body, ok := f.pages[rawURL]
	if !ok {
		return Page{URL: rawURL, StatusCode: 404, Body: []byte("<html><body>not found</body></html>")}, nil
	}
	return Page{URL: rawURL, StatusCode: 200, Body: []byte(body)}, nil
}

func (f *siteFetcher) fetched(rawURL string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		if r == rawURL {
			return true
		}
	}
	return false
}

func (f *siteFetcher) hits(rawURL string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if r == rawURL {
			n++
		}
	}
	return n
}

func (f *siteFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// listingHTML renders a search-results page in the repository's layout.
func listingHTML(urls ...string) string {
	var sb strings.Builder
	sb.WriteString("<html><body>\n<div class=\"resultados\">\n")
	for i, u := range urls {
		fmt.Fprintf(&sb, "<div class=\"dadosDocNome\"><a href=\"%s\">Tese %d</a></div>\n", u, i+1)
		sb.WriteString("<div class=\"dadosDocAutor\">Autor</div>\n")
	}
	sb.WriteString("</div>\n</body></html>")
	return sb.String()
}

// recordHTML renders a record page declaring title and subjects.
func recordHTML(title string, subjects ...string) string {
	var sb strings.Builder
	sb.WriteString("<html><head>\n")
	fmt.Fprintf(&sb, "<meta name=\"DC.title\" content=\"%s\" xml:lang=\"pt-br\">\n", title)
	for _, s := range subjects {
		fmt.Fprintf(&sb, "<meta name=\"DC.subject\" content=\"%s\" xml:lang=\"pt-br\">\n", s)
	}
	sb.WriteString("</head><body></body></html>")
	return sb.String()
}

func recordURLs(prefix string, count int) []string {
	out := make([]string, count)
	for i := range out {
		out[i] = fmt.Sprintf("https://teses.example/%s/%d", prefix, i+1)
	}
	return out
}

func testQueryBuilder() *QueryBuilder {
	params := DefaultSearchParams()
	params.BaseURL = "https://teses.example/index.php"
	return NewQueryBuilder(params)
}

type fakeHasher struct{}

func (fakeHasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

type fakeBlobStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{objects: make(map[string][]byte)}
}

func (s *fakeBlobStore) PutObject(_ context.Context, path string, _ string, data io.Reader) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[path] = b
	return "memory://" + path, nil
}

func (s *fakeBlobStore) paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.objects))
	for p := range s.objects {
		out = append(out, p)
	}
	return out
}
