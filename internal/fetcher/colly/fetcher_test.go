package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/thesis-crawler/internal/crawler"
)

func newTestFetcher(t *testing.T, cfg Config) *Fetcher {
	t.Helper()
	f, err := New(cfg, zap.NewNop())
	require.NoError(t, err)
	return f
}

func TestFetcherReturnsBody(t *testing.T) {
	t.Parallel()

	agents := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agents <- r.UserAgent()
		_, _ = w.Write([]byte("<html>ok</html>"))
	}))
	t.Cleanup(srv.Close)

	f := newTestFetcher(t, Config{UserAgent: "thesis-crawler-test", Timeout: time.Second})
	page, err := f.Fetch(context.Background(), srv.URL+"/record/1")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, page.StatusCode)
	require.Equal(t, "<html>ok</html>", page.Text())
	require.Equal(t, srv.URL+"/record/1", page.URL)
	require.Equal(t, "thesis-crawler-test", <-agents)
}

func TestFetcherReturnsHTTPErrorPages(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("busy"))
	}))
	t.Cleanup(srv.Close)

	f := newTestFetcher(t, Config{Timeout: time.Second})
	page, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, http.StatusServiceUnavailable, page.StatusCode)
	require.Equal(t, "busy", page.Text())
}

func TestFetcherRevisitsSameURL(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("again"))
	}))
	t.Cleanup(srv.Close)

	f := newTestFetcher(t, Config{Timeout: time.Second})
	for i := 0; i < 3; i++ {
		_, err := f.Fetch(context.Background(), srv.URL+"/same")
		require.NoError(t, err)
	}
	require.Equal(t, int32(3), hits.Load())
}

func TestFetcherTransportError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	f := newTestFetcher(t, Config{Timeout: time.Second})
	_, err := f.Fetch(context.Background(), addr)
	require.Error(t, err)
	require.NotErrorIs(t, err, crawler.ErrPermanentFetch)
}

func TestFetcherRobotsDisallowIsPermanent(t *testing.T) {
	t.Parallel()

	var pageHits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /"))
			return
		}
		pageHits.Add(1)
		_, _ = w.Write([]byte("<html></html>"))
	}))
	t.Cleanup(srv.Close)

	base := newTestFetcher(t, Config{RespectRobots: true, Timeout: time.Second})
	sleeps := &countingSleeper{}
	retrying := crawler.NewRetryingFetcher(base, crawler.DefaultBackoffPolicy(), sleeps, nil, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := retrying.Fetch(ctx, srv.URL+"/teses/1")

	require.ErrorIs(t, err, crawler.ErrPermanentFetch)
	require.ErrorIs(t, err, colly.ErrRobotsTxtBlocked)
	require.NoError(t, ctx.Err())
	require.Equal(t, int32(0), sleeps.n.Load())
	require.Equal(t, int32(0), pageHits.Load())
}

func TestClassifyVisitError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		permanent bool
	}{
		{name: "robots", err: colly.ErrRobotsTxtBlocked, permanent: true},
		{name: "forbidden domain", err: colly.ErrForbiddenDomain, permanent: true},
		{name: "missing url", err: colly.ErrMissingURL, permanent: true},
		{name: "unparseable url", err: &url.Error{Op: "parse", URL: "http://[::1", Err: errors.New("missing ']'")}, permanent: true},
		{name: "dial failure", err: &url.Error{Op: "Get", URL: "http://x", Err: errors.New("connection refused")}},
		{name: "other", err: errors.New("connection reset")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := classifyVisitError(tt.err)
			require.ErrorIs(t, err, tt.err)
			require.Equal(t, tt.permanent, errors.Is(err, crawler.ErrPermanentFetch))
		})
	}
}

type countingSleeper struct {
	n atomic.Int32
}

func (s *countingSleeper) Sleep(_ context.Context, _ time.Duration) error {
	s.n.Add(1)
	return nil
}

func TestFetcherCanceledContext(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	f := newTestFetcher(t, Config{Timeout: 5 * time.Second})
	_, err := f.Fetch(ctx, srv.URL)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFetcherBuildCollector(t *testing.T) {
	t.Parallel()

	f := newTestFetcher(t, Config{UserAgent: "coverage-agent", RespectRobots: true, Timeout: time.Second})
	collector := f.buildCollector(context.Background(), &crawler.Page{}, new(error))
	require.Equal(t, "coverage-agent", collector.UserAgent)
	require.False(t, collector.IgnoreRobotsTxt)
	require.True(t, collector.AllowURLRevisit)
	require.True(t, collector.ParseHTTPErrorResponse)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := newTestFetcher(t, Config{})
	var result crawler.Page
	var fetchErr error

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, &result, &fetchErr)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusCreated,
		Body:       []byte("body"),
		Request:    &colly.Request{URL: mustParseURL(t, "https://www.teses.usp.br/x")},
	})
	require.Equal(t, http.StatusCreated, result.StatusCode)
	require.Equal(t, "body", result.Text())
	require.Equal(t, "https://www.teses.usp.br/x", result.URL)

	hooks.onError(nil, errors.New("boom"))
	require.EqualError(t, fetchErr, "boom")
}

func TestNewAppliesLimitRule(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Delay: 10 * time.Millisecond, Parallelism: 2}, nil)
	require.NoError(t, err)
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

type stubHooks struct {
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
