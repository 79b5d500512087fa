package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// defaultRobotsPauses are the waits between robots.txt attempts that timed out.
var defaultRobotsPauses = []time.Duration{
	250 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
}

const allowAllRobots = "User-agent: *\nAllow: /"

// robotsFallbackTransport gives robots.txt lookups a few extra chances when
// the handshake times out and answers with an allow-all file if the host never
// replies, so a flaky robots endpoint does not keep record pages from being
// fetched. Other requests go straight to next.
type robotsFallbackTransport struct {
	next   http.RoundTripper
	pauses []time.Duration
	logger *zap.Logger
}

func newRobotsFallbackTransport(next http.RoundTripper, logger *zap.Logger) *robotsFallbackTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &robotsFallbackTransport{next: next, pauses: defaultRobotsPauses, logger: logger}
}

func (t *robotsFallbackTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil || req.URL == nil {
		return nil, errors.New("robots fallback: request without url")
	}
	if !strings.EqualFold(req.URL.Path, "/robots.txt") {
		resp, err := t.next.RoundTrip(req)
		if err != nil {
			return nil, fmt.Errorf("page request: %w", err)
		}
		return resp, nil
	}
	return t.fetchRobots(req)
}

func (t *robotsFallbackTransport) fetchRobots(req *http.Request) (*http.Response, error) {
	for try := 0; ; try++ {
		resp, err := t.next.RoundTrip(req.Clone(req.Context()))
		if err == nil {
			return resp, nil
		}
		if !handshakeStalled(err) {
			return nil, fmt.Errorf("robots.txt request (not a timeout): %w", err)
		}
		if try == len(t.pauses) {
			t.logger.Warn("robots.txt unreachable; treating host as unrestricted",
				zap.String("host", req.URL.Host),
				zap.Int("attempts", try+1),
				zap.Error(err),
			)
			return allowAllResponse(req), nil
		}
		if err := pause(req.Context(), t.pauses[try]); err != nil {
			return nil, fmt.Errorf("robots.txt retry wait: %w", err)
		}
	}
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func allowAllResponse(req *http.Request) *http.Response {
	return &http.Response{
		StatusCode:    http.StatusOK,
		Status:        "200 OK",
		Body:          io.NopCloser(strings.NewReader(allowAllRobots)),
		ContentLength: int64(len(allowAllRobots)),
		Header:        http.Header{"Content-Type": []string{"text/plain"}},
		Request:       req,
	}
}

// handshakeStalled reports timeouts, the only robots.txt failures worth a retry.
func handshakeStalled(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "tls: handshake timeout")
}
