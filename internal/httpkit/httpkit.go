// Package httpkit builds the outbound HTTP clients Mosaic uses. The two
// callers have opposite needs: SEC EDGAR wants short timeouts, a declared
// User-Agent, and polite connection reuse, while model endpoints hold a
// request open for however long generation takes. Both are served by the
// same construction path with explicit knobs instead of package-level
// defaults scattered around the codebase.
package httpkit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/ledgerline/mosaic/internal/buildinfo"
)

// Transport-level limits shared by every client.
const (
	// DefaultDialTimeout bounds TCP connection establishment.
	DefaultDialTimeout = 10 * time.Second

	// DefaultKeepAlive is the TCP keep-alive probe interval.
	DefaultKeepAlive = 30 * time.Second

	// DefaultTLSHandshakeTimeout bounds the TLS handshake.
	DefaultTLSHandshakeTimeout = 10 * time.Second

	// DefaultResponseHeader bounds the wait for response headers once the
	// request is written. Model clients must raise this: a non-streaming
	// completion sends no headers until the whole answer is generated.
	DefaultResponseHeader = 15 * time.Second

	// DefaultIdleConnTimeout is how long an idle connection may sit in
	// the pool before being closed.
	DefaultIdleConnTimeout = 90 * time.Second

	// DefaultMaxIdleConns caps pooled idle connections across all hosts.
	DefaultMaxIdleConns = 20

	// DefaultMaxIdleConnsPerHost caps pooled idle connections per host.
	DefaultMaxIdleConnsPerHost = 5
)

type settings struct {
	timeout        time.Duration
	responseHeader time.Duration
	userAgent      string
	transport      *http.Transport
	retryCount     int
	retryDelay     time.Duration
	logger         *slog.Logger
}

// ClientOption adjusts one aspect of a client built by NewClient.
type ClientOption func(*settings)

// WithTimeout sets the whole-request deadline on the returned client.
// Zero disables it; model calls run unbounded and lean on the
// response-header timeout instead.
func WithTimeout(d time.Duration) ClientOption {
	return func(s *settings) { s.timeout = d }
}

// WithResponseHeaderTimeout replaces the transport's header wait.
// Chat completion endpoints need minutes here, not seconds.
func WithResponseHeaderTimeout(d time.Duration) ClientOption {
	return func(s *settings) { s.responseHeader = d }
}

// WithUserAgent sets the User-Agent injected on outgoing requests. SEC
// EDGAR rejects anonymous scrapers, so its client passes the operator's
// declared contact string through here.
func WithUserAgent(ua string) ClientOption {
	return func(s *settings) { s.userAgent = ua }
}

// WithTransport swaps in a caller-built transport. The default shared
// transport is right for almost everything; this exists mainly so tests
// can point a client at their own plumbing.
func WithTransport(t *http.Transport) ClientOption {
	return func(s *settings) { s.transport = t }
}

// WithRetry re-sends a request up to count times when the connection
// itself could not be made (refused, host or network unreachable).
// Those failures happen before any byte reaches the server, so a retry
// cannot double server-side work. Requests whose body cannot be rewound
// are never retried.
func WithRetry(count int, delay time.Duration) ClientOption {
	return func(s *settings) {
		s.retryCount = count
		s.retryDelay = delay
	}
}

// WithLogger receives retry diagnostics.
func WithLogger(l *slog.Logger) ClientOption {
	return func(s *settings) { s.logger = l }
}

// NewTransport returns the standard transport all clients start from.
func NewTransport() *http.Transport {
	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   DefaultDialTimeout,
			KeepAlive: DefaultKeepAlive,
		}).DialContext,
		TLSHandshakeTimeout:   DefaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: DefaultResponseHeader,
		IdleConnTimeout:       DefaultIdleConnTimeout,
		MaxIdleConns:          DefaultMaxIdleConns,
		MaxIdleConnsPerHost:   DefaultMaxIdleConnsPerHost,
		ForceAttemptHTTP2:     true,
	}
}

// NewClient assembles an *http.Client from the options: shared transport,
// identity header, and optionally a retry layer on the outside.
func NewClient(opts ...ClientOption) *http.Client {
	s := settings{
		timeout:   30 * time.Second,
		userAgent: buildinfo.UserAgent(),
	}
	for _, opt := range opts {
		opt(&s)
	}

	transport := s.transport
	if transport == nil {
		transport = NewTransport()
	}
	if s.responseHeader > 0 {
		transport.ResponseHeaderTimeout = s.responseHeader
	}

	var rt http.RoundTripper = &identityRoundTripper{next: transport, agent: s.userAgent}
	if s.retryCount > 0 {
		rt = &retrier{next: rt, count: s.retryCount, delay: s.retryDelay, log: s.logger}
	}
	return &http.Client{Timeout: s.timeout, Transport: rt}
}

// identityRoundTripper fills in the User-Agent header when the request
// carries none. Requests that set their own pass through untouched.
type identityRoundTripper struct {
	next  http.RoundTripper
	agent string
}

func (t *identityRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.next.RoundTrip(req)
	}
	// RoundTrippers must not mutate the caller's request.
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.agent)
	return t.next.RoundTrip(req)
}

// retrier re-sends requests that failed with a transient dial error.
type retrier struct {
	next  http.RoundTripper
	count int
	delay time.Duration
	log   *slog.Logger
}

func (r *retrier) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := r.next.RoundTrip(req)
	if err == nil || !transientDialError(err) || !rewindable(req) {
		return resp, err
	}

	for attempt := 1; attempt <= r.count; attempt++ {
		if r.log != nil {
			r.log.Debug("retrying after transient dial error",
				"method", req.Method,
				"url", req.URL.String(),
				"attempt", attempt,
				"max", r.count,
				"error", err,
			)
		}
		if werr := sleep(req.Context(), r.delay); werr != nil {
			return nil, werr
		}

		clone := req.Clone(req.Context())
		if req.GetBody != nil {
			body, berr := req.GetBody()
			if berr != nil {
				return nil, fmt.Errorf("retry: rewind body: %w", berr)
			}
			clone.Body = body
		}

		prev := err
		resp, err = r.next.RoundTrip(clone)
		if err == nil {
			if r.log != nil {
				r.log.Info("request recovered on retry",
					"method", req.Method,
					"url", req.URL.String(),
					"attempts", attempt+1,
					"last_error", prev.Error(),
				)
			}
			return resp, nil
		}
		if !transientDialError(err) {
			return resp, err
		}
	}
	return resp, err
}

// rewindable reports whether the request can be safely re-sent. Bodyless
// requests always can; a request with a body needs GetBody.
func rewindable(req *http.Request) bool {
	if req.Body == nil || req.Body == http.NoBody {
		return true
	}
	return req.GetBody != nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// transientDialError reports whether err is a connection-setup failure
// worth retrying. ECONNRESET is deliberately absent: a reset can arrive
// after the server already acted on the request.
func transientDialError(err error) bool {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return false
	}
	switch errno {
	case syscall.ECONNREFUSED, syscall.EHOSTUNREACH, syscall.ENETUNREACH:
		return true
	}
	return false
}

// DrainAndClose consumes up to limit bytes from rc and closes it, so the
// underlying connection goes back to the pool instead of being torn down.
func DrainAndClose(rc io.ReadCloser, limit int64) {
	if rc == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, limit))
	rc.Close()
}

// ReadErrorBody captures up to limit bytes of an error response for
// diagnostics, draining and closing the rest. Nil input yields "".
func ReadErrorBody(rc io.ReadCloser, limit int64) string {
	if rc == nil {
		return ""
	}
	body, err := io.ReadAll(io.LimitReader(rc, limit))
	DrainAndClose(rc, 1024)
	if err != nil {
		return fmt.Sprintf("(failed to read error body: %v)", err)
	}
	return string(body)
}
