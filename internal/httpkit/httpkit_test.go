package httpkit

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"
)

// scriptedRT fails with errs[i] on call i and succeeds once the script
// runs out. It records every body it was handed.
type scriptedRT struct {
	errs   []error
	calls  int
	bodies []string
}

func (rt *scriptedRT) RoundTrip(req *http.Request) (*http.Response, error) {
	idx := rt.calls
	rt.calls++
	if req.Body != nil && req.Body != http.NoBody {
		b, _ := io.ReadAll(req.Body)
		rt.bodies = append(rt.bodies, string(b))
	}
	if idx < len(rt.errs) && rt.errs[idx] != nil {
		return nil, rt.errs[idx]
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader("ok")),
		Request:    req,
	}, nil
}

func refusedErr() error {
	return &net.OpError{Op: "dial", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}
}

func TestNewClientDefaultTimeout(t *testing.T) {
	c := NewClient()
	if c.Timeout != 30*time.Second {
		t.Errorf("default timeout = %v, want 30s", c.Timeout)
	}
	if NewClient(WithTimeout(0)).Timeout != 0 {
		t.Error("WithTimeout(0) should disable the client deadline")
	}
}

func TestUserAgentInjection(t *testing.T) {
	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.Header.Get("User-Agent"))
	}))
	defer srv.Close()

	c := NewClient(WithUserAgent("Mosaic Research admin@example.com"))

	resp, err := c.Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	DrainAndClose(resp.Body, 1024)

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	req.Header.Set("User-Agent", "caller/1.0")
	resp, err = c.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	DrainAndClose(resp.Body, 1024)

	if len(got) != 2 {
		t.Fatalf("server saw %d requests, want 2", len(got))
	}
	if got[0] != "Mosaic Research admin@example.com" {
		t.Errorf("injected agent = %q", got[0])
	}
	if got[1] != "caller/1.0" {
		t.Errorf("caller-set agent overwritten: %q", got[1])
	}
}

func TestWithResponseHeaderTimeout(t *testing.T) {
	tr := NewTransport()
	NewClient(WithTransport(tr), WithResponseHeaderTimeout(5*time.Minute))
	if tr.ResponseHeaderTimeout != 5*time.Minute {
		t.Errorf("response header timeout = %v, want 5m", tr.ResponseHeaderTimeout)
	}
}

func TestRetrierRecovers(t *testing.T) {
	rt := &scriptedRT{errs: []error{refusedErr()}}
	r := &retrier{next: rt, count: 2, delay: time.Millisecond}

	req, _ := http.NewRequest(http.MethodGet, "http://example.invalid/", nil)
	resp, err := r.RoundTrip(req)
	if err != nil {
		t.Fatalf("round trip: %v", err)
	}
	DrainAndClose(resp.Body, 64)
	if rt.calls != 2 {
		t.Errorf("calls = %d, want 2 (one failure, one retry)", rt.calls)
	}
}

func TestRetrierExhausts(t *testing.T) {
	rt := &scriptedRT{errs: []error{refusedErr(), refusedErr(), refusedErr()}}
	r := &retrier{next: rt, count: 2, delay: time.Millisecond}

	req, _ := http.NewRequest(http.MethodGet, "http://example.invalid/", nil)
	if _, err := r.RoundTrip(req); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if rt.calls != 3 {
		t.Errorf("calls = %d, want 3 (initial + 2 retries)", rt.calls)
	}
}

func TestRetrierSkipsNonTransientErrors(t *testing.T) {
	rt := &scriptedRT{errs: []error{errors.New("tls: handshake failure")}}
	r := &retrier{next: rt, count: 3, delay: time.Millisecond}

	req, _ := http.NewRequest(http.MethodGet, "http://example.invalid/", nil)
	if _, err := r.RoundTrip(req); err == nil {
		t.Fatal("expected the original error")
	}
	if rt.calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry)", rt.calls)
	}
}

func TestRetrierRewindsBody(t *testing.T) {
	rt := &scriptedRT{errs: []error{refusedErr()}}
	r := &retrier{next: rt, count: 1, delay: time.Millisecond}

	// http.NewRequest wires GetBody for *strings.Reader bodies.
	req, _ := http.NewRequest(http.MethodPost, "http://example.invalid/", strings.NewReader("payload"))
	resp, err := r.RoundTrip(req)
	if err != nil {
		t.Fatalf("round trip: %v", err)
	}
	DrainAndClose(resp.Body, 64)
	if len(rt.bodies) != 2 || rt.bodies[0] != "payload" || rt.bodies[1] != "payload" {
		t.Errorf("bodies = %q, want the same payload twice", rt.bodies)
	}
}

func TestRetrierRefusesUnrewindableBody(t *testing.T) {
	rt := &scriptedRT{errs: []error{refusedErr()}}
	r := &retrier{next: rt, count: 3, delay: time.Millisecond}

	req, _ := http.NewRequest(http.MethodPost, "http://example.invalid/", strings.NewReader("payload"))
	req.GetBody = nil
	if _, err := r.RoundTrip(req); err == nil {
		t.Fatal("expected the original error")
	}
	if rt.calls != 1 {
		t.Errorf("calls = %d, want 1 (body cannot be replayed)", rt.calls)
	}
}

func TestRetrierHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rt := &scriptedRT{errs: []error{refusedErr()}}
	r := &retrier{next: rt, count: 1, delay: time.Hour}

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "http://example.invalid/", nil)
	_, err := r.RoundTrip(req)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if rt.calls != 1 {
		t.Errorf("calls = %d, want 1 (cancelled before retry)", rt.calls)
	}
}

func TestTransientDialError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"refused", refusedErr(), true},
		{"host unreachable", &net.OpError{Op: "dial", Err: os.NewSyscallError("connect", syscall.EHOSTUNREACH)}, true},
		{"net unreachable", syscall.ENETUNREACH, true},
		{"reset", &net.OpError{Op: "read", Err: os.NewSyscallError("read", syscall.ECONNRESET)}, false},
		{"plain", errors.New("no route to host"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := transientDialError(tc.err); got != tc.want {
				t.Errorf("transientDialError(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

type closeRecorder struct {
	io.Reader
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

func TestDrainAndClose(t *testing.T) {
	rc := &closeRecorder{Reader: strings.NewReader(strings.Repeat("x", 4096))}
	DrainAndClose(rc, 1024)
	if !rc.closed {
		t.Error("body not closed")
	}
	DrainAndClose(nil, 1024) // must not panic
}

func TestReadErrorBody(t *testing.T) {
	rc := &closeRecorder{Reader: strings.NewReader(`{"error":"rate limited"}`)}
	if got := ReadErrorBody(rc, 512); got != `{"error":"rate limited"}` {
		t.Errorf("body = %q", got)
	}
	if !rc.closed {
		t.Error("body not closed")
	}

	long := &closeRecorder{Reader: strings.NewReader(strings.Repeat("a", 100))}
	if got := ReadErrorBody(long, 10); len(got) != 10 {
		t.Errorf("capped read returned %d bytes, want 10", len(got))
	}

	if got := ReadErrorBody(nil, 512); got != "" {
		t.Errorf("nil body = %q, want empty", got)
	}
}
