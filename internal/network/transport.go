package network

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"
)

// DefaultTimeout bounds connecting, waiting for response headers, and each
// read of a response body.
const DefaultTimeout = 10 * time.Second

// UserAgent is sent with every request.
var UserAgent = "eprints2bags/dev"

// Doer is the minimal HTTP client surface the transport needs. *http.Client
// satisfies it; tests substitute fakes that inject transport faults.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewHTTPClient builds the client used against EPrints servers. Certificate
// verification is disabled because institutional servers commonly run with
// self-signed certificates.
//
// The client carries no overall deadline: a large document may stream for
// as long as data keeps arriving. timeout applies to dialing, the TLS
// handshake, and the wait for response headers; the Transport enforces it
// between body reads.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}).DialContext
	transport.TLSHandshakeTimeout = timeout
	transport.ResponseHeaderTimeout = timeout
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // self-signed institutional servers
	return &http.Client{Transport: transport}
}

// Transport performs single HTTP GET requests. It owns no retry logic: a
// call returns either a response or the raw transport fault.
type Transport struct {
	client Doer
	idle   time.Duration
}

// NewTransport wraps client. A nil client gets NewHTTPClient(idle). Response
// bodies fail with a timeout error when no data arrives for idle.
func NewTransport(client Doer, idle time.Duration) *Transport {
	if idle <= 0 {
		idle = DefaultTimeout
	}
	if client == nil {
		client = NewHTTPClient(idle)
	}
	return &Transport{client: client, idle: idle}
}

// Get issues a read-only fetch. Credentials embedded in the URL's authority
// are sent as basic auth by net/http.
func (t *Transport) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	reqCtx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("build GET request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = newIdleBody(resp.Body, t.idle, cancel)
	return resp, nil
}

// idleBody cancels the request when a read has waited longer than idle and
// reports the failure as a timeout.
type idleBody struct {
	body     io.ReadCloser
	idle     time.Duration
	timer    *time.Timer
	cancel   context.CancelFunc
	timedOut atomic.Bool
}

func newIdleBody(body io.ReadCloser, idle time.Duration, cancel context.CancelFunc) *idleBody {
	b := &idleBody{body: body, idle: idle, cancel: cancel}
	b.timer = time.AfterFunc(idle, func() {
		b.timedOut.Store(true)
		cancel()
	})
	return b
}

func (b *idleBody) Read(p []byte) (int, error) {
	n, err := b.body.Read(p)
	if b.timedOut.Load() {
		return n, idleTimeoutError{idle: b.idle}
	}
	b.timer.Reset(b.idle)
	return n, err
}

func (b *idleBody) Close() error {
	b.timer.Stop()
	err := b.body.Close()
	b.cancel()
	return err
}

type idleTimeoutError struct{ idle time.Duration }

func (e idleTimeoutError) Error() string {
	return fmt.Sprintf("no data received for %s", e.idle)
}
func (idleTimeoutError) Timeout() bool   { return true }
func (idleTimeoutError) Temporary() bool { return false }

// Redact hides any password embedded in rawURL so it can be logged.
func Redact(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return parsed.Redacted()
}
