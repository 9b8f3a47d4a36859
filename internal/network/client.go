package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"

	"eprints2bags/internal/fileutil"
	"eprints2bags/internal/logging"
	"eprints2bags/internal/services"
)

// Options configures a Client.
type Options struct {
	// Timeout bounds connecting, the wait for response headers, and each
	// pause between body reads. A transfer that keeps receiving data is
	// never cut off.
	// Default: 10s
	Timeout time.Duration

	// RetryAttempts is the total number of attempts allowed for one URL when
	// the server resets the connection or answers 202 Accepted.
	// Default: 5
	RetryAttempts int

	// RetryDelay is the pause before each retry.
	// Default: 1s
	RetryDelay time.Duration

	// ProbeURL is fetched to decide whether the wider network is up after a
	// timeout or an unresolved host.
	ProbeURL string

	// HTTPClient overrides the client built from Timeout.
	HTTPClient Doer

	// NetworkUp overrides the probe; tests use it to pin the answer.
	NetworkUp func(context.Context) bool

	// Sleep overrides the retry pause; tests use it to avoid real delays.
	Sleep func(context.Context, time.Duration) error

	Logger *slog.Logger
}

// DefaultOptions returns options with the standard retry budget.
func DefaultOptions() Options {
	return Options{
		Timeout:       DefaultTimeout,
		RetryAttempts: 5,
		RetryDelay:    time.Second,
		ProbeURL:      "http://www.google.com",
	}
}

// Client combines the Transport with the error classifier and the bounded
// retry policy. It is safe to reuse across records but is driven
// sequentially by the pipeline.
type Client struct {
	transport *Transport
	opts      Options
	logger    *slog.Logger
}

// NewClient creates a Client, filling unset options from DefaultOptions.
func NewClient(opts Options) *Client {
	defaults := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = defaults.Timeout
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = defaults.RetryAttempts
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = 0
	}
	if opts.ProbeURL == "" {
		opts.ProbeURL = defaults.ProbeURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = NewHTTPClient(opts.Timeout)
	}
	if opts.Sleep == nil {
		opts.Sleep = SleepWithContext
	}
	client := &Client{
		transport: NewTransport(opts.HTTPClient, opts.Timeout),
		opts:      opts,
		logger:    logging.NewComponentLogger(opts.Logger, "network"),
	}
	if client.opts.NetworkUp == nil {
		client.opts.NetworkUp = client.probe
	}
	return client
}

// NetworkAvailable reports whether the probe URL answers at all.
func (c *Client) NetworkAvailable(ctx context.Context) bool {
	return c.opts.NetworkUp(ctx)
}

// Fetch retrieves rawURL into memory and returns the body and status code.
// Connection resets are retried within the attempt budget. In ModePoll a
// 404/410 returns a nil error with the status so the caller can decide.
func (c *Client) Fetch(ctx context.Context, rawURL string, mode Mode) ([]byte, int, error) {
	logger := logging.WithContext(ctx, c.logger)
	var lastReason string

	for attempt := 1; attempt <= c.opts.RetryAttempts; attempt++ {
		if attempt > 1 {
			if err := c.opts.Sleep(ctx, c.opts.RetryDelay); err != nil {
				return nil, 0, err
			}
		}

		logger.Debug("http get", logging.String(logging.FieldURL, Redact(rawURL)), logging.Int("attempt", attempt))
		resp, err := c.transport.Get(ctx, rawURL)
		if err != nil {
			cls := c.classifyFault(ctx, err)
			if cls.Transient {
				lastReason = cls.Message
				logger.Debug("retrying after transient fault", logging.String("reason", cls.Message), logging.Int("attempt", attempt))
				continue
			}
			return nil, 0, cls.Err("fetch", rawURL)
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			cls := c.classifyFault(ctx, readErr)
			if cls.Transient {
				lastReason = cls.Message
				continue
			}
			return nil, resp.StatusCode, cls.Err("fetch", rawURL)
		}

		if cls := ClassifyStatus(resp.StatusCode, mode); !cls.OK() {
			return body, resp.StatusCode, cls.Err("fetch", rawURL)
		}
		return body, resp.StatusCode, nil
	}

	return nil, 0, c.exhausted("fetch", rawURL, lastReason)
}

// Status issues one GET for rawURL and classifies only the response
// status. The body is closed unread, so checking a large listing costs no
// more than its headers. Faults are not retried.
func (c *Client) Status(ctx context.Context, rawURL string, mode Mode) (int, error) {
	resp, err := c.transport.Get(ctx, rawURL)
	if err != nil {
		cls := c.classifyFault(ctx, err)
		if cls.Marker == nil {
			cls.Marker = services.ErrNetwork
		}
		return 0, cls.Err("status", rawURL)
	}
	resp.Body.Close()
	if cls := ClassifyStatus(resp.StatusCode, mode); !cls.OK() {
		return resp.StatusCode, cls.Err("status", rawURL)
	}
	return resp.StatusCode, nil
}

// Download retrieves rawURL into destPath. Connection resets and 202
// Accepted responses are retried within the attempt budget; every other
// failure is terminal. destPath is replaced only after the body has been
// received completely, so a failed download never leaves a partial file.
func (c *Client) Download(ctx context.Context, rawURL, destPath string) (int64, error) {
	logger := logging.WithContext(ctx, c.logger)
	var lastReason string

	for attempt := 1; attempt <= c.opts.RetryAttempts; attempt++ {
		if attempt > 1 {
			if err := c.opts.Sleep(ctx, c.opts.RetryDelay); err != nil {
				return 0, err
			}
		}

		resp, err := c.transport.Get(ctx, rawURL)
		if err != nil {
			cls := c.classifyFault(ctx, err)
			if cls.Transient {
				lastReason = cls.Message
				logger.Debug("retrying download after transient fault",
					logging.String(logging.FieldURL, Redact(rawURL)),
					logging.Duration("retry_delay", c.opts.RetryDelay),
					logging.String("reason", cls.Message),
					logging.Int("attempt", attempt),
				)
				continue
			}
			return 0, cls.Err("download", rawURL)
		}

		if resp.StatusCode == http.StatusAccepted {
			drain(resp)
			lastReason = "server accepted the request but has not produced the content"
			logger.Debug("server returned 202; retrying",
				logging.String(logging.FieldURL, Redact(rawURL)),
				logging.Int("attempt", attempt),
			)
			continue
		}

		if cls := ClassifyStatus(resp.StatusCode, ModeDownload); !cls.OK() {
			drain(resp)
			return 0, cls.Err("download", rawURL)
		}

		body := &trackingReader{r: resp.Body}
		written, err := fileutil.WriteAtomic(destPath, body)
		resp.Body.Close()
		if err != nil {
			if body.err == nil {
				return 0, services.Wrap(services.ErrInternal, "download", "write", destPath, err)
			}
			cls := c.classifyFault(ctx, body.err)
			if cls.Transient {
				lastReason = cls.Message
				continue
			}
			return 0, cls.Err("download", rawURL)
		}

		logger.Debug("downloaded document",
			logging.String(logging.FieldURL, Redact(rawURL)),
			logging.String("size", humanize.Bytes(uint64(written))),
			logging.Int64("bytes", written),
		)
		return written, nil
	}

	return 0, c.exhausted("download", rawURL, lastReason)
}

func (c *Client) exhausted(stage, rawURL, reason string) error {
	msg := fmt.Sprintf("giving up on %s after %d attempts", Redact(rawURL), c.opts.RetryAttempts)
	if reason != "" {
		msg += " (" + reason + ")"
	}
	return services.Wrap(services.ErrNetwork, stage, "", msg, nil)
}

func (c *Client) classifyFault(ctx context.Context, err error) Classification {
	return ClassifyFault(err, func() bool { return c.opts.NetworkUp(ctx) })
}

func (c *Client) probe(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()
	resp, err := c.transport.Get(probeCtx, c.opts.ProbeURL)
	if err != nil {
		return false
	}
	drain(resp)
	return true
}

// trackingReader remembers the first read error so a failed copy can be
// attributed to the network rather than the local disk.
type trackingReader struct {
	r   io.Reader
	err error
}

func (t *trackingReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) && t.err == nil {
		t.err = err
	}
	return n, err
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}

// SleepWithContext blocks for the given duration, returning early if the
// context is cancelled.
func SleepWithContext(ctx context.Context, d time.Duration) error {
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
