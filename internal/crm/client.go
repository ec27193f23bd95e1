// Package crm talks to the CRM REST API: a retrying GET client and a pager
// that fans page and ID-batch requests out over a bounded worker pool.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"syscall"
	"time"

	errs "github.com/hussain-magshield/magshield-data-pipeline/internal/errors"
	"github.com/hussain-magshield/magshield-data-pipeline/pkg/types"
)

// TotalCountHeader carries the collection size on count_total requests.
const TotalCountHeader = "X-Total-Count"

// ClientConfig holds the fetch client settings.
type ClientConfig struct {
	// BaseURL is the API root, e.g. https://api.na1.insightly.com/v3.1
	BaseURL string
	// APIKey is sent as the basic auth username with an empty password.
	APIKey string
	// Timeout bounds each attempt, body read included.
	Timeout time.Duration
	// MaxAttempts is the total number of tries per call.
	MaxAttempts int
	// BackoffBase is raised to the attempt index to get the delay.
	BackoffBase float64
	// BackoffUnit scales the delay (one second in production).
	BackoffUnit time.Duration
}

// DefaultClientConfig returns the production retry settings.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:     "https://api.na1.insightly.com/v3.1",
		Timeout:     60 * time.Second,
		MaxAttempts: 5,
		BackoffBase: 2,
		BackoffUnit: time.Second,
	}
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Client issues authenticated GET requests with exponential backoff on
// transport failures. HTTP error statuses are never retried.
type Client struct {
	cfg    ClientConfig
	http   *http.Client
	logger *slog.Logger
	sleep  SleepFunc
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithSleep replaces the backoff sleep.
func WithSleep(fn SleepFunc) ClientOption {
	return func(c *Client) { c.sleep = fn }
}

// NewClient creates a fetch client.
func NewClient(cfg ClientConfig, opts ...ClientOption) *Client {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultClientConfig().Timeout
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 2
	}
	if cfg.BackoffUnit <= 0 {
		cfg.BackoffUnit = time.Second
	}

	c := &Client{
		cfg:    cfg,
		http:   &http.Client{},
		logger: slog.Default(),
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Records decodes the body as a JSON array of records. Numbers keep their
// wire text.
func (r *Response) Records() ([]types.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(r.Body))
	dec.UseNumber()

	var records []types.Record
	if err := dec.Decode(&records); err != nil {
		return nil, errs.Wrap(errs.ErrCategoryHTTP, errs.CodeBadResponse, "decode record list", err)
	}
	return records, nil
}

// Record decodes the body as a single JSON object.
func (r *Response) Record() (types.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(r.Body))
	dec.UseNumber()

	var record types.Record
	if err := dec.Decode(&record); err != nil {
		return nil, errs.Wrap(errs.ErrCategoryHTTP, errs.CodeBadResponse, "decode record", err)
	}
	return record, nil
}

// TotalCount parses the X-Total-Count header.
func (r *Response) TotalCount() (int, bool) {
	v := strings.TrimSpace(r.Header.Get(TotalCountHeader))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// Get fetches endpoint relative to the base URL. On failure the response
// is nil and the error says why; callers degrade instead of aborting.
func (c *Client) Get(ctx context.Context, endpoint string, query url.Values) (*Response, error) {
	target := c.url(endpoint, query)

	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		resp, err := c.do(ctx, target)
		if err == nil {
			return resp, nil
		}

		if !errs.IsRetryable(err) {
			c.logger.Error("crm request failed", "url", target, "attempt", attempt+1, "error", err)
			return nil, err
		}

		lastErr = err
		c.logger.Warn("crm network error",
			"url", target, "attempt", attempt+1, "max_attempts", c.cfg.MaxAttempts, "error", err)

		if attempt == c.cfg.MaxAttempts-1 {
			break
		}
		if err := c.sleep(ctx, c.Backoff(attempt)); err != nil {
			return nil, fmt.Errorf("crm: backoff interrupted: %w", err)
		}
	}

	c.logger.Error("crm request skipped", "url", target, "attempts", c.cfg.MaxAttempts)
	return nil, errs.NewNetworkError(errs.CodeRetriesExhausted,
		fmt.Sprintf("gave up on %s after %d attempts", target, c.cfg.MaxAttempts), lastErr)
}

// Backoff returns the delay before retry i (0-indexed): base^i units.
func (c *Client) Backoff(i int) time.Duration {
	return time.Duration(math.Pow(c.cfg.BackoffBase, float64(i)) * float64(c.cfg.BackoffUnit))
}

func (c *Client) do(ctx context.Context, target string) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, target, nil)
	if err != nil {
		return nil, errs.NewInternalError("build request", err)
	}
	req.SetBasicAuth(c.cfg.APIKey, "")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classify(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, classify(ctx, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, errs.NewHTTPError(resp.StatusCode, target)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

func (c *Client) url(endpoint string, query url.Values) string {
	base := strings.TrimRight(c.cfg.BaseURL, "/")
	u := base + "/" + strings.TrimLeft(endpoint, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// classify maps a transport error onto the retry taxonomy. Cancellation of
// the caller's context is returned as-is and never retried.
func classify(parent context.Context, err error) error {
	if parent.Err() != nil {
		return fmt.Errorf("crm: %w", parent.Err())
	}

	var netErr net.Error
	switch {
	case errors.Is(err, io.ErrUnexpectedEOF):
		return errs.NewNetworkError(errs.CodeTruncated, "response truncated", err)
	case errors.Is(err, context.DeadlineExceeded):
		return errs.NewNetworkError(errs.CodeTimeout, "request timed out", err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return errs.NewNetworkError(errs.CodeTimeout, "request timed out", err)
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, io.EOF),
		strings.Contains(err.Error(), "connection reset"):
		return errs.NewNetworkError(errs.CodeConnectionReset, "connection reset", err)
	default:
		return errs.NewNetworkError(errs.CodeConnection, "connection failed", err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
