// Package httpclient wraps net/http with default headers, structured
// logging, and retries with exponential backoff for transient failures.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	randv2 "math/rand"
	"net"
	stdhttp "net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a reusable HTTP client. A zero retries value disables retries.
type Client struct {
	hc          *stdhttp.Client
	log         *slog.Logger
	baseURL     string
	retries     int
	baseBackoff time.Duration
	maxBackoff  time.Duration
	headers     map[string]string
	retryPolicy func(*stdhttp.Response, error) (time.Duration, bool)
}

// Option configures Client.
type Option func(*Client)

// WithBaseURL sets a prefix prepended to relative request paths.
func WithBaseURL(base string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(base, "/") }
}

// WithTimeout sets per-request timeout.
func WithTimeout(t time.Duration) Option {
	return func(c *Client) { c.hc.Timeout = t }
}

// WithLogger sets logger used by client.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithHeaders adds default headers applied to each request.
func WithHeaders(h map[string]string) Option {
	return func(c *Client) {
		for k, v := range h {
			if c.headers == nil {
				c.headers = make(map[string]string)
			}
			c.headers[k] = v
		}
	}
}

// WithRetries enables retries with exponential backoff and jitter.
func WithRetries(n int, backoff time.Duration) Option {
	return func(c *Client) {
		c.retries = n
		if backoff > 0 {
			c.baseBackoff = backoff
		}
	}
}

// WithMaxBackoff limits exponential backoff growth.
func WithMaxBackoff(d time.Duration) Option {
	return func(c *Client) { c.maxBackoff = d }
}

// WithTransport sets custom transport.
func WithTransport(rt stdhttp.RoundTripper) Option {
	return func(c *Client) {
		if rt != nil {
			c.hc.Transport = rt
		}
	}
}

// WithRetryPolicy sets custom retry policy.
func WithRetryPolicy(f func(*stdhttp.Response, error) (time.Duration, bool)) Option {
	return func(c *Client) {
		if f != nil {
			c.retryPolicy = f
		}
	}
}

// New creates a configured Client.
func New(opts ...Option) *Client {
	tr := stdhttp.DefaultTransport.(*stdhttp.Transport).Clone()
	tr.MaxIdleConns = 100
	tr.MaxIdleConnsPerHost = 100
	tr.IdleConnTimeout = 90 * time.Second
	tr.TLSHandshakeTimeout = 10 * time.Second
	tr.ResponseHeaderTimeout = 10 * time.Second

	c := &Client{
		hc: &stdhttp.Client{
			Timeout:   15 * time.Second,
			Transport: tr,
		},
		log:         slog.Default(),
		baseBackoff: 200 * time.Millisecond,
		retryPolicy: retryInfo,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Response carries the fully drained result of a request.
type Response struct {
	StatusCode int
	Header     stdhttp.Header
	Body       []byte
	// Data holds the decoded JSON body when the response declares a JSON
	// content type, nil otherwise.
	Data any
}

// IsOK reports whether the status code is in the 2xx range.
func (r *Response) IsOK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// DecodeJSON unmarshals the body into v regardless of content type.
func (r *Response) DecodeJSON(v any) error {
	return json.Unmarshal(r.Body, v)
}

// Get issues a GET request. Query parameters, when present, are encoded
// onto the URL.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	u := c.resolve(path)
	if len(query) > 0 {
		sep := "?"
		if strings.Contains(u, "?") {
			sep = "&"
		}
		u += sep + query.Encode()
	}
	req, err := stdhttp.NewRequestWithContext(ctx, stdhttp.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, req)
}

// PostJSON issues a POST request with a JSON-encoded body.
func (c *Client) PostJSON(ctx context.Context, path string, payload any) (*Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}
	req, err := stdhttp.NewRequestWithContext(ctx, stdhttp.MethodPost, c.resolve(path), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.send(ctx, req)
}

// PostForm issues a POST request with form-encoded values.
func (c *Client) PostForm(ctx context.Context, path string, form url.Values) (*Response, error) {
	req, err := stdhttp.NewRequestWithContext(ctx, stdhttp.MethodPost, c.resolve(path), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.send(ctx, req)
}

func (c *Client) resolve(path string) string {
	if c.baseURL == "" || strings.Contains(path, "://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

func (c *Client) send(ctx context.Context, req *stdhttp.Request) (*Response, error) {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	out := &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}
	if ct := resp.Header.Get("Content-Type"); strings.Contains(ct, "json") && len(body) > 0 {
		var data any
		if err := json.Unmarshal(body, &data); err == nil {
			out.Data = data
		}
	}
	return out, nil
}

// Do sends an HTTP request with default headers, logging and retries. The
// caller owns the response body. Request bodies are buffered so failed
// attempts can be replayed.
func (c *Client) Do(ctx context.Context, req *stdhttp.Request) (*stdhttp.Response, error) {
	if req.Body != nil && req.GetBody == nil {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		req.Body.Close()
		req.GetBody = func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(body)), nil }
		rc, _ := req.GetBody()
		req.Body = rc
	}

	var lastErr error
	for attempt := 1; attempt <= c.retries+1; attempt++ {
		r := req.Clone(ctx)
		for k, v := range c.headers {
			if r.Header.Get(k) == "" {
				r.Header.Set(k, v)
			}
		}
		if r.GetBody != nil {
			rc, err := r.GetBody()
			if err != nil {
				return nil, err
			}
			r.Body = rc
		}

		st := time.Now()
		resp, err := c.hc.Do(r)
		dur := time.Since(st)

		delay, retry := c.retryPolicy(resp, err)
		if !retry || attempt > c.retries {
			if err != nil {
				c.log.Warn("http request error",
					slog.String("method", r.Method),
					slog.String("url", r.URL.Redacted()),
					slog.Int("attempt", attempt),
					slog.Any("error", err))
				return nil, err
			}
			if retry {
				drainAndClose(resp.Body)
				lastErr = fmt.Errorf("%s %s: unexpected status %d", r.Method, r.URL.Redacted(), resp.StatusCode)
				c.log.Warn("http request status",
					slog.String("method", r.Method),
					slog.String("url", r.URL.Redacted()),
					slog.Int("status", resp.StatusCode),
					slog.Int("attempt", attempt))
				return nil, lastErr
			}
			c.log.Info("http request",
				slog.String("method", r.Method),
				slog.String("url", r.URL.Redacted()),
				slog.Int("status", resp.StatusCode),
				slog.Duration("dur", dur),
				slog.Int("attempt", attempt))
			return resp, nil
		}

		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("%s %s: unexpected status %d", r.Method, r.URL.Redacted(), resp.StatusCode)
			drainAndClose(resp.Body)
		}
		c.log.Warn("http request retry",
			slog.String("method", r.Method),
			slog.String("url", r.URL.Redacted()),
			slog.Int("attempt", attempt),
			slog.Any("error", lastErr))

		wait := c.baseBackoff * time.Duration(1<<uint(attempt-1))
		if delay > 0 {
			wait = delay
		} else if wait > 0 {
			wait += time.Duration(randv2.Int63n(int64(wait)))
		}
		if c.maxBackoff > 0 && wait > c.maxBackoff {
			wait = c.maxBackoff
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

// retryAfter parses a Retry-After header value.
func retryAfter(h string) time.Duration {
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(h); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := stdhttp.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// drainAndClose drains up to 512KB from body and closes it.
func drainAndClose(b io.ReadCloser) {
	if b == nil {
		return
	}
	_, _ = io.CopyN(io.Discard, b, 512<<10)
	_ = b.Close()
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		if ne, ok := ue.Err.(net.Error); ok && ne.Timeout() {
			return true
		}
		var oe *net.OpError
		if errors.As(ue.Err, &oe) {
			return true
		}
		var dnsErr *net.DNSError
		if errors.As(ue.Err, &dnsErr) && dnsErr.IsTemporary {
			return true
		}
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// retryInfo is the default retry policy: transient transport failures,
// 408/425/429 and 5xx statuses qualify. 429 and 503 honor Retry-After.
func retryInfo(resp *stdhttp.Response, err error) (time.Duration, bool) {
	if err != nil {
		return 0, isRetryableError(err)
	}
	switch {
	case resp.StatusCode == 408 || resp.StatusCode == 425:
		return 0, true
	case resp.StatusCode == 429 || resp.StatusCode == 503:
		return retryAfter(resp.Header.Get("Retry-After")), true
	case resp.StatusCode >= 500:
		return retryAfter(resp.Header.Get("Retry-After")), true
	default:
		return 0, false
	}
}
