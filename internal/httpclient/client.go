package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"jobscout-engine/internal/scrape/types"
)

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) JobScout/1.0"

// Options tune a single request. Zero values fall back to the client
// defaults (30s timeout, 3 retries, 1s base delay).
type Options struct {
	Timeout   time.Duration
	Retries   int
	BaseDelay time.Duration
	Headers   map[string]string
}

type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

func (r *Response) JSON(v any) error {
	dec := json.NewDecoder(bytes.NewReader(r.Body))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return types.WrapError(types.ErrParse, "decode json body", err)
	}
	return nil
}

func (r *Response) Text() string { return string(r.Body) }

// Client is the one HTTP door every adapter goes through. It retries
// transient failures (408, 5xx, network errors) with exponential backoff and
// ±25% jitter, rate-limits per host, and hands 403/429 straight back to the
// caller: adapters own the decision of backing off a hostile board.
type Client struct {
	hc        *http.Client
	limiter   *HostLimiter
	log       arbor.ILogger
	userAgent string

	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	timeout    time.Duration
}

func New(log arbor.ILogger) *Client {
	return &Client{
		hc:         &http.Client{},
		limiter:    NewHostLimiter(4, 2),
		log:        log,
		userAgent:  defaultUserAgent,
		maxRetries: 3,
		baseDelay:  time.Second,
		maxDelay:   30 * time.Second,
		timeout:    30 * time.Second,
	}
}

// WithRateLimit replaces the per-host limiter. Non-positive values keep the
// default politeness settings.
func (c *Client) WithRateLimit(reqPerSec float64, burst int) *Client {
	if reqPerSec > 0 && burst > 0 {
		c.limiter = NewHostLimiter(reqPerSec, burst)
	}
	return c
}

func (c *Client) Get(ctx context.Context, url string, opt Options) (*Response, error) {
	return c.Fetch(ctx, http.MethodGet, url, nil, opt)
}

func (c *Client) Post(ctx context.Context, url string, body []byte, opt Options) (*Response, error) {
	return c.Fetch(ctx, http.MethodPost, url, body, opt)
}

func (c *Client) Fetch(ctx context.Context, method, url string, body []byte, opt Options) (*Response, error) {
	timeout := opt.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	retries := opt.Retries
	if retries <= 0 {
		retries = c.maxRetries
	}
	base := opt.BaseDelay
	if base <= 0 {
		base = c.baseDelay
	}

	var lastErr error
	var resp *Response

	for attempt := 0; attempt < retries; attempt++ {
		if err := c.limiter.WaitURL(ctx, url); err != nil {
			return nil, types.WrapError(types.ErrNetwork, "rate limiter wait", err)
		}

		resp, lastErr = c.do(ctx, method, url, body, timeout, opt.Headers)
		if lastErr == nil && !retryableStatus(resp.StatusCode) {
			return resp, nil
		}
		if lastErr != nil && !retryableError(lastErr) {
			return nil, lastErr
		}

		if attempt < retries-1 {
			backoff := backoffFor(base, c.maxDelay, attempt)
			status := 0
			if resp != nil {
				status = resp.StatusCode
			}
			c.log.Debug().
				Str("url", url).
				Int("attempt", attempt+1).
				Int("status", status).
				Err(lastErr).
				Dur("backoff", backoff).
				Msg("retrying request")
			select {
			case <-ctx.Done():
				return nil, types.WrapError(types.ErrTimeout, "request cancelled", ctx.Err())
			case <-time.After(backoff):
			}
		}
	}

	if lastErr != nil {
		return nil, lastErr
	}
	// retries exhausted on a retryable status; surface the last response
	return resp, nil
}

func (c *Client) do(ctx context.Context, method, url string, body []byte, timeout time.Duration, headers map[string]string) (*Response, error) {
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(rctx, method, url, reader)
	if err != nil {
		return nil, types.WrapError(types.ErrInvalidURL, fmt.Sprintf("build request %s", url), err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json, text/html;q=0.9, */*;q=0.8")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	res, err := c.hc.Do(req)
	if err != nil {
		return nil, classifyNetErr(url, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, 32<<20))
	if err != nil {
		return nil, types.WrapError(types.ErrNetwork, fmt.Sprintf("read body %s", url), err)
	}

	return &Response{StatusCode: res.StatusCode, Header: res.Header, Body: data}, nil
}

// 403 and 429 are deliberately absent: they mean the board wants us gone,
// and hammering it with retries only makes that worse.
func retryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func retryableError(err error) bool {
	if err == nil {
		return false
	}
	code := types.CodeOf(err)
	return code.Retryable()
}

func classifyNetErr(url string, err error) error {
	if errors.Is(err, context.Canceled) {
		return types.WrapError(types.ErrUnknown, fmt.Sprintf("request %s cancelled", url), err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.WrapError(types.ErrTimeout, fmt.Sprintf("request %s", url), err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return types.WrapError(types.ErrTimeout, fmt.Sprintf("request %s", url), err)
	}
	return types.WrapError(types.ErrNetwork, fmt.Sprintf("request %s", url), err)
}

func backoffFor(base, max time.Duration, attempt int) time.Duration {
	backoff := float64(base)
	for i := 0; i < attempt; i++ {
		backoff *= 2.0
	}
	if backoff > float64(max) {
		backoff = float64(max)
	}
	// ±25% jitter
	backoff += backoff * 0.25 * (rand.Float64()*2 - 1)
	if backoff < 0 {
		backoff = float64(base)
	}
	return time.Duration(backoff)
}
