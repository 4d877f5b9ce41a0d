package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"telegrama/internal/settings"
	"telegrama/internal/transport"
	logx "telegrama/pkg/logx"
)

const (
	maxResponseBytes = 1 << 20
	maxRetryDelay    = 30 * time.Second
)

// HTTPClient is a Bot API transport over net/http.
//
// Transport errors, 429 and 5xx responses are retried up to RetryCount times
// with exponential backoff; a 429 Retry-After takes precedence. Other
// rejections are returned as-is.
type HTTPClient struct {
	baseURL    string
	http       *http.Client
	limiter    *rate.Limiter
	retries    int
	retryDelay time.Duration
	log        logx.Logger
}

// NewHTTPClient builds a client from opts. A RatePerSec of 0 disables
// limiting.
func NewHTTPClient(opts settings.ClientOptions, log logx.Logger) *HTTPClient {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = settings.DefaultAPIBaseURL
	}
	c := &HTTPClient{
		baseURL:    base,
		http:       &http.Client{Timeout: opts.Timeout},
		retries:    max(opts.RetryCount, 0),
		retryDelay: opts.RetryDelay,
		log:        log.With(logx.String("comp", "transport.http")),
	}
	if opts.RatePerSec > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), opts.RatePerSec)
	}
	return c
}

func (c *HTTPClient) Send(ctx context.Context, req transport.Request) (transport.RawResponse, error) {
	fail := func(err error) (transport.RawResponse, error) {
		return transport.RawResponse{}, &transport.Error{Method: req.Method, Err: scrub(err, req.Token)}
	}

	data, err := json.Marshal(req.Body)
	if err != nil {
		return fail(fmt.Errorf("marshal request: %w", err))
	}
	endpoint := fmt.Sprintf("%s/bot%s/%s", c.baseURL, req.Token, req.Method)

	for attempt := 0; ; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return fail(err)
			}
		}

		resp, err := c.roundTrip(ctx, endpoint, data)
		last := attempt >= c.retries
		if err != nil {
			if ctx.Err() != nil || last {
				return fail(err)
			}
			delay := c.backoff(attempt)
			c.log.Debug("sendMessage transport error; retrying",
				logx.Err(scrub(err, req.Token)),
				logx.Int("attempt", attempt+1),
				logx.Duration("delay", delay),
			)
			if err := sleep(ctx, delay); err != nil {
				return fail(err)
			}
			continue
		}

		if last || !retryable(resp.StatusCode) {
			return resp, nil
		}
		delay := c.backoff(attempt)
		if resp.StatusCode == http.StatusTooManyRequests && resp.RetryAfter > 0 {
			delay = time.Duration(resp.RetryAfter) * time.Second
		}
		c.log.Debug("sendMessage rejected; retrying",
			logx.Int("status", resp.StatusCode),
			logx.String("description", resp.Description),
			logx.Int("attempt", attempt+1),
			logx.Duration("delay", delay),
		)
		if err := sleep(ctx, delay); err != nil {
			return fail(err)
		}
	}
}

func (c *HTTPClient) roundTrip(ctx context.Context, endpoint string, data []byte) (transport.RawResponse, error) {
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return transport.RawResponse{}, err
	}
	hreq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(hreq)
	if err != nil {
		return transport.RawResponse{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return transport.RawResponse{}, fmt.Errorf("read response: %w", err)
	}
	return transport.DecodeResponse(resp.StatusCode, body), nil
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// backoff returns the delay before retry number attempt+1:
// retryDelay * 2^attempt with 0.7..1.3 jitter, capped.
func (c *HTTPClient) backoff(attempt int) time.Duration {
	d := c.retryDelay
	if d <= 0 {
		return 0
	}
	for i := 0; i < attempt && d < maxRetryDelay; i++ {
		d *= 2
	}
	j := 0.7 + rand.Float64()*0.6
	return min(time.Duration(float64(d)*j), maxRetryDelay)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
