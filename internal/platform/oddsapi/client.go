// Package oddsapi is the REST client used to seed the odds board with the
// current snapshot before the stream connects.
package oddsapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/oddsync/internal/domain"
)

const (
	defaultMaxRetries = 3
	defaultRetryWait  = 500 * time.Millisecond
)

// Config configures a Client.
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	RatePerSec float64
	Burst      int
	MaxRetries int
	RetryWait  time.Duration
}

// Query selects which records FetchCurrent returns.
type Query struct {
	Sport   string
	Markets []string
	Books   []string
	Limit   int
}

// QueryFromFilters builds a Query for the active filter set.
func QueryFromFilters(f domain.FilterSet, limit int) Query {
	return Query{Sport: f.Sport, Markets: f.Markets, Books: f.Books, Limit: limit}
}

// Client fetches odds snapshots.
type Client struct {
	baseURL    string
	apiKey     string
	http       *http.Client
	limiter    *rate.Limiter
	maxRetries int
	retryWait  time.Duration
	logger     *slog.Logger
}

// New returns a Client.
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 2
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = defaultRetryWait
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		http:       &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
		maxRetries: cfg.MaxRetries,
		retryWait:  cfg.RetryWait,
		logger:     logger.With(slog.String("component", "oddsapi")),
	}
}

// FetchCurrent returns the current odds snapshot matching q.
func (c *Client) FetchCurrent(ctx context.Context, q Query) ([]domain.OutcomeRecord, error) {
	params := url.Values{}
	if q.Sport != "" {
		params.Set("sport", q.Sport)
	}
	if len(q.Markets) > 0 {
		params.Set("market", strings.Join(q.Markets, ","))
	}
	if len(q.Books) > 0 {
		params.Set("book", strings.Join(q.Books, ","))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}

	endpoint := c.baseURL + "/odds/current"
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var records []domain.OutcomeRecord
	if err := c.get(ctx, endpoint, &records); err != nil {
		return nil, fmt.Errorf("oddsapi: fetch current: %w", err)
	}
	return records, nil
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, attempt-1); err != nil {
				return err
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		retry, err := c.do(ctx, endpoint, out)
		if err == nil {
			return nil
		}
		if !retry {
			return err
		}
		lastErr = err
		c.logger.WarnContext(ctx, "request failed, retrying",
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()),
		)
	}
	return fmt.Errorf("exhausted %d retries: %w", c.maxRetries, lastErr)
}

// do performs one request. The bool reports whether the failure is worth
// retrying.
func (c *Client) do(ctx context.Context, endpoint string, out any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return false, err
		}
		return true, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return true, fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return errors.Is(err, domain.ErrRateLimited) || resp.StatusCode >= 500, err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return false, &domain.ParseError{Raw: body, Err: err}
	}
	return false, nil
}

func (c *Client) sleep(ctx context.Context, attempt int) error {
	wait := c.retryWait << attempt
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
