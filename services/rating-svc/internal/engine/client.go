// Package engine talks to the external calculation engine and runs the
// descending force search on top of it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"busbar/pkg/config"
	"busbar/pkg/logger"
	"busbar/pkg/metrics"
	"busbar/pkg/ratelimit"
	"busbar/pkg/telemetry"
	"busbar/services/rating-svc/internal/domain"
)

// OutcomeKind classifies one engine call.
type OutcomeKind int

const (
	// OutcomeSuccess is a 200 with a rating body.
	OutcomeSuccess OutcomeKind = iota
	// OutcomeOverloaded is a 500: the engine failed for this force.
	OutcomeOverloaded
	// OutcomeRejected is any other status.
	OutcomeRejected
	// OutcomeUnreachable is a transport failure or timeout.
	OutcomeUnreachable
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeOverloaded:
		return "overloaded"
	case OutcomeRejected:
		return "rejected"
	case OutcomeUnreachable:
		return "unreachable"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// Outcome is the result of one engine call.
type Outcome struct {
	Kind       OutcomeKind
	Rating     string
	StatusCode int
	Err        error
}

// RatingWriter persists successful ratings.
type RatingWriter interface {
	InsertIfAbsent(ctx context.Context, cfg domain.Configuration, rating string) (bool, error)
}

// Caller performs one engine call.
type Caller interface {
	Call(ctx context.Context, cfg domain.Configuration) (Outcome, error)
}

// Client is the HTTP client of the calculation engine. It never retries.
type Client struct {
	httpClient *http.Client
	endpoint   *url.URL
	userAgent  string
	timeout    time.Duration
	maxBody    int64
	store      RatingWriter
	limiter    ratelimit.Limiter
	metrics    *metrics.Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLimiter throttles outbound calls through l.
func WithLimiter(l ratelimit.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithMetrics records call outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates an engine client that writes every success to store.
func NewClient(cfg *config.EngineConfig, store RatingWriter, opts ...Option) (*Client, error) {
	endpoint, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid engine url: %w", err)
	}

	c := &Client{
		httpClient: &http.Client{},
		endpoint:   endpoint,
		userAgent:  cfg.UserAgent,
		timeout:    cfg.Timeout,
		maxBody:    cfg.MaxBodyBytes,
		store:      store,
	}
	if c.timeout <= 0 {
		c.timeout = 10 * time.Second
	}
	if c.maxBody <= 0 {
		c.maxBody = 1 << 20
	}

	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

const limiterKey = "engine"

// Call sends cfg to the engine. The returned error is non-nil only when a
// successful rating could not be persisted; engine failures are reported
// through the Outcome.
func (c *Client) Call(ctx context.Context, cfg domain.Configuration) (Outcome, error) {
	cfg = cfg.Normalize()

	ctx, span := telemetry.StartSpan(ctx, "EngineClient.Call")
	defer span.End()

	timer := metrics.NewTimer()
	outcome := c.do(ctx, cfg)
	c.metrics.RecordEngineCall(outcome.Kind.String(), timer.Elapsed())
	telemetry.SetAttributes(ctx, telemetry.EngineAttributes(outcome.Kind.String(), outcome.StatusCode, cfg.Force)...)

	switch outcome.Kind {
	case OutcomeSuccess:
		if _, err := c.store.InsertIfAbsent(ctx, cfg, outcome.Rating); err != nil {
			telemetry.SetError(ctx, err)
			return outcome, err
		}
	case OutcomeUnreachable:
		logger.Log.Warn("engine unreachable", "key", cfg.Key(), "error", outcome.Err)
	default:
		logger.Log.Info("engine call failed",
			"key", cfg.Key(), "outcome", outcome.Kind.String(), "status", outcome.StatusCode)
	}

	return outcome, nil
}

// do bounds the throttle wait and the HTTP exchange by one engine timeout.
func (c *Client) do(ctx context.Context, cfg domain.Configuration) Outcome {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, limiterKey); err != nil {
			c.logThrottle(ctx, err)
			return Outcome{Kind: OutcomeUnreachable, Err: fmt.Errorf("engine throttle: %w", err)}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.requestURL(cfg), http.NoBody)
	if err != nil {
		return Outcome{Kind: OutcomeUnreachable, Err: err}
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Outcome{Kind: OutcomeUnreachable, Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
		if err != nil {
			return Outcome{Kind: OutcomeUnreachable, StatusCode: resp.StatusCode, Err: err}
		}
		if int64(len(body)) > c.maxBody {
			return Outcome{
				Kind:       OutcomeRejected,
				StatusCode: resp.StatusCode,
				Err:        errors.New("engine response exceeds size limit"),
			}
		}
		return Outcome{Kind: OutcomeSuccess, Rating: string(body), StatusCode: resp.StatusCode}

	case http.StatusInternalServerError:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, c.maxBody))
		return Outcome{Kind: OutcomeOverloaded, StatusCode: resp.StatusCode}

	default:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, c.maxBody))
		return Outcome{Kind: OutcomeRejected, StatusCode: resp.StatusCode}
	}
}

func (c *Client) logThrottle(ctx context.Context, waitErr error) {
	info, err := c.limiter.GetInfo(context.WithoutCancel(ctx), limiterKey)
	if err != nil {
		logger.Log.Warn("engine throttle wait failed", "error", waitErr)
		return
	}
	logger.Log.Warn("engine throttle wait failed",
		"error", waitErr,
		"limit", info.Limit,
		"remaining", info.Remaining,
		"reset_at", info.ResetAt,
	)
}

func (c *Client) requestURL(cfg domain.Configuration) string {
	u := *c.endpoint
	q := u.Query()
	for _, kv := range cfg.QueryValues() {
		q.Set(kv[0], kv[1])
	}
	u.RawQuery = q.Encode()
	return u.String()
}
