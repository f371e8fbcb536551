// Package chzzk talks to the CHZZK management API (follower list) and the
// NAVER game API (profile of the logged-in account).
package chzzk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/pscheid92/fazzk/internal/adapter/metrics"
	"github.com/pscheid92/fazzk/internal/domain"
)

const (
	// Both APIs reject requests without a browser user agent.
	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	followerPageSize   = 10
	requestTimeout     = 10 * time.Second
	maxErrorBodyBytes  = 512
	endpointFollowers  = "followers"
	endpointProfile    = "profile"
	breakerName        = "chzzk"
	breakerOpenTimeout = 30 * time.Second
	breakerMinRequests = 5
	breakerFailureRate = 0.6
)

type Config struct {
	APIURL     string
	GameAPIURL string
	RPS        float64
	Burst      int
}

// Client implements domain.FollowerSource and domain.ProfileResolver.
type Client struct {
	http    *http.Client
	apiURL  string
	gameURL string
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	metrics *metrics.UpstreamMetrics
}

var (
	_ domain.FollowerSource  = (*Client)(nil)
	_ domain.ProfileResolver = (*Client)(nil)
)

// NewClient creates a client. m may be nil.
func NewClient(cfg Config, m *metrics.UpstreamMetrics) *Client {
	c := &Client{
		http:    &http.Client{Timeout: requestTimeout},
		apiURL:  strings.TrimRight(cfg.APIURL, "/"),
		gameURL: strings.TrimRight(cfg.GameAPIURL, "/"),
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		metrics: m,
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    breakerName,
		Timeout: breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= breakerMinRequests &&
				float64(counts.TotalFailures)/float64(counts.Requests) >= breakerFailureRate
		},
		// Rejected credentials are the caller's problem, not an outage.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domain.ErrInvalidCredentials)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed", "component", name, "from", from.String(), "to", to.String())
			if m != nil {
				m.BreakerState.Set(float64(to))
			}
		},
	})

	return c
}

type followersResponse struct {
	Code    int     `json:"code"`
	Message *string `json:"message"`
	Content *struct {
		Data []domain.Follower `json:"data"`
	} `json:"content"`
}

type userStatusResponse struct {
	Code    int     `json:"code"`
	Message *string `json:"message"`
	Content *struct {
		UserIDHash *string `json:"userIdHash"`
		Nickname   string  `json:"nickname"`
	} `json:"content"`
}

// FetchFollowers returns the first page of the channel's followers, newest
// first.
func (c *Client) FetchFollowers(ctx context.Context, creds domain.Credentials, channelHash string) ([]domain.Follower, error) {
	if creds.Empty() || channelHash == "" {
		return nil, domain.ErrNotAuthenticated
	}

	q := url.Values{}
	q.Set("page", "0")
	q.Set("size", fmt.Sprint(followerPageSize))
	q.Set("userNickname", "")
	endpoint := fmt.Sprintf("%s/manage/v1/channels/%s/followers?%s", c.apiURL, url.PathEscape(channelHash), q.Encode())

	var body followersResponse
	if err := c.getJSON(ctx, endpointFollowers, endpoint, creds, &body); err != nil {
		return nil, err
	}
	if body.Code != http.StatusOK {
		return nil, &APIError{Endpoint: endpointFollowers, StatusCode: http.StatusOK, Code: body.Code, Message: deref(body.Message)}
	}
	if body.Content == nil {
		return nil, nil
	}
	return body.Content.Data, nil
}

// ResolveProfile verifies creds and returns the account they belong to.
func (c *Client) ResolveProfile(ctx context.Context, creds domain.Credentials) (domain.Profile, error) {
	if creds.Empty() {
		return domain.Profile{}, fmt.Errorf("missing cookie: %w", domain.ErrInvalidCredentials)
	}

	var body userStatusResponse
	if err := c.getJSON(ctx, endpointProfile, c.gameURL+"/nng_main/v1/user/getUserStatus", creds, &body); err != nil {
		return domain.Profile{}, err
	}
	if body.Code != http.StatusOK || body.Content == nil || body.Content.UserIDHash == nil || *body.Content.UserIDHash == "" {
		return domain.Profile{}, &APIError{
			Endpoint:   endpointProfile,
			StatusCode: http.StatusOK,
			Code:       body.Code,
			Message:    deref(body.Message),
			auth:       true,
		}
	}

	return domain.Profile{UserIDHash: *body.Content.UserIDHash, Nickname: body.Content.Nickname}, nil
}

func (c *Client) getJSON(ctx context.Context, endpointName, endpoint string, creds domain.Credentials, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	start := time.Now()
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.do(ctx, endpointName, endpoint, creds, out)
	})
	if c.metrics != nil {
		c.metrics.RequestDuration.WithLabelValues(endpointName).Observe(time.Since(start).Seconds())
		if err != nil {
			c.metrics.Errors.WithLabelValues(endpointName, errorKind(err)).Inc()
		}
	}
	return err
}

func (c *Client) do(ctx context.Context, endpointName, endpoint string, creds domain.Credentials, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Cookie", fmt.Sprintf("NID_AUT=%s; NID_SES=%s", creds.NidAut, creds.NidSes))
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", endpointName, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return &APIError{Endpoint: endpointName, StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(snippet))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", endpointName, err)
	}
	return nil
}

func errorKind(err error) string {
	var apiErr *APIError
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "circuit_open"
	case errors.Is(err, domain.ErrInvalidCredentials):
		return "auth"
	case errors.As(err, &apiErr):
		return "api"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	default:
		return "transport"
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
