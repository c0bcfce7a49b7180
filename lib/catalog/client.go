// Package catalog is a TMDB v3 client guarded by a rate limit and a circuit
// breaker.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/carlmjohnson/requests"
	"github.com/fiffu/trailerwatch/lib/metrics"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://api.themoviedb.org/3"
	breakerName    = "tmdb"
)

// ErrUnavailable means TMDB could not answer at all: the connection failed, it
// returned 5xx or 429, or the breaker is rejecting calls.
var ErrUnavailable = errors.New("catalog unavailable")

// StatusError is a non-2xx answer from TMDB.
type StatusError struct {
	Path   string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tmdb %s returned %d", e.Path, e.Status)
}

type Catalog interface {
	SearchMovies(ctx context.Context, query string) ([]Movie, error)
	MovieDetails(ctx context.Context, id int64) (*Movie, error)
	DiscoverMovies(ctx context.Context, releasedFrom time.Time) ([]Movie, error)
}

type Client struct {
	log       *zap.Logger
	apiKey    string
	baseURL   string
	language  string
	transport http.RoundTripper
	limiter   *rate.Limiter
	cb        *gobreaker.CircuitBreaker[any]
}

var _ Catalog = (*Client)(nil)

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

func WithLanguage(language string) Option {
	return func(c *Client) { c.language = strings.TrimSpace(language) }
}

// WithRateLimit caps outgoing requests per second. Zero or less disables it.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), int(perSecond)+1)
	}
}

func WithBreakerSettings(st gobreaker.Settings) Option {
	return func(c *Client) { c.cb = c.newBreaker(st) }
}

func New(log *zap.Logger, apiKey string, transport http.RoundTripper, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("tmdb api key required")
	}
	c := &Client{
		log:       log,
		apiKey:    apiKey,
		baseURL:   DefaultBaseURL,
		language:  "en-US",
		transport: transport,
		limiter:   rate.NewLimiter(4, 5),
	}
	c.cb = c.newBreaker(gobreaker.Settings{
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) newBreaker(st gobreaker.Settings) *gobreaker.CircuitBreaker[any] {
	st.Name = breakerName
	// 4xx answers are about the request, not the health of TMDB.
	st.IsSuccessful = func(err error) bool {
		if err == nil {
			return true
		}
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			return !outage(err)
		}
		return false
	}
	st.OnStateChange = func(name string, from, to gobreaker.State) {
		c.log.Sugar().Warnw("Circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
		metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
	}
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)
	return gobreaker.NewCircuitBreaker[any](st)
}

func (c *Client) SearchMovies(ctx context.Context, query string) ([]Movie, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("query must not be empty")
	}
	params := url.Values{}
	params.Set("query", query)
	params.Set("include_adult", "false")

	var resp page
	if err := c.get(ctx, "/search/movie", params, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

func (c *Client) MovieDetails(ctx context.Context, id int64) (*Movie, error) {
	params := url.Values{}
	params.Set("append_to_response", "videos")

	var movie Movie
	if err := c.get(ctx, "/movie/"+strconv.FormatInt(id, 10), params, &movie); err != nil {
		return nil, err
	}
	return &movie, nil
}

func (c *Client) DiscoverMovies(ctx context.Context, releasedFrom time.Time) ([]Movie, error) {
	params := url.Values{}
	params.Set("sort_by", "popularity.desc")
	params.Set("include_video", "true")
	params.Set("release_date.gte", releasedFrom.Format(time.DateOnly))

	var resp page
	if err := c.get(ctx, "/discover/movie", params, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	_, err := c.cb.Execute(func() (any, error) {
		rb := requests.URL(c.baseURL+path).
			Param("api_key", c.apiKey).
			Transport(c.transport).
			AddValidator(func(res *http.Response) error {
				if res.StatusCode < 200 || res.StatusCode > 299 {
					return &StatusError{path, res.StatusCode}
				}
				return nil
			}).
			ToJSON(out)
		if c.language != "" {
			rb = rb.Param("language", c.language)
		}
		for key, values := range params {
			rb = rb.Param(key, values...)
		}
		return nil, rb.Fetch(ctx)
	})

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CatalogRequests.WithLabelValues("rejected").Inc()
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	case err != nil:
		metrics.CatalogRequests.WithLabelValues("failure").Inc()
		if ctx.Err() == nil && outage(err) {
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return err
	}
	metrics.CatalogRequests.WithLabelValues("success").Inc()
	return nil
}

// outage reports whether err came from TMDB being unreachable or overloaded,
// as opposed to a bad request or an unreadable body.
func outage(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status >= 500 || statusErr.Status == http.StatusTooManyRequests
	}
	return errors.Is(err, requests.ErrTransport)
}
