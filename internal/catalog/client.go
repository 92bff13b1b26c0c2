package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	logx "sage/pkg/logx"
)

const (
	DefaultBaseURL = "https://api.nytimes.com/svc/books/v3"
	defaultTimeout = 15 * time.Second

	namesEndpoint = "/lists/names.json"
	listsEndpoint = "/lists.json"
)

type Config struct {
	APIKey    string
	BaseURL   string        // default DefaultBaseURL
	Timeout   time.Duration // per request; default 15s
	UserAgent string
	// RatePerMin caps outgoing requests. 0 disables limiting.
	RatePerMin int
}

type Client struct {
	apiKey     string
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        logx.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the default http.Client (tests point it at httptest).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithLogger(log logx.Logger) Option {
	return func(c *Client) { c.log = log }
}

// New builds a client. The credential is captured here once; a missing key
// is an initialization error, never a per-call one.
func New(cfg Config, opts ...Option) (*Client, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, ErrMissingCredential
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("catalog: invalid base url %q: %w", base, err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		apiKey:     key,
		baseURL:    base,
		userAgent:  cfg.UserAgent,
		httpClient: &http.Client{Timeout: timeout},
	}
	if cfg.RatePerMin > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RatePerMin)), 1)
	}
	for _, o := range opts {
		o(c)
	}
	if c.log.IsZero() {
		c.log = logx.Nop()
	}
	return c, nil
}

// ListCategories returns every list_name offered upstream, in response order.
func (c *Client) ListCategories(ctx context.Context) (CategoryListing, error) {
	var res namesResponse
	if err := c.get(ctx, namesEndpoint, url.Values{}, &res); err != nil {
		return nil, err
	}
	names := res.listNames()
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: no list names found", ErrEmptyResult)
	}
	c.log.Debug("categories listed", logx.Int("count", len(names)))
	return names, nil
}

// FetchTopItems returns the book summaries of one category, flattened in
// source order (results first, then book_details within each result).
func (c *Client) FetchTopItems(ctx context.Context, category Category) ([]BookSummary, error) {
	if strings.TrimSpace(string(category)) == "" {
		return nil, ErrInvalidCategory
	}
	var res listingsResponse
	if err := c.get(ctx, listsEndpoint, url.Values{"list": {string(category)}}, &res); err != nil {
		return nil, err
	}
	items, err := res.summaries(category)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no books found in %q", ErrEmptyResult, string(category))
	}
	c.log.Debug("category fetched", logx.String("category", string(category)), logx.Int("items", len(items)))
	return items, nil
}

func (c *Client) get(ctx context.Context, endpoint string, q url.Values, target any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrTransport, endpoint, err)
		}
	}

	q.Set("api-key", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint+"?"+q.Encode(), http.NoBody)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrTransport, endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrTransport, endpoint, redact(err))
	}
	defer resp.Body.Close()

	c.log.Trace("catalog request done", logx.String("endpoint", endpoint), logx.Int("status", resp.StatusCode), logx.Duration("took", time.Since(start)))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %w", ErrTransport, &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode})
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("%w: %s: decode: %w", ErrTransport, endpoint, err)
	}
	return nil
}

// redact strips the query string (which carries the api key) from url errors.
func redact(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		if u, perr := url.Parse(ue.URL); perr == nil {
			u.RawQuery = ""
			ue.URL = u.String()
		}
	}
	return err
}
