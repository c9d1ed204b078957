// Package postcodes provides reverse geocoding against the postcodes.io API:
// given a latitude/longitude pair it returns the nearest known postcode.
package postcodes

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the public postcodes.io endpoint.
const DefaultBaseURL = "https://api.postcodes.io"

// Client looks up the nearest postcode for a coordinate.
type Client interface {
	// NearestPostcode performs a single reverse lookup. A coordinate with
	// no postcode coverage returns Found=false and a nil error; transport
	// failures, non-200 responses, and undecodable bodies return an error.
	NearestPostcode(ctx context.Context, lat, lon float64) (*Result, error)
}

// Result holds the reverse lookup output for a coordinate.
type Result struct {
	Postcode string  // nearest postcode, empty when not found
	Distance float64 // metres from the query point
	Found    bool
}

// Option configures the client.
type Option func(*client)

// WithBaseURL overrides the API endpoint, e.g. for a self-hosted instance.
func WithBaseURL(base string) Option {
	return func(c *client) {
		c.baseURL = base
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *client) {
		c.timeout = d
	}
}

// WithRateLimit sets a client-side requests-per-second cap. Zero leaves
// requests unthrottled, which the public API tolerates for batch sizes
// this tool deals in.
func WithRateLimit(rps float64) Option {
	return func(c *client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), int(rps))
		}
	}
}

type client struct {
	httpClient *http.Client
	baseURL    string
	timeout    time.Duration
	limiter    *rate.Limiter
}

// New creates a postcodes.io Client with the given options.
func New(opts ...Option) Client {
	c := &client{
		baseURL: DefaultBaseURL,
		timeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}
	return c
}

// reverseResponse is the JSON envelope returned by GET /postcodes?lon=&lat=.
type reverseResponse struct {
	Status int    `json:"status"`
	Error  string `json:"error"`
	Result []struct {
		Postcode string  `json:"postcode"`
		Distance float64 `json:"distance"`
	} `json:"result"`
}

func (c *client) NearestPostcode(ctx context.Context, lat, lon float64) (*Result, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "postcodes: rate limit")
		}
	}

	params := url.Values{
		"lat": {strconv.FormatFloat(lat, 'f', -1, 64)},
		"lon": {strconv.FormatFloat(lon, 'f', -1, 64)},
	}
	reqURL := c.baseURL + "/postcodes?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "postcodes: build request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "postcodes: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("postcodes: api returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "postcodes: read body")
	}

	var rev reverseResponse
	if err := json.Unmarshal(body, &rev); err != nil {
		return nil, eris.Wrap(err, "postcodes: parse response")
	}

	if rev.Status != http.StatusOK {
		return nil, eris.Errorf("postcodes: api status %d: %s", rev.Status, rev.Error)
	}

	// A null or empty result array is a clean miss: the point has no
	// postcode coverage.
	if len(rev.Result) == 0 {
		return &Result{Found: false}, nil
	}

	nearest := rev.Result[0]
	return &Result{
		Postcode: nearest.Postcode,
		Distance: nearest.Distance,
		Found:    true,
	}, nil
}
