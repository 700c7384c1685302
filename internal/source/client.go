// Package source provides a client for the remote sighting API (Biolovision / ornitho).
package source

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dghubble/oauth1"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/sightings-cli/internal/model"
	"github.com/sells-group/sightings-cli/internal/resilience"
)

// DateLayout is the dd.mm.yyyy format the API expects for date_from/date_to.
const DateLayout = "02.01.2006"

// Config holds the credentials and tunables of the remote API.
type Config struct {
	BaseURL        string
	UserEmail      string
	UserPassword   string
	ConsumerKey    string
	ConsumerSecret string
	TaxoGroup      int
	Timeout        time.Duration
	RatePerSec     float64
	UserAgent      string
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets the base HTTP client that signed requests are sent
// through (for testing).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.base = hc
	}
}

// WithLimiter overrides the request pacing limiter.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) {
		c.limiter = l
	}
}

// Client issues single-attempt, OAuth1-signed GET requests against the API.
// Retrying is left to the caller.
type Client struct {
	cfg     Config
	base    *http.Client
	http    *http.Client
	limiter *rate.Limiter
}

// New creates a Client.
func New(cfg Config, opts ...Option) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.TaxoGroup == 0 {
		cfg.TaxoGroup = 1
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "sightings-cli/1.0"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	c := &Client{
		cfg: cfg,
		base: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}

	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	c.limiter = rate.NewLimiter(limit, 1)

	for _, opt := range opts {
		opt(c)
	}

	// Two-legged OAuth1: consumer credentials only, no access token.
	oauthCfg := oauth1.NewConfig(cfg.ConsumerKey, cfg.ConsumerSecret)
	ctx := context.WithValue(context.Background(), oauth1.HTTPClient, c.base)
	c.http = oauthCfg.Client(ctx, oauth1.NewToken("", ""))
	c.http.Timeout = cfg.Timeout

	return c
}

// SpeciesByRarity lists the species of the configured taxonomic group in one
// rarity tier.
func (c *Client) SpeciesByRarity(ctx context.Context, rarity model.Rarity) ([]SpeciesRecord, error) {
	q := url.Values{}
	q.Set("id_taxo_group", strconv.Itoa(c.cfg.TaxoGroup))
	q.Set("rarity", string(rarity))
	return c.listSpecies(ctx, q)
}

// UsedSpecies lists the species that have at least one observation.
func (c *Client) UsedSpecies(ctx context.Context) ([]SpeciesRecord, error) {
	q := url.Values{}
	q.Set("id_taxo_group", strconv.Itoa(c.cfg.TaxoGroup))
	q.Set("is_used", "1")
	return c.listSpecies(ctx, q)
}

func (c *Client) listSpecies(ctx context.Context, q url.Values) ([]SpeciesRecord, error) {
	body, err := c.get(ctx, "species", q)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Data []SpeciesRecord `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrap(err, "source: decode species")
	}
	return resp.Data, nil
}

// Families lists the families of the configured taxonomic group.
func (c *Client) Families(ctx context.Context) ([]FamilyRecord, error) {
	q := url.Values{}
	q.Set("id_taxo_group", strconv.Itoa(c.cfg.TaxoGroup))

	body, err := c.get(ctx, "families", q)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Data []FamilyRecord `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrap(err, "source: decode families")
	}
	return resp.Data, nil
}

// FetchObservations returns the raw observation body for the inclusive day
// range [from, to]. Decoding is left to ParseSightings so that callers can
// retry transport failures without retrying malformed bodies.
func (c *Client) FetchObservations(ctx context.Context, from, to time.Time) ([]byte, error) {
	q := url.Values{}
	q.Set("date_from", from.Format(DateLayout))
	q.Set("date_to", to.Format(DateLayout))
	return c.get(ctx, "observations", q)
}

// get performs one paced, signed GET. Non-2xx responses return a
// *resilience.StatusError.
func (c *Client) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "source: rate limiter wait")
	}

	q.Set("user_email", c.cfg.UserEmail)
	q.Set("user_pw", c.cfg.UserPassword)
	reqURL := c.cfg.BaseURL + "/" + path + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "source: create request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "source: get %s", path)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrapf(err, "source: read %s body", path)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resilience.NewStatusError(resp.StatusCode, c.cfg.BaseURL+"/"+path)
	}

	return body, nil
}
