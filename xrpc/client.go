// Package xrpc reads records, profiles and collections from a repository
// endpoint resolved by package identity.
//
// Calls are plain HTTP GETs against <endpoint>/xrpc/<method>. They are not
// cached unless the client is built with a response cache, in which case
// identical requests (same URL) are coalesced and kept for a short TTL.
package xrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/IvanBrykalov/atresolve/cache"
)

const (
	MethodGetRecord    = "com.atproto.repo.getRecord"
	MethodListRecords  = "com.atproto.repo.listRecords"
	MethodDescribeRepo = "com.atproto.repo.describeRepo"
	MethodGetProfile   = "app.bsky.actor.getProfile"

	// MaxPageLimit is the largest page listRecords accepts.
	MaxPageLimit = 100

	maxResponseBytes = 8 << 20
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithUserAgent sets the User-Agent header of every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithResponseCache coalesces and caches response bodies keyed by request
// URL. Error responses are cached only when p.FailureTTL > 0.
func WithResponseCache(rc cache.Cache[string, []byte], p cache.LoadPolicy[[]byte]) Option {
	return func(c *Client) {
		c.responses = rc
		c.policy = p
	}
}

// Client issues XRPC queries. It is safe for concurrent use.
type Client struct {
	http      *http.Client
	userAgent string
	log       *slog.Logger

	responses cache.Cache[string, []byte]
	policy    cache.LoadPolicy[[]byte]
}

// New returns a Client with a 30s request timeout unless overridden.
func New(opts ...Option) *Client {
	c := &Client{
		http: &http.Client{Timeout: 30 * time.Second},
		log:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetRecord fetches one record by collection and record key.
func (c *Client) GetRecord(ctx context.Context, endpoint, repo, collection, rkey string) (*Record, error) {
	var rec Record
	err := c.Query(ctx, endpoint, MethodGetRecord, url.Values{
		"repo":       {repo},
		"collection": {collection},
		"rkey":       {rkey},
	}, &rec)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetProfile fetches the profile view of actor (a DID or handle).
func (c *Client) GetProfile(ctx context.Context, endpoint, actor string) (*Profile, error) {
	var p Profile
	if err := c.Query(ctx, endpoint, MethodGetProfile, url.Values{"actor": {actor}}, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListRecords fetches one page of a collection. An empty cursor starts at
// the beginning; limit is clamped to [1, MaxPageLimit] and 0 leaves the
// server default.
func (c *Client) ListRecords(ctx context.Context, endpoint, repo, collection, cursor string, limit int) (*RecordPage, error) {
	q := url.Values{
		"repo":       {repo},
		"collection": {collection},
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if limit != 0 {
		q.Set("limit", strconv.Itoa(min(max(limit, 1), MaxPageLimit)))
	}
	var page RecordPage
	if err := c.Query(ctx, endpoint, MethodListRecords, q, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// DescribeRepo fetches repository metadata, including its collections.
func (c *Client) DescribeRepo(ctx context.Context, endpoint, repo string) (*RepoDescription, error) {
	var d RepoDescription
	if err := c.Query(ctx, endpoint, MethodDescribeRepo, url.Values{"repo": {repo}}, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// Query performs GET <endpoint>/xrpc/<method>?<params> and decodes the JSON
// body into out.
func (c *Client) Query(ctx context.Context, endpoint, method string, params url.Values, out any) error {
	u, err := queryURL(endpoint, method, params)
	if err != nil {
		return err
	}

	var body []byte
	if c.responses != nil {
		body, err = c.responses.GetOrCreate(ctx, u, func(ctx context.Context) ([]byte, error) {
			return c.fetch(ctx, u)
		}, c.policy)
	} else {
		body, err = c.fetch(ctx, u)
	}
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("xrpc: decode %s: %w", method, err)
	}
	return nil
}

func queryURL(endpoint, method string, params url.Values) (string, error) {
	base, err := url.Parse(strings.TrimRight(endpoint, "/"))
	if err != nil || base.Host == "" {
		return "", fmt.Errorf("xrpc: invalid endpoint %q", endpoint)
	}
	base.Path += "/xrpc/" + method
	base.RawQuery = params.Encode()
	return base.String(), nil
}

func (c *Client) fetch(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("xrpc: GET %s: %w", u, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("xrpc: read %s: %w", u, err)
	}
	c.log.DebugContext(ctx, "xrpc request",
		slog.String("url", u),
		slog.Int("status", resp.StatusCode),
		slog.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newError(u, resp.StatusCode, body)
	}
	return body, nil
}
