// Package identity resolves protocol identifiers (DIDs and handles) to the
// base URL of the server hosting their repository.
//
// Resolution results are kept in a cache.Cache: concurrent lookups of the
// same identifier share one network call, successes live for SuccessTTL and
// failures (including "no such service entry") for FailureTTL.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/IvanBrykalov/atresolve/cache"
)

// Defaults applied by New.
const (
	DefaultDirectoryURL = "https://plc.directory"
	DefaultSuccessTTL   = 5 * time.Minute
	DefaultFailureTTL   = 30 * time.Second
	DefaultTimeout      = 10 * time.Second
	DefaultCapacity     = 10_000

	maxDocumentBytes = 1 << 20
	maxHandleBytes   = 2 << 10
	handleKeyPrefix  = "handle:"
)

// SharedStore is an optional second tier for resolved endpoints shared
// between processes (see package redisstore).
type SharedStore interface {
	GetEndpoint(ctx context.Context, did string) (string, bool, error)
	SetEndpoint(ctx context.Context, did, endpoint string, ttl time.Duration) error
}

// Options configures a Resolver. Zero values get the defaults above.
type Options struct {
	DirectoryURL string
	HTTPClient   *http.Client // nil => &http.Client{Timeout: Timeout}
	Timeout      time.Duration
	UserAgent    string

	SuccessTTL time.Duration
	FailureTTL time.Duration // negative disables failure caching

	// Cache substrate; nil builds one with Capacity, Metrics and Clock.
	Cache    cache.Cache[string, string]
	Capacity int
	Metrics  cache.Metrics
	Clock    cache.Clock

	// Limiter, when set, paces every outbound request.
	Limiter *rate.Limiter
	Shared  SharedStore
	Logger  *slog.Logger
}

// Resolver turns identifiers into endpoints. It is safe for concurrent use
// and meant to be constructed once and shared.
type Resolver struct {
	directory string
	client    *http.Client
	userAgent string
	limiter   *rate.Limiter
	shared    SharedStore
	log       *slog.Logger

	cache  cache.Cache[string, string]
	policy cache.LoadPolicy[string]
}

// New builds a Resolver from opt.
func New(opt Options) *Resolver {
	if opt.DirectoryURL == "" {
		opt.DirectoryURL = DefaultDirectoryURL
	}
	if opt.Timeout <= 0 {
		opt.Timeout = DefaultTimeout
	}
	if opt.HTTPClient == nil {
		opt.HTTPClient = &http.Client{Timeout: opt.Timeout}
	}
	if opt.SuccessTTL <= 0 {
		opt.SuccessTTL = DefaultSuccessTTL
	}
	if opt.FailureTTL == 0 {
		opt.FailureTTL = DefaultFailureTTL
	}
	if opt.Capacity <= 0 {
		opt.Capacity = DefaultCapacity
	}
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	if opt.Cache == nil {
		opt.Cache = cache.New[string, string](cache.Options[string, string]{
			Capacity: opt.Capacity,
			Metrics:  opt.Metrics,
			Clock:    opt.Clock,
		})
	}

	return &Resolver{
		directory: strings.TrimRight(opt.DirectoryURL, "/"),
		client:    opt.HTTPClient,
		userAgent: opt.UserAgent,
		limiter:   opt.Limiter,
		shared:    opt.Shared,
		log:       opt.Logger,
		cache:     opt.Cache,
		policy: cache.LoadPolicy[string]{
			SuccessTTL: opt.SuccessTTL,
			FailureTTL: opt.FailureTTL,
			Negative:   func(v string) bool { return v == "" },
		},
	}
}

// Cached returns the endpoint for id if a live positive entry exists,
// without touching the network.
func (r *Resolver) Cached(id string) (string, bool) {
	ep, ok := r.cache.Get(id)
	return ep, ok && ep != ""
}

// Invalidate drops cached results for id (a DID or a handle).
func (r *Resolver) Invalidate(id string) {
	r.cache.Remove(id)
	r.cache.Remove(handleKeyPrefix + normalizeHandle(id))
}

// ResolveEndpoint returns the repository endpoint of id. ok is false when
// the identifier's document has no usable PDS entry; err reports transport
// failures, which are replayed from cache for FailureTTL.
func (r *Resolver) ResolveEndpoint(ctx context.Context, id string) (endpoint string, ok bool, err error) {
	ep, err := r.cache.GetOrCreate(ctx, id, func(ctx context.Context) (string, error) {
		return r.lookupEndpoint(ctx, id)
	}, r.policy)
	if err != nil {
		return "", false, err
	}
	return ep, ep != "", nil
}

func (r *Resolver) lookupEndpoint(ctx context.Context, id string) (string, error) {
	if r.shared != nil {
		ep, ok, err := r.shared.GetEndpoint(ctx, id)
		switch {
		case err != nil:
			r.log.WarnContext(ctx, "shared endpoint lookup failed", slog.String("did", id), slog.String("error", err.Error()))
		case ok:
			r.log.DebugContext(ctx, "endpoint from shared store", slog.String("did", id), slog.String("endpoint", ep))
			return ep, nil
		}
	}

	doc, err := r.ResolveDocument(ctx, id)
	if err != nil {
		r.log.WarnContext(ctx, "identity resolution failed", slog.String("did", id), slog.String("error", err.Error()))
		return "", err
	}
	ep, ok := doc.PDSEndpoint()
	if !ok {
		r.log.DebugContext(ctx, "no PDS service entry", slog.String("did", id))
		return "", nil
	}
	r.log.DebugContext(ctx, "resolved endpoint", slog.String("did", id), slog.String("endpoint", ep))

	if r.shared != nil {
		if err := r.shared.SetEndpoint(ctx, id, ep, r.policy.SuccessTTL); err != nil {
			r.log.WarnContext(ctx, "shared endpoint store failed", slog.String("did", id), slog.String("error", err.Error()))
		}
	}
	return ep, nil
}

// ResolveDocument fetches the DID document of id using the strategy chosen
// by Classify. It is not cached.
func (r *Resolver) ResolveDocument(ctx context.Context, id string) (*Document, error) {
	u, err := r.documentURL(id)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := r.getJSON(ctx, u, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *Resolver) documentURL(id string) (string, error) {
	switch Classify(id) {
	case StrategyWellKnown:
		host, ok := webDomain(id)
		if !ok {
			return "", fmt.Errorf("%w: %q", ErrInvalidIdentifier, id)
		}
		return "https://" + host + "/.well-known/did.json", nil
	default:
		if id == "" {
			return "", fmt.Errorf("%w: empty", ErrInvalidIdentifier)
		}
		return r.directory + "/" + url.PathEscape(id), nil
	}
}

// ResolveHandle returns the DID a handle claims via
// https://<handle>/.well-known/atproto-did. ok is false when the answer is
// not a DID.
func (r *Resolver) ResolveHandle(ctx context.Context, handle string) (did string, ok bool, err error) {
	h := normalizeHandle(handle)
	if h == "" || strings.ContainsAny(h, "/?#@:") {
		return "", false, fmt.Errorf("%w: handle %q", ErrInvalidIdentifier, handle)
	}
	did, err = r.cache.GetOrCreate(ctx, handleKeyPrefix+h, func(ctx context.Context) (string, error) {
		body, err := r.get(ctx, "https://"+h+"/.well-known/atproto-did", "text/plain", maxHandleBytes)
		if err != nil {
			return "", err
		}
		did := strings.TrimSpace(string(body))
		if !strings.HasPrefix(did, didPrefix) || strings.ContainsAny(did, " \n\t") {
			return "", nil
		}
		return did, nil
	}, r.policy)
	if err != nil {
		return "", false, err
	}
	return did, did != "", nil
}

// Actor is a fully resolved identity.
type Actor struct {
	DID      string `json:"did"`
	Handle   string `json:"handle,omitempty"` // empty when resolved from a DID
	Endpoint string `json:"endpoint,omitempty"`
}

// ResolveActor accepts a DID or a handle and returns the DID and endpoint.
// ok is false when the handle does not resolve or no endpoint exists.
func (r *Resolver) ResolveActor(ctx context.Context, handleOrDID string) (Actor, bool, error) {
	var a Actor
	s := strings.TrimPrefix(strings.TrimSpace(handleOrDID), "@")
	if strings.HasPrefix(s, didPrefix) {
		a.DID = s
	} else {
		did, ok, err := r.ResolveHandle(ctx, s)
		if err != nil || !ok {
			return a, false, err
		}
		a.DID, a.Handle = did, normalizeHandle(s)
	}

	ep, ok, err := r.ResolveEndpoint(ctx, a.DID)
	if err != nil || !ok {
		return a, false, err
	}
	a.Endpoint = ep
	return a, true, nil
}

// ---- transport ----

func (r *Resolver) getJSON(ctx context.Context, u string, out any) error {
	body, err := r.get(ctx, u, "application/json", maxDocumentBytes)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &TransportError{URL: u, Err: fmt.Errorf("decode document: %w", err)}
	}
	return nil
}

func (r *Resolver) get(ctx context.Context, u, accept string, limit int64) ([]byte, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &TransportError{URL: u, Err: err}
	}
	req.Header.Set("Accept", accept)
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, &TransportError{URL: u, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, limit))
		return nil, &TransportError{URL: u, Status: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, &TransportError{URL: u, Err: err}
	}
	return body, nil
}

func normalizeHandle(h string) string {
	return strings.ToLower(strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(h), "@"), "."))
}
