package xrpc

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/atresolve/cache"
	"github.com/IvanBrykalov/atresolve/tid"
)

type pds struct {
	mu    sync.Mutex
	calls map[string]int
	last  *http.Request
	hits  atomic.Int64
}

func newPDS(t *testing.T) (*pds, *httptest.Server) {
	t.Helper()
	p := &pds{calls: map[string]int{}}
	srv := httptest.NewServer(p)
	t.Cleanup(srv.Close)
	return p, srv
}

func (p *pds) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.hits.Add(1)
	p.mu.Lock()
	p.calls[r.URL.Path]++
	p.last = r
	p.mu.Unlock()

	q := r.URL.Query()
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/xrpc/" + MethodGetRecord:
		if q.Get("rkey") != "3jzfcijpj2z2a" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":"RecordNotFound","message":"Could not locate record"}`)
			return
		}
		_, _ = io.WriteString(w, `{"uri":"at://`+q.Get("repo")+`/`+q.Get("collection")+`/3jzfcijpj2z2a","cid":"bafyrei","value":{"text":"hello"}}`)
	case "/xrpc/" + MethodGetProfile:
		_, _ = io.WriteString(w, `{"did":"did:plc:alice","handle":"alice.test","displayName":"Alice","followersCount":7}`)
	case "/xrpc/" + MethodListRecords:
		if q.Get("cursor") == "" {
			_, _ = io.WriteString(w, `{"records":[{"uri":"at://did:plc:alice/app.bsky.feed.post/a","value":{}}],"cursor":"next"}`)
			return
		}
		_, _ = io.WriteString(w, `{"records":[{"uri":"at://did:plc:alice/app.bsky.feed.post/b","value":{}}]}`)
	case "/xrpc/" + MethodDescribeRepo:
		_, _ = io.WriteString(w, `{"handle":"alice.test","did":"did:plc:alice","collections":["app.bsky.actor.profile","app.bsky.feed.post"],"handleIsCorrect":true}`)
	default:
		w.WriteHeader(http.StatusNotImplemented)
		_, _ = io.WriteString(w, `{"error":"MethodNotImplemented"}`)
	}
}

func (p *pds) lastQuery() map[string][]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last.URL.Query()
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestGetRecord(t *testing.T) {
	p, srv := newPDS(t)
	c := New(WithLogger(quietLogger()), WithUserAgent("atresolve-test"))

	rec, err := c.GetRecord(context.Background(), srv.URL+"/", "did:plc:alice", "app.bsky.feed.post", "3jzfcijpj2z2a")
	require.NoError(t, err)
	assert.Equal(t, "at://did:plc:alice/app.bsky.feed.post/3jzfcijpj2z2a", rec.URI)
	assert.Equal(t, "bafyrei", rec.CID)
	assert.JSONEq(t, `{"text":"hello"}`, string(rec.Value))
	assert.Equal(t, "3jzfcijpj2z2a", rec.RKey())

	p.mu.Lock()
	assert.Equal(t, "atresolve-test", p.last.Header.Get("User-Agent"))
	assert.Equal(t, "application/json", p.last.Header.Get("Accept"))
	p.mu.Unlock()
}

func TestGetRecord_NotFound(t *testing.T) {
	_, srv := newPDS(t)
	c := New(WithLogger(quietLogger()))

	_, err := c.GetRecord(context.Background(), srv.URL, "did:plc:alice", "app.bsky.feed.post", "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	var xe *Error
	require.ErrorAs(t, err, &xe)
	assert.Equal(t, http.StatusBadRequest, xe.Status)
	assert.Equal(t, "RecordNotFound", xe.Code)
	assert.Equal(t, "Could not locate record", xe.Message)
	assert.Contains(t, err.Error(), "RecordNotFound")
}

func TestQuery_UnknownMethod(t *testing.T) {
	_, srv := newPDS(t)
	c := New(WithLogger(quietLogger()))

	err := c.Query(context.Background(), srv.URL, "com.example.nope", nil, &struct{}{})
	var xe *Error
	require.ErrorAs(t, err, &xe)
	assert.Equal(t, http.StatusNotImplemented, xe.Status)
	assert.False(t, IsNotFound(err))
}

func TestQuery_InvalidEndpoint(t *testing.T) {
	c := New(WithLogger(quietLogger()))
	err := c.Query(context.Background(), "not a url", MethodGetProfile, nil, &struct{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid endpoint")
}

func TestGetProfile(t *testing.T) {
	p, srv := newPDS(t)
	c := New(WithLogger(quietLogger()))

	prof, err := c.GetProfile(context.Background(), srv.URL, "alice.test")
	require.NoError(t, err)
	assert.Equal(t, "did:plc:alice", prof.DID)
	assert.Equal(t, "Alice", prof.DisplayName)
	assert.EqualValues(t, 7, prof.FollowersCount)
	assert.Equal(t, []string{"alice.test"}, p.lastQuery()["actor"])
}

func TestListRecords_Pagination(t *testing.T) {
	p, srv := newPDS(t)
	c := New(WithLogger(quietLogger()))
	ctx := context.Background()

	var uris []string
	cursor := ""
	for {
		page, err := c.ListRecords(ctx, srv.URL, "did:plc:alice", "app.bsky.feed.post", cursor, 500)
		require.NoError(t, err)
		assert.Equal(t, []string{"100"}, p.lastQuery()["limit"])
		for _, r := range page.Records {
			uris = append(uris, r.URI)
		}
		if page.Cursor == "" {
			break
		}
		cursor = page.Cursor
	}
	assert.Equal(t, []string{
		"at://did:plc:alice/app.bsky.feed.post/a",
		"at://did:plc:alice/app.bsky.feed.post/b",
	}, uris)
}

func TestListRecords_LimitClamp(t *testing.T) {
	p, srv := newPDS(t)
	c := New(WithLogger(quietLogger()))
	ctx := context.Background()

	_, err := c.ListRecords(ctx, srv.URL, "did:plc:alice", "app.bsky.feed.post", "", 0)
	require.NoError(t, err)
	assert.NotContains(t, p.lastQuery(), "limit")

	_, err = c.ListRecords(ctx, srv.URL, "did:plc:alice", "app.bsky.feed.post", "", -3)
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, p.lastQuery()["limit"])
}

func TestDescribeRepo(t *testing.T) {
	_, srv := newPDS(t)
	c := New(WithLogger(quietLogger()))

	d, err := c.DescribeRepo(context.Background(), srv.URL, "did:plc:alice")
	require.NoError(t, err)
	assert.True(t, d.HandleIsCorrect)
	assert.Equal(t, []string{"app.bsky.actor.profile", "app.bsky.feed.post"}, d.Collections)
}

func TestResponseCache_CoalescesAndReuses(t *testing.T) {
	p, srv := newPDS(t)
	rc := cache.New(cache.Options[string, []byte]{
		Capacity: 64,
		Cost:     func(b []byte) int { return len(b) },
		MaxCost:  1 << 20,
	})
	t.Cleanup(func() { _ = rc.Close() })
	c := New(WithLogger(quietLogger()), WithResponseCache(rc, cache.LoadPolicy[[]byte]{SuccessTTL: time.Minute}))

	var g errgroup.Group
	for i := 0; i < 16; i++ {
		g.Go(func() error {
			prof, err := c.GetProfile(context.Background(), srv.URL, "alice.test")
			if err == nil && prof.Handle != "alice.test" {
				t.Errorf("handle = %q", prof.Handle)
			}
			return err
		})
	}
	require.NoError(t, g.Wait())

	// Concurrent callers may each miss before the first load lands, but the
	// producer runs at most once per miss episode and later calls are hits.
	first := p.hits.Load()
	require.GreaterOrEqual(t, first, int64(1))
	_, err := c.GetProfile(context.Background(), srv.URL, "alice.test")
	require.NoError(t, err)
	assert.Equal(t, first, p.hits.Load())
	assert.Equal(t, uint64(first), rc.Stats().Loads)
}

func TestResponseCache_ErrorsNotCachedByDefault(t *testing.T) {
	p, srv := newPDS(t)
	rc := cache.New(cache.Options[string, []byte]{Capacity: 8})
	t.Cleanup(func() { _ = rc.Close() })
	c := New(WithLogger(quietLogger()), WithResponseCache(rc, cache.LoadPolicy[[]byte]{SuccessTTL: time.Minute}))

	for i := 0; i < 2; i++ {
		_, err := c.GetRecord(context.Background(), srv.URL, "did:plc:alice", "app.bsky.feed.post", "missing")
		require.True(t, IsNotFound(err))
	}
	assert.EqualValues(t, 2, p.hits.Load())
}

func TestParseURI(t *testing.T) {
	tests := []struct {
		in   string
		want URI
		ok   bool
	}{
		{"at://did:plc:alice", URI{Authority: "did:plc:alice"}, true},
		{"at://alice.test/app.bsky.feed.post", URI{Authority: "alice.test", Collection: "app.bsky.feed.post"}, true},
		{"at://did:plc:alice/app.bsky.feed.post/3jzfcijpj2z2a", URI{"did:plc:alice", "app.bsky.feed.post", "3jzfcijpj2z2a"}, true},
		{"at://did:plc:alice/app.bsky.feed.post/", URI{Authority: "did:plc:alice", Collection: "app.bsky.feed.post"}, true},
		{"https://example.com", URI{}, false},
		{"at://", URI{}, false},
		{"at://a//b", URI{}, false},
		{"at://a/b/c/d", URI{}, false},
		{"at://a/b?x=1", URI{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseURI(tt.in)
			if !tt.ok {
				assert.ErrorIs(t, err, ErrInvalidURI)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			if tt.in[len(tt.in)-1] != '/' {
				assert.Equal(t, tt.in, got.String())
			}
		})
	}
}

func TestRecord_CreatedAt(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	key := tid.Encode(uint64(ts.UnixMicro()), 3).String()

	rec := Record{URI: "at://did:plc:alice/app.bsky.feed.post/" + key, Value: json.RawMessage(`{}`)}
	got, ok := rec.CreatedAt()
	require.True(t, ok)
	assert.True(t, got.Equal(ts), "got %v", got)

	rec.Value = json.RawMessage(`{"createdAt":"2023-02-03T04:05:06.789Z"}`)
	got, ok = rec.CreatedAt()
	require.True(t, ok)
	assert.Equal(t, 2023, got.Year())

	rec = Record{URI: "at://did:plc:alice/app.bsky.actor.profile/self", Value: json.RawMessage(`{}`)}
	_, ok = rec.CreatedAt()
	assert.False(t, ok)
}

func TestRecordKey(t *testing.T) {
	assert.Equal(t, "self", RecordKey("self"))
	k := RecordKey("")
	assert.True(t, tid.Valid(k), k)
}
