package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/atresolve/tid"
)

// network serves a directory and a repository host from one test server.
type network struct {
	srv       *httptest.Server
	docLoads  atomic.Int64
	listCalls atomic.Int64
}

func newNetwork(t *testing.T) *network {
	t.Helper()
	n := &network{}
	mux := http.NewServeMux()
	mux.HandleFunc("/did:plc:alice", func(w http.ResponseWriter, r *http.Request) {
		n.docLoads.Add(1)
		_, _ = fmt.Fprintf(w, `{"id":"did:plc:alice","alsoKnownAs":["at://alice.test"],
			"service":[{"id":"#atproto_pds","type":"AtprotoPersonalDataServer","serviceEndpoint":%q}]}`, n.srv.URL)
	})
	mux.HandleFunc("/xrpc/com.atproto.repo.getRecord", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("rkey") != "3jzfcijpj2z2a" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":"RecordNotFound"}`)
			return
		}
		_, _ = fmt.Fprintf(w, `{"uri":"at://%s/%s/%s","cid":"bafy","value":{"text":"hi"}}`, q.Get("repo"), q.Get("collection"), q.Get("rkey"))
	})
	mux.HandleFunc("/xrpc/com.atproto.repo.listRecords", func(w http.ResponseWriter, r *http.Request) {
		n.listCalls.Add(1)
		if r.URL.Query().Get("cursor") == "" {
			_, _ = io.WriteString(w, `{"records":[{"uri":"at://did:plc:alice/app.bsky.feed.post/a","value":{}}],"cursor":"c1"}`)
			return
		}
		_, _ = io.WriteString(w, `{"records":[{"uri":"at://did:plc:alice/app.bsky.feed.post/b","value":{}}]}`)
	})
	mux.HandleFunc("/xrpc/com.atproto.repo.describeRepo", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"handle":"alice.test","did":"did:plc:alice","collections":["app.bsky.feed.post"],"handleIsCorrect":true}`)
	})
	n.srv = httptest.NewServer(mux)
	t.Cleanup(n.srv.Close)
	return n
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := New()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append(args, "--loglevel", "error"))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestResolve(t *testing.T) {
	n := newNetwork(t)

	out, err := run(t, "resolve", "--directory", n.srv.URL, "did:plc:alice", "did:plc:alice")
	require.NoError(t, err)

	var got []resolution
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 2)
	for _, r := range got {
		assert.True(t, r.Found)
		assert.Equal(t, n.srv.URL, r.Endpoint)
	}
	assert.EqualValues(t, 1, n.docLoads.Load())
}

func TestResolve_Unresolved(t *testing.T) {
	n := newNetwork(t)

	out, err := run(t, "resolve", "--directory", n.srv.URL, "did:plc:alice", "did:plc:nobody")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2")

	var got []resolution
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.True(t, got[0].Found)
	assert.False(t, got[1].Found)
	assert.NotEmpty(t, got[1].Error)
}

func TestRecord(t *testing.T) {
	n := newNetwork(t)

	out, err := run(t, "record", "--directory", n.srv.URL, "at://did:plc:alice/app.bsky.feed.post/3jzfcijpj2z2a")
	require.NoError(t, err)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Equal(t, "at://did:plc:alice/app.bsky.feed.post/3jzfcijpj2z2a", rec["uri"])
	assert.Contains(t, rec, "createdAt")

	_, err = run(t, "record", "--directory", n.srv.URL, "did:plc:alice", "app.bsky.feed.post", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record not found")

	_, err = run(t, "record", "--directory", n.srv.URL, "did:plc:alice", "app.bsky.feed.post")
	require.Error(t, err)
}

func TestList_All(t *testing.T) {
	n := newNetwork(t)

	out, err := run(t, "list", "--directory", n.srv.URL, "--all", "did:plc:alice", "app.bsky.feed.post")
	require.NoError(t, err)
	var page struct {
		Records []struct {
			URI string `json:"uri"`
		} `json:"records"`
		Cursor string `json:"cursor"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &page))
	require.Len(t, page.Records, 2)
	assert.Empty(t, page.Cursor)
	assert.EqualValues(t, 2, n.listCalls.Load())
}

func TestDescribe(t *testing.T) {
	n := newNetwork(t)

	out, err := run(t, "describe", "--directory", n.srv.URL, "did:plc:alice")
	require.NoError(t, err)
	assert.Contains(t, out, `"app.bsky.feed.post"`)
}

func TestConfigFile(t *testing.T) {
	n := newNetwork(t)
	path := filepath.Join(t.TempDir(), "atresolve.yaml")
	require.NoError(t, os.WriteFile(path, []byte("directoryURL: "+n.srv.URL+"\n"), 0o600))

	out, err := run(t, "resolve", "--config", path, "did:plc:alice")
	require.NoError(t, err)
	assert.Contains(t, out, n.srv.URL)

	require.NoError(t, os.WriteFile(path, []byte("cacheCapacity: 0\n"), 0o600))
	_, err = run(t, "resolve", "--config", path, "did:plc:alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cacheCapacity")
}

func TestTID(t *testing.T) {
	out, err := run(t, "tid", "new", "-n", "3")
	require.NoError(t, err)
	lines := strings.Fields(out)
	require.Len(t, lines, 3)
	for i, s := range lines {
		assert.True(t, tid.Valid(s), s)
		if i > 0 {
			assert.Less(t, lines[i-1], s)
		}
	}

	out, err = run(t, "tid", "decode", lines[0])
	require.NoError(t, err)
	var dec []decodedTID
	require.NoError(t, json.Unmarshal([]byte(out), &dec))
	require.Len(t, dec, 1)
	micros, _ := tid.TID(lines[0]).Micros()
	assert.Equal(t, micros, dec[0].Micros)

	_, err = run(t, "tid", "decode", "not-a-tid")
	require.Error(t, err)
}

func TestInvalidLogLevel(t *testing.T) {
	cmd := New()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"tid", "new", "--loglevel", "verbose"})
	require.Error(t, cmd.ExecuteContext(context.Background()))
}
