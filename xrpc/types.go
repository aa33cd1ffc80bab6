package xrpc

import (
	"encoding/json"
	"time"

	"github.com/IvanBrykalov/atresolve/tid"
)

// Record is a single repository record.
type Record struct {
	URI   string          `json:"uri"`
	CID   string          `json:"cid,omitempty"`
	Value json.RawMessage `json:"value"`
}

// RKey returns the record key from the record's at:// URI.
func (r *Record) RKey() string {
	u, err := ParseURI(r.URI)
	if err != nil {
		return ""
	}
	return u.RKey
}

// CreatedAt returns the record's own createdAt field when present and
// parseable, else the timestamp encoded in a TID record key.
func (r *Record) CreatedAt() (time.Time, bool) {
	var v struct {
		CreatedAt string `json:"createdAt"`
	}
	if json.Unmarshal(r.Value, &v) == nil && v.CreatedAt != "" {
		if t, err := time.Parse(time.RFC3339Nano, v.CreatedAt); err == nil {
			return t, true
		}
	}
	return tid.Time(r.RKey())
}

// RecordPage is one page of listRecords. Cursor is empty on the last page.
type RecordPage struct {
	Records []Record `json:"records"`
	Cursor  string   `json:"cursor,omitempty"`
}

// Profile is the actor profile view.
type Profile struct {
	DID            string `json:"did"`
	Handle         string `json:"handle"`
	DisplayName    string `json:"displayName,omitempty"`
	Description    string `json:"description,omitempty"`
	Avatar         string `json:"avatar,omitempty"`
	Banner         string `json:"banner,omitempty"`
	FollowersCount int64  `json:"followersCount,omitempty"`
	FollowsCount   int64  `json:"followsCount,omitempty"`
	PostsCount     int64  `json:"postsCount,omitempty"`
	CreatedAt      string `json:"createdAt,omitempty"`
	IndexedAt      string `json:"indexedAt,omitempty"`
}

// RepoDescription is the describeRepo response.
type RepoDescription struct {
	Handle          string          `json:"handle"`
	DID             string          `json:"did"`
	DIDDoc          json.RawMessage `json:"didDoc,omitempty"`
	Collections     []string        `json:"collections"`
	HandleIsCorrect bool            `json:"handleIsCorrect"`
}

// RecordKey returns explicit if set, else a freshly minted TID, for
// record-creation flows that let the client choose the key.
func RecordKey(explicit string) string {
	return tid.KeyOr(explicit)
}
