package xrpc

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidURI is returned by ParseURI.
var ErrInvalidURI = errors.New("xrpc: invalid at:// URI")

// URI is an at://<authority>[/<collection>[/<rkey>]] reference.
type URI struct {
	Authority  string // DID or handle
	Collection string
	RKey       string
}

// ParseURI parses an at:// URI. Query and fragment parts are not accepted.
func ParseURI(s string) (URI, error) {
	rest, ok := strings.CutPrefix(s, "at://")
	if !ok || strings.ContainsAny(rest, "?#") {
		return URI{}, fmt.Errorf("%w: %q", ErrInvalidURI, s)
	}
	parts := strings.Split(strings.TrimSuffix(rest, "/"), "/")
	if len(parts) > 3 || parts[0] == "" {
		return URI{}, fmt.Errorf("%w: %q", ErrInvalidURI, s)
	}
	var u URI
	u.Authority = parts[0]
	if len(parts) > 1 {
		u.Collection = parts[1]
	}
	if len(parts) > 2 {
		u.RKey = parts[2]
	}
	if (len(parts) > 1 && u.Collection == "") || (len(parts) > 2 && u.RKey == "") {
		return URI{}, fmt.Errorf("%w: %q", ErrInvalidURI, s)
	}
	return u, nil
}

func (u URI) String() string {
	var b strings.Builder
	b.WriteString("at://")
	b.WriteString(u.Authority)
	if u.Collection != "" {
		b.WriteString("/" + u.Collection)
		if u.RKey != "" {
			b.WriteString("/" + u.RKey)
		}
	}
	return b.String()
}
