package identity

import (
	"encoding/json"
	"net/url"
	"strings"
)

const (
	// PDSServiceType is the service type of a personal data server entry.
	PDSServiceType = "AtprotoPersonalDataServer"
	// PDSServiceIDSuffix is the fragment that identifies the PDS entry.
	PDSServiceIDSuffix = "#atproto_pds"

	didWebPrefix = "did:web:"
	didPrefix    = "did:"
)

// Strategy selects how an identifier is turned into a DID document.
type Strategy int

const (
	// StrategyDirectory asks the directory service (e.g. plc.directory).
	StrategyDirectory Strategy = iota
	// StrategyWellKnown fetches /.well-known/did.json from the identifier's domain.
	StrategyWellKnown
)

func (s Strategy) String() string {
	if s == StrategyWellKnown {
		return "well-known"
	}
	return "directory"
}

// Classify picks the resolution strategy for id by its prefix.
func Classify(id string) Strategy {
	if strings.HasPrefix(id, didWebPrefix) {
		return StrategyWellKnown
	}
	return StrategyDirectory
}

// webDomain derives the host (with optional port) from a did:web identifier.
// Path-qualified did:web identifiers keep only the host part.
func webDomain(id string) (string, bool) {
	rest := strings.TrimPrefix(id, didWebPrefix)
	if i := strings.IndexByte(rest, ':'); i >= 0 {
		rest = rest[:i]
	}
	host, err := url.PathUnescape(rest)
	if err != nil || host == "" || strings.ContainsAny(host, "/?#@") {
		return "", false
	}
	return host, true
}

// Document is the subset of a DID document this package reads.
type Document struct {
	ID          string    `json:"id"`
	AlsoKnownAs []string  `json:"alsoKnownAs,omitempty"`
	Service     []Service `json:"service,omitempty"`
}

// Service is one entry of a DID document's service array.
// ServiceEndpoint is kept raw: it may be a string, a map or a list.
type Service struct {
	ID              string          `json:"id"`
	Type            string          `json:"type"`
	ServiceEndpoint json.RawMessage `json:"serviceEndpoint"`
}

// PDSEndpoint returns the validated endpoint of the first PDS service
// entry, matched by id suffix or by type.
func (d *Document) PDSEndpoint() (string, bool) {
	if d == nil {
		return "", false
	}
	for _, s := range d.Service {
		if !strings.HasSuffix(s.ID, PDSServiceIDSuffix) && s.Type != PDSServiceType {
			continue
		}
		var raw string
		if err := json.Unmarshal(s.ServiceEndpoint, &raw); err != nil {
			continue
		}
		if ep, ok := NormalizeEndpoint(raw); ok {
			return ep, true
		}
	}
	return "", false
}

// Handle returns the first at:// alias of the document.
func (d *Document) Handle() (string, bool) {
	if d == nil {
		return "", false
	}
	for _, aka := range d.AlsoKnownAs {
		if h, ok := strings.CutPrefix(aka, "at://"); ok && h != "" {
			return h, true
		}
	}
	return "", false
}

// NormalizeEndpoint validates raw as a base URL: http(s) scheme, a host,
// no query, fragment or credentials. The trailing slash is dropped.
func NormalizeEndpoint(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	if (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return "", false
	}
	if u.RawQuery != "" || u.Fragment != "" || u.User != nil {
		return "", false
	}
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	return u.String(), true
}
