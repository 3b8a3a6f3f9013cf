// Package token implements the token store and refresh policy:
// persisting (environment, tenant, kind) -> access/refresh pairs,
// deciding when a pair is expired or expires soon, and driving the
// windowed refresh policy.
package token

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Kind names the role a token authorizes.
type Kind string

// The token kinds in active use. Environment-qualified variants (e.g.
// "import-alt") are constructed by callers as plain strings; Kind does not
// enumerate every combination.
const (
	KindImport Kind = "import"
	KindExport Kind = "export"
)

// Claims holds the subset of JWT claims TACL's policy logic reads. TACL
// never verifies the token's signature — it is a client, not a verifier —
// it only decodes the middle segment to drive local decisions such as
// "is this expired" and "what kind of token is this".
type Claims struct {
	Expiry  int64    `json:"exp"`
	Name    string   `json:"name"`
	Project string   `json:"proj"`
	User    string   `json:"user"`
	Groups  []string `json:"groups"`
	Counter int      `json:"counter"`
	Path    string   `json:"path"`
	Audience string  `json:"aud"`
}

// ExpiresAt returns the claim's exp as a time.Time.
func (c Claims) ExpiresAt() time.Time {
	return time.Unix(c.Expiry, 0)
}

// DecodeClaims parses the unverified claims segment out of a three-segment
// base64url JWT (header.claims.signature). It does not check the
// signature: TACL trusts the transport (TLS to the token issuer) and only
// reads claims to drive refresh/expiry policy.
func DecodeClaims(jwt string) (Claims, error) {
	parts := strings.Split(jwt, ".")
	if len(parts) != 3 {
		return Claims{}, fmt.Errorf("token: malformed JWT: expected 3 segments, got %d", len(parts))
	}

	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return Claims{}, fmt.Errorf("token: decoding claims segment: %w", err)
	}

	var claims Claims
	if err := json.Unmarshal(raw, &claims); err != nil {
		return Claims{}, fmt.Errorf("token: parsing claims JSON: %w", err)
	}

	return claims, nil
}
