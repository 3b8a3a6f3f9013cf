package transfer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

// redirectTransport rewrites every request's scheme and host to target,
// so tests can exercise the fixed per-environment base URLs built by
// tacapi.FileAPIURL against an httptest.Server.
type redirectTransport struct {
	target *url.URL
}

func (t *redirectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.URL.Scheme = t.target.Scheme
	clone.URL.Host = t.target.Host

	return http.DefaultTransport.RoundTrip(clone)
}

// testClient returns an *http.Client that transparently redirects all
// traffic to srv, regardless of the request's original host:port.
func testClient(t *testing.T, srv *httptest.Server) *http.Client {
	t.Helper()

	target, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parsing test server URL: %v", err)
	}

	return &http.Client{Transport: &redirectTransport{target: target}}
}

func staticRefresh(token string) RefreshFunc {
	return func(_ context.Context) (string, error) {
		return token, nil
	}
}
