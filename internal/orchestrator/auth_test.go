package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unioslo/tacl/internal/tacenv"
)

type redirectTransport struct{ target *url.URL }

func (t *redirectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.URL.Scheme = t.target.Scheme
	clone.URL.Host = t.target.Host

	return http.DefaultTransport.RoundTrip(clone)
}

func redirectClient(t *testing.T, srv *httptest.Server) *http.Client {
	t.Helper()

	target, err := url.Parse(srv.URL)
	require.NoError(t, err)

	return &http.Client{Transport: &redirectTransport{target: target}}
}

type fakePrompter struct {
	password string
	otp      string
	secret   string
}

func (f fakePrompter) Password(context.Context, string) (string, error) { return f.password, nil }
func (f fakePrompter) OTP(context.Context) (string, error)               { return f.otp, nil }
func (f fakePrompter) SecretChallenge(context.Context) (string, error)   { return f.secret, nil }

func TestAuthenticateWithCredentials(t *testing.T) {
	var body map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/p11/auth/tsd/token", r.URL.Path)
		assert.Equal(t, "import", r.URL.Query().Get("type"))

		_ = json.NewDecoder(r.Body).Decode(&body)
		_ = json.NewEncoder(w).Encode(tokenResponse{Token: "access-1", RefreshToken: "refresh-1"})
	}))
	defer srv.Close()

	auth := New(redirectClient(t, srv), nil)

	pair, err := auth.AuthenticateWithCredentials(
		context.Background(), tacenv.Dev, "p11", "import", "alice",
		fakePrompter{password: "hunter2", otp: "123456"},
	)
	require.NoError(t, err)
	assert.Equal(t, "access-1", pair.Access)
	assert.Equal(t, "refresh-1", pair.Refresh)
	assert.Equal(t, "alice", body["user_name"])
	assert.Equal(t, "hunter2", body["password"])
	assert.Equal(t, "123456", body["otp"])
}

func TestAuthenticateWithAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/p11/auth/basic/token", r.URL.Path)
		assert.Equal(t, "export", r.URL.Query().Get("type"))
		assert.Equal(t, "Bearer key-123", r.Header.Get("Authorization"))

		_ = json.NewEncoder(w).Encode(tokenResponse{Token: "access-2"})
	}))
	defer srv.Close()

	auth := New(redirectClient(t, srv), nil)

	pair, err := auth.AuthenticateWithAPIKey(context.Background(), tacenv.Dev, "p11", "export", "key-123")
	require.NoError(t, err)
	assert.Equal(t, "access-2", pair.Access)
	assert.Empty(t, pair.Refresh)
}

func TestAuthenticateWithInstanceOmitsSecretWhenPrompterNil(t *testing.T) {
	var body map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/p11/auth/instances/token", r.URL.Path)

		_ = json.NewDecoder(r.Body).Decode(&body)
		_ = json.NewEncoder(w).Encode(tokenResponse{Token: "access-3", RefreshToken: "refresh-3"})
	}))
	defer srv.Close()

	auth := New(redirectClient(t, srv), nil)

	pair, err := auth.AuthenticateWithInstance(context.Background(), tacenv.Dev, "p11", "import", "inst-1", nil)
	require.NoError(t, err)
	assert.Equal(t, "access-3", pair.Access)
	assert.Equal(t, "inst-1", body["id"])
	_, hasSecret := body["secret_challenge"]
	assert.False(t, hasSecret)
}

func TestAuthenticateWithInstanceIncludesSecretChallenge(t *testing.T) {
	var body map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		_ = json.NewEncoder(w).Encode(tokenResponse{Token: "access-4"})
	}))
	defer srv.Close()

	auth := New(redirectClient(t, srv), nil)

	_, err := auth.AuthenticateWithInstance(
		context.Background(), tacenv.Dev, "p11", "import", "inst-1", fakePrompter{secret: "challenge-response"},
	)
	require.NoError(t, err)
	assert.Equal(t, "challenge-response", body["secret_challenge"])
}

func TestRefresh(t *testing.T) {
	var body map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/p11/auth/refresh/token", r.URL.Path)

		_ = json.NewDecoder(r.Body).Decode(&body)
		_ = json.NewEncoder(w).Encode(tokenResponse{Token: "access-5", RefreshToken: "refresh-5"})
	}))
	defer srv.Close()

	auth := New(redirectClient(t, srv), nil)

	pair, err := auth.Refresh(context.Background(), "dev", "p11", "", "old-refresh")
	require.NoError(t, err)
	assert.Equal(t, "access-5", pair.Access)
	assert.Equal(t, "refresh-5", pair.Refresh)
	assert.Equal(t, "old-refresh", body["refresh_token"])
}

func TestAuthenticateWithAPIKeyPropagatesHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	auth := New(redirectClient(t, srv), nil)

	_, err := auth.AuthenticateWithAPIKey(context.Background(), tacenv.Dev, "p11", "import", "bad-key")
	assert.Error(t, err)
}
