package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unioslo/tacl/internal/token"
)

// makeJWT mirrors internal/token's test helper: an unsigned-but-well-formed
// three-segment JWT carrying only the claims DecodeClaims reads.
func makeJWT(t *testing.T, claims token.Claims) string {
	t.Helper()

	body, err := json.Marshal(claims)
	require.NoError(t, err)

	seg := base64.RawURLEncoding.EncodeToString(body)

	return "header." + seg + ".sig"
}

type stubRefresher struct {
	pair token.Pair
	err  error
}

func (s stubRefresher) Refresh(context.Context, string, string, string, string) (token.Pair, error) {
	return s.pair, s.err
}

func TestRequireSession_NotLoggedIn(t *testing.T) {
	store := token.NewStore(filepath.Join(t.TempDir(), "session.yaml"))

	cc := &CLIContext{Env: "dev", Store: store}

	_, err := requireSession(cc, "p11", token.KindImport)
	assert.Error(t, err)
}

func TestRequireSession_LoadsPersistedPair(t *testing.T) {
	store := token.NewStore(filepath.Join(t.TempDir(), "session.yaml"))

	exp := time.Now().Add(time.Hour).Unix()
	access := makeJWT(t, token.Claims{Expiry: exp, Name: "import"})

	require.NoError(t, store.Update("dev", "p11", "import", token.Pair{Access: access, Refresh: "r1"}))

	cc := &CLIContext{Env: "dev", Store: store}

	sess, err := requireSession(cc, "p11", token.KindImport)
	require.NoError(t, err)
	assert.Equal(t, access, sess.access)
	assert.Equal(t, "r1", sess.refresh)
	assert.NotEmpty(t, sess.refreshTarget)
}

func TestLoadedSession_RefreshFnUpdatesInPlace(t *testing.T) {
	store := token.NewStore(filepath.Join(t.TempDir(), "session.yaml"))

	newAccess := makeJWT(t, token.Claims{Expiry: time.Now().Add(2 * time.Hour).Unix(), Name: "import"})

	cc := &CLIContext{
		Env:    "dev",
		Store:  store,
		Logger: slog.Default(),
		Policy: token.NewPolicy(store, stubRefresher{pair: token.Pair{Access: newAccess, Refresh: "r2"}}, slog.Default()),
	}

	target := time.Now() // now falls inside [target-5m, target+10m]
	sess := &loadedSession{
		access:        makeJWT(t, token.Claims{Expiry: time.Now().Add(time.Minute).Unix(), Name: "import"}),
		refresh:       "r1",
		refreshTarget: target.Format(time.RFC3339),
	}

	access, err := sess.refreshFn(cc, "p11", "")(context.Background())
	require.NoError(t, err)
	assert.Equal(t, newAccess, access)
	assert.Equal(t, newAccess, sess.access)
	assert.Equal(t, "r2", sess.refresh)
}
