package main

import (
	"context"
	"fmt"
	"time"

	"github.com/unioslo/tacl/internal/token"
)

// loadedSession is the in-memory mirror of one token.Store entry, mutated
// in place as refreshFn runs (mirrors dirsync.TransferContext's
// Access/Refresh/RefreshTarget fields — the token pair is owned by the
// transporter and mutated in place on refresh).
type loadedSession struct {
	access        string
	refresh       string
	refreshTarget string
}

// requireSession loads the persisted pair for (env, pnum, kind), failing
// with an actionable message if the caller never logged in.
func requireSession(cc *CLIContext, pnum string, kind token.Kind) (*loadedSession, error) {
	pair, ok, err := cc.Store.Get(string(cc.Env), pnum, string(kind))
	if err != nil {
		return nil, fmt.Errorf("tacl: reading session: %w", err)
	}

	if !ok {
		return nil, fmt.Errorf("tacl: not logged in for %s/%s (%s); run 'tacl login'", cc.Env, pnum, kind)
	}

	target := ""

	if claims, claimErr := token.DecodeClaims(pair.Access); claimErr == nil {
		target = claims.ExpiresAt().Format(time.RFC3339)
	}

	return &loadedSession{access: pair.Access, refresh: pair.Refresh, refreshTarget: target}, nil
}

// refreshFn adapts the windowed refresh policy (internal/token.Policy)
// into the func(ctx) (string, error) shape both transfer.RefreshFunc and
// dirsync.TransferContext.RefreshFn expect, updating s in place so later
// calls in the same run see the renewed pair.
func (s *loadedSession) refreshFn(cc *CLIContext, pnum, apiKey string) func(context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		target, _ := time.Parse(time.RFC3339, s.refreshTarget)

		pair, err := cc.Policy.MaybeRefresh(ctx, string(cc.Env), pnum, apiKey,
			token.Pair{Access: s.access, Refresh: s.refresh}, target, false)
		if err != nil {
			return "", err
		}

		s.access = pair.Access
		s.refresh = pair.Refresh

		if claims, claimErr := token.DecodeClaims(pair.Access); claimErr == nil {
			s.refreshTarget = claims.ExpiresAt().Format(time.RFC3339)
		}

		return s.access, nil
	}
}

// configuredAPIKey returns the API key on file for (env, pnum), if any —
// maybe_refresh only needs it when a refresh is actually due.
func configuredAPIKey(cc *CLIContext, pnum string) string {
	key, _ := cc.Config.APIKey(string(cc.Env), pnum)
	return key
}
