package token

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultRefreshBefore and DefaultRefreshAfter bound the window around
// refreshTarget within which MaybeRefresh will attempt a refresh.
const (
	DefaultRefreshBefore = 5 * time.Minute
	DefaultRefreshAfter  = 10 * time.Minute
)

// Refresher exchanges a refresh token for a new pair. Implemented by
// internal/orchestrator against the real /auth/refresh/token endpoint, and
// by a test double in this package's tests.
type Refresher interface {
	Refresh(ctx context.Context, env, tenant, apiKey, refreshToken string) (Pair, error)
}

// Policy drives the windowed refresh decision and keeps the backing
// Store up to date. Concurrent calls for the same
// (env, tenant, kind) key are coalesced with singleflight so that two
// goroutines racing to refresh the same session never both hit the
// network or both write the store out of order.
type Policy struct {
	store     *Store
	refresher Refresher
	logger    *slog.Logger

	group singleflight.Group
}

// NewPolicy creates a Policy backed by store, using refresher for the
// network call.
func NewPolicy(store *Store, refresher Refresher, logger *slog.Logger) *Policy {
	if logger == nil {
		logger = slog.Default()
	}

	return &Policy{store: store, refresher: refresher, logger: logger}
}

// IsExpired reports whether now is at or past the access token's exp
// claim. An unparsable token is treated as expired.
func IsExpired(access string, now time.Time) bool {
	claims, err := DecodeClaims(access)
	if err != nil {
		return true
	}

	return !now.Before(claims.ExpiresAt())
}

// ExpiresSoon reports whether the access token's exp falls within
// (now, now+minutes] — strictly in the future, but inside the window.
func ExpiresSoon(access string, now time.Time, minutes int) bool {
	claims, err := DecodeClaims(access)
	if err != nil {
		return false
	}

	expiry := claims.ExpiresAt()
	upper := now.Add(time.Duration(minutes) * time.Minute)

	return expiry.After(now) && !expiry.After(upper)
}

// MaybeRefresh implements the windowed refresh policy:
//
//   - no refresh token or zero refreshTarget (even with force) -> return
//     the existing access unchanged (or empty pair if there is no access
//     token either);
//   - now within [refreshTarget-before, refreshTarget+after], or force ->
//     call the refresh endpoint;
//   - success with both access and refresh -> overwrite the session,
//     return both;
//   - success with access only (refresh chain exhausted) -> store access,
//     return access only;
//   - failure -> return the caller's existing access unchanged, log at
//     debug.
func (p *Policy) MaybeRefresh(
	ctx context.Context,
	env, tenant, apiKey string,
	current Pair,
	refreshTarget time.Time,
	force bool,
) (Pair, error) {
	if current.Refresh == "" || refreshTarget.IsZero() {
		if current.Access != "" {
			p.logger.Debug("no refresh token, reusing current access token")
			return Pair{Access: current.Access}, nil
		}

		p.logger.Debug("no refresh or access token provided")
		return Pair{}, nil
	}

	now := time.Now()
	start := refreshTarget.Add(-DefaultRefreshBefore)
	end := refreshTarget.Add(DefaultRefreshAfter)

	if !force && (now.Before(start) || now.After(end)) {
		return Pair{Access: current.Access, Refresh: current.Refresh}, nil
	}

	if force {
		p.logger.Debug("forcing refresh")
	}

	kind := p.kindOf(current.Access)
	key := fmt.Sprintf("%s/%s/%s", env, tenant, kind)

	result, err, _ := p.group.Do(key, func() (any, error) {
		return p.doRefresh(ctx, env, tenant, kind, apiKey, current)
	})
	if err != nil {
		p.logger.Debug("could not refresh, using existing access token", slog.String("error", err.Error()))
		return Pair{Access: current.Access}, nil
	}

	return result.(Pair), nil
}

func (p *Policy) kindOf(access string) string {
	claims, err := DecodeClaims(access)
	if err != nil {
		return ""
	}

	return claims.Name
}

func (p *Policy) doRefresh(ctx context.Context, env, tenant, kind, apiKey string, current Pair) (Pair, error) {
	newPair, err := p.refresher.Refresh(ctx, env, tenant, apiKey, current.Refresh)
	if err != nil {
		return Pair{}, err
	}

	if err := p.store.Update(env, tenant, kind, newPair); err != nil {
		return Pair{}, fmt.Errorf("token: persisting refreshed session: %w", err)
	}

	if newPair.Refresh != "" {
		claims, claimErr := DecodeClaims(newPair.Refresh)
		if claimErr == nil {
			p.logger.Debug("refreshes remaining", slog.Int("counter", claims.Counter))
		}
	} else {
		p.logger.Debug("refreshes remaining: 0")
	}

	return newPair, nil
}
