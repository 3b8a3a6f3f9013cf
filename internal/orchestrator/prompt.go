// Package orchestrator implements the auth-flavor selection and
// (env, tenant, group, remote_path) resolution that sits outside the
// core: cmd/tacl is the only caller. The core packages (internal/token,
// internal/transfer, internal/dirsync) never prompt; whatever
// interactive input one auth flavor needs is obtained through
// CredentialPrompter, injected by the caller.
package orchestrator

import "context"

// CredentialPrompter asks the operator for whatever one auth flavor
// additionally needs. cmd/tacl implements this against a terminal; tests
// supply a canned double.
type CredentialPrompter interface {
	Password(ctx context.Context, user string) (string, error)
	OTP(ctx context.Context) (string, error)
	SecretChallenge(ctx context.Context) (string, error)
}
