package orchestrator

import (
	"context"
	"fmt"

	"github.com/unioslo/tacl/internal/tacenv"
	"github.com/unioslo/tacl/internal/token"
)

// Flavor selects which of the three auth flavors to run.
type Flavor int

const (
	FlavorCredentials Flavor = iota // user-credentials-plus-OTP
	FlavorAPIKey                    // basic-from-long-lived-key
	FlavorInstance                  // link-id + optional secret challenge
)

// LoginParams bundles every flavor's inputs; fields a given Flavor doesn't
// need are ignored.
type LoginParams struct {
	Env    tacenv.Environment
	Pnum   string
	Kind   token.Kind
	Flavor Flavor

	User       string // FlavorCredentials
	APIKey     string // FlavorAPIKey
	InstanceID string // FlavorInstance

	Prompter CredentialPrompter // FlavorCredentials, FlavorInstance
}

// Login runs one of the three auth flavors and, if store is non-nil,
// persists the resulting pair under (env, pnum, kind) so a later process
// run finds it via token.Store.Get.
func Login(ctx context.Context, auth *Authenticator, store *token.Store, p LoginParams) (token.Pair, error) {
	var (
		pair token.Pair
		err  error
	)

	switch p.Flavor {
	case FlavorCredentials:
		pair, err = auth.AuthenticateWithCredentials(ctx, p.Env, p.Pnum, string(p.Kind), p.User, p.Prompter)
	case FlavorAPIKey:
		pair, err = auth.AuthenticateWithAPIKey(ctx, p.Env, p.Pnum, string(p.Kind), p.APIKey)
	case FlavorInstance:
		pair, err = auth.AuthenticateWithInstance(ctx, p.Env, p.Pnum, string(p.Kind), p.InstanceID, p.Prompter)
	default:
		return token.Pair{}, fmt.Errorf("orchestrator: unknown auth flavor %d", p.Flavor)
	}

	if err != nil {
		return token.Pair{}, err
	}

	if store != nil {
		if updErr := store.Update(string(p.Env), p.Pnum, string(p.Kind), pair); updErr != nil {
			return token.Pair{}, fmt.Errorf("orchestrator: persisting session: %w", updErr)
		}
	}

	return pair, nil
}
