package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/unioslo/tacl/internal/retry"
	"github.com/unioslo/tacl/internal/tacapi"
	"github.com/unioslo/tacl/internal/tacenv"
	"github.com/unioslo/tacl/internal/token"
)

// tokenResponse is the JSON body every auth endpoint returns on success.
type tokenResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
}

// Authenticator implements the three login flavors (credentials+OTP,
// API key, instance link) and doubles as the token.Refresher the refresh
// policy calls back into — the refresh endpoint is just a fourth auth
// call.
type Authenticator struct {
	Client *http.Client
	Logger *slog.Logger
}

// New builds an Authenticator. A nil client gets http.DefaultClient; a nil
// logger gets slog.Default().
func New(client *http.Client, logger *slog.Logger) *Authenticator {
	if client == nil {
		client = http.DefaultClient
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Authenticator{Client: client, Logger: logger}
}

// AuthenticateWithCredentials implements the user-credentials-plus-OTP
// flavor: `POST /{pnum}/auth/tsd/token?type={kind}` with body
// `{user_name, password, otp}`. Both secrets are obtained through
// prompter, never held by a flag.
func (a *Authenticator) AuthenticateWithCredentials(
	ctx context.Context,
	env tacenv.Environment,
	pnum, kind, user string,
	prompter CredentialPrompter,
) (token.Pair, error) {
	password, err := prompter.Password(ctx, user)
	if err != nil {
		return token.Pair{}, fmt.Errorf("orchestrator: reading password: %w", err)
	}

	otp, err := prompter.OTP(ctx)
	if err != nil {
		return token.Pair{}, fmt.Errorf("orchestrator: reading one-time code: %w", err)
	}

	body := map[string]string{
		"user_name": user,
		"password":  password,
		"otp":       otp,
	}

	url := fmt.Sprintf("%s?type=%s", tacapi.AuthAPIURL(env, pnum, "tsd/token"), kind)

	return a.post(ctx, url, body, nil)
}

// AuthenticateWithAPIKey implements the basic-from-long-lived-key flavor:
// `POST /{pnum}/auth/basic/token?type={kind}` with
// `Authorization: Bearer <api_key>` and no body.
func (a *Authenticator) AuthenticateWithAPIKey(
	ctx context.Context,
	env tacenv.Environment,
	pnum, kind, apiKey string,
) (token.Pair, error) {
	url := fmt.Sprintf("%s?type=%s", tacapi.AuthAPIURL(env, pnum, "basic/token"), kind)

	headers := map[string]string{"Authorization": "Bearer " + apiKey}

	return a.post(ctx, url, nil, headers)
}

// AuthenticateWithInstance implements the link-id + optional secret
// challenge flavor: `POST /{pnum}/auth/instances/token?type={kind}` with
// body `{id, secret_challenge?}`. prompter may be nil when the instance
// requires no challenge.
func (a *Authenticator) AuthenticateWithInstance(
	ctx context.Context,
	env tacenv.Environment,
	pnum, kind, instanceID string,
	prompter CredentialPrompter,
) (token.Pair, error) {
	body := map[string]string{"id": instanceID}

	if prompter != nil {
		secret, err := prompter.SecretChallenge(ctx)
		if err != nil {
			return token.Pair{}, fmt.Errorf("orchestrator: reading secret challenge: %w", err)
		}

		if secret != "" {
			body["secret_challenge"] = secret
		}
	}

	url := fmt.Sprintf("%s?type=%s", tacapi.AuthAPIURL(env, pnum, "instances/token"), kind)

	return a.post(ctx, url, body, nil)
}

// Refresh implements token.Refresher against
// `POST /{pnum}/auth/refresh/token`, body `{refresh_token}`.
func (a *Authenticator) Refresh(ctx context.Context, env, tenant, _, refreshToken string) (token.Pair, error) {
	environment, err := tacenv.ParseEnvironment(env)
	if err != nil {
		return token.Pair{}, fmt.Errorf("orchestrator: refresh: %w", err)
	}

	url := tacapi.AuthAPIURL(environment, tenant, "refresh/token")
	body := map[string]string{"refresh_token": refreshToken}

	return a.post(ctx, url, body, nil)
}

// post issues the POST shared by every auth flavor, wrapped in the same
// retry policy file calls use, and decodes the common
// {token, refresh_token} response shape.
func (a *Authenticator) post(ctx context.Context, url string, body map[string]string, headers map[string]string) (token.Pair, error) {
	var payload []byte

	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return token.Pair{}, fmt.Errorf("orchestrator: encoding request body: %w", err)
		}

		payload = encoded
	}

	result, err := retry.Do(ctx, a.Client, a.Logger, func(ctx context.Context, c *http.Client) (*http.Response, error) {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if reqErr != nil {
			return nil, reqErr
		}

		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		for k, v := range headers {
			req.Header.Set(k, v)
		}

		return c.Do(req)
	})
	if err != nil {
		return token.Pair{}, err
	}

	a.Client = result.Client

	defer result.Response.Body.Close()

	var data tokenResponse
	if err := json.NewDecoder(result.Response.Body).Decode(&data); err != nil {
		return token.Pair{}, fmt.Errorf("orchestrator: decoding auth response: %w", err)
	}

	return token.Pair{Access: data.Token, Refresh: data.RefreshToken}, nil
}
