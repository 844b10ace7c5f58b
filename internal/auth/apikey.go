// Package auth validates gateway API keys against the client directory,
// with a legacy fallback to keys provisioned via the environment.
package auth

import (
	"context"
	"crypto/subtle"
	"log/slog"

	gateway "github.com/bastionlabs/bastion/internal"
	"github.com/bastionlabs/bastion/internal/clientstore"
)

// APIKeyAuth resolves X-API-Key values to client records. The directory is
// consulted first; keys it does not know are checked against the static
// legacy list in constant time. Directory faults degrade to the legacy
// path instead of failing closed.
type APIKeyAuth struct {
	store      clientstore.Store // nil = legacy keys only
	legacyKeys []string
	legacyRPM  int
	logger     *slog.Logger
}

// New creates an APIKeyAuth. store may be nil. legacyRPM is the rate limit
// applied to clients synthesized from legacy keys.
func New(store clientstore.Store, legacyKeys []string, legacyRPM int, logger *slog.Logger) *APIKeyAuth {
	return &APIKeyAuth{store: store, legacyKeys: legacyKeys, legacyRPM: legacyRPM, logger: logger}
}

// Authenticate validates apiKey and returns the owning client record.
// Returns ErrMissingAPIKey for an empty key, ErrClientSuspended for a
// directory record in suspended state, and ErrInvalidAPIKey otherwise.
func (a *APIKeyAuth) Authenticate(ctx context.Context, apiKey string) (*gateway.ClientRecord, error) {
	if apiKey == "" {
		return nil, gateway.ErrMissingAPIKey
	}

	if a.store != nil {
		rec, err := a.store.GetByAPIKey(ctx, apiKey)
		if err != nil {
			a.logger.Warn("client directory lookup failed", slog.Any("error", err))
		}
		if rec != nil {
			if rec.Suspended() {
				return nil, gateway.ErrClientSuspended
			}
			return rec, nil
		}
	}

	// Legacy environment keys. Every key is compared so timing does not
	// reveal how far down the list a candidate got.
	matched := false
	for _, k := range a.legacyKeys {
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(k)) == 1 {
			matched = true
		}
	}
	if !matched {
		return nil, gateway.ErrInvalidAPIKey
	}
	return legacyRecord(apiKey, a.legacyRPM), nil
}

// legacyRecord synthesizes a directory record for an environment-provisioned
// key: OpenAI provider, global upstream credential, no model restrictions,
// the global rate limit.
func legacyRecord(apiKey string, rpm int) *gateway.ClientRecord {
	id := apiKey
	if len(id) > 8 {
		id = id[:8]
	}
	return &gateway.ClientRecord{
		ClientID:     "legacy-" + id,
		APIKey:       apiKey,
		Provider:     gateway.ProviderOpenAI,
		RateLimitRPM: rpm,
		Status:       gateway.ClientStatusActive,
	}
}
