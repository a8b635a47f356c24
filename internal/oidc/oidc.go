package oidc

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/draftledger/draftledger/backend/go-services/pkg/middleware"
)

// Verifier checks ID tokens issued by the configured provider (Keycloak in
// the default deployment).
type Verifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewVerifier creates a new OIDC verifier for the given issuer and client ID
func NewVerifier(ctx context.Context, issuer, clientID string) (*Verifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}
	return &Verifier{verifier: provider.Verifier(&oidc.Config{ClientID: clientID})}, nil
}

// NewJWKSVerifier skips discovery and fetches signing keys from jwksURL
// directly, for providers whose discovery document is not reachable from
// inside the cluster.
func NewJWKSVerifier(ctx context.Context, issuer, jwksURL, clientID string) *Verifier {
	return fromKeySet(issuer, clientID, oidc.NewRemoteKeySet(ctx, jwksURL))
}

func fromKeySet(issuer, clientID string, keySet oidc.KeySet) *Verifier {
	return &Verifier{verifier: oidc.NewVerifier(issuer, keySet, &oidc.Config{ClientID: clientID})}
}

// Verify verifies the provided raw ID token using the provided context and returns a middleware.Token
func (v *Verifier) Verify(ctx context.Context, raw string) (middleware.Token, error) {
	idToken, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}
	return idToken, nil
}
