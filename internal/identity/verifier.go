// Package identity validates the signed OIDC assertion a workflow runner
// presents when calling the broker. Validation is pure: signature, issuer,
// audience, and actor are checked and nothing else happens.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingCredential = errors.New("identity assertion is missing")
	ErrInvalidAssertion  = errors.New("identity assertion is invalid")
	ErrUntrustedActor    = errors.New("identity assertion actor is not trusted")
)

// Config fixes the expected issuer, audience, and the callers we trust.
type Config struct {
	// Issuer must match the token's iss claim exactly.
	Issuer string
	// JWKSURL is the issuer's published key set, resolved dynamically.
	JWKSURL string
	// Audience must match the token's aud claim exactly.
	Audience string
	// AllowedActors is the allow-list for the actor claim.
	AllowedActors []string
}

// Verifier validates raw identity assertions against a fixed Config.
type Verifier struct {
	cfg     Config
	actors  map[string]struct{}
	keyfunc jwt.Keyfunc
}

// New builds a Verifier whose signing keys are resolved from cfg.JWKSURL.
// The key set refreshes in the background until ctx is canceled.
func New(ctx context.Context, cfg Config) (*Verifier, error) {
	if cfg.Issuer == "" || cfg.JWKSURL == "" || cfg.Audience == "" {
		return nil, fmt.Errorf("identity config requires issuer, jwks_url, and audience")
	}
	if len(cfg.AllowedActors) == 0 {
		return nil, fmt.Errorf("identity config requires at least one allowed actor")
	}

	kf, err := keyfunc.NewDefaultCtx(ctx, []string{cfg.JWKSURL})
	if err != nil {
		return nil, fmt.Errorf("load jwks from %s: %w", cfg.JWKSURL, err)
	}
	return newWithKeyfunc(cfg, kf.Keyfunc), nil
}

func newWithKeyfunc(cfg Config, kf jwt.Keyfunc) *Verifier {
	actors := make(map[string]struct{}, len(cfg.AllowedActors))
	for _, a := range cfg.AllowedActors {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		actors[a] = struct{}{}
	}
	return &Verifier{cfg: cfg, actors: actors, keyfunc: kf}
}

type claims struct {
	Actor string `json:"actor"`
	jwt.RegisteredClaims
}

// Verify validates rawAssertion and returns the asserted actor. The header
// value may carry an optional "Bearer " prefix.
func (v *Verifier) Verify(ctx context.Context, rawAssertion string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	raw := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(rawAssertion), "Bearer "))
	if raw == "" {
		return "", ErrMissingCredential
	}

	var c claims
	_, err := jwt.ParseWithClaims(raw, &c, v.keyfunc,
		jwt.WithIssuer(v.cfg.Issuer),
		jwt.WithAudience(v.cfg.Audience),
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidAssertion, err)
	}

	if _, ok := v.actors[c.Actor]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUntrustedActor, c.Actor)
	}
	return c.Actor, nil
}
