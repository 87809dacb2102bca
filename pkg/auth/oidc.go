package auth

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/bridgehq/bridge-accounts/pkg/account"
	"github.com/bridgehq/bridge-accounts/pkg/config"
)

// googleIssuer is Google's OIDC discovery issuer
const googleIssuer = "https://accounts.google.com"

// GoogleAuthenticator abstracts the Google OAuth exchange so handlers
// can be tested without a live provider.
type GoogleAuthenticator interface {
	// AuthCodeURL builds the consent page redirect for the given state
	AuthCodeURL(state string) string
	// Exchange trades an authorization code for a verified profile
	Exchange(ctx context.Context, code string) (account.GoogleProfile, error)
}

// GoogleProvider implements GoogleAuthenticator against Google's OIDC
// endpoint, verifying the returned ID token signature and audience.
type GoogleProvider struct {
	oauth2Config *oauth2.Config
	verifier     *oidc.IDTokenVerifier
}

// NewGoogleProvider discovers Google's OIDC configuration and prepares
// the OAuth2 code flow.
func NewGoogleProvider(ctx context.Context, cfg config.GoogleConfig) (*GoogleProvider, error) {
	provider, err := oidc.NewProvider(ctx, googleIssuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover google oidc provider: %w", err)
	}

	return &GoogleProvider{
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
	}, nil
}

// AuthCodeURL builds the Google consent URL carrying the CSRF state
func (g *GoogleProvider) AuthCodeURL(state string) string {
	return g.oauth2Config.AuthCodeURL(state)
}

type googleClaims struct {
	Subject       string `json:"sub"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Picture       string `json:"picture"`
}

// Exchange trades the authorization code for tokens, verifies the ID
// token and extracts the identity claims.
func (g *GoogleProvider) Exchange(ctx context.Context, code string) (account.GoogleProfile, error) {
	oauth2Token, err := g.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return account.GoogleProfile{}, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok {
		return account.GoogleProfile{}, fmt.Errorf("token response did not include an id_token")
	}

	idToken, err := g.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return account.GoogleProfile{}, fmt.Errorf("failed to verify id token: %w", err)
	}

	var claims googleClaims
	if err := idToken.Claims(&claims); err != nil {
		return account.GoogleProfile{}, fmt.Errorf("failed to parse id token claims: %w", err)
	}
	if !claims.EmailVerified {
		return account.GoogleProfile{}, fmt.Errorf("google account email is not verified")
	}

	profile := account.GoogleProfile{
		Subject: claims.Subject,
		Name:    claims.Name,
		Email:   claims.Email,
	}
	if claims.Picture != "" {
		picture := claims.Picture
		profile.Avatar = &picture
	}
	return profile, nil
}
