// Package oidc signs users in with an OpenID Connect provider using the
// authorization-code flow.
package oidc

import (
	"context"
	"errors"
	"fmt"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

var ErrMissingSubject = errors.New("identity has no subject")

// Identity is what the application keeps about a signed-in user.
type Identity struct {
	Subject string
	Name    string
	Email   string
}

type Config struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

type Provider struct {
	provider *gooidc.Provider
	verifier *gooidc.IDTokenVerifier
	oauth    oauth2.Config
}

// New discovers the issuer's endpoints.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	p, err := gooidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("discover oidc provider %s: %w", cfg.Issuer, err)
	}
	return newProvider(p, cfg, &gooidc.Config{ClientID: cfg.ClientID}), nil
}

// NewStatic skips discovery and uses the given endpoints.
func NewStatic(ctx context.Context, cfg Config, endpoints gooidc.ProviderConfig, verify *gooidc.Config) *Provider {
	if verify == nil {
		verify = &gooidc.Config{ClientID: cfg.ClientID}
	}
	return newProvider(endpoints.NewProvider(ctx), cfg, verify)
}

func newProvider(p *gooidc.Provider, cfg Config, verify *gooidc.Config) *Provider {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{gooidc.ScopeOpenID, "email", "profile"}
	}
	return &Provider{
		provider: p,
		verifier: p.Verifier(verify),
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     p.Endpoint(),
			Scopes:       scopes,
		},
	}
}

func (p *Provider) AuthCodeURL(state string) string {
	return p.oauth.AuthCodeURL(state)
}

// Exchange trades the authorization code for tokens and resolves the user.
// Claims missing from the ID token are filled from the userinfo endpoint.
func (p *Provider) Exchange(ctx context.Context, code string) (Identity, error) {
	tok, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return Identity{}, fmt.Errorf("exchange code: %w", err)
	}

	var id Identity
	if raw, ok := tok.Extra("id_token").(string); ok && raw != "" {
		idToken, err := p.verifier.Verify(ctx, raw)
		if err != nil {
			return Identity{}, fmt.Errorf("verify id token: %w", err)
		}
		var claims struct {
			Name  string `json:"name"`
			Email string `json:"email"`
		}
		if err := idToken.Claims(&claims); err != nil {
			return Identity{}, fmt.Errorf("decode id token claims: %w", err)
		}
		id = Identity{Subject: idToken.Subject, Name: claims.Name, Email: claims.Email}
	}

	if id.Subject == "" || id.Name == "" || id.Email == "" {
		info, err := p.provider.UserInfo(ctx, oauth2.StaticTokenSource(tok))
		if err != nil {
			if id.Subject != "" {
				return id, nil
			}
			return Identity{}, fmt.Errorf("fetch userinfo: %w", err)
		}
		id = mergeUserInfo(id, info)
	}

	if id.Subject == "" {
		return Identity{}, ErrMissingSubject
	}
	return id, nil
}

func mergeUserInfo(id Identity, info *gooidc.UserInfo) Identity {
	if id.Subject == "" {
		id.Subject = info.Subject
	}
	if id.Email == "" {
		id.Email = info.Email
	}
	if id.Name == "" {
		var extra struct {
			Name string `json:"name"`
		}
		if err := info.Claims(&extra); err == nil {
			id.Name = extra.Name
		}
	}
	return id
}
