package usecase

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"social-publisher/domain/model"
	"social-publisher/domain/repository"
	"social-publisher/infrastructure/logger"

	"golang.org/x/oauth2"
)

// IConnectionUsecase links platform accounts to users.
type IConnectionUsecase interface {
	// Connect returns the provider consent URL and the state to expect back.
	Connect(ctx context.Context, userID string, p model.Platform) (authURL, state string, err error)
	// CompleteAuth is the only OAuth entry point: it validates the state,
	// exchanges the code and stores the credential.
	CompleteAuth(ctx context.Context, p model.Platform, code, state string) (*model.CredentialSummary, error)
	ConnectSimulated(ctx context.Context, userID string, p model.Platform) (*model.CredentialSummary, error)
	Disconnect(ctx context.Context, userID string, p model.Platform) error
	ListConnections(ctx context.Context, userID string) ([]model.CredentialSummary, error)
}

type ConnectionOptions struct {
	ExchangeTimeout time.Duration
	HTTPClient      *http.Client
	// PKCE lists providers that require a code verifier.
	PKCE map[model.Platform]bool
}

type connectionUsecase struct {
	store    repository.ICredential
	states   repository.IOAuthState
	profiles repository.IProfileResolver
	configs  map[model.Platform]*oauth2.Config
	opts     ConnectionOptions
	now      func() time.Time
}

func NewConnectionUsecase(store repository.ICredential, states repository.IOAuthState, profiles repository.IProfileResolver, configs map[model.Platform]*oauth2.Config, opts ConnectionOptions) IConnectionUsecase {
	if opts.ExchangeTimeout <= 0 {
		opts.ExchangeTimeout = 15 * time.Second
	}
	if opts.PKCE == nil {
		opts.PKCE = map[model.Platform]bool{model.PlatformTwitter: true}
	}
	return &connectionUsecase{store: store, states: states, profiles: profiles, configs: configs, opts: opts, now: time.Now}
}

func (u *connectionUsecase) Connect(ctx context.Context, userID string, p model.Platform) (string, string, error) {
	cfg := u.configs[p]
	if cfg == nil {
		return "", "", fmt.Errorf("%s: %w", p, model.ErrOAuthNotConfigured)
	}
	state, err := newState()
	if err != nil {
		return "", "", err
	}
	entry := model.OAuthState{UserID: userID, Platform: p, CreatedAt: u.now().UTC()}
	opts := []oauth2.AuthCodeOption{oauth2.AccessTypeOffline}
	if p == model.PlatformYouTube {
		// Google only returns a refresh token on explicit consent.
		opts = append(opts, oauth2.ApprovalForce)
	}
	if u.opts.PKCE[p] {
		entry.Verifier = oauth2.GenerateVerifier()
		opts = append(opts, oauth2.S256ChallengeOption(entry.Verifier))
	}
	if err := u.states.Save(ctx, state, entry); err != nil {
		return "", "", fmt.Errorf("save oauth state: %w", err)
	}
	return cfg.AuthCodeURL(state, opts...), state, nil
}

func (u *connectionUsecase) CompleteAuth(ctx context.Context, p model.Platform, code, state string) (*model.CredentialSummary, error) {
	cfg := u.configs[p]
	if cfg == nil {
		return nil, fmt.Errorf("%s: %w", p, model.ErrOAuthNotConfigured)
	}
	if code == "" || state == "" {
		return nil, model.ErrInvalidState
	}
	entry, err := u.states.Consume(ctx, state)
	if err != nil {
		return nil, err
	}
	if entry.Platform != p {
		return nil, model.ErrInvalidState
	}

	callCtx, cancel := context.WithTimeout(ctx, u.opts.ExchangeTimeout)
	defer cancel()
	if u.opts.HTTPClient != nil {
		callCtx = context.WithValue(callCtx, oauth2.HTTPClient, u.opts.HTTPClient)
	}
	var opts []oauth2.AuthCodeOption
	if entry.Verifier != "" {
		opts = append(opts, oauth2.VerifierOption(entry.Verifier))
	}
	tok, err := cfg.Exchange(callCtx, code, opts...)
	if err != nil {
		logger.GetLogger().WithField("platform", p).WithError(err).Error("Code exchange failed")
		return nil, model.NewPublishError(model.KindCredentialExpired, p, "exchange", err)
	}

	cred := &model.Credential{
		UserID:       entry.UserID,
		Platform:     p,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Scope:        grantedScope(tok, cfg.Scopes),
		Metadata:     map[string]string{},
		Environment:  model.EnvironmentLive,
	}
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry.UTC()
		cred.ExpiresAt = &exp
	}
	if tt := tok.Type(); tt != "" {
		cred.Metadata[model.MetaTokenType] = tt
	}

	if u.profiles != nil {
		profile, err := u.profiles.Resolve(ctx, p, tok.AccessToken)
		if err != nil {
			return nil, fmt.Errorf("resolve %s profile: %w", p, err)
		}
		applyProfile(cred, profile)
	}

	if err := u.store.Upsert(ctx, cred); err != nil {
		return nil, fmt.Errorf("store credential: %w", err)
	}
	logger.GetLogger().WithFields(map[string]interface{}{
		"userId":   cred.UserID,
		"platform": p,
		"account":  cred.PlatformUserID,
		"token":    cred.MaskedAccessToken(),
	}).Info("Platform connected")
	s := summarize(cred)
	return &s, nil
}

// applyProfile copies the account data. Page scoped providers hand back a
// different access token which replaces the user token.
func applyProfile(cred *model.Credential, profile *model.Profile) {
	if profile == nil {
		return
	}
	cred.PlatformUserID = profile.PlatformUserID
	cred.DisplayName = profile.DisplayName
	for k, v := range profile.Metadata {
		cred.Metadata[k] = v
	}
	if profile.AccessToken != "" && profile.AccessToken != cred.AccessToken {
		cred.AccessToken = profile.AccessToken
	}
}

func (u *connectionUsecase) ConnectSimulated(ctx context.Context, userID string, p model.Platform) (*model.CredentialSummary, error) {
	token, err := newState()
	if err != nil {
		return nil, err
	}
	cred := &model.Credential{
		UserID:         userID,
		Platform:       p,
		PlatformUserID: "sim-" + string(p) + "-" + userID,
		DisplayName:    "Simulated " + p.DisplayName(),
		AccessToken:    "sim_" + token,
		Scope:          []string{"publish"},
		Metadata:       map[string]string{},
		Environment:    model.EnvironmentSimulated,
	}
	if err := u.store.Upsert(ctx, cred); err != nil {
		return nil, fmt.Errorf("store credential: %w", err)
	}
	s := summarize(cred)
	return &s, nil
}

func (u *connectionUsecase) Disconnect(ctx context.Context, userID string, p model.Platform) error {
	if err := u.store.Delete(ctx, userID, p); err != nil {
		return err
	}
	logger.GetLogger().WithFields(map[string]interface{}{"userId": userID, "platform": p}).Info("Platform disconnected")
	return nil
}

func (u *connectionUsecase) ListConnections(ctx context.Context, userID string) ([]model.CredentialSummary, error) {
	creds, err := u.store.ListActive(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]model.CredentialSummary, 0, len(creds))
	for _, c := range creds {
		out = append(out, summarize(c))
	}
	return out, nil
}

func summarize(c *model.Credential) model.CredentialSummary {
	return model.CredentialSummary{
		Platform:       c.Platform,
		PlatformUserID: c.PlatformUserID,
		DisplayName:    c.DisplayName,
		ExpiresAt:      c.ExpiresAt,
		Scope:          append([]string{}, c.Scope...),
		Environment:    c.Environment,
		CanRefresh:     c.RefreshToken != "",
		ConnectedAt:    c.CreatedAt,
	}
}

// grantedScope prefers the scope echoed by the provider.
func grantedScope(tok *oauth2.Token, requested []string) []string {
	if raw, ok := tok.Extra("scope").(string); ok && raw != "" {
		return model.SplitScope(raw)
	}
	return append([]string(nil), requested...)
}

func newState() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
