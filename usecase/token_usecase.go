package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"social-publisher/domain/model"
	"social-publisher/domain/repository"
	"social-publisher/infrastructure/logger"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// ITokenUsecase keeps credentials usable for outbound calls.
type ITokenUsecase interface {
	// EnsureValid returns a credential valid for at least the configured
	// minimum window, refreshing and persisting it when needed. The input
	// credential is never mutated.
	EnsureValid(ctx context.Context, cred *model.Credential) (*model.Credential, error)
}

type TokenOptions struct {
	MinValidity    time.Duration
	RefreshTimeout time.Duration
	// HTTPClient is used for token endpoint calls when set.
	HTTPClient *http.Client
}

type tokenUsecase struct {
	store   repository.ICredential
	configs map[model.Platform]*oauth2.Config
	opts    TokenOptions
	now     func() time.Time
	group   singleflight.Group
}

func NewTokenUsecase(store repository.ICredential, configs map[model.Platform]*oauth2.Config, opts TokenOptions) ITokenUsecase {
	if opts.MinValidity <= 0 {
		opts.MinValidity = 5 * time.Minute
	}
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = 15 * time.Second
	}
	return &tokenUsecase{store: store, configs: configs, opts: opts, now: time.Now}
}

func (u *tokenUsecase) EnsureValid(ctx context.Context, cred *model.Credential) (*model.Credential, error) {
	if cred == nil {
		return nil, model.NewPublishError(model.KindNotConnected, "", "ensure valid", nil)
	}
	if !u.needsRefresh(cred) {
		return cred, nil
	}
	p := cred.Platform
	if cred.RefreshToken == "" {
		return nil, model.NewPublishError(model.KindCredentialExpired, p, "refresh", errors.New("token expiring and no refresh token stored"))
	}
	cfg := u.configs[p]
	if cfg == nil {
		return nil, model.NewPublishError(model.KindCredentialExpired, p, "refresh", model.ErrOAuthNotConfigured)
	}

	// Concurrent runs for the same account share one refresh. It runs detached
	// from the first caller so one cancelled run does not fail the others.
	key := cred.UserID + "|" + string(p)
	ch := u.group.DoChan(key, func() (interface{}, error) {
		return u.refresh(context.WithoutCancel(ctx), cfg, cred)
	})
	select {
	case <-ctx.Done():
		return nil, model.NewPublishError(model.KindCancelled, p, "refresh", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*model.Credential).Clone(), nil
	}
}

func (u *tokenUsecase) needsRefresh(cred *model.Credential) bool {
	if cred.IsSimulated() || cred.ExpiresAt == nil {
		return false
	}
	return !cred.ExpiresAt.After(u.now().Add(u.opts.MinValidity))
}

func (u *tokenUsecase) refresh(ctx context.Context, cfg *oauth2.Config, cred *model.Credential) (*model.Credential, error) {
	p := cred.Platform
	log := logger.GetLogger().WithFields(map[string]interface{}{
		"userId":   cred.UserID,
		"platform": p,
		"token":    cred.MaskedAccessToken(),
	})

	callCtx, cancel := context.WithTimeout(ctx, u.opts.RefreshTimeout)
	defer cancel()
	if u.opts.HTTPClient != nil {
		callCtx = context.WithValue(callCtx, oauth2.HTTPClient, u.opts.HTTPClient)
	}
	tok, err := cfg.TokenSource(callCtx, &oauth2.Token{RefreshToken: cred.RefreshToken}).Token()
	if err != nil {
		pe := model.NewPublishError(model.KindCredentialExpired, p, "refresh", err)
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			pe.StatusCode = re.Response.StatusCode
		}
		log.WithError(err).Warn("Token refresh failed")
		return nil, pe
	}

	updated := cred.Clone()
	updated.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		updated.RefreshToken = tok.RefreshToken
	}
	if tok.Expiry.IsZero() {
		updated.ExpiresAt = nil
	} else {
		exp := tok.Expiry.UTC()
		updated.ExpiresAt = &exp
	}

	if err := u.persist(callCtx, updated, cred.RefreshToken); err != nil {
		if errors.Is(err, model.ErrCredentialNotFound) {
			log.Warn("Credential disconnected during refresh, dropping new tokens")
			return nil, model.NewPublishError(model.KindNotConnected, p, "persist", err)
		}
		log.WithError(err).Error("Refreshed token could not be stored")
		return nil, model.NewPublishError(model.KindCredentialExpired, p, "persist", err)
	}
	log.WithField("expiresAt", updated.ExpiresAt).Info("Token refreshed")
	return updated, nil
}

// persist retries the store write once. A credential that is no longer active
// is not retried.
func (u *tokenUsecase) persist(ctx context.Context, c *model.Credential, prevRefreshToken string) error {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		err = u.store.UpdateTokens(ctx, c, prevRefreshToken)
		if err == nil {
			return nil
		}
		if errors.Is(err, model.ErrCredentialNotFound) || ctx.Err() != nil {
			break
		}
	}
	return fmt.Errorf("store refreshed credential: %w", err)
}
