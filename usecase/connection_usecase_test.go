package usecase_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"social-publisher/domain/model"
	"social-publisher/infrastructure/cache"
	"social-publisher/usecase"
)

func exchangeServer(t *testing.T, body string, check func(form url.Values)) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		if check != nil {
			check(r.PostForm)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func oauthConfig(p model.Platform, tokenURL string) map[model.Platform]*oauth2.Config {
	return map[model.Platform]*oauth2.Config{
		p: {
			ClientID:     "client-id",
			ClientSecret: "client-secret",
			RedirectURL:  "http://localhost/auth/" + string(p) + "/callback",
			Scopes:       []string{"a", "b"},
			Endpoint:     oauth2.Endpoint{AuthURL: "https://provider.test/auth", TokenURL: tokenURL, AuthStyle: oauth2.AuthStyleInParams},
		},
	}
}

func TestConnect_ReturnsAuthURLWithState(t *testing.T) {
	states := cache.NewMemoryOAuthState(time.Minute)
	uc := usecase.NewConnectionUsecase(new(MockCredentialStore), states, nil, oauthConfig(model.PlatformYouTube, "http://unused"), usecase.ConnectionOptions{})

	authURL, state, err := uc.Connect(context.Background(), "u1", model.PlatformYouTube)
	require.NoError(t, err)
	require.NotEmpty(t, state)

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	q := parsed.Query()
	assert.Equal(t, state, q.Get("state"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "consent", q.Get("prompt"))
	assert.Empty(t, q.Get("code_challenge"))

	entry, err := states.Consume(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, "u1", entry.UserID)
}

func TestConnect_NotConfigured(t *testing.T) {
	uc := usecase.NewConnectionUsecase(new(MockCredentialStore), cache.NewMemoryOAuthState(0), nil, nil, usecase.ConnectionOptions{})
	_, _, err := uc.Connect(context.Background(), "u1", model.PlatformTikTok)
	assert.ErrorIs(t, err, model.ErrOAuthNotConfigured)
}

func TestCompleteAuth_StoresCredentialWithProfile(t *testing.T) {
	srv := exchangeServer(t, `{"access_token":"user-token","refresh_token":"r1","expires_in":3600,"token_type":"Bearer"}`, func(form url.Values) {
		assert.Equal(t, "the-code", form.Get("code"))
		assert.Equal(t, "client-id", form.Get("client_id"))
	})
	states := cache.NewMemoryOAuthState(time.Minute)
	store := new(MockCredentialStore)
	profiles := new(MockProfileResolver)
	profiles.On("Resolve", mock.Anything, model.PlatformFacebook, "user-token").Return(&model.Profile{
		PlatformUserID: "page-1",
		DisplayName:    "My Page",
		AccessToken:    "page-token",
		Metadata:       map[string]string{model.MetaPageID: "page-1"},
	}, nil)
	store.On("Upsert", mock.Anything, mock.MatchedBy(func(c *model.Credential) bool {
		return c.UserID == "u1" &&
			c.Platform == model.PlatformFacebook &&
			c.AccessToken == "page-token" &&
			c.RefreshToken == "r1" &&
			c.ExpiresAt != nil &&
			c.Meta(model.MetaPageID) == "page-1" &&
			c.Environment == model.EnvironmentLive
	})).Return(nil)

	uc := usecase.NewConnectionUsecase(store, states, profiles, oauthConfig(model.PlatformFacebook, srv.URL), usecase.ConnectionOptions{})
	_, state, err := uc.Connect(context.Background(), "u1", model.PlatformFacebook)
	require.NoError(t, err)

	summary, err := uc.CompleteAuth(context.Background(), model.PlatformFacebook, "the-code", state)
	require.NoError(t, err)
	assert.Equal(t, "My Page", summary.DisplayName)
	assert.True(t, summary.CanRefresh)
	assert.Equal(t, []string{"a", "b"}, summary.Scope)
	store.AssertExpectations(t)

	// state is single use
	_, err = uc.CompleteAuth(context.Background(), model.PlatformFacebook, "the-code", state)
	assert.ErrorIs(t, err, model.ErrInvalidState)
}

func TestCompleteAuth_PKCEVerifierSent(t *testing.T) {
	var verifier string
	srv := exchangeServer(t, `{"access_token":"t","token_type":"bearer","scope":"tweet.read tweet.write"}`, func(form url.Values) {
		verifier = form.Get("code_verifier")
	})
	store := new(MockCredentialStore)
	store.On("Upsert", mock.Anything, mock.Anything).Return(nil)

	uc := usecase.NewConnectionUsecase(store, cache.NewMemoryOAuthState(time.Minute), nil, oauthConfig(model.PlatformTwitter, srv.URL), usecase.ConnectionOptions{})
	authURL, state, err := uc.Connect(context.Background(), "u1", model.PlatformTwitter)
	require.NoError(t, err)
	assert.Contains(t, authURL, "code_challenge_method=S256")

	summary, err := uc.CompleteAuth(context.Background(), model.PlatformTwitter, "c", state)
	require.NoError(t, err)
	assert.NotEmpty(t, verifier)
	assert.Equal(t, []string{"tweet.read", "tweet.write"}, summary.Scope)
	assert.Nil(t, summary.ExpiresAt)
}

func TestCompleteAuth_StateForOtherPlatform(t *testing.T) {
	states := cache.NewMemoryOAuthState(time.Minute)
	require.NoError(t, states.Save(context.Background(), "s1", model.OAuthState{UserID: "u1", Platform: model.PlatformYouTube}))
	uc := usecase.NewConnectionUsecase(new(MockCredentialStore), states, nil, oauthConfig(model.PlatformFacebook, "http://unused"), usecase.ConnectionOptions{})

	_, err := uc.CompleteAuth(context.Background(), model.PlatformFacebook, "code", "s1")
	assert.ErrorIs(t, err, model.ErrInvalidState)
}

func TestCompleteAuth_ExchangeRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer srv.Close()
	states := cache.NewMemoryOAuthState(time.Minute)
	require.NoError(t, states.Save(context.Background(), "s1", model.OAuthState{UserID: "u1", Platform: model.PlatformLinkedIn}))
	store := new(MockCredentialStore)

	uc := usecase.NewConnectionUsecase(store, states, nil, oauthConfig(model.PlatformLinkedIn, srv.URL), usecase.ConnectionOptions{})
	_, err := uc.CompleteAuth(context.Background(), model.PlatformLinkedIn, "code", "s1")
	assert.ErrorIs(t, err, model.ErrCredentialExpired)
	store.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}

func TestConnectSimulated(t *testing.T) {
	store := new(MockCredentialStore)
	store.On("Upsert", mock.Anything, mock.MatchedBy(func(c *model.Credential) bool {
		return c.IsSimulated() && c.UserID == "u1" && c.Platform == model.PlatformInstagram && c.RefreshToken == "" && c.ExpiresAt == nil
	})).Return(nil)

	uc := usecase.NewConnectionUsecase(store, cache.NewMemoryOAuthState(0), nil, nil, usecase.ConnectionOptions{})
	summary, err := uc.ConnectSimulated(context.Background(), "u1", model.PlatformInstagram)
	require.NoError(t, err)
	assert.Equal(t, model.EnvironmentSimulated, summary.Environment)
	store.AssertExpectations(t)
}

func TestDisconnect(t *testing.T) {
	store := new(MockCredentialStore)
	store.On("Delete", mock.Anything, "u1", model.PlatformYouTube).Return(nil)
	store.On("Delete", mock.Anything, "u1", model.PlatformTikTok).Return(model.ErrCredentialNotFound)
	store.On("Delete", mock.Anything, "u1", model.PlatformFacebook).Return(errors.New("db down"))

	uc := usecase.NewConnectionUsecase(store, cache.NewMemoryOAuthState(0), nil, nil, usecase.ConnectionOptions{})
	assert.NoError(t, uc.Disconnect(context.Background(), "u1", model.PlatformYouTube))
	assert.ErrorIs(t, uc.Disconnect(context.Background(), "u1", model.PlatformTikTok), model.ErrCredentialNotFound)
	assert.EqualError(t, uc.Disconnect(context.Background(), "u1", model.PlatformFacebook), "db down")
}

func TestListConnections(t *testing.T) {
	store := new(MockCredentialStore)
	store.On("ListActive", mock.Anything, "u1").Return([]*model.Credential{
		{Platform: model.PlatformFacebook, DisplayName: "Page", RefreshToken: "r", Scope: []string{"x"}},
		{Platform: model.PlatformYouTube, DisplayName: "Channel"},
	}, nil)

	uc := usecase.NewConnectionUsecase(store, cache.NewMemoryOAuthState(0), nil, nil, usecase.ConnectionOptions{})
	got, err := uc.ListConnections(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].CanRefresh)
	assert.False(t, got[1].CanRefresh)
	assert.Equal(t, []string{}, got[1].Scope)
}
