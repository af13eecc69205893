package usecase_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"social-publisher/domain/model"
	"social-publisher/infrastructure/persistence"
	"social-publisher/usecase"
)

type tokenServer struct {
	srv   *httptest.Server
	calls int32
}

func newTokenServer(t *testing.T, status int, body string) *tokenServer {
	ts := &tokenServer{}
	ts.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&ts.calls, 1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "client-id", r.PostForm.Get("client_id"))
		assert.Equal(t, "client-secret", r.PostForm.Get("client_secret"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *tokenServer) configs() map[model.Platform]*oauth2.Config {
	return map[model.Platform]*oauth2.Config{
		model.PlatformYouTube: {
			ClientID:     "client-id",
			ClientSecret: "client-secret",
			Endpoint:     oauth2.Endpoint{TokenURL: ts.srv.URL + "/token", AuthStyle: oauth2.AuthStyleInParams},
		},
	}
}

func expiringIn(d time.Duration, refresh string) *model.Credential {
	exp := time.Now().Add(d)
	return &model.Credential{
		ID:           "cred-1",
		UserID:       "user-1",
		Platform:     model.PlatformYouTube,
		AccessToken:  "old-access",
		RefreshToken: refresh,
		ExpiresAt:    &exp,
		Environment:  model.EnvironmentLive,
	}
}

func TestEnsureValid_UnchangedWithoutNetwork(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, `{}`)
	store := new(MockCredentialStore)
	u := usecase.NewTokenUsecase(store, ts.configs(), usecase.TokenOptions{})

	for name, cred := range map[string]*model.Credential{
		"far expiry": expiringIn(2*time.Hour, "r"),
		"no expiry":  {UserID: "user-1", Platform: model.PlatformYouTube, AccessToken: "a"},
		"simulated":  {UserID: "user-1", Platform: model.PlatformYouTube, AccessToken: "a", Environment: model.EnvironmentSimulated, ExpiresAt: &time.Time{}},
	} {
		t.Run(name, func(t *testing.T) {
			got, err := u.EnsureValid(context.Background(), cred)
			require.NoError(t, err)
			assert.Equal(t, cred, got)
		})
	}
	assert.Zero(t, atomic.LoadInt32(&ts.calls))
	store.AssertNotCalled(t, "UpdateTokens", mock.Anything, mock.Anything, mock.Anything)
}

func TestEnsureValid_RefreshesNearExpiry(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, `{"access_token":"new-access","token_type":"Bearer","expires_in":3600}`)
	store := new(MockCredentialStore)
	store.On("UpdateTokens", mock.Anything, mock.MatchedBy(func(c *model.Credential) bool {
		return c.AccessToken == "new-access" && c.RefreshToken == "refresh-1"
	}), "refresh-1").Return(nil).Once()

	u := usecase.NewTokenUsecase(store, ts.configs(), usecase.TokenOptions{})
	cred := expiringIn(2*time.Minute, "refresh-1")
	oldExpiry := *cred.ExpiresAt

	got, err := u.EnsureValid(context.Background(), cred)
	require.NoError(t, err)
	assert.Equal(t, "new-access", got.AccessToken)
	require.NotNil(t, got.ExpiresAt)
	assert.True(t, got.ExpiresAt.After(oldExpiry))
	assert.True(t, got.ExpiresAt.After(time.Now().Add(5*time.Minute)))

	// the caller's copy is untouched
	assert.Equal(t, "old-access", cred.AccessToken)
	assert.Equal(t, oldExpiry, *cred.ExpiresAt)
	assert.EqualValues(t, 1, atomic.LoadInt32(&ts.calls))
	store.AssertExpectations(t)
}

func TestEnsureValid_StoresRotatedRefreshToken(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, `{"access_token":"new","refresh_token":"rotated","expires_in":3600}`)
	store := new(MockCredentialStore)
	store.On("UpdateTokens", mock.Anything, mock.MatchedBy(func(c *model.Credential) bool { return c.RefreshToken == "rotated" }), "refresh-1").Return(nil)

	got, err := usecase.NewTokenUsecase(store, ts.configs(), usecase.TokenOptions{}).
		EnsureValid(context.Background(), expiringIn(-time.Minute, "refresh-1"))
	require.NoError(t, err)
	assert.Equal(t, "rotated", got.RefreshToken)
}

func TestEnsureValid_RefreshRejected(t *testing.T) {
	ts := newTokenServer(t, http.StatusBadRequest, `{"error":"invalid_grant"}`)
	store := new(MockCredentialStore)

	_, err := usecase.NewTokenUsecase(store, ts.configs(), usecase.TokenOptions{}).
		EnsureValid(context.Background(), expiringIn(time.Minute, "revoked"))
	require.ErrorIs(t, err, model.ErrCredentialExpired)
	var pe *model.PublishError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusBadRequest, pe.StatusCode)
	store.AssertNotCalled(t, "UpdateTokens", mock.Anything, mock.Anything, mock.Anything)
}

func TestEnsureValid_NoRefreshToken(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, `{}`)
	_, err := usecase.NewTokenUsecase(new(MockCredentialStore), ts.configs(), usecase.TokenOptions{}).
		EnsureValid(context.Background(), expiringIn(time.Minute, ""))
	require.ErrorIs(t, err, model.ErrCredentialExpired)
	assert.Zero(t, atomic.LoadInt32(&ts.calls))
}

func TestEnsureValid_NoOAuthClient(t *testing.T) {
	u := usecase.NewTokenUsecase(new(MockCredentialStore), map[model.Platform]*oauth2.Config{}, usecase.TokenOptions{})
	_, err := u.EnsureValid(context.Background(), expiringIn(time.Minute, "r"))
	require.ErrorIs(t, err, model.ErrCredentialExpired)
	require.ErrorIs(t, err, model.ErrOAuthNotConfigured)
}

func TestEnsureValid_StoreWriteRetriedOnce(t *testing.T) {
	body := `{"access_token":"new","expires_in":3600}`

	t.Run("second attempt succeeds", func(t *testing.T) {
		ts := newTokenServer(t, http.StatusOK, body)
		store := new(MockCredentialStore)
		store.On("UpdateTokens", mock.Anything, mock.Anything, "r").Return(errors.New("deadlock")).Once()
		store.On("UpdateTokens", mock.Anything, mock.Anything, "r").Return(nil).Once()

		got, err := usecase.NewTokenUsecase(store, ts.configs(), usecase.TokenOptions{}).
			EnsureValid(context.Background(), expiringIn(time.Minute, "r"))
		require.NoError(t, err)
		assert.Equal(t, "new", got.AccessToken)
		store.AssertNumberOfCalls(t, "UpdateTokens", 2)
	})

	t.Run("both attempts fail", func(t *testing.T) {
		ts := newTokenServer(t, http.StatusOK, body)
		store := new(MockCredentialStore)
		store.On("UpdateTokens", mock.Anything, mock.Anything, "r").Return(errors.New("db down"))

		_, err := usecase.NewTokenUsecase(store, ts.configs(), usecase.TokenOptions{}).
			EnsureValid(context.Background(), expiringIn(time.Minute, "r"))
		require.ErrorIs(t, err, model.ErrCredentialExpired)
		store.AssertNumberOfCalls(t, "UpdateTokens", 2)
	})
}

func TestEnsureValid_DisconnectedDuringRefresh(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, `{"access_token":"new","refresh_token":"rotated","expires_in":3600}`)
	store := persistence.NewMemoryCredentialRepository()
	ctx := context.Background()
	require.NoError(t, store.Upsert(ctx, expiringIn(time.Minute, "refresh-1")))

	inFlight, err := store.Get(ctx, "user-1", model.PlatformYouTube)
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, "user-1", model.PlatformYouTube))

	_, err = usecase.NewTokenUsecase(store, ts.configs(), usecase.TokenOptions{}).EnsureValid(ctx, inFlight)
	require.ErrorIs(t, err, model.ErrNotConnected)

	_, err = store.Get(ctx, "user-1", model.PlatformYouTube)
	require.ErrorIs(t, err, model.ErrCredentialNotFound)
	list, err := store.ListActive(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestEnsureValid_ReconnectedDuringRefresh(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, `{"access_token":"stale","expires_in":3600}`)
	store := persistence.NewMemoryCredentialRepository()
	ctx := context.Background()
	require.NoError(t, store.Upsert(ctx, expiringIn(time.Minute, "refresh-1")))
	inFlight, err := store.Get(ctx, "user-1", model.PlatformYouTube)
	require.NoError(t, err)

	fresh := expiringIn(time.Hour, "refresh-2")
	fresh.AccessToken = "fresh"
	require.NoError(t, store.Upsert(ctx, fresh))

	_, err = usecase.NewTokenUsecase(store, ts.configs(), usecase.TokenOptions{}).EnsureValid(ctx, inFlight)
	require.ErrorIs(t, err, model.ErrNotConnected)

	got, err := store.Get(ctx, "user-1", model.PlatformYouTube)
	require.NoError(t, err)
	assert.Equal(t, "fresh", got.AccessToken)
}

func TestEnsureValid_SharedRefreshSurvivesCallerCancel(t *testing.T) {
	release := make(chan struct{})
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		<-release
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"new","expires_in":3600}`))
	}))
	t.Cleanup(srv.Close)
	configs := map[model.Platform]*oauth2.Config{
		model.PlatformYouTube: {ClientID: "client-id", Endpoint: oauth2.Endpoint{TokenURL: srv.URL, AuthStyle: oauth2.AuthStyleInParams}},
	}
	store := new(MockCredentialStore)
	store.On("UpdateTokens", mock.Anything, mock.Anything, "r").Return(nil).Once()
	u := usecase.NewTokenUsecase(store, configs, usecase.TokenOptions{})

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := u.EnsureValid(firstCtx, expiringIn(time.Minute, "r"))
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, 5*time.Millisecond)

	secondDone := make(chan *model.Credential, 1)
	go func() {
		got, err := u.EnsureValid(context.Background(), expiringIn(time.Minute, "r"))
		assert.NoError(t, err)
		secondDone <- got
	}()
	// give the second caller time to join the in-flight refresh
	time.Sleep(50 * time.Millisecond)

	cancelFirst()
	require.ErrorIs(t, <-firstErr, model.ErrCancelled)

	close(release)
	select {
	case got := <-secondDone:
		require.NotNil(t, got)
		assert.Equal(t, "new", got.AccessToken)
	case <-time.After(2 * time.Second):
		t.Fatal("second caller never completed")
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}
