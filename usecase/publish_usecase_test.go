package usecase_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"social-publisher/domain/model"
	"social-publisher/domain/repository"
	"social-publisher/usecase"
)

type stubAdapter struct {
	platform model.Platform
	calls    int32
	publish  func(ctx context.Context, asset *model.Asset, cred *model.Credential, progress model.ProgressFunc) (*model.UploadResult, error)
}

func (a *stubAdapter) Platform() model.Platform { return a.platform }

func (a *stubAdapter) Publish(ctx context.Context, asset *model.Asset, cred *model.Credential, progress model.ProgressFunc) (*model.UploadResult, error) {
	atomic.AddInt32(&a.calls, 1)
	if a.publish != nil {
		return a.publish(ctx, asset, cred, progress)
	}
	progress.Report(model.StateTransferring, 10, 10)
	return model.SuccessResult(a.platform, "remote-"+string(a.platform), "https://example.com/"+string(a.platform)), nil
}

func (a *stubAdapter) Calls() int { return int(atomic.LoadInt32(&a.calls)) }

type stubSource map[model.Platform]*stubAdapter

func (s stubSource) For(p model.Platform, _ *model.Credential) repository.IPublisher {
	return s[p]
}

// passTokens returns credentials unchanged.
type passTokens struct{ err map[model.Platform]error }

func (t passTokens) EnsureValid(_ context.Context, cred *model.Credential) (*model.Credential, error) {
	if err := t.err[cred.Platform]; err != nil {
		return nil, err
	}
	return cred, nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []model.PublishEvent
}

func (s *recordingSink) Send(_ context.Context, evt model.PublishEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	return nil
}

func (s *recordingSink) ofType(t string) []model.PublishEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.PublishEvent
	for _, e := range s.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func liveCred(userID string, p model.Platform) *model.Credential {
	return &model.Credential{ID: "c-" + string(p), UserID: userID, Platform: p, AccessToken: "tok", IsActive: true, Environment: model.EnvironmentLive}
}

func TestPublishAll_IncompatiblePlatformSkipsCredentialLookup(t *testing.T) {
	store := new(MockCredentialStore)
	store.On("Get", mock.Anything, "u1", model.PlatformYouTube).Return(liveCred("u1", model.PlatformYouTube), nil)
	yt := &stubAdapter{platform: model.PlatformYouTube}
	ig := &stubAdapter{platform: model.PlatformInstagram}

	uc := usecase.NewPublishUsecase(store, passTokens{}, stubSource{model.PlatformYouTube: yt, model.PlatformInstagram: ig}, usecase.PublishDeps{}, usecase.PublishOptions{})
	report, err := uc.PublishAll(context.Background(), "u1", &model.Asset{ID: "a1", Type: model.AssetVideo}, []model.Platform{model.PlatformYouTube, model.PlatformInstagram})
	require.NoError(t, err)
	require.Len(t, report.Results, 2)

	assert.True(t, report.Results[0].Success)
	assert.Equal(t, model.PlatformYouTube, report.Results[0].Platform)
	assert.Equal(t, model.PlatformInstagram, report.Results[1].Platform)
	assert.Equal(t, model.KindIncompatibleAsset, report.Results[1].ErrorKind)
	assert.Equal(t, model.StateFailed, report.Results[1].State)
	assert.Equal(t, 1, yt.Calls())
	assert.Zero(t, ig.Calls())
	store.AssertNotCalled(t, "Get", mock.Anything, "u1", model.PlatformInstagram)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
}

func TestPublishAll_NotConnected(t *testing.T) {
	store := new(MockCredentialStore)
	store.On("Get", mock.Anything, "u1", model.PlatformFacebook).Return(nil, model.ErrCredentialNotFound)
	fb := &stubAdapter{platform: model.PlatformFacebook}

	uc := usecase.NewPublishUsecase(store, passTokens{}, stubSource{model.PlatformFacebook: fb}, usecase.PublishDeps{}, usecase.PublishOptions{})
	report, err := uc.PublishAll(context.Background(), "u1", &model.Asset{Type: model.AssetContent, Description: "hi"}, []model.Platform{model.PlatformFacebook})
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.False(t, report.Results[0].Success)
	assert.Equal(t, model.KindNotConnected, report.Results[0].ErrorKind)
	assert.NotEmpty(t, report.Results[0].Message)
	assert.Zero(t, fb.Calls())
}

func TestPublishAll_OneFailingAdapterDoesNotAffectOthers(t *testing.T) {
	store := new(MockCredentialStore)
	for _, p := range []model.Platform{model.PlatformTwitter, model.PlatformLinkedIn, model.PlatformFacebook} {
		store.On("Get", mock.Anything, "u1", p).Return(liveCred("u1", p), nil)
	}
	tw := &stubAdapter{platform: model.PlatformTwitter}
	li := &stubAdapter{platform: model.PlatformLinkedIn, publish: func(context.Context, *model.Asset, *model.Credential, model.ProgressFunc) (*model.UploadResult, error) {
		return nil, model.NewPublishError(model.KindPublishFailed, model.PlatformLinkedIn, "post", errors.New("boom"))
	}}
	fb := &stubAdapter{platform: model.PlatformFacebook}

	uc := usecase.NewPublishUsecase(store, passTokens{}, stubSource{model.PlatformTwitter: tw, model.PlatformLinkedIn: li, model.PlatformFacebook: fb}, usecase.PublishDeps{}, usecase.PublishOptions{MaxConcurrency: 2})
	report, err := uc.PublishAll(context.Background(), "u1", &model.Asset{Type: model.AssetContent, Description: "hello"},
		[]model.Platform{model.PlatformTwitter, model.PlatformLinkedIn, model.PlatformFacebook})
	require.NoError(t, err)
	require.Len(t, report.Results, 3)
	assert.Equal(t, model.PlatformTwitter, report.Results[0].Platform)
	assert.Equal(t, model.PlatformLinkedIn, report.Results[1].Platform)
	assert.Equal(t, model.PlatformFacebook, report.Results[2].Platform)
	assert.True(t, report.Results[0].Success)
	assert.False(t, report.Results[1].Success)
	assert.Equal(t, model.KindPublishFailed, report.Results[1].ErrorKind)
	assert.True(t, report.Results[2].Success)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
}

func TestPublishAll_PanicBecomesInternalResult(t *testing.T) {
	store := new(MockCredentialStore)
	store.On("Get", mock.Anything, "u1", model.PlatformFacebook).Return(liveCred("u1", model.PlatformFacebook), nil)
	store.On("Get", mock.Anything, "u1", model.PlatformInstagram).Return(liveCred("u1", model.PlatformInstagram), nil)
	fb := &stubAdapter{platform: model.PlatformFacebook, publish: func(context.Context, *model.Asset, *model.Credential, model.ProgressFunc) (*model.UploadResult, error) {
		panic("nil map")
	}}
	ig := &stubAdapter{platform: model.PlatformInstagram}

	uc := usecase.NewPublishUsecase(store, passTokens{}, stubSource{model.PlatformFacebook: fb, model.PlatformInstagram: ig}, usecase.PublishDeps{}, usecase.PublishOptions{})
	report, err := uc.PublishAll(context.Background(), "u1", &model.Asset{Type: model.AssetImage, SourceURL: "https://cdn/x.png"},
		[]model.Platform{model.PlatformFacebook, model.PlatformInstagram})
	require.NoError(t, err)
	assert.Equal(t, model.KindInternal, report.Results[0].ErrorKind)
	assert.True(t, report.Results[1].Success)
}

func TestPublishAll_DuplicatePlatformsCollapsed(t *testing.T) {
	store := new(MockCredentialStore)
	store.On("Get", mock.Anything, "u1", model.PlatformFacebook).Return(liveCred("u1", model.PlatformFacebook), nil)
	store.On("Get", mock.Anything, "u1", model.PlatformTwitter).Return(liveCred("u1", model.PlatformTwitter), nil)
	fb := &stubAdapter{platform: model.PlatformFacebook}
	tw := &stubAdapter{platform: model.PlatformTwitter}

	uc := usecase.NewPublishUsecase(store, passTokens{}, stubSource{model.PlatformFacebook: fb, model.PlatformTwitter: tw}, usecase.PublishDeps{}, usecase.PublishOptions{})
	report, err := uc.PublishAll(context.Background(), "u1", &model.Asset{Type: model.AssetContent, Description: "x"},
		[]model.Platform{model.PlatformFacebook, model.PlatformTwitter, model.PlatformFacebook})
	require.NoError(t, err)
	require.Len(t, report.Results, 2)
	assert.Equal(t, model.PlatformFacebook, report.Results[0].Platform)
	assert.Equal(t, model.PlatformTwitter, report.Results[1].Platform)
	assert.Equal(t, 1, fb.Calls())
}

func TestPublishAll_TokenFailureIsPerPlatform(t *testing.T) {
	store := new(MockCredentialStore)
	store.On("Get", mock.Anything, "u1", model.PlatformFacebook).Return(liveCred("u1", model.PlatformFacebook), nil)
	store.On("Get", mock.Anything, "u1", model.PlatformTwitter).Return(liveCred("u1", model.PlatformTwitter), nil)
	fb := &stubAdapter{platform: model.PlatformFacebook}
	tw := &stubAdapter{platform: model.PlatformTwitter}
	tokens := passTokens{err: map[model.Platform]error{
		model.PlatformTwitter: model.NewPublishError(model.KindCredentialExpired, model.PlatformTwitter, "refresh", nil),
	}}

	uc := usecase.NewPublishUsecase(store, tokens, stubSource{model.PlatformFacebook: fb, model.PlatformTwitter: tw}, usecase.PublishDeps{}, usecase.PublishOptions{})
	report, err := uc.PublishAll(context.Background(), "u1", &model.Asset{Type: model.AssetContent, Description: "x"},
		[]model.Platform{model.PlatformFacebook, model.PlatformTwitter})
	require.NoError(t, err)
	assert.True(t, report.Results[0].Success)
	assert.Equal(t, model.KindCredentialExpired, report.Results[1].ErrorKind)
	assert.Zero(t, tw.Calls())
}

func TestPublishAll_CancelledBeforeStart(t *testing.T) {
	store := new(MockCredentialStore)
	fb := &stubAdapter{platform: model.PlatformFacebook}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	uc := usecase.NewPublishUsecase(store, passTokens{}, stubSource{model.PlatformFacebook: fb}, usecase.PublishDeps{}, usecase.PublishOptions{})
	report, err := uc.PublishAll(ctx, "u1", &model.Asset{Type: model.AssetContent, Description: "x"}, []model.Platform{model.PlatformFacebook})
	require.NoError(t, err)
	assert.Equal(t, model.KindCancelled, report.Results[0].ErrorKind)
	assert.Equal(t, model.StateFailed, report.Results[0].State)
	assert.Zero(t, fb.Calls())
}

func TestPublishAll_CancelledDuringUpload(t *testing.T) {
	store := new(MockCredentialStore)
	store.On("Get", mock.Anything, "u1", model.PlatformYouTube).Return(liveCred("u1", model.PlatformYouTube), nil)
	ctx, cancel := context.WithCancel(context.Background())
	yt := &stubAdapter{platform: model.PlatformYouTube, publish: func(ctx context.Context, _ *model.Asset, _ *model.Credential, _ model.ProgressFunc) (*model.UploadResult, error) {
		cancel()
		<-ctx.Done()
		return nil, model.NewPublishError(model.KindChunkUploadFailed, model.PlatformYouTube, "chunk", ctx.Err())
	}}

	uc := usecase.NewPublishUsecase(store, passTokens{}, stubSource{model.PlatformYouTube: yt}, usecase.PublishDeps{}, usecase.PublishOptions{})
	report, err := uc.PublishAll(ctx, "u1", &model.Asset{Type: model.AssetVideo}, []model.Platform{model.PlatformYouTube})
	require.NoError(t, err)
	assert.Equal(t, model.KindCancelled, report.Results[0].ErrorKind)
}

func TestPublishAll_HistoryAndEvents(t *testing.T) {
	store := new(MockCredentialStore)
	store.On("Get", mock.Anything, "u1", model.PlatformFacebook).Return(liveCred("u1", model.PlatformFacebook), nil)
	history := new(MockHistory)
	history.On("Save", mock.Anything, mock.AnythingOfType("*model.PublishReport")).Return(errors.New("mongo down"))
	sink := &recordingSink{}

	uc := usecase.NewPublishUsecase(store, passTokens{}, stubSource{model.PlatformFacebook: {platform: model.PlatformFacebook}},
		usecase.PublishDeps{History: history, Sinks: []repository.IPublishEventSink{sink}}, usecase.PublishOptions{})
	report, err := uc.PublishAll(context.Background(), "u1", &model.Asset{Type: model.AssetContent, Description: "x"}, []model.Platform{model.PlatformFacebook})
	require.NoError(t, err)
	assert.True(t, report.Results[0].Success)
	history.AssertExpectations(t)

	require.Eventually(t, func() bool { return len(sink.ofType(model.EventRunFinished)) == 1 }, time.Second, 5*time.Millisecond)
	finished := sink.ofType(model.EventRunFinished)
	assert.Equal(t, report.RunID, finished[0].RunID)
	assert.Same(t, report, finished[0].Report)

	states := sink.ofType(model.EventJobState)
	require.NotEmpty(t, states)
	assert.Equal(t, model.StateTransferring, states[0].State)
	assert.Equal(t, model.StateSucceeded, states[len(states)-1].State)
}

func TestPublishAll_ProgressSnapshotIsOwnerOnly(t *testing.T) {
	store := new(MockCredentialStore)
	store.On("Get", mock.Anything, "u1", model.PlatformFacebook).Return(liveCred("u1", model.PlatformFacebook), nil)

	uc := usecase.NewPublishUsecase(store, passTokens{}, stubSource{model.PlatformFacebook: {platform: model.PlatformFacebook}}, usecase.PublishDeps{}, usecase.PublishOptions{})
	report, err := uc.PublishAll(context.Background(), "u1", &model.Asset{Type: model.AssetContent, Description: "x"}, []model.Platform{model.PlatformFacebook})
	require.NoError(t, err)
	require.NotEmpty(t, report.RunID)

	progress, ok := uc.Progress("u1", report.RunID)
	require.True(t, ok)
	assert.True(t, progress.Done)
	assert.Empty(t, progress.InFlight)
	require.Len(t, progress.Jobs, 1)
	assert.Equal(t, model.StateSucceeded, progress.Jobs[0].State)
	assert.Equal(t, int64(10), progress.Jobs[0].BytesSent)

	_, ok = uc.Progress("someone-else", report.RunID)
	assert.False(t, ok)
}

func TestPublishAsync_RunIDVisibleBeforeRunFinishes(t *testing.T) {
	store := new(MockCredentialStore)
	store.On("Get", mock.Anything, "u1", model.PlatformFacebook).Return(liveCred("u1", model.PlatformFacebook), nil)
	release := make(chan struct{})
	fb := &stubAdapter{platform: model.PlatformFacebook, publish: func(ctx context.Context, _ *model.Asset, _ *model.Credential, progress model.ProgressFunc) (*model.UploadResult, error) {
		progress.Report(model.StateTransferring, 4, 10)
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return model.SuccessResult(model.PlatformFacebook, "p1", "https://facebook.com/p1"), nil
	}}
	history := new(MockHistory)
	history.On("Save", mock.Anything, mock.Anything).Return(nil)

	uc := usecase.NewPublishUsecase(store, passTokens{}, stubSource{model.PlatformFacebook: fb}, usecase.PublishDeps{History: history}, usecase.PublishOptions{})
	reqCtx, cancelReq := context.WithCancel(context.Background())
	runID, err := uc.PublishAsync(reqCtx, "u1", &model.Asset{Type: model.AssetContent, Description: "x"}, []model.Platform{model.PlatformFacebook})
	require.NoError(t, err)
	require.NotEmpty(t, runID)
	// the HTTP request ends right after the 202
	cancelReq()

	progress, ok := uc.Progress("u1", runID)
	require.True(t, ok)
	assert.False(t, progress.Done)
	require.Eventually(t, func() bool {
		p, _ := uc.Progress("u1", runID)
		return p.Jobs[0].BytesSent == 4
	}, time.Second, 5*time.Millisecond)

	close(release)
	waitCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, uc.Wait(waitCtx))

	progress, ok = uc.Progress("u1", runID)
	require.True(t, ok)
	assert.True(t, progress.Done)
	assert.Equal(t, model.StateSucceeded, progress.Jobs[0].State)
	assert.Equal(t, "https://facebook.com/p1", progress.Jobs[0].ResultURL)
	history.AssertCalled(t, "Save", mock.Anything, mock.MatchedBy(func(r *model.PublishReport) bool {
		return r.RunID == runID && r.Succeeded == 1
	}))
}

func TestPublishAsync_InvalidInputFailsFast(t *testing.T) {
	uc := usecase.NewPublishUsecase(new(MockCredentialStore), passTokens{}, stubSource{}, usecase.PublishDeps{}, usecase.PublishOptions{})
	runID, err := uc.PublishAsync(context.Background(), "u1", &model.Asset{Type: model.AssetContent}, nil)
	assert.Error(t, err)
	assert.Empty(t, runID)
	assert.NoError(t, uc.Wait(context.Background()))
}

func TestPublishAsync_WaitHonoursDeadline(t *testing.T) {
	store := new(MockCredentialStore)
	store.On("Get", mock.Anything, "u1", model.PlatformFacebook).Return(liveCred("u1", model.PlatformFacebook), nil)
	release := make(chan struct{})
	defer close(release)
	fb := &stubAdapter{platform: model.PlatformFacebook, publish: func(context.Context, *model.Asset, *model.Credential, model.ProgressFunc) (*model.UploadResult, error) {
		<-release
		return model.SuccessResult(model.PlatformFacebook, "p1", ""), nil
	}}

	uc := usecase.NewPublishUsecase(store, passTokens{}, stubSource{model.PlatformFacebook: fb}, usecase.PublishDeps{}, usecase.PublishOptions{})
	_, err := uc.PublishAsync(context.Background(), "u1", &model.Asset{Type: model.AssetContent, Description: "x"}, []model.Platform{model.PlatformFacebook})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, uc.Wait(ctx), context.DeadlineExceeded)
}

func TestPublishAll_RateLimitedPlatformWaits(t *testing.T) {
	store := new(MockCredentialStore)
	store.On("Get", mock.Anything, "u1", model.PlatformFacebook).Return(liveCred("u1", model.PlatformFacebook), nil)

	uc := usecase.NewPublishUsecase(store, passTokens{}, stubSource{model.PlatformFacebook: {platform: model.PlatformFacebook}}, usecase.PublishDeps{},
		usecase.PublishOptions{RateLimits: map[model.Platform]float64{model.PlatformFacebook: 20}})
	asset := &model.Asset{Type: model.AssetContent, Description: "x"}
	start := time.Now()
	for i := 0; i < 3; i++ {
		report, err := uc.PublishAll(context.Background(), "u1", asset, []model.Platform{model.PlatformFacebook})
		require.NoError(t, err)
		require.True(t, report.Results[0].Success)
	}
	// burst of one at 20/s: the 2nd and 3rd wait ~50ms each
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestPublishAll_InvalidInput(t *testing.T) {
	uc := usecase.NewPublishUsecase(new(MockCredentialStore), passTokens{}, stubSource{}, usecase.PublishDeps{}, usecase.PublishOptions{})
	_, err := uc.PublishAll(context.Background(), "", &model.Asset{Type: model.AssetContent}, []model.Platform{model.PlatformFacebook})
	assert.Error(t, err)
	_, err = uc.PublishAll(context.Background(), "u1", nil, []model.Platform{model.PlatformFacebook})
	assert.Error(t, err)
	_, err = uc.PublishAll(context.Background(), "u1", &model.Asset{Type: model.AssetContent}, nil)
	assert.Error(t, err)
}

func TestPrepareCaptions(t *testing.T) {
	gen := new(MockCaptionGenerator)
	platforms := []model.Platform{model.PlatformFacebook, model.PlatformTwitter}
	gen.On("Generate", mock.Anything, "launch post", platforms).Return(map[model.Platform]string{
		model.PlatformFacebook: "fb caption",
		model.PlatformTwitter:  "tw caption",
	}, nil)

	uc := usecase.NewPublishUsecase(new(MockCredentialStore), passTokens{}, stubSource{}, usecase.PublishDeps{Captions: gen}, usecase.PublishOptions{})
	asset := &model.Asset{Type: model.AssetContent, Captions: map[model.Platform]string{model.PlatformTwitter: "kept"}}
	uc.PrepareCaptions(context.Background(), asset, "launch post", platforms)

	assert.Equal(t, "fb caption", asset.Captions[model.PlatformFacebook])
	assert.Equal(t, "kept", asset.Captions[model.PlatformTwitter])
}

func TestPrepareCaptions_FailureLeavesAsset(t *testing.T) {
	gen := new(MockCaptionGenerator)
	gen.On("Generate", mock.Anything, "x", mock.Anything).Return(nil, errors.New("timeout"))

	uc := usecase.NewPublishUsecase(new(MockCredentialStore), passTokens{}, stubSource{}, usecase.PublishDeps{Captions: gen}, usecase.PublishOptions{})
	asset := &model.Asset{Type: model.AssetContent, Description: "d"}
	uc.PrepareCaptions(context.Background(), asset, "x", []model.Platform{model.PlatformFacebook})
	assert.Nil(t, asset.Captions)
}

func TestHistory_DefaultsLimit(t *testing.T) {
	history := new(MockHistory)
	history.On("ListRecent", mock.Anything, "u1", int64(20)).Return([]model.PublishReport{{RunID: "r1"}}, nil)

	uc := usecase.NewPublishUsecase(new(MockCredentialStore), passTokens{}, stubSource{}, usecase.PublishDeps{History: history}, usecase.PublishOptions{})
	reports, err := uc.History(context.Background(), "u1", 0)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "r1", reports[0].RunID)
}
