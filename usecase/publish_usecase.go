package usecase

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"social-publisher/domain/model"
	"social-publisher/domain/repository"
	"social-publisher/infrastructure/logger"

	"github.com/nrednav/cuid2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// AdapterSource picks the adapter for a platform and credential.
type AdapterSource interface {
	For(p model.Platform, cred *model.Credential) repository.IPublisher
}

// IPublishUsecase fans one asset out to many platforms.
type IPublishUsecase interface {
	// PublishAll returns one result per distinct requested platform, in
	// request order. Per-platform failures are reported in the results; the
	// error is only set for invalid input.
	PublishAll(ctx context.Context, userID string, asset *model.Asset, platforms []model.Platform) (*model.PublishReport, error)
	// PublishAsync validates the request and registers the run, so Progress
	// answers for the returned run id at once, then publishes in the
	// background. Cancelling ctx does not stop the run.
	PublishAsync(ctx context.Context, userID string, asset *model.Asset, platforms []model.Platform) (string, error)
	// Wait blocks until background runs have finished or ctx is done.
	Wait(ctx context.Context) error
	// PrepareCaptions fills per-platform captions from the content generation
	// service. Failures leave the asset unchanged.
	PrepareCaptions(ctx context.Context, asset *model.Asset, instruction string, platforms []model.Platform)
	Progress(userID, runID string) (*model.PublishProgress, bool)
	History(ctx context.Context, userID string, limit int64) ([]model.PublishReport, error)
}

type PublishOptions struct {
	MaxConcurrency int
	// RateLimits are outbound publish requests per second per platform.
	RateLimits   map[model.Platform]float64
	EventTimeout time.Duration
	// EventBuffer is the per-sink queue length.
	EventBuffer int
	// RunTimeout bounds a background run started by PublishAsync.
	RunTimeout time.Duration
}

type publishUsecase struct {
	store    repository.ICredential
	tokens   ITokenUsecase
	adapters AdapterSource
	tracker  *ProgressTracker
	events   *EventDispatcher
	history  repository.IPublishHistory
	captions repository.ICaptionGenerator
	limiters map[model.Platform]*rate.Limiter
	opts     PublishOptions
	newRunID func() string
	now      func() time.Time
	inflight sync.WaitGroup
}

// PublishDeps groups the optional collaborators of the orchestrator. Sinks
// are wrapped in an EventDispatcher unless Events is set.
type PublishDeps struct {
	Sinks    []repository.IPublishEventSink
	Events   *EventDispatcher
	History  repository.IPublishHistory
	Captions repository.ICaptionGenerator
	Tracker  *ProgressTracker
}

func NewPublishUsecase(store repository.ICredential, tokens ITokenUsecase, adapters AdapterSource, deps PublishDeps, opts PublishOptions) IPublishUsecase {
	if opts.EventTimeout <= 0 {
		opts.EventTimeout = 5 * time.Second
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = 30 * time.Minute
	}
	tracker := deps.Tracker
	if tracker == nil {
		tracker = NewProgressTracker(time.Hour)
	}
	events := deps.Events
	if events == nil && len(deps.Sinks) > 0 {
		events = NewEventDispatcher(deps.Sinks, opts.EventBuffer, opts.EventTimeout)
	}
	limiters := make(map[model.Platform]*rate.Limiter, len(opts.RateLimits))
	for p, perSecond := range opts.RateLimits {
		if perSecond > 0 {
			limiters[p] = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
	return &publishUsecase{
		store:    store,
		tokens:   tokens,
		adapters: adapters,
		tracker:  tracker,
		events:   events,
		history:  deps.History,
		captions: deps.Captions,
		limiters: limiters,
		opts:     opts,
		newRunID: newRunIDGenerator(),
		now:      time.Now,
	}
}

func newRunIDGenerator() func() string {
	gen, err := cuid2.Init(cuid2.WithLength(24))
	if err != nil {
		return cuid2.Generate
	}
	return gen
}

func (u *publishUsecase) PublishAll(ctx context.Context, userID string, asset *model.Asset, platforms []model.Platform) (*model.PublishReport, error) {
	report, platforms, err := u.begin(userID, asset, platforms)
	if err != nil {
		return nil, err
	}
	u.run(ctx, report, asset, platforms)
	return report, nil
}

func (u *publishUsecase) PublishAsync(ctx context.Context, userID string, asset *model.Asset, platforms []model.Platform) (string, error) {
	report, platforms, err := u.begin(userID, asset, platforms)
	if err != nil {
		return "", err
	}
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), u.opts.RunTimeout)
	u.inflight.Add(1)
	go func() {
		defer u.inflight.Done()
		defer cancel()
		u.run(runCtx, report, asset, platforms)
	}()
	return report.RunID, nil
}

func (u *publishUsecase) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		u.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// begin validates the request and registers the run with the tracker.
func (u *publishUsecase) begin(userID string, asset *model.Asset, platforms []model.Platform) (*model.PublishReport, []model.Platform, error) {
	if userID == "" {
		return nil, nil, errors.New("userID required")
	}
	if asset == nil {
		return nil, nil, errors.New("asset required")
	}
	platforms = dedupePlatforms(platforms)
	if len(platforms) == 0 {
		return nil, nil, errors.New("at least one platform required")
	}

	runID := u.newRunID()
	report := &model.PublishReport{
		RunID:     runID,
		UserID:    userID,
		AssetID:   asset.ID,
		AssetType: asset.Type,
		Results:   make([]model.UploadResult, len(platforms)),
		StartedAt: u.now().UTC(),
	}
	u.tracker.Start(runID, userID, platforms)
	return report, platforms, nil
}

func (u *publishUsecase) run(ctx context.Context, report *model.PublishReport, asset *model.Asset, platforms []model.Platform) {
	runID, userID := report.RunID, report.UserID
	log := logger.GetLogger().WithFields(map[string]interface{}{"runId": runID, "userId": userID, "assetType": asset.Type})
	log.WithField("platforms", platforms).Info("Publish started")

	g := new(errgroup.Group)
	if u.opts.MaxConcurrency > 0 {
		g.SetLimit(u.opts.MaxConcurrency)
	}
	for i, p := range platforms {
		job := model.NewUploadJob(runID, asset, p, u.now())
		if !model.IsCompatible(asset.Type, p) {
			u.finishJob(ctx, report, i, job, model.FailedResult(p, model.NewPublishError(model.KindIncompatibleAsset, p, "validate", nil)))
			continue
		}
		i := i
		g.Go(func() error {
			job.StartedAt = u.now()
			u.finishJob(ctx, report, i, job, u.runJob(ctx, runID, userID, job))
			return nil
		})
	}
	_ = g.Wait()

	report.FinishedAt = u.now().UTC()
	report.Tally()
	u.tracker.Finish(runID)
	log.WithFields(map[string]interface{}{"succeeded": report.Succeeded, "failed": report.Failed}).Info("Publish finished")

	u.afterRun(ctx, report)
}

// runJob never panics and never returns nil.
func (u *publishUsecase) runJob(ctx context.Context, runID, userID string, job *model.UploadJob) (res *model.UploadResult) {
	p, asset := job.Platform, job.Asset
	defer func() {
		if r := recover(); r != nil {
			logger.GetLogger().WithFields(map[string]interface{}{
				"runId":    runID,
				"platform": p,
				"panic":    r,
				"stack":    string(debug.Stack()),
			}).Error("Publish job panicked")
			res = model.FailedResult(p, model.NewPublishError(model.KindInternal, p, "publish", fmt.Errorf("panic: %v", r)))
		}
	}()

	if err := ctx.Err(); err != nil {
		return model.FailedResult(p, model.NewPublishError(model.KindCancelled, p, "publish", err))
	}

	cred, err := u.store.Get(ctx, userID, p)
	if err != nil {
		if errors.Is(err, model.ErrCredentialNotFound) {
			return model.FailedResult(p, model.NewPublishError(model.KindNotConnected, p, "credential", nil))
		}
		return u.failed(ctx, p, "credential", err)
	}

	progress := func(state model.UploadState, sent, total int64) {
		job.Advance(state, sent, total)
		if u.tracker.Update(runID, job) {
			u.emit(ctx, model.PublishEvent{Type: model.EventJobState, RunID: runID, UserID: userID, Platform: p, State: job.State, BytesSent: job.BytesSent, TotalBytes: job.TotalBytes, At: u.now().UTC()})
		}
	}

	cred, err = u.tokens.EnsureValid(ctx, cred)
	if err != nil {
		return u.failed(ctx, p, "credential", err)
	}
	job.Credential = cred

	if l := u.limiters[p]; l != nil && !cred.IsSimulated() {
		if err := l.Wait(ctx); err != nil {
			return model.FailedResult(p, model.NewPublishError(model.KindCancelled, p, "rate limit", err))
		}
	}

	adapter := u.adapters.For(p, cred)
	result, err := adapter.Publish(ctx, asset, cred, progress)
	if err != nil {
		return u.failed(ctx, p, "publish", err)
	}
	if result == nil {
		return model.FailedResult(p, model.NewPublishError(model.KindInternal, p, "publish", errors.New("adapter returned no result")))
	}
	return result
}

// failed converts an error into a result; once the caller has cancelled
// every failure reads as Cancelled.
func (u *publishUsecase) failed(ctx context.Context, p model.Platform, op string, err error) *model.UploadResult {
	if errors.Is(ctx.Err(), context.Canceled) && model.KindOf(err) != model.KindCancelled {
		err = model.NewPublishError(model.KindCancelled, p, op, err)
	}
	return model.FailedResult(p, err)
}

func (u *publishUsecase) finishJob(ctx context.Context, report *model.PublishReport, i int, job *model.UploadJob, res *model.UploadResult) {
	job.Complete(res)
	res.DurationMs = u.now().Sub(job.StartedAt).Milliseconds()
	report.Results[i] = *res
	u.tracker.Update(report.RunID, job)
	u.emit(ctx, model.PublishEvent{
		Type:       model.EventJobState,
		RunID:      report.RunID,
		UserID:     report.UserID,
		Platform:   res.Platform,
		State:      res.State,
		BytesSent:  res.BytesSent,
		TotalBytes: res.TotalBytes,
		At:         u.now().UTC(),
	})
	if !res.Success {
		logger.GetLogger().WithFields(map[string]interface{}{
			"runId":    report.RunID,
			"platform": res.Platform,
			"kind":     res.ErrorKind,
			"detail":   res.Detail,
		}).Warn("Publish job failed")
	}
}

func (u *publishUsecase) afterRun(ctx context.Context, report *model.PublishReport) {
	if u.history != nil {
		hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), u.opts.EventTimeout)
		if err := u.history.Save(hctx, report); err != nil {
			logger.GetLogger().WithField("runId", report.RunID).WithError(err).Warn("Saving publish history failed")
		}
		cancel()
	}
	u.emit(ctx, model.PublishEvent{Type: model.EventRunFinished, RunID: report.RunID, UserID: report.UserID, Report: report, At: report.FinishedAt})
}

// emit queues the event; it never waits for a sink.
func (u *publishUsecase) emit(_ context.Context, evt model.PublishEvent) {
	u.events.Dispatch(evt)
}

func (u *publishUsecase) PrepareCaptions(ctx context.Context, asset *model.Asset, instruction string, platforms []model.Platform) {
	if u.captions == nil || asset == nil || instruction == "" {
		return
	}
	captions, err := u.captions.Generate(ctx, instruction, dedupePlatforms(platforms))
	if err != nil {
		logger.GetLogger().WithError(err).Warn("Caption generation failed, using asset description")
		return
	}
	if asset.Captions == nil {
		asset.Captions = map[model.Platform]string{}
	}
	for p, c := range captions {
		if _, set := asset.Captions[p]; !set && c != "" {
			asset.Captions[p] = c
		}
	}
}

func (u *publishUsecase) Progress(userID, runID string) (*model.PublishProgress, bool) {
	return u.tracker.Snapshot(runID, userID)
}

func (u *publishUsecase) History(ctx context.Context, userID string, limit int64) ([]model.PublishReport, error) {
	if u.history == nil {
		return []model.PublishReport{}, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return u.history.ListRecent(ctx, userID, limit)
}

// dedupePlatforms keeps the first occurrence of each platform.
func dedupePlatforms(in []model.Platform) []model.Platform {
	seen := make(map[model.Platform]struct{}, len(in))
	out := make([]model.Platform, 0, len(in))
	for _, p := range in {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
