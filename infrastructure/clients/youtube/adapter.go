package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"social-publisher/domain/model"
	"social-publisher/domain/repository"
	"social-publisher/infrastructure/clients/resumable"
	"social-publisher/infrastructure/logger"

	"google.golang.org/api/youtube/v3"
)

const (
	DefaultUploadURL = "https://www.googleapis.com/upload/youtube/v3/videos?uploadType=resumable&part=snippet,status"
	maxTitleRunes    = 100
	watchURL         = "https://www.youtube.com/watch?v=%s"
)

// Options configure the video adapter.
type Options struct {
	UploadURL     string
	PrivacyStatus string
	CategoryID    string
	MaxBytes      int64
}

// Adapter publishes videos through the YouTube resumable upload protocol.
type Adapter struct {
	engine  *resumable.Engine
	fetcher repository.IMediaFetcher
	opts    Options
}

func NewAdapter(engine *resumable.Engine, fetcher repository.IMediaFetcher, opts Options) *Adapter {
	if opts.UploadURL == "" {
		opts.UploadURL = DefaultUploadURL
	}
	if opts.PrivacyStatus == "" {
		opts.PrivacyStatus = "private"
	}
	if opts.CategoryID == "" {
		opts.CategoryID = "22"
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 256 << 30
	}
	return &Adapter{engine: engine, fetcher: fetcher, opts: opts}
}

func (a *Adapter) Platform() model.Platform { return model.PlatformYouTube }

func (a *Adapter) Publish(ctx context.Context, asset *model.Asset, cred *model.Credential, progress model.ProgressFunc) (*model.UploadResult, error) {
	p := model.PlatformYouTube
	if asset == nil || !model.IsCompatible(asset.Type, p) {
		return nil, model.NewPublishError(model.KindIncompatibleAsset, p, "validate", nil)
	}
	if cred == nil || cred.AccessToken == "" {
		return nil, model.NewPublishError(model.KindNotConnected, p, "validate", nil)
	}

	payload, err := a.fetcher.Fetch(ctx, asset, a.opts.MaxBytes)
	if err != nil {
		return nil, withPlatform(err, p)
	}
	defer payload.Close()

	meta, err := json.Marshal(a.videoResource(asset))
	if err != nil {
		return nil, model.NewPublishError(model.KindInternal, p, "metadata", err)
	}

	body, err := a.engine.Upload(ctx, resumable.Request{
		Platform:    p,
		InitURL:     a.opts.UploadURL,
		AccessToken: cred.AccessToken,
		Metadata:    meta,
		Payload:     payload,
		MaxBytes:    a.opts.MaxBytes,
		Progress:    progress,
	})
	if err != nil {
		return nil, err
	}

	progress.Report(model.StateVerifying, payload.Size, payload.Size)
	var video youtube.Video
	if err := json.Unmarshal(body, &video); err != nil || video.Id == "" {
		if err == nil {
			err = errors.New("response carries no video id")
		}
		return nil, model.NewPublishError(model.KindPublishFailed, p, "verify", err)
	}

	logger.GetLogger().WithFields(map[string]interface{}{
		"videoId": video.Id,
		"userId":  cred.UserID,
		"bytes":   payload.Size,
	}).Info("Video published to YouTube")

	res := model.SuccessResult(p, video.Id, fmt.Sprintf(watchURL, video.Id))
	res.BytesSent = payload.Size
	res.TotalBytes = payload.Size
	return res, nil
}

func (a *Adapter) videoResource(asset *model.Asset) *youtube.Video {
	return &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       Title(asset),
			Description: asset.CaptionFor(model.PlatformYouTube),
			Tags:        asset.Tags,
			CategoryId:  a.opts.CategoryID,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus: a.opts.PrivacyStatus,
		},
	}
}

// Title derives a valid video title: angle brackets removed, at most 100 runes.
func Title(asset *model.Asset) string {
	title := strings.TrimSpace(asset.Title)
	if title == "" {
		title = strings.TrimSpace(asset.CaptionFor(model.PlatformYouTube))
	}
	title = strings.NewReplacer("<", "", ">", "").Replace(title)
	title = strings.Join(strings.Fields(title), " ")
	if title == "" {
		title = "Video " + time.Now().UTC().Format("2006-01-02")
	}
	if utf8.RuneCountInString(title) > maxTitleRunes {
		title = string([]rune(title)[:maxTitleRunes])
	}
	return title
}

func withPlatform(err error, p model.Platform) error {
	var pe *model.PublishError
	if errors.As(err, &pe) && pe.Platform == "" {
		pe.Platform = p
	}
	return err
}
