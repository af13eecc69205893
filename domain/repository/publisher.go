package repository

import (
	"context"

	"social-publisher/domain/model"
)

// IPublisher is a platform upload adapter. Publish returns a result for
// handled outcomes and a *model.PublishError for failures.
type IPublisher interface {
	Platform() model.Platform
	Publish(ctx context.Context, asset *model.Asset, cred *model.Credential, progress model.ProgressFunc) (*model.UploadResult, error)
}

// IMediaFetcher resolves the bytes behind an asset.
type IMediaFetcher interface {
	Fetch(ctx context.Context, asset *model.Asset, maxBytes int64) (*model.Payload, error)
}

// IProfileResolver looks up the platform account behind a fresh token.
type IProfileResolver interface {
	Resolve(ctx context.Context, platform model.Platform, accessToken string) (*model.Profile, error)
}

// ICaptionGenerator is the upstream content generation service.
type ICaptionGenerator interface {
	Generate(ctx context.Context, instruction string, platforms []model.Platform) (map[model.Platform]string, error)
}
