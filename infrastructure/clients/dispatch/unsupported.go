package dispatch

import (
	"context"

	"social-publisher/domain/model"
)

// UnsupportedAdapter answers for platforms without a publish integration.
type UnsupportedAdapter struct {
	platform model.Platform
}

func NewUnsupportedAdapter(p model.Platform) *UnsupportedAdapter {
	return &UnsupportedAdapter{platform: p}
}

func (a *UnsupportedAdapter) Platform() model.Platform { return a.platform }

func (a *UnsupportedAdapter) Publish(ctx context.Context, asset *model.Asset, cred *model.Credential, progress model.ProgressFunc) (*model.UploadResult, error) {
	if asset == nil || !model.IsCompatible(asset.Type, a.platform) {
		return nil, model.NewPublishError(model.KindIncompatibleAsset, a.platform, "validate", nil)
	}
	return nil, model.NewPublishError(model.KindPlatformUnsupported, a.platform, "publish", nil)
}
