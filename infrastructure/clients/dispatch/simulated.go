package dispatch

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"

	"social-publisher/domain/model"
)

// SimulatedAdapter fakes a successful publish for simulated credentials. It
// never touches the network and returns the same id for the same asset.
type SimulatedAdapter struct {
	platform model.Platform
}

func NewSimulatedAdapter(p model.Platform) *SimulatedAdapter {
	return &SimulatedAdapter{platform: p}
}

func (a *SimulatedAdapter) Platform() model.Platform { return a.platform }

func (a *SimulatedAdapter) Publish(ctx context.Context, asset *model.Asset, cred *model.Credential, progress model.ProgressFunc) (*model.UploadResult, error) {
	if asset == nil || !model.IsCompatible(asset.Type, a.platform) {
		return nil, model.NewPublishError(model.KindIncompatibleAsset, a.platform, "validate", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, model.NewPublishError(model.KindCancelled, a.platform, "publish", err)
	}
	size := int64(len(asset.Data))
	if size == 0 {
		size = int64(len(asset.MediaURLs()))
	}
	progress.Report(model.StateInitiating, 0, size)
	progress.Report(model.StateTransferring, size, size)
	progress.Report(model.StateVerifying, size, size)

	sum := sha1.Sum([]byte(string(a.platform) + "|" + asset.ID + "|" + asset.SourceURL + "|" + asset.Title))
	id := "sim_" + hex.EncodeToString(sum[:6])
	res := model.SuccessResult(a.platform, id, fmt.Sprintf("https://simulated.local/%s/%s", a.platform, id))
	res.BytesSent, res.TotalBytes = size, size
	return res, nil
}
