package usecase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-publisher/domain/model"
)

func TestProgressTracker_Update(t *testing.T) {
	tr := NewProgressTracker(time.Minute)
	tr.Start("run1", "u1", []model.Platform{model.PlatformYouTube, model.PlatformFacebook})
	job := model.NewUploadJob("run1", &model.Asset{Type: model.AssetVideo}, model.PlatformYouTube, time.Now())

	job.Advance(model.StateTransferring, 0, 100)
	assert.True(t, tr.Update("run1", job))
	assert.False(t, tr.Update("run1", job))
	job.Advance(model.StateTransferring, 50, 100)
	assert.True(t, tr.Update("run1", job))

	job.Complete(model.SuccessResult(model.PlatformYouTube, "v1", "https://youtu.be/v1"))
	assert.True(t, tr.Update("run1", job))
	// terminal states stick
	job.State = model.StateFailed
	assert.False(t, tr.Update("run1", job))

	other := model.NewUploadJob("run1", nil, model.PlatformTwitter, time.Now())
	assert.False(t, tr.Update("run1", other))
	assert.False(t, tr.Update("missing", job))

	snap, ok := tr.Snapshot("run1", "u1")
	require.True(t, ok)
	assert.Equal(t, model.StateSucceeded, snap.Jobs[0].State)
	assert.Equal(t, int64(50), snap.Jobs[0].BytesSent)
	assert.Equal(t, "https://youtu.be/v1", snap.Jobs[0].ResultURL)
	assert.Equal(t, []model.Platform{model.PlatformFacebook}, snap.InFlight)
	assert.False(t, snap.Done)

	_, ok = tr.Snapshot("run1", "someone-else")
	assert.False(t, ok)
}

func TestProgressTracker_EvictsFinishedRuns(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	tr := NewProgressTracker(time.Minute)
	tr.now = func() time.Time { return now }

	tr.Start("old", "u1", []model.Platform{model.PlatformYouTube})
	tr.Finish("old")
	tr.Start("running", "u1", []model.Platform{model.PlatformYouTube})

	now = now.Add(2 * time.Minute)
	tr.Start("new", "u1", []model.Platform{model.PlatformFacebook})

	_, ok := tr.Snapshot("old", "u1")
	assert.False(t, ok)
	_, ok = tr.Snapshot("running", "u1")
	assert.True(t, ok)
	snap, ok := tr.Snapshot("new", "u1")
	require.True(t, ok)
	assert.Equal(t, []model.Platform{model.PlatformFacebook}, snap.InFlight)
}
