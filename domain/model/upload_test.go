package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUploadJob_Lifecycle(t *testing.T) {
	started := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	job := NewUploadJob("run1", &Asset{ID: "a1", Type: AssetVideo}, PlatformYouTube, started)
	assert.Equal(t, "run1:youtube", job.ID)
	assert.Equal(t, StatePending, job.State)

	job.Credential = &Credential{AccessToken: "secret"}
	job.Advance(StateTransferring, 40, 100)
	job.Advance(StateTransferring, 20, 0)
	assert.Equal(t, int64(40), job.BytesSent)
	assert.Equal(t, int64(100), job.TotalBytes)

	res := SuccessResult(PlatformYouTube, "v1", "https://youtu.be/v1")
	job.Complete(res)
	assert.Equal(t, StateSucceeded, job.State)
	assert.Equal(t, "https://youtu.be/v1", job.ResultURL)
	assert.Nil(t, job.Credential)
	assert.Equal(t, int64(40), res.BytesSent)
	assert.Equal(t, int64(100), res.TotalBytes)

	job.Advance(StateTransferring, 100, 100)
	assert.Equal(t, StateSucceeded, job.State)

	p := job.Progress(started)
	assert.Equal(t, PlatformYouTube, p.Platform)
	assert.Equal(t, "https://youtu.be/v1", p.ResultURL)
}

func TestUploadJob_CompleteFailure(t *testing.T) {
	job := NewUploadJob("run1", nil, PlatformInstagram, time.Now())
	res := FailedResult(PlatformInstagram, NewPublishError(KindPublishFailed, PlatformInstagram, "media_publish", errors.New("boom")))
	job.Complete(res)
	assert.Equal(t, StateFailed, job.State)
	assert.Equal(t, StateFailed, res.State)
	assert.Contains(t, job.ErrorDetail, "boom")
	assert.Empty(t, job.ResultURL)
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", MaskSecret(""))
	assert.Equal(t, "****", MaskSecret("short"))
	assert.Equal(t, "o****", MaskSecret("old-access"))
	assert.Equal(t, "EAAB****", MaskSecret("EAABwzLixnjYBO1234567890abcdefghijklmnop"))
}
