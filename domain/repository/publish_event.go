package repository

import (
	"context"

	"social-publisher/domain/model"
)

// IPublishEventSink receives job and run events. Sinks are best effort.
type IPublishEventSink interface {
	Send(ctx context.Context, evt model.PublishEvent) error
}

// IPublishHistory stores finished run reports.
type IPublishHistory interface {
	Save(ctx context.Context, report *model.PublishReport) error
	ListRecent(ctx context.Context, userID string, limit int64) ([]model.PublishReport, error)
}

// IOAuthState stores the OAuth state parameter between connect and callback.
type IOAuthState interface {
	Save(ctx context.Context, state string, entry model.OAuthState) error
	// Consume returns the entry once and deletes it; model.ErrInvalidState when missing.
	Consume(ctx context.Context, state string) (*model.OAuthState, error)
}
