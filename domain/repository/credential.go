package repository

import (
	"context"

	"social-publisher/domain/model"
)

// ICredential is the durable (userID, platform) -> Credential store.
// Implementations enforce uniqueness on (userID, platform) and serialize
// writes to the same key.
type ICredential interface {
	// Get returns the active credential or model.ErrCredentialNotFound.
	Get(ctx context.Context, userID string, platform model.Platform) (*model.Credential, error)
	// Upsert inserts or replaces the credential for (UserID, Platform) and marks it active.
	Upsert(ctx context.Context, cred *model.Credential) error
	// UpdateTokens stores refreshed tokens on the active credential that still
	// holds prevRefreshToken. It never reactivates a row and returns
	// model.ErrCredentialNotFound when the credential was disconnected or
	// replaced in the meantime.
	UpdateTokens(ctx context.Context, cred *model.Credential, prevRefreshToken string) error
	// Delete soft-deletes the credential and clears its tokens.
	Delete(ctx context.Context, userID string, platform model.Platform) error
	// ListActive returns every active credential of the user.
	ListActive(ctx context.Context, userID string) ([]*model.Credential, error)
}
