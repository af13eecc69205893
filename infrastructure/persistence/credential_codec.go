package persistence

import (
	"database/sql"
	"encoding/json"
	"time"

	"social-publisher/domain/model"

	"github.com/google/uuid"
)

const credentialColumns = `id, user_id, platform, platform_user_id, display_name, access_token, refresh_token, expires_at, scope, metadata, is_active, environment, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanCredential reads one row selected with credentialColumns.
func scanCredential(row rowScanner) (*model.Credential, error) {
	c := &model.Credential{}
	var platform, scope, metadata, environment string
	var exp sql.NullTime
	if err := row.Scan(&c.ID, &c.UserID, &platform, &c.PlatformUserID, &c.DisplayName, &c.AccessToken, &c.RefreshToken, &exp, &scope, &metadata, &c.IsActive, &environment, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Platform = model.Platform(platform)
	c.Environment = model.Environment(environment)
	if exp.Valid {
		t := exp.Time
		c.ExpiresAt = &t
	}
	c.Scope = model.SplitScope(scope)
	c.Metadata = decodeMetadata(metadata)
	return c, nil
}

func encodeMetadata(m map[string]string) string {
	if len(m) == 0 {
		return "{}"
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func decodeMetadata(raw string) map[string]string {
	out := map[string]string{}
	if raw == "" {
		return out
	}
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}

func nullTime(c *model.Credential) sql.NullTime {
	if c.ExpiresAt == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: c.ExpiresAt.UTC(), Valid: true}
}

// requireAffected maps an update that matched no row to ErrCredentialNotFound.
func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrCredentialNotFound
	}
	return nil
}

// prepareForUpsert fills ids, defaults and timestamps.
func prepareForUpsert(c *model.Credential, now time.Time) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Environment == "" {
		c.Environment = model.EnvironmentLive
	}
	now = now.UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	c.IsActive = true
}
