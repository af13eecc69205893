package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"social-publisher/domain/model"
)

// CredentialRepository implements repository.ICredential on PostgreSQL.
type CredentialRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewCredentialRepository(db *sql.DB) *CredentialRepository {
	return &CredentialRepository{db: db, now: time.Now}
}

// EnsureCredentialSchema creates the social_credentials table if it does not exist.
func EnsureCredentialSchema(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ddl := `CREATE TABLE IF NOT EXISTS social_credentials (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	platform TEXT NOT NULL,
	platform_user_id TEXT NOT NULL DEFAULT '',
	display_name TEXT NOT NULL DEFAULT '',
	access_token TEXT NOT NULL DEFAULT '',
	refresh_token TEXT NOT NULL DEFAULT '',
	expires_at TIMESTAMPTZ NULL,
	scope TEXT NOT NULL DEFAULT '',
	metadata TEXT NOT NULL DEFAULT '{}',
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	environment TEXT NOT NULL DEFAULT 'live',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	UNIQUE (user_id, platform)
)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create social_credentials: %w", err)
	}
	return upgradeCredentialColumns(ctx, db)
}

func (r *CredentialRepository) Get(ctx context.Context, userID string, platform model.Platform) (*model.Credential, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+credentialColumns+` FROM social_credentials WHERE user_id=$1 AND platform=$2 AND is_active=TRUE`, userID, string(platform))
	c, err := scanCredential(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrCredentialNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get credential %s/%s: %w", userID, platform, err)
	}
	return c, nil
}

// Upsert relies on the (user_id, platform) unique key so concurrent writers
// for the same key are serialized by the database.
func (r *CredentialRepository) Upsert(ctx context.Context, c *model.Credential) error {
	prepareForUpsert(c, r.now())
	q := `INSERT INTO social_credentials (` + credentialColumns + `)
		  VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		  ON CONFLICT (user_id, platform) DO UPDATE SET
			platform_user_id=EXCLUDED.platform_user_id,
			display_name=EXCLUDED.display_name,
			access_token=EXCLUDED.access_token,
			refresh_token=EXCLUDED.refresh_token,
			expires_at=EXCLUDED.expires_at,
			scope=EXCLUDED.scope,
			metadata=EXCLUDED.metadata,
			is_active=TRUE,
			environment=EXCLUDED.environment,
			updated_at=EXCLUDED.updated_at
		  RETURNING id, created_at`
	row := r.db.QueryRowContext(ctx, q,
		c.ID, c.UserID, string(c.Platform), c.PlatformUserID, c.DisplayName,
		c.AccessToken, c.RefreshToken, nullTime(c), model.JoinScope(c.Scope),
		encodeMetadata(c.Metadata), true, string(c.Environment), c.CreatedAt, c.UpdatedAt)
	if err := row.Scan(&c.ID, &c.CreatedAt); err != nil {
		return fmt.Errorf("upsert credential %s/%s: %w", c.UserID, c.Platform, err)
	}
	return nil
}

func (r *CredentialRepository) UpdateTokens(ctx context.Context, c *model.Credential, prevRefreshToken string) error {
	c.UpdatedAt = r.now().UTC()
	res, err := r.db.ExecContext(ctx, `UPDATE social_credentials SET access_token=$3, refresh_token=$4, expires_at=$5, updated_at=$6
		  WHERE user_id=$1 AND platform=$2 AND is_active=TRUE AND refresh_token=$7`,
		c.UserID, string(c.Platform), c.AccessToken, c.RefreshToken, nullTime(c), c.UpdatedAt, prevRefreshToken)
	if err != nil {
		return fmt.Errorf("update tokens %s/%s: %w", c.UserID, c.Platform, err)
	}
	return requireAffected(res)
}

func (r *CredentialRepository) Delete(ctx context.Context, userID string, platform model.Platform) error {
	res, err := r.db.ExecContext(ctx, `UPDATE social_credentials SET is_active=FALSE, access_token='', refresh_token='', updated_at=$3 WHERE user_id=$1 AND platform=$2 AND is_active=TRUE`,
		userID, string(platform), r.now().UTC())
	if err != nil {
		return fmt.Errorf("delete credential %s/%s: %w", userID, platform, err)
	}
	return requireAffected(res)
}

func (r *CredentialRepository) ListActive(ctx context.Context, userID string) ([]*model.Credential, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+credentialColumns+` FROM social_credentials WHERE user_id=$1 AND is_active=TRUE ORDER BY platform`, userID)
	if err != nil {
		return nil, fmt.Errorf("list credentials %s: %w", userID, err)
	}
	defer rows.Close()
	var list []*model.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}
