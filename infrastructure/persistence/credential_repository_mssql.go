package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"social-publisher/domain/model"
)

// CredentialRepositoryMSSQL implements repository.ICredential on SQL Server / Azure SQL.
type CredentialRepositoryMSSQL struct {
	db  *sql.DB
	now func() time.Time
}

func NewCredentialRepositoryMSSQL(db *sql.DB) *CredentialRepositoryMSSQL {
	return &CredentialRepositoryMSSQL{db: db, now: time.Now}
}

// EnsureCredentialSchemaMSSQL creates the social_credentials table for SQL Server if it does not exist.
func EnsureCredentialSchemaMSSQL(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ddl := `IF NOT EXISTS (SELECT * FROM sys.objects WHERE object_id = OBJECT_ID(N'dbo.social_credentials') AND type in (N'U'))
BEGIN
    CREATE TABLE dbo.[social_credentials] (
        id NVARCHAR(64) NOT NULL PRIMARY KEY,
        user_id NVARCHAR(128) NOT NULL,
        platform NVARCHAR(32) NOT NULL,
        platform_user_id NVARCHAR(255) NOT NULL DEFAULT '',
        display_name NVARCHAR(255) NOT NULL DEFAULT '',
        access_token NVARCHAR(MAX) NOT NULL DEFAULT '',
        refresh_token NVARCHAR(MAX) NOT NULL DEFAULT '',
        expires_at DATETIME2 NULL,
        scope NVARCHAR(MAX) NOT NULL DEFAULT '',
        metadata NVARCHAR(MAX) NOT NULL DEFAULT '{}',
        is_active BIT NOT NULL DEFAULT 1,
        environment NVARCHAR(16) NOT NULL DEFAULT 'live',
        created_at DATETIME2 NOT NULL,
        updated_at DATETIME2 NOT NULL
    );
    CREATE UNIQUE INDEX UX_social_credentials_user_platform ON dbo.[social_credentials](user_id, platform);
END`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create social_credentials (mssql): %w", err)
	}
	return upgradeCredentialColumnsMSSQL(ctx, db)
}

func (r *CredentialRepositoryMSSQL) Get(ctx context.Context, userID string, platform model.Platform) (*model.Credential, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+credentialColumns+` FROM dbo.[social_credentials] WHERE user_id=@p1 AND platform=@p2 AND is_active=1`, userID, string(platform))
	c, err := scanCredential(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrCredentialNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get credential %s/%s (mssql): %w", userID, platform, err)
	}
	return c, nil
}

// Upsert uses MERGE with HOLDLOCK so two writers for one key cannot both insert.
func (r *CredentialRepositoryMSSQL) Upsert(ctx context.Context, c *model.Credential) error {
	prepareForUpsert(c, r.now())
	q := `MERGE dbo.[social_credentials] WITH (HOLDLOCK) AS target
USING (VALUES (@p2, @p3)) AS src(user_id, platform)
ON target.user_id = src.user_id AND target.platform = src.platform
WHEN MATCHED THEN UPDATE SET
    platform_user_id=@p4,
    display_name=@p5,
    access_token=@p6,
    refresh_token=@p7,
    expires_at=@p8,
    scope=@p9,
    metadata=@p10,
    is_active=1,
    environment=@p12,
    updated_at=@p14
WHEN NOT MATCHED THEN
    INSERT (` + credentialColumns + `)
    VALUES (@p1,@p2,@p3,@p4,@p5,@p6,@p7,@p8,@p9,@p10,@p11,@p12,@p13,@p14)
OUTPUT inserted.id, inserted.created_at;`
	row := r.db.QueryRowContext(ctx, q,
		c.ID, c.UserID, string(c.Platform), c.PlatformUserID, c.DisplayName,
		c.AccessToken, c.RefreshToken, nullTime(c), model.JoinScope(c.Scope),
		encodeMetadata(c.Metadata), true, string(c.Environment), c.CreatedAt, c.UpdatedAt)
	if err := row.Scan(&c.ID, &c.CreatedAt); err != nil {
		return fmt.Errorf("upsert credential %s/%s (mssql): %w", c.UserID, c.Platform, err)
	}
	return nil
}

func (r *CredentialRepositoryMSSQL) UpdateTokens(ctx context.Context, c *model.Credential, prevRefreshToken string) error {
	c.UpdatedAt = r.now().UTC()
	res, err := r.db.ExecContext(ctx, `UPDATE dbo.[social_credentials] SET access_token=@p3, refresh_token=@p4, expires_at=@p5, updated_at=@p6
WHERE user_id=@p1 AND platform=@p2 AND is_active=1 AND refresh_token=@p7`,
		c.UserID, string(c.Platform), c.AccessToken, c.RefreshToken, nullTime(c), c.UpdatedAt, prevRefreshToken)
	if err != nil {
		return fmt.Errorf("update tokens %s/%s (mssql): %w", c.UserID, c.Platform, err)
	}
	return requireAffected(res)
}

func (r *CredentialRepositoryMSSQL) Delete(ctx context.Context, userID string, platform model.Platform) error {
	res, err := r.db.ExecContext(ctx, `UPDATE dbo.[social_credentials] SET is_active=0, access_token='', refresh_token='', updated_at=@p3 WHERE user_id=@p1 AND platform=@p2 AND is_active=1`,
		userID, string(platform), r.now().UTC())
	if err != nil {
		return fmt.Errorf("delete credential %s/%s (mssql): %w", userID, platform, err)
	}
	return requireAffected(res)
}

func (r *CredentialRepositoryMSSQL) ListActive(ctx context.Context, userID string) ([]*model.Credential, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+credentialColumns+` FROM dbo.[social_credentials] WHERE user_id=@p1 AND is_active=1 ORDER BY platform`, userID)
	if err != nil {
		return nil, fmt.Errorf("list credentials %s (mssql): %w", userID, err)
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
