package persistence

import (
	"context"
	"database/sql"
	"fmt"
)

type columnCheck struct {
	column string
	ddl    string
}

// Columns added to social_credentials after its first release. Tables created by
// older deployments get them on startup.
var credentialUpgrades = []columnCheck{
	{"environment", "ALTER TABLE social_credentials ADD COLUMN environment TEXT NOT NULL DEFAULT 'live'"},
	{"display_name", "ALTER TABLE social_credentials ADD COLUMN display_name TEXT NOT NULL DEFAULT ''"},
}

var credentialUpgradesMSSQL = []columnCheck{
	{"environment", "ALTER TABLE dbo.[social_credentials] ADD environment NVARCHAR(16) NOT NULL DEFAULT 'live'"},
	{"display_name", "ALTER TABLE dbo.[social_credentials] ADD display_name NVARCHAR(255) NOT NULL DEFAULT ''"},
}

func upgradeCredentialColumns(ctx context.Context, db *sql.DB) error {
	for _, c := range credentialUpgrades {
		exists, err := columnExists(ctx, db, "social_credentials", c.column)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if _, err := db.ExecContext(ctx, c.ddl); err != nil {
			return fmt.Errorf("adding column social_credentials.%s failed: %w", c.column, err)
		}
	}
	return nil
}

func columnExists(ctx context.Context, db *sql.DB, table, column string) (bool, error) {
	row := db.QueryRowContext(ctx, `SELECT 1 FROM information_schema.columns WHERE table_name=$1 AND column_name=$2`, table, column)
	var one int
	if err := row.Scan(&one); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// SQL Server has no IF NOT EXISTS for columns, so the check runs server side via COL_LENGTH.
func upgradeCredentialColumnsMSSQL(ctx context.Context, db *sql.DB) error {
	for _, c := range credentialUpgradesMSSQL {
		q := fmt.Sprintf(`IF COL_LENGTH('dbo.social_credentials', '%s') IS NULL BEGIN %s END`, c.column, c.ddl)
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure column social_credentials.%s: %w", c.column, err)
		}
	}
	return nil
}
