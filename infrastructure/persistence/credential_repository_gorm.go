package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"social-publisher/domain/model"
	"social-publisher/infrastructure/configuration"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// credentialRecord is the gorm mapping of social_credentials.
type credentialRecord struct {
	ID             string     `gorm:"column:id;primaryKey;size:64"`
	UserID         string     `gorm:"column:user_id;size:128;uniqueIndex:ux_user_platform"`
	Platform       string     `gorm:"column:platform;size:32;uniqueIndex:ux_user_platform"`
	PlatformUserID string     `gorm:"column:platform_user_id;size:255"`
	DisplayName    string     `gorm:"column:display_name;size:255"`
	AccessToken    string     `gorm:"column:access_token;type:text"`
	RefreshToken   string     `gorm:"column:refresh_token;type:text"`
	ExpiresAt      *time.Time `gorm:"column:expires_at"`
	Scope          string     `gorm:"column:scope;type:text"`
	Metadata       string     `gorm:"column:metadata;type:text"`
	IsActive       bool       `gorm:"column:is_active"`
	Environment    string     `gorm:"column:environment;size:16"`
	CreatedAt      time.Time  `gorm:"column:created_at"`
	UpdatedAt      time.Time  `gorm:"column:updated_at"`
}

func (credentialRecord) TableName() string { return "social_credentials" }

func toRecord(c *model.Credential) *credentialRecord {
	return &credentialRecord{
		ID:             c.ID,
		UserID:         c.UserID,
		Platform:       string(c.Platform),
		PlatformUserID: c.PlatformUserID,
		DisplayName:    c.DisplayName,
		AccessToken:    c.AccessToken,
		RefreshToken:   c.RefreshToken,
		ExpiresAt:      c.ExpiresAt,
		Scope:          model.JoinScope(c.Scope),
		Metadata:       encodeMetadata(c.Metadata),
		IsActive:       c.IsActive,
		Environment:    string(c.Environment),
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}

func (r *credentialRecord) toModel() *model.Credential {
	return &model.Credential{
		ID:             r.ID,
		UserID:         r.UserID,
		Platform:       model.Platform(r.Platform),
		PlatformUserID: r.PlatformUserID,
		DisplayName:    r.DisplayName,
		AccessToken:    r.AccessToken,
		RefreshToken:   r.RefreshToken,
		ExpiresAt:      r.ExpiresAt,
		Scope:          model.SplitScope(r.Scope),
		Metadata:       decodeMetadata(r.Metadata),
		IsActive:       r.IsActive,
		Environment:    model.Environment(r.Environment),
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

// NewMySQLDB opens the MySQL database configured under database.mysql through gorm.
func NewMySQLDB() (*gorm.DB, error) {
	cfg := configuration.C.Database.MySql
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name)
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := configurePool(sqlDB, configuration.C.Database.Pool); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping mysql %s: %w", cfg.Host, err)
	}
	return db, nil
}

// CredentialRepositoryGorm implements repository.ICredential on MySQL via gorm.
type CredentialRepositoryGorm struct {
	db  *gorm.DB
	now func() time.Time
}

func NewCredentialRepositoryGorm(db *gorm.DB) *CredentialRepositoryGorm {
	return &CredentialRepositoryGorm{
		db:  db.Session(&gorm.Session{SkipDefaultTransaction: true}),
		now: time.Now,
	}
}

// EnsureCredentialSchemaGorm migrates social_credentials.
func EnsureCredentialSchemaGorm(db *gorm.DB) error {
	if err := db.AutoMigrate(&credentialRecord{}); err != nil {
		return fmt.Errorf("migrate social_credentials (mysql): %w", err)
	}
	return nil
}

func (r *CredentialRepositoryGorm) Get(ctx context.Context, userID string, platform model.Platform) (*model.Credential, error) {
	var rec credentialRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND platform = ? AND is_active = ?", userID, string(platform), true).
		Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, model.ErrCredentialNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get credential %s/%s (mysql): %w", userID, platform, err)
	}
	return rec.toModel(), nil
}

func (r *CredentialRepositoryGorm) Upsert(ctx context.Context, c *model.Credential) error {
	prepareForUpsert(c, r.now())
	rec := toRecord(c)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "platform"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"platform_user_id", "display_name", "access_token", "refresh_token",
				"expires_at", "scope", "metadata", "is_active", "environment", "updated_at",
			}),
		}).Create(rec).Error; err != nil {
			return err
		}
		// ON DUPLICATE KEY keeps the original id, read it back.
		var stored credentialRecord
		if err := tx.Select("id", "created_at").
			Where("user_id = ? AND platform = ?", rec.UserID, rec.Platform).
			Take(&stored).Error; err != nil {
			return err
		}
		c.ID = stored.ID
		c.CreatedAt = stored.CreatedAt
		return nil
	})
	if err != nil {
		return fmt.Errorf("upsert credential %s/%s (mysql): %w", c.UserID, c.Platform, err)
	}
	return nil
}

func (r *CredentialRepositoryGorm) UpdateTokens(ctx context.Context, c *model.Credential, prevRefreshToken string) error {
	c.UpdatedAt = r.now().UTC()
	res := r.db.WithContext(ctx).Model(&credentialRecord{}).
		Where("user_id = ? AND platform = ? AND is_active = ? AND refresh_token = ?", c.UserID, string(c.Platform), true, prevRefreshToken).
		Updates(map[string]interface{}{
			"access_token":  c.AccessToken,
			"refresh_token": c.RefreshToken,
			"expires_at":    c.ExpiresAt,
			"updated_at":    c.UpdatedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("update tokens %s/%s (mysql): %w", c.UserID, c.Platform, res.Error)
	}
	if res.RowsAffected == 0 {
		return model.ErrCredentialNotFound
	}
	return nil
}

func (r *CredentialRepositoryGorm) Delete(ctx context.Context, userID string, platform model.Platform) error {
	res := r.db.WithContext(ctx).Model(&credentialRecord{}).
		Where("user_id = ? AND platform = ? AND is_active = ?", userID, string(platform), true).
		Updates(map[string]interface{}{
			"is_active":     false,
			"access_token":  "",
			"refresh_token": "",
			"updated_at":    r.now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("delete credential %s/%s (mysql): %w", userID, platform, res.Error)
	}
	if res.RowsAffected == 0 {
		return model.ErrCredentialNotFound
	}
	return nil
}

func (r *CredentialRepositoryGorm) ListActive(ctx context.Context, userID string) ([]*model.Credential, error) {
	var recs []credentialRecord
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("platform").
		Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list credentials %s (mysql): %w", userID, err)
	}
	out := make([]*model.Credential, 0, len(recs))
	for i := range recs {
		out = append(out, recs[i].toModel())
	}
	return out, nil
}
