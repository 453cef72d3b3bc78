package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	apikeydomain "github.com/smallbiznis/payrecon/internal/apikey/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() apikeydomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, key *apikeydomain.APIKey) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO api_keys (id, user_id, role, name, key_hash, is_active, last_used_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		key.ID,
		key.UserID,
		key.Role,
		key.Name,
		key.KeyHash,
		key.IsActive,
		key.LastUsedAt,
		key.CreatedAt,
	).Error
}

func (r *repo) FindActiveByHash(ctx context.Context, db *gorm.DB, hash string) (*apikeydomain.APIKey, error) {
	var key apikeydomain.APIKey
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, role, name, key_hash, is_active, last_used_at, created_at
		 FROM api_keys
		 WHERE key_hash = ? AND is_active = ?
		 LIMIT 1`,
		hash,
		true,
	).Scan(&key).Error
	if err != nil {
		return nil, err
	}
	if key.ID == 0 {
		return nil, apikeydomain.ErrNotFound
	}
	return &key, nil
}

func (r *repo) TouchLastUsed(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE api_keys SET last_used_at = ? WHERE id = ?`,
		at,
		id,
	).Error
}

func (r *repo) Deactivate(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	res := db.WithContext(ctx).Exec(
		`UPDATE api_keys SET is_active = ? WHERE id = ? AND is_active = ?`,
		false,
		id,
		true,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apikeydomain.ErrNotFound
	}
	return nil
}
