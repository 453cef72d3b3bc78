package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// APIKey authenticates one user against the payments API.
type APIKey struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	UserID     int64        `gorm:"column:user_id;not null;index"`
	Role       string       `gorm:"type:text;not null;default:'user'"`
	Name       string       `gorm:"type:text;not null"`
	KeyHash    string       `gorm:"column:key_hash;type:text;not null;uniqueIndex"`
	IsActive   bool         `gorm:"column:is_active;not null;default:true"`
	LastUsedAt *time.Time   `gorm:"column:last_used_at"`
	CreatedAt  time.Time    `gorm:"not null"`
}

func (APIKey) TableName() string { return "api_keys" }

// Principal is the authenticated caller of a request.
type Principal struct {
	KeyID  snowflake.ID
	UserID int64
	Role   string
}

// HashAPIKey is the lookup key for a presented secret; api_keys stores only
// this digest.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
