package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, key *APIKey) error
	FindActiveByHash(ctx context.Context, db *gorm.DB, hash string) (*APIKey, error)
	TouchLastUsed(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
	Deactivate(ctx context.Context, db *gorm.DB, id snowflake.ID) error
}

type Service interface {
	Authenticate(ctx context.Context, raw string) (Principal, error)
	Create(ctx context.Context, req CreateRequest) (*SecretResponse, error)
	Revoke(ctx context.Context, id snowflake.ID) error
}

type CreateRequest struct {
	UserID int64
	Role   string
	Name   string
}

type SecretResponse struct {
	ID     snowflake.ID `json:"id"`
	APIKey string       `json:"api_key"`
}

var (
	ErrInvalidKey  = errors.New("invalid_api_key")
	ErrInvalidName = errors.New("invalid_name")
	ErrInvalidRole = errors.New("invalid_role")
	ErrInvalidUser = errors.New("invalid_user")
	ErrNotFound    = errors.New("not_found")
)
