package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	apikeydomain "github.com/smallbiznis/payrecon/internal/apikey/domain"
	auditdomain "github.com/smallbiznis/payrecon/internal/audit/domain"
	"github.com/smallbiznis/payrecon/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	apiKeyPrefix      = "pr_live_"
	apiKeySecretBytes = 32
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	GenID *snowflake.Node
	Repo  apikeydomain.Repository
	Audit auditdomain.Service `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	repo  apikeydomain.Repository
	genID *snowflake.Node
	audit auditdomain.Service
}

func New(p Params) apikeydomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("apikey.service"),
		clock: p.Clock,
		repo:  p.Repo,
		genID: p.GenID,
		audit: p.Audit,
	}
}

// Authenticate resolves a raw bearer key to its principal. Unknown and
// revoked keys are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, raw string) (apikeydomain.Principal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return apikeydomain.Principal{}, apikeydomain.ErrInvalidKey
	}

	key, err := s.repo.FindActiveByHash(ctx, s.db, apikeydomain.HashAPIKey(raw))
	if err != nil {
		if errors.Is(err, apikeydomain.ErrNotFound) {
			return apikeydomain.Principal{}, apikeydomain.ErrInvalidKey
		}
		return apikeydomain.Principal{}, err
	}

	if err := s.repo.TouchLastUsed(ctx, s.db, key.ID, s.clock.Now().UTC()); err != nil {
		s.log.Warn("failed to update api key last_used_at", zap.String("key_id", key.ID.String()), zap.Error(err))
	}

	return apikeydomain.Principal{KeyID: key.ID, UserID: key.UserID, Role: key.Role}, nil
}

func (s *Service) Create(ctx context.Context, req apikeydomain.CreateRequest) (*apikeydomain.SecretResponse, error) {
	if req.UserID <= 0 {
		return nil, apikeydomain.ErrInvalidUser
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apikeydomain.ErrInvalidName
	}
	role := strings.ToLower(strings.TrimSpace(req.Role))
	if role == "" {
		role = apikeydomain.RoleUser
	}
	if role != apikeydomain.RoleUser && role != apikeydomain.RoleAdmin {
		return nil, apikeydomain.ErrInvalidRole
	}

	id := s.genID.Generate()
	plain, hash, err := generateAPIKey(id)
	if err != nil {
		return nil, err
	}

	key := &apikeydomain.APIKey{
		ID:        id,
		UserID:    req.UserID,
		Role:      role,
		Name:      name,
		KeyHash:   hash,
		IsActive:  true,
		CreatedAt: s.clock.Now().UTC(),
	}
	if err := s.repo.Insert(ctx, s.db, key); err != nil {
		return nil, err
	}

	s.record(ctx, auditdomain.Entry{
		Action:     auditdomain.ActionAPIKeyCreate,
		TargetType: auditdomain.TargetAPIKey,
		TargetID:   id.String(),
		Metadata: map[string]any{
			"user_id": req.UserID,
			"role":    role,
			"name":    name,
		},
	})

	s.log.Info("api key created",
		zap.String("key_id", id.String()),
		zap.Int64("user_id", req.UserID),
		zap.String("role", role),
	)
	return &apikeydomain.SecretResponse{ID: id, APIKey: plain}, nil
}

func (s *Service) Revoke(ctx context.Context, id snowflake.ID) error {
	if err := s.repo.Deactivate(ctx, s.db, id); err != nil {
		return err
	}
	s.record(ctx, auditdomain.Entry{
		Action:     auditdomain.ActionAPIKeyRevoke,
		TargetType: auditdomain.TargetAPIKey,
		TargetID:   id.String(),
	})
	s.log.Info("api key revoked", zap.String("key_id", id.String()))
	return nil
}

func (s *Service) record(ctx context.Context, entry auditdomain.Entry) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.log.Warn("audit record failed", zap.String("action", entry.Action), zap.Error(err))
	}
}

func generateAPIKey(id snowflake.ID) (string, string, error) {
	secret := make([]byte, apiKeySecretBytes)
	if _, err := rand.Read(secret); err != nil {
		return "", "", err
	}

	keyPart := strings.ToLower(strconv.FormatInt(int64(id), 36))
	plain := fmt.Sprintf("%s%s_%s", apiKeyPrefix, keyPart, hex.EncodeToString(secret))
	return plain, apikeydomain.HashAPIKey(plain), nil
}
