package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/payrecon/internal/audit/domain"
	"github.com/smallbiznis/payrecon/internal/payment/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type RegisterMethodRequest struct {
	UserID     int64
	ExternalID string
	IsDefault  bool
}

// RegisterMethod stores the masked card details of a processor-tokenized
// payment method. Raw card data never reaches this service.
func (s *Service) RegisterMethod(ctx context.Context, req RegisterMethodRequest) (*domain.PaymentMethod, error) {
	externalID := strings.TrimSpace(req.ExternalID)
	if req.UserID == 0 || externalID == "" {
		return nil, fmt.Errorf("%w: payment_method_id is required", domain.ErrInvalidRequest)
	}

	details, err := s.processor.RetrievePaymentMethod(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if details.Last4 == "" {
		return nil, fmt.Errorf("%w: Invalid payment method", domain.ErrInvalidRequest)
	}

	now := s.clock.Now()
	method := &domain.PaymentMethod{
		ID:         s.genID.Generate(),
		UserID:     req.UserID,
		ExternalID: details.ID,
		CardBrand:  domain.NormalizeCardBrand(details.Brand),
		LastFour:   details.Last4,
		ExpMonth:   details.ExpMonth,
		ExpYear:    details.ExpYear,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.methods.Insert(ctx, tx, method); err != nil {
			return err
		}
		if !req.IsDefault {
			return nil
		}
		method.IsDefault = true
		return s.methods.SetDefault(ctx, tx, method.ID, req.UserID, true, now)
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, auditdomain.Entry{
		Action:     auditdomain.ActionPaymentMethodCreate,
		TargetType: auditdomain.TargetPaymentMethod,
		TargetID:   method.ID.String(),
		Metadata: map[string]any{
			"external_id": auditdomain.MaskReference(method.ExternalID),
			"brand":       string(method.CardBrand),
			"last4":       method.LastFour,
		},
	})

	s.log.Info("payment method registered",
		zap.String("method_id", method.ID.String()),
		zap.Int64("user_id", req.UserID),
		zap.String("brand", string(method.CardBrand)),
	)
	return method, nil
}

func (s *Service) ListMethods(ctx context.Context, userID int64) ([]*domain.PaymentMethod, error) {
	return s.methods.List(ctx, s.db, userID)
}

func (s *Service) GetMethod(ctx context.Context, userID int64, id snowflake.ID) (*domain.PaymentMethod, error) {
	return s.methods.FindByID(ctx, s.db, id, userID)
}

// SetDefaultMethod marks or unmarks a method as the user's default; marking
// one clears the flag on every other method of the user.
func (s *Service) SetDefaultMethod(ctx context.Context, userID int64, id snowflake.ID, isDefault bool) (*domain.PaymentMethod, error) {
	var method *domain.PaymentMethod
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.methods.SetDefault(ctx, tx, id, userID, isDefault, s.clock.Now()); err != nil {
			return err
		}
		var err error
		method, err = s.methods.FindByID(ctx, tx, id, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return method, nil
}

// DeleteMethod detaches the method at the processor and removes it locally.
// A detach failure is logged and does not block the local delete.
func (s *Service) DeleteMethod(ctx context.Context, userID int64, id snowflake.ID) error {
	method, err := s.methods.FindByID(ctx, s.db, id, userID)
	if err != nil {
		return err
	}
	if err := s.processor.DetachPaymentMethod(ctx, method.ExternalID); err != nil {
		s.log.Warn("detach payment method failed",
			zap.String("method_id", method.ID.String()),
			zap.String("external_id", method.ExternalID),
			zap.Error(err),
		)
	}
	if err := s.methods.Delete(ctx, s.db, method.ID, userID); err != nil {
		return err
	}
	s.record(ctx, auditdomain.Entry{
		Action:     auditdomain.ActionPaymentMethodDelete,
		TargetType: auditdomain.TargetPaymentMethod,
		TargetID:   method.ID.String(),
		Metadata: map[string]any{
			"external_id": auditdomain.MaskReference(method.ExternalID),
		},
	})
	return nil
}
