package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectPayment       = "payment"
	ObjectPaymentMethod = "payment_method"
	ObjectWebhook       = "webhook"
	ObjectAuditLog      = "audit_log"
)

const (
	ActionPaymentCreate  = "payment.create"
	ActionPaymentConfirm = "payment.confirm"
	ActionPaymentView    = "payment.view"
	ActionPaymentRefund  = "payment.refund"
	// ActionPaymentDelete is never granted; payment rows are kept for audit.
	ActionPaymentDelete = "payment.delete"

	ActionPaymentMethodView   = "payment_method.view"
	ActionPaymentMethodCreate = "payment_method.create"
	ActionPaymentMethodUpdate = "payment_method.update"
	ActionPaymentMethodDelete = "payment_method.delete"

	ActionWebhookReplay = "webhook.replay"

	ActionAuditLogView = "audit_log.view"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, subject string, role string, object string, action string) error {
	subject = strings.TrimSpace(subject)
	role = strings.ToLower(strings.TrimSpace(role))
	if subject == "" || role == "" {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	roleName := fmt.Sprintf("role:%s", role)
	if err := s.ensureGrouping(subject, roleName); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Warn("authorization denied",
			zap.String("subject", subject),
			zap.String("role", role),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

// ensureGrouping keeps exactly one role link per subject so a key whose
// role changed does not keep the old grants.
func (s *ServiceImpl) ensureGrouping(subject string, roleName string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 || rule[1] == roleName {
			continue
		}
		params := make([]interface{}, 0, len(rule))
		for _, value := range rule {
			params = append(params, value)
		}
		_, _ = s.enforcer.RemoveGroupingPolicy(params...)
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName)
	return err
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Buyers act on their own payments and saved cards.
		{"role:user", ObjectPayment, ActionPaymentCreate},
		{"role:user", ObjectPayment, ActionPaymentConfirm},
		{"role:user", ObjectPayment, ActionPaymentView},
		{"role:user", ObjectPayment, ActionPaymentRefund},
		{"role:user", ObjectPaymentMethod, ActionPaymentMethodView},
		{"role:user", ObjectPaymentMethod, ActionPaymentMethodCreate},
		{"role:user", ObjectPaymentMethod, ActionPaymentMethodUpdate},
		{"role:user", ObjectPaymentMethod, ActionPaymentMethodDelete},

		{"role:admin", "role:user"},
		{"role:admin", ObjectWebhook, ActionWebhookReplay},
		{"role:admin", ObjectAuditLog, ActionAuditLogView},
	}

	for _, policy := range policies {
		switch len(policy) {
		case 2:
			has, err := enforcer.HasGroupingPolicy(policy[0], policy[1])
			if err != nil {
				return err
			}
			if has {
				continue
			}
			if _, err := enforcer.AddGroupingPolicy(policy[0], policy[1]); err != nil {
				return err
			}
		case 3:
			has, err := enforcer.HasPolicy(policy[0], policy[1], policy[2])
			if err != nil {
				return err
			}
			if has {
				continue
			}
			if _, err := enforcer.AddPolicy(policy[0], policy[1], policy[2]); err != nil {
				return err
			}
		}
	}
	return nil
}
