package authorization

import (
	"context"
	"errors"
)

type Service interface {
	// Authorize checks whether a caller holding role may perform action on
	// object. A denial is reported as ErrForbidden.
	Authorize(ctx context.Context, subject string, role string, object string, action string) error
}

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
)
