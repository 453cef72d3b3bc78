package dispatch

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
)

type Kind string

const (
	KindPush  Kind = "push"
	KindEmail Kind = "email"
	KindAlert Kind = "alert"
)

var (
	ErrQueueFull   = errors.New("dispatch_queue_full")
	ErrQueueClosed = errors.New("dispatch_queue_closed")
)

// Task is one unit of post-commit work. It is serialized as JSON when the
// queue leaves the process.
type Task struct {
	ID         string            `json:"id"`
	Kind       Kind              `json:"kind"`
	UserID     int64             `json:"user_id,omitempty"`
	Channel    string            `json:"channel,omitempty"`
	Recipient  string            `json:"recipient,omitempty"`
	Template   string            `json:"template,omitempty"`
	Subject    string            `json:"subject,omitempty"`
	Data       datatypes.JSONMap `json:"data,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	EnqueuedAt time.Time         `json:"enqueued_at"`
}

type Handler func(ctx context.Context, task Task) error

// Queue delivers tasks to a handler at most once.
type Queue interface {
	Enqueue(ctx context.Context, task Task) error
	Start(handler Handler) error
	Stop(ctx context.Context) error
	// Depth is the number of tasks waiting locally, or -1 when unknown.
	Depth() int
}
