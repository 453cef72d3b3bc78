package dispatch

import (
	"context"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/payrecon/internal/config"
	"github.com/smallbiznis/payrecon/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payment.dispatch",
	fx.Provide(
		NewQueue,
		providePublisher,
		NewDispatcher,
		func(d *Dispatcher) domain.SideEffects { return d },
	),
	fx.Invoke(registerLifecycle),
)

func NewQueue(cfg config.Config, log *zap.Logger) (Queue, error) {
	log = log.Named("payment.dispatch.queue")
	switch cfg.Dispatch.Transport {
	case config.DispatchTransportSQS:
		return NewSQSQueue(context.Background(), cfg.Dispatch, log)
	default:
		return NewMemoryQueue(cfg.Dispatch.Workers, cfg.Dispatch.QueueSize, log), nil
	}
}

type publisherParams struct {
	fx.In

	Redis *redis.Client `optional:"true"`
	Log   *zap.Logger
}

func providePublisher(p publisherParams) Publisher {
	return NewPublisher(p.Redis, p.Log)
}

func registerLifecycle(lc fx.Lifecycle, q Queue, d *Dispatcher) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return q.Start(d.Handle)
		},
		OnStop: func(ctx context.Context) error {
			return q.Stop(ctx)
		},
	})
}
