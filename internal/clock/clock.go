package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock is injected wherever a timestamp ends up in a payment record, so
// tests can pin paid_at and staleness cutoffs.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

func System() Clock {
	return systemClock{}
}

var Module = fx.Module("clock",
	fx.Provide(System),
)
