package ratelimit

import (
	"github.com/novabot503/novacat/internal/clock"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var Module = fx.Module("rate.limit",
	fx.Provide(NewLimiter),
	fx.Provide(provideLocker),
)

type lockerParams struct {
	fx.In

	Clock clock.Clock
	Redis *redis.Client `optional:"true"`
}

func provideLocker(p lockerParams) Locker {
	return NewLocker(p.Redis, p.Clock)
}
