package notification

import (
	"context"

	orderdomain "github.com/novabot503/novacat/internal/order/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("notification",
	fx.Provide(
		New,
		func(d *Dispatcher) orderdomain.Notifier { return d },
	),
	fx.Invoke(RegisterDispatcher),
)

func RegisterDispatcher(lc fx.Lifecycle, d *Dispatcher) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			d.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return d.Stop(ctx)
		},
	})
}
