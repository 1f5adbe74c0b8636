package retention

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("retention",
	fx.Provide(New),
	fx.Invoke(RegisterSweeper),
)

// RegisterSweeper runs the sweeper for the lifetime of the app. Stop cancels
// the loop and waits for the current run to return.
func RegisterSweeper(lc fx.Lifecycle, sweeper *Sweeper) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				sweeper.RunForever(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}
