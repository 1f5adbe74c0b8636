package telegram

import "go.uber.org/fx"

var Module = fx.Module("providers.telegram",
	fx.Provide(NewFromConfig),
)
