package panel

import (
	"github.com/novabot503/novacat/internal/providers/panel/pterodactyl"
	"go.uber.org/fx"
)

var Module = fx.Module("providers.panel",
	fx.Provide(pterodactyl.NewProvisioner),
)
