package payment

import (
	"github.com/novabot503/novacat/internal/providers/payment/pakasir"
	"go.uber.org/fx"
)

var Module = fx.Module("providers.payment",
	fx.Provide(pakasir.NewGateway),
)
