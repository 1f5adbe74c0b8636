package providers

import (
	"github.com/novabot503/novacat/internal/providers/panel"
	"github.com/novabot503/novacat/internal/providers/payment"
	"github.com/novabot503/novacat/internal/providers/telegram"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	payment.Module,
	panel.Module,
	telegram.Module,
)
