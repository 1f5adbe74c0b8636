package order

import (
	"github.com/novabot503/novacat/internal/order/repository"
	"github.com/novabot503/novacat/internal/order/service"
	"go.uber.org/fx"
)

var Module = fx.Module("order.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
