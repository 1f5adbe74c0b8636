package upload

import (
	"github.com/novabot503/novacat/internal/upload/service"
	"go.uber.org/fx"
)

var Module = fx.Module("upload.service",
	fx.Provide(NewGitHubStorage),
	fx.Provide(service.New),
)
