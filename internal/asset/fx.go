package asset

import (
	"github.com/claimlens/claimlens/internal/asset/repository"
	"github.com/claimlens/claimlens/internal/asset/service"
	"go.uber.org/fx"
)

var Module = fx.Module("asset.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
