package unlock

import (
	"github.com/claimlens/claimlens/internal/unlock/repository"
	"github.com/claimlens/claimlens/internal/unlock/service"
	"go.uber.org/fx"
)

var Module = fx.Module("unlock.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
