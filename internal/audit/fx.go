package audit

import (
	"github.com/claimlens/claimlens/internal/audit/repository"
	"github.com/claimlens/claimlens/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
