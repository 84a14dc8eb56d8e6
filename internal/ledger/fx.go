package ledger

import (
	"github.com/claimlens/claimlens/internal/ledger/repository"
	"github.com/claimlens/claimlens/internal/ledger/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ledger.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
