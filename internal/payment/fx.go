package payment

import (
	"go.uber.org/fx"

	"github.com/claimlens/claimlens/internal/payment/adapter"
	"github.com/claimlens/claimlens/internal/payment/repository"
	paymentservice "github.com/claimlens/claimlens/internal/payment/service"
)

var Module = fx.Module("payment.service",
	fx.Provide(adapter.New),
	fx.Provide(repository.Provide),
	fx.Provide(paymentservice.NewService),
)
