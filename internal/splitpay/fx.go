package splitpay

import (
	"github.com/coachkit/settled/internal/splitpay/repository"
	"github.com/coachkit/settled/internal/splitpay/service"
	"go.uber.org/fx"
)

var Module = fx.Module("splitpay",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
