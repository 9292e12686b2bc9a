package subscription

import (
	"github.com/coachkit/settled/internal/subscription/repository"
	"github.com/coachkit/settled/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
