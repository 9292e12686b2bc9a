package commission

import (
	"github.com/coachkit/settled/internal/commission/repository"
	"github.com/coachkit/settled/internal/commission/service"
	"go.uber.org/fx"
)

var Module = fx.Module("commission",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
