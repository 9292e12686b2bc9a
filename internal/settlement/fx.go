package settlement

import (
	"github.com/coachkit/settled/internal/events"
	"github.com/coachkit/settled/internal/settlement/repository"
	"github.com/coachkit/settled/internal/settlement/service"
	"go.uber.org/fx"
)

var Module = fx.Module("settlement",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Invoke(func(svc *service.Service, bus *events.Bus) {
		svc.Register(bus)
	}),
)
