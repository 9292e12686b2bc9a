package reconcile

import (
	"github.com/coachkit/settled/internal/events"
	"go.uber.org/fx"
)

var Module = fx.Module("reconcile",
	fx.Provide(NewService),
	fx.Invoke(func(svc *Service, bus *events.Bus) {
		svc.Register(bus)
	}),
)
