package processor

import (
	"github.com/coachkit/settled/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("processor",
	fx.Provide(provideClient),
	fx.Provide(provideRetryConfig),
)

func provideClient(cfg config.Config) Client {
	return NewStripeClient(cfg.StripeSecretKey)
}

func provideRetryConfig(cfg config.Config) RetryConfig {
	return RetryConfig{
		MaxRetries: cfg.ProcessorMaxRetries,
		Delay:      cfg.ProcessorRetryDelay,
	}
}
