package notify

import "go.uber.org/fx"

var Module = fx.Module("providers.notify",
	fx.Provide(func() Notifier { return NoOpNotifier{} }),
)
