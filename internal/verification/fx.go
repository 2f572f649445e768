package verification

import (
	"github.com/smallbiznis/kolekta/internal/verification/repository"
	"github.com/smallbiznis/kolekta/internal/verification/service"
	"go.uber.org/fx"
)

var Module = fx.Module("verification.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
