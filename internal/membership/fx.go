package membership

import (
	"github.com/MnbNwz/aab-platform-sub003/internal/membership/repository"
	"github.com/MnbNwz/aab-platform-sub003/internal/membership/service"
	"go.uber.org/fx"
)

var Module = fx.Module("membership",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
