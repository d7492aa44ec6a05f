package lead

import (
	"github.com/MnbNwz/aab-platform-sub003/internal/lead/repository"
	"github.com/MnbNwz/aab-platform-sub003/internal/lead/service"
	"go.uber.org/fx"
)

var Module = fx.Module("lead",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
