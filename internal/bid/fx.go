package bid

import (
	"github.com/MnbNwz/aab-platform-sub003/internal/bid/repository"
	"github.com/MnbNwz/aab-platform-sub003/internal/bid/service"
	"go.uber.org/fx"
)

var Module = fx.Module("bid",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
