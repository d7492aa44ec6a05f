package access

import (
	"github.com/MnbNwz/aab-platform-sub003/internal/access/service"
	"go.uber.org/fx"
)

var Module = fx.Module("access",
	fx.Provide(service.NewService),
)
