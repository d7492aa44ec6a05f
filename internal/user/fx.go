package user

import (
	"github.com/MnbNwz/aab-platform-sub003/internal/user/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("user",
	fx.Provide(repository.Provide),
)
