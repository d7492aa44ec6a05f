package job

import (
	"github.com/MnbNwz/aab-platform-sub003/internal/job/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("job",
	fx.Provide(repository.Provide),
)
