package migration

import (
	"github.com/MnbNwz/aab-platform-sub003/internal/config"
	"github.com/MnbNwz/aab-platform-sub003/internal/seed"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, node *snowflake.Node) error {
		// Embedded SQL targets postgres; other dialects (sqlite in local
		// setups and tests) get the schema from gorm's AutoMigrate.
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else if err := AutoMigrate(conn); err != nil {
			return err
		}

		if cfg.SeedPlans {
			return seed.EnsurePlanCatalog(conn, node)
		}
		return nil
	}),
)
