package migration

import (
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/claimlens/claimlens/internal/config"
	"github.com/claimlens/claimlens/internal/seed"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if err := RunMigrations(conn); err != nil {
			return err
		}

		if !cfg.IsProduction() {
			if err := seed.EnsureDevAssets(conn); err != nil {
				return err
			}
			// Local smoke tests send X-User-Id: 1.
			return seed.EnsureStarterGrant(conn, 1, 10)
		}
		return nil
	}),
)
