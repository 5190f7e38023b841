package migration

import (
	catalogdomain "github.com/consultapj/consultapj/internal/catalog/domain"
	"github.com/consultapj/consultapj/internal/config"
	consultationdomain "github.com/consultapj/consultapj/internal/consultation/domain"
	creditdomain "github.com/consultapj/consultapj/internal/credit/domain"
	plandomain "github.com/consultapj/consultapj/internal/plan/domain"
	"github.com/consultapj/consultapj/internal/seed"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		// SQLite has no golang-migrate driver wired here; it only backs local
		// development and tests, where AutoMigrate is sufficient.
		if cfg.DBType == "sqlite" {
			if err := conn.AutoMigrate(
				&creditdomain.UserAccount{},
				&plandomain.Plan{},
				&plandomain.Subscription{},
				&catalogdomain.ConsultationType{},
				&consultationdomain.Consultation{},
				&consultationdomain.ConsultationDetail{},
				&creditdomain.CreditTransaction{},
			); err != nil {
				return err
			}
		} else {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB, cfg.DBType); err != nil {
				return err
			}
		}

		return seed.EnsureCatalog(conn)
	}),
)
