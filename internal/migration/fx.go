package migration

import (
	"strings"

	"github.com/smallbiznis/payflow/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if !cfg.MigrateOnStart {
			return nil
		}
		return Run(conn, cfg, log)
	}),
)

// Run applies migrations on postgres and mysql. sqlite is provisioned out of band.
func Run(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
	log = log.Named("migration")
	dialect := strings.ToLower(strings.TrimSpace(cfg.DBType))
	if !Supported(dialect) {
		log.Warn("skipping migrations for unsupported database", zap.String("type", cfg.DBType))
		return nil
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	version, err := RunMigrations(sqlDB, dialect)
	if err != nil {
		return err
	}
	log.Info("schema up to date", zap.String("dialect", dialect), zap.Uint("version", version))
	return nil
}
