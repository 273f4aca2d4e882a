package store

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/statspub/publisher/internal/config"
	"github.com/statspub/publisher/internal/store/model"
)

const slowQueryThreshold = time.Second

// InitDB opens the status database. "pgsql" connects to postgres, anything
// else treats Database.Name as a sqlite file (":memory:" for tests).
func InitDB(cfg *config.Config) (*gorm.DB, error) {
	log := zap.S().Named("gorm")

	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.New(logrus.WithField("component", "gorm"), logger.Config{
			SlowThreshold:             slowQueryThreshold,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			ParameterizedQueries:      true,
		}),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		log.Errorw("failed to open database", "type", cfg.Database.Type, "error", err)
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	switch cfg.Database.Type {
	case "pgsql":
		sqlDB.SetMaxOpenConns(cfg.Database.MaxConns)
		sqlDB.SetMaxIdleConns(min(10, cfg.Database.MaxConns))

		var version string
		if err := db.Raw("SELECT version()").Scan(&version).Error; err != nil {
			return nil, fmt.Errorf("querying postgres version: %w", err)
		}
		log.Infow("connected to postgres", "version", version)
	default:
		// sqlite serialises writers, a single connection avoids SQLITE_BUSY
		sqlDB.SetMaxOpenConns(1)
		log.Infow("using sqlite", "file", cfg.Database.Name)
	}

	return db, nil
}

func dialectorFor(cfg *config.Config) (gorm.Dialector, error) {
	switch cfg.Database.Type {
	case "pgsql":
		return postgres.Open(cfg.Database.DSN()), nil
	case "sqlite", "":
		name := cfg.Database.Name
		if name == "" {
			name = ":memory:"
		}
		return sqlite.Open(name), nil
	default:
		return nil, fmt.Errorf("unsupported database type %q", cfg.Database.Type)
	}
}

// AutoMigrate creates the tables straight from the models. It backs the
// sqlite mode used for local runs and tests; postgres goes through the SQL
// migrations instead.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.ReleaseVersion{},
		&model.ReleaseFile{},
		&model.DataSet{},
		&model.ReleasePublishingStatus{},
		&JobRow{},
	)
}
