package storage

import (
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"remindbot/internal/model"
	"remindbot/pkg/logx"
)

// Config selects the database backend. When URL is set PostgreSQL is used,
// otherwise a SQLite file at Path.
type Config struct {
	URL  string
	Path string
}

// Open connects, runs migrations, and returns the handle.
func Open(cfg Config, log logx.Logger) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	}

	var (
		db  *gorm.DB
		err error
	)
	if strings.TrimSpace(cfg.URL) != "" {
		db, err = gorm.Open(postgres.Open(cfg.URL), gormConfig)
	} else {
		path := strings.TrimSpace(cfg.Path)
		if path == "" {
			path = "reminders.db"
		}
		// _fk=1 enforces the ON DELETE CASCADE constraint on user rows.
		db, err = gorm.Open(sqlite.Open(path+"?_fk=1"), gormConfig)
	}
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.AutoMigrate(&model.User{}, &model.Reminder{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info("database ready", logx.String("dialect", db.Dialector.Name()))
	return db, nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
