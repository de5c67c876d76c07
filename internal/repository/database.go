package repository

import (
	"github.com/noteduco342/courtside-chat/internal/config"
	"github.com/noteduco342/courtside-chat/internal/logging"
	"github.com/noteduco342/courtside-chat/internal/models"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func InitDB(cfg config.DatabaseConfig, log zerolog.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:         logging.NewGormLogger(log),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	return db, nil
}

// Migrate creates the tables chat owns. users and community_members belong to
// the account and community modules and are only created when includeShared is
// set (local development).
func Migrate(db *gorm.DB, includeShared bool) error {
	if includeShared {
		if err := db.AutoMigrate(&models.User{}, &models.Membership{}); err != nil {
			return err
		}
	}
	return db.AutoMigrate(
		&models.RoomMessage{},
		&models.Conversation{},
		&models.DirectMessage{},
		&models.Reaction{},
		&models.PresenceRecord{},
	)
}
