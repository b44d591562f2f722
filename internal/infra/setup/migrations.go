package setup

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"peacepad-signaling/internal/domain"
)

// MigrateDB creates or updates the calls and call_sessions tables.
func MigrateDB(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("cannot migrate database with nil DB connection")
	}

	if err := db.AutoMigrate(&domain.Call{}); err != nil {
		logrus.Errorf("Failed to auto-migrate calls table: %v", err)
		return fmt.Errorf("failed to migrate calls table: %w", err)
	}
	if err := db.AutoMigrate(&domain.CallSession{}); err != nil {
		logrus.Errorf("Failed to auto-migrate call_sessions table: %v", err)
		return fmt.Errorf("failed to migrate call_sessions table: %w", err)
	}

	logrus.Info("Database migration completed successfully")
	return nil
}
