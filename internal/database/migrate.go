package database

import (
	"fmt"

	"github.com/aura-studio/aura/internal/models"
)

// Migrate creates or updates the schema for all persisted models.
func (db *DB) Migrate() error {
	if err := db.AutoMigrate(&models.JobRecord{}); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}
	return nil
}
