package main

import (
	"log"

	"magic-collection-be/internal/config"
	"magic-collection-be/internal/model"
	"magic-collection-be/pkg/database"
)

func main() {
	// 1. Load Configuration
	cfg := config.Load()

	// 2. Connect to Database using existing GORM helpers
	db, err := database.NewGormDBFromDSN(cfg.Database.Connection)
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	log.Println("Starting GORM Migration...")

	// 3. Pre-Migration: Extensions
	// Ids are generated by the application; pgcrypto is only a convenience for manual inserts.
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS pgcrypto;`).Error; err != nil {
		log.Printf("Warn: Failed to enable pgcrypto: %v. Continuing...", err)
	}

	// 4. AutoMigrate
	models := []interface{}{
		&model.User{},
		&model.ChatHistory{},
		&model.ChatExchange{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		log.Fatalf("Error: AutoMigrate failed: %v", err)
	}

	// 5. Post-Migration: Indexes GORM tags cannot express
	postMigrationSQL := []string{
		`CREATE INDEX IF NOT EXISTS idx_chat_histories_user_recent ON chat_histories (user_id, updated_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_chat_exchanges_history_order ON chat_exchanges (history_id, created_at ASC);`,
	}
	for _, sql := range postMigrationSQL {
		if err := db.Exec(sql).Error; err != nil {
			log.Printf("Warn: Failed to execute post-migration SQL: %v", err)
		}
	}

	log.Println("Success: Database migration completed.")
}
