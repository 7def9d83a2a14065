package main

import (
	"log"
	"os"

	"voice-qa-be/internal/model"
	"voice-qa-be/pkg/database"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Info: No .env file found, using system env")
	}

	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}

	db, err := database.NewGormDBFromDSN(dsn)
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	log.Printf("Step 1: Running AutoMigrate for %d tables...", len(model.All()))
	if err := model.Migrate(db); err != nil {
		log.Fatalf("Error: AutoMigrate failed: %v", err)
	}

	// Constraints GORM tags cannot express.
	log.Println("Step 2: Adding constraints...")
	postMigrationSQL := []string{
		`DO $$ BEGIN
		   IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_chat_items_status') THEN
		     ALTER TABLE chat_items ADD CONSTRAINT chk_chat_items_status
		       CHECK (status IN ('pending', 'transcribing', 'answering', 'complete', 'failed'));
		   END IF;
		 END $$;`,
		`DO $$ BEGIN
		   IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_chat_items_terminal_fields') THEN
		     ALTER TABLE chat_items ADD CONSTRAINT chk_chat_items_terminal_fields
		       CHECK ((status = 'complete') = (answer IS NOT NULL) AND (status = 'failed') = (failure_reason IS NOT NULL));
		   END IF;
		 END $$;`,
	}

	for _, sql := range postMigrationSQL {
		if err := db.Exec(sql).Error; err != nil {
			log.Printf("Warn: Failed to execute post-migration SQL: %v", err)
		}
	}

	log.Println("✅ Success: Database migration completed.")
}
