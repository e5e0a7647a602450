package main

import (
	"flag"
	"log"

	"foodgram-backend/cmd/config"
	migration "foodgram-backend/cmd/database/migrate"
	seeding "foodgram-backend/cmd/database/seed"
	"foodgram-backend/internal/utils"
)

func main() {
	dataDir := flag.String("data", "./data", "directory with tags.json and ingredients.json")
	flag.Parse()

	utils.LoadConfig()

	db, err := config.ConnectDB()
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	if err := migration.Migrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	if err := seeding.Seed(db, *dataDir); err != nil {
		log.Fatalf("failed to seed database: %v", err)
	}
}
