// migrate_gorm.go migrates the schema without starting the API
// Usage: go run migrate_gorm.go

//go:build ignore

package main

import (
	"log"

	"github.com/sahilchouksey/school-backoffice/config"
	"github.com/sahilchouksey/school-backoffice/database"
	"gorm.io/gorm"
)

func main() {
	log.Println("=== GORM Migration ===")

	if err := config.LoadENV(); err != nil {
		log.Println("No .env file loaded:", err)
	}

	store, err := database.StartGORM()
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer store.Close()

	if err := store.Init(); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}

	if err := store.HealthCheck(); err != nil {
		log.Fatal("Database health check failed:", err)
	}

	db := store.GetDB().(*gorm.DB)
	log.Println("Migrated tables:")
	for _, m := range database.Models() {
		stmt := &gorm.Statement{DB: db}
		if err := stmt.Parse(m); err == nil {
			log.Printf("  - %s", stmt.Schema.Table)
		}
	}
}
