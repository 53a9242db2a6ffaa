package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"github.com/labmetrixis/identity/config"
	"github.com/labmetrixis/identity/pkg/helpers"
)

// Seeds the initial Admin account. Admin is not self-registerable through
// the public API, so this tool is the administrative provisioning path.
func main() {
	email := flag.String("email", "admin@labmetrixis.local", "admin email")
	password := flag.String("password", "changeme123", "admin password")
	name := flag.String("name", "Administrator", "admin display name")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()

	db, err := sql.Open("pgx", cfg.PostgresDSN())
	if err != nil {
		log.Fatalf("failed to open db: %v", err)
	}
	defer func() { _ = db.Close() }()

	hash, err := helpers.HashPassword(*password)
	if err != nil {
		log.Fatalf("failed to hash password: %v", err)
	}

	// Seeded admins skip the verification mail loop.
	var id string
	err = db.QueryRow(`
		INSERT INTO users (name, email, password_hash, role, is_email_verified)
		VALUES ($1, lower($2), $3, 'Admin', TRUE)
		ON CONFLICT (lower(email)) DO UPDATE SET name = EXCLUDED.name
		RETURNING id
	`, *name, *email, hash).Scan(&id)
	if err != nil {
		log.Fatalf("failed to seed admin: %v", err)
	}
	fmt.Printf("seeded admin: id=%s email=%s\n", id, *email)
}
