package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"magic-collection-be/internal/config"
	"magic-collection-be/internal/model"
	"magic-collection-be/internal/pkg/serverutils"
	"magic-collection-be/pkg/database"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Seeds a development user and prints a bearer token for it.
func main() {
	email := flag.String("email", "dev@example.com", "email of the seeded user")
	password := flag.String("password", "password123", "password of the seeded user")
	name := flag.String("name", "Dev User", "full name of the seeded user")
	ttl := flag.Duration("ttl", 24*time.Hour, "lifetime of the printed token")
	flag.Parse()

	cfg := config.Load()
	if cfg.Auth.JwtSecret == "" {
		log.Fatal("Error: JWT_SECRET is not set")
	}

	db, err := database.NewGormDBFromDSN(cfg.Database.Connection)
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	var user model.User
	err = db.Where("email = ?", *email).First(&user).Error
	switch {
	case err == nil:
		color.Yellow("User %s already exists, reusing it", *email)
	case errors.Is(err, gorm.ErrRecordNotFound):
		hash, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatal("Error: Failed to hash password:", err)
		}
		hashed := string(hash)
		user = model.User{
			Id:           uuid.New(),
			Email:        *email,
			PasswordHash: &hashed,
			FullName:     *name,
		}
		if err := db.Create(&user).Error; err != nil {
			log.Fatal("Error: Failed to create user:", err)
		}
		color.Green("Created user %s (%s)", user.Email, user.Id)
	default:
		log.Fatal("Error: Failed to look up user:", err)
	}

	token, err := serverutils.IssueToken(cfg.Auth.JwtSecret, user.Id, *ttl)
	if err != nil {
		log.Fatal("Error: Failed to issue token:", err)
	}

	color.Cyan("Bearer token (valid for %s):", ttl.String())
	fmt.Println(token)
}
