// Command token mints a signed access token for local testing against a
// huddle server that shares the same JWT secret.
package main

import (
	"flag"
	"fmt"
	"os"

	"huddle/internal/core/domain"
	"huddle/internal/core/services"
	"huddle/pkg/config"
	"huddle/pkg/validation"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	userID := flag.Int64("user", 0, "user id")
	username := flag.String("name", "", "username")
	flag.Parse()

	if err := validation.ValidateID(*userID, "user"); err != nil {
		fail(err)
	}
	if err := validation.ValidateUsername(*username); err != nil {
		fail(err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fail(err)
	}

	auth := services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)
	token, err := auth.GenerateToken(domain.Identity{ID: domain.UserID(*userID), Username: *username})
	if err != nil {
		fail(err)
	}
	fmt.Println(token)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "token:", err)
	os.Exit(1)
}
