// cmd/devtoken/main.go: mints a bearer token for local development, signed
// with JWT_SECRET the way the identity service signs them.
// Usage: go run ./cmd/devtoken -role cashier -location loja-01
package main

import (
	"flag"
	"fmt"
	"time"

	"farmacaixa/internal/config"
	"farmacaixa/internal/middleware"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

func main() {
	userID := flag.String("user", "", "actor id (uuid); random when empty")
	username := flag.String("username", "dev", "username")
	role := flag.String("role", middleware.RoleCashier, "cashier | supervisor | admin | sales")
	location := flag.String("location", "", "bind the token to a location id")
	ttl := flag.Duration("ttl", 8*time.Hour, "token lifetime")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.JWTSecret == "" {
		log.Fatal().Msg("JWT_SECRET is required")
	}

	id := *userID
	if id == "" {
		id = uuid.NewString()
	} else if _, err := uuid.Parse(id); err != nil {
		log.Fatal().Err(err).Msg("-user must be a uuid")
	}

	now := time.Now()
	claims := middleware.JWTClaims{
		UserID:   id,
		Username: *username,
		Rol:      *role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id,
			Issuer:    cfg.JWTIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(*ttl)),
		},
	}
	if *location != "" {
		claims.LocationID = location
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to sign token")
	}
	fmt.Println(signed)
}
