// cmd/seedactor/main.go: registers (or updates) an operator in the actor
// directory so history and reports show a display name.
// Usage: go run ./cmd/seedactor -id <uuid> -username maria -name "Maria Souza" -role cashier
package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"farmacaixa/internal/config"
	"farmacaixa/internal/infra"
	"farmacaixa/internal/model"
	"farmacaixa/internal/repository"
	"farmacaixa/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

func main() {
	idFlag := flag.String("id", "", "actor id as issued by the identity service (uuid)")
	username := flag.String("username", "", "login name")
	name := flag.String("name", "", "display name")
	role := flag.String("role", "cashier", "cashier | supervisor | admin | sales")
	location := flag.String("location", "", "home location id (optional)")
	flag.Parse()

	if *username == "" || *name == "" {
		log.Fatal().Msg("-username and -name are required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	db, err := infra.NewDatabase(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect error")
	}

	actor := &model.Actor{
		Username:    *username,
		DisplayName: *name,
		Role:        *role,
		Active:      true,
	}
	var requested uuid.UUID
	if *idFlag != "" {
		requested, err = uuid.Parse(*idFlag)
		if err != nil {
			log.Fatal().Err(err).Msg("-id must be a uuid")
		}
		actor.ID = requested
	}
	if *location != "" {
		actor.LocationID = location
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := repository.NewActorRepository(db).Upsert(ctx, actor); err != nil {
		log.Fatal().Err(err).Msg("upsert error")
	}
	// actor now holds the stored row; an existing username keeps its id
	if requested != uuid.Nil && requested != actor.ID {
		log.Warn().
			Str("username", actor.Username).
			Str("requested_id", requested.String()).
			Str("stored_id", actor.ID.String()).
			Msg("username already registered under another id, kept the stored id")
	}

	// drop a stale cached display name
	if cfg.RedisURL != "" {
		if rdb, err := infra.NewRedis(cfg.RedisURL); err == nil {
			service.NewActorDirectory(nil, rdb).Forget(ctx, actor.ID)
			_ = rdb.Close()
		}
	}
	fmt.Printf("actor %q (%s) saved with id %s\n", actor.Username, actor.Role, actor.ID)
}
