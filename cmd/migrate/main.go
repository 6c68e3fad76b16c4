// cmd/migrate/main.go: applies the embedded SQL migrations.
// Usage: go run ./cmd/migrate [up|down|version|force N]
package main

import (
	"fmt"
	"os"
	"strconv"

	"farmacaixa/internal/config"
	"farmacaixa/internal/infra"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cmd := "up"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	db, err := infra.NewDatabase(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to get sql handle")
	}
	m, err := infra.NewMigrator(sqlDB)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create migrator")
	}
	defer m.Close()

	switch cmd {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	case "version":
		var (
			v     uint
			dirty bool
		)
		v, dirty, err = m.Version()
		if err == nil {
			fmt.Printf("version %d (dirty=%t)\n", v, dirty)
		}
	case "force":
		if len(os.Args) < 3 {
			log.Fatal().Msg("usage: migrate force <version>")
		}
		var n int
		n, err = strconv.Atoi(os.Args[2])
		if err == nil {
			err = m.Force(n)
		}
	default:
		log.Fatal().Str("command", cmd).Msg("unknown command, want up|down|version|force")
	}
	if err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}
}
