package main

import (
	"context"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/noubgame/kv-server/internal/content"
	"github.com/noubgame/kv-server/internal/httpserver"
	"github.com/noubgame/kv-server/internal/kv"
	"github.com/noubgame/kv-server/internal/store"
	"github.com/noubgame/kv-server/internal/xp"
)

func main() {
	_ = godotenv.Load()
	if lvl, err := zerolog.ParseLevel(getEnv("LOG_LEVEL", "info")); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	if err := content.Init(); err != nil {
		log.Fatal().Err(err).Msg("failed to load KV content")
	}

	db, err := openDB(getEnv("DB_PATH", "./data/noub.db"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	if err := migrate(db); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	st := store.NewSQLite(db)
	ctrl := kv.NewController(kv.Deps{
		Profiles:    st,
		Consumables: st,
		Progression: st,
		History:     st,
		Library:     st,
		XP:          xp.New(st),
	})

	// Server-side timeout sweep: sessions whose sand ran out are settled
	// even if the client never comes back.
	go ctrl.RunSweeper(context.Background(), 5*time.Second)

	srv := httpserver.New(db, ctrl, httpserver.Stores{
		Profiles:    st,
		Consumables: st,
		Progression: st,
		History:     st,
		Library:     st,
	})
	port := getEnv("PORT", "5175")
	log.Info().Str("port", port).Int("maxLevel", content.MaxLevel()).Msg("starting noub-kv server")
	if err := srv.Start(":" + port); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
