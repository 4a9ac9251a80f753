package main

import (
	"headhunter/config"
	"headhunter/handlers"
	"headhunter/logging"
	"headhunter/musicbrainz"
	"headhunter/search"
	"headhunter/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		baseLog := logging.Base()
		baseLog.Fatal().Err(err).Msg("config load failed")
	}
	logging.Configure(logging.Config{Level: cfg.LogLevel, Service: "headhunter"})
	log := logging.WithComponent("main")

	st, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("store open failed")
	}

	mb := musicbrainz.New(cfg.MusicBrainzURL, cfg.AppURL)
	agg := search.New(mb, st)

	router := handlers.SetupRouter(handlers.New(st, mb, agg, cfg.AuthJWTSecret))

	log.Info().Str("listen", cfg.Listen).Msg("starting server")
	if err := router.Run(cfg.Listen); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}
