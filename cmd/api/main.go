package main

import (
	"context"
	"log"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"synthctl/adapters/db/postgres"
	"synthctl/app"
	"synthctl/internal/conformal"
	"synthctl/internal/config"
	"synthctl/internal/fitter"
	"synthctl/internal/gridsearch"
	"synthctl/internal/rng"
	"synthctl/ports"
	"synthctl/ui"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("[API] no .env file found, using environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[API] configuration error: %v", err)
	}

	var store ports.ResultStore
	if cfg.Database.URL != "" {
		db, err := sqlx.Connect("postgres", cfg.Database.URL)
		if err != nil {
			log.Fatalf("[API] failed to connect to database: %v", err)
		}
		pgStore := postgres.NewResultStore(db)
		if err := pgStore.EnsureSchema(context.Background()); err != nil {
			log.Fatalf("[API] failed to ensure schema: %v", err)
		}
		store = pgStore
		log.Println("[API] result persistence enabled")
	}

	f := fitter.NewFitter()
	engine := conformal.NewEngine(f, rng.NewAdapter())
	engine.Permutations = cfg.Estimation.Permutations
	if cfg.Estimation.Scheme == "iid" {
		engine.Scheme = conformal.SchemeIID
	}
	controller := gridsearch.NewController(engine)
	controller.MaxExpansions = cfg.Estimation.MaxExpansions

	service := app.NewEstimationService(f, controller)
	server := ui.NewServer(service, store)

	if err := server.ListenAndServe(cfg.Server.Port); err != nil {
		log.Fatalf("[API] server stopped: %v", err)
	}
}
