// Worker runs the session sweeper: it periodically deletes sessions whose
// refresh window has passed. Set DATABASE_URL and optionally SESSION_SWEEP_INTERVAL.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"authcore/internal/config"
	"authcore/internal/db"
	"authcore/internal/session/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("worker: DATABASE_URL is required")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Println("worker: shutting down...")
		cancel()
	}()

	sweeper := repository.NewSweeper(repository.NewPostgresRepository(conn), cfg.SweepInterval())
	log.Printf("worker: sweeping expired sessions every %s", cfg.SweepInterval())
	sweeper.Run(ctx)
	log.Println("worker: stopped")
}
