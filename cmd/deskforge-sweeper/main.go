package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"

	"github.com/deskforge/deskforge/pkg/tickets"
)

var (
	dbURL         = flag.String("db-url", getEnv("DESKFORGE_POSTGRES_URL", "postgres://localhost/deskforge?sslmode=disable"), "PostgreSQL connection URL")
	sweepSchedule = flag.String("sweep-schedule", "*/5 * * * *", "Cron schedule for the SLA escalation sweep (default: every 5 minutes)")
	runOnce       = flag.Bool("run-once", false, "Run the sweep once and exit (for testing)")
)

func main() {
	flag.Parse()

	db, err := sql.Open("postgres", *dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	store := tickets.NewStore(db)

	if *runOnce {
		if err := runSweep(store); err != nil {
			log.Fatalf("Sweep failed: %v", err)
		}
		return
	}

	c := cron.New()

	_, err = c.AddFunc(*sweepSchedule, func() {
		if err := runSweep(store); err != nil {
			log.Printf("SLA sweep failed: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("Failed to schedule SLA sweep: %v", err)
	}

	c.Start()
	log.Println("Deskforge SLA sweeper started")
	log.Printf("Sweep schedule: %s", *sweepSchedule)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutting down gracefully...")

	ctx := c.Stop()
	<-ctx.Done()

	log.Println("Sweeper stopped")
}

func runSweep(store *tickets.Store) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	escalated, err := store.SweepOverdue(ctx, time.Now().UTC())
	if err != nil {
		return err
	}

	if escalated > 0 {
		log.Printf("Escalated %d overdue tickets", escalated)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
