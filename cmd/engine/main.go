// Package main is the entry point for the territory engine.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"territory-engine/internal/config"
	"territory-engine/internal/event"
	"territory-engine/internal/pkg/db"
	"territory-engine/internal/pkg/lock"
	"territory-engine/internal/repository"
	"territory-engine/internal/service"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().Msg("Configuration loaded successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	// Run database migrations
	if err := repository.Migrate(ctx, dbPool.Pool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Initialize repositories
	zoneRepo := repository.NewZoneRepository(dbPool.Pool)
	raidRepo := repository.NewRaidRepository(dbPool.Pool)
	inventoryRepo := repository.NewInventoryRepository(dbPool.Pool)
	listingRepo := repository.NewListingRepository(dbPool.Pool)
	txRepo := repository.NewTransactionRepository(dbPool.Pool)

	// Event feed for the presentation layer
	feed := event.NewFeed()

	// Initialize owner locks and services
	ownerLock := lock.NewOwnerLock()

	zoneRegistry := service.NewZoneRegistry(zoneRepo, feed)
	ledger := service.NewLedgerService(inventoryRepo, ownerLock)
	raidService := service.NewRaidService(raidRepo, zoneRegistry, feed, cfg.Raid)
	marketService := service.NewMarketService(listingRepo, txRepo, ledger, feed, cfg.Market)

	// Log engine events until a presentation layer takes over the feed.
	events, unsubscribe := feed.Subscribe(256)
	defer unsubscribe()
	go func() {
		for e := range events {
			log.Debug().
				Str("event", string(e.Type)).
				Time("at", e.At).
				Interface("payload", e.Payload).
				Msg("Engine event")
		}
	}()

	// Sweep expired listings and start due raids periodically.
	sweepTicker := time.NewTicker(cfg.Market.ExpirySweepPeriod)
	defer sweepTicker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-sweepTicker.C:
				sweepCtx, sweepCancel := context.WithTimeout(ctx, 30*time.Second)
				if _, err := marketService.ExpireListings(sweepCtx, time.Now()); err != nil {
					log.Error().Err(err).Msg("Listing expiry sweep failed")
				}
				if _, err := raidService.StartDue(sweepCtx, time.Now()); err != nil {
					log.Error().Err(err).Msg("Raid start sweep failed")
				}
				sweepCancel()
			}
		}
	}()

	log.Info().Msg("Territory engine is running")

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	cancel()
	log.Info().Msg("Territory engine stopped gracefully")
}
