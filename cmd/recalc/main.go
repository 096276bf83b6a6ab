// Command recalc runs one full rating recalculation and exits. With
// -snapshot it also captures the day's rank history afterwards.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/MGMAppDev/soccerview-sub008/internal/cache"
	"github.com/MGMAppDev/soccerview-sub008/internal/config"
	"github.com/MGMAppDev/soccerview-sub008/internal/recalc"
	"github.com/MGMAppDev/soccerview-sub008/internal/repository"
	"github.com/MGMAppDev/soccerview-sub008/internal/snapshot"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		withSnapshot bool
		snapshotOnly bool
		asOf         string
		useCache     bool
	)
	flag.BoolVar(&withSnapshot, "snapshot", false, "capture a rank snapshot after recalculating")
	flag.BoolVar(&snapshotOnly, "snapshot-only", false, "capture a rank snapshot without recalculating")
	flag.StringVar(&asOf, "date", "", "snapshot date as YYYY-MM-DD, today or later (default: today UTC)")
	flag.BoolVar(&useCache, "cache", true, "lock the run and publish results through Redis")
	flag.Parse()

	setupLogger()
	cfg := config.MustLoad()

	snapshotDate := time.Now().UTC()
	if asOf != "" {
		d, err := time.Parse(time.DateOnly, asOf)
		if err != nil {
			log.Fatal().Err(err).Str("date", asOf).Msg("Invalid -date")
		}
		if err := snapshot.CheckDate(d, snapshotDate); err != nil {
			log.Fatal().Err(err).Msg("Refusing to rewrite rank history")
		}
		snapshotDate = d
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repository.NewDatabase(ctx, repository.Config{
		Host:     cfg.DatabaseHost,
		Port:     strconv.Itoa(cfg.DatabasePort),
		User:     cfg.DatabaseUser,
		Password: cfg.DatabasePassword,
		Database: cfg.DatabaseName,
		SSLMode:  cfg.DatabaseSSLMode,
		MaxConns: cfg.DatabaseMaxConns,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	var svcCache recalc.Cache
	if useCache && cfg.RedisEnabled {
		redisCache, err := cache.NewRedisCache(cache.Config{
			Host:     cfg.RedisHost,
			Port:     strconv.Itoa(cfg.RedisPort),
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to connect to Redis - running unlocked")
		} else {
			defer redisCache.Close()
			svcCache = redisCache
		}
	}

	recorder := snapshot.NewRecorder(db.Ratings, db.Snapshots, cfg.SnapshotPageSize)
	svc := recalc.NewService(recalc.NewRepositoryStores(db), svcCache, recorder, recalc.Options{
		Window:          cfg.SeasonWindow(),
		PageSize:        cfg.RatingPageSize,
		LockTTL:         cfg.RecalcLockTTL,
		RequireComplete: cfg.RequireComplete,
	})

	exitCode := 0
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if !snapshotOnly {
		summary, err := svc.Recalculate(ctx)
		_ = enc.Encode(summary)
		if err != nil {
			if errors.Is(err, cache.ErrLockHeld) {
				log.Warn().Msg("Another recalculation is running, nothing to do")
				os.Exit(0)
			}
			exitCode = 1
		}
	}

	if withSnapshot || snapshotOnly {
		result, err := svc.CaptureSnapshot(ctx, snapshotDate)
		if result != nil {
			_ = enc.Encode(result)
		}
		if err != nil {
			log.Error().Err(err).Msg("Snapshot capture failed")
			exitCode = 1
		}
	}

	if exitCode != 0 {
		db.Close()
		os.Exit(exitCode)
	}
}

// setupLogger configures the zerolog logger. Logs go to stderr so the JSON
// summary on stdout stays machine readable.
func setupLogger() {
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	if os.Getenv("APP_ENV") == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		})
	}

	level := zerolog.InfoLevel
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		parsedLevel, err := zerolog.ParseLevel(lvl)
		if err == nil {
			level = parsedLevel
		}
	}
	zerolog.SetGlobalLevel(level)
}
