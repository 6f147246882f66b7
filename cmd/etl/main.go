package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/entityscan/entityscan/internal/cache"
	"github.com/entityscan/entityscan/internal/config"
	"github.com/entityscan/entityscan/internal/etl"
	"github.com/entityscan/entityscan/internal/logger"
	"github.com/entityscan/entityscan/internal/store"
)

func main() {
	var (
		configPath = flag.String("config", "", "Configuration file path")
		inputFile  = flag.String("input", "", "Input dataset file (CSV, Parquet, or JSON lines)")
		batchSize  = flag.Int("batch-size", 0, "Batch size for processing (overrides config)")
		skipCache  = flag.Bool("skip-cache", false, "Skip warming the Redis cache")
		clearCache = flag.Bool("clear-cache", false, "Clear the Redis result cache and exit")
		showStats  = flag.Bool("stats", false, "Show database statistics and exit")
	)
	flag.Parse()

	if *inputFile == "" && !*clearCache && !*showStats {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --input dataset.csv --batch-size 500\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --input dataset.parquet\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --clear-cache\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --stats\n", os.Args[0])
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *batchSize > 0 {
		cfg.ETL.BatchSize = *batchSize
	}
	if *skipCache {
		cfg.ETL.UpdateCache = false
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-shutdown
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))
		cancel()
	}()

	matchStore, err := store.New(&cfg.Store, log.WithComponent("store").Logger)
	if err != nil {
		log.Fatal("Failed to connect to match store", zap.Error(err))
	}
	defer matchStore.Close()

	if *showStats {
		stats, err := matchStore.GetStats(ctx)
		if err != nil {
			log.Fatal("Failed to fetch statistics", zap.Error(err))
		}
		encoded, _ := json.MarshalIndent(stats, "", "  ")
		fmt.Println(string(encoded))
		return
	}

	var resultCache *cache.ResultCache
	if cfg.ETL.UpdateCache || *clearCache {
		resultCache, err = cache.New(&cfg.Cache, log.WithComponent("cache").Logger)
		if err != nil {
			log.Fatal("Failed to connect to result cache", zap.Error(err))
		}
		defer resultCache.Close()
	}

	if *clearCache {
		if err := resultCache.Clear(ctx); err != nil {
			log.Fatal("Failed to clear cache", zap.Error(err))
		}
		return
	}

	pipeline := etl.NewPipeline(matchStore, resultCache, &cfg.ETL, log.WithComponent("etl").Logger)

	result, err := pipeline.ProcessFile(ctx, *inputFile)
	if err != nil {
		log.Fatal("Pipeline failed", zap.Error(err))
	}

	log.Info("Done",
		zap.Int64("records", result.TotalRecords),
		zap.Int64("matches", result.MatchesFound),
		zap.Duration("duration", result.Duration),
	)
}
