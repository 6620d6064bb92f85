package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/voledgehq/voledge/internal/config"
	"github.com/voledgehq/voledge/internal/ibkr"
	"github.com/voledgehq/voledge/internal/logger"
	"github.com/voledgehq/voledge/internal/mispricing"
	"github.com/voledgehq/voledge/internal/models"
	"github.com/voledgehq/voledge/internal/scoring"
	"github.com/voledgehq/voledge/internal/storage"
	"github.com/voledgehq/voledge/internal/telegram"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Setup logging with level support
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	// Initialize storage
	store, err := storage.New(cfg.Storage.DatabasePath)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	// Initialize gateway client
	gateway := ibkr.NewClient(
		cfg.IBKR.GatewayURL,
		cfg.IBKR.Timeout,
		cfg.IBKR.MaxRetries,
		cfg.IBKR.RetryDelay,
	)

	// Initialize detector and scorer (already validated above)
	detector, err := mispricing.New(cfg.DetectorConfig())
	if err != nil {
		logger.Fatal("Failed to initialize detector: %v", err)
	}
	scorer, err := scoring.New(cfg.ScorerConfig())
	if err != nil {
		logger.Fatal("Failed to initialize scorer: %v", err)
	}

	// Initialize Telegram client
	var telegramClient *telegram.Client
	if cfg.Telegram.Enabled {
		telegramClient, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, 0, 0)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		cancel()
	}()

	// Start scan loop
	logger.Info("Starting scanner (symbols: %v, interval: %v, top_k: %d, iv_hv_threshold: %.2f)",
		cfg.Scanner.Symbols,
		cfg.Scanner.ScanInterval,
		cfg.Scanner.TopK,
		cfg.Scanner.IVHVThreshold,
	)
	logger.Debug("Screening configuration: dte=[%d,%d], delta=[%.2f,%.2f], min_premium=%.2f, max_spread=%.2f",
		cfg.Scanner.MinDTE,
		cfg.Scanner.MaxDTE,
		cfg.Scanner.MinDelta,
		cfg.Scanner.MaxDelta,
		cfg.Scanner.MinPremium,
		cfg.Scanner.MaxSpreadRatio,
	)

	ticker := time.NewTicker(cfg.Scanner.ScanInterval)
	defer ticker.Stop()

	// Run initial scan immediately
	logger.Debug("Running initial scan cycle")
	if err := runScanCycle(ctx, gateway, detector, scorer, store, telegramClient, cfg); err != nil {
		logger.Error("Scan cycle failed: %v", err)
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("Service stopped")
			return

		case <-ticker.C:
			logger.Debug("Starting scheduled scan cycle")
			if err := runScanCycle(ctx, gateway, detector, scorer, store, telegramClient, cfg); err != nil {
				logger.Error("Scan cycle failed: %v", err)
			}

			// Rotate old data
			cutoff := time.Now().UTC().AddDate(0, 0, -cfg.Storage.MaxScanAge)
			if pruned, err := store.PruneOpportunities(cutoff); err != nil {
				logger.Warn("Failed to prune opportunities: %v", err)
			} else if pruned > 0 {
				logger.Debug("Pruned %d opportunities older than %v", pruned, cutoff)
			}
		}
	}
}

func runScanCycle(
	ctx context.Context,
	gateway *ibkr.Client,
	detector *mispricing.Detector,
	scorer *scoring.Scorer,
	store *storage.Storage,
	telegramClient *telegram.Client,
	cfg *config.Config,
) error {
	startTime := time.Now()
	logger.Info("Starting scan cycle")

	var ranked []models.ScoredOpportunity
	for _, symbol := range cfg.Scanner.Symbols {
		opps, err := scanSymbol(ctx, gateway, detector, scorer, cfg, symbol)
		if err != nil {
			// One broken symbol must not sink the rest of the cycle
			logger.Warn("Failed to scan %s: %v", symbol, err)
			continue
		}
		ranked = append(ranked, opps...)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// Merge per-symbol results into one ranked list and keep the top K
	ranked = mergeRanked(ranked)
	if len(ranked) > cfg.Scanner.TopK {
		ranked = ranked[:cfg.Scanner.TopK]
	}

	if len(ranked) > 0 {
		logger.Info("Scan found %d opportunities (best: %s %.0f %s, score %.1f)",
			len(ranked),
			ranked[0].Signal.Quote.Underlying,
			ranked[0].Signal.Quote.Strike,
			ranked[0].Signal.Quote.Type,
			ranked[0].CompositeScore,
		)

		if err := store.SaveOpportunities(ranked); err != nil {
			logger.Error("Failed to save opportunities: %v", err)
		}

		if cfg.Telegram.Enabled && telegramClient != nil {
			logger.Debug("Sending top %d opportunities to Telegram", len(ranked))
			if err := telegramClient.Send(ranked); err != nil {
				logger.Error("Failed to send Telegram notification: %v", err)
			} else {
				logger.Info("Sent Telegram notification with %d opportunities", len(ranked))
			}
		}
	} else {
		logger.Info("No opportunities passed the filters this cycle")
	}

	duration := time.Since(startTime)
	logger.Info("Scan cycle completed in %v", duration)

	return nil
}

// scanSymbol runs the full pipeline for one underlying: price history,
// option chain, mispricing evaluation, scoring.
func scanSymbol(
	ctx context.Context,
	gateway *ibkr.Client,
	detector *mispricing.Detector,
	scorer *scoring.Scorer,
	cfg *config.Config,
	symbol string,
) ([]models.ScoredOpportunity, error) {
	conid, _, err := gateway.SearchUnderlying(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", symbol, err)
	}

	bars, err := gateway.FetchHistory(ctx, conid, cfg.Scanner.HistoryDays)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history for %s: %w", symbol, err)
	}
	logger.Debug("Fetched %d bars for %s", len(bars), symbol)

	quotes, err := gateway.FetchChain(ctx, symbol, ibkr.ChainSpec{
		Right:       chainRight(cfg.Scoring.Strategy),
		MaxDTE:      cfg.Scanner.MaxDTE,
		StrikeRange: 0.20,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chain for %s: %w", symbol, err)
	}
	logger.Debug("Fetched %d quotes for %s", len(quotes), symbol)
	if len(quotes) == 0 {
		return nil, nil
	}

	signals := detector.EvaluateChain(quotes, bars)

	passed := 0
	for i := range signals {
		if signals[i].PassesFilters {
			passed++
		}
	}
	logger.Debug("%s: %d of %d quotes passed filters", symbol, passed, len(signals))

	return scorer.Rank(signals), nil
}

// chainRight maps the configured strategy to the option side to scan.
// Premium-selling strategies on the put side are the default.
func chainRight(strategy string) models.OptionType {
	if scoring.Strategy(strategy) == scoring.NakedCall {
		return models.Call
	}
	return models.Put
}

// mergeRanked re-sorts opportunities collected across symbols with the same
// ordering Rank uses, so the cross-symbol top K is deterministic.
func mergeRanked(opps []models.ScoredOpportunity) []models.ScoredOpportunity {
	sort.Slice(opps, func(i, j int) bool {
		a, b := &opps[i], &opps[j]
		if a.CompositeScore != b.CompositeScore {
			return a.CompositeScore > b.CompositeScore
		}
		qa, qb := &a.Signal.Quote, &b.Signal.Quote
		if qa.Underlying != qb.Underlying {
			return qa.Underlying < qb.Underlying
		}
		if qa.Strike != qb.Strike {
			return qa.Strike < qb.Strike
		}
		return qa.Type < qb.Type
	})
	return opps
}
