package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"tradepipe/internal/api"
	"tradepipe/internal/events"
	"tradepipe/internal/execution"
	"tradepipe/internal/market"
	"tradepipe/internal/order"
	"tradepipe/internal/risk"
	"tradepipe/internal/runner"
	"tradepipe/internal/strategy"
	"tradepipe/pkg/cache"
	"tradepipe/pkg/config"
	"tradepipe/pkg/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	log.Printf("starting tradepipe on port %s (mode=%s, symbol=%s)", cfg.Port, cfg.PortfolioMode, cfg.Symbol)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewBus()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("db init failed: %v", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf("db migrations failed: %v", err)
	}

	// Portfolio and asset bootstrap.
	portfolio, err := database.GetOrCreatePortfolio(ctx, cfg.PortfolioName, cfg.PortfolioMode, "USD", cfg.StartingEquity)
	if err != nil {
		log.Fatalf("portfolio bootstrap failed: %v", err)
	}
	base, quote := splitSymbol(cfg.Symbol)
	asset, err := database.GetOrCreateAsset(ctx, cfg.Symbol, base, quote)
	if err != nil {
		log.Fatalf("asset bootstrap failed: %v", err)
	}

	// Strategy configs: YAML file synced into strategy_configs rows.
	strategies, err := strategy.LoadConfig(cfg.StrategyConfigPath)
	if err != nil {
		log.Printf("strategy config %s unavailable (%v), using built-in default", cfg.StrategyConfigPath, err)
		strategies = []strategy.Config{{
			Name:       "green-candle-default",
			Type:       "green_candle",
			Symbol:     cfg.Symbol,
			Interval:   cfg.Timeframe,
			Parameters: map[string]interface{}{"confirm_bars": 2},
			IsActive:   true,
		}}
	}
	stratIDs, err := strategy.SyncConfigToDB(ctx, database, strategies)
	if err != nil {
		log.Fatalf("strategy sync failed: %v", err)
	}

	// Execution backend. Live keys are out of scope; both paper and live
	// modes run against the simulator quoting the latest seen close. A
	// quote older than ten bar intervals is treated as missing, which
	// makes the order manager fall back to the signal price.
	prices := cache.NewQuoteCache()
	quoteMaxAge := 10 * cfg.BarInterval
	sim := execution.NewSimulator(func(sym string) (float64, error) {
		price, ok := prices.GetFresh(sym, quoteMaxAge)
		if !ok {
			return 0, fmt.Errorf("no fresh quote for %s", sym)
		}
		return price, nil
	}, cfg.SimFeeBps)

	riskCfg := risk.Config{
		MaxRiskPerTradePct: cfg.MaxRiskPerTradePct,
		MaxDailyLossPct:    cfg.MaxDailyLossPct,
		MaxTradesPerDay:    cfg.MaxTradesPerDay,
		WarnBarRangePct:    risk.DefaultConfig().WarnBarRangePct,
	}
	orderCfg := order.Config{
		MaxSlippagePct: cfg.MaxSlippagePct,
		StopLossPct:    cfg.StopLossPct,
		TakeProfitPct:  cfg.TakeProfitPct,
		DefaultRiskPct: cfg.MaxRiskPerTradePct,
		Poll: execution.PollPolicy{
			MaxAttempts: cfg.PollMaxAttempts,
			Interval:    cfg.PollInterval,
			Backoff:     cfg.PollBackoff,
			Timeout:     cfg.PollTimeout,
		},
	}
	gate := risk.NewGate(database, bus, riskCfg)

	var wg sync.WaitGroup

	// One runner per active strategy on the configured symbol. Each
	// owns its own scope so debounce and trade state never cross.
	started := 0
	for _, sc := range strategies {
		if !sc.IsActive || sc.Symbol != cfg.Symbol {
			continue
		}
		strat, err := strategy.New(sc)
		if err != nil {
			log.Printf("strategy %s skipped: %v", sc.Name, err)
			continue
		}
		scope := order.Scope{
			PortfolioID:      portfolio.ID,
			AssetID:          asset.ID,
			StrategyConfigID: stratIDs[sc.Name],
			Symbol:           sc.Symbol,
		}
		mgr := order.NewManager(database, sim, bus, gate, scope, orderCfg)
		run := runner.New(database, bus, strat, gate, mgr)

		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			log.Printf("runner %s started", name)
			run.Run(ctx)
		}(sc.Name)
		started++
	}
	if started == 0 {
		log.Printf("no active strategies for %s, pipeline is idle", cfg.Symbol)
	}

	// Bar-driven bookkeeping: latest quote for the simulator plus candle
	// persistence so backtests can replay what the feed produced.
	wg.Add(1)
	go func() {
		defer wg.Done()
		recordBars(ctx, database, bus, prices, asset.ID)
	}()

	// Daily equity snapshots roll up on every closed trade.
	wg.Add(1)
	go func() {
		defer wg.Done()
		rollSnapshots(ctx, database, bus, portfolio.ID)
	}()

	if cfg.UseMockFeed {
		feed := &market.MockFeed{
			Bus:       bus,
			Symbol:    cfg.Symbol,
			Timeframe: cfg.Timeframe,
			Start:     cfg.MockStartPrice,
			StepPct:   cfg.MockStepPct,
			Interval:  cfg.BarInterval,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			feed.Run(ctx)
		}()
	}

	server := api.NewServer(bus, database, order.Scope{
		PortfolioID: portfolio.ID,
		AssetID:     asset.ID,
		Symbol:      cfg.Symbol,
	}, riskCfg, orderCfg, cfg.SimFeeBps, strategies, api.SystemMeta{
		Mode:        cfg.PortfolioMode,
		Symbol:      cfg.Symbol,
		Timeframe:   cfg.Timeframe,
		UseMockFeed: cfg.UseMockFeed,
		Version:     "1.0.0",
	}, cfg.JWTSecret, cfg.APIToken)

	go func() {
		if err := server.Start(":" + cfg.Port); err != nil {
			log.Printf("api server stopped: %v", err)
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sig:
		log.Printf("received %s, shutting down", s)
	case <-ctx.Done():
	}
	cancel()
	wg.Wait()
	log.Println("tradepipe stopped")
}

func splitSymbol(symbol string) (base, quote string) {
	parts := strings.SplitN(symbol, "-", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return symbol, "USD"
}

// recordBars keeps the simulator quote current and persists each closed
// bar as a candle row.
func recordBars(ctx context.Context, database *db.Database, bus *events.Bus, prices *cache.QuoteCache, assetID string) {
	ch, unsub := bus.Subscribe(events.EventBar, 64)
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			bar, ok := msg.(events.BarPayload)
			if !ok {
				continue
			}
			prices.Set(bar.Symbol, bar.Close)
			err := database.UpsertCandles(ctx, []db.Candle{{
				AssetID:   assetID,
				Timeframe: bar.Timeframe,
				Timestamp: bar.Timestamp,
				Open:      bar.Open,
				High:      bar.High,
				Low:       bar.Low,
				Close:     bar.Close,
				Volume:    bar.Volume,
				Source:    "feed",
			}})
			if err != nil && ctx.Err() == nil {
				log.Printf("candle persist failed: %v", err)
			}
		}
	}
}

// rollSnapshots upserts the day's equity row whenever a trade closes.
// The snapshot's ending equity becomes tomorrow's sizing basis.
func rollSnapshots(ctx context.Context, database *db.Database, bus *events.Bus, portfolioID string) {
	ch, unsub := bus.Subscribe(events.EventTradeClosed, 64)
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			trade, isTrade := msg.(events.TradePayload)
			if !isTrade || trade.PortfolioID != portfolioID {
				continue
			}
			if err := upsertTodaySnapshot(ctx, database, portfolioID); err != nil && ctx.Err() == nil {
				log.Printf("snapshot roll failed: %v", err)
			}
		}
	}
}

func upsertTodaySnapshot(ctx context.Context, database *db.Database, portfolioID string) error {
	state, err := database.LoadPortfolioState(ctx, portfolioID)
	if err != nil {
		return err
	}
	today := time.Now().UTC().Format("2006-01-02")

	// Basis at day start: yesterday's close if we have one, else the
	// portfolio's configured start.
	starting := state.Portfolio.StartingEquity
	if state.LastSnapshot != nil && state.LastSnapshot.Date != today {
		starting = state.LastSnapshot.EndingEquity
	} else if state.LastSnapshot != nil && state.LastSnapshot.Date == today {
		starting = state.LastSnapshot.StartingEquity
	}

	pnl, trades, err := database.DailyActivity(ctx, portfolioID, today)
	if err != nil {
		return err
	}
	snap := db.DailySnapshot{
		PortfolioID:    portfolioID,
		Date:           today,
		StartingEquity: starting,
		EndingEquity:   starting + pnl,
		RealizedPnL:    pnl,
		NumTrades:      trades,
	}
	if err := database.UpsertDailySnapshot(ctx, snap); err != nil {
		return err
	}
	if out, err := json.Marshal(snap); err == nil {
		log.Printf("daily snapshot rolled: %s", out)
	}
	return nil
}
