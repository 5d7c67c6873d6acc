package main

import (
	"context"
	"flag"
	"log"
	"math/rand"
	"strings"
	"time"

	"tradepipe/pkg/db"
)

// seed_candles fills the candles table with a synthetic random walk so
// backtests and sweeps have data to replay without a live feed.
//
// Usage:
//   go run ./scripts/seed_candles -db ./data/tradepipe.db -symbol BTC-USD -days 30

func main() {
	var (
		dbPath    = flag.String("db", "./data/tradepipe.db", "sqlite database path")
		symbol    = flag.String("symbol", "BTC-USD", "asset symbol")
		timeframe = flag.String("timeframe", "1m", "candle timeframe")
		days      = flag.Int("days", 7, "days of history to generate")
		stepMins  = flag.Int("step", 1, "minutes per candle")
		start     = flag.Float64("price", 100.0, "starting price")
		stepPct   = flag.Float64("steppct", 0.5, "max percent move per candle")
		seed      = flag.Int64("seed", 0, "rng seed, 0 uses current time")
	)
	flag.Parse()

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(*seed))

	ctx := context.Background()
	database, err := db.New(*dbPath)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	base, quote := *symbol, "USD"
	if parts := strings.SplitN(*symbol, "-", 2); len(parts) == 2 {
		base, quote = parts[0], parts[1]
	}
	asset, err := database.GetOrCreateAsset(ctx, *symbol, base, quote)
	if err != nil {
		log.Fatalf("asset: %v", err)
	}

	step := time.Duration(*stepMins) * time.Minute
	from := time.Now().UTC().Truncate(step).AddDate(0, 0, -*days)
	total := int(time.Duration(*days) * 24 * time.Hour / step)

	price := *start
	batch := make([]db.Candle, 0, 500)
	written := 0
	for i := 0; i < total; i++ {
		open := price
		move := (rng.Float64()*2 - 1) * *stepPct / 100
		price = open * (1 + move)
		high, low := open, price
		if price > open {
			high, low = price, open
		}
		// Random wicks beyond the body.
		high *= 1 + rng.Float64()*(*stepPct)/300
		low *= 1 - rng.Float64()*(*stepPct)/300

		batch = append(batch, db.Candle{
			AssetID:   asset.ID,
			Timeframe: *timeframe,
			Timestamp: from.Add(time.Duration(i) * step),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     price,
			Volume:    1 + rng.Float64()*10,
			Source:    "synthetic",
		})
		if len(batch) == cap(batch) {
			if err := database.UpsertCandles(ctx, batch); err != nil {
				log.Fatalf("upsert: %v", err)
			}
			written += len(batch)
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		if err := database.UpsertCandles(ctx, batch); err != nil {
			log.Fatalf("upsert: %v", err)
		}
		written += len(batch)
	}

	log.Printf("seeded %d %s candles for %s from %s (seed %d, final price %.2f)",
		written, *timeframe, *symbol, from.Format(time.RFC3339), *seed, price)
}
