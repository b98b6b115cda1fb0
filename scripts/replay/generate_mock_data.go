package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"log"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/yourusername/quantlink-tick-engine/pkg/config"
	"github.com/yourusername/quantlink-tick-engine/pkg/market"
)

var (
	configFile = flag.String("config", "./config/trader.yaml", "Configuration file path (products to generate)")
	output     = flag.String("output", "./data/replay/mock.jsonl", "Output JSON-lines file")
	ticks      = flag.Int("ticks", 1000, "Number of snapshots")
	step       = flag.Int64("step", 100, "Timestamp increment per tick")
	seed       = flag.Int64("seed", 1, "Random seed")
	convSyms   = flag.String("conversion-symbols", "ORCHIDS", "Comma-separated symbols that get conversion observations")
)

// 各品种起始中间价，未列出的取 5000
var basePrices = map[market.Symbol]float64{
	"AMETHYSTS":      10000,
	"STARFRUIT":      5040,
	"ORCHIDS":        1100,
	"CHOCOLATE":      8000,
	"STRAWBERRIES":   4000,
	"ROSES":          14000,
	"GIFT_BASKET":    70400,
	"COCONUT":        10000,
	"COCONUT_COUPON": 630,
}

func main() {
	flag.Parse()

	cfg, err := config.LoadTraderConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(*output), 0755); err != nil {
		log.Fatalf("Failed to create directory: %v", err)
	}
	f, err := os.Create(*output)
	if err != nil {
		log.Fatalf("Failed to create output: %v", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	defer w.Flush()

	conv := make(map[market.Symbol]bool)
	for _, s := range strings.Split(*convSyms, ",") {
		if s = strings.TrimSpace(s); s != "" {
			conv[market.Symbol(s)] = true
		}
	}

	rng := rand.New(rand.NewSource(*seed))
	prices := make(map[market.Symbol]float64, len(cfg.Products))
	for _, p := range cfg.Products {
		sym := market.Symbol(p.Symbol)
		prices[sym] = basePrices[sym]
		if prices[sym] == 0 {
			prices[sym] = 5000
		}
	}

	log.Printf("Generating %d snapshots for %d products -> %s", *ticks, len(cfg.Products), *output)

	enc := json.NewEncoder(w)
	for i := 0; i < *ticks; i++ {
		snap := market.Snapshot{
			Timestamp:   int64(i) * *step,
			OrderDepths: make(map[market.Symbol]market.OrderDepth, len(cfg.Products)),
			Positions:   map[market.Symbol]int{},
		}
		// 按配置顺序抽随机数，保证同一 seed 结果一致
		for _, p := range cfg.Products {
			sym := market.Symbol(p.Symbol)
			mid := prices[sym] * (1 + 0.0005*rng.NormFloat64())
			prices[sym] = mid
			snap.OrderDepths[sym] = randomDepth(rng, mid)

			if conv[sym] {
				if snap.Conversions == nil {
					snap.Conversions = make(map[market.Symbol]market.ConversionObservation)
				}
				snap.Conversions[sym] = market.ConversionObservation{
					BidPrice:      mid + 2*rng.Float64(),
					AskPrice:      mid + 2 + 2*rng.Float64(),
					TransportFees: 0.9 + 0.2*rng.Float64(),
					ExportTariff:  9 + rng.Float64(),
					ImportTariff:  -5 + rng.Float64(),
				}
			}
		}
		if err := enc.Encode(snap); err != nil {
			log.Fatalf("Failed to write snapshot: %v", err)
		}
	}

	log.Println("Mock data generation completed!")
}

// randomDepth builds 1-3 levels per side around mid
func randomDepth(rng *rand.Rand, mid float64) market.OrderDepth {
	d := market.NewOrderDepth()
	half := 1 + rng.Intn(3)
	bid := int(math.Floor(mid)) - half + 1
	ask := int(math.Ceil(mid)) + half - 1
	if ask <= bid {
		ask = bid + 1
	}
	nBid, nAsk := 1+rng.Intn(3), 1+rng.Intn(3)
	for lvl := 0; lvl < nBid; lvl++ {
		d.Buy[bid-lvl] = 1 + rng.Intn(30)
	}
	for lvl := 0; lvl < nAsk; lvl++ {
		d.Sell[ask+lvl] = -(1 + rng.Intn(30))
	}
	return d
}
