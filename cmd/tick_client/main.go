package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/yourusername/quantlink-tick-engine/pkg/client"
	"github.com/yourusername/quantlink-tick-engine/pkg/market"
)

var (
	grpcAddr = flag.String("grpc", "localhost:9200", "Engine gRPC address")
	useNATS  = flag.Bool("nats", false, "Use NATS instead of gRPC")
	natsURL  = flag.String("nats-url", "nats://localhost:4222", "NATS server URL")
	prefix   = flag.String("prefix", "tick", "NATS subject prefix")
	snapFile = flag.String("snapshot", "", "Snapshot JSON file to send (one decision)")
	watch    = flag.Bool("watch", false, "Subscribe to the decision stream over NATS and print statistics")
	timeout  = flag.Duration("timeout", 2*time.Second, "Request timeout")
)

func main() {
	flag.Parse()

	if *watch {
		runWatch()
		return
	}
	if *snapFile == "" {
		log.Fatal("[Client] -snapshot or -watch is required")
	}

	data, err := os.ReadFile(*snapFile)
	if err != nil {
		log.Fatalf("[Client] Failed to read snapshot: %v", err)
	}
	var snap market.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Fatalf("[Client] Invalid snapshot: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	start := time.Now()
	var d *market.Decision
	if *useNATS {
		c, err := client.NewNATSClient(*natsURL, *prefix)
		if err != nil {
			log.Fatalf("[Client] Failed to connect NATS: %v", err)
		}
		defer c.Close()
		var reqID string
		d, reqID, err = c.Decide(ctx, &snap)
		if err != nil {
			log.Fatalf("[Client] Decide failed: %v", err)
		}
		fmt.Printf("[Client] request %s answered in %v\n", reqID, time.Since(start))
	} else {
		c, err := client.NewEngineClient(*grpcAddr)
		if err != nil {
			log.Fatalf("[Client] Failed to create gRPC client: %v", err)
		}
		defer c.Close()
		d, err = c.Decide(ctx, &snap)
		if err != nil {
			log.Fatalf("[Client] Decide failed: %v", err)
		}
		fmt.Printf("[Client] answered in %v\n", time.Since(start))
	}

	printDecision(d)
}

func runWatch() {
	c, err := client.NewNATSClient(*natsURL, *prefix)
	if err != nil {
		log.Fatalf("[Client] Failed to connect NATS: %v", err)
	}
	defer c.Close()

	// 统计
	startTime := time.Now()
	var count int64
	err = c.SubscribeDecisions(func(reqID string, d *market.Decision) {
		n := atomic.AddInt64(&count, 1)
		// 前10条每条都打印，之后每100个打印一次
		if n <= 10 || n%100 == 0 {
			throughput := float64(n) / time.Since(startTime).Seconds()
			fmt.Printf("[Client] #%d ts=%d orders=%d conv=%d req=%s (%.0f msg/s)\n",
				n, d.Timestamp, d.OrderCount(), d.Conversions, reqID, throughput)
		}
	})
	if err != nil {
		log.Fatalf("[Client] Failed to subscribe: %v", err)
	}
	fmt.Printf("[Client] Watching %s.decision on %s\n", *prefix, *natsURL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	fmt.Printf("\n[Client] Received %d decisions\n", atomic.LoadInt64(&count))
}

func printDecision(d *market.Decision) {
	fmt.Printf("timestamp:   %d\n", d.Timestamp)
	fmt.Printf("conversions: %d\n", d.Conversions)
	fmt.Printf("token bytes: %d\n", len(d.TraderData))
	syms := make([]string, 0, len(d.Orders))
	for sym := range d.Orders {
		syms = append(syms, string(sym))
	}
	sort.Strings(syms)
	for _, sym := range syms {
		for _, o := range d.Orders[market.Symbol(sym)] {
			fmt.Printf("  %s\n", o)
		}
	}
}
