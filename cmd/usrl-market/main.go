// Command usrl-market is the Go rebuild of examples/market_publisher.c,
// except the quotes it publishes come from Binance's live bookTicker
// stream instead of a hard-coded loop, taking over the role
// feeder/binance/feeder.go played for the teacher's own Rust core.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/AlephTX/usrl/marketbridge"
	"github.com/AlephTX/usrl/shm"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	fs := flag.NewFlagSet("usrl-market", flag.ExitOnError)
	region := fs.StringP("region", "r", "usrl-market", "shared-memory region name to create")
	topic := fs.StringP("topic", "t", "prices", "topic to publish quotes on")
	symbols := fs.StringSlice("symbol", []string{"btcusdt"}, "Binance symbols to stream, comma-separated")
	slotCount := fs.Uint32("slots", 512, "ring slot count for the topic")
	payloadSize := fs.Uint32("payload-size", 256, "payload bytes per slot")
	fs.Parse(os.Args[1:])

	regionSizeBytes := uint64(50 * 1024 * 1024)
	_ = shm.Unlink(*region)
	err := shm.Init(*region, regionSizeBytes, []shm.TopicConfig{
		{Name: *topic, Type: shm.SWMR, SlotCount: *slotCount, PayloadSize: *payloadSize},
	})
	if err != nil {
		log.Fatalf("shm.Init: %v", err)
	}
	defer shm.Unlink(*region)
	log.Printf("region /dev/shm/%s ready, topic=%s symbols=%s", *region, *topic, strings.Join(*symbols, ","))

	bridge, err := marketbridge.NewBinanceBridge(*region, *topic, *symbols)
	if err != nil {
		log.Fatalf("marketbridge: %v", err)
	}
	defer bridge.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := bridge.Run(ctx); err != nil && err != context.Canceled {
		log.Printf("usrl-market: %v", err)
	}
}
