// Command usrl-demo is the Go rebuild of modules/publisher_demo.c and
// modules/subscriber_demo.c: it creates a region from a deployment file
// (unlinking any existing region of that name first), then runs one
// publisher goroutine per configured topic alongside a subscriber
// goroutine that logs every message it receives, the same role the teacher's main.go plays for exchange
// feeds (load config, spin up one goroutine per configured source, wait
// on a cancelable context).
package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/AlephTX/usrl/config"
	"github.com/AlephTX/usrl/pubsub"
	"github.com/AlephTX/usrl/shm"
	"github.com/AlephTX/usrl/transport"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.Println("usrl-demo starting...")

	_ = godotenv.Load() // best-effort; fine if there's no .env file

	fs := flag.NewFlagSet("usrl-demo", flag.ExitOnError)
	relayAddr := fs.String("relay", "", "optional TCP address to forward every subscribed message to, length-prefixed")
	_ = fs.Parse(os.Args[1:])

	cfgPath := "region.toml"
	if p := os.Getenv("USRL_DEMO_CONFIG"); p != "" {
		cfgPath = p
	}
	spec, err := config.LoadTOML(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config %s: %v", cfgPath, err)
	}
	topics, err := spec.Topics()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	regionName := spec.Name
	if s := os.Getenv("USRL_DEMO_REGION"); s != "" {
		regionName = s
	}

	_ = shm.Unlink(regionName)
	if err := shm.Init(regionName, spec.Size, topics); err != nil {
		log.Fatalf("shm.Init: %v", err)
	}
	defer shm.Unlink(regionName)
	log.Printf("region /dev/shm/%s ready, %d topic(s)", regionName, len(topics))

	var relayConn net.Conn
	if *relayAddr != "" {
		relayConn, err = transport.DialTCP(*relayAddr)
		if err != nil {
			log.Fatalf("relay dial %s: %v", *relayAddr, err)
		}
		defer relayConn.Close()
		log.Printf("relaying subscribed messages to %s", *relayAddr)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for _, topic := range topics {
		topic := topic
		g.Go(func() error { return runPublisher(ctx, regionName, topic.Name) })
		g.Go(func() error { return runSubscriber(ctx, regionName, topic.Name, relayConn) })
	}

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Printf("usrl-demo: %v", err)
	}
	log.Println("usrl-demo stopped")
}

func runPublisher(ctx context.Context, region, topic string) error {
	pub, err := pubsub.OpenPublisher(region, topic, nil, false, nil)
	if err != nil {
		return fmt.Errorf("publisher[%s]: %w", topic, err)
	}
	defer pub.Close()

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for i := 0; ; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			msg := fmt.Sprintf("hello %d", i)
			if _, err := pub.Publish([]byte(msg)); err != nil {
				log.Printf("[PUB %s] publish error: %v", topic, err)
			}
		}
	}
}

func runSubscriber(ctx context.Context, region, topic string, relay net.Conn) error {
	sub, err := pubsub.OpenSubscriber(region, topic, nil)
	if err != nil {
		return fmt.Errorf("subscriber[%s]: %w", topic, err)
	}
	defer sub.Close()

	log.Printf("[SUB %s] connected", topic)
	buf := make([]byte, 4096)
	return sub.Run(ctx, buf, func(res shm.Result, payload []byte) error {
		log.Printf("[SUB %s] seq=%d pub=%d -> %s", topic, res.Seq, res.PublisherID, payload)
		if relay != nil {
			if err := transport.WriteFrame(relay, payload); err != nil {
				return fmt.Errorf("relay[%s]: %w", topic, err)
			}
		}
		return nil
	})
}
