package marketbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/AlephTX/usrl/pubsub"
	"github.com/AlephTX/usrl/schema"
)

// bookTicker is Binance's raw bookTicker stream payload, the same field
// set the teacher feeder decodes in feeder/binance/feeder.go, minus the
// fields this bridge doesn't forward (event type/time).
type bookTicker struct {
	Symbol   string `json:"s"`
	BidPrice string `json:"b"`
	AskPrice string `json:"a"`
}

// BinanceBridge subscribes to Binance's combined bookTicker stream and
// republishes each update as a PriceQuoteSchema message into a region
// topic, taking the place of ipc.Publisher's JSON-over-Unix-socket hop to
// a separate core process: here the "core" is the region itself.
type BinanceBridge struct {
	symbols []string
	pub     *pubsub.Publisher
	schema  *schema.Schema
}

// NewBinanceBridge builds a bridge publishing to topic in region for the
// given Binance symbols (e.g. "btcusdt", "ethusdt").
func NewBinanceBridge(region, topic string, symbols []string) (*BinanceBridge, error) {
	s, err := PriceQuoteSchema()
	if err != nil {
		return nil, err
	}
	pub, err := pubsub.OpenPublisher(region, topic, nil, false, nil)
	if err != nil {
		return nil, err
	}
	return &BinanceBridge{symbols: symbols, pub: pub, schema: s}, nil
}

// Close releases the underlying publisher handle.
func (b *BinanceBridge) Close() error { return b.pub.Close() }

// Run streams bookTicker updates until ctx is canceled, reconnecting on
// drop exactly like feeder/binance/feeder.go's Run/connect pair.
func (b *BinanceBridge) Run(ctx context.Context) error {
	streams := make([]string, len(b.symbols))
	for i, s := range b.symbols {
		streams[i] = strings.ToLower(s) + "@bookTicker"
	}
	url := "wss://stream.binance.com:9443/stream?streams=" + strings.Join(streams, "/")

	return RunConnectionLoop(ctx, "marketbridge/binance", 5*time.Second, func(ctx context.Context) error {
		return b.connect(ctx, url)
	})
}

func (b *BinanceBridge) connect(ctx context.Context, url string) error {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.CloseNow()

	for {
		var envelope struct {
			Stream string          `json:"stream"`
			Data   json.RawMessage `json:"data"`
		}
		if err := wsjson.Read(ctx, conn, &envelope); err != nil {
			return err
		}

		var raw bookTicker
		if err := json.Unmarshal(envelope.Data, &raw); err != nil {
			continue
		}
		if err := b.publish(raw); err != nil {
			return fmt.Errorf("publish: %w", err)
		}
	}
}

func (b *BinanceBridge) publish(t bookTicker) error {
	bid, err := strconv.ParseFloat(t.BidPrice, 64)
	if err != nil {
		return nil // skip malformed ticks rather than killing the connection
	}
	ask, err := strconv.ParseFloat(t.AskPrice, 64)
	if err != nil {
		return nil
	}

	msg, err := schema.NewMessage(b.schema, 0)
	if err != nil {
		return err
	}
	_ = msg.SetU64("timestamp", uint64(time.Now().UnixNano()))
	_ = msg.SetU32("ticker_crc", tickerCRC(t.Symbol))
	_ = msg.SetF64("bid_price", bid)
	_ = msg.SetF64("ask_price", ask)
	_ = msg.SetU64("volume", 0)

	buf := make([]byte, b.schema.TotalSize())
	if _, err := msg.Encode(buf); err != nil {
		return err
	}
	_, err = b.pub.Publish(buf)
	return err
}
