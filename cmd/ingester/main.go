// Command ingester connects to an upstream exchange websocket feed,
// validates and timestamps each ticker message, and forwards it over a
// length-framed TCP connection to the processor.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"mercurystream/processor/internal/config"
	"mercurystream/processor/internal/framing"
	"mercurystream/processor/internal/logging"
)

const (
	defaultFeedURL       = "wss://ws-feed.exchange.coinbase.com"
	defaultProcessorHost = "processor"
	defaultProcessorPort = "9001"
	defaultSymbols       = "BTC-USD,ETH-USD,SOL-USD"
	defaultBackoffMaxS   = 10.0
)

// ticker is the subset of an exchange ticker message the ingester validates
// before forwarding. Unknown fields are preserved by re-marshaling the raw
// decoded map rather than this struct, so downstream consumers still see
// whatever the exchange actually sent.
type ticker struct {
	Type      string  `json:"type"`
	ProductID string  `json:"product_id"`
	Price     string  `json:"price"`
	LastSize  string  `json:"last_size"`
	Time      string  `json:"time"`
	TradeID   *int64  `json:"trade_id"`
	Sequence  *int64  `json:"sequence"`
}

func (t ticker) valid() bool {
	return t.Type != "" && t.ProductID != "" && t.Price != "" && t.Time != ""
}

func main() {
	log, err := logging.New(config.LoggingConfig{
		Level:      getEnv("MERCURYSTREAM_LOG_LEVEL", config.DefaultLogLevel),
		Path:       getEnv("MERCURYSTREAM_LOG_PATH", "ingester.log"),
		MaxSizeMB:  config.DefaultLogMaxSizeMB,
		MaxBackups: config.DefaultLogMaxBackups,
		MaxAgeDays: config.DefaultLogMaxAgeDays,
		Compress:   config.DefaultLogCompress,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize structured logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	processorHost := getEnv("PROCESSOR_HOST", defaultProcessorHost)
	processorPort := getEnv("PROCESSOR_PORT", defaultProcessorPort)
	symbols := splitSymbols(getEnv("SYMBOLS", defaultSymbols))
	backoffMax := getEnvFloat("BACKOFF_MAX", defaultBackoffMaxS)
	feedURL := getEnv("FEED_URL", defaultFeedURL)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Info("starting ingester",
		logging.Strings("symbols", symbols),
		logging.String("processor", net.JoinHostPort(processorHost, processorPort)),
	)

	run(ctx, log, processorHost, processorPort, feedURL, symbols, backoffMax)
}

// run is the ingester's reconnect loop: it dials the processor over TCP if no
// connection is open, then streams the feed over it. Any failure reported by
// streamOnce (feed dial, feed read, or TCP write) closes the TCP connection,
// and both legs are redialed after a shared exponential backoff.
func run(ctx context.Context, log *logging.Logger, processorHost, processorPort, feedURL string, symbols []string, backoffMaxS float64) {
	subscribeMsg := buildSubscribeMessage(symbols)
	var conn net.Conn
	backoff := time.Second

	defer func() {
		if conn != nil {
			_ = conn.Close()
		}
	}()

	for {
		if ctx.Err() != nil {
			return
		}

		if conn == nil {
			var err error
			conn, err = (&net.Dialer{}).DialContext(ctx, "tcp", net.JoinHostPort(processorHost, processorPort))
			if err != nil {
				log.Warn("failed to connect to processor", logging.Error(err))
				if !sleepBackoff(ctx, &backoff, backoffMaxS) {
					return
				}
				continue
			}
			log.Info("connected to processor", logging.String("addr", net.JoinHostPort(processorHost, processorPort)))
		}

		if err := streamOnce(ctx, log, conn, feedURL, subscribeMsg, symbols, &backoff, backoffMaxS); err != nil {
			log.Warn("connection failed; will retry", logging.Error(err))
			_ = conn.Close()
			conn = nil
			if !sleepBackoff(ctx, &backoff, backoffMaxS) {
				return
			}
		}
	}
}

// streamOnce dials the upstream feed, subscribes, and forwards ticker
// messages to conn until the websocket errs or ctx is canceled. A nil error
// return only happens when ctx is canceled; any feed or write failure is
// surfaced so the caller resets the TCP connection and retries.
func streamOnce(ctx context.Context, log *logging.Logger, conn net.Conn, feedURL, subscribeMsg string, symbols []string, backoff *time.Duration, backoffMaxS float64) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	ws, _, err := dialer.DialContext(ctx, feedURL, nil)
	if err != nil {
		return fmt.Errorf("dial feed: %w", err)
	}
	defer ws.Close()
	ws.SetReadDeadline(time.Time{})
	_ = ws.SetPingHandler(func(string) error {
		return ws.WriteControl(websocket.PongMessage, nil, time.Now().Add(5*time.Second))
	})

	if err := ws.WriteMessage(websocket.TextMessage, []byte(subscribeMsg)); err != nil {
		return fmt.Errorf("send subscribe: %w", err)
	}
	log.Info("subscribed", logging.Int("symbol_count", len(symbols)))
	*backoff = time.Second

	for {
		if ctx.Err() != nil {
			return nil
		}
		_, data, err := ws.ReadMessage()
		if err != nil {
			return fmt.Errorf("read feed: %w", err)
		}

		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			log.Warn("feed JSON decode error", logging.Error(err))
			continue
		}
		if typ, _ := raw["type"].(string); typ != "ticker" {
			continue
		}

		var t ticker
		if err := json.Unmarshal(data, &t); err != nil || !t.valid() {
			log.Warn("ticker validation error", logging.Error(err))
			continue
		}

		raw["ingest_ts_ms"] = nowMillis()
		payload, err := json.Marshal(raw)
		if err != nil {
			log.Warn("failed to encode ticker", logging.Error(err))
			continue
		}

		framed, err := framing.Encode(payload, 0)
		if err != nil {
			log.Warn("failed to frame ticker", logging.Error(err))
			continue
		}
		if err := conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
		if _, err := conn.Write(framed); err != nil {
			return fmt.Errorf("ipc write failed: %w", err)
		}
	}
}

func buildSubscribeMessage(symbols []string) string {
	type channel struct {
		Name       string   `json:"name"`
		ProductIDs []string `json:"product_ids"`
	}
	msg := struct {
		Type       string    `json:"type"`
		ProductIDs []string  `json:"product_ids"`
		Channels   []channel `json:"channels"`
	}{
		Type:       "subscribe",
		ProductIDs: symbols,
		Channels:   []channel{{Name: "ticker", ProductIDs: symbols}},
	}
	data, _ := json.Marshal(msg)
	return string(data)
}

// sleepBackoff waits the current backoff duration (or until ctx is
// canceled), then doubles it, capped at backoffMaxS seconds. It returns
// false if ctx was canceled during the wait.
func sleepBackoff(ctx context.Context, backoff *time.Duration, backoffMaxS float64) bool {
	timer := time.NewTimer(*backoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
	}
	max := time.Duration(backoffMaxS * float64(time.Second))
	*backoff *= 2
	if *backoff > max {
		*backoff = max
	}
	return true
}

func nowMillis() int64 { return time.Now().UnixMilli() }

func splitSymbols(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	var f float64
	if _, err := fmt.Sscanf(raw, "%g", &f); err != nil {
		return fallback
	}
	return f
}
