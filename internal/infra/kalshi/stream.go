package kalshi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aretelew/pm-bot/internal/domain"
	"github.com/aretelew/pm-bot/internal/infra"
)

// StreamState is the connection state of the streaming worker.
type StreamState int32

const (
	StreamDisconnected StreamState = iota
	StreamConnecting
	StreamSubscribed
)

func (s StreamState) String() string {
	switch s {
	case StreamDisconnected:
		return "DISCONNECTED"
	case StreamConnecting:
		return "CONNECTING"
	case StreamSubscribed:
		return "SUBSCRIBED"
	default:
		return "UNKNOWN"
	}
}

// Dialer abstracts the websocket dial for tests.
type Dialer func(ctx context.Context, url string, header http.Header) (*websocket.Conn, error)

// StreamWorker is the streaming half of the exchange gateway. It holds
// a persistent subscription, reconnects with capped exponential backoff
// on disconnect, resubscribes to the same topic set, and signals
// onResync exactly once per disconnect so polling can bridge the gap.
// Delivery to onUpdate is ordered and at-least-once; downstream merges
// by timestamp, so duplicates are harmless.
type StreamWorker struct {
	url     string
	signer  *Signer
	limiter *infra.RateLimiter
	backoff infra.Backoff
	dial    Dialer

	channels []string
	tickers  []string

	onUpdate func(domain.Market)
	onResync func()

	mu      sync.Mutex
	state   StreamState
	conn    *websocket.Conn
	cmdID   int
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	started bool

	ReadTimeout time.Duration
}

// NewStreamWorker creates a streaming subscription worker.
// onUpdate receives every market update event; onResync fires once per
// disconnect, after the connection is lost and before it is restored.
func NewStreamWorker(
	url string,
	signer *Signer,
	limiter *infra.RateLimiter,
	backoff infra.Backoff,
	channels, tickers []string,
	onUpdate func(domain.Market),
	onResync func(),
) *StreamWorker {
	return &StreamWorker{
		url:         url,
		signer:      signer,
		limiter:     limiter,
		backoff:     backoff,
		dial:        defaultDial,
		channels:    channels,
		tickers:     tickers,
		onUpdate:    onUpdate,
		onResync:    onResync,
		state:       StreamDisconnected,
		ReadTimeout: 60 * time.Second,
	}
}

func defaultDial(ctx context.Context, url string, header http.Header) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, header)
	return conn, err
}

// SetDialer replaces the websocket dialer (tests).
func (w *StreamWorker) SetDialer(d Dialer) { w.dial = d }

// SetOnResync replaces the resync callback. Call before Start.
func (w *StreamWorker) SetOnResync(f func()) {
	w.mu.Lock()
	w.onResync = f
	w.mu.Unlock()
}

// State returns the current connection state.
func (w *StreamWorker) State() StreamState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *StreamWorker) setState(s StreamState) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// Start launches the connection loop.
func (w *StreamWorker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.started = true
	w.wg.Add(1)
	go w.runLoop(ctx)
}

// Stop terminates the worker and waits for the loop to exit.
func (w *StreamWorker) Stop() {
	if !w.started {
		return
	}
	w.cancel()
	w.closeConn()
	w.wg.Wait()
	w.setState(StreamDisconnected)
}

func (w *StreamWorker) runLoop(ctx context.Context) {
	defer w.wg.Done()
	retry := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := w.connect(ctx); err != nil {
			w.setState(StreamDisconnected)
			delay := w.backoff.Next(retry)
			slog.Warn("stream connect failed", "err", err, "retry", retry, "delay", delay)
			retry++

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		}

		retry = 0
		w.readLoop(ctx)

		// Connection lost: signal the gap exactly once, then loop to reconnect.
		select {
		case <-ctx.Done():
			return
		default:
			w.setState(StreamDisconnected)
			w.mu.Lock()
			onResync := w.onResync
			w.mu.Unlock()
			if onResync != nil {
				onResync()
			}
		}
	}
}

// connect dials, authenticates, and resubscribes to the topic set.
// Reconnects share the rate limiter with the REST path.
func (w *StreamWorker) connect(ctx context.Context) error {
	w.setState(StreamConnecting)

	if err := w.limiter.Acquire(ctx); err != nil {
		return err
	}

	header := make(http.Header)
	if w.signer != nil {
		ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
		auth, err := w.signer.Headers(ts, http.MethodGet, "/trade-api/ws/v2")
		if err != nil {
			return err
		}
		for k, v := range auth {
			header.Set(k, v)
		}
	}

	conn, err := w.dial(ctx, w.url, header)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.conn = conn
	w.cmdID++
	cmd := wsCommand{
		ID:  w.cmdID,
		Cmd: "subscribe",
		Params: wsParams{
			Channels:      w.channels,
			MarketTickers: w.tickers,
		},
	}
	w.mu.Unlock()

	if err := conn.WriteJSON(cmd); err != nil {
		w.closeConn()
		return fmt.Errorf("subscribe: %w", err)
	}

	w.setState(StreamSubscribed)
	slog.Info("stream subscribed", "channels", w.channels, "tickers", len(w.tickers))
	return nil
}

func (w *StreamWorker) readLoop(ctx context.Context) {
	for {
		w.mu.Lock()
		conn := w.conn
		w.mu.Unlock()
		if conn == nil {
			return
		}

		conn.SetReadDeadline(time.Now().Add(w.ReadTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
			default:
				slog.Warn("stream read error", "err", err)
			}
			w.closeConn()
			return
		}

		w.handleMessage(msg)
	}
}

func (w *StreamWorker) handleMessage(msg []byte) {
	var env wsEnvelope
	if err := json.Unmarshal(msg, &env); err != nil {
		slog.Warn("stream decode error", "err", err)
		return
	}
	if env.Type != "ticker" || env.Msg.MarketTicker == "" {
		return
	}

	ts := env.Msg.TsUnixMS * 1000
	if ts == 0 {
		ts = time.Now().UnixMicro()
	}

	update := domain.Market{
		Ticker:       env.Msg.MarketTicker,
		YesBid:       env.Msg.YesBid,
		YesAsk:       env.Msg.YesAsk,
		LastPrice:    env.Msg.Price,
		Volume:       env.Msg.Volume,
		OpenInterest: env.Msg.OpenInterest,
		UpdatedUnixM: ts,
		Source:       domain.SourceStreamed,
	}
	if w.onUpdate != nil {
		w.onUpdate(update)
	}
}

func (w *StreamWorker) closeConn() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
}
