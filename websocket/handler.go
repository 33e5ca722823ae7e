package websocket

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"ema-bracket-bot/config"
	"ema-bracket-bot/logging"
	"ema-bracket-bot/types"
)

// Hub manages the public market-data WebSocket. Confirmed klines become
// bars and ticker updates become quote ticks; both are delivered on
// buffered channels read by the single strategy loop.
type Hub struct {
	config *config.Config
	logger logging.LoggerInterface

	connMutex sync.Mutex
	conn      *websocket.Conn

	barChan   chan types.Bar
	quoteChan chan types.QuoteTick
	done      chan struct{}
}

// NewHub creates a new market-data hub
func NewHub(cfg *config.Config, logger logging.LoggerInterface) *Hub {
	return &Hub{
		config:    cfg,
		logger:    logger,
		barChan:   make(chan types.Bar, 32),
		quoteChan: make(chan types.QuoteTick, 256),
		done:      make(chan struct{}),
	}
}

// Bars returns the confirmed-bar channel
func (h *Hub) Bars() <-chan types.Bar {
	return h.barChan
}

// Quotes returns the quote-tick channel
func (h *Hub) Quotes() <-chan types.QuoteTick {
	return h.quoteChan
}

// Connect establishes the public connection and subscribes to the kline and
// ticker topics for the configured symbol.
func (h *Hub) Connect() error {
	h.connMutex.Lock()
	defer h.connMutex.Unlock()

	conn, err := h.newWSConnection(h.config.WSPublicURL)
	if err != nil {
		return err
	}
	h.conn = conn

	if err := h.conn.WriteJSON(map[string]interface{}{
		"op":   "subscribe",
		"args": []string{h.klineTopic(), h.tickerTopic()},
	}); err != nil {
		h.conn.Close()
		return err
	}
	h.conn.ReadMessage() // sub ack
	h.logger.Info("Subscribed to %s and %s", h.klineTopic(), h.tickerTopic())
	return nil
}

// newWSConnection creates a new WebSocket connection
func (h *Hub) newWSConnection(url string) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	conn.SetReadDeadline(time.Now().Add(time.Duration(h.config.PongWait) * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(time.Duration(h.config.PongWait) * time.Second))
		return nil
	})
	return conn, nil
}

func (h *Hub) klineTopic() string {
	return "kline." + h.config.Interval + "." + h.config.Symbol
}

func (h *Hub) tickerTopic() string {
	return "tickers." + h.config.Symbol
}

// StartPingTicker keeps the connection alive
func (h *Hub) StartPingTicker() {
	ticker := time.NewTicker(time.Duration(h.config.PingPeriod) * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-h.done:
				return
			case <-ticker.C:
				h.connMutex.Lock()
				if h.conn != nil {
					h.conn.WriteMessage(websocket.PingMessage, nil)
				}
				h.connMutex.Unlock()
			}
		}
	}()
}

// Run reads public messages until Close is called, reconnecting with a
// capped backoff on read failures.
func (h *Hub) Run() {
	backoff := time.Second
	for {
		select {
		case <-h.done:
			return
		default:
		}

		h.connMutex.Lock()
		conn := h.conn
		h.connMutex.Unlock()

		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-h.done:
				return
			default:
			}
			h.logger.Error("Public WS read: %v, reconnecting in %s", err, backoff)
			time.Sleep(backoff)
			if backoff < 30*time.Second {
				backoff *= 2
			}
			if err := h.Connect(); err != nil {
				h.logger.Error("Reconnect failed: %v", err)
			}
			continue
		}
		backoff = time.Second
		h.dispatch(raw)
	}
}

// Close stops the hub and closes the connection
func (h *Hub) Close() {
	close(h.done)
	h.connMutex.Lock()
	if h.conn != nil {
		h.conn.Close()
	}
	h.connMutex.Unlock()
}

type klineMsg struct {
	Topic string `json:"topic"`
	Data  []struct {
		Start   int64  `json:"start"`
		End     int64  `json:"end"`
		Open    string `json:"open"`
		High    string `json:"high"`
		Low     string `json:"low"`
		Close   string `json:"close"`
		Volume  string `json:"volume"`
		Confirm bool   `json:"confirm"`
	} `json:"data"`
}

type tickerMsg struct {
	Topic string `json:"topic"`
	Data  struct {
		Bid1Price string `json:"bid1Price"`
		Ask1Price string `json:"ask1Price"`
	} `json:"data"`
}

func (h *Hub) dispatch(raw []byte) {
	var peek struct {
		Topic string `json:"topic"`
	}
	if err := json.Unmarshal(raw, &peek); err != nil {
		h.logger.Error("Failed to unmarshal message topic: %v", err)
		return
	}

	switch {
	case strings.HasPrefix(peek.Topic, "kline."):
		h.handleKline(raw)
	case strings.HasPrefix(peek.Topic, "tickers."):
		h.handleTicker(raw)
	}
}

// handleKline forwards only confirmed klines. An in-progress candle keeps
// repainting; decisions run on closed bars only.
func (h *Hub) handleKline(raw []byte) {
	var km klineMsg
	if err := json.Unmarshal(raw, &km); err != nil {
		h.logger.Error("Failed to unmarshal kline message: %v", err)
		return
	}
	for _, k := range km.Data {
		if !k.Confirm {
			continue
		}
		bar, err := parseBar(h.config.Symbol, k.Start, k.Open, k.High, k.Low, k.Close, k.Volume)
		if err != nil {
			h.logger.Error("Malformed kline dropped: %v", err)
			continue
		}
		select {
		case h.barChan <- bar:
		default:
			h.logger.Warning("Bar channel full, dropping bar at %s", bar.Timestamp)
		}
	}
}

func (h *Hub) handleTicker(raw []byte) {
	var tm tickerMsg
	if err := json.Unmarshal(raw, &tm); err != nil {
		h.logger.Error("Failed to unmarshal ticker message: %v", err)
		return
	}
	// Ticker deltas may omit one side; both are required for a spread.
	if tm.Data.Bid1Price == "" || tm.Data.Ask1Price == "" {
		return
	}
	bid, err1 := decimal.NewFromString(tm.Data.Bid1Price)
	ask, err2 := decimal.NewFromString(tm.Data.Ask1Price)
	if err1 != nil || err2 != nil || bid.Sign() <= 0 || ask.Sign() <= 0 || ask.LessThan(bid) {
		h.logger.Debug("Malformed quote dropped: bid=%q ask=%q", tm.Data.Bid1Price, tm.Data.Ask1Price)
		return
	}
	select {
	case h.quoteChan <- types.QuoteTick{
		Symbol:    h.config.Symbol,
		Bid:       bid,
		Ask:       ask,
		Timestamp: time.Now(),
	}:
	default:
		// Quotes only feed the spread window; dropping under load is safe.
	}
}

func parseBar(symbol string, startMs int64, open, high, low, close, volume string) (types.Bar, error) {
	o, err := decimal.NewFromString(open)
	if err != nil {
		return types.Bar{}, err
	}
	hi, err := decimal.NewFromString(high)
	if err != nil {
		return types.Bar{}, err
	}
	lo, err := decimal.NewFromString(low)
	if err != nil {
		return types.Bar{}, err
	}
	cl, err := decimal.NewFromString(close)
	if err != nil {
		return types.Bar{}, err
	}
	vol, err := decimal.NewFromString(volume)
	if err != nil {
		return types.Bar{}, err
	}
	return types.Bar{
		Symbol:    symbol,
		Open:      o,
		High:      hi,
		Low:       lo,
		Close:     cl,
		Volume:    vol,
		Timestamp: time.UnixMilli(startMs).UTC(),
	}, nil
}
