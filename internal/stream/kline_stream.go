// Package stream maintains a live candle feed over the Binance websocket
// API, with reconnects and a bounded in-memory history per interval.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/algobot/gotrade/internal/domain"
)

var log = logrus.WithField("component", "stream")

const (
	defaultWSURL   = "wss://fstream.binance.com/stream"
	historyPerSlot = 512
)

// Handler receives every candle update. closed is true once the interval has
// fully elapsed; open candles keep updating in place.
type Handler func(interval string, candle domain.Candle, closed bool)

// KlineStream subscribes to one symbol's kline streams and caches recent
// candles per interval.
type KlineStream struct {
	symbol    string // lower case, e.g. "btcusdt"
	intervals []string
	wsURL     string
	proxyURL  string
	handler   Handler

	mu sync.RWMutex
	// interval -> startMs -> candle
	history map[string]map[int64]domain.Candle
	// interval -> ordered startMs (oldest -> newest)
	order map[string][]int64

	ctx    context.Context
	cancel context.CancelFunc

	connMu sync.Mutex
	conn   *websocket.Conn
}

// Option configures a KlineStream.
type Option func(*KlineStream)

// WithURL overrides the websocket endpoint. Tests point it at a local server.
func WithURL(u string) Option { return func(s *KlineStream) { s.wsURL = u } }

// WithProxy routes the connection through an HTTP proxy.
func WithProxy(u string) Option { return func(s *KlineStream) { s.proxyURL = strings.TrimSpace(u) } }

// WithHandler sets the candle callback.
func WithHandler(h Handler) Option { return func(s *KlineStream) { s.handler = h } }

func NewKlineStream(symbol string, intervals []string, opts ...Option) *KlineStream {
	sym := strings.ToLower(strings.TrimSpace(symbol))
	if len(intervals) == 0 {
		intervals = []string{"1m"}
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &KlineStream{
		symbol:    sym,
		intervals: intervals,
		wsURL:     defaultWSURL,
		history:   make(map[string]map[int64]domain.Candle),
		order:     make(map[string][]int64),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *KlineStream) Start() {
	go s.run()
}

func (s *KlineStream) Stop() {
	s.cancel()
	s.connMu.Lock()
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.connMu.Unlock()
}

func (s *KlineStream) Symbol() string { return s.symbol }

// Latest returns the newest candle snapshot for an interval.
func (s *KlineStream) Latest(interval string) (domain.Candle, bool) {
	interval = strings.ToLower(strings.TrimSpace(interval))
	s.mu.RLock()
	defer s.mu.RUnlock()
	ord := s.order[interval]
	if len(ord) == 0 {
		return domain.Candle{}, false
	}
	c, ok := s.history[interval][ord[len(ord)-1]]
	return c, ok
}

// Recent returns up to n cached candles for an interval, oldest first.
func (s *KlineStream) Recent(interval string, n int) domain.Series {
	interval = strings.ToLower(strings.TrimSpace(interval))
	s.mu.RLock()
	defer s.mu.RUnlock()
	ord := s.order[interval]
	if n <= 0 || n > len(ord) {
		n = len(ord)
	}
	out := make(domain.Series, 0, n)
	for _, st := range ord[len(ord)-n:] {
		out = append(out, s.history[interval][st])
	}
	return out
}

func (s *KlineStream) store(interval string, startMs int64, c domain.Candle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.history[interval] == nil {
		s.history[interval] = make(map[int64]domain.Candle)
	}
	if _, exists := s.history[interval][startMs]; !exists {
		s.order[interval] = append(s.order[interval], startMs)
	}
	s.history[interval][startMs] = c

	if over := len(s.order[interval]) - historyPerSlot; over > 0 {
		evict := s.order[interval][:over]
		s.order[interval] = s.order[interval][over:]
		for _, st := range evict {
			delete(s.history[interval], st)
		}
	}
}

func (s *KlineStream) streamURL() string {
	streams := make([]string, len(s.intervals))
	for i, iv := range s.intervals {
		streams[i] = fmt.Sprintf("%s@kline_%s", s.symbol, iv)
	}
	return s.wsURL + "?streams=" + strings.Join(streams, "/")
}

func (s *KlineStream) run() {
	wsURL := s.streamURL()
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		conn, err := s.dial(wsURL)
		if err != nil {
			log.Warnf("kline stream dial failed: %v", err)
			select {
			case <-time.After(2 * time.Second):
				continue
			case <-s.ctx.Done():
				return
			}
		}

		s.connMu.Lock()
		s.conn = conn
		s.connMu.Unlock()
		log.Infof("kline stream connected: symbol=%s intervals=%v", s.symbol, s.intervals)

		if err := s.readLoop(conn); err != nil {
			log.Warnf("kline stream read loop exited: %v", err)
		}

		s.connMu.Lock()
		if s.conn == conn {
			s.conn = nil
		}
		_ = conn.Close()
		s.connMu.Unlock()

		select {
		case <-time.After(1 * time.Second):
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *KlineStream) dial(wsURL string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	if s.proxyURL != "" {
		if p, err := url.Parse(s.proxyURL); err == nil {
			dialer.Proxy = http.ProxyURL(p)
		}
	}
	conn, _, err := dialer.Dial(wsURL, nil)
	return conn, err
}

func (s *KlineStream) readLoop(conn *websocket.Conn) error {
	type payload struct {
		Stream string          `json:"stream"`
		Data   json.RawMessage `json:"data"`
	}

	for {
		select {
		case <-s.ctx.Done():
			return s.ctx.Err()
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var p payload
		if err := json.Unmarshal(msg, &p); err != nil {
			continue
		}
		if len(p.Data) == 0 {
			// raw stream without the combined-stream envelope
			p.Data = msg
		}
		s.handleEvent(p.Data)
	}
}

// klineEvent is the Binance kline stream payload.
// https://binance-docs.github.io/apidocs/futures/en/#kline-candlestick-streams
type klineEvent struct {
	EventType string `json:"e"`
	K         struct {
		StartTime int64  `json:"t"`
		Interval  string `json:"i"`
		Open      string `json:"o"`
		Close     string `json:"c"`
		High      string `json:"h"`
		Low       string `json:"l"`
		Volume    string `json:"v"`
		IsClosed  bool   `json:"x"`
	} `json:"k"`
}

func (s *KlineStream) handleEvent(data json.RawMessage) {
	var ev klineEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return
	}
	if ev.EventType != "kline" {
		return
	}

	candle, ok := ev.candle()
	if !ok {
		return
	}
	interval := strings.ToLower(strings.TrimSpace(ev.K.Interval))
	s.store(interval, ev.K.StartTime, candle)
	if s.handler != nil {
		s.handler(interval, candle, ev.K.IsClosed)
	}
}

func (ev klineEvent) candle() (domain.Candle, bool) {
	var c domain.Candle
	fields := []struct {
		raw string
		dst *float64
	}{
		{ev.K.Open, &c.Open},
		{ev.K.High, &c.High},
		{ev.K.Low, &c.Low},
		{ev.K.Close, &c.Close},
		{ev.K.Volume, &c.Volume},
	}
	for _, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f.raw), 64)
		if err != nil {
			return c, false
		}
		*f.dst = v
	}
	c.OpenTime = time.UnixMilli(ev.K.StartTime).UTC()
	return c, true
}
