package stream

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/algobot/gotrade/internal/domain"
)

func klineMsg(startMs int64, interval string, o, h, l, c float64, closed bool) string {
	return fmt.Sprintf(
		`{"stream":"btcusdt@kline_%s","data":{"e":"kline","k":{"t":%d,"i":"%s","o":"%v","h":"%v","l":"%v","c":"%v","v":"10","x":%v}}}`,
		interval, startMs, interval, o, h, l, c, closed)
}

func wsServer(t *testing.T, messages []string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for _, msg := range messages {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		}
		// hold the connection open until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func TestKlineStreamDeliversCandles(t *testing.T) {
	base := time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)
	messages := []string{
		klineMsg(base.UnixMilli(), "1m", 100, 101, 99, 100.5, false),
		klineMsg(base.UnixMilli(), "1m", 100, 102, 99, 101.5, true),
		klineMsg(base.Add(time.Minute).UnixMilli(), "1m", 101.5, 103, 101, 102, false),
	}
	srv := wsServer(t, messages)
	defer srv.Close()

	type update struct {
		candle domain.Candle
		closed bool
	}
	updates := make(chan update, 8)
	s := NewKlineStream("BTCUSDT", []string{"1m"},
		WithURL("ws"+strings.TrimPrefix(srv.URL, "http")),
		WithHandler(func(interval string, c domain.Candle, closed bool) {
			if interval != "1m" {
				t.Errorf("interval = %q", interval)
			}
			updates <- update{c, closed}
		}))
	s.Start()
	defer s.Stop()

	var got []update
	for len(got) < 3 {
		select {
		case u := <-updates:
			got = append(got, u)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out after %d updates", len(got))
		}
	}

	if got[0].closed || !got[1].closed || got[2].closed {
		t.Fatalf("closed flags = %v %v %v, want false true false", got[0].closed, got[1].closed, got[2].closed)
	}
	if got[1].candle.Close != 101.5 {
		t.Fatalf("closed candle close = %v, want 101.5", got[1].candle.Close)
	}
	if !got[0].candle.OpenTime.Equal(base) {
		t.Fatalf("open time = %v, want %v", got[0].candle.OpenTime, base)
	}

	// the open candle updated in place, so history holds two start times
	recent := s.Recent("1m", 0)
	if len(recent) != 2 {
		t.Fatalf("recent = %d candles, want 2", len(recent))
	}
	if recent[0].Close != 101.5 || recent[1].Close != 102 {
		t.Fatalf("recent closes = %v, %v", recent[0].Close, recent[1].Close)
	}
	latest, ok := s.Latest("1m")
	if !ok || latest.Close != 102 {
		t.Fatalf("latest = %+v ok=%v", latest, ok)
	}
}

func TestKlineStreamIgnoresJunk(t *testing.T) {
	base := time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)
	messages := []string{
		`not json`,
		`{"stream":"x","data":{"e":"aggTrade"}}`,
		klineMsg(base.UnixMilli(), "1m", 100, 101, 99, 100.5, true),
	}
	srv := wsServer(t, messages)
	defer srv.Close()

	updates := make(chan domain.Candle, 4)
	s := NewKlineStream("btcusdt", nil,
		WithURL("ws"+strings.TrimPrefix(srv.URL, "http")),
		WithHandler(func(_ string, c domain.Candle, closed bool) {
			if closed {
				updates <- c
			}
		}))
	s.Start()
	defer s.Stop()

	select {
	case c := <-updates:
		if c.Close != 100.5 {
			t.Fatalf("close = %v, want 100.5", c.Close)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the valid candle")
	}
	if len(updates) != 0 {
		t.Fatal("junk messages produced candles")
	}
}

func TestAccessorsNormalizeInterval(t *testing.T) {
	s := NewKlineStream("btcusdt", []string{"1m"})
	start := time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)
	s.store("1m", start.UnixMilli(), domain.Candle{OpenTime: start, Open: 100, High: 101, Low: 99, Close: 100.5})

	c, ok := s.Latest("1M")
	if !ok {
		t.Fatal("Latest should match regardless of interval case")
	}
	if c.Close != 100.5 {
		t.Fatalf("close = %v, want 100.5", c.Close)
	}
	if got := s.Recent(" 1M ", 10); len(got) != 1 {
		t.Fatalf("Recent = %d candles, want 1", len(got))
	}
}

func TestStreamURL(t *testing.T) {
	s := NewKlineStream("ETHUSDT", []string{"1m", "5m"})
	want := "wss://fstream.binance.com/stream?streams=ethusdt@kline_1m/ethusdt@kline_5m"
	if got := s.streamURL(); got != want {
		t.Fatalf("url = %q, want %q", got, want)
	}
}
