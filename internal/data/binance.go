package data

import (
	"context"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/algobot/gotrade/internal/domain"
)

const (
	binanceSpotURL = "https://api.binance.com"
	klinesPerPage  = 1000
)

// BinanceClient fetches historical klines from the Binance spot REST API.
// Public market data, no credentials needed.
type BinanceClient struct {
	client *resty.Client
}

// NewBinanceClient builds a client against the public API. baseURL "" uses
// production; tests point it at a local server.
func NewBinanceClient(baseURL string) *BinanceClient {
	if baseURL == "" {
		baseURL = binanceSpotURL
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(10 * time.Second).
		SetRetryAfter(func(client *resty.Client, resp *resty.Response) (time.Duration, error) {
			if resp.StatusCode() == 429 {
				if retryAfter := resp.Header().Get("Retry-After"); retryAfter != "" {
					if seconds, err := time.ParseDuration(retryAfter + "s"); err == nil {
						return seconds, nil
					}
				}
				return 10 * time.Second, nil
			}
			return 0, nil
		})
	return &BinanceClient{client: client}
}

// Klines fetches candles for [start, end), paging through the API in
// 1000-candle chunks.
func (c *BinanceClient) Klines(ctx context.Context, symbol, interval string, start, end time.Time) (domain.Series, error) {
	var series domain.Series
	cursor := start.UnixMilli()
	endMs := end.UnixMilli()

	for cursor < endMs {
		page, err := c.klinesPage(ctx, symbol, interval, cursor, endMs)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		series = append(series, page...)
		next := page[len(page)-1].OpenTime.UnixMilli() + 1
		if next <= cursor {
			break
		}
		cursor = next
		if len(page) < klinesPerPage {
			break
		}
	}
	log.Infof("fetched %d %s klines for %s", len(series), interval, symbol)
	return series, nil
}

func (c *BinanceClient) klinesPage(ctx context.Context, symbol, interval string, startMs, endMs int64) (domain.Series, error) {
	var raw [][]interface{}
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol":    symbol,
			"interval":  interval,
			"startTime": strconv.FormatInt(startMs, 10),
			"endTime":   strconv.FormatInt(endMs, 10),
			"limit":     strconv.Itoa(klinesPerPage),
		}).
		SetResult(&raw).
		Get("/api/v3/klines")
	if err != nil {
		return nil, errors.Wrap(err, "fetch klines")
	}
	if resp.IsError() {
		return nil, errors.Errorf("fetch klines: status %d: %s", resp.StatusCode(), resp.String())
	}

	series := make(domain.Series, 0, len(raw))
	for i, row := range raw {
		candle, err := parseKline(row)
		if err != nil {
			return nil, errors.Wrapf(err, "kline %d", i)
		}
		series = append(series, candle)
	}
	return series, nil
}

// parseKline decodes one kline row: open time in ms, then OHLCV as strings.
// The trailing close_time, quote volume and trade count fields are ignored.
func parseKline(row []interface{}) (domain.Candle, error) {
	var c domain.Candle
	if len(row) < 6 {
		return c, errors.Errorf("short kline row: %d fields", len(row))
	}
	ms, ok := row[0].(float64)
	if !ok {
		return c, errors.Errorf("bad open time %v", row[0])
	}
	c.OpenTime = time.UnixMilli(int64(ms)).UTC()

	fields := []*float64{&c.Open, &c.High, &c.Low, &c.Close, &c.Volume}
	for i, dst := range fields {
		s, ok := row[i+1].(string)
		if !ok {
			return c, errors.Errorf("bad %s field %v", wantHeader[i+1], row[i+1])
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return c, errors.Wrapf(err, "parse %s", wantHeader[i+1])
		}
		*dst = v
	}
	return c, nil
}
