// Package data loads historical candles, from CSV files on disk or from the
// Binance spot REST API.
package data

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/algobot/gotrade/internal/domain"
)

var log = logrus.WithField("component", "data")

// csv columns, in order
var wantHeader = []string{"timestamp", "open", "high", "low", "close", "volume"}

// LoadCSV reads candles from a timestamp,open,high,low,close,volume file.
// Timestamps are RFC3339 or unix milliseconds.
func LoadCSV(path string) (domain.Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open candle file")
	}
	defer f.Close()
	series, err := ReadCSV(f)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	log.Infof("loaded %d candles from %s", len(series), path)
	return series, nil
}

// ReadCSV parses candle rows from r.
func ReadCSV(r io.Reader) (domain.Series, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, errors.Wrap(err, "read header")
	}
	if len(header) < len(wantHeader) {
		return nil, errors.Errorf("bad header %v, want %v", header, wantHeader)
	}
	for i, name := range wantHeader {
		if header[i] != name {
			return nil, errors.Errorf("bad header column %d: %q, want %q", i, header[i], name)
		}
	}

	var series domain.Series
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		c, err := parseRow(rec)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		if n := len(series); n > 0 && !c.OpenTime.After(series[n-1].OpenTime) {
			return nil, errors.Errorf("line %d: timestamps not strictly increasing", line)
		}
		series = append(series, c)
	}
	return series, nil
}

func parseRow(rec []string) (domain.Candle, error) {
	var c domain.Candle
	ts, err := parseTimestamp(rec[0])
	if err != nil {
		return c, err
	}
	c.OpenTime = ts
	fields := []*float64{&c.Open, &c.High, &c.Low, &c.Close, &c.Volume}
	for i, dst := range fields {
		v, err := strconv.ParseFloat(rec[i+1], 64)
		if err != nil {
			return c, errors.Wrapf(err, "column %s", wantHeader[i+1])
		}
		*dst = v
	}
	if c.High < c.Low {
		return c, errors.Errorf("high %v below low %v", c.High, c.Low)
	}
	return c, nil
}

func parseTimestamp(s string) (time.Time, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, errors.Wrap(err, "parse timestamp")
	}
	return t, nil
}

// WriteCSV writes candles in the same format LoadCSV reads.
func WriteCSV(w io.Writer, series domain.Series) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(wantHeader); err != nil {
		return err
	}
	for _, c := range series {
		rec := []string{
			strconv.FormatInt(c.OpenTime.UnixMilli(), 10),
			strconv.FormatFloat(c.Open, 'f', -1, 64),
			strconv.FormatFloat(c.High, 'f', -1, 64),
			strconv.FormatFloat(c.Low, 'f', -1, 64),
			strconv.FormatFloat(c.Close, 'f', -1, 64),
			strconv.FormatFloat(c.Volume, 'f', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
