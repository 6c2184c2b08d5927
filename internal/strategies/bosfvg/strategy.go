// Package bosfvg implements the Break of Structure + Fair Value Gap intraday
// strategy: lock in the opening range, wait for a close beyond its high or
// low (the BOS), find the most recent quality FVG in that direction, and
// enter when price taps back into the gap. One trade per day, ADX and session
// gated, stop at the gap's middle candle, target in R multiples.
package bosfvg

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/algobot/gotrade/internal/domain"
	"github.com/algobot/gotrade/internal/indicators"
)

var log = logrus.WithField("component", "bosfvg")

const (
	adxWindow     = 14
	htfEMAWindow  = 20
	fvgLookback   = 10  // candles scanned backwards for a gap
	fvgMinBodyPct = 0.5 // middle candle body must cover half its range
	minIndex      = 10  // enough history for the FVG scan
)

type fvgZone struct {
	direction domain.Direction
	top       float64
	bottom    float64
	stopLoss  float64
}

// Strategy is the BOS+FVG state machine. Not safe for concurrent use; the
// backtest loop drives it bar by bar.
type Strategy struct {
	cfg     Config
	balance float64

	start, orEnd, end clock
	tz                *time.Location

	data   domain.Series
	adx    []float64
	htfEMA []float64 // aligned to data; NaN-free once htf data is set

	// daily state
	currentDay      string
	hod, lod        float64
	haveRange       bool
	orHigh, orLow   float64
	haveORHigh      bool
	bosDirection    domain.Direction
	fvgToWatch      *fvgZone
	tradeTakenToday bool
}

func New(cfg Config, accountBalance float64) (*Strategy, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	start, _ := parseClock(cfg.TradingStart)
	orEnd, _ := parseClock(cfg.OpeningRangeEnd)
	end, _ := parseClock(cfg.TradingEnd)
	tz, _ := time.LoadLocation(cfg.Timezone)
	return &Strategy{
		cfg:     cfg,
		balance: accountBalance,
		start:   start,
		orEnd:   orEnd,
		end:     end,
		tz:      tz,
	}, nil
}

func (s *Strategy) Symbol() string { return s.cfg.Symbol }

// SetData installs the working timeframe candles and, optionally, higher
// timeframe candles whose 20-period EMA is merged backward onto every bar
// (each bar sees the EMA of the latest HTF candle at or before it).
func (s *Strategy) SetData(data domain.Series, htf domain.Series) {
	s.data = data
	s.adx = indicators.ADX(data.Highs(), data.Lows(), data.Closes(), adxWindow)

	s.htfEMA = make([]float64, len(data))
	if len(htf) == 0 {
		return
	}
	ema := indicators.EMA(htf.Closes(), htfEMAWindow)
	j := -1
	for i, c := range data {
		for j+1 < len(htf) && !htf[j+1].OpenTime.After(c.OpenTime) {
			j++
		}
		if j >= 0 {
			s.htfEMA[i] = ema[j]
		}
	}
}

func (s *Strategy) resetDay(day string) {
	s.currentDay = day
	s.hod, s.lod = 0, 0
	s.haveRange = false
	s.orHigh, s.orLow = 0, 0
	s.haveORHigh = false
	s.bosDirection = ""
	s.fvgToWatch = nil
	s.tradeTakenToday = false
}

// Evaluate advances the state machine for candle index and returns an Entry
// when price taps a watched FVG and every filter passes.
func (s *Strategy) Evaluate(index int) *domain.Entry {
	if s.data == nil || index < minIndex {
		return nil
	}
	candle := s.data[index]
	local := candle.OpenTime.In(s.tz)
	day := local.Format("2006-01-02")
	now := clockOf(local)

	if day != s.currentDay {
		log.Debugf("new day %s, resetting daily state", day)
		s.resetDay(day)
	}

	// Phase 1: build the opening range from closes.
	if now >= s.start && now < s.orEnd {
		if !s.haveORHigh || candle.Close > s.orHigh {
			s.orHigh = candle.Close
		}
		if !s.haveORHigh || candle.Close < s.orLow {
			s.orLow = candle.Close
		}
		s.haveORHigh = true
		return nil
	}

	// Lock in HOD/LOD once the opening range window has passed.
	if !s.haveRange && now >= s.orEnd {
		if s.haveORHigh {
			s.hod, s.lod = s.orHigh, s.orLow
			s.haveRange = true
			log.Infof("opening range complete for %s: HOD=%.2f LOD=%.2f", day, s.hod, s.lod)
		} else {
			log.Warnf("no opening range for %s, skipping day", day)
			s.tradeTakenToday = true
		}
	}

	if now < s.orEnd || now >= s.end || !s.haveRange || s.tradeTakenToday {
		return nil
	}

	// State 1: waiting for the break of structure.
	if s.bosDirection == "" {
		switch {
		case candle.Close > s.hod:
			s.bosDirection = domain.DirectionLong
			log.Infof("BOS up at %s (close %.2f > HOD %.2f)", candle.OpenTime, candle.Close, s.hod)
		case candle.Close < s.lod:
			s.bosDirection = domain.DirectionShort
			log.Infof("BOS down at %s (close %.2f < LOD %.2f)", candle.OpenTime, candle.Close, s.lod)
		}
		return nil // next candle scans for the FVG
	}

	// State 2: BOS confirmed, hunting for a fair value gap.
	if s.fvgToWatch == nil {
		zone := s.findFVG(index, s.bosDirection)
		if zone == nil {
			log.Debug("no FVG after BOS, rearming")
			s.bosDirection = ""
			return nil
		}
		s.fvgToWatch = zone
		log.Infof("watching %s FVG (%.2f, %.2f) SL %.2f", zone.direction, zone.bottom, zone.top, zone.stopLoss)
		return nil // wait for price to tap the zone
	}

	// State 3: FVG armed, waiting for the tap.
	zone := s.fvgToWatch
	var entryPrice float64
	tapped := false
	if zone.direction == domain.DirectionLong && candle.Low <= zone.top {
		entryPrice = zone.top // conservative: top of the bullish gap
		tapped = true
	} else if zone.direction == domain.DirectionShort && candle.High >= zone.bottom {
		entryPrice = zone.bottom
		tapped = true
	}
	if !tapped {
		return nil
	}
	log.Infof("FVG tapped for %s at %s, entry %.2f", zone.direction, candle.OpenTime, entryPrice)

	entry := s.buildEntry(entryPrice, zone, index, local)
	if entry != nil {
		s.tradeTakenToday = true
	}
	s.fvgToWatch = nil // the gap is consumed either way
	return entry
}

// findFVG scans backwards for the most recent three-candle gap in the trade
// direction, skipping gaps whose middle candle has a weak body.
func (s *Strategy) findFVG(index int, dir domain.Direction) *fvgZone {
	for i := index - 2; i > index-fvgLookback; i-- {
		if i < 2 {
			return nil
		}
		c1 := s.data[i-2]
		c2 := s.data[i-1] // the middle candle
		c3 := s.data[i]

		if r := c2.Range(); r > 0 && c2.Body()/r < fvgMinBodyPct {
			log.Debugf("skipping FVG at %d: weak middle candle", i)
			continue
		}

		if dir == domain.DirectionLong && c1.High < c3.Low {
			return &fvgZone{
				direction: domain.DirectionLong,
				bottom:    c1.High,
				top:       c3.Low,
				stopLoss:  c2.Low,
			}
		}
		if dir == domain.DirectionShort && c1.Low > c3.High {
			return &fvgZone{
				direction: domain.DirectionShort,
				bottom:    c3.High,
				top:       c1.Low,
				stopLoss:  c2.High,
			}
		}
	}
	return nil
}

// buildEntry applies the session, ADX and HTF filters, then sizes the trade
// off the configured account risk.
func (s *Strategy) buildEntry(entryPrice float64, zone *fvgZone, index int, local time.Time) *domain.Entry {
	if h := local.Hour(); h < s.cfg.EntryStartHour || h >= s.cfg.EntryEndHour {
		log.Infof("skipping entry: %s outside the %02d:00-%02d:00 window",
			local.Format("15:04"), s.cfg.EntryStartHour, s.cfg.EntryEndHour)
		return nil
	}
	// ADX is NaN through the indicator warmup, and NaN fails this
	// comparison, so no entry can fire before the trend reading exists.
	if adx := s.adx[index]; !(adx >= s.cfg.ADXThreshold) {
		log.Infof("skipping entry: ADX %.2f below %.2f", adx, s.cfg.ADXThreshold)
		return nil
	}
	if s.cfg.UseHTFFilter && len(s.htfEMA) > index && s.htfEMA[index] > 0 {
		ema := s.htfEMA[index]
		if zone.direction == domain.DirectionLong && entryPrice < ema {
			log.Infof("skipping long: price %.2f below HTF EMA %.2f", entryPrice, ema)
			return nil
		}
		if zone.direction == domain.DirectionShort && entryPrice > ema {
			log.Infof("skipping short: price %.2f above HTF EMA %.2f", entryPrice, ema)
			return nil
		}
	}

	riskPerUnit := entryPrice - zone.stopLoss
	if riskPerUnit < 0 {
		riskPerUnit = -riskPerUnit
	}
	if riskPerUnit == 0 {
		log.Warn("zero risk per unit, cannot size trade")
		return nil
	}

	var takeProfit float64
	if zone.direction == domain.DirectionLong {
		takeProfit = entryPrice + riskPerUnit*s.cfg.RewardRatio
	} else {
		takeProfit = entryPrice - riskPerUnit*s.cfg.RewardRatio
	}
	riskAmount := s.cfg.RiskPerTrade / 100.0 * s.balance
	size := riskAmount / riskPerUnit

	entry := &domain.Entry{
		Direction:  zone.direction,
		EntryPrice: entryPrice,
		StopLoss:   zone.stopLoss,
		TakeProfit: takeProfit,
		Size:       size,
		Time:       s.data[index].OpenTime,
	}
	log.Infof("entry: %s %.4f @ %.2f SL %.2f TP %.2f", entry.Direction, entry.Size, entry.EntryPrice, entry.StopLoss, entry.TakeProfit)
	return entry
}
