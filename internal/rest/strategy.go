package rest

import (
	"net/url"
	"strings"
	"time"

	"pricefeed/internal/model"
	"pricefeed/internal/model/enum"
	"pricefeed/pkg/exception"

	"github.com/yanun0323/errors"
)

// Strategy is one way of obtaining a price from the REST API.
// Path returns false when the strategy does not apply to the instrument.
type Strategy struct {
	Name  string
	Path  func(inst model.Instrument, now time.Time) (string, bool)
	Parse func(body []byte, inst model.Instrument, lastKnown float64, now time.Time) (model.PriceSnapshot, error)
}

// DefaultStrategies returns the ordered fallback list for a class.
func DefaultStrategies(class enum.AssetClass) []Strategy {
	switch class {
	case enum.AssetClassCrypto, enum.AssetClassForex:
		return []Strategy{prevAgg, altPrevAgg, lastTrade, dailyOpenClose, reference}
	case enum.AssetClassStock:
		return []Strategy{prevAgg, tickerSnapshot, lastTrade, dailyOpenClose, reference}
	case enum.AssetClassIndex:
		return []Strategy{prevAgg, altPrevAgg, lastTrade, dailyOpenClose, reference}
	default:
		return nil
	}
}

var prevAgg = Strategy{
	Name: "prev-agg",
	Path: func(inst model.Instrument, _ time.Time) (string, bool) {
		return "/v2/aggs/ticker/" + url.PathEscape(inst.RestTicker) + "/prev", inst.RestTicker != ""
	},
	Parse: parseAgg,
}

var altPrevAgg = Strategy{
	Name: "alt-prev-agg",
	Path: func(inst model.Instrument, _ time.Time) (string, bool) {
		alt := alternateTicker(inst)
		if alt == "" || alt == inst.RestTicker {
			return "", false
		}
		return "/v2/aggs/ticker/" + url.PathEscape(alt) + "/prev", true
	},
	Parse: parseAgg,
}

var lastTrade = Strategy{
	Name: "last-trade",
	Path: func(inst model.Instrument, _ time.Time) (string, bool) {
		switch inst.Class {
		case enum.AssetClassCrypto:
			base, quote, ok := splitPair(inst.Symbol)
			return "/v1/last/crypto/" + base + "/" + quote, ok
		case enum.AssetClassForex:
			base, quote, ok := splitPair(inst.Symbol)
			return "/v1/last_quote/currencies/" + base + "/" + quote, ok
		default:
			return "/v2/last/trade/" + url.PathEscape(inst.RestTicker), inst.RestTicker != ""
		}
	},
	Parse: func(body []byte, inst model.Instrument, lastKnown float64, now time.Time) (model.PriceSnapshot, error) {
		switch inst.Class {
		case enum.AssetClassCrypto:
			var resp lastCryptoResponse
			if err := decode(body, &resp); err != nil {
				return model.PriceSnapshot{}, err
			}
			return quote{price: resp.Last.Price, at: millis(resp.Last.Timestamp)}.snapshot(inst, lastKnown, now)
		case enum.AssetClassForex:
			var resp lastQuoteResponse
			if err := decode(body, &resp); err != nil {
				return model.PriceSnapshot{}, err
			}
			if resp.Last.Ask <= 0 || resp.Last.Bid <= 0 {
				return model.PriceSnapshot{}, exception.ErrInvalidSnapshot
			}
			mid := (resp.Last.Ask + resp.Last.Bid) / 2
			return quote{price: mid, at: millis(resp.Last.Timestamp)}.snapshot(inst, lastKnown, now)
		default:
			var resp lastTradeResponse
			if err := decode(body, &resp); err != nil {
				return model.PriceSnapshot{}, err
			}
			return quote{price: resp.Results.Price, at: nanos(resp.Results.Timestamp)}.snapshot(inst, lastKnown, now)
		}
	},
}

var dailyOpenClose = Strategy{
	Name: "daily-open-close",
	Path: func(inst model.Instrument, now time.Time) (string, bool) {
		day := previousWeekday(now).Format(time.DateOnly)
		switch inst.Class {
		case enum.AssetClassCrypto:
			base, quote, ok := splitPair(inst.Symbol)
			return "/v1/open-close/crypto/" + base + "/" + quote + "/" + day, ok
		case enum.AssetClassForex:
			return "/v2/aggs/ticker/" + url.PathEscape(inst.RestTicker) + "/range/1/day/" + day + "/" + day, inst.RestTicker != ""
		default:
			return "/v1/open-close/" + url.PathEscape(inst.RestTicker) + "/" + day, inst.RestTicker != ""
		}
	},
	Parse: func(body []byte, inst model.Instrument, lastKnown float64, now time.Time) (model.PriceSnapshot, error) {
		if inst.Class == enum.AssetClassForex {
			return parseAgg(body, inst, lastKnown, now)
		}
		var resp openCloseResponse
		if err := decode(body, &resp); err != nil {
			return model.PriceSnapshot{}, err
		}
		return quote{
			price:  resp.Close,
			open:   resp.Open,
			high:   resp.High,
			low:    resp.Low,
			volume: resp.Volume,
		}.snapshot(inst, lastKnown, now)
	},
}

var tickerSnapshot = Strategy{
	Name: "ticker-snapshot",
	Path: func(inst model.Instrument, _ time.Time) (string, bool) {
		return "/v2/snapshot/locale/us/markets/stocks/tickers/" + url.PathEscape(inst.RestTicker), inst.RestTicker != ""
	},
	Parse: func(body []byte, inst model.Instrument, lastKnown float64, now time.Time) (model.PriceSnapshot, error) {
		var resp tickerSnapshotResponse
		if err := decode(body, &resp); err != nil {
			return model.PriceSnapshot{}, err
		}
		t := resp.Ticker
		price := t.LastTrade.Price
		if price <= 0 {
			price = t.Day.Close
		}
		ref := t.PrevDay.Close
		if ref <= 0 {
			ref = t.Day.Open
		}
		return quote{
			price:  price,
			open:   ref,
			high:   t.Day.High,
			low:    t.Day.Low,
			volume: t.Day.Volume,
			at:     nanos(t.Updated),
		}.snapshot(inst, lastKnown, now)
	},
}

// reference confirms the ticker exists and reuses the last known price unchanged.
var reference = Strategy{
	Name: "reference",
	Path: func(inst model.Instrument, _ time.Time) (string, bool) {
		return "/v3/reference/tickers/" + url.PathEscape(inst.RestTicker), inst.RestTicker != ""
	},
	Parse: func(body []byte, inst model.Instrument, lastKnown float64, now time.Time) (model.PriceSnapshot, error) {
		var resp referenceResponse
		if err := decode(body, &resp); err != nil {
			return model.PriceSnapshot{}, err
		}
		if resp.Results.Ticker == "" {
			return model.PriceSnapshot{}, errors.Wrapf(exception.ErrUnknownSymbol, "ticker: %s", inst.RestTicker)
		}
		if lastKnown <= 0 {
			return model.PriceSnapshot{}, errors.Wrap(exception.ErrInvalidSnapshot, "no last known price")
		}
		s, err := quote{price: lastKnown}.snapshot(inst, lastKnown, now)
		if err != nil {
			return model.PriceSnapshot{}, err
		}
		return s.WithDelta(lastKnown), nil
	},
}

func parseAgg(body []byte, inst model.Instrument, lastKnown float64, now time.Time) (model.PriceSnapshot, error) {
	var resp aggResponse
	if err := decode(body, &resp); err != nil {
		return model.PriceSnapshot{}, err
	}
	if len(resp.Results) == 0 {
		return model.PriceSnapshot{}, errors.Wrap(exception.ErrInvalidSnapshot, "empty results")
	}
	bar := resp.Results[len(resp.Results)-1]
	return quote{
		price:  bar.Close,
		open:   bar.Open,
		high:   bar.High,
		low:    bar.Low,
		volume: bar.Volume,
		at:     millis(bar.Timestamp),
	}.snapshot(inst, lastKnown, now)
}

// alternateTicker is the second spelling the upstream accepts for some tickers:
// hyphenated pairs for crypto and forex, and the index ticker with its prefix flipped.
func alternateTicker(inst model.Instrument) string {
	switch inst.Class {
	case enum.AssetClassCrypto:
		base, quote, ok := splitPair(inst.Symbol)
		if !ok {
			return ""
		}
		return "X:" + base + "-" + quote
	case enum.AssetClassForex:
		base, quote, ok := splitPair(inst.Symbol)
		if !ok {
			return ""
		}
		return "C:" + base + "-" + quote
	case enum.AssetClassIndex:
		if strings.HasPrefix(inst.RestTicker, "I:") {
			return strings.TrimPrefix(inst.RestTicker, "I:")
		}
		return "I:" + inst.RestTicker
	default:
		return ""
	}
}

func splitPair(symbol string) (string, string, bool) {
	base, quote, ok := strings.Cut(symbol, "/")
	if !ok || base == "" || quote == "" {
		return "", "", false
	}
	return base, quote, true
}

func previousWeekday(now time.Time) time.Time {
	day := now.UTC().AddDate(0, 0, -1)
	for day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
		day = day.AddDate(0, 0, -1)
	}
	return day
}
