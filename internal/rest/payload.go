package rest

import (
	"time"

	"pricefeed/internal/model"
	"pricefeed/internal/model/enum"
	"pricefeed/pkg/exception"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"
)

type aggBar struct {
	Ticker    string  `json:"T"`
	Open      float64 `json:"o"`
	High      float64 `json:"h"`
	Low       float64 `json:"l"`
	Close     float64 `json:"c"`
	Volume    float64 `json:"v"`
	Timestamp int64   `json:"t"`
}

type aggResponse struct {
	Status  string   `json:"status"`
	Results []aggBar `json:"results"`
}

type lastCryptoResponse struct {
	Status string `json:"status"`
	Last   struct {
		Price     float64 `json:"price"`
		Size      float64 `json:"size"`
		Timestamp int64   `json:"timestamp"`
	} `json:"last"`
}

type lastQuoteResponse struct {
	Status string `json:"status"`
	Last   struct {
		Ask       float64 `json:"ask"`
		Bid       float64 `json:"bid"`
		Timestamp int64   `json:"timestamp"`
	} `json:"last"`
}

type lastTradeResponse struct {
	Status  string `json:"status"`
	Results struct {
		Price     float64 `json:"p"`
		Size      float64 `json:"s"`
		Timestamp int64   `json:"t"`
	} `json:"results"`
}

type openCloseResponse struct {
	Status string  `json:"status"`
	Symbol string  `json:"symbol"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

type tickerSnapshotResponse struct {
	Status string `json:"status"`
	Ticker struct {
		Day struct {
			Open   float64 `json:"o"`
			High   float64 `json:"h"`
			Low    float64 `json:"l"`
			Close  float64 `json:"c"`
			Volume float64 `json:"v"`
		} `json:"day"`
		LastTrade struct {
			Price float64 `json:"p"`
		} `json:"lastTrade"`
		PrevDay struct {
			Close float64 `json:"c"`
		} `json:"prevDay"`
		Updated int64 `json:"updated"`
	} `json:"ticker"`
}

type referenceResponse struct {
	Status  string `json:"status"`
	Results struct {
		Ticker string `json:"ticker"`
		Active bool   `json:"active"`
	} `json:"results"`
}

func decode(body []byte, v any) error {
	if err := sonic.ConfigFastest.Unmarshal(body, v); err != nil {
		return errors.Wrap(exception.ErrDecode, err.Error())
	}
	return nil
}

// quote is the common shape every strategy reduces its response to.
type quote struct {
	price  float64
	open   float64
	high   float64
	low    float64
	volume float64
	at     time.Time
}

// snapshot builds a snapshot from q. Change comes from the quote's own open when
// present, otherwise from lastKnown.
func (q quote) snapshot(inst model.Instrument, lastKnown float64, now time.Time) (model.PriceSnapshot, error) {
	if q.price <= 0 {
		return model.PriceSnapshot{}, exception.ErrInvalidSnapshot
	}
	at := q.at
	if at.IsZero() {
		at = now
	}
	high, low := q.high, q.low
	if high < q.price {
		high = q.price
	}
	if low <= 0 || low > q.price {
		low = q.price
	}
	s := model.PriceSnapshot{
		Symbol:    inst.Symbol,
		Class:     inst.Class,
		Price:     q.price,
		High24h:   high,
		Low24h:    low,
		Volume:    q.volume,
		Status:    enum.MarketStatusOpen,
		Source:    enum.SourceREST,
		Timestamp: at,
	}
	ref := q.open
	if ref <= 0 {
		ref = lastKnown
	}
	if ref > 0 {
		s = s.WithDelta(ref)
	}
	return s.Rounded(), nil
}

func millis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func nanos(ns int64) time.Time {
	if ns <= 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}
