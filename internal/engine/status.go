package engine

import (
	"sort"
	"time"

	"pricefeed/internal/obs"
)

type FeedStatus struct {
	Class      string `json:"class"`
	Phase      string `json:"phase"`
	Attempts   int    `json:"attempts"`
	Subscribed int    `json:"subscribed"`
	Generation uint64 `json:"generation"`
}

type PriceStatus struct {
	Symbol    string    `json:"symbol"`
	Class     string    `json:"class"`
	Price     float64   `json:"price"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Status is the diagnostics view served over HTTP.
type Status struct {
	Feeds   []FeedStatus  `json:"feeds"`
	Queued  int           `json:"queued"`
	Metrics obs.Snapshot  `json:"metrics"`
	Prices  []PriceStatus `json:"prices"`
}

// Status collects feed states, metrics and the price table.
func (e *Engine) Status() Status {
	feeds := make([]FeedStatus, 0, len(e.feeds))
	for _, feed := range e.feeds {
		st := feed.State()
		feeds = append(feeds, FeedStatus{
			Class:      st.Class.String(),
			Phase:      st.Phase.String(),
			Attempts:   st.Attempts,
			Subscribed: st.Subscribed,
			Generation: st.Generation,
		})
	}
	sort.Slice(feeds, func(i, j int) bool { return feeds[i].Class < feeds[j].Class })

	entries := e.prices.Entries()
	prices := make([]PriceStatus, 0, len(entries))
	for _, en := range entries {
		prices = append(prices, PriceStatus{
			Symbol:    en.Symbol,
			Class:     en.Class.String(),
			Price:     en.Price,
			UpdatedAt: en.UpdatedAt,
		})
	}

	return Status{
		Feeds:   feeds,
		Queued:  e.queue.Len(),
		Metrics: e.cfg.Metrics.Snapshot(),
		Prices:  prices,
	}
}

// Ready reports whether at least one price has been committed.
func (e *Engine) Ready() bool {
	return e.prices.Count() > 0
}
