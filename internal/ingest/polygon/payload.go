package polygon

import "encoding/json"

// Upstream status values.
const (
	StatusConnected   = "connected"
	StatusAuthSuccess = "auth_success"
	StatusAuthFailed  = "auth_failed"
	StatusSuccess     = "success"
	StatusError       = "error"
)

// Event names.
const (
	EventStatus          = "status"
	EventCryptoAggregate = "XA"
	EventCryptoTrade     = "XT"
	EventForexAggregate  = "CA"
	EventForexQuote      = "C"
)

type controlMessage struct {
	Action string `json:"action"`
	Params string `json:"params"`
}

// event is one element of an upstream frame. "p" is a price on crypto trades
// and the pair on forex quotes, so it is decoded lazily.
type event struct {
	Ev      string          `json:"ev"`
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Pair    string          `json:"pair"`
	P       json.RawMessage `json:"p"`
	Ask     float64         `json:"a"`
	Bid     float64         `json:"b"`
	Open    float64         `json:"o"`
	Close   float64         `json:"c"`
	High    float64         `json:"h"`
	Low     float64         `json:"l"`
	Volume  float64         `json:"v"`
	Size    float64         `json:"s"`
	End     int64           `json:"e"`
	Time    int64           `json:"t"`
}

// Status is a control record from the upstream.
type Status struct {
	Status  string
	Message string
}

// Frame is the decoded content of one websocket message.
type Frame struct {
	Statuses []Status
	Updates  []Update
	// Dropped counts records that failed to decode.
	Dropped int
}

// Update is one price record in wire terms.
type Update struct {
	Channel   string
	WireID    string
	Price     float64
	Open      float64
	High      float64
	Low       float64
	Volume    float64
	Timestamp int64
}
