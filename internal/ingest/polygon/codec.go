// Package polygon encodes and decodes the upstream streaming protocol.
package polygon

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"pricefeed/pkg/exception"
	"pricefeed/pkg/scanner"
	"pricefeed/pkg/websocket"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"
)

var keyEv = []byte(`"ev"`)

// EncodeAuth builds the auth payload.
func EncodeAuth(apiKey string) (websocket.MessageType, []byte, error) {
	if apiKey == "" {
		return 0, nil, exception.ErrMissingAPIKey
	}
	payload, err := sonic.ConfigFastest.Marshal(controlMessage{Action: "auth", Params: apiKey})
	if err != nil {
		return 0, nil, errors.Wrap(err, "marshal auth")
	}
	return websocket.MessageText, payload, nil
}

// EncodeSubscribe builds one subscribe request for a channel and a batch of wire ids,
// e.g. {"action":"subscribe","params":"XA.BTC-USD,XA.ETH-USD"}.
func EncodeSubscribe(channel string, wireIDs []string) (websocket.MessageType, []byte, error) {
	if channel == "" || len(wireIDs) == 0 {
		return 0, nil, exception.ErrInvalidArgument
	}
	var sb strings.Builder
	for i, id := range wireIDs {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(channel)
		sb.WriteByte('.')
		sb.WriteString(id)
	}
	payload, err := sonic.ConfigFastest.Marshal(controlMessage{Action: "subscribe", Params: sb.String()})
	if err != nil {
		return 0, nil, errors.Wrap(err, "marshal subscribe")
	}
	return websocket.MessageText, payload, nil
}

// Decode parses a frame. Records of unknown event types are ignored; records
// without a usable price are skipped. In an array frame a record that fails to
// decode is counted in Frame.Dropped and the rest of the frame is kept.
func Decode(payload []byte) (Frame, error) {
	if scanner.IndexOf(payload, keyEv) < 0 {
		return Frame{}, errors.Wrap(exception.ErrDecode, "missing ev field")
	}

	var frame Frame
	if first := firstByte(payload); first == '{' {
		if ev, ok := scanner.ScanStringField(payload, keyEv); ok && !knownEvent(string(ev)) {
			return Frame{}, nil
		}
		var single event
		if err := sonic.ConfigFastest.Unmarshal(payload, &single); err != nil {
			return Frame{}, errors.Wrap(exception.ErrDecode, err.Error())
		}
		frame.add(single)
		return frame, nil
	}

	var records []json.RawMessage
	if err := sonic.ConfigFastest.Unmarshal(payload, &records); err != nil {
		return Frame{}, errors.Wrap(exception.ErrDecode, err.Error())
	}
	for _, raw := range records {
		if ev, ok := scanner.ScanStringField(raw, keyEv); ok && !knownEvent(string(ev)) {
			continue
		}
		var e event
		if err := sonic.ConfigFastest.Unmarshal(raw, &e); err != nil {
			frame.Dropped++
			continue
		}
		frame.add(e)
	}
	return frame, nil
}

func (f *Frame) add(e event) {
	switch e.Ev {
	case EventStatus:
		f.Statuses = append(f.Statuses, Status{Status: e.Status, Message: e.Message})
	case EventCryptoAggregate, EventForexAggregate:
		if e.Pair == "" || e.Close <= 0 {
			return
		}
		ts := e.End
		if ts == 0 {
			ts = int64(e.Size)
		}
		f.Updates = append(f.Updates, Update{
			Channel:   e.Ev,
			WireID:    e.Pair,
			Price:     e.Close,
			Open:      e.Open,
			High:      e.High,
			Low:       e.Low,
			Volume:    e.Volume,
			Timestamp: ts,
		})
	case EventCryptoTrade:
		price, ok := rawFloat(e.P)
		if e.Pair == "" || !ok || price <= 0 {
			return
		}
		f.Updates = append(f.Updates, Update{
			Channel:   e.Ev,
			WireID:    e.Pair,
			Price:     price,
			Volume:    e.Size,
			Timestamp: e.Time,
		})
	case EventForexQuote:
		pair, ok := rawString(e.P)
		if !ok || pair == "" || e.Ask <= 0 || e.Bid <= 0 {
			return
		}
		f.Updates = append(f.Updates, Update{
			Channel:   e.Ev,
			WireID:    pair,
			Price:     (e.Ask + e.Bid) / 2,
			Timestamp: e.Time,
		})
	}
}

func knownEvent(ev string) bool {
	switch ev {
	case EventStatus, EventCryptoAggregate, EventCryptoTrade, EventForexAggregate, EventForexQuote:
		return true
	default:
		return false
	}
}

// Time converts an upstream millisecond timestamp.
func Time(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func firstByte(payload []byte) byte {
	for _, b := range payload {
		if !scanner.IsSpace(b) {
			return b
		}
	}
	return 0
}

func rawFloat(raw []byte) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(string(raw), 64)
	return v, err == nil
}

func rawString(raw []byte) (string, bool) {
	if len(raw) < 2 || raw[0] != '"' {
		return "", false
	}
	s, err := strconv.Unquote(string(raw))
	return s, err == nil
}
