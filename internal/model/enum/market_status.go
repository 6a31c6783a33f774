package enum

type MarketStatus uint8

const (
	_marketStatus_beg MarketStatus = iota
	MarketStatusOpen
	MarketStatusClosed
	_marketStatus_end
)

func (s MarketStatus) IsAvailable() bool {
	return s > _marketStatus_beg && s < _marketStatus_end
}

func (s MarketStatus) String() string {
	switch s {
	case MarketStatusOpen:
		return "open"
	case MarketStatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}
