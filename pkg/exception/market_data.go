package exception

import "github.com/yanun0323/errors"

// Feed and price pipeline errors.
var (
	// ErrAuthFailure is reported when the upstream rejects the stream credentials.
	ErrAuthFailure = errors.New("market data: auth failed")
	// ErrTransport covers socket errors and unexpected closes; it triggers a reconnect.
	ErrTransport = errors.New("market data: transport error")
	// ErrDecode drops one malformed frame or response body.
	ErrDecode = errors.New("market data: decode error")
	// ErrUpstreamUnavailable means every REST strategy failed for a symbol.
	ErrUpstreamUnavailable = errors.New("market data: upstream unavailable")
	// ErrResolutionFailure drops a record whose wire identifier maps to no known symbol.
	ErrResolutionFailure = errors.New("market data: symbol resolution failed")
	ErrClassConflict     = errors.New("market data: asset class conflict")
	ErrMarketClosed      = errors.New("market data: market closed")
	ErrInvalidSnapshot   = errors.New("market data: invalid snapshot")
	ErrMissingAPIKey     = errors.New("market data: missing api key")
)

// Registry errors.
var (
	ErrUnknownAssetClass = errors.New("registry: unknown asset class")
	ErrDuplicateSymbol   = errors.New("registry: duplicate symbol")
	ErrDuplicateWireID   = errors.New("registry: duplicate wire id")
	ErrEmptySymbol       = errors.New("registry: empty symbol")
	ErrUnknownSymbol     = errors.New("registry: unknown symbol")
)
