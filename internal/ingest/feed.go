package ingest

import (
	"context"
	"sync"

	"pricefeed/internal/ingest/polygon"
	"pricefeed/internal/model"
	"pricefeed/internal/model/enum"
	"pricefeed/internal/obs"
	"pricefeed/pkg/exception"
	"pricefeed/pkg/websocket"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// Hooks are called from the feed's goroutines; they must not block.
type Hooks struct {
	OnAuthenticated func(class enum.AssetClass)
	OnUpdate        func(ctx context.Context, update model.RawUpdate)
	OnClosed        func(class enum.AssetClass, reason error)
	OnError         func(class enum.AssetClass, err error)
}

// FeedConfig wires a Feed.
type FeedConfig struct {
	Class    enum.AssetClass
	APIKey   string
	Channels []string
	Dialer   websocket.Dialer
	Batcher  *Batcher
	Metrics  *obs.Metrics
	Hooks    Hooks
	// Reconnect is asked to schedule a new Open after the connection degrades.
	Reconnect func(class enum.AssetClass)
}

// ConnectionState is a point-in-time view of a feed.
type ConnectionState struct {
	Class      enum.AssetClass `json:"-"`
	Phase      enum.Phase      `json:"-"`
	Attempts   int             `json:"attempts"`
	Subscribed int             `json:"subscribed"`
	Generation uint64          `json:"generation"`
}

// Feed owns at most one live streaming connection for one asset class.
// Every Open starts a new generation; events from older generations are ignored.
type Feed struct {
	cfg FeedConfig

	openMu sync.Mutex

	mu            sync.Mutex
	gen           uint64
	phase         enum.Phase
	attempts      int
	closed        bool
	instruments   []model.Instrument
	subscribed    map[string]struct{}
	conn          websocket.Conn
	cancelDial    context.CancelFunc
	cancelSession context.CancelFunc
}

// NewFeed validates cfg and builds a disconnected feed.
func NewFeed(cfg FeedConfig) (*Feed, error) {
	if cfg.Dialer == nil {
		return nil, errors.Wrap(exception.ErrNilInstance, "dialer")
	}
	if !cfg.Class.Streamable() {
		return nil, errors.Wrapf(exception.ErrArgumentUnsupported, "class: %s", cfg.Class)
	}
	if cfg.APIKey == "" {
		return nil, exception.ErrMissingAPIKey
	}
	if len(cfg.Channels) == 0 {
		cfg.Channels = DefaultChannels(cfg.Class)
	}
	if cfg.Batcher == nil {
		cfg.Batcher = NewBatcher(DefaultBatchSize, DefaultBatchPace, nil)
	}
	return &Feed{cfg: cfg, subscribed: make(map[string]struct{})}, nil
}

// DefaultChannels are the aggregate and tick channels of a class.
func DefaultChannels(class enum.AssetClass) []string {
	switch class {
	case enum.AssetClassCrypto:
		return []string{polygon.EventCryptoAggregate, polygon.EventCryptoTrade}
	case enum.AssetClassForex:
		return []string{polygon.EventForexAggregate, polygon.EventForexQuote}
	default:
		return nil
	}
}

// Class is the asset class the feed streams.
func (f *Feed) Class() enum.AssetClass { return f.cfg.Class }

// Attempts returns the consecutive failed connection attempts.
func (f *Feed) Attempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

// Instruments returns the instrument set of the latest Open.
func (f *Feed) Instruments() []model.Instrument {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Instrument, len(f.instruments))
	copy(out, f.instruments)
	return out
}

// State returns a copy of the connection state.
func (f *Feed) State() ConnectionState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return ConnectionState{
		Class:      f.cfg.Class,
		Phase:      f.phase,
		Attempts:   f.attempts,
		Subscribed: len(f.subscribed),
		Generation: f.gen,
	}
}

// Subscribed reports whether the feed is authenticated and streaming.
func (f *Feed) Subscribed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.phase == enum.PhaseSubscribed
}

// Open retires any previous connection, dials, and sends the auth request.
// The instruments are subscribed only after the upstream confirms auth.
// A dial that loses to a newer Open returns nil without side effects.
func (f *Feed) Open(ctx context.Context, instruments []model.Instrument) error {
	f.openMu.Lock()
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		f.openMu.Unlock()
		return exception.ErrWebSocketConnectionClose
	}
	old, oldCancel := f.retireLocked()
	f.gen++
	gen := f.gen
	f.phase = enum.PhaseConnecting
	f.instruments = append([]model.Instrument(nil), instruments...)
	dialCtx, cancelDial := context.WithCancel(ctx)
	f.cancelDial = cancelDial
	f.mu.Unlock()
	f.openMu.Unlock()

	if oldCancel != nil {
		oldCancel()
	}
	if old != nil {
		_ = old.Close(websocket.CloseNormal, "reconnect")
	}

	conn, err := f.cfg.Dialer.Dial(dialCtx)
	if err != nil {
		if !f.current(gen) {
			return nil
		}
		if f.cfg.Hooks.OnError != nil {
			f.cfg.Hooks.OnError(f.cfg.Class, err)
		}
		f.fail(gen, nil, errors.Wrap(exception.ErrTransport, err.Error()))
		return errors.Wrap(err, "dial")
	}

	f.mu.Lock()
	if gen != f.gen || f.closed {
		f.mu.Unlock()
		_ = conn.Close(websocket.CloseNormal, "superseded")
		return nil
	}
	sessCtx, cancelSession := context.WithCancel(ctx)
	f.conn = conn
	f.cancelSession = cancelSession
	f.cancelDial = nil
	f.phase = enum.PhaseAuthenticating
	f.mu.Unlock()
	cancelDial()

	typ, payload, err := polygon.EncodeAuth(f.cfg.APIKey)
	if err == nil {
		err = conn.Write(sessCtx, typ, payload)
	}
	if err != nil {
		f.fail(gen, conn, errors.Wrap(exception.ErrTransport, err.Error()))
		return errors.Wrap(err, "send auth")
	}

	go f.readLoop(sessCtx, gen, conn)
	return nil
}

// Close retires the live connection and stops further Opens.
func (f *Feed) Close() {
	f.mu.Lock()
	f.closed = true
	f.gen++
	old, cancel := f.retireLocked()
	f.phase = enum.PhaseDisconnected
	f.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if old != nil {
		_ = old.Close(websocket.CloseGoingAway, "shutdown")
	}
}

// retireLocked detaches the current connection and returns what the caller must release.
func (f *Feed) retireLocked() (websocket.Conn, context.CancelFunc) {
	if f.cancelDial != nil {
		f.cancelDial()
		f.cancelDial = nil
	}
	old, cancel := f.conn, f.cancelSession
	f.conn, f.cancelSession = nil, nil
	clear(f.subscribed)
	return old, cancel
}

func (f *Feed) current(gen uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return gen == f.gen && !f.closed
}

func (f *Feed) readLoop(ctx context.Context, gen uint64, conn websocket.Conn) {
	for {
		_, payload, err := conn.Read(ctx)
		if err != nil {
			if websocket.IsClosed(err) {
				logs.Infof("feed %s: upstream closed the connection", f.cfg.Class)
			}
			f.fail(gen, conn, errors.Wrap(exception.ErrTransport, err.Error()))
			return
		}
		if !f.current(gen) {
			return
		}
		f.handleFrame(ctx, gen, conn, payload)
	}
}

func (f *Feed) handleFrame(ctx context.Context, gen uint64, conn websocket.Conn, payload []byte) {
	frame, err := polygon.Decode(payload)
	if err != nil {
		f.cfg.Metrics.IncDecodeError()
		logs.Warnf("feed %s: drop frame, err: %+v", f.cfg.Class, err)
		return
	}
	if frame.Dropped > 0 {
		for range frame.Dropped {
			f.cfg.Metrics.IncDecodeError()
		}
		logs.Warnf("feed %s: dropped %d undecodable records", f.cfg.Class, frame.Dropped)
	}
	for _, st := range frame.Statuses {
		switch st.Status {
		case polygon.StatusAuthSuccess:
			f.onAuthenticated(ctx, gen, conn)
		case polygon.StatusAuthFailed:
			f.cfg.Metrics.IncAuthFailure()
			logs.Errorf("feed %s: auth failed: %s", f.cfg.Class, st.Message)
			if f.cfg.Hooks.OnError != nil {
				f.cfg.Hooks.OnError(f.cfg.Class, errors.Wrap(exception.ErrAuthFailure, st.Message))
			}
		case polygon.StatusError:
			logs.Warnf("feed %s: upstream error: %s", f.cfg.Class, st.Message)
		default:
			logs.Debugf("feed %s: status %s %s", f.cfg.Class, st.Status, st.Message)
		}
	}
	if f.cfg.Hooks.OnUpdate == nil {
		return
	}
	for _, u := range frame.Updates {
		f.cfg.Hooks.OnUpdate(ctx, model.RawUpdate{
			Channel:   u.Channel,
			WireID:    u.WireID,
			Class:     f.cfg.Class,
			Price:     u.Price,
			Open:      u.Open,
			High:      u.High,
			Low:       u.Low,
			Volume:    u.Volume,
			Timestamp: polygon.Time(u.Timestamp),
		})
	}
}

func (f *Feed) onAuthenticated(ctx context.Context, gen uint64, conn websocket.Conn) {
	f.mu.Lock()
	if gen != f.gen {
		f.mu.Unlock()
		return
	}
	f.phase = enum.PhaseSubscribed
	wireIDs := make([]string, 0, len(f.instruments))
	for _, inst := range f.instruments {
		wireIDs = append(wireIDs, inst.WireID)
	}
	f.mu.Unlock()

	logs.Infof("feed %s: authenticated, subscribing %d instruments", f.cfg.Class, len(wireIDs))
	if f.cfg.Hooks.OnAuthenticated != nil {
		f.cfg.Hooks.OnAuthenticated(f.cfg.Class)
	}

	go func() {
		sent := f.cfg.Batcher.Subscribe(ctx, conn, wireIDs, f.cfg.Channels)
		if ctx.Err() != nil {
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		if gen != f.gen {
			return
		}
		if want := f.cfg.Batcher.Requests(len(wireIDs), len(f.cfg.Channels)); sent < want {
			logs.Warnf("feed %s: only %d of %d subscribe requests sent", f.cfg.Class, sent, want)
			return
		}
		for _, id := range wireIDs {
			f.subscribed[id] = struct{}{}
		}
		f.attempts = 0
		logs.Infof("feed %s: sent %d subscribe requests", f.cfg.Class, sent)
	}()
}

// fail moves a current connection to degraded and asks for a reconnect.
// Failures of retired generations are ignored.
func (f *Feed) fail(gen uint64, conn websocket.Conn, reason error) {
	f.mu.Lock()
	if gen != f.gen || f.closed {
		f.mu.Unlock()
		return
	}
	f.phase = enum.PhaseDegraded
	f.attempts++
	cancel := f.cancelSession
	f.conn, f.cancelSession = nil, nil
	clear(f.subscribed)
	attempts := f.attempts
	f.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close(websocket.CloseNormal, "degraded")
	}
	logs.Warnf("feed %s: degraded after %d attempts, err: %+v", f.cfg.Class, attempts, reason)
	if f.cfg.Hooks.OnClosed != nil {
		f.cfg.Hooks.OnClosed(f.cfg.Class, reason)
	}
	if f.cfg.Reconnect != nil {
		f.cfg.Reconnect(f.cfg.Class)
	}
}
