package peersync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/iamyashm/pyRace/internal/channel"
	"github.com/iamyashm/pyRace/internal/vehicle"
	"github.com/iamyashm/pyRace/pkg/wire"
)

// LinkConfig holds relay connection settings.
type LinkConfig struct {
	URL            string
	Codec          wire.Codec
	MaxReconnect   int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	WriteWait      time.Duration
}

func (c LinkConfig) withDefaults() LinkConfig {
	if c.Codec == nil {
		c.Codec = wire.JSON{}
	}
	if c.MaxReconnect <= 0 {
		c.MaxReconnect = 10
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	return c
}

// Link is a Channel over a websocket connection to the relay. It has a
// single write goroutine draining the outgoing register and a single read
// goroutine replacing the peer register. A lost connection is redialed in the
// background with exponential backoff.
type Link struct {
	cfg     LinkConfig
	logger  *slog.Logger
	metrics *metrics

	mu     sync.Mutex
	conn   *ws.Conn
	gone   chan struct{} // closed when conn is dropped
	closed atomic.Bool
	full   atomic.Bool

	out  *channel.Latest[[]byte]
	peer *channel.Latest[Snapshot]
	done chan struct{}

	slot     atomic.Int64
	session  atomic.Pointer[string]
	welcome  chan struct{}
	welcomed sync.Once
	notify   atomic.Pointer[func(slot int, session string)]
}

// NewLink creates an unconnected link. Exchange may be called before Dial;
// it reports NoPeer until a peer state arrives.
func NewLink(cfg LinkConfig, logger *slog.Logger) (*Link, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m, err := newMetrics()
	if err != nil {
		return nil, err
	}
	return &Link{
		cfg:     cfg.withDefaults(),
		logger:  logger,
		metrics: m,
		out:     channel.NewLatest[[]byte](),
		peer:    channel.NewLatest[Snapshot](),
		done:    make(chan struct{}),
		welcome: make(chan struct{}),
	}, nil
}

// Dial connects to the relay and starts the read and write loops. If the
// first dial fails the error is returned and redialing continues in the
// background, so the caller can carry on without a peer.
func (l *Link) Dial(ctx context.Context) error {
	if l.closed.Load() {
		return ErrClosed
	}
	conn, err := l.dialOnce(ctx)
	if err != nil {
		go l.reconnect(nil)
		return err
	}
	if err := l.attach(conn); err != nil {
		_ = conn.Close()
		go l.reconnect(nil)
		return err
	}
	return nil
}

func (l *Link) dialOnce(ctx context.Context) (*ws.Conn, error) {
	conn, _, err := ws.DefaultDialer.DialContext(ctx, l.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("relay dial failed: %w", err)
	}
	return conn, nil
}

// attach sends hello on conn and makes it the active connection.
func (l *Link) attach(conn *ws.Conn) error {
	hello, err := l.cfg.Codec.Encode(wire.Control(wire.TypeHello))
	if err != nil {
		return err
	}
	if err := l.write(conn, hello); err != nil {
		return fmt.Errorf("sending hello: %w", err)
	}

	gone := make(chan struct{})
	l.mu.Lock()
	if l.closed.Load() {
		l.mu.Unlock()
		return ErrClosed
	}
	l.conn = conn
	l.gone = gone
	l.mu.Unlock()

	go l.writeLoop(conn, gone)
	go l.readLoop(conn)
	return nil
}

func (l *Link) write(conn *ws.Conn, data []byte) error {
	typ := ws.TextMessage
	if l.cfg.Codec.Binary() {
		typ = ws.BinaryMessage
	}
	if err := conn.SetWriteDeadline(time.Now().Add(l.cfg.WriteWait)); err != nil {
		return err
	}
	return conn.WriteMessage(typ, data)
}

// writeLoop writes the newest outgoing state whenever one is stored.
// It returns on error, shutdown, or when conn is replaced.
func (l *Link) writeLoop(conn *ws.Conn, gone chan struct{}) {
	for {
		select {
		case <-l.done:
			return
		case <-gone:
			return
		case <-l.out.Ready():
			data, ok := l.out.Take()
			if !ok {
				continue
			}
			if err := l.write(conn, data); err != nil {
				l.logger.Warn("Relay write error", "error", err)
				go l.reconnect(conn)
				return
			}
			l.metrics.add(l.metrics.sent)
		}
	}
}

// readLoop decodes relay messages until conn fails.
func (l *Link) readLoop(conn *ws.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if l.closed.Load() {
				return
			}
			l.logger.Warn("Relay read error", "error", err)
			l.markStale()
			go l.reconnect(conn)
			return
		}

		m, err := l.cfg.Codec.Decode(data)
		if err != nil {
			l.metrics.add(l.metrics.decodeErrors)
			l.logger.Debug("Dropping undecodable frame", "error", err)
			continue
		}
		l.handle(m)
	}
}

func (l *Link) handle(m wire.Message) {
	switch m.Type {
	case wire.TypeState:
		if m.State == nil {
			return
		}
		l.peer.Store(FromWire(*m.State, time.Now()))
		l.metrics.add(l.metrics.received)
	case wire.TypeWelcome:
		if m.Welcome == nil {
			return
		}
		l.slot.Store(m.Welcome.Slot)
		id := m.Welcome.Session
		l.session.Store(&id)
		l.logger.Info("Joined relay", "slot", m.Welcome.Slot, "session", id)
		l.welcomed.Do(func() { close(l.welcome) })
		if fn := l.notify.Load(); fn != nil {
			(*fn)(int(m.Welcome.Slot), id)
		}
	case wire.TypePeerLeft:
		l.logger.Info("Peer left the race")
		l.markStale()
	case wire.TypeFull:
		l.logger.Warn("Relay rejected connection, no free slot")
		l.full.Store(true)
		l.welcomed.Do(func() { close(l.welcome) })
	default:
		l.logger.Debug("Ignoring relay message", "type", m.Type)
	}
}

func (l *Link) markStale() {
	if snap, ok := l.peer.Load(); ok {
		l.peer.Store(stale(snap))
	}
}

// reconnect drops failed and redials with exponential backoff. Calls for a
// connection that is no longer active are ignored.
func (l *Link) reconnect(failed *ws.Conn) {
	l.mu.Lock()
	if l.closed.Load() || l.full.Load() || l.conn != failed {
		l.mu.Unlock()
		return
	}
	if l.conn != nil {
		_ = l.conn.Close()
		close(l.gone)
		l.conn = nil
		l.gone = nil
	}
	l.mu.Unlock()

	backoff := l.cfg.InitialBackoff
	for attempt := 1; attempt <= l.cfg.MaxReconnect; attempt++ {
		select {
		case <-l.done:
			return
		case <-time.After(backoff):
		}

		l.logger.Info("Reconnecting to relay", "attempt", attempt, "backoff", backoff)
		conn, err := l.dialOnce(context.Background())
		if err == nil {
			err = l.attach(conn)
			if err != nil {
				_ = conn.Close()
			}
		}
		if err != nil {
			if l.closed.Load() {
				return
			}
			l.logger.Warn("Reconnect failed", "attempt", attempt, "error", err)
			backoff *= 2
			if backoff > l.cfg.MaxBackoff {
				backoff = l.cfg.MaxBackoff
			}
			continue
		}

		l.metrics.add(l.metrics.reconnects)
		l.logger.Info("Relay reconnected", "attempt", attempt)
		return
	}

	l.logger.Error("Relay reconnect failed after max attempts", "maxAttempts", l.cfg.MaxReconnect)
}

// WaitWelcome blocks until the relay assigns a slot, rejects the link, or
// ctx is done.
func (l *Link) WaitWelcome(ctx context.Context) (int, error) {
	select {
	case <-l.welcome:
		if l.full.Load() {
			return 0, ErrRelayFull
		}
		return l.Slot(), nil
	case <-l.done:
		return 0, ErrClosed
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// OnWelcome registers fn to run on the read goroutine for every welcome,
// including the ones that follow a reconnect. A later call replaces fn.
func (l *Link) OnWelcome(fn func(slot int, session string)) {
	l.notify.Store(&fn)
}

// Slot returns the slot assigned by the relay, or 0 before the welcome.
func (l *Link) Slot() int {
	return int(l.slot.Load())
}

// Session returns the relay session id, or "" before the welcome.
func (l *Link) Session() string {
	if id := l.session.Load(); id != nil {
		return *id
	}
	return ""
}

// Exchange queues local for sending, replacing any state not yet written,
// and returns the latest peer snapshot.
func (l *Link) Exchange(local vehicle.State, tick uint64) Snapshot {
	if !l.closed.Load() {
		data, err := l.cfg.Codec.Encode(wire.NewState(ToWire(l.Slot(), tick, local)))
		if err != nil {
			l.logger.Debug("Encoding local state failed", "tick", tick, "error", err)
		} else if l.out.Store(data) {
			l.metrics.add(l.metrics.overwritten)
		}
	}

	snap, ok := l.peer.Load()
	if !ok {
		return Snapshot{Status: NoPeer}
	}
	if l.closed.Load() {
		return stale(snap)
	}
	return snap
}

// Close sends a close frame and stops all goroutines.
func (l *Link) Close() error {
	l.mu.Lock()
	if !l.closed.CompareAndSwap(false, true) {
		l.mu.Unlock()
		return ErrClosed
	}
	close(l.done)
	l.out.Close()
	conn := l.conn
	l.conn = nil
	l.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(
			ws.CloseMessage,
			ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
			time.Now().Add(l.cfg.WriteWait),
		)
		return conn.Close()
	}
	return nil
}
