// Package relay is the meeting point of the two participants. It assigns
// slots, forwards each side's state frames to the other verbatim and tells
// the survivor when its peer leaves. It never simulates.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"

	"github.com/iamyashm/pyRace/internal/channel"
	"github.com/iamyashm/pyRace/internal/dispatcher"
	"github.com/iamyashm/pyRace/pkg/wire"
)

// Slots is the number of participants in one race.
const Slots = 2

// ErrFull is returned when both slots are taken.
var ErrFull = errors.New("relay full")

// Config holds relay settings.
type Config struct {
	Listen       string
	Path         string
	HelloTimeout time.Duration
	WriteWait    time.Duration
	ReadLimit    int64
}

func (c Config) withDefaults() Config {
	if c.Path == "" {
		c.Path = "/race"
	}
	if c.HelloTimeout <= 0 {
		c.HelloTimeout = 5 * time.Second
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 4096
	}
	return c
}

// frame is a websocket message as it was received.
type frame struct {
	binary bool
	data   []byte
}

func (f frame) messageType() int {
	if f.binary {
		return ws.BinaryMessage
	}
	return ws.TextMessage
}

// client is one admitted connection.
type client struct {
	id    string
	slot  int
	conn  *ws.Conn
	codec wire.Codec
	out   *channel.Latest[frame]
}

// Server is a two-slot relay.
type Server struct {
	cfg      Config
	logger   *slog.Logger
	disp     *dispatcher.Dispatcher
	metrics  *metrics
	upgrader ws.Upgrader

	mu      sync.Mutex
	slots   [Slots]*client
	session string
	conns   map[*ws.Conn]struct{}
}

// New creates a relay server.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	disp, err := dispatcher.New(logger)
	if err != nil {
		return nil, fmt.Errorf("creating dispatcher: %w", err)
	}
	m, err := newMetrics()
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:      cfg.withDefaults(),
		logger:   logger,
		disp:     disp,
		metrics:  m,
		upgrader: ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		conns:    make(map[*ws.Conn]struct{}),
	}
	s.registerHandlers()
	return s, nil
}

func (s *Server) registerHandlers() {
	s.disp.Register(wire.TypeState, s.handleState)
	s.disp.Register(wire.TypeHello, func(e dispatcher.Event) error {
		return nil
	}, dispatcher.Logged())
}

// handleState forwards a state frame to the other slot.
func (s *Server) handleState(e dispatcher.Event) error {
	s.mu.Lock()
	peer := s.slots[other(e.Slot)-1]
	s.mu.Unlock()

	if peer == nil {
		return nil
	}
	peer.out.Store(frame{binary: e.Binary, data: e.Frame})
	s.metrics.forwarded.Add(context.Background(), 1)
	return nil
}

func other(slot int) int {
	if slot == 1 {
		return 2
	}
	return 1
}

// Handler returns the HTTP handler serving the race endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Path, s.serveRace)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		s.mu.Lock()
		n := s.occupied()
		s.mu.Unlock()
		fmt.Fprintf(w, "ok %d/%d\n", n, Slots)
	})
	return mux
}

// Run serves on the configured address until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.cfg.Listen, Handler: s.Handler()}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Relay listening", "addr", s.cfg.Listen, "path", s.cfg.Path)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.Close()
		return fmt.Errorf("relay server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Close()
	if err != nil {
		return fmt.Errorf("relay shutdown: %w", err)
	}
	return nil
}

// Close drops every connection and stops the dispatcher.
func (s *Server) Close() {
	s.mu.Lock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()
	s.disp.Close()
}

// Occupied returns the number of taken slots.
func (s *Server) Occupied() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.occupied()
}

func (s *Server) occupied() int {
	n := 0
	for _, c := range s.slots {
		if c != nil {
			n++
		}
	}
	return n
}

// admit puts c in the lowest free slot. A new race session starts whenever
// the relay goes from empty to occupied.
func (s *Server) admit(c *client) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, taken := range s.slots {
		if taken != nil {
			continue
		}
		if s.occupied() == 0 {
			s.session = uuid.NewString()
		}
		c.slot = i + 1
		s.slots[i] = c
		return s.session, nil
	}
	return "", ErrFull
}

// release frees c's slot and returns the remaining peer, if any.
func (s *Server) release(c *client) *client {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.slots[c.slot-1] == c {
		s.slots[c.slot-1] = nil
	}
	return s.slots[other(c.slot)-1]
}

func (s *Server) track(conn *ws.Conn, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if on {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}
