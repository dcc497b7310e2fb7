package relay

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"

	"github.com/iamyashm/pyRace/internal/channel"
	"github.com/iamyashm/pyRace/internal/dispatcher"
	"github.com/iamyashm/pyRace/pkg/wire"
)

// codecFor picks the codec matching the websocket message type a client uses.
func codecFor(messageType int) wire.Codec {
	if messageType == ws.BinaryMessage {
		return wire.Protobuf{}
	}
	return wire.JSON{}
}

// serveRace upgrades the request, waits for hello, assigns a slot and then
// pumps frames until the client goes away.
func (s *Server) serveRace(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	s.track(conn, true)
	defer func() {
		s.track(conn, false)
		_ = conn.Close()
	}()
	conn.SetReadLimit(s.cfg.ReadLimit)

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		out:  channel.NewLatest[frame](),
	}
	logger := s.logger.With("client", c.id, "remote", r.RemoteAddr)

	if err := s.readHello(c); err != nil {
		logger.Warn("Handshake failed", "error", err)
		return
	}

	session, err := s.admit(c)
	if errors.Is(err, ErrFull) {
		logger.Info("Rejecting client, relay full")
		s.metrics.rejected.Add(context.Background(), 1)
		s.writeMessage(c, wire.Control(wire.TypeFull))
		_ = conn.WriteControl(ws.CloseMessage,
			ws.FormatCloseMessage(ws.ClosePolicyViolation, "relay full"),
			time.Now().Add(s.cfg.WriteWait))
		return
	}

	logger = logger.With("slot", c.slot, "session", session)
	s.metrics.clients.Add(context.Background(), 1)
	defer s.metrics.clients.Add(context.Background(), -1)

	if err := s.writeMessage(c, wire.NewWelcome(int64(c.slot), session)); err != nil {
		logger.Warn("Sending welcome failed", "error", err)
		s.leave(c, logger)
		return
	}
	logger.Info("Client joined")

	go s.writeLoop(c, logger)
	s.readLoop(c, logger)
	s.leave(c, logger)
}

func (s *Server) readHello(c *client) error {
	if err := c.conn.SetReadDeadline(time.Now().Add(s.cfg.HelloTimeout)); err != nil {
		return err
	}
	mt, data, err := c.conn.ReadMessage()
	if err != nil {
		return err
	}
	c.codec = codecFor(mt)
	m, err := c.codec.Decode(data)
	if err != nil {
		return err
	}
	if m.Type != wire.TypeHello {
		return errors.New("expected hello, got " + m.Type)
	}
	return c.conn.SetReadDeadline(time.Time{})
}

// leave frees the slot and notifies the remaining peer.
func (s *Server) leave(c *client, logger *slog.Logger) {
	c.out.Close()
	peer := s.release(c)
	logger.Info("Client left")
	if peer == nil {
		return
	}
	data, err := peer.codec.Encode(wire.Control(wire.TypePeerLeft))
	if err != nil {
		return
	}
	peer.out.Store(frame{binary: peer.codec.Binary(), data: data})
}

// writeMessage encodes m in the client's codec and writes it directly. Only
// used before the write loop starts.
func (s *Server) writeMessage(c *client, m wire.Message) error {
	data, err := c.codec.Encode(m)
	if err != nil {
		return err
	}
	return s.write(c.conn, frame{binary: c.codec.Binary(), data: data})
}

func (s *Server) write(conn *ws.Conn, f frame) error {
	if err := conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait)); err != nil {
		return err
	}
	return conn.WriteMessage(f.messageType(), f.data)
}

// writeLoop sends the newest pending frame to the client.
func (s *Server) writeLoop(c *client, logger *slog.Logger) {
	for {
		select {
		case <-c.out.Done():
			return
		case <-c.out.Ready():
			f, ok := c.out.Take()
			if !ok {
				continue
			}
			if err := s.write(c.conn, f); err != nil {
				logger.Warn("Write to client failed", "error", err)
				_ = c.conn.Close()
				return
			}
		}
	}
}

func (s *Server) readLoop(c *client, logger *slog.Logger) {
	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			if !ws.IsCloseError(err, ws.CloseNormalClosure, ws.CloseGoingAway) {
				logger.Debug("Client read ended", "error", err)
			}
			return
		}

		m, err := codecFor(mt).Decode(data)
		if err != nil {
			logger.Debug("Dropping undecodable frame", "error", err)
			continue
		}

		err = s.disp.Dispatch(dispatcher.Event{
			Type:      m.Type,
			Slot:      c.slot,
			Frame:     data,
			Binary:    mt == ws.BinaryMessage,
			Message:   m,
			Timestamp: time.Now(),
		})
		if errors.Is(err, dispatcher.ErrUnknownType) {
			logger.Debug("Ignoring message", "type", m.Type)
		} else if err != nil {
			logger.Warn("Dispatch failed", "type", m.Type, "error", err)
		}
	}
}
