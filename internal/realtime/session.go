package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/tenantflow/channel-connector/internal/domain"
	"github.com/tenantflow/channel-connector/internal/platform/logger"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const maxInboundFrameBytes = 1 << 20

// SocketConfig carries the tunables for a websocket session.
type SocketConfig struct {
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	SendBufferSize int
}

// WebSocketSession adapts a gorilla websocket connection to the Session
// interface.  All writes go through a buffered channel drained by a single
// writer goroutine, so fan-out never blocks on a slow peer and per-producer
// ordering is preserved by the channel FIFO.
type WebSocketSession struct {
	conn   *websocket.Conn
	tenant domain.TenantID
	user   domain.UserID
	cfg    SocketConfig

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewWebSocketSession(conn *websocket.Conn, tenant domain.TenantID, user domain.UserID, cfg SocketConfig) *WebSocketSession {
	return &WebSocketSession{
		conn:   conn,
		tenant: tenant,
		user:   user,
		cfg:    cfg,
		send:   make(chan []byte, cfg.SendBufferSize),
		done:   make(chan struct{}),
	}
}

func (s *WebSocketSession) User() domain.UserID {
	return s.user
}

func (s *WebSocketSession) Tenant() domain.TenantID {
	return s.tenant
}

// Enqueue hands the frame to the writer goroutine without blocking.  A full
// buffer means the peer is not keeping up - the caller deregisters us.
func (s *WebSocketSession) Enqueue(payload []byte) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}

	select {
	case s.send <- payload:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (s *WebSocketSession) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

// WritePump drains the send channel onto the wire.  It owns all writes to
// the connection, including pings.  Run it on its own goroutine.
func (s *WebSocketSession) WritePump() {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()
	defer s.Close()

	for {
		select {
		case payload := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Log.WithFields(logrus.Fields{
					"error":  err,
					"tenant": s.tenant,
					"user":   s.user}).Debug("Websocket write failed")
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

// ReadLoop consumes inbound frames and hands them to the dispatcher until
// the connection errors or closes.  It runs on the HTTP handler goroutine.
func (s *WebSocketSession) ReadLoop(ctx context.Context, dispatcher *CommandDispatcher) {
	defer s.Close()

	s.conn.SetReadLimit(maxInboundFrameBytes)
	s.conn.SetReadDeadline(time.Now().Add(s.cfg.PingInterval * 3))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(s.cfg.PingInterval * 3))
		return nil
	})

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Log.WithFields(logrus.Fields{
					"error":  err,
					"tenant": s.tenant,
					"user":   s.user}).Debug("Websocket read failed")
			}
			return
		}

		dispatcher.Dispatch(ctx, s.tenant, s.user, payload)
	}
}
