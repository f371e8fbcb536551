package websocket

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/pscheid92/fazzk/internal/broadcast"
	"github.com/pscheid92/fazzk/internal/domain"
)

const (
	writeTimeout   = 5 * time.Second
	pingInterval   = 30 * time.Second
	pongTimeout    = 60 * time.Second
	maxMessageSize = 4096
	replyBuffer    = 16
)

// session owns one upgraded connection. A writer goroutine drains bus events
// and direct replies; the reader runs on the handler goroutine. Whichever
// ends first tears down both.
type session struct {
	id      string
	h       *Handler
	limiter *rate.Limiter
	replies chan ServerMessage
	done    chan struct{}

	mu     sync.Mutex
	conn   *websocket.Conn
	sub    *broadcast.Subscription
	closed bool

	stopOnce sync.Once
}

func newSession(id string, h *Handler) *session {
	return &session{
		id:      id,
		h:       h,
		limiter: rate.NewLimiter(h.testRate, h.testBurst),
		replies: make(chan ServerMessage, replyBuffer),
		done:    make(chan struct{}),
	}
}

// attach binds the upgraded connection and subscribes to the bus. It fails
// if the pool already closed the session.
func (s *session) attach(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conn = conn
	s.sub = s.h.bus.Subscribe(s.id)
	return true
}

// Close lets the pool evict the session.
func (s *session) Close() error {
	s.stop()
	return nil
}

func (s *session) stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		conn, sub := s.conn, s.sub
		s.mu.Unlock()

		close(s.done)
		if sub != nil {
			sub.Unsubscribe()
		}
		if conn != nil {
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
			_ = conn.WriteControl(websocket.CloseMessage, msg, s.h.clock.Now().Add(writeTimeout))
			_ = conn.Close()
		}
		s.h.pool.Remove(s.id)
	})
}

func (s *session) run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer s.stop()
		s.writeLoop(ctx)
	}()

	s.readLoop(ctx)
	s.stop()
	wg.Wait()
}

func (s *session) writeLoop(ctx context.Context) {
	ticker := s.h.clock.NewTicker(pingInterval)
	defer ticker.Stop()

	events := s.sub.Events()
	for {
		select {
		case <-s.done:
			return

		case event, ok := <-events:
			if !ok {
				return
			}
			if n := s.sub.TakeLagged(); n > 0 {
				slog.WarnContext(ctx, "Client lagged behind, events dropped", "dropped", n)
			}
			msg, err := EventMessage(event)
			if err != nil {
				slog.ErrorContext(ctx, "Skipping event", "error", err)
				continue
			}
			if err := s.write(msg); err != nil {
				slog.DebugContext(ctx, "Write failed, closing connection", "error", err)
				return
			}
			s.h.pool.Touch(s.id)

		case msg := <-s.replies:
			if err := s.write(msg); err != nil {
				slog.DebugContext(ctx, "Write failed, closing connection", "error", err)
				return
			}

		case <-ticker.Chan():
			_ = s.conn.SetWriteDeadline(s.h.clock.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				slog.DebugContext(ctx, "Ping failed, closing connection", "error", err)
				return
			}
		}
	}
}

func (s *session) write(msg ServerMessage) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	_ = s.conn.SetWriteDeadline(s.h.clock.Now().Add(writeTimeout))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	if s.h.metrics != nil {
		s.h.metrics.MessagesSent.WithLabelValues(msg.Type).Inc()
	}
	return nil
}

// reply queues a direct answer to this client. Replies are dropped rather
// than blocking the reader when the client stops draining them.
func (s *session) reply(ctx context.Context, msg ServerMessage) {
	select {
	case s.replies <- msg:
	case <-s.done:
	default:
		slog.WarnContext(ctx, "Reply queue full, dropping message", "type", msg.Type)
	}
}

func (s *session) extendReadDeadline() {
	_ = s.conn.SetReadDeadline(s.h.clock.Now().Add(pongTimeout))
}

func (s *session) readLoop(ctx context.Context) {
	conn := s.conn
	conn.SetReadLimit(maxMessageSize)
	s.extendReadDeadline()

	conn.SetPongHandler(func(string) error {
		s.h.pool.Touch(s.id)
		s.extendReadDeadline()
		return nil
	})
	conn.SetPingHandler(func(appData string) error {
		s.h.pool.Touch(s.id)
		s.extendReadDeadline()
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), s.h.clock.Now().Add(writeTimeout))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				slog.DebugContext(ctx, "Connection closed unexpectedly", "error", err)
			}
			return
		}

		s.h.pool.Touch(s.id)
		s.extendReadDeadline()

		if messageType != websocket.TextMessage {
			continue
		}
		s.handleMessage(ctx, data)
	}
}

func (s *session) handleMessage(ctx context.Context, data []byte) {
	msg, err := DecodeClientMessage(data)
	if err != nil {
		s.countReceived("invalid")
		slog.WarnContext(ctx, "Invalid client message", "error", err)
		s.reply(ctx, ErrorMessage(err.Error()))
		return
	}

	switch m := msg.(type) {
	case PingMessage:
		s.countReceived(TypePing)
		s.reply(ctx, PongMessage())

	case SubscribeMessage:
		s.countReceived(TypeSubscribe)
		s.h.pool.SetTopics(s.id, m.Topics)
		slog.DebugContext(ctx, "Client subscribed", "topics", m.Topics)

	case TestFollowerMessage:
		s.countReceived(TypeTestFollower)
		if !s.limiter.Allow() {
			s.reply(ctx, ErrorMessage("test follower rate limit exceeded"))
			return
		}
		if _, err := s.h.injector.InjectTestFollower(ctx, domain.TestSourceWebSocket); err != nil {
			slog.ErrorContext(ctx, "Failed to inject test follower", "error", err)
			s.reply(ctx, ErrorMessage("failed to inject test follower"))
		}
	}
}

func (s *session) countReceived(msgType string) {
	if s.h.metrics != nil {
		s.h.metrics.MessagesReceived.WithLabelValues(msgType).Inc()
	}
}
