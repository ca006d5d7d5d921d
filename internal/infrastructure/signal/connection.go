package signal

import (
	"encoding/json"
	"sync"
	"time"

	"huddle/internal/core/domain"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// wsConnection is the write side of one socket. Send never blocks; a single
// writePump goroutine owns every write to ws.
type wsConnection struct {
	id       domain.ConnID
	identity domain.Identity
	ws       *websocket.Conn

	send chan []byte
	done chan struct{}
	once sync.Once

	pingInterval time.Duration
	writeTimeout time.Duration
	logger       *zap.SugaredLogger
}

func newWSConnection(ws *websocket.Conn, identity domain.Identity, cfg ServerConfig, logger *zap.SugaredLogger) *wsConnection {
	id := domain.NewConnID()
	return &wsConnection{
		id:           id,
		identity:     identity,
		ws:           ws,
		send:         make(chan []byte, cfg.SendBufferSize),
		done:         make(chan struct{}),
		pingInterval: cfg.PingInterval,
		writeTimeout: cfg.WriteTimeout,
		logger:       logger.With("conn_id", id, "user_id", identity.ID),
	}
}

func (c *wsConnection) ID() domain.ConnID {
	return c.id
}

func (c *wsConnection) Identity() domain.Identity {
	return c.identity
}

func (c *wsConnection) Send(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return domain.ErrConnectionClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return domain.ErrConnectionClosed
	default:
		return domain.ErrSendBufferFull
	}
}

// Close stops the write pump, which sends a close frame and closes the socket.
func (c *wsConnection) Close() error {
	c.once.Do(func() {
		close(c.done)
	})
	return nil
}

func (c *wsConnection) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debugw("write failed", "error", err)
				_ = c.Close()
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debugw("ping failed", "error", err)
				_ = c.Close()
				return
			}

		case <-c.done:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
