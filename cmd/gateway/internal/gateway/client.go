package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"go.uber.org/zap"

	"github.com/evgeniymelnikov/traderimo-test-task/cmd/gateway/internal/hub"
	"github.com/evgeniymelnikov/traderimo-test-task/cmd/gateway/internal/protocol"
)

const (
	maxMessageSize = 512 * 1024
)

var ErrClientClosed = errors.New("client closed")

// Compile-time check to ensure ClientAdapter can be registered with the Hub
var _ hub.ClientInterface = (*ClientAdapter)(nil)

type ClientAdapter struct {
	conn         net.Conn
	hub          *hub.Hub
	send         chan []byte
	done         chan struct{}
	closeOnce    sync.Once
	logger       *zap.Logger
	validTickers map[string]bool

	writeWait  time.Duration
	pongWait   time.Duration
	pingPeriod time.Duration
}

func NewClient(conn net.Conn, h *hub.Hub, logger *zap.Logger, validTickers map[string]bool, sendBuffer int) *ClientAdapter {
	return &ClientAdapter{
		conn:         conn,
		hub:          h,
		send:         make(chan []byte, sendBuffer),
		done:         make(chan struct{}),
		logger:       logger.With(zap.String("client", conn.RemoteAddr().String())),
		validTickers: validTickers,
		writeWait:    5 * time.Second,
		pongWait:     60 * time.Second,
		pingPeriod:   50 * time.Second,
	}
}

func (c *ClientAdapter) Start() {
	go c.writePump()
	go c.readPump()
}

func (c *ClientAdapter) ID() string { return c.conn.RemoteAddr().String() }

// Close only signals, writePump closes conn
func (c *ClientAdapter) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// SendJSON blocks while the send buffer is full. Ticker messages come from
// the client's own dispatcher goroutine, so blocking here is what lets the
// dispatcher coalesce prices for a slow socket.
func (c *ClientAdapter) SendJSON(v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	select {
	case c.send <- b:
		return nil
	case <-c.done:
		return ErrClientClosed
	}
}

var (
	errFrameTooLarge = errors.New("frame exceeds max message size")
	errFragmented    = errors.New("fragmented frames are not supported")
)

// readFrame reads one unmasked client frame.
func (c *ClientAdapter) readFrame() (ws.OpCode, []byte, error) {
	header, err := ws.ReadHeader(c.conn)
	if err != nil {
		return 0, nil, err
	}
	if header.Length > int64(maxMessageSize) {
		return 0, nil, fmt.Errorf("%w: %d bytes", errFrameTooLarge, header.Length)
	}
	if !header.Fin {
		return 0, nil, errFragmented
	}

	payload := make([]byte, header.Length)
	if _, err := io.ReadFull(c.conn, payload); err != nil {
		return 0, nil, err
	}
	if header.Masked {
		ws.Cipher(payload, header.Mask, 0)
	}
	return header.OpCode, payload, nil
}

func (c *ClientAdapter) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(c.pongWait))

	for {
		op, payload, err := c.readFrame()
		if err != nil {
			if errors.Is(err, errFrameTooLarge) || errors.Is(err, errFragmented) {
				c.logger.Warn("Dropping client", zap.Error(err))
			}
			return
		}

		switch op {
		case ws.OpClose:
			return
		case ws.OpPong:
			c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
		case ws.OpText:
			c.handleText(payload)
		}
	}
}

func (c *ClientAdapter) handleText(payload []byte) {
	var req protocol.WSRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		_ = c.SendJSON(protocol.WSResponse{Type: protocol.TypeError, Message: "Invalid JSON"})
		return
	}

	for i, s := range req.Payload.Symbols {
		req.Payload.Symbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}

	c.hub.HandleCommand(c, req, c.validTickers)
}

func (c *ClientAdapter) writePump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		// Unblock senders waiting on a buffer nobody drains anymore
		c.Close()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := wsutil.WriteServerText(c.conn, msg); err != nil {
				c.logger.Debug("Write failed", zap.Error(err))
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			c.conn.Write(ws.CompiledClose)
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := wsutil.WriteServerMessage(c.conn, ws.OpPing, nil); err != nil {
				return
			}
		}
	}
}
