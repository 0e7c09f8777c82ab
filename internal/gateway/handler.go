package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/eleven-am/brivva-dataplane/internal/relay"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	writeWait       = 10 * time.Second
	defaultPongWait = 60 * time.Second
	maxMessageSize  = 512 * 1024

	FlagHeader = "X-Session-Flag"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Relayer runs a relay session over an upgraded client connection.
type Relayer interface {
	Serve(ctx context.Context, conn relay.ClientConn, flag string) error
}

type RelayHandler struct {
	relays   Relayer
	pongWait time.Duration
	logger   *slog.Logger
}

// NewRelayHandler builds the websocket endpoint. pongWait bounds how long a
// client may stay silent, and must exceed the relay ping interval.
func NewRelayHandler(relays Relayer, pongWait time.Duration, logger *slog.Logger) *RelayHandler {
	if pongWait <= 0 {
		pongWait = defaultPongWait
	}
	return &RelayHandler{
		relays:   relays,
		pongWait: pongWait,
		logger:   logger.With("component", "relay_handler"),
	}
}

func (h *RelayHandler) RegisterRoutes(e *echo.Echo, m ...echo.MiddlewareFunc) {
	e.GET("/ws", h.HandleConnection, m...)
}

func (h *RelayHandler) HandleConnection(c echo.Context) error {
	flag := c.QueryParam("flag")
	if flag == "" {
		flag = c.Request().Header.Get(FlagHeader)
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return nil
	}
	defer ws.Close()

	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(h.pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.pongWait))
	})

	conn := &clientConn{Conn: ws, pongWait: h.pongWait}
	err = h.relays.Serve(c.Request().Context(), conn, flag)

	code, reason := websocket.CloseNormalClosure, ""
	if errors.Is(err, relay.ErrShuttingDown) {
		code, reason = websocket.CloseTryAgainLater, "server shutting down"
	} else if err != nil {
		h.logger.Debug("relay ended with error", "error", err, "outcome", relay.Outcome(err))
	}
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(writeWait))

	return nil
}

// clientConn extends the read deadline on every received frame so a client
// that keeps streaming is never timed out between pongs.
type clientConn struct {
	*websocket.Conn
	pongWait time.Duration
}

func (c *clientConn) ReadMessage() (int, []byte, error) {
	mt, data, err := c.Conn.ReadMessage()
	if err == nil {
		_ = c.Conn.SetReadDeadline(time.Now().Add(c.pongWait))
	}
	return mt, data, err
}
