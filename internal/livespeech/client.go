package livespeech

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	subscriberBuffer = 256
	writeWait        = 10 * time.Second
)

// Client is a single LiveSpeech connection. Subscribe before Connect so
// that no early events are lost. All methods are safe for concurrent use;
// writes are serialized internally.
type Client struct {
	cfg Config
	log *slog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connID    string
	subs      []chan Event
	pending   map[string]chan error
	finished  bool
	closing   chan struct{}
	closeOnce sync.Once
	done      chan struct{}

	writeMu sync.Mutex
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:     cfg,
		log:     logger.With("component", "livespeech"),
		pending: make(map[string]chan error),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Subscribe returns a channel of server events. The channel is closed when
// the connection ends.
func (c *Client) Subscribe() <-chan Event {
	ch := make(chan Event, subscriberBuffer)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finished {
		close(ch)
		return ch
	}
	c.subs = append(c.subs, ch)
	return ch
}

// ConnectionID is the identifier assigned by the service in its handshake.
func (c *Client) ConnectionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connID
}

// Connect dials the service and returns once the service has sent its
// connected handshake, so the connection is ready for session.start.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	if c.finished {
		c.mu.Unlock()
		return ErrClosed
	}
	c.mu.Unlock()

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+c.cfg.apiKey)

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.timeout}
	conn, resp, err := dialer.DialContext(ctx, c.cfg.endpoint, headers)
	if err != nil {
		if resp != nil {
			return &Error{
				Code:       "connection_failed",
				Message:    fmt.Sprintf("failed to connect: %v", err),
				HTTPStatus: resp.StatusCode,
			}
		}
		return fmt.Errorf("livespeech: failed to connect: %w", err)
	}

	connID, err := c.handshake(ctx, conn)
	if err != nil {
		_ = conn.Close()
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.connID = connID
	c.mu.Unlock()

	c.log.Debug("connected", "connection_id", connID, "endpoint", c.cfg.endpoint)
	go c.readLoop(conn)
	return nil
}

func (c *Client) handshake(ctx context.Context, conn *websocket.Conn) (string, error) {
	deadline := time.Now().Add(c.cfg.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetReadDeadline(deadline)
	defer conn.SetReadDeadline(time.Time{})

	var frame ServerFrame
	if err := conn.ReadJSON(&frame); err != nil {
		return "", fmt.Errorf("livespeech: handshake: %w", err)
	}

	switch frame.Type {
	case FrameConnected:
		return frame.ConnectionID, nil
	case FrameError:
		return "", &Error{Code: frame.Code, Message: frame.Message}
	default:
		return "", fmt.Errorf("livespeech: handshake: unexpected frame %q", frame.Type)
	}
}

// StartSession starts the logical session and waits for its acknowledgement.
func (c *Client) StartSession(ctx context.Context, cfg SessionConfig) error {
	return c.request(ctx, ClientFrame{
		Type:       FrameSessionStart,
		Prompt:     cfg.Prompt,
		SpeakFirst: cfg.SpeakFirst,
	})
}

// AudioStart enables audio ingestion and synthesis for the session.
func (c *Client) AudioStart(ctx context.Context) error {
	return c.request(ctx, ClientFrame{Type: FrameAudioStart})
}

// SendAudioChunk streams one chunk of PCM audio. Chunks are not
// acknowledged; a nil error only means the frame was written.
func (c *Client) SendAudioChunk(ctx context.Context, chunk []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.write(ClientFrame{
		Type:  FrameAudioChunk,
		Audio: base64.StdEncoding.EncodeToString(chunk),
	})
}

func (c *Client) AudioEnd(ctx context.Context) error {
	return c.request(ctx, ClientFrame{Type: FrameAudioEnd})
}

func (c *Client) EndSession(ctx context.Context) error {
	return c.request(ctx, ClientFrame{Type: FrameSessionEnd})
}

// Disconnect closes the connection and waits for the reader to finish.
// Subscriber channels are closed once it returns. Calling Disconnect more
// than once is harmless.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		c.finish(ErrClosed)
		return nil
	}

	var err error
	c.closeOnce.Do(func() {
		close(c.closing)

		c.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		c.writeMu.Unlock()

		err = conn.Close()
	})

	select {
	case <-c.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

func (c *Client) request(ctx context.Context, frame ClientFrame) error {
	frame.RequestID = uuid.NewString()
	reply := make(chan error, 1)

	c.mu.Lock()
	if c.conn == nil || c.finished {
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.pending[frame.RequestID] = reply
	c.mu.Unlock()

	if err := c.write(frame); err != nil {
		c.forget(frame.RequestID)
		return err
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.timeout)
		defer cancel()
	}

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		c.forget(frame.RequestID)
		return fmt.Errorf("livespeech: %s: %w", frame.Type, ctx.Err())
	}
}

func (c *Client) forget(requestID string) {
	c.mu.Lock()
	delete(c.pending, requestID)
	c.mu.Unlock()
}

func (c *Client) resolve(requestID string, err error) bool {
	c.mu.Lock()
	reply, ok := c.pending[requestID]
	delete(c.pending, requestID)
	c.mu.Unlock()

	if ok {
		reply <- err
	}
	return ok
}

func (c *Client) write(frame ClientFrame) error {
	c.mu.Lock()
	conn := c.conn
	finished := c.finished
	c.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}
	if finished {
		return ErrClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("livespeech: write %s: %w", frame.Type, err)
	}
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer close(c.done)
	defer c.finish(ErrClosed)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closing:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.log.Error("read error", "error", err)
				}
			}
			return
		}

		var frame ServerFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			c.log.Warn("dropping malformed frame", "error", err)
			continue
		}

		switch frame.Type {
		case FrameAck:
			c.resolve(frame.RequestID, nil)
		case FrameError:
			upstreamErr := &Error{Code: frame.Code, Message: frame.Message}
			if frame.RequestID != "" && c.resolve(frame.RequestID, upstreamErr) {
				continue
			}
			c.publish(Event{Type: EventError, Code: frame.Code, Message: frame.Message})
		case FrameConnected:
		default:
			ev, err := frame.event()
			if err != nil {
				c.log.Warn("dropping undecodable event", "type", frame.Type, "error", err)
				continue
			}
			c.publish(ev)
		}
	}
}

func (c *Client) publish(ev Event) {
	c.mu.Lock()
	subs := c.subs
	c.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- ev:
		case <-c.closing:
			return
		}
	}
}

func (c *Client) finish(cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.finished {
		return
	}
	c.finished = true

	for id, reply := range c.pending {
		reply <- cause
		delete(c.pending, id)
	}
	for _, ch := range c.subs {
		close(ch)
	}
	c.subs = nil
}

// IsClosed reports whether err means the connection is gone.
func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed) || errors.Is(err, ErrNotConnected)
}
