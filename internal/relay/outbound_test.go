package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestOutbound_Frame(t *testing.T) {
	tests := []struct {
		name     string
		msg      Outbound
		wantType int
		wantData string
	}{
		{"status", Status("session_ready"), websocket.TextMessage, `{"status":"session_ready"}`},
		{"error", ErrorMessage(`bad "quota"`), websocket.TextMessage, `{"error":"bad \"quota\""}`},
		{"audio", Audio([]byte{0, 1, 2}), websocket.BinaryMessage, "\x00\x01\x02"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mt, data, err := tt.msg.Frame()
			if err != nil {
				t.Fatalf("Frame: %v", err)
			}
			if mt != tt.wantType {
				t.Errorf("expected message type %d, got %d", tt.wantType, mt)
			}
			if string(data) != tt.wantData {
				t.Errorf("expected %q, got %q", tt.wantData, data)
			}
		})
	}
}

func TestForwardStatus_WrapsAndExitsOnClose(t *testing.T) {
	in := make(chan statusMessage, 2)
	out := make(chan Outbound, 2)
	in <- statusMessage{text: "session_ready"}
	in <- statusMessage{text: "boom", isError: true}
	close(in)

	done := make(chan struct{})
	go func() {
		forwardStatus(context.Background(), in, out, make(chan struct{}))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("forwarder did not exit after its source closed")
	}

	if got := <-out; got.Kind != KindStatus || got.Text != "session_ready" {
		t.Errorf("unexpected first message %+v", got)
	}
	if got := <-out; got.Kind != KindError || got.Text != "boom" {
		t.Errorf("unexpected second message %+v", got)
	}
}

func TestForwardAudio_ExitsWhenSinkGone(t *testing.T) {
	in := make(chan []byte, 1)
	out := make(chan Outbound)
	sinkDone := make(chan struct{})
	in <- []byte{1}

	done := make(chan struct{})
	go func() {
		forwardAudio(context.Background(), in, out, sinkDone)
		close(done)
	}()

	close(sinkDone)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("forwarder did not exit after the sink went away")
	}
}

type recordingConn struct {
	mu       sync.Mutex
	types    []int
	payloads [][]byte
	writeErr error
	closed   bool
}

func (c *recordingConn) ReadMessage() (int, []byte, error) { return 0, nil, errors.New("unused") }

func (c *recordingConn) WriteMessage(mt int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.types = append(c.types, mt)
	c.payloads = append(c.payloads, data)
	return nil
}

func (c *recordingConn) SetWriteDeadline(time.Time) error { return nil }

func (c *recordingConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *recordingConn) snapshot() ([]int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.types...), c.closed
}

func TestWriter_WritesInOrderAndCountsAudio(t *testing.T) {
	conn := &recordingConn{}
	var audioBytes int
	w := &writer{
		conn:         conn,
		writeTimeout: time.Second,
		log:          testLogger(),
		onAudio:      func(n int) { audioBytes += n },
	}

	in := make(chan Outbound, 3)
	in <- Status(StatusConnected)
	in <- Audio([]byte("abc"))
	in <- ErrorMessage("x")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.run(ctx, in)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for {
		types, _ := conn.snapshot()
		if len(types) == 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected 3 writes, got %d", len(types))
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	types, closed := conn.snapshot()
	want := []int{websocket.TextMessage, websocket.BinaryMessage, websocket.TextMessage}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("write %d: expected type %d, got %d", i, want[i], types[i])
		}
	}
	if closed {
		t.Error("cancellation must not close the connection")
	}
	if audioBytes != 3 {
		t.Errorf("expected 3 audio bytes, got %d", audioBytes)
	}
}

func TestWriter_StopsWithoutWritingAfterCancel(t *testing.T) {
	conn := &recordingConn{}
	w := &writer{conn: conn, writeTimeout: time.Second, log: testLogger()}

	in := make(chan Outbound, 1)
	in <- Status("late")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w.run(ctx, in)

	if types, _ := conn.snapshot(); len(types) != 0 {
		t.Errorf("expected no writes after cancellation, got %d", len(types))
	}
}

func TestWriter_ClosesConnOnWriteError(t *testing.T) {
	conn := &recordingConn{writeErr: errors.New("broken pipe")}
	w := &writer{conn: conn, writeTimeout: time.Second, log: testLogger()}

	in := make(chan Outbound, 1)
	in <- Status("x")

	done := make(chan struct{})
	go func() {
		w.run(context.Background(), in)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("writer did not exit on write error")
	}
	if _, closed := conn.snapshot(); !closed {
		t.Error("expected connection to be closed")
	}
}

func TestWriter_SendsPings(t *testing.T) {
	conn := &recordingConn{}
	w := &writer{conn: conn, writeTimeout: time.Second, pingInterval: 10 * time.Millisecond, log: testLogger()}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.run(ctx, make(chan Outbound))
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	types, _ := conn.snapshot()
	if len(types) == 0 {
		t.Fatal("expected at least one ping")
	}
	for _, mt := range types {
		if mt != websocket.PingMessage {
			t.Errorf("expected only pings, got type %d", mt)
		}
	}
}
