package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// 100ms of 16kHz 16-bit mono PCM.
	chunkSize     = 3200
	chunkInterval = 100 * time.Millisecond
)

type statusMessage struct {
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

// relay-client streams a raw PCM file through the dataplane and writes the
// audio it gets back to OUTPUT_FILE.
func main() {
	gwURL := os.Getenv("GATEWAY_URL")
	if gwURL == "" {
		gwURL = "ws://localhost:8080/ws"
	}

	u, err := url.Parse(gwURL)
	if err != nil {
		log.Fatal("parse url:", err)
	}
	header := http.Header{}
	if flag := os.Getenv("SESSION_FLAG"); flag != "" {
		header.Set("X-Session-Flag", flag)
	}

	fmt.Printf("[CLIENT] Connecting to %s\n", u.String())

	conn, resp, err := websocket.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		if resp != nil {
			body, _ := io.ReadAll(resp.Body)
			fmt.Printf("[CLIENT] Dial failed: %v, status=%d, body=%s\n", err, resp.StatusCode, string(body))
		}
		log.Fatal("dial:", err)
	}
	defer conn.Close()

	var out io.Writer = io.Discard
	if path := os.Getenv("OUTPUT_FILE"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			log.Fatal("create output:", err)
		}
		defer f.Close()
		out = f
	}

	ready := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		readLoop(conn, out, ready)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-ready:
	case <-done:
		return
	case <-sig:
		sendStop(conn)
		<-done
		return
	}

	if path := os.Getenv("AUDIO_FILE"); path != "" {
		if err := streamFile(conn, path, sig); err != nil {
			fmt.Printf("[CLIENT] Stream error: %v\n", err)
		}
	} else {
		fmt.Println("[CLIENT] No AUDIO_FILE set, waiting for Ctrl-C...")
		<-sig
	}

	sendStop(conn)
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		fmt.Println("[CLIENT] Timed out waiting for close")
	}
}

func readLoop(conn *websocket.Conn, out io.Writer, ready chan<- struct{}) {
	var received int
	signalled := false
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			fmt.Printf("[CLIENT] Connection closed: %v (received %d audio bytes)\n", err, received)
			return
		}

		if mt == websocket.BinaryMessage {
			received += len(data)
			if _, err := out.Write(data); err != nil {
				fmt.Printf("[CLIENT] Write error: %v\n", err)
			}
			continue
		}

		var msg statusMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			fmt.Printf("[CLIENT] Unmarshal error: %v\n", err)
			continue
		}
		if msg.Error != "" {
			fmt.Printf("[CLIENT] Error: %s\n", msg.Error)
			continue
		}

		fmt.Printf("[CLIENT] Status: %s\n", msg.Status)
		if msg.Status == "connected" && !signalled {
			signalled = true
			close(ready)
		}
	}
}

func streamFile(conn *websocket.Conn, path string, sig <-chan os.Signal) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	ticker := time.NewTicker(chunkInterval)
	defer ticker.Stop()

	buf := make([]byte, chunkSize)
	var sent int
	for {
		n, err := io.ReadFull(f, buf)
		if n > 0 {
			if werr := conn.WriteMessage(websocket.BinaryMessage, buf[:n]); werr != nil {
				return werr
			}
			sent += n
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			fmt.Printf("[CLIENT] Sent %d audio bytes\n", sent)
			return nil
		}
		if err != nil {
			return err
		}

		select {
		case <-ticker.C:
		case <-sig:
			return nil
		}
	}
}

func sendStop(conn *websocket.Conn) {
	fmt.Println("[CLIENT] Sending stop")
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"stop"}`)); err != nil {
		fmt.Printf("[CLIENT] Stop failed: %v\n", err)
	}
}
