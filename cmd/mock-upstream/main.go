package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eleven-am/brivva-dataplane/internal/livespeech/livespeechtest"
	"github.com/joho/godotenv"
)

// mock-upstream serves the LiveSpeech wire protocol locally. Point the
// dataplane at it with LIVESPEECH_ENDPOINT=ws://localhost:9090/v1/live.
func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	addr := os.Getenv("MOCK_ADDR")
	if addr == "" {
		addr = ":9090"
	}

	upstream := livespeechtest.New(livespeechtest.Options{
		APIKey:     os.Getenv("LIVESPEECH_API_KEY"),
		EchoAudio:  true,
		Ready:      true,
		Transcribe: true,
		Logger:     logger,
	})

	mux := http.NewServeMux()
	mux.Handle("/v1/live", upstream)

	srv := &http.Server{Addr: addr, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("mock upstream listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("mock upstream failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	upstream.CloseConnections()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
