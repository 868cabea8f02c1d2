package main

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-listings/config"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func captureLogs(t *testing.T) *syncBuffer {
	t.Helper()
	buf := &syncBuffer{}
	previous := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(buf, nil)))
	t.Cleanup(func() { slog.SetDefault(previous) })
	return buf
}

func TestWatchSignalsStopIsSilent(t *testing.T) {
	logs := captureLogs(t)

	ctx, stop := watchSignals(context.Background(), syscall.SIGUSR1)
	stop()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context not canceled by stop")
	}
	time.Sleep(50 * time.Millisecond)

	if out := logs.String(); strings.Contains(out, "shutdown signal received") {
		t.Fatalf("normal exit logged a shutdown signal: %s", out)
	}
}

func TestWatchSignalsCancelsOnSignal(t *testing.T) {
	logs := captureLogs(t)

	ctx, stop := watchSignals(context.Background(), syscall.SIGUSR1)
	defer stop()

	if err := syscall.Kill(syscall.Getpid(), syscall.SIGUSR1); err != nil {
		t.Fatalf("send signal: %v", err)
	}

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not canceled by signal")
	}
	if out := logs.String(); !strings.Contains(out, "shutdown signal received") {
		t.Fatalf("signal was not logged: %q", out)
	}
}

func TestCreateWriterDualTarget(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.OutputFormat = "dual"
	cfg.OutputFile = filepath.Join(t.TempDir(), "listings.csv")

	writer, err := createWriter(context.Background(), cfg, "run-1")
	if err != nil {
		t.Fatalf("create writer: %v", err)
	}
	defer writer.Close()

	want := cfg.OutputFile + ", " + strings.TrimSuffix(cfg.OutputFile, ".csv") + ".jsonl"
	if got := outputTarget(cfg, writer); got != want {
		t.Fatalf("output target = %q, want %q", got, want)
	}
}

func TestCreateWriterUnknownFormat(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.OutputFormat = "xml"
	cfg.OutputFile = filepath.Join(t.TempDir(), "listings.xml")

	if _, err := createWriter(context.Background(), cfg, "run-1"); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}
