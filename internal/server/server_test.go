package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestServer_ServeAndShutdownOrder(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	srv := New(handler, Options{ShutdownTimeout: 2 * time.Second}, testLogger())

	var (
		mu    sync.Mutex
		order []string
	)
	record := func(name string) ShutdownFunc {
		return func(ctx context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		}
	}
	srv.OnShutdown("sweeper", record("sweeper"))
	srv.OnShutdown("telemetry", record("telemetry"))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusTeapot
	}, 2*time.Second, 20*time.Millisecond)

	assert.Equal(t, ln.Addr().String(), srv.Addr())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"telemetry", "sweeper"}, order)
}

func TestServer_ShutdownErrorsAreJoined(t *testing.T) {
	srv := New(http.NotFoundHandler(), Options{}, testLogger())

	errFirst := errors.New("first failed")
	errSecond := errors.New("second failed")
	srv.OnShutdown("first", func(ctx context.Context) error { return errFirst })
	srv.OnShutdown("second", func(ctx context.Context) error { return errSecond })

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = srv.Serve(ctx, ln)
	require.Error(t, err)
	assert.ErrorIs(t, err, errFirst)
	assert.ErrorIs(t, err, errSecond)
}

func TestServer_RunListenError(t *testing.T) {
	srv := New(http.NotFoundHandler(), Options{Addr: "bad-address"}, testLogger())
	err := srv.Run(context.Background())
	assert.Error(t, err)
}
