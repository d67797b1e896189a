package relay

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"splitrelay/pkg/backend"
	"splitrelay/pkg/bus"
	"splitrelay/pkg/channel"
	"splitrelay/pkg/config"

	"github.com/stretchr/testify/require"
)

type scriptedAdapter struct {
	name    string
	inbound []bus.InboundMessage

	mu       sync.Mutex
	outbound []bus.OutboundMessage
	errs     []error
	done     chan struct{}
}

func (a *scriptedAdapter) Name() string {
	return a.name
}

func (a *scriptedAdapter) Run(ctx context.Context, handler channel.Handler) error {
	for _, inbound := range a.inbound {
		outbound, err := handler(ctx, inbound)

		a.mu.Lock()
		a.outbound = append(a.outbound, outbound)
		a.errs = append(a.errs, err)
		a.mu.Unlock()
	}

	close(a.done)

	<-ctx.Done()
	return nil
}

func (a *scriptedAdapter) outbounds() ([]bus.OutboundMessage, []error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	outbound := make([]bus.OutboundMessage, len(a.outbound))
	copy(outbound, a.outbound)
	errs := make([]error, len(a.errs))
	copy(errs, a.errs)
	return outbound, errs
}

func freeTCPPort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	return listener.Addr().(*net.TCPAddr).Port
}

func TestRelayServiceRunE2E(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var requests []backend.Request
	backendServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var req backend.Request
		if err := json.Unmarshal(raw, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		mu.Lock()
		requests = append(requests, req)
		mu.Unlock()

		if req.ImageURL != "" {
			_, _ = w.Write([]byte(`{"response": "Receipt logged", "error": null}`))
			return
		}
		if req.GroupID == "500" {
			_, _ = w.Write([]byte(`{"error": "group not found"}`))
			return
		}
		_, _ = w.Write([]byte(`{"response": "You owe $12"}`))
	}))
	defer backendServer.Close()

	cfg := &config.Config{
		BotName: "SplitBot",
		Relay: config.RelayConfig{
			StatusHost: "127.0.0.1",
			StatusPort: freeTCPPort(t),
		},
	}
	client := backend.NewClient(config.BackendConfig{BaseURL: backendServer.URL, RequestTimeoutSeconds: 5}, nil)

	adapter := &scriptedAdapter{
		name: "telegram",
		inbound: []bus.InboundMessage{
			{Channel: "telegram", ChatID: "100", SenderID: "alice", Content: "@SplitBot how much do I owe?"},
			{Channel: "telegram", ChatID: "100", SenderID: "bob", Content: "", ImageURL: "https://files.example.com/receipt.jpg"},
			{Channel: "telegram", ChatID: "500", SenderID: "mallory", Content: "@SplitBot settle up"},
		},
		done: make(chan struct{}),
	}

	svc, err := NewService(cfg, client, []channel.Adapter{adapter}, slog.Default())
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.Run(ctx)
	}()

	select {
	case <-adapter.done:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for adapter scripted messages")
	}

	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for service run to exit")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, requests, 3)
	require.Equal(t, "@SplitBot how much do I owe?", requests[0].Message)
	require.Equal(t, "100", requests[0].GroupID)
	require.Equal(t, "alice", requests[0].Sender)
	require.Empty(t, requests[0].ImageURL)
	require.Empty(t, requests[1].Message)
	require.Equal(t, "https://files.example.com/receipt.jpg", requests[1].ImageURL)

	outbounds, errs := adapter.outbounds()
	require.Len(t, outbounds, 3)
	require.NoError(t, errs[0])
	require.Equal(t, "You owe $12", outbounds[0].Content)
	require.NoError(t, errs[1])
	require.Equal(t, "Receipt logged", outbounds[1].Content)
	require.Error(t, errs[2])
	require.Contains(t, outbounds[2].Error, "group not found")
	require.Empty(t, outbounds[2].Content)
}
