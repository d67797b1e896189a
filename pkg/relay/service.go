package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"splitrelay/pkg/backend"
	"splitrelay/pkg/bus"
	"splitrelay/pkg/channel"
	"splitrelay/pkg/config"
)

// Service wires channel adapters to the backend client and exposes an
// optional status server.
type Service struct {
	cfg      *config.Config
	log      *slog.Logger
	backend  *backend.Client
	channels []channel.Adapter

	mu            sync.RWMutex
	startedAt     time.Time
	relayLastOKAt time.Time
	relayLastErr  string
	channelStates map[string]channelState
}

type channelState struct {
	Running bool   `json:"running"`
	Error   string `json:"error,omitempty"`
}

type statusResponse struct {
	Status        string                  `json:"status"`
	UptimeSeconds int64                   `json:"uptime_seconds"`
	RelayLastOKAt string                  `json:"relay_last_ok_at,omitempty"`
	RelayLastErr  string                  `json:"relay_last_error,omitempty"`
	Channels      map[string]channelState `json:"channels"`
}

// NewService validates wiring and constructs the relay service.
func NewService(cfg *config.Config, client *backend.Client, adapters []channel.Adapter, log *slog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if client == nil {
		return nil, errors.New("backend client is required")
	}
	if len(adapters) == 0 {
		return nil, errors.New("at least one channel adapter is required")
	}
	if log == nil {
		log = slog.Default()
	}

	channelStates := make(map[string]channelState, len(adapters))
	for _, adapter := range adapters {
		channelStates[adapter.Name()] = channelState{}
	}

	return &Service{
		cfg:           cfg,
		log:           log.With("component", "relay.service"),
		backend:       client,
		channels:      adapters,
		channelStates: channelStates,
	}, nil
}

// Run starts all channel adapters and blocks until the context is canceled
// or one of them fails fatally.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	serverErrors := make(chan error, 1)
	if s.cfg.Relay.StatusPort > 0 {
		go s.runStatusServer(ctx, serverErrors)
	}

	errCh := make(chan error, len(s.channels))
	for _, adapter := range s.channels {
		adapter := adapter
		s.setChannelState(adapter.Name(), channelState{Running: true})

		go func() {
			err := adapter.Run(ctx, s.HandleInbound)
			s.setChannelState(adapter.Name(), channelState{Running: false, Error: errorString(err)})
			if err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("run %s channel: %w", adapter.Name(), err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-serverErrors:
		return err
	case err := <-errCh:
		return err
	}
}

// HandleInbound forwards one normalized event to the backend and shapes the
// reply. Failures stay contained to the event that caused them.
func (s *Service) HandleInbound(ctx context.Context, inbound bus.InboundMessage) (bus.OutboundMessage, error) {
	request := backend.Request{
		Message:  inbound.Content,
		GroupID:  inbound.ChatID,
		Sender:   inbound.SenderID,
		ImageURL: inbound.ImageURL,
	}

	text, err := s.backend.Process(ctx, request)
	if err != nil {
		s.recordOutcome(err)
		return bus.OutboundMessage{
			Channel: inbound.Channel,
			ChatID:  inbound.ChatID,
			Error:   err.Error(),
		}, err
	}

	s.recordOutcome(nil)
	return bus.OutboundMessage{
		Channel: inbound.Channel,
		ChatID:  inbound.ChatID,
		Content: text,
	}, nil
}

func (s *Service) recordOutcome(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.relayLastErr = err.Error()
		return
	}

	s.relayLastErr = ""
	s.relayLastOKAt = time.Now().UTC()
}

func (s *Service) runStatusServer(ctx context.Context, errCh chan<- error) {
	host := strings.TrimSpace(s.cfg.Relay.StatusHost)
	addr := host + ":" + strconv.Itoa(s.cfg.Relay.StatusPort)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log.Info("Relay status server started", "address", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- fmt.Errorf("start status server: %w", err)
	}
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondStatus(w, http.StatusOK, "ok")
}

func (s *Service) handleReady(w http.ResponseWriter, _ *http.Request) {
	statusCode := http.StatusOK
	status := "ready"
	if !s.isReady() {
		statusCode = http.StatusServiceUnavailable
		status = "not_ready"
	}

	s.respondStatus(w, statusCode, status)
}

func (s *Service) respondStatus(w http.ResponseWriter, statusCode int, status string) {
	payload := s.currentStatus(status)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("Failed to write status response", "error", err)
	}
}

func (s *Service) currentStatus(status string) statusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uptime := int64(0)
	if !s.startedAt.IsZero() {
		uptime = int64(time.Since(s.startedAt).Seconds())
	}

	channels := make(map[string]channelState, len(s.channelStates))
	for name, state := range s.channelStates {
		channels[name] = state
	}

	relayLastOK := ""
	if !s.relayLastOKAt.IsZero() {
		relayLastOK = s.relayLastOKAt.Format(time.RFC3339)
	}

	return statusResponse{
		Status:        status,
		UptimeSeconds: uptime,
		RelayLastOKAt: relayLastOK,
		RelayLastErr:  s.relayLastErr,
		Channels:      channels,
	}
}

// isReady reports whether at least one channel adapter is running.
//
// The backend exposes no health contract; a missing SPLIT_BOT_URL surfaces
// on the first relayed event instead.
func (s *Service) isReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, state := range s.channelStates {
		if state.Running {
			return true
		}
	}

	return false
}

func (s *Service) setChannelState(name string, state channelState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channelStates[name] = state
}

func errorString(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}
