package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"salesbot/pkg/channel"
	"salesbot/pkg/config"
)

const (
	defaultHealthHost   = "0.0.0.0"
	defaultHealthPort   = 18790
	healthCheckInterval = 30 * time.Second
)

// Service runs the channel adapters against one dialog runtime and serves
// the status endpoints.
type Service struct {
	cfg      *config.Config
	log      *slog.Logger
	runtime  *Runtime
	channels []channel.Adapter

	mu               sync.RWMutex
	startedAt        time.Time
	providerLastOKAt time.Time
	providerLastErr  string
	channelStates    map[string]channelState
}

type channelState struct {
	Running bool   `json:"running"`
	Error   string `json:"error,omitempty"`
}

type sessionStats struct {
	Funnels int `json:"funnels"`
	Carts   int `json:"carts"`
}

type statusResponse struct {
	Status           string                  `json:"status"`
	UptimeSeconds    int64                   `json:"uptime_seconds"`
	ProviderLastOKAt string                  `json:"provider_last_ok_at,omitempty"`
	ProviderLastErr  string                  `json:"provider_last_error,omitempty"`
	Channels         map[string]channelState `json:"channels"`
	Sessions         *sessionStats           `json:"sessions,omitempty"`
	Leads            map[string]int          `json:"leads,omitempty"`
}

func NewService(cfg *config.Config, rt *Runtime, adapters []channel.Adapter, log *slog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if rt == nil {
		return nil, errors.New("runtime is required")
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
		log:           log.With("component", "gateway.service"),
		runtime:       rt,
		channels:      adapters,
		channelStates: channelStates,
	}, nil
}

// Run starts every adapter and blocks until ctx ends or an adapter or the
// status server fails. AI health failures are reported, not fatal: the dialog
// degrades to the funnel without a responder.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	if s.runtime.HasHealthCheck() {
		s.checkProviderHealth(ctx)
		go s.watchProviderHealth(ctx)
	}

	serverErrors := make(chan error, 1)
	go s.runStatusServer(ctx, serverErrors)

	errCh := make(chan error, len(s.channels))
	for _, adapter := range s.channels {
		adapter := adapter
		s.setChannelState(adapter.Name(), channelState{Running: true})

		go func() {
			err := adapter.Run(ctx, s.runtime.Handle)
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

func (s *Service) watchProviderHealth(ctx context.Context) {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkProviderHealth(ctx)
		}
	}
}

func (s *Service) runStatusServer(ctx context.Context, errCh chan<- error) {
	host := strings.TrimSpace(s.cfg.Gateway.Host)
	if host == "" {
		host = defaultHealthHost
	}

	port := s.cfg.Gateway.Port
	if port <= 0 {
		port = defaultHealthPort
	}

	addr := host + ":" + strconv.Itoa(port)
	server := &http.Server{
		Addr:              addr,
		Handler:           s.router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log.Info("Gateway status server started", "address", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- fmt.Errorf("start status server: %w", err)
	}
}

func (s *Service) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/healthz", s.handleHealth)
	engine.GET("/readyz", s.handleReady)
	engine.GET("/v1/status", s.handleStatus)

	return engine
}

func (s *Service) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, s.currentStatus("ok", false))
}

func (s *Service) handleReady(c *gin.Context) {
	if !s.isReady() {
		c.JSON(http.StatusServiceUnavailable, s.currentStatus("not_ready", false))
		return
	}

	c.JSON(http.StatusOK, s.currentStatus("ready", false))
}

func (s *Service) handleStatus(c *gin.Context) {
	status := "ready"
	if !s.isReady() {
		status = "not_ready"
	}

	c.JSON(http.StatusOK, s.currentStatus(status, true))
}

func (s *Service) currentStatus(status string, detailed bool) statusResponse {
	s.mu.RLock()
	uptime := int64(0)
	if !s.startedAt.IsZero() {
		uptime = int64(time.Since(s.startedAt).Seconds())
	}

	channels := make(map[string]channelState, len(s.channelStates))
	for name, state := range s.channelStates {
		channels[name] = state
	}

	providerLastOK := ""
	if !s.providerLastOKAt.IsZero() {
		providerLastOK = s.providerLastOKAt.Format(time.RFC3339)
	}
	providerLastErr := s.providerLastErr
	s.mu.RUnlock()

	resp := statusResponse{
		Status:           status,
		UptimeSeconds:    uptime,
		ProviderLastOKAt: providerLastOK,
		ProviderLastErr:  providerLastErr,
		Channels:         channels,
	}

	if detailed && s.runtime != nil {
		funnels, carts := s.runtime.OpenSessions()
		resp.Sessions = &sessionStats{Funnels: funnels, Carts: carts}
		resp.Leads = s.runtime.LeadCounts()
	}

	return resp
}

// isReady reports whether at least one channel is running.
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

func (s *Service) checkProviderHealth(ctx context.Context) {
	if err := s.runtime.Health(ctx); err != nil {
		s.log.Warn("AI provider health check failed", "error", err)
		s.mu.Lock()
		s.providerLastErr = err.Error()
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	s.providerLastErr = ""
	s.providerLastOKAt = time.Now().UTC()
	s.mu.Unlock()
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
