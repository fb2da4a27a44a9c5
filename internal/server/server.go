// Package server implements the connection dispatcher: WebSocket
// accept and admission, per-connection frame routing, channel fan-out,
// presence join/leave broadcasts, and teardown.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/rs/zerolog"

	"github.com/pusherd/pusherd/internal/auth"
	"github.com/pusherd/pusherd/internal/config"
	"github.com/pusherd/pusherd/internal/httpapi"
	"github.com/pusherd/pusherd/internal/limits"
	"github.com/pusherd/pusherd/internal/monitoring"
	"github.com/pusherd/pusherd/internal/registry"
)

// Time allowed to write a frame to a peer before the write is treated
// as failed and the peer dropped.
const writeWait = 10 * time.Second

// Stats tracks server counters. Atomic fields are updated on the hot
// paths; MemoryMB is refreshed by the sampler goroutine.
type Stats struct {
	TotalConnections   int64
	CurrentConnections int64
	MessagesSent       int64
	MessagesReceived   int64
	BytesSent          int64
	BytesReceived      int64
	RateLimitedFrames  int64
	DroppedSends       int64
	ClientEvents       int64
	StartTime          time.Time

	mu       sync.RWMutex
	MemoryMB float64
}

type Server struct {
	cfg    *config.Config
	logger zerolog.Logger

	listener   net.Listener
	httpServer *http.Server

	// clients maps socket id → *Client. Readers during fan-out must
	// tolerate an id vanishing between snapshot and send.
	clients sync.Map

	channels  *registry.ChannelRegistry
	presence  *registry.PresenceRegistry
	admission *limits.Admission
	connectRL *limits.ConnectRateLimiter
	signer    *auth.Signer

	origins []string
	sampler *monitoring.ProcessSampler
	stats   *Stats

	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	shuttingDown int32
}

func New(cfg *config.Config, logger zerolog.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		cfg:      cfg,
		logger:   logger.With().Str("component", "server").Logger(),
		channels: registry.NewChannelRegistry(),
		presence: registry.NewPresenceRegistry(),
		admission: limits.NewAdmission(limits.AdmissionConfig{
			ConnectionsPerIP: cfg.ConnectionLimitPerIP,
			MessageRateLimit: cfg.MessageRateLimit,
			MessageWindow:    cfg.MessageRateWindow(),
			Logger:           logger,
		}),
		signer:  auth.NewSigner(cfg.AuthSecret),
		origins: cfg.Origins(),
		sampler: monitoring.NewProcessSampler(),
		stats:   &Stats{StartTime: time.Now()},
		ctx:     ctx,
		cancel:  cancel,
	}

	if cfg.ConnectRateLimitEnabled {
		s.connectRL = limits.NewConnectRateLimiter(limits.ConnectRateLimiterConfig{
			IPBurst:     cfg.ConnectRateLimitIPBurst,
			IPRate:      cfg.ConnectRateLimitIPRate,
			GlobalBurst: cfg.ConnectRateLimitGlobalBurst,
			GlobalRate:  cfg.ConnectRateLimitGlobalRate,
			Logger:      logger,
		})
		s.logger.Info().Msg("Connect-attempt rate limiting enabled")
	}

	return s
}

// Start binds the listener and begins serving the WebSocket path, the
// auth/health/stats surface, and /metrics on one mux.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.WSPath, s.handleWebSocket)
	mux.Handle("/metrics", monitoring.MetricsHandler())
	httpapi.Register(mux, httpapi.Params{
		Signer: s.signer,
		Stats:  s,
		Logger: s.logger,
	})

	s.httpServer = &http.Server{
		Handler:        mux,
		ReadTimeout:    10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Server accept loop error")
		}
	}()

	s.admission.StartSweeper(s.ctx)

	s.wg.Add(1)
	go s.collectStats()

	s.logger.Info().
		Str("addr", listener.Addr().String()).
		Str("ws_path", s.cfg.WSPath).
		Msg("Server listening")
	return nil
}

// Addr returns the bound listen address, valid after Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown closes every open connection with code 1001, then the
// listener. Frames arriving after shutdown begins are ignored by the
// reader loops.
func (s *Server) Shutdown() error {
	s.logger.Info().Msg("Initiating shutdown")
	atomic.StoreInt32(&s.shuttingDown, 1)

	s.clients.Range(func(_, value any) bool {
		c := value.(*Client)
		c.writeControl(ws.NewCloseFrame(ws.NewCloseFrameBody(1001, "Server shutting down")))
		c.close()
		return true
	})

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Close()
	}

	s.cancel()
	s.admission.Stop()
	if s.connectRL != nil {
		s.connectRL.Stop()
	}

	s.wg.Wait()
	s.logger.Info().Msg("Shutdown complete")
	return err
}

// collectStats refreshes process memory into stats on a ticker.
func (s *Server) collectStats() {
	defer s.wg.Done()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			memMB := s.sampler.MemoryMB()
			s.stats.mu.Lock()
			s.stats.MemoryMB = memMB
			s.stats.mu.Unlock()
		}
	}
}

// Stats implements httpapi.StatsProvider.
func (s *Server) Stats() httpapi.Stats {
	return httpapi.Stats{
		Connections:      atomic.LoadInt64(&s.stats.CurrentConnections),
		Channels:         s.channels.Count(),
		PresenceChannels: s.presence.ChannelCount(),
	}
}

// AdminStats implements httpapi.StatsProvider.
func (s *Server) AdminStats() httpapi.AdminStats {
	s.stats.mu.RLock()
	memMB := s.stats.MemoryMB
	s.stats.mu.RUnlock()

	return httpapi.AdminStats{
		Stats:               s.Stats(),
		TotalConnections:    atomic.LoadInt64(&s.stats.TotalConnections),
		MessagesSent:        atomic.LoadInt64(&s.stats.MessagesSent),
		MessagesReceived:    atomic.LoadInt64(&s.stats.MessagesReceived),
		BytesSent:           atomic.LoadInt64(&s.stats.BytesSent),
		BytesReceived:       atomic.LoadInt64(&s.stats.BytesReceived),
		RateLimitedMessages: atomic.LoadInt64(&s.stats.RateLimitedFrames),
		DroppedSends:        atomic.LoadInt64(&s.stats.DroppedSends),
		ClientEvents:        atomic.LoadInt64(&s.stats.ClientEvents),
		UptimeSeconds:       int64(time.Since(s.stats.StartTime).Seconds()),
		MemoryMB:            memMB,
		Goroutines:          runtime.NumGoroutine(),
	}
}
