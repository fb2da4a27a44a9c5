// Package httpapi exposes the out-of-band HTTP surface: the stateless
// channel authorization endpoint, the health probe, and admin stats.
// It depends only on the token signer and a read-only stats view, so
// it can be tested without a running dispatcher.
package httpapi

import (
	"encoding/json"
	"net/http"
	"regexp"
	"time"

	"github.com/rs/zerolog"

	"github.com/pusherd/pusherd/internal/auth"
	"github.com/pusherd/pusherd/internal/protocol"
)

// Stats is the public counter set reported by /health.
type Stats struct {
	Connections      int64 `json:"connections"`
	Channels         int   `json:"channels"`
	PresenceChannels int   `json:"presenceChannels"`
}

// AdminStats extends Stats with the counters reported by /admin/stats.
type AdminStats struct {
	Stats
	TotalConnections    int64   `json:"totalConnections"`
	MessagesSent        int64   `json:"messagesSent"`
	MessagesReceived    int64   `json:"messagesReceived"`
	BytesSent           int64   `json:"bytesSent"`
	BytesReceived       int64   `json:"bytesReceived"`
	RateLimitedMessages int64   `json:"rateLimitedMessages"`
	DroppedSends        int64   `json:"droppedSends"`
	ClientEvents        int64   `json:"clientEvents"`
	UptimeSeconds       int64   `json:"uptimeSeconds"`
	MemoryMB            float64 `json:"memoryMB"`
	Goroutines          int     `json:"goroutines"`
}

// StatsProvider is the read-only view the dispatcher hands to the
// HTTP layer.
type StatsProvider interface {
	Stats() Stats
	AdminStats() AdminStats
}

// Params wires the HTTP surface.
type Params struct {
	Signer *auth.Signer
	Stats  StatsProvider
	Logger zerolog.Logger
}

type api struct {
	signer *auth.Signer
	stats  StatsProvider
	logger zerolog.Logger
}

// Register mounts /auth, /health, and /admin/stats on mux.
func Register(mux *http.ServeMux, p Params) {
	a := &api{
		signer: p.Signer,
		stats:  p.Stats,
		logger: p.Logger.With().Str("component", "httpapi").Logger(),
	}
	mux.HandleFunc("/auth", a.withCORS(a.handleAuth, http.MethodPost))
	mux.HandleFunc("/health", a.withCORS(a.handleHealth, http.MethodGet))
	mux.HandleFunc("/admin/stats", a.withCORS(a.handleAdminStats, http.MethodGet))
}

// withCORS applies the permissive CORS policy and method check shared
// by all routes. Preflight requests get an empty 204.
func (a *api) withCORS(next http.HandlerFunc, method string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", method+", OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.Method != method {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}

// Socket ids are "<unix_ms>.<random>" where the random part is opaque.
// Only the token framing constrains it: no colon, since the token's
// first colon separates id from signature.
var socketIDPattern = regexp.MustCompile(`^[0-9]+\.[^:]+$`)

type authRequest struct {
	SocketID    string `json:"socket_id"`
	ChannelName string `json:"channel_name"`
	ChannelData string `json:"channel_data,omitempty"`
}

type authResponse struct {
	Auth        string `json:"auth"`
	ChannelData string `json:"channel_data,omitempty"`
}

// handleAuth signs a channel authorization token. The endpoint is
// stateless: it does not check that the socket id belongs to a live
// connection — the binding is enforced at subscribe time.
func (a *api) handleAuth(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.badRequest(w, "invalid JSON body")
		return
	}
	if !socketIDPattern.MatchString(req.SocketID) {
		a.badRequest(w, "invalid socket_id")
		return
	}
	if !protocol.IsValidChannelName(req.ChannelName) {
		a.badRequest(w, "invalid channel_name")
		return
	}

	a.logger.Debug().
		Str("socket_id", req.SocketID).
		Str("channel", req.ChannelName).
		Msg("Issued channel token")

	writeJSON(w, http.StatusOK, authResponse{
		Auth:        a.signer.Token(req.SocketID, req.ChannelName),
		ChannelData: req.ChannelData,
	})
}

func (a *api) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"stats":     a.stats.Stats(),
	})
}

// handleAdminStats reports full counters. Meant to sit behind external
// auth in production deployments.
func (a *api) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"stats":     a.stats.AdminStats(),
	})
}

func (a *api) badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
