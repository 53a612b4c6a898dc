// Keenbot - local dashboard API.
// Serves REST endpoints + WebSocket for live events on the LAN interface.
package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/keenbot/keenbot/pkg/bus"
	"github.com/keenbot/keenbot/pkg/config"
	"github.com/keenbot/keenbot/pkg/jobs"
	"github.com/keenbot/keenbot/pkg/logger"
	"github.com/keenbot/keenbot/pkg/monitor"
	"github.com/keenbot/keenbot/pkg/store"
)

// Server exposes the bot's health view over HTTP for scripts and the LAN
// dashboard: the same monitor snapshot and job registry the chat surface
// reads, plus a websocket tap on the event bus.
type Server struct {
	config    *config.Config
	monitor   *monitor.Monitor
	registry  *jobs.Registry
	store     *store.Store
	eventBus  *bus.Bus
	wsHub     *WSHub
	bridge    *EventBridge
	startTime time.Time
	server    *http.Server
}

func NewServer(cfg *config.Config, mon *monitor.Monitor, registry *jobs.Registry, st *store.Store, eventBus *bus.Bus) *Server {
	// Secure-by-default: auto-generate an API key if none is configured.
	// Random key per session, printed once at startup; set gateway.api_key
	// or KEENBOT_API_KEY for a persistent one.
	if cfg.Gateway.APIKey == "" {
		raw := make([]byte, 24)
		if _, err := rand.Read(raw); err == nil {
			cfg.Gateway.APIKey = hex.EncodeToString(raw)
			fmt.Printf("API key for this session: %s\n", cfg.Gateway.APIKey)
			fmt.Println("Set gateway.api_key in the config to make it permanent.")
		}
	}
	s := &Server{
		config:    cfg,
		monitor:   mon,
		registry:  registry,
		store:     st,
		eventBus:  eventBus,
		startTime: time.Now(),
	}
	s.wsHub = NewWSHub(s)
	s.bridge = NewEventBridge(eventBus, s.wsHub)
	return s
}

// Start begins listening on the configured host:port.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/system/status", s.handleSystemStatus)
	mux.HandleFunc("/api/system/info", s.handleSystemInfo)
	mux.HandleFunc("/api/jobs", s.handleJobs)
	mux.HandleFunc("/api/history/jobs", s.handleJobHistory)
	mux.HandleFunc("/api/history/notifications", s.handleNotificationHistory)
	mux.HandleFunc("/api/ws", s.wsHub.HandleWebSocket)

	addr := fmt.Sprintf("%s:%d", s.config.Gateway.Host, s.config.Gateway.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      authMiddleware(s.config.Gateway.APIKey, mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	logger.InfoCF("api", "API server starting", map[string]interface{}{"addr": addr})

	go s.wsHub.Run(ctx)
	go s.bridge.Run(ctx)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.ErrorCF("api", "Server error", map[string]interface{}{"error": err.Error()})
		}
	}()
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
	})
}

func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.monitor.Snapshot()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"monitor":        snap,
		"jobs_running":   s.registry.RunningCount(),
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
	})
}

func (s *Server) handleSystemInfo(w http.ResponseWriter, r *http.Request) {
	hostname, _ := os.Hostname()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"hostname":   hostname,
		"go_version": runtime.Version(),
		"arch":       runtime.GOARCH,
		"os":         runtime.GOOS,
		"goroutines": runtime.NumGoroutine(),
	})
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	list := s.registry.List()
	out := make([]map[string]interface{}, 0, len(list))
	for _, j := range list {
		out = append(out, map[string]interface{}{
			"id":          j.ID,
			"key":         j.Key,
			"status":      string(j.Status),
			"started_at":  j.StartedAt.UTC().Format(time.RFC3339),
			"exit_code":   j.Result.ExitCode,
			"duration_ms": j.Result.Duration.Milliseconds(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": out})
}

func (s *Server) handleJobHistory(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no persistent store"})
		return
	}
	records, err := s.store.RecentJobs(r.Context(), 50)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": records})
}

func (s *Server) handleNotificationHistory(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no persistent store"})
		return
	}
	records, err := s.store.RecentNotifications(r.Context(), 50)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"notifications": records})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
