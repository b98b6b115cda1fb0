package trader

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"golang.org/x/net/websocket"

	"github.com/yourusername/quantlink-tick-engine/pkg/market"
)

const defaultDecisionLimit = 100

// APIServer provides the HTTP control surface of the trader
type APIServer struct {
	trader *Trader
	router *mux.Router
	server *http.Server
	hub    *WebSocketHub
	log    *zap.Logger

	mu      sync.RWMutex
	running bool
}

// APIResponse is the standard API response format
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// NewAPIServer creates a new API server
func NewAPIServer(t *Trader, log *zap.Logger) *APIServer {
	if log == nil {
		log = zap.NewNop()
	}
	a := &APIServer{
		trader: t,
		router: mux.NewRouter(),
		hub:    NewWebSocketHub(log),
		log:    log.Named("api"),
	}
	a.setupRoutes()

	origins := t.Config.API.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})

	a.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", t.Config.API.Host, t.Config.API.Port),
		Handler:      c.Handler(a.router),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return a
}

func (a *APIServer) setupRoutes() {
	api := a.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/health", a.handleHealth).Methods("GET")
	api.HandleFunc("/status", a.handleStatus).Methods("GET")
	api.HandleFunc("/tick", a.handleTick).Methods("POST")
	api.HandleFunc("/decisions", a.handleDecisions).Methods("GET")

	// model 热加载
	api.HandleFunc("/model/reload", a.handleModelReload).Methods("POST")
	api.HandleFunc("/model/status", a.handleModelStatus).Methods("GET")
	api.HandleFunc("/model/history", a.handleModelHistory).Methods("GET")

	// 风控
	api.HandleFunc("/risk/alerts", a.handleRiskAlerts).Methods("GET")
	api.HandleFunc("/risk/reset", a.handleRiskReset).Methods("POST")

	a.router.Handle("/ws", websocket.Handler(a.hub.HandleWebSocket))
}

// Handler exposes the routed handler (without CORS) for embedding and tests
func (a *APIServer) Handler() http.Handler { return a.router }

// ListenAndServe starts the websocket hub and blocks serving HTTP
func (a *APIServer) ListenAndServe() error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("API server already running")
	}
	a.running = true
	a.mu.Unlock()

	a.hub.Start()
	a.log.Info("HTTP API listening", zap.String("addr", a.server.Addr))
	return a.server.ListenAndServe()
}

// Stop stops the API server
func (a *APIServer) Stop() error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	a.mu.Unlock()

	a.hub.Stop()
	if err := a.server.Close(); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}
	a.log.Info("HTTP API stopped")
	return nil
}

// IsRunning returns whether the API server is running
func (a *APIServer) IsRunning() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.running
}

// handleHealth handles GET /api/v1/health
func (a *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	a.sendSuccess(w, "OK", map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleStatus handles GET /api/v1/status
func (a *APIServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	a.sendSuccess(w, "Trader status retrieved", a.trader.GetStatus())
}

// handleTick handles POST /api/v1/tick: one snapshot in, one decision out
func (a *APIServer) handleTick(w http.ResponseWriter, r *http.Request) {
	var snap market.Snapshot
	if err := json.NewDecoder(r.Body).Decode(&snap); err != nil {
		a.sendError(w, http.StatusBadRequest, fmt.Sprintf("invalid snapshot: %v", err))
		return
	}
	d := a.trader.Run(snap)
	a.sendSuccess(w, "Decision computed", d)
}

// handleDecisions handles GET /api/v1/decisions?from=&limit=
func (a *APIServer) handleDecisions(w http.ResponseWriter, r *http.Request) {
	if a.trader.Store == nil {
		a.sendError(w, http.StatusServiceUnavailable, "decision journal disabled")
		return
	}

	q := r.URL.Query()
	from, limit := int64(0), defaultDecisionLimit
	if v := q.Get("from"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			a.sendError(w, http.StatusBadRequest, "invalid from")
			return
		}
		from = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			a.sendError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	decisions, err := a.trader.Store.Decisions(a.trader.Config.System.TraderID, from, limit)
	if err != nil {
		a.sendError(w, http.StatusInternalServerError, err.Error())
		return
	}
	a.sendSuccess(w, fmt.Sprintf("%d decisions", len(decisions)), decisions)
}

// handleModelReload handles POST /api/v1/model/reload
func (a *APIServer) handleModelReload(w http.ResponseWriter, r *http.Request) {
	a.log.Info("model reload requested")
	if err := a.trader.ReloadModel(); err != nil {
		a.sendError(w, http.StatusInternalServerError, fmt.Sprintf("Reload failed: %v", err))
		return
	}
	a.sendSuccess(w, "Model reloaded", a.trader.Engine.Status().Strategies)
}

// handleModelStatus handles GET /api/v1/model/status
func (a *APIServer) handleModelStatus(w http.ResponseWriter, r *http.Request) {
	a.sendSuccess(w, "Model status retrieved", a.trader.ModelWatcher.GetStatus())
}

// handleModelHistory handles GET /api/v1/model/history?limit=
func (a *APIServer) handleModelHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	a.sendSuccess(w, "Model history retrieved", a.trader.ModelWatcher.GetHistory(limit))
}

// handleRiskAlerts handles GET /api/v1/risk/alerts?level=&limit=
func (a *APIServer) handleRiskAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	a.sendSuccess(w, "Risk alerts retrieved", map[string]interface{}{
		"alerts": a.trader.Risk.GetAlerts(q.Get("level"), limit),
		"stats":  a.trader.Risk.GetStats(),
	})
}

// handleRiskReset handles POST /api/v1/risk/reset
func (a *APIServer) handleRiskReset(w http.ResponseWriter, r *http.Request) {
	a.trader.Risk.ResetEmergencyStop()
	a.sendSuccess(w, "Emergency stop reset", a.trader.Risk.GetStats())
}

// sendSuccess sends a success response
func (a *APIServer) sendSuccess(w http.ResponseWriter, message string, data interface{}) {
	a.sendJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// sendError sends an error response
func (a *APIServer) sendError(w http.ResponseWriter, statusCode int, errorMsg string) {
	a.sendJSON(w, statusCode, APIResponse{
		Success: false,
		Error:   errorMsg,
	})
}

// sendJSON sends a JSON response
func (a *APIServer) sendJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		a.log.Error("encode response", zap.Error(err))
	}
}
