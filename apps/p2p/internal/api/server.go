package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Server represents the API server
type Server struct {
	orders        *OrderHandler
	matches       *MatchHandler
	rooms         *RoomHandler
	merchants     *MerchantHandler
	notifications *NotificationHandler
	logger        *zap.Logger
	server        *http.Server
}

// NewServer creates a new API server
func NewServer(port int, orders *OrderHandler, matches *MatchHandler, rooms *RoomHandler, merchants *MerchantHandler, notifications *NotificationHandler, logger *zap.Logger) *Server {
	return &Server{
		orders:        orders,
		matches:       matches,
		rooms:         rooms,
		merchants:     merchants,
		notifications: notifications,
		logger:        logger,
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start starts the API server
func (s *Server) Start() error {
	s.server.Handler = s.Routes()

	s.logger.Info("Starting API server", zap.String("address", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	return nil
}

// Stop stops the API server gracefully
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server")
	return s.server.Shutdown(ctx)
}

// Routes configures the API routes
func (s *Server) Routes() *mux.Router {
	router := mux.NewRouter()

	// Add middleware
	router.Use(s.loggingMiddleware)
	router.Use(s.corsMiddleware)

	api := router.PathPrefix("/api").Subrouter()

	// Order book
	api.HandleFunc("/orders", s.orders.CreateOrder).Methods("POST")
	api.HandleFunc("/orders", s.orders.ListOrders).Methods("GET")
	api.HandleFunc("/orders/{id}", s.orders.GetOrder).Methods("GET")
	api.HandleFunc("/orders/{id}", s.orders.UpdateOrder).Methods("PATCH")
	api.HandleFunc("/orders/{id}/cancel", s.orders.CancelOrder).Methods("POST")
	api.HandleFunc("/orders/{id}/matches", s.orders.GetMatches).Methods("GET")

	// Match commit
	api.HandleFunc("/matches", s.matches.CommitMatch).Methods("POST")
	api.HandleFunc("/matches/{id}", s.matches.GetPair).Methods("GET")
	api.HandleFunc("/matches/{id}/cancel", s.matches.CancelMatch).Methods("POST")

	// Trade rooms
	api.HandleFunc("/rooms/{id}", s.rooms.GetRoom).Methods("GET")
	api.HandleFunc("/rooms/{id}/confirm-payment", s.rooms.ConfirmPayment).Methods("POST")
	api.HandleFunc("/rooms/{id}/assets-transferred", s.rooms.AssetsTransferred).Methods("POST")
	api.HandleFunc("/rooms/{id}/complete", s.rooms.Complete).Methods("POST")
	api.HandleFunc("/rooms/{id}/cancel", s.rooms.Cancel).Methods("POST")

	// Reputation. /top registers before the {wallet} catch-all.
	api.HandleFunc("/merchants/top", s.merchants.TopMerchants).Methods("GET")
	api.HandleFunc("/merchants/{wallet}", s.merchants.GetMerchant).Methods("GET")
	api.HandleFunc("/merchants/{wallet}/trades", s.merchants.GetTradeLog).Methods("GET")

	// Notifications
	api.HandleFunc("/notifications/{wallet}", s.notifications.List).Methods("GET")
	api.HandleFunc("/notifications/{wallet}/{id}/read", s.notifications.MarkRead).Methods("POST")

	// Health check endpoint
	api.HandleFunc("/health", s.healthCheck).Methods("GET")

	return router
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		next.ServeHTTP(w, r)

		s.logger.Info("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", r.RemoteAddr),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// corsMiddleware handles CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// healthCheck handles the health check endpoint
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	response := map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Error("Failed to encode health check response", zap.Error(err))
	}
}
