// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/payplan-sync/internal/intake"
	"github.com/payplan-sync/internal/logging"
	"github.com/payplan-sync/internal/mail"
	"github.com/payplan-sync/internal/models"
	"github.com/payplan-sync/internal/ratelimit"
	"github.com/payplan-sync/internal/service"
)

// Service interfaces for dependency injection and testing

// SessionServiceInterface defines the interface for wizard session operations
type SessionServiceInterface interface {
	GetCurrent(ctx context.Context, ownerID string) (intake.Session, error)
	SaveCurrent(ctx context.Context, ownerID string, input any) (intake.Session, error)
}

// SyncServiceInterface defines the interface for plan publishing operations
type SyncServiceInterface interface {
	PublishPlan(ctx context.Context, ownerID string, session intake.Session) ([]*service.SyncResult, error)
}

// ScheduleServiceInterface defines the interface for instruction scheduling operations
type ScheduleServiceInterface interface {
	PreviewInstructions(ctx context.Context, ownerID, clientID string, taxYear, quarter int) (*mail.Message, error)
	SendInstructions(ctx context.Context, ownerID, clientID string, taxYear, quarter int, sendAt time.Time) (*models.Notification, error)
}

// DispatchServiceInterface defines the interface for notification dispatch operations
type DispatchServiceInterface interface {
	ProcessDue(ctx context.Context) (*service.DispatchSummary, error)
}

// PortalServiceInterface defines the interface for client portal operations
type PortalServiceInterface interface {
	ViewPlan(ctx context.Context, token string) (*service.PortalPlanView, error)
	ConfirmPayment(ctx context.Context, token, paymentID string, input *models.ConfirmationInput) (*service.PortalPayment, error)
}

// PaymentServiceInterface defines the interface for operator payment operations
type PaymentServiceInterface interface {
	ListClientPayments(ctx context.Context, ownerID, clientID string) ([]*models.Payment, error)
	UpdatePayment(ctx context.Context, ownerID, paymentID, actorEmail string, patch *service.PaymentPatch) (*models.Payment, error)
	PaymentHistory(ctx context.Context, ownerID, paymentID string) ([]*models.ConfirmationEvent, error)
}

// NotificationReaderInterface defines the read side of notification history
type NotificationReaderInterface interface {
	ListByClient(ctx context.Context, ownerID, clientID string, limit int) ([]*models.Notification, error)
}

// Server represents the HTTP API server.
type Server struct {
	router          *mux.Router
	httpServer      *http.Server
	sessionService  SessionServiceInterface
	syncService     SyncServiceInterface
	scheduleService ScheduleServiceInterface
	dispatchService DispatchServiceInterface
	portalService   PortalServiceInterface
	paymentService  PaymentServiceInterface
	notifications   NotificationReaderInterface
	config          *ServerConfig
	logger          *logging.Logger
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	CronSecret      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	Limiter         ratelimit.Limiter
}

// NewServer creates a new API server instance.
func NewServer(
	config *ServerConfig,
	sessionService SessionServiceInterface,
	syncService SyncServiceInterface,
	scheduleService ScheduleServiceInterface,
	dispatchService DispatchServiceInterface,
	portalService PortalServiceInterface,
	paymentService PaymentServiceInterface,
	notifications NotificationReaderInterface,
	logger *logging.Logger,
) *Server {
	s := &Server{
		router:          mux.NewRouter(),
		sessionService:  sessionService,
		syncService:     syncService,
		scheduleService: scheduleService,
		dispatchService: dispatchService,
		portalService:   portalService,
		paymentService:  paymentService,
		notifications:   notifications,
		config:          config,
		logger:          logger,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	// Middleware order matters: recovery outermost so panics in other
	// middleware are still caught.
	s.router.Use(RecoveryMiddleware)
	s.router.Use(LoggingMiddleware)
	s.router.Use(CORSMiddleware)
	if s.config.Limiter != nil {
		s.router.Use(RateLimitMiddleware(s.config.Limiter))
	}

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Operator API routes
	api := s.router.PathPrefix("/api").Subrouter()

	// Wizard session endpoints
	api.HandleFunc("/batches/current", s.handleGetSession).Methods("GET")
	api.HandleFunc("/batches/current", s.handleSaveSession).Methods("PUT")

	// Plan publishing
	api.HandleFunc("/plans/publish", s.handlePublishPlan).Methods("POST")

	// Client endpoints
	api.HandleFunc("/clients/{id}/payments", s.handleListClientPayments).Methods("GET")
	api.HandleFunc("/clients/{id}/notifications", s.handleListClientNotifications).Methods("GET")
	api.HandleFunc("/clients/{id}/instructions/preview", s.handlePreviewInstructions).Methods("GET")
	api.HandleFunc("/clients/{id}/instructions/send", s.handleSendInstructions).Methods("POST")

	// Payment endpoints
	api.HandleFunc("/payments/{id}", s.handleUpdatePayment).Methods("PATCH")
	api.HandleFunc("/payments/{id}/history", s.handlePaymentHistory).Methods("GET")

	// Internal trigger, guarded by the cron secret
	internal := s.router.PathPrefix("/internal").Subrouter()
	internal.Use(CronAuthMiddleware(s.config.CronSecret))
	internal.HandleFunc("/notifications/process", s.handleProcessNotifications).Methods("POST")

	// Client portal endpoints, token-addressed and unauthenticated
	s.router.HandleFunc("/portal/{token}", s.handlePortalView).Methods("GET")
	s.router.HandleFunc("/portal/{token}/payments/{id}/confirm", s.handlePortalConfirm).Methods("POST")
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "payplan-sync",
	})
}

// requireOwner extracts the operator identity, writing a 401 when absent.
func requireOwner(w http.ResponseWriter, r *http.Request) (string, bool) {
	owner := r.Header.Get("X-User-ID")
	if owner == "" {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "X-User-ID header is required", nil)
		return "", false
	}
	return owner, true
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the router for tests
func (s *Server) Router() http.Handler {
	return s.router
}
