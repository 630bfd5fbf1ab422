package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/payplan-sync/internal/errors"
	"github.com/payplan-sync/internal/intake"
	"github.com/payplan-sync/internal/logging"
	"github.com/payplan-sync/internal/mail"
	"github.com/payplan-sync/internal/models"
	"github.com/payplan-sync/internal/service"
	"github.com/payplan-sync/internal/types"
)

// Mock services for testing

type mockSessionService struct {
	getCurrentFunc  func(ctx context.Context, ownerID string) (intake.Session, error)
	saveCurrentFunc func(ctx context.Context, ownerID string, input any) (intake.Session, error)
}

func (m *mockSessionService) GetCurrent(ctx context.Context, ownerID string) (intake.Session, error) {
	if m.getCurrentFunc != nil {
		return m.getCurrentFunc(ctx, ownerID)
	}
	return intake.NewSession(), nil
}

func (m *mockSessionService) SaveCurrent(ctx context.Context, ownerID string, input any) (intake.Session, error) {
	if m.saveCurrentFunc != nil {
		return m.saveCurrentFunc(ctx, ownerID, input)
	}
	return intake.NormalizeSession(input), nil
}

type mockSyncService struct {
	publishFunc func(ctx context.Context, ownerID string, session intake.Session) ([]*service.SyncResult, error)
}

func (m *mockSyncService) PublishPlan(ctx context.Context, ownerID string, session intake.Session) ([]*service.SyncResult, error) {
	if m.publishFunc != nil {
		return m.publishFunc(ctx, ownerID, session)
	}
	return []*service.SyncResult{
		{WorkUnitID: "wu-1", ClientID: "client-1", Created: 2, Updated: 1, Cancelled: 0, Unchanged: 3},
	}, nil
}

type mockScheduleService struct {
	previewFunc func(ctx context.Context, ownerID, clientID string, taxYear, quarter int) (*mail.Message, error)
	sendFunc    func(ctx context.Context, ownerID, clientID string, taxYear, quarter int, sendAt time.Time) (*models.Notification, error)
}

func (m *mockScheduleService) PreviewInstructions(ctx context.Context, ownerID, clientID string, taxYear, quarter int) (*mail.Message, error) {
	if m.previewFunc != nil {
		return m.previewFunc(ctx, ownerID, clientID, taxYear, quarter)
	}
	return &mail.Message{
		To:      "client@example.com",
		Subject: "Q3 2025 Estimated Tax Payment Instructions",
		HTML:    "<html></html>",
		Text:    "instructions",
	}, nil
}

func (m *mockScheduleService) SendInstructions(ctx context.Context, ownerID, clientID string, taxYear, quarter int, sendAt time.Time) (*models.Notification, error) {
	if m.sendFunc != nil {
		return m.sendFunc(ctx, ownerID, clientID, taxYear, quarter, sendAt)
	}
	now := time.Now()
	return &models.Notification{
		ID:          "notification-123",
		OwnerID:     ownerID,
		ClientID:    clientID,
		Channel:     types.ChannelEmail,
		MessageType: types.MessageTypeQuarterlyInstructions,
		Recipient:   "client@example.com",
		Status:      types.NotificationSent,
		SendAt:      now,
		SentAt:      &now,
		Metadata:    models.NotificationMetadata{TaxYear: taxYear, Quarter: quarter},
	}, nil
}

type mockDispatchService struct {
	processFunc func(ctx context.Context) (*service.DispatchSummary, error)
}

func (m *mockDispatchService) ProcessDue(ctx context.Context) (*service.DispatchSummary, error) {
	if m.processFunc != nil {
		return m.processFunc(ctx)
	}
	return &service.DispatchSummary{Processed: 1, Sent: 1}, nil
}

type mockPortalService struct {
	viewFunc    func(ctx context.Context, token string) (*service.PortalPlanView, error)
	confirmFunc func(ctx context.Context, token, paymentID string, input *models.ConfirmationInput) (*service.PortalPayment, error)
}

func (m *mockPortalService) ViewPlan(ctx context.Context, token string) (*service.PortalPlanView, error) {
	if m.viewFunc != nil {
		return m.viewFunc(ctx, token)
	}
	return &service.PortalPlanView{
		ClientName: "Jordan",
		Payments: []service.PortalPayment{
			{ID: "payment-1", Scope: types.ScopeFederal, PaymentType: "Estimated Tax", Status: types.StatusSent},
		},
	}, nil
}

func (m *mockPortalService) ConfirmPayment(ctx context.Context, token, paymentID string, input *models.ConfirmationInput) (*service.PortalPayment, error) {
	if m.confirmFunc != nil {
		return m.confirmFunc(ctx, token, paymentID, input)
	}
	now := time.Now()
	return &service.PortalPayment{
		ID:          paymentID,
		Scope:       types.ScopeFederal,
		PaymentType: "Estimated Tax",
		Status:      types.StatusConfirmed,
		ConfirmedAt: &now,
	}, nil
}

type mockPaymentService struct {
	listFunc    func(ctx context.Context, ownerID, clientID string) ([]*models.Payment, error)
	updateFunc  func(ctx context.Context, ownerID, paymentID, actorEmail string, patch *service.PaymentPatch) (*models.Payment, error)
	historyFunc func(ctx context.Context, ownerID, paymentID string) ([]*models.ConfirmationEvent, error)
}

func (m *mockPaymentService) ListClientPayments(ctx context.Context, ownerID, clientID string) ([]*models.Payment, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, ownerID, clientID)
	}
	return []*models.Payment{
		{ID: "payment-1", OwnerID: ownerID, WorkUnitID: "wu-1", Scope: types.ScopeFederal, PaymentType: "Estimated Tax", Status: types.StatusDraft},
	}, nil
}

func (m *mockPaymentService) UpdatePayment(ctx context.Context, ownerID, paymentID, actorEmail string, patch *service.PaymentPatch) (*models.Payment, error) {
	if m.updateFunc != nil {
		return m.updateFunc(ctx, ownerID, paymentID, actorEmail, patch)
	}
	status := types.StatusDraft
	if patch.Status != nil {
		status = *patch.Status
	}
	return &models.Payment{ID: paymentID, OwnerID: ownerID, Scope: types.ScopeFederal, PaymentType: "Estimated Tax", Status: status}, nil
}

func (m *mockPaymentService) PaymentHistory(ctx context.Context, ownerID, paymentID string) ([]*models.ConfirmationEvent, error) {
	if m.historyFunc != nil {
		return m.historyFunc(ctx, ownerID, paymentID)
	}
	return []*models.ConfirmationEvent{
		{ID: "event-1", OwnerID: ownerID, PaymentID: paymentID, EventType: types.EventConfirmed, ActorType: types.ActorClient},
	}, nil
}

type mockNotificationReader struct {
	listFunc func(ctx context.Context, ownerID, clientID string, limit int) ([]*models.Notification, error)
}

func (m *mockNotificationReader) ListByClient(ctx context.Context, ownerID, clientID string, limit int) ([]*models.Notification, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, ownerID, clientID, limit)
	}
	return []*models.Notification{
		{ID: "notification-1", OwnerID: ownerID, ClientID: clientID, Status: types.NotificationSent},
	}, nil
}

// Helper function to create test server backed by mock services
func createTestServer() *Server {
	config := &ServerConfig{
		Host:         "localhost",
		Port:         "8080",
		CronSecret:   "test-secret",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	server := &Server{
		router:          mux.NewRouter(),
		sessionService:  &mockSessionService{},
		syncService:     &mockSyncService{},
		scheduleService: &mockScheduleService{},
		dispatchService: &mockDispatchService{},
		portalService:   &mockPortalService{},
		paymentService:  &mockPaymentService{},
		notifications:   &mockNotificationReader{},
		config:          config,
		logger:          logging.NewLogger(logging.LevelError, logging.FormatText),
	}
	server.setupRouter()
	return server
}

// TestHealthEndpoint tests the health check endpoint
func TestHealthEndpoint(t *testing.T) {
	server := createTestServer()

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response map[string]string
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if response["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got '%s'", response["status"])
	}
}

// TestGetSession_MissingUserID tests that operator endpoints require identity
func TestGetSession_MissingUserID(t *testing.T) {
	server := createTestServer()

	req := httptest.NewRequest("GET", "/api/batches/current", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
}

// TestSaveSession_Success tests saving the wizard session
func TestSaveSession_Success(t *testing.T) {
	server := createTestServer()

	body := []byte(`{"name": "Q3 run", "clients": [{"clientId": "c-1", "data": {"entityName": "Acme"}}]}`)
	req := httptest.NewRequest("PUT", "/api/batches/current", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "user-123")

	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response intake.Session
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if response.Name != "Q3 run" {
		t.Errorf("Expected session name 'Q3 run', got '%s'", response.Name)
	}
	if len(response.Clients) != 1 {
		t.Errorf("Expected 1 client, got %d", len(response.Clients))
	}
}

// TestSaveSession_InvalidJSON tests handling of malformed JSON
func TestSaveSession_InvalidJSON(t *testing.T) {
	server := createTestServer()

	req := httptest.NewRequest("PUT", "/api/batches/current", bytes.NewReader([]byte("not json")))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "user-123")

	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

// TestPublishPlan_Success tests publishing the current session
func TestPublishPlan_Success(t *testing.T) {
	server := createTestServer()

	req := httptest.NewRequest("POST", "/api/plans/publish", nil)
	req.Header.Set("X-User-ID", "user-123")

	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response struct {
		Clients int                   `json:"clients"`
		Results []*service.SyncResult `json:"results"`
	}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if response.Clients != 1 {
		t.Errorf("Expected 1 client, got %d", response.Clients)
	}
	if len(response.Results) != 1 || response.Results[0].Created != 2 {
		t.Errorf("Expected sync result with 2 creates, got %+v", response.Results)
	}
}

// TestUpdatePayment_Success tests an operator payment edit
func TestUpdatePayment_Success(t *testing.T) {
	server := createTestServer()

	body := []byte(`{"status": "VERIFIED"}`)
	req := httptest.NewRequest("PATCH", "/api/payments/payment-1", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "user-123")
	req.Header.Set("X-User-Email", "op@example.com")

	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if response["status"] != "VERIFIED" {
		t.Errorf("Expected status VERIFIED, got %v", response["status"])
	}
}

// TestUpdatePayment_UnknownField tests rejection of unknown body fields
func TestUpdatePayment_UnknownField(t *testing.T) {
	server := createTestServer()

	body := []byte(`{"bogus": true}`)
	req := httptest.NewRequest("PATCH", "/api/payments/payment-1", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "user-123")

	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

// TestUpdatePayment_Conflict tests that service conflicts map to 409
func TestUpdatePayment_Conflict(t *testing.T) {
	server := createTestServer()
	server.paymentService = &mockPaymentService{
		updateFunc: func(ctx context.Context, ownerID, paymentID, actorEmail string, patch *service.PaymentPatch) (*models.Payment, error) {
			return nil, errors.NewConflictError("invalid status transition")
		},
	}

	body := []byte(`{"status": "DRAFT"}`)
	req := httptest.NewRequest("PATCH", "/api/payments/payment-1", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "user-123")

	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", w.Code)
	}
}

// TestSendInstructions_Success tests the inline send path
func TestSendInstructions_Success(t *testing.T) {
	server := createTestServer()

	body := []byte(`{"taxYear": 2025, "quarter": 3}`)
	req := httptest.NewRequest("POST", "/api/clients/client-1/instructions/send", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "user-123")

	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response models.Notification
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if response.Status != types.NotificationSent {
		t.Errorf("Expected SENT notification, got %s", response.Status)
	}
}

// TestSendInstructions_Scheduled tests that a future send returns 202
func TestSendInstructions_Scheduled(t *testing.T) {
	server := createTestServer()
	server.scheduleService.(*mockScheduleService).sendFunc = func(ctx context.Context, ownerID, clientID string, taxYear, quarter int, sendAt time.Time) (*models.Notification, error) {
		return &models.Notification{
			ID:       "notification-456",
			OwnerID:  ownerID,
			ClientID: clientID,
			Status:   types.NotificationQueued,
			SendAt:   sendAt,
			Metadata: models.NotificationMetadata{TaxYear: taxYear, Quarter: quarter},
		}, nil
	}

	body := []byte(`{"taxYear": 2025, "quarter": 3, "sendAt": "2026-09-01T09:00:00Z"}`)
	req := httptest.NewRequest("POST", "/api/clients/client-1/instructions/send", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "user-123")

	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Errorf("Expected status 202, got %d", w.Code)
	}

	var response models.Notification
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if response.Status != types.NotificationQueued {
		t.Errorf("Expected QUEUED notification, got %s", response.Status)
	}
}

// TestSendInstructions_InvalidQuarter tests quarter validation
func TestSendInstructions_InvalidQuarter(t *testing.T) {
	server := createTestServer()

	body := []byte(`{"taxYear": 2025, "quarter": 5}`)
	req := httptest.NewRequest("POST", "/api/clients/client-1/instructions/send", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "user-123")

	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

// TestPreviewInstructions_Success tests the preview endpoint
func TestPreviewInstructions_Success(t *testing.T) {
	server := createTestServer()

	req := httptest.NewRequest("GET", "/api/clients/client-1/instructions/preview?taxYear=2025&quarter=3", nil)
	req.Header.Set("X-User-ID", "user-123")

	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response map[string]string
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if response["subject"] == "" {
		t.Error("Expected a rendered subject")
	}
}

// TestPortalView_Success tests the token-addressed portal page
func TestPortalView_Success(t *testing.T) {
	server := createTestServer()

	req := httptest.NewRequest("GET", "/portal/some-token", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response service.PortalPlanView
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if response.ClientName != "Jordan" {
		t.Errorf("Expected client name 'Jordan', got '%s'", response.ClientName)
	}
}

// TestPortalView_LinkNotFound tests the uniform not-found response
func TestPortalView_LinkNotFound(t *testing.T) {
	server := createTestServer()
	server.portalService = &mockPortalService{
		viewFunc: func(ctx context.Context, token string) (*service.PortalPlanView, error) {
			return nil, errors.NewLinkNotFoundError()
		},
	}

	req := httptest.NewRequest("GET", "/portal/bad-token", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}

	var response ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if response.Error.Code != "LINK_NOT_FOUND" {
		t.Errorf("Expected LINK_NOT_FOUND, got %s", response.Error.Code)
	}
}

// TestPortalConfirm_Success tests confirming a payment through the portal
func TestPortalConfirm_Success(t *testing.T) {
	server := createTestServer()

	body := []byte(`{"email": "jordan@example.com", "confirmationNumber": "ABC123"}`)
	req := httptest.NewRequest("POST", "/portal/some-token/payments/payment-1/confirm", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response service.PortalPayment
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if response.Status != types.StatusConfirmed {
		t.Errorf("Expected CONFIRMED, got %s", response.Status)
	}
}

// TestProcessNotifications_MissingSecret tests that the cron trigger rejects
// unauthenticated callers
func TestProcessNotifications_MissingSecret(t *testing.T) {
	server := createTestServer()

	req := httptest.NewRequest("POST", "/internal/notifications/process", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
}

// TestProcessNotifications_Success tests the authenticated cron trigger
func TestProcessNotifications_Success(t *testing.T) {
	server := createTestServer()

	req := httptest.NewRequest("POST", "/internal/notifications/process", nil)
	req.Header.Set("X-Cron-Secret", "test-secret")

	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response service.DispatchSummary
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if response.Sent != 1 {
		t.Errorf("Expected 1 sent, got %d", response.Sent)
	}
}

// TestProcessNotifications_DisabledWithoutSecret tests that the endpoint is
// unusable when no secret is configured
func TestProcessNotifications_DisabledWithoutSecret(t *testing.T) {
	server := createTestServer()
	server.config.CronSecret = ""
	server.router = mux.NewRouter()
	server.setupRouter()

	req := httptest.NewRequest("POST", "/internal/notifications/process", nil)
	req.Header.Set("X-Cron-Secret", "anything")

	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
}

// TestListClientNotifications_Success tests notification history retrieval
func TestListClientNotifications_Success(t *testing.T) {
	server := createTestServer()

	req := httptest.NewRequest("GET", "/api/clients/client-1/notifications?limit=10", nil)
	req.Header.Set("X-User-ID", "user-123")

	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
}

// TestCORSHeaders tests that CORS headers are properly set
func TestCORSHeaders(t *testing.T) {
	server := createTestServer()

	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")

	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("Expected CORS headers to be set")
	}
}
