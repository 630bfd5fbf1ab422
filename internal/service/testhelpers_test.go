package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/payplan-sync/internal/logging"
	"github.com/payplan-sync/internal/mail"
	"github.com/payplan-sync/internal/models"
	"github.com/payplan-sync/internal/types"
)

// In-memory repository fakes. They implement the same invariants the SQL
// repositories enforce (guarded status flips, invalidate-then-create link
// issuance) so service behavior can be tested without a database.

func testLogger() *logging.Logger {
	logger := logging.NewLogger(logging.LevelError, logging.FormatText)
	logger.SetOutput(discardWriter{})
	return logger
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

type fakeClientRepo struct {
	mu      sync.Mutex
	clients map[string]*models.Client
}

func newFakeClientRepo() *fakeClientRepo {
	return &fakeClientRepo{clients: make(map[string]*models.Client)}
}

func (r *fakeClientRepo) Upsert(_ context.Context, client *models.Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.clients {
		if existing.OwnerID == client.OwnerID && existing.ClientCode == client.ClientCode {
			existing.Name = client.Name
			existing.AddresseeName = client.AddresseeName
			existing.EntityType = client.EntityType
			if client.PrimaryEmail != "" {
				existing.PrimaryEmail = client.PrimaryEmail
			}
			*client = *existing
			return nil
		}
	}
	if client.ID == "" {
		client.ID = uuid.New().String()
	}
	stored := *client
	r.clients[client.ID] = &stored
	return nil
}

func (r *fakeClientRepo) GetByID(_ context.Context, ownerID, id string) (*models.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[id]
	if !ok || c.OwnerID != ownerID {
		return nil, fmt.Errorf("client not found: %s", id)
	}
	copy := *c
	return &copy, nil
}

type fakeBatchRepo struct {
	mu      sync.Mutex
	batches []*models.Batch
}

func newFakeBatchRepo() *fakeBatchRepo { return &fakeBatchRepo{} }

func (r *fakeBatchRepo) Create(_ context.Context, batch *models.Batch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if batch.ID == "" {
		batch.ID = uuid.New().String()
	}
	batch.UpdatedAt = time.Now()
	stored := *batch
	r.batches = append(r.batches, &stored)
	return nil
}

func (r *fakeBatchRepo) GetByID(_ context.Context, ownerID, id string) (*models.Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.batches {
		if b.OwnerID == ownerID && b.ID == id {
			copy := *b
			return &copy, nil
		}
	}
	return nil, fmt.Errorf("batch not found: %s", id)
}

func (r *fakeBatchRepo) GetLatestByKind(_ context.Context, ownerID string, kind types.BatchKind) (*models.Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *models.Batch
	for _, b := range r.batches {
		if b.OwnerID == ownerID && b.Kind == kind {
			if latest == nil || b.UpdatedAt.After(latest.UpdatedAt) {
				latest = b
			}
		}
	}
	if latest == nil {
		return nil, nil
	}
	copy := *latest
	return &copy, nil
}

func (r *fakeBatchRepo) UpdateSnapshot(_ context.Context, ownerID, id, name string, snapshot []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.batches {
		if b.OwnerID == ownerID && b.ID == id {
			b.Name = name
			b.Snapshot = snapshot
			b.UpdatedAt = time.Now()
			return nil
		}
	}
	return fmt.Errorf("batch not found: %s", id)
}

type fakeWorkUnitRepo struct {
	mu    sync.Mutex
	units []*models.WorkUnit
	kinds map[string]types.BatchKind // batch id -> kind
}

func newFakeWorkUnitRepo() *fakeWorkUnitRepo {
	return &fakeWorkUnitRepo{kinds: make(map[string]types.BatchKind)}
}

func (r *fakeWorkUnitRepo) Upsert(_ context.Context, wu *models.WorkUnit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.units {
		if existing.BatchID == wu.BatchID && existing.ClientID == wu.ClientID {
			existing.Snapshot = wu.Snapshot
			existing.UpdatedAt = time.Now()
			*wu = *existing
			return nil
		}
	}
	if wu.ID == "" {
		wu.ID = uuid.New().String()
	}
	wu.UpdatedAt = time.Now()
	stored := *wu
	r.units = append(r.units, &stored)
	return nil
}

func (r *fakeWorkUnitRepo) GetByID(_ context.Context, ownerID, id string) (*models.WorkUnit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, wu := range r.units {
		if wu.OwnerID == ownerID && wu.ID == id {
			copy := *wu
			return &copy, nil
		}
	}
	return nil, fmt.Errorf("work unit not found: %s", id)
}

func (r *fakeWorkUnitRepo) FindForClient(_ context.Context, ownerID, clientID string, kind types.BatchKind) (*models.WorkUnit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *models.WorkUnit
	for _, wu := range r.units {
		if wu.OwnerID == ownerID && wu.ClientID == clientID && r.kinds[wu.BatchID] == kind {
			if latest == nil || wu.UpdatedAt.After(latest.UpdatedAt) {
				latest = wu
			}
		}
	}
	if latest == nil {
		return nil, nil
	}
	copy := *latest
	return &copy, nil
}

type fakePaymentRepo struct {
	mu       sync.Mutex
	payments map[string]*models.Payment
	events   []*models.ConfirmationEvent
}

func newFakePaymentRepo() *fakePaymentRepo {
	return &fakePaymentRepo{payments: make(map[string]*models.Payment)}
}

func (r *fakePaymentRepo) put(p *models.Payment) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	stored := *p
	r.payments[p.ID] = &stored
}

func (r *fakePaymentRepo) ListByWorkUnit(_ context.Context, ownerID, workUnitID string) ([]*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Payment
	for _, p := range r.payments {
		if p.OwnerID == ownerID && p.WorkUnitID == workUnitID {
			copy := *p
			out = append(out, &copy)
		}
	}
	return out, nil
}

func (r *fakePaymentRepo) ListQuarter(_ context.Context, ownerID, workUnitID string, taxYear, quarter int) ([]*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Payment
	for _, p := range r.payments {
		if p.OwnerID != ownerID || p.WorkUnitID != workUnitID || p.Status == types.StatusCancelled {
			continue
		}
		if p.TaxYear == nil || *p.TaxYear != taxYear || p.Quarter == nil || *p.Quarter != quarter {
			continue
		}
		copy := *p
		out = append(out, &copy)
	}
	return out, nil
}

func (r *fakePaymentRepo) GetByID(_ context.Context, ownerID, id string) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok || p.OwnerID != ownerID {
		return nil, fmt.Errorf("payment not found: %s", id)
	}
	copy := *p
	return &copy, nil
}

func (r *fakePaymentRepo) ApplySync(_ context.Context, creates, updates []*models.Payment, cancelIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range creates {
		if p.Status == "" {
			p.Status = types.StatusDraft
		}
		r.put(p)
	}
	for _, p := range updates {
		r.put(p)
	}
	for _, id := range cancelIDs {
		if p, ok := r.payments[id]; ok {
			switch p.Status {
			case types.StatusDraft, types.StatusSent, types.StatusViewed:
				p.Status = types.StatusCancelled
			}
		}
	}
	return nil
}

func (r *fakePaymentRepo) Confirm(_ context.Context, ownerID, paymentID string, input *models.ConfirmationInput, actorType types.ActorType) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[paymentID]
	if !ok || p.OwnerID != ownerID {
		return nil, models.ErrNotConfirmable
	}
	switch p.Status {
	case types.StatusDraft, types.StatusSent, types.StatusViewed:
	default:
		return nil, models.ErrNotConfirmable
	}

	now := time.Now()
	p.Status = types.StatusConfirmed
	p.ConfirmedAt = &now
	p.ConfirmedByEmail = &input.Email
	p.ConfirmedDate = input.Date
	p.ConfirmedAmount = input.Amount
	p.ConfirmationNumber = input.Number
	p.ConfirmationNote = input.Note

	r.events = append(r.events, &models.ConfirmationEvent{
		ID:         uuid.New().String(),
		OwnerID:    ownerID,
		PaymentID:  paymentID,
		EventType:  types.EventConfirmed,
		ActorType:  actorType,
		ActorEmail: input.Email,
		CreatedAt:  now,
	})

	copy := *p
	return &copy, nil
}

func (r *fakePaymentRepo) Update(_ context.Context, p *models.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.payments[p.ID]; !ok {
		return fmt.Errorf("payment not found: %s", p.ID)
	}
	stored := *p
	r.payments[p.ID] = &stored
	return nil
}

func (r *fakePaymentRepo) FlipSentToViewed(_ context.Context, workUnitID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, p := range r.payments {
		if p.WorkUnitID == workUnitID && p.Status == types.StatusSent {
			p.Status = types.StatusViewed
			count++
		}
	}
	return count, nil
}

type fakeLinkRepo struct {
	mu    sync.Mutex
	links []*models.PortalLink
}

func newFakeLinkRepo() *fakeLinkRepo { return &fakeLinkRepo{} }

func (r *fakeLinkRepo) Issue(_ context.Context, link *models.PortalLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for _, l := range r.links {
		if l.WorkUnitID == link.WorkUnitID && l.Scope == link.Scope && l.Valid(now) {
			expired := now
			l.ExpiresAt = &expired
		}
	}
	if link.ID == "" {
		link.ID = uuid.New().String()
	}
	stored := *link
	r.links = append(r.links, &stored)
	return nil
}

func (r *fakeLinkRepo) ResolveByHash(_ context.Context, tokenHash string, scope types.PortalScope, now time.Time) (*models.PortalLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.links {
		if l.TokenHash == tokenHash && l.Scope == scope && l.Valid(now) {
			copy := *l
			return &copy, nil
		}
	}
	return nil, models.ErrLinkNotFound
}

func (r *fakeLinkRepo) Touch(_ context.Context, id string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.links {
		if l.ID == id {
			touched := now
			l.LastUsedAt = &touched
			return nil
		}
	}
	return fmt.Errorf("portal link not found: %s", id)
}

func (r *fakeLinkRepo) validCount(workUnitID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	count := 0
	for _, l := range r.links {
		if l.WorkUnitID == workUnitID && l.Valid(now) {
			count++
		}
	}
	return count
}

type fakeNotificationRepo struct {
	mu            sync.Mutex
	notifications map[string]*models.Notification
	payments      *fakePaymentRepo
}

func newFakeNotificationRepo(payments *fakePaymentRepo) *fakeNotificationRepo {
	return &fakeNotificationRepo{
		notifications: make(map[string]*models.Notification),
		payments:      payments,
	}
}

func (r *fakeNotificationRepo) Create(_ context.Context, n *models.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	n.CreatedAt = time.Now()
	stored := *n
	r.notifications[n.ID] = &stored
	return nil
}

func (r *fakeNotificationRepo) GetByID(_ context.Context, ownerID, id string) (*models.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.notifications[id]
	if !ok || n.OwnerID != ownerID {
		return nil, fmt.Errorf("notification not found: %s", id)
	}
	copy := *n
	return &copy, nil
}

func (r *fakeNotificationRepo) ListDue(_ context.Context, now time.Time, limit int) ([]*models.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Notification
	for _, n := range r.notifications {
		if n.Status == types.NotificationQueued && !n.SendAt.After(now) {
			copy := *n
			out = append(out, &copy)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (r *fakeNotificationRepo) MarkSent(_ context.Context, id, providerMessageID string, portalLinkID *string, paymentIDs []string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.notifications[id]
	if !ok || n.Status != types.NotificationQueued {
		return false, nil
	}
	now := time.Now()
	n.Status = types.NotificationSent
	n.SentAt = &now
	n.ProviderMessageID = &providerMessageID
	if portalLinkID != nil {
		n.PortalLinkID = portalLinkID
	}

	r.payments.mu.Lock()
	for _, pid := range paymentIDs {
		if p, ok := r.payments.payments[pid]; ok && p.Status == types.StatusDraft {
			p.Status = types.StatusSent
		}
	}
	r.payments.mu.Unlock()

	return true, nil
}

func (r *fakeNotificationRepo) MarkFailed(_ context.Context, id, reason string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.notifications[id]
	if !ok || n.Status != types.NotificationQueued {
		return false, nil
	}
	n.Status = types.NotificationFailed
	n.ErrorMessage = &reason
	return true, nil
}

func (r *fakeNotificationRepo) ListByClient(_ context.Context, ownerID, clientID string, limit int) ([]*models.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Notification
	for _, n := range r.notifications {
		if n.OwnerID == ownerID && n.ClientID == clientID {
			copy := *n
			out = append(out, &copy)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

type fakeEventRepo struct {
	mu     sync.Mutex
	events []*models.ConfirmationEvent
}

func newFakeEventRepo() *fakeEventRepo { return &fakeEventRepo{} }

func (r *fakeEventRepo) Append(_ context.Context, event *models.ConfirmationEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	stored := *event
	r.events = append(r.events, &stored)
	return nil
}

func (r *fakeEventRepo) ListByPayment(_ context.Context, ownerID, paymentID string) ([]*models.ConfirmationEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.ConfirmationEvent
	for _, e := range r.events {
		if e.OwnerID == ownerID && e.PaymentID == paymentID {
			copy := *e
			out = append(out, &copy)
		}
	}
	return out, nil
}

// failingMailer always errors, for exercising the failure path.
type failingMailer struct{}

func (failingMailer) Send(_ context.Context, _ *mail.Message) (string, error) {
	return "", fmt.Errorf("smtp connection refused")
}
