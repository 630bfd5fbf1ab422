package service

import (
	"context"
	"encoding/json"

	"github.com/payplan-sync/internal/errors"
	"github.com/payplan-sync/internal/intake"
	"github.com/payplan-sync/internal/logging"
	"github.com/payplan-sync/internal/models"
	"github.com/payplan-sync/internal/types"
)

// SyncPlan is the reconciliation result between stored payments and the
// candidates extracted from the current document.
type SyncPlan struct {
	Creates   []*models.Payment
	Updates   []*models.Payment
	CancelIDs []string
}

// SyncResult summarizes one applied sync
type SyncResult struct {
	WorkUnitID string `json:"workUnitId"`
	ClientID   string `json:"clientId"`
	Created    int    `json:"created"`
	Updated    int    `json:"updated"`
	Cancelled  int    `json:"cancelled"`
	Unchanged  int    `json:"unchanged"`
}

// BuildSyncPlan reconciles existing payments against the candidate set by
// identity key.
//
// Matched rows get their document-derived fields refreshed; a matched
// CANCELLED row is reinstated to DRAFT, while CONFIRMED and VERIFIED rows
// keep their status and confirmation details. Candidates without a match
// become new DRAFT rows. Existing DRAFT, SENT, and VIEWED rows absent from
// the candidate set are soft-cancelled; absent terminal rows are left alone.
func BuildSyncPlan(existing []*models.Payment, candidates []intake.Candidate) SyncPlan {
	var plan SyncPlan

	byKey := make(map[string]*models.Payment, len(existing))
	for _, p := range existing {
		byKey[p.IdentityKey] = p
	}

	seen := make(map[string]bool, len(candidates))
	for i := range candidates {
		c := &candidates[i]
		if !c.Complete() {
			continue
		}

		key := c.IdentityKey()
		if seen[key] {
			continue
		}
		seen[key] = true

		current, ok := byKey[key]
		if !ok {
			plan.Creates = append(plan.Creates, &models.Payment{
				Scope:       c.Scope,
				StateCode:   c.StateCode,
				PaymentType: c.PaymentType,
				Quarter:     c.Quarter,
				DueDate:     c.DueDate,
				Amount:      c.Amount,
				TaxYear:     c.TaxYear,
				Notes:       c.Notes,
				Method:      c.Method,
				SortOrder:   c.SortOrder,
				IdentityKey: key,
				Status:      types.StatusDraft,
			})
			continue
		}

		updated := *current
		updated.PaymentType = c.PaymentType
		updated.Quarter = c.Quarter
		updated.DueDate = c.DueDate
		updated.Amount = c.Amount
		updated.TaxYear = c.TaxYear
		updated.Notes = c.Notes
		updated.Method = c.Method
		if current.Status == types.StatusCancelled {
			updated.Status = types.StatusDraft
		}

		if paymentChanged(current, &updated) {
			plan.Updates = append(plan.Updates, &updated)
		}
	}

	for _, p := range existing {
		if seen[p.IdentityKey] {
			continue
		}
		switch p.Status {
		case types.StatusDraft, types.StatusSent, types.StatusViewed:
			plan.CancelIDs = append(plan.CancelIDs, p.ID)
		}
	}

	return plan
}

func paymentChanged(a, b *models.Payment) bool {
	if a.PaymentType != b.PaymentType || a.Status != b.Status || a.SortOrder != b.SortOrder {
		return true
	}
	if !intPtrEqual(a.Quarter, b.Quarter) || !intPtrEqual(a.TaxYear, b.TaxYear) {
		return true
	}
	if !strPtrEqual(a.Notes, b.Notes) || !strPtrEqual(a.Method, b.Method) {
		return true
	}
	if (a.DueDate == nil) != (b.DueDate == nil) {
		return true
	}
	if a.DueDate != nil && !a.DueDate.Equal(*b.DueDate) {
		return true
	}
	if (a.Amount == nil) != (b.Amount == nil) {
		return true
	}
	if a.Amount != nil && !a.Amount.Equal(*b.Amount) {
		return true
	}
	return false
}

func intPtrEqual(a, b *int) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}

func strPtrEqual(a, b *string) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}

// SyncService reconciles intake documents into payment records
type SyncService struct {
	clientRepo   ClientRepository
	batchRepo    BatchRepository
	workUnitRepo WorkUnitRepository
	paymentRepo  PaymentRepository
	locks        *KeyedMutex
	logger       *logging.Logger
}

// NewSyncService creates a new sync service
func NewSyncService(
	clientRepo ClientRepository,
	batchRepo BatchRepository,
	workUnitRepo WorkUnitRepository,
	paymentRepo PaymentRepository,
	logger *logging.Logger,
) *SyncService {
	return &SyncService{
		clientRepo:   clientRepo,
		batchRepo:    batchRepo,
		workUnitRepo: workUnitRepo,
		paymentRepo:  paymentRepo,
		locks:        NewKeyedMutex(),
		logger:       logger,
	}
}

// SyncWorkUnit reconciles one work unit's payments against its document.
// Concurrent syncs of the same work unit are serialized.
func (s *SyncService) SyncWorkUnit(ctx context.Context, wu *models.WorkUnit, doc intake.Document) (*SyncResult, error) {
	unlock := s.locks.Lock(wu.ID)
	defer unlock()

	existing, err := s.paymentRepo.ListByWorkUnit(ctx, wu.OwnerID, wu.ID)
	if err != nil {
		return nil, errors.NewDatabaseError("list payments", err)
	}

	candidates := intake.ExtractCandidates(doc)
	plan := BuildSyncPlan(existing, candidates)

	for _, p := range plan.Creates {
		p.OwnerID = wu.OwnerID
		p.WorkUnitID = wu.ID
	}

	if err := s.paymentRepo.ApplySync(ctx, plan.Creates, plan.Updates, plan.CancelIDs); err != nil {
		return nil, errors.NewDatabaseError("apply sync", err)
	}

	result := &SyncResult{
		WorkUnitID: wu.ID,
		ClientID:   wu.ClientID,
		Created:    len(plan.Creates),
		Updated:    len(plan.Updates),
		Cancelled:  len(plan.CancelIDs),
		Unchanged:  len(existing) - len(plan.Updates) - len(plan.CancelIDs),
	}
	if result.Unchanged < 0 {
		result.Unchanged = 0
	}

	s.logger.WithFields(map[string]interface{}{
		"work_unit_id": wu.ID,
		"created":      result.Created,
		"updated":      result.Updated,
		"cancelled":    result.Cancelled,
	}).Info("Work unit synced")

	return result, nil
}

// PublishPlan upserts clients and work units from a wizard session and
// syncs every client's payments under the owner's plan batch.
func (s *SyncService) PublishPlan(ctx context.Context, ownerID string, session intake.Session) ([]*SyncResult, error) {
	batch, err := s.batchRepo.GetLatestByKind(ctx, ownerID, types.BatchPlan)
	if err != nil {
		return nil, errors.NewDatabaseError("get plan batch", err)
	}
	if batch == nil {
		batch = &models.Batch{
			OwnerID: ownerID,
			Name:    session.Name,
			Kind:    types.BatchPlan,
		}
		if err := s.batchRepo.Create(ctx, batch); err != nil {
			return nil, errors.NewDatabaseError("create plan batch", err)
		}
	}

	results := make([]*SyncResult, 0, len(session.Clients))
	for _, section := range session.Clients {
		result, err := s.publishClient(ctx, ownerID, batch.ID, section)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}

	return results, nil
}

func (s *SyncService) publishClient(ctx context.Context, ownerID, batchID string, section intake.ClientSection) (*SyncResult, error) {
	doc := section.Document

	client := &models.Client{
		OwnerID:       ownerID,
		ClientCode:    section.ClientID,
		Name:          clientDisplayName(doc),
		AddresseeName: doc.AddresseeName,
		EntityType:    types.EntityType(doc.EntityType),
		PrimaryEmail:  doc.PrimaryEmail,
	}
	if err := s.clientRepo.Upsert(ctx, client); err != nil {
		return nil, errors.NewDatabaseError("upsert client", err)
	}

	snapshot, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.NewInternalError("failed to encode document snapshot", err)
	}

	wu := &models.WorkUnit{
		OwnerID:  ownerID,
		BatchID:  batchID,
		ClientID: client.ID,
		Snapshot: snapshot,
	}
	if err := s.workUnitRepo.Upsert(ctx, wu); err != nil {
		return nil, errors.NewDatabaseError("upsert work unit", err)
	}

	return s.SyncWorkUnit(ctx, wu, doc)
}

func clientDisplayName(doc intake.Document) string {
	if doc.EntityName != "" {
		return doc.EntityName
	}
	if doc.AddresseeName != "" {
		return doc.AddresseeName
	}
	return "Unnamed Client"
}
