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

// SessionService manages the owner's editable wizard session. The session
// lives in the latest WIZARD batch; saving always normalizes, so a stored
// snapshot is always re-openable.
type SessionService struct {
	batchRepo BatchRepository
	logger    *logging.Logger
}

// NewSessionService creates a new session service
func NewSessionService(batchRepo BatchRepository, logger *logging.Logger) *SessionService {
	return &SessionService{batchRepo: batchRepo, logger: logger}
}

// GetCurrent returns the owner's wizard session, creating an empty one on
// first access.
func (s *SessionService) GetCurrent(ctx context.Context, ownerID string) (intake.Session, error) {
	batch, err := s.batchRepo.GetLatestByKind(ctx, ownerID, types.BatchWizard)
	if err != nil {
		return intake.Session{}, errors.NewDatabaseError("get wizard batch", err)
	}

	if batch == nil {
		session := intake.NewSession()
		if _, err := s.save(ctx, ownerID, nil, session); err != nil {
			return intake.Session{}, err
		}
		return session, nil
	}

	var raw any
	if err := json.Unmarshal(batch.Snapshot, &raw); err != nil {
		s.logger.WithError(err).WithField("batch_id", batch.ID).Warn("Stored session snapshot is not valid JSON, resetting")
		raw = nil
	}

	return intake.NormalizeSession(raw), nil
}

// SaveCurrent normalizes and stores the submitted session snapshot,
// replacing the previous one. The normalized form is returned so the caller
// sees exactly what was stored.
func (s *SessionService) SaveCurrent(ctx context.Context, ownerID string, input any) (intake.Session, error) {
	session := intake.NormalizeSession(input)

	batch, err := s.batchRepo.GetLatestByKind(ctx, ownerID, types.BatchWizard)
	if err != nil {
		return intake.Session{}, errors.NewDatabaseError("get wizard batch", err)
	}

	return s.save(ctx, ownerID, batch, session)
}

func (s *SessionService) save(ctx context.Context, ownerID string, batch *models.Batch, session intake.Session) (intake.Session, error) {
	snapshot, err := json.Marshal(session)
	if err != nil {
		return intake.Session{}, errors.NewInternalError("failed to encode session snapshot", err)
	}

	if batch == nil {
		batch = &models.Batch{
			OwnerID:  ownerID,
			Name:     session.Name,
			Kind:     types.BatchWizard,
			Snapshot: snapshot,
		}
		if err := s.batchRepo.Create(ctx, batch); err != nil {
			return intake.Session{}, errors.NewDatabaseError("create wizard batch", err)
		}
		return session, nil
	}

	if err := s.batchRepo.UpdateSnapshot(ctx, ownerID, batch.ID, session.Name, snapshot); err != nil {
		return intake.Session{}, errors.NewDatabaseError("update wizard batch", err)
	}

	return session, nil
}
