package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/payplan-sync/internal/errors"
	"github.com/payplan-sync/internal/mail"
	"github.com/payplan-sync/internal/models"
	"github.com/payplan-sync/internal/types"
)

type scheduleFixture struct {
	svc           *ScheduleService
	clients       *fakeClientRepo
	workUnits     *fakeWorkUnitRepo
	payments      *fakePaymentRepo
	notifications *fakeNotificationRepo
	links         *fakeLinkRepo
	mailer        *mail.ConsoleMailer
}

func newScheduleFixture() *scheduleFixture {
	return newScheduleFixtureWith(nil)
}

func newScheduleFixtureWith(mailer mail.Mailer) *scheduleFixture {
	f := &scheduleFixture{
		clients:   newFakeClientRepo(),
		workUnits: newFakeWorkUnitRepo(),
		payments:  newFakePaymentRepo(),
		links:     newFakeLinkRepo(),
		mailer:    mail.NewConsoleMailer(nil),
	}
	f.notifications = newFakeNotificationRepo(f.payments)
	if mailer == nil {
		mailer = f.mailer
	}
	tokens := NewTokenService(f.links, "https://app.example.com", 30*24*time.Hour)
	dispatcher := NewDispatchService(f.notifications, f.payments, f.workUnits, f.clients, tokens, mailer, 25, testLogger())
	f.svc = NewScheduleService(f.clients, f.workUnits, f.payments, f.notifications, dispatcher, testLogger())
	return f
}

func (f *scheduleFixture) seed(t *testing.T, email string) *models.Client {
	t.Helper()
	ctx := context.Background()

	client := &models.Client{
		OwnerID:      "owner-1",
		ClientCode:   "ACME",
		Name:         "Acme LLC",
		EntityType:   types.EntityIndividual,
		PrimaryEmail: email,
	}
	require.NoError(t, f.clients.Upsert(ctx, client))

	wu := &models.WorkUnit{
		ID:       "wu-1",
		OwnerID:  "owner-1",
		BatchID:  "batch-1",
		ClientID: client.ID,
		Snapshot: []byte("{}"),
	}
	require.NoError(t, f.workUnits.Upsert(ctx, wu))
	f.workUnits.kinds["batch-1"] = types.BatchPlan

	return client
}

func (f *scheduleFixture) seedQuarterPayment(id string, taxYear, quarter int, status types.PaymentStatus) {
	due := time.Date(taxYear, 9, 15, 0, 0, 0, 0, time.UTC)
	f.payments.mu.Lock()
	f.payments.put(&models.Payment{
		ID:          id,
		OwnerID:     "owner-1",
		WorkUnitID:  "wu-1",
		Scope:       types.ScopeFederal,
		PaymentType: "Estimated Tax",
		Quarter:     &quarter,
		TaxYear:     &taxYear,
		DueDate:     &due,
		Amount:      amountPtr("2500"),
		SortOrder:   1,
		IdentityKey: "federal||1",
		Status:      status,
	})
	f.payments.mu.Unlock()
}

func TestSendInstructions(t *testing.T) {
	ctx := context.Background()

	t.Run("immediate send delivers inline", func(t *testing.T) {
		f := newScheduleFixture()
		client := f.seed(t, "jordan@example.com")
		f.seedQuarterPayment("p-1", 2025, 3, types.StatusDraft)

		n, err := f.svc.SendInstructions(ctx, "owner-1", client.ID, 2025, 3, time.Time{})
		require.NoError(t, err)

		assert.Equal(t, types.NotificationSent, n.Status)
		assert.Equal(t, types.ChannelEmail, n.Channel)
		assert.Equal(t, "jordan@example.com", n.Recipient)
		assert.Equal(t, 2025, n.Metadata.TaxYear)
		assert.Equal(t, 3, n.Metadata.Quarter)
		assert.NotNil(t, n.SentAt)
		assert.NotNil(t, n.PortalLinkID)

		sent := f.mailer.Sent()
		require.Len(t, sent, 1)
		assert.Equal(t, "jordan@example.com", sent[0].To)
		assert.Contains(t, sent[0].Text, "https://app.example.com/portal/")

		p, err := f.payments.GetByID(ctx, "owner-1", "p-1")
		require.NoError(t, err)
		assert.Equal(t, types.StatusSent, p.Status)
		assert.Equal(t, 1, f.links.validCount("wu-1"))
	})

	t.Run("inline delivery failure surfaces as FAILED", func(t *testing.T) {
		f := newScheduleFixtureWith(failingMailer{})
		client := f.seed(t, "jordan@example.com")
		f.seedQuarterPayment("p-1", 2025, 3, types.StatusDraft)

		n, err := f.svc.SendInstructions(ctx, "owner-1", client.ID, 2025, 3, time.Time{})
		require.NoError(t, err)

		assert.Equal(t, types.NotificationFailed, n.Status)
		require.NotNil(t, n.ErrorMessage)
		assert.Contains(t, *n.ErrorMessage, "delivery failed")

		p, err := f.payments.GetByID(ctx, "owner-1", "p-1")
		require.NoError(t, err)
		assert.Equal(t, types.StatusDraft, p.Status)
	})

	t.Run("future send stays queued and mints no link", func(t *testing.T) {
		f := newScheduleFixture()
		client := f.seed(t, "jordan@example.com")
		f.seedQuarterPayment("p-1", 2025, 3, types.StatusDraft)

		sendAt := time.Now().Add(48 * time.Hour)
		n, err := f.svc.SendInstructions(ctx, "owner-1", client.ID, 2025, 3, sendAt)
		require.NoError(t, err)

		assert.Equal(t, types.NotificationQueued, n.Status)
		assert.True(t, n.SendAt.Equal(sendAt))
		assert.Empty(t, f.mailer.Sent())
		// The link belongs to delivery: nothing is issued until the
		// dispatcher picks the record up, so a later issuance cannot
		// orphan this email.
		assert.Zero(t, f.links.validCount("wu-1"))

		p, err := f.payments.GetByID(ctx, "owner-1", "p-1")
		require.NoError(t, err)
		assert.Equal(t, types.StatusDraft, p.Status)
	})

	t.Run("sending again issues a fresh link and invalidates the previous one", func(t *testing.T) {
		f := newScheduleFixture()
		client := f.seed(t, "jordan@example.com")
		f.seedQuarterPayment("p-1", 2025, 3, types.StatusDraft)

		_, err := f.svc.SendInstructions(ctx, "owner-1", client.ID, 2025, 3, time.Time{})
		require.NoError(t, err)
		_, err = f.svc.SendInstructions(ctx, "owner-1", client.ID, 2025, 3, time.Time{})
		require.NoError(t, err)

		sent := f.mailer.Sent()
		require.Len(t, sent, 2)
		first := portalToken(t, sent[0])
		second := portalToken(t, sent[1])
		assert.NotEqual(t, first, second)
		assert.Equal(t, 1, f.links.validCount("wu-1"))

		// Only the most recent email's link still resolves.
		_, err = f.links.ResolveByHash(ctx, HashToken(first), types.PortalScopePlan, time.Now())
		assert.ErrorIs(t, err, models.ErrLinkNotFound)
		_, err = f.links.ResolveByHash(ctx, HashToken(second), types.PortalScopePlan, time.Now())
		assert.NoError(t, err)
	})

	t.Run("client without email is rejected", func(t *testing.T) {
		f := newScheduleFixture()
		client := f.seed(t, "")
		f.seedQuarterPayment("p-1", 2025, 3, types.StatusDraft)

		_, err := f.svc.SendInstructions(ctx, "owner-1", client.ID, 2025, 3, time.Time{})
		require.Error(t, err)
		assert.Equal(t, "INVALID_PARAMETER", errors.Categorize(err).Code)
		assert.Zero(t, f.links.validCount("wu-1"))
	})

	t.Run("empty quarter is rejected", func(t *testing.T) {
		f := newScheduleFixture()
		client := f.seed(t, "jordan@example.com")
		f.seedQuarterPayment("p-1", 2025, 3, types.StatusDraft)

		_, err := f.svc.SendInstructions(ctx, "owner-1", client.ID, 2025, 4, time.Time{})
		require.Error(t, err)
		assert.Equal(t, "INVALID_PARAMETER", errors.Categorize(err).Code)
	})

	t.Run("cancelled payments do not count toward the quarter", func(t *testing.T) {
		f := newScheduleFixture()
		client := f.seed(t, "jordan@example.com")
		f.seedQuarterPayment("p-1", 2025, 3, types.StatusCancelled)

		_, err := f.svc.SendInstructions(ctx, "owner-1", client.ID, 2025, 3, time.Time{})
		require.Error(t, err)
		assert.Equal(t, "INVALID_PARAMETER", errors.Categorize(err).Code)
	})

	t.Run("client without a published plan is not found", func(t *testing.T) {
		f := newScheduleFixture()
		client := &models.Client{
			OwnerID:      "owner-1",
			ClientCode:   "NOPLAN",
			Name:         "No Plan Yet",
			EntityType:   types.EntityIndividual,
			PrimaryEmail: "x@example.com",
		}
		require.NoError(t, f.clients.Upsert(ctx, client))

		_, err := f.svc.SendInstructions(ctx, "owner-1", client.ID, 2025, 3, time.Time{})
		require.Error(t, err)
		assert.True(t, errors.IsNotFound(err))
	})
}

func TestPreviewInstructions(t *testing.T) {
	ctx := context.Background()

	t.Run("renders without queueing or issuing a link", func(t *testing.T) {
		f := newScheduleFixture()
		client := f.seed(t, "jordan@example.com")
		f.seedQuarterPayment("p-1", 2025, 3, types.StatusDraft)

		msg, err := f.svc.PreviewInstructions(ctx, "owner-1", client.ID, 2025, 3)
		require.NoError(t, err)

		assert.Equal(t, "jordan@example.com", msg.To)
		assert.Contains(t, msg.Subject, "Q3 2025")
		assert.Contains(t, msg.Text, "$2,500.00")
		assert.Contains(t, msg.Text, "Sep 15, 2025")

		assert.Zero(t, f.links.validCount("wu-1"))
		due, err := f.notifications.ListDue(ctx, time.Now(), 10)
		require.NoError(t, err)
		assert.Empty(t, due)
	})
}

func TestPaymentLabel(t *testing.T) {
	ca := "CA"
	tests := []struct {
		name string
		p    *models.Payment
		want string
	}{
		{"federal estimated", &models.Payment{Scope: types.ScopeFederal, PaymentType: "Federal"}, "Federal Estimated Tax"},
		{"federal custom type", &models.Payment{Scope: types.ScopeFederal, PaymentType: "Extension"}, "Extension"},
		{"state default type", &models.Payment{Scope: types.ScopeState, StateCode: &ca, PaymentType: "State"}, "California Estimated Tax"},
		{"state custom type", &models.Payment{Scope: types.ScopeState, StateCode: &ca, PaymentType: "Franchise Tax"}, "California Franchise Tax"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, paymentLabel(tt.p))
		})
	}
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"0", "$0.00"},
		{"999", "$999.00"},
		{"1000", "$1,000.00"},
		{"1234567.5", "$1,234,567.50"},
		{"-1500", "-$1,500.00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatAmount(amountPtr(tt.input)), "input %s", tt.input)
	}
	assert.Equal(t, "TBD", formatAmount(nil))
}
