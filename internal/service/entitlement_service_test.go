package service

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/roadready/theory-backend/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntitlementExpiredCompletedPaymentDoesNotCount(t *testing.T) {
	f := newFixture(t)
	f.payments.Grant(f.userID, model.PackageMonthly, f.now.Add(-time.Second))

	_, err := f.entitlement.Active(t.Context(), f.userID)
	assert.ErrorIs(t, err, ErrNotEntitled)

	status, err := f.entitlement.Status(t.Context(), f.userID)
	require.NoError(t, err)
	assert.False(t, status.Active)
}

func TestEntitlementPicksLongestValidPayment(t *testing.T) {
	f := newFixture(t)
	f.payments.Grant(f.userID, model.PackageSingle, f.now.Add(30*time.Minute))
	weekly := f.payments.Grant(f.userID, model.PackageWeekly, f.now.AddDate(0, 0, 6))

	status, err := f.entitlement.Status(t.Context(), f.userID)
	require.NoError(t, err)
	assert.True(t, status.Active)
	assert.Equal(t, weekly.ID, *status.PaymentID)
	assert.Equal(t, model.PackageWeekly, *status.PackageType)
}

func TestEntitlementIgnoresOtherStatuses(t *testing.T) {
	f := newFixture(t)
	for _, st := range []model.PaymentStatus{model.PaymentStatusPending, model.PaymentStatusFailed, model.PaymentStatusRefunded} {
		p := &model.Payment{
			ID:         uuid.New(),
			UserID:     f.userID,
			Status:     st,
			ValidUntil: f.now.Add(time.Hour),
		}
		p.Metadata.TxRef = string(st)
		require.NoError(t, f.payments.Create(t.Context(), p))
	}
	assert.ErrorIs(t, f.entitlement.Check(t.Context(), f.userID), ErrNotEntitled)
}

func TestEntitlementLapsesAtValidUntil(t *testing.T) {
	f := newFixture(t)
	f.payments.Grant(f.userID, model.PackageSingle, f.now.Add(time.Hour))
	require.NoError(t, f.entitlement.Check(t.Context(), f.userID))

	f.tick(time.Hour)
	assert.ErrorIs(t, f.entitlement.Check(t.Context(), f.userID), ErrNotEntitled)
}
