package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/roadready/theory-backend/internal/model"
)

// EntitlementService decides whether a user may start exams and simulations.
// It is checked on every start; nothing is cached.
type EntitlementService struct {
	payments PaymentStore
	now      func() time.Time
}

// NewEntitlementService creates a new EntitlementService.
func NewEntitlementService(payments PaymentStore) *EntitlementService {
	return &EntitlementService{payments: payments, now: time.Now}
}

// Active returns the payment currently granting access, or ErrNotEntitled.
func (s *EntitlementService) Active(ctx context.Context, userID int) (*model.Payment, error) {
	now := s.now()
	p, err := s.payments.FindActive(ctx, userID, now)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotEntitled
		}
		return nil, fmt.Errorf("find active payment: %w", err)
	}
	// Expired payments never grant access, whatever the store returned.
	if !p.GrantsAccessAt(now) {
		return nil, ErrNotEntitled
	}
	return p, nil
}

// Check returns nil when the user holds a valid payment.
func (s *EntitlementService) Check(ctx context.Context, userID int) error {
	_, err := s.Active(ctx, userID)
	return err
}

// Status summarises the user's access for display.
func (s *EntitlementService) Status(ctx context.Context, userID int) (*model.Entitlement, error) {
	p, err := s.Active(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotEntitled) {
			return &model.Entitlement{Active: false}, nil
		}
		return nil, err
	}
	return &model.Entitlement{
		Active:      true,
		PackageType: &p.PackageType,
		ValidUntil:  &p.ValidUntil,
		PaymentID:   &p.ID,
	}, nil
}
