package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/roadready/theory-backend/internal/gateway"
	"github.com/roadready/theory-backend/internal/model"
	"github.com/roadready/theory-backend/internal/repository"
	"github.com/roadready/theory-backend/internal/response"
	"github.com/rs/zerolog"
)

// Ways a pending payment gets reconciled.
const (
	VerifiedViaWebhook  = "webhook"
	VerifiedViaCallback = "callback"
	VerifiedViaManual   = "manual"
)

// PaymentService handles checkout, reconciliation against the gateway and refunds.
type PaymentService struct {
	payments      PaymentStore
	users         UserStore
	gateway       PaymentGateway
	currency      string
	publicBaseURL string
	log           zerolog.Logger
	now           func() time.Time
}

// NewPaymentService creates a new PaymentService.
func NewPaymentService(
	payments PaymentStore,
	users UserStore,
	gw PaymentGateway,
	currency, publicBaseURL string,
	log zerolog.Logger,
) *PaymentService {
	return &PaymentService{
		payments:      payments,
		users:         users,
		gateway:       gw,
		currency:      currency,
		publicBaseURL: publicBaseURL,
		log:           log.With().Str("component", "payment_service").Logger(),
		now:           time.Now,
	}
}

// Packages returns the package catalogue.
func (s *PaymentService) Packages() []model.Package {
	return model.Packages
}

// Checkout creates a pending payment and opens a hosted checkout for it.
// valid_until is fixed here, when the payment is created.
func (s *PaymentService) Checkout(ctx context.Context, userID int, pkgType model.PackageType) (*model.CheckoutResponse, error) {
	return s.checkout(ctx, userID, pkgType, nil)
}

// Retry opens a new checkout for a failed or abandoned payment. The new
// payment gets its own tx_ref and links back to the original.
func (s *PaymentService) Retry(ctx context.Context, userID int, paymentID uuid.UUID) (*model.CheckoutResponse, error) {
	p, err := s.owned(ctx, userID, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status != model.PaymentStatusFailed && p.Status != model.PaymentStatusPending {
		return nil, ErrPaymentNotRetryable
	}
	return s.checkout(ctx, userID, p.PackageType, &p.ID)
}

func (s *PaymentService) checkout(ctx context.Context, userID int, pkgType model.PackageType, retryOf *uuid.UUID) (*model.CheckoutResponse, error) {
	pkg, ok := model.LookupPackage(pkgType)
	if !ok {
		return nil, ErrUnknownPackage
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	now := s.now().UTC()
	p := &model.Payment{
		ID:          uuid.New(),
		UserID:      userID,
		Amount:      pkg.Price,
		Currency:    s.currency,
		PackageType: pkg.Type,
		ValidUntil:  pkg.Type.ValidUntil(now),
		Status:      model.PaymentStatusPending,
		Metadata: model.PaymentMetadata{
			TxRef:   uuid.NewString(),
			RetryOf: retryOf,
			Journey: model.NewJourney(now),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.payments.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	result, err := s.gateway.Initiate(ctx, gateway.InitiateRequest{
		TxRef:       p.Metadata.TxRef,
		Amount:      p.Amount,
		Currency:    p.Currency,
		Customer:    gateway.Customer{Email: user.Email, Name: user.Name},
		RedirectURL: s.publicBaseURL + "/api/v1/payments/callback",
		Title:       "Driving theory access",
		Description: pkg.Name,
		Meta: map[string]string{
			"payment_id":   p.ID.String(),
			"package_type": string(pkg.Type),
		},
	})
	if err != nil {
		s.log.Error().Err(err).Int("user_id", userID).Str("payment_id", p.ID.String()).Msg("Checkout initiation failed")
		meta := p.Metadata
		meta.FailureReason = "checkout could not be initiated"
		if tErr := s.payments.Transition(ctx, p.ID, model.PaymentStatusPending, model.PaymentStatusFailed, meta); tErr != nil {
			s.log.Error().Err(tErr).Str("payment_id", p.ID.String()).Msg("Failed to mark payment failed")
		}
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}

	meta := p.Metadata
	meta.PaymentLink = result.Link
	if err := s.payments.Transition(ctx, p.ID, model.PaymentStatusPending, model.PaymentStatusPending, meta); err != nil {
		return nil, fmt.Errorf("store payment link: %w", err)
	}
	p.Metadata = meta

	s.log.Info().
		Int("user_id", userID).
		Str("payment_id", p.ID.String()).
		Str("package", string(pkg.Type)).
		Msg("Checkout initiated")

	return &model.CheckoutResponse{Payment: *p, PaymentLink: result.Link}, nil
}

// List returns the user's payments, newest first.
func (s *PaymentService) List(ctx context.Context, userID, page, perPage int) ([]model.Payment, *response.Pagination, error) {
	page, perPage = normalizePage(page, perPage)
	payments, total, err := s.payments.ListByUser(ctx, userID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, err
	}
	if payments == nil {
		payments = []model.Payment{}
	}
	return payments, buildPagination(page, perPage, total), nil
}

// HandleWebhook reconciles the payment a gateway notification refers to.
// The notification body is never trusted; the gateway is asked again.
func (s *PaymentService) HandleWebhook(ctx context.Context, signature, txRef string) (*model.Payment, error) {
	if !s.gateway.ValidWebhookSignature(signature) {
		return nil, ErrInvalidSignature
	}
	return s.Reconcile(ctx, txRef, VerifiedViaWebhook)
}

// Callback reconciles the payment the payer was redirected back for.
func (s *PaymentService) Callback(ctx context.Context, txRef string) (*model.Payment, error) {
	return s.Reconcile(ctx, txRef, VerifiedViaCallback)
}

// Reconcile verifies a pending payment with the gateway and records the
// outcome. Calling it again for a settled payment returns it unchanged.
func (s *PaymentService) Reconcile(ctx context.Context, txRef, via string) (*model.Payment, error) {
	p, err := s.payments.GetByTxRef(ctx, txRef)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("get payment by tx_ref: %w", err)
	}
	if p.Status != model.PaymentStatusPending {
		return p, nil
	}

	v, err := s.gateway.Verify(ctx, txRef)
	if err != nil {
		if errors.Is(err, gateway.ErrTransactionNotFound) {
			return p, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}

	now := s.now().UTC()
	meta := p.Metadata
	meta.GatewayTransactionID = v.TransactionID
	meta.Method = v.Method
	meta.VerifiedVia = via
	meta.VerifiedAt = &now

	var next model.PaymentStatus
	switch {
	case v.Status == gateway.StatusSuccessful && v.Amount.GreaterThanOrEqual(p.Amount) && v.Currency == p.Currency:
		next = model.PaymentStatusCompleted
	case v.Status == gateway.StatusSuccessful:
		next = model.PaymentStatusFailed
		meta.FailureReason = fmt.Sprintf("paid %s %s, expected %s %s", v.Amount.StringFixed(2), v.Currency, p.Amount.StringFixed(2), p.Currency)
	case v.Status == gateway.StatusFailed:
		next = model.PaymentStatusFailed
		meta.FailureReason = v.Reason
		if meta.FailureReason == "" {
			meta.FailureReason = "declined by gateway"
		}
	default:
		return p, nil
	}

	if err := s.payments.Transition(ctx, p.ID, model.PaymentStatusPending, next, meta); err != nil {
		if errors.Is(err, repository.ErrConcurrentUpdate) {
			// Settled by a concurrent webhook or callback.
			return s.payments.GetByID(ctx, p.ID)
		}
		return nil, fmt.Errorf("transition payment: %w", err)
	}
	p.Status = next
	p.Metadata = meta
	p.UpdatedAt = now

	s.log.Info().
		Int("user_id", p.UserID).
		Str("payment_id", p.ID.String()).
		Str("status", string(next)).
		Str("via", via).
		Msg("Payment reconciled")
	return p, nil
}

// Refund returns a completed payment to the payer. Admin only.
func (s *PaymentService) Refund(ctx context.Context, paymentID uuid.UUID) (*model.Payment, error) {
	p, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}
	if p.Status != model.PaymentStatusCompleted || p.Metadata.GatewayTransactionID == "" {
		return nil, ErrPaymentNotRefundable
	}

	if err := s.gateway.Refund(ctx, p.Metadata.GatewayTransactionID, p.Amount); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}

	now := s.now().UTC()
	meta := p.Metadata
	meta.RefundedAt = &now
	if err := s.payments.Transition(ctx, p.ID, model.PaymentStatusCompleted, model.PaymentStatusRefunded, meta); err != nil {
		if errors.Is(err, repository.ErrConcurrentUpdate) {
			return nil, ErrPaymentNotRefundable
		}
		return nil, fmt.Errorf("transition payment: %w", err)
	}
	p.Status = model.PaymentStatusRefunded
	p.Metadata = meta

	s.log.Info().Int("user_id", p.UserID).Str("payment_id", p.ID.String()).Msg("Payment refunded")
	return p, nil
}

// ApplyJourneyEvent folds a journey event into the user's active payment.
// Users without an active payment have no journey to update.
func (s *PaymentService) ApplyJourneyEvent(ctx context.Context, ev model.JourneyEvent) error {
	if err := s.payments.ApplyJourneyEvent(ctx, ev); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("apply journey event: %w", err)
	}
	return nil
}

func (s *PaymentService) owned(ctx context.Context, userID int, id uuid.UUID) (*model.Payment, error) {
	p, err := s.payments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}
	if p.UserID != userID {
		return nil, ErrPaymentNotFound
	}
	return p, nil
}
