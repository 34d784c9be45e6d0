package handler

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/roadready/theory-backend/internal/model"
	"github.com/roadready/theory-backend/internal/response"
	"github.com/roadready/theory-backend/internal/service"
	"github.com/roadready/theory-backend/internal/validator"
	"github.com/rs/zerolog"
)

// WebhookSignatureHeader carries the shared secret configured at the gateway.
const WebhookSignatureHeader = "verif-hash"

// webhookPayload is the part of a gateway notification we read. Everything
// else is re-fetched from the gateway.
type webhookPayload struct {
	Event string `json:"event"`
	Data  struct {
		TxRef string `json:"tx_ref"`
	} `json:"data"`
}

// PaymentHandler handles package purchase endpoints.
type PaymentHandler struct {
	paymentService     *service.PaymentService
	entitlementService *service.EntitlementService
	publicBaseURL      string
	log                zerolog.Logger
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(
	paymentService *service.PaymentService,
	entitlementService *service.EntitlementService,
	publicBaseURL string,
	log zerolog.Logger,
) *PaymentHandler {
	return &PaymentHandler{
		paymentService:     paymentService,
		entitlementService: entitlementService,
		publicBaseURL:      publicBaseURL,
		log:                log.With().Str("component", "payment_handler").Logger(),
	}
}

// ListPackages godoc
// GET /api/v1/payments/packages
func (h *PaymentHandler) ListPackages(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{"packages": h.paymentService.Packages()})
}

// Checkout godoc
// POST /api/v1/payments/checkout
// Creates a pending payment and returns the gateway link to redirect to.
func (h *PaymentHandler) Checkout(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}

	var req model.CheckoutRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	resp, err := h.paymentService.Checkout(c.Request.Context(), claims.UserID, req.PackageType)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusCreated, resp)
}

// ListPayments godoc
// GET /api/v1/payments?page=&per_page=
func (h *PaymentHandler) ListPayments(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}

	page, perPage := pageParams(c)
	payments, pagination, err := h.paymentService.List(c.Request.Context(), claims.UserID, page, perPage)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	response.SuccessWithPagination(c, http.StatusOK, gin.H{"payments": payments}, pagination)
}

// GetEntitlement godoc
// GET /api/v1/payments/entitlement
func (h *PaymentHandler) GetEntitlement(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}

	entitlement, err := h.entitlementService.Status(c.Request.Context(), claims.UserID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"entitlement": entitlement})
}

// RetryPayment godoc
// POST /api/v1/payments/:payment_id/retry
// Starts a new payment with a new tx_ref for a failed or abandoned one.
func (h *PaymentHandler) RetryPayment(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	paymentID, ok := uuidParam(c, "payment_id")
	if !ok {
		return
	}

	resp, err := h.paymentService.Retry(c.Request.Context(), claims.UserID, paymentID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusCreated, resp)
}

// Callback godoc
// GET /api/v1/payments/callback?tx_ref=&status=&transaction_id=
// The gateway redirects the payer here. The payment is verified server-side
// and the browser is sent on to the frontend result page.
func (h *PaymentHandler) Callback(c *gin.Context) {
	txRef := c.Query("tx_ref")
	if txRef == "" {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
		return
	}

	target := url.Values{}
	payment, err := h.paymentService.Callback(c.Request.Context(), txRef)
	if err != nil {
		h.log.Error().Err(err).Str("tx_ref", txRef).Msg("Payment callback reconcile failed")
		target.Set("status", "error")
	} else {
		target.Set("status", string(payment.Status))
		target.Set("payment_id", payment.ID.String())
	}

	c.Redirect(http.StatusFound, h.publicBaseURL+"/payments/result?"+target.Encode())
}

// Webhook godoc
// POST /api/v1/payments/webhook
// Gateway notification. Authenticated by the verif-hash header.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	var payload webhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil || payload.Data.TxRef == "" {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
		return
	}

	payment, err := h.paymentService.HandleWebhook(c.Request.Context(), c.GetHeader(WebhookSignatureHeader), payload.Data.TxRef)
	if errors.Is(err, service.ErrPaymentNotFound) {
		// Acknowledge so the gateway stops redelivering a reference we never issued.
		h.log.Warn().
			Str("event", payload.Event).
			Str("tx_ref", payload.Data.TxRef).
			Msg("Webhook for unknown transaction ignored")
		response.Success(c, http.StatusOK, gin.H{"status": "ignored"})
		return
	}
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	h.log.Info().
		Str("event", payload.Event).
		Str("tx_ref", payload.Data.TxRef).
		Str("status", string(payment.Status)).
		Msg("Webhook processed")
	response.Success(c, http.StatusOK, gin.H{"status": payment.Status})
}

// RefundPayment godoc
// POST /api/v1/admin/payments/:payment_id/refund
func (h *PaymentHandler) RefundPayment(c *gin.Context) {
	paymentID, ok := uuidParam(c, "payment_id")
	if !ok {
		return
	}

	payment, err := h.paymentService.Refund(c.Request.Context(), paymentID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"payment": payment})
}
