package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PackageType identifies an access tier a user can buy.
type PackageType string

const (
	PackageSingle  PackageType = "single"
	PackageDaily   PackageType = "daily"
	PackageWeekly  PackageType = "weekly"
	PackageMonthly PackageType = "monthly"
)

// Package describes the price and validity of an access tier.
type Package struct {
	Type        PackageType     `json:"type"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
}

// Packages is the fixed catalogue, in display order.
var Packages = []Package{
	{Type: PackageSingle, Name: "Single session", Price: decimal.NewFromInt(500), Description: "1 hour of access"},
	{Type: PackageDaily, Name: "Day pass", Price: decimal.NewFromInt(1500), Description: "24 hours of access"},
	{Type: PackageWeekly, Name: "Week pass", Price: decimal.NewFromInt(5000), Description: "7 days of access"},
	{Type: PackageMonthly, Name: "Month pass", Price: decimal.NewFromInt(12000), Description: "1 month of access"},
}

// LookupPackage returns the catalogue entry for t.
func LookupPackage(t PackageType) (Package, bool) {
	for _, p := range Packages {
		if p.Type == t {
			return p, true
		}
	}
	return Package{}, false
}

// ValidUntil applies the package duration to from. Monthly adds one calendar month.
func (t PackageType) ValidUntil(from time.Time) time.Time {
	switch t {
	case PackageSingle:
		return from.Add(time.Hour)
	case PackageDaily:
		return from.AddDate(0, 0, 1)
	case PackageWeekly:
		return from.AddDate(0, 0, 7)
	case PackageMonthly:
		return from.AddDate(0, 1, 0)
	default:
		return from
	}
}

// PaymentStatus enumerates payment lifecycle states.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// Payment is a purchase of an access package.
type Payment struct {
	ID          uuid.UUID       `json:"id"`
	UserID      int             `json:"user_id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	PackageType PackageType     `json:"package_type"`
	ValidUntil  time.Time       `json:"valid_until"`
	Status      PaymentStatus   `json:"status"`
	Metadata    PaymentMetadata `json:"metadata"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// GrantsAccessAt reports whether the payment entitles its owner at now.
// A payment whose validity has passed never grants access.
func (p *Payment) GrantsAccessAt(now time.Time) bool {
	return p.Status == PaymentStatusCompleted && p.ValidUntil.After(now)
}

// PaymentMetadata is stored as JSONB next to the payment row.
type PaymentMetadata struct {
	TxRef                string     `json:"tx_ref"`
	GatewayTransactionID string     `json:"gateway_transaction_id,omitempty"`
	PaymentLink          string     `json:"payment_link,omitempty"`
	Method               string     `json:"method,omitempty"`
	FailureReason        string     `json:"failure_reason,omitempty"`
	VerifiedVia          string     `json:"verified_via,omitempty"`
	VerifiedAt           *time.Time `json:"verified_at,omitempty"`
	RetryOf              *uuid.UUID `json:"retry_of,omitempty"`
	RefundedAt           *time.Time `json:"refunded_at,omitempty"`
	Journey              Journey    `json:"journey"`
}

// CheckoutRequest starts a purchase.
type CheckoutRequest struct {
	PackageType PackageType `json:"package_type" binding:"required,oneof=single daily weekly monthly"`
}

// CheckoutResponse returns the created payment and the gateway link to redirect to.
type CheckoutResponse struct {
	Payment     Payment `json:"payment"`
	PaymentLink string  `json:"payment_link"`
}

// Entitlement summarises a user's current access.
type Entitlement struct {
	Active      bool         `json:"active"`
	PackageType *PackageType `json:"package_type,omitempty"`
	ValidUntil  *time.Time   `json:"valid_until,omitempty"`
	PaymentID   *uuid.UUID   `json:"payment_id,omitempty"`
}
