package memstore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/roadready/theory-backend/internal/gateway"
	"github.com/roadready/theory-backend/internal/model"
	"github.com/roadready/theory-backend/internal/repository"
	"github.com/shopspring/decimal"
)

// Payments is an in-memory payments table.
type Payments struct {
	mu   sync.Mutex
	rows map[uuid.UUID]model.Payment
}

func NewPayments() *Payments {
	return &Payments{rows: make(map[uuid.UUID]model.Payment)}
}

// Grant inserts a completed payment for userID valid until validUntil.
func (s *Payments) Grant(userID int, pkg model.PackageType, validUntil time.Time) *model.Payment {
	p, _ := model.LookupPackage(pkg)
	now := validUntil.Add(-time.Hour)
	payment := &model.Payment{
		ID:          uuid.New(),
		UserID:      userID,
		Amount:      p.Price,
		Currency:    "NGN",
		PackageType: pkg,
		ValidUntil:  validUntil,
		Status:      model.PaymentStatusCompleted,
		Metadata:    model.PaymentMetadata{TxRef: uuid.NewString(), Journey: model.NewJourney(now)},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_ = s.Create(context.Background(), payment)
	return payment
}

func (s *Payments) Create(_ context.Context, p *model.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.rows {
		if existing.Metadata.TxRef == p.Metadata.TxRef {
			return errors.New("duplicate tx_ref")
		}
	}
	s.rows[p.ID] = clonePayment(*p)
	return nil
}

func (s *Payments) GetByID(_ context.Context, id uuid.UUID) (*model.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.rows[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	out := clonePayment(p)
	return &out, nil
}

func (s *Payments) GetByTxRef(_ context.Context, txRef string) (*model.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.rows {
		if p.Metadata.TxRef == txRef {
			out := clonePayment(p)
			return &out, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (s *Payments) ListByUser(_ context.Context, userID, limit, offset int) ([]model.Payment, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Payment
	for _, p := range s.rows {
		if p.UserID == userID {
			out = append(out, clonePayment(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := len(out)
	if offset >= total {
		return nil, total, nil
	}
	return out[offset:min(offset+limit, total)], total, nil
}

func (s *Payments) FindActive(_ context.Context, userID int, now time.Time) (*model.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findActiveLocked(userID, now)
}

func (s *Payments) findActiveLocked(userID int, now time.Time) (*model.Payment, error) {
	var best *model.Payment
	for _, p := range s.rows {
		if p.UserID != userID || !p.GrantsAccessAt(now) {
			continue
		}
		if best == nil || p.ValidUntil.After(best.ValidUntil) {
			c := clonePayment(p)
			best = &c
		}
	}
	if best == nil {
		return nil, pgx.ErrNoRows
	}
	return best, nil
}

func (s *Payments) Transition(_ context.Context, id uuid.UUID, from, to model.PaymentStatus, meta model.PaymentMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.rows[id]
	if !ok || p.Status != from {
		return repository.ErrConcurrentUpdate
	}
	p.Status = to
	p.Metadata = meta
	p.UpdatedAt = time.Now()
	s.rows[id] = clonePayment(p)
	return nil
}

func (s *Payments) ApplyJourneyEvent(_ context.Context, ev model.JourneyEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	active, err := s.findActiveLocked(ev.UserID, ev.OccurredAt)
	if err != nil {
		return err
	}
	p := s.rows[active.ID]
	p.Metadata.Journey.Apply(ev)
	s.rows[p.ID] = p
	return nil
}

func clonePayment(p model.Payment) model.Payment {
	stamps := make(map[model.JourneyStage]time.Time, len(p.Metadata.Journey.StageTimestamps))
	for k, v := range p.Metadata.Journey.StageTimestamps {
		stamps[k] = v
	}
	p.Metadata.Journey.StageTimestamps = stamps
	return p
}

// Gateway is a scripted payment gateway.
type Gateway struct {
	mu sync.Mutex
	// Outcomes maps tx_ref to the verification Verify returns. A missing
	// entry reports gateway.ErrTransactionNotFound.
	Outcomes    map[string]gateway.Verification
	InitiateErr error
	Secret      string

	Initiated   []gateway.InitiateRequest
	VerifyCalls int
	Refunds     []string
}

func NewGateway() *Gateway {
	return &Gateway{Outcomes: make(map[string]gateway.Verification), Secret: "hook-secret"}
}

func (g *Gateway) Initiate(_ context.Context, req gateway.InitiateRequest) (*gateway.InitiateResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.InitiateErr != nil {
		return nil, g.InitiateErr
	}
	g.Initiated = append(g.Initiated, req)
	return &gateway.InitiateResult{Link: "https://checkout.test/pay/" + req.TxRef, TxRef: req.TxRef}, nil
}

func (g *Gateway) Verify(_ context.Context, txRef string) (*gateway.Verification, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.VerifyCalls++
	v, ok := g.Outcomes[txRef]
	if !ok {
		return nil, gateway.ErrTransactionNotFound
	}
	v.TxRef = txRef
	return &v, nil
}

func (g *Gateway) Refund(_ context.Context, transactionID string, _ decimal.Decimal) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Refunds = append(g.Refunds, transactionID)
	return nil
}

func (g *Gateway) ValidWebhookSignature(header string) bool {
	return header != "" && header == g.Secret
}

// Succeed scripts a successful verification of amount for txRef.
func (g *Gateway) Succeed(txRef string, amount decimal.Decimal) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Outcomes[txRef] = gateway.Verification{
		TransactionID: "4242",
		Status:        gateway.StatusSuccessful,
		Amount:        amount,
		Currency:      "NGN",
		Method:        "card",
	}
}

// Fail scripts a declined verification for txRef.
func (g *Gateway) Fail(txRef, reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Outcomes[txRef] = gateway.Verification{
		TransactionID: "4243",
		Status:        gateway.StatusFailed,
		Currency:      "NGN",
		Reason:        reason,
	}
}
