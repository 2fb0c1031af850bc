package settlement

import (
	"context"
	"errors"

	"rechargehub/internal/email"
	"rechargehub/internal/ledger"
	"rechargehub/internal/logger"
	"rechargehub/internal/metrics"
	"rechargehub/internal/plan"
	"rechargehub/internal/user"
)

const (
	MethodWallet = "wallet"
	MethodCard   = "card"
)

var ErrUnknownPaymentMethod = errors.New("payment method must be wallet or card")

type RechargeRequest struct {
	PhoneNumber   string `json:"phone_number" binding:"required,min=10,max=15"`
	Operator      string `json:"operator" binding:"required"`
	PlanID        *int   `json:"plan_id,omitempty"`
	AmountCents   int64  `json:"amount_cents"`
	PaymentMethod string `json:"payment_method" binding:"required"`

	// Optional Idempotency-Key header value; not part of the JSON body.
	IdempotencyKey string `json:"-"`
}

type TopUpRequest struct {
	AmountCents   int64  `json:"amount_cents" binding:"required"`
	PaymentMethod string `json:"payment_method"`

	IdempotencyKey string `json:"-"`
}

// Result is what the caller sees after a settlement: the committed entry's
// identity and, for wallet-funded operations, the balance it left behind.
type Result struct {
	TxnID         string             `json:"txn_id"`
	Kind          ledger.EntryKind   `json:"kind"`
	AmountCents   int64              `json:"amount_cents"`
	Status        ledger.EntryStatus `json:"status"`
	PaymentMethod string             `json:"payment_method"`
	Operator      string             `json:"operator,omitempty"`
	PhoneNumber   string             `json:"phone_number,omitempty"`
	BalanceCents  *int64             `json:"balance_cents,omitempty"`
}

type Stats struct {
	Totals    []ledger.KindTotal `json:"totals"`
	UserCount int                `json:"user_count"`
}

type Service interface {
	ProcessRecharge(ctx context.Context, userID int, req RechargeRequest) (*Result, error)
	ProcessTopUp(ctx context.Context, userID int, req TopUpRequest) (*Result, error)
	GetWallet(ctx context.Context, userID int) (*ledger.Wallet, error)
	GetHistory(ctx context.Context, userID int, limit, offset int) ([]ledger.Entry, error)
	GetStats(ctx context.Context) (*Stats, error)
	GetRecentTransactions(ctx context.Context, limit int) ([]ledger.EntryWithUser, error)
}

type service struct {
	ledgerRepo   ledger.Repository
	planRepo     plan.Repository
	userRepo     user.Repository
	gateway      Gateway
	emailService *email.Service
}

func NewService(
	ledgerRepo ledger.Repository,
	planRepo plan.Repository,
	userRepo user.Repository,
	gateway Gateway,
	emailService *email.Service,
) Service {
	return &service{
		ledgerRepo:   ledgerRepo,
		planRepo:     planRepo,
		userRepo:     userRepo,
		gateway:      gateway,
		emailService: emailService,
	}
}

func (s *service) ProcessRecharge(ctx context.Context, userID int, req RechargeRequest) (*Result, error) {
	if req.PaymentMethod != MethodWallet && req.PaymentMethod != MethodCard {
		metrics.RecordSettlementFailure("unknown_payment_method")
		return nil, ErrUnknownPaymentMethod
	}

	amount := req.AmountCents
	description := ""
	operator := req.Operator

	// When the caller names a catalog plan, the server-side price wins over
	// whatever amount was submitted.
	if req.PlanID != nil {
		p, err := s.planRepo.GetByID(ctx, *req.PlanID)
		if err != nil {
			return nil, err
		}
		amount = p.AmountCents
		description = p.Description
		operator = p.Operator
	}

	if amount <= 0 {
		metrics.RecordSettlementFailure("invalid_amount")
		return nil, ledger.ErrInvalidAmount
	}

	payload := ledger.EntryPayload{
		TxnID:         req.IdempotencyKey,
		PhoneNumber:   req.PhoneNumber,
		Operator:      operator,
		PlanID:        req.PlanID,
		Description:   description,
		PaymentMethod: req.PaymentMethod,
	}

	var entry *ledger.Entry
	var err error

	if req.PaymentMethod == MethodWallet {
		entry, err = s.ledgerRepo.AppendEntry(ctx, userID, ledger.KindRechargeDebit, amount, payload)
	} else {
		// Card recharges settle outside the wallet: charge the gateway,
		// then record the entry without touching the balance.
		if err := s.gateway.Charge(ctx, amount); err != nil {
			metrics.RecordSettlementFailure("gateway_declined")
			return nil, err
		}
		entry, err = s.ledgerRepo.RecordExternal(ctx, userID, ledger.KindRechargeDebit, amount, payload)
	}
	if err != nil {
		s.recordFailure(err)
		metrics.RecordRecharge(operator, req.PaymentMethod, "failed")
		return nil, err
	}

	metrics.RecordRecharge(operator, req.PaymentMethod, "success")
	s.sendRechargeEmail(ctx, userID, entry)

	return resultFromEntry(entry), nil
}

func (s *service) ProcessTopUp(ctx context.Context, userID int, req TopUpRequest) (*Result, error) {
	method := req.PaymentMethod
	if method == "" {
		method = MethodCard
	}
	if method != MethodCard {
		metrics.RecordSettlementFailure("unknown_payment_method")
		return nil, ErrUnknownPaymentMethod
	}

	if req.AmountCents <= 0 {
		metrics.RecordSettlementFailure("invalid_amount")
		return nil, ledger.ErrInvalidAmount
	}

	if err := s.gateway.Charge(ctx, req.AmountCents); err != nil {
		metrics.RecordSettlementFailure("gateway_declined")
		return nil, err
	}

	entry, err := s.ledgerRepo.AppendEntry(ctx, userID, ledger.KindWalletCredit, req.AmountCents, ledger.EntryPayload{
		TxnID:         req.IdempotencyKey,
		PaymentMethod: method,
	})
	if err != nil {
		s.recordFailure(err)
		return nil, err
	}

	metrics.RecordWalletTopUp()
	s.sendTopUpEmail(ctx, userID, entry)

	return resultFromEntry(entry), nil
}

func (s *service) GetWallet(ctx context.Context, userID int) (*ledger.Wallet, error) {
	return s.ledgerRepo.GetWallet(ctx, userID)
}

func (s *service) GetHistory(ctx context.Context, userID int, limit, offset int) ([]ledger.Entry, error) {
	return s.ledgerRepo.ListEntries(ctx, userID, limit, offset)
}

func (s *service) GetStats(ctx context.Context) (*Stats, error) {
	totals, err := s.ledgerRepo.StatsByKind(ctx)
	if err != nil {
		return nil, err
	}

	userCount, err := s.userRepo.CountUsers(ctx)
	if err != nil {
		return nil, err
	}

	return &Stats{Totals: totals, UserCount: userCount}, nil
}

func (s *service) GetRecentTransactions(ctx context.Context, limit int) ([]ledger.EntryWithUser, error) {
	return s.ledgerRepo.RecentEntriesWithUsers(ctx, limit)
}

func (s *service) recordFailure(err error) {
	switch {
	case errors.Is(err, ledger.ErrInsufficientBalance):
		metrics.RecordSettlementFailure("insufficient_balance")
	case errors.Is(err, ledger.ErrDuplicateTransaction):
		metrics.RecordSettlementFailure("duplicate_transaction")
	case errors.Is(err, ledger.ErrAccountNotFound):
		metrics.RecordSettlementFailure("account_not_found")
	}
}

func (s *service) sendRechargeEmail(ctx context.Context, userID int, entry *ledger.Entry) {
	if s.emailService == nil {
		return
	}

	u, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return
	}

	if err := s.emailService.SendRechargeConfirmation(ctx, u.Email, u.Name, entry.PhoneNumber, entry.Operator, entry.AmountCents, entry.TxnID); err != nil {
		logger.Errorf("Failed to queue recharge confirmation for user %d: %v", userID, err)
	}
}

func (s *service) sendTopUpEmail(ctx context.Context, userID int, entry *ledger.Entry) {
	if s.emailService == nil {
		return
	}

	u, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return
	}

	var balance int64
	if entry.BalanceAfter != nil {
		balance = *entry.BalanceAfter
	}

	if err := s.emailService.SendTopUpConfirmation(ctx, u.Email, u.Name, entry.AmountCents, balance, entry.TxnID); err != nil {
		logger.Errorf("Failed to queue top-up confirmation for user %d: %v", userID, err)
	}
}

func resultFromEntry(entry *ledger.Entry) *Result {
	return &Result{
		TxnID:         entry.TxnID,
		Kind:          entry.Kind,
		AmountCents:   entry.AmountCents,
		Status:        entry.Status,
		PaymentMethod: entry.PaymentMethod,
		Operator:      entry.Operator,
		PhoneNumber:   entry.PhoneNumber,
		BalanceCents:  entry.BalanceAfter,
	}
}
