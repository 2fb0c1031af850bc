package settlement

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"rechargehub/internal/ledger"
	"rechargehub/internal/logger"
	"rechargehub/internal/plan"
	"rechargehub/internal/user"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestMain(m *testing.M) {
	logger.Init()

	code := m.Run()
	os.Exit(code)
}

// Mock repositories
type MockLedgerRepo struct{ mock.Mock }
type MockPlanRepo struct{ mock.Mock }
type MockUserRepo struct{ mock.Mock }
type MockGateway struct{ mock.Mock }

func (m *MockLedgerRepo) CreateWallet(ctx context.Context, userID int) (*ledger.Wallet, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Wallet), args.Error(1)
}

func (m *MockLedgerRepo) GetWallet(ctx context.Context, userID int) (*ledger.Wallet, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Wallet), args.Error(1)
}

func (m *MockLedgerRepo) AppendEntry(ctx context.Context, userID int, kind ledger.EntryKind, amountCents int64, payload ledger.EntryPayload) (*ledger.Entry, error) {
	args := m.Called(ctx, userID, kind, amountCents, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Entry), args.Error(1)
}

func (m *MockLedgerRepo) RecordExternal(ctx context.Context, userID int, kind ledger.EntryKind, amountCents int64, payload ledger.EntryPayload) (*ledger.Entry, error) {
	args := m.Called(ctx, userID, kind, amountCents, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Entry), args.Error(1)
}

func (m *MockLedgerRepo) ListEntries(ctx context.Context, userID int, limit, offset int) ([]ledger.Entry, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ledger.Entry), args.Error(1)
}

func (m *MockLedgerRepo) StatsByKind(ctx context.Context) ([]ledger.KindTotal, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ledger.KindTotal), args.Error(1)
}

func (m *MockLedgerRepo) RecentEntriesWithUsers(ctx context.Context, limit int) ([]ledger.EntryWithUser, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ledger.EntryWithUser), args.Error(1)
}

func (m *MockPlanRepo) Create(ctx context.Context, operator string, amountCents int64, validity, description string, benefits []string, planType string) (*plan.Plan, error) {
	args := m.Called(ctx, operator, amountCents, validity, description, benefits, planType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*plan.Plan), args.Error(1)
}

func (m *MockPlanRepo) GetByID(ctx context.Context, id int) (*plan.Plan, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*plan.Plan), args.Error(1)
}

func (m *MockPlanRepo) List(ctx context.Context, operator, planType string) ([]plan.Plan, error) {
	args := m.Called(ctx, operator, planType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]plan.Plan), args.Error(1)
}

func (m *MockPlanRepo) Update(ctx context.Context, id int, operator string, amountCents int64, validity, description string, benefits []string, planType string) (*plan.Plan, error) {
	args := m.Called(ctx, id, operator, amountCents, validity, description, benefits, planType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*plan.Plan), args.Error(1)
}

func (m *MockPlanRepo) Delete(ctx context.Context, id int) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockUserRepo) Create(ctx context.Context, name, email, phone, passwordHash, role string) (*user.User, error) {
	args := m.Called(ctx, name, email, phone, passwordHash, role)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*user.User), args.Error(1)
}

func (m *MockUserRepo) FindByEmail(ctx context.Context, email string) (*user.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*user.User), args.Error(1)
}

func (m *MockUserRepo) FindByID(ctx context.Context, id int) (*user.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*user.User), args.Error(1)
}

func (m *MockUserRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserRepo) CountUsers(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockGateway) Charge(ctx context.Context, amountCents int64) error {
	return m.Called(ctx, amountCents).Error(0)
}

func int64Ptr(v int64) *int64 { return &v }

func newTestService(ledgerRepo ledger.Repository, planRepo plan.Repository, userRepo user.Repository, gateway Gateway) Service {
	return NewService(ledgerRepo, planRepo, userRepo, gateway, nil)
}

func TestProcessRecharge_WalletSuccess(t *testing.T) {
	ledgerRepo := new(MockLedgerRepo)
	gateway := new(MockGateway)
	svc := newTestService(ledgerRepo, new(MockPlanRepo), new(MockUserRepo), gateway)

	entry := &ledger.Entry{
		TxnID:         "txn-1",
		Kind:          ledger.KindRechargeDebit,
		AmountCents:   19900,
		Status:        ledger.StatusSuccess,
		PhoneNumber:   "9876543210",
		Operator:      "jio_prepaid",
		PaymentMethod: "wallet",
		BalanceAfter:  int64Ptr(80100),
	}
	ledgerRepo.On("AppendEntry", mock.Anything, 1, ledger.KindRechargeDebit, int64(19900), mock.Anything).
		Return(entry, nil)

	result, err := svc.ProcessRecharge(context.Background(), 1, RechargeRequest{
		PhoneNumber:   "9876543210",
		Operator:      "jio_prepaid",
		AmountCents:   19900,
		PaymentMethod: "wallet",
	})

	assert.NoError(t, err)
	assert.Equal(t, ledger.StatusSuccess, result.Status)
	assert.Equal(t, int64(19900), result.AmountCents)
	assert.NotNil(t, result.BalanceCents)
	assert.Equal(t, int64(80100), *result.BalanceCents)

	// No gateway involvement on the wallet path.
	gateway.AssertNotCalled(t, "Charge", mock.Anything, mock.Anything)
	ledgerRepo.AssertExpectations(t)
}

func TestProcessRecharge_InsufficientBalance(t *testing.T) {
	ledgerRepo := new(MockLedgerRepo)
	svc := newTestService(ledgerRepo, new(MockPlanRepo), new(MockUserRepo), new(MockGateway))

	ledgerRepo.On("AppendEntry", mock.Anything, 1, ledger.KindRechargeDebit, int64(19900), mock.Anything).
		Return(nil, ledger.ErrInsufficientBalance)

	result, err := svc.ProcessRecharge(context.Background(), 1, RechargeRequest{
		PhoneNumber:   "9876543210",
		Operator:      "jio_prepaid",
		AmountCents:   19900,
		PaymentMethod: "wallet",
	})

	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)
	assert.Nil(t, result)
}

func TestProcessRecharge_CardNeverTouchesWallet(t *testing.T) {
	ledgerRepo := new(MockLedgerRepo)
	gateway := new(MockGateway)
	svc := newTestService(ledgerRepo, new(MockPlanRepo), new(MockUserRepo), gateway)

	gateway.On("Charge", mock.Anything, int64(19900)).Return(nil)
	entry := &ledger.Entry{
		TxnID:         "txn-2",
		Kind:          ledger.KindRechargeDebit,
		AmountCents:   19900,
		Status:        ledger.StatusSuccess,
		PaymentMethod: "card",
	}
	ledgerRepo.On("RecordExternal", mock.Anything, 1, ledger.KindRechargeDebit, int64(19900), mock.Anything).
		Return(entry, nil)

	result, err := svc.ProcessRecharge(context.Background(), 1, RechargeRequest{
		PhoneNumber:   "9876543210",
		Operator:      "jio_prepaid",
		AmountCents:   19900,
		PaymentMethod: "card",
	})

	assert.NoError(t, err)
	assert.Nil(t, result.BalanceCents)

	// The card path must never read or mutate the wallet.
	ledgerRepo.AssertNotCalled(t, "AppendEntry", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	ledgerRepo.AssertNotCalled(t, "GetWallet", mock.Anything, mock.Anything)
	gateway.AssertExpectations(t)
}

func TestProcessRecharge_CardGatewayDeclined(t *testing.T) {
	ledgerRepo := new(MockLedgerRepo)
	gateway := new(MockGateway)
	svc := newTestService(ledgerRepo, new(MockPlanRepo), new(MockUserRepo), gateway)

	declined := errors.New("card declined")
	gateway.On("Charge", mock.Anything, int64(19900)).Return(declined)

	_, err := svc.ProcessRecharge(context.Background(), 1, RechargeRequest{
		PhoneNumber:   "9876543210",
		Operator:      "jio_prepaid",
		AmountCents:   19900,
		PaymentMethod: "card",
	})

	assert.ErrorIs(t, err, declined)
	// A declined charge leaves no ledger trace.
	ledgerRepo.AssertNotCalled(t, "RecordExternal", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessRecharge_PlanPriceWins(t *testing.T) {
	ledgerRepo := new(MockLedgerRepo)
	planRepo := new(MockPlanRepo)
	svc := newTestService(ledgerRepo, planRepo, new(MockUserRepo), new(MockGateway))

	planID := 3
	planRepo.On("GetByID", mock.Anything, 3).Return(&plan.Plan{
		ID:          3,
		Operator:    "jio_prepaid",
		AmountCents: 23900,
		Description: "2GB/day for 28 days",
	}, nil)

	entry := &ledger.Entry{
		TxnID:         "txn-3",
		Kind:          ledger.KindRechargeDebit,
		AmountCents:   23900,
		Status:        ledger.StatusSuccess,
		PaymentMethod: "wallet",
		BalanceAfter:  int64Ptr(100),
	}
	// The catalog price is debited, not the client-submitted amount.
	ledgerRepo.On("AppendEntry", mock.Anything, 1, ledger.KindRechargeDebit, int64(23900), mock.Anything).
		Return(entry, nil)

	result, err := svc.ProcessRecharge(context.Background(), 1, RechargeRequest{
		PhoneNumber:   "9876543210",
		Operator:      "jio_prepaid",
		PlanID:        &planID,
		AmountCents:   1, // ignored
		PaymentMethod: "wallet",
	})

	assert.NoError(t, err)
	assert.Equal(t, int64(23900), result.AmountCents)
	ledgerRepo.AssertExpectations(t)
}

func TestProcessRecharge_PlanNotFound(t *testing.T) {
	planRepo := new(MockPlanRepo)
	svc := newTestService(new(MockLedgerRepo), planRepo, new(MockUserRepo), new(MockGateway))

	planID := 99
	planRepo.On("GetByID", mock.Anything, 99).Return(nil, plan.ErrPlanNotFound)

	_, err := svc.ProcessRecharge(context.Background(), 1, RechargeRequest{
		PhoneNumber:   "9876543210",
		Operator:      "jio_prepaid",
		PlanID:        &planID,
		PaymentMethod: "wallet",
	})

	assert.ErrorIs(t, err, plan.ErrPlanNotFound)
}

func TestProcessRecharge_UnknownPaymentMethod(t *testing.T) {
	ledgerRepo := new(MockLedgerRepo)
	svc := newTestService(ledgerRepo, new(MockPlanRepo), new(MockUserRepo), new(MockGateway))

	_, err := svc.ProcessRecharge(context.Background(), 1, RechargeRequest{
		PhoneNumber:   "9876543210",
		Operator:      "jio_prepaid",
		AmountCents:   19900,
		PaymentMethod: "upi",
	})

	assert.ErrorIs(t, err, ErrUnknownPaymentMethod)
	ledgerRepo.AssertNotCalled(t, "AppendEntry", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessRecharge_InvalidAmount(t *testing.T) {
	ledgerRepo := new(MockLedgerRepo)
	svc := newTestService(ledgerRepo, new(MockPlanRepo), new(MockUserRepo), new(MockGateway))

	_, err := svc.ProcessRecharge(context.Background(), 1, RechargeRequest{
		PhoneNumber:   "9876543210",
		Operator:      "jio_prepaid",
		AmountCents:   0,
		PaymentMethod: "wallet",
	})

	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
	ledgerRepo.AssertNotCalled(t, "AppendEntry", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessRecharge_DuplicateIdempotencyKey(t *testing.T) {
	ledgerRepo := new(MockLedgerRepo)
	svc := newTestService(ledgerRepo, new(MockPlanRepo), new(MockUserRepo), new(MockGateway))

	ledgerRepo.On("AppendEntry", mock.Anything, 1, ledger.KindRechargeDebit, int64(19900), mock.MatchedBy(func(p ledger.EntryPayload) bool {
		return p.TxnID == "replayed-key"
	})).Return(nil, ledger.ErrDuplicateTransaction)

	_, err := svc.ProcessRecharge(context.Background(), 1, RechargeRequest{
		PhoneNumber:    "9876543210",
		Operator:       "jio_prepaid",
		AmountCents:    19900,
		PaymentMethod:  "wallet",
		IdempotencyKey: "replayed-key",
	})

	assert.ErrorIs(t, err, ledger.ErrDuplicateTransaction)
}

func TestProcessTopUp_Success(t *testing.T) {
	ledgerRepo := new(MockLedgerRepo)
	gateway := new(MockGateway)
	svc := newTestService(ledgerRepo, new(MockPlanRepo), new(MockUserRepo), gateway)

	gateway.On("Charge", mock.Anything, int64(30000)).Return(nil)
	entry := &ledger.Entry{
		TxnID:         "txn-4",
		Kind:          ledger.KindWalletCredit,
		AmountCents:   30000,
		Status:        ledger.StatusSuccess,
		PaymentMethod: "card",
		BalanceAfter:  int64Ptr(80000),
	}
	ledgerRepo.On("AppendEntry", mock.Anything, 1, ledger.KindWalletCredit, int64(30000), mock.Anything).
		Return(entry, nil)

	result, err := svc.ProcessTopUp(context.Background(), 1, TopUpRequest{
		AmountCents:   30000,
		PaymentMethod: "card",
	})

	assert.NoError(t, err)
	assert.Equal(t, ledger.KindWalletCredit, result.Kind)
	assert.Equal(t, int64(80000), *result.BalanceCents)
}

func TestProcessTopUp_NegativeAmount(t *testing.T) {
	ledgerRepo := new(MockLedgerRepo)
	svc := newTestService(ledgerRepo, new(MockPlanRepo), new(MockUserRepo), new(MockGateway))

	_, err := svc.ProcessTopUp(context.Background(), 1, TopUpRequest{
		AmountCents:   -50,
		PaymentMethod: "card",
	})

	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
	ledgerRepo.AssertNotCalled(t, "AppendEntry", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessTopUp_AccountNotFound(t *testing.T) {
	ledgerRepo := new(MockLedgerRepo)
	gateway := new(MockGateway)
	svc := newTestService(ledgerRepo, new(MockPlanRepo), new(MockUserRepo), gateway)

	gateway.On("Charge", mock.Anything, int64(1000)).Return(nil)
	ledgerRepo.On("AppendEntry", mock.Anything, 99, ledger.KindWalletCredit, int64(1000), mock.Anything).
		Return(nil, ledger.ErrAccountNotFound)

	_, err := svc.ProcessTopUp(context.Background(), 99, TopUpRequest{AmountCents: 1000})

	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

// fakeLedger serializes check-then-debit per account the way the row lock
// does in postgres. It lets the exactly-one-winner property be exercised
// in-process.
type fakeLedger struct {
	MockLedgerRepo
	mu      sync.Mutex
	balance int64
	entries []ledger.Entry
}

func (f *fakeLedger) AppendEntry(ctx context.Context, userID int, kind ledger.EntryKind, amountCents int64, payload ledger.EntryPayload) (*ledger.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delta := amountCents
	if kind != ledger.KindWalletCredit {
		delta = -amountCents
	}
	newBalance := f.balance + delta
	if newBalance < 0 {
		return nil, ledger.ErrInsufficientBalance
	}
	f.balance = newBalance

	entry := ledger.Entry{
		Kind:          kind,
		AmountCents:   amountCents,
		Status:        ledger.StatusSuccess,
		PaymentMethod: payload.PaymentMethod,
		BalanceAfter:  int64Ptr(newBalance),
	}
	f.entries = append(f.entries, entry)
	return &entry, nil
}

func TestProcessRecharge_ConcurrentDebitsOneWinner(t *testing.T) {
	fake := &fakeLedger{balance: 30000}
	svc := newTestService(fake, new(MockPlanRepo), new(MockUserRepo), new(MockGateway))

	req := RechargeRequest{
		PhoneNumber:   "9876543210",
		Operator:      "jio_prepaid",
		AmountCents:   19900,
		PaymentMethod: "wallet",
	}

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.ProcessRecharge(context.Background(), 1, req)
		}(i)
	}
	wg.Wait()

	var successes, insufficient int
	for _, err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ledger.ErrInsufficientBalance):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, insufficient)
	assert.Equal(t, int64(10100), fake.balance)
	assert.Len(t, fake.entries, 1)

	// Balance conservation: stored balance equals start plus signed entries.
	var sum int64 = 30000
	for _, e := range fake.entries {
		if e.Kind == ledger.KindWalletCredit {
			sum += e.AmountCents
		} else {
			sum -= e.AmountCents
		}
	}
	assert.Equal(t, fake.balance, sum)
}
