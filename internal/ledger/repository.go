package ledger

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var (
	ErrAccountNotFound      = errors.New("account not found")
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrInvalidAmount        = errors.New("amount must be positive")
	ErrDuplicateTransaction = errors.New("transaction id already committed")
)

const entryColumns = `id, wallet_id, txn_id, kind, amount_cents, status, phone_number, operator, plan_id, description, payment_method, balance_after, created_at`

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateWallet(ctx context.Context, userID int) (*Wallet, error) {
	w := &Wallet{}
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO wallets (user_id)
		 VALUES ($1)
		 RETURNING id, user_id, balance_cents, currency, created_at, updated_at`,
		userID,
	).StructScan(w)
	if err != nil {
		return nil, err
	}

	return w, nil
}

func (r *repository) GetWallet(ctx context.Context, userID int) (*Wallet, error) {
	w := &Wallet{}
	err := r.db.GetContext(ctx, w,
		`SELECT id, user_id, balance_cents, currency, created_at, updated_at
		 FROM wallets
		 WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	return w, nil
}

// AppendEntry applies one wallet-funded monetary event: it locks the wallet
// row, checks the debit against the current balance, updates the balance and
// inserts the entry in a single transaction. Concurrent settlements against
// the same wallet serialize on the row lock, so two debits can never both
// pass the funds check against a stale balance.
func (r *repository) AppendEntry(ctx context.Context, userID int, kind EntryKind, amountCents int64, payload EntryPayload) (*Entry, error) {
	if amountCents <= 0 {
		return nil, ErrInvalidAmount
	}

	txnID := payload.TxnID
	if txnID == "" {
		txnID = uuid.NewString()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var w Wallet
	err = tx.QueryRowxContext(ctx,
		`SELECT id, user_id, balance_cents, currency, created_at, updated_at
		 FROM wallets
		 WHERE user_id = $1
		 FOR UPDATE`,
		userID,
	).StructScan(&w)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	newBalance := w.BalanceCents + signedDelta(kind, amountCents)
	if newBalance < 0 {
		return nil, ErrInsufficientBalance
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE wallets
		 SET balance_cents = $1, updated_at = NOW()
		 WHERE id = $2`,
		newBalance, w.ID,
	)
	if err != nil {
		return nil, err
	}

	entry := &Entry{}
	err = tx.QueryRowxContext(ctx,
		`INSERT INTO ledger_entries (wallet_id, txn_id, kind, amount_cents, status, phone_number, operator, plan_id, description, payment_method, balance_after)
		 VALUES ($1, $2, $3, $4, 'success', $5, $6, $7, $8, $9, $10)
		 RETURNING `+entryColumns,
		w.ID, txnID, kind, amountCents,
		payload.PhoneNumber, payload.Operator, payload.PlanID, payload.Description, payload.PaymentMethod,
		newBalance,
	).StructScan(entry)
	if err != nil {
		// Rollback undoes the balance update, so a replayed txn id leaves
		// the wallet exactly as it was.
		if isUniqueViolation(err) {
			return nil, ErrDuplicateTransaction
		}
		return nil, err
	}

	return entry, tx.Commit()
}

// RecordExternal writes an entry whose funds never move through the wallet
// (card-funded recharges). The wallet balance is neither read nor locked;
// balance_after stays NULL.
func (r *repository) RecordExternal(ctx context.Context, userID int, kind EntryKind, amountCents int64, payload EntryPayload) (*Entry, error) {
	if amountCents <= 0 {
		return nil, ErrInvalidAmount
	}

	txnID := payload.TxnID
	if txnID == "" {
		txnID = uuid.NewString()
	}

	var walletID int
	err := r.db.GetContext(ctx, &walletID, `SELECT id FROM wallets WHERE user_id = $1`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	entry := &Entry{}
	err = r.db.QueryRowxContext(ctx,
		`INSERT INTO ledger_entries (wallet_id, txn_id, kind, amount_cents, status, phone_number, operator, plan_id, description, payment_method, balance_after)
		 VALUES ($1, $2, $3, $4, 'success', $5, $6, $7, $8, $9, NULL)
		 RETURNING `+entryColumns,
		walletID, txnID, kind, amountCents,
		payload.PhoneNumber, payload.Operator, payload.PlanID, payload.Description, payload.PaymentMethod,
	).StructScan(entry)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateTransaction
		}
		return nil, err
	}

	return entry, nil
}

func (r *repository) ListEntries(ctx context.Context, userID int, limit, offset int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	var walletID int
	err := r.db.GetContext(ctx, &walletID, `SELECT id FROM wallets WHERE user_id = $1`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []Entry{}, nil
		}
		return nil, err
	}

	var entries []Entry
	err = r.db.SelectContext(ctx, &entries, `
		SELECT `+entryColumns+`
		FROM ledger_entries
		WHERE wallet_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, walletID, limit, offset)
	if err != nil {
		return nil, err
	}

	return entries, nil
}

func (r *repository) StatsByKind(ctx context.Context) ([]KindTotal, error) {
	var totals []KindTotal
	err := r.db.SelectContext(ctx, &totals, `
		SELECT kind, payment_method, COUNT(*) AS count, COALESCE(SUM(amount_cents), 0) AS total_cents
		FROM ledger_entries
		WHERE status = 'success'
		GROUP BY kind, payment_method
		ORDER BY kind, payment_method
	`)
	if err != nil {
		return nil, err
	}

	return totals, nil
}

func (r *repository) RecentEntriesWithUsers(ctx context.Context, limit int) ([]EntryWithUser, error) {
	if limit <= 0 {
		limit = 100
	}

	var entries []EntryWithUser
	err := r.db.SelectContext(ctx, &entries, `
		SELECT e.id, e.wallet_id, e.txn_id, e.kind, e.amount_cents, e.status,
		       e.phone_number, e.operator, e.plan_id, e.description, e.payment_method,
		       e.balance_after, e.created_at,
		       u.name AS user_name, u.email AS user_email
		FROM ledger_entries e
		JOIN wallets w ON w.id = e.wallet_id
		JOIN users u ON u.id = w.user_id
		ORDER BY e.created_at DESC, e.id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}

	return entries, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
