package ledger

import "time"

type EntryKind string
type EntryStatus string

const (
	KindRechargeDebit EntryKind = "recharge_debit"
	KindWalletCredit  EntryKind = "wallet_credit"
	KindWalletDebit   EntryKind = "wallet_debit"

	StatusPending EntryStatus = "pending"
	StatusSuccess EntryStatus = "success"
	StatusFailed  EntryStatus = "failed"
)

// Wallet holds one user's stored balance. The balance changes only through
// AppendEntry, never by direct update.
type Wallet struct {
	ID           int       `db:"id" json:"id"`
	UserID       int       `db:"user_id" json:"user_id"`
	BalanceCents int64     `db:"balance_cents" json:"balance_cents"`
	Currency     string    `db:"currency" json:"currency"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Entry is one monetary event. AmountCents is a positive magnitude; the
// direction comes from Kind. BalanceAfter is NULL for externally funded
// entries that never touched the wallet.
type Entry struct {
	ID            int         `db:"id" json:"id"`
	WalletID      int         `db:"wallet_id" json:"wallet_id"`
	TxnID         string      `db:"txn_id" json:"txn_id"`
	Kind          EntryKind   `db:"kind" json:"kind"`
	AmountCents   int64       `db:"amount_cents" json:"amount_cents"`
	Status        EntryStatus `db:"status" json:"status"`
	PhoneNumber   string      `db:"phone_number" json:"phone_number,omitempty"`
	Operator      string      `db:"operator" json:"operator,omitempty"`
	PlanID        *int        `db:"plan_id" json:"plan_id,omitempty"`
	Description   string      `db:"description" json:"description,omitempty"`
	PaymentMethod string      `db:"payment_method" json:"payment_method"`
	BalanceAfter  *int64      `db:"balance_after" json:"balance_after,omitempty"`
	CreatedAt     time.Time   `db:"created_at" json:"created_at"`
}

// EntryPayload carries the descriptive fields of an entry. They are recorded
// for history and play no part in the balance invariant. TxnID, when set, is
// the caller's idempotency key; left empty a fresh id is generated.
type EntryPayload struct {
	TxnID         string
	PhoneNumber   string
	Operator      string
	PlanID        *int
	Description   string
	PaymentMethod string
}

type EntryWithUser struct {
	Entry
	UserName  string `db:"user_name" json:"user_name"`
	UserEmail string `db:"user_email" json:"user_email"`
}

type KindTotal struct {
	Kind          EntryKind `db:"kind" json:"kind"`
	PaymentMethod string    `db:"payment_method" json:"payment_method"`
	Count         int       `db:"count" json:"count"`
	TotalCents    int64     `db:"total_cents" json:"total_cents"`
}

// signedDelta converts an entry into its effect on the stored balance.
func signedDelta(kind EntryKind, amountCents int64) int64 {
	if kind == KindWalletCredit {
		return amountCents
	}
	return -amountCents
}
