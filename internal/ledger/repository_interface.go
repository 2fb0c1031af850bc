package ledger

import "context"

type Repository interface {
	CreateWallet(ctx context.Context, userID int) (*Wallet, error)
	GetWallet(ctx context.Context, userID int) (*Wallet, error)
	AppendEntry(ctx context.Context, userID int, kind EntryKind, amountCents int64, payload EntryPayload) (*Entry, error)
	RecordExternal(ctx context.Context, userID int, kind EntryKind, amountCents int64, payload EntryPayload) (*Entry, error)
	ListEntries(ctx context.Context, userID int, limit, offset int) ([]Entry, error)
	StatsByKind(ctx context.Context) ([]KindTotal, error)
	RecentEntriesWithUsers(ctx context.Context, limit int) ([]EntryWithUser, error)
}
