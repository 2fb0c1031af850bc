package settlement

import "context"

// Gateway charges an externally funded payment source (card). The ledger
// never sees gateway traffic; a declined charge means no entry is written.
type Gateway interface {
	Charge(ctx context.Context, amountCents int64) error
}

// approveAllGateway stands in for a real card processor. Charges always
// succeed. A production integration would return a pending outcome and
// resolve it from a gateway callback.
type approveAllGateway struct{}

func NewApproveAllGateway() Gateway {
	return approveAllGateway{}
}

func (approveAllGateway) Charge(ctx context.Context, amountCents int64) error {
	return nil
}
