package escrow

import (
	"context"
	"sort"

	"workledger/ledger"
)

// Reasons reported by CanRelease, in evaluation order.
const (
	ReasonNotFound           = "not found"
	ReasonNotPending         = "not pending"
	ReasonTimelockNotExpired = "timelock not expired"
)

// GetEscrow returns a point-in-time snapshot of the escrow, or nil when the
// account does not exist. Absence is not an error on the read path.
func (c *Coordinator) GetEscrow(ctx context.Context, escrowID ledger.AccountID) (*Escrow, error) {
	return c.readEscrow(ctx, escrowID)
}

// GetWorkOrder returns a point-in-time snapshot of the work order, or nil
// when the account does not exist.
func (c *Coordinator) GetWorkOrder(ctx context.Context, workOrderID ledger.AccountID) (*WorkOrder, error) {
	return c.readWorkOrder(ctx, workOrderID)
}

// GetUserEscrows lists escrows where the user appears as depositor,
// beneficiary, arbitrator or configured party, most recent first, truncated
// to limit. A non-positive limit returns an empty list.
func (c *Coordinator) GetUserEscrows(ctx context.Context, user ledger.Address, limit int) ([]UserEscrow, error) {
	gw, err := c.gateway()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []UserEscrow{}, nil
	}
	participant := user
	entries, err := gw.QueryAccounts(ctx, c.program, []ledger.Filter{{
		Kind:        ledger.RecordEscrow,
		Participant: &participant,
	}})
	if err != nil {
		return nil, ledger.WrapGatewayError("query user escrows", user.String(), err)
	}

	escrows := make([]UserEscrow, 0, len(entries))
	for _, entry := range entries {
		rec, err := ledger.DecodeEscrow(entry.Raw)
		if err != nil {
			return nil, err
		}
		esc, err := escrowFromRecord(entry.ID, rec)
		if err != nil {
			return nil, err
		}
		escrows = append(escrows, UserEscrow{ID: entry.ID, Escrow: esc})
	}

	sort.SliceStable(escrows, func(i, j int) bool {
		return escrows[i].Escrow.CreatedAt > escrows[j].Escrow.CreatedAt
	})
	if len(escrows) > limit {
		escrows = escrows[:limit]
	}
	return escrows, nil
}

// CanRelease evaluates the manual release preconditions in order: the escrow
// must exist, be Pending, and any timelock must have elapsed. The first
// failing rule is reported as the reason.
func (c *Coordinator) CanRelease(ctx context.Context, escrowID ledger.AccountID) (ReleaseCheck, error) {
	esc, err := c.readEscrow(ctx, escrowID)
	if err != nil {
		return ReleaseCheck{}, err
	}
	if esc == nil {
		return ReleaseCheck{Reason: ReasonNotFound}, nil
	}
	if esc.State != EscrowPending {
		return ReleaseCheck{Reason: ReasonNotPending}, nil
	}
	if esc.HasTimelock() && c.now() < esc.ReleaseAt {
		return ReleaseCheck{Reason: ReasonTimelockNotExpired}, nil
	}
	return ReleaseCheck{CanRelease: true}, nil
}
