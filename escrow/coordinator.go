package escrow

import (
	"context"
	"fmt"
	"time"

	"workledger/ledger"
)

// Coordinator drives the work-order escrow protocol against a remote ledger.
// It holds no authoritative state: every mutating decision re-reads ledger
// accounts first, and the ledger's own state-transition checks arbitrate
// concurrent submissions. The coordinator performs no retries and no
// deduplication; callers retry with their own unique order and delivery
// identifiers.
type Coordinator struct {
	gw      ledger.Gateway
	program ledger.Address
	emitter Emitter
	nowFn   func() int64
}

// New wires a coordinator to the ledger gateway and the escrow program
// address.
func New(gw ledger.Gateway, program ledger.Address) *Coordinator {
	return &Coordinator{
		gw:      gw,
		program: program,
		emitter: NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (c *Coordinator) SetEmitter(emitter Emitter) {
	if emitter == nil {
		c.emitter = NoopEmitter{}
		return
	}
	c.emitter = emitter
}

// SetNowFunc overrides the time source, primarily for deterministic tests.
func (c *Coordinator) SetNowFunc(now func() int64) {
	if now == nil {
		c.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	c.nowFn = now
}

func (c *Coordinator) emit(evt Event) {
	if c == nil || c.emitter == nil {
		return
	}
	c.emitter.Emit(evt)
}

func (c *Coordinator) now() int64 {
	if c == nil || c.nowFn == nil {
		return time.Now().Unix()
	}
	return c.nowFn()
}

func (c *Coordinator) gateway() (ledger.Gateway, error) {
	if c == nil || c.gw == nil {
		return nil, errNilGateway
	}
	return c.gw, nil
}

// readEscrow fetches and decodes an escrow account. Missing accounts yield
// (nil, nil).
func (c *Coordinator) readEscrow(ctx context.Context, id ledger.AccountID) (*Escrow, error) {
	gw, err := c.gateway()
	if err != nil {
		return nil, err
	}
	raw, err := gw.ReadAccount(ctx, id)
	if err != nil {
		return nil, ledger.WrapGatewayError("read escrow", id.String(), err)
	}
	if raw == nil {
		return nil, nil
	}
	rec, err := ledger.DecodeEscrow(raw)
	if err != nil {
		return nil, err
	}
	return escrowFromRecord(id, rec)
}

// requireEscrow is readEscrow with a mandatory result.
func (c *Coordinator) requireEscrow(ctx context.Context, id ledger.AccountID) (*Escrow, error) {
	esc, err := c.readEscrow(ctx, id)
	if err != nil {
		return nil, err
	}
	if esc == nil {
		return nil, fmt.Errorf("%w: escrow %s", ErrNotFound, id)
	}
	return esc, nil
}

func (c *Coordinator) readWorkOrder(ctx context.Context, account ledger.AccountID) (*WorkOrder, error) {
	gw, err := c.gateway()
	if err != nil {
		return nil, err
	}
	raw, err := gw.ReadAccount(ctx, account)
	if err != nil {
		return nil, ledger.WrapGatewayError("read work order", account.String(), err)
	}
	if raw == nil {
		return nil, nil
	}
	rec, err := ledger.DecodeWorkOrder(raw)
	if err != nil {
		return nil, err
	}
	return workOrderFromRecord(account, rec)
}

func (c *Coordinator) requireWorkOrder(ctx context.Context, account ledger.AccountID) (*WorkOrder, error) {
	order, err := c.readWorkOrder(ctx, account)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("%w: work order %s", ErrNotFound, account)
	}
	return order, nil
}

func (c *Coordinator) readMultiParty(ctx context.Context, escrowID ledger.AccountID) (*ledger.MultiPartyRecord, error) {
	gw, err := c.gateway()
	if err != nil {
		return nil, err
	}
	account := ledger.MultiPartyAccount(c.program, escrowID)
	raw, err := gw.ReadAccount(ctx, account)
	if err != nil {
		return nil, ledger.WrapGatewayError("read multi-party config", account.String(), err)
	}
	if raw == nil {
		return nil, nil
	}
	return ledger.DecodeMultiParty(raw)
}

func (c *Coordinator) readConditions(ctx context.Context, escrowID ledger.AccountID) ([]ReleaseCondition, error) {
	gw, err := c.gateway()
	if err != nil {
		return nil, err
	}
	account := ledger.ConditionAccount(c.program, escrowID)
	raw, err := gw.ReadAccount(ctx, account)
	if err != nil {
		return nil, ledger.WrapGatewayError("read release conditions", account.String(), err)
	}
	if raw == nil {
		return nil, nil
	}
	rec, err := ledger.DecodeConditionSet(raw)
	if err != nil {
		return nil, err
	}
	conditions := make([]ReleaseCondition, 0, len(rec.Conditions))
	for _, cr := range rec.Conditions {
		cond, err := conditionFromRecord(cr)
		if err != nil {
			return nil, err
		}
		conditions = append(conditions, cond)
	}
	return conditions, nil
}

func (c *Coordinator) readEvidence(ctx context.Context, escrowID ledger.AccountID) ([]DisputeEvidence, error) {
	gw, err := c.gateway()
	if err != nil {
		return nil, err
	}
	account := ledger.EvidenceAccount(c.program, escrowID)
	raw, err := gw.ReadAccount(ctx, account)
	if err != nil {
		return nil, ledger.WrapGatewayError("read dispute evidence", account.String(), err)
	}
	if raw == nil {
		return nil, nil
	}
	rec, err := ledger.DecodeEvidenceSet(raw)
	if err != nil {
		return nil, err
	}
	entries := make([]DisputeEvidence, 0, len(rec.Entries))
	for _, e := range rec.Entries {
		entries = append(entries, DisputeEvidence{
			Submitter:   e.Submitter,
			Kind:        e.Kind,
			Data:        e.Data,
			SubmittedAt: int64(e.SubmittedAt),
		})
	}
	return entries, nil
}

func (c *Coordinator) readApprovals(ctx context.Context, escrowID ledger.AccountID) ([]ledger.Address, error) {
	gw, err := c.gateway()
	if err != nil {
		return nil, err
	}
	account := ledger.ApprovalAccount(c.program, escrowID)
	raw, err := gw.ReadAccount(ctx, account)
	if err != nil {
		return nil, ledger.WrapGatewayError("read release approvals", account.String(), err)
	}
	if raw == nil {
		return nil, nil
	}
	rec, err := ledger.DecodeApprovalSet(raw)
	if err != nil {
		return nil, err
	}
	return rec.Approvals, nil
}

// arbitratorFor reports whether addr holds arbitration authority over the
// escrow, either directly on the escrow record or through a multi-party
// configuration.
func (c *Coordinator) arbitratorFor(ctx context.Context, esc *Escrow, addr ledger.Address) (bool, error) {
	if esc == nil || addr.IsZero() {
		return false, nil
	}
	if !esc.Arbitrator.IsZero() && esc.Arbitrator == addr {
		return true, nil
	}
	cfg, err := c.readMultiParty(ctx, esc.ID)
	if err != nil {
		return false, err
	}
	if cfg == nil {
		return false, nil
	}
	if !cfg.Arbitrator.IsZero() && cfg.Arbitrator == addr {
		return true, nil
	}
	for _, p := range cfg.Parties {
		if p.Addr == addr && PartyRole(p.Role) == RoleArbitrator {
			return true, nil
		}
	}
	return false, nil
}
