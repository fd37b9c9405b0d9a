package escrow

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"workledger/ledger"
)

// FileDispute flags a pending escrow as contested. Only the depositor or
// beneficiary may file; the reason is recorded on the escrow account for the
// arbitrator.
func (c *Coordinator) FileDispute(ctx context.Context, caller ledger.Address, escrowID ledger.AccountID, reason string) (ledger.ConfirmationID, error) {
	gw, err := c.gateway()
	if err != nil {
		return "", err
	}
	trimmed := strings.TrimSpace(reason)
	if trimmed == "" {
		return "", fmt.Errorf("%w: dispute reason required", ErrInvalidInput)
	}
	if len(trimmed) > MaxReasonLength {
		return "", fmt.Errorf("%w: dispute reason exceeds %d bytes", ErrInvalidInput, MaxReasonLength)
	}

	esc, err := c.requireEscrow(ctx, escrowID)
	if err != nil {
		return "", err
	}
	if esc.State != EscrowPending {
		return "", fmt.Errorf("%w: escrow %s is %s", ErrInvalidState, escrowID, esc.State)
	}
	if caller != esc.Depositor && caller != esc.Beneficiary {
		return "", fmt.Errorf("%w: %s is neither depositor nor beneficiary", ErrUnauthorized, caller)
	}

	payload := ledger.FileDisputePayload{Escrow: escrowID, Caller: caller, Reason: trimmed}
	ins, err := ledger.NewInstruction(c.program, ledger.OpFileDispute, payload)
	if err != nil {
		return "", err
	}
	confirmation, err := gw.Submit(ctx, []ledger.Instruction{ins}, []ledger.Address{caller})
	if err != nil {
		return "", ledger.WrapGatewayError("file dispute", escrowID.String(), err)
	}

	c.emit(newDisputeFiledEvent(escrowID, caller, trimmed))
	return confirmation, nil
}

// SubmitDisputeEvidence appends one evidence entry to a contested escrow.
// Either party may submit while the dispute is open; the trail is capped at
// MaxEvidenceEntries and entries are never removed or edited.
func (c *Coordinator) SubmitDisputeEvidence(ctx context.Context, submitter ledger.Address, escrowID ledger.AccountID, kind, data string) (ledger.ConfirmationID, error) {
	gw, err := c.gateway()
	if err != nil {
		return "", err
	}
	kind = strings.TrimSpace(kind)
	data = strings.TrimSpace(data)
	if kind == "" {
		return "", fmt.Errorf("%w: evidence kind required", ErrInvalidInput)
	}
	if len(kind) > MaxEvidenceKindLength {
		return "", fmt.Errorf("%w: evidence kind exceeds %d bytes", ErrInvalidInput, MaxEvidenceKindLength)
	}
	if data == "" {
		return "", fmt.Errorf("%w: evidence data required", ErrInvalidInput)
	}
	if len(data) > MaxEvidenceDataLength {
		return "", fmt.Errorf("%w: evidence data exceeds %d bytes", ErrInvalidInput, MaxEvidenceDataLength)
	}

	esc, err := c.requireEscrow(ctx, escrowID)
	if err != nil {
		return "", err
	}
	if esc.State != EscrowPending {
		return "", fmt.Errorf("%w: escrow %s is %s", ErrInvalidState, escrowID, esc.State)
	}
	if esc.DisputeReason == "" {
		return "", fmt.Errorf("%w: escrow %s has no open dispute", ErrInvalidState, escrowID)
	}
	if submitter != esc.Depositor && submitter != esc.Beneficiary {
		return "", fmt.Errorf("%w: %s is neither depositor nor beneficiary", ErrUnauthorized, submitter)
	}

	entries, err := c.readEvidence(ctx, escrowID)
	if err != nil {
		return "", err
	}
	if len(entries) >= MaxEvidenceEntries {
		return "", fmt.Errorf("%w: evidence trail for %s is full (%d entries)", ErrInvalidState, escrowID, MaxEvidenceEntries)
	}

	payload := ledger.SubmitEvidencePayload{Escrow: escrowID, Submitter: submitter, Kind: kind, Data: data}
	ins, err := ledger.NewInstruction(c.program, ledger.OpSubmitEvidence, payload)
	if err != nil {
		return "", err
	}
	confirmation, err := gw.Submit(ctx, []ledger.Instruction{ins}, []ledger.Address{submitter})
	if err != nil {
		return "", ledger.WrapGatewayError("submit dispute evidence", escrowID.String(), err)
	}

	c.emit(newEvidenceSubmittedEvent(escrowID, submitter, len(entries)+1))
	return confirmation, nil
}

// GetDisputeEvidence returns the evidence trail for an escrow, oldest first.
// Escrows without a trail yield an empty slice.
func (c *Coordinator) GetDisputeEvidence(ctx context.Context, escrowID ledger.AccountID) ([]DisputeEvidence, error) {
	if _, err := c.requireEscrow(ctx, escrowID); err != nil {
		return nil, err
	}
	entries, err := c.readEvidence(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []DisputeEvidence{}
	}
	return entries, nil
}

// ResolveDisputeResult reports the landed resolution.
type ResolveDisputeResult struct {
	Confirmation ledger.ConfirmationID
	Kind         ResolutionKind
}

// ResolveDispute settles a contested escrow according to the arbitrator's
// decision. The arbiter must hold standing authority over the escrow, and
// the escrow must still read Pending on a fresh fetch; the ledger's own
// Pending transition check is the sole guard against a second resolution
// racing this one.
func (c *Coordinator) ResolveDispute(ctx context.Context, arbiter ledger.Address, escrowID ledger.AccountID, resolution Resolution) (*ResolveDisputeResult, error) {
	gw, err := c.gateway()
	if err != nil {
		return nil, err
	}
	if arbiter.IsZero() {
		return nil, fmt.Errorf("%w: arbiter address required", ErrInvalidInput)
	}
	switch resolution.Kind() {
	case ResolutionRefund, ResolutionRelease, ResolutionSplit:
	default:
		return nil, fmt.Errorf("%w: resolution kind required", ErrInvalidInput)
	}

	esc, err := c.requireEscrow(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	if esc.State != EscrowPending {
		return nil, fmt.Errorf("%w: escrow %s is %s", ErrInvalidState, escrowID, esc.State)
	}
	standing, err := c.arbitratorFor(ctx, esc, arbiter)
	if err != nil {
		return nil, err
	}
	if !standing {
		return nil, fmt.Errorf("%w: %s holds no arbitration authority over %s", ErrUnauthorized, arbiter, escrowID)
	}

	depositorAmt, beneficiaryAmt, err := resolutionAmounts(esc, resolution)
	if err != nil {
		return nil, err
	}

	payload := ledger.ResolveDisputePayload{
		Escrow:            escrowID,
		Arbiter:           arbiter,
		Outcome:           uint8(resolution.Kind()),
		Reason:            resolution.Reason(),
		DepositorAmount:   depositorAmt,
		BeneficiaryAmount: beneficiaryAmt,
	}
	ins, err := ledger.NewInstruction(c.program, ledger.OpResolveDispute, payload)
	if err != nil {
		return nil, err
	}
	confirmation, err := gw.Submit(ctx, []ledger.Instruction{ins}, []ledger.Address{arbiter})
	if err != nil {
		return nil, ledger.WrapGatewayError("resolve dispute", escrowID.String(), err)
	}

	c.emit(newDisputeResolvedEvent(escrowID, arbiter, resolution.Kind(), depositorAmt, beneficiaryAmt))
	return &ResolveDisputeResult{Confirmation: confirmation, Kind: resolution.Kind()}, nil
}

// resolutionAmounts turns a resolution into concrete depositor and
// beneficiary payouts against the escrow's current balance.
func resolutionAmounts(esc *Escrow, resolution Resolution) (depositor, beneficiary *big.Int, err error) {
	balance := esc.Amount
	if balance == nil || balance.Sign() <= 0 {
		return nil, nil, fmt.Errorf("%w: escrow %s holds no funds", ErrInvalidState, esc.ID)
	}
	zero := big.NewInt(0)
	switch resolution.Kind() {
	case ResolutionRefund:
		amount := resolution.Amount()
		if amount == nil {
			amount = new(big.Int).Set(balance)
		}
		if amount.Cmp(balance) > 0 {
			return nil, nil, fmt.Errorf("%w: refund %s exceeds escrow balance %s", ErrInsufficientFunds, amount, balance)
		}
		return amount, zero, nil
	case ResolutionRelease:
		amount := resolution.Amount()
		if amount == nil {
			amount = new(big.Int).Set(balance)
		}
		if amount.Cmp(balance) > 0 {
			return nil, nil, fmt.Errorf("%w: release %s exceeds escrow balance %s", ErrInsufficientFunds, amount, balance)
		}
		return zero, amount, nil
	case ResolutionSplit:
		ratio := resolution.Ratio()
		if ratio == (SplitRatio{}) {
			return nil, nil, ErrMissingSplitRatio
		}
		return SplitEscrow(balance, ratio)
	default:
		return nil, nil, fmt.Errorf("%w: resolution kind required", ErrInvalidInput)
	}
}
