package escrow

import (
	"bytes"
	"context"
	"fmt"
	"math/big"

	"workledger/ledger"
)

// CreateMultiPartyResult reports the derived escrow account and confirmation
// for a multi-party escrow.
type CreateMultiPartyResult struct {
	Escrow       ledger.AccountID
	Confirmation ledger.ConfirmationID
}

// CreateMultiPartyEscrow records a distribution rule across two or more
// parties. All configuration invariants are enforced locally before any
// ledger submission; no payouts are computed at creation time.
func (c *Coordinator) CreateMultiPartyEscrow(ctx context.Context, signer ledger.Address, config MultiPartyConfig) (*CreateMultiPartyResult, error) {
	gw, err := c.gateway()
	if err != nil {
		return nil, err
	}
	if signer.IsZero() {
		return nil, fmt.Errorf("%w: signer address required", ErrInvalidInput)
	}
	if err := config.Validate(c.now()); err != nil {
		return nil, err
	}

	escrowID := ledger.MultiPartyEscrowAccount(c.program, signer, config.Nonce)
	conditions := make([]ledger.ConditionRecord, 0, len(config.ReleaseConditions))
	for _, cond := range config.ReleaseConditions {
		conditions = append(conditions, conditionToRecord(cond))
	}
	payload := ledger.CreateMultiPartyPayload{
		Escrow:      escrowID,
		Signer:      signer,
		TotalAmount: new(big.Int).Set(config.TotalAmount),
		Parties:     partiesToRecords(config.Parties),
		Arbitrator:  config.Arbitrator,
		Deadline:    uint64(config.Deadline),
		Conditions:  conditions,
	}
	ins, err := ledger.NewInstruction(c.program, ledger.OpCreateMultiParty, payload)
	if err != nil {
		return nil, err
	}
	confirmation, err := gw.Submit(ctx, []ledger.Instruction{ins}, []ledger.Address{signer})
	if err != nil {
		return nil, ledger.WrapGatewayError("create multi-party escrow", escrowID.String(), err)
	}

	c.emit(newMultiPartyCreatedEvent(escrowID, signer, len(config.Parties), config.TotalAmount))
	return &CreateMultiPartyResult{Escrow: escrowID, Confirmation: confirmation}, nil
}

// GetMultiPartyConfig fetches the distribution rule for an escrow, or nil
// when none is configured.
func (c *Coordinator) GetMultiPartyConfig(ctx context.Context, escrowID ledger.AccountID) (*MultiPartyConfig, error) {
	rec, err := c.readMultiParty(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	parties, err := partiesFromRecords(rec.Parties)
	if err != nil {
		return nil, err
	}
	return &MultiPartyConfig{
		Parties:    parties,
		Arbitrator: rec.Arbitrator,
		Deadline:   int64(rec.Deadline),
	}, nil
}

// SetAutomatedReleaseConditions registers the escrow's automated release
// conditions. Validation is all-or-nothing: one invalid condition rejects
// the whole set and nothing is registered. The signer must be the escrow's
// depositor or a standing arbitrator.
func (c *Coordinator) SetAutomatedReleaseConditions(ctx context.Context, signer ledger.Address, escrowID ledger.AccountID, conditions []ReleaseCondition) (ledger.ConfirmationID, error) {
	gw, err := c.gateway()
	if err != nil {
		return "", err
	}
	if signer.IsZero() {
		return "", fmt.Errorf("%w: signer address required", ErrInvalidInput)
	}
	if len(conditions) == 0 {
		return "", fmt.Errorf("%w: at least one condition required", ErrInvalidCondition)
	}
	now := c.now()
	for _, cond := range conditions {
		if err := cond.validate(now); err != nil {
			return "", err
		}
	}

	esc, err := c.requireEscrow(ctx, escrowID)
	if err != nil {
		return "", err
	}
	if esc.State != EscrowPending {
		return "", fmt.Errorf("%w: escrow %s is %s", ErrInvalidState, escrowID, esc.State)
	}
	if signer != esc.Depositor {
		standing, err := c.arbitratorFor(ctx, esc, signer)
		if err != nil {
			return "", err
		}
		if !standing {
			return "", fmt.Errorf("%w: %s may not set release conditions", ErrUnauthorized, signer)
		}
	}

	records := make([]ledger.ConditionRecord, 0, len(conditions))
	for _, cond := range conditions {
		records = append(records, conditionToRecord(cond))
	}
	payload := ledger.SetConditionsPayload{Escrow: escrowID, Signer: signer, Conditions: records}
	ins, err := ledger.NewInstruction(c.program, ledger.OpSetConditions, payload)
	if err != nil {
		return "", err
	}
	confirmation, err := gw.Submit(ctx, []ledger.Instruction{ins}, []ledger.Address{signer})
	if err != nil {
		return "", ledger.WrapGatewayError("set release conditions", escrowID.String(), err)
	}

	c.emit(newConditionsSetEvent(escrowID, signer, len(conditions)))
	return confirmation, nil
}

// ApproveRelease records one multisig release approval. The signer must
// appear in a registered multisig condition for the escrow.
func (c *Coordinator) ApproveRelease(ctx context.Context, signer ledger.Address, escrowID ledger.AccountID) (ledger.ConfirmationID, error) {
	gw, err := c.gateway()
	if err != nil {
		return "", err
	}
	if signer.IsZero() {
		return "", fmt.Errorf("%w: signer address required", ErrInvalidInput)
	}

	esc, err := c.requireEscrow(ctx, escrowID)
	if err != nil {
		return "", err
	}
	if esc.State != EscrowPending {
		return "", fmt.Errorf("%w: escrow %s is %s", ErrInvalidState, escrowID, esc.State)
	}
	conditions, err := c.readConditions(ctx, escrowID)
	if err != nil {
		return "", err
	}
	if !multisigSignerListed(conditions, signer) {
		return "", fmt.Errorf("%w: %s is not a configured release signer", ErrUnauthorized, signer)
	}

	payload := ledger.ApproveReleasePayload{Escrow: escrowID, Signer: signer}
	ins, err := ledger.NewInstruction(c.program, ledger.OpApproveRelease, payload)
	if err != nil {
		return "", err
	}
	confirmation, err := gw.Submit(ctx, []ledger.Instruction{ins}, []ledger.Address{signer})
	if err != nil {
		return "", ledger.WrapGatewayError("approve release", escrowID.String(), err)
	}

	c.emit(newReleaseApprovedEvent(escrowID, signer))
	return confirmation, nil
}

// CheckAutomatedRelease evaluates every registered condition independently.
// Release is permitted only when all conditions are met and at least one
// condition exists; an escrow with no conditions must go through the manual
// CanRelease/ProcessPayment path instead.
func (c *Coordinator) CheckAutomatedRelease(ctx context.Context, escrowID ledger.AccountID) (AutomatedReleaseCheck, error) {
	esc, err := c.requireEscrow(ctx, escrowID)
	if err != nil {
		return AutomatedReleaseCheck{}, err
	}
	conditions, err := c.readConditions(ctx, escrowID)
	if err != nil {
		return AutomatedReleaseCheck{}, err
	}

	check := AutomatedReleaseCheck{
		ConditionsMet:    []string{},
		ConditionsNotMet: []string{},
	}
	if len(conditions) == 0 {
		return check, nil
	}

	var approvals []ledger.Address
	now := c.now()
	for _, cond := range conditions {
		met, err := c.evaluateCondition(ctx, cond, now, escrowID, &approvals)
		if err != nil {
			return AutomatedReleaseCheck{}, err
		}
		if met {
			check.ConditionsMet = append(check.ConditionsMet, cond.Describe())
		} else {
			check.ConditionsNotMet = append(check.ConditionsNotMet, cond.Describe())
		}
	}
	check.CanRelease = len(check.ConditionsNotMet) == 0 && esc.State == EscrowPending
	return check, nil
}

func (c *Coordinator) evaluateCondition(ctx context.Context, cond ReleaseCondition, now int64, escrowID ledger.AccountID, approvals *[]ledger.Address) (bool, error) {
	switch cond.Kind {
	case ConditionTimelock:
		return now >= cond.Timestamp, nil
	case ConditionOracle:
		gw, err := c.gateway()
		if err != nil {
			return false, err
		}
		raw, err := gw.ReadAccount(ctx, cond.Oracle)
		if err != nil {
			return false, ledger.WrapGatewayError("read oracle", cond.Oracle.String(), err)
		}
		if raw == nil {
			return false, nil
		}
		rec, err := ledger.DecodeOracleValue(raw)
		if err != nil {
			return false, err
		}
		return bytes.Equal(rec.Value, cond.ExpectedValue), nil
	case ConditionMultisig:
		if *approvals == nil {
			fetched, err := c.readApprovals(ctx, escrowID)
			if err != nil {
				return false, err
			}
			if fetched == nil {
				fetched = []ledger.Address{}
			}
			*approvals = fetched
		}
		count := uint32(0)
		for _, signer := range cond.Signers {
			for _, approved := range *approvals {
				if approved == signer {
					count++
					break
				}
			}
		}
		return count >= cond.RequiredCount, nil
	default:
		return false, fmt.Errorf("%w: unknown condition kind %d", ErrInvalidCondition, cond.Kind)
	}
}

func multisigSignerListed(conditions []ReleaseCondition, signer ledger.Address) bool {
	for _, cond := range conditions {
		if cond.Kind != ConditionMultisig {
			continue
		}
		for _, s := range cond.Signers {
			if s == signer {
				return true
			}
		}
	}
	return false
}
