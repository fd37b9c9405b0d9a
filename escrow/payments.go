package escrow

import (
	"context"
	"fmt"
	"math/big"

	"workledger/ledger"
)

// PaymentParams controls a payment release from escrow to the provider.
// UseConfidentialTransfer selects the privacy-preserving transfer variant on
// the ledger; it changes neither authorization nor amount-matching rules.
type PaymentParams struct {
	Provider                ledger.Address
	Amount                  *big.Int
	PayerAccount            ledger.Address
	ProviderAccount         ledger.Address
	Token                   ledger.Address
	UseConfidentialTransfer bool
}

// ProcessPayment moves escrowed funds to the provider account. The
// authorizer must be the work order's client or a standing arbitrator, the
// amount must be covered by the escrow balance, and a delivery record must
// exist. All state is re-read immediately before submission; the ledger's
// Pending check settles any race between competing releases.
func (c *Coordinator) ProcessPayment(ctx context.Context, authorizer ledger.Address, workOrderID ledger.AccountID, params PaymentParams) (ledger.ConfirmationID, error) {
	gw, err := c.gateway()
	if err != nil {
		return "", err
	}
	if authorizer.IsZero() {
		return "", fmt.Errorf("%w: authorizer address required", ErrInvalidInput)
	}
	if params.Amount == nil || params.Amount.Sign() <= 0 {
		return "", fmt.Errorf("%w: payment amount must be positive", ErrInvalidInput)
	}

	order, err := c.requireWorkOrder(ctx, workOrderID)
	if err != nil {
		return "", err
	}
	if params.Provider != order.Provider {
		return "", fmt.Errorf("%w: provider %s does not match work order", ErrInvalidInput, params.Provider)
	}

	esc, err := c.requireEscrow(ctx, order.Escrow)
	if err != nil {
		return "", err
	}
	if esc.State != EscrowPending {
		return "", fmt.Errorf("%w: escrow %s is %s", ErrInvalidState, esc.ID, esc.State)
	}
	if params.Amount.Cmp(esc.Amount) > 0 {
		return "", fmt.Errorf("%w: payment %s exceeds escrow balance %s", ErrInsufficientFunds, params.Amount, esc.Amount)
	}

	if authorizer != order.Client {
		standing, err := c.arbitratorFor(ctx, esc, authorizer)
		if err != nil {
			return "", err
		}
		if !standing {
			return "", fmt.Errorf("%w: %s may not authorize this payment", ErrUnauthorized, authorizer)
		}
	}

	delivery, err := c.GetWorkDelivery(ctx, workOrderID)
	if err != nil {
		return "", err
	}
	if delivery == nil {
		return "", fmt.Errorf("%w: work order %s has no delivery", ErrInvalidState, workOrderID)
	}

	payload := ledger.ProcessPaymentPayload{
		WorkOrder:       workOrderID,
		Escrow:          esc.ID,
		Authorizer:      authorizer,
		Provider:        params.Provider,
		Amount:          new(big.Int).Set(params.Amount),
		PayerAccount:    params.PayerAccount,
		ProviderAccount: params.ProviderAccount,
		Token:           params.Token,
		Confidential:    params.UseConfidentialTransfer,
	}
	ins, err := ledger.NewInstruction(c.program, ledger.OpProcessPayment, payload)
	if err != nil {
		return "", err
	}
	confirmation, err := gw.Submit(ctx, []ledger.Instruction{ins}, []ledger.Address{authorizer})
	if err != nil {
		return "", ledger.WrapGatewayError("process payment", esc.ID.String(), err)
	}

	c.emit(newPaymentEvent(workOrderID, esc.ID, authorizer, params.Provider, params.Amount, params.UseConfidentialTransfer))
	return confirmation, nil
}

// ReleaseFunds is the single-beneficiary convenience over ProcessPayment: it
// pays the full escrow balance in the order's payment token. No additional
// authorization rules apply.
func (c *Coordinator) ReleaseFunds(ctx context.Context, authorizer ledger.Address, workOrderID ledger.AccountID, provider, payerAccount, providerAccount ledger.Address) (ledger.ConfirmationID, error) {
	order, err := c.requireWorkOrder(ctx, workOrderID)
	if err != nil {
		return "", err
	}
	esc, err := c.requireEscrow(ctx, order.Escrow)
	if err != nil {
		return "", err
	}
	return c.ProcessPayment(ctx, authorizer, workOrderID, PaymentParams{
		Provider:        provider,
		Amount:          esc.Amount,
		PayerAccount:    payerAccount,
		ProviderAccount: providerAccount,
		Token:           order.PaymentToken,
	})
}

// CancelEscrow returns the full escrow balance to the depositor. Only the
// original depositor may cancel, the escrow must still be Pending and no
// delivery may be under review. Cancelling an already-cancelled escrow fails
// with ErrInvalidState rather than silently succeeding.
func (c *Coordinator) CancelEscrow(ctx context.Context, caller ledger.Address, escrowID ledger.AccountID) (ledger.ConfirmationID, error) {
	gw, err := c.gateway()
	if err != nil {
		return "", err
	}
	if caller.IsZero() {
		return "", fmt.Errorf("%w: caller address required", ErrInvalidInput)
	}

	esc, err := c.requireEscrow(ctx, escrowID)
	if err != nil {
		return "", err
	}
	if esc.State != EscrowPending {
		return "", fmt.Errorf("%w: escrow %s is %s", ErrInvalidState, escrowID, esc.State)
	}
	if esc.Depositor != caller {
		return "", fmt.Errorf("%w: %s is not the escrow depositor", ErrUnauthorized, caller)
	}

	if !esc.WorkOrder.IsZero() {
		delivery, err := c.GetWorkDelivery(ctx, esc.WorkOrder)
		if err != nil {
			return "", err
		}
		if delivery != nil {
			return "", fmt.Errorf("%w: delivery under review for work order %s", ErrInvalidState, esc.WorkOrder)
		}
	}

	payload := ledger.CancelEscrowPayload{Escrow: escrowID, Caller: caller}
	ins, err := ledger.NewInstruction(c.program, ledger.OpCancelEscrow, payload)
	if err != nil {
		return "", err
	}
	confirmation, err := gw.Submit(ctx, []ledger.Instruction{ins}, []ledger.Address{caller})
	if err != nil {
		return "", ledger.WrapGatewayError("cancel escrow", escrowID.String(), err)
	}

	c.emit(newCancelledEvent(escrowID, caller, esc.Amount))
	return confirmation, nil
}
