package escrow

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"workledger/ledger"
)

// CreateWorkOrderParams describes a new work agreement. OrderID must be
// unique per client; retries with the same id target the same accounts.
type CreateWorkOrderParams struct {
	OrderID       uint64
	Provider      ledger.Address
	Title         string
	Description   string
	Requirements  []string
	PaymentAmount *big.Int
	PaymentToken  ledger.Address
	Deadline      int64
}

// CreateWorkOrderResult reports the derived accounts and the ledger
// confirmation for a created work order.
type CreateWorkOrderResult struct {
	WorkOrder    ledger.AccountID
	Escrow       ledger.AccountID
	Confirmation ledger.ConfirmationID
}

// CreateWorkOrder submits one atomic batch that creates the work order and
// deposits the payment amount into its escrow. On success the escrow is
// visible as Pending.
func (c *Coordinator) CreateWorkOrder(ctx context.Context, client ledger.Address, params CreateWorkOrderParams) (*CreateWorkOrderResult, error) {
	gw, err := c.gateway()
	if err != nil {
		return nil, err
	}
	if client.IsZero() {
		return nil, fmt.Errorf("%w: client address required", ErrInvalidInput)
	}
	if params.Provider.IsZero() {
		return nil, fmt.Errorf("%w: provider address required", ErrInvalidInput)
	}
	if err := validateOrderInputs(params); err != nil {
		return nil, err
	}
	if params.Deadline <= c.now() {
		return nil, ErrInvalidDeadline
	}

	orderAccount := ledger.WorkOrderAccount(c.program, client, params.OrderID)
	escrowAccount := ledger.EscrowAccount(c.program, orderAccount)

	payload := ledger.CreateWorkOrderPayload{
		OrderID:       params.OrderID,
		Client:        client,
		Provider:      params.Provider,
		Title:         params.Title,
		Description:   params.Description,
		Requirements:  append([]string(nil), params.Requirements...),
		PaymentAmount: new(big.Int).Set(params.PaymentAmount),
		PaymentToken:  params.PaymentToken,
		Deadline:      uint64(params.Deadline),
	}
	ins, err := ledger.NewInstruction(c.program, ledger.OpCreateWorkOrder, payload)
	if err != nil {
		return nil, err
	}
	confirmation, err := gw.Submit(ctx, []ledger.Instruction{ins}, []ledger.Address{client})
	if err != nil {
		return nil, ledger.WrapGatewayError("create work order", orderAccount.String(), err)
	}

	c.emit(newWorkOrderCreatedEvent(orderAccount, client, params.Provider, params.PaymentAmount, confirmation))
	return &CreateWorkOrderResult{
		WorkOrder:    orderAccount,
		Escrow:       escrowAccount,
		Confirmation: confirmation,
	}, nil
}

// DepositFunds tops up an existing escrow, e.g. a milestone increase. The
// depositor's token balance is re-read before submission and the deposit is
// rejected locally when it cannot be covered.
func (c *Coordinator) DepositFunds(ctx context.Context, depositor ledger.Address, escrowID ledger.AccountID, amount *big.Int) (ledger.ConfirmationID, error) {
	gw, err := c.gateway()
	if err != nil {
		return "", err
	}
	if depositor.IsZero() {
		return "", fmt.Errorf("%w: depositor address required", ErrInvalidInput)
	}
	if amount == nil || amount.Sign() <= 0 {
		return "", fmt.Errorf("%w: deposit amount must be positive", ErrInvalidInput)
	}

	esc, err := c.requireEscrow(ctx, escrowID)
	if err != nil {
		return "", err
	}
	if esc.State != EscrowPending {
		return "", fmt.Errorf("%w: escrow %s is %s", ErrInvalidState, escrowID, esc.State)
	}
	if esc.Depositor != depositor {
		return "", fmt.Errorf("%w: %s is not the escrow depositor", ErrUnauthorized, depositor)
	}

	order, err := c.requireWorkOrder(ctx, esc.WorkOrder)
	if err != nil {
		return "", err
	}
	balance, err := c.tokenBalance(ctx, depositor, order.PaymentToken)
	if err != nil {
		return "", err
	}
	if balance.Cmp(amount) < 0 {
		return "", fmt.Errorf("%w: balance %s below deposit %s", ErrInsufficientFunds, balance, amount)
	}

	payload := ledger.DepositFundsPayload{
		Escrow:    escrowID,
		Depositor: depositor,
		Amount:    new(big.Int).Set(amount),
	}
	ins, err := ledger.NewInstruction(c.program, ledger.OpDepositFunds, payload)
	if err != nil {
		return "", err
	}
	confirmation, err := gw.Submit(ctx, []ledger.Instruction{ins}, []ledger.Address{depositor})
	if err != nil {
		return "", ledger.WrapGatewayError("deposit funds", escrowID.String(), err)
	}

	c.emit(newDepositEvent(escrowID, depositor, amount))
	return confirmation, nil
}

func (c *Coordinator) tokenBalance(ctx context.Context, owner, token ledger.Address) (*big.Int, error) {
	gw, err := c.gateway()
	if err != nil {
		return nil, err
	}
	account := ledger.TokenAccount(c.program, owner, token)
	raw, err := gw.ReadAccount(ctx, account)
	if err != nil {
		return nil, ledger.WrapGatewayError("read token balance", account.String(), err)
	}
	if raw == nil {
		return big.NewInt(0), nil
	}
	rec, err := ledger.DecodeTokenHolding(raw)
	if err != nil {
		return nil, err
	}
	if rec.Balance == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(rec.Balance), nil
}

func validateOrderInputs(params CreateWorkOrderParams) error {
	if strings.TrimSpace(params.Title) == "" {
		return fmt.Errorf("%w: title required", ErrInvalidInput)
	}
	if len(params.Title) > MaxTitleLength {
		return fmt.Errorf("%w: title exceeds %d bytes", ErrInvalidInput, MaxTitleLength)
	}
	if len(params.Description) > MaxDescriptionLength {
		return fmt.Errorf("%w: description exceeds %d bytes", ErrInvalidInput, MaxDescriptionLength)
	}
	if err := validateRequirements(params.Requirements); err != nil {
		return err
	}
	if params.PaymentAmount == nil || params.PaymentAmount.Sign() <= 0 {
		return fmt.Errorf("%w: payment amount must be positive", ErrInvalidInput)
	}
	if params.PaymentAmount.Cmp(MinPaymentAmount) < 0 {
		return fmt.Errorf("%w: payment amount below minimum %s", ErrInvalidInput, MinPaymentAmount)
	}
	if params.PaymentAmount.Cmp(MaxPaymentAmount) > 0 {
		return fmt.Errorf("%w: payment amount above maximum %s", ErrInvalidInput, MaxPaymentAmount)
	}
	return nil
}
