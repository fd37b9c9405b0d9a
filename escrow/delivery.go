package escrow

import (
	"context"
	"fmt"
	"strings"

	"workledger/ledger"
)

// DeliveryParams is a provider's submission against a work order.
type DeliveryParams struct {
	Deliverables []DeliverableKind
	ContentHash  [32]byte
	MetadataURI  string
}

// SubmitDeliveryResult reports the created delivery record and confirmation.
type SubmitDeliveryResult struct {
	Delivery     ledger.AccountID
	Confirmation ledger.ConfirmationID
}

// SubmitWorkDelivery records an immutable delivery for the work order and
// marks the order Submitted. Only the designated provider may submit; the
// order must not be terminal. Funds do not move.
func (c *Coordinator) SubmitWorkDelivery(ctx context.Context, provider ledger.Address, workOrderID ledger.AccountID, params DeliveryParams) (*SubmitDeliveryResult, error) {
	gw, err := c.gateway()
	if err != nil {
		return nil, err
	}
	if provider.IsZero() {
		return nil, fmt.Errorf("%w: provider address required", ErrInvalidInput)
	}
	if err := validateDelivery(params); err != nil {
		return nil, err
	}

	order, err := c.requireWorkOrder(ctx, workOrderID)
	if err != nil {
		return nil, err
	}
	if order.Provider != provider {
		return nil, fmt.Errorf("%w: %s is not the designated provider", ErrUnauthorized, provider)
	}
	if order.Status.Terminal() {
		return nil, fmt.Errorf("%w: work order %s is %s", ErrInvalidState, workOrderID, order.Status)
	}

	deliveryAccount := ledger.DeliveryAccount(c.program, workOrderID)
	deliverables := make([]uint8, 0, len(params.Deliverables))
	for _, d := range params.Deliverables {
		deliverables = append(deliverables, uint8(d))
	}
	payload := ledger.SubmitDeliveryPayload{
		WorkOrder:    workOrderID,
		Provider:     provider,
		Deliverables: deliverables,
		ContentHash:  params.ContentHash,
		MetadataURI:  params.MetadataURI,
	}
	ins, err := ledger.NewInstruction(c.program, ledger.OpSubmitDelivery, payload)
	if err != nil {
		return nil, err
	}
	confirmation, err := gw.Submit(ctx, []ledger.Instruction{ins}, []ledger.Address{provider})
	if err != nil {
		return nil, ledger.WrapGatewayError("submit delivery", workOrderID.String(), err)
	}

	c.emit(newDeliveryEvent(workOrderID, deliveryAccount, provider))
	return &SubmitDeliveryResult{Delivery: deliveryAccount, Confirmation: confirmation}, nil
}

// GetWorkDelivery fetches the delivery record for a work order, or nil when
// none has been submitted.
func (c *Coordinator) GetWorkDelivery(ctx context.Context, workOrderID ledger.AccountID) (*WorkDelivery, error) {
	gw, err := c.gateway()
	if err != nil {
		return nil, err
	}
	account := ledger.DeliveryAccount(c.program, workOrderID)
	raw, err := gw.ReadAccount(ctx, account)
	if err != nil {
		return nil, ledger.WrapGatewayError("read delivery", account.String(), err)
	}
	if raw == nil {
		return nil, nil
	}
	rec, err := ledger.DecodeDelivery(raw)
	if err != nil {
		return nil, err
	}
	return deliveryFromRecord(account, rec)
}

func validateDelivery(params DeliveryParams) error {
	if len(params.Deliverables) == 0 {
		return fmt.Errorf("%w: at least one deliverable required", ErrInvalidInput)
	}
	if len(params.Deliverables) > MaxDeliverables {
		return fmt.Errorf("%w: %d deliverables exceed limit of %d", ErrInvalidInput, len(params.Deliverables), MaxDeliverables)
	}
	for _, d := range params.Deliverables {
		if !d.Valid() {
			return fmt.Errorf("%w: unknown deliverable kind %d", ErrInvalidInput, uint8(d))
		}
	}
	if params.ContentHash == ([32]byte{}) {
		return fmt.Errorf("%w: content hash required", ErrInvalidInput)
	}
	uri := strings.TrimSpace(params.MetadataURI)
	if uri == "" {
		return fmt.Errorf("%w: metadata URI required", ErrInvalidInput)
	}
	if len(uri) > MaxMetadataURILength {
		return fmt.Errorf("%w: metadata URI exceeds %d bytes", ErrInvalidInput, MaxMetadataURILength)
	}
	return nil
}
