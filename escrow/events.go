package escrow

import (
	"math/big"
	"strconv"

	"workledger/ledger"
)

const (
	EventTypeWorkOrderCreated  = "workorder.created"
	EventTypeFundsDeposited    = "escrow.deposited"
	EventTypeDeliverySubmitted = "workorder.delivery_submitted"
	EventTypePaymentProcessed  = "escrow.payment_processed"
	EventTypeEscrowCancelled   = "escrow.cancelled"
	EventTypeDisputeFiled      = "escrow.dispute_filed"
	EventTypeEvidenceSubmitted = "escrow.dispute_evidence"
	EventTypeDisputeResolved   = "escrow.dispute_resolved"
	EventTypeMultiPartyCreated = "escrow.multi_party_created"
	EventTypeConditionsSet     = "escrow.conditions_set"
	EventTypeReleaseApproved   = "escrow.release_approved"
)

// Event is the canonical payload emitted after a successful coordinator
// operation.
type Event struct {
	Type       string
	Attributes map[string]string
}

// Emitter consumes coordinator events. Implementations must not block.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter discards all events.
type NoopEmitter struct{}

// Emit implements Emitter.
func (NoopEmitter) Emit(Event) {}

func newEvent(eventType string, attrs map[string]string) Event {
	if attrs == nil {
		attrs = make(map[string]string)
	}
	return Event{Type: eventType, Attributes: attrs}
}

func newWorkOrderCreatedEvent(order ledger.AccountID, client, provider ledger.Address, amount *big.Int, confirmation ledger.ConfirmationID) Event {
	return newEvent(EventTypeWorkOrderCreated, map[string]string{
		"workOrder":    order.String(),
		"client":       client.String(),
		"provider":     provider.String(),
		"amount":       amount.String(),
		"confirmation": string(confirmation),
	})
}

func newDepositEvent(escrowID ledger.AccountID, depositor ledger.Address, amount *big.Int) Event {
	return newEvent(EventTypeFundsDeposited, map[string]string{
		"escrow":    escrowID.String(),
		"depositor": depositor.String(),
		"amount":    amount.String(),
	})
}

func newDeliveryEvent(order, delivery ledger.AccountID, provider ledger.Address) Event {
	return newEvent(EventTypeDeliverySubmitted, map[string]string{
		"workOrder": order.String(),
		"delivery":  delivery.String(),
		"provider":  provider.String(),
	})
}

func newPaymentEvent(order, escrowID ledger.AccountID, from, to ledger.Address, amount *big.Int, confidential bool) Event {
	return newEvent(EventTypePaymentProcessed, map[string]string{
		"workOrder":    order.String(),
		"escrow":       escrowID.String(),
		"from":         from.String(),
		"to":           to.String(),
		"amount":       amount.String(),
		"confidential": strconv.FormatBool(confidential),
	})
}

func newCancelledEvent(escrowID ledger.AccountID, depositor ledger.Address, amount *big.Int) Event {
	return newEvent(EventTypeEscrowCancelled, map[string]string{
		"escrow":    escrowID.String(),
		"depositor": depositor.String(),
		"amount":    amount.String(),
	})
}

func newDisputeFiledEvent(escrowID ledger.AccountID, caller ledger.Address, reason string) Event {
	return newEvent(EventTypeDisputeFiled, map[string]string{
		"escrow": escrowID.String(),
		"caller": caller.String(),
		"reason": reason,
	})
}

func newEvidenceSubmittedEvent(escrowID ledger.AccountID, submitter ledger.Address, count int) Event {
	return newEvent(EventTypeEvidenceSubmitted, map[string]string{
		"escrow":    escrowID.String(),
		"submitter": submitter.String(),
		"entries":   strconv.Itoa(count),
	})
}

func newDisputeResolvedEvent(escrowID ledger.AccountID, arbiter ledger.Address, kind ResolutionKind, depositorAmt, beneficiaryAmt *big.Int) Event {
	attrs := map[string]string{
		"escrow":  escrowID.String(),
		"arbiter": arbiter.String(),
		"outcome": kind.String(),
	}
	if depositorAmt != nil {
		attrs["depositorAmount"] = depositorAmt.String()
	}
	if beneficiaryAmt != nil {
		attrs["beneficiaryAmount"] = beneficiaryAmt.String()
	}
	return newEvent(EventTypeDisputeResolved, attrs)
}

func newMultiPartyCreatedEvent(escrowID ledger.AccountID, signer ledger.Address, parties int, total *big.Int) Event {
	return newEvent(EventTypeMultiPartyCreated, map[string]string{
		"escrow":  escrowID.String(),
		"signer":  signer.String(),
		"parties": strconv.Itoa(parties),
		"amount":  total.String(),
	})
}

func newConditionsSetEvent(escrowID ledger.AccountID, signer ledger.Address, count int) Event {
	return newEvent(EventTypeConditionsSet, map[string]string{
		"escrow":     escrowID.String(),
		"signer":     signer.String(),
		"conditions": strconv.Itoa(count),
	})
}

func newReleaseApprovedEvent(escrowID ledger.AccountID, signer ledger.Address) Event {
	return newEvent(EventTypeReleaseApproved, map[string]string{
		"escrow": escrowID.String(),
		"signer": signer.String(),
	})
}
