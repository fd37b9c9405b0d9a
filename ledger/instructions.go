package ledger

import (
	"encoding/binary"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// Opcode selects the ledger program instruction to execute.
type Opcode uint8

const (
	OpCreateWorkOrder  Opcode = 0x01
	OpDepositFunds     Opcode = 0x02
	OpSubmitDelivery   Opcode = 0x03
	OpProcessPayment   Opcode = 0x04
	OpCancelEscrow     Opcode = 0x05
	OpFileDispute      Opcode = 0x06
	OpResolveDispute   Opcode = 0x07
	OpCreateMultiParty Opcode = 0x08
	OpSetConditions    Opcode = 0x09
	OpApproveRelease   Opcode = 0x0A
	OpSubmitEvidence   Opcode = 0x0B
)

// Instruction is a single ledger program invocation. Data carries the RLP
// encoded payload for the opcode.
type Instruction struct {
	Program Address
	Opcode  Opcode
	Data    []byte
}

// NewInstruction encodes payload and wraps it for submission.
func NewInstruction(program Address, op Opcode, payload interface{}) (Instruction, error) {
	data, err := rlp.EncodeToBytes(payload)
	if err != nil {
		return Instruction{}, fmt.Errorf("ledger: encode instruction %d: %w", op, err)
	}
	return Instruction{Program: program, Opcode: op, Data: data}, nil
}

// CreateWorkOrderPayload atomically creates a work order and deposits the
// payment amount into its escrow.
type CreateWorkOrderPayload struct {
	OrderID       uint64
	Client        Address
	Provider      Address
	Title         string
	Description   string
	Requirements  []string
	PaymentAmount *big.Int
	PaymentToken  Address
	Deadline      uint64
}

// DepositFundsPayload tops up an existing escrow.
type DepositFundsPayload struct {
	Escrow    AccountID
	Depositor Address
	Amount    *big.Int
}

// SubmitDeliveryPayload records an immutable delivery against a work order.
type SubmitDeliveryPayload struct {
	WorkOrder    AccountID
	Provider     Address
	Deliverables []uint8
	ContentHash  [32]byte
	MetadataURI  string
}

// ProcessPaymentPayload releases escrowed funds to the provider account.
type ProcessPaymentPayload struct {
	WorkOrder       AccountID
	Escrow          AccountID
	Authorizer      Address
	Provider        Address
	Amount          *big.Int
	PayerAccount    Address
	ProviderAccount Address
	Token           Address
	Confidential    bool
}

// CancelEscrowPayload returns the full escrow balance to the depositor.
type CancelEscrowPayload struct {
	Escrow AccountID
	Caller Address
}

// FileDisputePayload flags a pending escrow as contested.
type FileDisputePayload struct {
	Escrow AccountID
	Caller Address
	Reason string
}

// ResolveDisputePayload settles a contested escrow. Outcome is one of the
// resolution kind tags; the depositor/beneficiary amounts are computed by the
// coordinator before submission.
type ResolveDisputePayload struct {
	Escrow            AccountID
	Arbiter           Address
	Outcome           uint8
	Reason            string
	DepositorAmount   *big.Int
	BeneficiaryAmount *big.Int
}

// CreateMultiPartyPayload records a multi-party distribution rule.
type CreateMultiPartyPayload struct {
	Escrow      AccountID
	Signer      Address
	TotalAmount *big.Int
	Parties     []PartyRecord
	Arbitrator  Address
	Deadline    uint64
	Conditions  []ConditionRecord
}

// SetConditionsPayload registers automated release conditions, replacing any
// previous set atomically.
type SetConditionsPayload struct {
	Escrow     AccountID
	Signer     Address
	Conditions []ConditionRecord
}

// ApproveReleasePayload records one multisig release approval.
type ApproveReleasePayload struct {
	Escrow AccountID
	Signer Address
}

// SubmitEvidencePayload appends one entry to a contested escrow's evidence
// trail.
type SubmitEvidencePayload struct {
	Escrow    AccountID
	Submitter Address
	Kind      string
	Data      string
}

// Derived account ids. The ledger program derives record addresses from
// stable seeds so the coordinator can locate accounts without an index.

func deriveID(seed string, parts ...[]byte) AccountID {
	data := make([][]byte, 0, len(parts)+1)
	data = append(data, []byte(seed))
	data = append(data, parts...)
	return AccountID(ethcrypto.Keccak256Hash(data...))
}

// WorkOrderAccount derives the work-order record id for a client and order id.
func WorkOrderAccount(program, client Address, orderID uint64) AccountID {
	var le [8]byte
	binary.LittleEndian.PutUint64(le[:], orderID)
	return deriveID("work_order", program[:], client[:], le[:])
}

// EscrowAccount derives the escrow record id owned by a work order.
func EscrowAccount(program Address, workOrder AccountID) AccountID {
	return deriveID("escrow", program[:], workOrder[:])
}

// DeliveryAccount derives the delivery record id for a work order.
func DeliveryAccount(program Address, workOrder AccountID) AccountID {
	return deriveID("work_delivery", program[:], workOrder[:])
}

// MultiPartyEscrowAccount derives the escrow record id for a standalone
// multi-party escrow created by signer under a caller-chosen nonce.
func MultiPartyEscrowAccount(program Address, signer Address, nonce uint64) AccountID {
	var le [8]byte
	binary.LittleEndian.PutUint64(le[:], nonce)
	return deriveID("multi_party_escrow", program[:], signer[:], le[:])
}

// MultiPartyAccount derives the multi-party configuration record id.
func MultiPartyAccount(program Address, escrow AccountID) AccountID {
	return deriveID("multi_party", program[:], escrow[:])
}

// ConditionAccount derives the release-condition set record id.
func ConditionAccount(program Address, escrow AccountID) AccountID {
	return deriveID("conditions", program[:], escrow[:])
}

// EvidenceAccount derives the dispute evidence trail record id.
func EvidenceAccount(program Address, escrow AccountID) AccountID {
	return deriveID("evidence", program[:], escrow[:])
}

// ApprovalAccount derives the release-approval set record id.
func ApprovalAccount(program Address, escrow AccountID) AccountID {
	return deriveID("approvals", program[:], escrow[:])
}

// TokenAccount derives the token holding record id for an owner and token.
func TokenAccount(program, owner, token Address) AccountID {
	return deriveID("token_holding", program[:], owner[:], token[:])
}
