package ledger

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"
)

// Record layout: every account stored by the ledger program starts with a
// four byte magic identifying the layout revision, followed by a one byte
// record kind discriminator and the RLP encoded record body. Accounts whose
// magic or kind is not recognised are rejected outright rather than decoded
// by guessed offsets.
var recordMagic = [4]byte{'W', 'L', 'R', '1'}

const recordHeaderLen = 5

// RecordKind discriminates the record types stored by the ledger program.
type RecordKind uint8

const (
	RecordEscrow       RecordKind = 0x01
	RecordWorkOrder    RecordKind = 0x02
	RecordDelivery     RecordKind = 0x03
	RecordMultiParty   RecordKind = 0x04
	RecordConditionSet RecordKind = 0x05
	RecordOracleValue  RecordKind = 0x06
	RecordApprovalSet  RecordKind = 0x07
	RecordTokenHolding RecordKind = 0x08
	RecordEvidenceSet  RecordKind = 0x09
)

// Valid reports whether the kind is one the codec understands.
func (k RecordKind) Valid() bool {
	switch k {
	case RecordEscrow, RecordWorkOrder, RecordDelivery, RecordMultiParty,
		RecordConditionSet, RecordOracleValue, RecordApprovalSet, RecordTokenHolding,
		RecordEvidenceSet:
		return true
	default:
		return false
	}
}

func (k RecordKind) String() string {
	switch k {
	case RecordEscrow:
		return "escrow"
	case RecordWorkOrder:
		return "work_order"
	case RecordDelivery:
		return "work_delivery"
	case RecordMultiParty:
		return "multi_party_config"
	case RecordConditionSet:
		return "release_conditions"
	case RecordOracleValue:
		return "oracle_value"
	case RecordApprovalSet:
		return "release_approvals"
	case RecordTokenHolding:
		return "token_holding"
	case RecordEvidenceSet:
		return "dispute_evidence"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

var (
	// ErrUnknownRecordKind is returned when an account carries a magic or
	// discriminator this codec revision does not recognise.
	ErrUnknownRecordKind = errors.New("ledger: unknown record kind")

	// ErrRecordTooShort is returned for account payloads shorter than the
	// record header.
	ErrRecordTooShort = errors.New("ledger: record shorter than header")
)

// EscrowRecord is the wire form of a ledger escrow account. Timestamps are
// unix seconds; ReleaseAt is zero when no timelock is set.
type EscrowRecord struct {
	Depositor     Address
	Beneficiary   Address
	Arbitrator    Address
	Amount        *big.Int
	State         uint8
	CreatedAt     uint64
	ReleaseAt     uint64
	WorkOrder     AccountID
	DisputeReason string
}

// WorkOrderRecord is the wire form of a ledger work-order account.
type WorkOrderRecord struct {
	OrderID       uint64
	Client        Address
	Provider      Address
	Title         string
	Description   string
	Requirements  []string
	PaymentAmount *big.Int
	PaymentToken  Address
	Status        uint8
	CreatedAt     uint64
	UpdatedAt     uint64
	DeliveredAt   uint64
	Deadline      uint64
	Escrow        AccountID
	Delivery      AccountID
}

// DeliveryRecord is the wire form of a work-delivery account.
type DeliveryRecord struct {
	WorkOrder    AccountID
	Provider     Address
	Deliverables []uint8
	ContentHash  [32]byte
	MetadataURI  string
	SubmittedAt  uint64
}

// PartyRecord is one configured participant of a multi-party escrow.
type PartyRecord struct {
	Addr     Address
	SharePct uint8
	Role     uint8
}

// MultiPartyRecord is the wire form of a multi-party escrow configuration.
type MultiPartyRecord struct {
	Escrow     AccountID
	Parties    []PartyRecord
	Arbitrator Address
	Deadline   uint64
}

// ConditionRecord is one automated release condition. Kind selects which of
// the remaining fields are meaningful.
type ConditionRecord struct {
	Kind          uint8
	Timestamp     uint64
	Oracle        AccountID
	Expected      []byte
	Signers       []Address
	RequiredCount uint32
}

// ConditionSetRecord is the wire form of an escrow's registered conditions.
type ConditionSetRecord struct {
	Escrow     AccountID
	Conditions []ConditionRecord
}

// OracleValueRecord is the wire form of an oracle feed account.
type OracleValueRecord struct {
	Value     []byte
	UpdatedAt uint64
}

// ApprovalSetRecord is the wire form of collected multisig release approvals.
type ApprovalSetRecord struct {
	Escrow    AccountID
	Approvals []Address
}

// EvidenceRecord is one piece of dispute evidence. Data carries the content
// reference (typically a hash or storage URI), never the material itself.
type EvidenceRecord struct {
	Submitter   Address
	Kind        string
	Data        string
	SubmittedAt uint64
}

// EvidenceSetRecord is the wire form of an escrow's dispute evidence trail.
type EvidenceSetRecord struct {
	Escrow  AccountID
	Entries []EvidenceRecord
}

// TokenHoldingRecord is the wire form of a token balance account.
type TokenHoldingRecord struct {
	Owner   Address
	Token   Address
	Balance *big.Int
}

// EncodeRecord serializes a record body under the current layout revision.
func EncodeRecord(kind RecordKind, body interface{}) ([]byte, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRecordKind, uint8(kind))
	}
	payload, err := rlp.EncodeToBytes(body)
	if err != nil {
		return nil, fmt.Errorf("ledger: encode %s record: %w", kind, err)
	}
	out := make([]byte, 0, recordHeaderLen+len(payload))
	out = append(out, recordMagic[:]...)
	out = append(out, byte(kind))
	return append(out, payload...), nil
}

// DecodeRecordKind validates the header and returns the record kind plus the
// RLP body.
func DecodeRecordKind(raw []byte) (RecordKind, []byte, error) {
	if len(raw) < recordHeaderLen {
		return 0, nil, ErrRecordTooShort
	}
	if !bytes.Equal(raw[:4], recordMagic[:]) {
		return 0, nil, fmt.Errorf("%w: bad magic %x", ErrUnknownRecordKind, raw[:4])
	}
	kind := RecordKind(raw[4])
	if !kind.Valid() {
		return 0, nil, fmt.Errorf("%w: discriminator %d", ErrUnknownRecordKind, raw[4])
	}
	return kind, raw[recordHeaderLen:], nil
}

func decodeBody(raw []byte, want RecordKind, out interface{}) error {
	kind, body, err := DecodeRecordKind(raw)
	if err != nil {
		return err
	}
	if kind != want {
		return fmt.Errorf("ledger: expected %s record, got %s", want, kind)
	}
	if err := rlp.DecodeBytes(body, out); err != nil {
		return fmt.Errorf("ledger: decode %s record: %w", want, err)
	}
	return nil
}

// DecodeEscrow parses an escrow account payload.
func DecodeEscrow(raw []byte) (*EscrowRecord, error) {
	rec := new(EscrowRecord)
	if err := decodeBody(raw, RecordEscrow, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// DecodeWorkOrder parses a work-order account payload.
func DecodeWorkOrder(raw []byte) (*WorkOrderRecord, error) {
	rec := new(WorkOrderRecord)
	if err := decodeBody(raw, RecordWorkOrder, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// DecodeDelivery parses a work-delivery account payload.
func DecodeDelivery(raw []byte) (*DeliveryRecord, error) {
	rec := new(DeliveryRecord)
	if err := decodeBody(raw, RecordDelivery, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// DecodeMultiParty parses a multi-party configuration payload.
func DecodeMultiParty(raw []byte) (*MultiPartyRecord, error) {
	rec := new(MultiPartyRecord)
	if err := decodeBody(raw, RecordMultiParty, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// DecodeConditionSet parses a release-condition set payload.
func DecodeConditionSet(raw []byte) (*ConditionSetRecord, error) {
	rec := new(ConditionSetRecord)
	if err := decodeBody(raw, RecordConditionSet, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// DecodeOracleValue parses an oracle feed payload.
func DecodeOracleValue(raw []byte) (*OracleValueRecord, error) {
	rec := new(OracleValueRecord)
	if err := decodeBody(raw, RecordOracleValue, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// DecodeApprovalSet parses a release-approval set payload.
func DecodeApprovalSet(raw []byte) (*ApprovalSetRecord, error) {
	rec := new(ApprovalSetRecord)
	if err := decodeBody(raw, RecordApprovalSet, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// DecodeEvidenceSet parses a dispute evidence trail payload.
func DecodeEvidenceSet(raw []byte) (*EvidenceSetRecord, error) {
	rec := new(EvidenceSetRecord)
	if err := decodeBody(raw, RecordEvidenceSet, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// DecodeTokenHolding parses a token balance payload.
func DecodeTokenHolding(raw []byte) (*TokenHoldingRecord, error) {
	rec := new(TokenHoldingRecord)
	if err := decodeBody(raw, RecordTokenHolding, rec); err != nil {
		return nil, err
	}
	return rec, nil
}
