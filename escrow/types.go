package escrow

import (
	"fmt"
	"math/big"
	"strings"

	"workledger/ledger"
)

// EscrowState represents the lifecycle states of a ledger-held escrow.
// Transitions are one-directional: Pending moves to Completed or Cancelled
// and never back.
type EscrowState uint8

const (
	EscrowPending EscrowState = iota
	EscrowCompleted
	EscrowCancelled
)

// Valid reports whether the state value is within the supported range.
func (s EscrowState) Valid() bool {
	switch s {
	case EscrowPending, EscrowCompleted, EscrowCancelled:
		return true
	default:
		return false
	}
}

func (s EscrowState) String() string {
	switch s {
	case EscrowPending:
		return "pending"
	case EscrowCompleted:
		return "completed"
	case EscrowCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// WorkOrderStatus tracks a work agreement through its lifecycle. Completed
// and Cancelled are terminal.
type WorkOrderStatus uint8

const (
	OrderCreated WorkOrderStatus = iota
	OrderOpen
	OrderSubmitted
	OrderInProgress
	OrderApproved
	OrderCompleted
	OrderCancelled
)

// Valid reports whether the status value is within the supported range.
func (s WorkOrderStatus) Valid() bool { return s <= OrderCancelled }

// Terminal reports whether the order can no longer change.
func (s WorkOrderStatus) Terminal() bool {
	return s == OrderCompleted || s == OrderCancelled
}

func (s WorkOrderStatus) String() string {
	switch s {
	case OrderCreated:
		return "created"
	case OrderOpen:
		return "open"
	case OrderSubmitted:
		return "submitted"
	case OrderInProgress:
		return "in_progress"
	case OrderApproved:
		return "approved"
	case OrderCompleted:
		return "completed"
	case OrderCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// DeliverableKind tags one deliverable in a work delivery.
type DeliverableKind uint8

const (
	DeliverableCode DeliverableKind = iota
	DeliverableDocument
	DeliverableDesign
	DeliverableAnalysis
	DeliverableOther
)

// Valid reports whether the kind is a supported deliverable tag.
func (d DeliverableKind) Valid() bool { return d <= DeliverableOther }

func (d DeliverableKind) String() string {
	switch d {
	case DeliverableCode:
		return "code"
	case DeliverableDocument:
		return "document"
	case DeliverableDesign:
		return "design"
	case DeliverableAnalysis:
		return "analysis"
	case DeliverableOther:
		return "other"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(d))
	}
}

// ParseDeliverableKind maps a textual deliverable tag to its kind.
func ParseDeliverableKind(s string) (DeliverableKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "code":
		return DeliverableCode, nil
	case "document":
		return DeliverableDocument, nil
	case "design":
		return DeliverableDesign, nil
	case "analysis":
		return DeliverableAnalysis, nil
	case "other":
		return DeliverableOther, nil
	default:
		return 0, fmt.Errorf("%w: unknown deliverable kind %q", ErrInvalidInput, s)
	}
}

// Input bounds carried over from the authoritative ledger program.
const (
	MaxTitleLength       = 128
	MaxDescriptionLength = 4096
	MaxRequirementItems  = 10
	MaxRequirementLength = 256
	MaxMetadataURILength = 256
	MaxDeliverables      = 5
	MaxReasonLength      = 256

	MaxEvidenceEntries    = 10
	MaxEvidenceKindLength = 64
	MaxEvidenceDataLength = 512
)

// Payment bounds in native currency units.
var (
	MinPaymentAmount = big.NewInt(1_000)
	MaxPaymentAmount = big.NewInt(1_000_000_000_000)
)

// Escrow is the coordinator's view of a ledger escrow account. Values are
// point-in-time snapshots; the ledger remains the source of truth.
type Escrow struct {
	ID            ledger.AccountID
	Depositor     ledger.Address
	Beneficiary   ledger.Address
	Arbitrator    ledger.Address
	Amount        *big.Int
	State         EscrowState
	CreatedAt     int64
	ReleaseAt     int64
	WorkOrder     ledger.AccountID
	DisputeReason string
}

// Clone returns a deep copy so callers can mutate freely.
func (e *Escrow) Clone() *Escrow {
	if e == nil {
		return nil
	}
	clone := *e
	if e.Amount != nil {
		clone.Amount = new(big.Int).Set(e.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	return &clone
}

// HasTimelock reports whether a release time is configured.
func (e *Escrow) HasTimelock() bool { return e != nil && e.ReleaseAt > 0 }

// WorkOrder is the coordinator's view of a ledger work-order account.
type WorkOrder struct {
	ID            uint64
	Account       ledger.AccountID
	Client        ledger.Address
	Provider      ledger.Address
	Title         string
	Description   string
	Requirements  []string
	PaymentAmount *big.Int
	PaymentToken  ledger.Address
	Status        WorkOrderStatus
	CreatedAt     int64
	UpdatedAt     int64
	DeliveredAt   int64
	Deadline      int64
	Escrow        ledger.AccountID
	Delivery      ledger.AccountID
}

// Clone returns a deep copy of the work order.
func (w *WorkOrder) Clone() *WorkOrder {
	if w == nil {
		return nil
	}
	clone := *w
	clone.Requirements = append([]string(nil), w.Requirements...)
	if w.PaymentAmount != nil {
		clone.PaymentAmount = new(big.Int).Set(w.PaymentAmount)
	} else {
		clone.PaymentAmount = big.NewInt(0)
	}
	return &clone
}

// Delivered reports whether a delivery record has been submitted.
func (w *WorkOrder) Delivered() bool { return w != nil && !w.Delivery.IsZero() }

// WorkDelivery is an immutable record of a provider's submission. Corrections
// require a new record, never a mutation.
type WorkDelivery struct {
	ID           ledger.AccountID
	WorkOrder    ledger.AccountID
	Provider     ledger.Address
	Deliverables []DeliverableKind
	ContentHash  [32]byte
	MetadataURI  string
	SubmittedAt  int64
}

// DisputeEvidence is one entry in a contested escrow's evidence trail. Data
// holds a content reference such as a hash or storage URI.
type DisputeEvidence struct {
	Submitter   ledger.Address
	Kind        string
	Data        string
	SubmittedAt int64
}

// UserEscrow pairs an escrow snapshot with its record id for listings.
type UserEscrow struct {
	ID     ledger.AccountID
	Escrow *Escrow
}

// ReleaseCheck is the result of the manual release precondition scan.
type ReleaseCheck struct {
	CanRelease bool
	Reason     string
}

func escrowFromRecord(id ledger.AccountID, rec *ledger.EscrowRecord) (*Escrow, error) {
	if rec == nil {
		return nil, fmt.Errorf("escrow: nil record")
	}
	state := EscrowState(rec.State)
	if !state.Valid() {
		return nil, fmt.Errorf("escrow: invalid state %d in record %s", rec.State, id)
	}
	amount := rec.Amount
	if amount == nil {
		amount = big.NewInt(0)
	}
	return &Escrow{
		ID:            id,
		Depositor:     rec.Depositor,
		Beneficiary:   rec.Beneficiary,
		Arbitrator:    rec.Arbitrator,
		Amount:        new(big.Int).Set(amount),
		State:         state,
		CreatedAt:     int64(rec.CreatedAt),
		ReleaseAt:     int64(rec.ReleaseAt),
		WorkOrder:     rec.WorkOrder,
		DisputeReason: rec.DisputeReason,
	}, nil
}

func workOrderFromRecord(account ledger.AccountID, rec *ledger.WorkOrderRecord) (*WorkOrder, error) {
	if rec == nil {
		return nil, fmt.Errorf("escrow: nil work order record")
	}
	status := WorkOrderStatus(rec.Status)
	if !status.Valid() {
		return nil, fmt.Errorf("escrow: invalid work order status %d in record %s", rec.Status, account)
	}
	amount := rec.PaymentAmount
	if amount == nil {
		amount = big.NewInt(0)
	}
	return &WorkOrder{
		ID:            rec.OrderID,
		Account:       account,
		Client:        rec.Client,
		Provider:      rec.Provider,
		Title:         rec.Title,
		Description:   rec.Description,
		Requirements:  append([]string(nil), rec.Requirements...),
		PaymentAmount: new(big.Int).Set(amount),
		PaymentToken:  rec.PaymentToken,
		Status:        status,
		CreatedAt:     int64(rec.CreatedAt),
		UpdatedAt:     int64(rec.UpdatedAt),
		DeliveredAt:   int64(rec.DeliveredAt),
		Deadline:      int64(rec.Deadline),
		Escrow:        rec.Escrow,
		Delivery:      rec.Delivery,
	}, nil
}

func deliveryFromRecord(id ledger.AccountID, rec *ledger.DeliveryRecord) (*WorkDelivery, error) {
	if rec == nil {
		return nil, fmt.Errorf("escrow: nil delivery record")
	}
	kinds := make([]DeliverableKind, 0, len(rec.Deliverables))
	for _, d := range rec.Deliverables {
		kind := DeliverableKind(d)
		if !kind.Valid() {
			return nil, fmt.Errorf("escrow: invalid deliverable kind %d in record %s", d, id)
		}
		kinds = append(kinds, kind)
	}
	return &WorkDelivery{
		ID:           id,
		WorkOrder:    rec.WorkOrder,
		Provider:     rec.Provider,
		Deliverables: kinds,
		ContentHash:  rec.ContentHash,
		MetadataURI:  rec.MetadataURI,
		SubmittedAt:  int64(rec.SubmittedAt),
	}, nil
}

func validateRequirements(reqs []string) error {
	if len(reqs) > MaxRequirementItems {
		return fmt.Errorf("%w: %d requirements exceed limit of %d", ErrInvalidInput, len(reqs), MaxRequirementItems)
	}
	for i, req := range reqs {
		if strings.TrimSpace(req) == "" {
			return fmt.Errorf("%w: requirement %d is empty", ErrInvalidInput, i)
		}
		if len(req) > MaxRequirementLength {
			return fmt.Errorf("%w: requirement %d exceeds %d bytes", ErrInvalidInput, i, MaxRequirementLength)
		}
	}
	return nil
}
