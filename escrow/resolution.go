package escrow

import (
	"fmt"
	"math/big"
	"strings"
)

// ResolutionKind discriminates arbitration outcomes.
type ResolutionKind uint8

const (
	ResolutionRefund ResolutionKind = iota + 1
	ResolutionRelease
	ResolutionSplit
)

func (k ResolutionKind) String() string {
	switch k {
	case ResolutionRefund:
		return "refund"
	case ResolutionRelease:
		return "release"
	case ResolutionSplit:
		return "split"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// SplitRatio divides an escrow between depositor and beneficiary. The two
// percentages must sum to exactly 100.
type SplitRatio struct {
	DepositorPct   uint8
	BeneficiaryPct uint8
}

// Valid reports whether the ratio sums to 100.
func (r SplitRatio) Valid() bool {
	return int(r.DepositorPct)+int(r.BeneficiaryPct) == 100
}

// Resolution is an arbitrator-issued decision that terminates a contested
// escrow. Construct values through NewRefund, NewRelease or NewSplit so that
// fields irrelevant to the kind stay unrepresentable.
type Resolution struct {
	kind   ResolutionKind
	reason string
	amount *big.Int
	ratio  SplitRatio
}

// NewRefund returns the depositor their funds. A nil amount refunds the full
// escrow balance.
func NewRefund(reason string, amount *big.Int) (Resolution, error) {
	if err := validateResolutionInputs(reason, amount); err != nil {
		return Resolution{}, err
	}
	return Resolution{kind: ResolutionRefund, reason: reason, amount: cloneAmount(amount)}, nil
}

// NewRelease pays the beneficiary. A nil amount releases the full escrow
// balance.
func NewRelease(reason string, amount *big.Int) (Resolution, error) {
	if err := validateResolutionInputs(reason, amount); err != nil {
		return Resolution{}, err
	}
	return Resolution{kind: ResolutionRelease, reason: reason, amount: cloneAmount(amount)}, nil
}

// NewSplit divides the escrow between depositor and beneficiary by the given
// ratio.
func NewSplit(reason string, ratio SplitRatio) (Resolution, error) {
	if err := validateResolutionInputs(reason, nil); err != nil {
		return Resolution{}, err
	}
	if ratio == (SplitRatio{}) {
		return Resolution{}, ErrMissingSplitRatio
	}
	if !ratio.Valid() {
		return Resolution{}, fmt.Errorf("%w: %d + %d != 100", ErrInvalidShareTotal, ratio.DepositorPct, ratio.BeneficiaryPct)
	}
	return Resolution{kind: ResolutionSplit, reason: reason, ratio: ratio}, nil
}

// Kind reports the resolution variant.
func (r Resolution) Kind() ResolutionKind { return r.kind }

// Reason reports the arbitrator's stated reason.
func (r Resolution) Reason() string { return r.reason }

// Amount reports the explicit override for refund/release resolutions, or
// nil when the full balance applies.
func (r Resolution) Amount() *big.Int { return cloneAmount(r.amount) }

// Ratio reports the split ratio for split resolutions.
func (r Resolution) Ratio() SplitRatio { return r.ratio }

func validateResolutionInputs(reason string, amount *big.Int) error {
	if strings.TrimSpace(reason) == "" {
		return fmt.Errorf("%w: resolution reason required", ErrInvalidInput)
	}
	if len(reason) > MaxReasonLength {
		return fmt.Errorf("%w: resolution reason exceeds %d bytes", ErrInvalidInput, MaxReasonLength)
	}
	if amount != nil && amount.Sign() <= 0 {
		return fmt.Errorf("%w: resolution amount must be positive", ErrInvalidInput)
	}
	return nil
}

func cloneAmount(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

// SplitEscrow computes the depositor and beneficiary payouts for a two-party
// split using floor division. Any unit lost to rounding is credited to the
// beneficiary so no value is silently dropped.
func SplitEscrow(amount *big.Int, ratio SplitRatio) (depositor, beneficiary *big.Int, err error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, nil, fmt.Errorf("%w: split amount must be positive", ErrInvalidInput)
	}
	if !ratio.Valid() {
		return nil, nil, fmt.Errorf("%w: %d + %d != 100", ErrInvalidShareTotal, ratio.DepositorPct, ratio.BeneficiaryPct)
	}
	hundred := big.NewInt(100)
	depositor = new(big.Int).Mul(amount, big.NewInt(int64(ratio.DepositorPct)))
	depositor.Div(depositor, hundred)
	beneficiary = new(big.Int).Sub(amount, depositor)
	return depositor, beneficiary, nil
}
