package escrow

import (
	"fmt"

	"workledger/ledger"
)

// ConditionKind discriminates automated release conditions.
type ConditionKind uint8

const (
	ConditionTimelock ConditionKind = iota + 1
	ConditionOracle
	ConditionMultisig
)

func (k ConditionKind) String() string {
	switch k {
	case ConditionTimelock:
		return "timelock"
	case ConditionOracle:
		return "oracle"
	case ConditionMultisig:
		return "multisig"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// ReleaseCondition is a machine-checkable predicate whose satisfaction
// permits unattended release. Kind selects which fields are meaningful.
type ReleaseCondition struct {
	Kind ConditionKind

	// Timelock: release not before this unix timestamp.
	Timestamp int64

	// Oracle: the referenced feed account must hold ExpectedValue.
	Oracle        ledger.AccountID
	ExpectedValue []byte

	// Multisig: at least RequiredCount of Signers must approve.
	Signers       []ledger.Address
	RequiredCount uint32
}

// Timelock builds a timelock condition.
func Timelock(at int64) ReleaseCondition {
	return ReleaseCondition{Kind: ConditionTimelock, Timestamp: at}
}

// OracleEquals builds an oracle value condition.
func OracleEquals(feed ledger.AccountID, expected []byte) ReleaseCondition {
	return ReleaseCondition{Kind: ConditionOracle, Oracle: feed, ExpectedValue: append([]byte(nil), expected...)}
}

// MultisigApproval builds a multi-signer approval condition.
func MultisigApproval(signers []ledger.Address, required uint32) ReleaseCondition {
	return ReleaseCondition{Kind: ConditionMultisig, Signers: append([]ledger.Address(nil), signers...), RequiredCount: required}
}

// Describe renders a short stable label used in release-check reports.
func (c ReleaseCondition) Describe() string {
	switch c.Kind {
	case ConditionTimelock:
		return fmt.Sprintf("timelock(%d)", c.Timestamp)
	case ConditionOracle:
		return fmt.Sprintf("oracle(%s)", c.Oracle)
	case ConditionMultisig:
		return fmt.Sprintf("multisig(%d of %d)", c.RequiredCount, len(c.Signers))
	default:
		return c.Kind.String()
	}
}

// validate checks the condition at registration time. now is the coordinator
// clock; timelocks must point at the future.
func (c ReleaseCondition) validate(now int64) error {
	switch c.Kind {
	case ConditionTimelock:
		if c.Timestamp <= now {
			return fmt.Errorf("%w: timelock %d is not in the future", ErrInvalidCondition, c.Timestamp)
		}
	case ConditionOracle:
		if c.Oracle.IsZero() {
			return fmt.Errorf("%w: oracle feed account required", ErrInvalidCondition)
		}
		if len(c.ExpectedValue) == 0 {
			return fmt.Errorf("%w: oracle expected value required", ErrInvalidCondition)
		}
	case ConditionMultisig:
		if len(c.Signers) == 0 {
			return fmt.Errorf("%w: multisig requires at least one signer", ErrInvalidCondition)
		}
		if c.RequiredCount == 0 || int(c.RequiredCount) > len(c.Signers) {
			return fmt.Errorf("%w: multisig required count %d out of range for %d signers", ErrInvalidCondition, c.RequiredCount, len(c.Signers))
		}
		seen := make(map[ledger.Address]struct{}, len(c.Signers))
		for _, signer := range c.Signers {
			if signer.IsZero() {
				return fmt.Errorf("%w: multisig signer address required", ErrInvalidCondition)
			}
			if _, dup := seen[signer]; dup {
				return fmt.Errorf("%w: duplicate multisig signer %s", ErrInvalidCondition, signer)
			}
			seen[signer] = struct{}{}
		}
	default:
		return fmt.Errorf("%w: unknown condition kind %d", ErrInvalidCondition, c.Kind)
	}
	return nil
}

// AutomatedReleaseCheck reports per-condition evaluation results. CanRelease
// is true only when every registered condition is met and at least one
// condition exists; an escrow without conditions must go through the manual
// release path.
type AutomatedReleaseCheck struct {
	CanRelease       bool
	ConditionsMet    []string
	ConditionsNotMet []string
}

func conditionToRecord(c ReleaseCondition) ledger.ConditionRecord {
	rec := ledger.ConditionRecord{Kind: uint8(c.Kind)}
	switch c.Kind {
	case ConditionTimelock:
		rec.Timestamp = uint64(c.Timestamp)
	case ConditionOracle:
		rec.Oracle = c.Oracle
		rec.Expected = append([]byte(nil), c.ExpectedValue...)
	case ConditionMultisig:
		rec.Signers = append([]ledger.Address(nil), c.Signers...)
		rec.RequiredCount = c.RequiredCount
	}
	return rec
}

func conditionFromRecord(rec ledger.ConditionRecord) (ReleaseCondition, error) {
	kind := ConditionKind(rec.Kind)
	switch kind {
	case ConditionTimelock:
		return ReleaseCondition{Kind: kind, Timestamp: int64(rec.Timestamp)}, nil
	case ConditionOracle:
		return ReleaseCondition{Kind: kind, Oracle: rec.Oracle, ExpectedValue: append([]byte(nil), rec.Expected...)}, nil
	case ConditionMultisig:
		return ReleaseCondition{Kind: kind, Signers: append([]ledger.Address(nil), rec.Signers...), RequiredCount: rec.RequiredCount}, nil
	default:
		return ReleaseCondition{}, fmt.Errorf("%w: unknown condition kind %d", ErrInvalidCondition, rec.Kind)
	}
}
