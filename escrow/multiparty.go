package escrow

import (
	"fmt"
	"math/big"

	"workledger/ledger"
)

// PartyRole describes a participant's standing in a multi-party escrow.
type PartyRole uint8

const (
	RoleDepositor PartyRole = iota + 1
	RoleBeneficiary
	RoleArbitrator
)

// Valid reports whether the role value is supported.
func (r PartyRole) Valid() bool {
	switch r {
	case RoleDepositor, RoleBeneficiary, RoleArbitrator:
		return true
	default:
		return false
	}
}

func (r PartyRole) String() string {
	switch r {
	case RoleDepositor:
		return "depositor"
	case RoleBeneficiary:
		return "beneficiary"
	case RoleArbitrator:
		return "arbitrator"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(r))
	}
}

// Party is one configured participant with its payout share.
type Party struct {
	Address  ledger.Address
	SharePct uint8
	Role     PartyRole
}

// MultiPartyConfig records the distribution rule for an escrow shared by two
// or more parties. Creation records the rule only; payouts are computed at
// release time with SplitAmounts.
type MultiPartyConfig struct {
	// Nonce distinguishes escrows created by the same signer; retries with
	// the same nonce target the same accounts.
	Nonce             uint64
	Parties           []Party
	TotalAmount       *big.Int
	Arbitrator        ledger.Address
	ReleaseConditions []ReleaseCondition
	Deadline          int64
}

// Validate enforces the configuration invariants before any ledger
// submission: at least two parties, shares summing to exactly 100, no
// duplicate addresses and at least one beneficiary.
func (c *MultiPartyConfig) Validate(now int64) error {
	if c == nil {
		return fmt.Errorf("%w: nil config", ErrInvalidInput)
	}
	if len(c.Parties) < 2 {
		return fmt.Errorf("%w: got %d", ErrInsufficientParties, len(c.Parties))
	}
	total := 0
	beneficiaries := 0
	seen := make(map[ledger.Address]struct{}, len(c.Parties))
	for i, p := range c.Parties {
		if p.Address.IsZero() {
			return fmt.Errorf("%w: party %d address required", ErrInvalidInput, i)
		}
		if !p.Role.Valid() {
			return fmt.Errorf("%w: party %d role invalid", ErrInvalidInput, i)
		}
		if _, dup := seen[p.Address]; dup {
			return fmt.Errorf("%w: duplicate party %s", ErrInvalidInput, p.Address)
		}
		seen[p.Address] = struct{}{}
		total += int(p.SharePct)
		if p.Role == RoleBeneficiary {
			beneficiaries++
		}
	}
	if total != 100 {
		return fmt.Errorf("%w: got %d", ErrInvalidShareTotal, total)
	}
	if beneficiaries == 0 {
		return fmt.Errorf("%w: at least one beneficiary party required", ErrInvalidInput)
	}
	if c.TotalAmount == nil || c.TotalAmount.Sign() <= 0 {
		return fmt.Errorf("%w: total amount must be positive", ErrInvalidInput)
	}
	if c.Deadline != 0 && c.Deadline <= now {
		return ErrInvalidDeadline
	}
	for _, cond := range c.ReleaseConditions {
		if err := cond.validate(now); err != nil {
			return err
		}
	}
	return nil
}

// SplitAmounts computes proportional payouts across all configured parties
// using floor division. The rounding remainder is credited to the first
// beneficiary in party order so no value is dropped; when no beneficiary is
// configured the remainder goes to the first party.
func SplitAmounts(total *big.Int, parties []Party) (map[ledger.Address]*big.Int, error) {
	if total == nil || total.Sign() <= 0 {
		return nil, fmt.Errorf("%w: split total must be positive", ErrInvalidInput)
	}
	if len(parties) == 0 {
		return nil, fmt.Errorf("%w: no parties to split across", ErrInvalidInput)
	}
	shareTotal := 0
	for _, p := range parties {
		shareTotal += int(p.SharePct)
	}
	if shareTotal != 100 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidShareTotal, shareTotal)
	}

	hundred := big.NewInt(100)
	payouts := make(map[ledger.Address]*big.Int, len(parties))
	distributed := big.NewInt(0)
	for _, p := range parties {
		cut := new(big.Int).Mul(total, big.NewInt(int64(p.SharePct)))
		cut.Div(cut, hundred)
		payouts[p.Address] = cut
		distributed.Add(distributed, cut)
	}

	remainder := new(big.Int).Sub(total, distributed)
	if remainder.Sign() > 0 {
		target := parties[0].Address
		for _, p := range parties {
			if p.Role == RoleBeneficiary {
				target = p.Address
				break
			}
		}
		payouts[target] = new(big.Int).Add(payouts[target], remainder)
	}
	return payouts, nil
}

func partiesToRecords(parties []Party) []ledger.PartyRecord {
	out := make([]ledger.PartyRecord, 0, len(parties))
	for _, p := range parties {
		out = append(out, ledger.PartyRecord{Addr: p.Address, SharePct: p.SharePct, Role: uint8(p.Role)})
	}
	return out
}

func partiesFromRecords(records []ledger.PartyRecord) ([]Party, error) {
	out := make([]Party, 0, len(records))
	for i, rec := range records {
		role := PartyRole(rec.Role)
		if !role.Valid() {
			return nil, fmt.Errorf("%w: party %d role invalid", ErrInvalidInput, i)
		}
		out = append(out, Party{Address: rec.Addr, SharePct: rec.SharePct, Role: role})
	}
	return out, nil
}
