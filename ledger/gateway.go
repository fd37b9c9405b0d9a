package ledger

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
)

// Address identifies an account on the ledger.
type Address [20]byte

// ZeroAddress is the empty address used for optional participants.
var ZeroAddress = Address{}

// String returns the canonical hex form of the address.
func (a Address) String() string { return "0x" + hex.EncodeToString(a[:]) }

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool { return a == ZeroAddress }

// ParseAddress decodes a 20-byte hex address with optional 0x prefix.
func ParseAddress(s string) (Address, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return Address{}, fmt.Errorf("ledger: invalid address %q: %w", s, err)
	}
	if len(raw) != 20 {
		return Address{}, fmt.Errorf("ledger: invalid address length %d", len(raw))
	}
	var addr Address
	copy(addr[:], raw)
	return addr, nil
}

// AccountID identifies a derived record account (escrow, work order, delivery).
type AccountID [32]byte

// String returns the canonical hex form of the account id.
func (id AccountID) String() string { return hex.EncodeToString(id[:]) }

// IsZero reports whether the id is unset.
func (id AccountID) IsZero() bool { return id == AccountID{} }

// ParseAccountID decodes a 32-byte hex account id.
func ParseAccountID(s string) (AccountID, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return AccountID{}, fmt.Errorf("ledger: invalid account id %q: %w", s, err)
	}
	if len(raw) != 32 {
		return AccountID{}, fmt.Errorf("ledger: invalid account id length %d", len(raw))
	}
	var id AccountID
	copy(id[:], raw)
	return id, nil
}

// ConfirmationID is the opaque handle returned by the ledger for a submitted
// instruction batch.
type ConfirmationID string

// Filter narrows a bulk account scan to records of a given kind, optionally
// restricted to those naming the participant address in any role.
type Filter struct {
	Kind        RecordKind
	Participant *Address
}

// AccountEntry pairs a record account id with its raw serialized state.
type AccountEntry struct {
	ID  AccountID
	Raw []byte
}

// Gateway is the coordinator's only external boundary. Submit lands one or
// more instructions atomically; a rejected instruction fails the whole batch.
// ReadAccount returns nil bytes with a nil error when the account does not
// exist.
type Gateway interface {
	Submit(ctx context.Context, instructions []Instruction, signers []Address) (ConfirmationID, error)
	ReadAccount(ctx context.Context, id AccountID) ([]byte, error)
	QueryAccounts(ctx context.Context, program Address, filters []Filter) ([]AccountEntry, error)
}

// GatewayError wraps a failed ledger call with enough context for a caller to
// decide on a retry. The coordinator never retries on its own.
type GatewayError struct {
	Op      string
	Account string
	Err     error
}

func (e *GatewayError) Error() string {
	if e.Account != "" {
		return fmt.Sprintf("ledger %s (%s): %v", e.Op, e.Account, e.Err)
	}
	return fmt.Sprintf("ledger %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// WrapGatewayError annotates err with the attempted operation and account.
// A nil err returns nil.
func WrapGatewayError(op, account string, err error) error {
	if err == nil {
		return nil
	}
	return &GatewayError{Op: op, Account: account, Err: err}
}
