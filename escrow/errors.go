package escrow

import "errors"

// Error kinds surfaced by the coordinator. Validation failures are detected
// locally and rejected before any ledger submission; gateway failures are
// wrapped in *ledger.GatewayError and never retried here.
var (
	// ErrUnauthorized marks a caller without standing for the requested
	// mutation (wrong depositor, provider or arbitrator).
	ErrUnauthorized = errors.New("escrow: unauthorized caller")

	// ErrInvalidState marks an operation against an escrow or work order
	// outside the required lifecycle state.
	ErrInvalidState = errors.New("escrow: invalid lifecycle state")

	// ErrNotFound marks a missing escrow or work-order account where one is
	// required. Read-path lookups return nil instead.
	ErrNotFound = errors.New("escrow: not found")

	// ErrInsufficientFunds marks a requested amount above the available
	// balance.
	ErrInsufficientFunds = errors.New("escrow: insufficient funds")

	// ErrInvalidDeadline marks a deadline that is not in the future.
	ErrInvalidDeadline = errors.New("escrow: deadline must be in the future")

	// ErrInvalidCondition marks a malformed automated release condition.
	ErrInvalidCondition = errors.New("escrow: invalid release condition")

	// ErrInvalidShareTotal marks party shares that do not sum to exactly 100.
	ErrInvalidShareTotal = errors.New("escrow: party shares must sum to 100")

	// ErrInsufficientParties marks a multi-party config with fewer than two
	// parties.
	ErrInsufficientParties = errors.New("escrow: at least two parties required")

	// ErrMissingSplitRatio marks a split resolution without a ratio.
	ErrMissingSplitRatio = errors.New("escrow: split resolution requires a ratio")

	// ErrInvalidInput marks any other locally detected validation failure.
	ErrInvalidInput = errors.New("escrow: invalid input")

	errNilGateway = errors.New("escrow: ledger gateway not configured")
)
