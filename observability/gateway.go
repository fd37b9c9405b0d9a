package observability

import (
	"context"
	"time"

	"workledger/ledger"
)

// InstrumentGateway wraps gw so every remote ledger call is counted and
// timed on the ledger metrics registry.
func InstrumentGateway(gw ledger.Gateway) ledger.Gateway {
	return &instrumentedGateway{next: gw, metrics: LedgerGateway()}
}

type instrumentedGateway struct {
	next    ledger.Gateway
	metrics *gatewayMetrics
}

func (g *instrumentedGateway) Submit(ctx context.Context, instructions []ledger.Instruction, signers []ledger.Address) (ledger.ConfirmationID, error) {
	start := time.Now()
	confirmation, err := g.next.Submit(ctx, instructions, signers)
	g.metrics.ObserveCall("submit", err, time.Since(start))
	return confirmation, err
}

func (g *instrumentedGateway) ReadAccount(ctx context.Context, id ledger.AccountID) ([]byte, error) {
	start := time.Now()
	raw, err := g.next.ReadAccount(ctx, id)
	g.metrics.ObserveCall("read_account", err, time.Since(start))
	return raw, err
}

func (g *instrumentedGateway) QueryAccounts(ctx context.Context, program ledger.Address, filters []ledger.Filter) ([]ledger.AccountEntry, error) {
	start := time.Now()
	entries, err := g.next.QueryAccounts(ctx, program, filters)
	g.metrics.ObserveCall("query_accounts", err, time.Since(start))
	return entries, err
}
