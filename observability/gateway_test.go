package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"workledger/ledger"
)

type recordingGateway struct {
	submitErr error
	reads     int
}

func (g *recordingGateway) Submit(ctx context.Context, instructions []ledger.Instruction, signers []ledger.Address) (ledger.ConfirmationID, error) {
	if g.submitErr != nil {
		return "", g.submitErr
	}
	return "conf-1", nil
}

func (g *recordingGateway) ReadAccount(ctx context.Context, id ledger.AccountID) ([]byte, error) {
	g.reads++
	return []byte{0x01}, nil
}

func (g *recordingGateway) QueryAccounts(ctx context.Context, program ledger.Address, filters []ledger.Filter) ([]ledger.AccountEntry, error) {
	return nil, nil
}

func TestInstrumentGatewayDelegates(t *testing.T) {
	inner := &recordingGateway{}
	gw := InstrumentGateway(inner)

	before := testutil.ToFloat64(LedgerGateway().calls.WithLabelValues("submit", "success"))
	confirmation, err := gw.Submit(context.Background(), nil, nil)
	require.NoError(t, err)
	require.Equal(t, ledger.ConfirmationID("conf-1"), confirmation)
	after := testutil.ToFloat64(LedgerGateway().calls.WithLabelValues("submit", "success"))
	require.Equal(t, before+1, after)

	raw, err := gw.ReadAccount(context.Background(), ledger.AccountID{0x01})
	require.NoError(t, err)
	require.Equal(t, []byte{0x01}, raw)
	require.Equal(t, 1, inner.reads)
}

func TestInstrumentGatewayCountsErrors(t *testing.T) {
	inner := &recordingGateway{submitErr: errors.New("ledger unavailable")}
	gw := InstrumentGateway(inner)

	before := testutil.ToFloat64(LedgerGateway().calls.WithLabelValues("submit", "error"))
	_, err := gw.Submit(context.Background(), nil, nil)
	require.Error(t, err)
	after := testutil.ToFloat64(LedgerGateway().calls.WithLabelValues("submit", "error"))
	require.Equal(t, before+1, after)
}
