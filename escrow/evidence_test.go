package escrow

import (
	"context"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/stretchr/testify/require"

	"workledger/ledger"
)

func seedDisputedEscrow(t *testing.T, f *fakeLedger, depositor, beneficiary ledger.Address) ledger.AccountID {
	t.Helper()
	id := ledger.AccountID{0xD1}
	f.put(t, id, ledger.RecordEscrow, &ledger.EscrowRecord{
		Depositor:     depositor,
		Beneficiary:   beneficiary,
		Arbitrator:    addr(3),
		Amount:        big.NewInt(1_000_000),
		State:         uint8(EscrowPending),
		CreatedAt:     uint64(fixedNow - 100),
		DisputeReason: "work never delivered",
	})
	return id
}

func seedEvidenceTrail(t *testing.T, f *fakeLedger, escrowID ledger.AccountID, entries int) {
	t.Helper()
	records := make([]ledger.EvidenceRecord, 0, entries)
	for i := 0; i < entries; i++ {
		records = append(records, ledger.EvidenceRecord{
			Submitter:   addr(1),
			Kind:        "log",
			Data:        "ipfs://bafkreib",
			SubmittedAt: uint64(fixedNow - int64(entries-i)),
		})
	}
	f.put(t, ledger.EvidenceAccount(addr(0xEE), escrowID), ledger.RecordEvidenceSet, &ledger.EvidenceSetRecord{
		Escrow:  escrowID,
		Entries: records,
	})
}

func TestSubmitDisputeEvidence(t *testing.T) {
	f := newFakeLedger()
	c := testCoordinator(f)
	escrowID := seedDisputedEscrow(t, f, addr(1), addr(2))

	confirmation, err := c.SubmitDisputeEvidence(context.Background(), addr(2), escrowID, "screenshot", "ipfs://bafkreia")
	require.NoError(t, err)
	require.NotEmpty(t, confirmation)

	ins := f.lastSubmission(t)
	require.Equal(t, ledger.OpSubmitEvidence, ins.Opcode)
	var payload ledger.SubmitEvidencePayload
	require.NoError(t, rlp.DecodeBytes(ins.Data, &payload))
	require.Equal(t, escrowID, payload.Escrow)
	require.Equal(t, addr(2), payload.Submitter)
	require.Equal(t, "screenshot", payload.Kind)
	require.Equal(t, "ipfs://bafkreia", payload.Data)
}

func TestSubmitDisputeEvidenceValidation(t *testing.T) {
	f := newFakeLedger()
	c := testCoordinator(f)
	escrowID := seedDisputedEscrow(t, f, addr(1), addr(2))

	_, err := c.SubmitDisputeEvidence(context.Background(), addr(1), escrowID, "", "ipfs://x")
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = c.SubmitDisputeEvidence(context.Background(), addr(1), escrowID, "log", "  ")
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = c.SubmitDisputeEvidence(context.Background(), addr(1), escrowID, "log", strings.Repeat("x", MaxEvidenceDataLength+1))
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = c.SubmitDisputeEvidence(context.Background(), addr(1), escrowID, strings.Repeat("k", MaxEvidenceKindLength+1), "ipfs://x")
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestSubmitDisputeEvidenceRequiresOpenDispute(t *testing.T) {
	f := newFakeLedger()
	c := testCoordinator(f)

	undisputed := ledger.AccountID{0xD2}
	f.put(t, undisputed, ledger.RecordEscrow, &ledger.EscrowRecord{
		Depositor:   addr(1),
		Beneficiary: addr(2),
		Amount:      big.NewInt(500),
		State:       uint8(EscrowPending),
		CreatedAt:   uint64(fixedNow - 100),
	})
	_, err := c.SubmitDisputeEvidence(context.Background(), addr(1), undisputed, "log", "ipfs://x")
	require.ErrorIs(t, err, ErrInvalidState)

	settled := ledger.AccountID{0xD3}
	f.put(t, settled, ledger.RecordEscrow, &ledger.EscrowRecord{
		Depositor:     addr(1),
		Beneficiary:   addr(2),
		Amount:        big.NewInt(500),
		State:         uint8(EscrowCancelled),
		CreatedAt:     uint64(fixedNow - 100),
		DisputeReason: "contested",
	})
	_, err = c.SubmitDisputeEvidence(context.Background(), addr(1), settled, "log", "ipfs://x")
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestSubmitDisputeEvidenceOnlyParties(t *testing.T) {
	f := newFakeLedger()
	c := testCoordinator(f)
	escrowID := seedDisputedEscrow(t, f, addr(1), addr(2))

	_, err := c.SubmitDisputeEvidence(context.Background(), addr(3), escrowID, "log", "ipfs://x")
	require.ErrorIs(t, err, ErrUnauthorized)
	require.Empty(t, f.submissions)
}

func TestSubmitDisputeEvidenceTrailCapped(t *testing.T) {
	f := newFakeLedger()
	c := testCoordinator(f)
	escrowID := seedDisputedEscrow(t, f, addr(1), addr(2))
	seedEvidenceTrail(t, f, escrowID, MaxEvidenceEntries)

	_, err := c.SubmitDisputeEvidence(context.Background(), addr(1), escrowID, "log", "ipfs://x")
	require.ErrorIs(t, err, ErrInvalidState)
	require.Empty(t, f.submissions)
}

func TestGetDisputeEvidence(t *testing.T) {
	f := newFakeLedger()
	c := testCoordinator(f)
	escrowID := seedDisputedEscrow(t, f, addr(1), addr(2))

	entries, err := c.GetDisputeEvidence(context.Background(), escrowID)
	require.NoError(t, err)
	require.Empty(t, entries)

	seedEvidenceTrail(t, f, escrowID, 3)
	entries, err = c.GetDisputeEvidence(context.Background(), escrowID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, addr(1), entries[0].Submitter)
	require.Equal(t, "log", entries[0].Kind)

	_, err = c.GetDisputeEvidence(context.Background(), ledger.AccountID{0x7F})
	require.ErrorIs(t, err, ErrNotFound)
}
