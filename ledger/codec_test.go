package ledger

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func testAddr(b byte) Address {
	var a Address
	a[19] = b
	return a
}

func TestRecordRejectsUnknownLayouts(t *testing.T) {
	raw, err := EncodeRecord(RecordEscrow, &EscrowRecord{
		Depositor:   testAddr(1),
		Beneficiary: testAddr(2),
		Amount:      big.NewInt(100),
	})
	require.NoError(t, err)

	_, _, err = DecodeRecordKind(raw[:3])
	require.ErrorIs(t, err, ErrRecordTooShort)

	badMagic := append([]byte(nil), raw...)
	badMagic[0] = 'X'
	_, _, err = DecodeRecordKind(badMagic)
	require.ErrorIs(t, err, ErrUnknownRecordKind)

	badKind := append([]byte(nil), raw...)
	badKind[4] = 0x7F
	_, _, err = DecodeRecordKind(badKind)
	require.ErrorIs(t, err, ErrUnknownRecordKind)

	_, err = EncodeRecord(RecordKind(0x7F), &EscrowRecord{})
	require.ErrorIs(t, err, ErrUnknownRecordKind)
}

func TestDecodeRejectsKindMismatch(t *testing.T) {
	raw, err := EncodeRecord(RecordTokenHolding, &TokenHoldingRecord{
		Owner:   testAddr(1),
		Token:   testAddr(2),
		Balance: big.NewInt(5),
	})
	require.NoError(t, err)

	_, err = DecodeEscrow(raw)
	require.Error(t, err)
}

func TestEscrowRecordRoundTrip(t *testing.T) {
	rec := &EscrowRecord{
		Depositor:     testAddr(1),
		Beneficiary:   testAddr(2),
		Arbitrator:    testAddr(3),
		Amount:        big.NewInt(500_000_000),
		State:         1,
		CreatedAt:     1_700_000_000,
		ReleaseAt:     1_700_086_400,
		WorkOrder:     AccountID{0xAA},
		DisputeReason: "late delivery",
	}
	raw, err := EncodeRecord(RecordEscrow, rec)
	require.NoError(t, err)

	back, err := DecodeEscrow(raw)
	require.NoError(t, err)
	require.Equal(t, rec, back)
}

func TestWorkOrderRecordRoundTrip(t *testing.T) {
	rec := &WorkOrderRecord{
		OrderID:       42,
		Client:        testAddr(1),
		Provider:      testAddr(2),
		Title:         "api integration",
		Description:   "hook up the billing provider",
		Requirements:  []string{"sandbox tested", "docs"},
		PaymentAmount: big.NewInt(1_000_000),
		PaymentToken:  testAddr(9),
		Status:        2,
		CreatedAt:     1_700_000_000,
		UpdatedAt:     1_700_000_100,
		Deadline:      1_700_086_400,
		Escrow:        AccountID{0x01},
		Delivery:      AccountID{0x02},
	}
	raw, err := EncodeRecord(RecordWorkOrder, rec)
	require.NoError(t, err)

	back, err := DecodeWorkOrder(raw)
	require.NoError(t, err)
	require.Equal(t, rec, back)
}

func TestConditionSetRoundTrip(t *testing.T) {
	rec := &ConditionSetRecord{
		Escrow: AccountID{0x05},
		Conditions: []ConditionRecord{
			{Kind: 1, Timestamp: 1_700_000_000},
			{Kind: 2, Oracle: AccountID{0x06}, Expected: []byte("shipped")},
			{Kind: 3, Signers: []Address{testAddr(1), testAddr(2)}, RequiredCount: 2},
		},
	}
	raw, err := EncodeRecord(RecordConditionSet, rec)
	require.NoError(t, err)

	back, err := DecodeConditionSet(raw)
	require.NoError(t, err)
	require.Equal(t, rec.Escrow, back.Escrow)
	require.Len(t, back.Conditions, 3)
	require.Equal(t, uint64(1_700_000_000), back.Conditions[0].Timestamp)
	require.Equal(t, []byte("shipped"), back.Conditions[1].Expected)
	require.Equal(t, rec.Conditions[2].Signers, back.Conditions[2].Signers)
	require.Equal(t, uint32(2), back.Conditions[2].RequiredCount)
}

func TestEvidenceSetRoundTrip(t *testing.T) {
	rec := &EvidenceSetRecord{
		Escrow: AccountID{0x07},
		Entries: []EvidenceRecord{
			{Submitter: testAddr(1), Kind: "screenshot", Data: "ipfs://bafkreia", SubmittedAt: 1_700_000_100},
			{Submitter: testAddr(2), Kind: "log", Data: "ipfs://bafkreib", SubmittedAt: 1_700_000_200},
		},
	}
	raw, err := EncodeRecord(RecordEvidenceSet, rec)
	require.NoError(t, err)

	back, err := DecodeEvidenceSet(raw)
	require.NoError(t, err)
	require.Equal(t, rec.Escrow, back.Escrow)
	require.Equal(t, rec.Entries, back.Entries)

	_, err = DecodeEscrow(raw)
	require.Error(t, err)
}
