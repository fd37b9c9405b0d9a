package escrow

import (
	"testing"

	"github.com/stretchr/testify/require"

	"workledger/ledger"
)

func TestConditionValidate(t *testing.T) {
	require.NoError(t, Timelock(fixedNow+1).validate(fixedNow))
	require.ErrorIs(t, Timelock(fixedNow).validate(fixedNow), ErrInvalidCondition)

	feed := ledger.AccountID{0x01}
	require.NoError(t, OracleEquals(feed, []byte("ok")).validate(fixedNow))
	require.ErrorIs(t, OracleEquals(ledger.AccountID{}, []byte("ok")).validate(fixedNow), ErrInvalidCondition)
	require.ErrorIs(t, OracleEquals(feed, nil).validate(fixedNow), ErrInvalidCondition)

	signers := []ledger.Address{addr(1), addr(2), addr(3)}
	require.NoError(t, MultisigApproval(signers, 2).validate(fixedNow))
	require.ErrorIs(t, MultisigApproval(nil, 1).validate(fixedNow), ErrInvalidCondition)
	require.ErrorIs(t, MultisigApproval(signers, 0).validate(fixedNow), ErrInvalidCondition)
	require.ErrorIs(t, MultisigApproval(signers, 4).validate(fixedNow), ErrInvalidCondition)
	require.ErrorIs(t, MultisigApproval([]ledger.Address{addr(1), addr(1)}, 1).validate(fixedNow), ErrInvalidCondition)
	require.ErrorIs(t, MultisigApproval([]ledger.Address{{}}, 1).validate(fixedNow), ErrInvalidCondition)

	require.ErrorIs(t, ReleaseCondition{}.validate(fixedNow), ErrInvalidCondition)
}

func TestConditionDescribe(t *testing.T) {
	require.Equal(t, "timelock(1700003600)", Timelock(1700003600).Describe())
	require.Equal(t, "multisig(2 of 3)", MultisigApproval([]ledger.Address{addr(1), addr(2), addr(3)}, 2).Describe())

	feed := ledger.AccountID{0xAA}
	require.Equal(t, "oracle("+feed.String()+")", OracleEquals(feed, []byte("x")).Describe())
}

func TestConditionRecordRoundTrip(t *testing.T) {
	conditions := []ReleaseCondition{
		Timelock(fixedNow + 60),
		OracleEquals(ledger.AccountID{0x02}, []byte("shipped")),
		MultisigApproval([]ledger.Address{addr(4), addr(5)}, 1),
	}
	for _, cond := range conditions {
		back, err := conditionFromRecord(conditionToRecord(cond))
		require.NoError(t, err)
		require.Equal(t, cond, back)
	}

	_, err := conditionFromRecord(ledger.ConditionRecord{Kind: 0x7F})
	require.ErrorIs(t, err, ErrInvalidCondition)
}
