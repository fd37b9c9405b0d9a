package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAccountDerivationIsDeterministic(t *testing.T) {
	program := testAddr(0xEE)
	client := testAddr(1)

	a := WorkOrderAccount(program, client, 7)
	b := WorkOrderAccount(program, client, 7)
	require.Equal(t, a, b)

	require.NotEqual(t, a, WorkOrderAccount(program, client, 8))
	require.NotEqual(t, a, WorkOrderAccount(program, testAddr(2), 7))

	escrowID := EscrowAccount(program, a)
	require.NotEqual(t, a, escrowID)
	require.Equal(t, escrowID, EscrowAccount(program, a))

	require.NotEqual(t, DeliveryAccount(program, a), escrowID)
	require.NotEqual(t, MultiPartyAccount(program, escrowID), ConditionAccount(program, escrowID))
	require.NotEqual(t, ConditionAccount(program, escrowID), ApprovalAccount(program, escrowID))
}

func TestMultiPartyEscrowAccountVariesByNonce(t *testing.T) {
	program := testAddr(0xEE)
	signer := testAddr(1)

	a := MultiPartyEscrowAccount(program, signer, 1)
	require.Equal(t, a, MultiPartyEscrowAccount(program, signer, 1))
	require.NotEqual(t, a, MultiPartyEscrowAccount(program, signer, 2))
	require.NotEqual(t, a, MultiPartyEscrowAccount(program, testAddr(2), 1))
}

func TestTokenAccountVariesByOwnerAndToken(t *testing.T) {
	program := testAddr(0xEE)
	a := TokenAccount(program, testAddr(1), testAddr(9))
	require.Equal(t, a, TokenAccount(program, testAddr(1), testAddr(9)))
	require.NotEqual(t, a, TokenAccount(program, testAddr(2), testAddr(9)))
	require.NotEqual(t, a, TokenAccount(program, testAddr(1), testAddr(8)))
}

func TestNewInstructionEncodesPayload(t *testing.T) {
	program := testAddr(0xEE)
	ins, err := NewInstruction(program, OpApproveRelease, ApproveReleasePayload{
		Escrow: AccountID{0x01},
		Signer: testAddr(5),
	})
	require.NoError(t, err)
	require.Equal(t, program, ins.Program)
	require.Equal(t, OpApproveRelease, ins.Opcode)
	require.NotEmpty(t, ins.Data)
}
