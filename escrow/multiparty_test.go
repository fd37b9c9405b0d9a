package escrow

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMultiPartyConfigValidate(t *testing.T) {
	valid := MultiPartyConfig{
		Parties: []Party{
			{Address: addr(1), SharePct: 60, Role: RoleDepositor},
			{Address: addr(2), SharePct: 40, Role: RoleBeneficiary},
		},
		TotalAmount: big.NewInt(10_000),
	}
	require.NoError(t, valid.Validate(fixedNow))

	single := valid
	single.Parties = valid.Parties[:1]
	require.ErrorIs(t, single.Validate(fixedNow), ErrInsufficientParties)

	over := valid
	over.Parties = []Party{
		{Address: addr(1), SharePct: 60, Role: RoleDepositor},
		{Address: addr(2), SharePct: 50, Role: RoleBeneficiary},
	}
	require.ErrorIs(t, over.Validate(fixedNow), ErrInvalidShareTotal)

	dup := valid
	dup.Parties = []Party{
		{Address: addr(1), SharePct: 60, Role: RoleDepositor},
		{Address: addr(1), SharePct: 40, Role: RoleBeneficiary},
	}
	require.ErrorIs(t, dup.Validate(fixedNow), ErrInvalidInput)

	noBeneficiary := valid
	noBeneficiary.Parties = []Party{
		{Address: addr(1), SharePct: 60, Role: RoleDepositor},
		{Address: addr(2), SharePct: 40, Role: RoleArbitrator},
	}
	require.ErrorIs(t, noBeneficiary.Validate(fixedNow), ErrInvalidInput)

	pastDeadline := valid
	pastDeadline.Deadline = fixedNow - 1
	require.ErrorIs(t, pastDeadline.Validate(fixedNow), ErrInvalidDeadline)

	badCondition := valid
	badCondition.ReleaseConditions = []ReleaseCondition{Timelock(fixedNow - 1)}
	require.ErrorIs(t, badCondition.Validate(fixedNow), ErrInvalidCondition)
}

func TestSplitAmountsExactShares(t *testing.T) {
	parties := []Party{
		{Address: addr(1), SharePct: 50, Role: RoleDepositor},
		{Address: addr(2), SharePct: 30, Role: RoleBeneficiary},
		{Address: addr(3), SharePct: 20, Role: RoleBeneficiary},
	}
	payouts, err := SplitAmounts(big.NewInt(1_000), parties)
	require.NoError(t, err)
	require.Equal(t, "500", payouts[addr(1)].String())
	require.Equal(t, "300", payouts[addr(2)].String())
	require.Equal(t, "200", payouts[addr(3)].String())
}

func TestSplitAmountsRemainderToFirstBeneficiary(t *testing.T) {
	parties := []Party{
		{Address: addr(1), SharePct: 33, Role: RoleDepositor},
		{Address: addr(2), SharePct: 33, Role: RoleBeneficiary},
		{Address: addr(3), SharePct: 34, Role: RoleBeneficiary},
	}
	total := big.NewInt(1_000)
	payouts, err := SplitAmounts(total, parties)
	require.NoError(t, err)

	sum := big.NewInt(0)
	for _, cut := range payouts {
		sum.Add(sum, cut)
	}
	require.Equal(t, 0, sum.Cmp(total))

	// floor(1000*33/100)=330 each plus the 1-unit remainder to addr(2).
	require.Equal(t, "330", payouts[addr(1)].String())
	require.Equal(t, "331", payouts[addr(2)].String())
	require.Equal(t, "340", payouts[addr(3)].String())
}

func TestSplitAmountsRejectsBadInput(t *testing.T) {
	parties := []Party{
		{Address: addr(1), SharePct: 50, Role: RoleDepositor},
		{Address: addr(2), SharePct: 49, Role: RoleBeneficiary},
	}
	_, err := SplitAmounts(big.NewInt(1_000), parties)
	require.ErrorIs(t, err, ErrInvalidShareTotal)

	_, err = SplitAmounts(big.NewInt(0), parties)
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = SplitAmounts(big.NewInt(1_000), nil)
	require.ErrorIs(t, err, ErrInvalidInput)
}
