package escrow

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitEscrowThirtySeventy(t *testing.T) {
	depositor, beneficiary, err := SplitEscrow(big.NewInt(1_000_000), SplitRatio{DepositorPct: 30, BeneficiaryPct: 70})
	require.NoError(t, err)
	require.Equal(t, "300000", depositor.String())
	require.Equal(t, "700000", beneficiary.String())
}

func TestSplitEscrowRoundingFavoursBeneficiary(t *testing.T) {
	amount := big.NewInt(1_001)
	depositor, beneficiary, err := SplitEscrow(amount, SplitRatio{DepositorPct: 33, BeneficiaryPct: 67})
	require.NoError(t, err)
	// floor(1001*33/100) = 330, the beneficiary takes the rest.
	require.Equal(t, "330", depositor.String())
	require.Equal(t, "671", beneficiary.String())
	require.Equal(t, 0, new(big.Int).Add(depositor, beneficiary).Cmp(amount))
}

func TestSplitEscrowRejectsBadRatio(t *testing.T) {
	_, _, err := SplitEscrow(big.NewInt(100), SplitRatio{DepositorPct: 40, BeneficiaryPct: 70})
	require.ErrorIs(t, err, ErrInvalidShareTotal)

	_, _, err = SplitEscrow(big.NewInt(0), SplitRatio{DepositorPct: 50, BeneficiaryPct: 50})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestResolutionConstructors(t *testing.T) {
	refund, err := NewRefund("never delivered", nil)
	require.NoError(t, err)
	require.Equal(t, ResolutionRefund, refund.Kind())
	require.Nil(t, refund.Amount())

	release, err := NewRelease("accepted", big.NewInt(500))
	require.NoError(t, err)
	require.Equal(t, "500", release.Amount().String())

	_, err = NewRefund("", nil)
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = NewRelease("late", big.NewInt(0))
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = NewSplit("shared blame", SplitRatio{})
	require.ErrorIs(t, err, ErrMissingSplitRatio)

	_, err = NewSplit("shared blame", SplitRatio{DepositorPct: 60, BeneficiaryPct: 60})
	require.ErrorIs(t, err, ErrInvalidShareTotal)

	split, err := NewSplit("shared blame", SplitRatio{DepositorPct: 25, BeneficiaryPct: 75})
	require.NoError(t, err)
	require.Equal(t, ResolutionSplit, split.Kind())
	require.Equal(t, SplitRatio{DepositorPct: 25, BeneficiaryPct: 75}, split.Ratio())
}
