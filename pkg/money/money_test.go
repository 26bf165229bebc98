package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestFromCents(t *testing.T) {
	require.Equal(t, "12.99", FromCents(1299).StringFixed(2))
	require.Equal(t, "0.05", FromCents(5).StringFixed(2))
	require.Equal(t, "-3.00", FromCents(-300).StringFixed(2))
}

func TestToCentsRoundsHalfAwayFromZero(t *testing.T) {
	require.Equal(t, int64(1300), ToCents(decimal.RequireFromString("12.995")))
	require.Equal(t, int64(1299), ToCents(decimal.RequireFromString("12.994")))
	require.Equal(t, int64(-1300), ToCents(decimal.RequireFromString("-12.995")))
}

func TestApplyRate(t *testing.T) {
	require.Equal(t, int64(130), ApplyRate(1299, decimal.RequireFromString("0.10")))
	require.Equal(t, int64(0), ApplyRate(1299, decimal.Zero))
	require.Equal(t, int64(1), ApplyRate(5, decimal.RequireFromString("0.10")))
}
