package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestToMinorUnits(t *testing.T) {
	got, err := ToMinorUnits(decimal.RequireFromString("10.25"), "usd")
	require.NoError(t, err)
	require.Equal(t, int64(1025), got)

	got, err = ToMinorUnits(decimal.NewFromInt(1000), "JPY")
	require.NoError(t, err)
	require.Equal(t, int64(1000), got)

	_, err = ToMinorUnits(decimal.RequireFromString("10.5"), "JPY")
	require.Error(t, err)

	_, err = ToMinorUnits(decimal.NewFromInt(-1), "USD")
	require.Error(t, err)
}

func TestFromMinorUnits(t *testing.T) {
	require.True(t, FromMinorUnits(1025, "USD").Equal(decimal.RequireFromString("10.25")))
	require.True(t, FromMinorUnits(1000, "jpy").Equal(decimal.NewFromInt(1000)))
}
