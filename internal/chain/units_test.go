package chain

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEther(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1", "1000000000000000000"},
		{"0.05", "50000000000000000"},
		{" 2.5 ", "2500000000000000000"},
		{"0.000000000000000001", "1"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseEther(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestParseEther_Invalid(t *testing.T) {
	for _, in := range []string{"", "abc", "0.0000000000000000001"} {
		_, err := ParseEther(in)
		assert.Error(t, err, in)
	}
}

func TestFloatToWei(t *testing.T) {
	got, err := FloatToWei(0.1)
	require.NoError(t, err)
	assert.Equal(t, "100000000000000000", got.String())
}

func TestFormatEther(t *testing.T) {
	v, _ := new(big.Int).SetString("2500000000000000000", 10)
	assert.Equal(t, "2.5", FormatEther(v))
	assert.Equal(t, "0", FormatEther(new(big.Int)))
	assert.Equal(t, "3", FormatEther(new(big.Int).Mul(big.NewInt(3), weiPerEther)))
}

func TestParseWei(t *testing.T) {
	v, err := ParseWei("12345")
	require.NoError(t, err)
	assert.Equal(t, int64(12345), v.Int64())

	_, err = ParseWei("1.5")
	assert.Error(t, err)
}

func TestAmountsBeyondUint256(t *testing.T) {
	_, err := FloatToWei(1e60)
	assert.Error(t, err)

	tooBig := new(big.Int).Lsh(big.NewInt(1), 256)
	_, err = ParseWei(tooBig.String())
	assert.Error(t, err)

	max := new(big.Int).Sub(tooBig, big.NewInt(1))
	got, err := ParseWei(max.String())
	require.NoError(t, err)
	assert.Equal(t, 0, max.Cmp(got))
}
