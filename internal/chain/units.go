package chain

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

var weiPerEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// checkUint256 rejects amounts a uint256 contract argument cannot hold. The
// ABI packer truncates oversized values silently.
func checkUint256(v *big.Int) error {
	if v.Sign() < 0 || v.BitLen() > 256 {
		return fmt.Errorf("amount %s does not fit in uint256", v)
	}
	return nil
}

// ParseEther converts a decimal ether amount ("0.05") to wei. Amounts with more
// than 18 fractional digits are rejected rather than rounded.
func ParseEther(amount string) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, fmt.Errorf("amount is required")
	}

	r, ok := new(big.Rat).SetString(amount)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", amount)
	}
	r.Mul(r, new(big.Rat).SetInt(weiPerEther))
	if !r.IsInt() {
		return nil, fmt.Errorf("amount %q has more than 18 decimal places", amount)
	}
	wei := new(big.Int).Set(r.Num())
	if wei.BitLen() > 256 {
		return nil, checkUint256(wei)
	}
	return wei, nil
}

// ParseWei parses an integer wei amount
func ParseWei(amount string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(amount), 10)
	if !ok {
		return nil, fmt.Errorf("invalid wei amount %q", amount)
	}
	if v.BitLen() > 256 {
		return nil, checkUint256(v)
	}
	return v, nil
}

// FloatToWei converts a float ether amount, as stored in the record, to wei
func FloatToWei(ether float64) (*big.Int, error) {
	return ParseEther(strconv.FormatFloat(ether, 'f', -1, 64))
}

// FormatEther renders a wei amount as a decimal ether string
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return strings.TrimRight(strings.TrimRight(new(big.Rat).SetFrac(wei, weiPerEther).FloatString(18), "0"), ".")
}
