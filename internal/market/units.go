package market

import (
	"math/big"
	"strings"

	apperrors "github.com/lendchat/lendchat/pkg/errors"
)

// NativeDecimals is the fixed precision of the network's native coin.
// ERC20 precision is always read from the token contract.
const NativeDecimals uint8 = 18

// ParseAmount converts a decimal string into the token's smallest
// unit. The result must be strictly positive; fractional digits beyond
// the token's precision are rejected rather than truncated.
func ParseAmount(amount string, decimals uint8) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, apperrors.New(apperrors.ErrCodeInvalidAmount, "Amount is empty")
	}

	whole, frac := amount, ""
	if i := strings.IndexByte(amount, '.'); i >= 0 {
		whole, frac = amount[:i], amount[i+1:]
	}
	if whole == "" {
		whole = "0"
	}

	if len(frac) > int(decimals) {
		return nil, apperrors.NewWithDetail(
			apperrors.ErrCodeInvalidAmount,
			"Amount has too many decimal places",
			amount,
		)
	}
	// Right-pad the fraction to the token's precision.
	frac += strings.Repeat("0", int(decimals)-len(frac))

	value, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, apperrors.NewWithDetail(apperrors.ErrCodeInvalidAmount, "Amount is not a number", amount)
	}
	if value.Sign() <= 0 {
		return nil, apperrors.NewWithDetail(apperrors.ErrCodeInvalidAmount, "Amount must be positive", amount)
	}

	return value, nil
}

// FormatAmount renders a smallest-unit value as a decimal string,
// trimming trailing zeros from the fraction.
func FormatAmount(value *big.Int, decimals uint8) string {
	if value == nil {
		return "0"
	}

	s := value.String()
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}

	if len(s) <= int(decimals) {
		s = strings.Repeat("0", int(decimals)-len(s)+1) + s
	}

	split := len(s) - int(decimals)
	whole, frac := s[:split], s[split:]
	frac = strings.TrimRight(frac, "0")

	out := whole
	if frac != "" {
		out += "." + frac
	}
	if neg {
		out = "-" + out
	}
	return out
}
