package pricing

import (
	"fmt"
	"math/big"
	"strings"
)

// weiPerEther is 10^18.
var weiPerEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// ParseEther converts a decimal ETH string such as "0.0502" into an exact wei
// integer. Parsing is string-based; floating point is never involved, so
// comparisons on the smallest indivisible unit stay exact. More than 18
// fractional digits cannot be represented in wei and is an error.
func ParseEther(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}
	// Prices are never signed. SetString would otherwise accept "-0" and
	// "+1", letting a signed input slip through as its absolute value.
	if s[0] == '-' || s[0] == '+' {
		return nil, fmt.Errorf("amount %q must be unsigned", s)
	}

	intPart, fracPart, _ := strings.Cut(s, ".")
	if intPart == "" {
		intPart = "0"
	}
	if strings.Contains(fracPart, ".") {
		return nil, fmt.Errorf("malformed amount %q", s)
	}
	if len(fracPart) > 18 {
		return nil, fmt.Errorf("amount %q has more than 18 decimal places", s)
	}

	whole, ok := new(big.Int).SetString(intPart, 10)
	if !ok || whole.Sign() < 0 {
		return nil, fmt.Errorf("malformed amount %q", s)
	}

	wei := new(big.Int).Mul(whole, weiPerEther)

	if fracPart != "" {
		// Right-pad the fraction to 18 digits, e.g. "0502" -> wei scale.
		padded := fracPart + strings.Repeat("0", 18-len(fracPart))
		frac, ok := new(big.Int).SetString(padded, 10)
		if !ok || frac.Sign() < 0 {
			return nil, fmt.Errorf("malformed amount %q", s)
		}
		wei.Add(wei, frac)
	}
	return wei, nil
}

// FormatEther renders a wei amount as a decimal ETH string with trailing
// zeros trimmed. Used only for logs and API responses.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	q, r := new(big.Int).QuoRem(wei, weiPerEther, new(big.Int))
	if r.Sign() == 0 {
		return q.String()
	}
	frac := strings.TrimRight(fmt.Sprintf("%018s", r.String()), "0")
	return q.String() + "." + frac
}
