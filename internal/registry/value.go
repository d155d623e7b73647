package registry

import (
	"fmt"
	"math/big"
	"strings"
)

var units = []struct {
	suffix string
	exp    int64
}{
	{"gwei", 9},
	{"ether", 18},
	{"eth", 18},
	{"wei", 0},
}

// ParseValue converts an amount such as "1ether", "0.5 ether", "20gwei" or "1000" into wei.
func ParseValue(s string) (*big.Int, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return new(big.Int), nil
	}

	exp := int64(0)
	for _, u := range units {
		if strings.HasSuffix(s, u.suffix) {
			s = strings.TrimSpace(strings.TrimSuffix(s, u.suffix))
			exp = u.exp
			break
		}
	}

	amount, ok := new(big.Rat).SetString(s)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("invalid value %q", s)
	}
	amount.Mul(amount, new(big.Rat).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(exp), nil)))
	if !amount.IsInt() {
		return nil, fmt.Errorf("value %q is not a whole number of wei", s)
	}
	return new(big.Int).Set(amount.Num()), nil
}
