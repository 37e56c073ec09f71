// Package input turns operator answers into run parameters.
package input

import (
	"errors"
	"fmt"
	"math/big"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAddress = errors.New("invalid address: cannot convert to checksum format")
	ErrInvalidAmount  = errors.New("amount must be a number (e.g., 0.001)")
	ErrInvalidCount   = errors.New("number of transactions must be a positive integer")
)

const (
	// EtherDecimals is the exponent between the base unit and wei.
	EtherDecimals = 18

	// A zero amount picks n millionths of a unit with n uniform in [RandomMinSteps, RandomMaxSteps].
	RandomMinSteps = 1
	RandomMaxSteps = 100
)

var microUnitWei = big.NewInt(1_000_000_000_000)

// maxIntegerDigits bounds the integer part of an amount before it is scaled,
// 2^256-1 wei has 60 digits left of the point in base units.
const maxIntegerDigits = 60

// ParseRecipient returns self for a blank answer.
func ParseRecipient(raw string, self common.Address) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return self, nil
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, raw)
	}
	return common.HexToAddress(raw), nil
}

// ParseAmountWei converts an amount in base units to wei, truncating any
// fraction below one wei. "0" draws a random amount from rnd.
func ParseAmountWei(raw string, rnd *rand.Rand) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	if amount.IsNegative() {
		return nil, fmt.Errorf("%w: %q is negative", ErrInvalidAmount, raw)
	}
	if amount.IsZero() {
		return RandomAmountWei(rnd), nil
	}
	if amount.NumDigits()+int(amount.Exponent()) > maxIntegerDigits {
		return nil, fmt.Errorf("%w: %q is too large", ErrInvalidAmount, raw)
	}
	wei := ToWei(amount)
	if wei.Cmp(math.MaxBig256) > 0 {
		return nil, fmt.Errorf("%w: %q is too large", ErrInvalidAmount, raw)
	}
	return wei, nil
}

// ToWei is floor(amount * 10^18) for non-negative amounts.
func ToWei(amount decimal.Decimal) *big.Int {
	return amount.Shift(EtherDecimals).Truncate(0).BigInt()
}

// FromWei formats wei back into base units for logs.
func FromWei(wei *big.Int) string {
	return decimal.NewFromBigInt(wei, -EtherDecimals).String()
}

// RandomAmountWei returns between 0.000001 and 0.0001 units, in steps of 0.000001.
func RandomAmountWei(rnd *rand.Rand) *big.Int {
	n := RandomMinSteps + rnd.IntN(RandomMaxSteps-RandomMinSteps+1)
	return new(big.Int).Mul(big.NewInt(int64(n)), microUnitWei)
}

func ParseCount(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.TrimLeft(raw, "0123456789") != "" {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCount, raw)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCount, raw)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%w: must be greater than 0", ErrInvalidCount)
	}
	return n, nil
}
