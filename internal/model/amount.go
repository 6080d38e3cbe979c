package model

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// USDDecimals is the implied decimal count of prices and USD notionals.
const USDDecimals = 6

// FormatAmount renders a fixed-point integer with the given implied decimals.
func FormatAmount(value uint64, decimals uint8) string {
	d := decimal.NewFromBigInt(new(big.Int).SetUint64(value), -int32(decimals))
	return d.StringFixed(int32(decimals))
}

// FormatSigned renders a signed fixed-point integer.
func FormatSigned(value int64, decimals uint8) string {
	return decimal.New(value, -int32(decimals)).StringFixed(int32(decimals))
}

// ParseAmount parses a decimal string into a fixed-point integer, rejecting
// negative values and digits beyond the given precision.
func ParseAmount(input string, decimals uint8) (uint64, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return 0, fmt.Errorf("empty amount")
	}
	d, err := decimal.NewFromString(input)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", input, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("negative amount: %s", input)
	}
	scaled := d.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("amount %s exceeds %d decimals", input, decimals)
	}
	bi := scaled.BigInt()
	if !bi.IsUint64() {
		return 0, fmt.Errorf("amount out of range: %s", input)
	}
	return bi.Uint64(), nil
}
