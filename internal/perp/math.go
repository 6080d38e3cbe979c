package perp

import (
	"math/bits"

	"github.com/holiman/uint256"
)

const (
	// PricePrecision is the scale of prices and USD notionals (6 decimals).
	PricePrecision uint64 = 1_000_000
	// BPSPower is the basis-point denominator.
	BPSPower uint64 = 10_000
	// LiquidationThresholdBPS is the share of collateral a position may lose
	// before it becomes liquidatable.
	LiquidationThresholdBPS uint64 = 8_000
	// MinCollateral is the smallest accepted collateral deposit.
	MinCollateral uint64 = 10_000_000
	// MaxPriceAge is the oldest accepted oracle publish time, in seconds.
	MaxPriceAge int64 = 60
	// MaxLeverage bounds the plain leverage multiplier of a position.
	MaxLeverage uint64 = 80

	emaPeriod int64  = 3_600
	emaScale  uint64 = 1_000
)

func CheckedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrMathOverflow
	}
	return sum, nil
}

func CheckedSub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, ErrMathOverflow
	}
	return diff, nil
}

func CheckedMul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, ErrMathOverflow
	}
	return lo, nil
}

func CheckedDiv(a, b uint64) (uint64, error) {
	if b == 0 {
		return 0, ErrMathOverflow
	}
	return a / b, nil
}

// SaturatingSub returns a-b, or 0 when b exceeds a.
func SaturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

// MulDiv computes a*b/d with a 256-bit intermediate, truncating. The
// quotient must fit in 64 bits.
func MulDiv(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, ErrMathOverflow
	}
	q, overflow := new(uint256.Int).MulDivOverflow(uint256.NewInt(a), uint256.NewInt(b), uint256.NewInt(d))
	if overflow || !q.IsUint64() {
		return 0, ErrMathOverflow
	}
	return q.Uint64(), nil
}

// Pow10 returns 10^n.
func Pow10(n uint32) (uint64, error) {
	out := uint64(1)
	for i := uint32(0); i < n; i++ {
		var err error
		if out, err = CheckedMul(out, 10); err != nil {
			return 0, err
		}
	}
	return out, nil
}

// signedMulDiv computes (a-b)*m/d truncated toward zero. The result must fit
// in int64.
func signedMulDiv(a, b, m, d uint64) (int64, error) {
	if d == 0 {
		return 0, ErrMathOverflow
	}
	negative := b > a
	diff := a - b
	if negative {
		diff = b - a
	}
	q, overflow := new(uint256.Int).MulDivOverflow(uint256.NewInt(diff), uint256.NewInt(m), uint256.NewInt(d))
	if overflow || !q.IsUint64() {
		return 0, ErrMathOverflow
	}
	mag := q.Uint64()
	if negative {
		if mag > 1<<63 {
			return 0, ErrMathOverflow
		}
		return -int64(mag), nil
	}
	if mag > 1<<63-1 {
		return 0, ErrMathOverflow
	}
	return int64(mag), nil
}
