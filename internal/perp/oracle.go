package perp

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"perpetuals/internal/model"
	"perpetuals/internal/pyth"
)

// DefaultFeedID is the SOL/USD feed used by Pyth custodies without their
// own feed id.
const DefaultFeedID = "0xe62df6c8b4c85fe1a67db44dc12de5db330f7ac66b72dc658afedf0f4a415b43"

// GetPrice resolves the canonical price of custody from a raw observation.
func GetPrice(custody model.Custody, observation []byte, now int64) (uint64, error) {
	switch custody.OracleType {
	case model.OracleNone:
		return custody.Pricing.CurrentPrice, nil
	case model.OracleCustom:
		return customPrice(observation)
	case model.OraclePyth:
		return pythPrice(custody, observation, now)
	default:
		return 0, fmt.Errorf("oracle type %s: %w", custody.OracleType, ErrInvalidOraclePrice)
	}
}

func customPrice(observation []byte) (uint64, error) {
	if len(observation) < 8 {
		return 0, fmt.Errorf("custom observation of %d bytes: %w", len(observation), ErrInvalidOraclePrice)
	}
	price := binary.LittleEndian.Uint64(observation[:8])
	if price == 0 {
		return 0, fmt.Errorf("custom observation: %w", ErrInvalidOraclePrice)
	}
	return price, nil
}

func pythPrice(custody model.Custody, observation []byte, now int64) (uint64, error) {
	update, err := pyth.Decode(observation)
	if err != nil {
		return 0, fmt.Errorf("decode price update: %v: %w", err, ErrInvalidOraclePrice)
	}
	feedID, err := ResolveFeedID(custody)
	if err != nil {
		return 0, err
	}
	msg, err := update.PriceNoOlderThan(now, MaxPriceAge, feedID)
	switch {
	case errors.Is(err, pyth.ErrStale):
		return 0, fmt.Errorf("%v: %w", err, ErrPriceTooOld)
	case err != nil:
		return 0, fmt.Errorf("%v: %w", err, ErrInvalidOraclePrice)
	}
	if msg.Price < 0 {
		return 0, fmt.Errorf("negative feed price %d: %w", msg.Price, ErrInvalidOraclePrice)
	}
	price, err := NormalizePrice(uint64(msg.Price), msg.Exponent)
	if err != nil {
		return 0, err
	}
	if price == 0 {
		return 0, fmt.Errorf("feed price rounds to zero: %w", ErrInvalidOraclePrice)
	}
	return price, nil
}

// ResolveFeedID returns the custody's configured feed id or the default.
func ResolveFeedID(custody model.Custody) (common.Hash, error) {
	raw := custody.FeedID
	if raw == "" {
		raw = DefaultFeedID
	}
	id, err := pyth.ParseFeedID(raw)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%v: %w", err, ErrInvalidOraclePrice)
	}
	return id, nil
}

// NormalizePrice rescales mantissa*10^expo to six implied decimals.
func NormalizePrice(mantissa uint64, expo int32) (uint64, error) {
	if expo >= 0 {
		scale, err := Pow10(uint32(expo))
		if err != nil {
			return 0, err
		}
		v, err := CheckedMul(mantissa, scale)
		if err != nil {
			return 0, err
		}
		return CheckedMul(v, PricePrecision)
	}
	divisor, err := Pow10(uint32(-int64(expo)))
	if err != nil {
		return 0, err
	}
	return MulDiv(mantissa, PricePrecision, divisor)
}

// ApplyPrice records a new price on the pricing params and folds it into
// the time-weighted EMA.
func ApplyPrice(p *model.PricingParams, price uint64, now int64) error {
	if price == 0 {
		return ErrInvalidPrice
	}
	dt := now - p.LastUpdateTime
	if dt > 0 {
		if dt > emaPeriod {
			dt = emaPeriod
		}
		alpha := uint64(dt) * emaScale / uint64(emaPeriod)
		prev, err := CheckedMul(p.EMAPrice, emaScale-alpha)
		if err != nil {
			return err
		}
		next, err := CheckedMul(price, alpha)
		if err != nil {
			return err
		}
		sum, err := CheckedAdd(prev, next)
		if err != nil {
			return err
		}
		p.EMAPrice = sum / emaScale
	}
	p.CurrentPrice = price
	p.LastUpdateTime = now
	return nil
}
