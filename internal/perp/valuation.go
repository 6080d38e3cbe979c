package perp

import "perpetuals/internal/model"

// AssetValue converts a token amount into USD at a six-decimal price.
func AssetValue(amount, price uint64) (uint64, error) {
	return MulDiv(amount, price, PricePrecision)
}

// PoolValue is TotalValue floored at 1 so it can divide claim quotes.
func PoolValue(custodies []model.Custody) (uint64, error) {
	total, err := TotalValue(custodies)
	if err != nil {
		return 0, err
	}
	if total == 0 {
		return 1, nil
	}
	return total, nil
}

// TotalValue sums the USD value of owned assets across custodies at their
// stored prices.
func TotalValue(custodies []model.Custody) (uint64, error) {
	var total uint64
	for _, c := range custodies {
		v, err := CheckedMul(c.Assets.Owned, c.Pricing.CurrentPrice)
		if err != nil {
			return 0, err
		}
		total, err = CheckedAdd(total, v/PricePrecision)
		if err != nil {
			return 0, err
		}
	}
	return total, nil
}

// QuoteMint returns the claim tokens issued for a deposit worth amountIn.
// The first deposit into an empty pool mints 1:1.
func QuoteMint(amountIn, poolValue, supply uint64) (uint64, error) {
	if supply == 0 {
		return amountIn, nil
	}
	return MulDiv(amountIn, supply, poolValue)
}

// QuoteRedeem returns the custody tokens owed for claimIn claim tokens.
func QuoteRedeem(claimIn, balance, supply uint64) (uint64, error) {
	if supply == 0 {
		return 0, ErrInsufficientLiquidity
	}
	return MulDiv(claimIn, balance, supply)
}
