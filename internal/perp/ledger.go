package perp

import "perpetuals/internal/model"

// Ledger mutations on a custody. Each returns without touching the custody
// when the update would overflow or underflow.

func addCollateral(c *model.Custody, amount uint64) error {
	v, err := CheckedAdd(c.Assets.Collateral, amount)
	if err != nil {
		return err
	}
	c.Assets.Collateral = v
	return nil
}

func releaseCollateral(c *model.Custody, amount uint64) error {
	v, err := CheckedSub(c.Assets.Collateral, amount)
	if err != nil {
		return err
	}
	c.Assets.Collateral = v
	return nil
}

func accrueProtocolFee(c *model.Custody, fee uint64) error {
	v, err := CheckedAdd(c.Assets.ProtocolFees, fee)
	if err != nil {
		return err
	}
	c.Assets.ProtocolFees = v
	return nil
}

func addOwned(c *model.Custody, amount uint64) error {
	v, err := CheckedAdd(c.Assets.Owned, amount)
	if err != nil {
		return err
	}
	c.Assets.Owned = v
	return nil
}

func removeOwned(c *model.Custody, amount uint64) error {
	v, err := CheckedSub(c.Assets.Owned, amount)
	if err != nil {
		return err
	}
	c.Assets.Owned = v
	return nil
}

func openInterest(c *model.Custody, side model.Side) *uint64 {
	if side == model.Short {
		return &c.TradeStats.OIShortUSD
	}
	return &c.TradeStats.OILongUSD
}

func addOpenInterest(c *model.Custody, side model.Side, size uint64) error {
	oi := openInterest(c, side)
	v, err := CheckedAdd(*oi, size)
	if err != nil {
		return err
	}
	*oi = v
	return nil
}

func removeOpenInterest(c *model.Custody, side model.Side, size uint64) error {
	oi := openInterest(c, side)
	v, err := CheckedSub(*oi, size)
	if err != nil {
		return err
	}
	*oi = v
	return nil
}

func addVolume(counter *uint64, usd uint64) error {
	v, err := CheckedAdd(*counter, usd)
	if err != nil {
		return err
	}
	*counter = v
	return nil
}
