package perp

// Fee returns amount*bps/10000, truncated.
func Fee(amount, bps uint64) (uint64, error) {
	v, err := CheckedMul(amount, bps)
	if err != nil {
		return 0, err
	}
	return v / BPSPower, nil
}

// Net splits amount into the part kept after the fee and the fee itself.
func Net(amount, bps uint64) (net, fee uint64, err error) {
	if fee, err = Fee(amount, bps); err != nil {
		return 0, 0, err
	}
	if net, err = CheckedSub(amount, fee); err != nil {
		return 0, 0, err
	}
	return net, fee, nil
}
