package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"perpetuals/internal/model"
)

type poolView struct {
	Pool         model.Pool      `json:"pool"`
	Custodies    []model.Custody `json:"custodies"`
	PoolValueUSD string          `json:"pool_value_usd"`
	ClaimSupply  uint64          `json:"claim_supply"`
}

type positionView struct {
	Position         model.Position `json:"position"`
	LiquidationPrice string         `json:"liquidation_price"`
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show (perpetuals | pools | pool NAME | positions | position KEY)",
		Short: "Print stored records",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, func(e *env) error {
				switch args[0] {
				case "perpetuals":
					perps, err := e.engine.Perpetuals(e.ctx)
					if err != nil {
						return err
					}
					return printJSON(cmd, perps)
				case "pools":
					pools, err := e.engine.Pools(e.ctx)
					if err != nil {
						return err
					}
					return printJSON(cmd, pools)
				case "pool":
					if len(args) != 2 {
						return fmt.Errorf("pool name is required")
					}
					view, err := e.poolView(args[1])
					if err != nil {
						return err
					}
					return printJSON(cmd, view)
				case "positions":
					positions, err := e.engine.Positions(e.ctx)
					if err != nil {
						return err
					}
					return printJSON(cmd, positions)
				case "position":
					if len(args) != 2 {
						return fmt.Errorf("position key is required")
					}
					key, err := parseHash("position", args[1])
					if err != nil {
						return err
					}
					pos, err := e.engine.Position(e.ctx, key)
					if err != nil {
						return err
					}
					liq, err := e.engine.PositionLiquidationPrice(e.ctx, key)
					if err != nil {
						return err
					}
					return printJSON(cmd, positionView{Position: pos, LiquidationPrice: model.FormatAmount(liq, model.USDDecimals)})
				default:
					return fmt.Errorf("unknown record type: %s", args[0])
				}
			})
		},
	}
}

func (e *env) poolView(name string) (poolView, error) {
	pool, err := e.engine.Pool(e.ctx, model.PoolKey(name))
	if err != nil {
		return poolView{}, err
	}
	custodies, err := e.engine.Custodies(e.ctx, pool.Key)
	if err != nil {
		return poolView{}, err
	}
	value, err := e.engine.PoolValue(e.ctx, pool.Key)
	if err != nil {
		return poolView{}, err
	}
	supply, err := e.engine.ClaimSupply(e.ctx, pool.Key)
	if err != nil {
		return poolView{}, err
	}
	return poolView{
		Pool:         pool,
		Custodies:    custodies,
		PoolValueUSD: model.FormatAmount(value, model.USDDecimals),
		ClaimSupply:  supply,
	}, nil
}
