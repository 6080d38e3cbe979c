package main

import (
	"github.com/spf13/cobra"

	"perpetuals/internal/model"
	"perpetuals/internal/perp"
)

func newOpenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "open",
		Short: "Open a leveraged position",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEnv(cmd, func(e *env) error {
				ownerFlag, _ := cmd.Flags().GetString("owner")
				poolName, _ := cmd.Flags().GetString("pool")
				mintFlag, _ := cmd.Flags().GetString("mint")
				sideFlag, _ := cmd.Flags().GetString("side")
				collateral, _ := cmd.Flags().GetUint64("collateral")
				leverage, _ := cmd.Flags().GetUint64("leverage")
				priceFlag, _ := cmd.Flags().GetString("acceptable-price")

				owner, err := parseAddress("owner", ownerFlag)
				if err != nil {
					return err
				}
				mint, err := parseMint(mintFlag)
				if err != nil {
					return err
				}
				side, err := model.ParseSide(sideFlag)
				if err != nil {
					return err
				}
				acceptable, err := parsePrice("acceptable-price", priceFlag)
				if err != nil {
					return err
				}
				observation, err := e.readObservation(cmd)
				if err != nil {
					return err
				}

				pos, err := e.engine.OpenPosition(e.ctx, perp.OpenPositionParams{
					Owner:            owner,
					Pool:             model.PoolKey(poolName),
					Mint:             mint,
					Side:             side,
					CollateralAmount: collateral,
					Leverage:         leverage,
					AcceptablePrice:  acceptable,
					Observation:      observation,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd, pos)
			})
		},
	}
	cmd.Flags().String("owner", "", "trader address")
	cmd.Flags().String("pool", "", "pool name")
	cmd.Flags().String("mint", "", "custody mint address or symbol")
	cmd.Flags().String("side", "long", "position side (long, short)")
	cmd.Flags().Uint64("collateral", 0, "raw collateral token units")
	cmd.Flags().Uint64("leverage", 1, "leverage multiplier")
	cmd.Flags().String("acceptable-price", "", "worst acceptable entry price in USD")
	observationFlag(cmd)
	return cmd
}

func newMarkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mark POSITION",
		Short: "Recompute a position's unrealized PnL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, func(e *env) error {
				key, err := parseHash("position", args[0])
				if err != nil {
					return err
				}
				observation, err := e.readObservation(cmd)
				if err != nil {
					return err
				}
				pos, err := e.engine.MarkToMarket(e.ctx, perp.MarkParams{Position: key, Observation: observation})
				if err != nil {
					return err
				}
				return printJSON(cmd, pos)
			})
		},
	}
	observationFlag(cmd)
	return cmd
}

func newCloseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "close POSITION",
		Short: "Close a position and settle PnL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, func(e *env) error {
				key, err := parseHash("position", args[0])
				if err != nil {
					return err
				}
				callerFlag, _ := cmd.Flags().GetString("caller")
				caller, err := parseAddress("caller", callerFlag)
				if err != nil {
					return err
				}
				observation, err := e.readObservation(cmd)
				if err != nil {
					return err
				}
				res, err := e.engine.ClosePosition(e.ctx, perp.CloseParams{Caller: caller, Position: key, Observation: observation})
				if err != nil {
					return err
				}
				return printJSON(cmd, res)
			})
		},
	}
	cmd.Flags().String("caller", "", "position owner address")
	observationFlag(cmd)
	return cmd
}

func newLiquidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "liquidate POSITION",
		Short: "Liquidate a position past its liquidation price",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, func(e *env) error {
				key, err := parseHash("position", args[0])
				if err != nil {
					return err
				}
				liquidatorFlag, _ := cmd.Flags().GetString("liquidator")
				liquidator, err := parseAddress("liquidator", liquidatorFlag)
				if err != nil {
					return err
				}
				observation, err := e.readObservation(cmd)
				if err != nil {
					return err
				}
				res, err := e.engine.LiquidatePosition(e.ctx, perp.LiquidateParams{Liquidator: liquidator, Position: key, Observation: observation})
				if err != nil {
					return err
				}
				return printJSON(cmd, res)
			})
		},
	}
	cmd.Flags().String("liquidator", "", "liquidator address")
	observationFlag(cmd)
	return cmd
}

func observationFlag(cmd *cobra.Command) {
	cmd.Flags().String("observation", "none", "oracle observation feed spec (none, hex:, file:, redis:, chain:)")
}

func (e *env) readObservation(cmd *cobra.Command) ([]byte, error) {
	spec, _ := cmd.Flags().GetString("observation")
	return e.observation(spec)
}
