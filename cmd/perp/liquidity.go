package main

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"perpetuals/internal/model"
	"perpetuals/internal/perp"
)

func newAddLiquidityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add-liquidity",
		Short: "Deposit custody tokens for pool claim tokens",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEnv(cmd, func(e *env) error {
				owner, poolKey, mint, err := liquidityTarget(cmd)
				if err != nil {
					return err
				}
				amount, _ := cmd.Flags().GetUint64("amount")
				minOut, _ := cmd.Flags().GetUint64("min-out")

				res, err := e.engine.AddLiquidity(e.ctx, perp.AddLiquidityParams{
					Owner:       owner,
					Pool:        poolKey,
					Mint:        mint,
					AmountIn:    amount,
					MinClaimOut: minOut,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd, res)
			})
		},
	}
	liquidityFlags(cmd)
	cmd.Flags().Uint64("amount", 0, "raw custody token units to deposit")
	cmd.Flags().Uint64("min-out", 0, "minimum claim tokens to receive")
	return cmd
}

func newRemoveLiquidityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove-liquidity",
		Short: "Redeem pool claim tokens for custody tokens",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEnv(cmd, func(e *env) error {
				owner, poolKey, mint, err := liquidityTarget(cmd)
				if err != nil {
					return err
				}
				claim, _ := cmd.Flags().GetUint64("claim")
				minOut, _ := cmd.Flags().GetUint64("min-out")

				res, err := e.engine.RemoveLiquidity(e.ctx, perp.RemoveLiquidityParams{
					Owner:        owner,
					Pool:         poolKey,
					Mint:         mint,
					ClaimIn:      claim,
					MinAmountOut: minOut,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd, res)
			})
		},
	}
	liquidityFlags(cmd)
	cmd.Flags().Uint64("claim", 0, "claim tokens to redeem")
	cmd.Flags().Uint64("min-out", 0, "minimum custody tokens to receive")
	return cmd
}

func liquidityFlags(cmd *cobra.Command) {
	cmd.Flags().String("owner", "", "liquidity provider address")
	cmd.Flags().String("pool", "", "pool name")
	cmd.Flags().String("mint", "", "custody mint address or symbol")
}

func liquidityTarget(cmd *cobra.Command) (owner common.Address, pool common.Hash, mint common.Address, err error) {
	ownerFlag, _ := cmd.Flags().GetString("owner")
	poolName, _ := cmd.Flags().GetString("pool")
	mintFlag, _ := cmd.Flags().GetString("mint")

	if owner, err = parseAddress("owner", ownerFlag); err != nil {
		return
	}
	if mint, err = parseMint(mintFlag); err != nil {
		return
	}
	pool = model.PoolKey(poolName)
	return
}
