package main

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"perpetuals/internal/model"
	"perpetuals/internal/perp"
)

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the venue record",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEnv(cmd, func(e *env) error {
				adminFlag, _ := cmd.Flags().GetString("admin")
				adminList, _ := cmd.Flags().GetStringSlice("admins")
				minSigs, _ := cmd.Flags().GetUint8("min-signatures")

				admin, err := parseAddress("admin", adminFlag)
				if err != nil {
					return err
				}
				admins := []common.Address{admin}
				if len(adminList) > 0 {
					admins = admins[:0]
					for _, item := range adminList {
						addr, err := parseAddress("admins", item)
						if err != nil {
							return err
						}
						admins = append(admins, addr)
					}
				}

				if err := e.engine.Initialize(e.ctx, perp.InitializeParams{Admin: admin, MinSignatures: minSigs, Admins: admins}); err != nil {
					return err
				}
				perps, err := e.engine.Perpetuals(e.ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, perps)
			})
		},
	}
	cmd.Flags().String("admin", "", "admin authority address")
	cmd.Flags().StringSlice("admins", nil, "admin signer addresses (defaults to the admin)")
	cmd.Flags().Uint8("min-signatures", 1, "minimum admin signatures")
	return cmd
}

func newAddPoolCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add-pool NAME",
		Short: "Register a pool and its claim-token mint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, func(e *env) error {
				authority, err := authorityFlag(cmd)
				if err != nil {
					return err
				}
				pool, err := e.engine.AddPool(e.ctx, perp.AddPoolParams{Authority: authority, Name: args[0]})
				if err != nil {
					return err
				}
				return printJSON(cmd, pool)
			})
		},
	}
	cmd.Flags().String("authority", "", "admin address")
	return cmd
}

func newAddCustodyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add-custody",
		Short: "Attach a custody for a mint to a pool",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEnv(cmd, func(e *env) error {
				authority, err := authorityFlag(cmd)
				if err != nil {
					return err
				}
				poolName, _ := cmd.Flags().GetString("pool")
				mintFlag, _ := cmd.Flags().GetString("mint")
				stable, _ := cmd.Flags().GetBool("stable")
				oracleFlag, _ := cmd.Flags().GetString("oracle")
				feedID, _ := cmd.Flags().GetString("feed-id")
				priceFlag, _ := cmd.Flags().GetString("price")

				mint, err := parseMint(mintFlag)
				if err != nil {
					return err
				}
				oracle, err := model.ParseOracleType(oracleFlag)
				if err != nil {
					return err
				}
				price, err := parsePrice("price", priceFlag)
				if err != nil {
					return err
				}

				custody, err := e.engine.AddCustody(e.ctx, perp.AddCustodyParams{
					Authority:    authority,
					Pool:         model.PoolKey(poolName),
					Mint:         mint,
					IsStable:     stable,
					OracleType:   oracle,
					FeedID:       feedID,
					InitialPrice: price,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd, custody)
			})
		},
	}
	cmd.Flags().String("authority", "", "admin address")
	cmd.Flags().String("pool", "", "pool name")
	cmd.Flags().String("mint", "", "mint address or symbol")
	cmd.Flags().Bool("stable", false, "custody holds a stable asset")
	cmd.Flags().String("oracle", "none", "oracle type (none, pyth, custom)")
	cmd.Flags().String("feed-id", "", "pyth feed id (hex)")
	cmd.Flags().String("price", "0", "initial price in USD")
	return cmd
}

func newUpdatePriceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update-price",
		Short: "Store a new custody price",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEnv(cmd, func(e *env) error {
				authority, err := authorityFlag(cmd)
				if err != nil {
					return err
				}
				poolName, _ := cmd.Flags().GetString("pool")
				mintFlag, _ := cmd.Flags().GetString("mint")
				priceFlag, _ := cmd.Flags().GetString("price")

				mint, err := parseMint(mintFlag)
				if err != nil {
					return err
				}
				price, err := parsePrice("price", priceFlag)
				if err != nil {
					return err
				}
				custody, err := e.engine.UpdatePrice(e.ctx, perp.UpdatePriceParams{
					Authority: authority,
					Pool:      model.PoolKey(poolName),
					Mint:      mint,
					Price:     price,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd, custody.Pricing)
			})
		},
	}
	cmd.Flags().String("authority", "", "admin address")
	cmd.Flags().String("pool", "", "pool name")
	cmd.Flags().String("mint", "", "mint address or symbol")
	cmd.Flags().String("price", "", "price in USD")
	return cmd
}

var permissionFlags = []struct {
	name string
	set  func(*model.Permissions, bool)
}{
	{"swap", func(p *model.Permissions, v bool) { p.AllowSwap = v }},
	{"add-liquidity", func(p *model.Permissions, v bool) { p.AllowAddLiquidity = v }},
	{"remove-liquidity", func(p *model.Permissions, v bool) { p.AllowRemoveLiquidity = v }},
	{"open-position", func(p *model.Permissions, v bool) { p.AllowOpenPosition = v }},
	{"close-position", func(p *model.Permissions, v bool) { p.AllowClosePosition = v }},
	{"pnl-withdrawal", func(p *model.Permissions, v bool) { p.AllowPnLWithdrawal = v }},
	{"collateral-withdrawal", func(p *model.Permissions, v bool) { p.AllowCollateralWithdrawal = v }},
	{"size-change", func(p *model.Permissions, v bool) { p.AllowSizeChange = v }},
}

func newSetPermissionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set-permissions",
		Short: "Toggle venue feature switches; unset flags keep their value",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEnv(cmd, func(e *env) error {
				authority, err := authorityFlag(cmd)
				if err != nil {
					return err
				}
				perps, err := e.engine.Perpetuals(e.ctx)
				if err != nil {
					return err
				}
				perms := perps.Permissions
				for _, f := range permissionFlags {
					if !cmd.Flags().Changed(f.name) {
						continue
					}
					v, _ := cmd.Flags().GetBool(f.name)
					f.set(&perms, v)
				}
				if err := e.engine.SetPermissions(e.ctx, perp.SetPermissionsParams{Authority: authority, Permissions: perms}); err != nil {
					return err
				}
				return printJSON(cmd, perms)
			})
		},
	}
	cmd.Flags().String("authority", "", "admin address")
	for _, f := range permissionFlags {
		cmd.Flags().Bool(f.name, true, fmt.Sprintf("allow %s", f.name))
	}
	return cmd
}

func authorityFlag(cmd *cobra.Command) (common.Address, error) {
	v, _ := cmd.Flags().GetString("authority")
	return parseAddress("authority", v)
}
