package main

import (
	"strings"

	"github.com/spf13/cobra"

	"perpetuals/internal/model"
	"perpetuals/internal/store"
)

func newCreateMintCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create-mint SYMBOL",
		Short: "Create a token mint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, func(e *env) error {
				authority, err := authorityFlag(cmd)
				if err != nil {
					return err
				}
				decimals, _ := cmd.Flags().GetUint8("decimals")
				symbol := strings.ToUpper(args[0])

				mint := model.Mint{
					Address:   model.MintAddress(symbol),
					Symbol:    symbol,
					Decimals:  decimals,
					Authority: authority,
				}
				err = e.store.Update(e.ctx, func(tx store.Tx) error {
					return e.ledger.CreateMint(e.ctx, tx, mint)
				})
				if err != nil {
					return err
				}
				return printJSON(cmd, mint)
			})
		},
	}
	cmd.Flags().String("authority", "", "mint authority address")
	cmd.Flags().Uint8("decimals", 6, "token decimals")
	return cmd
}

func newMintToCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mint-to",
		Short: "Mint raw token units to an owner",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEnv(cmd, func(e *env) error {
				authority, err := authorityFlag(cmd)
				if err != nil {
					return err
				}
				mintFlag, _ := cmd.Flags().GetString("mint")
				toFlag, _ := cmd.Flags().GetString("to")
				amount, _ := cmd.Flags().GetUint64("amount")

				mint, err := parseMint(mintFlag)
				if err != nil {
					return err
				}
				to, err := parseAddress("to", toFlag)
				if err != nil {
					return err
				}

				var balance uint64
				err = e.store.Update(e.ctx, func(tx store.Tx) error {
					if err := e.ledger.MintTo(e.ctx, tx, mint, to, authority, amount); err != nil {
						return err
					}
					balance, err = e.ledger.Balance(e.ctx, tx, mint, to)
					return err
				})
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]interface{}{"mint": mint, "owner": to, "balance": balance})
			})
		},
	}
	cmd.Flags().String("authority", "", "mint authority address")
	cmd.Flags().String("mint", "", "mint address or symbol")
	cmd.Flags().String("to", "", "recipient address")
	cmd.Flags().Uint64("amount", 0, "raw token units")
	return cmd
}

func newBalanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Show a token balance",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEnv(cmd, func(e *env) error {
				mintFlag, _ := cmd.Flags().GetString("mint")
				ownerFlag, _ := cmd.Flags().GetString("owner")

				mint, err := parseMint(mintFlag)
				if err != nil {
					return err
				}
				owner, err := parseAddress("owner", ownerFlag)
				if err != nil {
					return err
				}

				var (
					info    model.Mint
					balance uint64
				)
				err = e.store.View(e.ctx, func(tx store.Tx) error {
					var err error
					if info, err = e.ledger.Mint(e.ctx, tx, mint); err != nil {
						return err
					}
					balance, err = e.ledger.Balance(e.ctx, tx, mint, owner)
					return err
				})
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]interface{}{
					"mint":    mint,
					"symbol":  info.Symbol,
					"owner":   owner,
					"balance": balance,
					"amount":  model.FormatAmount(balance, info.Decimals),
				})
			})
		},
	}
	cmd.Flags().String("mint", "", "mint address or symbol")
	cmd.Flags().String("owner", "", "owner address")
	return cmd
}
