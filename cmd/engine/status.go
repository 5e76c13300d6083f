package main

import (
	"context"
	"fmt"

	"github.com/aktrade/tradecore/internal/storage"
	"github.com/spf13/cobra"
)

var statusUser string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "print a user's wallet, risk state, and open positions",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		userID := statusUser
		if userID == "" {
			userID = activeUser(cfg).UserID
		}

		store, err := storage.Open(cfg.Storage.DSN)
		if err != nil {
			return fmt.Errorf("status: open storage: %w", err)
		}
		defer store.Close()

		ctx := context.Background()
		wallet, err := store.Wallets().Get(ctx, userID)
		if err != nil {
			return fmt.Errorf("status: get wallet: %w", err)
		}
		riskState, err := store.RiskStates().Get(ctx, userID)
		if err != nil {
			return fmt.Errorf("status: get risk state: %w", err)
		}
		positions, err := store.Positions().ListOpen(ctx, userID)
		if err != nil {
			return fmt.Errorf("status: list positions: %w", err)
		}

		fmt.Printf("user:            %s\n", userID)
		fmt.Printf("balance:         %s\n", wallet.Balance)
		fmt.Printf("used_margin:     %s\n", wallet.UsedMargin)
		fmt.Printf("available_margin:%s\n", wallet.AvailableMargin)
		fmt.Printf("realized_pnl:    %s\n", wallet.RealizedPnL)
		fmt.Printf("daily_loss:      %.2f\n", riskState.DailyLoss)
		fmt.Printf("daily_trades:    %d\n", riskState.DailyTradeCount)
		fmt.Printf("consecutive_loss:%d\n", riskState.ConsecutiveLosses)
		fmt.Printf("locked:          %v (%s)\n", riskState.IsLocked, riskState.LockReason)
		fmt.Printf("open_positions:  %d\n", len(positions))
		for _, p := range positions {
			fmt.Printf("  - %s %s qty=%d entry=%s current=%s\n", p.Symbol, p.Side, p.Quantity, p.EntryPrice, p.CurrentPrice)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusUser, "user", "", "user ID (defaults to the first configured user)")
}
