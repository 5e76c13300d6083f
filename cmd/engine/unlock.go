package main

import (
	"context"
	"fmt"
	"time"

	"github.com/aktrade/tradecore/internal/domain"
	"github.com/aktrade/tradecore/internal/storage"
	"github.com/spf13/cobra"
)

var unlockUser string

var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "clear a user's risk-gate auto-lock (spec §4.6 unlock_user)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if unlockUser == "" {
			return fmt.Errorf("unlock: --user is required")
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		store, err := storage.Open(cfg.Storage.DSN)
		if err != nil {
			return fmt.Errorf("unlock: open storage: %w", err)
		}
		defer store.Close()

		ctx := context.Background()
		state, err := store.RiskStates().Get(ctx, unlockUser)
		if err != nil {
			return fmt.Errorf("unlock: get risk state: %w", err)
		}
		state.Unlock()
		if err := store.RiskStates().Update(ctx, state); err != nil {
			return fmt.Errorf("unlock: save risk state: %w", err)
		}

		entry := domain.AuditLogEntry{
			UserID: unlockUser, Event: "risk", Severity: domain.SeverityInfo,
			Message: "manually unlocked via engine unlock", CreatedAt: time.Now().UTC(),
		}
		_ = store.AuditLog().Append(ctx, entry)

		fmt.Printf("unlocked %s\n", unlockUser)
		return nil
	},
}

func init() {
	unlockCmd.Flags().StringVar(&unlockUser, "user", "", "user ID to unlock")
}
