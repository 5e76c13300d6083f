package main

import (
	"context"
	"fmt"
	"time"

	"github.com/aktrade/tradecore/internal/domain"
	"github.com/spf13/cobra"
)

var emergencyStopUser string

var emergencyStopCmd = &cobra.Command{
	Use:   "emergency-stop",
	Short: "cancel all open orders, square off every position, and lock risk for a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		if emergencyStopUser == "" {
			return fmt.Errorf("emergency-stop: --user is required")
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		core, err := buildCore(cfg, false)
		if err != nil {
			return fmt.Errorf("emergency-stop: %w", err)
		}
		defer core.storage.Close()

		ctx := context.Background()
		if err := core.engine.EmergencyStop(ctx, emergencyStopUser); err != nil {
			return fmt.Errorf("emergency-stop: %w", err)
		}
		if core.liveBroker != nil {
			core.liveBroker.EmergencyStop()
		}

		state, err := core.storage.RiskStates().Get(ctx, emergencyStopUser)
		if err != nil {
			return fmt.Errorf("emergency-stop: get risk state: %w", err)
		}
		state.Lock("manual emergency stop")
		if err := core.storage.RiskStates().Update(ctx, state); err != nil {
			return fmt.Errorf("emergency-stop: save risk state: %w", err)
		}
		_ = core.storage.AuditLog().Append(ctx, domain.AuditLogEntry{
			UserID: emergencyStopUser, Event: "engine", Severity: domain.SeverityCritical,
			Message: "emergency stop triggered via CLI", CreatedAt: time.Now().UTC(),
		})

		fmt.Printf("emergency stop complete for %s\n", emergencyStopUser)
		return nil
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "clear the live broker's emergency-stop flag (does not affect risk locks)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		core, err := buildCore(cfg, false)
		if err != nil {
			return fmt.Errorf("resume: %w", err)
		}
		defer core.storage.Close()

		if core.liveBroker == nil {
			return fmt.Errorf("resume: not in LIVE trading mode")
		}
		core.liveBroker.Resume()
		fmt.Println("broker emergency-stop flag cleared")
		return nil
	},
}

func init() {
	emergencyStopCmd.Flags().StringVar(&emergencyStopUser, "user", "", "user ID to emergency-stop")
}
