package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aktrade/tradecore/internal/broker/live"
	"github.com/spf13/cobra"
)

// brokerCmd groups the broker-session operations spec.md §6's HTTP front-end
// would otherwise expose (login/logout/refresh) as CLI subcommands.
var brokerCmd = &cobra.Command{
	Use:   "broker",
	Short: "manage the live broker session (login, logout, refresh)",
}

var brokerLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "authenticate against the broker and confirm a feed token was acquired",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		session := live.NewSession(&http.Client{Timeout: 15 * time.Second}, cfg.Broker.BaseURL, live.Credentials{
			APIKey: cfg.Broker.APIKey, ClientID: cfg.Broker.ClientID,
			Password: cfg.Broker.Password, TOTPSecret: cfg.Broker.TOTPSecret,
		})
		if err := session.Login(context.Background()); err != nil {
			return fmt.Errorf("broker login: %w", err)
		}
		fmt.Println("login successful, feed token acquired")
		return nil
	},
}

var brokerLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "invalidate the current broker session",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		session := live.NewSession(&http.Client{Timeout: 15 * time.Second}, cfg.Broker.BaseURL, live.Credentials{
			APIKey: cfg.Broker.APIKey, ClientID: cfg.Broker.ClientID,
			Password: cfg.Broker.Password, TOTPSecret: cfg.Broker.TOTPSecret,
		})
		ctx := context.Background()
		if err := session.Login(ctx); err != nil {
			return fmt.Errorf("broker logout: %w", err)
		}
		if err := session.Logout(ctx); err != nil {
			return fmt.Errorf("broker logout: %w", err)
		}
		fmt.Println("logged out")
		return nil
	},
}

var brokerRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "force a JWT refresh against the broker",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		session := live.NewSession(&http.Client{Timeout: 15 * time.Second}, cfg.Broker.BaseURL, live.Credentials{
			APIKey: cfg.Broker.APIKey, ClientID: cfg.Broker.ClientID,
			Password: cfg.Broker.Password, TOTPSecret: cfg.Broker.TOTPSecret,
		})
		ctx := context.Background()
		if err := session.Login(ctx); err != nil {
			return fmt.Errorf("broker refresh: %w", err)
		}
		if err := session.Refresh(ctx); err != nil {
			return fmt.Errorf("broker refresh: %w", err)
		}
		fmt.Println("token refreshed")
		return nil
	},
}

func init() {
	brokerCmd.AddCommand(brokerLoginCmd)
	brokerCmd.AddCommand(brokerLogoutCmd)
	brokerCmd.AddCommand(brokerRefreshCmd)
}
