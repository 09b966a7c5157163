package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/eip7702-checker/pkg/server"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Runs the check on a schedule and serves metrics.",
	Long: `Runs the EIP-7702 check every watch.interval, one run at a time, and serves
Prometheus metrics on metricsAddr until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := loadConfig()
		if err != nil {
			return err
		}

		initCommon(conf)

		srv, err := server.NewServer(log, conf)
		if err != nil {
			return fmt.Errorf("failed to create server: %w", err)
		}

		if err := srv.Start(cmd.Context()); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}

		log.Info("eip7702-checker exited - cya!")

		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
