package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ethpandaops/eip7702-checker/pkg/config"
	"github.com/ethpandaops/eip7702-checker/pkg/report"
	"github.com/ethpandaops/eip7702-checker/pkg/server"
)

var (
	log        = logrus.New()
	configFile string
	nodeFlag   string
	outputFlag string
)

// errCheckFailed makes the process exit 1 once a failed report has been written.
var errCheckFailed = errors.New("eip-7702 check failed")

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "eip7702-checker",
	Short: "Verifies EIP-7702 delegation against an execution node.",
	Long: `Deploys a delegate contract, delegates a fresh account to it with a signed
EIP-7702 authorization in a type-4 transaction, and checks that calls to the
account run the delegate's code. Exits 0 when the delegation is verified and 1
on any failure.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := loadConfig()
		if err != nil {
			return err
		}

		initCommon(conf)

		return runOnce(cmd.Context(), os.Stdout, conf)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if code := exitCode(rootCmd.Execute()); code != 0 {
		os.Exit(code)
	}
}

// exitCode is 0 only when the command, and therefore the check, succeeded.
func exitCode(err error) int {
	if err != nil {
		return 1
	}

	return 0
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&nodeFlag, "rpc-url", "", "execution node JSON-RPC endpoint, overrides ethereum.execution.nodeAddress")
	rootCmd.PersistentFlags().StringVarP(&outputFlag, "output", "o", "", "report format: text or json")
}

func initCommon(conf *config.Config) {
	log.SetOutput(os.Stderr)

	level, err := logrus.ParseLevel(conf.LoggingLevel)
	if err != nil {
		log.WithError(err).Warn("Invalid logging level, using info")

		level = logrus.InfoLevel
	}

	log.SetLevel(level)
}

// loadConfig reads --config (or ./config.yaml when present) and applies flag overrides.
func loadConfig() (*config.Config, error) {
	file := configFile
	allowMissing := file == ""

	if file == "" {
		file = "config.yaml"
	}

	conf, err := config.LoadFromFile(file, allowMissing)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if nodeFlag != "" {
		conf.Ethereum.Execution.NodeAddress = nodeFlag
	}

	if outputFlag != "" {
		conf.Output = outputFlag
	}

	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return conf, nil
}

// runOnce runs a single check, writes the report to out and returns
// errCheckFailed unless the delegation was verified.
func runOnce(ctx context.Context, out io.Writer, conf *config.Config, opts ...server.Option) error {
	srv, err := server.NewServer(log, conf, opts...)
	if err != nil {
		return fmt.Errorf("failed to create checker: %w", err)
	}

	defer func() {
		if err := srv.Close(); err != nil {
			log.WithError(err).Warn("Failed to close server")
		}
	}()

	result := srv.RunOnce(ctx)

	format, err := report.ParseFormat(conf.Output)
	if err != nil {
		return err
	}

	if err := report.Write(out, format, result); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	if !result.Success() {
		return errCheckFailed
	}

	return nil
}
