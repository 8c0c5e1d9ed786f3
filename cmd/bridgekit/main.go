package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/glimte/bridgekit-go/config"
)

var (
	// Version information
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

type globalFlags struct {
	envDir  string
	service string
	broker  string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var flags globalFlags

	rootCmd := &cobra.Command{
		Use:   "bridgekit",
		Short: "Run and talk to bridged services",
		Long: `bridgekit runs the reference services on the inter-service bridges and
sends one-off sync calls or broker messages to running services.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&flags.envDir, "env-dir", "", "Directory holding .env files (default: working directory)")
	rootCmd.PersistentFlags().StringVarP(&flags.service, "service", "s", "", "Overrides RUNNING_SERVICE")
	rootCmd.PersistentFlags().StringVarP(&flags.broker, "broker", "b", "", "Overrides BROKER (rabbitmq|kafka|none)")

	rootCmd.AddCommand(
		newServeCmd(&flags),
		newInvokeCmd(&flags),
		newPublishCmd(&flags),
	)
	return rootCmd
}

// loadConfig applies flag overrides through the environment so that viper
// resolves them like any other variable.
func loadConfig(flags *globalFlags, fallbackService string) (*config.Config, error) {
	if flags.service != "" {
		if err := os.Setenv("RUNNING_SERVICE", flags.service); err != nil {
			return nil, err
		}
	} else if os.Getenv("RUNNING_SERVICE") == "" && fallbackService != "" {
		if err := os.Setenv("RUNNING_SERVICE", fallbackService); err != nil {
			return nil, err
		}
	}
	if flags.broker != "" {
		if err := os.Setenv("BROKER", flags.broker); err != nil {
			return nil, err
		}
	}
	return config.Load(flags.envDir, slog.Default())
}
