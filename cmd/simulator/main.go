// Command simulator runs the local development simulator for the store
// and stream engines described in this repository.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"progressdb/internal/app"
	"progressdb/pkg/config"
	"progressdb/pkg/logger"
	"progressdb/pkg/shutdown"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "simulator",
		Short: "Local development simulator for the store and stream engines",
	}

	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	serverRunCmd := newServerRunCmd()
	serverCmd.AddCommand(serverRunCmd)
	rootCmd.AddCommand(serverCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

func newServerRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the simulator server",
		RunE: func(cmd *cobra.Command, args []string) error {
			port, _ := cmd.Flags().GetUint16("port")
			token, _ := cmd.Flags().GetString("token")
			directory, _ := cmd.Flags().GetString("directory")
			boundMin, _ := cmd.Flags().GetUint32("consistency-bound-min")
			boundMax, _ := cmd.Flags().GetUint32("consistency-bound-max")
			verbose, _ := cmd.Flags().GetBool("verbose")

			cfg := config.Config{
				Port:                port,
				Token:               token,
				Directory:           directory,
				ConsistencyBoundMin: boundMin,
				ConsistencyBoundMax: boundMax,
				Verbose:             verbose,
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid arguments: %w", err)
			}

			if _, err := logger.Init(verbose); err != nil {
				return fmt.Errorf("initialize logger: %w", err)
			}
			defer logger.Sync()

			a, err := app.New(cfg, version)
			if err != nil {
				shutdown.Abort("failed to start simulator", err)
				return nil // unreachable: Abort exits the process
			}

			ctx, cancel := shutdown.SetupSignalHandler(context.Background())
			defer cancel()

			if err := a.Run(ctx); err != nil {
				shutdown.Abort("simulator exited with error", err)
				return nil
			}
			return nil
		},
	}

	cmd.Flags().Uint16("port", 0, "bind port; 0 = pick free")
	cmd.Flags().String("token", "", "shared bearer token (required)")
	cmd.Flags().String("directory", "", "storage root")
	cmd.Flags().Uint32("consistency-bound-min", 0, "consistency bound minimum, in seconds")
	cmd.Flags().Uint32("consistency-bound-max", 0, "consistency bound maximum, in seconds")
	cmd.Flags().Bool("verbose", false, "raise log level to debug")

	return cmd
}
