// Command deliveries runs the delivery reconciliation service: the HTTP API,
// the scheduled sync, and one-off maintenance commands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

const defaultConfigPath = "deliveries.toml"

var rootCmd = &cobra.Command{
	Use:   "deliveries",
	Short: "Mercado Livre delivery reconciliation and cache",
	Long: `deliveries keeps a local cache of Mercado Livre orders as deliveries.
It reconciles the live order list against the cache, enriches new orders with
images and delivery forecasts, and serves the result over HTTP.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", defaultConfigPath, "Path to the TOML configuration file")
	rootCmd.PersistentFlags().String("driver", "", "Database driver, sqlite3 or postgres (overrides [database].driver)")
	rootCmd.PersistentFlags().String("dsn", "", "Database DSN (overrides [database].dsn)")
}

// commandConfig loads the file named by --config. The default path may be
// absent; an explicit one must exist.
func commandConfig(cmd *cobra.Command) (fileConfig, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := loadFileConfig(path, cmd.Flags().Changed("config"))
	if err != nil {
		return fileConfig{}, err
	}
	if driver, _ := cmd.Flags().GetString("driver"); driver != "" {
		cfg.Database.Driver = driver
	}
	if dsn, _ := cmd.Flags().GetString("dsn"); dsn != "" {
		cfg.Database.DSN = dsn
	}
	return cfg, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
