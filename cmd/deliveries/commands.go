package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	deliverycommand "github.com/goliatone/go-deliveries/command"
	"github.com/goliatone/go-deliveries/core"
	deliveryquery "github.com/goliatone/go-deliveries/query"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(authorizeCmd)
	rootCmd.AddCommand(listCmd)

	syncCmd.Flags().String("requested-by", "cli", "Recorded on the sync run metadata")
	listCmd.Flags().StringP("view", "v", "", "Delivery view: triage, classified, received or issued (empty lists all)")
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile the delivery cache once and record the run",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := commandConfig(cmd)
		if err != nil {
			return err
		}
		rt, err := openServiceRuntime(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer rt.Close()

		requestedBy, _ := cmd.Flags().GetString("requested-by")
		outcome, err := rt.facade.Reconcile(cmd.Context(), deliverycommand.ReconcileMessage{
			Trigger:     core.SyncRunTriggerManual,
			RequestedBy: requestedBy,
		})
		if outcome.Run.ID != "" {
			printSyncRun(cmd.OutOrStdout(), outcome.Run)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "duplicates=%d image_searches=%d forecast_lookups=%d\n",
			outcome.Result.Duplicates, outcome.Result.ImageSearches, outcome.Result.ForecastLookups)
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := commandConfig(cmd)
		if err != nil {
			return err
		}
		rt, err := openRuntime(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer rt.Close()
		if err := rt.migrate(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "migrations applied (%s)\n", rt.dialect)
		return nil
	},
}

var authorizeCmd = &cobra.Command{
	Use:   "authorize CODE",
	Short: "Exchange an OAuth authorization code and store the credential",
	Long: `authorize exchanges the code returned to the configured redirect URI for a
token pair and replaces the stored credential. Tokens are never printed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := commandConfig(cmd)
		if err != nil {
			return err
		}
		rt, err := openServiceRuntime(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer rt.Close()

		result, err := rt.facade.CompleteAuthorization(cmd.Context(), deliverycommand.CompleteAuthorizationMessage{Code: args[0]})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "credential %s stored for account %s (version %d, expires %s)\n",
			result.CredentialID, result.AccountID, result.Version, result.ExpiresAt.Format(time.RFC3339))
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the cached deliveries as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := commandConfig(cmd)
		if err != nil {
			return err
		}
		rt, err := openServiceRuntime(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer rt.Close()

		view, _ := cmd.Flags().GetString("view")
		list, err := rt.facade.ListDeliveries(cmd.Context(), deliveryquery.ListDeliveriesMessage{View: view})
		if err != nil {
			return err
		}
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(list)
	},
}

func printSyncRun(w io.Writer, run core.SyncRun) {
	fmt.Fprintf(w, "run %s %s: orders_seen=%d deliveries_out=%d", run.ID, run.Status, run.OrdersSeen, run.DeliveriesOut)
	if run.Error != "" {
		fmt.Fprintf(w, " error=%q", run.Error)
	}
	fmt.Fprintln(w)
}
