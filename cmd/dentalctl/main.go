// Command dentalctl runs the Dentally mirror jobs and practitioner
// maintenance tasks outside the API process.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/wolfman30/dental-voice-booking/internal/app/bootstrap"
	appconfig "github.com/wolfman30/dental-voice-booking/internal/config"
	"github.com/wolfman30/dental-voice-booking/internal/maintenance"
	"github.com/wolfman30/dental-voice-booking/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "dentalctl",
		Short:        "Dentally mirror and practitioner maintenance",
		SilenceUsage: true,
	}
	cmd.AddCommand(practitionersCmd())
	cmd.AddCommand(appointmentsCmd())
	cmd.AddCommand(paymentPlansCmd())
	cmd.AddCommand(keysCmd())
	return cmd
}

func practitionersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "practitioners",
		Short: "Manage the practitioner directory",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Print stored practitioner records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMaintenance(cmd, func(ctx context.Context, svc *maintenance.Service) (any, error) {
				return svc.ListPractitioners(ctx)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "sync",
		Short: "Refresh the directory from Dentally, keeping service mappings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMaintenance(cmd, func(ctx context.Context, svc *maintenance.Service) (any, error) {
				return svc.SyncPractitioners(ctx)
			})
		},
	})

	assignCmd := &cobra.Command{
		Use:   "assign",
		Short: "Apply a service mapping file to stored practitioners",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")
			if path == "" {
				return fmt.Errorf("--file is required")
			}
			mapping, err := maintenance.LoadMapping(path)
			if err != nil {
				return err
			}
			return withMaintenance(cmd, func(ctx context.Context, svc *maintenance.Service) (any, error) {
				return svc.AssignServices(ctx, mapping)
			})
		},
	}
	assignCmd.Flags().String("file", "", "Path to the JSON service mapping")
	cmd.AddCommand(assignCmd)

	return cmd
}

func appointmentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "appointments",
		Short: "Mirror Dentally appointments",
	}

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Replace the appointment mirror with one day of appointments",
		RunE: func(cmd *cobra.Command, args []string) error {
			date, _ := cmd.Flags().GetString("date")
			if date == "" {
				return fmt.Errorf("--date is required")
			}
			return withMaintenance(cmd, func(ctx context.Context, svc *maintenance.Service) (any, error) {
				return svc.SyncAppointments(ctx, date)
			})
		},
	}
	syncCmd.Flags().String("date", "", "Day to fetch (YYYY-MM-DD)")
	cmd.AddCommand(syncCmd)

	return cmd
}

func paymentPlansCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payment-plans",
		Short: "Mirror Dentally payment plans",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "sync",
		Short: "Replace the payment plan mirror",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMaintenance(cmd, func(ctx context.Context, svc *maintenance.Service) (any, error) {
				return svc.SyncPaymentPlans(ctx)
			})
		},
	})
	return cmd
}

func keysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Agent API keys",
	}

	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Print new agent API keys for AGENT_KEYS",
		RunE: func(cmd *cobra.Command, args []string) error {
			count, _ := cmd.Flags().GetInt("count")
			keys, err := maintenance.GenerateAgentKeys(count)
			if err != nil {
				return err
			}
			for _, k := range keys {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			return nil
		},
	}
	generateCmd.Flags().Int("count", 1, "Number of keys to generate")
	cmd.AddCommand(generateCmd)

	return cmd
}

// withMaintenance opens the configured resources, runs job and prints its
// result as JSON.
func withMaintenance(cmd *cobra.Command, job func(context.Context, *maintenance.Service) (any, error)) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg := appconfig.Load()
	logger := logging.NewWithOptions(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})

	res, err := bootstrap.OpenResources(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer res.Close()

	out, err := job(ctx, res.Maintenance(logger))
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), out)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
