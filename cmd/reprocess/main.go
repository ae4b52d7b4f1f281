package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"storefront_payments/internal/app"
	"storefront_payments/internal/config"
	"storefront_payments/internal/models"
	"storefront_payments/internal/services"
	"storefront_payments/internal/tasks"
)

func main() {
	var (
		secret  string
		asJSON  bool
		runtime *app.App
	)

	rootCmd := &cobra.Command{
		Use:           "reprocess",
		Short:         "Re-run payment reconciliation by hand",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := checkSecret(secret, cfg.ReprocessSecret); err != nil {
				return err
			}
			runtime, err = app.New(cfg)
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if runtime != nil {
				return runtime.Close()
			}
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVarP(&secret, "secret", "s", "", "Operator secret (REPROCESS_SECRET)")
	rootCmd.PersistentFlags().BoolVarP(&asJSON, "json", "j", false, "Output as JSON")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "payment [payment_id]",
		Short: "Fetch a payment from the gateway and reconcile its order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paymentID := strings.TrimSpace(args[0])
			if _, err := strconv.ParseUint(paymentID, 10, 64); err != nil {
				return fmt.Errorf("payment id must be numeric, got %q", paymentID)
			}
			fmt.Fprintf(os.Stderr, "Reprocessing payment %s...\n", paymentID)

			result, err := runtime.Payments.ProcessPayment(cmd.Context(), paymentID, models.ActorReprocess)
			if err != nil {
				if errors.Is(err, services.ErrPaymentNotFound) {
					return fmt.Errorf("payment %s not found at gateway", paymentID)
				}
				return err
			}
			if asJSON {
				return printJSON(result)
			}
			printResult(result)
			return nil
		},
	})

	chargebackCmd := &cobra.Command{
		Use:   "chargeback [chargeback_id]",
		Short: "Record a chargeback on the orders it affects",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			action, _ := cmd.Flags().GetString("action")
			results, err := runtime.Payments.ProcessChargeback(cmd.Context(), args[0], action)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(results)
			}
			for _, r := range results {
				fmt.Printf("Order %-12s payment %-12s recorded=%-5t status=%s stock=%s %s\n",
					valueOrDash(r.OrderID), r.PaymentID, r.Recorded, valueOrDash(string(r.Status)), r.StockAction, r.Note)
			}
			return nil
		},
	}
	chargebackCmd.Flags().StringP("action", "a", "created", "Chargeback action (created, lost, won, ...)")
	rootCmd.AddCommand(chargebackCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "sweep",
		Short: "Reconcile every pending order that has a payment id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			task := &tasks.ReconcilePendingTaskDef{Orders: runtime.Orders, Processor: runtime.Payments}
			result, err := task.HandleExecution(cmd.Context(), nil)
			if asJSON {
				if perr := printJSON(result); perr != nil {
					return perr
				}
			} else {
				fmt.Printf("checked=%v applied=%v unchanged=%v failed=%v\n",
					result["checked"], result["applied"], result["unchanged"], result["failed"])
			}
			return err
		},
	})

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func checkSecret(given, expected string) error {
	if expected == "" {
		return errors.New("REPROCESS_SECRET is not configured")
	}
	if given == "" {
		return errors.New("--secret is required")
	}
	if subtle.ConstantTimeCompare([]byte(given), []byte(expected)) != 1 {
		return errors.New("invalid secret")
	}
	return nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printResult(r *services.ReconcileResult) {
	fmt.Println("Reprocess result")
	fmt.Println(strings.Repeat("=", 40))
	fmt.Printf("  Outcome:   %s\n", r.Outcome)
	fmt.Printf("  Payment:   %s (%s)\n", r.PaymentID, r.PaymentStatus)
	fmt.Printf("  Order:     %s\n", valueOrDash(r.OrderID))
	fmt.Printf("  Status:    %s -> %s\n", valueOrDash(string(r.PreviousStatus)), valueOrDash(string(r.Status)))
	fmt.Printf("  Stock:     %s (stock_reduced=%t)\n", r.StockAction, r.StockReduced)
	for _, n := range r.Notifications {
		state := "sent"
		if !n.Sent {
			state = "FAILED"
		}
		fmt.Printf("  Notify:    %s %s\n", n.Kind, state)
	}
	if r.Note != "" {
		fmt.Printf("  Note:      %s\n", r.Note)
	}
}

func valueOrDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
