package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"campuspay/internal/app"
	"campuspay/internal/config"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "campusctl",
		Short:         "Operations tool for the campuspay payment and graduation core",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(graduateCmd())
	rootCmd.AddCommand(sweepOverdueCmd())
	rootCmd.AddCommand(reverifyCmd())
	rootCmd.AddCommand(verifyCmd())
	rootCmd.AddCommand(hashPasswordCmd())
	rootCmd.AddCommand(tokenCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// withApp loads configuration, connects and hands the wired services to fn.
func withApp(fn func(a *app.App) error) error {
	a, err := app.New(config.Load())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
