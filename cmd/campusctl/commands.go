package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"campuspay/internal/app"
	"campuspay/internal/scheduler"
	userRepo "campuspay/internal/user/repository"
	"campuspay/pkg/db"
	"campuspay/pkg/hash"
	"campuspay/pkg/jwt"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app.App) error {
				return db.Migrate(cmd.Context(), a.DB)
			})
		},
	}
}

func graduateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graduate",
		Short: "Transition every eligible student to alumni",
		RunE: func(cmd *cobra.Command, args []string) error {
			dryRun, _ := cmd.Flags().GetBool("dry-run")
			return withApp(func(a *app.App) error {
				if dryRun {
					candidates, err := a.Graduation.FindEligibleGraduates(cmd.Context())
					if err != nil {
						return err
					}
					return printJSON(cmd, candidates)
				}

				var out any
				err := scheduler.Run(cmd.Context(), scheduler.JobGraduation, func(ctx context.Context) error {
					summary, err := a.Graduation.ProcessGraduationTransitions(ctx)
					out = summary
					return err
				})
				if err != nil {
					return err
				}
				return printJSON(cmd, out)
			})
		},
	}
	cmd.Flags().Bool("dry-run", false, "List eligible students without transitioning them")
	return cmd
}

func sweepOverdueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep-overdue",
		Short: "Mark pending subscriptions past their due date as overdue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app.App) error {
				n, err := a.Payments.SweepOverdue(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d subscriptions marked overdue\n", n)
				return nil
			})
		},
	}
}

func reverifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reverify",
		Short: "Re-verify transactions left pending with the gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			olderThan, _ := cmd.Flags().GetDuration("older-than")
			limit, _ := cmd.Flags().GetInt("limit")
			return withApp(func(a *app.App) error {
				summary, err := a.Payments.ReverifyPending(cmd.Context(), olderThan, limit)
				if err != nil {
					return err
				}
				return printJSON(cmd, summary)
			})
		},
	}
	cmd.Flags().Duration("older-than", 15*time.Minute, "Only transactions pending at least this long")
	cmd.Flags().IntP("limit", "n", 50, "Maximum transactions to check")
	return cmd
}

func verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify [reference]",
		Short: "Verify one payment reference with the gateway and reconcile it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app.App) error {
				result, err := a.Payments.VerifyPayment(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, result)
			})
		},
	}
}

func hashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print a bcrypt hash for METRICS_PASSWORD_HASH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hashed, err := hash.HashPassword(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hashed)
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token for an existing user (local testing only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetInt64("user-id")
			role, _ := cmd.Flags().GetString("role")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			if userID <= 0 {
				return fmt.Errorf("--user-id is required")
			}

			return withApp(func(a *app.App) error {
				u, err := userRepo.NewPostgresUserRepository(a.DB).GetByID(cmd.Context(), userID)
				if err != nil {
					return fmt.Errorf("user %d: %w", userID, err)
				}
				if role == "" {
					role = u.Role
				}

				token, err := jwt.GenerateToken(a.Config.JWTSecret, jwt.Claims{UserID: u.ID, Email: u.Email, Role: role}, ttl)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), token)
				return nil
			})
		},
	}
	cmd.Flags().Int64("user-id", 0, "User id to embed")
	cmd.Flags().String("role", "", "Override the stored role (student, alumni, admin)")
	cmd.Flags().Duration("ttl", time.Hour, "Token lifetime")
	return cmd
}
