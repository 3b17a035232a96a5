package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gloads/portal/internal/auth"
	"github.com/gloads/portal/internal/reach"
)

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}
	migrateCmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.migrateUp(ctx.cfg.Database.DSN()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied")
			return nil
		},
	})
	migrateCmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.migrateDown(ctx.cfg.Database.DSN()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Rolled back one migration")
			return nil
		},
	})
	return migrateCmd
}

func newAdminCommand(ctx *commandContext) *cobra.Command {
	adminCmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage admin accounts",
	}

	var handle, password, email string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create an admin account or promote an existing one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := ctx.logger()
			store, closeFn, err := ctx.openAccounts(cmd.Context(), ctx.cfg, log)
			if err != nil {
				return err
			}
			defer closeFn()
			if email == "" {
				email = ctx.cfg.Admin.Email
			}
			adv, err := auth.EnsureAdmin(cmd.Context(), store, handle, password, email, log)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Admin @%s ready (id %s)\n", adv.Handle, adv.ID)
			return nil
		},
	}
	createCmd.Flags().StringVar(&handle, "handle", "", "Admin handle")
	createCmd.Flags().StringVar(&password, "password", "", "Admin password (min 6 characters)")
	createCmd.Flags().StringVar(&email, "email", "", "Admin email (defaults to ADMIN_EMAIL)")
	_ = createCmd.MarkFlagRequired("handle")
	_ = createCmd.MarkFlagRequired("password")

	adminCmd.AddCommand(createCmd)
	return adminCmd
}

func newReachCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "reach <budget>",
		Short:       "Print the estimated daily reach for a budget in rupees",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"config": "skip"},
		RunE: func(cmd *cobra.Command, args []string) error {
			budget, err := reach.ParseBudget(args[0])
			if err != nil {
				return err
			}
			est, err := reach.Estimate(budget)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Budget: ₹%d/day\nReach:  %d - %d views\n", budget, est.Min, est.Max)
			return nil
		},
	}
}

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the background job queue",
	}

	var limit int64
	dlqCmd := &cobra.Command{
		Use:   "dlq",
		Short: "List jobs that exhausted their retries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}
			q, closeFn, err := ctx.openQueue(cmd.Context(), ctx.cfg, ctx.logger())
			if err != nil {
				return err
			}
			defer closeFn()
			jobs, err := q.DeadLetters(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(jobs) == 0 {
				fmt.Fprintln(out, "Dead letters: none")
				return nil
			}
			fmt.Fprintf(out, "Dead letters: %d\n", len(jobs))
			for _, job := range jobs {
				fmt.Fprintf(out, "  %s  %-20s attempts=%d  created=%s\n",
					job.ID, job.Type, job.Attempt, job.CreatedAt.Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
	dlqCmd.Flags().Int64Var(&limit, "limit", 20, "Maximum jobs to list")

	queueCmd.AddCommand(dlqCmd)
	return queueCmd
}
