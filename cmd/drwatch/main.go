package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	root := buildRoot(command{in: os.Stdin, out: os.Stdout})
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command and its subcommands.
func buildRoot(c command) *cobra.Command {
	globalFlags := &GlobalFlags{}
	runFlags := &RunFlags{}
	statusFlags := &StatusFlags{}
	seedFlags := &SeedFlags{}
	confirmFlags := &ConfirmFlags{}
	hashFlags := &HashPasswordFlags{}

	root := createRootCommand(globalFlags)
	root.SetIn(c.in)
	root.SetOut(c.out)

	root.AddCommand(
		createRunCommand(c, globalFlags, runFlags),
		createFailoverCommand(c, globalFlags),
		createRestoreCommand(c, globalFlags),
		createStatusCommand(c, globalFlags, statusFlags),
		createSeedCommand(c, globalFlags, seedFlags),
		createConfirmCommand(c, confirmFlags),
		createHashPasswordCommand(c, hashFlags),
	)
	return root
}

// createRootCommand creates the root command with minimal persistent flags
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "drwatch",
		Short: "Disaster recovery watch: failover on breach, restore on confirmation",
		Long: `drwatch polls a resource probe. When utilization exceeds the threshold it
moves the encoded primary store to the backup store, waits for an operator to
confirm the primary is back and restores the most recent backup record.

Examples:
  drwatch seed --text "hello world"
  drwatch run --threshold 10
  drwatch run --source http --listen :8080   # confirm with POST /api/confirm
  drwatch confirm --server http://localhost:8080/api --answer yes
  drwatch status`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	return root
}

// createRunCommand creates the run subcommand
func createRunCommand(c command, g *GlobalFlags, f *RunFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Watch the probe and run one failover/restore cycle",
		Long: `Poll the configured probe until a reading exceeds the threshold, fail the
primary store over to the backup, wait for operator confirmation and restore.
The command exits 0 once the restore step has run, whatever its result.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Run(cmd.Context(), g.ConfigPath, *f, cmd.Flags().Changed)
		},
	}
	cmd.Flags().Float64Var(&f.Threshold, "threshold", 0, "utilization threshold in percent")
	cmd.Flags().DurationVar(&f.PollInterval, "interval", 0, "poll interval")
	cmd.Flags().DurationVar(&f.RetryInterval, "retry-interval", 0, "delay between confirmation prompts")
	cmd.Flags().StringVar(&f.Probe, "probe", "", "probe: memory, cpu or static:<percent>")
	cmd.Flags().StringVar(&f.Source, "source", "", "confirmation source: console or http")
	cmd.Flags().StringVar(&f.Listen, "listen", "", "HTTP listen address for status, confirm and metrics")
	cmd.Flags().BoolVar(&f.Metrics, "metrics", false, "expose Prometheus metrics on /metrics")
	return cmd
}

// createFailoverCommand creates the failover subcommand
func createFailoverCommand(c command, g *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "failover",
		Short: "Move the encoded primary store to the backup now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Failover(cmd.Context(), g.ConfigPath)
		},
	}
}

// createRestoreCommand creates the restore subcommand
func createRestoreCommand(c command, g *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "restore",
		Short: "Restore the most recent backup record to the primary store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Restore(cmd.Context(), g.ConfigPath)
		},
	}
}

// createStatusCommand creates the status subcommand
func createStatusCommand(c command, g *GlobalFlags, f *StatusFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show record counts of the primary and backup stores",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Status(cmd.Context(), g.ConfigPath, *f)
		},
	}
	cmd.Flags().BoolVar(&f.JSON, "json", false, "print JSON")
	return cmd
}

// createSeedCommand creates the seed subcommand
func createSeedCommand(c command, g *GlobalFlags, f *SeedFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Append a record to the primary store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Seed(cmd.Context(), g.ConfigPath, *f)
		},
	}
	cmd.Flags().StringVar(&f.Text, "text", "", "record text (required)")
	if err := cmd.MarkFlagRequired("text"); err != nil {
		panic(err)
	}
	return cmd
}

// createConfirmCommand creates the confirm subcommand
func createConfirmCommand(c command, f *ConfirmFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "confirm",
		Short: "Answer the confirmation prompt of a remote drwatch run",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Confirm(cmd.Context(), *f)
		},
	}
	cmd.Flags().StringVar(&f.Server, "server", "http://localhost:8080/api", "base URL of the drwatch API")
	cmd.Flags().StringVar(&f.Answer, "answer", "yes", "answer to submit")
	cmd.Flags().StringVar(&f.Username, "user", "", "operator name when auth is enabled")
	cmd.Flags().StringVar(&f.Password, "password", "", "operator password (or DRWATCH_OPERATOR_PASSWORD)")
	cmd.Flags().StringVar(&f.CACert, "ca-cert", "", "CA certificate to trust for https")
	cmd.Flags().BoolVar(&f.Insecure, "insecure", false, "skip TLS verification")
	cmd.Flags().BoolVar(&f.Wait, "wait", false, "wait until a prompt is pending before answering")
	return cmd
}

// createHashPasswordCommand creates the hash-password subcommand
func createHashPasswordCommand(c command, f *HashPasswordFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Print a bcrypt hash for [server.auth.operators]",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.HashPassword(*f)
		},
	}
	cmd.Flags().StringVar(&f.Password, "password", "", "password to hash (read from stdin when empty)")
	return cmd
}
