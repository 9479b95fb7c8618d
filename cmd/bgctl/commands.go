// SPDX-License-Identifier: MIT

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ManuGH/bgctl/internal/audit"
	"github.com/ManuGH/bgctl/internal/envfile"
	"github.com/ManuGH/bgctl/internal/log"
	"github.com/ManuGH/bgctl/internal/pool"
	"github.com/ManuGH/bgctl/internal/server"
	"github.com/ManuGH/bgctl/internal/status"
	"github.com/ManuGH/bgctl/internal/switcher"
)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "bgctl",
		Short:        "Control a local blue/green deployment",
		Long:         "bgctl manages two app pools behind an nginx reverse proxy:\nstarting and stopping the stack, switching live traffic between the\npools, and injecting or clearing failures for switchover drills.",
		SilenceUsage: true,
		// Bare invocation prints usage and fails, like any command typo.
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = cmd.Help()
			return errors.New("a command is required")
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to bgctl config file (YAML)")

	root.AddCommand(
		newStartCmd(&configPath),
		newStopCmd(&configPath),
		newStatusCmd(&configPath),
		newSwitchCmd(&configPath),
		newChaosCmd(&configPath),
		newHealCmd(&configPath),
		newHistoryCmd(&configPath),
		newServeCmd(&configPath),
		newVersionCmd(),
	)
	return root
}

// fail logs the error once and hands it back for cobra to print and for
// main to turn into the exit code.
func fail(cmd *cobra.Command, err error) error {
	logger := log.WithComponent("cli")
	logger.Error().Err(err).Str("command", cmd.Name()).Msg("command failed")
	return err
}

func newStartCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start both pools and the proxy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(*configPath)
			if err != nil {
				return fail(cmd, err)
			}
			defer a.close()

			if err := a.requireRecord(); err != nil {
				return fail(cmd, err)
			}
			if err := a.compose.Up(cmd.Context()); err != nil {
				a.auditor.Lifecycle(audit.EventLifecycleUp, "failure")
				return fail(cmd, err)
			}
			a.auditor.Lifecycle(audit.EventLifecycleUp, "success")

			// Render the proxy config for the recorded pool. Right after
			// `up` the nginx container may still be warming, so a failed
			// reload signal is a warning, not a failed start.
			if err := a.switcher.Reconcile(cmd.Context()); err != nil {
				logger := log.WithComponent("cli")
				logger.Warn().Err(err).
					Msg("proxy reload after start failed; run 'bgctl switch' or retry once nginx is up")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "deployment started")
			return nil
		},
	}
}

func newStopCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the pools and the proxy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(*configPath)
			if err != nil {
				return fail(cmd, err)
			}
			defer a.close()

			if err := a.compose.Down(cmd.Context()); err != nil {
				a.auditor.Lifecycle(audit.EventLifecycleDown, "failure")
				return fail(cmd, err)
			}
			a.auditor.Lifecycle(audit.EventLifecycleDown, "success")
			fmt.Fprintln(cmd.OutOrStdout(), "deployment stopped")
			return nil
		},
	}
}

func newStatusCmd(configPath *string) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show persisted intent, live routing, and container states",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(*configPath)
			if err != nil {
				return fail(cmd, err)
			}
			defer a.close()

			if err := a.requireRecord(); err != nil {
				return fail(cmd, err)
			}
			view, err := a.reporter.Snapshot(cmd.Context())
			if err != nil {
				return fail(cmd, err)
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(view); err != nil {
					return fail(cmd, err)
				}
				return nil
			}
			printView(cmd.OutOrStdout(), view)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the status as JSON")
	return cmd
}

func printView(w io.Writer, view status.View) {
	fmt.Fprintf(w, "active pool:   %s\n", view.ActivePool)
	fmt.Fprintf(w, "observed pool: %s\n", view.ObservedPool)
	fmt.Fprintf(w, "nginx port:    %d\n", view.NginxPort)
	if len(view.Containers) == 0 {
		fmt.Fprintln(w, "containers:    none running")
	} else {
		fmt.Fprintln(w, "containers:")
		for _, c := range view.Containers {
			fmt.Fprintf(w, "  %s\n", c)
		}
	}
	if view.Drift {
		fmt.Fprintf(w, "WARNING: proxy serves %q but the record says %q; routing has drifted\n",
			view.ObservedPool, view.ActivePool)
	}
}

func newSwitchCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:       "switch <blue|green>",
		Short:     "Route live traffic to the given pool",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(pool.Blue), string(pool.Green)},
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := pool.Parse(args[0])
			if err != nil {
				return fail(cmd, err)
			}

			a, err := buildApp(*configPath)
			if err != nil {
				return fail(cmd, err)
			}
			defer a.close()

			if err := a.requireRecord(); err != nil {
				return fail(cmd, err)
			}
			result, err := a.switcher.SwitchTo(cmd.Context(), target)
			if switcher.IsStaleRouting(err) {
				// The record moved but the proxy did not. Say exactly
				// that before failing the command.
				fmt.Fprintf(cmd.ErrOrStderr(),
					"record now says %q but the proxy still routes to %q; retry to reconcile\n",
					result.To, result.From)
				return fail(cmd, err)
			}
			if err != nil {
				return fail(cmd, err)
			}
			if !result.Changed {
				fmt.Fprintf(cmd.OutOrStdout(), "pool %q is already active; nothing to do\n", target)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "traffic switched from %q to %q\n", result.From, result.To)
			return nil
		},
	}
}

func newChaosCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "chaos",
		Short: "Inject a failure into the currently active pool",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(*configPath)
			if err != nil {
				return fail(cmd, err)
			}
			defer a.close()

			if err := a.requireRecord(); err != nil {
				return fail(cmd, err)
			}
			target, err := a.chaos.Induce(cmd.Context())
			if err != nil {
				return fail(cmd, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "failure injected into pool %q; switch away to drill recovery\n", target)
			return nil
		},
	}
}

func newHealCmd(configPath *string) *cobra.Command {
	var poolFlag string

	cmd := &cobra.Command{
		Use:   "heal",
		Short: "Clear injected failures",
		Long:  "Clears injected failures. Without --pool the target is worked out\nfrom live routing; probe failures are reported but never fail the\ncommand, so heal is always safe to run.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var fixed pool.Pool
			if poolFlag != "" {
				p, err := pool.Parse(poolFlag)
				if err != nil {
					return fail(cmd, err)
				}
				fixed = p
			}

			a, err := buildApp(*configPath)
			if err != nil {
				return fail(cmd, err)
			}
			defer a.close()

			if err := a.requireRecord(); err != nil {
				return fail(cmd, err)
			}
			result := a.chaos.Heal(cmd.Context(), fixed)
			for _, p := range result.Targets {
				fmt.Fprintf(cmd.OutOrStdout(), "heal sent to pool %q\n", p)
			}
			for _, p := range result.Failed {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: heal for pool %q did not get through\n", p)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&poolFlag, "pool", "", "heal this pool instead of resolving the target from live routing")
	return cmd
}

func newHistoryCmd(configPath *string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent switch and chaos operations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(*configPath)
			if err != nil {
				return fail(cmd, err)
			}
			defer a.close()

			if a.journal == nil {
				return fail(cmd, errors.New("history journal is not configured (set history_db)"))
			}
			records, err := a.journal.Recent(cmd.Context(), limit)
			if err != nil {
				return fail(cmd, err)
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no operations recorded yet")
				return nil
			}
			for _, r := range records {
				line := fmt.Sprintf("%s  %-12s %-14s", r.OccurredAt.Format("2006-01-02 15:04:05"), r.Kind, r.Result)
				if r.FromPool != "" || r.ToPool != "" {
					line += fmt.Sprintf("  %s -> %s", r.FromPool, r.ToPool)
				}
				if r.Detail != "" {
					line += "  (" + r.Detail + ")"
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of records to show (default 20)")
	return cmd
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Expose the deployment controls over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(*configPath)
			if err != nil {
				return fail(cmd, err)
			}
			defer a.close()

			srv := server.New(server.Options{
				Listen:   a.cfg.Listen,
				Store:    a.store,
				Switcher: a.switcher,
				Chaos:    a.chaos,
				Reporter: a.reporter,
				Journal:  a.journal,
				Health:   a.healthManager(),
			})
			if err := srv.Run(cmd.Context()); err != nil {
				return fail(cmd, err)
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "bgctl %s (commit: %s, built: %s)\n", version, commit, buildDate)
		},
	}
}

// requireRecord pre-flights the deployment record so commands fail with
// one clear message instead of a mid-operation surprise.
func (a *app) requireRecord() error {
	if err := a.store.Check(); err != nil {
		if errors.Is(err, envfile.ErrConfigMissing) {
			return fmt.Errorf("%w (looked in %s)", err, a.store.Path())
		}
		return err
	}
	return nil
}
