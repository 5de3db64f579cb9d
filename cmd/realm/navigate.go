package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"realm/internal/app"
	"realm/internal/config"
	"realm/internal/host"
)

func createNavigateCmd() *cobra.Command {
	var (
		timeout time.Duration
		modules []string
	)
	cmd := &cobra.Command{
		Use:   "navigate <url>",
		Short: "Run one navigation against the origin and print the outcome",
		Long: `Navigate boots a runtime on a headless host, navigates to url and waits
for every source to settle. It prints the mounted module, the navigation
mode and the history of the host.

Examples:
  REALM_ORIGIN=http://localhost:3000 realm navigate /about/ --module Pages.About`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			cfg.Host.Kind = config.HostHeadless
			cfg.Modules = append(cfg.Modules, modules...)

			a, err := app.NewWithConfig(cmd.Context(), cfg, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			rt := a.Runtime()
			rt.Navigate(args[0], false, false)

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if err := rt.Wait(ctx); err != nil {
				return fmt.Errorf("navigation did not settle: %w", err)
			}

			id, _ := rt.Current()
			_, mode := rt.Context()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "module:  %s\n", orNone(id))
			fmt.Fprintf(out, "mode:    %s\n", mode)
			if hl, ok := a.Host().(*host.Headless); ok {
				fmt.Fprintf(out, "history: %s\n", strings.Join(hl.History(), " -> "))
				if assigned := hl.Assigned(); len(assigned) > 0 {
					fmt.Fprintf(out, "assign:  %s\n", strings.Join(assigned, ", "))
				}
				if replaced := hl.Replaced(); len(replaced) > 0 {
					fmt.Fprintf(out, "replace: %s\n", strings.Join(replaced, ", "))
				}
				if n := hl.Reloads(); n > 0 {
					fmt.Fprintf(out, "reloads: %d\n", n)
				}
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "how long to wait for the navigation")
	cmd.Flags().StringSliceVar(&modules, "module", nil, "module ids to register in addition to the configured ones")
	return cmd
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func init() {
	rootCmd.AddCommand(createNavigateCmd())
}
