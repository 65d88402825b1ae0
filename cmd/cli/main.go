package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &apiClient{}

	root := &cobra.Command{
		Use:           "vmwatchdog-cli",
		Short:         "Talk to a running vmwatchdog admin API",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&c.base, "api", envOr("API_BASE", "http://localhost:8080"), "admin API base URL")
	root.PersistentFlags().StringVar(&c.key, "key", os.Getenv("ADMIN_API_KEY"), "admin API key")
	root.PersistentFlags().DurationVar(&c.timeout, "timeout", 30*time.Second, "request timeout")

	root.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "Show every machine and its last observed state",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				ms, err := c.machines(cmd.Context())
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "NAME\tIP\tUP\tLAST CHECK\tDETAIL")
				for _, m := range ms {
					checked := "-"
					if !m.State.LastCheckedAt.IsZero() {
						checked = m.State.LastCheckedAt.Local().Format(time.DateTime)
					}
					ip := m.IP
					if ip == "" {
						ip = "-"
					}
					fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\n", m.Name, ip, m.State.LastKnownUp, checked, m.State.LastDetail)
				}
				return tw.Flush()
			},
		},
		&cobra.Command{
			Use:   "check NAME",
			Short: "Check one machine and start it if it is down",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				line, err := c.check(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
				return nil
			},
		},
		&cobra.Command{
			Use:   "check-all",
			Short: "Check and start every machine",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				lines, err := c.checkAll(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), strings.Join(lines, "\n"))
				return nil
			},
		},
	)
	return root
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
