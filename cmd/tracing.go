package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewTracingCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tracing",
		Short: "Show or change the persisted tracing flag",
	}

	cmd.AddCommand(
		newTracingSetCommand("enable", "Record the output of every step", true),
		newTracingSetCommand("disable", "Only record failing steps", false),
		&cobra.Command{
			Use:   "status",
			Short: "Print whether tracing is enabled",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				h, err := openHub(cmd.Context(), false)
				if err != nil {
					return err
				}
				defer h.close()

				enabled, err := h.manager.IsTracingEnabled(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "tracing enabled: %t\n", enabled)
				return nil
			},
		},
	)
	return cmd
}

func newTracingSetCommand(use, short string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			h, err := openHub(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer h.close()

			if enabled {
				err = h.manager.EnableTracing(cmd.Context())
			} else {
				err = h.manager.DisableTracing(cmd.Context())
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "tracing enabled: %t\n", enabled)
			return nil
		},
	}
}
