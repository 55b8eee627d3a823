package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func NewFlowsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "flows",
		Short: "List the flows of the flows directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			h, err := openHub(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer h.close()

			out := cmd.OutOrStdout()
			for _, f := range h.manager.Catalog().List() {
				fmt.Fprintf(out, "%s/%s (%s): %s\n", f.EntityType(), f.Name(), f.Format(), strings.Join(f.Labels(), " -> "))
			}
			return nil
		},
	}
}
