package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/simon020286/go-datahub/flow"
	"github.com/simon020286/go-datahub/store"
)

const (
	storeFlag            = "store"
	excludeCollectorFlag = "exclude-collector"
	labelFlag            = "label"
)

func NewCountCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "count",
		Short: "Count the documents of a store",
		Long: `The count command counts the documents of the staging, final or trace store.
On the trace store, --label selects the traces holding a step with that label
and --exclude-collector leaves out the run traces.`,
		RunE: runCount,
		Args: cobra.NoArgs,
	}

	flags := cmd.Flags()
	flags.String(storeFlag, store.FinalName, "the store to count ('staging', 'final' or 'trace')")
	flags.String(collectionFlag, "", "only count documents of this collection")
	flags.String(uriPrefixFlag, "", "only count documents whose URI starts with this prefix")
	flags.String(labelFlag, "", "only count documents with a label property of this value")
	flags.Bool(excludeCollectorFlag, false, "leave out documents with a collector label")

	return cmd
}

func runCount(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	flags := cmd.Flags()
	name, _ := flags.GetString(storeFlag)
	collection, _ := flags.GetString(collectionFlag)
	prefix, _ := flags.GetString(uriPrefixFlag)
	label, _ := flags.GetString(labelFlag)
	excludeCollector, _ := flags.GetBool(excludeCollectorFlag)

	h, err := openHub(ctx, false)
	if err != nil {
		return err
	}
	defer h.close()

	ds, err := storeByName(h.stores, name)
	if err != nil {
		return err
	}

	q := store.Query{Collection: collection, URIPrefix: prefix}
	if label != "" {
		q.Conditions = append(q.Conditions, store.PropertyEquals("label", label))
	}
	if excludeCollector {
		q.Conditions = append(q.Conditions, store.PropertyNotEquals("label", flow.CollectorLabel))
	}

	n, err := ds.Count(ctx, q)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), n)
	return nil
}
