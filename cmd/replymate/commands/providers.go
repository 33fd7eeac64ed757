package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mrviduus/ReplyMate-sub000/internal/modelload"
	"github.com/mrviduus/ReplyMate-sub000/internal/provider"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List available providers",
	RunE:  runProviders,
}

func init() {
	rootCmd.AddCommand(providersCmd)
}

func runProviders(cmd *cobra.Command, args []string) error {
	registry := provider.NewRegistry(modelload.New(modelload.Config{}), nil)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PROVIDER\tNAME\tDEFAULT MODEL\tAPI KEY")
	for _, t := range registry.Types() {
		m, _ := registry.Describe(t)
		key := "none"
		if m.RequiresAPIKey {
			key = m.KeyPrefix + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t, m.DisplayName, m.DefaultModel, key)
	}
	return w.Flush()
}
