package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrviduus/ReplyMate-sub000/internal/modelload"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List local models and the recommended one for this machine",
	Long: `List the models the local runtime currently holds, along with the
model this machine's memory and CPU count suggest.`,
	RunE: runModels,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.Flags().String("base-url", "", "local runtime base URL (default "+modelload.DefaultBaseURL+")")
}

func runModels(cmd *cobra.Command, args []string) error {
	baseURL, _ := cmd.Flags().GetString("base-url")
	client := modelload.NewClient(baseURL)

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Recommended for this machine: %s\n", modelload.PickModel())
	fmt.Fprintf(out, "Fallback order: %v\n\n", modelload.FallbackChain())

	if err := client.Ping(ctx); err != nil {
		logInfo("local runtime not reachable: %v", err)
		fmt.Fprintln(out, "Local runtime: unavailable")
		return nil
	}

	models, err := client.ListModels(ctx)
	if err != nil {
		logError("listing models: %v", err)
		return err
	}

	if len(models) == 0 {
		fmt.Fprintln(out, "Local runtime: running, no models downloaded yet")
		return nil
	}
	fmt.Fprintln(out, "Downloaded models:")
	for _, m := range models {
		fmt.Fprintf(out, "  %s\n", m)
	}
	return nil
}
