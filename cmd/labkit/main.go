package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "labkit",
		Short: "Build simulated physics-lab experiments",
		Long: `labkit builds experiment documents for a physics-lab simulator.

It places circuit, celestial and electromagnetism elements, wires circuit
pins together, and saves the result as archives the simulator can open.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")
	rootCmd.PersistentFlags().String("root", "", "labkit data directory (default ~/.labkit)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newConfigCmd(),
		newNewCmd(),
		newPlaceCmd(),
		newMoveCmd(),
		newConnectCmd(),
		newDisconnectCmd(),
		newRemoveCmd(),
		newShowCmd(),
		newListCmd(),
		newVersionsCmd(),
		newModelsCmd(),
		newDeleteCmd(),
		newExportCmd(),
		newImportCmd(),
		newMCPServerCmd(),
	)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{"version": version})
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "labkit version %s\n", version)
			}
		},
	}
}

// emit writes v as JSON when --json is set, otherwise calls text.
func emit(cmd *cobra.Command, v any, text func(w io.Writer)) error {
	jsonOut, _ := cmd.Flags().GetBool("json")
	if jsonOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(cmd.OutOrStdout())
	return nil
}
