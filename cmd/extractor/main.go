// Command extractor turns a knowledge-base JSON dump into per-type index
// files and a consolidated key-value store.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:   "extractor",
		Short: "Extract typed entities from a knowledge-base dump",
		Long: `extractor streams a line-per-record JSON dump, keeps records of the
configured entity types and writes one CSV index per type plus a key-value
store of normalized attributes.

Commands:
  extract   Run an extraction
  load      Load a finished key-value store into a badger database
  lookup    Print the stored entries of one entity`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default .kbextract.yaml in . or $HOME)")
	root.PersistentFlags().String("log-level", "info", "debug|info|warn|error")

	root.AddCommand(newExtractCmd(&configPath))
	root.AddCommand(newLoadCmd())
	root.AddCommand(newLookupCmd())
	return root
}
