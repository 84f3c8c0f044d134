package main

import (
	"encoding/json"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/yourorg/kb-extract/internal/kvstore"
)

func newLoadCmd() *cobra.Command {
	var dbDir string
	cmd := &cobra.Command{
		Use:   "load <kv-store-file>",
		Short: "Load a .jsonl or .msgpack key-value store into a badger database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := kvstore.Open(dbDir)
			if err != nil {
				return err
			}
			defer db.Close()
			out := cmd.OutOrStdout()
			n, err := db.LoadFile(cmd.Context(), args[0], func(n uint64) {
				fmt.Fprintf(out, "\rloaded %s entries", humanize.Comma(int64(n)))
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "\nloaded %d entries into %s\n", n, dbDir)
			return nil
		},
	}
	cmd.Flags().StringVar(&dbDir, "db", "kv_db", "badger database directory")
	return cmd
}

func newLookupCmd() *cobra.Command {
	var dbDir string
	cmd := &cobra.Command{
		Use:   "lookup <entity-id>",
		Short: "Print every stored entry for an entity id as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := kvstore.Open(dbDir)
			if err != nil {
				return err
			}
			defer db.Close()
			entries, err := db.Get(args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			enc.SetEscapeHTML(false)
			return enc.Encode(entries)
		},
	}
	cmd.Flags().StringVar(&dbDir, "db", "kv_db", "badger database directory")
	return cmd
}
