package main

import (
	"fmt"
	"sort"

	"github.com/CefBoud/monsink/guard"
	"github.com/spf13/cobra"
)

func newGuardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "guard",
		Short: "Inspect persisted offset marks",
	}
	var path string
	dump := &cobra.Command{
		Use:   "dump",
		Short: "Print the high-water-mark of every destination",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := guard.NewBoltStore(path)
			if err != nil {
				return err
			}
			g, err := guard.Open(store)
			if err != nil {
				store.Close()
				return err
			}
			defer g.Close()
			marks := g.Snapshot()
			keys := make([]string, 0, len(marks))
			for k := range marks {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", k, marks[k])
			}
			return nil
		},
	}
	dump.Flags().StringVar(&path, "path", "", "bolt file holding the offset marks")
	dump.MarkFlagRequired("path")
	cmd.AddCommand(dump)
	return cmd
}
