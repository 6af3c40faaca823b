package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/CefBoud/monsink/config"
	"github.com/CefBoud/monsink/storage"
	"github.com/spf13/cobra"
)

func newSegmentsCmd() *cobra.Command {
	var configPath, topic string
	var partition int32
	cmd := &cobra.Command{
		Use:   "segments",
		Short: "List the finalized segments of a partition",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			st, err := storage.New(context.Background(), cfg.Storage)
			if err != nil {
				return err
			}
			defer st.Close()
			segments, err := storage.ListPartitionSegments(st, cfg.RootDir, topic, partition)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "START OFFSET\tPATH")
			for _, s := range segments {
				fmt.Fprintf(w, "%d\t%s\n", s.StartOffset, s.Path)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "monsink.yaml", "path to the YAML configuration")
	cmd.Flags().StringVarP(&topic, "topic", "t", "", "topic name")
	cmd.Flags().Int32VarP(&partition, "partition", "p", 0, "partition number")
	cmd.MarkFlagRequired("topic")
	return cmd
}
