package main

import (
	"os"

	log "github.com/CefBoud/monsink/logging"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error("%v", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "monsink",
		Short:         "Writes Kafka partitions into size and time bounded segment files",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(), newSegmentsCmd(), newGuardCmd())
	return root
}
