package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/itsneelabh/docrouter"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "docrouter %s\n", docrouter.Version)
			fmt.Fprintf(out, "  api:    %s\n", docrouter.APIVersion)
			fmt.Fprintf(out, "  built:  %s\n", docrouter.BuildDate)
			fmt.Fprintf(out, "  commit: %s\n", docrouter.GitCommit)
		},
	}
}
