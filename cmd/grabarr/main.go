package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "v0.0.0"

func main() {
	root := &cobra.Command{
		Use:           "grabarr",
		Short:         "Orchestrates file-transfer jobs over an rclone daemon",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCommand())
	root.AddCommand(newRunJobCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
