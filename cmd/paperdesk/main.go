package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cpath string

func main() {
	root := &cobra.Command{
		Use:          "paperdesk",
		Short:        "paperdesk SDK command line tools",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&cpath, "config", "c", "paperdesk.yml", "Path to the config file")

	root.AddCommand(validateCmd())
	root.AddCommand(schemaCmd())
	root.AddCommand(testCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
