package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	paperdesk "github.com/paperdesk/paperdesk-go"
)

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the config file",
		Long: `Load the config file, apply environment overrides, and validate it.

Exit codes:
  0 - Config is valid
  1 - Config could not be read or failed validation`,
		Run: cmdValidate,
	}
}

func cmdValidate(cmd *cobra.Command, args []string) {
	conf, err := paperdesk.ReadConfig(cpath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid: %s\n", err)
		os.Exit(1)
	}
	fmt.Printf("ok: %s (api %s)\n", cpath, conf.API.BaseURL)
}

func schemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the config file JSON schema",
		Run:   cmdSchema,
	}
}

func cmdSchema(cmd *cobra.Command, args []string) {
	b, err := paperdesk.ConfigSchema()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(string(b))
}
