package main

import (
	"github.com/spf13/cobra"
)

func newGenerateConfigCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "generate-config",
		Short: "Print the effective configuration.",
		Long: `generate-config prints the configuration, defaults merged with flags,
environment and config file, as TOML to stdout.
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			buf, err := e.cfg.ToTOML()
			if err != nil {
				return err
			}
			_, err = e.stdout.Write(buf)
			return err
		},
	}
}
