package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCompactCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "compact",
		Short: "Drop dead statement versions and unused values.",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := e.open()
			if err != nil {
				return err
			}
			defer s.Close()

			before := s.Dictionary().Len()
			if err := s.Compact(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(e.stdout, "values: %d -> %d\n", before, s.Dictionary().Len())
			return nil
		},
	}
}
