package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCountCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print the number of stored statements.",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := e.open()
			if err != nil {
				return err
			}
			defer s.Close()
			c, err := s.NewConnection()
			if err != nil {
				return err
			}
			defer c.Close()

			total, err := s.Count()
			if err != nil {
				return err
			}
			explicit, err := c.Size()
			if err != nil {
				return err
			}
			fmt.Fprintf(e.stdout, "statements: %d\nexplicit:   %d\ninferred:   %d\nvalues:     %d\n",
				total, explicit, total-explicit, s.Dictionary().Len())
			return nil
		},
	}
}
