package main

import (
	"github.com/spf13/cobra"

	"github.com/ansell/openrdf-sesame-sub028/internal/nquads"
	"github.com/ansell/openrdf-sesame-sub028/pkg/iteration"
	"github.com/ansell/openrdf-sesame-sub028/pkg/rdf"
	"github.com/ansell/openrdf-sesame-sub028/pkg/store"
)

func newDumpCommand(e *env) *cobra.Command {
	var (
		inferred bool
		graphs   []string
	)
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Write the stored statements as N-Quads.",
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

			var contexts []rdf.Term
			for _, g := range graphs {
				contexts = append(contexts, rdf.NewNamedNode(g))
			}
			it, err := c.GetStatements(nil, nil, nil, inferred, contexts...)
			if err != nil {
				return err
			}
			w := nquads.NewWriter(e.stdout)
			if err := iteration.ForEach(it, func(st *store.Statement) error {
				return w.Write(st.Subject, st.Predicate, st.Object, st.Context)
			}); err != nil {
				return err
			}
			if err := w.Flush(); err != nil {
				return err
			}
			e.log.Infof("wrote %d statements", w.Count())
			return nil
		},
	}
	cmd.Flags().BoolVar(&inferred, "inferred", false, "Include inferred statements.")
	cmd.Flags().StringSliceVarP(&graphs, "graph", "g", nil, "Only dump these named graphs.")
	return cmd
}
