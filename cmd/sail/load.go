package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ansell/openrdf-sesame-sub028/internal/nquads"
	"github.com/ansell/openrdf-sesame-sub028/pkg/errors"
	"github.com/ansell/openrdf-sesame-sub028/pkg/inferencer"
	"github.com/ansell/openrdf-sesame-sub028/pkg/iteration"
	"github.com/ansell/openrdf-sesame-sub028/pkg/rdf"
	"github.com/ansell/openrdf-sesame-sub028/pkg/store"
)

func newLoadCommand(e *env) *cobra.Command {
	var (
		graph string
		infer bool
	)
	cmd := &cobra.Command{
		Use:   "load [file...]",
		Short: "Load N-Quads files into the store.",
		Long: `load adds the statements of N-Quads files (or stdin when no file or
"-" is given) in a single transaction.
`,
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
			var conn store.SailConnection = c
			if infer {
				conn = inferencer.NewRDFS(c, e.log)
			}
			defer conn.Close()

			if len(args) == 0 {
				args = []string{"-"}
			}
			for _, name := range args {
				if err := loadFile(e, conn, name, graph); err != nil {
					return err
				}
			}
			if err := conn.Commit(); err != nil {
				return err
			}
			n, err := conn.Size()
			if err != nil {
				return err
			}
			fmt.Fprintf(e.stdout, "%d explicit statements stored\n", n)
			return nil
		},
	}
	cmd.Flags().StringVarP(&graph, "graph", "g", "", "Load every statement into this named graph.")
	cmd.Flags().BoolVar(&infer, "infer", false, "Compute the RDFS closure before committing.")
	return cmd
}

func loadFile(e *env, conn store.SailConnection, name, graph string) error {
	var r io.Reader = e.stdin
	if name != "-" {
		f, err := os.Open(name)
		if err != nil {
			return errors.Wrapf(err, "opening %s", name)
		}
		defer f.Close()
		r = f
	}

	quads := nquads.NewReader(r)
	if graph != "" {
		g := rdf.NewNamedNode(graph)
		quads = iteration.Convert(quads, func(q *rdf.Quad) (*rdf.Quad, error) {
			return rdf.NewQuad(q.Subject, q.Predicate, q.Object, g), nil
		})
	}
	if err := conn.AddAll(quads); err != nil {
		return errors.Wrapf(err, "loading %s", name)
	}
	e.log.Infof("loaded %s", name)
	return nil
}
