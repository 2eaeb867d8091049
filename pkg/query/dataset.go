package query

import (
	"github.com/ansell/openrdf-sesame-sub028/pkg/rdf"
)

// Dataset selects the graphs a query reads. Statement patterns in the
// default scope read DefaultGraphs, patterns in a named graph scope read
// NamedGraphs. When both lists are empty every graph is read; when only
// one is empty its scope reads nothing. The default graph sentinel
// selects statements without a context.
type Dataset struct {
	DefaultGraphs []rdf.Term
	NamedGraphs   []rdf.Term
}

// NewDataset returns a dataset with the given default graphs.
func NewDataset(defaultGraphs ...rdf.Term) *Dataset {
	return &Dataset{DefaultGraphs: defaultGraphs}
}

// AddNamedGraph adds g to the named graphs.
func (d *Dataset) AddNamedGraph(g rdf.Term) *Dataset {
	d.NamedGraphs = append(d.NamedGraphs, g)
	return d
}

// HasNamedGraph reports whether g is among the named graphs.
func (d *Dataset) HasNamedGraph(g rdf.Term) bool {
	for _, n := range d.NamedGraphs {
		if n.Equals(g) {
			return true
		}
	}
	return false
}
