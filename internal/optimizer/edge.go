package optimizer

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/cwbudde/treeopt/internal/fn"
	"github.com/cwbudde/treeopt/internal/nlco"
	"github.com/cwbudde/treeopt/internal/tree"
)

// EdgeOptimizer stretches a group of edges by a common strain, as much as the
// paper allows. u[0] is the shared strain, the moving nodes follow.
type EdgeOptimizer struct {
	problem

	edges   []*tree.Edge
	edgeSet map[int]bool
}

// NewEdgeOptimizer creates an optimizer for t that assembles into solver.
func NewEdgeOptimizer(t *tree.Tree, solver *nlco.NLCO) *EdgeOptimizer {
	return &EdgeOptimizer{problem: newProblem(t, solver)}
}

// Initialize builds the problem for the given edges.
func (o *EdgeOptimizer) Initialize(movingNodes []*tree.Node, stretchyEdges []*tree.Edge) error {
	o.initialized = false
	o.setNodes(movingNodes, 1)

	o.edges = o.edges[:0]
	o.edgeSet = make(map[int]bool, len(stretchyEdges))
	for _, e := range stretchyEdges {
		if e == nil || o.edgeSet[e.ID] {
			continue
		}
		o.edgeSet[e.ID] = true
		o.edges = append(o.edges, e)
	}
	if len(o.edges) == 0 {
		return ErrNoStretchyEdges
	}

	n := 1 + 2*len(o.nodes)
	lower := make([]float64, n)
	upper := make([]float64, n)
	lower[0], upper[0] = MinStrain, MaxStrain
	o.nodeBounds(lower, upper)

	if err := o.setup(lower, upper, fn.NewMaxVarFn(0)); err != nil {
		return err
	}
	paths, err := o.leafPaths()
	if err != nil {
		return err
	}
	for _, p := range paths {
		if o.tree.IsPathActive(p) {
			continue
		}
		f, ok := o.pathLengthFn(p)
		if !ok {
			continue
		}
		if err := o.addInequality(f); err != nil {
			return fmt.Errorf("optimizer: %w", err)
		}
	}
	if err := addConditions(o); err != nil {
		return err
	}

	o.initialized = true
	slog.Debug("Edge optimizer initialized",
		"moving_nodes", len(o.nodes),
		"edges", len(o.edges),
		"num_vars", n,
		"constraints", o.NumConstraints(),
	)
	return nil
}

// Edges returns the edges sharing the strain variable.
func (o *EdgeOptimizer) Edges() []*tree.Edge { return o.edges }

// EdgeOffset reports 0 for every selected edge, since they share u[0].
func (o *EdgeOptimizer) EdgeOffset(e *tree.Edge) (int, bool) {
	if e == nil || !o.edgeSet[e.ID] {
		return 0, false
	}
	return 0, true
}

// fixVarLengths splits the scaled path length into lfix + u[0]*lvar.
func (o *EdgeOptimizer) fixVarLengths(p *tree.Path) (lfix, lvar float64) {
	scale := o.tree.Scale
	for _, e := range p.Edges {
		if o.edgeSet[e.ID] {
			lfix += scale * e.Length
			lvar += scale * e.Length
			continue
		}
		lfix += scale * e.StrainedLength()
	}
	return lfix, lvar
}

func (o *EdgeOptimizer) pathLengthFn(p *tree.Path) (fn.DifferentiableFunction, bool) {
	n1, n2 := p.Endpoints()
	if n1 == nil || n1 == n2 {
		return nil, false
	}
	ix, ok1 := o.NodeOffset(n1)
	iy, ok2 := o.NodeOffset(n2)
	lfix, lvar := o.fixVarLengths(p)
	switch {
	case ok1 && ok2:
		return fn.NewStrainPathFn1(ix, iy, lfix, lvar), true
	case ok1:
		return fn.NewStrainPathFn2(ix, n2.Loc.X, n2.Loc.Y, lfix, lvar), true
	case ok2:
		return fn.NewStrainPathFn2(iy, n1.Loc.X, n1.Loc.Y, lfix, lvar), true
	case lvar > 0:
		return fn.NewStrainPathFn3(dist(n1, n2), lfix, lvar), true
	}
	return nil, false
}

// TreeToData starts the shared strain at the smallest strain of the
// selected edges, so the start point never lengthens an edge.
func (o *EdgeOptimizer) TreeToData() {
	if !o.initialized {
		return
	}
	s := math.Inf(1)
	for _, e := range o.edges {
		s = math.Min(s, e.Strain)
	}
	o.x[0] = s
	o.nodesToData()
}

// DataToTree assigns the shared strain to every selected edge and copies the
// node locations back.
func (o *EdgeOptimizer) DataToTree() {
	if !o.initialized {
		return
	}
	for _, e := range o.edges {
		e.Strain = o.x[0]
	}
	o.dataToNodes()
}

// Optimize solves from the current tree state and writes the best point
// found back into the tree.
func (o *EdgeOptimizer) Optimize() (nlco.Result, error) {
	return o.run(o.TreeToData, o.DataToTree)
}
