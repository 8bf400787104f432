package optimizer

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/cwbudde/treeopt/internal/fn"
	"github.com/cwbudde/treeopt/internal/nlco"
	"github.com/cwbudde/treeopt/internal/tree"
)

// ScaleOptimizer finds the largest tree scale for which every leaf path
// still fits on the paper. u[0] is the scale, the moving nodes follow.
type ScaleOptimizer struct {
	problem
}

// NewScaleOptimizer creates an optimizer for t that assembles into solver.
func NewScaleOptimizer(t *tree.Tree, solver *nlco.NLCO) *ScaleOptimizer {
	return &ScaleOptimizer{problem: newProblem(t, solver)}
}

// Initialize builds the problem. The scale is always a variable, so an
// empty node list is allowed.
func (o *ScaleOptimizer) Initialize(movingNodes []*tree.Node) error {
	o.initialized = false
	o.setNodes(movingNodes, 1)

	paths, err := o.leafPaths()
	if err != nil {
		return err
	}
	shortest := math.Inf(1)
	for _, p := range paths {
		if l := p.TreeLength(); l > 0 && l < shortest {
			shortest = l
		}
	}
	if math.IsInf(shortest, 1) {
		return ErrNoLeafPaths
	}

	n := 1 + 2*len(o.nodes)
	lower := make([]float64, n)
	upper := make([]float64, n)
	upper[0] = math.Hypot(o.tree.PaperWidth, o.tree.PaperHeight) / shortest
	o.nodeBounds(lower, upper)

	if err := o.setup(lower, upper, fn.NewMaxVarFn(0)); err != nil {
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
	slog.Debug("Scale optimizer initialized",
		"moving_nodes", len(o.nodes),
		"num_vars", n,
		"constraints", o.NumConstraints(),
		"max_scale", upper[0],
	)
	return nil
}

// EdgeOffset always reports false: edge strains are constants here.
func (o *ScaleOptimizer) EdgeOffset(*tree.Edge) (int, bool) { return 0, false }

func (o *ScaleOptimizer) pathLengthFn(p *tree.Path) (fn.DifferentiableFunction, bool) {
	n1, n2 := p.Endpoints()
	if n1 == nil || n1 == n2 {
		return nil, false
	}
	l := p.TreeLength()
	ix, ok1 := o.NodeOffset(n1)
	iy, ok2 := o.NodeOffset(n2)
	switch {
	case ok1 && ok2:
		return fn.NewPathFn1(ix, iy, l), true
	case ok1:
		return fn.NewPathFn2(ix, n2.Loc.X, n2.Loc.Y, l), true
	case ok2:
		return fn.NewPathFn2(iy, n1.Loc.X, n1.Loc.Y, l), true
	}
	return fn.NewPathFn3(dist(n1, n2), l), true
}

// TreeToData copies the scale and node locations into the state vector.
func (o *ScaleOptimizer) TreeToData() {
	if !o.initialized {
		return
	}
	o.x[0] = o.tree.Scale
	o.nodesToData()
}

// DataToTree copies the state vector back into the tree.
func (o *ScaleOptimizer) DataToTree() {
	if !o.initialized {
		return
	}
	o.tree.Scale = o.x[0]
	o.dataToNodes()
}

// Optimize solves from the current tree state and writes the best point
// found back into the tree.
func (o *ScaleOptimizer) Optimize() (nlco.Result, error) {
	return o.run(o.TreeToData, o.DataToTree)
}
