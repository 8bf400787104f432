package optimizer

import (
	"fmt"
	"math"

	"github.com/cwbudde/treeopt/internal/fn"
	"github.com/cwbudde/treeopt/internal/nlco"
	"github.com/cwbudde/treeopt/internal/tree"
)

// problem holds what the three optimizers share: the tree, the solver, the
// moving nodes and the state vector. Moving node i owns the pair
// x[nodeBase+2i], x[nodeBase+2i+1].
type problem struct {
	tree   *tree.Tree
	solver *nlco.NLCO

	nodes    []*tree.Node
	nodeIdx  map[int]int
	nodeBase int
	numVars  int
	x        []float64

	initialized bool
}

func newProblem(t *tree.Tree, solver *nlco.NLCO) problem {
	return problem{tree: t, solver: solver}
}

// setNodes keeps the leaf nodes of moving, dropping duplicates, and lays
// them out from base.
func (p *problem) setNodes(moving []*tree.Node, base int) {
	p.nodes = p.nodes[:0]
	p.nodeIdx = make(map[int]int, len(moving))
	p.nodeBase = base
	for _, n := range moving {
		if n == nil || !n.IsLeaf() {
			continue
		}
		if _, dup := p.nodeIdx[n.ID]; dup {
			continue
		}
		p.nodeIdx[n.ID] = len(p.nodes)
		p.nodes = append(p.nodes, n)
	}
}

// Tree returns the tree being optimized.
func (p *problem) Tree() *tree.Tree { return p.tree }

// Solver returns the underlying facade.
func (p *problem) Solver() *nlco.NLCO { return p.solver }

// MovingNodes returns the nodes that are variables, in layout order.
func (p *problem) MovingNodes() []*tree.Node { return p.nodes }

// NumVars is the length of the state vector.
func (p *problem) NumVars() int { return p.numVars }

// NumConstraints counts the constraints added so far, bounds excluded.
func (p *problem) NumConstraints() int { return p.solver.NumConstraints() }

// Vars returns the state vector. It aliases the optimizer's memory.
func (p *problem) Vars() []float64 { return p.x }

// Initialized reports whether Initialize succeeded.
func (p *problem) Initialized() bool { return p.initialized }

// NodeOffset returns the index of the x coordinate of n, and false if n is
// not a variable.
func (p *problem) NodeOffset(n *tree.Node) (int, bool) {
	if n == nil || p.nodeIdx == nil {
		return 0, false
	}
	i, ok := p.nodeIdx[n.ID]
	if !ok {
		return 0, false
	}
	return p.nodeBase + 2*i, true
}

// SetUpdater installs the progress callback used by Optimize.
func (p *problem) SetUpdater(u nlco.Updater) error {
	return p.solver.SetUpdater(u)
}

func (p *problem) addEquality(f fn.DifferentiableFunction) error {
	return p.solver.AddNonlinearEquality(f)
}

func (p *problem) addInequality(f fn.DifferentiableFunction) error {
	return p.solver.AddNonlinearInequality(f)
}

// setup empties the solver, sizes it and installs bounds and objective. A
// failed Initialize can therefore be retried on the same optimizer.
func (p *problem) setup(lower, upper []float64, objective fn.DifferentiableFunction) error {
	p.numVars = len(lower)
	p.x = make([]float64, p.numVars)
	if err := p.solver.Reset(); err != nil {
		return fmt.Errorf("optimizer: %w", err)
	}
	if err := p.solver.SetSize(p.numVars); err != nil {
		return fmt.Errorf("optimizer: %w", err)
	}
	if err := p.solver.SetBounds(lower, upper); err != nil {
		return fmt.Errorf("optimizer: %w", err)
	}
	if err := p.solver.SetObjective(objective); err != nil {
		return fmt.Errorf("optimizer: %w", err)
	}
	return nil
}

// nodeBounds fills the paper rectangle for every moving node.
func (p *problem) nodeBounds(lower, upper []float64) {
	for i := range p.nodes {
		ix := p.nodeBase + 2*i
		lower[ix], upper[ix] = 0, p.tree.PaperWidth
		lower[ix+1], upper[ix+1] = 0, p.tree.PaperHeight
	}
}

func (p *problem) nodesToData() {
	for i, n := range p.nodes {
		ix := p.nodeBase + 2*i
		p.x[ix] = n.Loc.X
		p.x[ix+1] = n.Loc.Y
	}
}

func (p *problem) dataToNodes() {
	for i, n := range p.nodes {
		ix := p.nodeBase + 2*i
		n.Loc.X = p.x[ix]
		n.Loc.Y = p.x[ix+1]
	}
}

// run copies the tree into the state vector, solves, and copies the best
// point back whenever the solver produced one.
func (p *problem) run(toData, toTree func()) (nlco.Result, error) {
	if !p.initialized {
		return nlco.Result{}, ErrNotInitialized
	}
	toData()
	res, err := p.solver.Optimize(p.x)
	if res.X != nil {
		toTree()
	}
	return res, err
}

// leafPaths returns the tree's leaf paths.
func (p *problem) leafPaths() ([]*tree.Path, error) {
	paths, err := p.tree.LeafPaths()
	if err != nil {
		return nil, fmt.Errorf("optimizer: %w", err)
	}
	return paths, nil
}

func dist(a, b *tree.Node) float64 {
	return math.Hypot(a.Loc.X-b.Loc.X, a.Loc.Y-b.Loc.Y)
}
