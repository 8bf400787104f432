package optimizer

import (
	"fmt"
	"log/slog"

	"github.com/cwbudde/treeopt/internal/fn"
	"github.com/cwbudde/treeopt/internal/tree"
)

// assembler is the view of an optimizer that condition adders build on.
// Offsets report false for nodes and edges that are not variables.
type assembler interface {
	Tree() *tree.Tree
	NodeOffset(n *tree.Node) (int, bool)
	EdgeOffset(e *tree.Edge) (int, bool)

	// pathLengthFn returns the function that is zero when the path is exactly
	// as long on the paper as in the tree, or false when the path involves
	// no variable.
	pathLengthFn(p *tree.Path) (fn.DifferentiableFunction, bool)

	addEquality(f fn.DifferentiableFunction) error
	addInequality(f fn.DifferentiableFunction) error
}

type conditionAdder func(a assembler, c tree.Condition) error

func adder[C tree.Condition](add func(assembler, C) error) conditionAdder {
	return func(a assembler, c tree.Condition) error {
		typed, ok := c.(C)
		if !ok {
			return fmt.Errorf("optimizer: %s condition has type %T", c.Kind(), c)
		}
		return add(a, typed)
	}
}

var conditionAdders = map[tree.ConditionKind]conditionAdder{
	tree.KindNodeFixed:          adder(addNodeFixed),
	tree.KindNodeOnCorner:       adder(addNodeOnCorner),
	tree.KindNodeOnEdge:         adder(addNodeOnEdge),
	tree.KindNodeSymmetric:      adder(addNodeSymmetric),
	tree.KindNodesPaired:        adder(addNodesPaired),
	tree.KindNodesCollinear:     adder(addNodesCollinear),
	tree.KindNodeSide:           adder(addNodeSide),
	tree.KindNodeNearPoint:      adder(addNodeNearPoint),
	tree.KindEdgeLengthFixed:    adder(addEdgeLengthFixed),
	tree.KindEdgesSameStrain:    adder(addEdgesSameStrain),
	tree.KindPathActive:         adder(addPathActive),
	tree.KindPathAngleFixed:     adder(addPathAngleFixed),
	tree.KindPathAngleQuantized: adder(addPathAngleQuantized),
}

// addConditions appends the constraints of every condition of the tree.
func addConditions(a assembler) error {
	for _, c := range a.Tree().Conditions {
		add, ok := conditionAdders[c.Kind()]
		if !ok {
			return fmt.Errorf("optimizer: no constraints for condition kind %s", c.Kind())
		}
		if err := add(a, c); err != nil {
			return fmt.Errorf("optimizer: %s: %w", c.Kind(), err)
		}
	}
	return nil
}

func node(a assembler, id int) (*tree.Node, error) {
	n, ok := a.Tree().Node(id)
	if !ok {
		return nil, fmt.Errorf("unknown node %d", id)
	}
	return n, nil
}

func edge(a assembler, id int) (*tree.Edge, error) {
	e, ok := a.Tree().Edge(id)
	if !ok {
		return nil, fmt.Errorf("unknown edge %d", id)
	}
	return e, nil
}

func movingNode(a assembler, id int) (int, bool, error) {
	n, err := node(a, id)
	if err != nil {
		return 0, false, err
	}
	ix, ok := a.NodeOffset(n)
	return ix, ok, nil
}

func addNodeFixed(a assembler, c *tree.NodeFixed) error {
	ix, ok, err := movingNode(a, c.Node)
	if err != nil || !ok {
		return err
	}
	if c.XFixed {
		if err := a.addEquality(fn.NewOneVarFn(ix, 1, -c.X)); err != nil {
			return err
		}
	}
	if c.YFixed {
		return a.addEquality(fn.NewOneVarFn(ix+1, 1, -c.Y))
	}
	return nil
}

func addNodeOnCorner(a assembler, c *tree.NodeOnCorner) error {
	ix, ok, err := movingNode(a, c.Node)
	if err != nil || !ok {
		return err
	}
	t := a.Tree()
	if err := a.addEquality(fn.NewCornerFn(ix, t.PaperWidth)); err != nil {
		return err
	}
	return a.addEquality(fn.NewCornerFn(ix+1, t.PaperHeight))
}

func addNodeOnEdge(a assembler, c *tree.NodeOnEdge) error {
	ix, ok, err := movingNode(a, c.Node)
	if err != nil || !ok {
		return err
	}
	t := a.Tree()
	return a.addEquality(fn.NewStickToEdgeFn(ix, t.PaperWidth, t.PaperHeight))
}

func addNodeSymmetric(a assembler, c *tree.NodeSymmetric) error {
	t := a.Tree()
	if !t.HasSymmetry {
		slog.Warn("Ignoring symmetry condition on a tree without symmetry line", "node", c.Node)
		return nil
	}
	ix, ok, err := movingNode(a, c.Node)
	if err != nil || !ok {
		return err
	}
	return a.addEquality(fn.NewStickToLineFn(ix, t.SymLoc.X, t.SymLoc.Y, t.SymAngle))
}

func addNodesPaired(a assembler, c *tree.NodesPaired) error {
	t := a.Tree()
	if !t.HasSymmetry {
		slog.Warn("Ignoring pair condition on a tree without symmetry line", "node1", c.Node1, "node2", c.Node2)
		return nil
	}
	n1, err := node(a, c.Node1)
	if err != nil {
		return err
	}
	n2, err := node(a, c.Node2)
	if err != nil {
		return err
	}
	ix, ok1 := a.NodeOffset(n1)
	iy, ok2 := a.NodeOffset(n2)
	x0, y0, angle := t.SymLoc.X, t.SymLoc.Y, t.SymAngle

	var fa, fb fn.DifferentiableFunction
	switch {
	case ok1 && ok2:
		fa = fn.NewPairFn1A(ix, iy, x0, y0, angle)
		fb = fn.NewPairFn1B(ix, iy, angle)
	case ok1:
		fa = fn.NewPairFn2A(ix, n2.Loc.X, n2.Loc.Y, x0, y0, angle)
		fb = fn.NewPairFn2B(ix, n2.Loc.X, n2.Loc.Y, angle)
	case ok2:
		fa = fn.NewPairFn2A(iy, n1.Loc.X, n1.Loc.Y, x0, y0, angle)
		fb = fn.NewPairFn2B(iy, n1.Loc.X, n1.Loc.Y, angle)
	default:
		return nil
	}
	if err := a.addEquality(fa); err != nil {
		return err
	}
	return a.addEquality(fb)
}

func addNodesCollinear(a assembler, c *tree.NodesCollinear) error {
	var moving []int
	var fixed []*tree.Node
	for _, id := range []int{c.Node1, c.Node2, c.Node3} {
		n, err := node(a, id)
		if err != nil {
			return err
		}
		if ix, ok := a.NodeOffset(n); ok {
			moving = append(moving, ix)
		} else {
			fixed = append(fixed, n)
		}
	}

	// The cross product only changes sign when the points are reordered, so
	// moving nodes can be listed first.
	switch len(moving) {
	case 3:
		return a.addEquality(fn.NewCollinearFn1(moving[0], moving[1], moving[2]))
	case 2:
		return a.addEquality(fn.NewCollinearFn2(moving[0], moving[1], fixed[0].Loc.X, fixed[0].Loc.Y))
	case 1:
		return a.addEquality(fn.NewCollinearFn3(moving[0],
			fixed[0].Loc.X, fixed[0].Loc.Y, fixed[1].Loc.X, fixed[1].Loc.Y))
	}
	return nil
}

func addNodeSide(a assembler, c *tree.NodeSide) error {
	ix, ok, err := movingNode(a, c.Node)
	if err != nil || !ok {
		return err
	}
	return a.addInequality(fn.NewBoundaryFn(ix, c.X, c.Y, c.Angle))
}

func addNodeNearPoint(a assembler, c *tree.NodeNearPoint) error {
	ix, ok, err := movingNode(a, c.Node)
	if err != nil || !ok {
		return err
	}
	return a.addInequality(fn.NewRadiusFn(ix, c.X, c.Y, 1, c.Radius))
}

func addEdgeLengthFixed(a assembler, c *tree.EdgeLengthFixed) error {
	e, err := edge(a, c.Edge)
	if err != nil {
		return err
	}
	i, ok := a.EdgeOffset(e)
	if !ok {
		return nil
	}
	return a.addEquality(fn.NewOneVarFn(i, 1, -e.Strain))
}

func addEdgesSameStrain(a assembler, c *tree.EdgesSameStrain) error {
	e1, err := edge(a, c.Edge1)
	if err != nil {
		return err
	}
	e2, err := edge(a, c.Edge2)
	if err != nil {
		return err
	}
	i, ok1 := a.EdgeOffset(e1)
	j, ok2 := a.EdgeOffset(e2)
	switch {
	case ok1 && ok2:
		if i == j {
			return nil
		}
		return a.addEquality(fn.NewEqualVarFn(i, j))
	case ok1:
		return a.addEquality(fn.NewOneVarFn(i, 1, -e2.Strain))
	case ok2:
		return a.addEquality(fn.NewOneVarFn(j, 1, -e1.Strain))
	}
	return nil
}

// activePath adds the length equality of the path between n1 and n2 and
// returns the path.
func activePath(a assembler, n1, n2 int) (*tree.Path, error) {
	a1, err := node(a, n1)
	if err != nil {
		return nil, err
	}
	a2, err := node(a, n2)
	if err != nil {
		return nil, err
	}
	p, err := a.Tree().FindPath(a1, a2)
	if err != nil {
		return nil, err
	}
	if f, ok := a.pathLengthFn(p); ok {
		if err := a.addEquality(f); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func addPathActive(a assembler, c *tree.PathActive) error {
	_, err := activePath(a, c.Node1, c.Node2)
	return err
}

// pathDirection builds the angle constraint of a path with one of the two
// factories, depending on which endpoints move.
func pathDirection(a assembler, p *tree.Path,
	both func(ix, iy int) fn.DifferentiableFunction,
	one func(ix int, x, y float64) fn.DifferentiableFunction,
) fn.DifferentiableFunction {
	n1, n2 := p.Endpoints()
	ix, ok1 := a.NodeOffset(n1)
	iy, ok2 := a.NodeOffset(n2)
	switch {
	case ok1 && ok2:
		return both(ix, iy)
	case ok1:
		return one(ix, n2.Loc.X, n2.Loc.Y)
	case ok2:
		return one(iy, n1.Loc.X, n1.Loc.Y)
	}
	return nil
}

func addPathAngleFixed(a assembler, c *tree.PathAngleFixed) error {
	p, err := activePath(a, c.Node1, c.Node2)
	if err != nil {
		return err
	}
	f := pathDirection(a, p,
		func(ix, iy int) fn.DifferentiableFunction { return fn.NewPathAngleFn1(ix, iy, c.Angle) },
		func(ix int, x, y float64) fn.DifferentiableFunction { return fn.NewPathAngleFn2(ix, x, y, c.Angle) },
	)
	if f == nil {
		return nil
	}
	return a.addEquality(f)
}

func addPathAngleQuantized(a assembler, c *tree.PathAngleQuantized) error {
	p, err := activePath(a, c.Node1, c.Node2)
	if err != nil {
		return err
	}
	f := pathDirection(a, p,
		func(ix, iy int) fn.DifferentiableFunction {
			return fn.NewQuantizeAngleFn1(ix, iy, c.Quant, c.Offset)
		},
		func(ix int, x, y float64) fn.DifferentiableFunction {
			return fn.NewQuantizeAngleFn2(ix, x, y, c.Quant, c.Offset)
		},
	)
	if f == nil {
		return nil
	}
	return a.addEquality(f)
}
