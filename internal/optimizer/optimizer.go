// Package optimizer turns a tree into a constrained optimization problem,
// solves it through nlco and writes the solution back.
//
// Three optimizers share the same assembly: StrainOptimizer (minimal strain),
// ScaleOptimizer (largest scale) and EdgeOptimizer (largest common strain of
// a group of edges).
package optimizer

import (
	"fmt"
	"strings"

	"github.com/cwbudde/treeopt/internal/nlco"
	"github.com/cwbudde/treeopt/internal/tree"
)

// Optimizer is the part of every optimizer a host drives after Initialize.
type Optimizer interface {
	NumVars() int
	NumConstraints() int
	TreeToData()
	DataToTree()
	SetUpdater(u nlco.Updater) error
	// Optimize solves from the current tree state and writes the result
	// back into the tree.
	Optimize() (nlco.Result, error)
}

var (
	_ Optimizer = (*StrainOptimizer)(nil)
	_ Optimizer = (*ScaleOptimizer)(nil)
	_ Optimizer = (*EdgeOptimizer)(nil)
)

// Kind selects an optimizer.
type Kind int

const (
	Strain Kind = iota
	Scale
	Edge
)

var kindNames = [...]string{
	Strain: "strain",
	Scale:  "scale",
	Edge:   "edge",
}

// Kinds lists the optimizers in declaration order.
func Kinds() []Kind { return []Kind{Strain, Scale, Edge} }

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind accepts an optimizer name, ignoring case.
func ParseKind(s string) (Kind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range kindNames {
		if n == name {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown optimizer %q (want strain, scale or edge)", s)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if k < 0 || int(k) >= len(kindNames) {
		return nil, fmt.Errorf("invalid optimizer kind %d", int(k))
	}
	return []byte(kindNames[k]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// New builds and initializes an optimizer of the given kind over a fresh
// solver, using the tree's movable nodes and stretchy edges.
func New(kind Kind, t *tree.Tree, algorithm nlco.Algorithm, settings nlco.Settings) (Optimizer, error) {
	return NewFor(kind, t, t.MovableNodes(), t.StretchyEdges(), algorithm, settings)
}

// NewFor is New with an explicit choice of moving nodes and stretchy edges.
// The scale optimizer ignores edges.
func NewFor(kind Kind, t *tree.Tree, nodes []*tree.Node, edges []*tree.Edge, algorithm nlco.Algorithm, settings nlco.Settings) (Optimizer, error) {
	solver, err := nlco.New(algorithm, settings)
	if err != nil {
		return nil, err
	}
	switch kind {
	case Strain:
		o := NewStrainOptimizer(t, solver)
		if err := o.Initialize(nodes, edges); err != nil {
			return nil, err
		}
		return o, nil
	case Scale:
		o := NewScaleOptimizer(t, solver)
		if err := o.Initialize(nodes); err != nil {
			return nil, err
		}
		return o, nil
	case Edge:
		o := NewEdgeOptimizer(t, solver)
		if err := o.Initialize(nodes, edges); err != nil {
			return nil, err
		}
		return o, nil
	}
	return nil, fmt.Errorf("optimizer: invalid kind %d", int(kind))
}
