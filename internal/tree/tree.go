// Package tree models an origami base as a tree of nodes and edges laid out
// on a rectangular sheet of paper, together with the leaf paths and the
// conditions the optimizers turn into constraints.
package tree

import (
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
	"gonum.org/v1/gonum/spatial/r2"
)

// Node is a point of the design. Leaf nodes (degree 1) are the flaps of the
// base and the only nodes an optimizer moves.
type Node struct {
	ID     int
	Label  string
	Loc    r2.Vec
	Pinned bool

	degree int
}

// Degree returns the number of edges incident to the node.
func (n *Node) Degree() int { return n.degree }

// IsLeaf reports whether the node terminates a single edge.
func (n *Node) IsLeaf() bool { return n.degree == 1 }

// Edge joins two nodes. Length is the nominal length in tree units; the
// folded length is Length*(1+Strain).
type Edge struct {
	ID        int
	Label     string
	Node1     *Node
	Node2     *Node
	Length    float64
	Strain    float64
	Stiffness float64
	Pinned    bool
}

// StrainedLength is the length of the edge including its strain.
func (e *Edge) StrainedLength() float64 {
	return e.Length * (1 + e.Strain)
}

// Other returns the endpoint of e that is not n.
func (e *Edge) Other(n *Node) *Node {
	if e.Node1 == n {
		return e.Node2
	}
	return e.Node1
}

// DefaultStiffness is assigned to new edges.
const DefaultStiffness = 1.0

// Tree is the design being optimized. Scale converts tree units into paper
// units.
type Tree struct {
	PaperWidth  float64
	PaperHeight float64
	Scale       float64

	HasSymmetry bool
	SymLoc      r2.Vec
	SymAngle    float64

	Nodes      []*Node
	Edges      []*Edge
	Paths      []*Path
	Conditions []Condition

	g       *simple.UndirectedGraph
	byPair  map[[2]int]*Edge
	dirty   bool
	pathIdx map[[2]int]*Path
}

// New creates an empty tree on a w by h sheet.
func New(w, h, scale float64) *Tree {
	return &Tree{
		PaperWidth:  w,
		PaperHeight: h,
		Scale:       scale,
		g:           simple.NewUndirectedGraph(),
		byPair:      make(map[[2]int]*Edge),
		pathIdx:     make(map[[2]int]*Path),
	}
}

func pairKey(a, b int) [2]int {
	if a > b {
		a, b = b, a
	}
	return [2]int{a, b}
}

// SetSymmetry installs the mirror line through loc at angle (degrees).
func (t *Tree) SetSymmetry(loc r2.Vec, angle float64) {
	t.HasSymmetry = true
	t.SymLoc = loc
	t.SymAngle = angle
}

// AddNode appends a node at loc and returns it.
func (t *Tree) AddNode(label string, loc r2.Vec) *Node {
	n := &Node{ID: len(t.Nodes), Label: label, Loc: loc}
	t.Nodes = append(t.Nodes, n)
	t.g.AddNode(simple.Node(n.ID))
	t.dirty = true
	return n
}

// Node returns the node with the given ID.
func (t *Tree) Node(id int) (*Node, bool) {
	if id < 0 || id >= len(t.Nodes) {
		return nil, false
	}
	return t.Nodes[id], true
}

// Edge returns the edge with the given ID.
func (t *Tree) Edge(id int) (*Edge, bool) {
	if id < 0 || id >= len(t.Edges) {
		return nil, false
	}
	return t.Edges[id], true
}

// AddEdge joins two existing nodes. It rejects self loops, duplicate edges
// and edges that would close a cycle.
func (t *Tree) AddEdge(label string, a, b *Node, length float64) (*Edge, error) {
	return t.addEdge(label, a.ID, b.ID, length)
}

// Connect joins the nodes with the given IDs.
func (t *Tree) Connect(label string, id1, id2 int, length float64) (*Edge, error) {
	return t.addEdge(label, id1, id2, length)
}

func (t *Tree) addEdge(label string, id1, id2 int, length float64) (*Edge, error) {
	a, ok := t.Node(id1)
	if !ok {
		return nil, &ValidationError{Field: "edge", Message: fmt.Sprintf("unknown node %d", id1)}
	}
	b, ok := t.Node(id2)
	if !ok {
		return nil, &ValidationError{Field: "edge", Message: fmt.Sprintf("unknown node %d", id2)}
	}
	if a == b {
		return nil, &ValidationError{Field: "edge", Message: fmt.Sprintf("self loop on node %d", id1)}
	}
	if !(length > 0) || math.IsInf(length, 0) {
		return nil, &ValidationError{Field: "edge", Message: fmt.Sprintf("length must be positive and finite, got %g", length)}
	}
	if topo.PathExistsIn(t.g, simple.Node(a.ID), simple.Node(b.ID)) {
		return nil, &ValidationError{Field: "edge", Message: fmt.Sprintf("edge %d-%d would close a cycle", id1, id2)}
	}

	e := &Edge{
		ID:        len(t.Edges),
		Label:     label,
		Node1:     a,
		Node2:     b,
		Length:    length,
		Stiffness: DefaultStiffness,
	}
	t.Edges = append(t.Edges, e)
	t.g.SetEdge(simple.Edge{F: simple.Node(a.ID), T: simple.Node(b.ID)})
	t.byPair[pairKey(a.ID, b.ID)] = e
	a.degree++
	b.degree++
	t.dirty = true
	return e, nil
}

// EdgeBetween returns the edge joining two adjacent nodes.
func (t *Tree) EdgeBetween(a, b *Node) (*Edge, bool) {
	e, ok := t.byPair[pairKey(a.ID, b.ID)]
	return e, ok
}

// LeafNodes returns the degree-1 nodes in ID order.
func (t *Tree) LeafNodes() []*Node {
	var leaves []*Node
	for _, n := range t.Nodes {
		if n.IsLeaf() {
			leaves = append(leaves, n)
		}
	}
	return leaves
}

// MovableNodes returns the unpinned leaf nodes, the default set of nodes an
// optimizer moves.
func (t *Tree) MovableNodes() []*Node {
	var nodes []*Node
	for _, n := range t.LeafNodes() {
		if !n.Pinned {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

// StretchyEdges returns the unpinned edges, the default set of edges whose
// strain an optimizer varies.
func (t *Tree) StretchyEdges() []*Edge {
	var edges []*Edge
	for _, e := range t.Edges {
		if !e.Pinned {
			edges = append(edges, e)
		}
	}
	return edges
}

// Select resolves node and edge IDs to the variables of a solve. A nil list
// falls back to MovableNodes or StretchyEdges; an empty list selects nothing.
func (t *Tree) Select(nodeIDs, edgeIDs []int) ([]*Node, []*Edge, error) {
	nodes := t.MovableNodes()
	if nodeIDs != nil {
		nodes = make([]*Node, 0, len(nodeIDs))
		for _, id := range nodeIDs {
			n, ok := t.Node(id)
			if !ok {
				return nil, nil, fmt.Errorf("unknown node %d", id)
			}
			nodes = append(nodes, n)
		}
	}
	edges := t.StretchyEdges()
	if edgeIDs != nil {
		edges = make([]*Edge, 0, len(edgeIDs))
		for _, id := range edgeIDs {
			e, ok := t.Edge(id)
			if !ok {
				return nil, nil, fmt.Errorf("unknown edge %d", id)
			}
			edges = append(edges, e)
		}
	}
	return nodes, edges, nil
}

// BuildPaths recomputes the leaf paths between every pair of leaf nodes. The
// tree must be connected.
func (t *Tree) BuildPaths() error {
	if len(t.Nodes) > 0 {
		if cc := topo.ConnectedComponents(t.g); len(cc) != 1 {
			return &ValidationError{Field: "tree", Message: fmt.Sprintf("tree has %d disconnected parts", len(cc))}
		}
	}

	t.Paths = nil
	clear(t.pathIdx)
	leaves := t.LeafNodes()
	for i, a := range leaves {
		shortest := path.DijkstraFrom(simple.Node(a.ID), t.g)
		for _, b := range leaves[i+1:] {
			route, _ := shortest.To(int64(b.ID))
			p, err := t.pathFromRoute(route)
			if err != nil {
				return err
			}
			t.Paths = append(t.Paths, p)
			t.pathIdx[pairKey(a.ID, b.ID)] = p
		}
	}
	t.dirty = false
	slog.Debug("Built leaf paths", "leaves", len(leaves), "paths", len(t.Paths))
	return nil
}

// LeafPaths returns the leaf paths, rebuilding them if the tree changed.
func (t *Tree) LeafPaths() ([]*Path, error) {
	if t.dirty {
		if err := t.BuildPaths(); err != nil {
			return nil, err
		}
	}
	return t.Paths, nil
}

// FindPath returns the unique path between two nodes.
func (t *Tree) FindPath(a, b *Node) (*Path, error) {
	if !t.dirty {
		if p, ok := t.pathIdx[pairKey(a.ID, b.ID)]; ok {
			return p.orientedFrom(a), nil
		}
	}
	if a == b {
		return &Path{Nodes: []*Node{a}}, nil
	}
	route, _ := path.DijkstraFromTo(simple.Node(a.ID), simple.Node(b.ID), t.g)
	if len(route) == 0 {
		return nil, &ValidationError{Field: "path", Message: fmt.Sprintf("no path between nodes %d and %d", a.ID, b.ID)}
	}
	return t.pathFromRoute(route)
}

func (t *Tree) pathFromRoute(route []graph.Node) (*Path, error) {
	p := &Path{Nodes: make([]*Node, len(route))}
	for i, gn := range route {
		p.Nodes[i] = t.Nodes[gn.ID()]
	}
	for i := 1; i < len(p.Nodes); i++ {
		e, ok := t.EdgeBetween(p.Nodes[i-1], p.Nodes[i])
		if !ok {
			return nil, fmt.Errorf("tree: missing edge between nodes %d and %d", p.Nodes[i-1].ID, p.Nodes[i].ID)
		}
		p.Edges = append(p.Edges, e)
	}
	return p, nil
}

// AddCondition attaches a condition after checking that everything it
// references exists.
func (t *Tree) AddCondition(c Condition) error {
	if err := t.checkCondition(c); err != nil {
		return err
	}
	t.Conditions = append(t.Conditions, c)
	return nil
}

func (t *Tree) checkCondition(c Condition) error {
	for _, id := range c.NodeRefs() {
		if _, ok := t.Node(id); !ok {
			return &ValidationError{Field: "condition", Message: fmt.Sprintf("%s references unknown node %d", c.Kind(), id)}
		}
	}
	for _, id := range c.EdgeRefs() {
		if _, ok := t.Edge(id); !ok {
			return &ValidationError{Field: "condition", Message: fmt.Sprintf("%s references unknown edge %d", c.Kind(), id)}
		}
	}
	return c.validate()
}

// IsPathActive reports whether a path condition already constrains the
// length of p.
func (t *Tree) IsPathActive(p *Path) bool {
	a, b := p.Endpoints()
	if a == nil {
		return false
	}
	key := pairKey(a.ID, b.ID)
	for _, c := range t.Conditions {
		if pc, ok := c.(PathCondition); ok {
			n1, n2 := pc.PathNodes()
			if pairKey(n1, n2) == key {
				return true
			}
		}
	}
	return false
}

// Validate checks the whole tree: paper, scale, edges and conditions.
func (t *Tree) Validate() error {
	if !(t.PaperWidth > 0) || !(t.PaperHeight > 0) {
		return &ValidationError{Field: "paper", Message: fmt.Sprintf("paper must have positive size, got %gx%g", t.PaperWidth, t.PaperHeight)}
	}
	if !(t.Scale > 0) {
		return &ValidationError{Field: "scale", Message: fmt.Sprintf("scale must be positive, got %g", t.Scale)}
	}
	for _, e := range t.Edges {
		if e.Strain <= -1 {
			return &ValidationError{Field: "edge", Message: fmt.Sprintf("edge %d has strain %g, folded length would vanish", e.ID, e.Strain)}
		}
	}
	for _, c := range t.Conditions {
		if err := t.checkCondition(c); err != nil {
			return err
		}
	}
	return nil
}
