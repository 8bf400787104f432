package tree

import "slices"

// Path is the unique route through the tree between its first and last node.
type Path struct {
	Nodes []*Node
	Edges []*Edge
}

// Endpoints returns the first and last node of the path.
func (p *Path) Endpoints() (*Node, *Node) {
	if len(p.Nodes) == 0 {
		return nil, nil
	}
	return p.Nodes[0], p.Nodes[len(p.Nodes)-1]
}

// IsLeafPath reports whether both endpoints are distinct leaf nodes.
func (p *Path) IsLeafPath() bool {
	a, b := p.Endpoints()
	return a != nil && a != b && a.IsLeaf() && b.IsLeaf()
}

// TreeLength is the sum of the strained lengths of the path's edges, in tree
// units.
func (p *Path) TreeLength() float64 {
	var l float64
	for _, e := range p.Edges {
		l += e.StrainedLength()
	}
	return l
}

// ContainsEdge reports whether e lies on the path.
func (p *Path) ContainsEdge(e *Edge) bool {
	return slices.Contains(p.Edges, e)
}

// orientedFrom returns p, or a reversed copy when p does not start at n.
func (p *Path) orientedFrom(n *Node) *Path {
	if len(p.Nodes) == 0 || p.Nodes[0] == n {
		return p
	}
	r := &Path{
		Nodes: slices.Clone(p.Nodes),
		Edges: slices.Clone(p.Edges),
	}
	slices.Reverse(r.Nodes)
	slices.Reverse(r.Edges)
	return r
}
