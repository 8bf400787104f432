package tree

import "fmt"

// ConditionKind identifies one of the closed set of condition types.
type ConditionKind int

const (
	KindNodeFixed ConditionKind = iota
	KindNodeOnCorner
	KindNodeOnEdge
	KindNodeSymmetric
	KindNodesPaired
	KindNodesCollinear
	KindNodeSide
	KindNodeNearPoint
	KindEdgeLengthFixed
	KindEdgesSameStrain
	KindPathActive
	KindPathAngleFixed
	KindPathAngleQuantized
)

var kindNames = [...]string{
	KindNodeFixed:          "node_fixed",
	KindNodeOnCorner:       "node_on_corner",
	KindNodeOnEdge:         "node_on_edge",
	KindNodeSymmetric:      "node_symmetric",
	KindNodesPaired:        "nodes_paired",
	KindNodesCollinear:     "nodes_collinear",
	KindNodeSide:           "node_side",
	KindNodeNearPoint:      "node_near_point",
	KindEdgeLengthFixed:    "edge_length_fixed",
	KindEdgesSameStrain:    "edges_same_strain",
	KindPathActive:         "path_active",
	KindPathAngleFixed:     "path_angle_fixed",
	KindPathAngleQuantized: "path_angle_quantized",
}

// ConditionKinds lists every kind in declaration order.
func ConditionKinds() []ConditionKind {
	kinds := make([]ConditionKind, len(kindNames))
	for i := range kinds {
		kinds[i] = ConditionKind(i)
	}
	return kinds
}

func (k ConditionKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("ConditionKind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseConditionKind maps a kind name back to its ConditionKind.
func ParseConditionKind(s string) (ConditionKind, error) {
	for i, n := range kindNames {
		if n == s {
			return ConditionKind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown condition kind %q", s)
}

// Condition is a user rule on nodes, edges or paths. Conditions only carry
// data; the optimizers decide which constraints each kind contributes.
type Condition interface {
	Kind() ConditionKind
	NodeRefs() []int
	EdgeRefs() []int
	validate() error
}

// PathCondition is a condition on the path between two nodes. Any such
// condition makes the path active, so the optimizers do not add their default
// path length constraint for it.
type PathCondition interface {
	Condition
	PathNodes() (int, int)
}

// newCondition returns an empty condition of the given kind for decoding.
func newCondition(k ConditionKind) (Condition, error) {
	switch k {
	case KindNodeFixed:
		return &NodeFixed{}, nil
	case KindNodeOnCorner:
		return &NodeOnCorner{}, nil
	case KindNodeOnEdge:
		return &NodeOnEdge{}, nil
	case KindNodeSymmetric:
		return &NodeSymmetric{}, nil
	case KindNodesPaired:
		return &NodesPaired{}, nil
	case KindNodesCollinear:
		return &NodesCollinear{}, nil
	case KindNodeSide:
		return &NodeSide{}, nil
	case KindNodeNearPoint:
		return &NodeNearPoint{}, nil
	case KindEdgeLengthFixed:
		return &EdgeLengthFixed{}, nil
	case KindEdgesSameStrain:
		return &EdgesSameStrain{}, nil
	case KindPathActive:
		return &PathActive{}, nil
	case KindPathAngleFixed:
		return &PathAngleFixed{}, nil
	case KindPathAngleQuantized:
		return &PathAngleQuantized{}, nil
	}
	return nil, fmt.Errorf("unknown condition kind %d", int(k))
}

func distinct(ids ...int) bool {
	for i := range ids {
		for j := i + 1; j < len(ids); j++ {
			if ids[i] == ids[j] {
				return false
			}
		}
	}
	return true
}

// NodeFixed pins one or both coordinates of a node.
type NodeFixed struct {
	Node   int     `json:"node"`
	XFixed bool    `json:"xFixed"`
	YFixed bool    `json:"yFixed"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

func (c *NodeFixed) Kind() ConditionKind { return KindNodeFixed }
func (c *NodeFixed) NodeRefs() []int     { return []int{c.Node} }
func (c *NodeFixed) EdgeRefs() []int     { return nil }

func (c *NodeFixed) validate() error {
	if !c.XFixed && !c.YFixed {
		return &ValidationError{Field: "condition", Message: fmt.Sprintf("node_fixed on node %d fixes neither coordinate", c.Node)}
	}
	return nil
}

// NodeOnCorner forces a node onto one of the four paper corners.
type NodeOnCorner struct {
	Node int `json:"node"`
}

func (c *NodeOnCorner) Kind() ConditionKind { return KindNodeOnCorner }
func (c *NodeOnCorner) NodeRefs() []int     { return []int{c.Node} }
func (c *NodeOnCorner) EdgeRefs() []int     { return nil }
func (c *NodeOnCorner) validate() error     { return nil }

// NodeOnEdge forces a node onto the paper boundary.
type NodeOnEdge struct {
	Node int `json:"node"`
}

func (c *NodeOnEdge) Kind() ConditionKind { return KindNodeOnEdge }
func (c *NodeOnEdge) NodeRefs() []int     { return []int{c.Node} }
func (c *NodeOnEdge) EdgeRefs() []int     { return nil }
func (c *NodeOnEdge) validate() error     { return nil }

// NodeSymmetric puts a node on the symmetry line.
type NodeSymmetric struct {
	Node int `json:"node"`
}

func (c *NodeSymmetric) Kind() ConditionKind { return KindNodeSymmetric }
func (c *NodeSymmetric) NodeRefs() []int     { return []int{c.Node} }
func (c *NodeSymmetric) EdgeRefs() []int     { return nil }
func (c *NodeSymmetric) validate() error     { return nil }

// NodesPaired makes two nodes mirror images about the symmetry line.
type NodesPaired struct {
	Node1 int `json:"node1"`
	Node2 int `json:"node2"`
}

func (c *NodesPaired) Kind() ConditionKind { return KindNodesPaired }
func (c *NodesPaired) NodeRefs() []int     { return []int{c.Node1, c.Node2} }
func (c *NodesPaired) EdgeRefs() []int     { return nil }

func (c *NodesPaired) validate() error {
	if !distinct(c.Node1, c.Node2) {
		return &ValidationError{Field: "condition", Message: "nodes_paired needs two different nodes"}
	}
	return nil
}

// NodesCollinear keeps three nodes on a common line.
type NodesCollinear struct {
	Node1 int `json:"node1"`
	Node2 int `json:"node2"`
	Node3 int `json:"node3"`
}

func (c *NodesCollinear) Kind() ConditionKind { return KindNodesCollinear }
func (c *NodesCollinear) NodeRefs() []int     { return []int{c.Node1, c.Node2, c.Node3} }
func (c *NodesCollinear) EdgeRefs() []int     { return nil }

func (c *NodesCollinear) validate() error {
	if !distinct(c.Node1, c.Node2, c.Node3) {
		return &ValidationError{Field: "condition", Message: "nodes_collinear needs three different nodes"}
	}
	return nil
}

// NodeSide keeps a node behind the line through (X, Y) whose outward normal
// points at Angle degrees.
type NodeSide struct {
	Node  int     `json:"node"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Angle float64 `json:"angle"`
}

func (c *NodeSide) Kind() ConditionKind { return KindNodeSide }
func (c *NodeSide) NodeRefs() []int     { return []int{c.Node} }
func (c *NodeSide) EdgeRefs() []int     { return nil }
func (c *NodeSide) validate() error     { return nil }

// NodeNearPoint keeps a node within Radius of (X, Y).
type NodeNearPoint struct {
	Node   int     `json:"node"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Radius float64 `json:"radius"`
}

func (c *NodeNearPoint) Kind() ConditionKind { return KindNodeNearPoint }
func (c *NodeNearPoint) NodeRefs() []int     { return []int{c.Node} }
func (c *NodeNearPoint) EdgeRefs() []int     { return nil }

func (c *NodeNearPoint) validate() error {
	if !(c.Radius > 0) {
		return &ValidationError{Field: "condition", Message: fmt.Sprintf("node_near_point radius must be positive, got %g", c.Radius)}
	}
	return nil
}

// EdgeLengthFixed keeps an edge at its current strain.
type EdgeLengthFixed struct {
	Edge int `json:"edge"`
}

func (c *EdgeLengthFixed) Kind() ConditionKind { return KindEdgeLengthFixed }
func (c *EdgeLengthFixed) NodeRefs() []int     { return nil }
func (c *EdgeLengthFixed) EdgeRefs() []int     { return []int{c.Edge} }
func (c *EdgeLengthFixed) validate() error     { return nil }

// EdgesSameStrain forces two edges to carry equal strain.
type EdgesSameStrain struct {
	Edge1 int `json:"edge1"`
	Edge2 int `json:"edge2"`
}

func (c *EdgesSameStrain) Kind() ConditionKind { return KindEdgesSameStrain }
func (c *EdgesSameStrain) NodeRefs() []int     { return nil }
func (c *EdgesSameStrain) EdgeRefs() []int     { return []int{c.Edge1, c.Edge2} }

func (c *EdgesSameStrain) validate() error {
	if !distinct(c.Edge1, c.Edge2) {
		return &ValidationError{Field: "condition", Message: "edges_same_strain needs two different edges"}
	}
	return nil
}

// PathActive makes the path between two nodes exactly as long on the paper
// as in the tree.
type PathActive struct {
	Node1 int `json:"node1"`
	Node2 int `json:"node2"`
}

func (c *PathActive) Kind() ConditionKind   { return KindPathActive }
func (c *PathActive) NodeRefs() []int       { return []int{c.Node1, c.Node2} }
func (c *PathActive) EdgeRefs() []int       { return nil }
func (c *PathActive) PathNodes() (int, int) { return c.Node1, c.Node2 }
func (c *PathActive) validate() error       { return validatePath(c.Kind(), c.Node1, c.Node2) }

// PathAngleFixed makes a path active and fixes its direction.
type PathAngleFixed struct {
	Node1 int     `json:"node1"`
	Node2 int     `json:"node2"`
	Angle float64 `json:"angle"`
}

func (c *PathAngleFixed) Kind() ConditionKind   { return KindPathAngleFixed }
func (c *PathAngleFixed) NodeRefs() []int       { return []int{c.Node1, c.Node2} }
func (c *PathAngleFixed) EdgeRefs() []int       { return nil }
func (c *PathAngleFixed) PathNodes() (int, int) { return c.Node1, c.Node2 }
func (c *PathAngleFixed) validate() error       { return validatePath(c.Kind(), c.Node1, c.Node2) }

// PathAngleQuantized makes a path active and restricts its direction to
// Offset + k*180/Quant degrees.
type PathAngleQuantized struct {
	Node1  int     `json:"node1"`
	Node2  int     `json:"node2"`
	Quant  int     `json:"quant"`
	Offset float64 `json:"offset"`
}

func (c *PathAngleQuantized) Kind() ConditionKind   { return KindPathAngleQuantized }
func (c *PathAngleQuantized) NodeRefs() []int       { return []int{c.Node1, c.Node2} }
func (c *PathAngleQuantized) EdgeRefs() []int       { return nil }
func (c *PathAngleQuantized) PathNodes() (int, int) { return c.Node1, c.Node2 }

func (c *PathAngleQuantized) validate() error {
	if c.Quant < 1 {
		return &ValidationError{Field: "condition", Message: fmt.Sprintf("path_angle_quantized needs a quantization of at least 1, got %d", c.Quant)}
	}
	return validatePath(c.Kind(), c.Node1, c.Node2)
}

func validatePath(k ConditionKind, n1, n2 int) error {
	if n1 == n2 {
		return &ValidationError{Field: "condition", Message: fmt.Sprintf("%s needs two different nodes", k)}
	}
	return nil
}
