package tree

import (
	"encoding/json"
	"fmt"
	"io"

	"gonum.org/v1/gonum/spatial/r2"
)

// Document is the JSON snapshot of a tree. Node and edge IDs must equal their
// position in the lists.
type Document struct {
	PaperWidth  float64        `json:"paperWidth"`
	PaperHeight float64        `json:"paperHeight"`
	Scale       float64        `json:"scale"`
	Symmetry    *SymmetryDoc   `json:"symmetry,omitempty"`
	Nodes       []NodeDoc      `json:"nodes"`
	Edges       []EdgeDoc      `json:"edges"`
	Conditions  []ConditionDoc `json:"conditions,omitempty"`
}

type SymmetryDoc struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Angle float64 `json:"angle"`
}

type NodeDoc struct {
	ID     int     `json:"id"`
	Label  string  `json:"label,omitempty"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Pinned bool    `json:"pinned,omitempty"`
}

type EdgeDoc struct {
	ID        int     `json:"id"`
	Label     string  `json:"label,omitempty"`
	Node1     int     `json:"node1"`
	Node2     int     `json:"node2"`
	Length    float64 `json:"length"`
	Strain    float64 `json:"strain"`
	Stiffness float64 `json:"stiffness"`
	Pinned    bool    `json:"pinned,omitempty"`
}

// ConditionDoc wraps a condition so that it serializes as a flat object
// tagged with its "kind".
type ConditionDoc struct {
	Condition Condition
}

func (d ConditionDoc) MarshalJSON() ([]byte, error) {
	body, err := json.Marshal(d.Condition)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	kind, err := json.Marshal(d.Condition.Kind().String())
	if err != nil {
		return nil, err
	}
	fields["kind"] = kind
	return json.Marshal(fields)
}

func (d *ConditionDoc) UnmarshalJSON(data []byte) error {
	var head struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	kind, err := ParseConditionKind(head.Kind)
	if err != nil {
		return err
	}
	c, err := newCondition(kind)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("decode %s: %w", kind, err)
	}
	d.Condition = c
	return nil
}

// ToDocument captures the current state of t.
func ToDocument(t *Tree) Document {
	d := Document{
		PaperWidth:  t.PaperWidth,
		PaperHeight: t.PaperHeight,
		Scale:       t.Scale,
		Nodes:       make([]NodeDoc, len(t.Nodes)),
		Edges:       make([]EdgeDoc, len(t.Edges)),
	}
	if t.HasSymmetry {
		d.Symmetry = &SymmetryDoc{X: t.SymLoc.X, Y: t.SymLoc.Y, Angle: t.SymAngle}
	}
	for i, n := range t.Nodes {
		d.Nodes[i] = NodeDoc{ID: n.ID, Label: n.Label, X: n.Loc.X, Y: n.Loc.Y, Pinned: n.Pinned}
	}
	for i, e := range t.Edges {
		d.Edges[i] = EdgeDoc{
			ID:        e.ID,
			Label:     e.Label,
			Node1:     e.Node1.ID,
			Node2:     e.Node2.ID,
			Length:    e.Length,
			Strain:    e.Strain,
			Stiffness: e.Stiffness,
			Pinned:    e.Pinned,
		}
	}
	for _, c := range t.Conditions {
		d.Conditions = append(d.Conditions, ConditionDoc{Condition: c})
	}
	return d
}

// FromDocument rebuilds a tree from its snapshot and computes its leaf paths.
func FromDocument(d Document) (*Tree, error) {
	t := New(d.PaperWidth, d.PaperHeight, d.Scale)
	if d.Symmetry != nil {
		t.SetSymmetry(r2.Vec{X: d.Symmetry.X, Y: d.Symmetry.Y}, d.Symmetry.Angle)
	}
	for i, nd := range d.Nodes {
		if nd.ID != i {
			return nil, &ValidationError{Field: "document", Message: fmt.Sprintf("node %d has id %d", i, nd.ID)}
		}
		n := t.AddNode(nd.Label, r2.Vec{X: nd.X, Y: nd.Y})
		n.Pinned = nd.Pinned
	}
	for i, ed := range d.Edges {
		if ed.ID != i {
			return nil, &ValidationError{Field: "document", Message: fmt.Sprintf("edge %d has id %d", i, ed.ID)}
		}
		e, err := t.Connect(ed.Label, ed.Node1, ed.Node2, ed.Length)
		if err != nil {
			return nil, err
		}
		e.Strain = ed.Strain
		e.Stiffness = ed.Stiffness
		e.Pinned = ed.Pinned
	}
	for _, cd := range d.Conditions {
		if cd.Condition == nil {
			return nil, &ValidationError{Field: "document", Message: "empty condition"}
		}
		if err := t.AddCondition(cd.Condition); err != nil {
			return nil, err
		}
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if err := t.BuildPaths(); err != nil {
		return nil, err
	}
	return t, nil
}

// Load decodes a tree snapshot from r.
func Load(r io.Reader) (*Tree, error) {
	var d Document
	if err := json.NewDecoder(r).Decode(&d); err != nil {
		return nil, fmt.Errorf("decode tree: %w", err)
	}
	return FromDocument(d)
}

// Save writes the snapshot of t to w as indented JSON.
func Save(w io.Writer, t *Tree) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(ToDocument(t)); err != nil {
		return fmt.Errorf("encode tree: %w", err)
	}
	return nil
}

// Apply copies node locations, edge strains and the scale from d into t. The
// document must describe the same structure. It is used to revert a tree to a
// saved snapshot.
func (t *Tree) Apply(d Document) error {
	if len(d.Nodes) != len(t.Nodes) || len(d.Edges) != len(t.Edges) {
		return &ValidationError{Field: "document", Message: fmt.Sprintf(
			"snapshot has %d nodes and %d edges, tree has %d and %d",
			len(d.Nodes), len(d.Edges), len(t.Nodes), len(t.Edges))}
	}
	for i, nd := range d.Nodes {
		t.Nodes[i].Loc = r2.Vec{X: nd.X, Y: nd.Y}
	}
	for i, ed := range d.Edges {
		t.Edges[i].Strain = ed.Strain
	}
	t.Scale = d.Scale
	return nil
}
