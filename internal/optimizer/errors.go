package optimizer

import "errors"

var (
	// ErrNoMovingNodesOrEdges is returned by Initialize when there is nothing
	// to vary.
	ErrNoMovingNodesOrEdges = errors.New("optimizer: no moving nodes or stretchy edges")

	// ErrNoStretchyEdges is returned by the edge optimizer when no edge is
	// selected.
	ErrNoStretchyEdges = errors.New("optimizer: no stretchy edges selected")

	// ErrNoLeafPaths is returned by the scale optimizer for a tree with fewer
	// than two leaves.
	ErrNoLeafPaths = errors.New("optimizer: tree has no leaf paths")

	// ErrNotInitialized is returned by Optimize before a successful Initialize.
	ErrNotInitialized = errors.New("optimizer: not initialized")
)
