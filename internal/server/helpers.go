package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/cwbudde/treeopt/internal/tree"
)

// loadDesign reads a tree snapshot from disk and checks that it builds.
func loadDesign(path string) (tree.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return tree.Document{}, fmt.Errorf("failed to open design: %w", err)
	}
	defer f.Close()

	t, err := tree.Load(f)
	if err != nil {
		return tree.Document{}, fmt.Errorf("failed to load design: %w", err)
	}
	return tree.ToDocument(t), nil
}

// writeJSON encodes v as the response body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
