package dag

import (
	"encoding/json"
	"fmt"

	"github.com/spineprep/spineprep/internal/atomicio"
)

// exportNode is one Graph step rendered for Export, independent of the
// in-memory Step's unexported index bookkeeping.
type exportNode struct {
	ID      string   `json:"id"`
	Inputs  []string `json:"inputs,omitempty"`
	Outputs []string `json:"outputs,omitempty"`
	Deps    []string `json:"deps,omitempty"`
}

type exportDoc struct {
	Steps []exportNode `json:"steps"`
}

// Export writes g's graph description to path as JSON, for
// --save-dag: one entry per step with its declared inputs, outputs,
// and the IDs of the steps it depends on.
func Export(g *Graph, path string) error {
	doc := exportDoc{Steps: make([]exportNode, 0, len(g.Steps))}
	for _, s := range g.Steps {
		node := exportNode{ID: s.ID.String(), Inputs: s.Inputs, Outputs: s.Outputs}
		for _, dep := range g.dependsOn(s) {
			node.Deps = append(node.Deps, g.Steps[dep].ID.String())
		}
		doc.Steps = append(doc.Steps, node)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("dag: marshal export: %w", err)
	}
	if err := atomicio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("dag: write export %s: %w", path, err)
	}
	return nil
}
