package scene

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

type graphFile struct {
	Scenes []sceneEntry `yaml:"scenes"`
}

type sceneEntry struct {
	ID        string `yaml:"id"`
	EntryNode string `yaml:"entry_node"`
	Edges     []Edge `yaml:"edges"`
}

// LoadGraph parses a scene graph from YAML into a StaticGraph.
func LoadGraph(r io.Reader) (*StaticGraph, error) {
	var file graphFile
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode scene graph: %w", err)
	}

	entryNodes := make(map[string]string, len(file.Scenes))
	var edges []Edge
	for _, entry := range file.Scenes {
		if entry.ID == "" {
			return nil, fmt.Errorf("scene id is required")
		}
		if entry.EntryNode == "" {
			return nil, fmt.Errorf("scene %s: entry node is required", entry.ID)
		}
		if _, dup := entryNodes[entry.ID]; dup {
			return nil, fmt.Errorf("scene %s: duplicate scene id", entry.ID)
		}
		entryNodes[entry.ID] = entry.EntryNode
		for _, edge := range entry.Edges {
			if edge.ID == "" || edge.From == "" || edge.To == "" {
				return nil, fmt.Errorf("scene %s: edge requires id, from, and to", entry.ID)
			}
			edges = append(edges, edge)
		}
	}
	return NewStaticGraph(entryNodes, edges), nil
}
