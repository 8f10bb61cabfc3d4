// Package scene exposes scene-graph lookups consumed by session traversal.
//
// The graph itself is already-validated configuration: this package loads it
// and answers entry-point and edge queries, nothing more. Authoring is out of
// scope.
package scene

import (
	"context"

	apperr "github.com/louisbranch/storyforge/internal/platform/errors"
)

// Edge is a directed transition between two scene nodes.
type Edge struct {
	ID   string `yaml:"id"`
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// Graph answers scene lookups for session traversal.
type Graph interface {
	// EntryNode returns the entry node id for a scene.
	EntryNode(ctx context.Context, sceneID string) (string, error)
	// Edge returns the edge with the given id.
	Edge(ctx context.Context, edgeID string) (Edge, error)
}

// StaticGraph is an immutable in-memory Graph built from configuration.
type StaticGraph struct {
	entryNodes map[string]string
	edges      map[string]Edge
}

// NewStaticGraph builds a StaticGraph from scene entry points and edges.
func NewStaticGraph(entryNodes map[string]string, edges []Edge) *StaticGraph {
	graph := &StaticGraph{
		entryNodes: make(map[string]string, len(entryNodes)),
		edges:      make(map[string]Edge, len(edges)),
	}
	for sceneID, nodeID := range entryNodes {
		graph.entryNodes[sceneID] = nodeID
	}
	for _, edge := range edges {
		graph.edges[edge.ID] = edge
	}
	return graph
}

// EntryNode implements Graph.
func (g *StaticGraph) EntryNode(_ context.Context, sceneID string) (string, error) {
	nodeID, ok := g.entryNodes[sceneID]
	if !ok {
		return "", apperr.WithMetadata(apperr.CodeSceneNotFound, "scene not found", map[string]string{
			"scene_id": sceneID,
		})
	}
	return nodeID, nil
}

// Edge implements Graph.
func (g *StaticGraph) Edge(_ context.Context, edgeID string) (Edge, error) {
	edge, ok := g.edges[edgeID]
	if !ok {
		return Edge{}, apperr.WithMetadata(apperr.CodeEdgeNotFound, "edge not found", map[string]string{
			"edge_id": edgeID,
		})
	}
	return edge, nil
}
