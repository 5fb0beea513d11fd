package search

import (
	"sort"

	"github.com/placegraph/backend/pkg/common"
)

// Subgraph is the on-demand neighborhood of a micrograph around the
// query's seed concepts, returned verbatim in each result's audit
// chain.
type Subgraph struct {
	MaxHops   int                     `json:"max_hops"`
	SeedNodes []string                `json:"seed_nodes"`
	Nodes     []common.MicrographNode `json:"nodes"`
	Edges     []common.MicrographEdge `json:"edges"`
}

// graphAdjacency builds an undirected adjacency view over the
// micrograph's edges.
func graphAdjacency(graph common.Micrograph) map[string]map[string]struct{} {
	adjacency := make(map[string]map[string]struct{})
	link := func(from, to string) {
		if adjacency[from] == nil {
			adjacency[from] = make(map[string]struct{})
		}
		adjacency[from][to] = struct{}{}
	}
	for _, edge := range graph.Edges {
		if edge.Source == "" || edge.Target == "" {
			continue
		}
		link(edge.Source, edge.Target)
		link(edge.Target, edge.Source)
	}
	return adjacency
}

// sortedNeighbors returns a node's neighbors in lexical order so BFS
// expansion stays deterministic.
func sortedNeighbors(adjacency map[string]map[string]struct{}, node string) []string {
	neighbors := make([]string, 0, len(adjacency[node]))
	for neighbor := range adjacency[node] {
		neighbors = append(neighbors, neighbor)
	}
	sort.Strings(neighbors)
	return neighbors
}

// buildOnDemandSubgraph extracts the portion of a micrograph within
// maxHops of any seed node. Edges beyond the hop bound are dropped even
// when both endpoints are included.
func buildOnDemandSubgraph(graph common.Micrograph, seeds map[string]struct{}, maxHops int) Subgraph {
	adjacency := graphAdjacency(graph)

	seedList := make([]string, 0, len(seeds))
	for seed := range seeds {
		if seed != "" {
			seedList = append(seedList, seed)
		}
	}
	sort.Strings(seedList)

	type frontier struct {
		node  string
		depth int
	}
	included := make(map[string]struct{})
	seenDepth := make(map[string]int, len(seedList))
	queue := make([]frontier, 0, len(seedList))
	for _, seed := range seedList {
		seenDepth[seed] = 0
		queue = append(queue, frontier{node: seed})
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		included[current.node] = struct{}{}
		if current.depth >= maxHops {
			continue
		}
		for _, next := range sortedNeighbors(adjacency, current.node) {
			nextDepth := current.depth + 1
			if prev, seen := seenDepth[next]; seen && prev <= nextDepth {
				continue
			}
			seenDepth[next] = nextDepth
			queue = append(queue, frontier{node: next, depth: nextDepth})
		}
	}

	var edges []common.MicrographEdge
	for _, edge := range graph.Edges {
		if _, ok := included[edge.Source]; !ok {
			continue
		}
		if _, ok := included[edge.Target]; !ok {
			continue
		}
		hops := edge.Hops
		if hops == 0 {
			hops = 1
		}
		if hops <= maxHops {
			edges = append(edges, edge)
		}
	}

	nodeByID := make(map[string]common.MicrographNode, len(graph.Nodes))
	for _, node := range graph.Nodes {
		nodeByID[node.ID] = node
	}
	includedIDs := make([]string, 0, len(included))
	for id := range included {
		includedIDs = append(includedIDs, id)
	}
	sort.Strings(includedIDs)

	var nodes []common.MicrographNode
	for _, id := range includedIDs {
		if node, ok := nodeByID[id]; ok {
			nodes = append(nodes, node)
		}
	}

	return Subgraph{
		MaxHops:   maxHops,
		SeedNodes: seedList,
		Nodes:     nodes,
		Edges:     edges,
	}
}
