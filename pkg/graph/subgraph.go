package graph

// Subgraph returns the neighbourhood of center: every node within depth hops
// (inclusive) and every edge whose endpoints are both in that set.
//
// Hop distance is the shortest path length from center, found breadth-first
// with each node visited at most once, so traversal order never changes the
// result. An unknown center yields an empty graph; depth 0 yields the center
// alone; negative depths are treated as 0.
func (s *Store) Subgraph(center string, depth int) Graph {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.nodes[center]; !ok {
		return Empty()
	}
	depth = max(depth, 0)

	visited := s.reach(center, depth)

	nodes := make([]*nodeEntry, 0, len(visited))
	for id := range visited {
		nodes = append(nodes, s.nodes[id])
	}

	var edges []*edgeEntry
	seen := make(map[edgeKey]bool)
	for id := range visited {
		for nb := range s.adj[id] {
			if !visited[nb] {
				continue
			}
			key := newEdgeKey(id, nb)
			if seen[key] {
				continue
			}
			seen[key] = true
			edges = append(edges, s.edges[key])
		}
	}
	return collect(nodes, edges)
}

// reach runs the bounded BFS and returns the visited set.
func (s *Store) reach(center string, depth int) map[string]bool {
	type entry struct {
		id    string
		depth int
	}
	visited := map[string]bool{center: true}
	queue := []entry{{center, 0}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if cur.depth >= depth {
			continue
		}
		for nb := range s.adj[cur.id] {
			if visited[nb] {
				continue
			}
			visited[nb] = true
			queue = append(queue, entry{nb, cur.depth + 1})
		}
	}
	return visited
}

// Distances returns the shortest hop count from center to every node
// reachable from it. Unknown centers yield nil.
func (s *Store) Distances(center string) map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.nodes[center]; !ok {
		return nil
	}
	dist := map[string]int{center: 0}
	queue := []string{center}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for nb := range s.adj[cur] {
			if _, ok := dist[nb]; ok {
				continue
			}
			dist[nb] = dist[cur] + 1
			queue = append(queue, nb)
		}
	}
	return dist
}
