// Package fairness implements the themis-style fairness reorder applied to
// a DAG wave's committed sub-DAG (§13 supplemented feature, spec.md §4.8):
// replicas attach their own locally observed client-transaction arrival
// order to each block they propose, and once a wave commits, the
// committing replica builds a shaded/solid precedence graph across those
// observations, finds its strongly connected components, and topologically
// sorts the condensation into a single Condorcet-respecting order.
//
// This is a pipeline stage that runs after ordering/dag's wave-commit BFS
// flattening, reordering the same request set it is handed rather than
// deciding which requests commit.
package fairness

import (
	"sort"

	"github.com/bftcore/bftcore/common"
	"github.com/bftcore/bftcore/wire"
)

// ArrivalOrder is one replica's locally observed arrival order for the
// requests inside a wave's committed sub-DAG, carried on that replica's own
// DAG block so the committing replica can reconstruct it after the fact
// (§13: "replicas attach a locally observed client-transaction arrival
// order to their DAG blocks").
type ArrivalOrder struct {
	Replica uint32
	Order   []common.Hash // request hashes, in the order this replica first saw them
}

// Config fixes the vote thresholds that classify a pairwise precedence
// edge as solid (definite) or merely shaded (tentative). SolidThreshold is
// ordinarily a quorum of observers; ShadedThreshold is ordinarily f+1, so
// a single Byzantine or just-slow observer's disagreement can never alone
// promote an edge to shaded.
type Config struct {
	SolidThreshold  uint32
	ShadedThreshold uint32
}

// RequestHash derives the dependency-graph vertex identity for a request,
// reusing wire.BatchHash's single-request case so a request hashes
// identically here and in any batch it ends up committed in.
func RequestHash(r wire.Request) common.Hash {
	return wire.BatchHash([][]byte{wire.RequestCanonical(r)})
}

// Reorder computes a Condorcet-respecting order over requests (already in
// the wave-commit BFS's round-then-proposer order, which also serves as
// the deterministic tie-break within an unresolved cycle) from the
// per-replica ArrivalOrders attached to the committed sub-DAG's blocks.
func Reorder(cfg Config, requests []wire.Request, orders []ArrivalOrder) []wire.Request {
	n := len(requests)
	if n <= 1 {
		return requests
	}

	hashes := make([]common.Hash, n)
	indexOf := make(map[common.Hash]int, n)
	for i, r := range requests {
		h := RequestHash(r)
		hashes[i] = h
		indexOf[h] = i
	}

	// votesBefore[i][j] counts how many replicas' locally observed order
	// ranks requests[i] before requests[j], among replicas whose order
	// mentions both.
	votesBefore := make([][]uint32, n)
	for i := range votesBefore {
		votesBefore[i] = make([]uint32, n)
	}
	for _, ord := range orders {
		pos := make(map[common.Hash]int, len(ord.Order))
		for p, h := range ord.Order {
			pos[h] = p
		}
		for i := 0; i < n; i++ {
			pi, iKnown := pos[hashes[i]]
			if !iKnown {
				continue
			}
			for j := 0; j < n; j++ {
				if i == j {
					continue
				}
				pj, jKnown := pos[hashes[j]]
				if jKnown && pi < pj {
					votesBefore[i][j]++
				}
			}
		}
	}

	// adj holds every edge at or above the shaded threshold; SCCs are
	// computed over this graph because a cycle formed even partly of
	// shaded edges is still an ambiguous ordering that must collapse into
	// one component, not be torn apart by the topo sort. solidAdj holds
	// only the definite edges: once two requests land in different
	// components (no ambiguity between them at all, not even tentative),
	// only a solid edge is trusted to force one component ahead of the
	// other in the final order; two components with nothing but shaded
	// evidence between them are left to the index tie-break instead of
	// being pinned on a single borderline vote.
	adj := make([][]int, n)
	solidAdj := make([][]int, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			v := votesBefore[i][j]
			if v >= cfg.ShadedThreshold {
				adj[i] = append(adj[i], j)
			}
			if v >= cfg.SolidThreshold {
				solidAdj[i] = append(solidAdj[i], j)
			}
		}
	}

	comp := tarjanSCC(adj)
	return flattenCondensation(requests, solidAdj, comp)
}

// tarjanSCC returns, for each vertex, the id of its strongly connected
// component. Component ids are not meaningful on their own; callers derive
// a topological order from them via flattenCondensation. No pack or
// example-repo dependency offers a generic directed-graph SCC routine
// (heimdalr/dag, this package's sibling ordering/dag's reachability
// dependency, is a DAG-reachability walker with no cycle-detection API) so
// this is Tarjan's algorithm written directly against a plain adjacency
// list, the standard textbook shape.
func tarjanSCC(adj [][]int) []int {
	n := len(adj)
	const unvisited = -1
	index := make([]int, n)
	lowlink := make([]int, n)
	onStack := make([]bool, n)
	comp := make([]int, n)
	for i := range index {
		index[i] = unvisited
		comp[i] = unvisited
	}

	var stack []int
	nextIndex := 0
	nextComp := 0

	type frame struct {
		v     int
		edges []int
		pos   int
	}
	var work []frame

	var strongconnect func(v int)
	strongconnect = func(v int) {
		work = append(work, frame{v: v, edges: adj[v]})
		index[v] = nextIndex
		lowlink[v] = nextIndex
		nextIndex++
		stack = append(stack, v)
		onStack[v] = true

		for len(work) > 0 {
			f := &work[len(work)-1]
			if f.pos < len(f.edges) {
				w := f.edges[f.pos]
				f.pos++
				if index[w] == unvisited {
					work = append(work, frame{v: w, edges: adj[w]})
					index[w] = nextIndex
					lowlink[w] = nextIndex
					nextIndex++
					stack = append(stack, w)
					onStack[w] = true
				} else if onStack[w] {
					if index[w] < lowlink[f.v] {
						lowlink[f.v] = index[w]
					}
				}
				continue
			}

			work = work[:len(work)-1]
			if len(work) > 0 {
				parent := &work[len(work)-1]
				if lowlink[f.v] < lowlink[parent.v] {
					lowlink[parent.v] = lowlink[f.v]
				}
			}
			if lowlink[f.v] == index[f.v] {
				for {
					w := stack[len(stack)-1]
					stack = stack[:len(stack)-1]
					onStack[w] = false
					comp[w] = nextComp
					if w == f.v {
						break
					}
				}
				nextComp++
			}
		}
	}

	for v := 0; v < n; v++ {
		if index[v] == unvisited {
			strongconnect(v)
		}
	}
	return comp
}

// flattenCondensation topologically sorts the SCC condensation (an edge
// from component A to component B whenever any vertex in A has an edge to
// a vertex in B) and, within each component, preserves requests' original
// relative order as the deterministic tie-break for an unresolved cycle.
func flattenCondensation(requests []wire.Request, adj [][]int, comp []int) []wire.Request {
	n := len(requests)
	numComps := 0
	for _, c := range comp {
		if c+1 > numComps {
			numComps = c + 1
		}
	}

	condAdj := make([]map[int]bool, numComps)
	for i := range condAdj {
		condAdj[i] = make(map[int]bool)
	}
	indeg := make([]int, numComps)
	for v := 0; v < n; v++ {
		for _, w := range adj[v] {
			cv, cw := comp[v], comp[w]
			if cv == cw || condAdj[cv][cw] {
				continue
			}
			condAdj[cv][cw] = true
			indeg[cw]++
		}
	}

	// Kahn's algorithm, breaking ties between simultaneously-ready
	// components by the lowest original request index any of their
	// members hold, so the output is deterministic across replicas that
	// reach the same vote tallies.
	firstIndexOf := make([]int, numComps)
	for i := range firstIndexOf {
		firstIndexOf[i] = n
	}
	for v := 0; v < n; v++ {
		if v < firstIndexOf[comp[v]] {
			firstIndexOf[comp[v]] = v
		}
	}

	var ready []int
	for c := 0; c < numComps; c++ {
		if indeg[c] == 0 {
			ready = append(ready, c)
		}
	}

	order := make([]wire.Request, 0, n)
	membersOf := make([][]int, numComps)
	for v := 0; v < n; v++ {
		membersOf[comp[v]] = append(membersOf[comp[v]], v)
	}

	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return firstIndexOf[ready[i]] < firstIndexOf[ready[j]] })
		c := ready[0]
		ready = ready[1:]

		members := membersOf[c]
		sort.Ints(members)
		for _, v := range members {
			order = append(order, requests[v])
		}

		for w := range condAdj[c] {
			indeg[w]--
			if indeg[w] == 0 {
				ready = append(ready, w)
			}
		}
	}
	return order
}
