// Package strategy implements C4, the deployment strategy: selection of the
// backbone multigraph for the current non-excluded cell set. Each named
// strategy is a pure function of (ordered cell list, settings); strategies
// that consult randomness seed from a stable digest of those inputs so the
// determinism contract (§4.4) still holds.
package strategy

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/uno-network/uno/pkg/model"
	"github.com/uno-network/uno/pkg/uvnerr"
)

// Edge is one backbone link the strategy has decided on, prior to address
// or key assignment.
type Edge struct {
	CellA, CellB uint32
	ReplicaIndex int
}

// Strategies is the static registry mapping a settings tag to its
// implementation, mirroring the "tagged variant with a shared
// trait/interface" design note.
var Strategies = map[model.Strategy]func(cells []model.Cell, settings model.Settings) ([]Edge, error){
	model.StrategyCircular: Circular,
	model.StrategyCrossed:  Crossed,
	model.StrategyFullMesh: FullMesh,
	model.StrategyStatic:   Static,
	model.StrategyRandom:   Random,
}

// Plan runs the strategy named in settings.DeploymentStrategy over cells,
// defaulting to StrategyCrossed if unset.
func Plan(cells []model.Cell, settings model.Settings) ([]Edge, error) {
	tag := settings.DeploymentStrategy
	if tag == "" {
		tag = model.StrategyCrossed
	}
	fn, ok := Strategies[tag]
	if !ok {
		return nil, fmt.Errorf("unknown deployment strategy: %s", tag)
	}

	publicCells := publicOf(cells)
	if len(publicCells) == 0 {
		return nil, &uvnerr.NotDeployable{}
	}

	edges, err := fn(cells, settings)
	if err != nil {
		return nil, err
	}
	if err := validateContract(cells, edges); err != nil {
		return nil, err
	}
	return edges, nil
}

func publicOf(cells []model.Cell) []model.Cell {
	var out []model.Cell
	for _, c := range cells {
		if !c.Excluded && c.IsPublic() {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func privateOf(cells []model.Cell) []model.Cell {
	var out []model.Cell
	for _, c := range cells {
		if !c.Excluded && !c.IsPublic() {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// validateContract enforces the rule every strategy shares: backbone links
// must terminate at a public cell on at least one side.
func validateContract(cells []model.Cell, edges []Edge) error {
	public := make(map[uint32]bool)
	for _, c := range publicOf(cells) {
		public[c.ID] = true
	}
	for _, e := range edges {
		if !public[e.CellA] && !public[e.CellB] {
			return &uvnerr.InvalidStaticGraph{Reason: "private_private_edge"}
		}
	}
	return nil
}

// ringEdges connects public cells in ring order: each public cell links to
// its two neighbours (one if exactly two public cells, none if only one).
func ringEdges(public []model.Cell) []Edge {
	k := len(public)
	if k < 2 {
		return nil
	}
	if k == 2 {
		return []Edge{{CellA: public[0].ID, CellB: public[1].ID}}
	}
	edges := make([]Edge, 0, k)
	for i := 0; i < k; i++ {
		edges = append(edges, Edge{CellA: public[i].ID, CellB: public[(i+1)%k].ID})
	}
	return edges
}

// privateAttachEdges assigns each private cell to a public cell by
// private.id mod len(public), one backbone link per private cell.
func privateAttachEdges(public, private []model.Cell) []Edge {
	if len(public) == 0 {
		return nil
	}
	edges := make([]Edge, 0, len(private))
	for _, p := range private {
		assigned := public[int(p.ID)%len(public)]
		edges = append(edges, Edge{CellA: assigned.ID, CellB: p.ID})
	}
	return edges
}

// Circular: ring of public cells plus private cells attached to one public
// peer each.
func Circular(cells []model.Cell, settings model.Settings) ([]Edge, error) {
	public := publicOf(cells)
	private := privateOf(cells)
	edges := append(ringEdges(public), privateAttachEdges(public, private)...)
	return dedupeReplicas(edges), nil
}

// Crossed (default): ring plus cross edges linking each public cell at ring
// position i to position (i + K/2) mod K: up to ⌊K/2⌋ cross edges, where a
// cross pair that is already a ring edge is dropped (so K=3 adds none).
func Crossed(cells []model.Cell, settings model.Settings) ([]Edge, error) {
	public := publicOf(cells)
	private := privateOf(cells)
	ring := ringEdges(public)
	edges := append([]Edge{}, ring...)

	ringPairs := make(map[[2]uint32]bool, len(ring))
	for _, e := range ring {
		ringPairs[pairKey(e.CellA, e.CellB)] = true
	}

	k := len(public)
	if k >= 3 {
		half := k / 2
		seenCross := make(map[[2]uint32]bool)
		var crossPairs [][2]uint32
		for i := 0; i < k && len(crossPairs) < k/2; i++ {
			j := (i + half) % k
			if i == j {
				continue
			}
			key := pairKey(public[i].ID, public[j].ID)
			if seenCross[key] {
				continue
			}
			seenCross[key] = true
			crossPairs = append(crossPairs, key)
		}
		for _, key := range crossPairs {
			if ringPairs[key] {
				continue
			}
			edges = append(edges, Edge{CellA: key[0], CellB: key[1]})
		}
	}

	edges = append(edges, privateAttachEdges(public, private)...)
	return dedupeReplicas(edges), nil
}

func pairKey(a, b uint32) [2]uint32 {
	if a > b {
		a, b = b, a
	}
	return [2]uint32{a, b}
}

// FullMesh: complete graph over public cells; private cells attached as in
// Circular.
func FullMesh(cells []model.Cell, settings model.Settings) ([]Edge, error) {
	public := publicOf(cells)
	private := privateOf(cells)
	var edges []Edge
	for i := 0; i < len(public); i++ {
		for j := i + 1; j < len(public); j++ {
			edges = append(edges, Edge{CellA: public[i].ID, CellB: public[j].ID})
		}
	}
	edges = append(edges, privateAttachEdges(public, private)...)
	return dedupeReplicas(edges), nil
}

// minStaticDegree is the per-cell minimum backbone degree Static enforces:
// every non-excluded cell must be named in at least one adjacency entry.
// There is no corresponding maximum: the adjacency list is itself the
// operator's declaration of each cell's degree, and replicas (parallel
// edges between the same pair) can legitimately push a cell's degree past
// the cell count.
const minStaticDegree = 1

// Static: explicit adjacency list from settings, validated against degree
// bounds and public-only-peering.
func Static(cells []model.Cell, settings model.Settings) ([]Edge, error) {
	if len(settings.StaticAdjacency) == 0 {
		return nil, &uvnerr.InvalidStaticGraph{Reason: "empty_adjacency_list"}
	}
	byID := make(map[uint32]model.Cell)
	for _, c := range cells {
		byID[c.ID] = c
	}
	edges := make([]Edge, 0, len(settings.StaticAdjacency))
	degree := make(map[uint32]int)
	for _, se := range settings.StaticAdjacency {
		if se.CellA == se.CellB {
			return nil, &uvnerr.InvalidStaticGraph{Reason: fmt.Sprintf("self_loop:%d", se.CellA)}
		}
		a, ok := byID[se.CellA]
		if !ok || a.Excluded {
			return nil, &uvnerr.InvalidStaticGraph{Reason: fmt.Sprintf("unknown_cell:%d", se.CellA)}
		}
		b, ok := byID[se.CellB]
		if !ok || b.Excluded {
			return nil, &uvnerr.InvalidStaticGraph{Reason: fmt.Sprintf("unknown_cell:%d", se.CellB)}
		}
		if !a.IsPublic() && !b.IsPublic() {
			return nil, &uvnerr.InvalidStaticGraph{Reason: "private_private_edge"}
		}
		degree[se.CellA]++
		degree[se.CellB]++
		edges = append(edges, Edge{CellA: se.CellA, CellB: se.CellB, ReplicaIndex: se.ReplicaIndex})
	}
	for _, c := range cells {
		if c.Excluded {
			continue
		}
		if degree[c.ID] < minStaticDegree {
			return nil, &uvnerr.InvalidStaticGraph{Reason: fmt.Sprintf("degree_below_minimum:%d", c.ID)}
		}
	}
	if !connected(cells, edges) {
		return nil, &uvnerr.InvalidStaticGraph{Reason: "not_connected"}
	}
	return edges, nil
}

// Random: seeded random walk adding edges between public cells until the
// public-cell subgraph is 2-edge-connected, or the attempt budget is
// exhausted. Private cells are attached as in Circular. Best-effort per
// §4.4/§9: callers should treat StrategyUnsatisfiable as a normal outcome.
const randomAttemptBudget = 200

func Random(cells []model.Cell, settings model.Settings) ([]Edge, error) {
	public := publicOf(cells)
	private := privateOf(cells)
	if len(public) < 2 {
		edges := privateAttachEdges(public, private)
		return edges, nil
	}

	seed := digestSeed(cells, settings)
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	edges := ringEdges(public)
	present := make(map[[2]uint32]bool)
	for _, e := range edges {
		present[pairKey(e.CellA, e.CellB)] = true
	}

	for attempt := 0; attempt < randomAttemptBudget; attempt++ {
		if is2EdgeConnected(public, edges) {
			edges = append(edges, privateAttachEdges(public, private)...)
			return dedupeReplicas(edges), nil
		}
		i := rng.IntN(len(public))
		j := rng.IntN(len(public))
		if i == j {
			continue
		}
		a, b := public[i].ID, public[j].ID
		key := pairKey(a, b)
		if present[key] {
			continue
		}
		present[key] = true
		edges = append(edges, Edge{CellA: a, CellB: b})
	}

	if is2EdgeConnected(public, edges) {
		edges = append(edges, privateAttachEdges(public, private)...)
		return dedupeReplicas(edges), nil
	}
	return nil, &uvnerr.StrategyUnsatisfiable{Strategy: string(model.StrategyRandom), Reason: "budget exhausted before reaching 2-edge-connectivity"}
}

// digestSeed derives a stable 64-bit seed from the sorted cell ids and the
// strategy-relevant settings, per the determinism contract.
func digestSeed(cells []model.Cell, settings model.Settings) uint64 {
	ids := make([]uint32, 0, len(cells))
	for _, c := range cells {
		if !c.Excluded {
			ids = append(ids, c.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	h := sha256.New()
	for _, id := range ids {
		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], id)
		h.Write(buf[:])
	}
	h.Write([]byte(settings.DeploymentStrategy))
	sum := h.Sum(nil)
	return binary.BigEndian.Uint64(sum[:8])
}

// connected reports whether the cell set is connected under edges alone
// (used by Static, which has no implicit root-VPN fallback to assume).
func connected(cells []model.Cell, edges []Edge) bool {
	adj := buildAdjacency(cells, edges)
	if len(adj) == 0 {
		return true
	}
	var start uint32
	for id := range adj {
		start = id
		break
	}
	visited := bfs(adj, start)
	for id := range adj {
		if !visited[id] {
			return false
		}
	}
	return true
}

func buildAdjacency(cells []model.Cell, edges []Edge) map[uint32][]uint32 {
	adj := make(map[uint32][]uint32)
	for _, c := range cells {
		if !c.Excluded {
			adj[c.ID] = nil
		}
	}
	for _, e := range edges {
		adj[e.CellA] = append(adj[e.CellA], e.CellB)
		adj[e.CellB] = append(adj[e.CellB], e.CellA)
	}
	return adj
}

func bfs(adj map[uint32][]uint32, start uint32) map[uint32]bool {
	visited := map[uint32]bool{start: true}
	queue := []uint32{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range adj[cur] {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	return visited
}

// is2EdgeConnected reports whether the public-cell subgraph has no bridge
// (no single edge whose removal disconnects it) and is itself connected —
// the structural definition of 2-edge-connectivity used by Random.
func is2EdgeConnected(public []model.Cell, edges []Edge) bool {
	adj := buildAdjacency(public, edges)
	if len(adj) <= 1 {
		return true
	}
	var start uint32
	for id := range adj {
		start = id
		break
	}
	if len(bfs(adj, start)) != len(adj) {
		return false
	}
	for _, e := range edges {
		remaining := make([]Edge, 0, len(edges)-1)
		for _, other := range edges {
			if other == e {
				continue
			}
			remaining = append(remaining, other)
		}
		adj2 := buildAdjacency(public, remaining)
		if len(bfs(adj2, start)) != len(adj2) {
			return false
		}
	}
	return true
}

// dedupeReplicas assigns increasing ReplicaIndex values to parallel edges
// between the same pair of cells, rather than collapsing them, since the
// deployment graph is an explicit multigraph.
func dedupeReplicas(edges []Edge) []Edge {
	counts := make(map[[2]uint32]int)
	out := make([]Edge, len(edges))
	for i, e := range edges {
		key := pairKey(e.CellA, e.CellB)
		out[i] = e
		out[i].ReplicaIndex = counts[key]
		counts[key]++
	}
	return out
}
