package fairness

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bftcore/bftcore/common"
	"github.com/bftcore/bftcore/wire"
)

func req(clientID uint32, key string) wire.Request {
	return wire.Request{ClientID: clientID, Key: key}
}

func TestRequestHashIsStableAndDistinct(t *testing.T) {
	a := req(1, "a")
	b := req(1, "b")
	require.Equal(t, RequestHash(a), RequestHash(a))
	require.NotEqual(t, RequestHash(a), RequestHash(b))
}

func TestReorderPassesThroughTrivialInputs(t *testing.T) {
	cfg := Config{SolidThreshold: 3, ShadedThreshold: 2}
	require.Nil(t, Reorder(cfg, nil, nil))

	one := []wire.Request{req(1, "a")}
	require.Equal(t, one, Reorder(cfg, one, nil))
}

func TestReorderUnanimousAgreementProducesThatOrder(t *testing.T) {
	a, b, c := req(1, "a"), req(1, "b"), req(1, "c")
	requests := []wire.Request{c, a, b} // arrives in a scrambled order
	ha, hb, hc := RequestHash(a), RequestHash(b), RequestHash(c)

	orders := []ArrivalOrder{
		{Replica: 0, Order: []common.Hash{ha, hb, hc}},
		{Replica: 1, Order: []common.Hash{ha, hb, hc}},
		{Replica: 2, Order: []common.Hash{ha, hb, hc}},
	}
	cfg := Config{SolidThreshold: 3, ShadedThreshold: 2}

	out := Reorder(cfg, requests, orders)
	require.Equal(t, []wire.Request{a, b, c}, out)
}

func TestReorderSplitVotesKeepOriginalOrder(t *testing.T) {
	a, b := req(1, "a"), req(1, "b")
	requests := []wire.Request{a, b}
	ha, hb := RequestHash(a), RequestHash(b)

	// Two replicas disagree on direction: a tie split down the middle, so
	// neither edge reaches even the shaded threshold and no ordering
	// constraint survives; the original relative order (a before b) is the
	// deterministic tie-break.
	orders := []ArrivalOrder{
		{Replica: 0, Order: []common.Hash{ha, hb}},
		{Replica: 1, Order: []common.Hash{hb, ha}},
	}
	cfg := Config{SolidThreshold: 2, ShadedThreshold: 2}

	out := Reorder(cfg, requests, orders)
	require.Equal(t, []wire.Request{a, b}, out)
}

func TestReorderShadedOnlyEdgeDoesNotReorderAcrossComponents(t *testing.T) {
	// a before b reaches the shaded threshold (2) but not the solid
	// threshold (3): with SCC detection run at the shaded threshold, a and
	// b never share a cycle (only one directed edge exists between them),
	// so they land in separate singleton components; since the edge is
	// below solidAdj's threshold it contributes no condensation-level
	// constraint, and the tie-break (original index order) decides.
	a, b := req(1, "a"), req(1, "b")
	requests := []wire.Request{b, a} // b originally first
	ha, hb := RequestHash(a), RequestHash(b)

	orders := []ArrivalOrder{
		{Replica: 0, Order: []common.Hash{ha, hb}},
		{Replica: 1, Order: []common.Hash{ha, hb}},
	}
	cfg := Config{SolidThreshold: 3, ShadedThreshold: 2}

	out := Reorder(cfg, requests, orders)
	require.Equal(t, []wire.Request{b, a}, out, "shaded-only edge must not override the original tie-break order")
}

func TestReorderSolidEdgeForcesCrossComponentOrder(t *testing.T) {
	// Same vote count as above but with a lower solid threshold, so the
	// a-before-b edge now qualifies as solid and must force a ahead of b
	// in the condensation's topological sort, overriding the original
	// (b-first) index order.
	a, b := req(1, "a"), req(1, "b")
	requests := []wire.Request{b, a}
	ha, hb := RequestHash(a), RequestHash(b)

	orders := []ArrivalOrder{
		{Replica: 0, Order: []common.Hash{ha, hb}},
		{Replica: 1, Order: []common.Hash{ha, hb}},
	}
	cfg := Config{SolidThreshold: 2, ShadedThreshold: 2}

	out := Reorder(cfg, requests, orders)
	require.Equal(t, []wire.Request{a, b}, out)
}

func TestTarjanSCCMergesMutualCycle(t *testing.T) {
	// 0 -> 1 -> 0 is a cycle; 1 -> 2 is a lone forward edge.
	adj := [][]int{
		{1},
		{0, 2},
		{},
	}
	comp := tarjanSCC(adj)
	require.Equal(t, comp[0], comp[1], "0 and 1 must collapse into the same component")
	require.NotEqual(t, comp[0], comp[2])
}

func TestFlattenCondensationOrdersByIndegree(t *testing.T) {
	requests := []wire.Request{req(1, "a"), req(1, "b"), req(1, "c")}
	adj := [][]int{
		{1}, // a -> b
		{2}, // b -> c
		{},
	}
	comp := []int{0, 1, 2}
	out := flattenCondensation(requests, adj, comp)
	require.Equal(t, requests, out)
}
