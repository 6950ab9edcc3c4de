package strategy

import (
	"testing"

	"github.com/uno-network/uno/pkg/model"
	"github.com/uno-network/uno/pkg/uvnerr"
)

func cell(id uint32, public bool) model.Cell {
	c := model.Cell{ID: id, Name: "cell"}
	if public {
		c.Address = "host.example"
	}
	return c
}

func hasEdge(edges []Edge, a, b uint32) bool {
	for _, e := range edges {
		if (e.CellA == a && e.CellB == b) || (e.CellA == b && e.CellB == a) {
			return true
		}
	}
	return false
}

func degree(edges []Edge, id uint32) int {
	n := 0
	for _, e := range edges {
		if e.CellA == id || e.CellB == id {
			n++
		}
	}
	return n
}

// S1: one public cell a, one private cell b, circular.
func TestS1MinimumDeployable(t *testing.T) {
	cells := []model.Cell{cell(1, true), cell(2, false)}
	edges, err := Plan(cells, model.Settings{DeploymentStrategy: model.StrategyCircular})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(edges) != 1 || !hasEdge(edges, 1, 2) {
		t.Fatalf("edges = %+v, want single (1,2)", edges)
	}
}

// S2: three public cells, crossed -> triangle.
func TestS2ThreePublicCrossed(t *testing.T) {
	cells := []model.Cell{cell(1, true), cell(2, true), cell(3, true)}
	edges, err := Plan(cells, model.Settings{DeploymentStrategy: model.StrategyCrossed})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(edges) != 3 {
		t.Fatalf("edges = %+v, want 3", edges)
	}
	for _, pair := range [][2]uint32{{1, 2}, {2, 3}, {1, 3}} {
		if !hasEdge(edges, pair[0], pair[1]) {
			t.Errorf("missing edge %v", pair)
		}
	}
}

// S3: four public + one private (mod 4 == 0), crossed.
func TestS3FourPublicOnePrivateCrossed(t *testing.T) {
	cells := []model.Cell{
		cell(1, true), cell(2, true), cell(3, true), cell(4, true),
		cell(8, false), // 8 mod 4 == 0 -> assigned to public[0] (id 1)
	}
	edges, err := Plan(cells, model.Settings{DeploymentStrategy: model.StrategyCrossed})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	want := [][2]uint32{{1, 2}, {2, 3}, {3, 4}, {4, 1}, {1, 3}, {2, 4}, {1, 8}}
	if len(edges) != len(want) {
		t.Fatalf("edges = %+v, want %d edges", edges, len(want))
	}
	for _, pair := range want {
		if !hasEdge(edges, pair[0], pair[1]) {
			t.Errorf("missing edge %v", pair)
		}
	}
	wantDegree := map[uint32]int{1: 4, 2: 3, 3: 3, 4: 3, 8: 1}
	for id, d := range wantDegree {
		if got := degree(edges, id); got != d {
			t.Errorf("degree(%d) = %d, want %d", id, got, d)
		}
	}
}

// S4: static adjacency with a private-private edge is rejected.
func TestS4StaticInvalidPrivatePrivate(t *testing.T) {
	cells := []model.Cell{cell(1, true), cell(2, false), cell(3, false)}
	settings := model.Settings{
		DeploymentStrategy: model.StrategyStatic,
		StaticAdjacency: []model.StaticEdge{
			{CellA: 1, CellB: 2},
			{CellA: 2, CellB: 3},
		},
	}
	_, err := Plan(cells, settings)
	if _, ok := err.(*uvnerr.InvalidStaticGraph); !ok {
		t.Fatalf("expected *InvalidStaticGraph, got %T: %v", err, err)
	}
}

func TestFullMeshDegree(t *testing.T) {
	cells := []model.Cell{cell(1, true), cell(2, true), cell(3, true), cell(4, true)}
	edges, err := Plan(cells, model.Settings{DeploymentStrategy: model.StrategyFullMesh})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	for _, c := range cells {
		if d := degree(edges, c.ID); d != len(cells)-1 {
			t.Errorf("degree(%d) = %d, want %d", c.ID, d, len(cells)-1)
		}
	}
}

func TestNotDeployableNoPublicCell(t *testing.T) {
	cells := []model.Cell{cell(1, false), cell(2, false)}
	_, err := Plan(cells, model.Settings{DeploymentStrategy: model.StrategyCircular})
	if err == nil {
		t.Fatal("expected NotDeployable")
	}
}

func TestDeterminism(t *testing.T) {
	cells := []model.Cell{cell(3, true), cell(1, true), cell(2, false)}
	settings := model.Settings{DeploymentStrategy: model.StrategyCrossed}
	e1, err := Plan(cells, settings)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	shuffled := []model.Cell{cells[2], cells[0], cells[1]}
	e2, err := Plan(shuffled, settings)
	if err != nil {
		t.Fatalf("Plan (shuffled): %v", err)
	}
	if len(e1) != len(e2) {
		t.Fatalf("edge count differs: %d vs %d", len(e1), len(e2))
	}
	for _, e := range e1 {
		if !hasEdge(e2, e.CellA, e.CellB) {
			t.Errorf("edge %v missing from shuffled run", e)
		}
	}
}

func TestRandomSeededDeterministic(t *testing.T) {
	var cells []model.Cell
	for i := uint32(1); i <= 6; i++ {
		cells = append(cells, cell(i, true))
	}
	settings := model.Settings{DeploymentStrategy: model.StrategyRandom}
	e1, err := Plan(cells, settings)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	e2, err := Plan(cells, settings)
	if err != nil {
		t.Fatalf("Plan (rerun): %v", err)
	}
	if len(e1) != len(e2) {
		t.Fatalf("random strategy not deterministic: %d vs %d edges", len(e1), len(e2))
	}
	for _, e := range e1 {
		if !hasEdge(e2, e.CellA, e.CellB) {
			t.Errorf("edge %v differs between runs", e)
		}
	}
}
