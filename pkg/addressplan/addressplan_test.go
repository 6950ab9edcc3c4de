package addressplan

import (
	"testing"

	"github.com/uno-network/uno/pkg/model"
)

func baseSettings() model.Settings {
	return model.Settings{
		RootVPNBase:      "10.0.0.0/16",
		ParticlesVPNBase: "10.1.0.0/16",
		BackboneBase:     "10.2.0.0/16",
		RoutingBase:      "10.3.0.0/16",
		BackbonePortBase: 63550,
		MTU:              1420,
		MaxParticles:     64,
	}
}

func TestAllocateDeterministic(t *testing.T) {
	cells := []model.Cell{
		{ID: 1, Name: "a", Address: "a.example"},
		{ID: 2, Name: "b"},
	}
	links := []LinkOrdinal{{CellA: 1, CellB: 2, ReplicaIndex: 0}}

	p1, err := Allocate(baseSettings(), cells, links)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	// Shuffle insertion order; ids unchanged, output must be identical.
	shuffled := []model.Cell{cells[1], cells[0]}
	p2, err := Allocate(baseSettings(), shuffled, links)
	if err != nil {
		t.Fatalf("Allocate (shuffled): %v", err)
	}

	if p1.CellRootVPNAddr[1].String() != p2.CellRootVPNAddr[1].String() {
		t.Errorf("root vpn addr for cell 1 differs: %v vs %v", p1.CellRootVPNAddr[1], p2.CellRootVPNAddr[1])
	}
	if p1.BackboneSubnet[0].String() != p2.BackboneSubnet[0].String() {
		t.Errorf("backbone subnet differs: %v vs %v", p1.BackboneSubnet[0], p2.BackboneSubnet[0])
	}
}

func TestRootVPNOffsets(t *testing.T) {
	cells := []model.Cell{{ID: 1, Name: "a"}, {ID: 2, Name: "b"}}
	p, err := Allocate(baseSettings(), cells, nil)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if got, want := p.RegistryRootVPNAddr.String(), "10.0.0.1"; got != want {
		t.Errorf("registry addr = %s, want %s", got, want)
	}
	if got, want := p.CellRootVPNAddr[1].String(), "10.0.0.2"; got != want {
		t.Errorf("cell 1 addr = %s, want %s", got, want)
	}
	if got, want := p.CellRootVPNAddr[2].String(), "10.0.0.3"; got != want {
		t.Errorf("cell 2 addr = %s, want %s", got, want)
	}
}

func TestBackboneSequentialAndSplit(t *testing.T) {
	cells := []model.Cell{{ID: 1}, {ID: 2}, {ID: 3}}
	links := []LinkOrdinal{
		{CellA: 2, CellB: 3, ReplicaIndex: 0},
		{CellA: 1, CellB: 2, ReplicaIndex: 0},
	}
	p, err := Allocate(baseSettings(), cells, links)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	// (1,2) sorts before (2,3)
	if got, want := p.BackboneSubnet[0].String(), "10.2.0.0/31"; got != want {
		t.Errorf("link 0 subnet = %s, want %s", got, want)
	}
	if got, want := p.BackboneSubnet[1].String(), "10.2.0.2/31"; got != want {
		t.Errorf("link 1 subnet = %s, want %s", got, want)
	}
	if p.BackbonePort[0] != 63550 || p.BackbonePort[1] != 63551 {
		t.Errorf("ports = %d, %d", p.BackbonePort[0], p.BackbonePort[1])
	}
}

func TestCapacityExceeded(t *testing.T) {
	s := baseSettings()
	s.BackboneBase = "10.2.0.0/29" // only 4 /31s available
	cells := []model.Cell{{ID: 1}, {ID: 2}, {ID: 3}, {ID: 4}, {ID: 5}}
	var links []LinkOrdinal
	for i := 0; i < 10; i++ {
		links = append(links, LinkOrdinal{CellA: uint32(i%5 + 1), CellB: uint32((i+1)%5 + 1), ReplicaIndex: i})
	}
	_, err := Allocate(s, cells, links)
	if err == nil {
		t.Fatal("expected CapacityExceeded, got nil")
	}
}

func TestLinkRank(t *testing.T) {
	links := []LinkOrdinal{
		{CellA: 2, CellB: 3, ReplicaIndex: 0},
		{CellA: 1, CellB: 2, ReplicaIndex: 0},
	}
	if got := LinkRank(links, links[1]); got != 0 {
		t.Errorf("rank of (1,2) = %d, want 0", got)
	}
	if got := LinkRank(links, links[0]); got != 1 {
		t.Errorf("rank of (2,3) = %d, want 1", got)
	}
}
