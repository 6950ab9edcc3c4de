// Package addressplan implements C1, the address-plan allocator: pure
// arithmetic that derives every per-link IPv4 address and UDP port the
// control plane assigns from the UVN's four fixed base networks and the
// ordinal position of cells and links within them.
//
// Allocate is a pure function of its arguments: identical (settings, cells,
// links) always produce a byte-identical Plan, regardless of the order
// those arguments were built in, because every offset is keyed off a cell's
// stable id or a link's sorted ordinal rather than insertion order.
package addressplan

import (
	"net"
	"sort"

	"github.com/apparentlymart/go-cidr/cidr"

	"github.com/uno-network/uno/pkg/model"
	"github.com/uno-network/uno/pkg/uvnerr"
)

// LinkOrdinal is the minimal shape C4 hands to the allocator for each
// backbone edge it has decided on.
type LinkOrdinal struct {
	CellA, CellB uint32
	ReplicaIndex int
}

// sortKey returns the total order backbone links are allocated in:
// (min(a,b), max(a,b), replica_index).
func (l LinkOrdinal) sortKey() (uint32, uint32, int) {
	a, b := l.CellA, l.CellB
	if a > b {
		a, b = b, a
	}
	return a, b, l.ReplicaIndex
}

// Plan is the complete set of address/port assignments for one snapshot.
type Plan struct {
	RegistryRootVPNAddr net.IP
	CellRootVPNAddr     map[uint32]net.IP // cell id -> address within RootVPNBase

	ParticlesBlock    map[uint32]*net.IPNet // public cell id -> its carved block
	ParticlesBlockLen int                   // prefix length of each carved block

	BackboneSubnet map[int]*net.IPNet // link rank -> /31
	BackbonePort   map[int]uint16     // link rank -> UDP port

	RoutingSubnet map[uint32]*net.IPNet // cell id -> /31 (registry/cell split within)
}

// Allocate computes the full address plan for the given settings and cell
// set, plus the backbone links C4 already decided on.
func Allocate(settings model.Settings, cells []model.Cell, links []LinkOrdinal) (*Plan, error) {
	nonExcluded := make([]model.Cell, 0, len(cells))
	for _, c := range cells {
		if !c.Excluded {
			nonExcluded = append(nonExcluded, c)
		}
	}
	sort.Slice(nonExcluded, func(i, j int) bool { return nonExcluded[i].ID < nonExcluded[j].ID })

	plan := &Plan{
		CellRootVPNAddr: make(map[uint32]net.IP),
		ParticlesBlock:  make(map[uint32]*net.IPNet),
		BackboneSubnet:  make(map[int]*net.IPNet),
		BackbonePort:    make(map[int]uint16),
		RoutingSubnet:   make(map[uint32]*net.IPNet),
	}

	if err := allocateRootVPN(settings, nonExcluded, plan); err != nil {
		return nil, err
	}
	if err := allocateParticlesVPN(settings, nonExcluded, plan); err != nil {
		return nil, err
	}
	if err := allocateBackbone(settings, links, plan); err != nil {
		return nil, err
	}
	if err := allocateRouting(settings, nonExcluded, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

func parseBase(cidrStr string) (*net.IPNet, error) {
	_, n, err := net.ParseCIDR(cidrStr)
	if err != nil {
		return nil, err
	}
	return n, nil
}

// allocateRootVPN: registry takes the first usable address; each
// non-excluded cell with id n takes offset n+1.
func allocateRootVPN(settings model.Settings, cells []model.Cell, plan *Plan) error {
	base, err := parseBase(settings.RootVPNBase)
	if err != nil {
		return &uvnerr.CapacityExceeded{Base: "root_vpn"}
	}

	maxOffset := 1
	for _, c := range cells {
		if off := int(c.ID) + 1; off > maxOffset {
			maxOffset = off
		}
	}

	registryAddr, err := cidr.Host(base, 1)
	if err != nil {
		return &uvnerr.CapacityExceeded{Base: "root_vpn"}
	}
	plan.RegistryRootVPNAddr = registryAddr

	for _, c := range cells {
		addr, err := cidr.Host(base, int(c.ID)+1)
		if err != nil {
			return &uvnerr.CapacityExceeded{Base: "root_vpn"}
		}
		plan.CellRootVPNAddr[c.ID] = addr
	}

	if _, err := cidr.Host(base, maxOffset); err != nil {
		return &uvnerr.CapacityExceeded{Base: "root_vpn"}
	}
	return nil
}

// allocateParticlesVPN carves one block per public cell at offset
// cell.ID * blockSize from the particles base.
func allocateParticlesVPN(settings model.Settings, cells []model.Cell, plan *Plan) error {
	base, err := parseBase(settings.ParticlesVPNBase)
	if err != nil {
		return &uvnerr.CapacityExceeded{Base: "particles_vpn"}
	}

	blockBits := blockSizeBits(settings.MaxParticles)
	baseOnes, _ := base.Mask.Size()
	newBits := blockBits - baseOnes
	if newBits < 0 {
		return &uvnerr.CapacityExceeded{Base: "particles_vpn"}
	}
	plan.ParticlesBlockLen = blockBits

	for _, c := range cells {
		if !c.IsPublic() {
			continue
		}
		block, err := cidr.Subnet(base, newBits, int(c.ID))
		if err != nil {
			return &uvnerr.CapacityExceeded{Base: "particles_vpn"}
		}
		plan.ParticlesBlock[c.ID] = block
	}
	return nil
}

// blockSizeBits returns the prefix length of the smallest power-of-two block
// that holds the cell's own address (offset 1) plus maxParticles particles
// (offsets 2..maxParticles+1), never smaller than /24.
func blockSizeBits(maxParticles int) int {
	needed := maxParticles + 2
	bits := 24
	for bits > 0 && (1<<(32-bits)) < needed {
		bits--
	}
	return bits
}

// allocateBackbone assigns sequential /31s and UDP ports to backbone links,
// ordered by (min(a,b), max(a,b), replica_index).
func allocateBackbone(settings model.Settings, links []LinkOrdinal, plan *Plan) error {
	base, err := parseBase(settings.BackboneBase)
	if err != nil {
		return &uvnerr.CapacityExceeded{Base: "backbone"}
	}

	ordered := make([]LinkOrdinal, len(links))
	copy(ordered, links)
	sort.Slice(ordered, func(i, j int) bool {
		ai, aj, ak := ordered[i].sortKey()
		bi, bj, bk := ordered[j].sortKey()
		if ai != bi {
			return ai < bi
		}
		if aj != bj {
			return aj < bj
		}
		return ak < bk
	})

	baseOnes, _ := base.Mask.Size()
	newBits := 31 - baseOnes
	if newBits < 0 {
		return &uvnerr.CapacityExceeded{Base: "backbone"}
	}

	for rank := range ordered {
		subnet, err := cidr.Subnet(base, newBits, rank)
		if err != nil {
			return &uvnerr.CapacityExceeded{Base: "backbone"}
		}
		plan.BackboneSubnet[rank] = subnet
		plan.BackbonePort[rank] = settings.BackbonePortBase + uint16(rank)
	}
	return nil
}

// allocateRouting assigns sequential /31s for the registry<->cell routing
// links, ordered by ascending cell id.
func allocateRouting(settings model.Settings, cells []model.Cell, plan *Plan) error {
	base, err := parseBase(settings.RoutingBase)
	if err != nil {
		return &uvnerr.CapacityExceeded{Base: "routing"}
	}

	baseOnes, _ := base.Mask.Size()
	newBits := 31 - baseOnes
	if newBits < 0 {
		return &uvnerr.CapacityExceeded{Base: "routing"}
	}

	for rank, c := range cells {
		subnet, err := cidr.Subnet(base, newBits, rank)
		if err != nil {
			return &uvnerr.CapacityExceeded{Base: "routing"}
		}
		plan.RoutingSubnet[c.ID] = subnet
	}
	return nil
}

// LinkRank returns the 0-based sequential position of the given link among
// all links, per the (min,max,replica) total order. C3 uses this to look up
// BackboneSubnet/BackbonePort.
func LinkRank(links []LinkOrdinal, target LinkOrdinal) int {
	ordered := make([]LinkOrdinal, len(links))
	copy(ordered, links)
	sort.Slice(ordered, func(i, j int) bool {
		ai, aj, ak := ordered[i].sortKey()
		bi, bj, bk := ordered[j].sortKey()
		if ai != bi {
			return ai < bi
		}
		if aj != bj {
			return aj < bj
		}
		return ak < bk
	})
	ta, tb, tk := target.sortKey()
	for i, l := range ordered {
		la, lb, lk := l.sortKey()
		if la == ta && lb == tb && lk == tk {
			return i
		}
	}
	return -1
}
