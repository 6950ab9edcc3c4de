package registry

import (
	"net"
	"sort"

	"github.com/uno-network/uno/pkg/model"
	"github.com/uno-network/uno/pkg/uvnerr"
)

// checkInvariants enforces §3's cell invariants over the full non-excluded
// cell set: allowed LANs pairwise disjoint, and none overlapping a reserved
// base network. It runs after every cell-affecting mutation, over the
// candidate post-mutation state, so a violating mutation is rejected before
// it is committed.
func checkInvariants(agg *Aggregate) error {
	nonExcluded := agg.cellSlice()
	sort.Slice(nonExcluded, func(i, j int) bool { return nonExcluded[i].ID < nonExcluded[j].ID })

	type lan struct {
		cellName string
		net      *net.IPNet
		cidr     string
	}
	var lans []lan
	for _, c := range nonExcluded {
		if c.Excluded {
			continue
		}
		for _, cidr := range c.AllowedLANs {
			_, n, err := net.ParseCIDR(cidr)
			if err != nil {
				return &uvnerr.ReservedNetworkOverlap{Cell: c.Name, Base: cidr}
			}
			lans = append(lans, lan{cellName: c.Name, net: n, cidr: cidr})
		}
	}

	for i := 0; i < len(lans); i++ {
		for j := i + 1; j < len(lans); j++ {
			if netsOverlap(lans[i].net, lans[j].net) {
				return &uvnerr.LANOverlap{
					A: lans[i].cellName + ":" + lans[i].cidr,
					B: lans[j].cellName + ":" + lans[j].cidr,
				}
			}
		}
	}

	for base, cidrStr := range agg.Settings.BaseNetworks() {
		if cidrStr == "" {
			continue
		}
		_, baseNet, err := net.ParseCIDR(cidrStr)
		if err != nil {
			continue
		}
		for _, l := range lans {
			if netsOverlap(l.net, baseNet) {
				return &uvnerr.ReservedNetworkOverlap{Cell: l.cellName, Base: base}
			}
		}
	}
	return nil
}

// netsOverlap reports whether two IPv4 CIDR blocks share any address. Both
// arguments are already normalized network addresses (net.ParseCIDR masks
// the host bits), so it suffices to check whether either network's address
// falls inside the other.
func netsOverlap(a, b *net.IPNet) bool {
	return a.Contains(b.IP) || b.Contains(a.IP)
}

// cellNameTaken reports whether name is already used by a non-excluded or
// excluded cell in agg (names are never freed, matching the
// id-retention invariant — a name can't be reused even after exclusion).
func cellNameTaken(agg *Aggregate, name string) bool {
	for _, c := range agg.Cells {
		if c.Name == name {
			return true
		}
	}
	return false
}

func particleNameTaken(agg *Aggregate, name string) bool {
	for _, p := range agg.Particles {
		if p.Name == name {
			return true
		}
	}
	return false
}

func userEmailTaken(users []model.User, email string) bool {
	for _, u := range users {
		if u.Email == email {
			return true
		}
	}
	return false
}
