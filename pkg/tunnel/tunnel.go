// Package tunnel implements C3, the tunnel-link generator: given an ordered
// cell pair (or a cell/registry pair, for root-VPN and routing links, or a
// cell/particle pair, for particle links) plus the subnet C1 allocated for
// it, it issues per-link keys through C2 and assembles the pair of
// reciprocal LinkEndpoint records the datapath collaborator will consume.
package tunnel

import (
	"fmt"
	"net"

	"github.com/uno-network/uno/pkg/model"
	"github.com/uno-network/uno/pkg/uvnerr"
)

// KeyAuthority is the subset of pkg/keyauthority.Authority C3 depends on.
type KeyAuthority interface {
	IssueAsymmetric(kind, ownerID string) (string, []byte, error)
	PrivateAsymmetric(kind, ownerID string) ([]byte, error)
	IssueSymmetric(kind, ownerID string) (string, error)
	Material(kind, ownerID string) ([]byte, error)
}

// Side describes one party to a link: a cell, the registry, or a particle.
type Side struct {
	// OwnerKey identifies this side to the key authority, e.g. "cell:3",
	// "uvn:root", or "particle:7". Must be unique per entity.
	OwnerKey string
	// Ordinal disambiguates listener selection when both sides are public;
	// the side with the smaller Ordinal listens. For cell-cell links this
	// is the cell id; for registry-involving links the registry side uses
	// Ordinal 0 so it always wins ties against any cell.
	Ordinal uint32
	// Public is whether this side has a reachable address.
	Public bool
	// Address is this side's external host (used to build the peer's
	// peer_endpoint when this side listens). Required if Public.
	Address string
	// InterfaceName is the local tunnel interface name on this side.
	InterfaceName string
}

// BuildPair issues fresh per-link keys and assembles the reciprocal
// LinkEndpoint pair for one link between sideA and sideB, addressed within
// subnet (a /31 or /30; the lower address always goes to sideA per the
// allocator's convention — callers pass sides in ascending-ordinal order).
//
// linkID must be a stable, globally unique identifier for this link (e.g.
// "1-2-0" for cells 1 and 2, replica 0), used to key the per-link asymmetric
// and preshared key material.
func BuildPair(linkID string, sideA, sideB Side, subnet *net.IPNet, listenPort, mtu uint16, ka KeyAuthority) (model.LinkEndpoint, model.LinkEndpoint, error) {
	addrA, addrB, err := splitPointToPoint(subnet)
	if err != nil {
		return model.LinkEndpoint{}, model.LinkEndpoint{}, err
	}
	ones, _ := subnet.Mask.Size()

	if !sideA.Public && !sideB.Public {
		return model.LinkEndpoint{}, model.LinkEndpoint{}, &uvnerr.InvalidStaticGraph{Reason: "private_private_edge"}
	}

	aListens := decideListener(sideA, sideB)

	_, keyA, err := ka.IssueAsymmetric("link", linkID+":a")
	if err != nil {
		return model.LinkEndpoint{}, model.LinkEndpoint{}, err
	}
	_, keyB, err := ka.IssueAsymmetric("link", linkID+":b")
	if err != nil {
		return model.LinkEndpoint{}, model.LinkEndpoint{}, err
	}
	privA, err := ka.PrivateAsymmetric("link", linkID+":a")
	if err != nil {
		return model.LinkEndpoint{}, model.LinkEndpoint{}, err
	}
	privB, err := ka.PrivateAsymmetric("link", linkID+":b")
	if err != nil {
		return model.LinkEndpoint{}, model.LinkEndpoint{}, err
	}
	if _, err := ka.IssueSymmetric("preshared", linkID); err != nil {
		return model.LinkEndpoint{}, model.LinkEndpoint{}, err
	}
	psk, err := ka.Material("preshared", linkID)
	if err != nil {
		return model.LinkEndpoint{}, model.LinkEndpoint{}, err
	}

	ea := model.LinkEndpoint{
		InterfaceName: sideA.InterfaceName,
		LocalAddr:     fmt.Sprintf("%s/%d", addrA, ones),
		PeerAddr:      addrB.String(),
		PrivateKey:    privA,
		PeerPublic:    keyB,
		PresharedKey:  psk,
		MTU:           mtu,
		NAT:           !sideA.Public,
		Subnet:        subnet.String(),
	}
	eb := model.LinkEndpoint{
		InterfaceName: sideB.InterfaceName,
		LocalAddr:     fmt.Sprintf("%s/%d", addrB, ones),
		PeerAddr:      addrA.String(),
		PrivateKey:    privB,
		PeerPublic:    keyA,
		PresharedKey:  psk,
		MTU:           mtu,
		NAT:           !sideB.Public,
		Subnet:        subnet.String(),
	}

	if aListens {
		ea.ListenPort = listenPort
		eb.PeerEndpoint = net.JoinHostPort(sideA.Address, portString(listenPort))
	} else {
		eb.ListenPort = listenPort
		ea.PeerEndpoint = net.JoinHostPort(sideB.Address, portString(listenPort))
	}
	return ea, eb, nil
}

// decideListener reports whether sideA is the listener: the public side
// listens; if both are public, the side with the smaller Ordinal listens.
func decideListener(a, b Side) bool {
	if a.Public != b.Public {
		return a.Public
	}
	return a.Ordinal <= b.Ordinal
}

// splitPointToPoint returns the two usable addresses of a point-to-point
// subnet (/31 per RFC 3021, or /30), lower address first.
func splitPointToPoint(subnet *net.IPNet) (net.IP, net.IP, error) {
	ones, bits := subnet.Mask.Size()
	if bits != 32 {
		return nil, nil, fmt.Errorf("not an IPv4 subnet: %s", subnet)
	}
	ip4 := subnet.IP.To4()
	if ip4 == nil {
		return nil, nil, fmt.Errorf("not an IPv4 subnet: %s", subnet)
	}
	switch ones {
	case 31:
		lo := cloneIP(ip4)
		hi := cloneIP(ip4)
		hi[3]++
		return lo, hi, nil
	case 30:
		lo := cloneIP(ip4)
		lo[3]++
		hi := cloneIP(ip4)
		hi[3] += 2
		return lo, hi, nil
	default:
		return nil, nil, fmt.Errorf("point-to-point link requires /31 or /30, got /%d", ones)
	}
}

func cloneIP(ip net.IP) net.IP {
	out := make(net.IP, len(ip))
	copy(out, ip)
	return out
}

func portString(p uint16) string {
	return fmt.Sprintf("%d", p)
}
