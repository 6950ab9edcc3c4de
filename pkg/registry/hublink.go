package registry

import (
	"fmt"
	"net"

	"github.com/uno-network/uno/pkg/model"
	"github.com/uno-network/uno/pkg/tunnel"
	"github.com/uno-network/uno/pkg/uvnerr"
)

// hubParty describes one side of a hub-and-spoke link (root-VPN or
// particles-VPN): unlike a backbone or routing link, C1 models these as two
// independent host offsets within one shared base network rather than a
// dedicated point-to-point /31, so tunnel.BuildPair's subnet splitter
// doesn't apply. buildHubEndpoints mirrors BuildPair's key-issuance and
// listener-selection logic directly against the two given addresses.
type hubParty struct {
	Addr          net.IP
	Public        bool
	Address       string // external host, required if Public
	InterfaceName string
	Ordinal       uint32 // smaller wins the listener tie; hub conventionally 0
}

// buildHubEndpoints issues fresh per-link keys for linkID and assembles the
// reciprocal LinkEndpoint pair for a hub-and-spoke link addressed within
// baseOnes-bit base network. The listener-selection rule is identical to
// tunnel.BuildPair's decideListener: the public side listens; if both are
// public, the smaller Ordinal listens — which is how §4.3's "role of
// listener fixed to registry/cell-agent" is realized without a separate
// code path (the hub conventionally takes Ordinal 0).
func buildHubEndpoints(linkID string, hub, spoke hubParty, baseOnes int, baseCIDR string, listenPort, mtu uint16, ka tunnel.KeyAuthority) (model.LinkEndpoint, model.LinkEndpoint, error) {
	if !hub.Public && !spoke.Public {
		return model.LinkEndpoint{}, model.LinkEndpoint{}, &uvnerr.InvalidStaticGraph{Reason: "private_private_edge"}
	}

	_, keyHub, err := ka.IssueAsymmetric("link", linkID+":a")
	if err != nil {
		return model.LinkEndpoint{}, model.LinkEndpoint{}, err
	}
	_, keySpoke, err := ka.IssueAsymmetric("link", linkID+":b")
	if err != nil {
		return model.LinkEndpoint{}, model.LinkEndpoint{}, err
	}
	privHub, err := ka.PrivateAsymmetric("link", linkID+":a")
	if err != nil {
		return model.LinkEndpoint{}, model.LinkEndpoint{}, err
	}
	privSpoke, err := ka.PrivateAsymmetric("link", linkID+":b")
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

	hubListens := hub.Public
	if hub.Public == spoke.Public {
		hubListens = hub.Ordinal <= spoke.Ordinal
	}

	hubEP := model.LinkEndpoint{
		InterfaceName: hub.InterfaceName,
		LocalAddr:     fmt.Sprintf("%s/%d", hub.Addr, baseOnes),
		PeerAddr:      spoke.Addr.String(),
		PrivateKey:    privHub,
		PeerPublic:    keySpoke,
		PresharedKey:  psk,
		MTU:           mtu,
		NAT:           !hub.Public,
		Subnet:        baseCIDR,
	}
	spokeEP := model.LinkEndpoint{
		InterfaceName: spoke.InterfaceName,
		LocalAddr:     fmt.Sprintf("%s/%d", spoke.Addr, baseOnes),
		PeerAddr:      hub.Addr.String(),
		PrivateKey:    privSpoke,
		PeerPublic:    keyHub,
		PresharedKey:  psk,
		MTU:           mtu,
		NAT:           !spoke.Public,
		Subnet:        baseCIDR,
	}

	if hubListens {
		hubEP.ListenPort = listenPort
		spokeEP.PeerEndpoint = net.JoinHostPort(hub.Address, portString(listenPort))
	} else {
		spokeEP.ListenPort = listenPort
		hubEP.PeerEndpoint = net.JoinHostPort(spoke.Address, portString(listenPort))
	}
	return hubEP, spokeEP, nil
}

func portString(p uint16) string {
	return fmt.Sprintf("%d", p)
}
