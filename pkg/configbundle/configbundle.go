// Package configbundle implements C6, the agent-config renderer: for each
// non-excluded cell it assembles the link endpoints, allowed-LAN prefixes,
// peer router-ids, and timing profile the datapath collaborator needs, and
// serializes the result to the bit-level bundle contract.
//
// Bundles are built the way the teacher's node.CompositeBuilder assembles
// CompositeEntry{Table,Key,Fields} lists before a CONFIG_DB write: a flat,
// table-keyed structure accumulated entry-by-entry, then serialized once.
// Here the "device" being configured is a cell-agent and the "tables" are
// the sections of its config bundle rather than SONiC CONFIG_DB tables, but
// the accumulation discipline is identical.
package configbundle

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/uno-network/uno/pkg/model"
)

// Entry is one row of a bundle: a named section (table), a key identifying
// the specific item within that section, and its field values.
type Entry struct {
	Table  string
	Key    string
	Fields map[string]string
}

// Builder accumulates Entry rows for one cell's bundle, mirroring
// node.CompositeBuilder's AddEntry/AddEntries/Build shape.
type Builder struct {
	tables map[string]map[string]map[string]string
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{tables: make(map[string]map[string]map[string]string)}
}

// AddEntry records one row, merging fields into any existing row at
// (table, key) rather than overwriting it.
func (b *Builder) AddEntry(table, key string, fields map[string]string) *Builder {
	if b.tables[table] == nil {
		b.tables[table] = make(map[string]map[string]string)
	}
	if b.tables[table][key] == nil {
		b.tables[table][key] = make(map[string]string)
	}
	for k, v := range fields {
		b.tables[table][key][k] = v
	}
	return b
}

// AddEntries records every entry in entries.
func (b *Builder) AddEntries(entries []Entry) *Builder {
	for _, e := range entries {
		b.AddEntry(e.Table, e.Key, e.Fields)
	}
	return b
}

// Build returns the accumulated table map.
func (b *Builder) Build() map[string]map[string]map[string]string {
	return b.tables
}

// Bundle is the per-cell agent-config bundle, matching §6's bit-level
// contract: identity, the cell's own endpoints, particle/backbone
// endpoints, routing-daemon inputs, and the snapshot's content hash.
type Bundle struct {
	ConfigID          string                   `json:"config_id"`
	UVNName           string                   `json:"uvn_name"`
	CellID            uint32                   `json:"cell_id"`
	RootVPNEndpoint   WireEndpoint             `json:"root_vpn_endpoint"`
	RoutingEndpoint   WireEndpoint             `json:"routing_endpoint"`
	ParticleEndpoints []WireEndpoint           `json:"particle_endpoints"`
	BackboneEndpoints []WireEndpoint           `json:"backbone_endpoints"`
	AllowedLANs       []string                 `json:"allowed_lans"`
	PeerRouterIDs     []string                 `json:"peer_router_ids"`
	Timing            model.Timing             `json:"timing"`

	// Tables carries the same content in the teacher's flat, table-keyed
	// shape, for consumers that prefer scanning sections generically over
	// the typed fields above.
	Tables map[string]map[string]map[string]string `json:"tables"`
}

// WireEndpoint is LinkEndpoint with its key material base64-encoded, the
// wire representation §6 specifies for "opaque bytes" fields.
type WireEndpoint struct {
	InterfaceName string `json:"interface_name"`
	LocalAddr     string `json:"local_addr"`
	PeerAddr      string `json:"peer_addr"`
	ListenPort    uint16 `json:"listen_port,omitempty"`
	PeerEndpoint  string `json:"peer_endpoint,omitempty"`
	PrivateKey    string `json:"private_key"`
	PeerPublic    string `json:"peer_public"`
	PresharedKey  string `json:"preshared_key"`
	MTU           uint16 `json:"mtu"`
	NAT           bool   `json:"nat"`
}

func toWire(e model.LinkEndpoint) WireEndpoint {
	return WireEndpoint{
		InterfaceName: e.InterfaceName,
		LocalAddr:     e.LocalAddr,
		PeerAddr:      e.PeerAddr,
		ListenPort:    e.ListenPort,
		PeerEndpoint:  e.PeerEndpoint,
		PrivateKey:    base64.StdEncoding.EncodeToString(e.PrivateKey),
		PeerPublic:    base64.StdEncoding.EncodeToString(e.PeerPublic),
		PresharedKey:  base64.StdEncoding.EncodeToString(e.PresharedKey),
		MTU:           e.MTU,
		NAT:           e.NAT,
	}
}

func entryFields(e model.LinkEndpoint) map[string]string {
	w := toWire(e)
	return map[string]string{
		"interface_name": w.InterfaceName,
		"local_addr":     w.LocalAddr,
		"peer_addr":      w.PeerAddr,
		"listen_port":    fmt.Sprintf("%d", w.ListenPort),
		"peer_endpoint":  w.PeerEndpoint,
		"private_key":    w.PrivateKey,
		"peer_public":    w.PeerPublic,
		"preshared_key":  w.PresharedKey,
		"mtu":            fmt.Sprintf("%d", w.MTU),
		"nat":            fmt.Sprintf("%v", w.NAT),
	}
}

// Renderer implements registry.Renderer: it assembles one Bundle per
// non-excluded cell in cfg and returns each serialized to JSON.
type Renderer struct{}

// NewRenderer returns a stateless C6 renderer.
func NewRenderer() *Renderer { return &Renderer{} }

// Render builds and serializes every cell's bundle. It is a pure function
// of cfg: the same snapshot always produces the same bytes, which is what
// lets a redeploy that reproduces an unchanged config_id skip re-rendering
// entirely (registry.Redeploy's no-change short-circuit).
func (rr *Renderer) Render(cfg *model.RegistryConfig) (map[uint32][]byte, error) {
	out := make(map[uint32][]byte, len(cfg.Cells))
	for _, c := range cfg.Cells {
		bundle := rr.buildBundle(cfg, c)
		blob, err := json.Marshal(bundle)
		if err != nil {
			return nil, fmt.Errorf("rendering bundle for cell %d: %w", c.ID, err)
		}
		out[c.ID] = blob
	}
	return out, nil
}

func (rr *Renderer) buildBundle(cfg *model.RegistryConfig, c model.Cell) *Bundle {
	b := NewBuilder()

	b.AddEntry("IDENTITY", "uvn", map[string]string{"fingerprint": cfg.KeyFingerprints["uvn"]})
	b.AddEntry("IDENTITY", "cell", map[string]string{
		"id":          fmt.Sprintf("%d", c.ID),
		"name":        c.Name,
		"fingerprint": cfg.KeyFingerprints[fmt.Sprintf("cell:%d", c.ID)],
	})

	rootVPN := cfg.RootVPNEndpoints[c.ID]
	b.AddEntry("ROOT_VPN_ENDPOINT", "self", entryFields(rootVPN))

	routing := cfg.RoutingEndpoints[c.ID]
	b.AddEntry("ROUTING_ENDPOINT", "self", entryFields(routing))

	var particleEndpoints []WireEndpoint
	if c.IsPublic() {
		if base, ok := cfg.ParticleVPNBase[c.ID]; ok {
			b.AddEntry("PARTICLE_VPN_BASE", "self", entryFields(base))
		}
		particleIDs := make([]uint32, 0, len(cfg.ParticleEndpoints[c.ID]))
		for pid := range cfg.ParticleEndpoints[c.ID] {
			particleIDs = append(particleIDs, pid)
		}
		sort.Slice(particleIDs, func(i, j int) bool { return particleIDs[i] < particleIDs[j] })
		for _, pid := range particleIDs {
			ep := cfg.ParticleEndpoints[c.ID][pid]
			b.AddEntry("PARTICLE_ENDPOINT", fmt.Sprintf("%d", pid), entryFields(ep))
			particleEndpoints = append(particleEndpoints, toWire(ep))
		}
	}

	var backboneEndpoints []WireEndpoint
	var peerRouterIDs []string
	for _, link := range cfg.DeploymentGraph.LinksFor(c.ID) {
		peerID, mine := link.CellB, link.EndpointA
		if link.CellB == c.ID {
			peerID, mine = link.CellA, link.EndpointB
		}
		b.AddEntry("BACKBONE_ENDPOINT", fmt.Sprintf("%d", peerID), entryFields(mine))
		backboneEndpoints = append(backboneEndpoints, toWire(mine))
		peerRouterIDs = append(peerRouterIDs, mine.PeerAddr)
	}

	allowedLANs := append([]string(nil), c.AllowedLANs...)
	b.AddEntry("ROUTING_DAEMON", "local", map[string]string{
		"allowed_lans":    fmt.Sprintf("%v", allowedLANs),
		"peer_router_ids": fmt.Sprintf("%v", peerRouterIDs),
		"hello_interval_seconds":    fmt.Sprintf("%d", cfg.Settings.Timing.HelloIntervalSeconds),
		"dead_interval_seconds":     fmt.Sprintf("%d", cfg.Settings.Timing.DeadIntervalSeconds),
		"announce_interval_seconds": fmt.Sprintf("%d", cfg.Settings.Timing.AnnounceIntervalSeconds),
		"routing_hold_seconds":      fmt.Sprintf("%d", cfg.Settings.Timing.RoutingHoldSeconds),
	})

	b.AddEntry("META", "bundle", map[string]string{"config_id": cfg.ConfigID})

	return &Bundle{
		ConfigID:          cfg.ConfigID,
		UVNName:           cfg.UVNName,
		CellID:            c.ID,
		RootVPNEndpoint:   toWire(rootVPN),
		RoutingEndpoint:   toWire(routing),
		ParticleEndpoints: particleEndpoints,
		BackboneEndpoints: backboneEndpoints,
		AllowedLANs:       allowedLANs,
		PeerRouterIDs:     peerRouterIDs,
		Timing:            cfg.Settings.Timing,
		Tables:            b.Build(),
	}
}
