package registry

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/apparentlymart/go-cidr/cidr"

	"github.com/uno-network/uno/pkg/addressplan"
	"github.com/uno-network/uno/pkg/audit"
	"github.com/uno-network/uno/pkg/auth"
	"github.com/uno-network/uno/pkg/model"
	"github.com/uno-network/uno/pkg/strategy"
	"github.com/uno-network/uno/pkg/tunnel"
	"github.com/uno-network/uno/pkg/uvnerr"
)

// Renderer is C6, injected so redeploy() can emit the per-cell agent-config
// bundles described in §4.6 without this package importing pkg/configbundle
// directly (configbundle depends only on pkg/model).
type Renderer interface {
	Render(cfg *model.RegistryConfig) (map[uint32][]byte, error)
}

// Registry is C5. It holds no UVN state itself; every method loads the
// named UVN's Aggregate from Store under the writer lock, validates and
// mutates it, and writes it back before releasing the lock.
type Registry struct {
	store     Store
	authority Authority
	checker   *auth.Checker
	renderer  Renderer
	lockTTL   int
}

// New builds a Registry. renderer may be nil, in which case redeploy()
// still computes and persists the RegistryConfig snapshot but skips
// per-cell agent-config bundle rendering.
func New(store Store, authority Authority, renderer Renderer) *Registry {
	return &Registry{
		store:     store,
		authority: authority,
		checker:   auth.NewChecker(),
		renderer:  renderer,
		lockTTL:   30,
	}
}

func (r *Registry) newHolder() string {
	buf := make([]byte, 8)
	rand.Read(buf)
	return hex.EncodeToString(buf)
}

func uvnOwnerID(name string) string { return name }
func cellOwnerID(uvn string, id uint32) string {
	return fmt.Sprintf("%s:cell:%d", uvn, id)
}
func particleOwnerID(uvn string, id uint32) string {
	return fmt.Sprintf("%s:particle:%d", uvn, id)
}
func backboneLinkID(uvn string, a, b uint32, replica int) string {
	return fmt.Sprintf("%s:bb:%d-%d-%d", uvn, a, b, replica)
}
func rootVPNLinkID(uvn string, cellID uint32) string {
	return fmt.Sprintf("%s:rvpn:%d", uvn, cellID)
}
func routingLinkID(uvn string, cellID uint32) string {
	return fmt.Sprintf("%s:rt:%d", uvn, cellID)
}
func particleLinkID(uvn string, cellID, particleID uint32) string {
	return fmt.Sprintf("%s:pvpn:%d:%d", uvn, cellID, particleID)
}

func (r *Registry) logEvent(caller model.User, uvnName, op, entity string, changes []audit.Change, opErr error, start time.Time, configID string) {
	ev := audit.NewEvent(caller.Email, uvnName, op).
		WithEntity(entity).
		WithChanges(changes).
		WithDuration(time.Since(start))
	if configID != "" {
		ev = ev.WithConfigID(configID)
	}
	if opErr != nil {
		ev = ev.WithError(opErr)
	} else {
		ev = ev.WithSuccess()
	}
	audit.Log(ev)
}

// Create transitions Empty -> Draft for a new UVN: name, address := the
// UVN's own address (empty means the registry itself has no stable
// endpoint, a legal configuration); owner becomes the UVN's owning user.
func (r *Registry) Create(ctx context.Context, caller model.User, name, address string, owner uint32, settings model.Settings) error {
	start := time.Now()
	if err := r.checker.Check(caller, auth.PermUVNCreate, auth.NewContext(name, owner)); err != nil {
		return err
	}

	var opErr error
	acquired, lockErr := r.store.WithLock(ctx, name, r.newHolder(), r.lockTTL, func(ctx context.Context) error {
		_, exists, err := r.store.GetUVN(ctx, name)
		if err != nil {
			return err
		}
		if exists {
			return &uvnerr.NameTaken{Kind: "uvn", Name: name}
		}
		if _, _, err := r.authority.IssueAsymmetric("uvn", uvnOwnerID(name)); err != nil {
			return err
		}
		agg := &Aggregate{
			Name:      name,
			Address:   address,
			OwnerID:   owner,
			State:     StateDraft,
			Settings:  settings,
			Cells:     map[uint32]model.Cell{},
			Particles: map[uint32]model.Particle{},
		}
		return r.store.PutUVN(ctx, agg)
	})
	if lockErr != nil {
		opErr = lockErr
	} else if !acquired {
		opErr = &uvnerr.Conflict{}
	}
	r.logEvent(caller, name, "create", "", nil, opErr, start, "")
	return opErr
}

// DefineCell transitions Draft/Deployed -> Draft (§4.5: any mutating event
// on a Deployed UVN invalidates its deployment): registers a new cell,
// allocating its id and issuing its identity and root-VPN keys.
func (r *Registry) DefineCell(ctx context.Context, caller model.User, uvnName, name, address string, lans []string, owner uint32) (uint32, error) {
	start := time.Now()
	var newID uint32
	var opErr error

	acquired, lockErr := r.store.WithLock(ctx, uvnName, r.newHolder(), r.lockTTL, func(ctx context.Context) error {
		agg, ok, err := r.store.GetUVN(ctx, uvnName)
		if err != nil {
			return err
		}
		if !ok {
			return &uvnerr.NotFound{Kind: "uvn", Ref: uvnName}
		}
		if err := r.checker.Check(caller, auth.PermCellDefine, auth.NewContext(uvnName, agg.OwnerID)); err != nil {
			return err
		}
		if cellNameTaken(agg, name) {
			return &uvnerr.NameTaken{Kind: "cell", Name: name}
		}

		id, err := r.store.NextCellID(ctx, uvnName)
		if err != nil {
			return err
		}
		candidate := model.Cell{ID: id, Name: name, Address: address, AllowedLANs: lans, OwnerID: owner}
		trial := *agg
		trial.Cells = cloneCells(agg.Cells)
		trial.Cells[id] = candidate
		if err := checkInvariants(&trial); err != nil {
			return err
		}

		if _, _, err := r.authority.IssueAsymmetric("cell", cellOwnerID(uvnName, id)); err != nil {
			return err
		}
		rvpn := rootVPNLinkID(uvnName, id)
		if _, _, err := r.authority.IssueAsymmetric("link", rvpn+":a"); err != nil {
			return err
		}
		if _, _, err := r.authority.IssueAsymmetric("link", rvpn+":b"); err != nil {
			return err
		}
		if _, err := r.authority.IssueSymmetric("preshared", rvpn); err != nil {
			return err
		}

		agg.Cells = trial.Cells
		agg.State = StateDraft
		newID = id
		return r.store.PutUVN(ctx, agg)
	})
	if lockErr != nil {
		opErr = lockErr
	} else if !acquired {
		opErr = &uvnerr.Conflict{}
	}
	r.logEvent(caller, uvnName, "define_cell", fmt.Sprintf("cell:%d", newID), nil, opErr, start, "")
	return newID, opErr
}

func cloneCells(in map[uint32]model.Cell) map[uint32]model.Cell {
	out := make(map[uint32]model.Cell, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneParticles(in map[uint32]model.Particle) map[uint32]model.Particle {
	out := make(map[uint32]model.Particle, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}

// DefineParticle registers a new roaming client.
func (r *Registry) DefineParticle(ctx context.Context, caller model.User, uvnName, name string, owner uint32) (uint32, error) {
	start := time.Now()
	var newID uint32
	var opErr error

	acquired, lockErr := r.store.WithLock(ctx, uvnName, r.newHolder(), r.lockTTL, func(ctx context.Context) error {
		agg, ok, err := r.store.GetUVN(ctx, uvnName)
		if err != nil {
			return err
		}
		if !ok {
			return &uvnerr.NotFound{Kind: "uvn", Ref: uvnName}
		}
		if err := r.checker.Check(caller, auth.PermParticleDefine, auth.NewContext(uvnName, agg.OwnerID)); err != nil {
			return err
		}
		if particleNameTaken(agg, name) {
			return &uvnerr.NameTaken{Kind: "particle", Name: name}
		}
		id, err := r.store.NextParticleID(ctx, uvnName)
		if err != nil {
			return err
		}
		if _, _, err := r.authority.IssueAsymmetric("particle", particleOwnerID(uvnName, id)); err != nil {
			return err
		}
		agg.Particles = cloneParticles(agg.Particles)
		agg.Particles[id] = model.Particle{ID: id, Name: name, OwnerID: owner}
		agg.State = StateDraft
		newID = id
		return r.store.PutUVN(ctx, agg)
	})
	if lockErr != nil {
		opErr = lockErr
	} else if !acquired {
		opErr = &uvnerr.Conflict{}
	}
	r.logEvent(caller, uvnName, "define_particle", fmt.Sprintf("particle:%d", newID), nil, opErr, start, "")
	return newID, opErr
}

// DefineUser registers a new credentialed principal able to own cells,
// particles, or the UVN itself. credentialHash is a pre-hashed secret
// (bcrypt or equivalent); the registry never sees a plaintext password.
func (r *Registry) DefineUser(ctx context.Context, caller model.User, uvnName, email, displayName, realm string, credentialHash []byte) (uint32, error) {
	start := time.Now()
	var newID uint32
	var opErr error

	acquired, lockErr := r.store.WithLock(ctx, uvnName, r.newHolder(), r.lockTTL, func(ctx context.Context) error {
		agg, ok, err := r.store.GetUVN(ctx, uvnName)
		if err != nil {
			return err
		}
		if !ok {
			return &uvnerr.NotFound{Kind: "uvn", Ref: uvnName}
		}
		if err := r.checker.Check(caller, auth.PermUserManage, auth.NewContext(uvnName, agg.OwnerID)); err != nil {
			return err
		}
		existing, err := r.store.ListUsers(ctx, uvnName)
		if err != nil {
			return err
		}
		if userEmailTaken(existing, email) {
			return &uvnerr.NameTaken{Kind: "user", Name: email}
		}
		id, err := r.store.NextUserID(ctx, uvnName)
		if err != nil {
			return err
		}
		u := model.User{ID: id, Email: email, DisplayName: displayName, CredentialHash: credentialHash, Realm: realm}
		if err := r.store.PutUser(ctx, uvnName, u); err != nil {
			return err
		}
		agg.State = StateDraft
		newID = id
		return r.store.PutUVN(ctx, agg)
	})
	if lockErr != nil {
		opErr = lockErr
	} else if !acquired {
		opErr = &uvnerr.Conflict{}
	}
	r.logEvent(caller, uvnName, "define_user", fmt.Sprintf("user:%d", newID), nil, opErr, start, "")
	return newID, opErr
}

// ExcludeCell marks a cell excluded; its id is retained and never reused.
func (r *Registry) ExcludeCell(ctx context.Context, caller model.User, uvnName string, cellID uint32) error {
	start := time.Now()
	var opErr error

	acquired, lockErr := r.store.WithLock(ctx, uvnName, r.newHolder(), r.lockTTL, func(ctx context.Context) error {
		agg, ok, err := r.store.GetUVN(ctx, uvnName)
		if err != nil {
			return err
		}
		if !ok {
			return &uvnerr.NotFound{Kind: "uvn", Ref: uvnName}
		}
		c, ok := agg.Cells[cellID]
		if !ok {
			return &uvnerr.NotFound{Kind: "cell", Ref: fmt.Sprintf("%d", cellID)}
		}
		if err := r.checker.Check(caller, auth.PermCellExclude, auth.NewContext(uvnName, agg.OwnerID)); err != nil {
			return err
		}
		c.Excluded = true
		agg.Cells = cloneCells(agg.Cells)
		agg.Cells[cellID] = c
		agg.State = StateDraft
		return r.store.PutUVN(ctx, agg)
	})
	if lockErr != nil {
		opErr = lockErr
	} else if !acquired {
		opErr = &uvnerr.Conflict{}
	}
	r.logEvent(caller, uvnName, "exclude_cell", fmt.Sprintf("cell:%d", cellID), nil, opErr, start, "")
	return opErr
}

// RekeyScope names the identity-key owner a rekey() call targets.
type RekeyScope struct {
	Kind string // "uvn", "cell", "particle"
	ID   uint32 // ignored for "uvn"
}

// Rekey rotates the scoped identity keypair, retaining the dropped row for
// audit history (§4.2). UVN-scoped rekeys require UVN ownership; cell- and
// particle-scoped rekeys require ownership of that cell or particle instead
// (the UVN owner is checked only when the entity has no owner). A superuser
// may perform either.
func (r *Registry) Rekey(ctx context.Context, caller model.User, uvnName string, scope RekeyScope) error {
	start := time.Now()
	var opErr error

	acquired, lockErr := r.store.WithLock(ctx, uvnName, r.newHolder(), r.lockTTL, func(ctx context.Context) error {
		agg, ok, err := r.store.GetUVN(ctx, uvnName)
		if err != nil {
			return err
		}
		if !ok {
			return &uvnerr.NotFound{Kind: "uvn", Ref: uvnName}
		}

		permCtx := auth.NewContext(uvnName, agg.OwnerID)
		var kind, owner string
		switch scope.Kind {
		case "uvn":
			kind, owner = "uvn", uvnOwnerID(uvnName)
		case "cell":
			c, ok := agg.Cells[scope.ID]
			if !ok {
				return &uvnerr.NotFound{Kind: "cell", Ref: fmt.Sprintf("%d", scope.ID)}
			}
			permCtx = permCtx.WithEntityOwner(c.OwnerID)
			kind, owner = "cell", cellOwnerID(uvnName, scope.ID)
		case "particle":
			p, ok := agg.Particles[scope.ID]
			if !ok {
				return &uvnerr.NotFound{Kind: "particle", Ref: fmt.Sprintf("%d", scope.ID)}
			}
			permCtx = permCtx.WithEntityOwner(p.OwnerID)
			kind, owner = "particle", particleOwnerID(uvnName, scope.ID)
		default:
			return &uvnerr.NotFound{Kind: "rekey_scope", Ref: scope.Kind}
		}
		if err := r.checker.Check(caller, auth.PermRekey, permCtx); err != nil {
			return err
		}
		if _, _, err := r.authority.RotateAsymmetric(kind, owner); err != nil {
			return err
		}
		agg.State = StateDraft
		return r.store.PutUVN(ctx, agg)
	})
	if lockErr != nil {
		opErr = lockErr
	} else if !acquired {
		opErr = &uvnerr.Conflict{}
	}
	r.logEvent(caller, uvnName, "rekey", scope.Kind, nil, opErr, start, "")
	return opErr
}

// Get returns a read-only snapshot of the aggregate. Readers need no lock
// (§5): Store's Get path returns whatever snapshot is currently committed.
func (r *Registry) Get(ctx context.Context, uvnName string) (*Aggregate, error) {
	agg, ok, err := r.store.GetUVN(ctx, uvnName)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &uvnerr.NotFound{Kind: "uvn", Ref: uvnName}
	}
	return agg, nil
}

// Redeploy transitions Draft -> Deployed: runs C4 -> C1 -> C3 -> C6 and
// commits a new content-addressed RegistryConfig snapshot. If the UVN is
// still Deployed and the computed snapshot is byte-identical to the current
// one, no new snapshot is stored and noChange is true (§6's "null no-change
// marker").
func (r *Registry) Redeploy(ctx context.Context, caller model.User, uvnName string) (configID string, noChange bool, err error) {
	start := time.Now()
	var opErr error

	acquired, lockErr := r.store.WithLock(ctx, uvnName, r.newHolder(), r.lockTTL, func(ctx context.Context) error {
		agg, ok, err := r.store.GetUVN(ctx, uvnName)
		if err != nil {
			return err
		}
		if !ok {
			return &uvnerr.NotFound{Kind: "uvn", Ref: uvnName}
		}
		if err := r.checker.Check(caller, auth.PermRedeploy, auth.NewContext(uvnName, agg.OwnerID)); err != nil {
			return err
		}

		cfg, err := r.computeSnapshot(agg)
		if err != nil {
			return err
		}

		if cfg.ConfigID == agg.CurrentConfigID && agg.State == StateDeployed {
			noChange = true
			configID = cfg.ConfigID
			return nil
		}

		if err := r.store.PutSnapshot(ctx, uvnName, cfg); err != nil {
			return err
		}
		if r.renderer != nil {
			bundles, err := r.renderer.Render(cfg)
			if err != nil {
				return err
			}
			for cellID, blob := range bundles {
				if err := r.store.PutAgentConfig(ctx, uvnName, cellID, cfg.ConfigID, blob); err != nil {
					return err
				}
			}
		}

		agg.State = StateDeployed
		agg.CurrentConfigID = cfg.ConfigID
		configID = cfg.ConfigID
		return r.store.PutUVN(ctx, agg)
	})
	if lockErr != nil {
		opErr = lockErr
	} else if !acquired {
		opErr = &uvnerr.Conflict{}
	}
	r.logEvent(caller, uvnName, "redeploy", "", nil, opErr, start, configID)
	return configID, noChange, opErr
}

// computeSnapshot runs C4 -> C1 -> C3 over agg and assembles the content-
// addressed RegistryConfig. It is a pure function of agg's persisted state
// plus whatever key material the authority already holds; it does not
// mutate agg.
func (r *Registry) computeSnapshot(agg *Aggregate) (*model.RegistryConfig, error) {
	uvn := agg.UVN()
	if !uvn.Deployable() {
		return nil, &uvnerr.NotDeployable{}
	}

	nonExcluded := uvn.NonExcludedCells()
	cellByID := make(map[uint32]model.Cell, len(nonExcluded))
	for _, c := range nonExcluded {
		cellByID[c.ID] = c
	}

	edges, err := strategy.Plan(agg.cellSlice(), agg.Settings)
	if err != nil {
		return nil, err
	}
	linkOrdinals := make([]addressplan.LinkOrdinal, len(edges))
	for i, e := range edges {
		linkOrdinals[i] = addressplan.LinkOrdinal{CellA: e.CellA, CellB: e.CellB, ReplicaIndex: e.ReplicaIndex}
	}

	plan, err := addressplan.Allocate(agg.Settings, agg.cellSlice(), linkOrdinals)
	if err != nil {
		return nil, err
	}

	ka := &idempotentAuthority{authority: r.authority}

	cfg := &model.RegistryConfig{
		UVNName:           agg.Name,
		Settings:          agg.Settings,
		Cells:             nonExcluded,
		Particles:         uvn.NonExcludedParticles(),
		RootVPNEndpoints:  map[uint32]model.LinkEndpoint{},
		RoutingEndpoints:  map[uint32]model.LinkEndpoint{},
		ParticleVPNBase:   map[uint32]model.LinkEndpoint{},
		ParticleEndpoints: map[uint32]map[uint32]model.LinkEndpoint{},
		KeyFingerprints:   map[string]string{},
	}

	if err := r.buildBackboneLinks(agg, linkOrdinals, edges, plan, cellByID, ka, cfg); err != nil {
		return nil, err
	}
	if err := r.buildRootVPN(agg, nonExcluded, plan, ka, cfg); err != nil {
		return nil, err
	}
	if err := r.buildRouting(agg, nonExcluded, plan, ka, cfg); err != nil {
		return nil, err
	}
	if err := r.buildParticleVPN(agg, nonExcluded, uvn.NonExcludedParticles(), plan, ka, cfg); err != nil {
		return nil, err
	}
	if err := r.collectFingerprints(agg, nonExcluded, uvn.NonExcludedParticles(), cfg); err != nil {
		return nil, err
	}

	configID, err := contentAddress(cfg)
	if err != nil {
		return nil, err
	}
	cfg.ConfigID = configID
	return cfg, nil
}

func (r *Registry) buildBackboneLinks(agg *Aggregate, linkOrdinals []addressplan.LinkOrdinal, edges []strategy.Edge, plan *addressplan.Plan, cellByID map[uint32]model.Cell, ka tunnel.KeyAuthority, cfg *model.RegistryConfig) error {
	var graph model.DeploymentGraph
	for _, e := range edges {
		a, b := e.CellA, e.CellB
		if a > b {
			a, b = b, a
		}
		ord := addressplan.LinkOrdinal{CellA: a, CellB: b, ReplicaIndex: e.ReplicaIndex}
		rank := addressplan.LinkRank(linkOrdinals, ord)
		if rank < 0 {
			return fmt.Errorf("internal error: backbone link %d-%d/%d not found in ordinal set", a, b, e.ReplicaIndex)
		}
		subnet := plan.BackboneSubnet[rank]
		port := plan.BackbonePort[rank]

		cellA, cellB := cellByID[a], cellByID[b]
		sideA := tunnel.Side{OwnerKey: fmt.Sprintf("cell:%d", a), Ordinal: a, Public: cellA.IsPublic(), Address: cellA.Address, InterfaceName: fmt.Sprintf("bb%d", rank)}
		sideB := tunnel.Side{OwnerKey: fmt.Sprintf("cell:%d", b), Ordinal: b, Public: cellB.IsPublic(), Address: cellB.Address, InterfaceName: fmt.Sprintf("bb%d", rank)}

		linkID := backboneLinkID(agg.Name, a, b, e.ReplicaIndex)
		ea, eb, err := tunnel.BuildPair(linkID, sideA, sideB, subnet, port, agg.Settings.MTU, ka)
		if err != nil {
			return err
		}
		graph.Links = append(graph.Links, model.Link{CellA: a, CellB: b, ReplicaIndex: e.ReplicaIndex, EndpointA: ea, EndpointB: eb})
	}
	cfg.DeploymentGraph = graph
	return nil
}

func (r *Registry) buildRootVPN(agg *Aggregate, cells []model.Cell, plan *addressplan.Plan, ka tunnel.KeyAuthority, cfg *model.RegistryConfig) error {
	_, base, err := net.ParseCIDR(agg.Settings.RootVPNBase)
	if err != nil {
		return &uvnerr.CapacityExceeded{Base: "root_vpn"}
	}
	ones, _ := base.Mask.Size()

	for _, c := range cells {
		hub := hubParty{Addr: plan.RegistryRootVPNAddr, Public: true, Address: agg.Address, InterfaceName: "uvn0", Ordinal: 0}
		spoke := hubParty{Addr: plan.CellRootVPNAddr[c.ID], Public: c.IsPublic(), Address: c.Address, InterfaceName: fmt.Sprintf("rv%d", c.ID), Ordinal: c.ID + 1}
		linkID := rootVPNLinkID(agg.Name, c.ID)
		_, spokeEP, err := buildHubEndpoints(linkID, hub, spoke, ones, agg.Settings.RootVPNBase, agg.Settings.RootVPNPort, agg.Settings.MTU, ka)
		if err != nil {
			return err
		}
		cfg.RootVPNEndpoints[c.ID] = spokeEP
	}
	return nil
}

func (r *Registry) buildRouting(agg *Aggregate, cells []model.Cell, plan *addressplan.Plan, ka tunnel.KeyAuthority, cfg *model.RegistryConfig) error {
	for _, c := range cells {
		subnet, ok := plan.RoutingSubnet[c.ID]
		if !ok {
			continue
		}
		cellSide := tunnel.Side{OwnerKey: fmt.Sprintf("cell:%d", c.ID), Ordinal: c.ID + 1, Public: c.IsPublic(), Address: c.Address, InterfaceName: fmt.Sprintf("rt%d", c.ID)}
		registrySide := tunnel.Side{OwnerKey: "uvn:" + agg.Name, Ordinal: 0, Public: true, Address: agg.Address, InterfaceName: "rt0"}
		linkID := routingLinkID(agg.Name, c.ID)
		ea, _, err := tunnel.BuildPair(linkID, cellSide, registrySide, subnet, agg.Settings.RoutingPort, agg.Settings.MTU, ka)
		if err != nil {
			return err
		}
		cfg.RoutingEndpoints[c.ID] = ea
	}
	return nil
}

func (r *Registry) buildParticleVPN(agg *Aggregate, cells []model.Cell, particles []model.Particle, plan *addressplan.Plan, ka tunnel.KeyAuthority, cfg *model.RegistryConfig) error {
	for _, c := range cells {
		block, ok := plan.ParticlesBlock[c.ID]
		if !ok {
			continue
		}
		cellAddr, err := cidr.Host(block, 1)
		if err != nil {
			return &uvnerr.CapacityExceeded{Base: "particles_vpn"}
		}
		cfg.ParticleVPNBase[c.ID] = model.LinkEndpoint{
			InterfaceName: fmt.Sprintf("pv%d", c.ID),
			LocalAddr:     fmt.Sprintf("%s/%d", cellAddr, plan.ParticlesBlockLen),
			MTU:           agg.Settings.MTU,
			Subnet:        block.String(),
			ListenPort:    agg.Settings.ParticlesPortBase + uint16(c.ID),
		}

		perParticle := make(map[uint32]model.LinkEndpoint, len(particles))
		for _, p := range particles {
			particleAddr, err := cidr.Host(block, int(p.ID)+1)
			if err != nil {
				return &uvnerr.CapacityExceeded{Base: "particles_vpn"}
			}
			hub := hubParty{Addr: cellAddr, Public: true, Address: c.Address, InterfaceName: fmt.Sprintf("pv%d", c.ID), Ordinal: 0}
			spoke := hubParty{Addr: particleAddr, Public: false, InterfaceName: fmt.Sprintf("pv%d-p%d", c.ID, p.ID), Ordinal: p.ID + 1}
			linkID := particleLinkID(agg.Name, c.ID, p.ID)
			hubEP, _, err := buildHubEndpoints(linkID, hub, spoke, plan.ParticlesBlockLen, block.String(), agg.Settings.ParticlesPortBase+uint16(c.ID), agg.Settings.MTU, ka)
			if err != nil {
				return err
			}
			perParticle[p.ID] = hubEP
		}
		cfg.ParticleEndpoints[c.ID] = perParticle
	}
	return nil
}

func (r *Registry) collectFingerprints(agg *Aggregate, cells []model.Cell, particles []model.Particle, cfg *model.RegistryConfig) error {
	fp, err := r.authority.FingerprintAsymmetric("uvn", uvnOwnerID(agg.Name))
	if err != nil {
		return err
	}
	cfg.KeyFingerprints["uvn"] = fp

	for _, c := range cells {
		fp, err := r.authority.FingerprintAsymmetric("cell", cellOwnerID(agg.Name, c.ID))
		if err != nil {
			return err
		}
		cfg.KeyFingerprints[fmt.Sprintf("cell:%d", c.ID)] = fp
	}
	for _, p := range particles {
		fp, err := r.authority.FingerprintAsymmetric("particle", particleOwnerID(agg.Name, p.ID))
		if err != nil {
			return err
		}
		cfg.KeyFingerprints[fmt.Sprintf("particle:%d", p.ID)] = fp
	}
	return nil
}

// contentAddress computes the 64-hex SHA-256 digest over cfg's canonical
// JSON serialization, with ConfigID itself held empty so the digest never
// depends on its own value.
func contentAddress(cfg *model.RegistryConfig) (string, error) {
	cfg.ConfigID = ""
	blob, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:]), nil
}
