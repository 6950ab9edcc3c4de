package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/uno-network/uno/pkg/keyauthority"
	"github.com/uno-network/uno/pkg/model"
	"github.com/uno-network/uno/pkg/uvnerr"
)

// fakeKeyStore is a minimal in-memory keyauthority.Store, mirroring the
// memStore fixture pkg/keyauthority's own tests use.
type fakeKeyStore struct {
	asym    map[string]model.AsymmetricKey
	sym     map[string]model.SymmetricKey
	counter uint64
}

func newFakeKeyStore() *fakeKeyStore {
	return &fakeKeyStore{asym: map[string]model.AsymmetricKey{}, sym: map[string]model.SymmetricKey{}}
}

func (f *fakeKeyStore) GetAsymmetric(kind, owner string) (model.AsymmetricKey, bool, error) {
	row, ok := f.asym[kind+":"+owner]
	if !ok || row.Dropped {
		return model.AsymmetricKey{}, false, nil
	}
	return row, true, nil
}

func (f *fakeKeyStore) PutAsymmetric(row model.AsymmetricKey) error {
	if row.Dropped {
		delete(f.asym, row.Kind+":"+row.OwnerID)
		return nil
	}
	f.asym[row.Kind+":"+row.OwnerID] = row
	return nil
}

func (f *fakeKeyStore) GetSymmetric(kind, owner string) (model.SymmetricKey, bool, error) {
	row, ok := f.sym[kind+":"+owner]
	if !ok || row.Dropped {
		return model.SymmetricKey{}, false, nil
	}
	return row, true, nil
}

func (f *fakeKeyStore) PutSymmetric(row model.SymmetricKey) error {
	if row.Dropped {
		delete(f.sym, row.Kind+":"+row.OwnerID)
		return nil
	}
	f.sym[row.Kind+":"+row.OwnerID] = row
	return nil
}

func (f *fakeKeyStore) NextSurrogateID() (uint64, error) {
	f.counter++
	return f.counter, nil
}

func newTestAuthority(t *testing.T) *keyauthority.Authority {
	t.Helper()
	var key [32]byte
	a, err := keyauthority.New(newFakeKeyStore(), key)
	if err != nil {
		t.Fatalf("keyauthority.New: %v", err)
	}
	return a
}

// fakeStore is an in-memory registry.Store. WithLock never contends: tests
// run single-threaded, so it just invokes fn directly.
type fakeStore struct {
	uvns      map[string]*Aggregate
	users     map[string][]model.User
	snapshots map[string]*model.RegistryConfig
	configs   map[string][]byte
	counters  map[string]uint32
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		uvns:      map[string]*Aggregate{},
		users:     map[string][]model.User{},
		snapshots: map[string]*model.RegistryConfig{},
		configs:   map[string][]byte{},
		counters:  map[string]uint32{},
	}
}

func (s *fakeStore) GetUVN(ctx context.Context, name string) (*Aggregate, bool, error) {
	agg, ok := s.uvns[name]
	if !ok {
		return nil, false, nil
	}
	cp := *agg
	cp.Cells = cloneCells(agg.Cells)
	cp.Particles = cloneParticles(agg.Particles)
	return &cp, true, nil
}

func (s *fakeStore) PutUVN(ctx context.Context, agg *Aggregate) error {
	cp := *agg
	cp.Cells = cloneCells(agg.Cells)
	cp.Particles = cloneParticles(agg.Particles)
	s.uvns[agg.Name] = &cp
	return nil
}

func (s *fakeStore) GetUser(ctx context.Context, uvnName string, id uint32) (model.User, bool, error) {
	for _, u := range s.users[uvnName] {
		if u.ID == id {
			return u, true, nil
		}
	}
	return model.User{}, false, nil
}

func (s *fakeStore) PutUser(ctx context.Context, uvnName string, u model.User) error {
	s.users[uvnName] = append(s.users[uvnName], u)
	return nil
}

func (s *fakeStore) ListUsers(ctx context.Context, uvnName string) ([]model.User, error) {
	return s.users[uvnName], nil
}

func (s *fakeStore) nextID(counter string) uint32 {
	s.counters[counter]++
	return s.counters[counter]
}

func (s *fakeStore) NextCellID(ctx context.Context, uvnName string) (uint32, error) {
	return s.nextID("cell:" + uvnName), nil
}

func (s *fakeStore) NextParticleID(ctx context.Context, uvnName string) (uint32, error) {
	return s.nextID("particle:" + uvnName), nil
}

func (s *fakeStore) NextUserID(ctx context.Context, uvnName string) (uint32, error) {
	return s.nextID("user:" + uvnName), nil
}

func (s *fakeStore) PutSnapshot(ctx context.Context, uvnName string, cfg *model.RegistryConfig) error {
	s.snapshots[uvnName+":"+cfg.ConfigID] = cfg
	return nil
}

func (s *fakeStore) GetSnapshot(ctx context.Context, uvnName, configID string) (*model.RegistryConfig, bool, error) {
	cfg, ok := s.snapshots[uvnName+":"+configID]
	return cfg, ok, nil
}

func (s *fakeStore) PutAgentConfig(ctx context.Context, uvnName string, cellID uint32, configID string, blob []byte) error {
	s.configs[uvnName+":"+configID+":"+string(rune(cellID))] = blob
	return nil
}

func (s *fakeStore) WithLock(ctx context.Context, uvnName, holder string, ttlSeconds int, fn func(ctx context.Context) error) (bool, error) {
	return true, fn(ctx)
}

func testSettings() model.Settings {
	return model.Settings{
		RootVPNBase:       "10.0.0.0/24",
		ParticlesVPNBase:  "10.1.0.0/16",
		BackboneBase:      "10.2.0.0/24",
		RoutingBase:       "10.3.0.0/24",
		BackbonePortBase:  63550,
		RootVPNPort:       63540,
		RoutingPort:       63545,
		ParticlesPortBase: 63560,
		MTU:               1420,
		MaxParticles:      10,
		DeploymentStrategy: model.StrategyCircular,
	}
}

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	return New(newFakeStore(), newTestAuthority(t), nil)
}

func superuser() model.User { return model.User{ID: 1, Email: "root@example.com", Superuser: true} }

func TestCreateAndGet(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()
	if err := r.Create(ctx, superuser(), "u1", "uvn.example:9000", 1, testSettings()); err != nil {
		t.Fatalf("Create: %v", err)
	}
	agg, err := r.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if agg.State != StateDraft {
		t.Errorf("state = %s, want draft", agg.State)
	}
}

func TestCreateNameTaken(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()
	r.Create(ctx, superuser(), "u1", "", 1, testSettings())
	err := r.Create(ctx, superuser(), "u1", "", 1, testSettings())
	var taken *uvnerr.NameTaken
	if !errors.As(err, &taken) {
		t.Fatalf("expected NameTaken, got %v", err)
	}
}

func TestCreatePermissionDenied(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()
	caller := model.User{ID: 2}
	err := r.Create(ctx, caller, "u1", "", 99, testSettings())
	if err == nil {
		t.Fatal("expected permission error")
	}
	if !errors.Is(err, uvnerr.ErrPermissionDenied) {
		t.Errorf("error = %v, want ErrPermissionDenied", err)
	}
}

func TestDefineCellAssignsIDsDensely(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()
	r.Create(ctx, superuser(), "u1", "", 1, testSettings())

	idA, err := r.DefineCell(ctx, superuser(), "u1", "a", "a.example:1", []string{"192.168.1.0/24"}, 1)
	if err != nil {
		t.Fatalf("DefineCell a: %v", err)
	}
	idB, err := r.DefineCell(ctx, superuser(), "u1", "b", "", []string{"192.168.2.0/24"}, 1)
	if err != nil {
		t.Fatalf("DefineCell b: %v", err)
	}
	if idA != 1 || idB != 2 {
		t.Errorf("ids = %d, %d, want 1, 2", idA, idB)
	}
}

func TestDefineCellLANOverlapRejected(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()
	r.Create(ctx, superuser(), "u1", "", 1, testSettings())
	r.DefineCell(ctx, superuser(), "u1", "a", "a.example:1", []string{"192.168.1.0/24"}, 1)
	_, err := r.DefineCell(ctx, superuser(), "u1", "b", "", []string{"192.168.1.128/25"}, 1)
	var overlap *uvnerr.LANOverlap
	if !errors.As(err, &overlap) {
		t.Fatalf("expected LANOverlap, got %v", err)
	}
}

func TestDefineCellReservedOverlapRejected(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()
	r.Create(ctx, superuser(), "u1", "", 1, testSettings())
	_, err := r.DefineCell(ctx, superuser(), "u1", "a", "a.example:1", []string{"10.0.0.0/28"}, 1)
	var overlap *uvnerr.ReservedNetworkOverlap
	if !errors.As(err, &overlap) {
		t.Fatalf("expected ReservedNetworkOverlap, got %v", err)
	}
}

// TestRedeployMinimumDeployable is scenario S1: one public cell, one
// private cell, circular strategy.
func TestRedeployMinimumDeployable(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()
	r.Create(ctx, superuser(), "u1", "", 1, testSettings())
	r.DefineCell(ctx, superuser(), "u1", "a", "a.example:7000", []string{"192.168.1.0/24"}, 1)
	r.DefineCell(ctx, superuser(), "u1", "b", "", []string{"192.168.2.0/24"}, 1)

	configID, noChange, err := r.Redeploy(ctx, superuser(), "u1")
	if err != nil {
		t.Fatalf("Redeploy: %v", err)
	}
	if noChange {
		t.Error("expected a fresh deployment, got no-change")
	}
	if len(configID) != 64 {
		t.Errorf("configID length = %d, want 64", len(configID))
	}

	agg, _ := r.Get(ctx, "u1")
	if agg.State != StateDeployed {
		t.Errorf("state = %s, want deployed", agg.State)
	}
	if agg.CurrentConfigID != configID {
		t.Error("aggregate's current config id doesn't match returned id")
	}
}

func TestRedeployReciprocity(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()
	r.Create(ctx, superuser(), "u1", "", 1, testSettings())
	r.DefineCell(ctx, superuser(), "u1", "a", "a.example:7000", []string{"192.168.1.0/24"}, 1)
	r.DefineCell(ctx, superuser(), "u1", "b", "", []string{"192.168.2.0/24"}, 1)

	agg, err := r.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	cfg, err := r.computeSnapshot(agg)
	if err != nil {
		t.Fatalf("computeSnapshot: %v", err)
	}
	if len(cfg.DeploymentGraph.Links) != 1 {
		t.Fatalf("links = %d, want 1", len(cfg.DeploymentGraph.Links))
	}
	link := cfg.DeploymentGraph.Links[0]
	ea, eb := link.EndpointA, link.EndpointB
	if ea.LocalAddr == "" || eb.LocalAddr == "" {
		t.Fatal("endpoints missing local address")
	}
	if extractIP(ea.LocalAddr) != eb.PeerAddr || extractIP(eb.LocalAddr) != ea.PeerAddr {
		t.Errorf("endpoints not reciprocal: ea=%+v eb=%+v", ea, eb)
	}
	if string(ea.PresharedKey) != string(eb.PresharedKey) {
		t.Error("endpoints don't share a preshared key")
	}
}

func extractIP(cidrAddr string) string {
	for i, c := range cidrAddr {
		if c == '/' {
			return cidrAddr[:i]
		}
	}
	return cidrAddr
}

func TestRedeployNotDeployable(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()
	r.Create(ctx, superuser(), "u1", "", 1, testSettings())
	r.DefineCell(ctx, superuser(), "u1", "a", "", []string{"192.168.1.0/24"}, 1)
	_, _, err := r.Redeploy(ctx, superuser(), "u1")
	var notDeployable *uvnerr.NotDeployable
	if !errors.As(err, &notDeployable) {
		t.Fatalf("expected NotDeployable, got %v", err)
	}
}

func TestRedeployIdempotentNoChange(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()
	r.Create(ctx, superuser(), "u1", "", 1, testSettings())
	r.DefineCell(ctx, superuser(), "u1", "a", "a.example:7000", []string{"192.168.1.0/24"}, 1)
	r.DefineCell(ctx, superuser(), "u1", "b", "", []string{"192.168.2.0/24"}, 1)

	first, _, err := r.Redeploy(ctx, superuser(), "u1")
	if err != nil {
		t.Fatalf("first Redeploy: %v", err)
	}
	second, noChange, err := r.Redeploy(ctx, superuser(), "u1")
	if err != nil {
		t.Fatalf("second Redeploy: %v", err)
	}
	if !noChange {
		t.Error("expected no-change on repeated redeploy with no mutations")
	}
	if first != second {
		t.Errorf("config id changed across no-op redeploy: %s -> %s", first, second)
	}
}

func TestExcludeCellTriggersRedraft(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()
	r.Create(ctx, superuser(), "u1", "", 1, testSettings())
	r.DefineCell(ctx, superuser(), "u1", "a", "a.example:7000", []string{"192.168.1.0/24"}, 1)
	idB, _ := r.DefineCell(ctx, superuser(), "u1", "b", "", []string{"192.168.2.0/24"}, 1)
	r.Redeploy(ctx, superuser(), "u1")

	if err := r.ExcludeCell(ctx, superuser(), "u1", idB); err != nil {
		t.Fatalf("ExcludeCell: %v", err)
	}
	agg, _ := r.Get(ctx, "u1")
	if agg.State != StateDraft {
		t.Errorf("state = %s, want draft after mutation", agg.State)
	}
	if !agg.Cells[idB].Excluded {
		t.Error("cell not marked excluded")
	}
	if _, ok := agg.Cells[idB]; !ok {
		t.Error("excluded cell's id was removed, want retained")
	}
}

func TestRekeyUVNIdentity(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()
	r.Create(ctx, superuser(), "u1", "", 1, testSettings())

	fp1, err := r.authority.FingerprintAsymmetric("uvn", uvnOwnerID("u1"))
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	if err := r.Rekey(ctx, superuser(), "u1", RekeyScope{Kind: "uvn"}); err != nil {
		t.Fatalf("Rekey: %v", err)
	}
	fp2, err := r.authority.FingerprintAsymmetric("uvn", uvnOwnerID("u1"))
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	if fp1 == fp2 {
		t.Error("fingerprint unchanged after rekey")
	}
}

func TestRekeyEntityOwnerAllowed(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()
	owner := model.User{ID: 5, Email: "cellowner@example.com"}
	r.Create(ctx, superuser(), "u1", "", 1, testSettings())
	cellID, err := r.DefineCell(ctx, superuser(), "u1", "a", "a.example:1", []string{"192.168.1.0/24"}, owner.ID)
	if err != nil {
		t.Fatalf("DefineCell: %v", err)
	}
	if err := r.Rekey(ctx, owner, "u1", RekeyScope{Kind: "cell", ID: cellID}); err != nil {
		t.Fatalf("Rekey by entity owner: %v", err)
	}
}

func TestRekeyNonOwnerDenied(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()
	stranger := model.User{ID: 99, Email: "stranger@example.com"}
	r.Create(ctx, superuser(), "u1", "", 1, testSettings())
	cellID, _ := r.DefineCell(ctx, superuser(), "u1", "a", "a.example:1", []string{"192.168.1.0/24"}, 5)
	err := r.Rekey(ctx, stranger, "u1", RekeyScope{Kind: "cell", ID: cellID})
	if !errors.Is(err, uvnerr.ErrPermissionDenied) {
		t.Errorf("expected permission denied, got %v", err)
	}
}
