package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/uno-network/uno/pkg/keyauthority"
	"github.com/uno-network/uno/pkg/model"
	"github.com/uno-network/uno/pkg/registry"
)

const sampleYAML = `
name: acme
owner_id: 9
settings:
  root_vpn_base: 10.0.0.0/24
  particles_vpn_base: 10.1.0.0/16
  backbone_base: 10.2.0.0/24
  routing_base: 10.3.0.0/24
  backbone_port_base: 63550
  root_vpn_port: 63540
  routing_port: 63545
  particles_port_base: 63560
  mtu: 1420
  max_particles: 10
  deployment_strategy: circular
users:
  - email: owner@acme.example
    display_name: Owner
    password: hunter22
cells:
  - name: hq
    address: hq.acme.example:7000
    allowed_lans: ["192.168.1.0/24"]
  - name: branch
    allowed_lans: ["192.168.2.0/24"]
    owner: owner@acme.example
particles:
  - name: laptop
    owner: owner@acme.example
`

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
	f.sym[row.Kind+":"+row.OwnerID] = row
	return nil
}

func (f *fakeKeyStore) NextSurrogateID() (uint64, error) {
	f.counter++
	return f.counter, nil
}

type fakeRegistryStore struct {
	uvns      map[string]*registry.Aggregate
	users     map[string][]model.User
	snapshots map[string]*model.RegistryConfig
	counters  map[string]uint32
}

func newFakeRegistryStore() *fakeRegistryStore {
	return &fakeRegistryStore{
		uvns:      map[string]*registry.Aggregate{},
		users:     map[string][]model.User{},
		snapshots: map[string]*model.RegistryConfig{},
		counters:  map[string]uint32{},
	}
}

func (s *fakeRegistryStore) GetUVN(ctx context.Context, name string) (*registry.Aggregate, bool, error) {
	agg, ok := s.uvns[name]
	if !ok {
		return nil, false, nil
	}
	cp := *agg
	return &cp, true, nil
}

func (s *fakeRegistryStore) PutUVN(ctx context.Context, agg *registry.Aggregate) error {
	cp := *agg
	s.uvns[agg.Name] = &cp
	return nil
}

func (s *fakeRegistryStore) GetUser(ctx context.Context, uvnName string, id uint32) (model.User, bool, error) {
	for _, u := range s.users[uvnName] {
		if u.ID == id {
			return u, true, nil
		}
	}
	return model.User{}, false, nil
}

func (s *fakeRegistryStore) PutUser(ctx context.Context, uvnName string, u model.User) error {
	s.users[uvnName] = append(s.users[uvnName], u)
	return nil
}

func (s *fakeRegistryStore) ListUsers(ctx context.Context, uvnName string) ([]model.User, error) {
	return s.users[uvnName], nil
}

func (s *fakeRegistryStore) nextID(counter string) uint32 {
	s.counters[counter]++
	return s.counters[counter]
}

func (s *fakeRegistryStore) NextCellID(ctx context.Context, uvnName string) (uint32, error) {
	return s.nextID("cell:" + uvnName), nil
}

func (s *fakeRegistryStore) NextParticleID(ctx context.Context, uvnName string) (uint32, error) {
	return s.nextID("particle:" + uvnName), nil
}

func (s *fakeRegistryStore) NextUserID(ctx context.Context, uvnName string) (uint32, error) {
	return s.nextID("user:" + uvnName), nil
}

func (s *fakeRegistryStore) PutSnapshot(ctx context.Context, uvnName string, cfg *model.RegistryConfig) error {
	s.snapshots[uvnName+":"+cfg.ConfigID] = cfg
	return nil
}

func (s *fakeRegistryStore) GetSnapshot(ctx context.Context, uvnName, configID string) (*model.RegistryConfig, bool, error) {
	cfg, ok := s.snapshots[uvnName+":"+configID]
	return cfg, ok, nil
}

func (s *fakeRegistryStore) PutAgentConfig(ctx context.Context, uvnName string, cellID uint32, configID string, blob []byte) error {
	return nil
}

func (s *fakeRegistryStore) WithLock(ctx context.Context, uvnName, holder string, ttlSeconds int, fn func(ctx context.Context) error) (bool, error) {
	return true, fn(ctx)
}

func superuser() model.User { return model.User{ID: 1, Email: "root@example.com", Superuser: true} }

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	var key [32]byte
	auth, err := keyauthority.New(newFakeKeyStore(), key)
	if err != nil {
		t.Fatalf("keyauthority.New: %v", err)
	}
	return registry.New(newFakeRegistryStore(), auth, nil)
}

func TestLoadParsesSampleDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "acme.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	spec, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if spec.Name != "acme" || spec.OwnerID != 9 {
		t.Errorf("spec identity wrong: %+v", spec)
	}
	if len(spec.Cells) != 2 || len(spec.Users) != 1 || len(spec.Particles) != 1 {
		t.Errorf("spec counts wrong: %+v", spec)
	}
	if spec.Settings.RootVPNBase != "10.0.0.0/24" {
		t.Errorf("settings not decoded: %+v", spec.Settings)
	}
}

func TestLoadRejectsUndefinedOwnerReference(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	bad := sampleYAML + "\n  - name: orphan\n    owner: nobody@acme.example\n"
	if err := os.WriteFile(path, []byte(bad), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for undefined owner reference")
	}
}

func TestApplyReplaysDocumentAgainstRegistry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "acme.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	spec, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	r := testRegistry(t)
	ctx := context.Background()
	if err := Apply(ctx, r, superuser(), spec); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	agg, err := r.Get(ctx, "acme")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(agg.Cells) != 2 {
		t.Fatalf("cells = %d, want 2", len(agg.Cells))
	}
	if len(agg.Particles) != 1 {
		t.Fatalf("particles = %d, want 1", len(agg.Particles))
	}

	var branchOwner uint32
	for _, c := range agg.Cells {
		if c.Name == "branch" {
			branchOwner = c.OwnerID
		}
	}
	if branchOwner == 0 || branchOwner == spec.OwnerID {
		t.Errorf("branch cell owner = %d, want the bootstrapped user's id (not the uvn owner)", branchOwner)
	}
}

func TestApplyDuplicateUVNNameFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "acme.yaml")
	os.WriteFile(path, []byte(sampleYAML), 0o644)
	spec, _ := Load(path)

	r := testRegistry(t)
	ctx := context.Background()
	if err := Apply(ctx, r, superuser(), spec); err != nil {
		t.Fatalf("first Apply: %v", err)
	}
	if err := Apply(ctx, r, superuser(), spec); err == nil {
		t.Fatal("expected second Apply over the same name to fail")
	}
}
