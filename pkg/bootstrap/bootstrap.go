// Package bootstrap loads an initial UVN definition — the UVN itself, its
// settings, and its starting cells/particles/users — from a YAML file and
// replays it against a Registry as a sequence of ordinary mutating calls.
//
// Grounded on the teacher's pkg/spec (NetworkSpecFile/SiteSpecFile): a
// single YAML-decoded struct tree, loaded with gopkg.in/yaml.v3, validated
// field-by-field before anything is applied.
package bootstrap

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/uno-network/uno/pkg/model"
	"github.com/uno-network/uno/pkg/registry"
)

// UserSpec defines one principal to register. Password, if set, is hashed
// with bcrypt before being handed to the registry; the registry itself
// never sees or stores a plaintext password.
type UserSpec struct {
	Email       string `yaml:"email"`
	DisplayName string `yaml:"display_name,omitempty"`
	Realm       string `yaml:"realm,omitempty"`
	Password    string `yaml:"password,omitempty"`
	Superuser   bool   `yaml:"superuser,omitempty"`
}

// CellSpec defines one cell to register. Owner references a UserSpec.Email
// from the same file; empty means the UVN's own owner.
type CellSpec struct {
	Name        string   `yaml:"name"`
	Address     string   `yaml:"address,omitempty"`
	AllowedLANs []string `yaml:"allowed_lans"`
	Owner       string   `yaml:"owner,omitempty"`
}

// ParticleSpec defines one particle to register.
type ParticleSpec struct {
	Name  string `yaml:"name"`
	Owner string `yaml:"owner,omitempty"`
}

// UVNSpec is the top-level bootstrap document.
type UVNSpec struct {
	Name     string         `yaml:"name"`
	Address  string         `yaml:"address,omitempty"`
	OwnerID  uint32         `yaml:"owner_id"`
	Settings model.Settings `yaml:"settings"`

	Users     []UserSpec     `yaml:"users,omitempty"`
	Cells     []CellSpec     `yaml:"cells,omitempty"`
	Particles []ParticleSpec `yaml:"particles,omitempty"`
}

// Load reads and validates a bootstrap document from path.
func Load(path string) (*UVNSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading bootstrap file: %w", err)
	}
	var spec UVNSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parsing bootstrap YAML: %w", err)
	}
	if err := validate(&spec); err != nil {
		return nil, fmt.Errorf("validating bootstrap file: %w", err)
	}
	return &spec, nil
}

func validate(spec *UVNSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("name is required")
	}
	if spec.OwnerID == 0 {
		return fmt.Errorf("owner_id is required")
	}
	seenUsers := make(map[string]bool, len(spec.Users))
	for _, u := range spec.Users {
		if u.Email == "" {
			return fmt.Errorf("user entry missing email")
		}
		if seenUsers[u.Email] {
			return fmt.Errorf("duplicate user email %q", u.Email)
		}
		seenUsers[u.Email] = true
	}
	seenCells := make(map[string]bool, len(spec.Cells))
	for _, c := range spec.Cells {
		if c.Name == "" {
			return fmt.Errorf("cell entry missing name")
		}
		if seenCells[c.Name] {
			return fmt.Errorf("duplicate cell name %q", c.Name)
		}
		seenCells[c.Name] = true
		if c.Owner != "" && !seenUsers[c.Owner] {
			return fmt.Errorf("cell %q references undefined owner %q", c.Name, c.Owner)
		}
	}
	seenParticles := make(map[string]bool, len(spec.Particles))
	for _, p := range spec.Particles {
		if p.Name == "" {
			return fmt.Errorf("particle entry missing name")
		}
		if seenParticles[p.Name] {
			return fmt.Errorf("duplicate particle name %q", p.Name)
		}
		seenParticles[p.Name] = true
		if p.Owner != "" && !seenUsers[p.Owner] {
			return fmt.Errorf("particle %q references undefined owner %q", p.Name, p.Owner)
		}
	}
	return nil
}

// Apply replays spec against r as create -> define_user* -> define_cell* ->
// define_particle*, in that order, so cell/particle owner references
// resolve against already-registered user ids. caller must have permission
// for every one of these operations (ordinarily a superuser, since this is
// first-time setup).
func Apply(ctx context.Context, r *registry.Registry, caller model.User, spec *UVNSpec) error {
	if err := r.Create(ctx, caller, spec.Name, spec.Address, spec.OwnerID, spec.Settings); err != nil {
		return fmt.Errorf("creating uvn %s: %w", spec.Name, err)
	}

	emailToID := make(map[string]uint32, len(spec.Users))
	for _, u := range spec.Users {
		hash, err := hashPassword(u.Password)
		if err != nil {
			return fmt.Errorf("hashing password for %s: %w", u.Email, err)
		}
		id, err := r.DefineUser(ctx, caller, spec.Name, u.Email, u.DisplayName, u.Realm, hash)
		if err != nil {
			return fmt.Errorf("defining user %s: %w", u.Email, err)
		}
		emailToID[u.Email] = id
	}

	for _, c := range spec.Cells {
		owner := spec.OwnerID
		if c.Owner != "" {
			owner = emailToID[c.Owner]
		}
		if _, err := r.DefineCell(ctx, caller, spec.Name, c.Name, c.Address, c.AllowedLANs, owner); err != nil {
			return fmt.Errorf("defining cell %s: %w", c.Name, err)
		}
	}

	for _, p := range spec.Particles {
		owner := spec.OwnerID
		if p.Owner != "" {
			owner = emailToID[p.Owner]
		}
		if _, err := r.DefineParticle(ctx, caller, spec.Name, p.Name, owner); err != nil {
			return fmt.Errorf("defining particle %s: %w", p.Name, err)
		}
	}

	return nil
}

func hashPassword(password string) ([]byte, error) {
	if password == "" {
		return nil, nil
	}
	return bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
}
