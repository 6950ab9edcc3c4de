// Package auth provides ownership-based access control over the registry's
// mutating operations.
package auth

// Permission names a controllable registry operation.
type Permission string

const (
	PermUVNCreate      Permission = "uvn.create"
	PermUVNView        Permission = "uvn.view"
	PermCellDefine     Permission = "cell.define"
	PermCellExclude    Permission = "cell.exclude"
	PermParticleDefine Permission = "particle.define"
	PermUserManage     Permission = "user.manage"
	PermRekey          Permission = "key.rotate"
	PermKeyFetch       Permission = "key.fetch_private"
	PermRedeploy       Permission = "registry.redeploy"
	PermAuditView      Permission = "audit.view"

	PermAll Permission = "all" // superuser — allows everything
)

// IsReadOnly reports whether permission only observes state.
func (p Permission) IsReadOnly() bool {
	switch p {
	case PermUVNView, PermAuditView:
		return true
	}
	return false
}

// RequiresLock reports whether permission requires the registry's writer
// lock to be held while it executes.
func (p Permission) RequiresLock() bool {
	return !p.IsReadOnly()
}

// Context carries the ownership facts a Check call needs: which UVN the
// operation targets, and, for operations scoped to a single cell or
// particle (key rotation, private key fetch), which entity within it.
type Context struct {
	UVNName    string
	UVNOwnerID uint32
	// EntityOwnerID narrows the check to a specific cell/particle's owner
	// for per-entity operations like key.fetch_private. Zero means the
	// check is scoped to the whole UVN (UVNOwnerID only).
	EntityOwnerID uint32
}

// NewContext returns a Context scoped to a UVN.
func NewContext(uvnName string, uvnOwnerID uint32) *Context {
	return &Context{UVNName: uvnName, UVNOwnerID: uvnOwnerID}
}

// WithEntityOwner narrows the context to a specific cell/particle owner.
func (c *Context) WithEntityOwner(ownerID uint32) *Context {
	c.EntityOwnerID = ownerID
	return c
}
