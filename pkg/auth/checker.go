package auth

import (
	"fmt"

	"github.com/uno-network/uno/pkg/model"
	"github.com/uno-network/uno/pkg/uvnerr"
)

// Checker validates whether a caller may perform a permission against a
// Context. Unlike the group/ACL model this package's teacher used, the UVN
// control plane's access rule is ownership: a superuser may do anything; a
// caller who owns the targeted UVN may perform UVN-scoped operations; an
// entity-scoped operation (key rotation, private key fetch) whose Context
// names an entity owner instead requires the caller to be that owner;
// owning the UVN is then not enough.
type Checker struct{}

// NewChecker returns a stateless ownership checker.
func NewChecker() *Checker {
	return &Checker{}
}

// Check verifies caller may exercise permission within ctx.
func (c *Checker) Check(caller model.User, permission Permission, ctx *Context) error {
	if caller.Superuser {
		return nil
	}
	if ctx == nil {
		return &PermissionError{User: caller.ID, Permission: permission}
	}
	if ctx.EntityOwnerID != 0 {
		if caller.ID == ctx.EntityOwnerID {
			return nil
		}
		return &PermissionError{User: caller.ID, Permission: permission, Context: ctx}
	}
	if caller.ID == ctx.UVNOwnerID {
		return nil
	}
	return &PermissionError{User: caller.ID, Permission: permission, Context: ctx}
}

// PermissionError represents a permission denial. It unwraps to
// uvnerr.ErrPermissionDenied so callers can match it with errors.Is.
type PermissionError struct {
	User       uint32
	Permission Permission
	Context    *Context
}

func (e *PermissionError) Error() string {
	msg := fmt.Sprintf("permission denied: user %d does not have '%s' permission", e.User, e.Permission)
	if e.Context != nil && e.Context.UVNName != "" {
		msg += fmt.Sprintf(" on uvn '%s'", e.Context.UVNName)
	}
	return msg
}

func (e *PermissionError) Unwrap() error {
	return uvnerr.ErrPermissionDenied
}
