package access

import (
	"context"

	"rwaledger/pkg/errors"
)

// Roles is the capability set resolved for an actor
type Roles struct {
	IsAdmin         bool `json:"is_admin"`
	IsSuperAdmin    bool `json:"is_super_admin"`
	IsPoolAdmin     bool `json:"is_pool_admin"`
	IsPlatformAdmin bool `json:"is_platform_admin"`
}

// Elevated is true when any admin capability is present
func (r Roles) Elevated() bool {
	return r.IsAdmin || r.IsSuperAdmin || r.IsPoolAdmin || r.IsPlatformAdmin
}

// Authorizer resolves admin capabilities. Role policy lives outside the ledger.
type Authorizer interface {
	HasElevatedRole(ctx context.Context, actorID string) (bool, error)
	CheckRole(ctx context.Context, actorID string) (Roles, error)
}

// RequireElevated returns ErrForbidden unless actorID holds an elevated role
func RequireElevated(ctx context.Context, a Authorizer, actorID string) error {
	if actorID == "" {
		return errors.Wrap(errors.ErrForbidden, "missing actor")
	}
	ok, err := a.HasElevatedRole(ctx, actorID)
	if err != nil {
		return errors.Wrap(err, "resolve roles")
	}
	if !ok {
		return errors.Wrapf(errors.ErrForbidden, "actor %s", actorID)
	}
	return nil
}
