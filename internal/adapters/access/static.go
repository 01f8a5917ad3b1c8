// Package access resolves admin roles from configured actor lists
package access

import (
	"context"
	"strings"

	"rwaledger/internal/adapters/config"
	"rwaledger/internal/domain/access"
)

// Static is an access.Authorizer backed by fixed id lists
type Static struct {
	super    map[string]struct{}
	platform map[string]struct{}
	pool     map[string]struct{}
	admin    map[string]struct{}
}

// NewStatic builds an authorizer from config. Ids are compared case-insensitively.
func NewStatic(cfg config.AccessConfig) *Static {
	return &Static{
		super:    toSet(cfg.SuperAdmins),
		platform: toSet(cfg.PlatformAdmins),
		pool:     toSet(cfg.PoolAdmins),
		admin:    toSet(cfg.Admins),
	}
}

// CheckRole implements access.Authorizer
func (s *Static) CheckRole(_ context.Context, actorID string) (access.Roles, error) {
	id := normalize(actorID)
	if id == "" {
		return access.Roles{}, nil
	}
	return access.Roles{
		IsSuperAdmin:    has(s.super, id),
		IsPlatformAdmin: has(s.platform, id),
		IsPoolAdmin:     has(s.pool, id),
		IsAdmin:         has(s.admin, id),
	}, nil
}

// HasElevatedRole implements access.Authorizer
func (s *Static) HasElevatedRole(ctx context.Context, actorID string) (bool, error) {
	roles, err := s.CheckRole(ctx, actorID)
	if err != nil {
		return false, err
	}
	return roles.Elevated(), nil
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if n := normalize(id); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

func has(set map[string]struct{}, id string) bool {
	_, ok := set[id]
	return ok
}

func normalize(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

var _ access.Authorizer = (*Static)(nil)
