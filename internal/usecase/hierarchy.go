package usecase

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/arklim/social-platform-auth/internal/core/domain"
	"github.com/arklim/social-platform-auth/internal/core/port"
)

// DefaultMaxHierarchyDepth bounds parent-chain walks even when no cycle is
// detected.
const DefaultMaxHierarchyDepth = 10

// RoleHierarchyService resolves role inheritance. The transitive closure of
// the role forest is built once per cache generation and shared across
// concurrent lookups; Invalidate must be called whenever a role is created,
// reparented, or deleted.
type RoleHierarchyService struct {
	roles    port.RoleRepository
	logger   *zap.Logger
	maxDepth int

	mu       sync.RWMutex
	resolved map[domain.RoleName][]domain.RoleName
}

// NewRoleHierarchyService constructs a hierarchy resolver.
func NewRoleHierarchyService(roles port.RoleRepository, maxDepth int, logger *zap.Logger) *RoleHierarchyService {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxHierarchyDepth
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoleHierarchyService{
		roles:    roles,
		logger:   logger,
		maxDepth: maxDepth,
	}
}

// Resolve returns every role the input roles imply: each role itself plus
// all its ancestors. Unknown role names resolve to just themselves.
func (s *RoleHierarchyService) Resolve(ctx context.Context, names []domain.RoleName) (map[domain.RoleName]struct{}, error) {
	hierarchy, err := s.hierarchy(ctx)
	if err != nil {
		return nil, err
	}

	result := make(map[domain.RoleName]struct{}, len(names))
	for _, name := range names {
		result[name] = struct{}{}
		for _, implied := range hierarchy[name] {
			result[implied] = struct{}{}
		}
	}

	return result, nil
}

// IsKnownRole reports whether the name exists in the current hierarchy.
func (s *RoleHierarchyService) IsKnownRole(ctx context.Context, name domain.RoleName) (bool, error) {
	hierarchy, err := s.hierarchy(ctx)
	if err != nil {
		return false, err
	}
	_, ok := hierarchy[name]
	return ok, nil
}

// Invalidate drops the cached hierarchy. The next lookup rebuilds it.
func (s *RoleHierarchyService) Invalidate() {
	s.mu.Lock()
	s.resolved = nil
	s.mu.Unlock()
}

// hierarchy returns the cached closure, building it under the write lock
// when absent. Readers only ever see a fully built map: the map is
// replaced wholesale, never mutated in place.
func (s *RoleHierarchyService) hierarchy(ctx context.Context) (map[domain.RoleName][]domain.RoleName, error) {
	s.mu.RLock()
	cached := s.resolved
	s.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resolved != nil {
		return s.resolved, nil
	}

	built, err := s.build(ctx)
	if err != nil {
		return nil, err
	}
	s.resolved = built

	return built, nil
}

// build walks every role's parent chain with a visited set and a hard
// depth ceiling. Storage is treated as a general graph: a repeated id or
// an over-deep chain stops the walk early with a warning instead of
// looping, keeping the roles reached so far.
func (s *RoleHierarchyService) build(ctx context.Context) (map[domain.RoleName][]domain.RoleName, error) {
	roles, err := s.roles.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}

	byID := make(map[string]domain.Role, len(roles))
	for _, role := range roles {
		byID[role.ID] = role
	}

	hierarchy := make(map[domain.RoleName][]domain.RoleName, len(roles))
	for _, role := range roles {
		visited := map[string]struct{}{role.ID: {}}
		var ancestors []domain.RoleName

		current := role
		for depth := 0; current.ParentID != nil; depth++ {
			if depth >= s.maxDepth {
				s.logger.Warn("role hierarchy exceeds depth ceiling, stopping walk",
					zap.String("role", role.Name.String()),
					zap.Int("max_depth", s.maxDepth),
				)
				break
			}

			parent, ok := byID[*current.ParentID]
			if !ok {
				s.logger.Warn("role references missing parent",
					zap.String("role", current.Name.String()),
					zap.String("parent_id", *current.ParentID),
				)
				break
			}

			if _, seen := visited[parent.ID]; seen {
				s.logger.Warn("cycle detected in role hierarchy, stopping walk",
					zap.String("role", role.Name.String()),
					zap.String("repeated", parent.Name.String()),
				)
				break
			}
			visited[parent.ID] = struct{}{}

			ancestors = append(ancestors, parent.Name)
			current = parent
		}

		hierarchy[role.Name] = ancestors
	}

	return hierarchy, nil
}
