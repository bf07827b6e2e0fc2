package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/arklim/social-platform-auth/internal/core/domain"
	"github.com/arklim/social-platform-auth/internal/core/port"
)

// Vote is a single voter's decision for an (attribute, subject) pair.
type Vote int

const (
	// VoteAbstain defers to the next supporting voter.
	VoteAbstain Vote = iota
	// VoteGrant allows the action and short-circuits the chain.
	VoteGrant
	// VoteDeny refuses the action and short-circuits the chain.
	VoteDeny
)

// Voter is a contextual permission check. Supports is consulted first;
// Vote is only called for supported pairs. Voters are registered in a
// fixed order and evaluated deterministically.
type Voter interface {
	Supports(attribute string, subject any) bool
	Vote(ctx context.Context, user *domain.User, attribute string, subject any) (Vote, error)
}

// AccessService answers authorization questions: scoped role membership
// through the hierarchy resolver, and attribute checks through the voter
// registry.
type AccessService struct {
	hierarchy *RoleHierarchyService
	roles     port.RoleRepository
	voters    []Voter
	logger    *zap.Logger

	// voterIndex caches attribute -> first supporting voter index.
	// Supports is still re-validated against the concrete subject before
	// the cached voter is trusted: a voter may support an attribute for
	// one subject shape only.
	voterIndex sync.Map
}

// NewAccessService constructs an AccessService with the given voter chain.
// Voter order is fixed at construction and never re-sorted.
func NewAccessService(hierarchy *RoleHierarchyService, roles port.RoleRepository, logger *zap.Logger, voters ...Voter) *AccessService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccessService{
		hierarchy: hierarchy,
		roles:     roles,
		voters:    voters,
		logger:    logger,
	}
}

// HasRole reports whether the user holds the role, directly or through
// inheritance, within the given scope. Platform-wide assignments apply in
// every scope; organization-bound assignments apply only on an exact
// scope match. Callers must pass an explicit scope: use
// domain.PlatformScope() for platform-wide checks.
func (s *AccessService) HasRole(ctx context.Context, user *domain.User, role domain.RoleName, scope domain.Scope) (bool, error) {
	if user == nil || user.ID == "" {
		return false, fmt.Errorf("user is required")
	}

	assignments, err := s.roles.ListAssignments(ctx, user.ID)
	if err != nil {
		return false, fmt.Errorf("list role assignments: %w", err)
	}

	direct := make([]domain.RoleName, 0, len(assignments))
	for _, assignment := range assignments {
		if assignment.AppliesTo(scope) {
			direct = append(direct, assignment.RoleName)
		}
	}
	if len(direct) == 0 {
		return false, nil
	}

	resolved, err := s.hierarchy.Resolve(ctx, direct)
	if err != nil {
		return false, err
	}

	_, ok := resolved[role]
	return ok, nil
}

// EffectiveRoles returns the sorted names of every role the user holds in
// the given scope, inherited roles included. Used to stamp role claims
// into access tokens.
func (s *AccessService) EffectiveRoles(ctx context.Context, user *domain.User, scope domain.Scope) ([]string, error) {
	if user == nil || user.ID == "" {
		return nil, fmt.Errorf("user is required")
	}

	assignments, err := s.roles.ListAssignments(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("list role assignments: %w", err)
	}

	direct := make([]domain.RoleName, 0, len(assignments))
	for _, assignment := range assignments {
		if assignment.AppliesTo(scope) {
			direct = append(direct, assignment.RoleName)
		}
	}
	if len(direct) == 0 {
		return nil, nil
	}

	resolved, err := s.hierarchy.Resolve(ctx, direct)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(resolved))
	for name := range resolved {
		names = append(names, name.String())
	}
	sort.Strings(names)

	return names, nil
}

// IsGranted decides whether the user may perform the action named by
// attribute on the optional subject. Role-name attributes delegate to
// HasRole with platform scope. Everything else runs the voter chain in
// registration order: the first supporting voter that grants or denies
// decides; abstentions continue; no grant means deny.
func (s *AccessService) IsGranted(ctx context.Context, user *domain.User, attribute string, subject any) (bool, error) {
	if user == nil || user.ID == "" {
		return false, fmt.Errorf("user is required")
	}
	if attribute == "" {
		return false, fmt.Errorf("attribute is required")
	}

	if domain.IsValidRoleName(attribute) {
		known, err := s.hierarchy.IsKnownRole(ctx, domain.RoleName(attribute))
		if err != nil {
			return false, err
		}
		if known {
			return s.HasRole(ctx, user, domain.RoleName(attribute), domain.PlatformScope())
		}
	}

	if idx, ok := s.voterIndex.Load(attribute); ok {
		i := idx.(int)
		if i < len(s.voters) && s.voters[i].Supports(attribute, subject) {
			return s.runChain(ctx, user, attribute, subject, i)
		}
	}

	for i, voter := range s.voters {
		if !voter.Supports(attribute, subject) {
			continue
		}
		s.voterIndex.Store(attribute, i)
		return s.runChain(ctx, user, attribute, subject, i)
	}

	// No voter supports the attribute: deny.
	return false, nil
}

// runChain evaluates voters from index start, honoring short-circuit
// semantics: first GRANT wins, first DENY loses, abstentions continue,
// and exhausting the chain without a grant denies.
func (s *AccessService) runChain(ctx context.Context, user *domain.User, attribute string, subject any, start int) (bool, error) {
	for i := start; i < len(s.voters); i++ {
		voter := s.voters[i]
		if !voter.Supports(attribute, subject) {
			continue
		}

		vote, err := voter.Vote(ctx, user, attribute, subject)
		if err != nil {
			return false, err
		}

		switch vote {
		case VoteGrant:
			return true, nil
		case VoteDeny:
			return false, nil
		}
	}

	return false, nil
}
