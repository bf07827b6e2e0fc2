package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/arklim/social-platform-auth/internal/core/domain"
	"github.com/arklim/social-platform-auth/internal/repository"
)

// stubUserRepo is an in-memory UserRepository for service tests.
type stubUserRepo struct {
	mu          sync.Mutex
	users       map[string]*domain.User
	backupCodes map[string][]domain.BackupCode
	devices     map[string][]domain.KnownDevice
}

func newStubUserRepo(users ...*domain.User) *stubUserRepo {
	r := &stubUserRepo{
		users:       make(map[string]*domain.User),
		backupCodes: make(map[string][]domain.BackupCode),
		devices:     make(map[string][]domain.KnownDevice),
	}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *stubUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (r *stubUserRepo) GetByIdentifier(_ context.Context, identifier string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == identifier || u.Email == identifier {
			clone := *u
			return &clone, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *stubUserRepo) RegisterFailedAttempt(_ context.Context, id string, threshold int, lockFor time.Duration) (int, *time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return 0, nil, repository.ErrNotFound
	}
	u.FailedLoginAttempts++
	if u.FailedLoginAttempts >= threshold {
		until := time.Now().Add(lockFor).UTC()
		u.LockedUntil = &until
	}
	return u.FailedLoginAttempts, u.LockedUntil, nil
}

func (r *stubUserRepo) ClearLockout(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		u.FailedLoginAttempts = 0
		u.LockedUntil = nil
	}
	return nil
}

func (r *stubUserRepo) UpdatePassword(_ context.Context, id, hash string, changedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		u.PasswordHash = hash
		u.LastPasswordChange = changedAt
	}
	return nil
}

func (r *stubUserRepo) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		u.LastLogin = &at
	}
	return nil
}

func (r *stubUserRepo) SetTOTP(_ context.Context, id string, secret *string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		u.TOTPSecret = secret
		u.TOTPEnabled = enabled
	}
	return nil
}

func (r *stubUserRepo) ListBackupCodes(_ context.Context, userID string) ([]domain.BackupCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.BackupCode(nil), r.backupCodes[userID]...), nil
}

func (r *stubUserRepo) ReplaceBackupCodes(_ context.Context, userID string, codes []domain.BackupCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backupCodes[userID] = append([]domain.BackupCode(nil), codes...)
	return nil
}

func (r *stubUserRepo) MarkBackupCodeUsed(_ context.Context, codeID string, usedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for userID, codes := range r.backupCodes {
		for i := range codes {
			if codes[i].ID == codeID {
				codes[i].UsedAt = &usedAt
				r.backupCodes[userID] = codes
				return nil
			}
		}
	}
	return repository.ErrNotFound
}

func (r *stubUserRepo) ListKnownDevices(_ context.Context, userID string) ([]domain.KnownDevice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.KnownDevice(nil), r.devices[userID]...), nil
}

func (r *stubUserRepo) RecordKnownDevice(_ context.Context, device domain.KnownDevice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, d := range r.devices[device.UserID] {
		if d.Fingerprint == device.Fingerprint {
			r.devices[device.UserID][i] = device
			return nil
		}
	}
	r.devices[device.UserID] = append(r.devices[device.UserID], device)
	return nil
}

// stubRoleRepo serves a fixed role forest and assignment set.
type stubRoleRepo struct {
	mu          sync.Mutex
	roles       []domain.Role
	assignments map[string][]domain.RoleAssignment
	listCalls   int
}

func newStubRoleRepo(roles []domain.Role) *stubRoleRepo {
	return &stubRoleRepo{
		roles:       roles,
		assignments: make(map[string][]domain.RoleAssignment),
	}
}

func (r *stubRoleRepo) List(_ context.Context) ([]domain.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listCalls++
	return append([]domain.Role(nil), r.roles...), nil
}

func (r *stubRoleRepo) GetByName(_ context.Context, name domain.RoleName) (*domain.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.roles {
		if r.roles[i].Name == name {
			clone := r.roles[i]
			return &clone, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *stubRoleRepo) Create(_ context.Context, role domain.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roles = append(r.roles, role)
	return nil
}

func (r *stubRoleRepo) Reparent(_ context.Context, roleID string, parentID *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.roles {
		if r.roles[i].ID == roleID {
			r.roles[i].ParentID = parentID
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *stubRoleRepo) Delete(_ context.Context, roleID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.roles {
		if r.roles[i].ID == roleID {
			r.roles = append(r.roles[:i], r.roles[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *stubRoleRepo) ListAssignments(_ context.Context, userID string) ([]domain.RoleAssignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.RoleAssignment(nil), r.assignments[userID]...), nil
}

func (r *stubRoleRepo) Assign(_ context.Context, assignment domain.RoleAssignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assignments[assignment.UserID] = append(r.assignments[assignment.UserID], assignment)
	return nil
}

func (r *stubRoleRepo) Unassign(_ context.Context, userID string, role domain.RoleName, orgID *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.assignments[userID][:0]
	for _, a := range r.assignments[userID] {
		same := a.RoleName == role &&
			((a.OrgID == nil && orgID == nil) || (a.OrgID != nil && orgID != nil && *a.OrgID == *orgID))
		if !same {
			kept = append(kept, a)
		}
	}
	r.assignments[userID] = kept
	return nil
}

// stubTokenRepo is an in-memory PersistentTokenRepository.
type stubTokenRepo struct {
	mu     sync.Mutex
	tokens map[string]*domain.PersistentToken
}

func newStubTokenRepo() *stubTokenRepo {
	return &stubTokenRepo{tokens: make(map[string]*domain.PersistentToken)}
}

func (r *stubTokenRepo) Create(_ context.Context, token domain.PersistentToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := token
	r.tokens[token.Series] = &clone
	return nil
}

func (r *stubTokenRepo) GetBySeries(_ context.Context, series string) (*domain.PersistentToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[series]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *t
	return &clone, nil
}

func (r *stubTokenRepo) RotateHash(_ context.Context, series, currentHash, newHash string, usedAt time.Time, ip, agent *string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[series]
	if !ok || t.TokenHash != currentHash {
		return false, nil
	}
	t.TokenHash = newHash
	t.LastUsedAt = &usedAt
	t.LastIP = ip
	t.LastAgent = agent
	return true, nil
}

func (r *stubTokenRepo) DeleteBySeries(_ context.Context, series string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tokens, series)
	return nil
}

func (r *stubTokenRepo) DeleteByUser(_ context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for series, t := range r.tokens {
		if t.UserID == userID {
			delete(r.tokens, series)
			count++
		}
	}
	return count, nil
}

func (r *stubTokenRepo) DeleteExpired(_ context.Context, ref time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for series, t := range r.tokens {
		if ref.After(t.ExpiresAt) {
			delete(r.tokens, series)
			count++
		}
	}
	return count, nil
}

// stubRateStore is a deterministic RateLimitStore with an injectable
// failure switch.
type stubRateStore struct {
	mu      sync.Mutex
	counts  map[string]int64
	resets  map[string]time.Time
	failing bool
	err     error
}

func newStubRateStore() *stubRateStore {
	return &stubRateStore{
		counts: make(map[string]int64),
		resets: make(map[string]time.Time),
	}
}

func (s *stubRateStore) Incr(_ context.Context, key string, window time.Duration) (int64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return 0, time.Time{}, s.err
	}
	if _, ok := s.resets[key]; !ok {
		s.resets[key] = time.Now().Add(window)
	}
	s.counts[key]++
	return s.counts[key], s.resets[key], nil
}

func (s *stubRateStore) Get(_ context.Context, key string) (int64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return 0, time.Time{}, s.err
	}
	return s.counts[key], s.resets[key], nil
}

func (s *stubRateStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return s.err
	}
	delete(s.counts, key)
	delete(s.resets, key)
	return nil
}

// recordingAudit captures published events.
type recordingAudit struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func (a *recordingAudit) Publish(_ context.Context, event domain.AuditEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

func (a *recordingAudit) actions() []domain.AuditAction {
	a.mu.Lock()
	defer a.mu.Unlock()
	actions := make([]domain.AuditAction, 0, len(a.events))
	for _, e := range a.events {
		actions = append(actions, e.Action)
	}
	return actions
}

func (a *recordingAudit) has(action domain.AuditAction) bool {
	for _, got := range a.actions() {
		if got == action {
			return true
		}
	}
	return false
}

// recordingNotifier captures dispatched notifications on a channel so
// tests can wait for async sends.
type recordingNotifier struct {
	sent chan domain.Notification
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{sent: make(chan domain.Notification, 16)}
}

func (n *recordingNotifier) Send(_ context.Context, notification domain.Notification) error {
	n.sent <- notification
	return nil
}
