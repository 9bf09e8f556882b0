package usecase

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/citadel-io/citadel-auth/internal/domain"
	"github.com/citadel-io/citadel-auth/internal/repository"
	"github.com/citadel-io/citadel-auth/pkg/security"
)

// --- in-memory fakes ---

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*domain.User)}
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *fakeUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (r *fakeUserRepo) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == user.Email {
			return domain.ErrEmailAlreadyExists
		}
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	copied := *user
	r.users[user.ID] = &copied
	return nil
}

func (r *fakeUserRepo) UpdateMFA(_ context.Context, userID string, settings domain.MFASettings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.MFAEnabled = settings.Enabled
	u.MFAMethod = settings.Method
	u.MFASecret = settings.EncryptedSecret
	u.BackupCodeHashes = settings.BackupCodeHashes
	return nil
}

func (r *fakeUserRepo) UpdateBackupCodes(_ context.Context, userID string, hashes []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.BackupCodeHashes = hashes
	return nil
}

func (r *fakeUserRepo) UpdatePassword(_ context.Context, userID, newHash string, history []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.PasswordHash = newHash
	u.PasswordHistory = history
	return nil
}

func (r *fakeUserRepo) MarkEmailVerified(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.EmailVerified = true
	return nil
}

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session

	// updateRefreshErr, when set, makes UpdateRefresh fail.
	updateRefreshErr error
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[string]*domain.Session)}
}

func (r *fakeSessionRepo) Insert(_ context.Context, session *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *session
	r.sessions[session.ID] = &copied
	return nil
}

func (r *fakeSessionRepo) Delete(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
	return nil
}

func (r *fakeSessionRepo) DeleteByTokenHash(_ context.Context, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		if s.RefreshTokenHash == tokenHash {
			delete(r.sessions, id)
		}
	}
	return nil
}

func (r *fakeSessionRepo) DeleteAllForUser(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		if s.UserID == userID {
			delete(r.sessions, id)
		}
	}
	return nil
}

func (r *fakeSessionRepo) GetByID(_ context.Context, sessionID string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	copied := *s
	return &copied, nil
}

func (r *fakeSessionRepo) ListForUser(_ context.Context, userID string) ([]*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Session
	for _, s := range r.sessions {
		if s.UserID == userID && s.ExpiresAt.After(time.Now()) {
			copied := *s
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *fakeSessionRepo) CountActive(ctx context.Context, userID string) (int, error) {
	sessions, err := r.ListForUser(ctx, userID)
	return len(sessions), err
}

func (r *fakeSessionRepo) OldestActive(ctx context.Context, userID string) (*domain.Session, error) {
	sessions, err := r.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, domain.ErrSessionNotFound
	}
	return sessions[0], nil
}

func (r *fakeSessionRepo) UpdateRefresh(_ context.Context, sessionID, newHash string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateRefreshErr != nil {
		return r.updateRefreshErr
	}
	s, ok := r.sessions[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	s.RefreshTokenHash = newHash
	s.ExpiresAt = expiresAt
	s.LastActivityAt = time.Now()
	return nil
}

type assignment struct {
	userID, roleID string
}

type fakeRoleRepo struct {
	mu          sync.Mutex
	roles       map[string]*domain.Role
	assignments []assignment
}

func newFakeRoleRepo() *fakeRoleRepo {
	return &fakeRoleRepo{roles: make(map[string]*domain.Role)}
}

func (r *fakeRoleRepo) Create(_ context.Context, role *domain.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if role.ID == "" {
		role.ID = uuid.NewString()
	}
	role.CreatedAt = time.Now()
	role.UpdatedAt = role.CreatedAt
	copied := *role
	r.roles[role.ID] = &copied
	return nil
}

func (r *fakeRoleRepo) GetByID(_ context.Context, roleID string) (*domain.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	role, ok := r.roles[roleID]
	if !ok {
		return nil, domain.ErrRoleNotFound
	}
	copied := *role
	return &copied, nil
}

func (r *fakeRoleRepo) GetByName(_ context.Context, name string) (*domain.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, role := range r.roles {
		if role.Name == name {
			copied := *role
			return &copied, nil
		}
	}
	return nil, domain.ErrRoleNotFound
}

func (r *fakeRoleRepo) List(_ context.Context) ([]*domain.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.Role, 0, len(r.roles))
	for _, role := range r.roles {
		copied := *role
		out = append(out, &copied)
	}
	return out, nil
}

func (r *fakeRoleRepo) Update(_ context.Context, role *domain.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.roles[role.ID]; !ok {
		return domain.ErrRoleNotFound
	}
	copied := *role
	r.roles[role.ID] = &copied
	return nil
}

func (r *fakeRoleRepo) Delete(_ context.Context, roleID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.roles[roleID]; !ok {
		return domain.ErrRoleNotFound
	}
	delete(r.roles, roleID)
	return nil
}

func (r *fakeRoleRepo) ListForUser(_ context.Context, userID string) ([]*domain.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Role
	for _, a := range r.assignments {
		if a.userID == userID {
			if role, ok := r.roles[a.roleID]; ok {
				copied := *role
				out = append(out, &copied)
			}
		}
	}
	return out, nil
}

func (r *fakeRoleRepo) HasAssignment(_ context.Context, userID, roleID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.assignments {
		if a.userID == userID && a.roleID == roleID {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeRoleRepo) InsertAssignment(_ context.Context, userID, roleID, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.assignments {
		if a.userID == userID && a.roleID == roleID {
			return domain.ErrRoleAlreadyAssigned
		}
	}
	r.assignments = append(r.assignments, assignment{userID: userID, roleID: roleID})
	return nil
}

func (r *fakeRoleRepo) DeleteAssignment(_ context.Context, userID, roleID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, a := range r.assignments {
		if a.userID == userID && a.roleID == roleID {
			r.assignments = append(r.assignments[:i], r.assignments[i+1:]...)
			return nil
		}
	}
	return domain.ErrRoleNotAssigned
}

func (r *fakeRoleRepo) CountAssignments(_ context.Context, roleID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, a := range r.assignments {
		if a.roleID == roleID {
			count++
		}
	}
	return count, nil
}

func (r *fakeRoleRepo) ListAssignedUserIDs(_ context.Context, roleID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, a := range r.assignments {
		if a.roleID == roleID {
			out = append(out, a.userID)
		}
	}
	return out, nil
}

type queuedMessage struct {
	Kind      string
	Recipient string
	Payload   string
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []queuedMessage
}

func (n *fakeNotifier) record(kind, recipient, payload string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, queuedMessage{Kind: kind, Recipient: recipient, Payload: payload})
	return nil
}

func (n *fakeNotifier) last(kind string) (queuedMessage, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.messages) - 1; i >= 0; i-- {
		if n.messages[i].Kind == kind {
			return n.messages[i], true
		}
	}
	return queuedMessage{}, false
}

func (n *fakeNotifier) QueueEmailVerification(_ context.Context, email, token string) error {
	return n.record("email_verification", email, token)
}

func (n *fakeNotifier) QueuePasswordReset(_ context.Context, email, token string) error {
	return n.record("password_reset", email, token)
}

func (n *fakeNotifier) QueuePasswordChanged(_ context.Context, email string) error {
	return n.record("password_changed", email, "")
}

func (n *fakeNotifier) QueueMFACodeSMS(_ context.Context, phoneNumber, code string) error {
	return n.record("mfa_code_sms", phoneNumber, code)
}

func (n *fakeNotifier) QueueMFACodeEmail(_ context.Context, email, code string) error {
	return n.record("mfa_code_email", email, code)
}

func (n *fakeNotifier) QueueMFADisabled(_ context.Context, email string) error {
	return n.record("mfa_disabled", email, "")
}

// --- wiring helpers ---

const testEncryptionKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

type testEnv struct {
	users    *fakeUserRepo
	sessions *fakeSessionRepo
	roles    *fakeRoleRepo
	cache    domain.Cache
	redis    *miniredis.Miniredis
	notifier *fakeNotifier
	codec    *security.TokenCodec
	cipher   *security.SecretCipher
	cfg      Config

	auth *AuthUsecase
	mfa  *MFAUsecase
	rbac *RBACUsecase
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	codec, err := security.NewTokenCodec(security.CodecConfig{
		AccessSecret:  []byte("test-access-secret"),
		RefreshSecret: []byte("test-refresh-secret"),
	})
	require.NoError(t, err)

	cipher, err := security.NewSecretCipher(testEncryptionKey)
	require.NoError(t, err)

	env := &testEnv{
		users:    newFakeUserRepo(),
		sessions: newFakeSessionRepo(),
		roles:    newFakeRoleRepo(),
		cache:    repository.NewRedisCacheRepo(client),
		redis:    mr,
		notifier: &fakeNotifier{},
		codec:    codec,
		cipher:   cipher,
		cfg:      DefaultConfig(),
	}

	log := zerolog.Nop()
	env.rbac = NewRBACUsecase(env.roles, env.users, env.cache, env.cfg, log, nil)
	env.mfa = NewMFAUsecase(env.users, env.cache, env.cipher, env.notifier, env.cfg, log, nil)
	env.auth = NewAuthUsecase(env.users, env.sessions, env.roles, env.cache, env.codec,
		env.mfa, env.rbac, env.notifier, func(string) domain.DeviceInfo {
			return domain.DeviceInfo{Browser: "test"}
		}, env.cfg, log, nil)
	return env
}

// seedUser creates a verified active account with the given password.
func (env *testEnv) seedUser(t *testing.T, email, password string) *domain.User {
	t.Helper()
	hash, err := security.HashPassword(password)
	require.NoError(t, err)
	user := &domain.User{
		Email:         email,
		Name:          "Test User",
		PasswordHash:  hash,
		Status:        domain.StatusActive,
		EmailVerified: true,
	}
	require.NoError(t, env.users.Create(context.Background(), user))
	return user
}

func (env *testEnv) seedRole(t *testing.T, name string, permissions []string, parentID string) *domain.Role {
	t.Helper()
	role := &domain.Role{Name: name, Permissions: permissions, ParentRoleID: parentID}
	require.NoError(t, env.roles.Create(context.Background(), role))
	return role
}

func (env *testEnv) assign(t *testing.T, userID, roleID string) {
	t.Helper()
	require.NoError(t, env.roles.InsertAssignment(context.Background(), userID, roleID, "test"))
}

func (env *testEnv) login(t *testing.T, email, password string) *domain.AuthResponse {
	t.Helper()
	result, err := env.auth.Login(context.Background(), email, password, RequestContext{})
	require.NoError(t, err)
	require.NotNil(t, result.Tokens)
	return result.Tokens
}
