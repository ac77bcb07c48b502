package flags

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darklock-sec/darklock-console/internal/identity"
	"github.com/darklock-sec/darklock-console/internal/shared"
	_ "github.com/darklock-sec/darklock-console/testing"
)

type stubFlagRepo struct {
	flags  map[string]Flag
	nextID int64
}

func newStubFlagRepo() *stubFlagRepo {
	return &stubFlagRepo{flags: make(map[string]Flag), nextID: 1}
}

func (s *stubFlagRepo) List(ctx context.Context) ([]Flag, error) {
	out := make([]Flag, 0, len(s.flags))
	for _, f := range s.flags {
		out = append(out, f)
	}
	return out, nil
}

func (s *stubFlagRepo) Get(ctx context.Context, key string) (Flag, error) {
	f, ok := s.flags[key]
	if !ok {
		return Flag{}, shared.ErrNotFound
	}
	return f, nil
}

func (s *stubFlagRepo) Create(ctx context.Context, flag Flag) (Flag, error) {
	if _, exists := s.flags[flag.Key]; exists {
		return Flag{}, shared.ErrConflict
	}
	flag.ID = s.nextID
	s.nextID++
	flag.CreatedAt = time.Now().UTC()
	flag.UpdatedAt = flag.CreatedAt
	s.flags[flag.Key] = flag
	return flag, nil
}

func (s *stubFlagRepo) SetEnabled(ctx context.Context, key string, enabled bool, updatedBy int64) (Flag, error) {
	f, ok := s.flags[key]
	if !ok {
		return Flag{}, shared.ErrNotFound
	}
	f.Enabled = enabled
	f.UpdatedBy = updatedBy
	s.flags[key] = f
	return f, nil
}

func (s *stubFlagRepo) UpdateDescription(ctx context.Context, key, description string, updatedBy int64) (Flag, error) {
	f, ok := s.flags[key]
	if !ok {
		return Flag{}, shared.ErrNotFound
	}
	f.Description = description
	f.UpdatedBy = updatedBy
	s.flags[key] = f
	return f, nil
}

func (s *stubFlagRepo) Delete(ctx context.Context, key string) error {
	if _, ok := s.flags[key]; !ok {
		return shared.ErrNotFound
	}
	delete(s.flags, key)
	return nil
}

type grantTable map[identity.Role][]identity.Grant

func (g grantTable) ListGrants(ctx context.Context, role identity.Role) ([]identity.Grant, error) {
	return g[role], nil
}

func newTestService(repo *stubFlagRepo, grants grantTable) *Service {
	if grants == nil {
		grants = grantTable{}
	}
	return NewService(repo, identity.NewEvaluator(grants), nil, nil)
}

func admin() identity.Operator {
	return identity.Operator{ID: 3, Email: "admin@darklock.test", Role: identity.RoleAdmin, IsActive: true}
}

func owner() identity.Operator {
	return identity.Operator{ID: 1, Email: "owner@darklock.test", Role: identity.RoleOwner, IsActive: true}
}

func killSwitchGrants() grantTable {
	return grantTable{identity.RoleAdmin: {{
		Role:          identity.RoleAdmin,
		PermissionKey: identity.PermFlagsKillswitch,
		Granted:       true,
	}}}
}

func TestParseKeyFormat(t *testing.T) {
	key, err := ParseKey("  Payments.NEW_Checkout  ")
	require.NoError(t, err)
	assert.Equal(t, "payments.new_checkout", key)

	for _, bad := range []string{"", ".leading", "two..dots", "spa ces", "Uppercase!"} {
		_, err := ParseKey(bad)
		require.ErrorIs(t, err, shared.ErrInvalidInput, "key %q", bad)
	}
}

func TestCreateKillSwitchNeedsPermission(t *testing.T) {
	repo := newStubFlagRepo()
	svc := newTestService(repo, nil)

	_, err := svc.Create(context.Background(), admin(), CreateInput{Key: "bot.commands", IsKillSwitch: true})
	require.ErrorIs(t, err, shared.ErrForbidden)
	assert.Empty(t, repo.flags)

	svc = newTestService(repo, killSwitchGrants())
	created, err := svc.Create(context.Background(), admin(), CreateInput{Key: "bot.commands", IsKillSwitch: true})
	require.NoError(t, err)
	assert.True(t, created.IsKillSwitch)
}

func TestCreatePlainFlagNeedsNoGrant(t *testing.T) {
	repo := newStubFlagRepo()
	svc := newTestService(repo, nil)

	created, err := svc.Create(context.Background(), admin(), CreateInput{Key: "ui.dark-mode", Enabled: true})
	require.NoError(t, err)
	assert.True(t, created.Enabled)
}

func TestToggleKillSwitch(t *testing.T) {
	repo := newStubFlagRepo()
	repo.flags["bot.commands"] = Flag{ID: 1, Key: "bot.commands", IsKillSwitch: true, Enabled: true}

	svc := newTestService(repo, nil)
	_, err := svc.SetEnabled(context.Background(), admin(), "bot.commands", false)
	require.ErrorIs(t, err, shared.ErrForbidden)
	assert.True(t, repo.flags["bot.commands"].Enabled, "denied toggle leaves state alone")

	svc = newTestService(repo, killSwitchGrants())
	updated, err := svc.SetEnabled(context.Background(), admin(), "bot.commands", false)
	require.NoError(t, err)
	assert.False(t, updated.Enabled)
}

func TestOwnerTogglesKillSwitchWithoutGrant(t *testing.T) {
	repo := newStubFlagRepo()
	repo.flags["bot.commands"] = Flag{ID: 1, Key: "bot.commands", IsKillSwitch: true, Enabled: true}

	svc := newTestService(repo, nil)
	updated, err := svc.SetEnabled(context.Background(), owner(), "bot.commands", false)
	require.NoError(t, err)
	assert.False(t, updated.Enabled)
}

func TestDeleteEnabledKillSwitchConflicts(t *testing.T) {
	repo := newStubFlagRepo()
	repo.flags["bot.commands"] = Flag{ID: 1, Key: "bot.commands", IsKillSwitch: true, Enabled: true}
	svc := newTestService(repo, killSwitchGrants())
	ctx := context.Background()

	err := svc.Delete(ctx, admin(), "bot.commands")
	require.ErrorIs(t, err, shared.ErrConflict)
	assert.Contains(t, repo.flags, "bot.commands")

	_, err = svc.SetEnabled(ctx, admin(), "bot.commands", false)
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, admin(), "bot.commands"))
	assert.NotContains(t, repo.flags, "bot.commands")
}

func TestDeleteUnknownFlag(t *testing.T) {
	svc := newTestService(newStubFlagRepo(), nil)
	err := svc.Delete(context.Background(), admin(), "never.created")
	require.ErrorIs(t, err, shared.ErrNotFound)
}
