package permission

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/safeflow/procedure-api/pkg/errors"
	"github.com/safeflow/procedure-api/pkg/metrics"

	"github.com/safeflow/procedure-api/internal/model"
)

type fakeUserRepo struct {
	users map[uuid.UUID]*model.AppUser
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.AppUser, error) {
	user, ok := f.users[id]
	if !ok {
		return nil, apperrors.NotFound("user", nil)
	}
	return user, nil
}

func (f *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*model.AppUser, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, apperrors.NotFound("user", nil)
}

func (f *fakeUserRepo) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return nil
}

type fakeRBACRepo struct {
	rolePerms map[uuid.UUID][]string
	overrides map[uuid.UUID][]*model.UserPermissionOverride
	perms     map[string]*model.Permission
	upserted  []string
	deleted   []string
}

func (f *fakeRBACRepo) GetRoleByID(ctx context.Context, id uuid.UUID) (*model.Role, error) {
	return &model.Role{Code: model.RoleUser}, nil
}

func (f *fakeRBACRepo) GetRoleByCode(ctx context.Context, code string) (*model.Role, error) {
	return &model.Role{Code: code}, nil
}

func (f *fakeRBACRepo) ListRolePermissionCodes(ctx context.Context, roleID uuid.UUID) ([]string, error) {
	return f.rolePerms[roleID], nil
}

func (f *fakeRBACRepo) ListUserOverrides(ctx context.Context, userID uuid.UUID) ([]*model.UserPermissionOverride, error) {
	return f.overrides[userID], nil
}

func (f *fakeRBACRepo) GetPermissionByCode(ctx context.Context, code string) (*model.Permission, error) {
	p, ok := f.perms[code]
	if !ok {
		return nil, apperrors.NotFound("permission", nil)
	}
	return p, nil
}

func (f *fakeRBACRepo) ListPermissions(ctx context.Context) ([]*model.Permission, error) {
	var out []*model.Permission
	for _, p := range f.perms {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeRBACRepo) UpsertUserOverride(ctx context.Context, userID, permissionID uuid.UUID, granted bool) error {
	f.upserted = append(f.upserted, permissionID.String())
	return nil
}

func (f *fakeRBACRepo) DeleteUserOverride(ctx context.Context, userID, permissionID uuid.UUID) error {
	f.deleted = append(f.deleted, permissionID.String())
	return nil
}

func newTestUser(roleID uuid.UUID, active bool) *model.AppUser {
	user := &model.AppUser{
		RoleID:   roleID,
		UnitID:   uuid.New(),
		IsActive: active,
	}
	user.ID = uuid.New()
	return user
}

func TestResolverOverridesWinOverBaseline(t *testing.T) {
	roleID := uuid.New()
	user := newTestUser(roleID, true)

	tests := []struct {
		name      string
		baseline  []string
		overrides []*model.UserPermissionOverride
		code      string
		want      bool
	}{
		{
			name:     "role baseline grants",
			baseline: []string{model.PermProcedureView},
			code:     model.PermProcedureView,
			want:     true,
		},
		{
			name:     "revoke removes role grant",
			baseline: []string{model.PermProcedureView, model.PermSubmissionApprove},
			overrides: []*model.UserPermissionOverride{
				{Code: model.PermSubmissionApprove, IsGranted: false},
			},
			code: model.PermSubmissionApprove,
			want: false,
		},
		{
			name:     "grant adds beyond baseline",
			baseline: []string{model.PermProcedureView},
			overrides: []*model.UserPermissionOverride{
				{Code: model.PermSubmissionApprove, IsGranted: true},
			},
			code: model.PermSubmissionApprove,
			want: true,
		},
		{
			name: "grant then revoke of unrelated code",
			overrides: []*model.UserPermissionOverride{
				{Code: model.PermProcedureView, IsGranted: false},
				{Code: model.PermSubmissionApprove, IsGranted: true},
			},
			code: model.PermSubmissionApprove,
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rbac := &fakeRBACRepo{
				rolePerms: map[uuid.UUID][]string{roleID: tt.baseline},
				overrides: map[uuid.UUID][]*model.UserPermissionOverride{user.ID: tt.overrides},
			}
			users := &fakeUserRepo{users: map[uuid.UUID]*model.AppUser{user.ID: user}}
			resolver := NewResolver(rbac, users, metrics.New("test"))

			got, err := resolver.Check(context.Background(), user.ID, tt.code)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolverInactiveUserHasNoPermissions(t *testing.T) {
	roleID := uuid.New()
	user := newTestUser(roleID, false)

	rbac := &fakeRBACRepo{
		rolePerms: map[uuid.UUID][]string{roleID: {model.PermProcedureView, model.PermSubmissionApprove}},
		overrides: map[uuid.UUID][]*model.UserPermissionOverride{
			user.ID: {{Code: model.PermProcedureCreate, IsGranted: true}},
		},
	}
	users := &fakeUserRepo{users: map[uuid.UUID]*model.AppUser{user.ID: user}}
	resolver := NewResolver(rbac, users, metrics.New("test"))

	effective, err := resolver.Resolve(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Empty(t, effective)

	for _, code := range []string{model.PermProcedureView, model.PermSubmissionApprove, model.PermProcedureCreate} {
		granted, err := resolver.Check(context.Background(), user.ID, code)
		require.NoError(t, err)
		assert.False(t, granted, "inactive user must not hold %s", code)
	}
}

func TestResolverUnknownUser(t *testing.T) {
	rbac := &fakeRBACRepo{}
	users := &fakeUserRepo{users: map[uuid.UUID]*model.AppUser{}}
	resolver := NewResolver(rbac, users, metrics.New("test"))

	_, err := resolver.Resolve(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrNotFound))
}

func TestResolverCountsChecks(t *testing.T) {
	roleID := uuid.New()
	user := newTestUser(roleID, true)

	rbac := &fakeRBACRepo{
		rolePerms: map[uuid.UUID][]string{roleID: {model.PermProcedureView}},
	}
	users := &fakeUserRepo{users: map[uuid.UUID]*model.AppUser{user.ID: user}}
	m := metrics.New("test")
	resolver := NewResolver(rbac, users, m)

	_, err := resolver.Check(context.Background(), user.ID, model.PermProcedureView)
	require.NoError(t, err)
	_, err = resolver.Check(context.Background(), user.ID, model.PermSubmissionApprove)
	require.NoError(t, err)
	_, err = resolver.Check(context.Background(), uuid.New(), model.PermProcedureView)
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.PermissionChecks.WithLabelValues("granted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PermissionChecks.WithLabelValues("denied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PermissionChecks.WithLabelValues("error")))
}

func TestResolverSeesOverrideChangesImmediately(t *testing.T) {
	roleID := uuid.New()
	user := newTestUser(roleID, true)

	rbac := &fakeRBACRepo{
		rolePerms: map[uuid.UUID][]string{roleID: {model.PermProcedureView}},
		overrides: map[uuid.UUID][]*model.UserPermissionOverride{},
	}
	users := &fakeUserRepo{users: map[uuid.UUID]*model.AppUser{user.ID: user}}
	resolver := NewResolver(rbac, users, metrics.New("test"))

	granted, err := resolver.Check(context.Background(), user.ID, model.PermSubmissionApprove)
	require.NoError(t, err)
	assert.False(t, granted)

	// A new override row must be visible to the very next check.
	rbac.overrides[user.ID] = []*model.UserPermissionOverride{
		{Code: model.PermSubmissionApprove, IsGranted: true},
	}

	granted, err = resolver.Check(context.Background(), user.ID, model.PermSubmissionApprove)
	require.NoError(t, err)
	assert.True(t, granted)
}
