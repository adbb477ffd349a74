package rbac

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/wagerline/pkg/audit"
	"github.com/platinummonkey/wagerline/pkg/contextkeys"
)

type recordingAudit struct {
	mu     sync.Mutex
	events []*audit.AuditEvent
	err    error
}

func (r *recordingAudit) Log(ctx context.Context, event *audit.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.err
}

func (r *recordingAudit) Close() error { return nil }

func (r *recordingAudit) last() *audit.AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return nil
	}
	return r.events[len(r.events)-1]
}

type recordingInvalidator struct {
	published []Invalidation
	err       error
}

func (r *recordingInvalidator) Publish(ctx context.Context, inv Invalidation) error {
	r.published = append(r.published, inv)
	return r.err
}

func setupService(t *testing.T) (*Service, *recordingAudit, *recordingInvalidator) {
	t.Helper()

	auditLog := &recordingAudit{}
	invalidator := &recordingInvalidator{}
	return NewService(setupSeededStore(t), invalidator, auditLog, nil), auditLog, invalidator
}

func TestService_CreateRole(t *testing.T) {
	service, auditLog, invalidator := setupService(t)
	ctx := contextkeys.WithUserID(context.Background(), "admin-1")

	role, err := service.CreateRole(ctx, "tipster", []string{PermissionPremiumTips})
	require.NoError(t, err)
	assert.Equal(t, "tipster", role.Name)
	assert.Empty(t, invalidator.published)

	event := auditLog.last()
	require.NotNil(t, event)
	assert.Equal(t, audit.EventTypeRoleCreate, event.EventType)
	assert.Equal(t, audit.EventStatusSuccess, event.Status)
	assert.Equal(t, "admin-1", event.ActorID)
	assert.Equal(t, role.ID, event.ResourceID)

	_, err = service.CreateRole(ctx, "tipster", []string{PermissionPremiumTips})
	assert.ErrorIs(t, err, ErrConflict)
	event = auditLog.last()
	assert.Equal(t, audit.EventStatusFailure, event.Status)
	assert.NotEmpty(t, event.Message)
}

func TestService_UpdateRolePermissionsInvalidatesEveryone(t *testing.T) {
	service, auditLog, invalidator := setupService(t)
	ctx := context.Background()

	role, err := service.CreateRole(ctx, "tipster", []string{PermissionPremiumTips})
	require.NoError(t, err)

	updated, err := service.UpdateRolePermissions(ctx, role.ID, []string{PermissionPremiumTips, PermissionViewMatches}, role.Version)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)

	require.Len(t, invalidator.published, 1)
	assert.Empty(t, invalidator.published[0].UserID)
	assert.Equal(t, audit.EventTypeRoleUpdatePermissions, auditLog.last().EventType)

	_, err = service.UpdateRolePermissions(ctx, role.ID, []string{PermissionPremiumTips}, 1)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Len(t, invalidator.published, 1, "failed updates publish nothing")
}

func TestService_ReplaceUserRolesInvalidatesOneUser(t *testing.T) {
	service, auditLog, invalidator := setupService(t)
	ctx := context.Background()

	require.NoError(t, service.ReplaceUserRoles(ctx, "u1", []string{RoleUser, RolePremiumUser}))
	require.Len(t, invalidator.published, 1)
	assert.Equal(t, "u1", invalidator.published[0].UserID)

	event := auditLog.last()
	assert.Equal(t, audit.EventTypeUserRolesReplace, event.EventType)
	assert.Equal(t, "u1", event.TargetID)

	roles, err := service.UserRoles(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, roles, 2)

	err = service.ReplaceUserRoles(ctx, "u1", []string{"nonexistent"})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Len(t, invalidator.published, 1)
}

func TestService_DeleteRole(t *testing.T) {
	service, _, invalidator := setupService(t)
	ctx := context.Background()

	admin, err := service.Store().GetRoleByName(ctx, RoleAdmin)
	require.NoError(t, err)
	assert.ErrorIs(t, service.DeleteRole(ctx, admin.ID), ErrValidation)
	assert.Empty(t, invalidator.published)

	role, err := service.CreateRole(ctx, "tipster", []string{PermissionPremiumTips})
	require.NoError(t, err)
	require.NoError(t, service.DeleteRole(ctx, role.ID))
	require.Len(t, invalidator.published, 1)
	assert.Empty(t, invalidator.published[0].UserID)

	_, err = service.GetRole(ctx, role.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_SinkFailuresDoNotFailMutations(t *testing.T) {
	service, auditLog, invalidator := setupService(t)
	auditLog.err = errors.New("disk full")
	invalidator.err = errors.New("redis down")

	err := service.ReplaceUserRoles(context.Background(), "u1", []string{RoleUser})
	assert.NoError(t, err)
	assert.Len(t, invalidator.published, 1)
}

func TestNewService_Defaults(t *testing.T) {
	service := NewService(setupSeededStore(t), nil, nil, nil)
	_, err := service.CreateRole(context.Background(), "tipster", []string{PermissionPremiumTips})
	assert.NoError(t, err)
}
