package rbac

import (
	"context"

	"github.com/platinummonkey/wagerline/pkg/audit"
	"github.com/platinummonkey/wagerline/pkg/observability"
)

// Service wraps the store with cache invalidation, audit logging and
// mutation metrics. Admin HTTP handlers and the CLI both go through it.
type Service struct {
	store       *Store
	invalidator Invalidator
	audit       audit.Logger
	metrics     *observability.Metrics
}

// NewService creates a role service. A nil invalidator or audit logger is
// replaced by a no-op.
func NewService(store *Store, invalidator Invalidator, auditLogger audit.Logger, metrics *observability.Metrics) *Service {
	if invalidator == nil {
		invalidator = noopInvalidator{}
	}
	if auditLogger == nil {
		auditLogger = audit.NoopLogger{}
	}
	return &Service{
		store:       store,
		invalidator: invalidator,
		audit:       auditLogger,
		metrics:     metrics,
	}
}

// Store exposes the underlying store for read paths such as the resolver
func (s *Service) Store() *Store {
	return s.store
}

func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.store.FetchAllRoles(ctx)
}

func (s *Service) GetRole(ctx context.Context, roleID string) (*Role, error) {
	return s.store.GetRole(ctx, roleID)
}

func (s *Service) UserRoles(ctx context.Context, userID string) ([]Role, error) {
	return s.store.FetchRoles(ctx, userID)
}

// CreateRole creates a custom role. New roles have no holders so nothing
// is invalidated.
func (s *Service) CreateRole(ctx context.Context, name string, permissions []string) (*Role, error) {
	role, err := s.store.CreateRole(ctx, name, permissions)
	s.metrics.RecordRoleMutation("create", err)

	event := s.event(ctx, audit.EventTypeRoleCreate, err)
	event.ResourceType = audit.ResourceTypeRole
	event.Metadata["name"] = name
	if role != nil {
		event.ResourceID = role.ID
		event.Metadata["permissions"] = role.Permissions
	}
	s.record(ctx, event)

	return role, err
}

// UpdateRolePermissions changes a role's permission set and invalidates
// every cached user, since any of them may hold the role
func (s *Service) UpdateRolePermissions(ctx context.Context, roleID string, permissions []string, expectedVersion int) (*Role, error) {
	role, err := s.store.UpdateRolePermissions(ctx, roleID, permissions, expectedVersion)
	s.metrics.RecordRoleMutation("update_permissions", err)

	event := s.event(ctx, audit.EventTypeRoleUpdatePermissions, err)
	event.ResourceType = audit.ResourceTypeRole
	event.ResourceID = roleID
	event.Metadata["permissions"] = permissions
	event.Metadata["expected_version"] = expectedVersion
	s.record(ctx, event)

	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, Invalidation{Reason: "role permissions updated"})
	return role, nil
}

// DeleteRole removes a custom role and invalidates every cached user
func (s *Service) DeleteRole(ctx context.Context, roleID string) error {
	err := s.store.DeleteRole(ctx, roleID)
	s.metrics.RecordRoleMutation("delete", err)

	event := s.event(ctx, audit.EventTypeRoleDelete, err)
	event.ResourceType = audit.ResourceTypeRole
	event.ResourceID = roleID
	s.record(ctx, event)

	if err != nil {
		return err
	}
	s.invalidate(ctx, Invalidation{Reason: "role deleted"})
	return nil
}

// ReplaceUserRoles replaces the full role set of a user and invalidates
// that user only
func (s *Service) ReplaceUserRoles(ctx context.Context, userID string, roleNames []string) error {
	err := s.store.ReplaceUserRoles(ctx, userID, roleNames)
	s.metrics.RecordRoleMutation("replace_user_roles", err)

	event := s.event(ctx, audit.EventTypeUserRolesReplace, err)
	event.TargetID = userID
	event.ResourceType = audit.ResourceTypeUser
	event.ResourceID = userID
	event.Metadata["roles"] = roleNames
	s.record(ctx, event)

	if err != nil {
		return err
	}
	s.invalidate(ctx, Invalidation{UserID: userID, Reason: "user roles replaced"})
	return nil
}

func (s *Service) event(ctx context.Context, eventType audit.EventType, err error) *audit.AuditEvent {
	status := audit.EventStatusSuccess
	if err != nil {
		status = audit.EventStatusFailure
	}
	event := audit.NewEvent(ctx, nil, eventType, status)
	if err != nil {
		event.Message = err.Error()
	}
	return event
}

// record writes the audit event; a failing audit sink never fails the
// mutation that already happened
func (s *Service) record(ctx context.Context, event *audit.AuditEvent) {
	if err := s.audit.Log(ctx, event); err != nil {
		observability.FromContext(ctx).WithError(err).
			WithField("event_type", string(event.EventType)).
			Warn("Failed to write audit event")
	}
}

// invalidate publishes after a committed change. A publish failure leaves
// caches to expire by TTL; it is logged but the change stands.
func (s *Service) invalidate(ctx context.Context, inv Invalidation) {
	if err := s.invalidator.Publish(ctx, inv); err != nil {
		observability.FromContext(ctx).WithError(err).
			WithField("invalidated_user", inv.UserID).
			Error("Failed to publish role invalidation")
	}
}
