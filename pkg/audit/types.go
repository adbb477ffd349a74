package audit

import "time"

// EventType represents the category of audit event
type EventType string

const (
	// Authentication events
	EventTypeAuthLogin       EventType = "auth.login"
	EventTypeAuthLoginFailed EventType = "auth.login_failed"
	EventTypeAuthLogout      EventType = "auth.logout"

	// Role administration events
	EventTypeRoleCreate            EventType = "role.create"
	EventTypeRoleUpdatePermissions EventType = "role.update_permissions"
	EventTypeRoleDelete            EventType = "role.delete"
	EventTypeUserRolesReplace      EventType = "user.roles_replace"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// ResourceType represents the type of resource being acted on
type ResourceType string

const (
	ResourceTypeRole    ResourceType = "role"
	ResourceTypeUser    ResourceType = "user"
	ResourceTypeSession ResourceType = "session"
)

// AuditEvent represents a single audit log entry
type AuditEvent struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// ActorID is the user performing the action, TargetID the user affected
	ActorID  string `json:"actor_id,omitempty"`
	TargetID string `json:"target_id,omitempty"`

	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`

	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	RequestID string `json:"request_id,omitempty"`

	Message  string                 `json:"message,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// SearchFilter represents filters for listing audit events
type SearchFilter struct {
	Since      *time.Time
	EventTypes []EventType
	ActorID    string
	TargetID   string
	Limit      int
}
