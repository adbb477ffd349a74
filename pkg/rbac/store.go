package rbac

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const pgErrUniqueViolation = "23505"

var roleNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)

// Store handles role and assignment persistence
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a new RBAC store
func NewStore(db *sql.DB) *Store {
	return &Store{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// DB returns the underlying database handle
func (s *Store) DB() *sql.DB {
	return s.db
}

const roleColumns = `r.id, r.name, r.permissions, r.version, r.is_built_in, r.created_at, r.updated_at`

// FetchRoles returns the roles assigned to userID. A user without
// assignments gets an empty list and a nil error.
func (s *Store) FetchRoles(ctx context.Context, userID string) ([]Role, error) {
	query := `
		SELECT ` + roleColumns + `
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = $1
		ORDER BY r.name
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to fetch roles for user %s: %w", ErrDataAccess, userID, err)
	}
	defer rows.Close()

	return scanRoles(rows)
}

// FetchAllRoles returns every defined role ordered by name
func (s *Store) FetchAllRoles(ctx context.Context) ([]Role, error) {
	query := `
		SELECT ` + roleColumns + `
		FROM roles r
		ORDER BY r.name
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list roles: %w", ErrDataAccess, err)
	}
	defer rows.Close()

	return scanRoles(rows)
}

// GetRole retrieves a role by ID
func (s *Store) GetRole(ctx context.Context, roleID string) (*Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles r WHERE r.id = $1`

	role, err := scanRole(s.db.QueryRowContext(ctx, query, roleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: role %s", ErrNotFound, roleID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get role: %w", ErrDataAccess, err)
	}
	return role, nil
}

// GetRoleByName retrieves a role by its unique name
func (s *Store) GetRoleByName(ctx context.Context, name string) (*Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles r WHERE r.name = $1`

	role, err := scanRole(s.db.QueryRowContext(ctx, query, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: role %q", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get role: %w", ErrDataAccess, err)
	}
	return role, nil
}

// CreateRole validates and inserts a new custom role
func (s *Store) CreateRole(ctx context.Context, name string, permissions []string) (*Role, error) {
	return s.insertRole(ctx, name, permissions, false)
}

func (s *Store) insertRole(ctx context.Context, name string, permissions []string, builtIn bool) (*Role, error) {
	name, err := normalizeRoleName(name)
	if err != nil {
		return nil, err
	}
	perms, err := normalizePermissions(permissions)
	if err != nil {
		return nil, err
	}

	permissionsJSON, err := json.Marshal(perms)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal permissions: %w", err)
	}

	now := s.now()
	role := &Role{
		ID:          uuid.NewString(),
		Name:        name,
		Permissions: perms,
		Version:     1,
		IsBuiltIn:   builtIn,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	query := `
		INSERT INTO roles (id, name, permissions, version, is_built_in, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = s.db.ExecContext(ctx, query,
		role.ID,
		role.Name,
		string(permissionsJSON),
		role.Version,
		role.IsBuiltIn,
		role.CreatedAt,
		role.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: role %q already exists", ErrConflict, name)
		}
		return nil, fmt.Errorf("%w: failed to create role: %w", ErrDataAccess, err)
	}

	return role, nil
}

// UpdateRolePermissions replaces the permission set of a role. With
// expectedVersion > 0 the update only applies when the stored version
// matches; 0 keeps last-writer-wins.
func (s *Store) UpdateRolePermissions(ctx context.Context, roleID string, permissions []string, expectedVersion int) (*Role, error) {
	perms, err := normalizePermissions(permissions)
	if err != nil {
		return nil, err
	}

	permissionsJSON, err := json.Marshal(perms)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal permissions: %w", err)
	}

	query := `
		UPDATE roles
		SET permissions = $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND ($4 = 0 OR version = $4)
	`
	result, err := s.db.ExecContext(ctx, query, string(permissionsJSON), s.now(), roleID, expectedVersion)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to update role permissions: %w", ErrDataAccess, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read update result: %w", ErrDataAccess, err)
	}

	if affected == 0 {
		current, err := s.GetRole(ctx, roleID)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: role %s is at version %d, expected %d", ErrConflict, roleID, current.Version, expectedVersion)
	}

	return s.GetRole(ctx, roleID)
}

// ReplaceUserRoles replaces every assignment of userID with roleNames.
// Names are resolved, old rows deleted and new rows inserted in one
// serializable transaction; any failure rolls back and is returned.
// Concurrent replacements for the same user never merge: one wins and
// the others fail with ErrDataAccess.
func (s *Store) ReplaceUserRoles(ctx context.Context, userID string, roleNames []string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrValidation)
	}
	names := dedupeStrings(roleNames)

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %w", ErrDataAccess, err)
	}
	defer func() { _ = tx.Rollback() }()

	roleIDs := make([]string, 0, len(names))
	for _, name := range names {
		var id string
		err := tx.QueryRowContext(ctx, `SELECT id FROM roles WHERE name = $1`, name).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: unknown role %q", ErrValidation, name)
		}
		if err != nil {
			return fmt.Errorf("%w: failed to resolve role %q: %w", ErrDataAccess, name, err)
		}
		roleIDs = append(roleIDs, id)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("%w: failed to clear roles for user %s: %w", ErrDataAccess, userID, err)
	}

	now := s.now()
	for _, roleID := range roleIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO user_roles (user_id, role_id, granted_at) VALUES ($1, $2, $3)`,
			userID, roleID, now,
		); err != nil {
			return fmt.Errorf("%w: failed to assign role %s to user %s: %w", ErrDataAccess, roleID, userID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit role replacement: %w", ErrDataAccess, err)
	}
	return nil
}

// DeleteRole removes a custom role and its assignments
func (s *Store) DeleteRole(ctx context.Context, roleID string) error {
	role, err := s.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if role.IsBuiltIn {
		return fmt.Errorf("%w: built-in role %q cannot be deleted", ErrValidation, role.Name)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %w", ErrDataAccess, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_roles WHERE role_id = $1`, roleID); err != nil {
		return fmt.Errorf("%w: failed to delete role assignments: %w", ErrDataAccess, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM roles WHERE id = $1`, roleID); err != nil {
		return fmt.Errorf("%w: failed to delete role: %w", ErrDataAccess, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit role deletion: %w", ErrDataAccess, err)
	}
	return nil
}

// SeedBuiltInRoles creates the built-in roles that do not exist yet
func (s *Store) SeedBuiltInRoles(ctx context.Context) ([]string, error) {
	var created []string
	for _, role := range BuiltInRoles() {
		_, err := s.GetRoleByName(ctx, role.Name)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return created, err
		}

		if _, err := s.insertRole(ctx, role.Name, role.Permissions, true); err != nil {
			if errors.Is(err, ErrConflict) {
				continue
			}
			return created, fmt.Errorf("failed to create built-in role %s: %w", role.Name, err)
		}
		created = append(created, role.Name)
	}
	return created, nil
}

func scanRoles(rows *sql.Rows) ([]Role, error) {
	roles := make([]Role, 0)
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to scan role: %w", ErrDataAccess, err)
		}
		roles = append(roles, *role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to iterate roles: %w", ErrDataAccess, err)
	}
	return roles, nil
}

// scanRole scans a role from a row or rows
func scanRole(scanner interface {
	Scan(dest ...interface{}) error
}) (*Role, error) {
	var role Role
	var permissionsJSON string

	err := scanner.Scan(
		&role.ID,
		&role.Name,
		&permissionsJSON,
		&role.Version,
		&role.IsBuiltIn,
		&role.CreatedAt,
		&role.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(permissionsJSON), &role.Permissions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal permissions of role %s: %w", role.Name, err)
	}
	if role.Permissions == nil {
		role.Permissions = []string{}
	}

	return &role, nil
}

func normalizeRoleName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: role name is required", ErrValidation)
	}
	if !roleNamePattern.MatchString(name) {
		return "", fmt.Errorf("%w: role name %q must be lowercase letters, digits or underscores", ErrValidation, name)
	}
	return name, nil
}

func normalizePermissions(permissions []string) ([]string, error) {
	perms := make([]string, 0, len(permissions))
	seen := make(map[string]struct{}, len(permissions))
	for _, p := range permissions {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, fmt.Errorf("%w: permission tokens must not be empty", ErrValidation)
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		perms = append(perms, p)
	}
	sort.Strings(perms)
	return perms, nil
}

func dedupeStrings(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// isUniqueViolation recognises unique-constraint errors from Postgres and
// from the sqlite driver used in tests
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pgErrUniqueViolation
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
