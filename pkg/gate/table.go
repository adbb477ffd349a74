package gate

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/wagerline/pkg/rbac"
)

//go:embed routes.yaml
var defaultRoutes []byte

// AccessClass is the requirement a rule places on a path
type AccessClass string

const (
	AccessPublic        AccessClass = "public"
	AccessAuthOnly      AccessClass = "auth_only"
	AccessAuthenticated AccessClass = "authenticated"
	AccessAdmin         AccessClass = "admin"
	AccessRole          AccessClass = "role"
	AccessPermission    AccessClass = "permission"
	AccessDispatch      AccessClass = "dispatch"
)

func (a AccessClass) valid() bool {
	switch a {
	case AccessPublic, AccessAuthOnly, AccessAuthenticated, AccessAdmin,
		AccessRole, AccessPermission, AccessDispatch:
		return true
	}
	return false
}

// Rule classifies a path prefix
type Rule struct {
	Prefix      string      `yaml:"prefix"`
	Exact       bool        `yaml:"exact"`
	Access      AccessClass `yaml:"access"`
	Role        string      `yaml:"role"`
	Permissions []string    `yaml:"permissions"`
	Fallback    string      `yaml:"fallback"`
}

// NavItem is one entry of the navigation menu
type NavItem struct {
	Label string `yaml:"label" json:"label"`
	Path  string `yaml:"path" json:"path"`
}

// Table is the declarative route table
type Table struct {
	Login        string            `yaml:"login"`
	Unauthorized string            `yaml:"unauthorized"`
	Error        string            `yaml:"error"`
	ReturnParam  string            `yaml:"return_param"`
	DefaultHome  string            `yaml:"default_home"`
	Homes        map[string]string `yaml:"homes"`
	APIPrefixes  []string          `yaml:"api_prefixes"`
	Rules        []Rule            `yaml:"rules"`
	NavItems     []NavItem         `yaml:"nav"`

	exact    map[string]Rule
	prefixes []Rule
}

var publicRule = Rule{Access: AccessPublic}

// DefaultTable returns the embedded route table
func DefaultTable() (*Table, error) {
	return ParseTable(defaultRoutes)
}

// LoadTable reads a route table from path, or the embedded table when path
// is empty
func LoadTable(path string) (*Table, error) {
	if path == "" {
		return DefaultTable()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read route table: %w", err)
	}
	return ParseTable(data)
}

// ParseTable decodes and validates a YAML route table
func ParseTable(data []byte) (*Table, error) {
	var t Table
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil {
		return nil, fmt.Errorf("failed to parse route table: %w", err)
	}
	if err := t.init(); err != nil {
		return nil, err
	}
	return &t, nil
}

func (t *Table) init() error {
	if t.ReturnParam == "" {
		t.ReturnParam = "redirectedFrom"
	}
	for name, p := range map[string]string{"login": t.Login, "unauthorized": t.Unauthorized, "error": t.Error, "default_home": t.DefaultHome} {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("route table: %s must be an absolute path, got %q", name, p)
		}
	}
	for role, home := range t.Homes {
		if !strings.HasPrefix(home, "/") {
			return fmt.Errorf("route table: home for %s must be an absolute path, got %q", role, home)
		}
	}

	t.exact = make(map[string]Rule)
	t.prefixes = nil
	for i, rule := range t.Rules {
		if !strings.HasPrefix(rule.Prefix, "/") {
			return fmt.Errorf("route table: rule %d: prefix must start with /", i)
		}
		if !rule.Access.valid() {
			return fmt.Errorf("route table: rule %s: unknown access %q", rule.Prefix, rule.Access)
		}
		if rule.Access == AccessRole && rule.Role == "" {
			return fmt.Errorf("route table: rule %s: role access needs a role", rule.Prefix)
		}
		if rule.Access == AccessPermission && len(rule.Permissions) == 0 {
			return fmt.Errorf("route table: rule %s: permission access needs permissions", rule.Prefix)
		}
		if rule.Fallback != "" && !strings.HasPrefix(rule.Fallback, "/") {
			return fmt.Errorf("route table: rule %s: fallback must be an absolute path", rule.Prefix)
		}

		rule.Prefix = trimSlash(rule.Prefix)
		t.Rules[i] = rule
		if rule.Exact {
			if _, dup := t.exact[rule.Prefix]; dup {
				return fmt.Errorf("route table: duplicate exact rule %s", rule.Prefix)
			}
			t.exact[rule.Prefix] = rule
			continue
		}
		t.prefixes = append(t.prefixes, rule)
	}

	sort.SliceStable(t.prefixes, func(i, j int) bool {
		return len(t.prefixes[i].Prefix) > len(t.prefixes[j].Prefix)
	})
	return nil
}

// Match returns the rule governing path. Unmatched paths are public.
func (t *Table) Match(path string) Rule {
	path = trimSlash(path)
	if rule, ok := t.exact[path]; ok {
		return rule
	}
	for _, rule := range t.prefixes {
		if underPrefix(path, rule.Prefix) {
			return rule
		}
	}
	return publicRule
}

// IsAPI reports whether path is served as JSON rather than pages
func (t *Table) IsAPI(path string) bool {
	for _, prefix := range t.APIPrefixes {
		if underPrefix(trimSlash(path), trimSlash(prefix)) {
			return true
		}
	}
	return false
}

// Home returns the canonical home of access: the admin home for admins,
// otherwise the home of the highest-priority role that has one
func (t *Table) Home(access *rbac.Access) string {
	if access.IsAdmin() {
		if home, ok := t.Homes[rbac.RoleAdmin]; ok {
			return home
		}
	}
	if access != nil {
		for _, role := range rbac.SortByPriority(access.Roles) {
			if home, ok := t.Homes[role.Name]; ok {
				return home
			}
		}
	}
	return t.DefaultHome
}

// Nav returns the menu entries access may open. A nil access is an
// anonymous visitor.
func (t *Table) Nav(access *rbac.Access) []NavItem {
	items := make([]NavItem, 0, len(t.NavItems))
	for _, item := range t.NavItems {
		if t.visible(t.Match(item.Path), access) {
			items = append(items, item)
		}
	}
	return items
}

func (t *Table) visible(rule Rule, access *rbac.Access) bool {
	switch rule.Access {
	case AccessPublic:
		return true
	case AccessAuthOnly:
		return access == nil
	}
	if !access.HasRoles() {
		return false
	}
	allowed, _ := t.allows(rule, access)
	return allowed
}

// allows evaluates a non-public rule for a principal holding roles. The
// second result is the redirect target on denial.
func (t *Table) allows(rule Rule, access *rbac.Access) (bool, string) {
	deniedTo := rule.Fallback
	if deniedTo == "" {
		deniedTo = t.Unauthorized
	}

	switch rule.Access {
	case AccessAuthenticated, AccessDispatch, AccessAuthOnly, AccessPublic:
		return true, ""
	case AccessAdmin:
		return access.IsAdmin(), t.Unauthorized
	case AccessRole:
		return access.IsAdmin() || access.HasRole(rule.Role), deniedTo
	case AccessPermission:
		return access.IsAdmin() || access.HasAnyPermission(rule.Permissions), deniedTo
	}
	return false, t.Unauthorized
}

func underPrefix(path, prefix string) bool {
	if prefix == "/" {
		return true
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func trimSlash(p string) string {
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
		if p == "" {
			return "/"
		}
	}
	return p
}
