package cli

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/platinummonkey/wagerline/pkg/rbac"
)

func newRolesCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "roles",
		Description: "Role management commands",
		Subcommands: make(map[string]*Command),
	}
	cmd.Subcommands["list"] = newRolesListCommand(env)
	cmd.Subcommands["create"] = newRolesCreateCommand(env)
	cmd.Subcommands["set-permissions"] = newRolesSetPermissionsCommand(env)
	cmd.Subcommands["delete"] = newRolesDeleteCommand(env)
	return cmd
}

func newRolesListCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "list",
		Description: "List all roles",
		Flags:       flag.NewFlagSet("roles list", flag.ContinueOnError),
	}
	connectionFlags(cmd.Flags, env)
	cmd.Flags.Bool("json", false, "Output in JSON format")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		s, err := connect(env, cmd.Flags)
		if err != nil {
			return err
		}
		defer s.Close()

		roles, err := s.service.ListRoles(s.ctx)
		if err != nil {
			return err
		}

		if cmd.Flags.Lookup("json").Value.String() == "true" {
			enc := json.NewEncoder(env.Out)
			enc.SetIndent("", "  ")
			return enc.Encode(roles)
		}
		printRoles(env.Out, roles)
		return nil
	}
	return cmd
}

func newRolesCreateCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "create",
		Description: "Create a custom role",
		Flags:       flag.NewFlagSet("roles create", flag.ContinueOnError),
	}
	connectionFlags(cmd.Flags, env)
	cmd.Flags.String("name", "", "Role name")
	cmd.Flags.String("permissions", "", "Comma-separated permission tokens")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		name := cmd.Flags.Lookup("name").Value.String()
		if name == "" {
			return fmt.Errorf("-name is required")
		}

		s, err := connect(env, cmd.Flags)
		if err != nil {
			return err
		}
		defer s.Close()

		role, err := s.service.CreateRole(s.ctx, name, splitList(cmd.Flags.Lookup("permissions").Value.String()))
		if err != nil {
			return err
		}
		fmt.Fprintf(env.Out, "Created role %s (%s)\n", role.Name, role.ID)
		return nil
	}
	return cmd
}

func newRolesSetPermissionsCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "set-permissions",
		Description: "Replace a role's permission set",
		Flags:       flag.NewFlagSet("roles set-permissions", flag.ContinueOnError),
	}
	connectionFlags(cmd.Flags, env)
	cmd.Flags.String("role", "", "Role name or id")
	cmd.Flags.String("permissions", "", "Comma-separated permission tokens")
	version := cmd.Flags.Int("version", 0, "Expected role version; 0 skips the check")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}

		s, err := connect(env, cmd.Flags)
		if err != nil {
			return err
		}
		defer s.Close()

		role, err := findRole(s, cmd.Flags.Lookup("role").Value.String())
		if err != nil {
			return err
		}

		updated, err := s.service.UpdateRolePermissions(s.ctx, role.ID, splitList(cmd.Flags.Lookup("permissions").Value.String()), *version)
		if err != nil {
			return err
		}
		fmt.Fprintf(env.Out, "Updated role %s to version %d: %s\n", updated.Name, updated.Version, strings.Join(updated.Permissions, ","))
		return nil
	}
	return cmd
}

func newRolesDeleteCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "delete",
		Description: "Delete a custom role",
		Flags:       flag.NewFlagSet("roles delete", flag.ContinueOnError),
	}
	connectionFlags(cmd.Flags, env)
	cmd.Flags.String("role", "", "Role name or id")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}

		s, err := connect(env, cmd.Flags)
		if err != nil {
			return err
		}
		defer s.Close()

		role, err := findRole(s, cmd.Flags.Lookup("role").Value.String())
		if err != nil {
			return err
		}
		if err := s.service.DeleteRole(s.ctx, role.ID); err != nil {
			return err
		}
		fmt.Fprintf(env.Out, "Deleted role %s\n", role.Name)
		return nil
	}
	return cmd
}

// findRole looks a role up by name first, then by id
func findRole(s *session, ref string) (*rbac.Role, error) {
	if ref == "" {
		return nil, fmt.Errorf("-role is required")
	}
	if role, err := s.service.Store().GetRoleByName(s.ctx, ref); err == nil {
		return role, nil
	}
	return s.service.GetRole(s.ctx, ref)
}

func printRoles(out io.Writer, roles []rbac.Role) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "NAME\tVERSION\tBUILT-IN\tPERMISSIONS\tID")
	for _, role := range roles {
		builtIn := "no"
		if role.IsBuiltIn {
			builtIn = "yes"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", role.Name, role.Version, builtIn, strings.Join(role.Permissions, ","), role.ID)
	}
	w.Flush()
}

func splitList(value string) []string {
	result := []string{}
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
