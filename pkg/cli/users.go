package cli

import (
	"flag"
	"fmt"
	"strings"

	"github.com/platinummonkey/wagerline/pkg/rbac"
)

func newUsersCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "users",
		Description: "User role assignment commands",
		Subcommands: make(map[string]*Command),
	}
	cmd.Subcommands["show"] = newUsersShowCommand(env)
	cmd.Subcommands["set-roles"] = newUsersSetRolesCommand(env)
	return cmd
}

func newUsersShowCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "show",
		Description: "Show a user's roles and effective permissions",
		Flags:       flag.NewFlagSet("users show", flag.ContinueOnError),
	}
	connectionFlags(cmd.Flags, env)
	cmd.Flags.String("user", "", "User id")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		userID := cmd.Flags.Lookup("user").Value.String()
		if userID == "" {
			return fmt.Errorf("-user is required")
		}

		s, err := connect(env, cmd.Flags)
		if err != nil {
			return err
		}
		defer s.Close()

		roles, err := s.service.UserRoles(s.ctx, userID)
		if err != nil {
			return err
		}

		snap := rbac.NewAccess(userID, "", roles).Snapshot()
		fmt.Fprintf(env.Out, "User:        %s\n", userID)
		fmt.Fprintf(env.Out, "Roles:       %s\n", joinOrNone(snap.Roles))
		fmt.Fprintf(env.Out, "Permissions: %s\n", joinOrNone(snap.Permissions))
		fmt.Fprintf(env.Out, "Primary:     %s\n", orNone(snap.PrimaryRole))
		fmt.Fprintf(env.Out, "Admin:       %t\n", snap.IsAdmin)
		return nil
	}
	return cmd
}

func newUsersSetRolesCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "set-roles",
		Description: "Replace a user's role assignments",
		Flags:       flag.NewFlagSet("users set-roles", flag.ContinueOnError),
	}
	connectionFlags(cmd.Flags, env)
	cmd.Flags.String("user", "", "User id")
	cmd.Flags.String("roles", "", "Comma-separated role names; empty removes every role")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		userID := cmd.Flags.Lookup("user").Value.String()
		if userID == "" {
			return fmt.Errorf("-user is required")
		}

		s, err := connect(env, cmd.Flags)
		if err != nil {
			return err
		}
		defer s.Close()

		roleNames := splitList(cmd.Flags.Lookup("roles").Value.String())
		if err := s.service.ReplaceUserRoles(s.ctx, userID, roleNames); err != nil {
			return err
		}
		fmt.Fprintf(env.Out, "User %s now holds: %s\n", userID, joinOrNone(roleNames))
		return nil
	}
	return cmd
}

func joinOrNone(values []string) string {
	if len(values) == 0 {
		return "(none)"
	}
	return strings.Join(values, ", ")
}

func orNone(value string) string {
	if value == "" {
		return "(none)"
	}
	return value
}
