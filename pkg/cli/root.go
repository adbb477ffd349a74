package cli

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/go-redis/redis/v8"
)

// Command represents a CLI command
type Command struct {
	Name        string
	Description string
	Run         func(args []string) error
	Subcommands map[string]*Command
	Flags       *flag.FlagSet
}

// Env is what commands need from the outside world. Tests swap the
// openers for in-memory backends.
type Env struct {
	Out       io.Writer
	Getenv    func(string) string
	OpenDB    func(ctx context.Context, dsn string) (*sql.DB, error)
	OpenRedis func(ctx context.Context, url string) (*redis.Client, error)
}

// NewRootCommand creates the root command
func NewRootCommand(env *Env) *Command {
	if env.Out == nil {
		env.Out = os.Stdout
	}
	if env.Getenv == nil {
		env.Getenv = os.Getenv
	}

	root := &Command{
		Name:        "wagerctl",
		Description: "wagerctl - role and access administration for wagerline",
		Subcommands: make(map[string]*Command),
		Flags:       flag.NewFlagSet("wagerctl", flag.ContinueOnError),
	}

	root.Subcommands["migrate"] = newMigrateCommand(env)
	root.Subcommands["seed-roles"] = newSeedCommand(env)
	root.Subcommands["roles"] = newRolesCommand(env)
	root.Subcommands["users"] = newUsersCommand(env)
	root.Subcommands["prune-audit"] = newPruneAuditCommand(env)
	root.Subcommands["audit-log"] = newAuditLogCommand(env)

	return root
}

// Execute runs the command with args, excluding the program name
func (c *Command) Execute(args []string) error {
	if len(args) == 0 {
		return c.usage(os.Stdout)
	}

	// Check for help flag
	if args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		return c.usage(os.Stdout)
	}

	// Check for subcommand
	if subcmd, ok := c.Subcommands[args[0]]; ok {
		if subcmd.Run == nil {
			return subcmd.Execute(args[1:])
		}
		return subcmd.Run(args[1:])
	}

	return fmt.Errorf("unknown command: %s", args[0])
}

// usage prints the command usage
func (c *Command) usage(w io.Writer) error {
	fmt.Fprintf(w, "Usage: %s <command> [args]\n\n", c.Name)
	fmt.Fprintf(w, "Commands:\n")

	names := make([]string, 0, len(c.Subcommands))
	for name := range c.Subcommands {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fmt.Fprintf(w, "  %-15s %s\n", name, c.Subcommands[name].Description)
	}
	return nil
}
