package cli

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/platinummonkey/wagerline/pkg/audit"
	"github.com/platinummonkey/wagerline/pkg/observability"
	"github.com/platinummonkey/wagerline/pkg/rbac"
)

func newMigrateCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "migrate",
		Description: "Apply pending RBAC schema migrations",
		Flags:       flag.NewFlagSet("migrate", flag.ContinueOnError),
	}
	connectionFlags(cmd.Flags, env)

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		s, err := connect(env, cmd.Flags)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := rbac.RunMigrations(s.ctx, s.db); err != nil {
			return err
		}
		applied, err := rbac.AppliedMigrations(s.ctx, s.db)
		if err != nil {
			return err
		}
		fmt.Fprintf(env.Out, "Schema up to date (%d migrations applied)\n", len(applied))
		return nil
	}
	return cmd
}

func newSeedCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "seed-roles",
		Description: "Create missing built-in roles",
		Flags:       flag.NewFlagSet("seed-roles", flag.ContinueOnError),
	}
	connectionFlags(cmd.Flags, env)

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		s, err := connect(env, cmd.Flags)
		if err != nil {
			return err
		}
		defer s.Close()

		created, err := s.service.Store().SeedBuiltInRoles(s.ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(env.Out, "Seeded built-in roles: %s\n", joinOrNone(created))
		return nil
	}
	return cmd
}

func newPruneAuditCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "prune-audit",
		Description: "Delete audit events older than the retention window",
		Flags:       flag.NewFlagSet("prune-audit", flag.ContinueOnError),
	}
	connectionFlags(cmd.Flags, env)
	retention := cmd.Flags.Duration("retention", 90*24*time.Hour, "Keep events newer than this")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *retention <= 0 {
			return fmt.Errorf("-retention must be a positive duration")
		}

		s, err := connect(env, cmd.Flags)
		if err != nil {
			return err
		}
		defer s.Close()

		pruner := audit.NewPruner(s.audit, *retention, observability.NewLogger(observability.WarnLevel, io.Discard))
		removed, err := pruner.Prune(s.ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(env.Out, "Removed %d audit events\n", removed)
		return nil
	}
	return cmd
}

func newAuditLogCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "audit-log",
		Description: "List recent audit events, newest first",
		Flags:       flag.NewFlagSet("audit-log", flag.ContinueOnError),
	}
	connectionFlags(cmd.Flags, env)
	since := cmd.Flags.Duration("since", 24*time.Hour, "Only events newer than this")
	actorID := cmd.Flags.String("by", "", "Only events performed by this actor")
	targetID := cmd.Flags.String("target", "", "Only events affecting this user")
	types := cmd.Flags.String("type", "", "Comma-separated event types (e.g. role.create,user.roles_replace)")
	limit := cmd.Flags.Int("limit", 50, "Maximum number of events")
	asJSON := cmd.Flags.Bool("json", false, "Print JSON")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}

		s, err := connect(env, cmd.Flags)
		if err != nil {
			return err
		}
		defer s.Close()

		filter := audit.SearchFilter{
			ActorID:  *actorID,
			TargetID: *targetID,
			Limit:    *limit,
		}
		if *since > 0 {
			cutoff := time.Now().UTC().Add(-*since)
			filter.Since = &cutoff
		}
		for _, t := range splitList(*types) {
			filter.EventTypes = append(filter.EventTypes, audit.EventType(t))
		}

		events, err := s.audit.Search(s.ctx, filter)
		if err != nil {
			return err
		}

		if *asJSON {
			enc := json.NewEncoder(env.Out)
			enc.SetIndent("", "  ")
			return enc.Encode(events)
		}

		w := tabwriter.NewWriter(env.Out, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "TIME\tTYPE\tSTATUS\tACTOR\tTARGET\tRESOURCE")
		for _, e := range events {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				e.Timestamp.Format(time.RFC3339), e.EventType, e.Status,
				orNone(e.ActorID), orNone(e.TargetID), orNone(e.ResourceID))
		}
		return w.Flush()
	}
	return cmd
}
