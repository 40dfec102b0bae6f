package cli

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/platinummonkey/corefacility/pkg/access"
)

func newProjectCommand() *Command {
	cmd := &Command{
		Name:        "project",
		Description: "Manage projects and their access control lists",
		Subcommands: make(map[string]*Command),
	}
	cmd.Subcommands["create"] = newProjectCreateCommand()
	cmd.Subcommands["list"] = newProjectListCommand()
	cmd.Subcommands["acl"] = newProjectACLCommand()
	cmd.Subcommands["grant"] = newProjectGrantCommand()
	cmd.Subcommands["revoke"] = newProjectRevokeCommand()
	return cmd
}

func newProjectCreateCommand() *Command {
	return &Command{
		Name:        "project create",
		Description: "Create a project owned by an existing group",
		Run: func(env *Environment, args []string) error {
			fs := flag.NewFlagSet("project create", flag.ExitOnError)
			alias := fs.String("alias", "", "URL-safe project alias")
			name := fs.String("name", "", "Human readable project name")
			groupID := fs.Int64("group", 0, "Root group ID")
			description := fs.String("description", "", "Optional description")
			if err := fs.Parse(args); err != nil {
				return err
			}
			if *alias == "" || *name == "" || *groupID == 0 {
				return fmt.Errorf("-alias, -name and -group are required")
			}
			ctx := context.Background()
			g, err := env.Groups.Groups().Get(ctx, *groupID)
			if err != nil {
				return err
			}
			p, err := env.Projects.NewProject(*alias, *name, g)
			if err != nil {
				return err
			}
			if *description != "" {
				if err := p.SetDescription(*description); err != nil {
					return err
				}
			}
			if err := p.Create(ctx); err != nil {
				return err
			}
			fmt.Printf("created project %s (id %d)\n", p.Alias(), p.ID())
			return nil
		},
	}
}

func newProjectListCommand() *Command {
	return &Command{
		Name:        "project list",
		Description: "List projects, optionally as seen by one user",
		Run: func(env *Environment, args []string) error {
			fs := flag.NewFlagSet("project list", flag.ExitOnError)
			search := fs.String("search", "", "Filter by alias or name")
			login := fs.String("user", "", "Show only projects this user can access")
			if err := fs.Parse(args); err != nil {
				return err
			}
			ctx := context.Background()
			set := env.Projects.Projects()
			if *search != "" {
				set.SetSearchFilter(search)
			}
			if *login != "" {
				u, err := env.Users.Users().GetByLogin(ctx, *login)
				if err != nil {
					return err
				}
				id := u.ID()
				set.SetUserFilter(&id)
			}
			list, err := set.All(ctx)
			if err != nil {
				return err
			}
			for _, p := range list {
				line := fmt.Sprintf("%6d %-20s %s", p.ID(), p.Alias(), p.Name())
				if *login != "" {
					level, err := p.ProperUserAccessLevel()
					if err != nil {
						return err
					}
					if p.IsUserGovernor() {
						level += " (governor)"
					}
					line += " " + level
				}
				fmt.Println(line)
			}
			fmt.Printf("%d projects\n", len(list))
			return nil
		},
	}
}

func newProjectACLCommand() *Command {
	return &Command{
		Name:        "project acl",
		Description: "Print the access control list of a project",
		Run: func(env *Environment, args []string) error {
			fs := flag.NewFlagSet("project acl", flag.ExitOnError)
			alias := fs.String("alias", "", "Project alias")
			if err := fs.Parse(args); err != nil {
				return err
			}
			if *alias == "" {
				return fmt.Errorf("-alias is required")
			}
			ctx := context.Background()
			p, err := env.Projects.Projects().GetByAlias(ctx, *alias)
			if err != nil {
				return err
			}
			entries, err := p.Permissions().Iterate(ctx)
			if err != nil {
				return err
			}
			for _, e := range entries {
				subject := "*"
				if e.GroupID != nil {
					subject = fmt.Sprintf("group %d", *e.GroupID)
				}
				fmt.Printf("%-12s %s\n", subject, e.Level.Alias)
			}
			return nil
		},
	}
}

func newProjectGrantCommand() *Command {
	return &Command{
		Name:        "project grant",
		Description: "Grant a group an access level on a project",
		Run: func(env *Environment, args []string) error {
			fs := flag.NewFlagSet("project grant", flag.ExitOnError)
			alias := fs.String("alias", "", "Project alias")
			groupID := fs.Int64("group", 0, "Group ID")
			levelAlias := fs.String("level", "", "Access level alias, e.g. full or data_view")
			if err := fs.Parse(args); err != nil {
				return err
			}
			if *alias == "" || *groupID == 0 || *levelAlias == "" {
				return fmt.Errorf("-alias, -group and -level are required")
			}
			ctx := context.Background()
			p, err := env.Projects.Projects().GetByAlias(ctx, *alias)
			if err != nil {
				return err
			}
			g, err := env.Groups.Groups().Get(ctx, *groupID)
			if err != nil {
				return err
			}
			store := access.NewLevelStore(env.DB, env.Dialect)
			level, err := store.Get(ctx, access.ProjectLevel, strings.TrimSpace(*levelAlias))
			if err != nil {
				return err
			}
			if err := p.Permissions().Set(ctx, g, level); err != nil {
				return err
			}
			fmt.Printf("granted %s on %s to group %d\n", level.Alias, p.Alias(), g.ID())
			return nil
		},
	}
}

func newProjectRevokeCommand() *Command {
	return &Command{
		Name:        "project revoke",
		Description: "Remove a group from a project access control list",
		Run: func(env *Environment, args []string) error {
			fs := flag.NewFlagSet("project revoke", flag.ExitOnError)
			alias := fs.String("alias", "", "Project alias")
			groupID := fs.Int64("group", 0, "Group ID")
			if err := fs.Parse(args); err != nil {
				return err
			}
			if *alias == "" || *groupID == 0 {
				return fmt.Errorf("-alias and -group are required")
			}
			ctx := context.Background()
			p, err := env.Projects.Projects().GetByAlias(ctx, *alias)
			if err != nil {
				return err
			}
			if err := p.Permissions().Delete(ctx, groupID); err != nil {
				return err
			}
			fmt.Printf("revoked group %d from %s\n", *groupID, p.Alias())
			return nil
		},
	}
}
