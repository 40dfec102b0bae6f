package cli

import (
	"context"
	"flag"
	"fmt"

	"github.com/platinummonkey/corefacility/pkg/groups"
	"github.com/platinummonkey/corefacility/pkg/users"
)

func newGroupCommand() *Command {
	cmd := &Command{
		Name:        "group",
		Description: "Manage scientific groups",
		Subcommands: make(map[string]*Command),
	}
	cmd.Subcommands["create"] = newGroupCreateCommand()
	cmd.Subcommands["list"] = newGroupListCommand()
	cmd.Subcommands["add-member"] = newGroupAddMemberCommand()
	cmd.Subcommands["remove-member"] = newGroupRemoveMemberCommand()
	cmd.Subcommands["members"] = newGroupMembersCommand()
	return cmd
}

func newGroupCreateCommand() *Command {
	return &Command{
		Name:        "group create",
		Description: "Create a group governed by an existing user",
		Run: func(env *Environment, args []string) error {
			fs := flag.NewFlagSet("group create", flag.ExitOnError)
			name := fs.String("name", "", "Group name")
			governor := fs.String("governor", "", "Login of the group leader")
			if err := fs.Parse(args); err != nil {
				return err
			}
			if *name == "" || *governor == "" {
				return fmt.Errorf("-name and -governor are required")
			}
			ctx := context.Background()
			leader, err := env.Users.Users().GetByLogin(ctx, *governor)
			if err != nil {
				return err
			}
			g, err := env.Groups.NewGroup(*name, leader)
			if err != nil {
				return err
			}
			if err := g.Create(ctx); err != nil {
				return err
			}
			fmt.Printf("created group %s (id %d)\n", g.Name(), g.ID())
			return nil
		},
	}
}

func newGroupListCommand() *Command {
	return &Command{
		Name:        "group list",
		Description: "List groups",
		Run: func(env *Environment, args []string) error {
			fs := flag.NewFlagSet("group list", flag.ExitOnError)
			search := fs.String("search", "", "Filter by group name")
			member := fs.String("member", "", "Only groups containing this login")
			if err := fs.Parse(args); err != nil {
				return err
			}
			ctx := context.Background()
			set := env.Groups.Groups()
			if *search != "" {
				set.SetSearchFilter(search)
			}
			if *member != "" {
				u, err := env.Users.Users().GetByLogin(ctx, *member)
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
			for _, g := range list {
				fmt.Printf("%6d %-30s governor=%d\n", g.ID(), g.Name(), g.GovernorID())
			}
			fmt.Printf("%d groups\n", len(list))
			return nil
		},
	}
}

func groupAndUser(env *Environment, fs *flag.FlagSet, args []string, groupID *int64, login *string) (ctx context.Context, g *groups.Group, u *users.User, err error) {
	if err = fs.Parse(args); err != nil {
		return nil, nil, nil, err
	}
	if *groupID == 0 || *login == "" {
		return nil, nil, nil, fmt.Errorf("-group and -login are required")
	}
	ctx = context.Background()
	grp, err := env.Groups.Groups().Get(ctx, *groupID)
	if err != nil {
		return nil, nil, nil, err
	}
	usr, err := env.Users.Users().GetByLogin(ctx, *login)
	if err != nil {
		return nil, nil, nil, err
	}
	return ctx, grp, usr, nil
}

func newGroupAddMemberCommand() *Command {
	return &Command{
		Name:        "group add-member",
		Description: "Add a user to a group",
		Run: func(env *Environment, args []string) error {
			fs := flag.NewFlagSet("group add-member", flag.ExitOnError)
			groupID := fs.Int64("group", 0, "Group ID")
			login := fs.String("login", "", "Login of the user")
			ctx, g, u, err := groupAndUser(env, fs, args, groupID, login)
			if err != nil {
				return err
			}
			if err := g.Users().Add(ctx, u); err != nil {
				return err
			}
			fmt.Printf("added %s to group %d\n", u.Login(), g.ID())
			return nil
		},
	}
}

func newGroupRemoveMemberCommand() *Command {
	return &Command{
		Name:        "group remove-member",
		Description: "Remove a user from a group",
		Run: func(env *Environment, args []string) error {
			fs := flag.NewFlagSet("group remove-member", flag.ExitOnError)
			groupID := fs.Int64("group", 0, "Group ID")
			login := fs.String("login", "", "Login of the user")
			ctx, g, u, err := groupAndUser(env, fs, args, groupID, login)
			if err != nil {
				return err
			}
			if err := g.Users().Remove(ctx, u); err != nil {
				return err
			}
			fmt.Printf("removed %s from group %d\n", u.Login(), g.ID())
			return nil
		},
	}
}

func newGroupMembersCommand() *Command {
	return &Command{
		Name:        "group members",
		Description: "List the members of a group",
		Run: func(env *Environment, args []string) error {
			fs := flag.NewFlagSet("group members", flag.ExitOnError)
			groupID := fs.Int64("group", 0, "Group ID")
			if err := fs.Parse(args); err != nil {
				return err
			}
			if *groupID == 0 {
				return fmt.Errorf("-group is required")
			}
			ctx := context.Background()
			g, err := env.Groups.Groups().Get(ctx, *groupID)
			if err != nil {
				return err
			}
			members, err := g.Users().All(ctx)
			if err != nil {
				return err
			}
			for _, u := range members {
				marker := " "
				if u.ID() == g.GovernorID() {
					marker = "*"
				}
				fmt.Printf("%6d %s %-20s %s %s\n", u.ID(), marker, u.Login(), u.Name(), u.Surname())
			}
			return nil
		},
	}
}
