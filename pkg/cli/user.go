package cli

import (
	"context"
	"flag"
	"fmt"
)

func newUserCommand() *Command {
	cmd := &Command{
		Name:        "user",
		Description: "Manage user accounts",
		Subcommands: make(map[string]*Command),
	}
	cmd.Subcommands["create"] = newUserCreateCommand()
	cmd.Subcommands["list"] = newUserListCommand()
	cmd.Subcommands["lock"] = newUserLockCommand(true)
	cmd.Subcommands["unlock"] = newUserLockCommand(false)
	return cmd
}

func newUserCreateCommand() *Command {
	return &Command{
		Name:        "user create",
		Description: "Create a user account and print its generated password",
		Run: func(env *Environment, args []string) error {
			fs := flag.NewFlagSet("user create", flag.ExitOnError)
			login := fs.String("login", "", "Unique login of the account")
			name := fs.String("name", "", "First name")
			surname := fs.String("surname", "", "Last name")
			email := fs.String("email", "", "E-mail address")
			passwordLen := fs.Int("password-length", 10, "Generated password length")
			if err := fs.Parse(args); err != nil {
				return err
			}
			if *login == "" {
				return fmt.Errorf("-login is required")
			}

			u := env.Users.NewUser()
			if err := u.SetLogin(*login); err != nil {
				return err
			}
			if *name != "" {
				if err := u.SetName(*name); err != nil {
					return err
				}
			}
			if *surname != "" {
				if err := u.SetSurname(*surname); err != nil {
					return err
				}
			}
			if *email != "" {
				if err := u.SetEmail(*email); err != nil {
					return err
				}
			}
			password, err := u.GeneratePassword(*passwordLen)
			if err != nil {
				return err
			}
			if err := u.Create(context.Background()); err != nil {
				return err
			}
			fmt.Printf("created user %s (id %d)\n", u.Login(), u.ID())
			fmt.Printf("password: %s\n", password)
			return nil
		},
	}
}

func newUserListCommand() *Command {
	return &Command{
		Name:        "user list",
		Description: "List user accounts",
		Run: func(env *Environment, args []string) error {
			fs := flag.NewFlagSet("user list", flag.ExitOnError)
			search := fs.String("search", "", "Filter by login, name or surname")
			if err := fs.Parse(args); err != nil {
				return err
			}
			set := env.Users.Users()
			if *search != "" {
				set.SetSearchFilter(search)
			}
			list, err := set.All(context.Background())
			if err != nil {
				return err
			}
			for _, u := range list {
				locked := " "
				if u.IsLocked() {
					locked = "L"
				}
				fmt.Printf("%6d %s %-20s %s %s\n", u.ID(), locked, u.Login(), u.Name(), u.Surname())
			}
			fmt.Printf("%d users\n", len(list))
			return nil
		},
	}
}

func newUserLockCommand(lock bool) *Command {
	verb := "lock"
	if !lock {
		verb = "unlock"
	}
	return &Command{
		Name:        "user " + verb,
		Description: fmt.Sprintf("%s a user account", verb),
		Run: func(env *Environment, args []string) error {
			fs := flag.NewFlagSet("user "+verb, flag.ExitOnError)
			login := fs.String("login", "", "Login of the account")
			if err := fs.Parse(args); err != nil {
				return err
			}
			if *login == "" {
				return fmt.Errorf("-login is required")
			}
			ctx := context.Background()
			u, err := env.Users.Users().GetByLogin(ctx, *login)
			if err != nil {
				return err
			}
			if err := u.SetIsLocked(lock); err != nil {
				return err
			}
			if err := u.Update(ctx); err != nil {
				return err
			}
			fmt.Printf("user %s %sed\n", u.Login(), verb)
			return nil
		},
	}
}
