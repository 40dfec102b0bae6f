package cli

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"

	"github.com/platinummonkey/corefacility/pkg/access"
	"github.com/platinummonkey/corefacility/pkg/config"
	"github.com/platinummonkey/corefacility/pkg/groups"
	"github.com/platinummonkey/corefacility/pkg/projects"
	"github.com/platinummonkey/corefacility/pkg/query"
	"github.com/platinummonkey/corefacility/pkg/schema"
	"github.com/platinummonkey/corefacility/pkg/users"
)

// Command represents a CLI command
type Command struct {
	Name        string
	Description string
	Run         func(env *Environment, args []string) error
	Subcommands map[string]*Command
	Flags       *flag.FlagSet
}

// Environment carries the shared backends every command operates on.
type Environment struct {
	DB       *sql.DB
	Dialect  query.Dialect
	Users    *users.Factory
	Groups   *groups.Factory
	Projects *projects.Factory
	ACLCache *access.Cache
}

// NewEnvironment opens the backends from configuration and runs any
// pending migrations, so commands always see a current schema.
func NewEnvironment(ctx context.Context, cfg *config.Config) (*Environment, error) {
	dialect := query.SQLite
	if cfg.Database.Driver == "postgres" {
		dialect = query.PostgreSQL
	}
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := schema.RunMigrations(ctx, db, dialect); err != nil {
		db.Close()
		return nil, err
	}
	var aclCache *access.Cache
	if cfg.Database.RedisAddr != "" {
		aclCache, err = access.NewCache(cfg.Database.RedisAddr, cfg.Database.RedisPassword,
			cfg.Database.RedisDB, cfg.Database.ACLCacheTTL)
		if err != nil {
			db.Close()
			return nil, err
		}
	}
	userFactory := users.NewFactory(db, dialect, users.Options{
		ManageUnixUsers: cfg.Core.ManageUnixUsers,
		BaseDir:         cfg.Core.UserBaseDir,
		AvatarRoot:      cfg.Core.AvatarRoot,
	})
	groupFactory := groups.NewFactory(db, dialect, userFactory)
	groupFactory.UseACLCache(aclCache)
	projectFactory := projects.NewFactory(db, dialect, groupFactory, userFactory, projects.Options{
		ManageUnixGroups: cfg.Core.ManageUnixGroups,
		DirRoot:          cfg.Core.ProjectDirRoot,
		AvatarRoot:       cfg.Core.AvatarRoot,
		ACLCache:         aclCache,
	})
	return &Environment{
		DB:       db,
		Dialect:  dialect,
		Users:    userFactory,
		Groups:   groupFactory,
		Projects: projectFactory,
		ACLCache: aclCache,
	}, nil
}

// Close releases the backends.
func (e *Environment) Close() error {
	if e.ACLCache != nil {
		_ = e.ACLCache.Close()
	}
	return e.DB.Close()
}

// NewRootCommand creates the root command
func NewRootCommand() *Command {
	root := &Command{
		Name:        "corefacility",
		Description: "corefacility - scientific collaboration control plane CLI",
		Subcommands: make(map[string]*Command),
		Flags:       flag.NewFlagSet("corefacility", flag.ExitOnError),
	}

	// Add subcommands
	root.Subcommands["user"] = newUserCommand()
	root.Subcommands["group"] = newGroupCommand()
	root.Subcommands["project"] = newProjectCommand()

	return root
}

// Execute runs the command
func (c *Command) Execute(env *Environment) error {
	args := os.Args[1:]
	if len(args) == 0 {
		return c.usage()
	}

	// Check for help flag
	if args[0] == "-h" || args[0] == "--help" {
		return c.usage()
	}

	// Check for subcommand
	if subcmd, ok := c.Subcommands[args[0]]; ok {
		return subcmd.dispatch(env, args[1:])
	}

	return fmt.Errorf("unknown command: %s", args[0])
}

func (c *Command) dispatch(env *Environment, args []string) error {
	if len(c.Subcommands) > 0 {
		if len(args) == 0 {
			return c.usage()
		}
		if subcmd, ok := c.Subcommands[args[0]]; ok {
			return subcmd.dispatch(env, args[1:])
		}
		return fmt.Errorf("unknown command: %s %s", c.Name, args[0])
	}
	return c.Run(env, args)
}

// usage prints the command usage
func (c *Command) usage() error {
	fmt.Printf("Usage: %s <command> [args]\n\n", c.Name)
	fmt.Printf("Commands:\n")
	for name, cmd := range c.Subcommands {
		fmt.Printf("  %-15s %s\n", name, cmd.Description)
	}
	return nil
}
