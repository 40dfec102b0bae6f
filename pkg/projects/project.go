package projects

import (
	"context"
	"database/sql"

	"github.com/platinummonkey/corefacility/pkg/access"
	"github.com/platinummonkey/corefacility/pkg/entity"
	"github.com/platinummonkey/corefacility/pkg/groups"
	"github.com/platinummonkey/corefacility/pkg/posix"
	"github.com/platinummonkey/corefacility/pkg/query"
	"github.com/platinummonkey/corefacility/pkg/users"
)

// Field names of the project entity.
const (
	FieldAlias       = "alias"
	FieldName        = "name"
	FieldDescription = "description"
	FieldAvatar      = "avatar"
	FieldRootGroup   = "root_group"
	FieldProjectDir  = "project_dir"
	FieldUnixGroup   = "unix_group"
	// FieldGovernor is derived: always the root group's governor. The
	// reader fills it; it can never be assigned.
	FieldGovernor = "governor"
)

func newSchema(avatarRoot, defaultAvatarURL string) *entity.Schema {
	return entity.NewSchema("project").
		Add(FieldAlias, entity.Alias(1, 64).Require()).
		Add(FieldName, entity.String().Min(1).Max(64).Require()).
		Add(FieldDescription, entity.String()).
		Add(FieldAvatar, entity.Managed(entity.NewFileManagerFactory(avatarRoot, defaultAvatarURL))).
		Add(FieldRootGroup, entity.Related().Require()).
		Add(FieldProjectDir, entity.ReadOnly()).
		Add(FieldUnixGroup, entity.ReadOnly()).
		Add(FieldGovernor, entity.ReadOnly())
}

// Options configures which backends participate in project persistence.
type Options struct {
	// ManageUnixGroups enables the POSIX group provider.
	ManageUnixGroups bool
	// DirRoot enables the files provider: every project gets a shared
	// directory at <DirRoot>/<alias>. Empty disables it.
	DirRoot string
	// Commands runs OS account tooling; defaults to ExecCommands.
	Commands posix.Commands
	// AvatarRoot and DefaultAvatarURL configure the avatar manager.
	AvatarRoot       string
	DefaultAvatarURL string
	// ACLCache holds resolved access lists keyed by user and project.
	// User-filtered sets consult it before the ACL aggregation and
	// refill it from scanned rows; permission mutations drop the
	// affected entries. Nil disables caching.
	ACLCache *access.Cache
}

// Factory builds project entities and their set.
type Factory struct {
	db        *sql.DB
	dialect   query.Dialect
	schema    *entity.Schema
	providers []entity.Provider
	groups    *groups.Factory
	users     *users.Factory
	opts      Options
}

// NewFactory wires the project entity against its backends.
func NewFactory(db *sql.DB, dialect query.Dialect, groupFactory *groups.Factory, userFactory *users.Factory, opts Options) *Factory {
	if opts.Commands == nil {
		opts.Commands = posix.ExecCommands{}
	}
	if opts.DefaultAvatarURL == "" {
		opts.DefaultAvatarURL = "/static/core/project.svg"
	}
	f := &Factory{
		db:      db,
		dialect: dialect,
		schema:  newSchema(opts.AvatarRoot, opts.DefaultAvatarURL),
		groups:  groupFactory,
		users:   userFactory,
		opts:    opts,
	}
	f.providers = []entity.Provider{&sqlProvider{factory: f}}
	if opts.ManageUnixGroups {
		f.providers = append(f.providers, &posixGroupProvider{factory: f})
	}
	if opts.DirRoot != "" {
		f.providers = append(f.providers, &filesProvider{factory: f})
	}
	return f
}

// NewProject returns a fresh project in the creating state.
func (f *Factory) NewProject(alias, name string, rootGroup *groups.Group) (*Project, error) {
	e := entity.New(f.schema, f.db, f.providers...)
	p := &Project{Entity: e, factory: f}
	if err := p.SetField(FieldAlias, alias); err != nil {
		return nil, err
	}
	if err := p.SetField(FieldName, name); err != nil {
		return nil, err
	}
	if err := p.SetField(FieldRootGroup, rootGroup.Entity); err != nil {
		return nil, err
	}
	return p, nil
}

// Projects returns a fresh, unfiltered entity set.
func (f *Factory) Projects() *Set {
	return &Set{factory: f}
}

// Project is the work unit that owns permissions. Its governor is
// always the governor of its root group.
type Project struct {
	*entity.Entity
	factory *Factory

	// resolved access facts, present only on sets filtered by user
	userLevels     []string
	isUserGovernor bool
}

func (p *Project) str(field string) string {
	v, _ := p.GetField(field)
	s, _ := v.(string)
	return s
}

func (p *Project) Alias() string       { return p.str(FieldAlias) }
func (p *Project) Name() string        { return p.str(FieldName) }
func (p *Project) Description() string { return p.str(FieldDescription) }
func (p *Project) ProjectDir() string  { return p.str(FieldProjectDir) }
func (p *Project) UnixGroup() string   { return p.str(FieldUnixGroup) }

func (p *Project) SetAlias(alias string) error { return p.SetField(FieldAlias, alias) }
func (p *Project) SetName(name string) error   { return p.SetField(FieldName, name) }
func (p *Project) SetDescription(d string) error {
	return p.SetField(FieldDescription, d)
}

// RootGroupID returns the id of the root group.
func (p *Project) RootGroupID() int64 {
	v, _ := p.GetField(FieldRootGroup)
	id, _ := v.(int64)
	return id
}

// RootGroup resolves the root group entity.
func (p *Project) RootGroup(ctx context.Context) (*groups.Group, error) {
	return p.factory.groups.Groups().Get(ctx, p.RootGroupID())
}

// GovernorID returns the id of the root group's governor.
func (p *Project) GovernorID() int64 {
	v, _ := p.GetField(FieldGovernor)
	id, _ := v.(int64)
	return id
}

// Governor resolves the governing user.
func (p *Project) Governor(ctx context.Context) (*users.User, error) {
	return p.factory.users.Users().Get(ctx, p.GovernorID())
}

// Avatar returns the public file manager of the project picture.
func (p *Project) Avatar() *entity.FileManager {
	v, _ := p.GetField(FieldAvatar)
	return v.(*entity.FileManager)
}

// Permissions returns the ACL manager of the project.
func (p *Project) Permissions() *access.ProjectPermissions {
	return access.NewProjectPermissions(p.factory.db, p.factory.dialect, p.ID(), p.State(), p.RootGroupID()).
		WithCache(p.factory.opts.ACLCache)
}

// Apps returns the manager over applications attached to the project.
func (p *Project) Apps() *AppList {
	return &AppList{project: p}
}

// UserAccessLevels returns the alias set resolved for the user the
// owning set was filtered by. Empty on unfiltered sets.
func (p *Project) UserAccessLevels() []string { return p.userLevels }

// IsUserGovernor reports whether the filtering user governs this
// project. False on unfiltered sets.
func (p *Project) IsUserGovernor() bool { return p.isUserGovernor }

// ProperUserAccessLevel applies winner selection to the resolved alias
// set.
func (p *Project) ProperUserAccessLevel() (string, error) {
	return access.ProperAccessLevel(p.userLevels)
}
