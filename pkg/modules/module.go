package modules

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/corefacility/pkg/access"
	"github.com/platinummonkey/corefacility/pkg/entity"
	"github.com/platinummonkey/corefacility/pkg/groups"
	"github.com/platinummonkey/corefacility/pkg/projects"
	"github.com/platinummonkey/corefacility/pkg/query"
	"github.com/platinummonkey/corefacility/pkg/users"
)

// State tracks where a module instance is in its lifecycle.
type State int

const (
	// Found is a registered instance not yet resolved against storage.
	Found State = iota
	// Loaded was resolved against its row and carries no pending edits.
	Loaded
	// Uninstalled has no backing row.
	Uninstalled
	// Changed carries setting edits that Update has not flushed yet.
	Changed
	// Saved has been written and carries no pending edits.
	Saved
	// Deleted has been uninstalled; every further operation fails.
	Deleted
	// Deprecated was dropped from the registry by Reset.
	Deprecated
)

func (s State) String() string {
	switch s {
	case Found:
		return "found"
	case Loaded:
		return "loaded"
	case Uninstalled:
		return "uninstalled"
	case Changed:
		return "changed"
	case Saved:
		return "saved"
	case Deleted:
		return "deleted"
	case Deprecated:
		return "deprecated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// EntryPointType tells whether an entry point renders its children as
// an open list or as a single selected module.
type EntryPointType string

const (
	ListEntryPoint   EntryPointType = "lst"
	SelectEntryPoint EntryPointType = "sel"
)

// EntryPointDefinition declares one extension slot of a module,
// together with the child modules shipped for it.
type EntryPointDefinition struct {
	Alias    string
	Name     string
	Type     EntryPointType
	Class    string
	Children []Definition
}

// Definition is the static description a module registers itself with.
// AppClass doubles as the registry key, so two registrations of the
// same class always resolve to the same instance.
type Definition struct {
	Alias         string
	Name          string
	HTMLCode      string
	AppClass      string
	PackagePath   string
	IsApplication bool
	EntryPoints   []EntryPointDefinition
}

// Env carries the shared backends every module instance operates on.
// Groups and Projects are optional: installed modules that serve
// project-scoped routes resolve their entities through them.
type Env struct {
	DB        *sql.DB
	Dialect   query.Dialect
	RoutesDir string
	Users     *users.Factory
	Groups    *groups.Factory
	Projects  *projects.Factory
	Levels    *access.LevelStore
	Logger    *logrus.Logger
}

// EntryPoint is the runtime face of one installed extension slot.
type EntryPoint struct {
	id     int64
	alias  string
	name   string
	kind   EntryPointType
	class  string
	module *Module
}

func (ep *EntryPoint) ID() int64            { return ep.id }
func (ep *EntryPoint) Alias() string        { return ep.alias }
func (ep *EntryPoint) Name() string         { return ep.name }
func (ep *EntryPoint) Type() EntryPointType { return ep.kind }
func (ep *EntryPoint) Module() *Module      { return ep.module }

// Module is the runtime singleton of one registered plugin. Row data
// is lazy: the first access to the UUID, settings or enabled flag
// resolves the instance against storage.
type Module struct {
	def      Definition
	env      *Env
	state    State
	uuid     string
	uuidHint string
	parentEP *EntryPoint
	settings map[string]any
	enabled  bool
}

func (m *Module) Definition() Definition { return m.def }
func (m *Module) Alias() string          { return m.def.Alias }
func (m *Module) Name() string           { return m.def.Name }
func (m *Module) IsApplication() bool    { return m.def.IsApplication }
func (m *Module) State() State           { return m.state }

// IsRoot reports whether the module sits at the top of the install
// graph. Only the root module has no parent entry point.
func (m *Module) IsRoot() bool { return m.parentEP == nil }

// UseUUID hints the storage key before the first autoload, bypassing
// the (parent entry point, alias) lookup.
func (m *Module) UseUUID(u string) { m.uuidHint = u }

// UUID resolves the instance if needed and returns its storage key.
// Empty for uninstalled modules.
func (m *Module) UUID(ctx context.Context) (string, error) {
	if err := m.autoload(ctx); err != nil {
		return "", err
	}
	return m.uuid, nil
}

// IsEnabled resolves the instance if needed and reports the stored
// enabled flag.
func (m *Module) IsEnabled(ctx context.Context) (bool, error) {
	if err := m.autoload(ctx); err != nil {
		return false, err
	}
	return m.enabled, nil
}

// SetEnabled marks the flag for the next Update.
func (m *Module) SetEnabled(ctx context.Context, enabled bool) error {
	if err := m.autoload(ctx); err != nil {
		return err
	}
	if m.state == Uninstalled || m.state == Deleted {
		return entity.ErrOperationNotPermitted
	}
	m.enabled = enabled
	m.state = Changed
	return nil
}

// GetSetting returns a stored user setting or def when absent.
func (m *Module) GetSetting(ctx context.Context, key string, def any) (any, error) {
	if err := m.autoload(ctx); err != nil {
		return nil, err
	}
	if v, ok := m.settings[key]; ok {
		return v, nil
	}
	return def, nil
}

// SetSetting stores a user setting for the next Update.
func (m *Module) SetSetting(ctx context.Context, key string, value any) error {
	if err := m.autoload(ctx); err != nil {
		return err
	}
	if m.state == Uninstalled || m.state == Deleted {
		return entity.ErrOperationNotPermitted
	}
	next := make(map[string]any, len(m.settings)+1)
	for k, v := range m.settings {
		next[k] = v
	}
	next[key] = value
	m.settings = next
	m.state = Changed
	return nil
}

// Update flushes setting and flag edits. A module without pending
// edits is left untouched.
func (m *Module) Update(ctx context.Context) error {
	if m.state != Changed {
		if m.state == Loaded || m.state == Saved {
			return nil
		}
		return entity.ErrOperationNotPermitted
	}
	raw, err := json.Marshal(m.settings)
	if err != nil {
		return fmt.Errorf("encode settings of %s: %w", m.def.Alias, err)
	}
	q := m.env.Dialect.Rebind(
		"UPDATE core_module SET user_settings = ?, is_enabled = ? WHERE uuid = ?")
	if _, err := m.env.DB.ExecContext(ctx, q, string(raw), m.enabled, m.uuid); err != nil {
		return fmt.Errorf("update module %s: %w", m.def.Alias, err)
	}
	m.state = Saved
	return nil
}

// Permissions returns the application ACL manager of an installed
// application module. Install seeds it with a wildcard "add" row, so a
// fresh application is attachable by every group until its ACL is
// narrowed.
func (m *Module) Permissions(ctx context.Context) (*access.AppPermissions, error) {
	if !m.def.IsApplication {
		return nil, entity.ErrOperationNotPermitted
	}
	if err := m.autoload(ctx); err != nil {
		return nil, err
	}
	if m.state == Uninstalled || m.state == Deleted {
		return nil, entity.ErrOperationNotPermitted
	}
	return access.NewAppPermissions(m.env.DB, m.env.Dialect, m.uuid), nil
}

// EntryPoints resolves the installed entry point rows of this module.
func (m *Module) EntryPoints(ctx context.Context) ([]*EntryPoint, error) {
	if err := m.autoload(ctx); err != nil {
		return nil, err
	}
	if m.state == Uninstalled || m.state == Deleted {
		return nil, entity.ErrOperationNotPermitted
	}
	q := m.env.Dialect.Rebind(
		"SELECT id, alias, name, type, entry_point_class FROM core_entrypoint WHERE belonging_module_uuid = ? ORDER BY id")
	rows, err := m.env.DB.QueryContext(ctx, q, m.uuid)
	if err != nil {
		return nil, fmt.Errorf("list entry points of %s: %w", m.def.Alias, err)
	}
	defer rows.Close()
	var out []*EntryPoint
	for rows.Next() {
		ep := &EntryPoint{module: m}
		if err := rows.Scan(&ep.id, &ep.alias, &ep.name, &ep.kind, &ep.class); err != nil {
			return nil, err
		}
		out = append(out, ep)
	}
	return out, rows.Err()
}

// EntryPoint resolves one installed slot by alias.
func (m *Module) EntryPoint(ctx context.Context, alias string) (*EntryPoint, error) {
	eps, err := m.EntryPoints(ctx)
	if err != nil {
		return nil, err
	}
	for _, ep := range eps {
		if ep.alias == alias {
			return ep, nil
		}
	}
	return nil, entity.ErrEntityNotFound
}

// autoload resolves a Found instance against its row. The row is keyed
// by the hinted UUID when one was given, otherwise by the parent entry
// point and alias. A missing row turns the state to Uninstalled.
func (m *Module) autoload(ctx context.Context) error {
	if m.state != Found {
		return nil
	}
	var (
		q    string
		args []any
	)
	switch {
	case m.uuidHint != "":
		q = "SELECT uuid, user_settings, is_enabled FROM core_module WHERE uuid = ?"
		args = []any{m.uuidHint}
	case m.parentEP != nil:
		q = "SELECT uuid, user_settings, is_enabled FROM core_module WHERE parent_entry_point_id = ? AND alias = ?"
		args = []any{m.parentEP.id, m.def.Alias}
	default:
		q = "SELECT uuid, user_settings, is_enabled FROM core_module WHERE parent_entry_point_id IS NULL AND alias = ?"
		args = []any{m.def.Alias}
	}
	var raw string
	err := m.env.DB.QueryRowContext(ctx, m.env.Dialect.Rebind(q), args...).
		Scan(&m.uuid, &raw, &m.enabled)
	if err == sql.ErrNoRows {
		m.state = Uninstalled
		return nil
	}
	if err != nil {
		return fmt.Errorf("autoload module %s: %w", m.def.Alias, err)
	}
	m.settings = map[string]any{}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &m.settings); err != nil {
			return fmt.Errorf("decode settings of %s: %w", m.def.Alias, err)
		}
	}
	m.state = Loaded
	return nil
}

// durationSetting reads a stored duration in seconds, clamping to min
// and falling back to def for absent or malformed values.
func (m *Module) durationSetting(ctx context.Context, key string, def, min time.Duration) (time.Duration, error) {
	v, err := m.GetSetting(ctx, key, nil)
	if err != nil {
		return 0, err
	}
	secs, ok := toFloat(v)
	if !ok {
		return def, nil
	}
	d := time.Duration(secs * float64(time.Second))
	if d < min {
		return min, nil
	}
	return d, nil
}

// intSetting reads a stored integer, clamping to min and falling back
// to def for absent or malformed values.
func (m *Module) intSetting(ctx context.Context, key string, def, min int) (int, error) {
	v, err := m.GetSetting(ctx, key, nil)
	if err != nil {
		return 0, err
	}
	f, ok := toFloat(v)
	if !ok {
		return def, nil
	}
	n := int(f)
	if n < min {
		return min, nil
	}
	return n, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
