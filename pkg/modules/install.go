package modules

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/corefacility/pkg/access"
	"github.com/platinummonkey/corefacility/pkg/entity"
	"github.com/platinummonkey/corefacility/pkg/query"
	"github.com/platinummonkey/corefacility/pkg/users"
)

var moduleAliasPattern = regexp.MustCompile(`^[\w-]+$`)

func validateDefinition(def Definition) error {
	if !moduleAliasPattern.MatchString(def.Alias) {
		return &entity.InstallationError{Module: def.Alias, Reason: "the alias must match ^[\\w-]+$"}
	}
	if def.Name == "" {
		return &entity.InstallationError{Module: def.Alias, Reason: "the name must be a non-empty string"}
	}
	if def.AppClass == "" {
		return &entity.InstallationError{Module: def.Alias, Reason: "the app class must be set"}
	}
	return nil
}

// Install writes the module row, its entry points and every child
// module declared for them, all in one transaction. The root module
// additionally seeds the standard access levels and the support user.
// Route aggregation files are regenerated after the transaction lands.
func (m *Module) Install(ctx context.Context) error {
	if err := m.autoload(ctx); err != nil {
		return err
	}
	if m.parentEP != nil && m.parentEP.id == 0 {
		return &entity.InstallationError{Module: m.def.Alias, Reason: "the parent entry point is not installed"}
	}
	if m.state != Uninstalled {
		return &entity.InstallationError{Module: m.def.Alias,
			Reason: fmt.Sprintf("the module is %s, not uninstalled", m.state)}
	}
	if err := validateDefinition(m.def); err != nil {
		return err
	}

	log := m.logger().WithField("module", m.def.Alias)
	log.Info("installing module")

	tx, err := m.env.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin install of %s: %w", m.def.Alias, err)
	}

	// Levels go first: application rows below seed their default
	// permission against the app-scope "add" level.
	if m.IsRoot() {
		if err := m.env.Levels.InstallDefaults(ctx, tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("install access levels: %w", err)
		}
	}
	var parentID any
	if m.parentEP != nil {
		parentID = m.parentEP.id
	}
	id, touched, err := m.installDefinition(ctx, tx, m.def, parentID, m.uuidHint)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit install of %s: %w", m.def.Alias, err)
	}

	m.uuid = id
	m.settings = map[string]any{}
	m.enabled = true
	m.state = Saved

	if m.IsRoot() {
		if err := m.ensureSupportUser(ctx); err != nil {
			return err
		}
	}
	if m.parentEP != nil {
		if err := m.regenerateRoutes(ctx, m.parentEP.id, m.parentEP.alias); err != nil {
			return err
		}
	}
	for _, t := range touched {
		if err := writeRouteFile(m.env.RoutesDir, t.epAlias, t.entries); err != nil {
			return err
		}
	}
	log.WithField("uuid", m.uuid).Info("module installed")
	return nil
}

// touchedEntryPoint remembers one freshly installed slot so its route
// aggregation file can be written once the transaction commits.
type touchedEntryPoint struct {
	epAlias string
	entries []RouteEntry
}

// installDefinition writes one module row plus its declared entry
// points and children, depth first. It returns the new module UUID and
// every entry point whose routes file needs regeneration.
func (m *Module) installDefinition(ctx context.Context, tx *sql.Tx, def Definition, parentEPID any, hint string) (string, []touchedEntryPoint, error) {
	if err := validateDefinition(def); err != nil {
		return "", nil, err
	}
	id := hint
	if id == "" {
		id = uuid.NewString()
	}
	ins := m.env.Dialect.Rebind(
		"INSERT INTO core_module (uuid, parent_entry_point_id, alias, name, html_code, app_class, user_settings, is_application, is_enabled) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)")
	var html any
	if def.HTMLCode != "" {
		html = def.HTMLCode
	}
	if _, err := tx.ExecContext(ctx, ins, id, parentEPID, def.Alias, def.Name, html,
		def.AppClass, "{}", def.IsApplication, true); err != nil {
		return "", nil, fmt.Errorf("install module %s: %w", def.Alias, err)
	}
	if def.IsApplication {
		if err := m.seedDefaultAppPermission(ctx, tx, id); err != nil {
			return "", nil, err
		}
	}

	var touched []touchedEntryPoint
	for _, epDef := range def.EntryPoints {
		epID, err := query.InsertReturningID(ctx, tx, m.env.Dialect, "core_entrypoint",
			[]string{"alias", "belonging_module_uuid", "name", "type", "entry_point_class"},
			epDef.Alias, id, epDef.Name, string(epDef.Type), epDef.Class)
		if err != nil {
			return "", nil, fmt.Errorf("install entry point %s of %s: %w", epDef.Alias, def.Alias, err)
		}
		t := touchedEntryPoint{epAlias: epDef.Alias}
		for _, child := range epDef.Children {
			_, sub, err := m.installDefinition(ctx, tx, child, epID, "")
			if err != nil {
				return "", nil, err
			}
			touched = append(touched, sub...)
			t.entries = append(t.entries, RouteEntry{Module: child.Alias, Package: child.PackagePath})
		}
		touched = append(touched, t)
	}
	return id, touched, nil
}

// seedDefaultAppPermission installs the wildcard ACL row every fresh
// application starts with: any group may attach the application to its
// projects until the ACL is narrowed.
func (m *Module) seedDefaultAppPermission(ctx context.Context, tx *sql.Tx, appUUID string) error {
	var levelID int64
	q := m.env.Dialect.Rebind("SELECT id FROM core_accesslevel WHERE type = ? AND alias = ?")
	if err := tx.QueryRowContext(ctx, q, string(access.AppLevel), access.AliasAdd).Scan(&levelID); err != nil {
		return fmt.Errorf("application access levels are not installed: %w", err)
	}
	ins := m.env.Dialect.Rebind(
		"INSERT INTO core_apppermission (application_id, group_id, access_level_id) VALUES (?, ?, ?)")
	if _, err := tx.ExecContext(ctx, ins, appUUID, nil, levelID); err != nil {
		return fmt.Errorf("seed default permission of %s: %w", m.def.Alias, err)
	}
	return nil
}

// regenerateRoutes rebuilds the route aggregation file of one entry
// point from the sibling rows currently installed under it. Package
// paths come from the live registry; modules registered in another
// process show with an empty path until they register here.
func (m *Module) regenerateRoutes(ctx context.Context, epID int64, epAlias string) error {
	q := m.env.Dialect.Rebind(
		"SELECT alias FROM core_module WHERE parent_entry_point_id = ? ORDER BY alias")
	rows, err := m.env.DB.QueryContext(ctx, q, epID)
	if err != nil {
		return fmt.Errorf("list modules of entry point %s: %w", epAlias, err)
	}
	defer rows.Close()
	var entries []RouteEntry
	for rows.Next() {
		var alias string
		if err := rows.Scan(&alias); err != nil {
			return err
		}
		entries = append(entries, RouteEntry{Module: alias, Package: packagePathOf(alias)})
	}
	if err := rows.Err(); err != nil {
		return err
	}
	return writeRouteFile(m.env.RoutesDir, epAlias, entries)
}

// Delete uninstalls the module: entry points first, then the row, then
// the singleton itself. The root module can never be deleted.
func (m *Module) Delete(ctx context.Context) error {
	if err := m.autoload(ctx); err != nil {
		return err
	}
	if m.IsRoot() {
		return entity.ErrRootModuleDelete
	}
	if m.state == Uninstalled || m.state == Deleted {
		return entity.ErrOperationNotPermitted
	}

	tx, err := m.env.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete of %s: %w", m.def.Alias, err)
	}
	for _, q := range []string{
		"DELETE FROM core_apppermission WHERE application_id = ?",
		"DELETE FROM core_entrypoint WHERE belonging_module_uuid = ?",
		"DELETE FROM core_module WHERE uuid = ?",
	} {
		if _, err := tx.ExecContext(ctx, m.env.Dialect.Rebind(q), m.uuid); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("delete module %s: %w", m.def.Alias, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete of %s: %w", m.def.Alias, err)
	}

	if err := m.regenerateRoutes(ctx, m.parentEP.id, m.parentEP.alias); err != nil {
		return err
	}
	m.state = Deleted
	Reset(m.def.AppClass)
	m.logger().WithField("module", m.def.Alias).Info("module deleted")
	return nil
}

// ensureSupportUser creates the built-in service account on first root
// install. Reinstalling over an existing account is a no-op.
func (m *Module) ensureSupportUser(ctx context.Context) error {
	_, err := m.env.Users.Users().GetByLogin(ctx, users.SupportLogin)
	if err == nil {
		return nil
	}
	if !entity.IsNotFound(err) {
		return err
	}
	u := m.env.Users.NewUser()
	if err := u.SetLogin(users.SupportLogin); err != nil {
		return err
	}
	if err := u.SetIsSuperuser(true); err != nil {
		return err
	}
	u.SetDirect(users.FieldIsSupport, true)
	u.NotifyFieldChanged(users.FieldIsSupport)
	if err := u.Password().SetPlain(users.SupportLogin); err != nil {
		return err
	}
	if err := u.Create(ctx); err != nil {
		return fmt.Errorf("create support user: %w", err)
	}
	return nil
}

func (m *Module) logger() *logrus.Logger {
	if m.env.Logger != nil {
		return m.env.Logger
	}
	return logrus.StandardLogger()
}

// packagePathOf resolves a module alias to the package path its live
// definition advertises.
func packagePathOf(alias string) string {
	mu.RLock()
	defer mu.RUnlock()
	for _, m := range instances {
		if m.def.Alias == alias {
			return m.def.PackagePath
		}
	}
	return ""
}
