package projects

import (
	"context"
	"database/sql"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/corefacility/pkg/access"
	"github.com/platinummonkey/corefacility/pkg/entity"
	"github.com/platinummonkey/corefacility/pkg/groups"
	"github.com/platinummonkey/corefacility/pkg/query"
	"github.com/platinummonkey/corefacility/pkg/schema"
	"github.com/platinummonkey/corefacility/pkg/users"
)

type fixture struct {
	db       *sql.DB
	users    *users.Factory
	groups   *groups.Factory
	projects *Factory
	levels   *access.LevelStore
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:?_fk=1")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()
	require.NoError(t, schema.RunMigrations(ctx, db, query.SQLite))

	levels := access.NewLevelStore(db, query.SQLite)
	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, levels.InstallDefaults(ctx, tx))
	require.NoError(t, tx.Commit())

	uf := users.NewFactory(db, query.SQLite, users.Options{})
	gf := groups.NewFactory(db, query.SQLite, uf)
	pf := NewFactory(db, query.SQLite, gf, uf, Options{})
	return &fixture{db: db, users: uf, groups: gf, projects: pf, levels: levels}
}

func (fx *fixture) user(t *testing.T, login string) *users.User {
	t.Helper()
	u := fx.users.NewUser()
	require.NoError(t, u.SetLogin(login))
	require.NoError(t, u.Create(context.Background()))
	return u
}

func (fx *fixture) group(t *testing.T, name string, governor *users.User) *groups.Group {
	t.Helper()
	g, err := fx.groups.NewGroup(name, governor)
	require.NoError(t, err)
	require.NoError(t, g.Create(context.Background()))
	return g
}

func (fx *fixture) project(t *testing.T, alias string, rootGroup *groups.Group) *Project {
	t.Helper()
	p, err := fx.projects.NewProject(alias, alias+" project", rootGroup)
	require.NoError(t, err)
	require.NoError(t, p.Create(context.Background()))
	return p
}

func (fx *fixture) level(t *testing.T, alias string) access.Level {
	t.Helper()
	l, err := fx.levels.Get(context.Background(), access.ProjectLevel, alias)
	require.NoError(t, err)
	return l
}

func TestProjectLifecycle(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()
	leader := fx.user(t, "leader")
	lab := fx.group(t, "Vision lab", leader)

	t.Run("create and reload", func(t *testing.T) {
		p, err := fx.projects.NewProject("vision", "Vision studies", lab)
		require.NoError(t, err)
		require.NoError(t, p.SetDescription("Cortical imaging"))
		require.NoError(t, p.Create(ctx))
		assert.NotZero(t, p.ID())

		got, err := fx.projects.Projects().GetByAlias(ctx, "vision")
		require.NoError(t, err)
		assert.Equal(t, "Vision studies", got.Name())
		assert.Equal(t, "Cortical imaging", got.Description())
		assert.Equal(t, lab.ID(), got.RootGroupID())
		assert.Equal(t, leader.ID(), got.GovernorID())
	})

	t.Run("duplicate alias is rejected", func(t *testing.T) {
		dup, err := fx.projects.NewProject("vision", "Other", lab)
		require.NoError(t, err)
		assert.ErrorIs(t, dup.Create(ctx), entity.ErrDuplicatedEntity)
	})

	t.Run("governor resolves through the root group", func(t *testing.T) {
		got, err := fx.projects.Projects().GetByAlias(ctx, "vision")
		require.NoError(t, err)
		gov, err := got.Governor(ctx)
		require.NoError(t, err)
		assert.Equal(t, "leader", gov.Login())

		rg, err := got.RootGroup(ctx)
		require.NoError(t, err)
		assert.Equal(t, lab.ID(), rg.ID())
	})

	t.Run("alias rename", func(t *testing.T) {
		p := fx.project(t, "renameme", lab)
		require.NoError(t, p.SetAlias("renamed"))
		require.NoError(t, p.Update(ctx))
		_, err := fx.projects.Projects().GetByAlias(ctx, "renameme")
		assert.ErrorIs(t, err, entity.ErrEntityNotFound)
		got, err := fx.projects.Projects().GetByAlias(ctx, "renamed")
		require.NoError(t, err)
		assert.Equal(t, p.ID(), got.ID())
	})

	t.Run("delete drops the acl rows", func(t *testing.T) {
		p := fx.project(t, "doomed", lab)
		other := fx.group(t, "Other lab", fx.user(t, "otherlead"))
		require.NoError(t, p.Permissions().Set(ctx, other.Entity, fx.level(t, access.AliasDataView)))

		require.NoError(t, p.Delete(ctx))
		var n int
		err := fx.db.QueryRow("SELECT COUNT(*) FROM core_projectpermission WHERE project_id = ?", p.ID()).Scan(&n)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestProjectSetFilters(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()
	leader := fx.user(t, "pi")
	lab := fx.group(t, "Main lab", leader)
	fx.project(t, "alpha", lab)
	fx.project(t, "beta", lab)

	t.Run("alias filter", func(t *testing.T) {
		set := fx.projects.Projects()
		alias := "alpha"
		set.SetAliasFilter(&alias)
		list, err := set.All(ctx)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "alpha", list[0].Alias())
	})

	t.Run("search over alias and name", func(t *testing.T) {
		set := fx.projects.Projects()
		term := "bet"
		set.SetSearchFilter(&term)
		n, err := set.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("pagination in name order", func(t *testing.T) {
		set := fx.projects.Projects()
		p, err := set.At(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, "alpha", p.Alias())
	})
}

// TestUserAccessResolution covers the single-statement ACL resolution:
// which projects a user sees and with which effective levels.
func TestUserAccessResolution(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	governor := fx.user(t, "governor")
	collaborator := fx.user(t, "collaborator")
	outsider := fx.user(t, "outsider")
	multi := fx.user(t, "multi")

	rootLab := fx.group(t, "Root lab", governor)
	guestLab := fx.group(t, "Guest lab", fx.user(t, "guestlead"))
	sideLab := fx.group(t, "Side lab", fx.user(t, "sidelead"))
	require.NoError(t, guestLab.Users().Add(ctx, collaborator))
	require.NoError(t, guestLab.Users().Add(ctx, multi))
	require.NoError(t, sideLab.Users().Add(ctx, multi))

	p := fx.project(t, "shared", rootLab)
	require.NoError(t, p.Permissions().Set(ctx, guestLab.Entity, fx.level(t, access.AliasDataView)))
	require.NoError(t, p.Permissions().Set(ctx, sideLab.Entity, fx.level(t, access.AliasDataAdd)))

	resolve := func(t *testing.T, userID int64) []*Project {
		set := fx.projects.Projects()
		set.SetUserFilter(&userID)
		list, err := set.All(ctx)
		require.NoError(t, err)
		return list
	}

	t.Run("root group member gets implicit full access", func(t *testing.T) {
		list := resolve(t, governor.ID())
		require.Len(t, list, 1)
		assert.Equal(t, []string{"full"}, list[0].UserAccessLevels())
		assert.True(t, list[0].IsUserGovernor())

		level, err := list[0].ProperUserAccessLevel()
		require.NoError(t, err)
		assert.Equal(t, access.AliasFull, level)
	})

	t.Run("explicit group grant", func(t *testing.T) {
		list := resolve(t, collaborator.ID())
		require.Len(t, list, 1)
		assert.Equal(t, []string{access.AliasDataView}, list[0].UserAccessLevels())
		assert.False(t, list[0].IsUserGovernor())
	})

	t.Run("multiple grants aggregate and the heaviest wins", func(t *testing.T) {
		list := resolve(t, multi.ID())
		require.Len(t, list, 1)
		assert.ElementsMatch(t,
			[]string{access.AliasDataView, access.AliasDataAdd},
			list[0].UserAccessLevels())

		level, err := list[0].ProperUserAccessLevel()
		require.NoError(t, err)
		assert.Equal(t, access.AliasDataAdd, level)
	})

	t.Run("outsider sees nothing without a wildcard", func(t *testing.T) {
		assert.Empty(t, resolve(t, outsider.ID()))
	})

	t.Run("wildcard admits outsiders", func(t *testing.T) {
		require.NoError(t, p.Permissions().Set(ctx, nil, fx.level(t, access.AliasDataProcess)))

		list := resolve(t, outsider.ID())
		require.Len(t, list, 1)
		assert.Equal(t, []string{access.AliasDataProcess}, list[0].UserAccessLevels())
	})

	t.Run("explicit rows override the wildcard", func(t *testing.T) {
		list := resolve(t, collaborator.ID())
		require.Len(t, list, 1)
		assert.Equal(t, []string{access.AliasDataView}, list[0].UserAccessLevels())
	})

	t.Run("explicit no_access hides the project", func(t *testing.T) {
		lockedOut := fx.user(t, "lockedout")
		lockedLab := fx.group(t, "Locked lab", fx.user(t, "lockedlead"))
		require.NoError(t, lockedLab.Users().Add(ctx, lockedOut))
		require.NoError(t, p.Permissions().Set(ctx, lockedLab.Entity, fx.level(t, access.AliasNoAccess)))

		assert.Empty(t, resolve(t, lockedOut.ID()),
			"an explicit no_access beats the wildcard")
	})

	t.Run("no_access wildcard hides the project from outsiders", func(t *testing.T) {
		require.NoError(t, p.Permissions().Set(ctx, nil, fx.level(t, access.AliasNoAccess)))
		assert.Empty(t, resolve(t, outsider.ID()))
	})

	t.Run("count matches iteration", func(t *testing.T) {
		set := fx.projects.Projects()
		id := governor.ID()
		set.SetUserFilter(&id)
		n, err := set.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})
}

func TestPosixGroupName(t *testing.T) {
	t.Run("short aliases are verbatim", func(t *testing.T) {
		assert.Equal(t, "vision", posixGroupName("vision"))
		assert.Equal(t, "abcdefghij", posixGroupName("abcdefghij"))
	})

	t.Run("long aliases hash to p-prefixed crc32", func(t *testing.T) {
		alias := "myverylongprojectalias"
		want := "p" + fmt.Sprint(crc32.ChecksumIEEE([]byte(alias)))
		if len(want) > 11 {
			want = want[:11]
		}
		got := posixGroupName(alias)
		assert.Equal(t, want, got)
		assert.LessOrEqual(t, len(got), 11)
	})

	t.Run("stable", func(t *testing.T) {
		assert.Equal(t, posixGroupName("somelongaliashere"), posixGroupName("somelongaliashere"))
	})
}

// fakeGroupCommands accepts every group command and reports that no
// group exists yet.
type fakeGroupCommands struct {
	calls [][]string
}

func (c *fakeGroupCommands) Run(ctx context.Context, name string, args ...string) error {
	c.calls = append(c.calls, append([]string{name}, args...))
	return nil
}

func (c *fakeGroupCommands) Output(ctx context.Context, name string, args ...string) (string, error) {
	return "", fmt.Errorf("%s: no such entry", name)
}

func TestUnixGroupPersistence(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()
	cmds := &fakeGroupCommands{}
	pf := NewFactory(fx.db, query.SQLite, fx.groups, fx.users, Options{
		ManageUnixGroups: true,
		Commands:         cmds,
	})
	leader := fx.user(t, "leader")
	lab := fx.group(t, "Vision lab", leader)

	t.Run("short alias survives a reload", func(t *testing.T) {
		p, err := pf.NewProject("vision", "Vision studies", lab)
		require.NoError(t, err)
		require.NoError(t, p.Create(ctx))
		require.NotEmpty(t, cmds.calls, "groupadd must have been invoked")

		got, err := pf.Projects().GetByAlias(ctx, "vision")
		require.NoError(t, err)
		assert.Equal(t, "vision", got.UnixGroup())
	})

	t.Run("long alias survives as the hashed name", func(t *testing.T) {
		alias := "myverylongprojectalias"
		p, err := pf.NewProject(alias, "Long one", lab)
		require.NoError(t, err)
		require.NoError(t, p.Create(ctx))

		got, err := pf.Projects().GetByAlias(ctx, alias)
		require.NoError(t, err)
		assert.Equal(t, posixGroupName(alias), got.UnixGroup())
	})
}

func TestACLCacheWiring(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	cache := access.NewCacheFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Minute)
	t.Cleanup(func() { cache.Close() })
	fx.groups.UseACLCache(cache)
	pf := NewFactory(fx.db, query.SQLite, fx.groups, fx.users, Options{ACLCache: cache})

	governor := fx.user(t, "governor")
	member := fx.user(t, "member")
	lab := fx.group(t, "Cache lab", governor)
	guests := fx.group(t, "Guest lab", fx.user(t, "guestlead"))
	require.NoError(t, guests.Users().Add(ctx, member))
	p := fx.project(t, "cached", lab)
	require.NoError(t, p.Permissions().Set(ctx, guests.Entity, fx.level(t, access.AliasDataView)))

	resolve := func(t *testing.T, userID int64) []*Project {
		set := pf.Projects()
		set.SetUserFilter(&userID)
		list, err := set.All(ctx)
		require.NoError(t, err)
		return list
	}

	t.Run("resolution refills the cache", func(t *testing.T) {
		list := resolve(t, member.ID())
		require.Len(t, list, 1)

		hit, err := cache.Get(ctx, member.ID(), p.ID())
		require.NoError(t, err)
		require.NotNil(t, hit)
		assert.Equal(t, []string{access.AliasDataView}, hit.Levels)
		assert.False(t, hit.IsGovernor)
	})

	t.Run("governor facts are cached too", func(t *testing.T) {
		list := resolve(t, governor.ID())
		require.Len(t, list, 1)

		hit, err := cache.Get(ctx, governor.ID(), p.ID())
		require.NoError(t, err)
		require.NotNil(t, hit)
		assert.Equal(t, []string{access.AliasFull}, hit.Levels)
		assert.True(t, hit.IsGovernor)
	})

	t.Run("get trusts the cached entry", func(t *testing.T) {
		require.NoError(t, cache.Put(ctx, member.ID(), p.ID(),
			&access.ResolvedAccess{Levels: []string{access.AliasDataProcess}}))

		set := pf.Projects()
		id := member.ID()
		set.SetUserFilter(&id)
		got, err := set.Get(ctx, p.ID())
		require.NoError(t, err)
		assert.Equal(t, []string{access.AliasDataProcess}, got.UserAccessLevels())
	})

	t.Run("permission change drops the project entries", func(t *testing.T) {
		list := resolve(t, member.ID())
		require.Len(t, list, 1)
		require.NoError(t, list[0].Permissions().Set(ctx, guests.Entity, fx.level(t, access.AliasDataFull)))

		hit, err := cache.Get(ctx, member.ID(), p.ID())
		require.NoError(t, err)
		assert.Nil(t, hit)
	})

	t.Run("membership change drops the member entries", func(t *testing.T) {
		list := resolve(t, member.ID())
		require.Len(t, list, 1)
		require.NoError(t, guests.Users().Remove(ctx, member))

		hit, err := cache.Get(ctx, member.ID(), p.ID())
		require.NoError(t, err)
		assert.Nil(t, hit)
	})
}

func TestProjectDirMaterialisation(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()
	root := t.TempDir()
	pf := NewFactory(fx.db, query.SQLite, fx.groups, fx.users, Options{DirRoot: root})

	leader := fx.user(t, "dirleader")
	lab := fx.group(t, "Dir lab", leader)
	p, err := pf.NewProject("imaging", "Imaging studies", lab)
	require.NoError(t, err)
	require.NoError(t, p.Create(ctx))

	want := filepath.Join(root, "imaging")
	assert.Equal(t, want, p.ProjectDir())
	info, err := os.Stat(want)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	t.Run("project dir survives a reload", func(t *testing.T) {
		got, err := pf.Projects().GetByAlias(ctx, "imaging")
		require.NoError(t, err)
		assert.Equal(t, want, got.ProjectDir())
	})

	t.Run("alias rename moves the directory", func(t *testing.T) {
		got, err := pf.Projects().GetByAlias(ctx, "imaging")
		require.NoError(t, err)
		require.NoError(t, got.SetAlias("microscopy"))
		require.NoError(t, got.Update(ctx))

		moved := filepath.Join(root, "microscopy")
		reloaded, err := pf.Projects().GetByAlias(ctx, "microscopy")
		require.NoError(t, err)
		assert.Equal(t, moved, reloaded.ProjectDir())
		_, err = os.Stat(moved)
		assert.NoError(t, err)
		_, err = os.Stat(want)
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("delete removes the directory", func(t *testing.T) {
		got, err := pf.Projects().GetByAlias(ctx, "microscopy")
		require.NoError(t, err)
		require.NoError(t, got.Delete(ctx))
		_, err = os.Stat(filepath.Join(root, "microscopy"))
		assert.True(t, os.IsNotExist(err))
	})
}
