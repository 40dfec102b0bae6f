package groups

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/corefacility/pkg/entity"
	"github.com/platinummonkey/corefacility/pkg/query"
	"github.com/platinummonkey/corefacility/pkg/schema"
	"github.com/platinummonkey/corefacility/pkg/users"
)

func setupFactories(t *testing.T) (*users.Factory, *Factory, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:?_fk=1")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, schema.RunMigrations(context.Background(), db, query.SQLite))
	uf := users.NewFactory(db, query.SQLite, users.Options{})
	return uf, NewFactory(db, query.SQLite, uf), db
}

func createUser(t *testing.T, uf *users.Factory, login string) *users.User {
	t.Helper()
	u := uf.NewUser()
	require.NoError(t, u.SetLogin(login))
	require.NoError(t, u.Create(context.Background()))
	return u
}

func createGroup(t *testing.T, gf *Factory, name string, governor *users.User) *Group {
	t.Helper()
	g, err := gf.NewGroup(name, governor)
	require.NoError(t, err)
	require.NoError(t, g.Create(context.Background()))
	return g
}

func TestGroupLifecycle(t *testing.T) {
	uf, gf, _ := setupFactories(t)
	ctx := context.Background()
	leader := createUser(t, uf, "leader")

	t.Run("create makes the governor a member", func(t *testing.T) {
		g := createGroup(t, gf, "Optical imaging", leader)
		assert.NotZero(t, g.ID())
		assert.Equal(t, leader.ID(), g.GovernorID())

		present, err := g.Users().Exists(ctx, leader)
		require.NoError(t, err)
		assert.True(t, present)
	})

	t.Run("unsaved governor is rejected", func(t *testing.T) {
		fresh := uf.NewUser()
		require.NoError(t, fresh.SetLogin("unsaved"))
		_, err := gf.NewGroup("No lab", fresh)
		var invalid *entity.InvalidFieldError
		assert.ErrorAs(t, err, &invalid)
	})

	t.Run("rename", func(t *testing.T) {
		g := createGroup(t, gf, "Old name", leader)
		require.NoError(t, g.SetName("New name"))
		require.NoError(t, g.Update(ctx))

		got, err := gf.Groups().Get(ctx, g.ID())
		require.NoError(t, err)
		assert.Equal(t, "New name", got.Name())
	})

	t.Run("governor resolves back to a user", func(t *testing.T) {
		g := createGroup(t, gf, "Resolve lab", leader)
		gov, err := g.Governor(ctx)
		require.NoError(t, err)
		assert.Equal(t, "leader", gov.Login())
	})
}

func TestMembership(t *testing.T) {
	uf, gf, _ := setupFactories(t)
	ctx := context.Background()
	leader := createUser(t, uf, "boss")
	alice := createUser(t, uf, "alice")
	bob := createUser(t, uf, "bob")
	g := createGroup(t, gf, "Electrophysiology", leader)

	t.Run("add and list in login order", func(t *testing.T) {
		require.NoError(t, g.Users().Add(ctx, bob))
		require.NoError(t, g.Users().Add(ctx, alice))

		members, err := g.Users().All(ctx)
		require.NoError(t, err)
		require.Len(t, members, 3)
		assert.Equal(t, "alice", members[0].Login())
		assert.Equal(t, "bob", members[1].Login())
		assert.Equal(t, "boss", members[2].Login())
	})

	t.Run("adding twice is a no-op", func(t *testing.T) {
		require.NoError(t, g.Users().Add(ctx, alice))
		n, err := g.Users().Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
	})

	t.Run("remove", func(t *testing.T) {
		require.NoError(t, g.Users().Remove(ctx, bob))
		present, err := g.Users().Exists(ctx, bob)
		require.NoError(t, err)
		assert.False(t, present)
	})

	t.Run("the governor cannot be removed", func(t *testing.T) {
		err := g.Users().Remove(ctx, leader)
		assert.ErrorIs(t, err, entity.ErrOperationNotPermitted)
	})

	t.Run("membership of an unsaved group is frozen", func(t *testing.T) {
		fresh, err := gf.NewGroup("Unsaved", leader)
		require.NoError(t, err)
		assert.ErrorIs(t, fresh.Users().Add(ctx, alice), entity.ErrOperationNotPermitted)
	})
}

func TestGovernorSwitch(t *testing.T) {
	uf, gf, _ := setupFactories(t)
	ctx := context.Background()
	old := createUser(t, uf, "outgoing")
	successor := createUser(t, uf, "incoming")
	outsider := createUser(t, uf, "outsider")
	g := createGroup(t, gf, "Succession lab", old)

	t.Run("new governor must already be a member", func(t *testing.T) {
		require.NoError(t, g.SetGovernor(outsider))
		assert.ErrorIs(t, g.Update(ctx), entity.ErrOperationNotPermitted)
	})

	t.Run("switch demotes the old and promotes the new", func(t *testing.T) {
		g, err := gf.Groups().Get(ctx, g.ID())
		require.NoError(t, err)
		require.NoError(t, g.Users().Add(ctx, successor))
		require.NoError(t, g.SetGovernor(successor))
		require.NoError(t, g.Update(ctx))

		got, err := gf.Groups().Get(ctx, g.ID())
		require.NoError(t, err)
		assert.Equal(t, successor.ID(), got.GovernorID())

		// The demoted governor stays a plain member and may leave now.
		require.NoError(t, got.Users().Remove(ctx, old))
	})
}

func TestGroupSet(t *testing.T) {
	uf, gf, _ := setupFactories(t)
	ctx := context.Background()
	leader := createUser(t, uf, "head")
	member := createUser(t, uf, "joiner")

	ga := createGroup(t, gf, "Alpha waves", leader)
	createGroup(t, gf, "Beta oscillations", leader)
	require.NoError(t, ga.Users().Add(ctx, member))

	t.Run("search by name", func(t *testing.T) {
		set := gf.Groups()
		term := "alpha"
		set.SetSearchFilter(&term)
		list, err := set.All(ctx)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "Alpha waves", list[0].Name())
	})

	t.Run("user filter shows only joined groups", func(t *testing.T) {
		set := gf.Groups()
		id := member.ID()
		set.SetUserFilter(&id)
		list, err := set.All(ctx)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, ga.ID(), list[0].ID())
	})

	t.Run("missing id", func(t *testing.T) {
		_, err := gf.Groups().Get(ctx, 9999)
		assert.ErrorIs(t, err, entity.ErrEntityNotFound)
	})
}

func TestGovernorDeletionRules(t *testing.T) {
	uf, gf, db := setupFactories(t)
	ctx := context.Background()

	t.Run("a governor cannot be deleted while the group survives", func(t *testing.T) {
		gov := createUser(t, uf, "tenured")
		createGroup(t, gf, "Protected lab", gov)

		err := gov.Delete(ctx)
		var constraint *entity.GroupGovernorConstraintError
		require.ErrorAs(t, err, &constraint)
		assert.Equal(t, "tenured", constraint.Login)
	})

	t.Run("force delete cascades governed groups", func(t *testing.T) {
		gov := createUser(t, uf, "departing")
		g := createGroup(t, gf, "Doomed lab", gov)

		require.NoError(t, gov.ForceDelete(ctx))
		_, err := gf.Groups().Get(ctx, g.ID())
		assert.ErrorIs(t, err, entity.ErrEntityNotFound)
	})

	t.Run("a project root group survives its deletion attempt", func(t *testing.T) {
		gov := createUser(t, uf, "rooted")
		g := createGroup(t, gf, "Root lab", gov)
		_, err := db.Exec(
			"INSERT INTO core_project (alias, name, root_group_id) VALUES (?, ?, ?)",
			"rooted_prj", "Rooted project", g.ID())
		require.NoError(t, err)

		assert.ErrorIs(t, g.Delete(ctx), entity.ErrOperationNotPermitted)
		assert.Error(t, gov.ForceDelete(ctx), "cascade stops at the referenced group")
	})
}
