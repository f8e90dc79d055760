package registry

import (
	"context"
	"errors"
	"testing"

	"gorm.io/gorm"

	"github.com/stake-plus/bottlebot/src/bottles"
	"github.com/stake-plus/bottlebot/src/data"
	"github.com/stake-plus/bottlebot/src/shared/models"
)

func openTestDB(t *testing.T) (*gorm.DB, *bottles.Store) {
	t.Helper()
	db, err := data.ConnectSQLite(data.MemoryDSN(t.Name()))
	if err != nil {
		t.Fatalf("connect sqlite: %v", err)
	}
	if err := data.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db, bottles.NewStore(db)
}

func str(s string) *string { return &s }

func TestGuildGetOrCreate(t *testing.T) {
	db, store := openTestDB(t)
	guilds := NewGuilds(db, store, nil)
	ctx := context.Background()

	if _, err := guilds.Get(ctx, "g1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get unknown = %v, want %v", err, ErrNotFound)
	}

	g, created, err := guilds.GetOrCreate(ctx, "g1")
	if err != nil || !created {
		t.Fatalf("GetOrCreate = %v, %v; want created", created, err)
	}
	if g.State() != models.GuildUnconfigured || g.IsPublic() || g.XP != 0 {
		t.Fatalf("new guild = %+v", g)
	}

	_, created, err = guilds.GetOrCreate(ctx, "g1")
	if err != nil || created {
		t.Fatalf("second GetOrCreate = %v, %v; want existing", created, err)
	}
}

func TestGuildUpdateWritesOnlySetFields(t *testing.T) {
	db, store := openTestDB(t)
	guilds := NewGuilds(db, store, nil)
	ctx := context.Background()

	if _, err := guilds.Update(ctx, "g1", GuildUpdate{BottleChannelID: str("c1")}); err != nil {
		t.Fatalf("set channel: %v", err)
	}
	if _, err := guilds.Update(ctx, "g1", GuildUpdate{Prefix: str("!")}); err != nil {
		t.Fatalf("set prefix: %v", err)
	}
	g, err := guilds.Update(ctx, "g1", GuildUpdate{Invite: str("https://discord.gg/abc")})
	if err != nil {
		t.Fatalf("set invite: %v", err)
	}

	if g.BottleChannelID == nil || *g.BottleChannelID != "c1" {
		t.Fatalf("channel = %v, want c1", g.BottleChannelID)
	}
	if g.Prefix == nil || *g.Prefix != "!" {
		t.Fatalf("prefix = %v, want !", g.Prefix)
	}
	if g.State() != models.GuildConfigured || !g.IsPublic() {
		t.Fatalf("state = %s public = %v", g.State(), g.IsPublic())
	}

	ch, err := guilds.BottleChannel(ctx, "g1")
	if err != nil || ch != "c1" {
		t.Fatalf("BottleChannel = %q, %v", ch, err)
	}
	if got := guilds.Prefix(ctx, "g1", "-"); got != "!" {
		t.Fatalf("Prefix = %q, want !", got)
	}
	if got := guilds.Prefix(ctx, "unknown", "-"); got != "-" {
		t.Fatalf("Prefix fallback = %q, want -", got)
	}

	g, err = guilds.Update(ctx, "g1", GuildUpdate{BottleChannelID: str("")})
	if err != nil {
		t.Fatalf("clear channel: %v", err)
	}
	if g.State() != models.GuildUnconfigured || !g.IsPublic() {
		t.Fatalf("after clear: state = %s public = %v", g.State(), g.IsPublic())
	}

	if _, err := guilds.Update(ctx, "g1", GuildUpdate{Prefix: str("!!")}); !errors.Is(err, ErrInvalidPrefix) {
		t.Fatalf("long prefix error = %v, want %v", err, ErrInvalidPrefix)
	}
}

func TestGuildAddXPClampsAtZero(t *testing.T) {
	db, store := openTestDB(t)
	guilds := NewGuilds(db, store, nil)
	ctx := context.Background()

	steps := []struct {
		delta int64
		want  int64
	}{
		{3, 3},
		{-1, 2},
		{-5, 0},
		{2, 2},
	}
	for _, s := range steps {
		if err := guilds.AddXP(ctx, "g1", s.delta); err != nil {
			t.Fatalf("AddXP(%d): %v", s.delta, err)
		}
		g, err := guilds.Get(ctx, "g1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if g.XP != s.want {
			t.Fatalf("after AddXP(%d) xp = %d, want %d", s.delta, g.XP, s.want)
		}
	}
}

func TestGuildRemoveCascades(t *testing.T) {
	db, store := openTestDB(t)
	guilds := NewGuilds(db, store, nil)
	ctx := context.Background()

	if _, err := guilds.Update(ctx, "g1", GuildUpdate{BottleChannelID: str("c1")}); err != nil {
		t.Fatalf("update: %v", err)
	}
	own, err := store.Submit(ctx, models.GuildOrigin("g1", "c1"), "alice", "m1", bottles.Content{Text: "hi"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	other, err := store.Submit(ctx, models.GuildOrigin("g1", "c1"), "alice", "m2", bottles.Content{Text: "hi"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	foreign, err := store.Submit(ctx, models.DirectOrigin("dora"), "dora", "d1", bottles.Content{Text: "yo"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if ok, err := store.Claim(ctx, foreign.ID, other.ID); err != nil || !ok {
		t.Fatalf("claim = %v, %v", ok, err)
	}
	rec := models.ReactionRecord{MessageID: "msg", ReactorID: "r", Emoji: "👍", GuildID: "g1", Active: true}
	if err := db.Create(&rec).Error; err != nil {
		t.Fatalf("create record: %v", err)
	}

	expired, err := guilds.Remove(ctx, "g1")
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if expired != 1 {
		t.Fatalf("expired = %d, want 1", expired)
	}
	if _, err := guilds.Get(ctx, "g1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after remove = %v, want %v", err, ErrNotFound)
	}

	b, _ := store.Get(ctx, own.ID)
	if b.Status != models.BottleExpired {
		t.Fatalf("pending bottle status = %q, want expired", b.Status)
	}
	b, _ = store.Get(ctx, other.ID)
	if b.Status != models.BottleMatched {
		t.Fatalf("matched bottle status = %q, want matched", b.Status)
	}

	var n int64
	db.Model(&models.ReactionRecord{}).Where("guild_id = ?", "g1").Count(&n)
	if n != 0 {
		t.Fatalf("reaction records left = %d, want 0", n)
	}
}

func TestLeaderboardListsPublicGuilds(t *testing.T) {
	db, store := openTestDB(t)
	guilds := NewGuilds(db, store, nil)
	ctx := context.Background()

	seed := []struct {
		id     string
		xp     int64
		invite string
	}{
		{"g1", 5, "https://discord.gg/one"},
		{"g2", 9, ""},
		{"g3", 7, "https://discord.gg/three"},
	}
	for _, s := range seed {
		if _, err := guilds.Update(ctx, s.id, GuildUpdate{Invite: str(s.invite)}); err != nil {
			t.Fatalf("update %s: %v", s.id, err)
		}
		if err := guilds.AddXP(ctx, s.id, s.xp); err != nil {
			t.Fatalf("AddXP %s: %v", s.id, err)
		}
	}

	board, err := guilds.Leaderboard(ctx, 10)
	if err != nil {
		t.Fatalf("Leaderboard: %v", err)
	}
	if len(board) != 2 || board[0].ID != "g3" || board[1].ID != "g1" {
		t.Fatalf("leaderboard = %+v, want g3 then g1", board)
	}
}

func TestUsersToggleAdmin(t *testing.T) {
	db, store := openTestDB(t)
	users := NewUsers(db, store, "root")
	ctx := context.Background()

	if _, err := users.ToggleAdmin(ctx, "mallory", "mallory"); !errors.Is(err, ErrPermission) {
		t.Fatalf("non-bootstrap toggle = %v, want %v", err, ErrPermission)
	}
	if admin, _ := users.IsAdmin(ctx, "mallory"); admin {
		t.Fatal("mallory became admin")
	}

	for i, want := range []bool{true, false, true} {
		got, err := users.ToggleAdmin(ctx, "root", "bob")
		if err != nil {
			t.Fatalf("toggle %d: %v", i, err)
		}
		if got != want {
			t.Fatalf("toggle %d = %v, want %v", i, got, want)
		}
		stored, err := users.IsAdmin(ctx, "bob")
		if err != nil || stored != want {
			t.Fatalf("IsAdmin after toggle %d = %v, %v", i, stored, err)
		}
	}

	noBootstrap := NewUsers(db, store, "")
	if _, err := noBootstrap.ToggleAdmin(ctx, "", "bob"); !errors.Is(err, ErrPermission) {
		t.Fatalf("toggle without bootstrap = %v, want %v", err, ErrPermission)
	}
}

func TestUsersSetAdminAndRemove(t *testing.T) {
	db, store := openTestDB(t)
	users := NewUsers(db, store, "root")
	ctx := context.Background()

	if err := users.SetAdmin(ctx, "root", true); err != nil {
		t.Fatalf("SetAdmin: %v", err)
	}
	if err := users.SetAdmin(ctx, "root", true); err != nil {
		t.Fatalf("SetAdmin twice: %v", err)
	}
	if admin, err := users.IsAdmin(ctx, "root"); err != nil || !admin {
		t.Fatalf("IsAdmin = %v, %v", admin, err)
	}

	u, created, err := users.GetOrCreate(ctx, "dora")
	if err != nil || !created || u.IsAdmin {
		t.Fatalf("GetOrCreate = %+v, %v, %v", u, created, err)
	}
	b, err := store.Submit(ctx, models.DirectOrigin("dora"), "dora", "d1", bottles.Content{Text: "hello"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	expired, err := users.Remove(ctx, "dora")
	if err != nil || expired != 1 {
		t.Fatalf("Remove = %d, %v; want 1", expired, err)
	}
	got, _ := store.Get(ctx, b.ID)
	if got.Status != models.BottleExpired {
		t.Fatalf("dm bottle status = %q, want expired", got.Status)
	}
}
