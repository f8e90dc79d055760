package webserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stake-plus/bottlebot/src/bottles"
	"github.com/stake-plus/bottlebot/src/data"
	"github.com/stake-plus/bottlebot/src/registry"
	"github.com/stake-plus/bottlebot/src/shared/models"
)

const testSecret = "test-secret"

type fakeOperator struct {
	redelivered  []uint64
	redeliverErr error
	expired      []uint64
}

func (f *fakeOperator) Redeliver(_ context.Context, id uint64) error {
	f.redelivered = append(f.redelivered, id)
	return f.redeliverErr
}

func (f *fakeOperator) Expire(_ context.Context, id uint64) (bool, error) {
	f.expired = append(f.expired, id)
	return id == 1, nil
}

type fakeSweeper struct{ runs int }

func (f *fakeSweeper) RunOnce(context.Context) (int64, error) {
	f.runs++
	return 3, nil
}

type fixture struct {
	handler http.Handler
	store   *bottles.Store
	guilds  *registry.Guilds
	users   *registry.Users
	op      *fakeOperator
	sweeper *fakeSweeper
}

func newFixture(t *testing.T, burst int) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

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

	f := &fixture{
		store:   bottles.NewStore(db),
		op:      &fakeOperator{},
		sweeper: &fakeSweeper{},
	}
	f.guilds = registry.NewGuilds(db, f.store, nil)
	f.users = registry.NewUsers(db, f.store, "owner")
	if err := f.users.SetAdmin(context.Background(), "owner", true); err != nil {
		t.Fatalf("SetAdmin: %v", err)
	}

	srv := New(Config{
		JWTSecret:   testSecret,
		CORSOrigins: []string{"http://localhost:3000"},
		RPS:         1,
		Burst:       burst,
	}, Deps{Store: f.store, Guilds: f.guilds, Users: f.users, Operator: f.op, Sweeper: f.sweeper})
	f.handler = srv.Handler()
	return f
}

func (f *fixture) do(t *testing.T, method, path, userID string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if userID != "" {
		tok, err := IssueToken(testSecret, userID, time.Hour)
		if err != nil {
			t.Fatalf("IssueToken: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, 10)
	if w := f.do(t, http.MethodGet, "/healthz", ""); w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestGuildAndLeaderboard(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	invite := "https://discord.gg/abc"
	channel := "chan-a"
	if _, err := f.guilds.Update(ctx, "ga", registry.GuildUpdate{BottleChannelID: &channel, Invite: &invite}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := f.guilds.AddXP(ctx, "ga", 7); err != nil {
		t.Fatalf("AddXP: %v", err)
	}
	if err := f.guilds.AddXP(ctx, "hidden", 50); err != nil {
		t.Fatalf("AddXP: %v", err)
	}

	w := f.do(t, http.MethodGet, "/v1/guilds/ga", "")
	if w.Code != http.StatusOK {
		t.Fatalf("guild status = %d", w.Code)
	}
	var g guildView
	decode(t, w, &g)
	if g.XP != 7 || g.State != "configured" || !g.Public || g.Invite != invite {
		t.Fatalf("guild = %+v", g)
	}

	if w := f.do(t, http.MethodGet, "/v1/guilds/missing", ""); w.Code != http.StatusNotFound {
		t.Fatalf("missing guild status = %d, want 404", w.Code)
	}

	w = f.do(t, http.MethodGet, "/v1/leaderboard", "")
	var board []guildView
	decode(t, w, &board)
	if len(board) != 1 || board[0].ID != "ga" {
		t.Fatalf("leaderboard = %+v, want only public guild ga", board)
	}

	if w := f.do(t, http.MethodGet, "/v1/leaderboard?limit=x", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("bad limit status = %d, want 400", w.Code)
	}
}

func TestStats(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	for _, user := range []string{"u1", "u2"} {
		if _, err := f.store.Submit(ctx, models.DirectOrigin(user), user, "m-"+user, bottles.Content{Text: "hi"}); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	var counts map[string]int64
	decode(t, f.do(t, http.MethodGet, "/v1/stats", ""), &counts)
	if counts["pending"] != 2 || counts["delivered"] != 0 {
		t.Fatalf("counts = %v", counts)
	}
}

func TestAdminRequiresToken(t *testing.T) {
	f := newFixture(t, 10)

	if w := f.do(t, http.MethodGet, "/v1/admin/bottles", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("no token status = %d, want 401", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/v1/admin/bottles", "bob"); w.Code != http.StatusForbidden {
		t.Fatalf("non-admin status = %d, want 403", w.Code)
	}

	forged, err := IssueToken("other-secret", "owner", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/v1/admin/bottles", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("forged token status = %d, want 401", w.Code)
	}

	expired, err := IssueToken(testSecret, "owner", -time.Minute)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	req = httptest.NewRequest(http.MethodGet, "/v1/admin/bottles", nil)
	req.Header.Set("Authorization", "Bearer "+expired)
	w = httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expired token status = %d, want 401", w.Code)
	}
}

func TestIssueTokenNeedsSecret(t *testing.T) {
	if _, err := IssueToken("", "owner", time.Hour); err == nil {
		t.Fatal("IssueToken with empty secret should fail")
	}
}

func TestAdminListBottles(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	a, err := f.store.Submit(ctx, models.GuildOrigin("ga", "ca"), "alice", "m1", bottles.Content{Text: "secret words"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	b, err := f.store.Submit(ctx, models.GuildOrigin("gb", "cb"), "bob", "m2", bottles.Content{Text: "more words"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if ok, err := f.store.Claim(ctx, a.ID, b.ID); err != nil || !ok {
		t.Fatalf("Claim = %v, %v", ok, err)
	}

	w := f.do(t, http.MethodGet, "/v1/admin/bottles?status=matched", "owner")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if strings.Contains(w.Body.String(), "secret words") {
		t.Fatal("bottle content leaked into the operator listing")
	}
	var list []bottleView
	decode(t, w, &list)
	if len(list) != 2 || list[0].PairedID == nil || *list[0].PairedID != b.ID {
		t.Fatalf("list = %+v", list)
	}

	if w := f.do(t, http.MethodGet, "/v1/admin/bottles?status=lost", "owner"); w.Code != http.StatusBadRequest {
		t.Fatalf("unknown status code = %d, want 400", w.Code)
	}
}

func TestAdminActions(t *testing.T) {
	f := newFixture(t, 10)

	if w := f.do(t, http.MethodPost, "/v1/admin/bottles/4/redeliver", "owner"); w.Code != http.StatusOK {
		t.Fatalf("redeliver status = %d", w.Code)
	}
	f.op.redeliverErr = bottles.ErrNotMatched
	if w := f.do(t, http.MethodPost, "/v1/admin/bottles/4/redeliver", "owner"); w.Code != http.StatusConflict {
		t.Fatalf("redeliver unmatched status = %d, want 409", w.Code)
	}
	f.op.redeliverErr = errors.New("discord down")
	if w := f.do(t, http.MethodPost, "/v1/admin/bottles/4/redeliver", "owner"); w.Code != http.StatusBadGateway {
		t.Fatalf("redeliver failure status = %d, want 502", w.Code)
	}
	if w := f.do(t, http.MethodPost, "/v1/admin/bottles/abc/redeliver", "owner"); w.Code != http.StatusBadRequest {
		t.Fatalf("bad id status = %d, want 400", w.Code)
	}
	if len(f.op.redelivered) != 3 {
		t.Fatalf("redelivered = %v", f.op.redelivered)
	}

	if w := f.do(t, http.MethodPost, "/v1/admin/bottles/1/expire", "owner"); w.Code != http.StatusOK {
		t.Fatalf("expire status = %d", w.Code)
	}
	if w := f.do(t, http.MethodPost, "/v1/admin/bottles/2/expire", "owner"); w.Code != http.StatusConflict {
		t.Fatalf("expire non-pending status = %d, want 409", w.Code)
	}

	w := f.do(t, http.MethodPost, "/v1/admin/sweep", "owner")
	var swept map[string]int64
	decode(t, w, &swept)
	if swept["expired"] != 3 || f.sweeper.runs != 1 {
		t.Fatalf("sweep = %v, runs = %d", swept, f.sweeper.runs)
	}
}

func TestAdminRemoveUser(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	if _, err := f.store.Submit(ctx, models.DirectOrigin("dora"), "dora", "d1", bottles.Content{Text: "hi"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	w := f.do(t, http.MethodDelete, "/v1/admin/users/dora", "owner")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	counts, err := f.store.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if counts[models.BottleExpired] != 1 {
		t.Fatalf("counts = %v, want the DM bottle expired", counts)
	}
}

func TestPublicRateLimit(t *testing.T) {
	f := newFixture(t, 2)
	for i := 0; i < 2; i++ {
		if w := f.do(t, http.MethodGet, "/v1/stats", ""); w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, w.Code)
		}
	}
	if w := f.do(t, http.MethodGet, "/v1/stats", ""); w.Code != http.StatusTooManyRequests {
		t.Fatalf("third request status = %d, want 429", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/healthz", ""); w.Code != http.StatusOK {
		t.Fatalf("healthz should not be limited, got %d", w.Code)
	}
}

func TestRateLimiterEvictsIdleClients(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }

	if !rl.Allow("a") || rl.Allow("a") {
		t.Fatal("burst of 1 should allow exactly one request")
	}
	now = now.Add(limiterIdle + time.Second)
	rl.Allow("b")
	if _, ok := rl.clients["a"]; ok {
		t.Fatal("idle client was not evicted")
	}
}
