package study

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emandor/medai_service/internal/account"
	"github.com/emandor/medai_service/internal/middleware"
	"github.com/emandor/medai_service/internal/quota"
	"github.com/emandor/medai_service/internal/testutil"
	"github.com/emandor/medai_service/internal/ws"
)

type sentEvent struct {
	userID int64
	event  ws.Event
}

type roomEvent struct {
	room  string
	event ws.Event
	data  fiber.Map
}

type fakeNotifier struct {
	mu    sync.Mutex
	sent  []sentEvent
	rooms []roomEvent
}

func (n *fakeNotifier) Broadcast(room string, ev ws.Event, data any) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	m, _ := data.(fiber.Map)
	n.rooms = append(n.rooms, roomEvent{room, ev, m})
	return 1
}

func (n *fakeNotifier) NotifyUser(userID int64, ev ws.Event, _ any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentEvent{userID, ev})
}

type fixture struct {
	app      *fiber.App
	notifier *fakeNotifier
	db       *sqlx.DB
	alice    int64
	bob      int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	x := testutil.NewDB(t)
	users := account.NewRepo(x)
	store := quota.NewSQLStore(x, quota.Clock{}, quota.DefaultLimits)
	policy := quota.NewPolicy(store, users, "demo@med.ai")
	n := &fakeNotifier{}
	h := NewHandler(NewRepo(x), policy, n, t.TempDir())

	f := &fixture{
		notifier: n,
		db:       x,
		alice:    testutil.CreateUser(t, x, "alice@med.ai"),
		bob:      testutil.CreateUser(t, x, "bob@med.ai"),
	}
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		uid, _ := strconv.ParseInt(c.Get("X-User"), 10, 64)
		c.Locals(middleware.UserIDKey, uid)
		c.Locals(middleware.TierKey, account.TierFree)
		return c.Next()
	})
	app.Post("/api/cardsets", h.Create)
	app.Get("/api/cardsets", h.List)
	app.Get("/api/cardsets/:id", h.Get)
	app.Put("/api/cardsets/:id", h.Update)
	app.Delete("/api/cardsets/:id", h.Delete)
	app.Post("/api/cardsets/:id/cards", h.AddCards)
	app.Put("/api/cardsets/:id/cards/:cardId", h.UpdateCard)
	app.Delete("/api/cardsets/:id/cards/:cardId", h.DeleteCard)
	app.Post("/api/cardsets/:id/study", h.Study)
	app.Post("/api/likes/:id", h.ToggleLike)
	app.Get("/api/search", h.Search)
	f.app = app
	return f
}

func (f *fixture) call(t *testing.T, user int64, method, path string, body any) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User", strconv.FormatInt(user, 10))
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

type setResp struct {
	ID            int64      `json:"id"`
	PublicID      string     `json:"public_id"`
	Title         string     `json:"title"`
	IsPublic      bool       `json:"is_public"`
	Likes         int        `json:"likes"`
	LastStudiedAt *time.Time `json:"last_studied_at"`
	Cards         []struct {
		ID       int64  `json:"id"`
		Front    string `json:"front"`
		Position int    `json:"position"`
	} `json:"cards"`
}

func (f *fixture) create(t *testing.T, user int64, title string, public bool) setResp {
	t.Helper()
	code, body := f.call(t, user, http.MethodPost, "/api/cardsets", map[string]any{
		"title": title, "description": "", "isPublic": public,
		"cards": []map[string]string{{"front": "Q1", "back": "A1"}, {"front": "Q2", "back": "A2"}},
	})
	require.Equal(t, http.StatusCreated, code, string(body))
	var s setResp
	require.NoError(t, json.Unmarshal(body, &s))
	return s
}

func TestCreateAndGetCardSet(t *testing.T) {
	f := newFixture(t)
	s := f.create(t, f.alice, "Cardiology", false)
	assert.Len(t, s.PublicID, 21)

	code, body := f.call(t, f.alice, http.MethodGet, "/api/cardsets/"+s.PublicID, nil)
	require.Equal(t, http.StatusOK, code)
	var got setResp
	require.NoError(t, json.Unmarshal(body, &got))
	require.Len(t, got.Cards, 2)
	assert.Equal(t, "Q1", got.Cards[0].Front)
	assert.Equal(t, 1, got.Cards[1].Position)

	code, body = f.call(t, f.alice, http.MethodGet, "/api/cardsets", nil)
	require.Equal(t, http.StatusOK, code)
	var list []setResp
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Len(t, list, 1)
}

func TestCreateRejectsEmptyTitle(t *testing.T) {
	f := newFixture(t)
	code, _ := f.call(t, f.alice, http.MethodPost, "/api/cardsets", map[string]any{"title": "   "})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestPrivateSetsAreHiddenFromOthers(t *testing.T) {
	f := newFixture(t)
	priv := f.create(t, f.alice, "Private", false)
	pub := f.create(t, f.alice, "Public", true)

	code, _ := f.call(t, f.bob, http.MethodGet, "/api/cardsets/"+priv.PublicID, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = f.call(t, f.bob, http.MethodGet, "/api/cardsets/"+pub.PublicID, nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = f.call(t, f.bob, http.MethodPut, "/api/cardsets/"+pub.PublicID, map[string]any{"title": "Mine now"})
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = f.call(t, f.bob, http.MethodDelete, "/api/cardsets/"+pub.PublicID, nil)
	assert.Equal(t, http.StatusForbidden, code)
}

func TestUpdateAndDeleteCardSet(t *testing.T) {
	f := newFixture(t)
	s := f.create(t, f.alice, "Old", false)

	code, body := f.call(t, f.alice, http.MethodPut, "/api/cardsets/"+s.PublicID, map[string]any{"title": "New", "isPublic": true})
	require.Equal(t, http.StatusOK, code)
	var got setResp
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "New", got.Title)
	assert.True(t, got.IsPublic)

	code, _ = f.call(t, f.alice, http.MethodDelete, "/api/cardsets/"+s.PublicID, nil)
	assert.Equal(t, http.StatusNoContent, code)
	code, _ = f.call(t, f.alice, http.MethodGet, "/api/cardsets/"+s.PublicID, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestCardEditing(t *testing.T) {
	f := newFixture(t)
	s := f.create(t, f.alice, "Neuro", false)

	code, body := f.call(t, f.alice, http.MethodPost, "/api/cardsets/"+s.PublicID+"/cards",
		map[string]any{"cards": []map[string]string{{"front": "Q3", "back": "A3"}}})
	require.Equal(t, http.StatusCreated, code)
	var added []struct {
		ID       int64 `json:"id"`
		Position int   `json:"position"`
	}
	require.NoError(t, json.Unmarshal(body, &added))
	require.Len(t, added, 1)
	assert.Equal(t, 2, added[0].Position)

	cardPath := "/api/cardsets/" + s.PublicID + "/cards/" + strconv.FormatInt(added[0].ID, 10)
	code, _ = f.call(t, f.alice, http.MethodPut, cardPath, map[string]string{"front": "Q3'", "back": "A3'"})
	assert.Equal(t, http.StatusOK, code)

	code, _ = f.call(t, f.alice, http.MethodDelete, cardPath, nil)
	assert.Equal(t, http.StatusNoContent, code)
	code, _ = f.call(t, f.alice, http.MethodDelete, cardPath, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestStudyConsumesDailyQuota(t *testing.T) {
	f := newFixture(t)
	s := f.create(t, f.alice, "Renal", false)
	path := "/api/cardsets/" + s.PublicID + "/study"

	for i := 0; i < 2; i++ {
		code, body := f.call(t, f.alice, http.MethodPost, path, nil)
		require.Equal(t, http.StatusOK, code, string(body))
	}
	code, body := f.call(t, f.alice, http.MethodPost, path, nil)
	require.Equal(t, http.StatusTooManyRequests, code)
	var denied map[string]any
	require.NoError(t, json.Unmarshal(body, &denied))
	assert.Equal(t, float64(2), denied["currentUsage"])
	assert.Equal(t, float64(0), denied["remaining"])
}

func TestStudyMissingSetCostsNothing(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		code, _ := f.call(t, f.alice, http.MethodPost, "/api/cardsets/missing/study", nil)
		assert.Equal(t, http.StatusNotFound, code)
	}
	s := f.create(t, f.alice, "Renal", false)
	code, body := f.call(t, f.alice, http.MethodPost, "/api/cardsets/"+s.PublicID+"/study", nil)
	require.Equal(t, http.StatusOK, code)

	var out struct {
		CardSet setResp      `json:"cardSet"`
		Usage   quota.Result `json:"usage"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, 1, out.Usage.CurrentUsage)
	assert.NotNil(t, out.CardSet.LastStudiedAt)
	assert.Len(t, out.CardSet.Cards, 2)
}

func TestLikeToggleNotifiesOwner(t *testing.T) {
	f := newFixture(t)
	s := f.create(t, f.alice, "Public deck", true)

	code, body := f.call(t, f.bob, http.MethodPost, "/api/likes/"+s.PublicID, nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"liked":true,"likes":1}`, string(body))
	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, sentEvent{f.alice, ws.EventCardSetLiked}, f.notifier.sent[0])

	code, body = f.call(t, f.bob, http.MethodPost, "/api/likes/"+s.PublicID, nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"liked":false,"likes":0}`, string(body))
	assert.Len(t, f.notifier.sent, 1)
}

func TestLikeAndStudyReachCardSetRoom(t *testing.T) {
	f := newFixture(t)
	s := f.create(t, f.alice, "Public deck", true)
	room := ws.CardSetRoom(s.PublicID)

	code, _ := f.call(t, f.bob, http.MethodPost, "/api/likes/"+s.PublicID, nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = f.call(t, f.bob, http.MethodPost, "/api/likes/"+s.PublicID, nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = f.call(t, f.bob, http.MethodPost, "/api/cardsets/"+s.PublicID+"/study", nil)
	require.Equal(t, http.StatusOK, code)

	require.Len(t, f.notifier.rooms, 3)
	assert.Equal(t, roomEvent{room, ws.EventCardSetLiked, fiber.Map{"cardSetId": s.PublicID, "likes": 1}}, f.notifier.rooms[0])
	assert.Equal(t, roomEvent{room, ws.EventCardSetLiked, fiber.Map{"cardSetId": s.PublicID, "likes": 0}}, f.notifier.rooms[1])
	assert.Equal(t, room, f.notifier.rooms[2].room)
	assert.Equal(t, ws.EventCardSetStudied, f.notifier.rooms[2].event)
	assert.Equal(t, s.PublicID, f.notifier.rooms[2].data["cardSetId"])
}

func TestStudyOfMissingSetBroadcastsNothing(t *testing.T) {
	f := newFixture(t)
	code, _ := f.call(t, f.alice, http.MethodPost, "/api/cardsets/missing/study", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Empty(t, f.notifier.rooms)
}

func TestCanViewCardSetFollowsVisibility(t *testing.T) {
	f := newFixture(t)
	open := f.create(t, f.alice, "Open deck", true)
	hidden := f.create(t, f.alice, "Hidden deck", false)
	repo := NewRepo(f.db)
	ctx := context.Background()

	assert.True(t, repo.CanViewCardSet(ctx, f.bob, open.PublicID))
	assert.True(t, repo.CanViewCardSet(ctx, f.alice, hidden.PublicID))
	assert.False(t, repo.CanViewCardSet(ctx, f.bob, hidden.PublicID))
	assert.False(t, repo.CanViewCardSet(ctx, f.bob, "missing"))
}

func TestSearchOnlyPublicRanked(t *testing.T) {
	f := newFixture(t)
	f.create(t, f.alice, "Anatomy of the heart", true)
	f.create(t, f.alice, "Heart", true)
	f.create(t, f.alice, "Heart secrets", false)
	f.create(t, f.bob, "100% heart_rate", true)

	code, body := f.call(t, f.bob, http.MethodGet, "/api/search?q=heart", nil)
	require.Equal(t, http.StatusOK, code)
	var got []setResp
	require.NoError(t, json.Unmarshal(body, &got))
	require.Len(t, got, 3)
	assert.Equal(t, "Heart", got[0].Title)

	code, body = f.call(t, f.bob, http.MethodGet, "/api/search?q=100%25", nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(body, &got))
	require.Len(t, got, 1)
	assert.Equal(t, "100% heart_rate", got[0].Title)
}
