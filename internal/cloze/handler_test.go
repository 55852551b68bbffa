package cloze

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emandor/medai_service/internal/docs"
	"github.com/emandor/medai_service/internal/middleware"
	"github.com/emandor/medai_service/internal/model"
	"github.com/emandor/medai_service/internal/testutil"
)

type fixture struct {
	app   *fiber.App
	x     *sqlx.DB
	docs  *docs.Repo
	alice int64
	bob   int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	x := testutil.NewDB(t)
	f := &fixture{
		x:     x,
		docs:  docs.NewRepo(x),
		alice: testutil.CreateUser(t, x, "alice@med.ai"),
		bob:   testutil.CreateUser(t, x, "bob@med.ai"),
	}
	h := NewHandler(NewRepo(x), f.docs)
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		uid, _ := strconv.ParseInt(c.Get("X-User"), 10, 64)
		c.Locals(middleware.UserIDKey, uid)
		return c.Next()
	})
	app.Post("/api/clozes", h.Create)
	app.Post("/api/clozes/auto", h.Auto)
	app.Get("/api/clozes", h.List)
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

func (f *fixture) doc(t *testing.T, user int64, text string) int64 {
	t.Helper()
	d := &model.Doc{UserID: user, Title: "notes", Source: model.DocSourcePDF, PageCount: 1, BodyText: text}
	require.NoError(t, f.docs.Create(t.Context(), d))
	return d.ID
}

func TestCreateFromMarkedText(t *testing.T) {
	f := newFixture(t)
	code, body := f.call(t, f.alice, http.MethodPost, "/api/clozes", map[string]any{
		"text": "ADH acts on the {{collecting duct}}.",
	})
	require.Equal(t, http.StatusCreated, code, string(body))
	var v view
	require.NoError(t, json.Unmarshal(body, &v))
	assert.Equal(t, "ADH acts on the _____.", v.MaskedText)
	assert.Equal(t, []string{"collecting duct"}, v.Answers)

	code, body = f.call(t, f.alice, http.MethodGet, "/api/clozes", nil)
	require.Equal(t, http.StatusOK, code)
	var list []view
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list, 1)
	assert.Equal(t, []string{"collecting duct"}, list[0].Answers)
}

func TestCreateRejectsTextWithoutBlanks(t *testing.T) {
	f := newFixture(t)
	code, _ := f.call(t, f.alice, http.MethodPost, "/api/clozes", map[string]any{"text": "plain"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestCreateChecksDocOwnership(t *testing.T) {
	f := newFixture(t)
	docID := f.doc(t, f.alice, "anything")
	code, _ := f.call(t, f.bob, http.MethodPost, "/api/clozes", map[string]any{
		"docId": docID, "text": "a {{b}} c",
	})
	assert.Equal(t, http.StatusNotFound, code)
}

func TestAutoFromDocument(t *testing.T) {
	f := newFixture(t)
	docID := f.doc(t, f.alice, "The kidney filters plasma. Glomerular filtration depends on pressure!")

	code, body := f.call(t, f.alice, http.MethodPost, "/api/clozes/auto", map[string]any{"docId": docID, "max": 1})
	require.Equal(t, http.StatusCreated, code, string(body))
	var v view
	require.NoError(t, json.Unmarshal(body, &v))
	assert.Equal(t, []string{"filters"}, v.Answers)
	require.NotNil(t, v.DocID)
	assert.Equal(t, docID, *v.DocID)

	code, _ = f.call(t, f.bob, http.MethodPost, "/api/clozes/auto", map[string]any{"docId": docID})
	assert.Equal(t, http.StatusNotFound, code)
}

func TestListKeepsRowWithCorruptAnswers(t *testing.T) {
	f := newFixture(t)
	_, err := f.x.Exec(`INSERT INTO clozes (user_id, doc_id, source_text, masked_text, answers, created_at)
		VALUES (?, NULL, 'a b', '_____ b', '{not json', ?)`, f.alice, time.Now().UTC())
	require.NoError(t, err)

	code, body := f.call(t, f.alice, http.MethodGet, "/api/clozes", nil)
	require.Equal(t, http.StatusOK, code)
	var got []view
	require.NoError(t, json.Unmarshal(body, &got))
	require.Len(t, got, 1)
	assert.Equal(t, "_____ b", got[0].MaskedText)
	assert.Empty(t, got[0].Answers)

	_, err = toView(model.Cloze{ID: 9, Answers: "{not json"})
	assert.ErrorContains(t, err, "cloze 9")
}

func TestAutoKeepsMultibyteSourceValid(t *testing.T) {
	f := newFixture(t)
	text := strings.Repeat("Glomerulus filters plasma. ", 10) + strings.Repeat("腎臓", maxSourceBytes)
	docID := f.doc(t, f.alice, text)

	code, body := f.call(t, f.alice, http.MethodPost, "/api/clozes/auto", map[string]any{"docId": docID})
	require.Equal(t, http.StatusCreated, code, string(body))
	var v view
	require.NoError(t, json.Unmarshal(body, &v))
	assert.True(t, utf8.ValidString(v.SourceText))
	assert.LessOrEqual(t, len(v.SourceText), maxSourceBytes)
}
