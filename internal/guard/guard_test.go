package guard

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emandor/medai_service/internal/session"
)

var (
	absent  = session.Absent
	present = session.Presence{Present: true}
	demo    = session.Presence{Present: true, Demo: true}
)

func TestClassify(t *testing.T) {
	cases := map[string]Category{
		"/_next/static/chunk.js":  CategoryStatic,
		"/dashboard/logo.png":     CategoryStatic,
		"/fonts/Inter.WOFF2":      CategoryStatic,
		"/storage/covers/a.jpg":   CategoryStatic,
		"/dashboard":              CategoryProtected,
		"/dashboard/":             CategoryProtected,
		"/cardsets/abc":           CategoryProtected,
		"/api/usage/check":        CategoryProtected,
		"/ws":                     CategoryProtected,
		"/":                       CategoryEntry,
		"":                        CategoryEntry,
		"/signin":                 CategoryEntry,
		"/signup/":                CategoryEntry,
		"/intro":                  CategoryEntry,
		"/pricing":                CategoryOpen,
		"/dashboards":             CategoryOpen,
		"/signin/help":            CategoryOpen,
		"/api/auth/signin":        CategoryOpen,
	}
	for p, want := range cases {
		assert.Equal(t, want, DefaultRoutes.Classify(p), p)
	}
}

func TestDecide(t *testing.T) {
	d := DefaultRoutes.Decide("/cardsets/abc", "tab=cards", absent)
	assert.Equal(t, Redirect, d.Action)
	assert.Equal(t, "/signin?callbackUrl=%2Fcardsets%2Fabc%3Ftab%3Dcards", d.Location)

	assert.Equal(t, Pass, DefaultRoutes.Decide("/cardsets/abc", "", present).Action)
	assert.Equal(t, Pass, DefaultRoutes.Decide("/cardsets/abc", "", demo).Action)

	d = DefaultRoutes.Decide("/signin", "", demo)
	assert.Equal(t, Decision{Action: Redirect, Location: DashboardPath, Category: CategoryEntry}, d)
	assert.Equal(t, Pass, DefaultRoutes.Decide("/signin", "", absent).Action)

	assert.Equal(t, Pass, DefaultRoutes.Decide("/logo.svg", "", absent).Action)
	assert.Equal(t, Pass, DefaultRoutes.Decide("/pricing", "", present).Action)
}

func TestDecideEveryProtectedPath(t *testing.T) {
	for _, pre := range DefaultRoutes.Protected {
		for _, p := range []string{pre, pre + "/", pre + "/nested/item"} {
			d := DefaultRoutes.Decide(p, "tab=2&q=a b", absent)
			require.Equal(t, Redirect, d.Action, p)
			assert.Equal(t, CategoryProtected, d.Category, p)

			loc, err := url.Parse(d.Location)
			require.NoError(t, err, p)
			assert.Equal(t, SignInPath, loc.Path, p)
			assert.Equal(t, p+"?tab=2&q=a b", loc.Query().Get(CallbackParam), p)

			assert.Equal(t, Pass, DefaultRoutes.Decide(p, "", present).Action, p)
			assert.Equal(t, Pass, DefaultRoutes.Decide(p, "", demo).Action, p)
		}
	}
}

func TestDecideEveryEntryPath(t *testing.T) {
	for _, p := range DefaultRoutes.Entry {
		for _, pres := range []session.Presence{present, demo} {
			d := DefaultRoutes.Decide(p, "from=mail", pres)
			assert.Equal(t, Decision{Action: Redirect, Location: DashboardPath, Category: CategoryEntry}, d, p)
		}
		assert.Equal(t, Pass, DefaultRoutes.Decide(p, "", absent).Action, p)
	}
}

func TestDecideIsDeterministic(t *testing.T) {
	first := DefaultRoutes.Decide("/docs/1", "a=b", absent)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, DefaultRoutes.Decide("/docs/1", "a=b", absent))
	}
}

type fixedPresence session.Presence

func (f fixedPresence) Resolve(session.CookieReader) session.Presence { return session.Presence(f) }

func serve(t *testing.T, p session.Presence, path string) *http.Response {
	t.Helper()
	app := fiber.New()
	app.Use(Middleware(DefaultRoutes, fixedPresence(p)))
	app.Use(func(c *fiber.Ctx) error { return c.SendString("reached") })
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil), -1)
	require.NoError(t, err)
	return resp
}

func TestMiddlewareRedirectsPages(t *testing.T) {
	resp := serve(t, absent, "/dashboard?week=2")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/signin?callbackUrl=%2Fdashboard%3Fweek%3D2", resp.Header.Get("Location"))

	resp = serve(t, present, "/")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, DashboardPath, resp.Header.Get("Location"))
}

func TestMiddlewareAnswersAPIWith401(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, serve(t, absent, "/api/cardsets").StatusCode)
	assert.Equal(t, http.StatusUnauthorized, serve(t, absent, "/ws").StatusCode)
	assert.Equal(t, http.StatusOK, serve(t, absent, "/api/auth/signin").StatusCode)
	assert.Equal(t, http.StatusOK, serve(t, present, "/api/cardsets").StatusCode)
}

func TestMiddlewareCoversProtectedList(t *testing.T) {
	for _, p := range DefaultRoutes.Protected {
		resp := serve(t, absent, p+"?x=1")
		if IsAPI(p) {
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, p)
			continue
		}
		assert.Equal(t, http.StatusFound, resp.StatusCode, p)
		assert.Equal(t, SignInURL(p, "x=1"), resp.Header.Get("Location"), p)
	}
}

func TestMiddlewarePassesStaticAndOpen(t *testing.T) {
	assert.Equal(t, http.StatusOK, serve(t, absent, "/_next/app.js").StatusCode)
	assert.Equal(t, http.StatusOK, serve(t, present, "/pricing").StatusCode)
}
