// Package guard classifies request paths and decides whether a caller may
// proceed, must sign in first, or should skip an auth entry point.
package guard

import (
	"net/url"
	"path"
	"strings"

	"github.com/emandor/medai_service/internal/session"
)

const (
	SignInPath    = "/signin"
	DashboardPath = "/dashboard"
	CallbackParam = "callbackUrl"
)

type Category int

const (
	CategoryOpen Category = iota
	CategoryStatic
	CategoryProtected
	CategoryEntry
)

func (c Category) String() string {
	switch c {
	case CategoryStatic:
		return "static"
	case CategoryProtected:
		return "protected"
	case CategoryEntry:
		return "entry"
	default:
		return "open"
	}
}

// Routes is the route classification table. Prefixes match the path itself
// or anything below it; entry points match exactly.
type Routes struct {
	StaticPrefixes []string
	StaticExts     []string
	Protected      []string
	Entry          []string
}

var DefaultRoutes = Routes{
	StaticPrefixes: []string{"/_next", "/assets", "/storage", "/favicon.ico", "/robots.txt"},
	StaticExts: []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".ico",
		".woff", ".woff2", ".ttf", ".otf", ".eot"},
	Protected: []string{
		"/dashboard", "/cardsets", "/study", "/questions", "/docs", "/clozes", "/messages", "/profile", "/ws",
		"/api/cardsets", "/api/cards", "/api/questions", "/api/docs", "/api/clozes", "/api/usage",
		"/api/likes", "/api/follows", "/api/messages", "/api/me", "/api/auth/signout",
	},
	Entry: []string{"/", "/intro", "/signin", "/signup"},
}

func (r Routes) Classify(p string) Category {
	if p == "" {
		p = "/"
	}
	for _, pre := range r.StaticPrefixes {
		if underPrefix(p, pre) {
			return CategoryStatic
		}
	}
	ext := strings.ToLower(path.Ext(p))
	for _, e := range r.StaticExts {
		if ext == e {
			return CategoryStatic
		}
	}
	for _, pre := range r.Protected {
		if underPrefix(p, pre) {
			return CategoryProtected
		}
	}
	for _, e := range r.Entry {
		if p == e || (e != "/" && p == e+"/") {
			return CategoryEntry
		}
	}
	return CategoryOpen
}

func underPrefix(p, prefix string) bool {
	return p == prefix || strings.HasPrefix(p, strings.TrimSuffix(prefix, "/")+"/")
}

type Action int

const (
	Pass Action = iota
	Redirect
)

func (a Action) String() string {
	if a == Redirect {
		return "redirect"
	}
	return "pass"
}

type Decision struct {
	Action   Action
	Location string
	Category Category
}

// Decide is a pure function of the request path, its raw query and the
// session presence.
func (r Routes) Decide(p, rawQuery string, presence session.Presence) Decision {
	cat := r.Classify(p)
	switch cat {
	case CategoryProtected:
		if !presence.Present {
			return Decision{Action: Redirect, Location: SignInURL(p, rawQuery), Category: cat}
		}
	case CategoryEntry:
		if presence.Present {
			return Decision{Action: Redirect, Location: DashboardPath, Category: cat}
		}
	}
	return Decision{Action: Pass, Category: cat}
}

// SignInURL builds the sign-in location carrying the original path and query.
func SignInURL(p, rawQuery string) string {
	orig := p
	if rawQuery != "" {
		orig += "?" + rawQuery
	}
	return SignInPath + "?" + url.Values{CallbackParam: {orig}}.Encode()
}

// IsAPI reports paths answered with status codes instead of redirects.
func IsAPI(p string) bool {
	return underPrefix(p, "/api") || underPrefix(p, "/ws")
}
