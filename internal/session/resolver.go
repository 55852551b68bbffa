// Package session turns request cookies into caller identity.
//
// A cookie is only trusted when it is the reserved demo token or an HS256
// token signed with the session secret that has not expired. Revocation is
// checked separately against the session store by Manager.Lookup.
package session

import "errors"

var (
	ErrNoSession = errors.New("no session")
	ErrRevoked   = errors.New("session revoked")
)

// CookieReader is satisfied by *fiber.Ctx.
type CookieReader interface {
	Cookies(key string, defaultValue ...string) string
}

// Presence is what the route guard needs to know about a request.
type Presence struct {
	Present bool
	Demo    bool
}

var Absent = Presence{}

func (p Presence) String() string {
	switch {
	case p.Demo:
		return "demo"
	case p.Present:
		return "present"
	default:
		return "absent"
	}
}

// Identity is a verified session cookie.
type Identity struct {
	SessionID string
	UserID    int64
	Demo      bool
}

type Resolver struct {
	names     []string
	demoToken string
	signer    *Signer
}

// NewResolver accepts the session cookie under any of names; deployments set
// exactly one of the standard and __Secure- variants.
func NewResolver(signer *Signer, demoToken string, names ...string) *Resolver {
	return &Resolver{names: names, demoToken: demoToken, signer: signer}
}

func (r *Resolver) Token(c CookieReader) string {
	for _, n := range r.names {
		if v := c.Cookies(n); v != "" {
			return v
		}
	}
	return ""
}

func (r *Resolver) Identify(c CookieReader) (Identity, error) {
	tok := r.Token(c)
	if tok == "" {
		return Identity{}, ErrNoSession
	}
	if r.demoToken != "" && tok == r.demoToken {
		return Identity{Demo: true}, nil
	}
	return r.signer.Verify(tok)
}

func (r *Resolver) Resolve(c CookieReader) Presence {
	id, err := r.Identify(c)
	if err != nil {
		return Absent
	}
	return Presence{Present: true, Demo: id.Demo}
}
