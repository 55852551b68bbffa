package account

import (
	"strings"
	"time"

	"github.com/emandor/medai_service/internal/model"
)

// Tier is resolved once per request and passed down to quota decisions.
type Tier int

const (
	TierFree Tier = iota
	TierPremium
	TierDemo
)

func (t Tier) String() string {
	switch t {
	case TierDemo:
		return "demo"
	case TierPremium:
		return "premium"
	default:
		return "free"
	}
}

func (t Tier) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// Unlimited reports whether the tier bypasses daily metering.
func (t Tier) Unlimited() bool { return t == TierDemo || t == TierPremium }

// TierOf classifies u at instant now. Premium requires an expiry strictly after now.
func TierOf(u *model.User, now time.Time, demoEmail string) Tier {
	if demoEmail != "" && strings.EqualFold(u.Email, demoEmail) {
		return TierDemo
	}
	if u.SubscriptionType == model.SubscriptionPremium &&
		u.SubscriptionExpiresAt != nil && u.SubscriptionExpiresAt.After(now) {
		return TierPremium
	}
	return TierFree
}

// NormalizeEmail lowercases and trims; emails are stored in this form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
