package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/emandor/medai_service/internal/account"
	"github.com/emandor/medai_service/internal/model"
	"github.com/emandor/medai_service/internal/telemetry"
)

var ErrQuotaExceeded = errors.New("daily quota exceeded")

// Unlimited is the limit/remaining sentinel for tiers without a cap.
// It is a flag and never takes part in admission arithmetic.
const Unlimited = -1

type Result struct {
	CanUse       bool   `json:"canUse"`
	CurrentUsage int    `json:"currentUsage"`
	Limit        int    `json:"limit"`
	Remaining    int    `json:"remaining"`
	Message      string `json:"message"`
	// Day is the usage day the unit was counted on; Release needs it.
	Day string `json:"-"`
}

// Subject is the caller as the policy sees it.
type Subject struct {
	UserID int64
	Tier   account.Tier
}

type UserLookup interface {
	ByID(ctx context.Context, id int64) (*model.User, error)
}

type Policy struct {
	store     Store
	users     UserLookup
	demoEmail string
	now       func() time.Time
}

func NewPolicy(store Store, users UserLookup, demoEmail string) *Policy {
	return &Policy{store: store, users: users, demoEmail: demoEmail, now: time.Now}
}

// Subject loads the user and classifies its tier.
func (p *Policy) Subject(ctx context.Context, userID int64) (Subject, error) {
	u, err := p.users.ByID(ctx, userID)
	if err != nil {
		return Subject{}, err
	}
	return Subject{UserID: u.ID, Tier: account.TierOf(u, p.now(), p.demoEmail)}, nil
}

// CheckUser resolves the user before checking. An unknown user is a denial, not an error.
func (p *Policy) CheckUser(ctx context.Context, userID int64, f Feature) (Result, error) {
	if !f.Valid() {
		return invalidResult(), ErrUnknownFeature
	}
	sub, err := p.Subject(ctx, userID)
	if errors.Is(err, account.ErrUserNotFound) {
		return Result{Message: "user not found"}, nil
	}
	if err != nil {
		return Result{}, err
	}
	return p.Check(ctx, sub, f)
}

// Check reports whether sub may use one unit of f without consuming it.
func (p *Policy) Check(ctx context.Context, sub Subject, f Feature) (Result, error) {
	if !f.Valid() {
		return invalidResult(), ErrUnknownFeature
	}
	if sub.Tier.Unlimited() {
		return unlimitedResult(), nil
	}
	rec, err := p.store.GetOrResetToday(ctx, sub.UserID)
	if err != nil {
		return Result{}, err
	}
	used, limit := rec.Usage(f)
	return metered(f, used, limit, used < limit), nil
}

// Consume admits and counts one unit in a single conditional update. On
// exhaustion it returns ErrQuotaExceeded along with the current state.
func (p *Policy) Consume(ctx context.Context, sub Subject, f Feature) (Result, error) {
	if !f.Valid() {
		return invalidResult(), ErrUnknownFeature
	}
	if sub.Tier.Unlimited() {
		res, err := p.Record(ctx, sub, f)
		if err != nil {
			return Result{}, err
		}
		telemetry.ObserveQuota(string(f), telemetry.OutcomeUnlimited)
		return res, nil
	}
	rec, ok, err := p.store.TryIncrement(ctx, sub.UserID, f)
	if err != nil {
		return Result{}, err
	}
	used, limit := rec.Usage(f)
	res := metered(f, used, limit, ok)
	res.Day = rec.Day
	if !ok {
		telemetry.ObserveQuota(string(f), telemetry.OutcomeDenied)
		return res, ErrQuotaExceeded
	}
	telemetry.ObserveQuota(string(f), telemetry.OutcomeAllowed)
	return res, nil
}

// Record counts one unit without checking the limit and returns the state
// after the increment. Unlimited tiers go through here so their counters
// still move.
func (p *Policy) Record(ctx context.Context, sub Subject, f Feature) (Result, error) {
	if !f.Valid() {
		return invalidResult(), ErrUnknownFeature
	}
	rec, err := p.store.Increment(ctx, sub.UserID, f)
	if err != nil {
		return Result{}, err
	}
	res := unlimitedResult()
	if !sub.Tier.Unlimited() {
		used, limit := rec.Usage(f)
		res = metered(f, used, limit, used < limit)
	}
	res.Day = rec.Day
	return res, nil
}

// Release returns a unit taken by Consume when the metered action failed.
// usage is the Result Consume returned; a unit counted on a day that has
// since ended is not given back.
func (p *Policy) Release(ctx context.Context, sub Subject, f Feature, usage Result) error {
	if usage.Day == "" {
		return nil
	}
	if err := p.store.Release(ctx, sub.UserID, f, usage.Day); err != nil {
		return err
	}
	telemetry.ObserveQuota(string(f), telemetry.OutcomeReleased)
	return nil
}

// Summary checks every feature concurrently.
func (p *Policy) Summary(ctx context.Context, sub Subject) (map[Feature]Result, error) {
	results := make([]Result, len(Features))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range Features {
		g.Go(func() error {
			r, err := p.Check(gctx, sub, f)
			results[i] = r
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make(map[Feature]Result, len(Features))
	for i, f := range Features {
		out[f] = results[i]
	}
	return out, nil
}

func metered(f Feature, used, limit int, canUse bool) Result {
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	r := Result{CanUse: canUse, CurrentUsage: used, Limit: limit, Remaining: remaining}
	if canUse {
		r.Message = fmt.Sprintf("%d of %d %s left today", remaining, limit, f.Label())
	} else {
		r.Message = fmt.Sprintf("Daily limit reached for %s (%d/%d). Try again tomorrow or upgrade to premium.",
			f.Label(), used, limit)
	}
	return r
}

func unlimitedResult() Result {
	return Result{CanUse: true, Limit: Unlimited, Remaining: Unlimited, Message: "Unlimited access"}
}

func invalidResult() Result {
	return Result{Message: "invalid feature"}
}
