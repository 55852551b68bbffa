package quota

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emandor/medai_service/internal/account"
	"github.com/emandor/medai_service/internal/model"
	"github.com/emandor/medai_service/internal/testutil"
)

const demoEmail = "demo@med.ai"

type policyFixture struct {
	policy *Policy
	store  *SQLStore
	users  *account.Repo
	now    *fakeNow
}

func newPolicy(t *testing.T) (*policyFixture, func(email string) int64) {
	t.Helper()
	s, x, now := newStore(t)
	users := account.NewRepo(x)
	p := NewPolicy(s, users, demoEmail)
	p.now = now.Now
	return &policyFixture{policy: p, store: s, users: users, now: now},
		func(email string) int64 { return testutil.CreateUser(t, x, email) }
}

func TestCheckFreshUser(t *testing.T) {
	f, mkUser := newPolicy(t)
	uid := mkUser("a@b.c")

	res, err := f.policy.CheckUser(context.Background(), uid, AIQuestions)
	require.NoError(t, err)
	assert.True(t, res.CanUse)
	assert.Equal(t, 0, res.CurrentUsage)
	assert.Equal(t, 5, res.Limit)
	assert.Equal(t, 5, res.Remaining)
}

func TestCheckUnknownUser(t *testing.T) {
	f, _ := newPolicy(t)
	res, err := f.policy.CheckUser(context.Background(), 404, AIQuestions)
	require.NoError(t, err)
	assert.False(t, res.CanUse)
	assert.Equal(t, "user not found", res.Message)
}

func TestCheckUnknownFeature(t *testing.T) {
	f, mkUser := newPolicy(t)
	uid := mkUser("a@b.c")

	res, err := f.policy.CheckUser(context.Background(), uid, Feature("videos"))
	assert.ErrorIs(t, err, ErrUnknownFeature)
	assert.False(t, res.CanUse)

	_, err = ParseFeature("videos")
	assert.ErrorIs(t, err, ErrUnknownFeature)
	got, err := ParseFeature("pdfs")
	require.NoError(t, err)
	assert.Equal(t, PDFs, got)
}

func TestConsumeThreeThenFour(t *testing.T) {
	f, mkUser := newPolicy(t)
	ctx := context.Background()
	uid := mkUser("a@b.c")
	sub, err := f.policy.Subject(ctx, uid)
	require.NoError(t, err)
	require.Equal(t, account.TierFree, sub.Tier)

	for i := 0; i < 3; i++ {
		_, err := f.policy.Consume(ctx, sub, AIQuestions)
		require.NoError(t, err)
	}
	res, err := f.policy.Check(ctx, sub, AIQuestions)
	require.NoError(t, err)
	assert.True(t, res.CanUse)
	assert.Equal(t, 3, res.CurrentUsage)
	assert.Equal(t, 2, res.Remaining)

	res, err = f.policy.Consume(ctx, sub, AIQuestions)
	require.NoError(t, err)
	assert.Equal(t, 4, res.CurrentUsage)
	assert.Equal(t, 1, res.Remaining)
	assert.Equal(t, "1 of 5 AI question generations left today", res.Message)
}

func TestConsumeExhausted(t *testing.T) {
	f, mkUser := newPolicy(t)
	ctx := context.Background()
	sub := Subject{UserID: mkUser("a@b.c"), Tier: account.TierFree}

	_, err := f.policy.Consume(ctx, sub, PDFs)
	require.NoError(t, err)

	res, err := f.policy.Consume(ctx, sub, PDFs)
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.False(t, res.CanUse)
	assert.Equal(t, 1, res.CurrentUsage)
	assert.Equal(t, 0, res.Remaining)
	assert.Contains(t, res.Message, "Daily limit reached")

	// denial does not move the counter
	res, err = f.policy.Check(ctx, sub, PDFs)
	require.NoError(t, err)
	assert.Equal(t, 1, res.CurrentUsage)
	assert.False(t, res.CanUse)
}

func TestRemainingClampedWhenOverLimit(t *testing.T) {
	f, mkUser := newPolicy(t)
	ctx := context.Background()
	uid := mkUser("a@b.c")

	for i := 0; i < 3; i++ {
		_, err := f.policy.Record(ctx, Subject{UserID: uid, Tier: account.TierFree}, PDFs)
		require.NoError(t, err)
	}
	res, err := f.policy.CheckUser(ctx, uid, PDFs)
	require.NoError(t, err)
	assert.False(t, res.CanUse)
	assert.Equal(t, 3, res.CurrentUsage)
	assert.Equal(t, 0, res.Remaining)
}

func TestDemoIsUnlimited(t *testing.T) {
	f, mkUser := newPolicy(t)
	ctx := context.Background()
	uid := mkUser("Demo@Med.ai")

	sub, err := f.policy.Subject(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, account.TierDemo, sub.Tier)

	for i := 0; i < 10; i++ {
		res, err := f.policy.Consume(ctx, sub, PDFs)
		require.NoError(t, err)
		assert.True(t, res.CanUse)
		assert.Equal(t, Unlimited, res.Limit)
		assert.Equal(t, Unlimited, res.Remaining)
	}

	// counters still move for stats
	rec, err := f.store.GetOrResetToday(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, 10, rec.PDFsProcessed)
}

func TestPremiumExpiryBoundary(t *testing.T) {
	f, mkUser := newPolicy(t)
	ctx := context.Background()
	uid := mkUser("p@b.c")
	now := f.now.Now()

	future := now.Add(time.Hour)
	require.NoError(t, f.users.SetSubscription(ctx, uid, model.SubscriptionPremium, &future))
	res, err := f.policy.CheckUser(ctx, uid, CardSets)
	require.NoError(t, err)
	assert.True(t, res.CanUse)
	assert.Equal(t, Unlimited, res.Limit)

	past := now.Add(-time.Hour)
	require.NoError(t, f.users.SetSubscription(ctx, uid, model.SubscriptionPremium, &past))
	res, err = f.policy.CheckUser(ctx, uid, CardSets)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Limit)

	require.NoError(t, f.users.SetSubscription(ctx, uid, model.SubscriptionPremium, nil))
	sub, err := f.policy.Subject(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, account.TierFree, sub.Tier)
}

func TestReleaseRestoresUnit(t *testing.T) {
	f, mkUser := newPolicy(t)
	ctx := context.Background()
	sub := Subject{UserID: mkUser("a@b.c"), Tier: account.TierFree}

	usage, err := f.policy.Consume(ctx, sub, PDFs)
	require.NoError(t, err)
	require.NoError(t, f.policy.Release(ctx, sub, PDFs, usage))

	res, err := f.policy.Consume(ctx, sub, PDFs)
	require.NoError(t, err)
	assert.True(t, res.CanUse)
	assert.Equal(t, 1, res.CurrentUsage)
}

func TestExhaustedYesterdayAdmitsToday(t *testing.T) {
	cases := []struct {
		feature Feature
		limit   int
	}{
		{AIQuestions, DefaultLimits.AIQuestions},
		{CardSets, DefaultLimits.CardSets},
		{PDFs, DefaultLimits.PDFs},
	}
	for _, tc := range cases {
		t.Run(string(tc.feature), func(t *testing.T) {
			f, mkUser := newPolicy(t)
			ctx := context.Background()
			sub := Subject{UserID: mkUser("a@b.c"), Tier: account.TierFree}

			for i := 0; i < tc.limit; i++ {
				_, err := f.policy.Consume(ctx, sub, tc.feature)
				require.NoError(t, err)
			}
			res, err := f.policy.Check(ctx, sub, tc.feature)
			require.NoError(t, err)
			require.False(t, res.CanUse)

			// 02:00 UTC is 11:00 at UTC+9; the next usage day starts at 15:00 UTC
			f.now.Advance(12*time.Hour + 59*time.Minute)
			res, err = f.policy.Check(ctx, sub, tc.feature)
			require.NoError(t, err)
			assert.False(t, res.CanUse, "still the same usage day")

			f.now.Advance(time.Minute)
			res, err = f.policy.Check(ctx, sub, tc.feature)
			require.NoError(t, err)
			assert.True(t, res.CanUse)
			assert.Equal(t, 0, res.CurrentUsage)
			assert.Equal(t, tc.limit, res.Remaining)
		})
	}
}

func TestReleaseAfterDayBoundaryKeepsNewDayUnit(t *testing.T) {
	f, mkUser := newPolicy(t)
	ctx := context.Background()
	sub := Subject{UserID: mkUser("a@b.c"), Tier: account.TierFree}

	late, err := f.policy.Consume(ctx, sub, PDFs)
	require.NoError(t, err)

	f.now.Advance(13 * time.Hour)
	_, err = f.policy.Consume(ctx, sub, PDFs)
	require.NoError(t, err)

	require.NoError(t, f.policy.Release(ctx, sub, PDFs, late))
	res, err := f.policy.Check(ctx, sub, PDFs)
	require.NoError(t, err)
	assert.False(t, res.CanUse)
	assert.Equal(t, 1, res.CurrentUsage)
}

func TestSummaryCoversEveryFeature(t *testing.T) {
	f, mkUser := newPolicy(t)
	ctx := context.Background()
	sub := Subject{UserID: mkUser("a@b.c"), Tier: account.TierFree}

	_, err := f.policy.Consume(ctx, sub, CardSets)
	require.NoError(t, err)

	sum, err := f.policy.Summary(ctx, sub)
	require.NoError(t, err)
	require.Len(t, sum, len(Features))
	assert.Equal(t, 1, sum[CardSets].CurrentUsage)
	assert.Equal(t, 5, sum[AIQuestions].Remaining)
	assert.Equal(t, 1, sum[PDFs].Limit)
}
