package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emandor/medai_service/internal/account"
	"github.com/emandor/medai_service/internal/testutil"
)

func TestGrantMakesUserPremium(t *testing.T) {
	x := testutil.NewDB(t)
	users := account.NewRepo(x)
	id := testutil.CreateUser(t, x, "kim@med.ai")
	now := time.Date(2025, 3, 10, 2, 0, 0, 0, time.UTC)

	require.NoError(t, grant(context.Background(), users, " Kim@Med.ai ", 30, now))

	u, err := users.ByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, u.SubscriptionExpiresAt)
	assert.Equal(t, account.TierPremium, account.TierOf(u, now, "demo@med.ai"))
	assert.Equal(t, account.TierPremium, account.TierOf(u, now.Add(29*24*time.Hour), "demo@med.ai"))
	assert.Equal(t, account.TierFree, account.TierOf(u, now.Add(30*24*time.Hour), "demo@med.ai"))
}

func TestGrantRejectsNonPositiveDays(t *testing.T) {
	x := testutil.NewDB(t)
	users := account.NewRepo(x)
	id := testutil.CreateUser(t, x, "kim@med.ai")
	now := time.Now()

	for _, days := range []int{0, -3} {
		assert.Error(t, grant(context.Background(), users, "kim@med.ai", days, now))
	}

	u, err := users.ByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, account.TierFree, account.TierOf(u, now, "demo@med.ai"))
}

func TestGrantUnknownEmail(t *testing.T) {
	x := testutil.NewDB(t)
	assert.Error(t, grant(context.Background(), account.NewRepo(x), "nobody@med.ai", 30, time.Now()))
}
